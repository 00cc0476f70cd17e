// Package session composes the room channel, playback state machine and
// transfer coordinator into one room session with a join/leave lifecycle.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/weiawesome/wes-io-sync/internal/channel"
	"github.com/weiawesome/wes-io-sync/internal/domain"
	"github.com/weiawesome/wes-io-sync/internal/playback"
	"github.com/weiawesome/wes-io-sync/internal/reconcile"
	"github.com/weiawesome/wes-io-sync/internal/transfer"
	pkglog "github.com/weiawesome/wes-io-sync/pkg/log"
)

var (
	ErrAlreadyJoined = errors.New("room session already joined")
	ErrNotJoined     = errors.New("room session not joined")
)

// Role selects the participant variant.
type Role string

const (
	RoleHost Role = "host"
	RolePeer Role = "peer"
)

// ParseRole validates a role name.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleHost, RolePeer:
		return r, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// Config describes the session to join.
type Config struct {
	Room     domain.Room
	Role     Role
	Playlist domain.Playlist

	// Channel.URL is the hub websocket endpoint; room and role are added
	// as query parameters.
	Channel       channel.Config
	SyncTolerance time.Duration
}

// Option configures a Controller.
type Option func(*Controller)

// WithObserver sets the presentation observer.
func WithObserver(o playback.Observer) Option {
	return func(c *Controller) { c.observer = o }
}

// WithChannelOptions passes options to the room channel.
func WithChannelOptions(opts ...channel.Option) Option {
	return func(c *Controller) { c.channelOpts = append(c.channelOpts, opts...) }
}

// Controller owns one room session.
type Controller struct {
	cfg         Config
	player      playback.Player
	media       transfer.MediaTransfer
	tokens      channel.TokenProvider
	observer    playback.Observer
	channelOpts []channel.Option
	reconciler  *reconcile.Reconciler
	logger      zerolog.Logger

	mu       sync.Mutex
	joining  bool
	joined   bool
	left     bool
	everUp   bool
	ch       *channel.Channel
	playback *playback.Session
	coord    *transfer.Coordinator
	role     role
	done     chan struct{}

	// leaveQueued records a Leave that arrived while Join was connecting.
	leaveQueued bool
}

// New creates a controller. Nothing connects until Join.
func New(cfg Config, player playback.Player, media transfer.MediaTransfer, tokens channel.TokenProvider, opts ...Option) (*Controller, error) {
	if err := cfg.Room.Validate(); err != nil {
		return nil, err
	}
	if _, err := ParseRole(string(cfg.Role)); err != nil {
		return nil, err
	}
	if cfg.Channel.URL == "" {
		return nil, errors.New("hub url is empty")
	}

	c := &Controller{
		cfg:        cfg,
		player:     player,
		media:      media,
		tokens:     tokens,
		observer:   playback.NopObserver{},
		reconciler: reconcile.New(),
		logger: pkglog.Component("session").With().
			Str(pkglog.FieldRoomID, cfg.Room.ID).
			Str(pkglog.FieldRole, string(cfg.Role)).
			Logger(),
		done: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func channelURL(base string, roomID string, r Role) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse hub url: %w", err)
	}
	q := u.Query()
	q.Set("room", roomID)
	q.Set("role", string(r))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Join connects to the room. A peer announces its playlist right after
// every successful connect.
func (c *Controller) Join(ctx context.Context) error {
	c.mu.Lock()
	if c.joined || c.joining {
		c.mu.Unlock()
		return ErrAlreadyJoined
	}
	c.joining = true
	c.mu.Unlock()

	if err := c.join(ctx); err != nil {
		c.mu.Lock()
		c.joining = false
		c.leaveQueued = false
		c.mu.Unlock()
		return err
	}

	c.mu.Lock()
	c.joining = false
	c.joined = true
	queued := c.leaveQueued
	c.mu.Unlock()
	c.logger.Info().Msg("joined room")

	// The room can close before Join returns.
	if queued {
		c.Leave()
	}
	return nil
}

func (c *Controller) join(ctx context.Context) error {
	chCfg := c.cfg.Channel
	u, err := channelURL(chCfg.URL, c.cfg.Room.ID, c.cfg.Role)
	if err != nil {
		return err
	}
	chCfg.URL = u

	ch := channel.New(chCfg, c.tokens, c.channelOpts...)
	ps := playback.NewSession(c.cfg.Room, c.cfg.Playlist, c.player, ch,
		playback.WithObserver(c.observer),
		playback.WithSyncTolerance(c.cfg.SyncTolerance),
		playback.WithReconciler(c.reconciler),
	)
	coord := transfer.NewCoordinator(c.cfg.Room, c.media, ch, ps, c.transferFailed)

	var r role
	if c.cfg.Role == RoleHost {
		r = &host{c: c, ch: ch, playback: ps, coord: coord}
	} else {
		r = &peer{c: c, ch: ch, playback: ps, coord: coord}
	}

	c.mu.Lock()
	c.ch, c.playback, c.coord, c.role = ch, ps, coord, r
	c.mu.Unlock()

	c.registerCommon(ch, ps)
	r.register()
	ch.OnStatus(c.handleStatus)

	if err := ch.Connect(ctx); err != nil {
		ch.Stop()
		coord.Cancel()
		ps.Close()
		return err
	}
	return nil
}

// Leave stops the channel, cancels in-flight transfers and releases the
// player. It is idempotent. A Leave during Join takes effect once Join has
// connected.
func (c *Controller) Leave() error {
	c.mu.Lock()
	if c.joining {
		c.leaveQueued = true
		c.mu.Unlock()
		return nil
	}
	if !c.joined {
		c.mu.Unlock()
		return ErrNotJoined
	}
	if c.left {
		c.mu.Unlock()
		return nil
	}
	c.left = true
	c.mu.Unlock()

	c.ch.Stop()
	c.coord.Cancel()
	c.playback.Close()
	close(c.done)
	c.logger.Info().Msg("left room")
	return nil
}

// Done is closed once the session has ended, by Leave or by the host
// closing the room.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

func (c *Controller) session() (*playback.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.joined {
		return nil, ErrNotJoined
	}
	return c.playback, nil
}

// Play asks the room to play from the local position.
func (c *Controller) Play(ctx context.Context) error {
	s, err := c.session()
	if err != nil {
		return err
	}
	return s.RequestPlay(ctx)
}

// Pause asks the room to pause.
func (c *Controller) Pause(ctx context.Context) error {
	s, err := c.session()
	if err != nil {
		return err
	}
	return s.RequestPause(ctx)
}

// Stop asks the room to stop.
func (c *Controller) Stop(ctx context.Context) error {
	s, err := c.session()
	if err != nil {
		return err
	}
	return s.RequestStop(ctx)
}

// SendMessage sends a chat message.
func (c *Controller) SendMessage(ctx context.Context, text string) error {
	s, err := c.session()
	if err != nil {
		return err
	}
	return s.SendMessage(ctx, text)
}

// Snapshot returns the playback state.
func (c *Controller) Snapshot() (playback.Snapshot, error) {
	s, err := c.session()
	if err != nil {
		return playback.Snapshot{}, err
	}
	return s.Snapshot(), nil
}

// Connected reports whether the room channel is currently open.
func (c *Controller) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ch != nil && c.ch.Connected()
}

func (c *Controller) transferFailed(name string, err error) {
	c.mu.Lock()
	ps := c.playback
	c.mu.Unlock()
	ps.Notice(playback.NoticeTransferFailed, fmt.Sprintf("transfer of %s failed: %v", name, err))
}

func (c *Controller) handleStatus(status channel.Status, err error) {
	switch status {
	case channel.StatusConnected:
		c.mu.Lock()
		reconnect := c.everUp
		c.everUp = true
		ps, r := c.playback, c.role
		c.mu.Unlock()

		if reconnect {
			ps.HandleReconnected()
			ps.Notice(playback.NoticeTransient, "reconnected to room")
		}
		r.connected()
	case channel.StatusDisconnected:
		msg := "connection to room lost"
		if err != nil {
			msg += ": " + err.Error()
		}
		c.mu.Lock()
		ps := c.playback
		c.mu.Unlock()
		ps.Notice(playback.NoticeTransient, msg)
	case channel.StatusReconnecting:
		c.logger.Info().Msg("reconnecting to room")
	}
}
