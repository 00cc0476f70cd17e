// Package playback holds the per-participant playback state machine. It
// turns inbound room events into player commands and local actions into
// outbound events; every transition is applied under one lock.
package playback

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/weiawesome/wes-io-sync/internal/domain"
	"github.com/weiawesome/wes-io-sync/internal/reconcile"
	pkglog "github.com/weiawesome/wes-io-sync/pkg/log"
)

// MaxChatLines bounds the chat log kept for snapshots.
const MaxChatLines = 200

var (
	// ErrClosed is returned by outbound actions after Close.
	ErrClosed = errors.New("playback session closed")
	// ErrNotReady is returned by RequestPlay while play control is disarmed.
	ErrNotReady = errors.New("playback not ready")
)

// Sender sends one event on the room channel.
type Sender interface {
	Send(ctx context.Context, event string, args ...interface{}) error
}

// Option configures a Session.
type Option func(*Session)

// WithObserver sets the observer notified of state changes.
func WithObserver(o Observer) Option {
	return func(s *Session) { s.observer = o }
}

// WithSyncTolerance enables seeking to the broadcast position on Play when
// the local position is further away than d. Zero disables seeking.
func WithSyncTolerance(d time.Duration) Option {
	return func(s *Session) { s.tolerance = d }
}

// WithReconciler replaces the default reconciler.
func WithReconciler(r *reconcile.Reconciler) Option {
	return func(s *Session) { s.reconciler = r }
}

// WithClock replaces the clock used to stamp chat lines.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// Session is the playback state machine of the local participant.
type Session struct {
	room       domain.Room
	player     Player
	sender     Sender
	reconciler *reconcile.Reconciler
	observer   Observer
	tolerance  time.Duration
	now        func() time.Time
	logger     zerolog.Logger

	mu       sync.Mutex
	state    State
	ready    bool
	autoplay bool
	closed   bool
	roster   []string
	playlist domain.Playlist
	chat     []ChatLine

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSession creates a session over playlist. The playlist head, if any, is
// loaded into the player.
func NewSession(room domain.Room, playlist domain.Playlist, player Player, sender Sender, opts ...Option) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		room:       room,
		player:     player,
		sender:     sender,
		reconciler: reconcile.New(),
		observer:   NopObserver{},
		now:        time.Now,
		logger:     pkglog.Component("playback").With().Str(pkglog.FieldRoomID, room.ID).Logger(),
		state:      StateAwaitingMembers,
		playlist:   playlist.Clone(),
		ctx:        ctx,
		cancel:     cancel,
	}
	for _, opt := range opts {
		opt(s)
	}

	if head, ok := s.playlist.Head(); ok {
		if err := player.Load(head.FileName); err != nil {
			s.logger.Warn().Err(err).Str(pkglog.FieldMedia, head.FileName).Msg("failed to load playlist head")
		}
	}
	player.OnEnded(s.handleEnded)
	return s
}

// update applies fn under the session lock and notifies the observer with
// the resulting snapshot.
func (s *Session) update(fn func() bool) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if !fn() {
		s.mu.Unlock()
		return
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.observer.StateChanged(snap)
}

func (s *Session) setState(next State) {
	if s.state != next {
		s.logger.Debug().
			Str(pkglog.FieldState, next.String()).
			Str("from", s.state.String()).
			Msg("state transition")
	}
	s.state = next
}

func (s *Session) command(name string, fn func() error) {
	if err := fn(); err != nil {
		s.logger.Warn().Err(err).Str("command", name).Msg("player command failed")
	}
}

// HandleUserConnected adds name to the roster, drops readiness and pauses
// the player until the room is ready again.
func (s *Session) HandleUserConnected(name string) {
	s.update(func() bool {
		if !containsName(s.roster, name) {
			s.roster = append(s.roster, name)
		}
		s.ready = false
		s.command("pause", s.player.Pause)
		s.setState(StateNotReady)
		return true
	})
}

// HandleUserDisconnected removes name from the roster.
func (s *Session) HandleUserDisconnected(name string) {
	s.update(func() bool {
		for i, n := range s.roster {
			if n == name {
				s.roster = append(s.roster[:i:i], s.roster[i+1:]...)
				return true
			}
		}
		return false
	})
}

// HandleReconnected forgets the roster and readiness of the previous
// connection; the hub replays membership for the new one.
func (s *Session) HandleReconnected() {
	s.update(func() bool {
		s.roster = nil
		s.ready = false
		s.command("pause", s.player.Pause)
		s.setState(StateNotReady)
		return true
	})
}

// HandleReadyToPlay arms local play control. A track loaded by NextMedia
// starts playing now.
func (s *Session) HandleReadyToPlay() {
	s.update(func() bool {
		s.ready = true
		if s.player.Source() == "" {
			if head, ok := s.playlist.Head(); ok {
				s.command("load", func() error { return s.player.Load(head.FileName) })
			}
		}
		switch {
		case s.autoplay:
			s.autoplay = false
			s.command("play", s.player.Play)
			s.setState(StatePlaying)
		case s.state == StateAwaitingMembers || s.state == StateNotReady:
			s.setState(StateReady)
		}
		return true
	})
}

// HandlePlay resumes playback when the session is ready. While not ready the
// event is dropped, not buffered.
func (s *Session) HandlePlay(position time.Duration) {
	s.update(func() bool {
		if !s.ready {
			s.logger.Debug().Str(pkglog.FieldEvent, domain.EventPlay).Msg("play ignored while not ready")
			return false
		}
		if s.tolerance > 0 {
			drift := s.player.Position() - position
			if drift < 0 {
				drift = -drift
			}
			if drift > s.tolerance {
				s.command("seek", func() error { return s.player.Seek(position) })
			}
		}
		s.command("play", s.player.Play)
		s.setState(StatePlaying)
		return true
	})
}

// HandlePause pauses the player. The state only moves to Paused while
// ready; otherwise NotReady is kept.
func (s *Session) HandlePause(time.Duration) {
	s.update(func() bool {
		s.command("pause", s.player.Pause)
		if s.ready {
			s.setState(StatePaused)
		}
		return true
	})
}

// HandleStop stops the player. The state only moves to Stopped while ready.
func (s *Session) HandleStop(time.Duration) {
	s.update(func() bool {
		s.command("stop", s.player.Stop)
		s.autoplay = false
		if s.ready {
			s.setState(StateStopped)
		}
		return true
	})
}

// HandleNextMedia switches to m, using the local file when the catalogue
// holds a matching item and m's own file reference otherwise. Playback of
// the new track starts on the next ReadyToPlay.
func (s *Session) HandleNextMedia(m domain.Media) {
	var loadErr error
	var source string
	s.update(func() bool {
		resolved, local := s.reconciler.Resolve(s.playlist, m)
		source = resolved.FileName
		if !local {
			s.logger.Info().Str(pkglog.FieldMedia, m.Name).Msg("next media not in local playlist, using its file reference")
		}

		s.command("stop", s.player.Stop)
		loadErr = s.player.Load(source)
		s.ready = false
		s.autoplay = loadErr == nil
		s.setState(StateNotReady)
		return true
	})
	if loadErr != nil {
		s.logger.Warn().Err(loadErr).Str(pkglog.FieldMedia, source).Msg("failed to load next media")
		s.observer.Notice(NoticeInfo, "cannot load "+m.Name+": "+loadErr.Error())
	}
}

// HandleReceive appends a chat line.
func (s *Session) HandleReceive(user, text string) {
	var line ChatLine
	s.update(func() bool {
		line = ChatLine{User: user, Text: text, At: s.now()}
		s.chat = append(s.chat, line)
		if over := len(s.chat) - MaxChatLines; over > 0 {
			s.chat = append(s.chat[:0:0], s.chat[over:]...)
		}
		return true
	})
	if line.User != "" || line.Text != "" {
		s.observer.ChatReceived(line)
	}
}

// HandleRoomClosed stops the player and reports the closed room. The
// caller tears the session down.
func (s *Session) HandleRoomClosed() {
	if s.isClosed() {
		return
	}
	s.update(func() bool {
		s.command("stop", s.player.Stop)
		s.ready = false
		s.autoplay = false
		s.setState(StateStopped)
		return true
	})
	s.observer.Notice(NoticeRoomClosed, "the host closed room "+s.room.Name)
}

// handleEnded runs on end-of-media: the finished item leaves the playlist
// and, when more remain, the room is asked for the next track.
func (s *Session) handleEnded() {
	var advance bool
	s.update(func() bool {
		pl, removed := s.playlist.RemoveFile(s.player.Source())
		s.playlist = pl
		advance = removed && len(pl) > 0
		if s.ready {
			s.setState(StateStopped)
		}
		return true
	})
	if advance {
		s.emit(domain.EventTrackEnded)
	}
}

// AdvanceTrack removes the item the player is on and returns the new
// playlist head. It reports false when the playlist is exhausted.
func (s *Session) AdvanceTrack() (domain.Media, bool) {
	var next domain.Media
	var ok bool
	s.update(func() bool {
		s.playlist, _ = s.playlist.RemoveFile(s.player.Source())
		next, ok = s.playlist.Head()
		return true
	})
	return next, ok
}

// AddMedia appends a transferred item to the playlist unless an item with
// the same file is already present.
func (s *Session) AddMedia(m domain.Media) {
	s.update(func() bool {
		if s.playlist.IndexOfFile(m.FileName) >= 0 {
			return false
		}
		s.playlist = append(s.playlist, m)
		return true
	})
}

// Playlist returns a copy of the local playlist.
func (s *Session) Playlist() domain.Playlist {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playlist.Clone()
}

// Ready reports the readiness flag.
func (s *Session) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Snapshot returns a copy of the session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	return Snapshot{
		State:    s.state,
		Ready:    s.ready,
		Roster:   append([]string(nil), s.roster...),
		Playlist: s.playlist.Clone(),
		Current:  s.player.Source(),
		Position: s.player.Position(),
		Chat:     append([]ChatLine(nil), s.chat...),
	}
}

// Notice forwards a notice to the observer.
func (s *Session) Notice(kind NoticeKind, message string) {
	s.observer.Notice(kind, message)
}

// RequestPlay broadcasts Play at the local position. The local state does
// not change until the broadcast comes back. Play control is disarmed
// until the room is ready.
func (s *Session) RequestPlay(ctx context.Context) error {
	if !s.Ready() && !s.isClosed() {
		return ErrNotReady
	}
	return s.request(ctx, domain.EventPlay)
}

// RequestPause broadcasts Pause at the local position.
func (s *Session) RequestPause(ctx context.Context) error {
	return s.request(ctx, domain.EventPause)
}

// RequestStop broadcasts Stop at the local position.
func (s *Session) RequestStop(ctx context.Context) error {
	return s.request(ctx, domain.EventStop)
}

func (s *Session) request(ctx context.Context, event string) error {
	if s.isClosed() {
		return ErrClosed
	}
	return s.sender.Send(ctx, event, domain.EncodePosition(s.player.Position()))
}

// SendMessage sends a chat message.
func (s *Session) SendMessage(ctx context.Context, text string) error {
	if s.isClosed() {
		return ErrClosed
	}
	return s.sender.Send(ctx, domain.EventMessage, text)
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// emit sends event in the background; failures are logged only.
func (s *Session) emit(event string, args ...interface{}) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		if err := s.sender.Send(s.ctx, event, args...); err != nil && s.ctx.Err() == nil {
			s.logger.Warn().Err(err).Str(pkglog.FieldEvent, event).Msg("send failed")
		}
	}()
}

// Close releases the player. It is idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.ready = false
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	s.command("stop", s.player.Stop)
	s.player.OnEnded(nil)
}

func containsName(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
