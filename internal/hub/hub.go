// Package hub is the coordination authority rooms talk through. It admits
// host and peer connections, routes protocol events between them and tracks
// room readiness.
package hub

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/weiawesome/wes-io-sync/internal/domain"
	pkglog "github.com/weiawesome/wes-io-sync/pkg/log"
	"github.com/weiawesome/wes-io-sync/pkg/pubsub"
)

var (
	ErrHostTaken    = errors.New("room already has a host")
	ErrRoomNotFound = errors.New("room not found")
	ErrClosed       = errors.New("hub closed")
)

// awaitingCheck marks a peer whose media check the host has not answered.
const awaitingCheck = -1

const publishTimeout = 5 * time.Second

type roomState struct {
	id   string
	host *Client
	// members in join order, host first.
	members []*Client
	// pending maps peer client IDs to outstanding transfers.
	pending    map[string]int
	ready      bool
	generation int
	// advancing is set once RequireNextMedia went out for this generation.
	advancing bool
}

func (r *roomState) member(id string) *Client {
	for _, m := range r.members {
		if m.ID == id {
			return m
		}
	}
	return nil
}

func (r *roomState) remove(c *Client) {
	for i, m := range r.members {
		if m == c {
			r.members = append(r.members[:i], r.members[i+1:]...)
			return
		}
	}
}

// hasName reports whether a member goes by name.
func (r *roomState) hasName(name string) bool {
	for _, m := range r.members {
		if m.Name == name {
			return true
		}
	}
	return false
}

func (r *roomState) names() []string {
	names := make([]string, 0, len(r.members))
	for _, m := range r.members {
		names = append(names, m.Name)
	}
	return names
}

// RoomInfo is a read-only view of a room.
type RoomInfo struct {
	ID         string   `json:"id"`
	Host       string   `json:"host"`
	Members    []string `json:"members"`
	Ready      bool     `json:"ready"`
	Pending    int      `json:"pending"`
	Generation int      `json:"generation"`
}

// Option configures a Hub.
type Option func(*Hub)

// WithPublisher publishes room lifecycle events. A nil publisher disables
// publishing.
func WithPublisher(p pubsub.Publisher) Option {
	return func(h *Hub) { h.publisher = p }
}

// WithLogger sets the hub logger.
func WithLogger(l zerolog.Logger) Option {
	return func(h *Hub) { h.logger = l }
}

// Hub holds every open room. All room state and every client send buffer
// is guarded by mu, so frames reach each client in the order the hub
// produced them.
type Hub struct {
	cfg       Config
	publisher pubsub.Publisher
	logger    zerolog.Logger

	mu      sync.Mutex
	rooms   map[string]*roomState
	clients map[*Client]bool
	closed  bool

	wg sync.WaitGroup
}

// New creates a hub.
func New(cfg Config, opts ...Option) *Hub {
	h := &Hub{
		cfg:     cfg.withDefaults(),
		logger:  pkglog.Component("hub"),
		rooms:   make(map[string]*roomState),
		clients: make(map[*Client]bool),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// CanJoin reports the error Admit would return for a new connection.
func (h *Hub) CanJoin(roomID string, role Role) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.checkJoin(roomID, role)
}

func (h *Hub) checkJoin(roomID string, role Role) error {
	if h.closed {
		return ErrClosed
	}
	_, exists := h.rooms[roomID]
	if role == RoleHost && exists {
		return ErrHostTaken
	}
	if role == RolePeer && !exists {
		return ErrRoomNotFound
	}
	return nil
}

// Admit adds c to its room. A host opens the room; a peer stays pending
// until the host answers its media check.
func (h *Hub) Admit(c *Client) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.checkJoin(c.RoomID, c.Role); err != nil {
		return err
	}

	room := h.rooms[c.RoomID]
	if c.Role == RoleHost {
		room = &roomState{id: c.RoomID, host: c, pending: make(map[string]int)}
		h.rooms[c.RoomID] = room
		h.publish(room.id, pubsub.EventRoomOpened, pubsub.RoomOpenedPayload{RoomID: room.id, Host: c.Name})
	} else {
		room.pending[c.ID] = awaitingCheck
	}

	h.clients[c] = true
	for _, m := range room.members {
		h.send(c, domain.EventUserConnected, m.Name)
	}
	room.members = append(room.members, c)
	room.ready = false
	h.broadcast(room, domain.EventUserConnected, c.Name)

	h.publish(room.id, pubsub.EventMemberJoined, pubsub.MemberPayload{
		RoomID: room.id, Participant: c.Name, Members: len(room.members),
	})
	c.logger.Info().Int("members", len(room.members)).Msg("client joined room")

	h.checkReady(room)
	return nil
}

// Remove drops c. When the host leaves the room is closed for everyone.
func (h *Hub) Remove(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.clients[c] {
		return
	}
	h.detach(c)

	room := h.rooms[c.RoomID]
	if room == nil {
		return
	}

	if room.host == c {
		h.closeRoom(room, "host_left")
		c.logger.Info().Msg("host left, room closed")
		return
	}

	room.remove(c)
	delete(room.pending, c.ID)
	// Rosters are keyed by name. A reconnected participant can be admitted
	// before its stale connection is noticed, and must stay listed.
	if !room.hasName(c.Name) {
		h.broadcast(room, domain.EventUserDisconnect, c.Name)
	}
	h.publish(room.id, pubsub.EventMemberLeft, pubsub.MemberPayload{
		RoomID: room.id, Participant: c.Name, Members: len(room.members),
	})
	c.logger.Info().Int("members", len(room.members)).Msg("client left room")

	h.checkReady(room)
}

// Close closes every room and waits for pending publishes.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	for _, room := range h.rooms {
		h.closeRoom(room, "shutdown")
	}
	h.mu.Unlock()

	h.wg.Wait()
}

// Room returns a snapshot of a room.
func (h *Hub) Room(id string) (RoomInfo, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[id]
	if !ok {
		return RoomInfo{}, false
	}
	return RoomInfo{
		ID:         room.id,
		Host:       room.host.Name,
		Members:    room.names(),
		Ready:      room.ready,
		Pending:    len(room.pending),
		Generation: room.generation,
	}, true
}

// Dispatch routes one inbound event from c.
func (h *Hub) Dispatch(c *Client, env *domain.Envelope) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.clients[c] {
		return
	}
	room := h.rooms[c.RoomID]
	if room == nil {
		h.sendError(c, domain.ErrCodeNotFound, "room is closed")
		return
	}

	c.logger.Debug().Str(pkglog.FieldEvent, env.Event).Msg("event received")

	switch env.Event {
	case domain.EventCheckMedia:
		h.checkMedia(room, c, env)
	case domain.EventRequireMedia:
		h.requireMedia(room, c, env)
	case domain.EventUploadMedia:
		h.uploadMedia(room, c, env)
	case domain.EventMediaDownloaded:
		h.mediaDownloaded(room, c)
	case domain.EventPlay, domain.EventPause, domain.EventStop:
		var pos float64
		if err := env.Arg(0, &pos); err != nil {
			h.sendError(c, domain.ErrCodeBadRequest, err.Error())
			return
		}
		h.broadcast(room, env.Event, pos)
	case domain.EventMessage:
		var text string
		if err := env.Arg(0, &text); err != nil {
			h.sendError(c, domain.ErrCodeBadRequest, err.Error())
			return
		}
		h.broadcast(room, domain.EventReceive, c.Name, text)
	case domain.EventTrackEnded:
		if !room.advancing {
			room.advancing = true
			h.send(room.host, domain.EventRequireNextMedia)
		}
	case domain.EventSetNextMedia:
		h.setNextMedia(room, c, env)
	default:
		h.sendError(c, domain.ErrCodeBadRequest, "unknown event "+env.Event)
	}
}

func (h *Hub) checkMedia(room *roomState, c *Client, env *domain.Envelope) {
	if c.Role != RolePeer {
		h.sendError(c, domain.ErrCodeForbidden, "only peers announce media")
		return
	}
	var playlist json.RawMessage
	if err := env.Arg(0, &playlist); err != nil {
		h.sendError(c, domain.ErrCodeBadRequest, err.Error())
		return
	}
	room.pending[c.ID] = awaitingCheck
	room.ready = false
	h.send(room.host, domain.EventCheckMedia, playlist, c.ID)
}

func (h *Hub) requireMedia(room *roomState, c *Client, env *domain.Envelope) {
	if c != room.host {
		h.sendError(c, domain.ErrCodeForbidden, "only the host requires media")
		return
	}
	var needed []json.RawMessage
	var peerID string
	if err := env.Arg(0, &needed); err != nil {
		h.sendError(c, domain.ErrCodeBadRequest, err.Error())
		return
	}
	if err := env.Arg(1, &peerID); err != nil {
		h.sendError(c, domain.ErrCodeBadRequest, err.Error())
		return
	}
	peer := room.member(peerID)
	if peer == nil || peer == room.host {
		h.sendError(c, domain.ErrCodeNotFound, "unknown peer "+peerID)
		return
	}

	if len(needed) == 0 {
		delete(room.pending, peerID)
	} else {
		room.pending[peerID] = len(needed)
	}
	h.sendEnvelope(c, env)
	h.checkReady(room)
}

func (h *Hub) uploadMedia(room *roomState, c *Client, env *domain.Envelope) {
	if c != room.host {
		h.sendError(c, domain.ErrCodeForbidden, "only the host uploads media")
		return
	}
	var peerID string
	var name, set json.RawMessage
	if err := env.Arg(0, &peerID); err != nil {
		h.sendError(c, domain.ErrCodeBadRequest, err.Error())
		return
	}
	if err := env.Arg(1, &name); err != nil {
		h.sendError(c, domain.ErrCodeBadRequest, err.Error())
		return
	}
	if err := env.Arg(2, &set); err != nil {
		h.sendError(c, domain.ErrCodeBadRequest, err.Error())
		return
	}
	peer := room.member(peerID)
	if peer == nil {
		h.sendError(c, domain.ErrCodeNotFound, "unknown peer "+peerID)
		return
	}
	h.send(peer, domain.EventDownloadMedia, name, set)
}

func (h *Hub) mediaDownloaded(room *roomState, c *Client) {
	n, ok := room.pending[c.ID]
	if !ok || n == awaitingCheck {
		c.logger.Warn().Msg("unexpected media download report")
		return
	}
	if n <= 1 {
		delete(room.pending, c.ID)
	} else {
		room.pending[c.ID] = n - 1
	}
	h.checkReady(room)
}

func (h *Hub) setNextMedia(room *roomState, c *Client, env *domain.Envelope) {
	if c != room.host {
		h.sendError(c, domain.ErrCodeForbidden, "only the host advances the playlist")
		return
	}
	var m domain.Media
	if err := env.Arg(0, &m); err != nil {
		h.sendError(c, domain.ErrCodeBadRequest, err.Error())
		return
	}

	room.generation++
	room.advancing = false
	room.ready = false
	h.sendRaw(room, domain.EventNextMedia, env.Args[0])
	h.publish(room.id, pubsub.EventTrackAdvanced, pubsub.TrackAdvancedPayload{
		RoomID: room.id, Media: m.Name, Generation: room.generation,
	})
	h.checkReady(room)
}

// checkReady announces ReadyToPlay once no peer is pending.
func (h *Hub) checkReady(room *roomState) {
	if room.ready || len(room.pending) > 0 {
		return
	}
	room.ready = true
	h.broadcast(room, domain.EventReadyToPlay)
}

func (h *Hub) closeRoom(room *roomState, reason string) {
	delete(h.rooms, room.id)
	for _, m := range room.members {
		if !h.clients[m] {
			continue
		}
		h.send(m, domain.EventRoomClosed)
		h.detach(m)
	}
	h.publish(room.id, pubsub.EventRoomClosed, pubsub.RoomClosedPayload{RoomID: room.id, Reason: reason})
}

// detach stops delivery to c. Its write pump flushes what is queued and
// closes the connection.
func (h *Hub) detach(c *Client) {
	delete(h.clients, c)
	close(c.send)
}

func (h *Hub) sendRaw(room *roomState, event string, arg json.RawMessage) {
	h.broadcastEnvelope(room, &domain.Envelope{Event: event, Args: []json.RawMessage{arg}})
}

func (h *Hub) broadcast(room *roomState, event string, args ...interface{}) {
	env, err := domain.NewEnvelope(event, args...)
	if err != nil {
		h.logger.Error().Err(err).Str(pkglog.FieldEvent, event).Msg("failed to encode event")
		return
	}
	h.broadcastEnvelope(room, env)
}

func (h *Hub) broadcastEnvelope(room *roomState, env *domain.Envelope) {
	data, err := env.Marshal()
	if err != nil {
		h.logger.Error().Err(err).Str(pkglog.FieldEvent, env.Event).Msg("failed to encode event")
		return
	}
	for _, m := range room.members {
		h.deliver(m, data)
	}
}

func (h *Hub) send(c *Client, event string, args ...interface{}) {
	env, err := domain.NewEnvelope(event, args...)
	if err != nil {
		h.logger.Error().Err(err).Str(pkglog.FieldEvent, event).Msg("failed to encode event")
		return
	}
	h.sendEnvelope(c, env)
}

func (h *Hub) sendEnvelope(c *Client, env *domain.Envelope) {
	data, err := env.Marshal()
	if err != nil {
		h.logger.Error().Err(err).Str(pkglog.FieldEvent, env.Event).Msg("failed to encode event")
		return
	}
	h.deliver(c, data)
}

func (h *Hub) sendError(c *Client, code, message string) {
	c.logger.Warn().Str("code", code).Msg(message)
	h.send(c, domain.EventError, code, message)
}

// reportError sends an Error event from outside the hub lock.
func (h *Hub) reportError(c *Client, code, message string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[c] {
		h.sendError(c, code, message)
	}
}

func (h *Hub) deliver(c *Client, data []byte) {
	if !h.clients[c] {
		return
	}
	if !c.enqueue(data) {
		// A client that cannot keep up is dropped; its read pump removes it.
		c.logger.Warn().Msg("send buffer full, dropping client")
		c.close()
	}
}

func (h *Hub) publish(roomID, eventType string, payload interface{}) {
	if h.publisher == nil {
		return
	}
	event, err := pubsub.NewEvent(eventType, roomID, payload)
	if err != nil {
		h.logger.Error().Err(err).Str("type", eventType).Msg("failed to encode room event")
		return
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := h.publisher.Publish(ctx, pubsub.RoomEventsChannel(roomID), event); err != nil {
			h.logger.Warn().Err(err).
				Str(pkglog.FieldRoomID, roomID).
				Str("type", eventType).
				Msg("failed to publish room event")
		}
	}()
}
