package playback

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/weiawesome/wes-io-sync/internal/domain"
)

type fakePlayer struct {
	mu       sync.Mutex
	calls    []string
	source   string
	position time.Duration
	playing  bool
	loadErr  error
	onEnded  func()
}

func (p *fakePlayer) record(call string) {
	p.calls = append(p.calls, call)
}

func (p *fakePlayer) Load(source string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("load " + source)
	if p.loadErr != nil {
		return p.loadErr
	}
	p.source = source
	p.position = 0
	p.playing = false
	return nil
}

func (p *fakePlayer) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("play")
	p.playing = true
	return nil
}

func (p *fakePlayer) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("pause")
	p.playing = false
	return nil
}

func (p *fakePlayer) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("stop")
	p.playing = false
	p.position = 0
	return nil
}

func (p *fakePlayer) Seek(position time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record(fmt.Sprintf("seek %v", position))
	p.position = position
	return nil
}

func (p *fakePlayer) Position() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.position
}

func (p *fakePlayer) Source() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.source
}

func (p *fakePlayer) OnEnded(fn func()) {
	p.mu.Lock()
	p.onEnded = fn
	p.mu.Unlock()
}

func (p *fakePlayer) end() {
	p.mu.Lock()
	fn := p.onEnded
	p.playing = false
	p.mu.Unlock()
	fn()
}

func (p *fakePlayer) history() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

func (p *fakePlayer) reset() {
	p.mu.Lock()
	p.calls = nil
	p.mu.Unlock()
}

type sent struct {
	event string
	args  []interface{}
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sent
	ch   chan sent
}

func newFakeSender() *fakeSender {
	return &fakeSender{ch: make(chan sent, 16)}
}

func (s *fakeSender) Send(_ context.Context, event string, args ...interface{}) error {
	s.mu.Lock()
	s.sent = append(s.sent, sent{event, args})
	s.mu.Unlock()
	s.ch <- sent{event, args}
	return nil
}

func (s *fakeSender) events() []sent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sent(nil), s.sent...)
}

type recordingObserver struct {
	mu      sync.Mutex
	notices []NoticeKind
	chat    []ChatLine
	states  []State
}

func (o *recordingObserver) StateChanged(s Snapshot) {
	o.mu.Lock()
	o.states = append(o.states, s.State)
	o.mu.Unlock()
}

func (o *recordingObserver) ChatReceived(line ChatLine) {
	o.mu.Lock()
	o.chat = append(o.chat, line)
	o.mu.Unlock()
}

func (o *recordingObserver) Notice(kind NoticeKind, _ string) {
	o.mu.Lock()
	o.notices = append(o.notices, kind)
	o.mu.Unlock()
}

var (
	mediaA = domain.Media{FileName: "/media/a.mp4", Name: "A", Album: "X", Genre: "Drama", MimeType: "video/mp4", Duration: 90 * time.Minute}
	mediaB = domain.Media{FileName: "/media/b.mp4", Name: "B", Album: "X", Genre: "Comedy", MimeType: "video/mp4", Duration: 80 * time.Minute}
)

func testRoom() domain.Room {
	return domain.Room{ID: "r1", Name: "Movie night", Namespace: "ns", PlaylistPath: "/media"}
}

func newTestSession(t *testing.T, playlist domain.Playlist, opts ...Option) (*Session, *fakePlayer, *fakeSender) {
	t.Helper()
	p := &fakePlayer{}
	snd := newFakeSender()
	s := NewSession(testRoom(), playlist, p, snd, opts...)
	t.Cleanup(s.Close)
	return s, p, snd
}

func TestNewSessionLoadsHead(t *testing.T) {
	s, p, _ := newTestSession(t, domain.Playlist{mediaA, mediaB})

	if p.Source() != mediaA.FileName {
		t.Errorf("Expected %s loaded, got %q", mediaA.FileName, p.Source())
	}
	if s.State() != StateAwaitingMembers {
		t.Errorf("Expected %s, got %s", StateAwaitingMembers, s.State())
	}
	if s.Ready() {
		t.Error("Expected a new session not to be ready")
	}
}

func TestPlayWhileNotReadyIsNoop(t *testing.T) {
	s, p, _ := newTestSession(t, domain.Playlist{mediaA})
	p.position = 12 * time.Second
	p.reset()

	s.HandlePlay(30 * time.Second)

	if calls := p.history(); len(calls) != 0 {
		t.Errorf("Expected no player calls, got %v", calls)
	}
	if p.Position() != 12*time.Second {
		t.Errorf("Expected position unchanged, got %v", p.Position())
	}
	if s.State() != StateAwaitingMembers {
		t.Errorf("Expected state unchanged, got %s", s.State())
	}
}

func TestUserConnectedForcesNotReady(t *testing.T) {
	tests := []struct {
		name  string
		setup func(s *Session)
	}{
		{"from awaiting", func(s *Session) {}},
		{"from ready", func(s *Session) { s.HandleReadyToPlay() }},
		{"from playing", func(s *Session) { s.HandleReadyToPlay(); s.HandlePlay(0) }},
		{"from paused", func(s *Session) { s.HandleReadyToPlay(); s.HandlePlay(0); s.HandlePause(0) }},
		{"from stopped", func(s *Session) { s.HandleReadyToPlay(); s.HandleStop(0) }},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			s, p, _ := newTestSession(t, domain.Playlist{mediaA})
			test.setup(s)

			s.HandleUserConnected("bob")

			if s.Ready() {
				t.Error("Expected readiness false after UserConnected")
			}
			if s.State() != StateNotReady {
				t.Errorf("Expected %s, got %s", StateNotReady, s.State())
			}
			if p.playing {
				t.Error("Expected the player to be paused")
			}
			if err := s.RequestPlay(context.Background()); !errors.Is(err, ErrNotReady) {
				t.Errorf("Expected play control disarmed, got %v", err)
			}
		})
	}
}

func TestPlaybackTransitions(t *testing.T) {
	s, p, _ := newTestSession(t, domain.Playlist{mediaA})

	s.HandleUserConnected("alice")
	s.HandleReadyToPlay()
	if s.State() != StateReady || !s.Ready() {
		t.Fatalf("Expected ready, got %s ready=%v", s.State(), s.Ready())
	}

	s.HandlePlay(0)
	if s.State() != StatePlaying || !p.playing {
		t.Errorf("Expected playing, got %s", s.State())
	}
	s.HandlePause(0)
	if s.State() != StatePaused || p.playing {
		t.Errorf("Expected paused, got %s", s.State())
	}
	s.HandlePlay(0)
	if s.State() != StatePlaying {
		t.Errorf("Expected playing after resume, got %s", s.State())
	}
	s.HandleStop(0)
	if s.State() != StateStopped {
		t.Errorf("Expected stopped, got %s", s.State())
	}
}

func TestPauseWhileNotReadyKeepsState(t *testing.T) {
	s, p, _ := newTestSession(t, domain.Playlist{mediaA})
	s.HandleUserConnected("alice")

	s.HandlePause(0)

	if s.State() != StateNotReady {
		t.Errorf("Expected %s, got %s", StateNotReady, s.State())
	}
	if h := p.history(); h[len(h)-1] != "pause" {
		t.Errorf("Expected the player to be paused, got %v", h)
	}
}

func TestPlaySeeksOnDrift(t *testing.T) {
	tests := []struct {
		name      string
		tolerance time.Duration
		local     time.Duration
		remote    time.Duration
		seek      bool
	}{
		{"within tolerance", time.Second, 10 * time.Second, 10500 * time.Millisecond, false},
		{"behind", time.Second, 10 * time.Second, 15 * time.Second, true},
		{"ahead", time.Second, 20 * time.Second, 15 * time.Second, true},
		{"disabled", 0, 0, time.Minute, false},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			s, p, _ := newTestSession(t, domain.Playlist{mediaA}, WithSyncTolerance(test.tolerance))
			s.HandleReadyToPlay()
			p.position = test.local
			p.reset()

			s.HandlePlay(test.remote)

			seeked := false
			for _, c := range p.history() {
				if strings.HasPrefix(c, "seek") {
					seeked = true
				}
			}
			if seeked != test.seek {
				t.Errorf("Expected seek=%v, got calls %v", test.seek, p.history())
			}
			if test.seek && p.Position() != test.remote {
				t.Errorf("Expected position %v, got %v", test.remote, p.Position())
			}
		})
	}
}

func TestNextMediaUsesLocalMatch(t *testing.T) {
	s, p, _ := newTestSession(t, domain.Playlist{mediaA, mediaB})
	s.HandleReadyToPlay()
	s.HandlePlay(0)

	announced := mediaB
	announced.FileName = "/host/elsewhere/b.mp4"
	s.HandleNextMedia(announced)

	if p.Source() != mediaB.FileName {
		t.Errorf("Expected local file %s, got %s", mediaB.FileName, p.Source())
	}
	if s.State() != StateNotReady || s.Ready() {
		t.Errorf("Expected not ready after a track transition, got %s", s.State())
	}
	if p.playing {
		t.Error("Expected playback to wait for ReadyToPlay")
	}

	s.HandleReadyToPlay()
	if s.State() != StatePlaying || !p.playing {
		t.Errorf("Expected the new track to start on ReadyToPlay, got %s", s.State())
	}
}

func TestNextMediaFallsBackToFileReference(t *testing.T) {
	s, p, _ := newTestSession(t, domain.Playlist{mediaA})

	unknown := domain.Media{FileName: "/shared/c.mp4", Name: "C"}
	s.HandleNextMedia(unknown)

	if p.Source() != unknown.FileName {
		t.Errorf("Expected %s, got %s", unknown.FileName, p.Source())
	}
}

func TestNextMediaLoadFailureIsNoticed(t *testing.T) {
	obs := &recordingObserver{}
	s, p, _ := newTestSession(t, domain.Playlist{mediaA}, WithObserver(obs))
	p.loadErr = errors.New("no such file")

	s.HandleNextMedia(mediaB)
	s.HandleReadyToPlay()

	if p.playing {
		t.Error("Expected no autoplay after a failed load")
	}
	if len(obs.notices) != 1 || obs.notices[0] != NoticeInfo {
		t.Errorf("Expected one info notice, got %v", obs.notices)
	}
}

func TestEndOfMediaSendsTrackEnded(t *testing.T) {
	s, p, snd := newTestSession(t, domain.Playlist{mediaA, mediaB})
	s.HandleReadyToPlay()
	s.HandlePlay(0)

	p.end()

	select {
	case ev := <-snd.ch:
		if ev.event != domain.EventTrackEnded {
			t.Errorf("Expected %s, got %s", domain.EventTrackEnded, ev.event)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Expected TrackEnded to be sent")
	}
	if names := s.Playlist().Names(); len(names) != 1 || names[0] != "B" {
		t.Errorf("Expected playlist [B], got %v", names)
	}
	if s.State() != StateStopped {
		t.Errorf("Expected stopped, got %s", s.State())
	}
}

func TestEndOfLastMediaSendsNothing(t *testing.T) {
	s, p, snd := newTestSession(t, domain.Playlist{mediaA})
	p.end()

	select {
	case ev := <-snd.ch:
		t.Errorf("Expected nothing sent, got %s", ev.event)
	case <-time.After(50 * time.Millisecond):
	}
	if len(s.Playlist()) != 0 {
		t.Errorf("Expected empty playlist, got %v", s.Playlist().Names())
	}
}

func TestAdvanceTrack(t *testing.T) {
	s, _, _ := newTestSession(t, domain.Playlist{mediaA, mediaB})

	next, ok := s.AdvanceTrack()
	if !ok || next.Name != "B" {
		t.Errorf("Expected next B, got %v %v", next.Name, ok)
	}

	// The player is still on A, which is already gone.
	next, ok = s.AdvanceTrack()
	if !ok || next.Name != "B" {
		t.Errorf("Expected B to stay at the head, got %v %v", next.Name, ok)
	}
}

func TestAddMediaSkipsDuplicates(t *testing.T) {
	s, _, _ := newTestSession(t, nil)
	s.AddMedia(mediaA)
	s.AddMedia(mediaA)
	s.AddMedia(mediaB)

	if names := s.Playlist().Names(); strings.Join(names, ",") != "A,B" {
		t.Errorf("Expected A,B, got %v", names)
	}
}

func TestReadyToPlayLoadsHeadWhenEmpty(t *testing.T) {
	s, p, _ := newTestSession(t, nil)
	s.AddMedia(mediaA)

	s.HandleReadyToPlay()

	if p.Source() != mediaA.FileName {
		t.Errorf("Expected %s loaded, got %q", mediaA.FileName, p.Source())
	}
}

func TestRoster(t *testing.T) {
	s, _, _ := newTestSession(t, nil)
	s.HandleUserConnected("alice")
	s.HandleUserConnected("bob")
	s.HandleUserConnected("alice")
	s.HandleUserDisconnected("alice")
	s.HandleUserDisconnected("nobody")

	if roster := s.Snapshot().Roster; strings.Join(roster, ",") != "bob" {
		t.Errorf("Expected [bob], got %v", roster)
	}

	s.HandleReconnected()
	if roster := s.Snapshot().Roster; len(roster) != 0 {
		t.Errorf("Expected roster cleared on reconnect, got %v", roster)
	}
}

func TestChatLogIsBounded(t *testing.T) {
	obs := &recordingObserver{}
	s, _, _ := newTestSession(t, nil, WithObserver(obs))

	for i := 0; i < MaxChatLines+5; i++ {
		s.HandleReceive("alice", fmt.Sprintf("line %d", i))
	}

	chat := s.Snapshot().Chat
	if len(chat) != MaxChatLines {
		t.Fatalf("Expected %d lines, got %d", MaxChatLines, len(chat))
	}
	if chat[0].Text != "line 5" {
		t.Errorf("Expected oldest line 'line 5', got %q", chat[0].Text)
	}
	if len(obs.chat) != MaxChatLines+5 {
		t.Errorf("Expected every line observed, got %d", len(obs.chat))
	}
}

func TestRequestsSendLocalPosition(t *testing.T) {
	s, p, snd := newTestSession(t, domain.Playlist{mediaA})
	s.HandleReadyToPlay()
	p.position = 1500 * time.Millisecond

	if err := s.RequestPlay(context.Background()); err != nil {
		t.Fatalf("RequestPlay: %v", err)
	}
	if err := s.RequestPause(context.Background()); err != nil {
		t.Fatalf("RequestPause: %v", err)
	}
	if err := s.SendMessage(context.Background(), "hi"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	events := snd.events()
	if len(events) != 3 {
		t.Fatalf("Expected 3 events, got %d", len(events))
	}
	if events[0].event != domain.EventPlay || events[0].args[0] != 1.5 {
		t.Errorf("Expected Play(1.5), got %s(%v)", events[0].event, events[0].args)
	}
	if events[1].event != domain.EventPause {
		t.Errorf("Expected Pause, got %s", events[1].event)
	}
	if events[2].event != domain.EventMessage || events[2].args[0] != "hi" {
		t.Errorf("Expected Message(hi), got %s(%v)", events[2].event, events[2].args)
	}
	if s.State() != StateReady {
		t.Errorf("Expected local state unchanged by own sends, got %s", s.State())
	}
}

func TestRoomClosed(t *testing.T) {
	obs := &recordingObserver{}
	s, p, _ := newTestSession(t, domain.Playlist{mediaA}, WithObserver(obs))
	s.HandleReadyToPlay()
	s.HandlePlay(0)

	s.HandleRoomClosed()

	if s.State() != StateStopped || p.playing {
		t.Errorf("Expected stopped, got %s", s.State())
	}
	if len(obs.notices) != 1 || obs.notices[0] != NoticeRoomClosed {
		t.Errorf("Expected a room closed notice, got %v", obs.notices)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	s, _, _ := newTestSession(t, domain.Playlist{mediaA})
	s.Close()
	s.Close()

	if err := s.RequestStop(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
	if err := s.RequestPlay(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed from RequestPlay, got %v", err)
	}
}
