package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/weiawesome/wes-io-sync/internal/playback"
)

// Console prints session activity for a terminal user.
type Console struct {
	mu    sync.Mutex
	w     io.Writer
	state playback.State
	seen  bool
}

func NewConsole(w io.Writer) *Console {
	return &Console{w: w}
}

func (c *Console) printf(format string, args ...interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.w, format, args...)
}

// StateChanged prints state transitions only.
func (c *Console) StateChanged(s playback.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.seen && s.State == c.state {
		return
	}
	c.seen, c.state = true, s.State
	fmt.Fprintf(c.w, "▶️  %s", s.State)
	if s.Current != "" {
		fmt.Fprintf(c.w, " (%s)", s.Current)
	}
	fmt.Fprintln(c.w)
}

func (c *Console) ChatReceived(line playback.ChatLine) {
	c.printf("💬 %s: %s\n", line.User, line.Text)
}

func (c *Console) Notice(kind playback.NoticeKind, message string) {
	switch kind {
	case playback.NoticeTransient:
		c.printf("⚠️  %s\n", message)
	case playback.NoticeTransferFailed, playback.NoticeRoomClosed:
		c.printf("❌ %s\n", message)
	default:
		c.printf("ℹ️  %s\n", message)
	}
}

func (c *Console) Status(s playback.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.w, "state: %s, ready: %t, position: %s\n", s.State, s.Ready, s.Position.Round(100*time.Millisecond))
	fmt.Fprintf(c.w, "members: %s\n", strings.Join(s.Roster, ", "))
	fmt.Fprintf(c.w, "playlist:\n")
	for _, m := range s.Playlist {
		mark := " "
		if m.FileName == s.Current {
			mark = "*"
		}
		fmt.Fprintf(c.w, "  %s %s\n", mark, m.Name)
	}
}

func (c *Console) help() {
	c.printf("commands: play, pause, stop, say <text>, end, status, quit\n")
}

// Room is what the console drives.
type Room interface {
	Play(ctx context.Context) error
	Pause(ctx context.Context) error
	Stop(ctx context.Context) error
	SendMessage(ctx context.Context, text string) error
	Snapshot() (playback.Snapshot, error)
	Done() <-chan struct{}
}

// Run reads commands from r until quit, end of input, ctx cancellation or
// the room ending. endTrack finishes the current track locally.
func (c *Console) Run(ctx context.Context, r io.Reader, room Room, endTrack func()) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	c.help()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-room.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			quit, err := c.exec(ctx, strings.TrimSpace(line), room, endTrack)
			if err != nil {
				c.printf("❌ %v\n", err)
			}
			if quit {
				return nil
			}
		}
	}
}

func (c *Console) exec(ctx context.Context, line string, room Room, endTrack func()) (quit bool, err error) {
	cmd, arg, _ := strings.Cut(line, " ")
	switch cmd {
	case "":
		return false, nil
	case "play":
		err = room.Play(ctx)
		if errors.Is(err, playback.ErrNotReady) {
			err = errors.New("the room is not ready yet")
		}
	case "pause":
		err = room.Pause(ctx)
	case "stop":
		err = room.Stop(ctx)
	case "say":
		if arg = strings.TrimSpace(arg); arg == "" {
			return false, errors.New("say needs a message")
		}
		err = room.SendMessage(ctx, arg)
	case "end":
		endTrack()
	case "status":
		var s playback.Snapshot
		if s, err = room.Snapshot(); err == nil {
			c.Status(s)
		}
	case "quit", "exit":
		return true, nil
	case "help":
		c.help()
	default:
		err = fmt.Errorf("unknown command %q", cmd)
	}
	return false, err
}
