package playback

import (
	"time"

	"github.com/weiawesome/wes-io-sync/internal/domain"
)

// NoticeKind classifies a user-visible notice.
type NoticeKind int

const (
	// NoticeTransient reports a recoverable condition such as a dropped
	// connection that is being retried.
	NoticeTransient NoticeKind = iota
	// NoticeTransferFailed reports a media transfer that was abandoned.
	NoticeTransferFailed
	// NoticeRoomClosed reports that the host closed the room.
	NoticeRoomClosed
	NoticeInfo
)

func (k NoticeKind) String() string {
	switch k {
	case NoticeTransient:
		return "transient"
	case NoticeTransferFailed:
		return "transfer_failed"
	case NoticeRoomClosed:
		return "room_closed"
	case NoticeInfo:
		return "info"
	default:
		return "unknown"
	}
}

// ChatLine is one received chat message.
type ChatLine struct {
	User string    `json:"user"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// Snapshot is a consistent copy of the session state for presentation.
type Snapshot struct {
	State    State           `json:"state"`
	Ready    bool            `json:"ready"`
	Roster   []string        `json:"roster"`
	Playlist domain.Playlist `json:"playlist"`
	Current  string          `json:"current"`
	Position time.Duration   `json:"position"`
	Chat     []ChatLine      `json:"chat"`
}

// Observer receives session updates. Calls are made outside the session
// lock and may arrive from several goroutines.
type Observer interface {
	StateChanged(s Snapshot)
	ChatReceived(line ChatLine)
	Notice(kind NoticeKind, message string)
}

// NopObserver ignores every update.
type NopObserver struct{}

func (NopObserver) StateChanged(Snapshot)     {}
func (NopObserver) ChatReceived(ChatLine)     {}
func (NopObserver) Notice(NoticeKind, string) {}
