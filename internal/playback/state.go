package playback

import "fmt"

// State is the local participant's playback state.
type State int

const (
	StateAwaitingMembers State = iota
	StateNotReady
	StateReady
	StatePlaying
	StatePaused
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateAwaitingMembers:
		return "awaiting_members"
	case StateNotReady:
		return "not_ready"
	case StateReady:
		return "ready"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}
