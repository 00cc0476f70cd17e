package domain

import (
	"encoding/json"
	"fmt"
)

// Room channel event names. The names are the wire protocol shared with the
// coordination hub and must not change.
const (
	// Media availability and transfer.
	EventCheckMedia      = "CheckMedia"      // peer → hub: (playlist); hub → host: (playlist, peerID)
	EventRequireMedia    = "RequireMedia"    // host ↔ hub: (needed, peerID)
	EventUploadMedia     = "UploadMedia"     // host → hub: (peerID, mediaName, chunkSet)
	EventDownloadMedia   = "DownloadMedia"   // hub → peer: (fileName, chunkSet)
	EventMediaDownloaded = "MediaDownloaded" // peer → hub

	// Track advance.
	EventTrackEnded       = "TrackEnded"       // participant → hub
	EventRequireNextMedia = "RequireNextMedia" // hub → host
	EventSetNextMedia     = "SetNextMedia"     // host → hub: (media)
	EventNextMedia        = "NextMedia"        // hub → all: (media)

	// Membership.
	EventUserConnected  = "UserConnected" // (name)
	EventUserDisconnect = "UserDisconect" // (name); wire spelling kept for compatibility
	EventRoomClosed     = "RoomClosed"

	// Playback.
	EventPlay        = "Play"  // (position)
	EventPause       = "Pause" // (position)
	EventStop        = "Stop"  // (position)
	EventReadyToPlay = "ReadyToPlay"

	// Chat.
	EventMessage = "Message" // participant → hub: (text)
	EventReceive = "Receive" // hub → all: (userName, text)

	// EventError reports a rejected action back to its sender: (code, message).
	EventError = "Error"
)

// Error codes carried by EventError.
const (
	ErrCodeBadRequest = "BAD_REQUEST"
	ErrCodeForbidden  = "FORBIDDEN"
	ErrCodeNotFound   = "NOT_FOUND"
)

// Envelope is the frame exchanged on the room channel: an event name and
// its positional arguments.
type Envelope struct {
	Event string            `json:"event"`
	Args  []json.RawMessage `json:"args,omitempty"`
}

// NewEnvelope encodes args into a new envelope.
func NewEnvelope(event string, args ...interface{}) (*Envelope, error) {
	env := &Envelope{Event: event, Args: make([]json.RawMessage, 0, len(args))}
	for i, a := range args {
		raw, err := json.Marshal(a)
		if err != nil {
			return nil, fmt.Errorf("encode %s arg %d: %w", event, i, err)
		}
		env.Args = append(env.Args, raw)
	}
	return env, nil
}

// Arg decodes the i-th argument into v.
func (e *Envelope) Arg(i int, v interface{}) error {
	if i >= len(e.Args) {
		return fmt.Errorf("%s: missing argument %d", e.Event, i)
	}
	if err := json.Unmarshal(e.Args[i], v); err != nil {
		return fmt.Errorf("%s: decode argument %d: %w", e.Event, i, err)
	}
	return nil
}

// Marshal encodes the envelope as a websocket text frame.
func (e *Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// ParseEnvelope decodes a frame.
func ParseEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Event == "" {
		return nil, fmt.Errorf("decode envelope: missing event name")
	}
	return &env, nil
}
