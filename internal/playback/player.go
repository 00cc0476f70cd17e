package playback

import "time"

// Player is the media player the session commands. Implementations must be
// safe for concurrent use.
type Player interface {
	// Load replaces the current source and leaves the player stopped.
	Load(source string) error
	Play() error
	Pause() error
	Stop() error
	Seek(position time.Duration) error
	Position() time.Duration
	// Source returns the loaded file reference, or "" when none is loaded.
	Source() string
	// OnEnded registers the end-of-media callback.
	OnEnded(fn func())
}
