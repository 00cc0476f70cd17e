package domain

import (
	"errors"
	"path/filepath"
)

// Room identifies a shared playback session. It is immutable once the
// session starts.
type Room struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	// Namespace is the unique storage namespace chunk sets are written under.
	Namespace string `json:"namespace"`
	// PlaylistPath is the local directory merged media files land in.
	PlaylistPath string `json:"playlist_path"`
}

// Validate checks that the room can back a session.
func (r Room) Validate() error {
	switch {
	case r.ID == "":
		return errors.New("room id is empty")
	case r.Namespace == "":
		return errors.New("room storage namespace is empty")
	case r.PlaylistPath == "":
		return errors.New("room playlist path is empty")
	}
	return nil
}

// MediaPath returns where a transferred file is merged to.
func (r Room) MediaPath(fileName string) string {
	return filepath.Join(r.PlaylistPath, filepath.Base(fileName))
}
