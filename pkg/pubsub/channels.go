package pubsub

import "fmt"

// Channel naming for room lifecycle events published by the hub.
const (
	ChannelRoomEvents = "syncplay:room:%s:events"

	// PatternAllRoomEvents matches every room's event channel.
	PatternAllRoomEvents = "syncplay:room:*:events"
)

// Room lifecycle event types.
const (
	EventRoomOpened    = "room_opened"
	EventMemberJoined  = "member_joined"
	EventMemberLeft    = "member_left"
	EventTrackAdvanced = "track_advanced"
	EventRoomClosed    = "room_closed"
)

// RoomEventsChannel returns the channel name for a room's lifecycle events.
func RoomEventsChannel(roomID string) string {
	return fmt.Sprintf(ChannelRoomEvents, roomID)
}

// RoomOpenedPayload is published when a host opens a room.
type RoomOpenedPayload struct {
	RoomID string `json:"room_id"`
	Host   string `json:"host"`
}

// MemberPayload is published when a participant joins or leaves.
type MemberPayload struct {
	RoomID      string `json:"room_id"`
	Participant string `json:"participant"`
	Members     int    `json:"members"`
}

// TrackAdvancedPayload is published when the host advances the playlist.
type TrackAdvancedPayload struct {
	RoomID     string `json:"room_id"`
	Media      string `json:"media"`
	Generation int    `json:"generation"`
}

// RoomClosedPayload is published when a room is dropped.
type RoomClosedPayload struct {
	RoomID string `json:"room_id"`
	Reason string `json:"reason"` // "host_left", "shutdown"
}
