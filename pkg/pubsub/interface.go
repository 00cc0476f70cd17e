package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Event is one room lifecycle record on the bus. Payload holds the JSON
// form of the payload type matching Type.
type Event struct {
	Type      string          `json:"type"`
	RoomID    string          `json:"room_id"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewEvent stamps a room event with the current time.
func NewEvent(eventType, roomID string, payload interface{}) (*Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", eventType, err)
	}
	return &Event{
		Type:      eventType,
		RoomID:    roomID,
		Payload:   data,
		Timestamp: time.Now(),
	}, nil
}

// DecodePayload returns the typed payload for a known event type:
// *RoomOpenedPayload, *MemberPayload, *TrackAdvancedPayload or
// *RoomClosedPayload. Unknown types return the raw payload.
func (e *Event) DecodePayload() (interface{}, error) {
	var v interface{}
	switch e.Type {
	case EventRoomOpened:
		v = &RoomOpenedPayload{}
	case EventMemberJoined, EventMemberLeft:
		v = &MemberPayload{}
	case EventTrackAdvanced:
		v = &TrackAdvancedPayload{}
	case EventRoomClosed:
		v = &RoomClosedPayload{}
	default:
		return e.Payload, nil
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return v, nil
}

// Publisher publishes room events.
type Publisher interface {
	Publish(ctx context.Context, channel string, event *Event) error
}

// Subscriber streams room events for one channel or a channel pattern.
// The returned channel closes when ctx ends.
type Subscriber interface {
	Subscribe(ctx context.Context, channel string) (<-chan *Event, error)
	SubscribePattern(ctx context.Context, pattern string) (<-chan *Event, error)
}

// PubSub is a bus connection that can both publish and subscribe.
type PubSub interface {
	Publisher
	Subscriber
	Close() error
}
