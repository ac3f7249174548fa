package model

import "time"

const (
	EventConnected            = "connected"
	EventHeartbeat            = "heartbeat"
	EventNotification         = "notification"
	EventExistingNotification = "existing_notification"
)

// Event is the envelope written to live stream clients.
type Event struct {
	Type      string    `json:"type"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

func NewEvent(typ string, data any) Event {
	return Event{
		Type:      typ,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}
