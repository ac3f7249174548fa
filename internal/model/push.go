package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// MaxPushPayloadBytes keeps the encoded payload under the 4 KiB limit
// enforced by push services, leaving room for encryption overhead.
const MaxPushPayloadBytes = 3072

var ErrPayloadTooLarge = errors.New("push payload too large")

type PushKeys struct {
	P256dh string `json:"p256dh"`
	Auth   string `json:"auth"`
}

type PushEndpoint struct {
	ID          uuid.UUID `json:"id"`
	OwnerUserID string    `json:"owner_user_id"`
	EndpointURL string    `json:"endpoint"`
	Keys        PushKeys  `json:"keys"`
	CreatedAt   time.Time `json:"created_at"`
	LastUsedAt  time.Time `json:"last_used_at"`
}

type PushPayload struct {
	Title             string           `json:"title"`
	Body              string           `json:"body"`
	Icon              string           `json:"icon,omitempty"`
	URL               string           `json:"url,omitempty"`
	Priority          Priority         `json:"priority"`
	Type              NotificationType `json:"type,omitempty"`
	NotificationID    *uuid.UUID       `json:"notification_id,omitempty"`
	RelatedJobID      *string          `json:"related_job_id,omitempty"`
	RelatedBuildingID *string          `json:"related_building_id,omitempty"`
}

// Encode marshals the payload, shortening the body until the result fits
// in MaxPushPayloadBytes. When the other fields alone are over the limit it
// returns ErrPayloadTooLarge.
func (p PushPayload) Encode() ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	for len(data) > MaxPushPayloadBytes && p.Body != "" {
		over := len(data) - MaxPushPayloadBytes
		cut := len(p.Body) - over - len("…")
		if cut < 0 {
			cut = 0
		}
		for cut > 0 && !utf8.RuneStart(p.Body[cut]) {
			cut--
		}
		if cut == 0 {
			p.Body = ""
		} else {
			p.Body = p.Body[:cut] + "…"
		}
		if data, err = json.Marshal(p); err != nil {
			return nil, err
		}
	}
	if len(data) > MaxPushPayloadBytes {
		return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrPayloadTooLarge, len(data), MaxPushPayloadBytes)
	}
	return data, nil
}

// PushPayloadFor builds the push envelope for a stored notification.
func PushPayloadFor(n *Notification, icon string, deepLinkBase string) PushPayload {
	id := n.ID
	p := PushPayload{
		Title:             n.Title,
		Body:              n.Body,
		Icon:              icon,
		Priority:          n.Priority,
		Type:              n.Type,
		NotificationID:    &id,
		RelatedJobID:      n.RelatedJobID,
		RelatedBuildingID: n.RelatedBuildingID,
	}
	if deepLinkBase != "" {
		p.URL = deepLinkBase + "/notifications"
		if n.RelatedJobID != nil {
			p.URL = deepLinkBase + "/jobs/" + *n.RelatedJobID
		}
	}
	return p
}

const (
	PushStatusSent   = "sent"
	PushStatusFailed = "failed"
	PushStatusGone   = "gone"
)

type EndpointResult struct {
	EndpointID uuid.UUID `json:"endpoint_id"`
	UserID     string    `json:"user_id"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
}

type PushResult struct {
	Sent    int              `json:"sent"`
	Failed  int              `json:"failed"`
	Total   int              `json:"total"`
	Results []EndpointResult `json:"results"`
}
