package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// BroadcastTarget as TargetUserID addresses every user. Broadcasts are not
// fanned out live; clients pick them up when listing.
const BroadcastTarget = "all"

type NotificationType string

const (
	TypeNewAssignment NotificationType = "new_assignment"
	TypeJobReopened   NotificationType = "job_reopened"
	TypeDeadline      NotificationType = "deadline"
	TypeSystemAlert   NotificationType = "system_alert"
)

func (t NotificationType) Valid() bool {
	switch t {
	case TypeNewAssignment, TypeJobReopened, TypeDeadline, TypeSystemAlert:
		return true
	}
	return false
}

// Priority is ordered: PriorityLow < PriorityNormal < PriorityHigh < PriorityUrgent.
type Priority int16

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityUrgent
)

var priorityNames = [...]string{"low", "normal", "high", "urgent"}

func (p Priority) String() string {
	if p < PriorityLow || p > PriorityUrgent {
		return fmt.Sprintf("priority(%d)", int16(p))
	}
	return priorityNames[p]
}

func ParsePriority(s string) (Priority, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return PriorityNormal, nil
	}
	for i, name := range priorityNames {
		if name == s {
			return Priority(i), nil
		}
	}
	return PriorityNormal, fmt.Errorf("unknown priority %q", s)
}

func (p Priority) MarshalText() ([]byte, error) {
	if p < PriorityLow || p > PriorityUrgent {
		return nil, fmt.Errorf("invalid priority %d", int16(p))
	}
	return []byte(p.String()), nil
}

func (p *Priority) UnmarshalText(text []byte) error {
	parsed, err := ParsePriority(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

type Notification struct {
	ID                uuid.UUID        `json:"id"`
	Type              NotificationType `json:"type"`
	Title             string           `json:"title"`
	Body              string           `json:"body"`
	TargetUserID      string           `json:"target_user_id"`
	Priority          Priority         `json:"priority"`
	RelatedJobID      *string          `json:"related_job_id,omitempty"`
	RelatedBuildingID *string          `json:"related_building_id,omitempty"`
	Read              bool             `json:"read"`
	CreatedAt         time.Time        `json:"created_at"`
	DueAt             *time.Time       `json:"due_at,omitempty"`
}

func (n *Notification) IsBroadcast() bool {
	return n.TargetUserID == BroadcastTarget
}
