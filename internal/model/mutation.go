package model

import (
	"encoding/json"
	"fmt"
	"time"
)

type MutationKind string

const (
	KindJobCreate   MutationKind = "job_create"
	KindPhotoUpload MutationKind = "photo_upload"
)

// MutationPayload is implemented by every typed payload that can sit in the
// offline queue.
type MutationPayload interface {
	Kind() MutationKind
}

type JobCreatePayload struct {
	BuildingID   string     `json:"building_id"`
	Title        string     `json:"title"`
	Description  string     `json:"description,omitempty"`
	AssigneeID   string     `json:"assignee_id,omitempty"`
	ScheduledFor *time.Time `json:"scheduled_for,omitempty"`
	Latitude     *float64   `json:"latitude,omitempty"`
	Longitude    *float64   `json:"longitude,omitempty"`
}

func (*JobCreatePayload) Kind() MutationKind { return KindJobCreate }

type PhotoUploadPayload struct {
	JobID       string    `json:"job_id"`
	FileName    string    `json:"file_name"`
	ContentType string    `json:"content_type"`
	Data        []byte    `json:"data"`
	Caption     string    `json:"caption,omitempty"`
	TakenAt     time.Time `json:"taken_at"`
}

func (*PhotoUploadPayload) Kind() MutationKind { return KindPhotoUpload }

type OfflineMutation struct {
	ID            string          `json:"id"`
	Kind          MutationKind    `json:"kind"`
	Payload       MutationPayload `json:"payload"`
	CreatedAt     time.Time       `json:"created_at"`
	Synced        bool            `json:"synced"`
	SyncedAt      *time.Time      `json:"synced_at,omitempty"`
	Retries       int             `json:"retries"`
	LastError     string          `json:"last_error,omitempty"`
	LastAttemptAt *time.Time      `json:"last_attempt_at,omitempty"`
}

// DecodePayload restores the typed payload stored for kind.
func DecodePayload(kind MutationKind, raw []byte) (MutationPayload, error) {
	var p MutationPayload
	switch kind {
	case KindJobCreate:
		p = &JobCreatePayload{}
	case KindPhotoUpload:
		p = &PhotoUploadPayload{}
	default:
		return nil, fmt.Errorf("unknown mutation kind %q", kind)
	}
	if err := json.Unmarshal(raw, p); err != nil {
		return nil, fmt.Errorf("decoding %s payload: %w", kind, err)
	}
	return p, nil
}

// PendingCounts is the per-kind number of unsynced mutations.
type PendingCounts struct {
	Jobs   int `json:"jobs"`
	Photos int `json:"photos"`
}

func (c PendingCounts) Total() int {
	return c.Jobs + c.Photos
}

func (c PendingCounts) String() string {
	if c.Total() == 1 {
		return "1 item pending sync"
	}
	return fmt.Sprintf("%d items pending sync", c.Total())
}
