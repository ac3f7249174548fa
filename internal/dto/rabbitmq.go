package dto

import (
	"time"

	"github.com/Akirayouky/verifiche-condominiali-sub001/internal/model"
)

const (
	MQEventJobAssigned         = "job_assigned"
	MQEventJobReopened         = "job_reopened"
	MQEventDeadlineApproaching = "deadline_approaching"
	MQEventSystemAlert         = "system_alert"
)

// MQDomainEvent is published by the inspection API whenever something a
// field worker should hear about happens.
type MQDomainEvent struct {
	Event        string     `json:"event"`
	UserID       string     `json:"user_id"`
	JobID        *string    `json:"job_id"`
	JobTitle     string     `json:"job_title"`
	BuildingID   *string    `json:"building_id"`
	BuildingName string     `json:"building_name"`
	Message      string     `json:"message"`
	DueAt        *time.Time `json:"due_at"`
}

// MQPushJob is the unit of work on the push delivery queue.
type MQPushJob struct {
	UserIDs []string          `json:"user_ids"`
	Payload model.PushPayload `json:"payload"`
}
