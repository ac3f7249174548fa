package dto

import (
	"time"

	"github.com/Akirayouky/verifiche-condominiali-sub001/internal/model"
)

type CreateNotification struct {
	Type              model.NotificationType `json:"type" validate:"required,oneof=new_assignment job_reopened deadline system_alert"`
	Title             string                 `json:"title" validate:"required,max=255"`
	Body              string                 `json:"body" validate:"required"`
	TargetUserID      string                 `json:"target_user_id" validate:"required,max=128"`
	Priority          *model.Priority        `json:"priority"`
	RelatedJobID      *string                `json:"related_job_id" validate:"omitempty,max=128"`
	RelatedBuildingID *string                `json:"related_building_id" validate:"omitempty,max=128"`
	DueAt             *time.Time             `json:"due_at"`
}

type RegisterPush struct {
	Endpoint    string         `json:"endpoint" validate:"required,max=2048"`
	Keys        model.PushKeys `json:"keys"`
	OwnerUserID string         `json:"-" validate:"required"`
}

type UnregisterPush struct {
	Endpoint string `json:"endpoint" validate:"required"`
}

type SendPush struct {
	UserIDs           []string               `json:"user_ids" validate:"required,min=1,dive,required"`
	Title             string                 `json:"title" validate:"required,max=255"`
	Body              string                 `json:"body" validate:"required"`
	Icon              string                 `json:"icon" validate:"omitempty,max=512"`
	URL               string                 `json:"url" validate:"omitempty,max=2048"`
	Priority          *model.Priority        `json:"priority"`
	Type              model.NotificationType `json:"type" validate:"omitempty,oneof=new_assignment job_reopened deadline system_alert"`
	RelatedJobID      *string                `json:"related_job_id" validate:"omitempty,max=128"`
	RelatedBuildingID *string                `json:"related_building_id" validate:"omitempty,max=128"`
}

func (s SendPush) Payload() model.PushPayload {
	p := model.PushPayload{
		Title:             s.Title,
		Body:              s.Body,
		Icon:              s.Icon,
		URL:               s.URL,
		Priority:          model.PriorityNormal,
		Type:              s.Type,
		RelatedJobID:      s.RelatedJobID,
		RelatedBuildingID: s.RelatedBuildingID,
	}
	if s.Priority != nil {
		p.Priority = *s.Priority
	}
	return p
}
