package repository

import (
	"context"
	"errors"
	"time"

	"github.com/Akirayouky/verifiche-condominiali-sub001/internal/model"
	"github.com/google/uuid"
)

var ErrNotFound = errors.New("not found")

type Notification interface {
	Create(ctx context.Context, n *model.Notification) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Notification, error)
	ListUnread(ctx context.Context, userID string, limit int) ([]*model.Notification, error)
	CountUnread(ctx context.Context, userID string) (int, error)
	// MarkRead returns the row after the update, or ErrNotFound.
	MarkRead(ctx context.Context, id uuid.UUID) (*model.Notification, error)
	MarkAllRead(ctx context.Context, userID string) (int64, error)
	DeleteRead(ctx context.Context, userID string) (int64, error)
	// DeleteOld removes read rows created before readBefore and any row
	// created before anyBefore.
	DeleteOld(ctx context.Context, readBefore, anyBefore time.Time) (int64, error)
}

type PushEndpoint interface {
	// Upsert inserts e or, when its EndpointURL is already known, refreshes
	// owner, keys and last_used_at. e is updated with the stored id and
	// timestamps.
	Upsert(ctx context.Context, e *model.PushEndpoint) error
	DeleteByEndpoint(ctx context.Context, endpointURL string) (bool, error)
	DeleteByID(ctx context.Context, id uuid.UUID) error
	ListByOwners(ctx context.Context, userIDs []string) ([]*model.PushEndpoint, error)
	Touch(ctx context.Context, id uuid.UUID, at time.Time) error
	DeleteStale(ctx context.Context, before time.Time) (int64, error)
}

type Repository struct {
	Notification Notification
	PushEndpoint PushEndpoint
}
