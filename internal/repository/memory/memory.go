// Package memory keeps notifications and push endpoints in process memory.
// It backs the "memory" storage driver used for local development and the
// service tests; it gives up durability across restarts.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Akirayouky/verifiche-condominiali-sub001/internal/model"
	"github.com/Akirayouky/verifiche-condominiali-sub001/internal/repository"
	"github.com/google/uuid"
)

func NewRepository() *repository.Repository {
	return &repository.Repository{
		Notification: NewNotificationRepo(),
		PushEndpoint: NewPushEndpointRepo(),
	}
}

type NotificationRepo struct {
	mu   sync.RWMutex
	rows map[uuid.UUID]model.Notification
	// FailWrites makes every write fail with this error when set.
	FailWrites error
}

func NewNotificationRepo() *NotificationRepo {
	return &NotificationRepo{rows: make(map[uuid.UUID]model.Notification)}
}

func (r *NotificationRepo) Create(_ context.Context, n *model.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.FailWrites != nil {
		return r.FailWrites
	}
	r.rows[n.ID] = *n
	return nil
}

func (r *NotificationRepo) FindByID(_ context.Context, id uuid.UUID) (*model.Notification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n, ok := r.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &n, nil
}

func (r *NotificationRepo) unread(userID string) []*model.Notification {
	var out []*model.Notification
	for _, n := range r.rows {
		if n.TargetUserID == userID && !n.Read {
			n := n
			out = append(out, &n)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (r *NotificationRepo) ListUnread(_ context.Context, userID string, limit int) ([]*model.Notification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := r.unread(userID)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	if out == nil {
		out = []*model.Notification{}
	}
	return out, nil
}

func (r *NotificationRepo) CountUnread(_ context.Context, userID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.unread(userID)), nil
}

func (r *NotificationRepo) MarkRead(_ context.Context, id uuid.UUID) (*model.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.FailWrites != nil {
		return nil, r.FailWrites
	}
	n, ok := r.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	n.Read = true
	r.rows[id] = n
	return &n, nil
}

func (r *NotificationRepo) MarkAllRead(_ context.Context, userID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.FailWrites != nil {
		return 0, r.FailWrites
	}
	var count int64
	for id, n := range r.rows {
		if n.TargetUserID == userID && !n.Read {
			n.Read = true
			r.rows[id] = n
			count++
		}
	}
	return count, nil
}

func (r *NotificationRepo) DeleteRead(_ context.Context, userID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var count int64
	for id, n := range r.rows {
		if n.TargetUserID == userID && n.Read {
			delete(r.rows, id)
			count++
		}
	}
	return count, nil
}

func (r *NotificationRepo) DeleteOld(_ context.Context, readBefore, anyBefore time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var count int64
	for id, n := range r.rows {
		if (n.Read && n.CreatedAt.Before(readBefore)) || n.CreatedAt.Before(anyBefore) {
			delete(r.rows, id)
			count++
		}
	}
	return count, nil
}

type PushEndpointRepo struct {
	mu   sync.RWMutex
	rows map[uuid.UUID]model.PushEndpoint
}

func NewPushEndpointRepo() *PushEndpointRepo {
	return &PushEndpointRepo{rows: make(map[uuid.UUID]model.PushEndpoint)}
}

func (r *PushEndpointRepo) Upsert(_ context.Context, e *model.PushEndpoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	for id, existing := range r.rows {
		if existing.EndpointURL == e.EndpointURL {
			existing.OwnerUserID = e.OwnerUserID
			existing.Keys = e.Keys
			existing.LastUsedAt = now
			r.rows[id] = existing
			*e = existing
			return nil
		}
	}

	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	e.CreatedAt = now
	e.LastUsedAt = now
	r.rows[e.ID] = *e
	return nil
}

func (r *PushEndpointRepo) DeleteByEndpoint(_ context.Context, endpointURL string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, e := range r.rows {
		if e.EndpointURL == endpointURL {
			delete(r.rows, id)
			return true, nil
		}
	}
	return false, nil
}

func (r *PushEndpointRepo) DeleteByID(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.rows, id)
	return nil
}

func (r *PushEndpointRepo) ListByOwners(_ context.Context, userIDs []string) ([]*model.PushEndpoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	owners := make(map[string]struct{}, len(userIDs))
	for _, id := range userIDs {
		owners[id] = struct{}{}
	}

	var out []*model.PushEndpoint
	for _, e := range r.rows {
		if _, ok := owners[e.OwnerUserID]; ok {
			e := e
			out = append(out, &e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].EndpointURL < out[j].EndpointURL
	})
	return out, nil
}

func (r *PushEndpointRepo) Touch(_ context.Context, id uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.rows[id]; ok {
		e.LastUsedAt = at
		r.rows[id] = e
	}
	return nil
}

func (r *PushEndpointRepo) DeleteStale(_ context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var count int64
	for id, e := range r.rows {
		if e.LastUsedAt.Before(before) {
			delete(r.rows, id)
			count++
		}
	}
	return count, nil
}
