package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Akirayouky/verifiche-condominiali-sub001/internal/config"
	"github.com/Akirayouky/verifiche-condominiali-sub001/internal/dto"
	"github.com/Akirayouky/verifiche-condominiali-sub001/internal/model"
	"github.com/Akirayouky/verifiche-condominiali-sub001/internal/repository"
	"github.com/Akirayouky/verifiche-condominiali-sub001/internal/repository/memory"
	"github.com/Akirayouky/verifiche-condominiali-sub001/internal/repository/redisrepo"
	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingEnqueuer struct {
	mu   sync.Mutex
	jobs []dto.MQPushJob
}

func (r *recordingEnqueuer) EnqueuePush(_ context.Context, job dto.MQPushJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = append(r.jobs, job)
	return nil
}

func (r *recordingEnqueuer) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}

func testConfig() *config.Config {
	return &config.Config{
		Push: config.PushConfig{
			Concurrency:  4,
			Timeout:      time.Second,
			StaleAfter:   time.Hour,
			DeepLinkBase: "https://app.example",
		},
		Retention: config.RetentionConfig{
			Interval:  time.Hour,
			ReadAfter: 24 * time.Hour,
			MaxAge:    72 * time.Hour,
		},
	}
}

func newTestNotificationService(t *testing.T, rdb *redis.Client) (*notificationService, *repository.Repository, *recordingEnqueuer) {
	t.Helper()

	repo := memory.NewRepository()
	enqueuer := &recordingEnqueuer{}
	s := newNotificationService(zap.NewNop(), testConfig(), repo, rdb, nil, enqueuer)
	return s, repo, enqueuer
}

func validInput(userID string) dto.CreateNotification {
	job := "job-7"
	return dto.CreateNotification{
		Type:         model.TypeNewAssignment,
		Title:        "New inspection",
		Body:         "Via Roma 1",
		TargetUserID: userID,
		RelatedJobID: &job,
	}
}

func TestCreateDeliversPersistedRowToSubscriber(t *testing.T) {
	t.Parallel()

	s, repo, enqueuer := newTestNotificationService(t, nil)
	ctx := context.Background()

	var got []model.Notification
	unsubscribe := s.Subscribe("u1", func(n model.Notification) {
		got = append(got, n)
	})
	defer unsubscribe()

	created, err := s.Create(ctx, validInput("u1"))
	require.NoError(t, err)

	stored, err := repo.Notification.FindByID(ctx, created.ID)
	require.NoError(t, err)

	require.Len(t, got, 1)
	assert.Equal(t, *stored, got[0])
	assert.Equal(t, model.PriorityNormal, got[0].Priority)
	assert.False(t, got[0].Read)
	assert.Equal(t, 0, enqueuer.count(), "live delivery should not fall back to push")
}

func TestCreateWithoutSubscriberEnqueuesPush(t *testing.T) {
	t.Parallel()

	s, _, enqueuer := newTestNotificationService(t, nil)

	created, err := s.Create(context.Background(), validInput("u2"))
	require.NoError(t, err)

	require.Equal(t, 1, enqueuer.count())
	job := enqueuer.jobs[0]
	assert.Equal(t, []string{"u2"}, job.UserIDs)
	assert.Equal(t, created.ID, *job.Payload.NotificationID)
	assert.Equal(t, "https://app.example/jobs/job-7", job.Payload.URL)
}

func TestCreateAlwaysPushes(t *testing.T) {
	t.Parallel()

	s, _, enqueuer := newTestNotificationService(t, nil)
	s.cfg.Push.Always = true

	unsubscribe := s.Subscribe("u1", func(model.Notification) {})
	defer unsubscribe()

	_, err := s.Create(context.Background(), validInput("u1"))
	require.NoError(t, err)
	assert.Equal(t, 1, enqueuer.count())
}

func TestCreateBroadcastSkipsRegistryAndPush(t *testing.T) {
	t.Parallel()

	s, _, enqueuer := newTestNotificationService(t, nil)

	called := false
	unsubscribe := s.Subscribe(model.BroadcastTarget, func(model.Notification) { called = true })
	defer unsubscribe()

	input := validInput(model.BroadcastTarget)
	input.Type = model.TypeSystemAlert
	_, err := s.Create(context.Background(), input)
	require.NoError(t, err)

	assert.False(t, called)
	assert.Equal(t, 0, enqueuer.count())
}

func TestCreateValidation(t *testing.T) {
	t.Parallel()

	s, _, _ := newTestNotificationService(t, nil)

	tests := []struct {
		name   string
		mutate func(*dto.CreateNotification)
	}{
		{name: "missing title", mutate: func(in *dto.CreateNotification) { in.Title = "" }},
		{name: "missing body", mutate: func(in *dto.CreateNotification) { in.Body = "" }},
		{name: "missing target", mutate: func(in *dto.CreateNotification) { in.TargetUserID = "" }},
		{name: "unknown type", mutate: func(in *dto.CreateNotification) { in.Type = "party" }},
		{name: "priority out of range", mutate: func(in *dto.CreateNotification) {
			p := model.Priority(9)
			in.Priority = &p
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			input := validInput("u1")
			tt.mutate(&input)
			_, err := s.Create(context.Background(), input)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestCreatePersistenceFailureHasNoSideEffects(t *testing.T) {
	t.Parallel()

	repo := memory.NewRepository()
	notifications := memory.NewNotificationRepo()
	notifications.FailWrites = errors.New("disk full")
	repo.Notification = notifications

	enqueuer := &recordingEnqueuer{}
	s := newNotificationService(zap.NewNop(), testConfig(), repo, nil, nil, enqueuer)

	called := false
	unsubscribe := s.Subscribe("u1", func(model.Notification) { called = true })
	defer unsubscribe()

	_, err := s.Create(context.Background(), validInput("u1"))
	assert.ErrorIs(t, err, ErrInternal)
	assert.False(t, called)
	assert.Equal(t, 0, enqueuer.count())
}

func TestMarkReadIsIdempotent(t *testing.T) {
	t.Parallel()

	s, repo, _ := newTestNotificationService(t, nil)
	ctx := context.Background()

	n, err := s.Create(ctx, validInput("u1"))
	require.NoError(t, err)

	ok, err := s.MarkRead(ctx, n.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.MarkRead(ctx, n.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	stored, err := repo.Notification.FindByID(ctx, n.ID)
	require.NoError(t, err)
	assert.True(t, stored.Read)

	ok, err = s.MarkRead(ctx, uuid.New())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMarkAllReadOnlyTouchesOwner(t *testing.T) {
	t.Parallel()

	s, _, _ := newTestNotificationService(t, nil)
	ctx := context.Background()

	for range 3 {
		_, err := s.Create(ctx, validInput("u1"))
		require.NoError(t, err)
	}
	for range 2 {
		_, err := s.Create(ctx, validInput("u2"))
		require.NoError(t, err)
	}

	ok, err := s.MarkAllRead(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, ok)

	count, err := s.CountUnread(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	count, err = s.CountUnread(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	ok, err = s.MarkAllRead(ctx, "nobody")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCleanupKeepsUnread(t *testing.T) {
	t.Parallel()

	s, _, _ := newTestNotificationService(t, nil)
	ctx := context.Background()

	var ids []uuid.UUID
	for range 4 {
		n, err := s.Create(ctx, validInput("u1"))
		require.NoError(t, err)
		ids = append(ids, n.ID)
	}
	for _, id := range ids[:2] {
		_, err := s.MarkRead(ctx, id)
		require.NoError(t, err)
	}

	before, err := s.CountUnread(ctx, "u1")
	require.NoError(t, err)

	deleted, err := s.Cleanup(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	after, err := s.CountUnread(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestListUnreadNewestFirst(t *testing.T) {
	t.Parallel()

	s, _, _ := newTestNotificationService(t, nil)
	ctx := context.Background()

	empty, err := s.ListUnread(ctx, "u1")
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	first, err := s.Create(ctx, validInput("u1"))
	require.NoError(t, err)
	time.Sleep(time.Millisecond)
	second, err := s.Create(ctx, validInput("u1"))
	require.NoError(t, err)

	list, err := s.ListUnread(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, first.ID, list[1].ID)
}

func TestListUnreadIsBounded(t *testing.T) {
	t.Parallel()

	s, _, _ := newTestNotificationService(t, nil)
	ctx := context.Background()

	for range GET_UNREAD_MAX_LIMIT + 5 {
		_, err := s.Create(ctx, validInput("u1"))
		require.NoError(t, err)
	}

	list, err := s.ListUnread(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, list, GET_UNREAD_MAX_LIMIT)

	count, err := s.CountUnread(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, GET_UNREAD_MAX_LIMIT+5, count)
}

func TestUnreadCountCache(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	s, _, _ := newTestNotificationService(t, rdb)
	ctx := context.Background()

	n, err := s.Create(ctx, validInput("u1"))
	require.NoError(t, err)

	count, err := s.CountUnread(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.True(t, mr.Exists(redisrepo.UserUnreadCountKey("u1")))

	_, err = s.MarkRead(ctx, n.ID)
	require.NoError(t, err)
	assert.False(t, mr.Exists(redisrepo.UserUnreadCountKey("u1")))

	count, err = s.CountUnread(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestSubscribeLastWriteWins(t *testing.T) {
	t.Parallel()

	s, _, _ := newTestNotificationService(t, nil)
	ctx := context.Background()

	var first, second int
	unsubscribeFirst := s.Subscribe("u1", func(model.Notification) { first++ })
	unsubscribeSecond := s.Subscribe("u1", func(model.Notification) { second++ })

	// the stale tab closing must not remove the newer subscription
	unsubscribeFirst()

	_, err := s.Create(ctx, validInput("u1"))
	require.NoError(t, err)
	assert.Equal(t, 0, first)
	assert.Equal(t, 1, second)

	unsubscribeSecond()
	unsubscribeSecond()
	assert.Equal(t, 0, s.registry.len())
}

func TestRegistryConcurrentSubscribe(t *testing.T) {
	t.Parallel()

	r := &registry{}

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unsubscribe := r.subscribe("u1", func(model.Notification) {})
			unsubscribe()
		}()
	}
	wg.Wait()

	assert.Equal(t, 0, r.len())
}

type fakeAcknowledger struct {
	acked   int
	nacked  int
	requeue bool
}

func (a *fakeAcknowledger) Ack(uint64, bool) error {
	a.acked++
	return nil
}

func (a *fakeAcknowledger) Nack(_ uint64, _ bool, requeue bool) error {
	a.nacked++
	a.requeue = requeue
	return nil
}

func (a *fakeAcknowledger) Reject(_ uint64, requeue bool) error {
	a.nacked++
	a.requeue = requeue
	return nil
}

func TestHandleDomainEvent(t *testing.T) {
	t.Parallel()

	s, _, _ := newTestNotificationService(t, nil)
	ctx := context.Background()

	ack := &fakeAcknowledger{}
	s.handleDomainEvent(ctx, amqp.Delivery{
		Acknowledger: ack,
		Body:         []byte(`{"event":"job_assigned","user_id":"u1","job_id":"j1","job_title":"Annual check","building_name":"Condominio Aurora"}`),
	})
	assert.Equal(t, 1, ack.acked)

	list, err := s.ListUnread(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, model.TypeNewAssignment, list[0].Type)
	assert.Equal(t, model.PriorityHigh, list[0].Priority)
	assert.Equal(t, "Annual check at Condominio Aurora", list[0].Body)

	bad := &fakeAcknowledger{}
	s.handleDomainEvent(ctx, amqp.Delivery{Acknowledger: bad, Body: []byte(`{not json`)})
	assert.Equal(t, 1, bad.nacked)
	assert.False(t, bad.requeue)

	unknown := &fakeAcknowledger{}
	s.handleDomainEvent(ctx, amqp.Delivery{Acknowledger: unknown, Body: []byte(`{"event":"party","user_id":"u1"}`)})
	assert.Equal(t, 1, unknown.nacked)
	assert.False(t, unknown.requeue)
}

func TestNotificationFromEvent(t *testing.T) {
	t.Parallel()

	due := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	input, err := notificationFromEvent(dto.MQDomainEvent{
		Event:        dto.MQEventDeadlineApproaching,
		UserID:       "u1",
		JobTitle:     "Elevator",
		BuildingName: "Via Po 3",
		DueAt:        &due,
	})
	require.NoError(t, err)
	assert.Equal(t, model.TypeDeadline, input.Type)
	assert.Equal(t, model.PriorityUrgent, *input.Priority)
	assert.Equal(t, "Elevator at Via Po 3 is due 2026-03-01 09:00", input.Body)

	input, err = notificationFromEvent(dto.MQDomainEvent{Event: dto.MQEventSystemAlert, Message: "Maintenance tonight"})
	require.NoError(t, err)
	assert.Equal(t, model.BroadcastTarget, input.TargetUserID)
}

func TestRetentionSweep(t *testing.T) {
	t.Parallel()

	s, repo, _ := newTestNotificationService(t, nil)
	ctx := context.Background()
	now := time.Now().UTC()

	rows := []model.Notification{
		{ID: uuid.New(), TargetUserID: "u1", Read: true, CreatedAt: now.Add(-48 * time.Hour)},
		{ID: uuid.New(), TargetUserID: "u1", Read: false, CreatedAt: now.Add(-48 * time.Hour)},
		{ID: uuid.New(), TargetUserID: "u1", Read: false, CreatedAt: now.Add(-96 * time.Hour)},
		{ID: uuid.New(), TargetUserID: "u1", Read: true, CreatedAt: now},
	}
	for i := range rows {
		require.NoError(t, repo.Notification.Create(ctx, &rows[i]))
	}

	s.deleteOldNotifications(ctx)

	for i, want := range []bool{false, true, false, true} {
		_, err := repo.Notification.FindByID(ctx, rows[i].ID)
		if want {
			assert.NoError(t, err, "row %d should survive", i)
		} else {
			assert.ErrorIs(t, err, repository.ErrNotFound, "row %d should be swept", i)
		}
	}
}
