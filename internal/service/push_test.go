package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Akirayouky/verifiche-condominiali-sub001/internal/dto"
	"github.com/Akirayouky/verifiche-condominiali-sub001/internal/model"
	"github.com/Akirayouky/verifiche-condominiali-sub001/internal/push"
	"github.com/Akirayouky/verifiche-condominiali-sub001/internal/repository"
	"github.com/Akirayouky/verifiche-condominiali-sub001/internal/repository/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// scriptedTransport answers per endpoint URL; unknown URLs succeed.
type scriptedTransport struct {
	mu      sync.Mutex
	answers map[string]error
	block   map[string]bool
	calls   []string
}

func (s *scriptedTransport) Send(ctx context.Context, endpoint *model.PushEndpoint, _ []byte, _ model.Priority) error {
	s.mu.Lock()
	s.calls = append(s.calls, endpoint.EndpointURL)
	err := s.answers[endpoint.EndpointURL]
	block := s.block[endpoint.EndpointURL]
	s.mu.Unlock()

	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	return err
}

func newTestPushService(t *testing.T, transport push.Transport) (*pushService, *repository.Repository) {
	t.Helper()

	repo := memory.NewRepository()
	cfg := testConfig().Push
	cfg.Timeout = 50 * time.Millisecond
	return newPushService(zap.NewNop(), cfg, repo, transport), repo
}

func register(t *testing.T, s *pushService, owner, endpoint string) *model.PushEndpoint {
	t.Helper()

	e, err := s.Register(context.Background(), dto.RegisterPush{
		Endpoint:    endpoint,
		Keys:        model.PushKeys{P256dh: "p256", Auth: "auth"},
		OwnerUserID: owner,
	})
	require.NoError(t, err)
	return e
}

func TestSendPushPrunesGoneEndpoint(t *testing.T) {
	t.Parallel()

	transport := &scriptedTransport{answers: map[string]error{
		"https://push.example/b": push.ErrEndpointGone,
	}}
	s, repo := newTestPushService(t, transport)
	ctx := context.Background()

	register(t, s, "u1", "https://push.example/a")
	gone := register(t, s, "u1", "https://push.example/b")
	register(t, s, "u2", "https://push.example/c")

	result, err := s.SendPush(ctx, []string{"u1", "u2"}, model.PushPayload{Title: "t", Body: "b"})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Sent)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 3, result.Total)

	remaining, err := repo.PushEndpoint.ListByOwners(ctx, []string{"u1", "u2"})
	require.NoError(t, err)
	require.Len(t, remaining, 2)
	for _, e := range remaining {
		assert.NotEqual(t, gone.ID, e.ID)
	}

	for _, r := range result.Results {
		if r.EndpointID == gone.ID {
			assert.Equal(t, model.PushStatusGone, r.Status)
		} else {
			assert.Equal(t, model.PushStatusSent, r.Status)
		}
	}
}

func TestSendPushKeepsEndpointOnTransientFailure(t *testing.T) {
	t.Parallel()

	transport := &scriptedTransport{
		answers: map[string]error{"https://push.example/a": errors.New("503 service unavailable")},
		block:   map[string]bool{"https://push.example/slow": true},
	}
	s, repo := newTestPushService(t, transport)
	ctx := context.Background()

	register(t, s, "u1", "https://push.example/a")
	register(t, s, "u1", "https://push.example/slow")
	register(t, s, "u1", "https://push.example/ok")

	result, err := s.SendPush(ctx, []string{"u1"}, model.PushPayload{Title: "t", Body: "b"})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Sent)
	assert.Equal(t, 2, result.Failed)

	remaining, err := repo.PushEndpoint.ListByOwners(ctx, []string{"u1"})
	require.NoError(t, err)
	assert.Len(t, remaining, 3)
}

func TestSendPushUpdatesLastUsed(t *testing.T) {
	t.Parallel()

	s, repo := newTestPushService(t, &scriptedTransport{})
	ctx := context.Background()

	e := register(t, s, "u1", "fcm:token-1")
	time.Sleep(2 * time.Millisecond)

	_, err := s.SendPush(ctx, []string{"u1"}, model.PushPayload{Title: "t"})
	require.NoError(t, err)

	stored, err := repo.PushEndpoint.ListByOwners(ctx, []string{"u1"})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.True(t, stored[0].LastUsedAt.After(e.LastUsedAt))
}

func TestSendPushNoEndpoints(t *testing.T) {
	t.Parallel()

	transport := &scriptedTransport{}
	s, _ := newTestPushService(t, transport)

	result, err := s.SendPush(context.Background(), []string{"nobody"}, model.PushPayload{Title: "t"})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Sent)
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, 0, result.Total)
	assert.Empty(t, transport.calls)
}

func TestRegisterUpsertsByEndpoint(t *testing.T) {
	t.Parallel()

	s, repo := newTestPushService(t, &scriptedTransport{})
	ctx := context.Background()

	first := register(t, s, "u1", "https://push.example/a")
	second := register(t, s, "u1", "https://push.example/a")
	assert.Equal(t, first.ID, second.ID)

	all, err := repo.PushEndpoint.ListByOwners(ctx, []string{"u1"})
	require.NoError(t, err)
	assert.Len(t, all, 1)

	deleted, err := s.Unregister(ctx, "https://push.example/a")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = s.Unregister(ctx, "https://push.example/a")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestRegisterValidation(t *testing.T) {
	t.Parallel()

	s, _ := newTestPushService(t, &scriptedTransport{})

	tests := []struct {
		name  string
		input dto.RegisterPush
	}{
		{name: "no owner", input: dto.RegisterPush{Endpoint: "fcm:x"}},
		{name: "plain http", input: dto.RegisterPush{Endpoint: "http://push.example/a", OwnerUserID: "u1", Keys: model.PushKeys{P256dh: "p", Auth: "a"}}},
		{name: "web push without keys", input: dto.RegisterPush{Endpoint: "https://push.example/a", OwnerUserID: "u1"}},
		{name: "empty fcm token", input: dto.RegisterPush{Endpoint: "fcm:", OwnerUserID: "u1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := s.Register(context.Background(), tt.input)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestInlineEnqueuerDelivers(t *testing.T) {
	t.Parallel()

	transport := &scriptedTransport{}
	s, _ := newTestPushService(t, transport)
	register(t, s, "u1", "fcm:token")

	q := newInlinePushEnqueuer(zap.NewNop(), s)
	require.NoError(t, q.EnqueuePush(context.Background(), dto.MQPushJob{UserIDs: []string{"u1"}, Payload: model.PushPayload{Title: "t"}}))

	assert.Eventually(t, func() bool {
		transport.mu.Lock()
		defer transport.mu.Unlock()
		return len(transport.calls) == 1
	}, time.Second, 5*time.Millisecond)
}
