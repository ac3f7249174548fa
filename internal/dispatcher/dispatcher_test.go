package dispatcher

import (
	"context"
	"errors"
	"testing"

	"github.com/Akirayouky/verifiche-condominiali-sub001/internal/dto"
	"github.com/Akirayouky/verifiche-condominiali-sub001/internal/model"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type fakePush struct {
	err   error
	calls [][]string
}

func (f *fakePush) Register(context.Context, dto.RegisterPush) (*model.PushEndpoint, error) {
	return nil, nil
}

func (f *fakePush) Unregister(context.Context, string) (bool, error) {
	return false, nil
}

func (f *fakePush) SendPush(_ context.Context, userIDs []string, _ model.PushPayload) (*model.PushResult, error) {
	f.calls = append(f.calls, userIDs)
	if f.err != nil {
		return nil, f.err
	}
	return &model.PushResult{Sent: 1, Total: 1}, nil
}

type fakeSource struct {
	msgs chan amqp.Delivery
}

func (f *fakeSource) Consume(string) (<-chan amqp.Delivery, error) {
	return f.msgs, nil
}

type ack struct {
	acked   int
	nacked  int
	requeue bool
}

func (a *ack) Ack(uint64, bool) error { a.acked++; return nil }

func (a *ack) Nack(_ uint64, _ bool, requeue bool) error {
	a.nacked++
	a.requeue = requeue
	return nil
}

func (a *ack) Reject(_ uint64, requeue bool) error { return a.Nack(0, false, requeue) }

func TestHandle(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		body        string
		redelivered bool
		pushErr     error
		wantAck     bool
		wantRequeue bool
		wantCalls   int
	}{
		{name: "delivered", body: `{"user_ids":["u1"],"payload":{"title":"t","body":"b","priority":"high"}}`, wantAck: true, wantCalls: 1},
		{name: "malformed", body: `{"user_ids":`, wantAck: false},
		{name: "no users", body: `{"user_ids":[]}`, wantAck: true},
		{name: "storage down requeues once", body: `{"user_ids":["u1"]}`, pushErr: errors.New("db down"), wantRequeue: true, wantCalls: 1},
		{name: "storage down after redelivery drops", body: `{"user_ids":["u1"]}`, redelivered: true, pushErr: errors.New("db down"), wantCalls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			push := &fakePush{err: tt.pushErr}
			d := New(zap.NewNop(), nil, push)
			a := &ack{}

			d.handle(context.Background(), amqp.Delivery{Acknowledger: a, Body: []byte(tt.body), Redelivered: tt.redelivered})

			if tt.wantAck {
				assert.Equal(t, 1, a.acked)
			} else {
				assert.Equal(t, 1, a.nacked)
				assert.Equal(t, tt.wantRequeue, a.requeue)
			}
			assert.Len(t, push.calls, tt.wantCalls)
		})
	}
}

func TestProcessPushJobsUntilChannelCloses(t *testing.T) {
	t.Parallel()

	source := &fakeSource{msgs: make(chan amqp.Delivery, 1)}
	push := &fakePush{}
	d := New(zap.NewNop(), source, push)

	a := &ack{}
	source.msgs <- amqp.Delivery{Acknowledger: a, Body: []byte(`{"user_ids":["u1"]}`)}
	close(source.msgs)

	d.ProcessPushJobs(context.Background())
	assert.Equal(t, 1, a.acked)
	assert.Len(t, push.calls, 1)
}
