package service

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/Akirayouky/verifiche-condominiali-sub001/internal/dto"
	"github.com/Akirayouky/verifiche-condominiali-sub001/internal/rabbitmq"
	"go.uber.org/zap"
)

type queuePushEnqueuer struct {
	rabbitmq *rabbitmq.MQConn
}

func newQueuePushEnqueuer(mq *rabbitmq.MQConn) PushEnqueuer {
	return &queuePushEnqueuer{rabbitmq: mq}
}

func (q *queuePushEnqueuer) EnqueuePush(ctx context.Context, job dto.MQPushJob) error {
	body, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return q.rabbitmq.Publish(ctx, rabbitmq.PUSH_DELIVERY_QUEUE, body)
}

// inlinePushEnqueuer delivers in a goroutine of this process. Used when no
// broker is configured.
type inlinePushEnqueuer struct {
	logger *zap.Logger
	push   Push
}

func newInlinePushEnqueuer(logger *zap.Logger, push Push) PushEnqueuer {
	return &inlinePushEnqueuer{
		logger: logger,
		push:   push,
	}
}

func (q *inlinePushEnqueuer) EnqueuePush(ctx context.Context, job dto.MQPushJob) error {
	ctx = context.WithoutCancel(ctx)

	go func() {
		result, err := q.push.SendPush(ctx, job.UserIDs, job.Payload)
		if err != nil {
			q.logger.Sugar().Errorf("failed to send push to users(%s): %s", strings.Join(job.UserIDs, ","), err.Error())
			return
		}
		q.logger.Sugar().Infof("push to users(%s): sent=%d failed=%d total=%d", strings.Join(job.UserIDs, ","), result.Sent, result.Failed, result.Total)
	}()

	return nil
}
