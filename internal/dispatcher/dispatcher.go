// Package dispatcher consumes queued push jobs and delivers them.
package dispatcher

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/Akirayouky/verifiche-condominiali-sub001/internal/dto"
	"github.com/Akirayouky/verifiche-condominiali-sub001/internal/rabbitmq"
	"github.com/Akirayouky/verifiche-condominiali-sub001/internal/service"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

type Dispatcher struct {
	logger   *zap.Logger
	rabbitmq service.EventSource
	push     service.Push
}

func New(logger *zap.Logger, mq service.EventSource, push service.Push) *Dispatcher {
	return &Dispatcher{
		logger:   logger,
		rabbitmq: mq,
		push:     push,
	}
}

func (d *Dispatcher) StartProcessing(ctx context.Context) {
	go d.ProcessPushJobs(ctx)
}

func (d *Dispatcher) ProcessPushJobs(ctx context.Context) {
	queue := rabbitmq.PUSH_DELIVERY_QUEUE
	msgs, err := d.rabbitmq.Consume(queue)
	if err != nil {
		d.logger.Sugar().Fatalf("failed to start consuming(%s): %s", queue, err.Error())
	}

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			d.handle(ctx, msg)
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, msg amqp.Delivery) {
	queue := rabbitmq.PUSH_DELIVERY_QUEUE

	var job dto.MQPushJob
	if err := json.Unmarshal(msg.Body, &job); err != nil {
		d.logger.Sugar().Errorf("failed to unmarshal json in queue(%s): %s", queue, err.Error())
		msg.Nack(false, false)
		return
	}

	if len(job.UserIDs) == 0 {
		msg.Ack(false)
		return
	}

	users := strings.Join(job.UserIDs, ",")
	result, err := d.push.SendPush(ctx, job.UserIDs, job.Payload)
	if err != nil {
		d.logger.Sugar().Errorf("failed to send push to users(%s): %s", users, err.Error())
		// one redelivery, then drop
		msg.Nack(false, !msg.Redelivered)
		return
	}

	msg.Ack(false)

	d.logger.Sugar().Infof("processed push job from queue(%s) for users(%s): sent=%d failed=%d total=%d", queue, users, result.Sent, result.Failed, result.Total)
}
