package service

import (
	"context"

	"github.com/Akirayouky/verifiche-condominiali-sub001/internal/config"
	"github.com/Akirayouky/verifiche-condominiali-sub001/internal/dto"
	"github.com/Akirayouky/verifiche-condominiali-sub001/internal/model"
	"github.com/Akirayouky/verifiche-condominiali-sub001/internal/push"
	"github.com/Akirayouky/verifiche-condominiali-sub001/internal/rabbitmq"
	"github.com/Akirayouky/verifiche-condominiali-sub001/internal/repository"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Notification interface {
	Create(ctx context.Context, input dto.CreateNotification) (*model.Notification, error)
	ListUnread(ctx context.Context, userID string) ([]*model.Notification, error)
	CountUnread(ctx context.Context, userID string) (int, error)
	MarkRead(ctx context.Context, id uuid.UUID) (bool, error)
	MarkAllRead(ctx context.Context, userID string) (bool, error)
	Cleanup(ctx context.Context, userID string) (int64, error)
	// Subscribe registers the live delivery target for userID, replacing any
	// previous one. The returned func removes it if it is still current.
	Subscribe(userID string, deliver func(model.Notification)) (unsubscribe func())
	StartProcessingDomainEvents(ctx context.Context)
	StartJobs() error
	StopJobs() error
}

type Push interface {
	Register(ctx context.Context, input dto.RegisterPush) (*model.PushEndpoint, error)
	Unregister(ctx context.Context, endpointURL string) (bool, error)
	SendPush(ctx context.Context, userIDs []string, payload model.PushPayload) (*model.PushResult, error)
}

// PushEnqueuer hands a push job to whatever performs delivery.
type PushEnqueuer interface {
	EnqueuePush(ctx context.Context, job dto.MQPushJob) error
}

type Service struct {
	Notification
	Push
}

// New wires the services. rdb and mq may be nil: without Redis the unread
// count is not cached, without RabbitMQ push jobs run in-process and no
// domain events are consumed.
func New(logger *zap.Logger, cfg *config.Config, repo *repository.Repository, rdb *redis.Client, mq *rabbitmq.MQConn, transport push.Transport) *Service {
	pushService := newPushService(logger, cfg.Push, repo, transport)

	var enqueuer PushEnqueuer
	if mq != nil {
		enqueuer = newQueuePushEnqueuer(mq)
	} else {
		enqueuer = newInlinePushEnqueuer(logger, pushService)
	}

	var events EventSource
	if mq != nil {
		events = mq
	}

	return &Service{
		Notification: newNotificationService(logger, cfg, repo, rdb, events, enqueuer),
		Push:         pushService,
	}
}
