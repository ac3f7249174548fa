package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Akirayouky/verifiche-condominiali-sub001/internal/config"
	"github.com/Akirayouky/verifiche-condominiali-sub001/internal/dto"
	"github.com/Akirayouky/verifiche-condominiali-sub001/internal/model"
	"github.com/Akirayouky/verifiche-condominiali-sub001/internal/rabbitmq"
	"github.com/Akirayouky/verifiche-condominiali-sub001/internal/repository"
	"github.com/Akirayouky/verifiche-condominiali-sub001/internal/repository/redisrepo"
	"github.com/go-co-op/gocron/v2"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const GET_UNREAD_MAX_LIMIT = 50

const unreadCountTTL = time.Minute * 2

// EventSource yields broker deliveries for a queue.
type EventSource interface {
	Consume(queue string) (<-chan amqp.Delivery, error)
}

type notificationService struct {
	logger    *zap.Logger
	cfg       *config.Config
	repo      *repository.Repository
	rdb       *redis.Client
	events    EventSource
	pushQueue PushEnqueuer
	validate  *validator.Validate
	scheduler gocron.Scheduler
	registry  *registry
}

func newNotificationService(logger *zap.Logger, cfg *config.Config, repo *repository.Repository, rdb *redis.Client, events EventSource, pushQueue PushEnqueuer) *notificationService {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		panic(err)
	}

	return &notificationService{
		logger:    logger,
		cfg:       cfg,
		repo:      repo,
		rdb:       rdb,
		events:    events,
		pushQueue: pushQueue,
		validate:  validator.New(),
		scheduler: scheduler,
		registry:  &registry{},
	}
}

func (s *notificationService) Create(ctx context.Context, input dto.CreateNotification) (*model.Notification, error) {
	if err := s.validate.Struct(input); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInput, err.Error())
	}

	priority := model.PriorityNormal
	if input.Priority != nil {
		priority = *input.Priority
		if priority < model.PriorityLow || priority > model.PriorityUrgent {
			return nil, fmt.Errorf("%w: priority out of range", ErrInvalidInput)
		}
	}

	n := &model.Notification{
		ID:                uuid.New(),
		Type:              input.Type,
		Title:             input.Title,
		Body:              input.Body,
		TargetUserID:      input.TargetUserID,
		Priority:          priority,
		RelatedJobID:      input.RelatedJobID,
		RelatedBuildingID: input.RelatedBuildingID,
		Read:              false,
		// timestamptz keeps microseconds
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
		DueAt:     input.DueAt,
	}

	if err := s.repo.Notification.Create(ctx, n); err != nil {
		s.logger.Sugar().Errorf("failed to create notification for user(%s): %s", n.TargetUserID, err.Error())
		return nil, ErrInternal
	}

	s.invalidateUnreadCount(ctx, n.TargetUserID)

	if n.IsBroadcast() {
		return n, nil
	}

	delivered := s.fanOut(n)
	if !delivered || s.cfg.Push.Always {
		s.enqueuePush(ctx, n)
	}

	return n, nil
}

func (s *notificationService) fanOut(n *model.Notification) bool {
	sub, ok := s.registry.lookup(n.TargetUserID)
	if !ok {
		return false
	}

	sub.deliver(*n)
	return true
}

func (s *notificationService) enqueuePush(ctx context.Context, n *model.Notification) {
	if s.pushQueue == nil {
		return
	}

	job := dto.MQPushJob{
		UserIDs: []string{n.TargetUserID},
		Payload: model.PushPayloadFor(n, s.cfg.Push.Icon, s.cfg.Push.DeepLinkBase),
	}
	if err := s.pushQueue.EnqueuePush(ctx, job); err != nil {
		s.logger.Sugar().Errorf("failed to enqueue push for notification(%s): %s", n.ID.String(), err.Error())
	}
}

func (s *notificationService) Subscribe(userID string, deliver func(model.Notification)) func() {
	return s.registry.subscribe(userID, deliver)
}

func (s *notificationService) ListUnread(ctx context.Context, userID string) ([]*model.Notification, error) {
	notifications, err := s.repo.Notification.ListUnread(ctx, userID, GET_UNREAD_MAX_LIMIT)
	if err != nil {
		s.logger.Sugar().Errorf("failed to get user(%s)'s unread notifications: %s", userID, err.Error())
		return nil, ErrInternal
	}

	if notifications == nil {
		notifications = []*model.Notification{}
	}
	return notifications, nil
}

func (s *notificationService) CountUnread(ctx context.Context, userID string) (int, error) {
	key := redisrepo.UserUnreadCountKey(userID)

	if s.rdb != nil {
		cached, err := redisrepo.Get[int](s.rdb, ctx, key)
		if err == nil {
			return *cached, nil
		}
		if err != redis.Nil {
			s.logger.Sugar().Errorf("failed to get user(%s)'s unread count from redis: %s", userID, err.Error())
		}
	}

	count, err := s.repo.Notification.CountUnread(ctx, userID)
	if err != nil {
		s.logger.Sugar().Errorf("failed to count user(%s)'s unread notifications: %s", userID, err.Error())
		return 0, ErrInternal
	}

	if s.rdb != nil {
		if err := redisrepo.SetJSON(s.rdb, ctx, key, count, unreadCountTTL); err != nil {
			s.logger.Sugar().Errorf("failed to set user(%s)'s unread count in redis cache: %s", userID, err.Error())
		}
	}

	return count, nil
}

func (s *notificationService) invalidateUnreadCount(ctx context.Context, userID string) {
	if s.rdb == nil {
		return
	}
	if err := redisrepo.Del(s.rdb, ctx, redisrepo.UserUnreadCountKey(userID)); err != nil {
		s.logger.Sugar().Errorf("failed to invalidate user(%s)'s unread count: %s", userID, err.Error())
	}
}

func (s *notificationService) MarkRead(ctx context.Context, id uuid.UUID) (bool, error) {
	n, err := s.repo.Notification.MarkRead(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		s.logger.Sugar().Errorf("failed to mark notification(%s) as read: %s", id.String(), err.Error())
		return false, ErrInternal
	}

	s.invalidateUnreadCount(ctx, n.TargetUserID)
	return true, nil
}

func (s *notificationService) MarkAllRead(ctx context.Context, userID string) (bool, error) {
	if _, err := s.repo.Notification.MarkAllRead(ctx, userID); err != nil {
		s.logger.Sugar().Errorf("failed to mark all user(%s)'s notifications as read: %s", userID, err.Error())
		return false, ErrInternal
	}

	s.invalidateUnreadCount(ctx, userID)
	return true, nil
}

func (s *notificationService) Cleanup(ctx context.Context, userID string) (int64, error) {
	deleted, err := s.repo.Notification.DeleteRead(ctx, userID)
	if err != nil {
		s.logger.Sugar().Errorf("failed to delete user(%s)'s read notifications: %s", userID, err.Error())
		return 0, ErrInternal
	}
	return deleted, nil
}

func (s *notificationService) StartProcessingDomainEvents(ctx context.Context) {
	if s.events == nil {
		s.logger.Warn("no message broker configured, domain events are not consumed")
		return
	}

	msgs, err := s.events.Consume(rabbitmq.INSPECTION_EVENTS_QUEUE)
	if err != nil {
		s.logger.Sugar().Fatalf("failed to start consuming(%s): %s", rabbitmq.INSPECTION_EVENTS_QUEUE, err.Error())
	}

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			s.handleDomainEvent(ctx, msg)
		}
	}
}

func (s *notificationService) handleDomainEvent(ctx context.Context, msg amqp.Delivery) {
	var event dto.MQDomainEvent
	if err := json.Unmarshal(msg.Body, &event); err != nil {
		s.logger.Sugar().Errorf("failed to unmarshal json in queue(%s): %s", rabbitmq.INSPECTION_EVENTS_QUEUE, err.Error())
		msg.Nack(false, false)
		return
	}

	input, err := notificationFromEvent(event)
	if err != nil {
		s.logger.Sugar().Errorf("failed to map event(%s) for user(%s): %s", event.Event, event.UserID, err.Error())
		msg.Nack(false, false)
		return
	}

	if _, err := s.Create(ctx, input); err != nil {
		if errors.Is(err, ErrInvalidInput) {
			s.logger.Sugar().Errorf("dropping event(%s) for user(%s): %s", event.Event, event.UserID, err.Error())
			msg.Nack(false, false)
			return
		}
		// one redelivery, then give up
		msg.Nack(false, !msg.Redelivered)
		return
	}

	msg.Ack(false)
}

func notificationFromEvent(event dto.MQDomainEvent) (dto.CreateNotification, error) {
	priority := model.PriorityNormal
	input := dto.CreateNotification{
		TargetUserID:      event.UserID,
		RelatedJobID:      event.JobID,
		RelatedBuildingID: event.BuildingID,
		DueAt:             event.DueAt,
		Priority:          &priority,
	}

	where := event.BuildingName
	if where == "" {
		where = "unknown building"
	}

	switch event.Event {
	case dto.MQEventJobAssigned:
		input.Type = model.TypeNewAssignment
		input.Title = "New inspection assigned"
		input.Body = fmt.Sprintf("%s at %s", event.JobTitle, where)
		priority = model.PriorityHigh
	case dto.MQEventJobReopened:
		input.Type = model.TypeJobReopened
		input.Title = "Inspection reopened"
		input.Body = fmt.Sprintf("%s at %s needs another visit", event.JobTitle, where)
		if event.Message != "" {
			input.Body += ": " + event.Message
		}
		priority = model.PriorityHigh
	case dto.MQEventDeadlineApproaching:
		input.Type = model.TypeDeadline
		input.Title = "Deadline approaching"
		input.Body = fmt.Sprintf("%s at %s is due soon", event.JobTitle, where)
		if event.DueAt != nil {
			input.Body = fmt.Sprintf("%s at %s is due %s", event.JobTitle, where, event.DueAt.Format("2006-01-02 15:04"))
		}
		priority = model.PriorityUrgent
	case dto.MQEventSystemAlert:
		input.Type = model.TypeSystemAlert
		input.Title = "System alert"
		input.Body = event.Message
		if input.TargetUserID == "" {
			input.TargetUserID = model.BroadcastTarget
		}
	default:
		return input, fmt.Errorf("unknown event %q", event.Event)
	}

	return input, nil
}

func (s *notificationService) deleteOldNotifications(ctx context.Context) {
	now := time.Now().UTC()
	deleted, err := s.repo.Notification.DeleteOld(ctx, now.Add(-s.cfg.Retention.ReadAfter), now.Add(-s.cfg.Retention.MaxAge))
	if err != nil {
		s.logger.Sugar().Errorf("failed to delete old notifications: %s", err.Error())
		return
	}
	if deleted > 0 {
		s.logger.Sugar().Infof("deleted %d old notifications", deleted)
	}
}

func (s *notificationService) deleteStalePushEndpoints(ctx context.Context) {
	deleted, err := s.repo.PushEndpoint.DeleteStale(ctx, time.Now().UTC().Add(-s.cfg.Push.StaleAfter))
	if err != nil {
		s.logger.Sugar().Errorf("failed to delete stale push endpoints: %s", err.Error())
		return
	}
	if deleted > 0 {
		s.logger.Sugar().Infof("deleted %d stale push endpoints", deleted)
	}
}

func (s *notificationService) StartJobs() error {
	if _, err := s.scheduler.NewJob(gocron.DurationJob(s.cfg.Retention.Interval), gocron.NewTask(s.deleteOldNotifications)); err != nil {
		return err
	}

	if _, err := s.scheduler.NewJob(gocron.DurationJob(s.cfg.Retention.Interval), gocron.NewTask(s.deleteStalePushEndpoints)); err != nil {
		return err
	}

	s.scheduler.Start()
	return nil
}

func (s *notificationService) StopJobs() error {
	return s.scheduler.Shutdown()
}
