package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Akirayouky/verifiche-condominiali-sub001/internal/config"
	"github.com/Akirayouky/verifiche-condominiali-sub001/internal/dto"
	"github.com/Akirayouky/verifiche-condominiali-sub001/internal/model"
	"github.com/Akirayouky/verifiche-condominiali-sub001/internal/push"
	"github.com/Akirayouky/verifiche-condominiali-sub001/internal/repository"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type pushService struct {
	logger    *zap.Logger
	cfg       config.PushConfig
	repo      *repository.Repository
	transport push.Transport
	validate  *validator.Validate
}

func newPushService(logger *zap.Logger, cfg config.PushConfig, repo *repository.Repository, transport push.Transport) *pushService {
	return &pushService{
		logger:    logger,
		cfg:       cfg,
		repo:      repo,
		transport: transport,
		validate:  validator.New(),
	}
}

func (s *pushService) Register(ctx context.Context, input dto.RegisterPush) (*model.PushEndpoint, error) {
	if err := s.validate.Struct(input); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInput, err.Error())
	}

	switch {
	case strings.HasPrefix(input.Endpoint, push.FCMScheme):
		if len(input.Endpoint) == len(push.FCMScheme) {
			return nil, fmt.Errorf("%w: empty fcm token", ErrInvalidInput)
		}
	case strings.HasPrefix(input.Endpoint, "https://"):
		if input.Keys.P256dh == "" || input.Keys.Auth == "" {
			return nil, fmt.Errorf("%w: web push endpoints need p256dh and auth keys", ErrInvalidInput)
		}
	default:
		return nil, fmt.Errorf("%w: unsupported endpoint", ErrInvalidInput)
	}

	endpoint := &model.PushEndpoint{
		OwnerUserID: input.OwnerUserID,
		EndpointURL: input.Endpoint,
		Keys:        input.Keys,
	}
	if err := s.repo.PushEndpoint.Upsert(ctx, endpoint); err != nil {
		s.logger.Sugar().Errorf("failed to register push endpoint for user(%s): %s", input.OwnerUserID, err.Error())
		return nil, ErrInternal
	}

	return endpoint, nil
}

func (s *pushService) Unregister(ctx context.Context, endpointURL string) (bool, error) {
	deleted, err := s.repo.PushEndpoint.DeleteByEndpoint(ctx, endpointURL)
	if err != nil {
		s.logger.Sugar().Errorf("failed to unregister push endpoint: %s", err.Error())
		return false, ErrInternal
	}
	return deleted, nil
}

func (s *pushService) SendPush(ctx context.Context, userIDs []string, payload model.PushPayload) (*model.PushResult, error) {
	endpoints, err := s.repo.PushEndpoint.ListByOwners(ctx, userIDs)
	if err != nil {
		s.logger.Sugar().Errorf("failed to list push endpoints for users(%s): %s", strings.Join(userIDs, ","), err.Error())
		return nil, ErrInternal
	}

	result := &model.PushResult{
		Total:   len(endpoints),
		Results: make([]model.EndpointResult, len(endpoints)),
	}
	if len(endpoints) == 0 {
		return result, nil
	}

	data, err := payload.Encode()
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInput, err.Error())
	}

	var g errgroup.Group
	if s.cfg.Concurrency > 0 {
		g.SetLimit(s.cfg.Concurrency)
	}

	for i, endpoint := range endpoints {
		g.Go(func() error {
			result.Results[i] = s.deliver(ctx, endpoint, data, payload.Priority)
			return nil
		})
	}
	g.Wait()

	for _, r := range result.Results {
		if r.Status == model.PushStatusSent {
			result.Sent++
		} else {
			result.Failed++
		}
	}

	return result, nil
}

// deliver makes one isolated attempt. It never returns an error: the
// outcome is recorded in the result.
func (s *pushService) deliver(ctx context.Context, endpoint *model.PushEndpoint, data []byte, priority model.Priority) (res model.EndpointResult) {
	res = model.EndpointResult{
		EndpointID: endpoint.ID,
		UserID:     endpoint.OwnerUserID,
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Sugar().Errorf("push transport panicked for endpoint(%s): %v", endpoint.ID.String(), r)
			res.Status = model.PushStatusFailed
			res.Error = fmt.Sprint(r)
		}
	}()

	attemptCtx := ctx
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	err := s.transport.Send(attemptCtx, endpoint, data, priority)
	switch {
	case err == nil:
		res.Status = model.PushStatusSent
		if err := s.repo.PushEndpoint.Touch(ctx, endpoint.ID, time.Now().UTC()); err != nil {
			s.logger.Sugar().Errorf("failed to touch push endpoint(%s): %s", endpoint.ID.String(), err.Error())
		}
	case errors.Is(err, push.ErrEndpointGone):
		res.Status = model.PushStatusGone
		res.Error = err.Error()
		if err := s.repo.PushEndpoint.DeleteByID(ctx, endpoint.ID); err != nil {
			s.logger.Sugar().Errorf("failed to delete gone push endpoint(%s): %s", endpoint.ID.String(), err.Error())
		} else {
			s.logger.Sugar().Infof("deleted gone push endpoint(%s) of user(%s)", endpoint.ID.String(), endpoint.OwnerUserID)
		}
	default:
		res.Status = model.PushStatusFailed
		res.Error = err.Error()
		s.logger.Sugar().Warnf("failed to push to endpoint(%s) of user(%s): %s", endpoint.ID.String(), endpoint.OwnerUserID, err.Error())
	}

	return res
}
