// Package gateway relays notifications to one connected client session.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Akirayouky/verifiche-condominiali-sub001/internal/model"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrSlowConsumer = errors.New("live stream buffer overflow")

// Sink writes one event to the client. Implementations honor the context
// deadline.
type Sink interface {
	Send(ctx context.Context, event model.Event) error
}

// Source is the part of the notification service the gateway needs.
type Source interface {
	Subscribe(userID string, deliver func(model.Notification)) (unsubscribe func())
	ListUnread(ctx context.Context, userID string) ([]*model.Notification, error)
}

type Config struct {
	HeartbeatInterval time.Duration
	WriteTimeout      time.Duration
	Buffer            int
}

type Gateway struct {
	logger *zap.Logger
	source Source
	cfg    Config
}

func New(logger *zap.Logger, source Source, cfg Config) *Gateway {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 30 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 64
	}

	return &Gateway{
		logger: logger,
		source: source,
		cfg:    cfg,
	}
}

type connectedData struct {
	UserID string `json:"user_id"`
}

// Serve streams events for userID until ctx is cancelled or a write fails.
// It subscribes before the catch-up listing so nothing created in between
// is lost; notifications already sent during catch-up are not repeated.
// A cancelled ctx is a normal end and returns nil.
func (g *Gateway) Serve(ctx context.Context, userID string, sink Sink) error {
	live := make(chan model.Notification, g.cfg.Buffer)
	overflow := make(chan struct{})
	var overflowOnce sync.Once

	unsubscribe := g.source.Subscribe(userID, func(n model.Notification) {
		select {
		case live <- n:
		default:
			overflowOnce.Do(func() { close(overflow) })
		}
	})
	defer unsubscribe()

	if err := g.send(ctx, sink, model.NewEvent(model.EventConnected, connectedData{UserID: userID})); err != nil {
		return g.end(ctx, userID, err)
	}

	unread, err := g.source.ListUnread(ctx, userID)
	if err != nil {
		return g.end(ctx, userID, fmt.Errorf("loading unread notifications: %w", err))
	}

	// ids sent during catch-up that may still arrive live
	sent := make(map[uuid.UUID]struct{}, len(unread))
	for i := len(unread) - 1; i >= 0; i-- {
		n := unread[i]
		if err := g.send(ctx, sink, model.NewEvent(model.EventExistingNotification, n)); err != nil {
			return g.end(ctx, userID, err)
		}
		sent[n.ID] = struct{}{}
	}

	ticker := time.NewTicker(g.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-overflow:
			return g.end(ctx, userID, ErrSlowConsumer)
		case n := <-live:
			if _, ok := sent[n.ID]; ok {
				delete(sent, n.ID)
				continue
			}
			if err := g.send(ctx, sink, model.NewEvent(model.EventNotification, n)); err != nil {
				return g.end(ctx, userID, err)
			}
		case <-ticker.C:
			if err := g.send(ctx, sink, model.NewEvent(model.EventHeartbeat, struct{}{})); err != nil {
				return g.end(ctx, userID, err)
			}
		}
	}
}

func (g *Gateway) send(ctx context.Context, sink Sink, event model.Event) error {
	writeCtx, cancel := context.WithTimeout(ctx, g.cfg.WriteTimeout)
	defer cancel()

	if err := sink.Send(writeCtx, event); err != nil {
		return fmt.Errorf("writing %s event: %w", event.Type, err)
	}
	return nil
}

func (g *Gateway) end(ctx context.Context, userID string, err error) error {
	if ctx.Err() != nil {
		return nil
	}
	g.logger.Sugar().Warnf("closing live stream of user(%s): %s", userID, err.Error())
	return err
}
