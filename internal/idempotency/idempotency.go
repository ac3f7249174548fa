// Package idempotency makes POST handlers safe to retry. A request carrying
// an Idempotency-Key is executed at most once per scope; repeats get the
// first response back.
package idempotency

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/Akirayouky/verifiche-condominiali-sub001/internal/repository/redisrepo"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	Header         = "Idempotency-Key"
	ReplayedHeader = "Idempotent-Replayed"
)

const (
	statePending = "pending"
	stateDone    = "done"
)

type record struct {
	State       string `json:"state"`
	Status      int    `json:"status,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body,omitempty"`
}

type Guard struct {
	logger *zap.Logger
	rdb    *redis.Client
	ttl    time.Duration
}

// New returns a Guard. With a nil client every request passes through.
func New(logger *zap.Logger, rdb *redis.Client, ttl time.Duration) *Guard {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Guard{
		logger: logger,
		rdb:    rdb,
		ttl:    ttl,
	}
}

// Middleware guards next; scope separates key spaces, typically per user.
func (g *Guard) Middleware(scope func(r *http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			g.Do(w, r, scope(r), next.ServeHTTP)
		})
	}
}

func (g *Guard) Do(w http.ResponseWriter, r *http.Request, scope string, next http.HandlerFunc) {
	key := r.Header.Get(Header)
	if key == "" || g.rdb == nil {
		next(w, r)
		return
	}

	ctx := r.Context()
	redisKey := redisrepo.IdempotencyKey(scope, key)

	pending, _ := json.Marshal(record{State: statePending})
	reserved, err := g.rdb.SetNX(ctx, redisKey, pending, g.ttl).Result()
	if err != nil {
		g.logger.Sugar().Errorf("failed to reserve idempotency key(%s): %s", redisKey, err.Error())
		next(w, r)
		return
	}

	if !reserved {
		g.replay(ctx, w, redisKey)
		return
	}

	rec := &recorder{ResponseWriter: w, status: http.StatusOK}
	next(rec, r)

	// the caller may have gone away; the outcome still has to be stored
	ctx = context.WithoutCancel(ctx)

	if rec.status >= http.StatusInternalServerError {
		if err := redisrepo.Del(g.rdb, ctx, redisKey); err != nil {
			g.logger.Sugar().Errorf("failed to release idempotency key(%s): %s", redisKey, err.Error())
		}
		return
	}

	done := record{
		State:       stateDone,
		Status:      rec.status,
		ContentType: rec.Header().Get("Content-Type"),
		Body:        rec.body.Bytes(),
	}
	if err := redisrepo.SetJSON(g.rdb, ctx, redisKey, done, g.ttl); err != nil {
		g.logger.Sugar().Errorf("failed to store idempotent response(%s): %s", redisKey, err.Error())
	}
}

func (g *Guard) replay(ctx context.Context, w http.ResponseWriter, redisKey string) {
	rec, err := redisrepo.Get[record](g.rdb, ctx, redisKey)
	if err != nil || rec.State != stateDone {
		if err != nil && err != redis.Nil {
			g.logger.Sugar().Errorf("failed to load idempotent response(%s): %s", redisKey, err.Error())
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"error":"a request with this idempotency key is in progress"}`))
		return
	}

	if rec.ContentType != "" {
		w.Header().Set("Content-Type", rec.ContentType)
	}
	w.Header().Set(ReplayedHeader, "true")
	w.WriteHeader(rec.Status)
	w.Write(rec.Body)
}

type recorder struct {
	http.ResponseWriter
	status      int
	body        bytes.Buffer
	wroteHeader bool
}

func (r *recorder) WriteHeader(status int) {
	if r.wroteHeader {
		return
	}
	r.wroteHeader = true
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *recorder) Write(p []byte) (int, error) {
	if !r.wroteHeader {
		r.WriteHeader(http.StatusOK)
	}
	r.body.Write(p)
	return r.ResponseWriter.Write(p)
}

func (r *recorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
