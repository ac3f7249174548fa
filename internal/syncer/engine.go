// Package syncer drains the offline queue against the domain API once the
// device is back online.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Akirayouky/verifiche-condominiali-sub001/internal/model"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrSyncInProgress = errors.New("sync already in progress")
	ErrNoConnection   = errors.New("no connection")
)

// maxBackoff caps the wait between attempts of a single mutation.
const maxBackoff = time.Hour

// minLeaseTTL is how long a sync lease outlives its last renewal when
// ItemTimeout is short or unset.
const minLeaseTTL = 2 * time.Minute

type Queue interface {
	ListUnsynced(ctx context.Context) ([]*model.OfflineMutation, error)
	MarkSynced(ctx context.Context, id string) error
	RecordFailure(ctx context.Context, id string, errMsg string) error
}

// Submitter sends one mutation to the server. Implementations must send
// the mutation id as its idempotency key so a repeat is applied once.
type Submitter interface {
	Submit(ctx context.Context, m *model.OfflineMutation) error
}

// Lease is implemented by queues shared between processes. Run holds the
// lease for its whole drain so only one process submits at a time.
type Lease interface {
	AcquireLease(ctx context.Context, holder string, ttl time.Duration) (bool, error)
	ReleaseLease(ctx context.Context, holder string) error
}

type Connectivity interface {
	Online(ctx context.Context) bool
}

type State int32

const (
	StateIdle State = iota
	StateDraining
	StatePartialFailure
)

func (s State) String() string {
	switch s {
	case StateDraining:
		return "draining"
	case StatePartialFailure:
		return "partial_failure"
	default:
		return "idle"
	}
}

type Result struct {
	Success int `json:"success"`
	Failed  int `json:"failed"`
	// Skipped items were still backing off and were not submitted.
	Skipped int `json:"skipped"`
}

type Status struct {
	State      State
	LastRun    time.Time
	LastResult Result
	LastError  error
}

type Options struct {
	// ItemTimeout bounds a single submission. Zero means no bound.
	ItemTimeout time.Duration
	// BackoffBase enables per-item exponential backoff: an item that failed
	// n times waits BackoffBase * 2^(n-1) after its last attempt.
	BackoffBase time.Duration
}

type Engine struct {
	logger    *zap.Logger
	queue     Queue
	submitter Submitter
	conn      Connectivity
	opts      Options
	holder    string
	now       func() time.Time

	running atomic.Bool
	state   atomic.Int32
	trigger chan string

	mu     sync.Mutex
	status Status
}

// New returns an Engine. A nil conn is treated as always online.
func New(logger *zap.Logger, queue Queue, submitter Submitter, conn Connectivity, opts Options) *Engine {
	return &Engine{
		logger:    logger,
		queue:     queue,
		submitter: submitter,
		conn:      conn,
		opts:      opts,
		holder:    uuid.New().String(),
		now:       time.Now,
		trigger:   make(chan string, 1),
	}
}

// Run submits every unsynced mutation once, oldest first. A concurrent call
// returns ErrSyncInProgress without touching the queue, from this engine or
// from another process holding the queue's lease. An offline device gets
// ErrNoConnection. A failing item never stops the run.
func (e *Engine) Run(ctx context.Context) (Result, error) {
	if !e.running.CompareAndSwap(false, true) {
		return Result{}, ErrSyncInProgress
	}
	defer e.running.Store(false)

	if e.conn != nil && !e.conn.Online(ctx) {
		return Result{}, ErrNoConnection
	}

	lease, shared := e.queue.(Lease)
	if shared {
		acquired, err := lease.AcquireLease(ctx, e.holder, e.leaseTTL())
		if err != nil {
			e.finish(Result{}, err)
			return Result{}, err
		}
		if !acquired {
			return Result{}, ErrSyncInProgress
		}
		defer func() {
			if err := lease.ReleaseLease(context.WithoutCancel(ctx), e.holder); err != nil {
				e.logger.Sugar().Errorf("failed to release sync lease(%s): %s", e.holder, err.Error())
			}
		}()
	}

	items, err := e.queue.ListUnsynced(ctx)
	if err != nil {
		err = fmt.Errorf("listing unsynced mutations: %w", err)
		e.finish(Result{}, err)
		return Result{}, err
	}

	e.state.Store(int32(StateDraining))

	var res Result
	for _, m := range items {
		if ctx.Err() != nil {
			break
		}
		if !e.due(m) {
			res.Skipped++
			continue
		}
		if shared {
			if held, err := lease.AcquireLease(ctx, e.holder, e.leaseTTL()); err != nil || !held {
				e.logger.Sugar().Warnf("sync lease(%s) lost, stopping before mutation(%s)", e.holder, m.ID)
				break
			}
		}

		if err := e.submit(ctx, m); err != nil {
			res.Failed++
			e.logger.Sugar().Warnf("failed to sync %s mutation(%s), attempt %d: %s", m.Kind, m.ID, m.Retries+1, err.Error())
			if err := e.queue.RecordFailure(ctx, m.ID, err.Error()); err != nil {
				e.logger.Sugar().Errorf("failed to record failure of mutation(%s): %s", m.ID, err.Error())
			}
			continue
		}

		// the server has applied it; if this write is lost the next run
		// resubmits and the idempotency key absorbs the repeat
		if err := e.queue.MarkSynced(ctx, m.ID); err != nil {
			res.Failed++
			e.logger.Sugar().Errorf("failed to mark mutation(%s) as synced: %s", m.ID, err.Error())
			continue
		}
		res.Success++
	}

	err = ctx.Err()
	e.finish(res, err)
	return res, err
}

func (e *Engine) leaseTTL() time.Duration {
	return max(minLeaseTTL, 2*e.opts.ItemTimeout)
}

func (e *Engine) submit(ctx context.Context, m *model.OfflineMutation) error {
	if e.opts.ItemTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.ItemTimeout)
		defer cancel()
	}
	return e.submitter.Submit(ctx, m)
}

func (e *Engine) due(m *model.OfflineMutation) bool {
	if e.opts.BackoffBase <= 0 || m.Retries == 0 || m.LastAttemptAt == nil {
		return true
	}
	return !e.now().Before(m.LastAttemptAt.Add(backoff(e.opts.BackoffBase, m.Retries)))
}

func backoff(base time.Duration, retries int) time.Duration {
	wait := base
	for i := 1; i < retries; i++ {
		wait *= 2
		if wait >= maxBackoff {
			return maxBackoff
		}
	}
	return wait
}

func (e *Engine) finish(res Result, err error) {
	state := StateIdle
	if res.Failed > 0 {
		state = StatePartialFailure
	}
	e.state.Store(int32(state))

	e.mu.Lock()
	e.status = Status{
		State:      state,
		LastRun:    e.now(),
		LastResult: res,
		LastError:  err,
	}
	e.mu.Unlock()
}

func (e *Engine) State() State {
	return State(e.state.Load())
}

func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// Trigger asks the loop started by Start for a run. It never blocks; a
// trigger arriving while one is already pending is dropped.
func (e *Engine) Trigger(reason string) {
	select {
	case e.trigger <- reason:
	default:
	}
}

// Start runs the engine on every Trigger until ctx is done.
func (e *Engine) Start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case reason := <-e.trigger:
			e.runLogged(ctx, reason)
		}
	}
}

func (e *Engine) runLogged(ctx context.Context, reason string) {
	res, err := e.Run(ctx)
	switch {
	case errors.Is(err, ErrSyncInProgress):
		e.logger.Sugar().Debugf("sync on %s skipped: %s", reason, err.Error())
	case errors.Is(err, ErrNoConnection):
		e.logger.Sugar().Infof("sync on %s postponed: %s", reason, err.Error())
	case err != nil:
		e.logger.Sugar().Errorf("failed to sync on %s: %s", reason, err.Error())
	case res.Success+res.Failed+res.Skipped > 0:
		e.logger.Sugar().Infof("sync on %s: %d synced, %d failed, %d backing off", reason, res.Success, res.Failed, res.Skipped)
	}
}

// WatchConnectivity polls the engine's Connectivity every interval and
// triggers a run on each offline to online transition.
func (e *Engine) WatchConnectivity(ctx context.Context, interval time.Duration) {
	if e.conn == nil {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	online := e.conn.Online(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := e.conn.Online(ctx)
			if now && !online {
				e.logger.Info("connection restored")
				e.Trigger("reconnect")
			}
			if !now && online {
				e.logger.Info("connection lost")
			}
			online = now
		}
	}
}
