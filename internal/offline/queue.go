// Package offline is the device-local queue of mutations made while the
// field worker had no connection. Records survive restarts and are removed
// only by PurgeSynced once they have been acknowledged by the server.
package offline

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Akirayouky/verifiche-condominiali-sub001/internal/model"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

var (
	ErrNotFound       = errors.New("mutation not found")
	ErrDuplicate      = errors.New("mutation already queued")
	ErrInvalidPayload = errors.New("mutation has no payload")
)

// Queue is scoped to one user of the device. Every write touches a single
// row.
type Queue struct {
	db     *sqlx.DB
	userID string
}

// Open opens (or creates) the queue database at path and applies pending
// migrations. ":memory:" gives a throwaway queue.
func Open(path, userID string) (*Queue, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// one writer; also keeps ":memory:" on a single database
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	q := &Queue{db: db, userID: userID}
	if err := q.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return q, nil
}

func (q *Queue) Close() error {
	return q.db.Close()
}

func (q *Queue) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := q.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		if err := q.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version"); err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := q.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// Append stores m. An empty ID gets a fresh UUID and a zero CreatedAt gets
// the current time; both are written back to m. It never waits on the
// network.
func (q *Queue) Append(ctx context.Context, m *model.OfflineMutation) error {
	if m.Payload == nil {
		return ErrInvalidPayload
	}
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	m.Kind = m.Payload.Kind()

	payload, err := json.Marshal(m.Payload)
	if err != nil {
		return fmt.Errorf("marshaling %s payload: %w", m.Kind, err)
	}

	result, err := q.db.ExecContext(ctx, `
		INSERT INTO offline_mutations (id, user_id, kind, payload, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		m.ID, q.userID, string(m.Kind), string(payload), m.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("appending mutation %s: %w", m.ID, err)
	}

	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrDuplicate
	}

	m.Synced = false
	m.Retries = 0
	return nil
}

const selectColumns = `
	SELECT id, kind, payload, created_at, synced, synced_at, retries, last_error, last_attempt_at
	FROM offline_mutations`

func (q *Queue) Get(ctx context.Context, id string) (*model.OfflineMutation, error) {
	row := q.db.QueryRowxContext(ctx, selectColumns+" WHERE id = ? AND user_id = ?", id, q.userID)

	m, err := scanMutation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting mutation %s: %w", id, err)
	}

	return m, nil
}

// ListUnsynced returns a snapshot of the user's pending mutations, oldest
// first.
func (q *Queue) ListUnsynced(ctx context.Context) ([]*model.OfflineMutation, error) {
	rows, err := q.db.QueryxContext(ctx,
		selectColumns+" WHERE user_id = ? AND synced = 0 ORDER BY created_at, id",
		q.userID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying unsynced mutations: %w", err)
	}
	defer rows.Close()

	var mutations []*model.OfflineMutation
	for rows.Next() {
		m, err := scanMutation(rows)
		if err != nil {
			return nil, err
		}
		mutations = append(mutations, m)
	}

	return mutations, rows.Err()
}

// MarkSynced is idempotent; synced_at keeps the first acknowledgement.
func (q *Queue) MarkSynced(ctx context.Context, id string) error {
	result, err := q.db.ExecContext(ctx,
		"UPDATE offline_mutations SET synced = 1, synced_at = COALESCE(synced_at, ?) WHERE id = ? AND user_id = ?",
		time.Now().UTC(), id, q.userID,
	)
	if err != nil {
		return fmt.Errorf("marking mutation %s as synced: %w", id, err)
	}

	return requireRow(result)
}

// RecordFailure counts one failed submission of an unsynced mutation.
func (q *Queue) RecordFailure(ctx context.Context, id string, errMsg string) error {
	result, err := q.db.ExecContext(ctx, `
		UPDATE offline_mutations
		SET retries = retries + 1, last_error = ?, last_attempt_at = ?
		WHERE id = ? AND user_id = ? AND synced = 0`,
		errMsg, time.Now().UTC(), id, q.userID,
	)
	if err != nil {
		return fmt.Errorf("recording failure of mutation %s: %w", id, err)
	}

	return requireRow(result)
}

func (q *Queue) CountUnsynced(ctx context.Context) (model.PendingCounts, error) {
	var rows []struct {
		Kind  string `db:"kind"`
		Count int    `db:"count"`
	}
	err := q.db.SelectContext(ctx, &rows,
		"SELECT kind, COUNT(*) AS count FROM offline_mutations WHERE user_id = ? AND synced = 0 GROUP BY kind",
		q.userID,
	)
	if err != nil {
		return model.PendingCounts{}, fmt.Errorf("counting unsynced mutations: %w", err)
	}

	var counts model.PendingCounts
	for _, r := range rows {
		switch model.MutationKind(r.Kind) {
		case model.KindJobCreate:
			counts.Jobs = r.Count
		case model.KindPhotoUpload:
			counts.Photos = r.Count
		}
	}
	return counts, nil
}

// PurgeSynced deletes mutations acknowledged before the given time.
// Unsynced records are never deleted.
func (q *Queue) PurgeSynced(ctx context.Context, before time.Time) (int64, error) {
	result, err := q.db.ExecContext(ctx,
		"DELETE FROM offline_mutations WHERE synced = 1 AND synced_at < ?",
		before.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("purging synced mutations: %w", err)
	}

	return result.RowsAffected()
}

// AcquireLease claims the user's sync lease for holder until ttl from now.
// It succeeds when the lease is free, expired or already held by holder,
// so the same call renews it. Other processes sharing the database see
// false while the lease is live.
func (q *Queue) AcquireLease(ctx context.Context, holder string, ttl time.Duration) (bool, error) {
	now := time.Now()
	result, err := q.db.ExecContext(ctx, `
		INSERT INTO sync_lease (user_id, holder, expires_at)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE
		SET holder = excluded.holder, expires_at = excluded.expires_at
		WHERE sync_lease.holder = excluded.holder OR sync_lease.expires_at <= ?`,
		q.userID, holder, now.Add(ttl).UnixMilli(), now.UnixMilli(),
	)
	if err != nil {
		return false, fmt.Errorf("acquiring sync lease: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ReleaseLease drops the lease if holder still owns it.
func (q *Queue) ReleaseLease(ctx context.Context, holder string) error {
	_, err := q.db.ExecContext(ctx,
		"DELETE FROM sync_lease WHERE user_id = ? AND holder = ?",
		q.userID, holder,
	)
	if err != nil {
		return fmt.Errorf("releasing sync lease: %w", err)
	}
	return nil
}

func requireRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMutation(row rowScanner) (*model.OfflineMutation, error) {
	var (
		m             model.OfflineMutation
		kind          string
		payload       string
		synced        int
		syncedAt      sql.NullTime
		lastAttemptAt sql.NullTime
	)

	err := row.Scan(
		&m.ID, &kind, &payload, &m.CreatedAt,
		&synced, &syncedAt, &m.Retries, &m.LastError, &lastAttemptAt,
	)
	if err != nil {
		return nil, err
	}

	m.Kind = model.MutationKind(kind)
	m.Synced = synced != 0
	if syncedAt.Valid {
		t := syncedAt.Time
		m.SyncedAt = &t
	}
	if lastAttemptAt.Valid {
		t := lastAttemptAt.Time
		m.LastAttemptAt = &t
	}

	m.Payload, err = model.DecodePayload(m.Kind, []byte(payload))
	if err != nil {
		return nil, fmt.Errorf("decoding mutation %s: %w", m.ID, err)
	}

	return &m, nil
}
