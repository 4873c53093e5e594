// Package store implements the durable event queue on PostgreSQL.
//
// The live table (event) holds rows awaiting processing; the history table
// (event_hist) receives every id exactly once when it leaves the live queue,
// flagged processed or not. Claiming uses row-level locks with SKIP LOCKED so
// concurrent workers never receive the same row. Every operation runs in its
// own transaction; the pool default is autocommit.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/droverhq/drover/pkg/models"
)

// ErrNotFound indicates the requested history row does not exist.
var ErrNotFound = errors.New("event not found")

// Store provides the queue operations over a shared connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a Store over the given pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Pool exposes the underlying pool for handlers that need direct access.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// InsertEvent inserts a new live row with attempts=0 and vt=now().
// event_ts is derived from the payload's Slack-style numeric ts; rows
// without one fall back to the insertion time.
func (s *Store) InsertEvent(ctx context.Context, payload models.Payload) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding event payload: %w", err)
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO event (event_ts, vt, event)
			VALUES (
				coalesce(to_timestamp(nullif($1::jsonb->>'ts', '')::numeric), now()),
				now(),
				$1::jsonb
			)`, raw)
		if err != nil {
			return fmt.Errorf("inserting event: %w", err)
		}
		return nil
	})
}

// ClaimEvent atomically selects one eligible row (visible, attempts below
// maxAttempts), advances its visibility timestamp by lease, increments
// attempts, and records the claim time. Selection order is randomized to
// reduce head-of-line blocking under contention. Rows locked by concurrent
// claims are skipped, so two overlapping calls never return the same id.
// Returns nil when no row qualifies.
func (s *Store) ClaimEvent(ctx context.Context, maxAttempts int, lease time.Duration) (*models.Event, error) {
	var ev *models.Event
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			WITH eligible AS (
				SELECT id
				FROM event
				WHERE vt <= clock_timestamp()
				  AND attempts < $1
				ORDER BY random()
				LIMIT 1
				FOR UPDATE SKIP LOCKED
			)
			UPDATE event e
			SET vt       = clock_timestamp() + $2 * interval '1 minute',
			    attempts = e.attempts + 1,
			    claimed  = array_append(e.claimed, clock_timestamp())
			FROM eligible
			WHERE e.id = eligible.id
			RETURNING e.id, e.event_ts, e.attempts, e.vt, e.claimed, e.event`,
			maxAttempts, lease.Minutes())

		var (
			claimed models.Event
			raw     []byte
		)
		err := row.Scan(&claimed.ID, &claimed.EventTS, &claimed.Attempts, &claimed.VT, &claimed.Claimed, &raw)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil
			}
			return fmt.Errorf("claiming event: %w", err)
		}
		// A payload that does not decode to an object is left nil; the
		// dispatcher retires it as poison.
		_ = json.Unmarshal(raw, &claimed.Event)
		ev = &claimed
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ev, nil
}

// DeleteEvent removes a live row and inserts the equivalent history row with
// the given processed flag, both in one transaction. processed=false is the
// poison path; handler success uses processed=true.
func (s *Store) DeleteEvent(ctx context.Context, id int64, processed bool) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			WITH moved AS (
				DELETE FROM event
				WHERE id = $1
				RETURNING id, event_ts, attempts, vt, claimed, event
			)
			INSERT INTO event_hist (id, event_ts, attempts, vt, claimed, event, processed)
			SELECT id, event_ts, attempts, vt, claimed, event, $2
			FROM moved`, id, processed)
		if err != nil {
			return fmt.Errorf("deleting event %d: %w", id, err)
		}
		return nil
	})
}

// DeleteExpiredEvents sweeps live rows whose attempts or age exceed the
// limits, moving them to history unprocessed. Returns the number of rows
// retired.
func (s *Store) DeleteExpiredEvents(ctx context.Context, maxAttempts int, maxAge time.Duration) (int64, error) {
	var moved int64
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			WITH expired AS (
				DELETE FROM event
				WHERE attempts >= $1
				   OR event_ts < now() - $2 * interval '1 minute'
				RETURNING id, event_ts, attempts, vt, claimed, event
			)
			INSERT INTO event_hist (id, event_ts, attempts, vt, claimed, event, processed)
			SELECT id, event_ts, attempts, vt, claimed, event, false
			FROM expired`, maxAttempts, maxAge.Minutes())
		if err != nil {
			return fmt.Errorf("deleting expired events: %w", err)
		}
		moved = tag.RowsAffected()
		return nil
	})
	return moved, err
}

// InsertEventHist inserts directly into history with processed=true,
// bypassing the live queue, and returns the new history id. Used by the
// proactive-prompt path so a later confirmation can re-dispatch the
// archived payload by id.
func (s *Store) InsertEventHist(ctx context.Context, payload models.Payload) (int64, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("encoding event payload: %w", err)
	}
	var id int64
	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO event_hist (event_ts, vt, event, processed)
			VALUES (
				coalesce(to_timestamp(nullif($1::jsonb->>'ts', '')::numeric), now()),
				now(),
				$1::jsonb,
				true
			)
			RETURNING id`, raw).Scan(&id)
		if err != nil {
			return fmt.Errorf("inserting history event: %w", err)
		}
		return nil
	})
	return id, err
}

// GetEventHist fetches a history row by id. Returns ErrNotFound when absent.
func (s *Store) GetEventHist(ctx context.Context, id int64) (*models.HistEvent, error) {
	var (
		hist models.HistEvent
		raw  []byte
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, event_ts, attempts, vt, claimed, event, processed
		FROM event_hist
		WHERE id = $1`, id).
		Scan(&hist.ID, &hist.EventTS, &hist.Attempts, &hist.VT, &hist.Claimed, &raw, &hist.Processed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("fetching history event %d: %w", id, err)
	}
	if err := json.Unmarshal(raw, &hist.Event.Event); err != nil {
		return nil, fmt.Errorf("decoding history event %d: %w", id, err)
	}
	return &hist, nil
}

// QueueDepth returns the number of live rows, claimed or not.
func (s *Store) QueueDepth(ctx context.Context) (int64, error) {
	var depth int64
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM event`).Scan(&depth)
	if err != nil {
		return 0, fmt.Errorf("counting queue depth: %w", err)
	}
	return depth, nil
}

// CountUserRequests counts events authored by userID across the live queue
// and history within the given window. Used for per-user rate limiting.
func (s *Store) CountUserRequests(ctx context.Context, userID string, window time.Duration) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `
		SELECT (SELECT count(*) FROM event
		        WHERE event->>'user' = $1 AND event_ts >= now() - $2 * interval '1 minute')
		     + (SELECT count(*) FROM event_hist
		        WHERE event->>'user' = $1 AND event_ts >= now() - $2 * interval '1 minute')`,
		userID, window.Minutes()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting requests for %s: %w", userID, err)
	}
	return count, nil
}
