package metadata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/solatis/metasync/internal/core/db"
	"github.com/solatis/metasync/internal/types"
)

/*
 * Deferred work queue.
 *
 * A save whose async lane is non-empty enqueues one work item. The payload
 * carries everything the worker needs to redo the reconciliation later:
 * the mapping ids of the async lane, the dirty paths the triggering save
 * saw and the registry generation and digest it was planned against.
 *
 * Payloads are CBOR (core deterministic encoding). Status transitions:
 *
 *   pending -> running -> done
 *                      -> failed
 *
 * Claiming is a conditional update on status = 'pending', so two workers
 * never run the same item.
 */

// Work item statuses.
const (
	StatusPending = "pending"
	StatusRunning = "running"
	StatusDone    = "done"
	StatusFailed  = "failed"
)

// DeferredPayload is the serialized content of a work item.
type DeferredPayload struct {
	Marker     string           `cbor:"marker"`
	DocumentID types.DocumentID `cbor:"document_id"`
	MappingIDs []string         `cbor:"mapping_ids"`
	DirtyPaths []string         `cbor:"dirty_paths"`
	Generation uint64           `cbor:"generation"`
	Digest     string           `cbor:"digest"`
}

// WorkItem is a queued deferred reconciliation.
type WorkItem struct {
	ID        types.WorkID
	Payload   DeferredPayload
	Status    string
	Attempts  int
	LastError string
	CreatedAt time.Time
}

type workRow struct {
	ID          string         `db:"work_id"`
	DocumentID  string         `db:"document_id"`
	Marker      string         `db:"marker"`
	Payload     []byte         `db:"payload"`
	Status      string         `db:"status"`
	Attempts    int            `db:"attempts"`
	LastError   sql.NullString `db:"last_error"`
	AvailableAt time.Time      `db:"available_at"`
	CreatedAt   time.Time      `db:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at"`
}

// Queue stores deferred work in the deferred_work table.
type Queue struct {
	queries *db.Queries
	enc     cbor.EncMode
	now     func() time.Time
}

// NewQueue creates a queue over the named queries.
func NewQueue(queries *db.Queries) (*Queue, error) {
	enc, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		return nil, fmt.Errorf("create cbor encoder: %w", err)
	}
	return &Queue{
		queries: queries,
		enc:     enc,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

// Enqueue stores payload as a pending work item.
func (q *Queue) Enqueue(ctx context.Context, payload DeferredPayload) (types.WorkID, error) {
	data, err := q.enc.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode deferred payload: %w", err)
	}

	id := types.NewWorkID()
	now := q.now()
	if _, err := q.queries.ExecContext(ctx, "insert-deferred-work",
		string(id), string(payload.DocumentID), payload.Marker, data, now, now, now); err != nil {
		return "", fmt.Errorf("enqueue deferred work: %w", err)
	}
	return id, nil
}

// Pending returns up to limit pending items that are available now, oldest
// first.
func (q *Queue) Pending(ctx context.Context, limit int) ([]WorkItem, error) {
	var rows []workRow
	if err := q.queries.SelectContext(ctx, "list-pending-work", &rows, q.now(), limit); err != nil {
		return nil, fmt.Errorf("list pending work: %w", err)
	}

	items := make([]WorkItem, 0, len(rows))
	for _, row := range rows {
		item, err := decodeWork(row)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// Claim moves a pending item to running. It returns false when another
// worker claimed it first.
func (q *Queue) Claim(ctx context.Context, id types.WorkID) (bool, error) {
	res, err := q.queries.ExecContext(ctx, "claim-work", q.now(), string(id))
	if err != nil {
		return false, fmt.Errorf("claim work %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim work %s: %w", id, err)
	}
	return n == 1, nil
}

// Complete marks an item done.
func (q *Queue) Complete(ctx context.Context, id types.WorkID) error {
	if _, err := q.queries.ExecContext(ctx, "complete-work", q.now(), string(id)); err != nil {
		return fmt.Errorf("complete work %s: %w", id, err)
	}
	return nil
}

// Fail marks an item failed with cause.
func (q *Queue) Fail(ctx context.Context, id types.WorkID, cause error) error {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	if _, err := q.queries.ExecContext(ctx, "fail-work", msg, q.now(), string(id)); err != nil {
		return fmt.Errorf("fail work %s: %w", id, err)
	}
	return nil
}

// Release returns a running item to pending so a later poll picks it up
// again. The attempt stays counted.
func (q *Queue) Release(ctx context.Context, id types.WorkID, cause error) error {
	msg := "released"
	if cause != nil {
		msg = cause.Error()
	}
	if _, err := q.queries.ExecContext(ctx, "release-work", msg, q.now(), string(id)); err != nil {
		return fmt.Errorf("release work %s: %w", id, err)
	}
	return nil
}

// Get loads one item.
func (q *Queue) Get(ctx context.Context, id types.WorkID) (WorkItem, error) {
	var row workRow
	err := q.queries.GetContext(ctx, "get-work", &row, string(id))
	if errors.Is(err, sql.ErrNoRows) {
		return WorkItem{}, fmt.Errorf("deferred work %s not found", id)
	}
	if err != nil {
		return WorkItem{}, fmt.Errorf("get work %s: %w", id, err)
	}
	return decodeWork(row)
}

// Counts returns the number of items per status.
func (q *Queue) Counts(ctx context.Context) (map[string]int, error) {
	var rows []struct {
		Status string `db:"status"`
		Count  int    `db:"count"`
	}
	if err := q.queries.SelectContext(ctx, "count-work-by-status", &rows); err != nil {
		return nil, fmt.Errorf("count work: %w", err)
	}
	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

func decodeWork(row workRow) (WorkItem, error) {
	var payload DeferredPayload
	if err := cbor.Unmarshal(row.Payload, &payload); err != nil {
		return WorkItem{}, fmt.Errorf("decode payload of work %s: %w", row.ID, err)
	}
	return WorkItem{
		ID:        types.WorkID(row.ID),
		Payload:   payload,
		Status:    row.Status,
		Attempts:  row.Attempts,
		LastError: row.LastError.String,
		CreatedAt: row.CreatedAt,
	}, nil
}
