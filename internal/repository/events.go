package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/fibhq/outbox-bridge/internal/model"
	"github.com/jmoiron/sqlx"
)

// EventsRepository defines persistence for the outbox_event table.
type EventsRepository interface {
	Append(ctx context.Context, tx *sqlx.Tx, event model.OutboxEvent) error
	AppendMany(ctx context.Context, tx *sqlx.Tx, events []model.OutboxEvent) error
	GetByID(ctx context.Context, id string) (*model.OutboxEvent, error)
	ListWithoutDeliveries(ctx context.Context, limit int) ([]model.OutboxEvent, error)
	MarkPublished(ctx context.Context, ids []string) error
	SyncStatusFromDeliveries(ctx context.Context, eventID string) (model.EventStatus, error)
	StatusCounts(ctx context.Context) (map[model.EventStatus]int, error)
	OldestPendingAgeSeconds(ctx context.Context) (*int64, error)
}

type EventsRepositoryImpl struct {
	db *sqlx.DB
}

func NewEventsRepository(db *sqlx.DB) *EventsRepositoryImpl {
	return &EventsRepositoryImpl{db: db}
}

var _ EventsRepository = (*EventsRepositoryImpl)(nil)

func (r *EventsRepositoryImpl) withTx(ctx context.Context, tx *sqlx.Tx, fn func(*sqlx.Tx) error) error {
	if tx != nil {
		return fn(tx)
	}
	t, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = t.Rollback() }()
	if err := fn(t); err != nil {
		return err
	}
	return t.Commit()
}

// Append inserts a new event row with status=pending. Pass the caller's
// transaction to make the append atomic with the business write.
func (r *EventsRepositoryImpl) Append(ctx context.Context, tx *sqlx.Tx, event model.OutboxEvent) error {
	return r.AppendMany(ctx, tx, []model.OutboxEvent{event})
}

func (r *EventsRepositoryImpl) AppendMany(ctx context.Context, tx *sqlx.Tx, events []model.OutboxEvent) error {
	if len(events) == 0 {
		return nil
	}

	const q = `
		INSERT INTO outbox_event
		    (id, event_name, aggregate_type, aggregate_id, payload, meta,
		     occurred_at, available_at, status, attempts, created_at, updated_at)
		VALUES
		    (:id, :event_name, :aggregate_type, :aggregate_id, :payload, :meta,
		     :occurred_at, :available_at, :status, 0, NOW(), NOW())
	`
	return r.withTx(ctx, tx, func(tx *sqlx.Tx) error {
		_, err := tx.NamedExecContext(ctx, q, events)
		return err
	})
}

func (r *EventsRepositoryImpl) GetByID(ctx context.Context, id string) (*model.OutboxEvent, error) {
	var ev model.OutboxEvent
	err := r.db.GetContext(ctx, &ev, `
		SELECT id, event_name, aggregate_type, aggregate_id, payload, meta,
		       occurred_at, available_at, published_at, status, attempts,
		       locked_until, lock_owner, last_error
		  FROM outbox_event
		 WHERE id = ? LIMIT 1
	`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

// ListWithoutDeliveries returns due events that were appended but not yet
// fanned out to delivery rows, oldest first.
func (r *EventsRepositoryImpl) ListWithoutDeliveries(ctx context.Context, limit int) ([]model.OutboxEvent, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	var rows []model.OutboxEvent
	err := r.db.SelectContext(ctx, &rows, `
		SELECT e.id, e.event_name, e.aggregate_type, e.aggregate_id, e.payload, e.meta,
		       e.occurred_at, e.available_at, e.published_at, e.status, e.attempts,
		       e.locked_until, e.lock_owner, e.last_error
		  FROM outbox_event e
		  LEFT JOIN outbox_delivery d ON d.event_id = e.id
		 WHERE d.id IS NULL
		   AND e.status = ?
		   AND e.available_at <= NOW()
		 ORDER BY e.available_at ASC, e.created_at ASC, e.id ASC
		 LIMIT ?
	`, model.EventStatusPending, limit)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// MarkPublished finalizes events that resolved to zero targets.
func (r *EventsRepositoryImpl) MarkPublished(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	query, args, err := sqlx.In(`
		UPDATE outbox_event
		   SET status = ?, published_at = NOW(), updated_at = NOW()
		 WHERE id IN (?)
	`, model.EventStatusPublished, ids)
	if err != nil {
		return err
	}
	query = r.db.Rebind(query)

	_, err = r.db.ExecContext(ctx, query, args...)
	return err
}

type deliverySummaryRow struct {
	Status      model.DeliveryStatus `db:"status"`
	Count       int                  `db:"cnt"`
	MaxAttempts int                  `db:"max_attempts"`
}

// SyncStatusFromDeliveries recomputes the event status from the current
// delivery rows and persists it. Safe to call after every delivery state
// change; the derivation is a pure function of the summary.
func (r *EventsRepositoryImpl) SyncStatusFromDeliveries(ctx context.Context, eventID string) (model.EventStatus, error) {
	var rows []deliverySummaryRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT status, COUNT(*) AS cnt, MAX(attempts) AS max_attempts
		  FROM outbox_delivery
		 WHERE event_id = ?
		 GROUP BY status
	`, eventID)
	if err != nil {
		return "", err
	}

	summary := model.DeliverySummary{Counts: make(map[model.DeliveryStatus]int, len(rows))}
	for _, row := range rows {
		summary.Counts[row.Status] = row.Count
		if row.MaxAttempts > summary.MaxAttempts {
			summary.MaxAttempts = row.MaxAttempts
		}
	}

	var lastError sql.NullString
	err = r.db.GetContext(ctx, &lastError, `
		SELECT last_error
		  FROM outbox_delivery
		 WHERE event_id = ? AND last_error IS NOT NULL
		 ORDER BY updated_at DESC
		 LIMIT 1
	`, eventID)
	if err != nil && err != sql.ErrNoRows {
		return "", err
	}
	summary.LastError = lastError.String

	status := model.DeriveEventStatus(summary)

	publishedAt := "published_at"
	if status == model.EventStatusPublished {
		publishedAt = "COALESCE(published_at, NOW())"
	}

	_, err = r.db.ExecContext(ctx, `
		UPDATE outbox_event
		   SET status = ?,
		       attempts = ?,
		       last_error = NULLIF(?, ''),
		       published_at = `+publishedAt+`,
		       updated_at = NOW()
		 WHERE id = ?
	`, status, summary.MaxAttempts, summary.LastError, eventID)
	if err != nil {
		return "", err
	}

	return status, nil
}

type statusCountRow struct {
	Status model.EventStatus `db:"status"`
	Count  int               `db:"cnt"`
}

func (r *EventsRepositoryImpl) StatusCounts(ctx context.Context) (map[model.EventStatus]int, error) {
	var rows []statusCountRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT status, COUNT(*) AS cnt FROM outbox_event GROUP BY status
	`)
	if err != nil {
		return nil, err
	}

	counts := map[model.EventStatus]int{
		model.EventStatusPending:    0,
		model.EventStatusProcessing: 0,
		model.EventStatusPublished:  0,
		model.EventStatusFailed:     0,
		model.EventStatusDead:       0,
	}
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

// OldestPendingAgeSeconds reports the age of the oldest event still pending,
// measured from occurred_at rather than available_at so backoff pushes do not
// shrink the reported lag. Returns nil when the backlog is empty.
func (r *EventsRepositoryImpl) OldestPendingAgeSeconds(ctx context.Context) (*int64, error) {
	var oldest sql.NullTime
	err := r.db.GetContext(ctx, &oldest, `
		SELECT MIN(occurred_at)
		  FROM outbox_event
		 WHERE status = ?
	`, model.EventStatusPending)
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}
	if !oldest.Valid {
		return nil, nil
	}

	lag := int64(time.Since(oldest.Time).Seconds())
	if lag < 0 {
		lag = 0
	}
	return &lag, nil
}
