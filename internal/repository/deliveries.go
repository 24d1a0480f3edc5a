package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/fibhq/outbox-bridge/internal/model"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// claimColumns is the joined projection returned to the dispatcher: the
// delivery row plus everything from the event needed to publish.
const claimColumns = `
	d.id, d.event_id, d.destination_id, d.target_key, d.target_type, d.target_config,
	d.status, d.attempts, d.available_at, d.published_at, d.locked_until, d.lock_owner,
	d.last_error, d.created_at, d.updated_at,
	e.event_name, e.aggregate_type, e.aggregate_id, e.payload, e.meta, e.occurred_at
`

// DeliveriesRepository defines persistence for the outbox_delivery table,
// including the concurrency-safe claim step.
type DeliveriesRepository interface {
	InsertMany(ctx context.Context, tx *sqlx.Tx, deliveries []model.Delivery) error
	ClaimBatch(ctx context.Context, limit, lockSeconds int, owner string) ([]model.ClaimedDelivery, error)
	MarkPublished(ctx context.Context, id string) error
	Reschedule(ctx context.Context, id string, availableAt time.Time, lastError string) error
	MarkDead(ctx context.Context, id string, lastError string) error
	ResetExpiredLocks(ctx context.Context) (int64, []string, error)
	RequeueDead(ctx context.Context, limit int, eventName string) (int64, []string, error)
	CountByStatus(ctx context.Context) (map[model.DeliveryStatus]int, error)
}

type DeliveriesRepositoryImpl struct {
	db      *sqlx.DB
	log     *zap.Logger
	claimer claimer
}

// claimer marks up to limit due deliveries as processing owned by owner.
type claimer interface {
	claim(ctx context.Context, db *sqlx.DB, limit, lockSeconds int, owner string) error
	name() string
}

func NewDeliveriesRepository(ctx context.Context, db *sqlx.DB, log *zap.Logger) *DeliveriesRepositoryImpl {
	if log == nil {
		log = zap.NewNop()
	}

	r := &DeliveriesRepositoryImpl{db: db, log: log}
	r.claimer = selectClaimer(ctx, db, log)
	return r
}

var _ DeliveriesRepository = (*DeliveriesRepositoryImpl)(nil)

// selectClaimer probes once at startup whether the server understands
// FOR UPDATE SKIP LOCKED and picks the claiming strategy accordingly.
func selectClaimer(ctx context.Context, db *sqlx.DB, log *zap.Logger) claimer {
	var ids []string
	err := db.SelectContext(ctx, &ids, `SELECT id FROM outbox_delivery WHERE 1=0 FOR UPDATE SKIP LOCKED`)
	if err != nil {
		log.Warn("SKIP LOCKED not supported, falling back to optimistic claiming", zap.Error(err))
		return optimisticClaimer{}
	}
	return skipLockedClaimer{}
}

func (r *DeliveriesRepositoryImpl) withTx(ctx context.Context, tx *sqlx.Tx, fn func(*sqlx.Tx) error) error {
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

// InsertMany creates delivery rows for an event fan-out. The unique
// (event_id, target_key) key plus INSERT IGNORE makes re-seeding idempotent
// when two workers fan out the same event concurrently.
func (r *DeliveriesRepositoryImpl) InsertMany(ctx context.Context, tx *sqlx.Tx, deliveries []model.Delivery) error {
	if len(deliveries) == 0 {
		return nil
	}

	const q = `
		INSERT IGNORE INTO outbox_delivery
		    (id, event_id, destination_id, target_key, target_type, target_config,
		     status, attempts, available_at, created_at, updated_at)
		VALUES
		    (:id, :event_id, :destination_id, :target_key, :target_type, :target_config,
		     :status, 0, :available_at, NOW(), NOW())
	`
	return r.withTx(ctx, tx, func(tx *sqlx.Tx) error {
		_, err := tx.NamedExecContext(ctx, q, deliveries)
		return err
	})
}

// ClaimBatch atomically moves up to limit due deliveries to processing and
// returns them joined with their events. Two concurrent workers never
// receive the same row. On a storage error the claim is retried once with
// the optimistic strategy, so a transient deadlock does not fail the whole
// dispatch cycle.
func (r *DeliveriesRepositoryImpl) ClaimBatch(ctx context.Context, limit, lockSeconds int, owner string) ([]model.ClaimedDelivery, error) {
	if limit <= 0 {
		return nil, nil
	}

	if err := r.claimer.claim(ctx, r.db, limit, lockSeconds, owner); err != nil {
		retry := claimer(optimisticClaimer{})
		r.log.Warn("delivery claim failed, retrying once",
			zap.String("claimer", r.claimer.name()),
			zap.String("retry_claimer", retry.name()),
			zap.Error(err))
		if err := retry.claim(ctx, r.db, limit, lockSeconds, owner); err != nil {
			return nil, fmt.Errorf("claim deliveries: %w", err)
		}
	}

	var rows []model.ClaimedDelivery
	err := r.db.SelectContext(ctx, &rows, `
		SELECT `+claimColumns+`
		  FROM outbox_delivery d
		  JOIN outbox_event e ON e.id = d.event_id
		 WHERE d.status = ? AND d.lock_owner = ? AND d.locked_until > NOW()
		 ORDER BY d.available_at ASC, d.created_at ASC, d.id ASC
		 LIMIT ?
	`, model.DeliveryStatusProcessing, owner, limit)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// skipLockedClaimer claims inside one transaction: lock the candidate rows
// with SKIP LOCKED so parallel workers pass each other, then flip them to
// processing.
type skipLockedClaimer struct{}

func (skipLockedClaimer) name() string { return "skip_locked" }

func (skipLockedClaimer) claim(ctx context.Context, db *sqlx.DB, limit, lockSeconds int, owner string) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var ids []string
	err = tx.SelectContext(ctx, &ids, `
		SELECT id
		  FROM outbox_delivery
		 WHERE (status IN (?, ?) AND available_at <= NOW())
		    OR (status = ? AND locked_until IS NOT NULL AND locked_until < NOW())
		 ORDER BY available_at ASC, created_at ASC, id ASC
		 LIMIT ?
		 FOR UPDATE SKIP LOCKED
	`, model.DeliveryStatusPending, model.DeliveryStatusFailed, model.DeliveryStatusProcessing, limit)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return tx.Commit()
	}

	query, args, err := sqlx.In(`
		UPDATE outbox_delivery
		   SET status = ?,
		       lock_owner = ?,
		       locked_until = DATE_ADD(NOW(), INTERVAL ? SECOND),
		       updated_at = NOW()
		 WHERE id IN (?)
	`, model.DeliveryStatusProcessing, owner, lockSeconds, ids)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, db.Rebind(query), args...); err != nil {
		return err
	}

	return tx.Commit()
}

// optimisticClaimer claims one row at a time with a conditional UPDATE; a
// row is won only when RowsAffected is 1. Slower, but works on servers
// without SKIP LOCKED.
type optimisticClaimer struct{}

func (optimisticClaimer) name() string { return "optimistic" }

func (optimisticClaimer) claim(ctx context.Context, db *sqlx.DB, limit, lockSeconds int, owner string) error {
	var ids []string
	err := db.SelectContext(ctx, &ids, `
		SELECT id
		  FROM outbox_delivery
		 WHERE (status IN (?, ?) AND available_at <= NOW())
		    OR (status = ? AND locked_until IS NOT NULL AND locked_until < NOW())
		 ORDER BY available_at ASC, created_at ASC, id ASC
		 LIMIT ?
	`, model.DeliveryStatusPending, model.DeliveryStatusFailed, model.DeliveryStatusProcessing, limit)
	if err != nil {
		return err
	}

	won := 0
	for _, id := range ids {
		res, err := db.ExecContext(ctx, `
			UPDATE outbox_delivery
			   SET status = ?,
			       lock_owner = ?,
			       locked_until = DATE_ADD(NOW(), INTERVAL ? SECOND),
			       updated_at = NOW()
			 WHERE id = ?
			   AND ((status IN (?, ?) AND available_at <= NOW())
			     OR (status = ? AND locked_until IS NOT NULL AND locked_until < NOW()))
		`, model.DeliveryStatusProcessing, owner, lockSeconds,
			id, model.DeliveryStatusPending, model.DeliveryStatusFailed, model.DeliveryStatusProcessing)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err == nil && n == 1 {
			won++
		}
		if won >= limit {
			break
		}
	}
	return nil
}

// MarkPublished finalizes a delivery. Attempts move only on failure.
func (r *DeliveriesRepositoryImpl) MarkPublished(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE outbox_delivery
		   SET status = ?,
		       published_at = NOW(),
		       locked_until = NULL,
		       lock_owner = NULL,
		       last_error = NULL,
		       updated_at = NOW()
		 WHERE id = ?
	`, model.DeliveryStatusPublished, id)
	return err
}

// Reschedule records a failed attempt and makes the delivery eligible again
// at availableAt.
func (r *DeliveriesRepositoryImpl) Reschedule(ctx context.Context, id string, availableAt time.Time, lastError string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE outbox_delivery
		   SET status = ?,
		       attempts = attempts + 1,
		       available_at = ?,
		       locked_until = NULL,
		       lock_owner = NULL,
		       last_error = ?,
		       updated_at = NOW()
		 WHERE id = ?
	`, model.DeliveryStatusFailed, availableAt.UTC(), truncateError(lastError), id)
	return err
}

func (r *DeliveriesRepositoryImpl) MarkDead(ctx context.Context, id string, lastError string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE outbox_delivery
		   SET status = ?,
		       attempts = attempts + 1,
		       locked_until = NULL,
		       lock_owner = NULL,
		       last_error = ?,
		       updated_at = NOW()
		 WHERE id = ?
	`, model.DeliveryStatusDead, truncateError(lastError), id)
	return err
}

// ResetExpiredLocks returns deliveries stuck in processing past their lock
// expiry to pending, so a crashed worker's claims are eventually retried.
// The affected event ids are returned so their status can be resynced.
func (r *DeliveriesRepositoryImpl) ResetExpiredLocks(ctx context.Context) (int64, []string, error) {
	var eventIDs []string
	err := r.db.SelectContext(ctx, &eventIDs, `
		SELECT DISTINCT event_id
		  FROM outbox_delivery
		 WHERE status = ? AND locked_until IS NOT NULL AND locked_until < NOW()
	`, model.DeliveryStatusProcessing)
	if err != nil {
		return 0, nil, err
	}
	if len(eventIDs) == 0 {
		return 0, nil, nil
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE outbox_delivery
		   SET status = ?,
		       locked_until = NULL,
		       lock_owner = NULL,
		       last_error = COALESCE(last_error, 'delivery lock expired'),
		       updated_at = NOW()
		 WHERE status = ? AND locked_until IS NOT NULL AND locked_until < NOW()
	`, model.DeliveryStatusPending, model.DeliveryStatusProcessing)
	if err != nil {
		return 0, nil, err
	}

	n, _ := res.RowsAffected()
	return n, eventIDs, nil
}

// RequeueDead moves up to limit dead deliveries back to pending with a reset
// attempt counter, optionally restricted to one event name.
func (r *DeliveriesRepositoryImpl) RequeueDead(ctx context.Context, limit int, eventName string) (int64, []string, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > 1000 {
		limit = 1000
	}

	q := `
		SELECT d.id, d.event_id
		  FROM outbox_delivery d
		  JOIN outbox_event e ON e.id = d.event_id
		 WHERE d.status = ?
	`
	args := []any{model.DeliveryStatusDead}
	if eventName != "" {
		q += " AND e.event_name = ?"
		args = append(args, eventName)
	}
	q += " ORDER BY d.updated_at DESC, e.occurred_at DESC, d.id DESC LIMIT ?"
	args = append(args, limit)

	var rows []struct {
		ID      string `db:"id"`
		EventID string `db:"event_id"`
	}
	if err := r.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return 0, nil, err
	}
	if len(rows) == 0 {
		return 0, nil, nil
	}

	ids := make([]string, 0, len(rows))
	seen := make(map[string]struct{}, len(rows))
	var eventIDs []string
	for _, row := range rows {
		ids = append(ids, row.ID)
		if _, ok := seen[row.EventID]; !ok {
			seen[row.EventID] = struct{}{}
			eventIDs = append(eventIDs, row.EventID)
		}
	}

	query, args, err := sqlx.In(`
		UPDATE outbox_delivery
		   SET status = ?,
		       attempts = 0,
		       available_at = NOW(),
		       last_error = NULL,
		       updated_at = NOW()
		 WHERE id IN (?) AND status = ?
	`, model.DeliveryStatusPending, ids, model.DeliveryStatusDead)
	if err != nil {
		return 0, nil, err
	}

	res, err := r.db.ExecContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return 0, nil, err
	}

	n, _ := res.RowsAffected()
	return n, eventIDs, nil
}

func (r *DeliveriesRepositoryImpl) CountByStatus(ctx context.Context) (map[model.DeliveryStatus]int, error) {
	var rows []deliverySummaryRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT status, COUNT(*) AS cnt, 0 AS max_attempts FROM outbox_delivery GROUP BY status
	`)
	if err != nil {
		return nil, err
	}

	counts := map[model.DeliveryStatus]int{
		model.DeliveryStatusPending:    0,
		model.DeliveryStatusProcessing: 0,
		model.DeliveryStatusPublished:  0,
		model.DeliveryStatusFailed:     0,
		model.DeliveryStatusDead:       0,
	}
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

// truncateError keeps stored errors inside the column width.
func truncateError(msg string) string {
	const max = 2000
	if len(msg) > max {
		return msg[:max]
	}
	return msg
}
