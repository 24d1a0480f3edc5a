package repository

import (
	"context"
	"strings"

	"github.com/fibhq/outbox-bridge/internal/model"
	"github.com/jmoiron/sqlx"
)

// DeliveryLogRepository archives dispatch outcomes in ClickHouse for
// reporting. Writes are best-effort; the MySQL tables stay the source of
// truth.
type DeliveryLogRepository interface {
	InsertOutcomes(ctx context.Context, outcomes []model.DeliveryOutcome) error
	ListRecent(ctx context.Context, eventName, outcome string, limit, offset int) ([]model.DeliveryOutcome, error)
}

type deliveryLogRepository struct {
	ch *sqlx.DB // ClickHouse connection
}

func NewDeliveryLogRepository(ch *sqlx.DB) DeliveryLogRepository {
	return &deliveryLogRepository{ch: ch}
}

func (r *deliveryLogRepository) InsertOutcomes(ctx context.Context, outcomes []model.DeliveryOutcome) error {
	if len(outcomes) == 0 {
		return nil
	}

	var sb strings.Builder
	args := make([]any, 0, len(outcomes)*9)

	sb.WriteString(`
		INSERT INTO outbox.delivery_log
		    (delivery_id, event_id, event_name, destination_key, destination_type,
		     outcome, attempt, error, created_at)
		VALUES `)
	for i, o := range outcomes {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString("(?, ?, ?, ?, ?, ?, ?, ?, ?)")
		args = append(args,
			o.DeliveryID, o.EventID, o.EventName, o.DestinationKey, o.DestinationType,
			o.Outcome, o.Attempt, o.Error, o.CreatedAt,
		)
	}

	_, err := r.ch.ExecContext(ctx, sb.String(), args...)
	return err
}

func (r *deliveryLogRepository) ListRecent(ctx context.Context, eventName, outcome string, limit, offset int) ([]model.DeliveryOutcome, error) {
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	q := `
		SELECT delivery_id, event_id, event_name, destination_key, destination_type,
		       outcome, attempt, error, created_at
		FROM outbox.delivery_log
		WHERE 1 = 1
	`
	args := []any{}

	if eventName != "" {
		q += " AND event_name = ?"
		args = append(args, eventName)
	}
	if outcome != "" {
		q += " AND outcome = ?"
		args = append(args, outcome)
	}

	q += " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	var rows []model.DeliveryOutcome
	if err := r.ch.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, err
	}
	return rows, nil
}
