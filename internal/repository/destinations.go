package repository

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/fibhq/outbox-bridge/internal/model"
	"github.com/jmoiron/sqlx"
)

// DestinationsRepository reads and writes destination and route definitions.
// The list methods back the route resolver.
type DestinationsRepository interface {
	ListActiveDestinations(ctx context.Context) ([]model.Destination, error)
	ListActiveRoutes(ctx context.Context) ([]model.Route, error)
	GetDestinationByID(ctx context.Context, id string) (*model.Destination, error)
	UpsertDestination(ctx context.Context, d model.Destination) error
	UpsertRoute(ctx context.Context, route model.Route) error
}

type DestinationsRepositoryImpl struct {
	db *sqlx.DB
}

func NewDestinationsRepository(db *sqlx.DB) *DestinationsRepositoryImpl {
	return &DestinationsRepositoryImpl{db: db}
}

var _ DestinationsRepository = (*DestinationsRepositoryImpl)(nil)

func (r *DestinationsRepositoryImpl) ListActiveDestinations(ctx context.Context) ([]model.Destination, error) {
	var rows []model.Destination
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, name, technical_name, type, is_active, config, created_at, updated_at
		  FROM outbox_destination
		 WHERE is_active = 1
	`)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

type routeRow struct {
	ID           string       `db:"id"`
	Name         string       `db:"name"`
	EventPattern string       `db:"event_pattern"`
	TargetKeys   []byte       `db:"target_keys"`
	Priority     int          `db:"priority"`
	Active       bool         `db:"is_active"`
	CreatedAt    sql.NullTime `db:"created_at"`
	UpdatedAt    sql.NullTime `db:"updated_at"`
}

func (r *DestinationsRepositoryImpl) ListActiveRoutes(ctx context.Context) ([]model.Route, error) {
	var rows []routeRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, name, event_pattern, target_keys, priority, is_active, created_at, updated_at
		  FROM outbox_route
		 WHERE is_active = 1
		 ORDER BY priority ASC, id ASC
	`)
	if err != nil {
		return nil, err
	}

	routes := make([]model.Route, 0, len(rows))
	for _, row := range rows {
		var keys []string
		if len(row.TargetKeys) > 0 {
			if err := json.Unmarshal(row.TargetKeys, &keys); err != nil {
				return nil, err
			}
		}

		route := model.Route{
			ID:           row.ID,
			Name:         row.Name,
			EventPattern: row.EventPattern,
			TargetKeys:   keys,
			Priority:     row.Priority,
			Active:       row.Active,
			CreatedAt:    row.CreatedAt.Time,
		}
		if row.UpdatedAt.Valid {
			t := row.UpdatedAt.Time
			route.UpdatedAt = &t
		}
		routes = append(routes, route)
	}
	return routes, nil
}

func (r *DestinationsRepositoryImpl) GetDestinationByID(ctx context.Context, id string) (*model.Destination, error) {
	var d model.Destination
	err := r.db.GetContext(ctx, &d, `
		SELECT id, name, technical_name, type, is_active, config, created_at, updated_at
		  FROM outbox_destination
		 WHERE id = ? LIMIT 1
	`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// UpsertDestination inserts or refreshes a destination keyed by its technical
// name. Used by seeding and admin writes.
func (r *DestinationsRepositoryImpl) UpsertDestination(ctx context.Context, d model.Destination) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO outbox_destination
		    (id, name, technical_name, type, is_active, config, created_at, updated_at)
		VALUES
		    (?, ?, ?, ?, ?, ?, NOW(), NOW())
		ON DUPLICATE KEY UPDATE
		    name = VALUES(name),
		    type = VALUES(type),
		    is_active = VALUES(is_active),
		    config = VALUES(config),
		    updated_at = NOW()
	`, d.ID, d.Name, d.TechnicalName, d.Type, d.Active, d.Config)
	return err
}

func (r *DestinationsRepositoryImpl) UpsertRoute(ctx context.Context, route model.Route) error {
	keys, err := json.Marshal(route.TargetKeys)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO outbox_route
		    (id, name, event_pattern, target_keys, priority, is_active, created_at, updated_at)
		VALUES
		    (?, ?, ?, ?, ?, ?, NOW(), NOW())
		ON DUPLICATE KEY UPDATE
		    name = VALUES(name),
		    event_pattern = VALUES(event_pattern),
		    target_keys = VALUES(target_keys),
		    priority = VALUES(priority),
		    is_active = VALUES(is_active),
		    updated_at = NOW()
	`, route.ID, route.Name, route.EventPattern, keys, route.Priority, route.Active)
	return err
}
