package sqlite

import (
	"fmt"

	"github.com/fiberline/switchyard/internal/domain"
)

// eventColumns is the list of columns to select for lifecycle event queries.
const eventColumns = `id, event_id, kind, service_instance_id, tenant_id,
	previous_status, new_status, description, success, triggered_by, event_data, duration_ms, created_at`

// EventRepository implements domain.EventRepository using SQLite. Events are
// append-only; there is no update path.
type EventRepository struct {
	db executor
}

// NewEventRepository creates an event repository bound to the given
// connection or transaction.
func NewEventRepository(db executor) *EventRepository {
	return &EventRepository{db: db}
}

// Ensure EventRepository implements domain.EventRepository.
var _ domain.EventRepository = (*EventRepository)(nil)

// scanEvent scans a row into an EventModel.
func scanEvent(scanner interface{ Scan(...any) error }) (*EventModel, error) {
	var model EventModel
	err := scanner.Scan(
		&model.ID, &model.EventID, &model.Kind, &model.ServiceInstanceID, &model.TenantID,
		&model.PreviousStatus, &model.NewStatus, &model.Description,
		&model.Success, &model.TriggeredBy, &model.EventData, &model.DurationMS,
		&model.CreatedAt,
	)
	return &model, err
}

// Save appends a lifecycle event. Events are immutable so a non-zero ID is
// rejected.
func (r *EventRepository) Save(event *domain.LifecycleEvent) error {
	if event.ID() != 0 {
		return fmt.Errorf("lifecycle event %q already persisted", event.EventID())
	}

	model := toEventModel(event)
	result, err := r.db.Exec(
		`INSERT INTO lifecycle_events (
			event_id, kind, service_instance_id, tenant_id,
			previous_status, new_status, description, success, triggered_by, event_data, duration_ms, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		model.EventID, model.Kind, model.ServiceInstanceID, model.TenantID,
		model.PreviousStatus, model.NewStatus, model.Description,
		model.Success, model.TriggeredBy, model.EventData, model.DurationMS,
		model.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert lifecycle event: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	event.SetID(id)
	return nil
}

// ListByService retrieves events for a service instance, newest first,
// capped at limit (0 means no limit).
func (r *EventRepository) ListByService(serviceInstanceID string, limit int) ([]*domain.LifecycleEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM lifecycle_events
		WHERE service_instance_id = ? ORDER BY created_at DESC, id DESC`
	args := []any{serviceInstanceID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list lifecycle events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []*domain.LifecycleEvent
	for rows.Next() {
		model, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan lifecycle event row: %w", err)
		}
		events = append(events, model.toDomain())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating lifecycle event rows: %w", err)
	}
	return events, nil
}
