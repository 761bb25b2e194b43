package sqlite

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/fiberline/switchyard/internal/domain"
)

// stepColumns is the list of columns to select for step queries.
const stepColumns = `id, workflow_id, name, sequence, kind, target_system, status,
	handler_name, compensation_handler_name, input_data, output_data, compensation_data,
	retry_count, max_retries, error_message, compensation_error,
	created_at, started_at, completed_at, compensated_at, updated_at`

// StepRepository implements domain.StepRepository using SQLite.
type StepRepository struct {
	db executor
}

// NewStepRepository creates a step repository bound to the given connection
// or transaction.
func NewStepRepository(db executor) *StepRepository {
	return &StepRepository{db: db}
}

// Ensure StepRepository implements domain.StepRepository.
var _ domain.StepRepository = (*StepRepository)(nil)

// scanStep scans a row into a StepModel.
func scanStep(scanner interface{ Scan(...any) error }) (*StepModel, error) {
	var model StepModel
	err := scanner.Scan(
		&model.ID, &model.WorkflowID, &model.Name, &model.Sequence,
		&model.Kind, &model.TargetSystem, &model.Status,
		&model.HandlerName, &model.CompensationHandlerName,
		&model.InputData, &model.OutputData, &model.CompensationData,
		&model.RetryCount, &model.MaxRetries,
		&model.ErrorMessage, &model.CompensationError,
		&model.CreatedAt, &model.StartedAt, &model.CompletedAt, &model.CompensatedAt, &model.UpdatedAt,
	)
	return &model, err
}

// Save persists a step to the database.
// For new steps (ID == 0), inserts a new row and sets the step ID.
// For existing steps (ID > 0), updates the existing row.
func (r *StepRepository) Save(step *domain.WorkflowStep) error {
	model := toStepModel(step)

	if step.ID() == 0 {
		result, err := r.db.Exec(
			`INSERT INTO workflow_steps (
				workflow_id, name, sequence, kind, target_system, status,
				handler_name, compensation_handler_name, input_data, output_data, compensation_data,
				retry_count, max_retries, error_message, compensation_error,
				created_at, started_at, completed_at, compensated_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			model.WorkflowID, model.Name, model.Sequence, model.Kind, model.TargetSystem, model.Status,
			model.HandlerName, model.CompensationHandlerName,
			model.InputData, model.OutputData, model.CompensationData,
			model.RetryCount, model.MaxRetries, model.ErrorMessage, model.CompensationError,
			model.CreatedAt, model.StartedAt, model.CompletedAt, model.CompensatedAt, model.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert step: %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}
		step.SetID(id)
		return nil
	}

	_, err := r.db.Exec(
		`UPDATE workflow_steps SET
			status = ?, input_data = ?, output_data = ?, compensation_data = ?,
			retry_count = ?, error_message = ?, compensation_error = ?,
			started_at = ?, completed_at = ?, compensated_at = ?, updated_at = ?
		WHERE id = ?`,
		model.Status, model.InputData, model.OutputData, model.CompensationData,
		model.RetryCount, model.ErrorMessage, model.CompensationError,
		model.StartedAt, model.CompletedAt, model.CompensatedAt, model.UpdatedAt,
		model.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update step: %w", err)
	}
	return nil
}

// FindBySequence retrieves the step at the given sequence within a workflow.
// Returns StepNotFoundError if no matching step exists.
func (r *StepRepository) FindBySequence(workflowID int64, sequence int) (*domain.WorkflowStep, error) {
	row := r.db.QueryRow(
		`SELECT `+stepColumns+` FROM workflow_steps WHERE workflow_id = ? AND sequence = ?`,
		workflowID, sequence,
	)
	model, err := scanStep(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.StepNotFoundError{WorkflowID: workflowID, Sequence: sequence}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find step by sequence: %w", err)
	}
	return model.toDomain(), nil
}

// ListByWorkflow retrieves all steps of a workflow ordered by ascending
// sequence. This is the forward execution order.
func (r *StepRepository) ListByWorkflow(workflowID int64) ([]*domain.WorkflowStep, error) {
	return r.list(
		`SELECT `+stepColumns+` FROM workflow_steps WHERE workflow_id = ? ORDER BY sequence ASC`,
		workflowID,
	)
}

// ListCompletedDescending retrieves the completed steps of a workflow ordered
// by descending sequence. This is the compensation walk order.
func (r *StepRepository) ListCompletedDescending(workflowID int64) ([]*domain.WorkflowStep, error) {
	return r.list(
		`SELECT `+stepColumns+` FROM workflow_steps
		 WHERE workflow_id = ? AND status = 'completed' ORDER BY sequence DESC`,
		workflowID,
	)
}

func (r *StepRepository) list(query string, args ...any) ([]*domain.WorkflowStep, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list steps: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var steps []*domain.WorkflowStep
	for rows.Next() {
		model, err := scanStep(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan step row: %w", err)
		}
		steps = append(steps, model.toDomain())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating step rows: %w", err)
	}
	return steps, nil
}

// CountCompensated returns how many steps across a tenant's workflows ended
// compensated.
func (r *StepRepository) CountCompensated(tenantID string) (int, error) {
	row := r.db.QueryRow(
		`SELECT COUNT(*) FROM workflow_steps s
		 JOIN workflows w ON w.id = s.workflow_id
		 WHERE w.tenant_id = ? AND s.status = 'compensated'`,
		tenantID,
	)
	var count int
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count compensated steps: %w", err)
	}
	return count, nil
}
