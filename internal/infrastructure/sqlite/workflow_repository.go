package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fiberline/switchyard/internal/domain"
)

// workflowColumns is the list of columns to select for workflow queries.
const workflowColumns = `id, workflow_id, kind, status, tenant_id, subscriber_id, initiator, initiator_kind,
	input_data, output_data, context, current_step, total_steps, retry_count, max_retries,
	error_message, compensation_error,
	created_at, started_at, completed_at, failed_at, compensation_started_at, compensation_completed_at, updated_at`

// WorkflowRepository implements domain.WorkflowRepository using SQLite.
type WorkflowRepository struct {
	db executor
}

// NewWorkflowRepository creates a workflow repository bound to the given
// connection or transaction.
func NewWorkflowRepository(db executor) *WorkflowRepository {
	return &WorkflowRepository{db: db}
}

// Ensure WorkflowRepository implements domain.WorkflowRepository.
var _ domain.WorkflowRepository = (*WorkflowRepository)(nil)

// scanWorkflow scans a row into a WorkflowModel.
func scanWorkflow(scanner interface{ Scan(...any) error }) (*WorkflowModel, error) {
	var model WorkflowModel
	err := scanner.Scan(
		&model.ID, &model.WorkflowID, &model.Kind, &model.Status,
		&model.TenantID, &model.SubscriberID, &model.Initiator, &model.InitiatorKind,
		&model.InputData, &model.OutputData, &model.Context,
		&model.CurrentStep, &model.TotalSteps, &model.RetryCount, &model.MaxRetries,
		&model.ErrorMessage, &model.CompensationError,
		&model.CreatedAt, &model.StartedAt, &model.CompletedAt, &model.FailedAt,
		&model.CompensationStartedAt, &model.CompensationCompletedAt, &model.UpdatedAt,
	)
	return &model, err
}

// Save persists a workflow to the database.
// For new workflows (ID == 0), inserts a new row and sets the workflow ID.
// For existing workflows (ID > 0), updates the existing row.
func (r *WorkflowRepository) Save(workflow *domain.Workflow) error {
	model := toWorkflowModel(workflow)

	if workflow.ID() == 0 {
		result, err := r.db.Exec(
			`INSERT INTO workflows (
				workflow_id, kind, status, tenant_id, subscriber_id, initiator, initiator_kind,
				input_data, output_data, context, current_step, total_steps, retry_count, max_retries,
				error_message, compensation_error,
				created_at, started_at, completed_at, failed_at, compensation_started_at, compensation_completed_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			model.WorkflowID, model.Kind, model.Status, model.TenantID, model.SubscriberID,
			model.Initiator, model.InitiatorKind,
			model.InputData, model.OutputData, model.Context,
			model.CurrentStep, model.TotalSteps, model.RetryCount, model.MaxRetries,
			model.ErrorMessage, model.CompensationError,
			model.CreatedAt, model.StartedAt, model.CompletedAt, model.FailedAt,
			model.CompensationStartedAt, model.CompensationCompletedAt, model.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert workflow: %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}
		workflow.SetID(id)
		return nil
	}

	_, err := r.db.Exec(
		`UPDATE workflows SET
			status = ?, subscriber_id = ?, initiator = ?, initiator_kind = ?,
			input_data = ?, output_data = ?, context = ?,
			current_step = ?, total_steps = ?, retry_count = ?, max_retries = ?,
			error_message = ?, compensation_error = ?,
			started_at = ?, completed_at = ?, failed_at = ?,
			compensation_started_at = ?, compensation_completed_at = ?, updated_at = ?
		WHERE id = ?`,
		model.Status, model.SubscriberID, model.Initiator, model.InitiatorKind,
		model.InputData, model.OutputData, model.Context,
		model.CurrentStep, model.TotalSteps, model.RetryCount, model.MaxRetries,
		model.ErrorMessage, model.CompensationError,
		model.StartedAt, model.CompletedAt, model.FailedAt,
		model.CompensationStartedAt, model.CompensationCompletedAt, model.UpdatedAt,
		model.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update workflow: %w", err)
	}
	return nil
}

// FindByWorkflowID retrieves a workflow by its run identifier within a tenant.
// Returns WorkflowNotFoundError if no matching workflow exists.
func (r *WorkflowRepository) FindByWorkflowID(tenantID, workflowID string) (*domain.Workflow, error) {
	row := r.db.QueryRow(
		`SELECT `+workflowColumns+` FROM workflows WHERE tenant_id = ? AND workflow_id = ?`,
		tenantID, workflowID,
	)
	model, err := scanWorkflow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.WorkflowNotFoundError{WorkflowID: workflowID, TenantID: tenantID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find workflow by workflow id: %w", err)
	}
	return model.toDomain(), nil
}

// FindByID retrieves a workflow by its internal database ID.
// Returns WorkflowNotFoundError if no matching workflow exists.
func (r *WorkflowRepository) FindByID(id int64) (*domain.Workflow, error) {
	row := r.db.QueryRow(
		`SELECT `+workflowColumns+` FROM workflows WHERE id = ?`,
		id,
	)
	model, err := scanWorkflow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.WorkflowNotFoundError{WorkflowID: fmt.Sprintf("#%d", id)}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find workflow by id: %w", err)
	}
	return model.toDomain(), nil
}

// ListWithFilter retrieves workflows for a tenant matching the given filter.
// Results are ordered by created_at descending (newest first).
func (r *WorkflowRepository) ListWithFilter(tenantID string, filter domain.WorkflowListFilter) ([]*domain.Workflow, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflows WHERE tenant_id = ?`
	args := []any{tenantID}

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Kind != "" {
		query += ` AND kind = ?`
		args = append(args, string(filter.Kind))
	}
	if filter.SubscriberID != "" {
		query += ` AND subscriber_id = ?`
		args = append(args, filter.SubscriberID)
	}

	query += ` ORDER BY created_at DESC, id DESC`

	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += ` OFFSET ?`
			args = append(args, filter.Offset)
		}
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var workflows []*domain.Workflow
	for rows.Next() {
		model, err := scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow row: %w", err)
		}
		workflows = append(workflows, model.toDomain())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating workflow rows: %w", err)
	}

	return workflows, nil
}

// CountByStatus returns workflow counts grouped by status for a tenant.
func (r *WorkflowRepository) CountByStatus(tenantID string) (map[domain.WorkflowStatus]int, error) {
	rows, err := r.db.Query(
		`SELECT status, COUNT(*) FROM workflows WHERE tenant_id = ? GROUP BY status`,
		tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to count workflows by status: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[domain.WorkflowStatus]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan status count row: %w", err)
		}
		counts[domain.WorkflowStatus(status)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating status count rows: %w", err)
	}
	return counts, nil
}

// CountByKind returns workflow counts grouped by kind for a tenant.
func (r *WorkflowRepository) CountByKind(tenantID string) (map[domain.WorkflowKind]int, error) {
	rows, err := r.db.Query(
		`SELECT kind, COUNT(*) FROM workflows WHERE tenant_id = ? GROUP BY kind`,
		tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to count workflows by kind: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[domain.WorkflowKind]int)
	for rows.Next() {
		var kind string
		var count int
		if err := rows.Scan(&kind, &count); err != nil {
			return nil, fmt.Errorf("failed to scan kind count row: %w", err)
		}
		counts[domain.WorkflowKind(kind)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating kind count rows: %w", err)
	}
	return counts, nil
}

// AverageCompletionSeconds returns the mean completed_at - started_at of
// completed workflows for a tenant, or 0 when none completed.
func (r *WorkflowRepository) AverageCompletionSeconds(tenantID string) (float64, error) {
	row := r.db.QueryRow(
		`SELECT COALESCE(AVG(completed_at - started_at), 0) FROM workflows
		 WHERE tenant_id = ? AND status = 'completed'
		   AND completed_at IS NOT NULL AND started_at IS NOT NULL`,
		tenantID,
	)
	var avg float64
	if err := row.Scan(&avg); err != nil {
		return 0, fmt.Errorf("failed to compute average completion time: %w", err)
	}
	return avg, nil
}

// CountFailedSince counts workflows that failed at or after the cutoff.
func (r *WorkflowRepository) CountFailedSince(tenantID string, cutoff time.Time) (int, error) {
	row := r.db.QueryRow(
		`SELECT COUNT(*) FROM workflows
		 WHERE tenant_id = ? AND failed_at IS NOT NULL AND failed_at >= ?`,
		tenantID, cutoff.Unix(),
	)
	var count int
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count failed workflows: %w", err)
	}
	return count, nil
}
