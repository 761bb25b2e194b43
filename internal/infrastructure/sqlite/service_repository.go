package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fiberline/switchyard/internal/domain"
)

// serviceColumns is the list of columns to select for service instance queries.
const serviceColumns = `id, service_instance_id, service_id, tenant_id, subscriber_id, customer_id, subscription_id,
	name, service_type, plan_id, status, provisioning_status, workflow_id,
	suspension_type, suspension_reason, auto_resume_at,
	service_location, equipment, vlan_id, last_health_check_at, last_health_check_result, metadata,
	scheduled_activation_at, scheduled_termination_at,
	created_at, provisioning_started_at, provisioned_at, activated_at, suspended_at, terminated_at, updated_at`

// ServiceRepository implements domain.ServiceRepository using SQLite.
type ServiceRepository struct {
	db executor
}

// NewServiceRepository creates a service repository bound to the given
// connection or transaction.
func NewServiceRepository(db executor) *ServiceRepository {
	return &ServiceRepository{db: db}
}

// Ensure ServiceRepository implements domain.ServiceRepository.
var _ domain.ServiceRepository = (*ServiceRepository)(nil)

// scanService scans a row into a ServiceModel.
func scanService(scanner interface{ Scan(...any) error }) (*ServiceModel, error) {
	var model ServiceModel
	err := scanner.Scan(
		&model.ID, &model.ServiceInstanceID, &model.ServiceID, &model.TenantID,
		&model.SubscriberID, &model.CustomerID, &model.SubscriptionID,
		&model.Name, &model.ServiceType, &model.PlanID, &model.Status,
		&model.ProvisioningStatus, &model.WorkflowID,
		&model.SuspensionType, &model.SuspensionReason, &model.AutoResumeAt,
		&model.ServiceLocation, &model.Equipment, &model.VLANID,
		&model.LastHealthCheckAt, &model.LastHealthCheckResult, &model.Metadata,
		&model.ScheduledActivationAt, &model.ScheduledTerminationAt,
		&model.CreatedAt, &model.ProvisioningStartedAt, &model.ProvisionedAt,
		&model.ActivatedAt, &model.SuspendedAt, &model.TerminatedAt, &model.UpdatedAt,
	)
	return &model, err
}

// Save persists a service instance to the database.
// For new instances (ID == 0), inserts a new row and sets the instance ID.
// For existing instances (ID > 0), updates the existing row.
func (r *ServiceRepository) Save(instance *domain.ServiceInstance) error {
	model := toServiceModel(instance)

	if instance.ID() == 0 {
		result, err := r.db.Exec(
			`INSERT INTO service_instances (
				service_instance_id, service_id, tenant_id, subscriber_id, customer_id, subscription_id,
				name, service_type, plan_id, status, provisioning_status, workflow_id,
				suspension_type, suspension_reason, auto_resume_at,
				service_location, equipment, vlan_id, last_health_check_at, last_health_check_result, metadata,
				scheduled_activation_at, scheduled_termination_at,
				created_at, provisioning_started_at, provisioned_at, activated_at, suspended_at, terminated_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			model.ServiceInstanceID, model.ServiceID, model.TenantID,
			model.SubscriberID, model.CustomerID, model.SubscriptionID,
			model.Name, model.ServiceType, model.PlanID, model.Status,
			model.ProvisioningStatus, model.WorkflowID,
			model.SuspensionType, model.SuspensionReason, model.AutoResumeAt,
			model.ServiceLocation, model.Equipment, model.VLANID,
			model.LastHealthCheckAt, model.LastHealthCheckResult, model.Metadata,
			model.ScheduledActivationAt, model.ScheduledTerminationAt,
			model.CreatedAt, model.ProvisioningStartedAt, model.ProvisionedAt,
			model.ActivatedAt, model.SuspendedAt, model.TerminatedAt, model.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert service instance: %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}
		instance.SetID(id)
		return nil
	}

	_, err := r.db.Exec(
		`UPDATE service_instances SET
			subscriber_id = ?, customer_id = ?, subscription_id = ?,
			name = ?, service_type = ?, plan_id = ?, status = ?, provisioning_status = ?, workflow_id = ?,
			suspension_type = ?, suspension_reason = ?, auto_resume_at = ?,
			service_location = ?, equipment = ?, vlan_id = ?,
			last_health_check_at = ?, last_health_check_result = ?, metadata = ?,
			scheduled_activation_at = ?, scheduled_termination_at = ?,
			provisioning_started_at = ?, provisioned_at = ?, activated_at = ?, suspended_at = ?, terminated_at = ?, updated_at = ?
		WHERE id = ?`,
		model.SubscriberID, model.CustomerID, model.SubscriptionID,
		model.Name, model.ServiceType, model.PlanID, model.Status,
		model.ProvisioningStatus, model.WorkflowID,
		model.SuspensionType, model.SuspensionReason, model.AutoResumeAt,
		model.ServiceLocation, model.Equipment, model.VLANID,
		model.LastHealthCheckAt, model.LastHealthCheckResult, model.Metadata,
		model.ScheduledActivationAt, model.ScheduledTerminationAt,
		model.ProvisioningStartedAt, model.ProvisionedAt, model.ActivatedAt,
		model.SuspendedAt, model.TerminatedAt, model.UpdatedAt,
		model.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update service instance: %w", err)
	}
	return nil
}

// FindByInstanceID retrieves an instance by its globally unique identifier.
// Returns ServiceNotFoundError if no matching instance exists.
func (r *ServiceRepository) FindByInstanceID(instanceID string) (*domain.ServiceInstance, error) {
	row := r.db.QueryRow(
		`SELECT `+serviceColumns+` FROM service_instances WHERE service_instance_id = ?`,
		instanceID,
	)
	model, err := scanService(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.ServiceNotFoundError{ServiceInstanceID: instanceID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find service instance: %w", err)
	}
	return model.toDomain(), nil
}

// FindByServiceID retrieves an instance by its service id within a tenant.
// Returns ServiceNotFoundError if no matching instance exists.
func (r *ServiceRepository) FindByServiceID(tenantID, serviceID string) (*domain.ServiceInstance, error) {
	row := r.db.QueryRow(
		`SELECT `+serviceColumns+` FROM service_instances WHERE tenant_id = ? AND service_id = ?`,
		tenantID, serviceID,
	)
	model, err := scanService(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.ServiceNotFoundError{ServiceInstanceID: serviceID, TenantID: tenantID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find service instance by service id: %w", err)
	}
	return model.toDomain(), nil
}

// ListWithFilter retrieves instances for a tenant matching the given filter.
// Results are ordered by created_at descending (newest first).
func (r *ServiceRepository) ListWithFilter(tenantID string, filter domain.ServiceListFilter) ([]*domain.ServiceInstance, error) {
	query := `SELECT ` + serviceColumns + ` FROM service_instances WHERE tenant_id = ?`
	args := []any{tenantID}

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.SubscriberID != "" {
		query += ` AND subscriber_id = ?`
		args = append(args, filter.SubscriberID)
	}

	query += ` ORDER BY created_at DESC, id DESC`

	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	return r.list(query, args...)
}

// ListDueForActivation retrieves pending instances whose scheduled activation
// date is at or before the cutoff, oldest first, capped at limit.
func (r *ServiceRepository) ListDueForActivation(cutoff time.Time, limit int) ([]*domain.ServiceInstance, error) {
	query := `SELECT ` + serviceColumns + ` FROM service_instances
		WHERE scheduled_activation_at IS NOT NULL AND scheduled_activation_at <= ?
		  AND status IN ('pending', 'provisioning')
		ORDER BY scheduled_activation_at ASC`
	args := []any{cutoff.Unix()}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return r.list(query, args...)
}

// ListDueForTermination retrieves terminating instances whose scheduled
// termination date is at or before the cutoff, oldest first, capped at limit.
func (r *ServiceRepository) ListDueForTermination(cutoff time.Time, limit int) ([]*domain.ServiceInstance, error) {
	query := `SELECT ` + serviceColumns + ` FROM service_instances
		WHERE scheduled_termination_at IS NOT NULL AND scheduled_termination_at <= ?
		  AND status = 'terminating'
		ORDER BY scheduled_termination_at ASC`
	args := []any{cutoff.Unix()}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return r.list(query, args...)
}

func (r *ServiceRepository) list(query string, args ...any) ([]*domain.ServiceInstance, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list service instances: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var instances []*domain.ServiceInstance
	for rows.Next() {
		model, err := scanService(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan service instance row: %w", err)
		}
		instances = append(instances, model.toDomain())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating service instance rows: %w", err)
	}
	return instances, nil
}
