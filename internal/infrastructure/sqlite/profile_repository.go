package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fiberline/switchyard/internal/domain"
)

// profileColumns is the list of columns to select for network profile queries.
const profileColumns = `id, subscriber_id, tenant_id, circuit_id, remote_id,
	service_vlan, inner_vlan, qinq_enabled, static_ipv4, static_ipv6,
	ipv4_address, ipv4_state, ipv4_ipam_id, ipv4_allocated_at, ipv4_activated_at, ipv4_suspended_at, ipv4_revoked_at,
	ipv6_assignment_mode, delegated_prefix, prefix_length, ipv6_state, ipv6_ipam_id,
	ipv6_allocated_at, ipv6_activated_at, ipv6_suspended_at, ipv6_revoked_at,
	option82_policy, radius_username, metadata, created_at, updated_at, deleted_at`

// ProfileRepository implements domain.ProfileRepository using SQLite.
type ProfileRepository struct {
	db executor
}

// NewProfileRepository creates a profile repository bound to the given
// connection or transaction.
func NewProfileRepository(db executor) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// Ensure ProfileRepository implements domain.ProfileRepository.
var _ domain.ProfileRepository = (*ProfileRepository)(nil)

// scanProfile scans a row into a ProfileModel.
func scanProfile(scanner interface{ Scan(...any) error }) (*ProfileModel, error) {
	var model ProfileModel
	err := scanner.Scan(
		&model.ID, &model.SubscriberID, &model.TenantID, &model.CircuitID, &model.RemoteID,
		&model.ServiceVLAN, &model.InnerVLAN, &model.QinQEnabled,
		&model.StaticIPv4, &model.StaticIPv6,
		&model.IPv4Address, &model.IPv4State, &model.IPv4IPAMID,
		&model.IPv4AllocatedAt, &model.IPv4ActivatedAt, &model.IPv4SuspendedAt, &model.IPv4RevokedAt,
		&model.IPv6AssignmentMode, &model.DelegatedPrefix, &model.PrefixLength,
		&model.IPv6State, &model.IPv6IPAMID,
		&model.IPv6AllocatedAt, &model.IPv6ActivatedAt, &model.IPv6SuspendedAt, &model.IPv6RevokedAt,
		&model.Option82Policy, &model.RadiusUsername, &model.Metadata,
		&model.CreatedAt, &model.UpdatedAt, &model.DeletedAt,
	)
	return &model, err
}

// Save persists a network profile to the database.
// For new profiles (ID == 0), inserts a new row and sets the profile ID.
// For existing profiles (ID > 0), updates the existing row.
func (r *ProfileRepository) Save(profile *domain.SubscriberNetworkProfile) error {
	model := toProfileModel(profile)

	if profile.ID() == 0 {
		result, err := r.db.Exec(
			`INSERT INTO network_profiles (
				subscriber_id, tenant_id, circuit_id, remote_id,
				service_vlan, inner_vlan, qinq_enabled, static_ipv4, static_ipv6,
				ipv4_address, ipv4_state, ipv4_ipam_id, ipv4_allocated_at, ipv4_activated_at, ipv4_suspended_at, ipv4_revoked_at,
				ipv6_assignment_mode, delegated_prefix, prefix_length, ipv6_state, ipv6_ipam_id,
				ipv6_allocated_at, ipv6_activated_at, ipv6_suspended_at, ipv6_revoked_at,
				option82_policy, radius_username, metadata, created_at, updated_at, deleted_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			model.SubscriberID, model.TenantID, model.CircuitID, model.RemoteID,
			model.ServiceVLAN, model.InnerVLAN, model.QinQEnabled,
			model.StaticIPv4, model.StaticIPv6,
			model.IPv4Address, model.IPv4State, model.IPv4IPAMID,
			model.IPv4AllocatedAt, model.IPv4ActivatedAt, model.IPv4SuspendedAt, model.IPv4RevokedAt,
			model.IPv6AssignmentMode, model.DelegatedPrefix, model.PrefixLength,
			model.IPv6State, model.IPv6IPAMID,
			model.IPv6AllocatedAt, model.IPv6ActivatedAt, model.IPv6SuspendedAt, model.IPv6RevokedAt,
			model.Option82Policy, model.RadiusUsername, model.Metadata,
			model.CreatedAt, model.UpdatedAt, model.DeletedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert network profile: %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}
		profile.SetID(id)
		return nil
	}

	_, err := r.db.Exec(
		`UPDATE network_profiles SET
			circuit_id = ?, remote_id = ?, service_vlan = ?, inner_vlan = ?, qinq_enabled = ?,
			static_ipv4 = ?, static_ipv6 = ?,
			ipv4_address = ?, ipv4_state = ?, ipv4_ipam_id = ?,
			ipv4_allocated_at = ?, ipv4_activated_at = ?, ipv4_suspended_at = ?, ipv4_revoked_at = ?,
			ipv6_assignment_mode = ?, delegated_prefix = ?, prefix_length = ?, ipv6_state = ?, ipv6_ipam_id = ?,
			ipv6_allocated_at = ?, ipv6_activated_at = ?, ipv6_suspended_at = ?, ipv6_revoked_at = ?,
			option82_policy = ?, radius_username = ?, metadata = ?, updated_at = ?, deleted_at = ?
		WHERE id = ?`,
		model.CircuitID, model.RemoteID, model.ServiceVLAN, model.InnerVLAN, model.QinQEnabled,
		model.StaticIPv4, model.StaticIPv6,
		model.IPv4Address, model.IPv4State, model.IPv4IPAMID,
		model.IPv4AllocatedAt, model.IPv4ActivatedAt, model.IPv4SuspendedAt, model.IPv4RevokedAt,
		model.IPv6AssignmentMode, model.DelegatedPrefix, model.PrefixLength,
		model.IPv6State, model.IPv6IPAMID,
		model.IPv6AllocatedAt, model.IPv6ActivatedAt, model.IPv6SuspendedAt, model.IPv6RevokedAt,
		model.Option82Policy, model.RadiusUsername, model.Metadata,
		model.UpdatedAt, model.DeletedAt,
		model.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update network profile: %w", err)
	}
	return nil
}

// FindBySubscriber retrieves the live profile for a subscriber.
// Returns ProfileNotFoundError if no matching profile exists.
// Soft-deleted profiles are not returned.
func (r *ProfileRepository) FindBySubscriber(tenantID, subscriberID string) (*domain.SubscriberNetworkProfile, error) {
	row := r.db.QueryRow(
		`SELECT `+profileColumns+` FROM network_profiles
		 WHERE tenant_id = ? AND subscriber_id = ? AND deleted_at IS NULL`,
		tenantID, subscriberID,
	)
	model, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.ProfileNotFoundError{SubscriberID: subscriberID, TenantID: tenantID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find network profile: %w", err)
	}
	return model.toDomain(), nil
}

// Delete performs a soft delete of the live profile for a subscriber.
// Returns ProfileNotFoundError if no matching profile exists.
func (r *ProfileRepository) Delete(tenantID, subscriberID string) error {
	now := time.Now().Unix()
	result, err := r.db.Exec(
		`UPDATE network_profiles SET deleted_at = ?, updated_at = ?
		 WHERE tenant_id = ? AND subscriber_id = ? AND deleted_at IS NULL`,
		now, now, tenantID, subscriberID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete network profile: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return &domain.ProfileNotFoundError{SubscriberID: subscriberID, TenantID: tenantID}
	}
	return nil
}
