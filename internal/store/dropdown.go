package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/materialdesk/apiserver/types"
)

// DropdownRepository handles persistence for the controlled vocabularies.
type DropdownRepository struct {
	db *sql.DB
}

func NewDropdownRepository(db *sql.DB) *DropdownRepository {
	return &DropdownRepository{db: db}
}

const dropdownColumns = `id, type, label, value, is_active, created_at, updated_at`

func scanDropdown(row interface{ Scan(...any) error }) (types.Dropdown, error) {
	var d types.Dropdown
	err := row.Scan(
		&d.ID,
		&d.Type,
		&d.Label,
		&d.Value,
		&d.IsActive,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	return d, err
}

func (r *DropdownRepository) Create(ctx context.Context, dropdown types.Dropdown) (types.Dropdown, error) {
	now := time.Now()
	dropdown.CreatedAt = now
	dropdown.UpdatedAt = now
	dropdown.Label = strings.TrimSpace(dropdown.Label)
	dropdown.Value = strings.TrimSpace(dropdown.Value)
	dropdown.IsActive = true

	const query = `
		INSERT INTO dropdowns (type, label, value, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		dropdown.Type,
		dropdown.Label,
		dropdown.Value,
		dropdown.IsActive,
		dropdown.CreatedAt,
		dropdown.UpdatedAt,
	).Scan(&dropdown.ID); err != nil {
		return types.Dropdown{}, classify(err)
	}
	return dropdown, nil
}

func (r *DropdownRepository) GetByID(ctx context.Context, id int) (types.Dropdown, error) {
	const query = `SELECT ` + dropdownColumns + ` FROM dropdowns WHERE id = $1`
	dropdown, err := scanDropdown(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Dropdown{}, ErrNotFound
		}
		return types.Dropdown{}, err
	}
	return dropdown, nil
}

// ListByType returns the entries of one vocabulary family ordered by
// label, optionally restricted to active rows.
func (r *DropdownRepository) ListByType(ctx context.Context, dropdownType string, activeOnly bool) ([]types.Dropdown, error) {
	query := `SELECT ` + dropdownColumns + ` FROM dropdowns WHERE type = $1`
	if activeOnly {
		query += ` AND is_active = true`
	}
	query += ` ORDER BY label ASC`

	rows, err := r.db.QueryContext(ctx, query, dropdownType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	dropdowns := make([]types.Dropdown, 0)
	for rows.Next() {
		dropdown, err := scanDropdown(rows)
		if err != nil {
			return nil, err
		}
		dropdowns = append(dropdowns, dropdown)
	}
	return dropdowns, rows.Err()
}

// GetByTypeAndValue is the exact-match lookup backing uniqueness checks.
// It matches active and inactive rows alike.
func (r *DropdownRepository) GetByTypeAndValue(ctx context.Context, dropdownType, value string) (types.Dropdown, error) {
	const query = `SELECT ` + dropdownColumns + ` FROM dropdowns WHERE type = $1 AND value = $2`
	dropdown, err := scanDropdown(r.db.QueryRowContext(ctx, query, dropdownType, value))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Dropdown{}, ErrNotFound
		}
		return types.Dropdown{}, err
	}
	return dropdown, nil
}

// Update applies the supplied patch fields. A value change is re-checked
// against the (type, value) uniqueness invariant here rather than
// trusting the caller; the unique index is the backstop either way.
func (r *DropdownRepository) Update(ctx context.Context, id int, patch types.DropdownPatch) (types.Dropdown, error) {
	if patch.IsEmpty() {
		return types.Dropdown{}, ErrNoFields
	}

	if patch.Value != nil {
		current, err := r.GetByID(ctx, id)
		if err != nil {
			return types.Dropdown{}, err
		}
		value := strings.TrimSpace(*patch.Value)
		if value != current.Value {
			existing, err := r.GetByTypeAndValue(ctx, current.Type, value)
			if err == nil && existing.ID != id {
				return types.Dropdown{}, ErrConflict
			}
			if err != nil && !errors.Is(err, ErrNotFound) {
				return types.Dropdown{}, err
			}
		}
	}

	fields := make([]string, 0, 4)
	values := make([]any, 0, 5)
	param := 1

	appendField := func(column string, value any) {
		fields = append(fields, column+" = $"+itoa(param))
		values = append(values, value)
		param++
	}

	if patch.Label != nil {
		appendField("label", strings.TrimSpace(*patch.Label))
	}
	if patch.Value != nil {
		appendField("value", strings.TrimSpace(*patch.Value))
	}
	if patch.IsActive != nil {
		appendField("is_active", *patch.IsActive)
	}
	appendField("updated_at", time.Now())

	values = append(values, id)
	query := "UPDATE dropdowns SET " + strings.Join(fields, ", ") +
		" WHERE id = $" + itoa(param) +
		" RETURNING " + dropdownColumns

	dropdown, err := scanDropdown(r.db.QueryRowContext(ctx, query, values...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Dropdown{}, ErrNotFound
		}
		return types.Dropdown{}, classify(err)
	}
	return dropdown, nil
}

// ToggleActive flips the active flag.
func (r *DropdownRepository) ToggleActive(ctx context.Context, id int) (types.Dropdown, error) {
	const query = `
		UPDATE dropdowns
		SET is_active = NOT is_active, updated_at = $2
		WHERE id = $1
		RETURNING ` + dropdownColumns
	dropdown, err := scanDropdown(r.db.QueryRowContext(ctx, query, id, time.Now()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Dropdown{}, ErrNotFound
		}
		return types.Dropdown{}, err
	}
	return dropdown, nil
}

// SoftDelete forces the active flag off unconditionally.
func (r *DropdownRepository) SoftDelete(ctx context.Context, id int) (types.Dropdown, error) {
	const query = `
		UPDATE dropdowns
		SET is_active = false, updated_at = $2
		WHERE id = $1
		RETURNING ` + dropdownColumns
	dropdown, err := scanDropdown(r.db.QueryRowContext(ctx, query, id, time.Now()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Dropdown{}, ErrNotFound
		}
		return types.Dropdown{}, err
	}
	return dropdown, nil
}

// Usage counts materials referencing the dropdown through either the
// division or the placement column. Both vocabularies share one id
// space, so a single cross-column predicate covers both.
func (r *DropdownRepository) Usage(ctx context.Context, id int) (int, error) {
	const query = `
		SELECT COUNT(*) FROM materials
		WHERE division_id = $1 OR placement_id = $1`
	var count int
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// Delete physically removes a dropdown. Deletion is only reachable from
// the inactive state with zero usage: an active row fails with
// ErrDropdownActive, a referenced row with DropdownInUseError carrying
// the usage count. The RESTRICT foreign keys back the usage check
// against concurrent material writes.
func (r *DropdownRepository) Delete(ctx context.Context, id int) error {
	dropdown, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if dropdown.IsActive {
		return ErrDropdownActive
	}

	usage, err := r.Usage(ctx, id)
	if err != nil {
		return err
	}
	if usage > 0 {
		return &DropdownInUseError{Count: usage}
	}

	const query = `DELETE FROM dropdowns WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		// A RESTRICT violation here means a material slipped in
		// between the usage check and the delete.
		if isForeignKeyViolation(err) {
			return &DropdownInUseError{Count: 1}
		}
		return classify(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// CountActiveByType counts the active entries of one vocabulary family.
func (r *DropdownRepository) CountActiveByType(ctx context.Context, dropdownType string) (int, error) {
	const query = `SELECT COUNT(*) FROM dropdowns WHERE type = $1 AND is_active = true`
	var count int
	if err := r.db.QueryRowContext(ctx, query, dropdownType).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}
