package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/materialdesk/apiserver/types"
)

// MaterialRepository handles persistence for catalog materials.
type MaterialRepository struct {
	db *sql.DB
}

func NewMaterialRepository(db *sql.DB) *MaterialRepository {
	return &MaterialRepository{db: db}
}

// joinedMaterialQuery selects a material together with its division and
// placement references. LEFT JOINs and no active filter: inactive
// dropdowns still resolve for historic rows.
const joinedMaterialQuery = `
	SELECT
		m.id, m.material_name, m.material_number, m.division_id, m.placement_id,
		m.function, m.images, m.is_active, m.created_at, m.updated_at,
		d1.id, d1.label, d1.value,
		d2.id, d2.label, d2.value
	FROM materials m
	LEFT JOIN dropdowns d1 ON m.division_id = d1.id
	LEFT JOIN dropdowns d2 ON m.placement_id = d2.id`

func scanJoinedMaterial(row interface{ Scan(...any) error }) (types.Material, error) {
	var (
		m             types.Material
		divisionID    sql.NullInt64
		placementID   sql.NullInt64
		function      sql.NullString
		imagesJSON    []byte
		divID, plcID  sql.NullInt64
		divLabel      sql.NullString
		divValue      sql.NullString
		plcLabel      sql.NullString
		plcValue      sql.NullString
	)

	err := row.Scan(
		&m.ID,
		&m.MaterialName,
		&m.MaterialNumber,
		&divisionID,
		&placementID,
		&function,
		&imagesJSON,
		&m.IsActive,
		&m.CreatedAt,
		&m.UpdatedAt,
		&divID,
		&divLabel,
		&divValue,
		&plcID,
		&plcLabel,
		&plcValue,
	)
	if err != nil {
		return types.Material{}, err
	}

	m.DivisionID = int(divisionID.Int64)
	m.PlacementID = int(placementID.Int64)
	m.Function = function.String
	m.Images = []types.Image{}
	if len(imagesJSON) > 0 {
		if err := json.Unmarshal(imagesJSON, &m.Images); err != nil {
			return types.Material{}, fmt.Errorf("decode images for material %d: %w", m.ID, err)
		}
	}
	if divID.Valid {
		m.Division = &types.DropdownRef{
			ID:    int(divID.Int64),
			Label: divLabel.String,
			Value: divValue.String,
		}
	}
	if plcID.Valid {
		m.Placement = &types.DropdownRef{
			ID:    int(plcID.Int64),
			Label: plcLabel.String,
			Value: plcValue.String,
		}
	}
	return m, nil
}

func (r *MaterialRepository) Create(ctx context.Context, material types.Material) (types.Material, error) {
	now := time.Now()
	material.CreatedAt = now
	material.UpdatedAt = now
	material.MaterialName = strings.TrimSpace(material.MaterialName)
	material.MaterialNumber = strings.TrimSpace(material.MaterialNumber)
	material.Images = []types.Image{}
	material.IsActive = true

	var function any
	if material.Function != "" {
		function = material.Function
	}

	const query = `
		INSERT INTO materials (material_name, material_number, division_id, placement_id, function, images, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, '[]', true, $6, $7)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		material.MaterialName,
		material.MaterialNumber,
		material.DivisionID,
		material.PlacementID,
		function,
		material.CreatedAt,
		material.UpdatedAt,
	).Scan(&material.ID); err != nil {
		return types.Material{}, classify(err)
	}
	return material, nil
}

func (r *MaterialRepository) GetByID(ctx context.Context, id int) (types.Material, error) {
	const query = joinedMaterialQuery + ` WHERE m.id = $1`
	material, err := scanJoinedMaterial(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Material{}, ErrNotFound
		}
		return types.Material{}, err
	}
	return material, nil
}

func (r *MaterialRepository) GetByNumber(ctx context.Context, materialNumber string) (types.Material, error) {
	const query = joinedMaterialQuery + ` WHERE m.material_number = $1`
	material, err := scanJoinedMaterial(r.db.QueryRowContext(ctx, query, materialNumber))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Material{}, ErrNotFound
		}
		return types.Material{}, err
	}
	return material, nil
}

// buildMaterialFilter renders the AND-combined filter predicates,
// appending bind values. The search term matches name or number with one
// shared parameter.
func buildMaterialFilter(filter types.MaterialFilter, values *[]any, param *int) string {
	var b strings.Builder

	if filter.Search != "" {
		p := itoa(*param)
		b.WriteString(" AND (m.material_name ILIKE $" + p + " OR m.material_number ILIKE $" + p + ")")
		*values = append(*values, "%"+filter.Search+"%")
		*param++
	}
	if filter.DivisionID != 0 {
		b.WriteString(" AND m.division_id = $" + itoa(*param))
		*values = append(*values, filter.DivisionID)
		*param++
	}
	if filter.PlacementID != 0 {
		b.WriteString(" AND m.placement_id = $" + itoa(*param))
		*values = append(*values, filter.PlacementID)
		*param++
	}
	return b.String()
}

// List returns materials matching the filter, newest first.
func (r *MaterialRepository) List(ctx context.Context, filter types.MaterialFilter) ([]types.Material, error) {
	query := joinedMaterialQuery + ` WHERE 1=1`
	values := make([]any, 0, 5)
	param := 1

	query += buildMaterialFilter(filter, &values, &param)
	query += ` ORDER BY m.created_at DESC`

	if filter.Limit > 0 {
		query += ` LIMIT $` + itoa(param)
		values = append(values, filter.Limit)
		param++

		if filter.Offset > 0 {
			query += ` OFFSET $` + itoa(param)
			values = append(values, filter.Offset)
			param++
		}
	}

	rows, err := r.db.QueryContext(ctx, query, values...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	materials := make([]types.Material, 0)
	for rows.Next() {
		material, err := scanJoinedMaterial(rows)
		if err != nil {
			return nil, err
		}
		materials = append(materials, material)
	}
	return materials, rows.Err()
}

// Count returns the total number of materials matching the filter,
// ignoring limit and offset.
func (r *MaterialRepository) Count(ctx context.Context, filter types.MaterialFilter) (int, error) {
	query := `SELECT COUNT(*) FROM materials m WHERE 1=1`
	values := make([]any, 0, 3)
	param := 1

	query += buildMaterialFilter(filter, &values, &param)

	var count int
	if err := r.db.QueryRowContext(ctx, query, values...).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// Update applies the supplied patch fields. An empty patch returns
// ErrNoFields without touching the row.
func (r *MaterialRepository) Update(ctx context.Context, id int, patch types.MaterialPatch) (types.Material, error) {
	if patch.IsEmpty() {
		return types.Material{}, ErrNoFields
	}

	fields := make([]string, 0, 7)
	values := make([]any, 0, 8)
	param := 1

	appendField := func(column string, value any) {
		fields = append(fields, column+" = $"+itoa(param))
		values = append(values, value)
		param++
	}

	if patch.MaterialName != nil {
		appendField("material_name", strings.TrimSpace(*patch.MaterialName))
	}
	if patch.MaterialNumber != nil {
		appendField("material_number", strings.TrimSpace(*patch.MaterialNumber))
	}
	if patch.DivisionID != nil {
		appendField("division_id", *patch.DivisionID)
	}
	if patch.PlacementID != nil {
		appendField("placement_id", *patch.PlacementID)
	}
	if patch.Function != nil {
		appendField("function", *patch.Function)
	}
	if patch.IsActive != nil {
		appendField("is_active", *patch.IsActive)
	}
	appendField("updated_at", time.Now())

	values = append(values, id)
	query := "UPDATE materials SET " + strings.Join(fields, ", ") +
		" WHERE id = $" + itoa(param)

	result, err := r.db.ExecContext(ctx, query, values...)
	if err != nil {
		return types.Material{}, classify(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.Material{}, err
	}
	if affected == 0 {
		return types.Material{}, ErrNotFound
	}
	return r.GetByID(ctx, id)
}

// AddImage appends an entry to the image list. The image cap is the
// caller's responsibility, checked at upload time against existing plus
// incoming.
func (r *MaterialRepository) AddImage(ctx context.Context, materialID int, url string, isPrimary bool) (types.Material, error) {
	material, err := r.GetByID(ctx, materialID)
	if err != nil {
		return types.Material{}, err
	}
	images := append(material.Images, types.Image{URL: url, IsPrimary: isPrimary})
	return r.ReplaceImages(ctx, materialID, images)
}

// RemoveImage drops the entry with an exactly matching url. Removing an
// absent url is a no-op.
func (r *MaterialRepository) RemoveImage(ctx context.Context, materialID int, url string) (types.Material, error) {
	material, err := r.GetByID(ctx, materialID)
	if err != nil {
		return types.Material{}, err
	}
	images := make([]types.Image, 0, len(material.Images))
	for _, img := range material.Images {
		if img.URL != url {
			images = append(images, img)
		}
	}
	return r.ReplaceImages(ctx, materialID, images)
}

// ReplaceImages overwrites the full image list.
func (r *MaterialRepository) ReplaceImages(ctx context.Context, materialID int, images []types.Image) (types.Material, error) {
	if images == nil {
		images = []types.Image{}
	}
	imagesJSON, err := json.Marshal(images)
	if err != nil {
		return types.Material{}, err
	}

	const query = `UPDATE materials SET images = $1, updated_at = $2 WHERE id = $3`
	result, err := r.db.ExecContext(ctx, query, imagesJSON, time.Now(), materialID)
	if err != nil {
		return types.Material{}, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.Material{}, err
	}
	if affected == 0 {
		return types.Material{}, ErrNotFound
	}
	return r.GetByID(ctx, materialID)
}

// Delete physically removes the row. Blob cleanup for the image objects
// happens in the service layer before this is called.
func (r *MaterialRepository) Delete(ctx context.Context, id int) error {
	const query = `DELETE FROM materials WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
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
