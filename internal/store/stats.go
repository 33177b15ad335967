package store

import (
	"context"
	"database/sql"

	"github.com/materialdesk/apiserver/types"
)

// StatsRepository runs the read-only dashboard aggregations. It never
// mutates.
type StatsRepository struct {
	db *sql.DB
}

func NewStatsRepository(db *sql.DB) *StatsRepository {
	return &StatsRepository{db: db}
}

func (r *StatsRepository) TotalMaterials(ctx context.Context) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM materials`)
}

func (r *StatsRepository) ActiveMaterials(ctx context.Context) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM materials WHERE is_active = true`)
}

// MaterialsByDivision groups all materials, active and inactive, by
// division label. Materials without a division land under "Unassigned".
func (r *StatsRepository) MaterialsByDivision(ctx context.Context) ([]types.DivisionCount, error) {
	const query = `
		SELECT COALESCE(d.label, 'Unassigned') AS division, COUNT(m.id) AS count
		FROM materials m
		LEFT JOIN dropdowns d ON m.division_id = d.id
		GROUP BY d.id, d.label
		ORDER BY count DESC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make([]types.DivisionCount, 0)
	for rows.Next() {
		var dc types.DivisionCount
		if err := rows.Scan(&dc.Division, &dc.Count); err != nil {
			return nil, err
		}
		counts = append(counts, dc)
	}
	return counts, rows.Err()
}

func (r *StatsRepository) count(ctx context.Context, query string) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}
