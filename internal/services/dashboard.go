package services

import (
	"context"

	"github.com/materialdesk/apiserver/types"
)

const recentMaterialsLimit = 12

// StatsRepository defines the read-only dashboard aggregations.
type StatsRepository interface {
	TotalMaterials(ctx context.Context) (int, error)
	ActiveMaterials(ctx context.Context) (int, error)
	MaterialsByDivision(ctx context.Context) ([]types.DivisionCount, error)
}

// DashboardService assembles the dashboard projection. It reads the
// catalog and vocabulary stores and never mutates.
type DashboardService struct {
	stats     StatsRepository
	materials MaterialRepository
	dropdowns DropdownRepository
}

func NewDashboardService(stats StatsRepository, materials MaterialRepository, dropdowns DropdownRepository) *DashboardService {
	return &DashboardService{stats: stats, materials: materials, dropdowns: dropdowns}
}

func (s *DashboardService) Stats(ctx context.Context) (types.DashboardStats, error) {
	total, err := s.stats.TotalMaterials(ctx)
	if err != nil {
		return types.DashboardStats{}, err
	}

	active, err := s.stats.ActiveMaterials(ctx)
	if err != nil {
		return types.DashboardStats{}, err
	}

	byDivision, err := s.stats.MaterialsByDivision(ctx)
	if err != nil {
		return types.DashboardStats{}, err
	}

	divisions, err := s.dropdowns.CountActiveByType(ctx, types.DropdownTypeDivision)
	if err != nil {
		return types.DashboardStats{}, err
	}

	recent, err := s.materials.List(ctx, types.MaterialFilter{Limit: recentMaterialsLimit})
	if err != nil {
		return types.DashboardStats{}, err
	}

	return types.DashboardStats{
		TotalMaterials:      total,
		ActiveMaterials:     active,
		TotalDivisions:      divisions,
		MaterialsByDivision: byDivision,
		RecentMaterials:     recent,
	}, nil
}
