package types

// DivisionCount is one row of the materials-by-division breakdown.
// Division is the dropdown label, or "Unassigned" for materials with no
// division reference.
type DivisionCount struct {
	Division string `json:"division"`
	Count    int    `json:"count"`
}

// DashboardStats is the aggregate the dashboard renders.
type DashboardStats struct {
	TotalMaterials      int             `json:"totalMaterials"`
	ActiveMaterials     int             `json:"activeMaterials"`
	TotalDivisions      int             `json:"totalDivisions"`
	MaterialsByDivision []DivisionCount `json:"materialsByDivision"`
	RecentMaterials     []Material      `json:"recentMaterials"`
}
