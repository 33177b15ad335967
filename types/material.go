package types

import "time"

// MaxMaterialImages caps the embedded image list of a material.
const MaxMaterialImages = 5

// Image is one entry of a material's ordered image list. At most one
// entry is primary at any time.
type Image struct {
	URL       string `json:"url"`
	IsPrimary bool   `json:"isPrimary"`
}

// Material is a catalog item referencing one division and one placement
// dropdown, with an embedded image list.
type Material struct {
	ID             int       `json:"id" db:"id"`
	MaterialName   string    `json:"materialName" db:"material_name"`
	MaterialNumber string    `json:"materialNumber" db:"material_number"`
	DivisionID     int       `json:"divisionId" db:"division_id"`
	PlacementID    int       `json:"placementId" db:"placement_id"`
	Function       string    `json:"function" db:"function"`
	Images         []Image   `json:"images" db:"images"`
	IsActive       bool      `json:"isActive" db:"is_active"`
	CreatedAt      time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time `json:"updatedAt" db:"updated_at"`

	// Division and Placement are populated on joined reads. They resolve
	// by id regardless of the referenced dropdown's active flag, and are
	// nil when the column is null.
	Division  *DropdownRef `json:"division,omitempty"`
	Placement *DropdownRef `json:"placement,omitempty"`
}

// PrimaryImage returns the primary image, or nil when none is marked.
func (m Material) PrimaryImage() *Image {
	for i := range m.Images {
		if m.Images[i].IsPrimary {
			return &m.Images[i]
		}
	}
	return nil
}

// MaterialPatch carries the optional fields of a partial material update.
// Nil fields are left untouched.
type MaterialPatch struct {
	MaterialName   *string
	MaterialNumber *string
	DivisionID     *int
	PlacementID    *int
	Function       *string
	IsActive       *bool
}

// IsEmpty reports whether the patch carries no fields.
func (p MaterialPatch) IsEmpty() bool {
	return p.MaterialName == nil && p.MaterialNumber == nil &&
		p.DivisionID == nil && p.PlacementID == nil &&
		p.Function == nil && p.IsActive == nil
}

// MaterialFilter narrows material listings. Zero values mean "no filter".
// Offset is only applied when Limit is set.
type MaterialFilter struct {
	// Search matches materialName OR materialNumber as a case-insensitive
	// substring.
	Search      string
	DivisionID  int
	PlacementID int
	Limit       int
	Offset      int
}
