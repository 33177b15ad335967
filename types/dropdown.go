package types

import "time"

// Dropdown type families. Materials are tagged with one value of each.
const (
	DropdownTypeDivision  = "division"
	DropdownTypePlacement = "placement"
)

// ValidDropdownType reports whether t names a known vocabulary family.
func ValidDropdownType(t string) bool {
	return t == DropdownTypeDivision || t == DropdownTypePlacement
}

// Dropdown is a controlled-vocabulary entry used to tag materials.
// Inactive entries stay resolvable by id so historic references keep
// displaying; they are only hidden from selection lists.
type Dropdown struct {
	ID        int       `json:"id" db:"id"`
	Type      string    `json:"type" db:"type"`
	Label     string    `json:"label" db:"label"`
	Value     string    `json:"value" db:"value"`
	IsActive  bool      `json:"isActive" db:"is_active"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// DropdownRef is the joined shape a material exposes for its division
// and placement references.
type DropdownRef struct {
	ID    int    `json:"id"`
	Label string `json:"label"`
	Value string `json:"value"`
}

// DropdownPatch carries the optional fields of a partial dropdown update.
// Nil fields are left untouched.
type DropdownPatch struct {
	Label    *string
	Value    *string
	IsActive *bool
}

// IsEmpty reports whether the patch carries no fields.
func (p DropdownPatch) IsEmpty() bool {
	return p.Label == nil && p.Value == nil && p.IsActive == nil
}
