package services

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/materialdesk/apiserver/internal/events"
	"github.com/materialdesk/apiserver/internal/store"
	"github.com/materialdesk/apiserver/types"
)

// DropdownRepository defines persistence operations for the controlled
// vocabularies.
type DropdownRepository interface {
	Create(ctx context.Context, dropdown types.Dropdown) (types.Dropdown, error)
	GetByID(ctx context.Context, id int) (types.Dropdown, error)
	ListByType(ctx context.Context, dropdownType string, activeOnly bool) ([]types.Dropdown, error)
	GetByTypeAndValue(ctx context.Context, dropdownType, value string) (types.Dropdown, error)
	Update(ctx context.Context, id int, patch types.DropdownPatch) (types.Dropdown, error)
	ToggleActive(ctx context.Context, id int) (types.Dropdown, error)
	SoftDelete(ctx context.Context, id int) (types.Dropdown, error)
	Usage(ctx context.Context, id int) (int, error)
	Delete(ctx context.Context, id int) error
	CountActiveByType(ctx context.Context, dropdownType string) (int, error)
}

// DropdownService encapsulates vocabulary use-cases.
type DropdownService struct {
	repo      DropdownRepository
	publisher *events.Publisher
}

func NewDropdownService(repo DropdownRepository, publisher *events.Publisher) *DropdownService {
	return &DropdownService{repo: repo, publisher: publisher}
}

var slugSeparators = regexp.MustCompile(`\s+`)

// slugify derives a dropdown value from its label: lower-cased, spaces
// collapsed to hyphens.
func slugify(label string) string {
	return slugSeparators.ReplaceAllString(strings.ToLower(strings.TrimSpace(label)), "-")
}

// Create validates the type, derives the value from the label when
// omitted, and rejects duplicate (type, value) pairs whether the
// existing row is active or not.
func (s *DropdownService) Create(ctx context.Context, dropdownType, label, value string) (types.Dropdown, error) {
	if !types.ValidDropdownType(dropdownType) {
		return types.Dropdown{}, ErrInvalidDropdownType
	}

	value = strings.TrimSpace(value)
	if value == "" {
		value = slugify(label)
	}

	if _, err := s.repo.GetByTypeAndValue(ctx, dropdownType, value); err == nil {
		return types.Dropdown{}, store.ErrConflict
	} else if !errors.Is(err, store.ErrNotFound) {
		return types.Dropdown{}, err
	}

	dropdown, err := s.repo.Create(ctx, types.Dropdown{
		Type:  dropdownType,
		Label: label,
		Value: value,
	})
	if err != nil {
		return types.Dropdown{}, err
	}

	s.publisher.Emit(ctx, events.DropdownCreated, dropdown)
	return dropdown, nil
}

func (s *DropdownService) GetByID(ctx context.Context, id int) (types.Dropdown, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *DropdownService) ListByType(ctx context.Context, dropdownType string, activeOnly bool) ([]types.Dropdown, error) {
	if !types.ValidDropdownType(dropdownType) {
		return nil, ErrInvalidDropdownType
	}
	return s.repo.ListByType(ctx, dropdownType, activeOnly)
}

// Options returns the active entries of both vocabularies for selection
// lists.
func (s *DropdownService) Options(ctx context.Context) (divisions, placements []types.Dropdown, err error) {
	divisions, err = s.repo.ListByType(ctx, types.DropdownTypeDivision, true)
	if err != nil {
		return nil, nil, err
	}
	placements, err = s.repo.ListByType(ctx, types.DropdownTypePlacement, true)
	if err != nil {
		return nil, nil, err
	}
	return divisions, placements, nil
}

func (s *DropdownService) Update(ctx context.Context, id int, patch types.DropdownPatch) (types.Dropdown, error) {
	dropdown, err := s.repo.Update(ctx, id, patch)
	if err != nil {
		return types.Dropdown{}, err
	}
	s.publisher.Emit(ctx, events.DropdownUpdated, dropdown)
	return dropdown, nil
}

func (s *DropdownService) ToggleActive(ctx context.Context, id int) (types.Dropdown, error) {
	dropdown, err := s.repo.ToggleActive(ctx, id)
	if err != nil {
		return types.Dropdown{}, err
	}
	s.publisher.Emit(ctx, events.DropdownUpdated, dropdown)
	return dropdown, nil
}

func (s *DropdownService) SoftDelete(ctx context.Context, id int) (types.Dropdown, error) {
	dropdown, err := s.repo.SoftDelete(ctx, id)
	if err != nil {
		return types.Dropdown{}, err
	}
	s.publisher.Emit(ctx, events.DropdownUpdated, dropdown)
	return dropdown, nil
}

// HardDelete physically removes an inactive, unreferenced dropdown. The
// repository enforces the precondition and reports the blocking reason.
func (s *DropdownService) HardDelete(ctx context.Context, id int) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.publisher.Emit(ctx, events.DropdownDeleted, map[string]int{"id": id})
	return nil
}
