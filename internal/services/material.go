package services

import (
	"context"
	"errors"

	"github.com/materialdesk/apiserver/internal/events"
	"github.com/materialdesk/apiserver/internal/store"
	"github.com/materialdesk/apiserver/pkg/slogx"
	"github.com/materialdesk/apiserver/types"
)

// MaterialRepository defines persistence operations for materials.
type MaterialRepository interface {
	Create(ctx context.Context, material types.Material) (types.Material, error)
	GetByID(ctx context.Context, id int) (types.Material, error)
	GetByNumber(ctx context.Context, materialNumber string) (types.Material, error)
	List(ctx context.Context, filter types.MaterialFilter) ([]types.Material, error)
	Count(ctx context.Context, filter types.MaterialFilter) (int, error)
	Update(ctx context.Context, id int, patch types.MaterialPatch) (types.Material, error)
	AddImage(ctx context.Context, materialID int, url string, isPrimary bool) (types.Material, error)
	RemoveImage(ctx context.Context, materialID int, url string) (types.Material, error)
	ReplaceImages(ctx context.Context, materialID int, images []types.Image) (types.Material, error)
	Delete(ctx context.Context, id int) error
}

// ImageStorage is the blob boundary the material service depends on.
type ImageStorage interface {
	StoreImage(ctx context.Context, materialID int, filename string, data []byte) (string, error)
	Remove(ctx context.Context, key string) error
}

// ImageUpload is one validated file from a multipart upload.
type ImageUpload struct {
	Filename string
	Data     []byte
}

// MaterialService encapsulates catalog use-cases.
type MaterialService struct {
	repo      MaterialRepository
	images    ImageStorage
	publisher *events.Publisher
}

func NewMaterialService(repo MaterialRepository, images ImageStorage, publisher *events.Publisher) *MaterialService {
	return &MaterialService{repo: repo, images: images, publisher: publisher}
}

// Create inserts a material after the number uniqueness pre-check; the
// unique index backstops the race between check and insert.
func (s *MaterialService) Create(ctx context.Context, material types.Material) (types.Material, error) {
	if _, err := s.repo.GetByNumber(ctx, material.MaterialNumber); err == nil {
		return types.Material{}, store.ErrConflict
	} else if !errors.Is(err, store.ErrNotFound) {
		return types.Material{}, err
	}

	created, err := s.repo.Create(ctx, material)
	if err != nil {
		return types.Material{}, err
	}

	// Re-read for the joined division/placement references.
	created, err = s.repo.GetByID(ctx, created.ID)
	if err != nil {
		return types.Material{}, err
	}

	s.publisher.Emit(ctx, events.MaterialCreated, created)
	return created, nil
}

func (s *MaterialService) GetByID(ctx context.Context, id int) (types.Material, error) {
	return s.repo.GetByID(ctx, id)
}

// List returns one page of materials plus the total match count for
// pagination.
func (s *MaterialService) List(ctx context.Context, filter types.MaterialFilter) ([]types.Material, int, error) {
	materials, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	countFilter := filter
	countFilter.Limit = 0
	countFilter.Offset = 0
	total, err := s.repo.Count(ctx, countFilter)
	if err != nil {
		return nil, 0, err
	}
	return materials, total, nil
}

// Update applies a partial update, re-checking number uniqueness when
// the number changes.
func (s *MaterialService) Update(ctx context.Context, id int, patch types.MaterialPatch) (types.Material, error) {
	if patch.MaterialNumber != nil {
		existing, err := s.repo.GetByNumber(ctx, *patch.MaterialNumber)
		if err == nil && existing.ID != id {
			return types.Material{}, store.ErrConflict
		}
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return types.Material{}, err
		}
	}

	material, err := s.repo.Update(ctx, id, patch)
	if err != nil {
		return types.Material{}, err
	}

	s.publisher.Emit(ctx, events.MaterialUpdated, material)
	return material, nil
}

// ToggleActive flips the material's active flag.
func (s *MaterialService) ToggleActive(ctx context.Context, id int) (types.Material, error) {
	material, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return types.Material{}, err
	}

	active := !material.IsActive
	return s.Update(ctx, id, types.MaterialPatch{IsActive: &active})
}

// Delete removes the material's stored image objects, then the row.
// Object removal is best-effort: a blob failure is logged and does not
// block the row delete.
func (s *MaterialService) Delete(ctx context.Context, id int) error {
	material, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	for _, img := range material.Images {
		if err := s.images.Remove(ctx, img.URL); err != nil {
			slogx.FromContext(ctx).Warn("remove image object failed",
				"material_id", id, "url", img.URL, "error", err)
		}
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	s.publisher.Emit(ctx, events.MaterialDeleted, map[string]int{"id": id})
	return nil
}

// UploadImages stores the uploaded files and appends them to the image
// list. The cap is enforced against existing plus incoming before any
// byte is written. The first image of a previously image-less material
// becomes primary. Objects are written before the row; an orphan left
// by a row failure is deleted best-effort and otherwise treated as a
// non-fatal leak.
func (s *MaterialService) UploadImages(ctx context.Context, id int, uploads []ImageUpload) (types.Material, error) {
	material, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return types.Material{}, err
	}

	if len(material.Images)+len(uploads) > types.MaxMaterialImages {
		return types.Material{}, ErrTooManyImages
	}

	hadImages := len(material.Images) > 0
	for i, upload := range uploads {
		url, err := s.images.StoreImage(ctx, id, upload.Filename, upload.Data)
		if err != nil {
			return types.Material{}, err
		}

		isPrimary := !hadImages && i == 0
		if material, err = s.repo.AddImage(ctx, id, url, isPrimary); err != nil {
			if removeErr := s.images.Remove(ctx, url); removeErr != nil {
				slogx.FromContext(ctx).Warn("orphaned image object",
					"material_id", id, "url", url, "error", removeErr)
			}
			return types.Material{}, err
		}
	}

	s.publisher.Emit(ctx, events.MaterialImagesChanged, material)
	return material, nil
}

// RemoveImage deletes one image by url from storage and from the list.
// When the removed image was primary, the first remaining image is
// promoted so the at-most-one-primary invariant holds.
func (s *MaterialService) RemoveImage(ctx context.Context, id int, url string) (types.Material, error) {
	material, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return types.Material{}, err
	}

	var removed *types.Image
	for i := range material.Images {
		if material.Images[i].URL == url {
			removed = &material.Images[i]
			break
		}
	}
	if removed == nil {
		return types.Material{}, ErrImageNotFound
	}

	if err := s.images.Remove(ctx, url); err != nil {
		slogx.FromContext(ctx).Warn("remove image object failed",
			"material_id", id, "url", url, "error", err)
	}

	wasPrimary := removed.IsPrimary
	material, err = s.repo.RemoveImage(ctx, id, url)
	if err != nil {
		return types.Material{}, err
	}

	if wasPrimary && len(material.Images) > 0 {
		images := make([]types.Image, len(material.Images))
		copy(images, material.Images)
		images[0].IsPrimary = true
		if material, err = s.repo.ReplaceImages(ctx, id, images); err != nil {
			return types.Material{}, err
		}
	}

	s.publisher.Emit(ctx, events.MaterialImagesChanged, material)
	return material, nil
}

// SetPrimaryImage remaps the image list so exactly the named url is
// primary.
func (s *MaterialService) SetPrimaryImage(ctx context.Context, id int, url string) (types.Material, error) {
	material, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return types.Material{}, err
	}

	found := false
	images := make([]types.Image, len(material.Images))
	for i, img := range material.Images {
		images[i] = types.Image{URL: img.URL, IsPrimary: img.URL == url}
		if img.URL == url {
			found = true
		}
	}
	if !found {
		return types.Material{}, ErrImageNotFound
	}

	material, err = s.repo.ReplaceImages(ctx, id, images)
	if err != nil {
		return types.Material{}, err
	}

	s.publisher.Emit(ctx, events.MaterialImagesChanged, material)
	return material, nil
}
