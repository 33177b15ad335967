package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/materialdesk/apiserver/pkg/idx"
)

// MaxImageBytes caps a single uploaded image.
const MaxImageBytes = 5 * 1024 * 1024

// ErrUnsupportedType is returned for uploads that are not jpg/jpeg/png.
var ErrUnsupportedType = errors.New("only .jpg, .jpeg, and .png files are allowed")

// ErrImageTooLarge is returned for uploads over MaxImageBytes.
var ErrImageTooLarge = errors.New("image exceeds the 5 MB limit")

// ObjectStorage defines common object operations across backends.
type ObjectStorage interface {
	EnsureBucket(ctx context.Context) error
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	Bucket() string
}

var contentTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
}

// ImageStore wraps an ObjectStorage backend with the material image
// policy: extension whitelist, size cap, and ULID-based object keys.
type ImageStore struct {
	backend ObjectStorage
}

// NewImageStore constructs an ImageStore for the provided backend.
func NewImageStore(backend ObjectStorage) *ImageStore {
	return &ImageStore{backend: backend}
}

// EnsureBucket ensures the configured bucket exists.
func (s *ImageStore) EnsureBucket(ctx context.Context) error {
	return s.backend.EnsureBucket(ctx)
}

// ValidateImage checks the upload against the extension whitelist and
// size cap before any bytes are written.
func ValidateImage(filename string, size int64) error {
	ext := strings.ToLower(path.Ext(filename))
	if _, ok := contentTypes[ext]; !ok {
		return ErrUnsupportedType
	}
	if size > MaxImageBytes {
		return ErrImageTooLarge
	}
	return nil
}

// StoreImage validates and uploads one image for a material, returning
// the object key that doubles as the image URL on the material row.
func (s *ImageStore) StoreImage(ctx context.Context, materialID int, filename string, data []byte) (string, error) {
	if err := ValidateImage(filename, int64(len(data))); err != nil {
		return "", err
	}

	ext := strings.ToLower(path.Ext(filename))
	key := fmt.Sprintf("materials/%d/%s%s", materialID, idx.New(), ext)

	if err := s.backend.Put(ctx, key, bytes.NewReader(data), int64(len(data)), contentTypes[ext]); err != nil {
		return "", err
	}
	return key, nil
}

// Get opens a reader for a stored image.
func (s *ImageStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	return s.backend.Get(ctx, key)
}

// Remove deletes a stored image. Removing an absent object is not an
// error.
func (s *ImageStore) Remove(ctx context.Context, key string) error {
	return s.backend.Delete(ctx, key)
}

// Bucket returns the configured bucket name.
func (s *ImageStore) Bucket() string {
	return s.backend.Bucket()
}
