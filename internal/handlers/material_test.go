package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/materialdesk/apiserver/internal/events"
	"github.com/materialdesk/apiserver/internal/services"
	"github.com/materialdesk/apiserver/internal/store"
	"github.com/materialdesk/apiserver/types"
)

// memMaterialRepo is an in-memory MaterialRepository for handler tests.
// knownDropdowns, when non-nil, mimics the foreign keys on the
// division and placement columns.
type memMaterialRepo struct {
	nextID         int
	materials      map[int]types.Material
	knownDropdowns map[int]bool
}

func newMemMaterialRepo() *memMaterialRepo {
	return &memMaterialRepo{nextID: 1, materials: make(map[int]types.Material)}
}

func (m *memMaterialRepo) Create(_ context.Context, material types.Material) (types.Material, error) {
	for _, existing := range m.materials {
		if existing.MaterialNumber == material.MaterialNumber {
			return types.Material{}, store.ErrConflict
		}
	}
	if m.knownDropdowns != nil &&
		(!m.knownDropdowns[material.DivisionID] || !m.knownDropdowns[material.PlacementID]) {
		return types.Material{}, store.ErrInvalidReference
	}
	material.ID = m.nextID
	material.IsActive = true
	m.nextID++
	m.materials[material.ID] = material
	return material, nil
}

func (m *memMaterialRepo) GetByID(_ context.Context, id int) (types.Material, error) {
	material, ok := m.materials[id]
	if !ok {
		return types.Material{}, store.ErrNotFound
	}
	return material, nil
}

func (m *memMaterialRepo) GetByNumber(_ context.Context, materialNumber string) (types.Material, error) {
	for _, material := range m.materials {
		if material.MaterialNumber == materialNumber {
			return material, nil
		}
	}
	return types.Material{}, store.ErrNotFound
}

func (m *memMaterialRepo) matches(material types.Material, filter types.MaterialFilter) bool {
	if filter.Search != "" {
		search := strings.ToLower(filter.Search)
		if !strings.Contains(strings.ToLower(material.MaterialName), search) &&
			!strings.Contains(strings.ToLower(material.MaterialNumber), search) {
			return false
		}
	}
	if filter.DivisionID != 0 && material.DivisionID != filter.DivisionID {
		return false
	}
	if filter.PlacementID != 0 && material.PlacementID != filter.PlacementID {
		return false
	}
	return true
}

func (m *memMaterialRepo) List(_ context.Context, filter types.MaterialFilter) ([]types.Material, error) {
	var out []types.Material
	for id := m.nextID - 1; id >= 1; id-- {
		material, ok := m.materials[id]
		if ok && m.matches(material, filter) {
			out = append(out, material)
		}
	}
	if filter.Limit > 0 {
		if filter.Offset < len(out) {
			out = out[filter.Offset:]
		} else {
			out = nil
		}
		if len(out) > filter.Limit {
			out = out[:filter.Limit]
		}
	}
	return out, nil
}

func (m *memMaterialRepo) Count(_ context.Context, filter types.MaterialFilter) (int, error) {
	count := 0
	for _, material := range m.materials {
		if m.matches(material, filter) {
			count++
		}
	}
	return count, nil
}

func (m *memMaterialRepo) Update(_ context.Context, id int, patch types.MaterialPatch) (types.Material, error) {
	material, ok := m.materials[id]
	if !ok {
		return types.Material{}, store.ErrNotFound
	}
	if patch.IsEmpty() {
		return types.Material{}, store.ErrNoFields
	}
	if patch.MaterialName != nil {
		material.MaterialName = *patch.MaterialName
	}
	if patch.MaterialNumber != nil {
		material.MaterialNumber = *patch.MaterialNumber
	}
	if patch.DivisionID != nil {
		material.DivisionID = *patch.DivisionID
	}
	if patch.PlacementID != nil {
		material.PlacementID = *patch.PlacementID
	}
	if patch.Function != nil {
		material.Function = *patch.Function
	}
	if patch.IsActive != nil {
		material.IsActive = *patch.IsActive
	}
	m.materials[id] = material
	return material, nil
}

func (m *memMaterialRepo) AddImage(_ context.Context, materialID int, url string, isPrimary bool) (types.Material, error) {
	material, ok := m.materials[materialID]
	if !ok {
		return types.Material{}, store.ErrNotFound
	}
	material.Images = append(material.Images, types.Image{URL: url, IsPrimary: isPrimary})
	m.materials[materialID] = material
	return material, nil
}

func (m *memMaterialRepo) RemoveImage(_ context.Context, materialID int, url string) (types.Material, error) {
	material, ok := m.materials[materialID]
	if !ok {
		return types.Material{}, store.ErrNotFound
	}
	kept := material.Images[:0:0]
	for _, img := range material.Images {
		if img.URL != url {
			kept = append(kept, img)
		}
	}
	material.Images = kept
	m.materials[materialID] = material
	return material, nil
}

func (m *memMaterialRepo) ReplaceImages(_ context.Context, materialID int, images []types.Image) (types.Material, error) {
	material, ok := m.materials[materialID]
	if !ok {
		return types.Material{}, store.ErrNotFound
	}
	material.Images = images
	m.materials[materialID] = material
	return material, nil
}

func (m *memMaterialRepo) Delete(_ context.Context, id int) error {
	if _, ok := m.materials[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.materials, id)
	return nil
}

// memImageStorage stores image bytes keyed by generated object names.
type memImageStorage struct {
	nextKey int
	objects map[string][]byte
}

func newMemImageStorage() *memImageStorage {
	return &memImageStorage{objects: make(map[string][]byte)}
}

func (m *memImageStorage) StoreImage(_ context.Context, materialID int, filename string, data []byte) (string, error) {
	m.nextKey++
	key := fmt.Sprintf("materials/%d/%d-%s", materialID, m.nextKey, filename)
	m.objects[key] = data
	return key, nil
}

func (m *memImageStorage) Remove(_ context.Context, key string) error {
	delete(m.objects, key)
	return nil
}

func newMaterialTestRouter() (*chi.Mux, *memMaterialRepo) {
	repo := newMemMaterialRepo()
	svc := services.NewMaterialService(repo, newMemImageStorage(), events.NewPublisher(nil, "test"))
	router := chi.NewRouter()
	router.Route("/api/materials", func(r chi.Router) {
		MaterialRouter(r, svc)
	})
	return router, repo
}

func seedMaterials(t *testing.T, router http.Handler, n int) {
	t.Helper()
	for i := 1; i <= n; i++ {
		rec := postJSON(t, router, "/api/materials", CreateMaterialRequest{
			MaterialName:   fmt.Sprintf("Material %d", i),
			MaterialNumber: fmt.Sprintf("MAT-%03d", i),
			DivisionID:     1,
			PlacementID:    2,
		})
		require.Equal(t, http.StatusCreated, rec.Code)
	}
}

func TestMaterialHandlerCreate(t *testing.T) {
	t.Run("created material is returned with defaults", func(t *testing.T) {
		router, _ := newMaterialTestRouter()
		rec := postJSON(t, router, "/api/materials", CreateMaterialRequest{
			MaterialName:   "Steel Sheet",
			MaterialNumber: "MAT-001",
			DivisionID:     1,
			PlacementID:    2,
			Function:       "structural",
		})
		require.Equal(t, http.StatusCreated, rec.Code)

		var material types.Material
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &material))
		require.Equal(t, "MAT-001", material.MaterialNumber)
		require.True(t, material.IsActive)
	})

	t.Run("missing required fields", func(t *testing.T) {
		router, _ := newMaterialTestRouter()
		rec := postJSON(t, router, "/api/materials", CreateMaterialRequest{
			MaterialName: "No Number",
			DivisionID:   1,
			PlacementID:  2,
		})
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("duplicate number", func(t *testing.T) {
		router, _ := newMaterialTestRouter()
		seedMaterials(t, router, 1)

		rec := postJSON(t, router, "/api/materials", CreateMaterialRequest{
			MaterialName:   "Copy",
			MaterialNumber: "MAT-001",
			DivisionID:     1,
			PlacementID:    2,
		})
		require.Equal(t, http.StatusConflict, rec.Code)

		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Equal(t, "material number already exists", resp.Error)
	})

	t.Run("unknown division or placement", func(t *testing.T) {
		router, repo := newMaterialTestRouter()
		repo.knownDropdowns = map[int]bool{1: true, 2: true}

		rec := postJSON(t, router, "/api/materials", CreateMaterialRequest{
			MaterialName:   "Dangling",
			MaterialNumber: "MAT-777",
			DivisionID:     99,
			PlacementID:    2,
		})
		require.Equal(t, http.StatusBadRequest, rec.Code)

		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Equal(t, "division or placement does not exist", resp.Error)
	})
}

func TestMaterialHandlerList(t *testing.T) {
	router, _ := newMaterialTestRouter()
	seedMaterials(t, router, 25)

	get := func(t *testing.T, path string) MaterialListResponse {
		t.Helper()
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp MaterialListResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		return resp
	}

	t.Run("default page size is 10", func(t *testing.T) {
		resp := get(t, "/api/materials/")
		require.Len(t, resp.Materials, 10)
		require.Equal(t, 25, resp.Total)
		require.Equal(t, 1, resp.Page)
		require.Equal(t, 3, resp.TotalPages)
	})

	t.Run("last page is partial", func(t *testing.T) {
		resp := get(t, "/api/materials/?page=3&limit=10")
		require.Len(t, resp.Materials, 5)
		require.Equal(t, 3, resp.Page)
		require.Equal(t, 3, resp.TotalPages)
	})

	t.Run("search filters total too", func(t *testing.T) {
		resp := get(t, "/api/materials/?search=MAT-02")
		require.Equal(t, 6, resp.Total)
		require.Equal(t, 1, resp.TotalPages)
	})

	t.Run("newest first", func(t *testing.T) {
		resp := get(t, "/api/materials/?limit=1")
		require.Len(t, resp.Materials, 1)
		require.Equal(t, "MAT-025", resp.Materials[0].MaterialNumber)
	})

	t.Run("invalid page", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/materials/?page=zero", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestMaterialHandlerGet(t *testing.T) {
	router, _ := newMaterialTestRouter()
	seedMaterials(t, router, 1)

	t.Run("found", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/materials/1", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("not found", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/materials/99", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("non-numeric id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/materials/abc", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestMaterialHandlerUpdateAndToggle(t *testing.T) {
	router, _ := newMaterialTestRouter()
	seedMaterials(t, router, 1)

	t.Run("partial update touches only sent fields", func(t *testing.T) {
		name := "Renamed"
		body, err := json.Marshal(UpdateMaterialRequest{MaterialName: &name})
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodPut, "/api/materials/1", bytes.NewReader(body))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		var material types.Material
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &material))
		require.Equal(t, "Renamed", material.MaterialName)
		require.Equal(t, "MAT-001", material.MaterialNumber)
	})

	t.Run("toggle status", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPatch, "/api/materials/1/toggle-status", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		var material types.Material
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &material))
		require.False(t, material.IsActive)
	})
}

func multipartUpload(t *testing.T, router http.Handler, path string, filenames []string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for _, filename := range filenames {
		part, err := writer.CreateFormFile(formFieldImages, filename)
		require.NoError(t, err)
		_, err = part.Write([]byte("imagedata"))
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestMaterialHandlerImages(t *testing.T) {
	t.Run("upload marks the first image primary", func(t *testing.T) {
		router, _ := newMaterialTestRouter()
		seedMaterials(t, router, 1)

		rec := multipartUpload(t, router, "/api/materials/1/images", []string{"a.jpg", "b.png"})
		require.Equal(t, http.StatusOK, rec.Code)

		var resp MaterialResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp.Material.Images, 2)
		require.True(t, resp.Material.Images[0].IsPrimary)
		require.False(t, resp.Material.Images[1].IsPrimary)
	})

	t.Run("rejects more than five files", func(t *testing.T) {
		router, _ := newMaterialTestRouter()
		seedMaterials(t, router, 1)

		rec := multipartUpload(t, router, "/api/materials/1/images",
			[]string{"1.jpg", "2.jpg", "3.jpg", "4.jpg", "5.jpg", "6.jpg"})
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejects an unsupported extension", func(t *testing.T) {
		router, _ := newMaterialTestRouter()
		seedMaterials(t, router, 1)

		rec := multipartUpload(t, router, "/api/materials/1/images", []string{"notes.pdf"})
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejects a cap overflow against existing images", func(t *testing.T) {
		router, _ := newMaterialTestRouter()
		seedMaterials(t, router, 1)

		rec := multipartUpload(t, router, "/api/materials/1/images",
			[]string{"1.jpg", "2.jpg", "3.jpg", "4.jpg"})
		require.Equal(t, http.StatusOK, rec.Code)

		rec = multipartUpload(t, router, "/api/materials/1/images", []string{"5.jpg", "6.jpg"})
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("no files", func(t *testing.T) {
		router, _ := newMaterialTestRouter()
		seedMaterials(t, router, 1)

		rec := multipartUpload(t, router, "/api/materials/1/images", nil)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("remove primary promotes the next image", func(t *testing.T) {
		router, _ := newMaterialTestRouter()
		seedMaterials(t, router, 1)

		rec := multipartUpload(t, router, "/api/materials/1/images", []string{"a.jpg", "b.jpg"})
		require.Equal(t, http.StatusOK, rec.Code)
		var uploaded MaterialResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &uploaded))
		primaryURL := uploaded.Material.Images[0].URL

		body, err := json.Marshal(ImageRequest{URL: primaryURL})
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodDelete, "/api/materials/1/images", bytes.NewReader(body))
		del := httptest.NewRecorder()
		router.ServeHTTP(del, req)
		require.Equal(t, http.StatusOK, del.Code)

		var resp MaterialResponse
		require.NoError(t, json.Unmarshal(del.Body.Bytes(), &resp))
		require.Len(t, resp.Material.Images, 1)
		require.True(t, resp.Material.Images[0].IsPrimary)
	})

	t.Run("set primary remaps the flags", func(t *testing.T) {
		router, _ := newMaterialTestRouter()
		seedMaterials(t, router, 1)

		rec := multipartUpload(t, router, "/api/materials/1/images", []string{"a.jpg", "b.jpg"})
		require.Equal(t, http.StatusOK, rec.Code)
		var uploaded MaterialResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &uploaded))
		target := uploaded.Material.Images[1].URL

		body, err := json.Marshal(ImageRequest{URL: target})
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodPut, "/api/materials/1/images/primary", bytes.NewReader(body))
		set := httptest.NewRecorder()
		router.ServeHTTP(set, req)
		require.Equal(t, http.StatusOK, set.Code)

		var resp MaterialResponse
		require.NoError(t, json.Unmarshal(set.Body.Bytes(), &resp))
		require.False(t, resp.Material.Images[0].IsPrimary)
		require.True(t, resp.Material.Images[1].IsPrimary)
	})

	t.Run("unknown image url", func(t *testing.T) {
		router, _ := newMaterialTestRouter()
		seedMaterials(t, router, 1)

		body, err := json.Marshal(ImageRequest{URL: "materials/1/missing.jpg"})
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodPut, "/api/materials/1/images/primary", bytes.NewReader(body))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestMaterialHandlerDelete(t *testing.T) {
	router, repo := newMaterialTestRouter()
	seedMaterials(t, router, 1)

	req := httptest.NewRequest(http.MethodDelete, "/api/materials/1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, repo.materials)

	req = httptest.NewRequest(http.MethodDelete, "/api/materials/1", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}
