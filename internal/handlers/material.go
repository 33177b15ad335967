package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/materialdesk/apiserver/internal/services"
	"github.com/materialdesk/apiserver/internal/storage"
	"github.com/materialdesk/apiserver/internal/store"
	"github.com/materialdesk/apiserver/pkg/slogx"
	"github.com/materialdesk/apiserver/types"
)

const (
	defaultPage        = 1
	defaultLimit       = 10
	maxLimit           = 100
	maxMultipartMemory = 32 << 20
	formFieldImages    = "images"
)

// MaterialHandler provides HTTP handlers for the catalog.
type MaterialHandler struct {
	materialService *services.MaterialService
}

func NewMaterialHandler(materialService *services.MaterialService) *MaterialHandler {
	return &MaterialHandler{materialService: materialService}
}

// MaterialRouter registers material routes on the given router. The
// caller mounts it behind the auth middleware.
func MaterialRouter(r chi.Router, materialService *services.MaterialService) {
	handler := NewMaterialHandler(materialService)

	r.Get("/", handler.List)
	r.Post("/", handler.Create)
	r.Route("/{materialID}", func(r chi.Router) {
		r.Get("/", handler.Get)
		r.Put("/", handler.Update)
		r.Patch("/toggle-status", handler.ToggleStatus)
		r.Delete("/", handler.Delete)
		r.Post("/images", handler.UploadImages)
		r.Delete("/images", handler.DeleteImage)
		r.Put("/images/primary", handler.SetPrimaryImage)
	})
}

func (h *MaterialHandler) List(w http.ResponseWriter, r *http.Request) {
	page, limit, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	filter := types.MaterialFilter{
		Search: strings.TrimSpace(r.URL.Query().Get("search")),
		Limit:  limit,
		Offset: (page - 1) * limit,
	}
	if raw := r.URL.Query().Get("divisionId"); raw != "" {
		if filter.DivisionID, err = strconv.Atoi(raw); err != nil {
			writeError(w, http.StatusBadRequest, "invalid divisionId")
			return
		}
	}
	if raw := r.URL.Query().Get("placementId"); raw != "" {
		if filter.PlacementID, err = strconv.Atoi(raw); err != nil {
			writeError(w, http.StatusBadRequest, "invalid placementId")
			return
		}
	}

	materials, total, err := h.materialService.List(r.Context(), filter)
	if err != nil {
		respondServiceError(w, err, "material", "failed to fetch materials")
		return
	}

	totalPages := (total + limit - 1) / limit
	writeJSON(w, http.StatusOK, MaterialListResponse{
		Materials:  materials,
		Total:      total,
		Page:       page,
		TotalPages: totalPages,
	})
}

func (h *MaterialHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "materialID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	material, err := h.materialService.GetByID(r.Context(), id)
	if err != nil {
		respondServiceError(w, err, "material", "failed to fetch material")
		return
	}

	writeJSON(w, http.StatusOK, material)
}

func (h *MaterialHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateMaterialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	req.MaterialName = strings.TrimSpace(req.MaterialName)
	req.MaterialNumber = strings.TrimSpace(req.MaterialNumber)
	if req.MaterialName == "" || req.MaterialNumber == "" || req.DivisionID == 0 || req.PlacementID == 0 {
		writeError(w, http.StatusBadRequest, "please provide all required fields")
		return
	}

	material, err := h.materialService.Create(r.Context(), types.Material{
		MaterialName:   req.MaterialName,
		MaterialNumber: req.MaterialNumber,
		DivisionID:     req.DivisionID,
		PlacementID:    req.PlacementID,
		Function:       req.Function,
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			writeError(w, http.StatusConflict, "material number already exists")
			return
		}
		respondServiceError(w, err, "material", "failed to create material")
		return
	}

	writeJSON(w, http.StatusCreated, material)
}

func (h *MaterialHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "materialID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req UpdateMaterialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	material, err := h.materialService.Update(r.Context(), id, types.MaterialPatch{
		MaterialName:   req.MaterialName,
		MaterialNumber: req.MaterialNumber,
		DivisionID:     req.DivisionID,
		PlacementID:    req.PlacementID,
		Function:       req.Function,
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			writeError(w, http.StatusConflict, "material number already exists")
			return
		}
		respondServiceError(w, err, "material", "failed to update material")
		return
	}

	writeJSON(w, http.StatusOK, material)
}

func (h *MaterialHandler) ToggleStatus(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "materialID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	material, err := h.materialService.ToggleActive(r.Context(), id)
	if err != nil {
		respondServiceError(w, err, "material", "failed to toggle status")
		return
	}

	writeJSON(w, http.StatusOK, material)
}

// Delete removes the material and its stored image objects.
func (h *MaterialHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "materialID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.materialService.Delete(r.Context(), id); err != nil {
		respondServiceError(w, err, "material", "failed to delete material")
		return
	}

	if userID, err := userIDFromContext(r.Context()); err == nil {
		slogx.FromContext(r.Context()).Info("material deleted", "material_id", id, "user_id", userID)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "material deleted successfully",
	})
}

// UploadImages accepts up to five multipart files under the "images"
// field. Type and size are validated per file before any store write,
// and the total cap is enforced against existing plus incoming.
func (h *MaterialHandler) UploadImages(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "materialID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	files := r.MultipartForm.File[formFieldImages]
	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, "no images provided")
		return
	}
	if len(files) > types.MaxMaterialImages {
		writeError(w, http.StatusBadRequest, services.ErrTooManyImages.Error())
		return
	}

	uploads := make([]services.ImageUpload, 0, len(files))
	for _, fileHeader := range files {
		if err := storage.ValidateImage(fileHeader.Filename, fileHeader.Size); err != nil {
			respondServiceError(w, err, "image", "failed to upload images")
			return
		}

		file, err := fileHeader.Open()
		if err != nil {
			writeError(w, http.StatusBadRequest, "failed to read upload")
			return
		}
		data, err := readFileLimited(file, storage.MaxImageBytes)
		_ = file.Close()
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		uploads = append(uploads, services.ImageUpload{
			Filename: fileHeader.Filename,
			Data:     data,
		})
	}

	material, err := h.materialService.UploadImages(r.Context(), id, uploads)
	if err != nil {
		respondServiceError(w, err, "material", "failed to upload images")
		return
	}

	writeJSON(w, http.StatusOK, MaterialResponse{Success: true, Material: material})
}

func (h *MaterialHandler) DeleteImage(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "materialID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	req, err := parseImageRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	material, err := h.materialService.RemoveImage(r.Context(), id, req.URL)
	if err != nil {
		respondServiceError(w, err, "material", "failed to delete image")
		return
	}

	writeJSON(w, http.StatusOK, MaterialResponse{Success: true, Material: material})
}

func (h *MaterialHandler) SetPrimaryImage(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "materialID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	req, err := parseImageRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	material, err := h.materialService.SetPrimaryImage(r.Context(), id, req.URL)
	if err != nil {
		respondServiceError(w, err, "material", "failed to set primary image")
		return
	}

	writeJSON(w, http.StatusOK, MaterialResponse{Success: true, Material: material})
}

type CreateMaterialRequest struct {
	MaterialName   string `json:"materialName"`
	MaterialNumber string `json:"materialNumber"`
	DivisionID     int    `json:"divisionId"`
	PlacementID    int    `json:"placementId"`
	Function       string `json:"function"`
}

type UpdateMaterialRequest struct {
	MaterialName   *string `json:"materialName"`
	MaterialNumber *string `json:"materialNumber"`
	DivisionID     *int    `json:"divisionId"`
	PlacementID    *int    `json:"placementId"`
	Function       *string `json:"function"`
}

type ImageRequest struct {
	URL string `json:"url"`
}

type MaterialResponse struct {
	Success  bool           `json:"success"`
	Material types.Material `json:"material"`
}

// MaterialListResponse is the paginated list payload.
type MaterialListResponse struct {
	Materials  []types.Material `json:"materials"`
	Total      int              `json:"total"`
	Page       int              `json:"page"`
	TotalPages int              `json:"totalPages"`
}

func parsePagination(r *http.Request) (page, limit int, err error) {
	page = defaultPage
	limit = defaultLimit

	if raw := strings.TrimSpace(r.URL.Query().Get("page")); raw != "" {
		page, err = strconv.Atoi(raw)
		if err != nil || page < 1 {
			return 0, 0, errors.New("invalid page")
		}
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 1 {
			return 0, 0, errors.New("invalid limit")
		}
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return page, limit, nil
}

func parseImageRequest(r *http.Request) (ImageRequest, error) {
	var req ImageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return ImageRequest{}, errors.New("invalid request")
	}
	if strings.TrimSpace(req.URL) == "" {
		return ImageRequest{}, errors.New("image url is required")
	}
	return req, nil
}

func readFileLimited(reader io.Reader, limit int64) ([]byte, error) {
	limited := io.LimitReader(reader, limit+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, errors.New("failed to read upload")
	}
	if int64(len(data)) > limit {
		return nil, errors.New("uploaded file too large")
	}
	return data, nil
}
