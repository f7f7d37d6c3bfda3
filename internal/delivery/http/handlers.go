package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/doi-atlas/backend/internal/usecase"
)

type Handler struct {
	lookupUsecase *usecase.LookupUsecase
}

func NewHandler(lookup *usecase.LookupUsecase) *Handler {
	return &Handler{lookupUsecase: lookup}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// DOI lookup handlers

// ResolveURLs handles GET /api/v1/urls?doi=10.1234/abc
func (h *Handler) ResolveURLs(w http.ResponseWriter, r *http.Request) {
	doi := r.URL.Query().Get("doi")
	if doi == "" {
		writeError(w, http.StatusBadRequest, "doi query parameter is required")
		return
	}

	result, err := h.lookupUsecase.ResolveDOI(r.Context(), doi)
	if errors.Is(err, usecase.ErrDOINotFound) {
		writeError(w, http.StatusNotFound, "No URLs known for this DOI")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to resolve DOI")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

type statsResponse struct {
	Status    string `json:"status"`
	TotalURLs int64  `json:"total_urls"`
	Timestamp string `json:"timestamp"`
}

// GetStats handles GET /api/v1/stats
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.lookupUsecase.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load statistics")
		return
	}

	writeJSON(w, http.StatusOK, statsResponse{
		Status:    "ok",
		TotalURLs: stats.TotalURLs,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Import run handlers

// ListImports handles GET /api/v1/imports?limit=20
func (h *Handler) ListImports(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		limit = n
	}

	runs, err := h.lookupUsecase.ListImports(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list imports")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"imports": runs})
}

// GetImport handles GET /api/v1/imports/{id}
func (h *Handler) GetImport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	run, err := h.lookupUsecase.GetImport(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load import")
		return
	}
	if run == nil {
		writeError(w, http.StatusNotFound, "Import not found")
		return
	}

	writeJSON(w, http.StatusOK, run)
}
