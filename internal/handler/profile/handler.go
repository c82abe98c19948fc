package profile

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	profileModel "github.com/silvercoin/advisor/backend/internal/model/profile"
	profileService "github.com/silvercoin/advisor/backend/internal/service/profile"
	"github.com/silvercoin/advisor/backend/pkg/utils"
)

// Handler serves profile management endpoints.
type Handler struct {
	profiles *profileService.Service
}

// New creates a profile handler.
func New(profiles *profileService.Service) *Handler {
	return &Handler{profiles: profiles}
}

// RegisterRoutes mounts the profile routes. Callers wrap r with the bearer middleware.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/create_profile", h.handleCreate)
	r.Get("/get_profile/{profileID}", h.handleGet)
	r.Put("/update_profile/{profileID}", h.handleUpdate)
	r.Get("/get_all_profiles", h.handleList)
	r.Post("/generate_spending_data/{profileID}", h.handleGenerateSpending)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var payload profileModel.Profile
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	created, err := h.profiles.Create(r.Context(), payload)
	if err != nil {
		respondProfileError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, created)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	p, err := h.profiles.Get(r.Context(), chi.URLParam(r, "profileID"))
	if err != nil {
		respondProfileError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, p)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var payload profileModel.Profile
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	updated, err := h.profiles.Update(r.Context(), chi.URLParam(r, "profileID"), payload)
	if err != nil {
		respondProfileError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, updated)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	items, err := h.profiles.List(r.Context())
	if err != nil {
		respondProfileError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, items)
}

func (h *Handler) handleGenerateSpending(w http.ResponseWriter, r *http.Request) {
	profileID := chi.URLParam(r, "profileID")

	n := profileService.DefaultSpendingEntries
	if raw := r.URL.Query().Get("num_entries"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			utils.RespondError(w, http.StatusBadRequest, "num_entries must be an integer")
			return
		}
		n = parsed
	}

	entries, err := h.profiles.GenerateSpending(r.Context(), profileID, n)
	if err != nil {
		respondProfileError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"message": fmt.Sprintf("Generated %d synthetic spending entries for profile %s", len(entries), profileID),
		"entries": entries,
	})
}

func respondProfileError(w http.ResponseWriter, err error) {
	if errors.Is(err, profileService.ErrNameRequired) || errors.Is(err, profileService.ErrInvalidEntryCount) {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	utils.RespondServiceError(w, err)
}
