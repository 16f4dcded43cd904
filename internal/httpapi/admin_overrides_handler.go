package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/fahdr/ecomm-sub005/internal/models"
	"github.com/fahdr/ecomm-sub005/internal/storage"
	"github.com/fahdr/ecomm-sub005/internal/utils"
)

// OverrideStore persists per-customer routing overrides
type OverrideStore interface {
	Get(ctx context.Context, userID string) (*models.CustomerOverride, error)
	List(ctx context.Context) ([]*models.CustomerOverride, error)
	Set(ctx context.Context, override *models.CustomerOverride) error
	Delete(ctx context.Context, userID string) error
}

// AdminOverridesHandler handles customer override endpoints
type AdminOverridesHandler struct {
	overrides OverrideStore
	providers ProviderStore
	logger    *utils.Logger
}

// NewAdminOverridesHandler creates a new admin overrides handler
func NewAdminOverridesHandler(overrides OverrideStore, providers ProviderStore) *AdminOverridesHandler {
	return &AdminOverridesHandler{
		overrides: overrides,
		providers: providers,
		logger:    utils.NewLogger("admin-overrides"),
	}
}

// OverrideRequest is the body of PUT /admin/overrides/{user_id}
type OverrideRequest struct {
	ProviderName string `json:"provider_name"`
	ModelName    string `json:"model_name,omitempty"`
}

func (h *AdminOverridesHandler) storeError(w http.ResponseWriter, err error, action string) {
	if errors.Is(err, storage.ErrOverrideNotFound) {
		utils.RespondWithError(w, http.StatusNotFound, "Override not found")
		return
	}
	h.logger.Error("Override store failure", "action", action, "error", err)
	utils.RespondWithError(w, http.StatusInternalServerError, "Failed to "+action+" override")
}

// List handles GET /admin/overrides
func (h *AdminOverridesHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.overrides.List(r.Context())
	if err != nil {
		h.storeError(w, err, "list")
		return
	}
	if list == nil {
		list = []*models.CustomerOverride{}
	}
	utils.RespondWithJSON(w, http.StatusOK, list)
}

// Get handles GET /admin/overrides/{user_id}
func (h *AdminOverridesHandler) Get(w http.ResponseWriter, r *http.Request) {
	override, err := h.overrides.Get(r.Context(), mux.Vars(r)["user_id"])
	if err != nil {
		h.storeError(w, err, "get")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, override)
}

// Set handles PUT /admin/overrides/{user_id}. The provider must exist; it
// may be disabled, in which case the override is ignored until it is enabled.
func (h *AdminOverridesHandler) Set(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["user_id"]

	var req OverrideRequest
	if err := utils.DecodeJSONBody(w, r, &req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.ProviderName = strings.TrimSpace(req.ProviderName)
	req.ModelName = strings.TrimSpace(req.ModelName)
	if req.ProviderName == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "provider_name is required")
		return
	}

	provider, err := h.providers.GetByName(r.Context(), req.ProviderName)
	if errors.Is(err, storage.ErrProviderNotFound) {
		utils.RespondWithError(w, http.StatusBadRequest, "Unknown provider: "+req.ProviderName)
		return
	}
	if err != nil {
		h.logger.Error("Failed to load provider", "provider", req.ProviderName, "error", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to set override")
		return
	}
	if req.ModelName != "" && !provider.Supports(req.ModelName) {
		utils.RespondWithError(w, http.StatusBadRequest, "Provider "+provider.Name+" does not serve model "+req.ModelName)
		return
	}

	override := &models.CustomerOverride{
		UserID:       userID,
		ProviderName: req.ProviderName,
		ModelName:    req.ModelName,
	}
	if err := h.overrides.Set(r.Context(), override); err != nil {
		h.storeError(w, err, "set")
		return
	}

	h.logger.Info("Override set", "user_id", userID, "provider", override.ProviderName, "model", override.ModelName)
	utils.RespondWithJSON(w, http.StatusOK, override)
}

// Delete handles DELETE /admin/overrides/{user_id}
func (h *AdminOverridesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["user_id"]
	if err := h.overrides.Delete(r.Context(), userID); err != nil {
		h.storeError(w, err, "delete")
		return
	}
	h.logger.Info("Override cleared", "user_id", userID)
	w.WriteHeader(http.StatusNoContent)
}
