package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/fahdr/ecomm-sub005/internal/models"
	"github.com/fahdr/ecomm-sub005/internal/providers"
	"github.com/fahdr/ecomm-sub005/internal/storage"
	"github.com/fahdr/ecomm-sub005/internal/utils"
)

// validateTimeout bounds the vendor round trip of a credential check
const validateTimeout = 15 * time.Second

// ProviderStore persists provider configurations
type ProviderStore interface {
	GetByName(ctx context.Context, name string) (*models.Provider, error)
	List(ctx context.Context) ([]*models.Provider, error)
	Create(ctx context.Context, provider *models.Provider) error
	Update(ctx context.Context, provider *models.Provider) error
	SetEnabled(ctx context.Context, name string, enabled bool) error
	Delete(ctx context.Context, name string) error
}

// RegistryControl is the admin view of the live provider registry
type RegistryControl interface {
	Reload(ctx context.Context) error
	Lookup(name string) (*providers.Entry, bool)
	Validate(ctx context.Context, cfg *models.Provider) error
	SupportsAdapter(adapterType string) bool
	LoadedAt() time.Time
}

// CredentialEncrypter seals provider API keys before they are stored
type CredentialEncrypter interface {
	EncryptCredential(credential string) (string, error)
}

// AdminProvidersHandler handles provider management endpoints
type AdminProvidersHandler struct {
	store      ProviderStore
	registry   RegistryControl
	encryption CredentialEncrypter // nil stores credentials as given
	logger     *utils.Logger
}

// NewAdminProvidersHandler creates a new admin providers handler
func NewAdminProvidersHandler(store ProviderStore, registry RegistryControl, encryption CredentialEncrypter) *AdminProvidersHandler {
	return &AdminProvidersHandler{
		store:      store,
		registry:   registry,
		encryption: encryption,
		logger:     utils.NewLogger("admin-providers"),
	}
}

// ProviderRequest is the body of create and update calls. On update, absent
// fields keep their stored value.
type ProviderRequest struct {
	Name         string              `json:"name"`
	DisplayName  *string             `json:"display_name,omitempty"`
	Models       []string            `json:"models,omitempty"`
	Priority     *int                `json:"priority,omitempty"`
	RateLimitRPM *int                `json:"rate_limit_rpm,omitempty"`
	Enabled      *bool               `json:"enabled,omitempty"`
	Credential   *string             `json:"credential,omitempty"`
	Config       models.JSONB        `json:"config,omitempty"`
	Pricing      models.PricingTable `json:"pricing,omitempty"`
}

// ProviderResponse represents a provider without its credential
type ProviderResponse struct {
	*models.Provider
	HasCredential bool `json:"has_credential"`
	Live          bool `json:"live"` // serving in this instance's registry
}

func (h *AdminProvidersHandler) toResponse(p *models.Provider) ProviderResponse {
	_, live := h.registry.Lookup(p.Name)
	return ProviderResponse{
		Provider:      p,
		HasCredential: p.EncryptedCredential != "",
		Live:          live,
	}
}

func (h *AdminProvidersHandler) sealCredential(credential string) (string, error) {
	credential = strings.TrimSpace(credential)
	if h.encryption == nil {
		return credential, nil
	}
	return h.encryption.EncryptCredential(credential)
}

// apply copies the request onto p and checks the result
func (h *AdminProvidersHandler) apply(req *ProviderRequest, p *models.Provider) (string, error) {
	if req.DisplayName != nil {
		p.DisplayName = *req.DisplayName
	}
	if req.Models != nil {
		p.Models = models.StringList(req.Models)
	}
	if req.Priority != nil {
		p.Priority = *req.Priority
	}
	if req.RateLimitRPM != nil {
		p.RateLimitRPM = *req.RateLimitRPM
	}
	if req.Enabled != nil {
		p.Enabled = *req.Enabled
	}
	if req.Config != nil {
		p.Config = req.Config
	}
	if req.Pricing != nil {
		p.Pricing = req.Pricing
	}
	if req.Credential != nil {
		sealed, err := h.sealCredential(*req.Credential)
		if err != nil {
			return "", err
		}
		p.EncryptedCredential = sealed
	}

	switch {
	case len(p.Models) == 0:
		return "at least one model is required", nil
	case p.RateLimitRPM < 0:
		return "rate_limit_rpm must not be negative", nil
	case !h.registry.SupportsAdapter(p.AdapterType()):
		return "unsupported adapter type: " + p.AdapterType(), nil
	}
	for model, price := range p.Pricing {
		if price.InputPer1K < 0 || price.OutputPer1K < 0 {
			return "pricing for " + model + " must not be negative", nil
		}
	}
	return "", nil
}

// reload refreshes the local registry; failures only delay visibility
func (h *AdminProvidersHandler) reload(ctx context.Context) {
	if err := h.registry.Reload(ctx); err != nil {
		h.logger.Error("Failed to reload provider registry", "error", err)
	}
}

func (h *AdminProvidersHandler) storeError(w http.ResponseWriter, err error, action string) {
	switch {
	case errors.Is(err, storage.ErrProviderNotFound):
		utils.RespondWithError(w, http.StatusNotFound, "Provider not found")
	case errors.Is(err, storage.ErrProviderExists):
		utils.RespondWithError(w, http.StatusConflict, "Provider with this name already exists")
	default:
		h.logger.Error("Provider store failure", "action", action, "error", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to "+action+" provider")
	}
}

// List handles GET /admin/providers
func (h *AdminProvidersHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.store.List(r.Context())
	if err != nil {
		h.storeError(w, err, "list")
		return
	}

	out := make([]ProviderResponse, 0, len(list))
	for _, p := range list {
		out = append(out, h.toResponse(p))
	}
	utils.RespondWithJSON(w, http.StatusOK, out)
}

// Create handles POST /admin/providers
func (h *AdminProvidersHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req ProviderRequest
	if err := utils.DecodeJSONBody(w, r, &req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "Provider name is required")
		return
	}

	provider := &models.Provider{Name: name, DisplayName: name, Enabled: true}
	msg, err := h.apply(&req, provider)
	if err != nil {
		h.logger.Error("Failed to encrypt credential", "provider", name, "error", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to encrypt credential")
		return
	}
	if msg != "" {
		utils.RespondWithError(w, http.StatusBadRequest, msg)
		return
	}

	if err := h.store.Create(r.Context(), provider); err != nil {
		h.storeError(w, err, "create")
		return
	}
	h.reload(r.Context())

	h.logger.Info("Provider created", "provider", name, "enabled", provider.Enabled)
	utils.RespondWithJSON(w, http.StatusCreated, h.toResponse(provider))
}

// Get handles GET /admin/providers/{name}
func (h *AdminProvidersHandler) Get(w http.ResponseWriter, r *http.Request) {
	provider, err := h.store.GetByName(r.Context(), mux.Vars(r)["name"])
	if err != nil {
		h.storeError(w, err, "get")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, h.toResponse(provider))
}

// Update handles PUT /admin/providers/{name}
func (h *AdminProvidersHandler) Update(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	var req ProviderRequest
	if err := utils.DecodeJSONBody(w, r, &req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Name != "" && req.Name != name {
		utils.RespondWithError(w, http.StatusBadRequest, "Provider name cannot be changed")
		return
	}

	provider, err := h.store.GetByName(r.Context(), name)
	if err != nil {
		h.storeError(w, err, "get")
		return
	}

	msg, err := h.apply(&req, provider)
	if err != nil {
		h.logger.Error("Failed to encrypt credential", "provider", name, "error", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to encrypt credential")
		return
	}
	if msg != "" {
		utils.RespondWithError(w, http.StatusBadRequest, msg)
		return
	}

	if err := h.store.Update(r.Context(), provider); err != nil {
		h.storeError(w, err, "update")
		return
	}
	h.reload(r.Context())

	utils.RespondWithJSON(w, http.StatusOK, h.toResponse(provider))
}

// Delete handles DELETE /admin/providers/{name}
func (h *AdminProvidersHandler) Delete(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if err := h.store.Delete(r.Context(), name); err != nil {
		h.storeError(w, err, "delete")
		return
	}
	h.reload(r.Context())

	h.logger.Info("Provider deleted", "provider", name)
	w.WriteHeader(http.StatusNoContent)
}

// Enable handles POST /admin/providers/{name}/enable
func (h *AdminProvidersHandler) Enable(w http.ResponseWriter, r *http.Request) {
	h.setEnabled(w, r, true)
}

// Disable handles POST /admin/providers/{name}/disable
func (h *AdminProvidersHandler) Disable(w http.ResponseWriter, r *http.Request) {
	h.setEnabled(w, r, false)
}

func (h *AdminProvidersHandler) setEnabled(w http.ResponseWriter, r *http.Request, enabled bool) {
	name := mux.Vars(r)["name"]
	if err := h.store.SetEnabled(r.Context(), name, enabled); err != nil {
		h.storeError(w, err, "update")
		return
	}
	h.reload(r.Context())

	provider, err := h.store.GetByName(r.Context(), name)
	if err != nil {
		h.storeError(w, err, "get")
		return
	}
	h.logger.Info("Provider toggled", "provider", name, "enabled", enabled)
	utils.RespondWithJSON(w, http.StatusOK, h.toResponse(provider))
}

// Validate handles POST /admin/providers/{name}/validate
func (h *AdminProvidersHandler) Validate(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	provider, err := h.store.GetByName(r.Context(), name)
	if err != nil {
		h.storeError(w, err, "get")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), validateTimeout)
	defer cancel()

	if err := h.registry.Validate(ctx, provider); err != nil {
		utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
			"provider": name,
			"valid":    false,
			"error":    err.Error(),
		})
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"provider": name,
		"valid":    true,
	})
}

// Reload handles POST /admin/providers/reload
func (h *AdminProvidersHandler) Reload(w http.ResponseWriter, r *http.Request) {
	if err := h.registry.Reload(r.Context()); err != nil {
		h.logger.Error("Forced registry reload failed", "error", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to reload providers")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"reloaded_at": h.registry.LoadedAt(),
	})
}
