package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/fahdr/ecomm-sub005/internal/auth"
	"github.com/fahdr/ecomm-sub005/internal/middleware"
	"github.com/fahdr/ecomm-sub005/internal/utils"
)

// NewRouter creates the HTTP router over wired dependencies
func NewRouter(deps *Dependencies) *mux.Router {
	cfg := deps.Config

	var encryption CredentialEncrypter
	if deps.Encryption != nil {
		encryption = deps.Encryption
	}

	generateHandler := NewGenerateHandler(deps.Dispatcher, cfg.Gateway.DefaultTemperature)
	usageHandler := NewUsageHandler(deps.Reporter)
	providersHandler := NewAdminProvidersHandler(deps.Providers, deps.Registry, encryption)
	overridesHandler := NewAdminOverridesHandler(deps.Overrides, deps.Providers)
	ledgerHandler := NewAdminLedgerHandler(deps.Spend, deps.Ledger)
	healthHandler := NewHealthHandler(deps.HealthChecks())

	r := mux.NewRouter()
	r.Use(middleware.RequestLogMiddleware(utils.NewLogger("http")))
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		utils.RespondWithError(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		utils.RespondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	// Health check endpoint - public
	r.HandleFunc("/health", healthHandler.Health).Methods(http.MethodGet)

	// Internal service API - shared service key
	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(middleware.ServiceKeyMiddleware(cfg.Gateway.ServiceKey))
	api.HandleFunc("/generate", generateHandler.Generate).Methods(http.MethodPost)
	api.HandleFunc("/usage/summary", usageHandler.Summary).Methods(http.MethodGet)
	api.HandleFunc("/usage/by-provider", usageHandler.ByProvider).Methods(http.MethodGet)
	api.HandleFunc("/usage/by-service", usageHandler.ByService).Methods(http.MethodGet)
	api.HandleFunc("/usage/by-customer", usageHandler.ByCustomer).Methods(http.MethodGet)

	// Admin API - read endpoints need viewer, mutations need admin
	viewer := middleware.AdminJWTMiddleware(cfg.JWTSecret, auth.RoleViewer)
	admin := middleware.AdminJWTMiddleware(cfg.JWTSecret, auth.RoleAdmin)
	adminRoutes := r.PathPrefix("/admin").Subrouter()

	adminRoutes.Handle("/providers", viewer(http.HandlerFunc(providersHandler.List))).Methods(http.MethodGet)
	adminRoutes.Handle("/providers", admin(http.HandlerFunc(providersHandler.Create))).Methods(http.MethodPost)
	adminRoutes.Handle("/providers/reload", admin(http.HandlerFunc(providersHandler.Reload))).Methods(http.MethodPost)
	adminRoutes.Handle("/providers/{name}", viewer(http.HandlerFunc(providersHandler.Get))).Methods(http.MethodGet)
	adminRoutes.Handle("/providers/{name}", admin(http.HandlerFunc(providersHandler.Update))).Methods(http.MethodPut)
	adminRoutes.Handle("/providers/{name}", admin(http.HandlerFunc(providersHandler.Delete))).Methods(http.MethodDelete)
	adminRoutes.Handle("/providers/{name}/enable", admin(http.HandlerFunc(providersHandler.Enable))).Methods(http.MethodPost)
	adminRoutes.Handle("/providers/{name}/disable", admin(http.HandlerFunc(providersHandler.Disable))).Methods(http.MethodPost)
	adminRoutes.Handle("/providers/{name}/validate", admin(http.HandlerFunc(providersHandler.Validate))).Methods(http.MethodPost)

	adminRoutes.Handle("/overrides", viewer(http.HandlerFunc(overridesHandler.List))).Methods(http.MethodGet)
	adminRoutes.Handle("/overrides/{user_id}", viewer(http.HandlerFunc(overridesHandler.Get))).Methods(http.MethodGet)
	adminRoutes.Handle("/overrides/{user_id}", admin(http.HandlerFunc(overridesHandler.Set))).Methods(http.MethodPut)
	adminRoutes.Handle("/overrides/{user_id}", admin(http.HandlerFunc(overridesHandler.Delete))).Methods(http.MethodDelete)

	adminRoutes.Handle("/customers/{user_id}/spend", viewer(http.HandlerFunc(ledgerHandler.CustomerSpend))).Methods(http.MethodGet)
	adminRoutes.Handle("/ledger/dead-letters", viewer(http.HandlerFunc(ledgerHandler.DeadLetters))).Methods(http.MethodGet)
	adminRoutes.Handle("/ledger/dead-letters/{id}/replay", admin(http.HandlerFunc(ledgerHandler.ReplayDeadLetter))).Methods(http.MethodPost)

	return r
}
