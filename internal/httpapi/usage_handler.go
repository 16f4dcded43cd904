package httpapi

import (
	"net/http"
	"strconv"

	"github.com/fahdr/ecomm-sub005/internal/usage"
	"github.com/fahdr/ecomm-sub005/internal/utils"
)

// UsageHandler serves the read-only ledger reports
type UsageHandler struct {
	reporter *usage.Reporter
	logger   *utils.Logger
}

// NewUsageHandler creates a new usage handler
func NewUsageHandler(reporter *usage.Reporter) *UsageHandler {
	return &UsageHandler{
		reporter: reporter,
		logger:   utils.NewLogger("usage-handler"),
	}
}

// queryInt parses an optional integer query parameter; absent means 0
func queryInt(r *http.Request, name string) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}

func (h *UsageHandler) days(w http.ResponseWriter, r *http.Request) (int, bool) {
	days, ok := queryInt(r, "days")
	if !ok {
		utils.RespondWithError(w, http.StatusBadRequest, "days must be an integer")
	}
	return days, ok
}

func (h *UsageHandler) respond(w http.ResponseWriter, report interface{}, err error) {
	if err != nil {
		h.logger.Error("Failed to build usage report", "error", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to load usage")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, report)
}

// Summary handles GET /api/v1/usage/summary?days=
func (h *UsageHandler) Summary(w http.ResponseWriter, r *http.Request) {
	days, ok := h.days(w, r)
	if !ok {
		return
	}
	report, err := h.reporter.Summary(r.Context(), days)
	h.respond(w, report, err)
}

// ByProvider handles GET /api/v1/usage/by-provider?days=
func (h *UsageHandler) ByProvider(w http.ResponseWriter, r *http.Request) {
	days, ok := h.days(w, r)
	if !ok {
		return
	}
	report, err := h.reporter.ByProvider(r.Context(), days)
	h.respond(w, report, err)
}

// ByService handles GET /api/v1/usage/by-service?days=
func (h *UsageHandler) ByService(w http.ResponseWriter, r *http.Request) {
	days, ok := h.days(w, r)
	if !ok {
		return
	}
	report, err := h.reporter.ByService(r.Context(), days)
	h.respond(w, report, err)
}

// ByCustomer handles GET /api/v1/usage/by-customer?days=&limit=
func (h *UsageHandler) ByCustomer(w http.ResponseWriter, r *http.Request) {
	days, ok := h.days(w, r)
	if !ok {
		return
	}
	limit, ok := queryInt(r, "limit")
	if !ok {
		utils.RespondWithError(w, http.StatusBadRequest, "limit must be an integer")
		return
	}
	report, err := h.reporter.ByCustomer(r.Context(), days, limit)
	h.respond(w, report, err)
}
