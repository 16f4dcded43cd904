package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/fahdr/ecomm-sub005/internal/billing"
	"github.com/fahdr/ecomm-sub005/internal/queue"
	"github.com/fahdr/ecomm-sub005/internal/utils"
)

const defaultDeadLetterLimit = 100

// DeadLetterSource lists ledger entries that could not be persisted and
// requeues them on demand
type DeadLetterSource interface {
	DeadLetters(ctx context.Context, maxItems int) ([]queue.DeadLetterItem, error)
	ReplayDeadLetter(ctx context.Context, id string) error
}

// AdminLedgerHandler serves customer spend and ledger failure inspection
type AdminLedgerHandler struct {
	spend       billing.Service
	deadLetters DeadLetterSource
	logger      *utils.Logger
}

// NewAdminLedgerHandler creates a new admin ledger handler
func NewAdminLedgerHandler(spend billing.Service, deadLetters DeadLetterSource) *AdminLedgerHandler {
	return &AdminLedgerHandler{
		spend:       spend,
		deadLetters: deadLetters,
		logger:      utils.NewLogger("admin-ledger"),
	}
}

// CustomerSpendResponse is a customer's month-to-date spend
type CustomerSpendResponse struct {
	UserID  string  `json:"user_id"`
	Month   string  `json:"month"` // YYYY-MM, UTC
	CostUSD float64 `json:"cost_usd"`
}

// CustomerSpend handles GET /admin/customers/{user_id}/spend
func (h *AdminLedgerHandler) CustomerSpend(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["user_id"]

	cost, err := billing.MonthlySpend(r.Context(), h.spend, userID)
	if err != nil {
		h.logger.Error("Failed to read spend", "user_id", userID, "error", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to read spend")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, CustomerSpendResponse{
		UserID:  userID,
		Month:   time.Now().UTC().Format("2006-01"),
		CostUSD: cost,
	})
}

// DeadLetters handles GET /admin/ledger/dead-letters?limit=
func (h *AdminLedgerHandler) DeadLetters(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(r, "limit")
	if !ok || limit < 0 {
		utils.RespondWithError(w, http.StatusBadRequest, "limit must be a positive integer")
		return
	}
	if limit == 0 {
		limit = defaultDeadLetterLimit
	}

	items, err := h.deadLetters.DeadLetters(r.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to list dead letters", "error", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to list dead letters")
		return
	}
	if items == nil {
		items = []queue.DeadLetterItem{}
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"count": len(items),
		"items": items,
	})
}

// ReplayDeadLetter handles POST /admin/ledger/dead-letters/{id}/replay
func (h *AdminLedgerHandler) ReplayDeadLetter(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	err := h.deadLetters.ReplayDeadLetter(r.Context(), id)
	if errors.Is(err, queue.ErrItemNotFound) {
		utils.RespondWithError(w, http.StatusNotFound, "Dead letter not found")
		return
	}
	if err != nil {
		h.logger.Error("Failed to replay dead letter", "id", id, "error", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to replay dead letter")
		return
	}

	h.logger.Info("Dead letter replayed", "id", id)
	utils.RespondWithJSON(w, http.StatusAccepted, map[string]string{"id": id, "status": "requeued"})
}
