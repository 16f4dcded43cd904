package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/fahdr/ecomm-sub005/internal/dispatch"
	"github.com/fahdr/ecomm-sub005/internal/models"
	"github.com/fahdr/ecomm-sub005/internal/utils"
)

const (
	defaultUserID  = "anonymous"
	defaultService = "unknown"
)

// Generator serves one generation request
type Generator interface {
	Generate(ctx context.Context, req models.GenerationRequest) (*dispatch.Response, error)
}

// GenerateHandler handles POST /api/v1/generate
type GenerateHandler struct {
	dispatcher         Generator
	defaultTemperature float64
	logger             *utils.Logger
}

// NewGenerateHandler creates a new generate handler
func NewGenerateHandler(dispatcher Generator, defaultTemperature float64) *GenerateHandler {
	return &GenerateHandler{
		dispatcher:         dispatcher,
		defaultTemperature: defaultTemperature,
		logger:             utils.NewLogger("generate-handler"),
	}
}

// GenerateRequest is the body of POST /api/v1/generate
type GenerateRequest struct {
	UserID      string   `json:"user_id"`
	Service     string   `json:"service"`
	TaskType    string   `json:"task_type"`
	Prompt      string   `json:"prompt"`
	System      string   `json:"system,omitempty"`
	Model       string   `json:"model,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	JSONMode    bool     `json:"json_mode,omitempty"`
}

// validate checks the request and returns a message for the caller
func (req *GenerateRequest) validate() string {
	if strings.TrimSpace(req.Prompt) == "" {
		return "prompt is required"
	}
	if req.MaxTokens != nil && *req.MaxTokens < 0 {
		return "max_tokens must not be negative"
	}
	if req.Temperature != nil && (*req.Temperature < 0 || *req.Temperature > 2) {
		return "temperature must be between 0 and 2"
	}
	return ""
}

func (h *GenerateHandler) toModel(req *GenerateRequest) models.GenerationRequest {
	out := models.GenerationRequest{
		UserID:      orDefault(req.UserID, defaultUserID),
		ServiceName: orDefault(req.Service, defaultService),
		TaskType:    req.TaskType,
		Prompt:      req.Prompt,
		System:      req.System,
		Model:       strings.TrimSpace(req.Model),
		Temperature: h.defaultTemperature,
		JSONMode:    req.JSONMode,
	}
	if req.MaxTokens != nil {
		out.MaxTokens = *req.MaxTokens
	}
	if req.Temperature != nil {
		out.Temperature = *req.Temperature
	}
	return out
}

func orDefault(value, fallback string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return fallback
}

// Generate dispatches the request to a provider
func (h *GenerateHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	if err := utils.DecodeJSONBody(w, r, &req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if msg := req.validate(); msg != "" {
		utils.RespondWithError(w, http.StatusBadRequest, msg)
		return
	}

	genReq := h.toModel(&req)
	resp, err := h.dispatcher.Generate(r.Context(), genReq)
	if err != nil {
		status := dispatch.StatusCode(err)
		h.logger.Warn("Generation failed",
			"user_id", genReq.UserID, "service", genReq.ServiceName, "status", status, "error", err)
		utils.RespondWithError(w, status, err.Error())
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, resp)
}
