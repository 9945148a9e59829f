package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"transferai/internal/usage/models"
	dErrors "transferai/pkg/domain-errors"
	"transferai/pkg/platform/httputil"
	"transferai/pkg/requestcontext"
)

// Service is the part of the usage ledger exposed over HTTP.
type Service interface {
	Status(ctx context.Context, accountID string) (*models.Status, error)
	UpdateTier(ctx context.Context, accountID string, tier models.Tier) error
}

// Handler exposes the caller's usage.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the usage endpoints. r must already require authentication.
func (h *Handler) Register(r chi.Router) {
	r.Get("/user-status", h.HandleStatus)
}

// RegisterAdmin mounts operator endpoints. r must already require the admin token.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Put("/accounts/{accountID}/tier", h.HandleUpdateTier)
}

// HandleStatus handles GET /user-status.
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	accountID := requestcontext.AccountID(ctx)
	if accountID == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	status, err := h.service.Status(ctx, accountID)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to load usage status",
			"request_id", requestcontext.RequestID(ctx),
			"account_id", accountID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, status)
}

// HandleUpdateTier handles PUT /admin/accounts/{accountID}/tier.
func (h *Handler) HandleUpdateTier(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	accountID := chi.URLParam(r, "accountID")

	req, ok := httputil.DecodeAndPrepare[UpdateTierRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	tier, err := models.ParseTier(req.Tier)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.service.UpdateTier(ctx, accountID, tier); err != nil {
		h.logger.ErrorContext(ctx, "failed to update tier",
			"request_id", requestID,
			"account_id", accountID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "tier updated",
		"request_id", requestID,
		"account_id", accountID,
		"tier", tier.String(),
	)
	httputil.WriteJSON(w, http.StatusOK, UpdateTierResponse{AccountID: accountID, Tier: tier.String()})
}
