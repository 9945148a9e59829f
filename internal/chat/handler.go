package chat

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"transferai/pkg/platform/httputil"
	"transferai/pkg/requestcontext"
)

type chatter interface {
	Chat(ctx context.Context, req *Request) (string, error)
}

// Handler serves the metered chat endpoint.
type Handler struct {
	service chatter
	logger  *slog.Logger
}

func NewHandler(service chatter, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts POST /chat. r must already require authentication and quota.
func (h *Handler) Register(r chi.Router) {
	r.Post("/chat", h.HandleChat)
}

func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	req, ok := httputil.DecodeAndPrepare[Request](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	reply, err := h.service.Chat(ctx, req)
	if err != nil {
		h.logger.ErrorContext(ctx, "chat failed",
			"request_id", requestID,
			"account_id", requestcontext.AccountID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "chat answered",
		"request_id", requestID,
		"account_id", requestcontext.AccountID(ctx),
		"images", len(req.ImageFilenames),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, Response{Reply: reply})
}
