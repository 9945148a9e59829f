package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"transferai/internal/coursemap/models"
	dErrors "transferai/pkg/domain-errors"
	"transferai/pkg/platform/httputil"
	"transferai/pkg/requestcontext"
)

// Service is the course map store as exposed over HTTP.
type Service interface {
	Create(ctx context.Context, ownerID, name string, nodes, edges json.RawMessage) (*models.CourseMap, error)
	List(ctx context.Context, ownerID string) ([]models.Summary, error)
	Get(ctx context.Context, ownerID, id string) (*models.CourseMap, error)
	Update(ctx context.Context, ownerID, id string, u models.Update) (*models.CourseMap, error)
	Save(ctx context.Context, ownerID, id, name string, nodes, edges json.RawMessage) (*models.CourseMap, error)
	Delete(ctx context.Context, ownerID, id string) error
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the course map endpoints. r must already require
// authentication; every map is scoped to the caller.
func (h *Handler) Register(r chi.Router) {
	r.Post("/course-maps", h.HandleCreate)
	r.Get("/course-maps", h.HandleList)
	r.Post("/course-map", h.HandleSave)
	r.Get("/course-map/{mapID}", h.HandleGet)
	r.Put("/course-map/{mapID}", h.HandleUpdate)
	r.Delete("/course-map/{mapID}", h.HandleDelete)
}

// HandleCreate handles POST /course-maps. Nodes and edges are both required.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	ownerID := requestcontext.AccountID(ctx)

	req, ok := httputil.DecodeAndPrepare[SaveRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	if !req.hasGraph() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "missing 'nodes' or 'edges' in request body"))
		return
	}

	m, err := h.service.Create(ctx, ownerID, deref(req.DisplayName()), req.Nodes, req.Edges)
	if err != nil {
		h.fail(ctx, "failed to create course map", ownerID, "", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toSaveResponse("Course map saved successfully", m))
}

// HandleSave handles POST /course-map: an update when map_id is set,
// otherwise a create.
func (h *Handler) HandleSave(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	ownerID := requestcontext.AccountID(ctx)

	req, ok := httputil.DecodeAndPrepare[SaveRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	m, err := h.service.Save(ctx, ownerID, req.MapID, deref(req.DisplayName()), req.Nodes, req.Edges)
	if err != nil {
		h.fail(ctx, "failed to save course map", ownerID, req.MapID, err)
		httputil.WriteError(w, err)
		return
	}
	status := http.StatusOK
	if req.MapID == "" {
		status = http.StatusCreated
	}
	httputil.WriteJSON(w, status, toSaveResponse("Course map saved successfully", m))
}

// HandleList handles GET /course-maps.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ownerID := requestcontext.AccountID(ctx)

	maps, err := h.service.List(ctx, ownerID)
	if err != nil {
		h.fail(ctx, "failed to list course maps", ownerID, "", err)
		httputil.WriteError(w, err)
		return
	}
	out := make([]SummaryResponse, 0, len(maps))
	for _, m := range maps {
		out = append(out, SummaryResponse{MapID: m.ID, MapName: m.Name, CreatedAt: m.CreatedAt, LastUpdated: m.UpdatedAt})
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

// HandleGet handles GET /course-map/{mapID}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ownerID := requestcontext.AccountID(ctx)
	mapID := chi.URLParam(r, "mapID")

	m, err := h.service.Get(ctx, ownerID, mapID)
	if err != nil {
		h.fail(ctx, "failed to load course map", ownerID, mapID, err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toMapResponse(m))
}

// HandleUpdate handles PUT /course-map/{mapID}. Fields left out of the body
// keep their stored values.
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	ownerID := requestcontext.AccountID(ctx)
	mapID := chi.URLParam(r, "mapID")

	req, ok := httputil.DecodeAndPrepare[SaveRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	m, err := h.service.Update(ctx, ownerID, mapID, models.Update{
		Name:  req.DisplayName(),
		Nodes: req.Nodes,
		Edges: req.Edges,
	})
	if err != nil {
		h.fail(ctx, "failed to update course map", ownerID, mapID, err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toSaveResponse("Course map updated successfully", m))
}

// HandleDelete handles DELETE /course-map/{mapID}.
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ownerID := requestcontext.AccountID(ctx)
	mapID := chi.URLParam(r, "mapID")

	if err := h.service.Delete(ctx, ownerID, mapID); err != nil {
		h.fail(ctx, "failed to delete course map", ownerID, mapID, err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, MessageResponse{Message: "Course map deleted successfully"})
}

// fail logs at warn for client errors and at error otherwise.
func (h *Handler) fail(ctx context.Context, msg, ownerID, mapID string, err error) {
	level := slog.LevelError
	if dErrors.HasCode(err, dErrors.CodeNotFound) || dErrors.HasCode(err, dErrors.CodeValidation) ||
		dErrors.HasCode(err, dErrors.CodeBadRequest) || dErrors.HasCode(err, dErrors.CodeUnauthorized) {
		level = slog.LevelWarn
	}
	h.logger.Log(ctx, level, msg,
		"request_id", requestcontext.RequestID(ctx),
		"account_id", ownerID,
		"map_id", mapID,
		"error", err,
	)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
