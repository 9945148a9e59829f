// Package service manages students' saved course maps.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"transferai/internal/coursemap/models"
	"transferai/internal/coursemap/ports"
	dErrors "transferai/pkg/domain-errors"
	"transferai/pkg/platform/audit"
	"transferai/pkg/platform/sentinel"
	"transferai/pkg/requestcontext"
)

var emptyGraph = json.RawMessage("[]")

// Service stores course maps on behalf of their owners. Callers only ever
// see their own maps; another owner's map is indistinguishable from a
// missing one.
type Service struct {
	store          ports.Store
	newID          func() string
	logger         *slog.Logger
	auditPublisher ports.AuditPublisher
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(p ports.AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = p
	}
}

// WithIDGenerator replaces the random map ids. Tests use it for stable ids.
func WithIDGenerator(next func() string) Option {
	return func(s *Service) {
		s.newID = next
	}
}

func New(store ports.Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("course map store is required")
	}
	s := &Service{
		store:  store,
		newID:  uuid.NewString,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Create saves a new map for ownerID. A blank name becomes the default name
// and absent graph parts are stored empty.
func (s *Service) Create(ctx context.Context, ownerID, name string, nodes, edges json.RawMessage) (*models.CourseMap, error) {
	if ownerID == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	name, err := models.NormalizeName(name)
	if err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx).UTC()
	m := &models.CourseMap{
		ID:        s.newID(),
		OwnerID:   ownerID,
		Name:      name,
		Nodes:     orEmpty(nodes),
		Edges:     orEmpty(edges),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Create(ctx, m); err != nil {
		return nil, s.storeError(err, "failed to save course map")
	}

	audit.Log(ctx, s.logger, s.auditPublisher, audit.EventCourseMapSaved,
		"account_id", ownerID,
		"map_id", m.ID,
		"created", true,
	)
	return m, nil
}

// List returns the owner's maps without their graphs, newest update first.
func (s *Service) List(ctx context.Context, ownerID string) ([]models.Summary, error) {
	if ownerID == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	maps, err := s.store.List(ctx, ownerID)
	if err != nil {
		return nil, s.storeError(err, "failed to list course maps")
	}
	return maps, nil
}

func (s *Service) Get(ctx context.Context, ownerID, id string) (*models.CourseMap, error) {
	if ownerID == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	if id == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "map id is required")
	}
	m, err := s.store.Get(ctx, ownerID, id)
	if err != nil {
		return nil, s.storeError(err, "failed to load course map")
	}
	return m, nil
}

// Update changes the fields set in u. An update that sets nothing is
// rejected rather than silently touching the timestamp.
func (s *Service) Update(ctx context.Context, ownerID, id string, u models.Update) (*models.CourseMap, error) {
	if ownerID == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	if id == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "map id is required")
	}
	if u.IsEmpty() {
		return nil, dErrors.New(dErrors.CodeValidation, "no update data provided (nodes, edges, or name)")
	}
	if u.Name != nil {
		name, err := models.NormalizeName(*u.Name)
		if err != nil {
			return nil, err
		}
		u.Name = &name
	}

	m, err := s.store.Update(ctx, ownerID, id, u, requestcontext.Now(ctx).UTC())
	if err != nil {
		return nil, s.storeError(err, "failed to update course map")
	}

	audit.Log(ctx, s.logger, s.auditPublisher, audit.EventCourseMapSaved,
		"account_id", ownerID,
		"map_id", id,
		"created", false,
	)
	return m, nil
}

// Save updates the map named by id, or creates one when id is empty. It
// backs the editor's single save action.
func (s *Service) Save(ctx context.Context, ownerID, id, name string, nodes, edges json.RawMessage) (*models.CourseMap, error) {
	if id == "" {
		return s.Create(ctx, ownerID, name, nodes, edges)
	}
	u := models.Update{Nodes: nodes, Edges: edges}
	if strings.TrimSpace(name) != "" {
		u.Name = &name
	}
	return s.Update(ctx, ownerID, id, u)
}

func (s *Service) Delete(ctx context.Context, ownerID, id string) error {
	if ownerID == "" {
		return dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	if id == "" {
		return dErrors.New(dErrors.CodeBadRequest, "map id is required")
	}
	if err := s.store.Delete(ctx, ownerID, id); err != nil {
		return s.storeError(err, "failed to delete course map")
	}

	audit.Log(ctx, s.logger, s.auditPublisher, audit.EventCourseMapDeleted,
		"account_id", ownerID,
		"map_id", id,
	)
	return nil
}

func (s *Service) storeError(err error, message string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, "course map not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict, message)
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, message)
	}
}

func orEmpty(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return emptyGraph
	}
	return raw
}
