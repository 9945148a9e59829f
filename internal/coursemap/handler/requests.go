package handler

import (
	"encoding/json"
	"time"

	"transferai/internal/coursemap/models"
	dErrors "transferai/pkg/domain-errors"
)

// SaveRequest is the body of POST /course-maps, POST /course-map and
// PUT /course-map/{mapID}. The editor sends map_name; name is also accepted.
type SaveRequest struct {
	MapID   string          `json:"map_id"`
	MapName *string         `json:"map_name"`
	Name    *string         `json:"name"`
	Nodes   json.RawMessage `json:"nodes"`
	Edges   json.RawMessage `json:"edges"`
}

// Validate normalizes the graph parts: JSON null counts as absent.
func (r *SaveRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	var err error
	if r.Nodes, err = models.Graph("nodes", r.Nodes); err != nil {
		return err
	}
	if r.Edges, err = models.Graph("edges", r.Edges); err != nil {
		return err
	}
	return nil
}

// DisplayName returns map_name, falling back to name.
func (r *SaveRequest) DisplayName() *string {
	if r.MapName != nil {
		return r.MapName
	}
	return r.Name
}

func (r *SaveRequest) hasGraph() bool {
	return r.Nodes != nil && r.Edges != nil
}

type SaveResponse struct {
	Message     string    `json:"message"`
	MapID       string    `json:"map_id"`
	MapName     string    `json:"map_name"`
	LastUpdated time.Time `json:"last_updated"`
}

type SummaryResponse struct {
	MapID       string    `json:"map_id"`
	MapName     string    `json:"map_name"`
	CreatedAt   time.Time `json:"created_at"`
	LastUpdated time.Time `json:"last_updated"`
}

type MapResponse struct {
	MapID       string          `json:"map_id"`
	MapName     string          `json:"map_name"`
	Nodes       json.RawMessage `json:"nodes"`
	Edges       json.RawMessage `json:"edges"`
	CreatedAt   time.Time       `json:"created_at"`
	LastUpdated time.Time       `json:"last_updated"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

func toMapResponse(m *models.CourseMap) MapResponse {
	return MapResponse{
		MapID:       m.ID,
		MapName:     m.Name,
		Nodes:       m.Nodes,
		Edges:       m.Edges,
		CreatedAt:   m.CreatedAt,
		LastUpdated: m.UpdatedAt,
	}
}

func toSaveResponse(message string, m *models.CourseMap) SaveResponse {
	return SaveResponse{Message: message, MapID: m.ID, MapName: m.Name, LastUpdated: m.UpdatedAt}
}
