package models

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	dErrors "transferai/pkg/domain-errors"
)

const (
	// DefaultName is given to maps saved without one.
	DefaultName = "Untitled Course Map"

	MaxNameLength = 200
)

// CourseMap is a student's saved course graph. Nodes and edges belong to the
// graph editor and are stored verbatim.
type CourseMap struct {
	ID        string
	OwnerID   string
	Name      string
	Nodes     json.RawMessage
	Edges     json.RawMessage
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Summary lists a map without its graph.
type Summary struct {
	ID        string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Update holds the fields to change. Nil fields keep their stored value.
type Update struct {
	Name  *string
	Nodes json.RawMessage
	Edges json.RawMessage
}

// IsEmpty reports whether u changes nothing.
func (u Update) IsEmpty() bool {
	return u.Name == nil && u.Nodes == nil && u.Edges == nil
}

// NormalizeName trims name and falls back to DefaultName when it is blank.
func NormalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return DefaultName, nil
	}
	if len([]rune(name)) > MaxNameLength {
		return "", dErrors.New(dErrors.CodeValidation, "map name is too long")
	}
	return name, nil
}

// Graph returns raw as a graph part, or nil when it is absent or JSON null.
// Present values must be JSON arrays.
func Graph(field string, raw json.RawMessage) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	if trimmed[0] != '[' || !json.Valid(trimmed) {
		return nil, dErrors.New(dErrors.CodeValidation, field+" must be an array")
	}
	return trimmed, nil
}
