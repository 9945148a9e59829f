package service

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"transferai/internal/coursemap/models"
	"transferai/internal/coursemap/store/memory"
	dErrors "transferai/pkg/domain-errors"
	"transferai/pkg/platform/audit"
	"transferai/pkg/requestcontext"
)

type captureAudit struct {
	events []audit.Event
}

func (c *captureAudit) Emit(_ context.Context, e audit.Event) error {
	c.events = append(c.events, e)
	return nil
}

// Justification for unit tests: maps are private to their owner, and partial
// updates must leave untouched fields as they were.
type ServiceSuite struct {
	suite.Suite
	store   *memory.InMemoryStore
	audit   *captureAudit
	service *Service
	now     time.Time
	ids     int
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.store = memory.New()
	s.audit = &captureAudit{}
	s.ids = 0
	svc, err := New(s.store,
		WithAuditPublisher(s.audit),
		WithIDGenerator(func() string {
			s.ids++
			return fmt.Sprintf("map-%d", s.ids)
		}),
	)
	s.Require().NoError(err)
	s.service = svc
	s.now = time.Date(2025, 4, 2, 9, 0, 0, 0, time.UTC)
}

func (s *ServiceSuite) at(offset time.Duration) context.Context {
	return requestcontext.WithTime(context.Background(), s.now.Add(offset))
}

func (s *ServiceSuite) create(owner, name string) *models.CourseMap {
	m, err := s.service.Create(s.at(0), owner, name, json.RawMessage(`[{"id":"1"}]`), json.RawMessage(`[]`))
	s.Require().NoError(err)
	return m
}

func (s *ServiceSuite) TestCreate() {
	s.Run("stores the graph verbatim", func() {
		m := s.create("alice", "  CS plan ")
		s.Equal("CS plan", m.Name)
		s.Equal(s.now, m.CreatedAt)

		got, err := s.service.Get(s.at(0), "alice", m.ID)
		s.Require().NoError(err)
		s.JSONEq(`[{"id":"1"}]`, string(got.Nodes))
		s.JSONEq(`[]`, string(got.Edges))
	})

	s.Run("blank name gets the default", func() {
		m := s.create("alice", "")
		s.Equal(models.DefaultName, m.Name)
	})

	s.Run("absent graph is stored empty", func() {
		m, err := s.service.Create(s.at(0), "alice", "x", nil, nil)
		s.Require().NoError(err)
		s.JSONEq(`[]`, string(m.Nodes))
	})

	s.Run("requires an owner", func() {
		_, err := s.service.Create(s.at(0), "", "x", nil, nil)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})
}

func (s *ServiceSuite) TestListIsOwnerScopedNewestFirst() {
	older := s.create("alice", "older")
	newer := s.create("alice", "newer")
	s.create("bob", "not yours")

	_, err := s.service.Update(s.at(time.Hour), "alice", older.ID, models.Update{Nodes: json.RawMessage(`[]`)})
	s.Require().NoError(err)

	maps, err := s.service.List(s.at(0), "alice")
	s.Require().NoError(err)
	s.Require().Len(maps, 2)
	s.Equal(older.ID, maps[0].ID)
	s.Equal(newer.ID, maps[1].ID)

	none, err := s.service.List(s.at(0), "carol")
	s.Require().NoError(err)
	s.NotNil(none)
	s.Empty(none)
}

func (s *ServiceSuite) TestAnotherOwnersMapIsNotFound() {
	m := s.create("alice", "mine")

	_, err := s.service.Get(s.at(0), "bob", m.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	name := "stolen"
	_, err = s.service.Update(s.at(0), "bob", m.ID, models.Update{Name: &name})
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	err = s.service.Delete(s.at(0), "bob", m.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	got, err := s.service.Get(s.at(0), "alice", m.ID)
	s.Require().NoError(err)
	s.Equal("mine", got.Name)
}

func (s *ServiceSuite) TestUpdate() {
	s.Run("partial update keeps other fields", func() {
		m := s.create("alice", "plan")
		name := "renamed"
		got, err := s.service.Update(s.at(time.Minute), "alice", m.ID, models.Update{Name: &name})
		s.Require().NoError(err)
		s.Equal("renamed", got.Name)
		s.JSONEq(`[{"id":"1"}]`, string(got.Nodes))
		s.Equal(s.now, got.CreatedAt)
		s.Equal(s.now.Add(time.Minute), got.UpdatedAt)
	})

	s.Run("empty update is rejected", func() {
		m := s.create("alice", "plan")
		_, err := s.service.Update(s.at(0), "alice", m.ID, models.Update{})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("unknown map", func() {
		_, err := s.service.Update(s.at(0), "alice", "nope", models.Update{Edges: json.RawMessage(`[]`)})
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *ServiceSuite) TestSave() {
	s.Run("without an id creates", func() {
		m, err := s.service.Save(s.at(0), "alice", "", "fresh", json.RawMessage(`[]`), json.RawMessage(`[]`))
		s.Require().NoError(err)
		s.NotEmpty(m.ID)
	})

	s.Run("with an id updates and keeps the name when none is sent", func() {
		m := s.create("alice", "keep me")
		got, err := s.service.Save(s.at(time.Minute), "alice", m.ID, "", json.RawMessage(`[{"id":"2"}]`), nil)
		s.Require().NoError(err)
		s.Equal(m.ID, got.ID)
		s.Equal("keep me", got.Name)
		s.JSONEq(`[{"id":"2"}]`, string(got.Nodes))
	})
}

func (s *ServiceSuite) TestDeleteIsAudited() {
	m := s.create("alice", "gone")
	s.Require().NoError(s.service.Delete(s.at(0), "alice", m.ID))

	_, err := s.service.Get(s.at(0), "alice", m.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	s.Require().Len(s.audit.events, 2)
	s.Equal(string(audit.EventCourseMapSaved), s.audit.events[0].Action)
	s.Equal(string(audit.EventCourseMapDeleted), s.audit.events[1].Action)
	s.Equal("alice", s.audit.events[1].AccountID)
	s.Equal(m.ID, s.audit.events[1].Attrs["map_id"])
}

func (s *ServiceSuite) TestNameTooLong() {
	long := make([]rune, models.MaxNameLength+1)
	for i := range long {
		long[i] = 'a'
	}
	_, err := s.service.Create(s.at(0), "alice", string(long), nil, nil)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}
