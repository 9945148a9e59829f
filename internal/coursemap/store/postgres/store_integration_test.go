//go:build integration

package postgres_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"transferai/internal/coursemap/models"
	coursemappg "transferai/internal/coursemap/store/postgres"
	platformpg "transferai/internal/platform/postgres"
	"transferai/pkg/platform/sentinel"
	"transferai/pkg/testutil/containers"
)

type CourseMapStoreSuite struct {
	suite.Suite
	pg    *containers.PostgresContainer
	store *coursemappg.PostgresStore
	now   time.Time
}

func TestCourseMapStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(CourseMapStoreSuite))
}

func (s *CourseMapStoreSuite) SetupSuite() {
	s.pg = containers.NewPostgresContainer(s.T())
	pool, err := platformpg.OpenPool(context.Background(), s.pg.DSN)
	s.Require().NoError(err)
	s.T().Cleanup(pool.Close)
	s.store = coursemappg.New(pool)
	s.now = time.Date(2025, 4, 2, 9, 0, 0, 0, time.UTC)
}

func (s *CourseMapStoreSuite) SetupTest() {
	s.Require().NoError(s.pg.Truncate(context.Background(), "course_maps"))
}

func (s *CourseMapStoreSuite) create(id, owner string, updated time.Time) {
	s.Require().NoError(s.store.Create(context.Background(), &models.CourseMap{
		ID:        id,
		OwnerID:   owner,
		Name:      "map " + id,
		Nodes:     json.RawMessage(`[{"id": "n1", "data": {"label": "MATH 1A"}}]`),
		Edges:     json.RawMessage(`[]`),
		CreatedAt: s.now,
		UpdatedAt: updated,
	}))
}

func (s *CourseMapStoreSuite) TestRoundTripKeepsGraph() {
	s.create("m1", "alice", s.now)

	got, err := s.store.Get(context.Background(), "alice", "m1")
	s.Require().NoError(err)
	s.JSONEq(`[{"id": "n1", "data": {"label": "MATH 1A"}}]`, string(got.Nodes))
	s.JSONEq(`[]`, string(got.Edges))
	s.Equal(s.now, got.CreatedAt)
}

func (s *CourseMapStoreSuite) TestDuplicateIDConflicts() {
	s.create("m1", "alice", s.now)
	err := s.store.Create(context.Background(), &models.CourseMap{
		ID: "m1", OwnerID: "bob", Name: "x", Nodes: json.RawMessage(`[]`), Edges: json.RawMessage(`[]`),
		CreatedAt: s.now, UpdatedAt: s.now,
	})
	s.ErrorIs(err, sentinel.ErrConflict)
}

func (s *CourseMapStoreSuite) TestListOrdersByUpdate() {
	s.create("m1", "alice", s.now)
	s.create("m2", "alice", s.now.Add(time.Hour))
	s.create("m3", "bob", s.now.Add(2*time.Hour))

	maps, err := s.store.List(context.Background(), "alice")
	s.Require().NoError(err)
	s.Require().Len(maps, 2)
	s.Equal("m2", maps[0].ID)
	s.Equal("m1", maps[1].ID)
}

func (s *CourseMapStoreSuite) TestPartialUpdate() {
	ctx := context.Background()
	s.create("m1", "alice", s.now)

	name := "renamed"
	got, err := s.store.Update(ctx, "alice", "m1", models.Update{Name: &name}, s.now.Add(time.Minute))
	s.Require().NoError(err)
	s.Equal("renamed", got.Name)
	s.JSONEq(`[{"id": "n1", "data": {"label": "MATH 1A"}}]`, string(got.Nodes))
	s.Equal(s.now.Add(time.Minute), got.UpdatedAt)

	got, err = s.store.Update(ctx, "alice", "m1", models.Update{Edges: json.RawMessage(`[{"source":"n1","target":"n2"}]`)}, s.now.Add(2*time.Minute))
	s.Require().NoError(err)
	s.Equal("renamed", got.Name)
	s.JSONEq(`[{"source":"n1","target":"n2"}]`, string(got.Edges))
}

func (s *CourseMapStoreSuite) TestOwnerScoping() {
	ctx := context.Background()
	s.create("m1", "alice", s.now)

	_, err := s.store.Get(ctx, "bob", "m1")
	s.ErrorIs(err, sentinel.ErrNotFound)

	name := "x"
	_, err = s.store.Update(ctx, "bob", "m1", models.Update{Name: &name}, s.now)
	s.ErrorIs(err, sentinel.ErrNotFound)

	s.ErrorIs(s.store.Delete(ctx, "bob", "m1"), sentinel.ErrNotFound)
	s.Require().NoError(s.store.Delete(ctx, "alice", "m1"))
	s.ErrorIs(s.store.Delete(ctx, "alice", "m1"), sentinel.ErrNotFound)
}
