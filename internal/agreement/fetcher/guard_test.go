package fetcher

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"transferai/internal/agreement/models"
	"transferai/internal/agreement/service/mocks"
	"transferai/internal/upstream"
	"transferai/pkg/platform/circuit"
)

// Justification for unit tests: which failures trip the breaker decides
// whether a burst of malformed agreements can take renders offline.
type GuardSuite struct {
	suite.Suite
	ctrl    *gomock.Controller
	next    *mocks.MockFetcher
	now     time.Time
	state   *gaugeRecorder
	guarded *Guarded
}

type gaugeRecorder struct{ open bool }

func (g *gaugeRecorder) SetRenderCircuitOpen(open bool) { g.open = open }

func TestGuardSuite(t *testing.T) {
	suite.Run(t, new(GuardSuite))
}

func (s *GuardSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.next = mocks.NewMockFetcher(s.ctrl)
	s.now = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s.state = &gaugeRecorder{}
	breaker := circuit.New("render",
		circuit.WithFailureThreshold(2),
		circuit.WithCooldown(time.Minute),
		circuit.WithClock(func() time.Time { return s.now }),
	)
	s.guarded = NewGuarded(s.next, breaker, s.state, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func (s *GuardSuite) render() error {
	_, err := s.guarded.Render(context.Background(), models.RenderRequest{URL: "https://assist.example/transfer"})
	return err
}

func (s *GuardSuite) TestOutagesOpenTheCircuit() {
	outage := upstream.NewFetchError(upstream.ErrorTimeout, "fetcher.render", "navigation timed out", nil)
	s.next.EXPECT().Render(gomock.Any(), gomock.Any()).Return(nil, outage).Times(2)

	s.Error(s.render())
	s.Error(s.render())
	s.True(s.state.open)

	// Refused without reaching the renderer.
	err := s.render()
	s.Equal(upstream.ErrorProviderOutage, upstream.CategoryOf(err))
}

func (s *GuardSuite) TestProbeAfterCooldownCloses() {
	outage := upstream.NewFetchError(upstream.ErrorProviderOutage, "fetcher.render", "navigate failed", nil)
	gomock.InOrder(
		s.next.EXPECT().Render(gomock.Any(), gomock.Any()).Return(nil, outage).Times(2),
		s.next.EXPECT().Render(gomock.Any(), gomock.Any()).Return([]byte("%PDF-1.7"), nil),
	)
	s.Error(s.render())
	s.Error(s.render())

	s.now = s.now.Add(time.Minute)
	s.NoError(s.render())
	s.False(s.state.open)
}

func (s *GuardSuite) TestBadDataDoesNotCount() {
	bad := upstream.NewFetchError(upstream.ErrorBadData, "service.validate", "not a pdf", nil)
	s.next.EXPECT().Render(gomock.Any(), gomock.Any()).Return(nil, bad).Times(3)

	for range 3 {
		s.Error(s.render())
	}
	s.False(s.state.open)
}
