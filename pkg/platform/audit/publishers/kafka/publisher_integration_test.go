//go:build integration

package kafka

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"

	audit "transferai/pkg/platform/audit"
	"transferai/pkg/testutil/containers"
)

// Justification for integration tests: topic creation and delivery go
// through a real broker; the unit suite only sees the producer interface.
type PublisherIntegrationSuite struct {
	suite.Suite
	broker *containers.RedpandaContainer
}

func TestPublisherIntegrationSuite(t *testing.T) {
	suite.Run(t, new(PublisherIntegrationSuite))
}

func (s *PublisherIntegrationSuite) SetupSuite() {
	s.broker = containers.NewRedpandaContainer(s.T())
}

func (s *PublisherIntegrationSuite) TestEnsureTopicIsIdempotent() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s.Require().NoError(EnsureTopic(ctx, s.broker.Brokers, "audit.ensure", 3))
	s.Require().NoError(EnsureTopic(ctx, s.broker.Brokers, "audit.ensure", 3))

	client, err := kgo.NewClient(kgo.SeedBrokers(s.broker.Brokers...))
	s.Require().NoError(err)
	defer client.Close()

	details, err := kadm.NewClient(client).ListTopics(ctx, "audit.ensure")
	s.Require().NoError(err)
	s.Require().Contains(details, "audit.ensure")
	s.Len(details["audit.ensure"].Partitions, 3)
}

func (s *PublisherIntegrationSuite) TestEmitDeliversKeyedRecord() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	const topic = "audit.deliver"

	s.Require().NoError(EnsureTopic(ctx, s.broker.Brokers, topic, 1))
	pub, err := Dial(s.broker.Brokers, topic, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	s.Require().NoError(err)

	event := audit.Event{
		Category:  audit.CategoryBilling,
		Timestamp: time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC),
		AccountID: "acct-1",
		Action:    string(audit.EventTierUpdated),
		Attrs:     map[string]string{"tier": "premium"},
	}
	s.Require().NoError(pub.Emit(ctx, event))
	s.Require().NoError(pub.Close(ctx))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(s.broker.Brokers...),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	s.Require().NoError(err)
	defer consumer.Close()

	fetches := consumer.PollFetches(ctx)
	s.Require().Empty(fetches.Errors())
	records := fetches.Records()
	s.Require().Len(records, 1)
	s.Equal("acct-1", string(records[0].Key))

	var got audit.Event
	s.Require().NoError(json.Unmarshal(records[0].Value, &got))
	s.Equal(event.Action, got.Action)
	s.Equal("premium", got.Attrs["tier"])
}
