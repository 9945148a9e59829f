package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	audit "transferai/pkg/platform/audit"
)

type fakeProducer struct {
	records  []*kgo.Record
	failWith error
	flushed  bool
	closed   bool
}

func (f *fakeProducer) Produce(_ context.Context, r *kgo.Record, promise func(*kgo.Record, error)) {
	f.records = append(f.records, r)
	promise(r, f.failWith)
}

func (f *fakeProducer) Flush(context.Context) error {
	f.flushed = true
	return nil
}

func (f *fakeProducer) Close() {
	f.closed = true
}

type PublisherSuite struct {
	suite.Suite
	producer  *fakeProducer
	publisher *Publisher
}

func TestPublisherSuite(t *testing.T) {
	suite.Run(t, new(PublisherSuite))
}

func (s *PublisherSuite) SetupTest() {
	s.producer = &fakeProducer{}
	var err error
	s.publisher, err = New(s.producer, "audit-events",
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	s.Require().NoError(err)
}

func (s *PublisherSuite) TestNew() {
	s.Run("nil producer returns error", func() {
		_, err := New(nil, "audit-events")
		s.ErrorContains(err, "kafka producer is required")
	})

	s.Run("empty topic returns error", func() {
		_, err := New(&fakeProducer{}, "")
		s.ErrorContains(err, "kafka topic is required")
	})
}

func (s *PublisherSuite) TestEmit() {
	s.Run("writes JSON record keyed by account", func() {
		err := s.publisher.Emit(context.Background(), audit.Event{
			Category:  audit.CategoryBilling,
			AccountID: "acct-9",
			Action:    "usage_quota_exceeded",
		})
		s.Require().NoError(err)
		s.Require().Len(s.producer.records, 1)

		rec := s.producer.records[0]
		s.Equal("audit-events", rec.Topic)
		s.Equal([]byte("acct-9"), rec.Key)

		var decoded audit.Event
		s.Require().NoError(json.Unmarshal(rec.Value, &decoded))
		s.Equal("usage_quota_exceeded", decoded.Action)
	})

	s.Run("delivery failure does not fail the caller", func() {
		s.producer.failWith = errors.New("leader not available")
		err := s.publisher.Emit(context.Background(), audit.Event{Action: "agreement_fetched"})
		s.NoError(err)
	})
}

func (s *PublisherSuite) TestClose() {
	s.Require().NoError(s.publisher.Close(context.Background()))
	s.True(s.producer.flushed)
	s.True(s.producer.closed)
}
