//go:build integration

package messaging_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/rabbitmq"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/mbonchek/patterning-web-v2/internal/messaging"
)

type PublisherIntegrationSuite struct {
	suite.Suite
	container *rabbitmq.RabbitMQContainer
	conn      *amqp.Connection
}

func (s *PublisherIntegrationSuite) SetupSuite() {
	ctx := context.Background()
	container, err := rabbitmq.Run(ctx,
		"rabbitmq:3-management-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Server startup complete"),
		),
	)
	require.NoError(s.T(), err)
	s.container = container

	uri, err := container.AmqpURL(ctx)
	require.NoError(s.T(), err)

	conn, err := messaging.Connect(uri, 5, time.Second, zap.NewNop())
	require.NoError(s.T(), err)
	s.conn = conn
}

func (s *PublisherIntegrationSuite) TearDownSuite() {
	if s.conn != nil {
		_ = s.conn.Close()
	}
	if s.container != nil {
		_ = s.container.Terminate(context.Background())
	}
}

func (s *PublisherIntegrationSuite) TestPublishDeliversToBoundQueue() {
	pub, err := messaging.NewRabbitMQPublisher(s.conn, "console_events_test")
	require.NoError(s.T(), err)
	defer pub.Close()

	ch, err := s.conn.Channel()
	require.NoError(s.T(), err)
	defer ch.Close()

	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	require.NoError(s.T(), err)
	require.NoError(s.T(), ch.QueueBind(q.Name, "", "console_events_test", false, nil))

	deliveries, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	require.NoError(s.T(), err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = pub.Publish(ctx, messaging.ConsoleEvent{
		Type:      messaging.EventRunFinished,
		RunID:     "run-1",
		Words:     []string{"light", "river"},
		Succeeded: 2,
	})
	require.NoError(s.T(), err)

	select {
	case d := <-deliveries:
		var got messaging.ConsoleEvent
		require.NoError(s.T(), json.Unmarshal(d.Body, &got))
		s.Equal(messaging.EventRunFinished, got.Type)
		s.Equal("run-1", got.RunID)
		s.Equal([]string{"light", "river"}, got.Words)
		s.False(got.OccurredAt.IsZero())
		s.Equal("run_finished", d.Type)
	case <-ctx.Done():
		s.FailNow("event was not delivered")
	}
}

func TestPublisherIntegrationSuite(t *testing.T) {
	suite.Run(t, new(PublisherIntegrationSuite))
}
