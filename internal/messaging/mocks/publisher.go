package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/mbonchek/patterning-web-v2/internal/messaging"
)

// EventPublisher is a mock type for the messaging.EventPublisher type
type EventPublisher struct {
	mock.Mock
}

func (m *EventPublisher) Publish(ctx context.Context, event messaging.ConsoleEvent) error {
	return m.Called(ctx, event).Error(0)
}

func (m *EventPublisher) Close() error {
	return m.Called().Error(0)
}

var _ messaging.EventPublisher = (*EventPublisher)(nil)
