package mocks

import "context"

// MockMessageBroker is a mock implementation of message_broker.MessageBroker for testing.
type MockMessageBroker struct {
	PublishFunc func(ctx context.Context, topic string, message []byte) error
	CloseFunc   func() error
}

func (m *MockMessageBroker) Publish(ctx context.Context, topic string, message []byte) error {
	if m.PublishFunc != nil {
		return m.PublishFunc(ctx, topic, message)
	}
	return nil
}

func (m *MockMessageBroker) Close() error {
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}
