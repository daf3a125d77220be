package dispatcher

import (
	"context"
	"errors"
	"testing"
	"time"

	"log/slog"

	"github.com/communitymarket/ucm-ledger/internal/domain/notification"
	"github.com/communitymarket/ucm-ledger/internal/domain/outbox"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// MockOutboxRepo for testing
type MockOutboxRepo struct {
	mock.Mock
}

func (m *MockOutboxRepo) Create(ctx context.Context, message *outbox.Message) error {
	args := m.Called(ctx, message)
	return args.Error(0)
}

func (m *MockOutboxRepo) GetPending(ctx context.Context, limit int) ([]*outbox.Message, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*outbox.Message), args.Error(1)
}

func (m *MockOutboxRepo) UpdateStatus(ctx context.Context, id int64, status outbox.Status) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

func (m *MockOutboxRepo) IncrementAttempts(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockOutboxRepo) WithTx(tx pgx.Tx) outbox.Repository {
	args := m.Called(tx)
	return args.Get(0).(outbox.Repository)
}

// MockMessagePublisher for testing
type MockMessagePublisher struct {
	mock.Mock
}

func (m *MockMessagePublisher) Publish(ctx context.Context, key string, value interface{}) error {
	args := m.Called(ctx, key, value)
	return args.Error(0)
}

func (m *MockMessagePublisher) Close() error {
	args := m.Called()
	return args.Error(0)
}

func stagedMessage(t *testing.T, id int64) *outbox.Message {
	t.Helper()
	event := notification.NewEvent(notification.KindRequestAccepted, uuid.New(), uuid.New(), nil, nil)
	msg, err := outbox.NewMessage(event)
	assert.NoError(t, err)
	msg.ID = id
	return msg
}

func TestKafkaEventPublisher_PublishEvent(t *testing.T) {
	mockOutboxRepo := &MockOutboxRepo{}
	mockProducer := &MockMessagePublisher{}
	logger := slog.Default()

	publisher := NewEventPublisher(mockOutboxRepo, mockProducer, logger)

	message := stagedMessage(t, 1)
	event, err := message.Event()
	assert.NoError(t, err)

	tests := []struct {
		name          string
		message       *outbox.Message
		setupMocks    func()
		expectedError error
	}{
		{
			name:    "successful publish",
			message: message,
			setupMocks: func() {
				mockProducer.On("Publish", mock.Anything, event.RequestID.String(), mock.MatchedBy(func(e *notification.Event) bool {
					return e.ID == event.ID && e.Kind == notification.KindRequestAccepted
				})).Return(nil).Once()

				mockOutboxRepo.On("UpdateStatus", mock.Anything, int64(1), outbox.StatusProcessed).Return(nil).Once()
			},
			expectedError: nil,
		},
		{
			name: "poison payload is parked without retries",
			message: &outbox.Message{
				ID:        2,
				EventID:   uuid.New(),
				RequestID: uuid.New(),
				Payload:   []byte("invalid json"),
				Status:    outbox.StatusPending,
				CreatedAt: time.Now(),
			},
			setupMocks: func() {
				mockOutboxRepo.On("UpdateStatus", mock.Anything, int64(2), outbox.StatusFailedToPublish).Return(nil).Once()
			},
			expectedError: errors.New("unmarshal payload"),
		},
		{
			name:    "broker error",
			message: message,
			setupMocks: func() {
				mockProducer.On("Publish", mock.Anything, event.RequestID.String(), mock.Anything).
					Return(errors.New("broker down")).Once()
			},
			expectedError: errors.New("failed to publish notification event"),
		},
		{
			name:    "error marking processed after publish",
			message: message,
			setupMocks: func() {
				mockProducer.On("Publish", mock.Anything, event.RequestID.String(), mock.Anything).Return(nil).Once()

				mockOutboxRepo.On("UpdateStatus", mock.Anything, int64(1), outbox.StatusProcessed).
					Return(errors.New("db error")).Once()
			},
			expectedError: errors.New("failed to mark outbox"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockOutboxRepo = &MockOutboxRepo{}
			mockProducer = &MockMessagePublisher{}
			publisher = NewEventPublisher(mockOutboxRepo, mockProducer, logger)

			tt.setupMocks()
			ctx := context.Background()

			err := publisher.PublishEvent(ctx, tt.message)

			if tt.expectedError != nil {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.expectedError.Error())
			} else {
				assert.NoError(t, err)
			}

			mockOutboxRepo.AssertExpectations(t)
			mockProducer.AssertExpectations(t)
		})
	}
}
