package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// MockClient is a mock implementation of the Client interface
type MockClient struct {
	mock.Mock
}

func (m *MockClient) GenerateSQL(ctx context.Context, prompt string) (*Response, error) {
	args := m.Called(ctx, prompt)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Response), args.Error(1)
}

func tripAfter(n uint32, timeout time.Duration) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		MaxRequests: 1,
		Interval:    time.Second,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= n
		},
	}
}

func TestCircuitBreakerClient_Success(t *testing.T) {
	mockClient := new(MockClient)
	expected := &Response{SQL: `SELECT * FROM "FoodReports" WHERE lab_id = :labId`, Model: "llama3.2:1b"}
	mockClient.On("GenerateSQL", mock.Anything, "test prompt").Return(expected, nil)

	cbClient := NewCircuitBreakerClient(mockClient, "test-cb", DefaultCircuitBreakerConfig())

	response, err := cbClient.GenerateSQL(context.Background(), "test prompt")

	assert.NoError(t, err)
	assert.Equal(t, expected, response)
	assert.Equal(t, gobreaker.StateClosed, cbClient.State())
	mockClient.AssertExpectations(t)
}

func TestCircuitBreakerClient_OpensAfterFailures(t *testing.T) {
	mockClient := new(MockClient)
	mockClient.On("GenerateSQL", mock.Anything, "test prompt").Return(nil, errors.New("service unavailable"))

	cbClient := NewCircuitBreakerClient(mockClient, "test-cb", tripAfter(3, 100*time.Millisecond))

	for i := 0; i < 3; i++ {
		_, err := cbClient.GenerateSQL(context.Background(), "test prompt")
		assert.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateOpen, cbClient.State())

	_, err := cbClient.GenerateSQL(context.Background(), "test prompt")
	assert.Error(t, err)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	mockClient.AssertNumberOfCalls(t, "GenerateSQL", 3)
}

func TestCircuitBreakerClient_HalfOpenRecovery(t *testing.T) {
	mockClient := new(MockClient)
	mockClient.On("GenerateSQL", mock.Anything, "test prompt").Return(nil, errors.New("service unavailable")).Times(3)
	mockClient.On("GenerateSQL", mock.Anything, "test prompt").Return(&Response{SQL: "SELECT 1"}, nil).Once()

	cbClient := NewCircuitBreakerClient(mockClient, "test-cb", tripAfter(3, 50*time.Millisecond))

	for i := 0; i < 3; i++ {
		_, err := cbClient.GenerateSQL(context.Background(), "test prompt")
		assert.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateOpen, cbClient.State())

	time.Sleep(100 * time.Millisecond)

	response, err := cbClient.GenerateSQL(context.Background(), "test prompt")
	assert.NoError(t, err)
	assert.Equal(t, "SELECT 1", response.SQL)
	assert.Equal(t, gobreaker.StateClosed, cbClient.State())
}

func TestCircuitBreakerCounts(t *testing.T) {
	mockClient := new(MockClient)
	mockClient.On("GenerateSQL", mock.Anything, "test prompt").Return(&Response{SQL: "SELECT 1"}, nil)

	cbClient := NewCircuitBreakerClient(mockClient, "test-cb", DefaultCircuitBreakerConfig())

	for i := 0; i < 5; i++ {
		_, err := cbClient.GenerateSQL(context.Background(), "test prompt")
		assert.NoError(t, err)
	}

	counts := cbClient.Counts()
	assert.Equal(t, uint32(5), counts.Requests)
	assert.Equal(t, uint32(0), counts.TotalFailures)
	assert.Equal(t, uint32(0), counts.ConsecutiveFailures)
}
