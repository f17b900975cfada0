package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mrusso/whatsapp-relay/internal/config"
	"github.com/mrusso/whatsapp-relay/internal/service"
	"go.uber.org/zap"
)

func newBreakerUnderTest() *service.CircuitBreaker {
	cfg := &config.CircuitBreakerConfig{
		MaxRequests:      3,
		Interval:         10,
		Timeout:          60,
		FailureRatio:     0.6,
		ConsecutiveFails: 5,
	}
	return service.NewCircuitBreaker(cfg, zap.NewNop())
}

func TestCircuitBreaker_Execute(t *testing.T) {
	tests := []struct {
		name           string
		setupFunc      func(cb *service.CircuitBreaker)
		function       func() error
		expectedErrMsg string
	}{
		{
			name: "successful execution",
			function: func() error {
				return nil
			},
		},
		{
			name: "function error passes through",
			function: func() error {
				return errors.New("provider error")
			},
			expectedErrMsg: "provider error",
		},
		{
			name: "open breaker blocks requests",
			setupFunc: func(cb *service.CircuitBreaker) {
				for i := 0; i < 10; i++ {
					_ = cb.Execute(context.Background(), func() error {
						return errors.New("failure")
					})
				}
			},
			function: func() error {
				return nil
			},
			expectedErrMsg: "service unavailable: circuit breaker is open",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cb := newBreakerUnderTest()
			if tt.setupFunc != nil {
				tt.setupFunc(cb)
			}

			err := cb.Execute(context.Background(), tt.function)
			if tt.expectedErrMsg != "" {
				assert.EqualError(t, err, tt.expectedErrMsg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCircuitBreaker_ExecuteCancelledContext(t *testing.T) {
	cb := newBreakerUnderTest()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := cb.Execute(ctx, func() error {
		t.Fatal("function must not run with a cancelled context")
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCircuitBreaker_StateTransitions(t *testing.T) {
	cb := newBreakerUnderTest()
	assert.Equal(t, service.BreakerClosed, cb.GetState())

	for i := 0; i < 10; i++ {
		_ = cb.Execute(context.Background(), func() error {
			return errors.New("failure")
		})
	}
	assert.Equal(t, service.BreakerOpen, cb.GetState())
}

func TestCircuitBreaker_GetCounts(t *testing.T) {
	cb := newBreakerUnderTest()

	_ = cb.Execute(context.Background(), func() error { return nil })
	_ = cb.Execute(context.Background(), func() error { return errors.New("failure") })

	requests, failures := cb.GetCounts()
	assert.Equal(t, uint32(2), requests)
	assert.Equal(t, uint32(1), failures)
}
