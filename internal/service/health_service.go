package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/mrusso/whatsapp-relay/internal/repository"
)

// SubscriberCounter reports how many live subscribers are connected.
// Implemented by livebus.Bus.
type SubscriberCounter interface {
	Count() int
}

type healthService struct {
	repo             repository.Repository
	redisClient      *redis.Client
	retentionService RetentionService
	messageService   MessageService
	subscribers      SubscriberCounter
}

func NewHealthService(
	repo repository.Repository,
	redisClient *redis.Client,
	retentionService RetentionService,
	messageService MessageService,
	subscribers SubscriberCounter,
) HealthService {
	return &healthService{
		repo:             repo,
		redisClient:      redisClient,
		retentionService: retentionService,
		messageService:   messageService,
		subscribers:      subscribers,
	}
}

func (s *healthService) GetHealth(ctx context.Context) *HealthStatus {
	status := &HealthStatus{
		Status:      HealthHealthy,
		Subscribers: s.subscribers.Count(),
	}

	if s.retentionService.IsRunning() {
		status.RetentionStatus = "running"
	} else {
		status.RetentionStatus = "stopped"
	}

	status.StoreStatus = s.checkStoreHealth(ctx)
	status.RedisStatus = s.checkRedisHealth(ctx)

	state, requests, failures := s.messageService.CircuitBreakerStatus()
	status.CircuitBreakerState = state
	if requests > 0 {
		failureRate := float64(failures) / float64(requests) * 100
		status.CircuitBreakerStatus = fmt.Sprintf("Requests: %d, Failures: %d (%.1f%%)", requests, failures, failureRate)
	} else {
		status.CircuitBreakerStatus = "No requests yet"
	}

	if status.StoreStatus != ComponentConnected || status.RedisStatus != ComponentConnected {
		status.Status = HealthUnhealthy
	}

	// An open breaker means the provider is refusing sends; the service
	// itself is still reachable.
	if state == BreakerOpen {
		status.Status = HealthDegraded
	}

	return status
}

func (s *healthService) checkStoreHealth(ctx context.Context) string {
	if err := s.repo.Ping(ctx); err != nil {
		return ComponentDisconnected
	}
	return ComponentConnected
}

func (s *healthService) checkRedisHealth(ctx context.Context) string {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := s.redisClient.Ping(ctx).Err(); err != nil {
		return ComponentDisconnected
	}
	return ComponentConnected
}
