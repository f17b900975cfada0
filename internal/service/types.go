package service

// Component health values reported by the health endpoint.
const (
	HealthHealthy   = "healthy"
	HealthDegraded  = "degraded"
	HealthUnhealthy = "unhealthy"

	ComponentConnected    = "connected"
	ComponentDisconnected = "disconnected"
)

type HealthStatus struct {
	Status               string       `json:"status"`
	StoreStatus          string       `json:"store_status"`
	RedisStatus          string       `json:"redis_status"`
	RetentionStatus      string       `json:"retention_status"`
	Subscribers          int          `json:"subscribers"`
	CircuitBreakerStatus string       `json:"circuit_breaker_status,omitempty"`
	CircuitBreakerState  BreakerState `json:"circuit_breaker_state,omitempty"`
}
