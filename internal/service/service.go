package service

import (
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/mrusso/whatsapp-relay/internal/config"
	"github.com/mrusso/whatsapp-relay/internal/livebus"
	"github.com/mrusso/whatsapp-relay/internal/phone"
	"github.com/mrusso/whatsapp-relay/internal/repository"
)

type Service struct {
	Message      MessageService
	Conversation ConversationService
	Status       StatusService
	Retention    RetentionService
	Health       HealthService
}

func NewService(
	cfg *config.Config,
	repo repository.Repository,
	sender Sender,
	bus *livebus.Bus,
	redisClient *redis.Client,
	logger *zap.Logger,
) *Service {
	phones := phone.NewNormalizer(cfg.Phone.DefaultCountryCode)

	messageService := NewMessageService(cfg, repo, phones, sender, bus, redisClient, logger)
	conversationService := NewConversationService(repo, bus, redisClient, logger)
	statusService := NewStatusService(cfg, repo, bus, redisClient, logger)
	retentionService := NewRetentionService(cfg, statusService, logger)
	healthService := NewHealthService(repo, redisClient, retentionService, messageService, bus)

	return &Service{
		Message:      messageService,
		Conversation: conversationService,
		Status:       statusService,
		Retention:    retentionService,
		Health:       healthService,
	}
}
