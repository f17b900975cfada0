package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/mrusso/whatsapp-relay/internal/config"
	"github.com/mrusso/whatsapp-relay/internal/models"
	"github.com/mrusso/whatsapp-relay/internal/phone"
	"github.com/mrusso/whatsapp-relay/internal/repository"
	"github.com/mrusso/whatsapp-relay/internal/transport"
)

type messageService struct {
	cfg            *config.Config
	repo           repository.Repository
	phones         *phone.Normalizer
	sender         Sender
	bus            Broadcaster
	sidCache       *sidCache
	logger         *zap.Logger
	circuitBreaker *CircuitBreaker
}

func NewMessageService(
	cfg *config.Config,
	repo repository.Repository,
	phones *phone.Normalizer,
	sender Sender,
	bus Broadcaster,
	redisClient *redis.Client,
	logger *zap.Logger,
) MessageService {
	return &messageService{
		cfg:            cfg,
		repo:           repo,
		phones:         phones,
		sender:         sender,
		bus:            bus,
		sidCache:       newSidCache(redisClient, logger),
		logger:         logger,
		circuitBreaker: NewCircuitBreaker(&cfg.Twilio.CircuitBreaker, logger),
	}
}

// Ingest runs the inbound pipeline: validate, normalize, resolve the
// conversation, append the message, fold the summary (unread +1) and
// broadcast. Validation failures reject before any state is written.
func (s *messageService) Ingest(ctx context.Context, in models.InboundMessage) error {
	if in.From == "" {
		return ErrMissingSender
	}
	if in.Body == "" && len(in.Media) == 0 {
		return ErrEmptyMessage
	}

	phoneKey := s.phones.Normalize(in.From)
	if phoneKey == "" {
		return ErrMissingSender
	}

	timestamp := in.Timestamp
	if timestamp == 0 {
		timestamp = time.Now().UnixMilli()
	}

	conversationID, created, err := s.repo.Directory().GetOrCreate(ctx, phoneKey)
	if err != nil {
		return fmt.Errorf("failed to resolve conversation: %w", err)
	}

	text := in.Body
	if text == "" {
		text = "[media]"
	}

	msg := models.Message{
		Text:      text,
		Direction: models.DirectionInbound,
		Timestamp: timestamp,
		Media:     in.Media,
		SID:       in.SID,
	}
	messageID, err := s.repo.Messages().Append(ctx, conversationID, msg)
	if err != nil {
		return fmt.Errorf("failed to append inbound message: %w", err)
	}

	summary, err := s.repo.Summaries().Apply(ctx, conversationID, repository.SummaryChange{
		Phone:           phoneKey,
		Text:            text,
		Timestamp:       timestamp,
		IncrementUnread: true,
	})
	if err != nil {
		return fmt.Errorf("failed to update summary: %w", err)
	}

	s.logger.Info("Inbound message ingested",
		zap.String("conversationID", conversationID),
		zap.String("phone", phoneKey),
		zap.Int("mediaCount", len(in.Media)),
		zap.Bool("conversationCreated", created))

	s.bus.Broadcast(models.MessageEvent{
		Type:           models.EventTypeMessage,
		ConversationID: conversationID,
		Phone:          phoneKey,
		Summary:        summary,
		Message:        &models.StoredMessage{ID: messageID, Message: msg},
	})
	return nil
}

// Dispatch runs the outbound pipeline. The transport call goes first:
// when it fails nothing is written and the error is surfaced to the
// caller for a whole-pipeline retry.
func (s *messageService) Dispatch(ctx context.Context, req models.SendRequest) (*models.SendResult, error) {
	phoneKey := s.phones.Normalize(req.To)
	if phoneKey == "" {
		return nil, ErrInvalidRecipient
	}

	fromAddress := s.fromAddress()
	if fromAddress == "" {
		return nil, ErrMissingFromNumber
	}
	toAddress := "whatsapp:" + phoneKey

	conversationID := req.ConversationID
	if conversationID == "" {
		var err error
		conversationID, _, err = s.repo.Directory().GetOrCreate(ctx, phoneKey)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve conversation: %w", err)
		}
	}

	var sendResp *transport.SendResponse
	err := s.circuitBreaker.Execute(ctx, func() error {
		var sendErr error
		sendResp, sendErr = s.sender.Send(ctx, fromAddress, toAddress, req.Body)
		return sendErr
	})
	if err != nil {
		requests, failures := s.circuitBreaker.GetCounts()
		s.logger.Error("Outbound send failed",
			zap.String("conversationID", conversationID),
			zap.Error(err),
			zap.String("circuitBreakerState", string(s.circuitBreaker.GetState())),
			zap.Uint32("totalRequests", requests),
			zap.Uint32("totalFailures", failures))
		return nil, fmt.Errorf("failed to send message: %w", err)
	}

	timestamp := time.Now().UnixMilli()
	status := sendResp.Status
	if status == "" {
		status = models.StatusQueued
	}

	msg := models.Message{
		Text:      req.Body,
		Direction: models.DirectionOutbound,
		Timestamp: timestamp,
		SID:       sendResp.SID,
	}
	messageID, err := s.repo.Messages().Append(ctx, conversationID, msg)
	if err != nil {
		return nil, fmt.Errorf("failed to append outbound message: %w", err)
	}

	if err := s.repo.Statuses().RecordForSend(ctx, conversationID, messageID, sendResp.SID, status); err != nil {
		return nil, fmt.Errorf("failed to record delivery status: %w", err)
	}
	s.sidCache.Store(ctx, sendResp.SID, models.SidLink{
		ConversationID: conversationID,
		MessageID:      messageID,
	})

	summary, err := s.repo.Summaries().Apply(ctx, conversationID, repository.SummaryChange{
		Phone:           phoneKey,
		Text:            req.Body,
		Timestamp:       timestamp,
		IncrementUnread: false,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update summary: %w", err)
	}

	s.logger.Info("Outbound message dispatched",
		zap.String("conversationID", conversationID),
		zap.String("sid", sendResp.SID),
		zap.String("status", status))

	s.bus.Broadcast(models.MessageEvent{
		Type:           models.EventTypeMessage,
		ConversationID: conversationID,
		Phone:          phoneKey,
		Summary:        summary,
		Message:        &models.StoredMessage{ID: messageID, Message: msg},
	})

	return &models.SendResult{
		ConversationID: conversationID,
		MessageID:      messageID,
		SID:            sendResp.SID,
		Status:         status,
		Phone:          phoneKey,
	}, nil
}

func (s *messageService) CircuitBreakerStatus() (BreakerState, uint32, uint32) {
	state := s.circuitBreaker.GetState()
	requests, failures := s.circuitBreaker.GetCounts()
	return state, requests, failures
}

func (s *messageService) fromAddress() string {
	from := s.cfg.Twilio.FromNumber
	if strings.HasPrefix(from, "whatsapp:") {
		return from
	}
	return s.phones.WhatsAppAddress(from)
}
