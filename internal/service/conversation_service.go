package service

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/mrusso/whatsapp-relay/internal/models"
	"github.com/mrusso/whatsapp-relay/internal/repository"
)

// conversationListLimit caps the dashboard conversation list.
const conversationListLimit = 200

type conversationService struct {
	repo     repository.Repository
	bus      Broadcaster
	sidCache *sidCache
	logger   *zap.Logger
}

func NewConversationService(repo repository.Repository, bus Broadcaster, redisClient *redis.Client, logger *zap.Logger) ConversationService {
	return &conversationService{
		repo:     repo,
		bus:      bus,
		sidCache: newSidCache(redisClient, logger),
		logger:   logger,
	}
}

func (s *conversationService) List(ctx context.Context) ([]models.Conversation, error) {
	return s.repo.Summaries().List(ctx, conversationListLimit)
}

func (s *conversationService) Messages(ctx context.Context, conversationID string) ([]models.StoredMessage, error) {
	if conversationID == "" {
		return nil, ErrMissingConversationID
	}
	return s.repo.Messages().List(ctx, conversationID)
}

func (s *conversationService) MarkRead(ctx context.Context, conversationID string) (*models.Summary, error) {
	if conversationID == "" {
		return nil, ErrMissingConversationID
	}

	summary, err := s.repo.Summaries().ResetUnread(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	s.bus.Broadcast(models.SummaryEvent{
		Type:           models.EventTypeSummary,
		ConversationID: conversationID,
		Summary:        summary,
	})
	return summary, nil
}

func (s *conversationService) MarkUnread(ctx context.Context, conversationID string, count int) (*models.Summary, error) {
	if conversationID == "" {
		return nil, ErrMissingConversationID
	}

	summary, err := s.repo.Summaries().SetUnread(ctx, conversationID, count)
	if err != nil {
		return nil, err
	}

	s.bus.Broadcast(models.SummaryEvent{
		Type:           models.EventTypeSummary,
		ConversationID: conversationID,
		Summary:        summary,
	})
	return summary, nil
}

// Delete removes the conversation everywhere: the phone directory entry,
// the message log, the status records with their sid links, and the
// summary itself. A later message from the same phone starts a brand-new
// conversation.
func (s *conversationService) Delete(ctx context.Context, conversationID string) error {
	if conversationID == "" {
		return ErrMissingConversationID
	}

	summary, err := s.repo.Summaries().Get(ctx, conversationID)
	if err != nil {
		return err
	}

	if summary != nil && summary.Phone != "" {
		if err := s.repo.Directory().Delete(ctx, summary.Phone); err != nil {
			return fmt.Errorf("failed to remove directory entry: %w", err)
		}
	}

	if err := s.repo.Messages().DeleteAll(ctx, conversationID); err != nil {
		return err
	}

	// The cached reverse-index entries outlive the store's by up to the
	// cache TTL; drop them here or a late status callback would write
	// ghost records under the deleted conversation.
	unlinked, err := s.repo.Statuses().DeleteAll(ctx, conversationID)
	if err != nil {
		return err
	}
	for _, sid := range unlinked {
		s.sidCache.Invalidate(ctx, sid)
	}
	if err := s.repo.Summaries().Delete(ctx, conversationID); err != nil {
		return err
	}

	s.logger.Info("Conversation deleted", zap.String("conversationID", conversationID))
	return nil
}
