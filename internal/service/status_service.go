package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/mrusso/whatsapp-relay/internal/config"
	"github.com/mrusso/whatsapp-relay/internal/models"
	"github.com/mrusso/whatsapp-relay/internal/repository"
)

const (
	statusQueryLimit = 500
	auditQueryLimit  = 1000
)

type statusService struct {
	cfg      *config.Config
	repo     repository.Repository
	bus      Broadcaster
	sidCache *sidCache
	logger   *zap.Logger
}

func NewStatusService(
	cfg *config.Config,
	repo repository.Repository,
	bus Broadcaster,
	redisClient *redis.Client,
	logger *zap.Logger,
) StatusService {
	return &statusService{
		cfg:      cfg,
		repo:     repo,
		bus:      bus,
		sidCache: newSidCache(redisClient, logger),
		logger:   logger,
	}
}

// ApplyCallback runs the status-callback pipeline. The audit append
// happens first and unconditionally; a sid that resolves to nothing is a
// correlation miss, not an error.
func (s *statusService) ApplyCallback(ctx context.Context, cb models.StatusCallback) error {
	if err := s.repo.Statuses().Audit(ctx, cb); err != nil {
		return fmt.Errorf("failed to audit callback: %w", err)
	}

	// A callback without a status cannot advance any record. It is on
	// the trail now; correlation stops here.
	if cb.Status == "" {
		return nil
	}

	link, err := s.resolve(ctx, cb.SID)
	if err != nil {
		return err
	}
	if link == nil {
		s.logger.Info("Status callback for unknown sid",
			zap.String("sid", cb.SID),
			zap.String("status", cb.Status))
		return nil
	}

	if err := s.repo.Statuses().SaveStatus(ctx, link.ConversationID, cb.SID, cb); err != nil {
		return err
	}

	if link.MessageID != "" {
		if err := s.repo.Messages().SetStatus(ctx, link.ConversationID, link.MessageID, cb.Status); err != nil {
			return err
		}
	}

	s.bus.Broadcast(models.StatusEvent{
		Type:           models.EventTypeStatus,
		ConversationID: link.ConversationID,
		SID:            cb.SID,
		Status:         cb.Status,
		ErrorCode:      cb.ErrorCode,
		ErrorMessage:   cb.ErrorMessage,
		Timestamp:      time.Now().UnixMilli(),
	})
	return nil
}

func (s *statusService) Query(ctx context.Context, conversationID string) (map[string]models.DeliveryStatus, error) {
	if conversationID == "" {
		return nil, ErrMissingConversationID
	}
	return s.repo.Statuses().Query(ctx, conversationID, statusQueryLimit)
}

func (s *statusService) QueryBySid(ctx context.Context, sid string) (*models.StatusBySid, error) {
	link, err := s.resolve(ctx, sid)
	if err != nil {
		return nil, err
	}
	if link == nil {
		return &models.StatusBySid{}, nil
	}

	record, err := s.repo.Statuses().GetStatus(ctx, link.ConversationID, sid)
	if err != nil {
		return nil, err
	}

	result := &models.StatusBySid{
		ConversationID: link.ConversationID,
		MessageID:      link.MessageID,
		Payload:        record,
	}
	if record != nil && record.Status != "" {
		status := record.Status
		result.Status = &status
	}
	return result, nil
}

func (s *statusService) RecentAudit(ctx context.Context) (map[string]models.StatusAudit, error) {
	return s.repo.Statuses().RecentAudit(ctx, auditQueryLimit)
}

func (s *statusService) TrimAudit(ctx context.Context) (int, error) {
	return s.repo.Statuses().TrimAudit(ctx, s.cfg.Retention.AuditKeep)
}

// resolve consults the redis cache before the store's reverse index and
// backfills the cache on a store hit.
func (s *statusService) resolve(ctx context.Context, sid string) (*models.SidLink, error) {
	if sid == "" {
		return nil, nil
	}

	if link := s.sidCache.Get(ctx, sid); link != nil {
		return link, nil
	}

	link, err := s.repo.Statuses().Resolve(ctx, sid)
	if err != nil {
		return nil, err
	}
	if link != nil {
		s.sidCache.Store(ctx, sid, *link)
	}
	return link, nil
}
