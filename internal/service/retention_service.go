package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/mrusso/whatsapp-relay/internal/config"
	"github.com/mrusso/whatsapp-relay/internal/scheduler"
)

// retentionService periodically trims the status-callback audit trail to
// the configured cap. The trail is append-only at write time; this sweep
// is the only thing that ever shortens it.
type retentionService struct {
	scheduler     *scheduler.Scheduler
	statusService StatusService
	logger        *zap.Logger
}

func NewRetentionService(
	cfg *config.Config,
	statusService StatusService,
	logger *zap.Logger,
) RetentionService {
	interval := time.Duration(cfg.Retention.SweepIntervalMinutes) * time.Minute

	svc := &retentionService{
		statusService: statusService,
		logger:        logger,
	}

	svc.scheduler = scheduler.NewScheduler(logger, interval, svc.executeSweep)
	return svc
}

func (s *retentionService) Start(ctx context.Context) error {
	return s.scheduler.Start(ctx)
}

func (s *retentionService) Stop() error {
	return s.scheduler.Stop()
}

func (s *retentionService) IsRunning() bool {
	return s.scheduler.IsRunning()
}

func (s *retentionService) executeSweep(ctx context.Context) error {
	removed, err := s.statusService.TrimAudit(ctx)
	if err != nil {
		return err
	}
	if removed > 0 {
		s.logger.Info("Audit retention sweep completed", zap.Int("removed", removed))
	}
	return nil
}
