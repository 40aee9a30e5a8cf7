package daemon

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/tduarte/mailmind/internal/config"
	"github.com/tduarte/mailmind/internal/process"
	"github.com/tduarte/mailmind/internal/status"
	intsync "github.com/tduarte/mailmind/internal/sync"
)

// Scheduler runs the periodic sync-then-process cycle.
type Scheduler struct {
	cfg       *config.Config
	engine    *intsync.Engine
	processor *process.Processor
	logger    *zap.Logger
	cancel    context.CancelFunc
}

// NewScheduler creates the periodic scheduler.
func NewScheduler(cfg *config.Config, engine *intsync.Engine, processor *process.Processor, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		cfg:       cfg,
		engine:    engine,
		processor: processor,
		logger:    logger.Named("scheduler"),
	}
}

// Start begins the periodic cycle. The first run happens after one interval;
// syncs before that are triggered over the API.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	go s.loop(ctx)
}

// Stop stops the scheduler loop.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Scheduler) loop(ctx context.Context) {
	interval := s.cfg.Sync.Interval()
	if interval <= 0 {
		s.logger.Info("periodic sync disabled")
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.runCycle(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) runCycle(ctx context.Context) {
	if s.engine.State() == status.Disconnected {
		if err := s.engine.Connect(); err != nil {
			s.logger.Warn("periodic connect failed", zap.Error(err))
			return
		}
	}

	results, err := s.engine.SyncAll(ctx, s.cfg.Sync.Folders, s.cfg.Sync.BatchLimit)
	if err != nil {
		s.logger.Warn("periodic sync failed", zap.Error(err))
		return
	}
	newMessages := 0
	for _, r := range results {
		newMessages += r.NewMessages
	}
	if newMessages == 0 {
		return
	}

	batch, err := s.processor.ProcessUnclassified(ctx, 0)
	if err != nil {
		s.logger.Warn("periodic processing failed", zap.Error(err))
		return
	}
	s.logger.Info("periodic cycle complete",
		zap.Int("new_messages", newMessages),
		zap.Int("processed", batch.Processed),
		zap.Int("errors", batch.Errors))
}
