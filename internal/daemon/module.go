package daemon

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/tduarte/mailmind/internal/api"
	"github.com/tduarte/mailmind/internal/bus"
	"github.com/tduarte/mailmind/internal/classify"
	"github.com/tduarte/mailmind/internal/config"
	"github.com/tduarte/mailmind/internal/content"
	"github.com/tduarte/mailmind/internal/lock"
	"github.com/tduarte/mailmind/internal/logging"
	"github.com/tduarte/mailmind/internal/mail"
	"github.com/tduarte/mailmind/internal/process"
	"github.com/tduarte/mailmind/internal/proposal"
	"github.com/tduarte/mailmind/internal/status"
	"github.com/tduarte/mailmind/internal/store"
	intsync "github.com/tduarte/mailmind/internal/sync"
)

// Params holds the resolved startup options passed to the fx module.
type Params struct {
	ConfigPath string
}

// Module returns the fx module for the daemon, composing all providers and
// lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideStore,
			provideMailbox,
			provideSyncEngine,
			provideClassifier,
			provideProcessor,
			provideGateway,
			provideContentRouter,
			provideProposalEngine,
			provideAPIServer,
			NewServer,
			NewScheduler,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	return config.Load(p.ConfigPath)
}

func provideLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.New(cfg.LogPath)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(cfg *config.Config, logger *zap.Logger) (*lock.Lock, error) {
	logger.Info("acquiring data dir lock", zap.String("dir", cfg.DataDir()))
	l, err := lock.Acquire(cfg.DataDir())
	if err != nil {
		return nil, err
	}
	logger.Info("data dir lock acquired")
	return l, nil
}

func provideStore(cfg *config.Config, logger *zap.Logger) (*store.DB, error) {
	db, err := store.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", cfg.Database.Path))
	return db, nil
}

func provideMailbox(cfg *config.Config, logger *zap.Logger) intsync.Mailbox {
	return mail.NewClient(cfg.IMAP, logger)
}

func provideSyncEngine(db *store.DB, mailbox intsync.Mailbox, machine *status.Machine, b *bus.Bus, logger *zap.Logger) *intsync.Engine {
	return intsync.NewEngine(db, mailbox, machine, b, logger)
}

func provideClassifier(cfg *config.Config, logger *zap.Logger) process.Classifier {
	return classify.New(cfg.Model, logger)
}

func provideProcessor(db *store.DB, classifier process.Classifier, b *bus.Bus, logger *zap.Logger) *process.Processor {
	return process.New(db, classifier, b, logger)
}

func provideGateway(cfg *config.Config) content.Dispatcher {
	return content.NewGateway(cfg.Gateway)
}

func provideContentRouter(db *store.DB, dispatcher content.Dispatcher, b *bus.Bus, logger *zap.Logger) *content.Router {
	return content.NewRouter(db, dispatcher, b, logger)
}

func provideProposalEngine(db *store.DB, b *bus.Bus, logger *zap.Logger) *proposal.Engine {
	return proposal.NewEngine(db, b, logger)
}

func provideAPIServer(cfg *config.Config, db *store.DB, engine *intsync.Engine, processor *process.Processor,
	router *content.Router, proposals *proposal.Engine, logger *zap.Logger) *api.Server {
	return api.NewServer(cfg, db, engine, processor, router, proposals, logger)
}

func registerLifecycle(lc fx.Lifecycle, srv *Server, scheduler *Scheduler, engine *intsync.Engine, lk *lock.Lock, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("http server error", zap.Error(err))
				}
			}()

			scheduler.Start(context.Background())
			return nil
		},
		OnStop: func(ctx context.Context) error {
			scheduler.Stop()
			if err := engine.Disconnect(); err != nil {
				logger.Warn("disconnect on shutdown", zap.Error(err))
			}
			srv.Stop(ctx)
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
