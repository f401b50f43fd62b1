// Package app wires the engine's components from configuration. The server,
// worker and importer binaries share it.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/unclebandit/outreach-engine/internal/alert"
	"github.com/unclebandit/outreach-engine/internal/channel"
	"github.com/unclebandit/outreach-engine/internal/config"
	"github.com/unclebandit/outreach-engine/internal/db"
	"github.com/unclebandit/outreach-engine/internal/detector"
	"github.com/unclebandit/outreach-engine/internal/queue"
	"github.com/unclebandit/outreach-engine/internal/repository"
	"github.com/unclebandit/outreach-engine/internal/repository/bolt"
	"github.com/unclebandit/outreach-engine/internal/sequence"
	"github.com/unclebandit/outreach-engine/internal/service"
)

// App holds the wired service and the resources it owns.
type App struct {
	Service *service.CampaignService
	closers []func() error
}

// Close releases stores and publishers in reverse order of creation.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type stores struct {
	entities repository.EntityRepositoryInterface
	tokens   repository.TokenRepositoryInterface
	alerts   repository.AlertRepositoryInterface
}

// Build constructs the campaign service described by cfg.
func Build(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	a := &App{}
	fail := func(err error) (*App, error) {
		_ = a.Close()
		return nil, err
	}

	registry, err := sequence.LoadFile(cfg.Service.SequencesFile)
	if err != nil {
		return nil, fmt.Errorf("load sequences: %w", err)
	}
	det, err := detector.LoadFile(cfg.Scoring.KeywordsFile, cfg.Scoring.Threshold)
	if err != nil {
		return nil, fmt.Errorf("load keywords: %w", err)
	}

	rules := repository.Rules{Schedule: registry, MaxFailures: cfg.Store.MaxFailures}
	st, err := a.openStores(ctx, cfg, rules, log)
	if err != nil {
		return fail(err)
	}

	senders, err := openSenders(ctx, cfg.Channel, log)
	if err != nil {
		return fail(err)
	}

	publisher, closePublisher, err := queue.Open(ctx, cfg.Notifier, cfg.Channel.AWSRegion, log)
	if err != nil {
		return fail(fmt.Errorf("open notifier: %w", err))
	}
	a.closers = append(a.closers, closePublisher)

	tokens := service.NewTokenRegistry(st.tokens, time.Now)
	dispatcher := &service.Dispatcher{
		Entities:    st.entities,
		Templates:   registry,
		Tokens:      tokens,
		Senders:     senders,
		Gates:       service.NewRateGates(cfg.Channel.MinInterval),
		LinkBaseURL: cfg.Service.PublicBaseURL,
		Log:         log,
	}

	a.Service = &service.CampaignService{
		Entities:  st.entities,
		Sequences: registry,
		Tokens:    tokens,
		Scorer:    det,
		Scheduler: &service.Scheduler{
			Entities:   st.entities,
			Sequences:  registry,
			Dispatcher: dispatcher,
			Workers:    cfg.Sweep.Workers,
			Log:        log,
		},
		Alerts: &alert.Notifier{
			Claims:         st.alerts,
			Scorer:         det,
			Sessions:       &channel.LinkSessionCreator{BaseURL: cfg.Channel.SessionBaseURL},
			Publisher:      publisher,
			Topic:          cfg.Notifier.Topic,
			SessionMinutes: cfg.Channel.SessionMinutes,
			Now:            time.Now,
			Log:            log,
		},
		Now:          time.Now,
		Log:          log,
		MaxBatch:     cfg.Sweep.MaxBatch,
		CallDeadline: cfg.Sweep.PerCallDeadline,
	}
	log.Info("engine wired",
		zap.String("store", cfg.Store.Driver),
		zap.String("sender", cfg.Channel.Sender),
		zap.String("notifier", cfg.Notifier.Driver),
		zap.Strings("sequences", registry.Types()))
	return a, nil
}

func (a *App) openStores(ctx context.Context, cfg *config.Config, rules repository.Rules, log *zap.Logger) (*stores, error) {
	switch cfg.Store.Driver {
	case "memory":
		return &stores{
			entities: repository.NewMemoryEntityRepository(rules),
			tokens:   repository.NewMemoryTokenRepository(),
			alerts:   repository.NewMemoryAlertRepository(),
		}, nil
	case "bolt":
		s, err := bolt.Open(cfg.Store.BoltPath, rules)
		if err != nil {
			return nil, fmt.Errorf("open bolt store: %w", err)
		}
		a.closers = append(a.closers, s.Close)
		return &stores{entities: s, tokens: s, alerts: s}, nil
	case "postgres":
		conn, err := openPostgres(ctx, cfg.DB.DSN(), log)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, conn.Close)
		return &stores{
			entities: &repository.EntityRepository{DB: conn, Rules: rules},
			tokens:   &repository.TokenRepository{DB: conn},
			alerts:   &repository.AlertRepository{DB: conn},
		}, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
}

func openPostgres(ctx context.Context, dsn string, log *zap.Logger) (*sql.DB, error) {
	conn, err := db.Open(ctx, dsn, log)
	if err != nil {
		return nil, err
	}
	if err := db.InitSchema(ctx, conn); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

func openSenders(ctx context.Context, cfg config.Channel, log *zap.Logger) (map[string]channel.Sender, error) {
	switch cfg.Sender {
	case "log":
		return map[string]channel.Sender{"email": channel.NewLogSender(log)}, nil
	case "ses":
		s, err := channel.NewSESSender(ctx, cfg.AWSRegion, cfg.SESFromEmail)
		if err != nil {
			return nil, fmt.Errorf("open ses sender: %w", err)
		}
		return map[string]channel.Sender{"email": s}, nil
	}
	return nil, fmt.Errorf("unknown channel sender %q", cfg.Sender)
}
