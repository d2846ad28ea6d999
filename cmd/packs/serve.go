package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"jointPacks/internal/api"
	"jointPacks/internal/chain"
	"jointPacks/internal/config"
	"jointPacks/internal/dashboard"
	"jointPacks/internal/lootbox"
	"jointPacks/internal/metrics"
	"jointPacks/internal/reward"
	"jointPacks/internal/storage/postgres"
)

func runServe(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadServe(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	signer, err := loadSigner(cfg.PrivateKey)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := dialChain(ctx, cfg.RPCURL)
	if err != nil {
		return err
	}
	defer client.Close()

	var store *postgres.Store
	if cfg.PGDSN != "" {
		store, err = postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer store.Close()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	board := dashboard.New(dashboard.Config{
		Limit:    cfg.Limit,
		Debounce: cfg.Debounce,
		Metrics:  m,
	}, dashboard.Binding{}, logger)
	defer board.Close()

	g, gctx := errgroup.WithContext(ctx)

	sessions := reward.NewSessions(0)
	srv := api.NewServer(gctx, api.Config{
		RateLimit: cfg.RateLimit,
		RateBurst: cfg.RateBurst,
		Limit:     cfg.Limit,
	}, board, sessions, reg, logger)

	b := &serveBinder{
		cfg:      cfg,
		client:   client,
		store:    store,
		signer:   signer,
		board:    board,
		srv:      srv,
		sessions: sessions,
		metrics:  m,
		logger:   logger,
	}
	if err := b.bind(gctx); err != nil {
		logger.Warn("contract config unavailable, serving degraded", zap.Error(err))
		m.Error("config")
	}

	httpServer := &http.Server{
		Addr:              cfg.Listen,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		logger.Info("http listen", zap.String("addr", cfg.Listen))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
		defer cancel()
		err := httpServer.Shutdown(shutdownCtx)
		srv.Wait()
		logger.Info("http stopped")
		return err
	})

	g.Go(func() error {
		err := board.WatchHead(gctx, client, cfg.HeadInterval)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		hup := make(chan os.Signal, 1)
		signal.Notify(hup, syscall.SIGHUP)
		defer signal.Stop(hup)
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-hup:
				logger.Info("reloading contract config", zap.String("path", cfg.ContractPath))
				if err := b.bind(gctx); err != nil {
					logger.Warn("reload failed, keeping current binding", zap.Error(err))
					m.Error("config")
				}
			}
		}
	})

	return g.Wait()
}

// serveBinder (re)binds the board and the pack opener to the contract
// document on startup and on SIGHUP.
type serveBinder struct {
	cfg      config.ServeConfig
	client   *chain.Client
	store    *postgres.Store
	signer   *lootbox.Signer
	board    *dashboard.Board
	srv      *api.Server
	sessions *reward.Sessions
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

func (b *serveBinder) bind(ctx context.Context) error {
	contract, doc, err := bindContract(ctx, b.client, b.cfg.ContractPath, b.signer, b.logger)
	if err != nil {
		return err
	}

	binding := dashboard.Binding{
		ID:        doc.Identity(),
		Source:    contract,
		Holdings:  contract,
		FromBlock: doc.DeployBlock,
	}
	if b.store != nil {
		binding.Source = b.store
	}
	b.board.Rebind(binding)

	if !contract.CanOpen() {
		b.srv.SetOpener(nil, "")
		b.logger.Info("bound read-only", zap.String("contract", doc.Identity()))
		return nil
	}

	poller := reward.NewPoller(reward.PollerConfig{
		Interval: b.cfg.PollInterval,
		Timeout:  b.cfg.PollTimeout,
		Metrics:  b.metrics,
		OnResolved: func(reward.Status) {
			b.board.Refresh("reward received")
		},
	}, contract, contract, b.sessions, b.logger)
	b.srv.SetOpener(poller, b.signer.Address().Hex())
	b.logger.Info("bound", zap.String("contract", doc.Identity()), zap.String("signer", b.signer.Address().Hex()))
	return nil
}
