package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"gigflow/config"
	"gigflow/contract"
	"gigflow/db"
	"gigflow/dispute"
	"gigflow/gateway"
	"gigflow/httpapi"
	"gigflow/identity"
	"gigflow/job"
	"gigflow/ledger"
	"gigflow/notify"
	"gigflow/profile"
	"gigflow/proposal"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(*configPath, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func run(configPath string, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	pool, err := db.NewPool(ctx, cfg.DB.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	fees, err := ledger.NewFeePolicy(cfg.Fees.PlatformRate)
	if err != nil {
		return err
	}

	profiles := profile.NewRepository(pool)
	jobs := job.NewService(pool, logger)
	proposals := proposal.NewService(pool, logger)
	contracts := contract.NewService(pool, profiles, logger)
	ledgerSvc := ledger.NewService(pool, gateway.Simulated{}, fees, logger)
	disputes := dispute.NewService(pool, logger)
	verifier := identity.NewVerifier(cfg.JWT.Secret)

	g, ctx := errgroup.WithContext(ctx)

	if cfg.AMQP.URL != "" {
		publisher, err := notify.NewAMQPPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange)
		if err != nil {
			return err
		}
		defer publisher.Close()

		var rdb *redis.Client
		if cfg.Redis.Addr != "" {
			rdb = redis.NewClient(&redis.Options{
				Addr:     cfg.Redis.Addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			})
			defer rdb.Close()
		}

		dispatcher := notify.NewDispatcher(pool, publisher, rdb, logger)
		g.Go(func() error { return dispatcher.Run(ctx) })
	} else {
		logger.Warn("amqp url not configured, outbox dispatch disabled")
	}

	api := httpapi.NewServer(jobs, proposals, contracts, ledgerSvc, disputes, profiles, verifier, logger)
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g.Go(func() error {
		logger.Info("http server listening", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
