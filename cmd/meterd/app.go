package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/rueidis"
	"go.uber.org/zap"

	"github.com/kailas-cloud/meterd/internal/config"
	"github.com/kailas-cloud/meterd/internal/domain"
	"github.com/kailas-cloud/meterd/internal/lock"
	logpkg "github.com/kailas-cloud/meterd/internal/logger"
	"github.com/kailas-cloud/meterd/internal/metrics"
	s3store "github.com/kailas-cloud/meterd/internal/objstore/s3"
	staterepo "github.com/kailas-cloud/meterd/internal/repository/state"
	usagerepo "github.com/kailas-cloud/meterd/internal/repository/usage"
	"github.com/kailas-cloud/meterd/internal/transport/clazar"
	"github.com/kailas-cloud/meterd/internal/usecase/pipeline"
	"github.com/kailas-cloud/meterd/internal/version"
)

// app holds the assembled pipeline plus everything needing teardown.
type app struct {
	cfg         config.Config
	logger      *zap.Logger
	pipeline    *pipeline.Service
	lock        *lock.Lock
	redisClient rueidis.Client
}

// newApp is the composition root: config, logger, stores, billing client,
// optional lock, and the pipeline itself.
func newApp(ctx context.Context) (*app, error) {
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	logger.Info("Starting meterd",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.String("service", cfg.Service.Name),
		zap.String("environment", cfg.Service.Environment),
		zap.String("plan_id", cfg.Service.PlanID),
		zap.Bool("dry_run", cfg.Pipeline.DryRun),
	)

	metrics.Register()

	store, err := s3store.NewStore(ctx, s3store.Config{
		Endpoint:     cfg.Storage.Endpoint,
		Region:       cfg.Storage.Region,
		AccessKey:    cfg.Storage.AccessKey,
		SecretKey:    cfg.Storage.SecretKey,
		Bucket:       cfg.Storage.Bucket,
		UsePathStyle: cfg.Storage.UsePathStyle,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object store: %w", err)
	}

	usageRepo := usagerepo.New(store, cfg.Storage.UsagePrefix, logger)
	stateRepo := staterepo.New(store, cfg.Storage.StateKey, logger)

	billing := clazar.New(clazar.Config{
		BaseURL:      cfg.Billing.BaseURL,
		ClientID:     cfg.Billing.ClientID,
		ClientSecret: cfg.Billing.ClientSecret,
		Timeout:      time.Duration(cfg.Billing.TimeoutSec) * time.Second,
	}, logger)
	if cfg.Billing.AccessToken != "" {
		billing.SetToken(cfg.Billing.AccessToken)
	}

	customDims := make([]domain.CustomDimension, 0, len(cfg.Pipeline.CustomDimensions))
	for _, cd := range cfg.Pipeline.CustomDimensions {
		customDims = append(customDims, domain.CustomDimension{Name: cd.Name, Formula: cd.Formula})
	}

	svc, err := pipeline.New(pipeline.Config{
		ServiceKey: domain.ServiceKey{
			Service:     cfg.Service.Name,
			Environment: cfg.Service.Environment,
			PlanID:      cfg.Service.PlanID,
		},
		Cloud:            cfg.Service.Cloud,
		MaxWindows:       cfg.Pipeline.MaxWindowsPerRun,
		MaxRetries:       cfg.Pipeline.MaxRetries,
		RetryPolicy:      cfg.Pipeline.RetryPolicy,
		RawDimensions:    cfg.Pipeline.RawDimensions,
		CustomDimensions: customDims,
		DryRun:           cfg.Pipeline.DryRun,
	}, usageRepo, stateRepo, billing, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}

	a := &app{cfg: cfg, logger: logger, pipeline: svc}

	if len(cfg.Lock.Addrs) > 0 {
		client, err := rueidis.NewClient(rueidis.ClientOption{
			InitAddress:  cfg.Lock.Addrs,
			Username:     cfg.Lock.Username,
			Password:     cfg.Lock.Password,
			DisableCache: true,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create lock client: %w", err)
		}
		a.redisClient = client
		a.lock = lock.New(client, cfg.Lock.Key, time.Duration(cfg.Lock.TTLSeconds)*time.Second)
	}

	if !cfg.Pipeline.DryRun && cfg.Billing.AccessToken == "" {
		if err := billing.Authenticate(ctx); err != nil {
			a.close()
			return nil, fmt.Errorf("failed to authenticate with billing API: %w", err)
		}
	}

	return a, nil
}

// runOnce executes one pipeline pass under the advisory lock, if configured.
func (a *app) runOnce(ctx context.Context) error {
	if a.lock != nil {
		if err := a.lock.Acquire(ctx); err != nil {
			if errors.Is(err, lock.ErrHeld) {
				a.logger.Warn("another instance holds the lock, skipping run")
				return nil
			}
			return fmt.Errorf("acquire lock: %w", err)
		}
		defer func() {
			if err := a.lock.Release(ctx); err != nil {
				a.logger.Error("failed to release lock", zap.Error(err))
			}
		}()
	}

	return a.pipeline.Run(ctx)
}

func (a *app) close() {
	if a.redisClient != nil {
		a.redisClient.Close()
	}
	_ = a.logger.Sync()
}
