package commands

import (
	"context"
	"fmt"

	"github.com/wonny/sigapi/internal/framework"
	"github.com/wonny/sigapi/internal/resource"
	"github.com/wonny/sigapi/pkg/config"
	"github.com/wonny/sigapi/pkg/httputil"
	"github.com/wonny/sigapi/pkg/logger"
	"github.com/wonny/sigapi/pkg/redis"
)

// loadConfig reads the environment and applies global flag overrides
func loadConfig() (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if env != "" {
		cfg.Env = env
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	if logFormat != "" {
		cfg.LogFormat = logFormat
	}
	return cfg, logger.New(cfg), nil
}

// newResourceClient creates the root framework API client
func newResourceClient(cfg *config.Config, log *logger.Logger) (*resource.Client, error) {
	return resource.New(cfg.API, httputil.New(cfg, log), log)
}

// initSession creates the default framework session, with the Redis
// reference-data cache when REDIS_ENABLED is set
func initSession(ctx context.Context, cfg *config.Config, log *logger.Logger) (*framework.Session, func(), error) {
	client, err := newResourceClient(cfg, log)
	if err != nil {
		return nil, nil, err
	}

	rdb, err := redis.New(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		rdb.Close()
		framework.Teardown()
	}

	s, err := framework.Init(ctx, client,
		framework.WithLogger(log),
		framework.WithCache(redis.NewCache(rdb, "sigapi")),
	)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return s, cleanup, nil
}
