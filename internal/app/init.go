package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nulpointcorp/prompt-relay/internal/logger"
	"github.com/nulpointcorp/prompt-relay/internal/metrics"
	"github.com/nulpointcorp/prompt-relay/internal/proxy"
)

// initInfra establishes optional external connections.
// Redis is only needed when RPM_LIMIT > 0.
func (a *App) initInfra(ctx context.Context) error {
	if a.cfg.RateLimit.RPMLimit <= 0 {
		return nil
	}

	a.log.Info("connecting to redis", slog.String("url", redactURL(a.cfg.Redis.URL)))

	rdb, err := connectRedis(ctx, a.cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	a.rdb = rdb
	a.log.Info("redis connected", slog.Int("rpm_limit", a.cfg.RateLimit.RPMLimit))

	return nil
}

// initServices creates the metrics registry and the async request log.
func (a *App) initServices(ctx context.Context) error {
	a.prom = metrics.New()
	a.prom.SetBuildInfo(a.version)

	rl, err := logger.New(ctx, a.log, logger.WithDropHook(a.prom.RecordLogDropped))
	if err != nil {
		return fmt.Errorf("request log: %w", err)
	}
	a.reqLogger = rl

	return nil
}

// initRelay builds the upstream client and the relay handler.
func (a *App) initRelay(_ context.Context) error {
	a.handler, a.client = BuildRelay(a.cfg, a.log, RelayDeps{
		Metrics:  a.prom,
		Recorder: a.reqLogger,
		Redis:    a.rdb,
	})
	logCredential(a.log, a.cfg)
	return nil
}

// initServer mounts the relay and management routes.
func (a *App) initServer(_ context.Context) error {
	var probes []proxy.Probe
	if a.rdb != nil {
		probes = append(probes, redisProbe(a.rdb))
	}

	a.server = proxy.NewServer(a.handler, proxy.ServerOptions{
		Path:       a.cfg.Relay.Path,
		Version:    a.version,
		Configured: a.client.Configured,
		Probes:     probes,
		Metrics:    a.prom,
		Logger:     a.log,
	})
	return nil
}

// redactURL replaces the userinfo portion of a URL with "***" for safe logging.
// e.g. "redis://:secret@localhost:6379" → "redis://***@localhost:6379"
func redactURL(raw string) string {
	for i, c := range raw {
		if c == '@' {
			for j := i - 1; j >= 0; j-- {
				if j+2 < len(raw) && raw[j:j+3] == "://" {
					return raw[:j+3] + "***" + raw[i:]
				}
			}
			return "***" + raw[i:]
		}
	}
	return raw
}
