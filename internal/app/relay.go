package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/nulpointcorp/prompt-relay/internal/config"
	"github.com/nulpointcorp/prompt-relay/internal/metrics"
	"github.com/nulpointcorp/prompt-relay/internal/ratelimit"
	"github.com/nulpointcorp/prompt-relay/internal/relay"
	"github.com/nulpointcorp/prompt-relay/internal/upstream"
)

// RelayDeps are the optional collaborators BuildRelay wires in.
type RelayDeps struct {
	Metrics  *metrics.Registry
	Recorder relay.Recorder

	// Redis backs the rate limiter; nil disables limiting.
	Redis *redis.Client
}

// BuildRelay constructs the upstream client and relay handler from cfg.
// It performs no I/O, so every entry point can call it at startup.
func BuildRelay(cfg *config.Config, log *slog.Logger, deps RelayDeps) (*relay.Handler, *upstream.Client) {
	client := upstream.New(cfg.Upstream.APIKey,
		upstream.WithBaseURL(cfg.Upstream.BaseURL),
		upstream.WithAPIVersion(cfg.Upstream.APIVersion),
		upstream.WithTimeout(cfg.Upstream.Timeout),
		upstream.WithLogger(log),
	)

	opts := relay.Options{
		Logger:   log,
		Metrics:  deps.Metrics,
		Recorder: deps.Recorder,
	}
	if deps.Redis != nil && cfg.RateLimit.RPMLimit > 0 {
		opts.Limiter = ratelimit.NewRPMLimiter(deps.Redis, cfg.RateLimit.RPMLimit)
	}

	h := relay.New(relay.Config{
		Model:         cfg.Upstream.Model,
		MaxTokens:     cfg.Upstream.MaxTokens,
		Marker:        cfg.Relay.Marker,
		RequireMarker: cfg.Relay.RequireMarker,
		CORS: relay.CORS{
			Origins: cfg.CORS.Origins,
			Methods: cfg.CORS.Methods,
			Headers: cfg.CORS.Headers,
		},
	}, client, opts)

	return h, client
}

// Function is the relay as deployed to a serverless host: one handler per
// cold start plus the connections it owns.
type Function struct {
	Handler *relay.Handler
	Config  *config.Config
	Log     *slog.Logger

	rdb *redis.Client
}

// NewFunction loads nothing itself: it takes a loaded cfg, connects Redis
// when rate limiting is on, and builds the handler.
func NewFunction(ctx context.Context, cfg *config.Config, log *slog.Logger) (*Function, error) {
	f := &Function{Config: cfg, Log: log}

	if cfg.RateLimit.RPMLimit > 0 {
		rdb, err := connectRedis(ctx, cfg.Redis.URL)
		if err != nil {
			return nil, fmt.Errorf("app: redis: %w", err)
		}
		f.rdb = rdb
	}

	f.Handler, _ = BuildRelay(cfg, log, RelayDeps{Redis: f.rdb})
	logCredential(log, cfg)

	return f, nil
}

// Close releases the Redis connection, if any.
func (f *Function) Close() {
	if f.rdb != nil {
		_ = f.rdb.Close()
		f.rdb = nil
	}
}

// logCredential reports where the credential came from, never its value.
func logCredential(log *slog.Logger, cfg *config.Config) {
	if !cfg.CredentialConfigured() {
		log.Warn("upstream credential not configured; relay requests will fail with 500",
			slog.String("expected", "MINIMAX_API_KEY"),
		)
		return
	}
	log.Info("upstream credential loaded", slog.String("source", cfg.Upstream.KeySource))
}
