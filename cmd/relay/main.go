// Command relay is the prompt relay server.
//
// It reads configuration from environment variables (or config.yaml) and
// serves the relay endpoint, forwarding each prompt to the MiniMax Messages
// API and returning the reply text.
//
// Quick-start (no Redis required):
//
//	MINIMAX_API_KEY=... ./relay
//
// See .env.example for all available configuration variables.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nulpointcorp/prompt-relay/internal/app"
	"github.com/nulpointcorp/prompt-relay/internal/config"
	"github.com/nulpointcorp/prompt-relay/internal/logger"
)

// version is overridden at build time via -ldflags="-X main.version=x.y.z".
var version = "0.1.0"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	lg := logger.Build(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(lg)

	a, err := app.New(ctx, cfg, lg, version)
	if err != nil {
		lg.Error("startup failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer a.Close()

	if err := a.Run(ctx); err != nil {
		lg.Error("relay stopped", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
