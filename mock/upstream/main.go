// Command upstream runs a lightweight HTTP mock of the MiniMax Messages API
// (Anthropic dialect). It is used for E2E/load testing of the relay without
// real credentials.
//
// Point the relay at it with MINIMAX_BASE_URL=http://localhost:19100/anthropic.
//
// Behaviour flags (via env):
//
//	PORT              listen port (default 19100)
//	MOCK_SHAPE        reply shape: content (default), thinking, choices, text, unknown, empty
//	MOCK_LATENCY_MS   artificial latency added to every response (default 0)
//	MOCK_ERROR_RATE   fraction [0,1] of requests that return HTTP 500 (default 0)
//	MOCK_STATUS       when set, every request fails with this status (e.g. 429)
//	MOCK_WORDS        words in the generated reply (default 10)
//	MOCK_API_KEY      when set, x-api-key must match it (it must always be present)
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"
)

// Config holds runtime configuration for the mock.
type Config struct {
	Shape     string
	LatencyMS int
	ErrorRate float64
	Status    int
	Words     int
	APIKey    string
}

func loadConfig() Config {
	c := Config{Shape: shapeContent, Words: 10}

	if v := os.Getenv("MOCK_SHAPE"); v != "" {
		c.Shape = v
	}
	if v := os.Getenv("MOCK_LATENCY_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.LatencyMS = n
		}
	}
	if v := os.Getenv("MOCK_ERROR_RATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 && f <= 1 {
			c.ErrorRate = f
		}
	}
	if v := os.Getenv("MOCK_STATUS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 400 && n <= 599 {
			c.Status = n
		}
	}
	if v := os.Getenv("MOCK_WORDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Words = n
		}
	}
	c.APIKey = os.Getenv("MOCK_API_KEY")
	return c
}

func main() {
	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	cfg := loadConfig()

	port := os.Getenv("PORT")
	if port == "" {
		port = "19100"
	}

	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      newMessagesHandler(cfg, log),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info("mock upstream listening",
			slog.String("addr", srv.Addr),
			slog.String("shape", cfg.Shape),
			slog.Int("latency_ms", cfg.LatencyMS),
			slog.Float64("error_rate", cfg.ErrorRate),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", slog.String("error", err.Error()))
		}
	}()

	fmt.Println("READY")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
	log.Info("mock upstream stopped")
}
