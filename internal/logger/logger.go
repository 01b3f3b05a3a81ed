// Package logger builds the process slog.Logger and implements a
// non-blocking, batched request log.
//
// Request entries go into a buffered channel and are flushed in batches by a
// background goroutine, so recording never blocks the relay. When the
// channel is full (10 000 entries) new entries are dropped and counted.
package logger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const (
	channelBuffer = 10_000
	batchSize     = 100
	flushInterval = time.Second
)

// RequestLog is one relay invocation. It carries sizes, never prompt or
// reply text.
type RequestLog struct {
	ID            uuid.UUID
	Model         string
	Shape         string
	Status        int
	LatencyMs     int64
	PromptChars   int
	ResponseChars int
	MarkerFound   bool
	CreatedAt     time.Time
}

type Logger struct {
	ch        chan RequestLog
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	dropped int64
	onDrop  func()

	baseCtx context.Context
	log     *slog.Logger
}

// Option configures a Logger.
type Option func(*Logger)

// WithDropHook is called every time an entry is dropped.
func WithDropHook(fn func()) Option {
	return func(l *Logger) { l.onDrop = fn }
}

func New(ctx context.Context, slogger *slog.Logger, opts ...Option) (*Logger, error) {
	if ctx == nil {
		return nil, fmt.Errorf("logger: context must not be nil")
	}
	if slogger == nil {
		slogger = slog.Default()
	}

	l := &Logger{
		ch:      make(chan RequestLog, channelBuffer),
		done:    make(chan struct{}),
		baseCtx: ctx,
		log:     slogger,
	}
	for _, o := range opts {
		o(l)
	}

	l.wg.Add(1)
	go l.run()

	return l, nil
}

// Log enqueues entry without blocking.
func (l *Logger) Log(entry RequestLog) {
	select {
	case l.ch <- entry:
	default:
		atomic.AddInt64(&l.dropped, 1)
		if l.onDrop != nil {
			l.onDrop()
		}
	}
}

func (l *Logger) DroppedLogs() int64 {
	return atomic.LoadInt64(&l.dropped)
}

// Close flushes everything still buffered and stops the background
// goroutine. It is safe to call more than once.
func (l *Logger) Close() error {
	l.closeOnce.Do(func() {
		close(l.done)
	})
	l.wg.Wait()
	return nil
}

func (l *Logger) run() {
	defer l.wg.Done()

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]RequestLog, 0, batchSize)

	flush := func() {
		for _, e := range batch {
			l.log.InfoContext(l.baseCtx, "relay_request",
				slog.String("id", e.ID.String()),
				slog.String("model", e.Model),
				slog.String("shape", e.Shape),
				slog.Int("status", e.Status),
				slog.Int64("latency_ms", e.LatencyMs),
				slog.Int("prompt_chars", e.PromptChars),
				slog.Int("response_chars", e.ResponseChars),
				slog.Bool("marker_found", e.MarkerFound),
				slog.Time("created_at", normalizeTime(e.CreatedAt)),
			)
		}
		batch = batch[:0]
	}

	add := func(e RequestLog) {
		batch = append(batch, e)
		if len(batch) >= batchSize {
			flush()
		}
	}

	for {
		select {
		case e := <-l.ch:
			add(e)

		case <-ticker.C:
			flush()

		case <-l.done:
			for {
				select {
				case e := <-l.ch:
					add(e)
				default:
					flush()
					return
				}
			}
		}
	}
}

func normalizeTime(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}
