// Package probe waits for spawned servers to accept TCP connections.
package probe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/avast/retry-go"
)

const (
	// DefaultMaxAttempts matches the runner's historical 50 x 200ms budget.
	DefaultMaxAttempts = 50

	// DefaultInterval is the sleep between failed connection attempts.
	DefaultInterval = 200 * time.Millisecond

	// progressEvery controls how often a still-waiting line is logged.
	progressEvery = 10
)

// TimeoutError reports that a port never became reachable.
type TimeoutError struct {
	Port     int
	Attempts int
	Last     error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("port %d did not become reachable after %d attempts: %v", e.Port, e.Attempts, e.Last)
}

func (e *TimeoutError) Unwrap() error {
	return e.Last
}

// Config holds prober settings.
type Config struct {
	Host        string
	MaxAttempts int
	Interval    time.Duration
	Logger      *slog.Logger
}

// Prober polls a TCP endpoint until it accepts a connection.
type Prober struct {
	host        string
	maxAttempts int
	interval    time.Duration
	logger      *slog.Logger

	dial func(ctx context.Context, addr string) (net.Conn, error)
}

// New creates a Prober, filling unset fields with defaults.
func New(cfg Config) *Prober {
	host := cfg.Host
	if host == "" {
		host = "localhost"
	}
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	dialer := &net.Dialer{Timeout: interval}
	return &Prober{
		host:        host,
		maxAttempts: attempts,
		interval:    interval,
		logger:      logger,
		dial: func(ctx context.Context, addr string) (net.Conn, error) {
			return dialer.DialContext(ctx, "tcp", addr)
		},
	}
}

// WaitReady blocks until port accepts a TCP connection, the attempt budget is
// spent (*TimeoutError), or ctx is done (ctx.Err()).
func (p *Prober) WaitReady(ctx context.Context, port int) error {
	addr := net.JoinHostPort(p.host, strconv.Itoa(port))

	err := retry.Do(
		func() error {
			conn, err := p.dial(ctx, addr)
			if err != nil {
				return err
			}
			return conn.Close()
		},
		retry.Attempts(uint(p.maxAttempts)),
		retry.Delay(p.interval),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			if n > 0 && n%progressEvery == 0 {
				p.logger.Info("waiting_for_port",
					"port", port,
					"attempt", n,
					"max_attempts", p.maxAttempts,
				)
			}
		}),
	)
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &TimeoutError{Port: port, Attempts: p.maxAttempts, Last: err}
}
