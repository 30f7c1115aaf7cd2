// Package publisher is the single write path into the audit store.
//
// Emit is the manual entry API: business code calls it where an event
// happens (a sign-in, a scheduled purge) and may await the result. EmitAsync
// and EmitDeferred are the fire-and-forget paths the HTTP interceptor uses;
// the write runs on a detached goroutine outside the request's cancellation
// scope and its outcome only reaches the logger and metrics.
//
// Every path makes exactly one append attempt. There is no retry and no queue.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	audit "schooladmin/pkg/platform/audit"
	"schooladmin/pkg/platform/sentinel"
)

const defaultTimeout = 5 * time.Second

// BreakerSettings configures the optional circuit breaker around the store.
type BreakerSettings struct {
	Name string
	// FailureThreshold consecutive failures open the breaker.
	FailureThreshold uint32
	// Timeout is how long the breaker stays open before probing again.
	Timeout time.Duration
	// MaxRequests is the number of probes allowed while half-open.
	MaxRequests uint32
}

// Publisher persists audit entries.
type Publisher struct {
	store   audit.Store
	logger  *slog.Logger
	metrics *Metrics
	timeout time.Duration
	breaker *gobreaker.CircuitBreaker[*audit.Record]

	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
}

// Option configures the Publisher.
type Option func(*Publisher)

// WithLogger sets a logger for error reporting.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *Metrics) Option {
	return func(p *Publisher) {
		p.metrics = m
	}
}

// WithTimeout bounds each store write.
func WithTimeout(d time.Duration) Option {
	return func(p *Publisher) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithCircuitBreaker sheds writes after repeated store failures.
func WithCircuitBreaker(s BreakerSettings) Option {
	return func(p *Publisher) {
		if s.FailureThreshold == 0 {
			return
		}
		if s.Name == "" {
			s.Name = "audit-store"
		}
		if s.MaxRequests == 0 {
			s.MaxRequests = 1
		}
		p.breaker = gobreaker.NewCircuitBreaker[*audit.Record](gobreaker.Settings{
			Name:        s.Name,
			MaxRequests: s.MaxRequests,
			Timeout:     s.Timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= s.FailureThreshold
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				p.metrics.SetCircuitBreakerState(to == gobreaker.StateOpen)
				p.logger.Warn("audit circuit breaker state changed",
					"breaker", name,
					"from", from.String(),
					"to", to.String(),
				)
			},
		})
	}
}

// New creates a publisher over store.
func New(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{
		store:   store,
		logger:  slog.New(slog.DiscardHandler),
		timeout: defaultTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Emit writes one entry synchronously and returns the stored record.
// A failure is logged and returned; callers are free to ignore it.
func (p *Publisher) Emit(ctx context.Context, entry audit.Entry) (*audit.Record, error) {
	if err := validate(entry); err != nil {
		return nil, err
	}
	return p.persist(ctx, entry)
}

// EmitAsync schedules the write on a detached goroutine and returns at once.
// The write outlives the caller's context cancellation but not the publisher's
// write timeout.
func (p *Publisher) EmitAsync(ctx context.Context, entry audit.Entry) {
	p.EmitDeferred(ctx, func() (audit.Entry, error) { return entry, nil })
}

// EmitDeferred is EmitAsync for callers whose entry is costly to assemble:
// build runs on the detached goroutine, and an error from it drops the entry.
// Close waits for the build as well as the write.
func (p *Publisher) EmitDeferred(ctx context.Context, build func() (audit.Entry, error)) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.logger.WarnContext(ctx, "audit entry dropped, publisher closed")
		return
	}

	detached := context.WithoutCancel(ctx)
	p.wg.Add(1)
	p.metrics.AddInFlight(1)
	go func() {
		var action string
		defer func() {
			if r := recover(); r != nil {
				p.metrics.IncPersistFailures()
				p.logger.ErrorContext(detached, "audit write panicked",
					"action", action,
					"panic", fmt.Sprint(r),
				)
			}
			p.metrics.AddInFlight(-1)
			p.wg.Done()
		}()
		entry, err := build()
		if err != nil {
			p.logger.WarnContext(detached, "audit entry not assembled", "error", err)
			return
		}
		action = entry.Action
		if err := validate(entry); err != nil {
			p.logger.WarnContext(detached, "audit entry rejected", "error", err)
			return
		}
		_, _ = p.persist(detached, entry)
	}()
}

// Close stops accepting async entries and waits for in-flight writes until
// ctx expires.
func (p *Publisher) Close(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("drain audit writes: %w", ctx.Err())
	}
}

func (p *Publisher) persist(ctx context.Context, entry audit.Entry) (*audit.Record, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	rec, err := p.append(ctx, entry)
	if errors.Is(err, sentinel.ErrCircuitOpen) {
		p.metrics.IncCircuitBreakerDropped()
		p.logger.DebugContext(ctx, "audit record skipped, circuit open",
			"action", entry.Action,
		)
		return nil, err
	}
	if err != nil {
		p.metrics.IncPersistFailures()
		p.logger.ErrorContext(ctx, "audit record persistence failed",
			"action", entry.Action,
			"resource", entry.Resource,
			"endpoint", entry.Endpoint,
			"error", err,
		)
		return nil, fmt.Errorf("persist audit record: %w", err)
	}

	p.metrics.ObservePersistDuration(time.Since(start).Seconds())
	p.metrics.IncEmitted()
	return rec, nil
}

func (p *Publisher) append(ctx context.Context, entry audit.Entry) (*audit.Record, error) {
	if p.breaker == nil {
		return p.store.Append(ctx, entry)
	}
	rec, err := p.breaker.Execute(func() (*audit.Record, error) {
		return p.store.Append(ctx, entry)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, sentinel.ErrCircuitOpen
	}
	return rec, err
}

func validate(entry audit.Entry) error {
	if entry.Action == "" {
		return errors.New("audit entry requires Action")
	}
	if entry.Resource == "" {
		return errors.New("audit entry requires Resource")
	}
	return nil
}
