package notes

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"ilsgate/internal/customer"
	"ilsgate/internal/policy"
	dErrors "ilsgate/pkg/domain-errors"
	"ilsgate/pkg/platform/circuit"
	"ilsgate/pkg/platform/sentinel"
)

const DefaultTimeout = 2 * time.Second

// Runner invokes the hook a policy names, isolating the caller from the
// hook's failures. Each hook has its own circuit breaker: after a run of
// failures the hook is skipped until the cooldown passes.
type Runner struct {
	registry *Registry
	timeout  time.Duration
	logger   *slog.Logger

	breakerOpts []circuit.Option
	mu          sync.Mutex
	breakers    map[string]*circuit.Breaker
}

type RunnerOption func(*Runner)

func WithLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = logger
	}
}

// WithTimeout bounds a single hook call. Non-positive values keep the default.
func WithTimeout(d time.Duration) RunnerOption {
	return func(r *Runner) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithBreaker tunes the per-hook circuit breakers.
func WithBreaker(opts ...circuit.Option) RunnerOption {
	return func(r *Runner) {
		r.breakerOpts = append(r.breakerOpts, opts...)
	}
}

func NewRunner(registry *Registry, opts ...RunnerOption) *Runner {
	if registry == nil {
		registry = NewRegistry()
	}
	r := &Runner{registry: registry, timeout: DefaultTimeout, breakers: map[string]*circuit.Breaker{}}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return r
}

// Run applies the hook named by p.Notes.Hook to a copy of c and returns the
// copy. When no hook is configured c is returned as is. On any failure the
// untouched c is returned together with the error, which callers treat as a
// warning.
func (r *Runner) Run(ctx context.Context, c *customer.Customer, p policy.Policy) (*customer.Customer, error) {
	name := p.Notes.Hook
	if name == "" {
		return c, nil
	}
	h, ok := r.registry.Get(name)
	if !ok {
		return c, dErrors.Wrap(sentinel.ErrNotFound, dErrors.CodeNotFound, fmt.Sprintf("note hook %q is not registered", name))
	}

	b := r.Breaker(h.Name())
	if !b.Allow() {
		return c, dErrors.Wrap(sentinel.ErrUnavailable, dErrors.CodeUnavailable, fmt.Sprintf("note hook %s skipped: circuit open", b.Name()))
	}
	out, err := r.call(ctx, h, c, p)
	if err != nil && ctx.Err() != nil {
		// Cancelled by the caller, not the hook's fault.
		return out, err
	}
	r.record(b, err)
	return out, err
}

func (r *Runner) call(ctx context.Context, h Hook, c *customer.Customer, p policy.Policy) (*customer.Customer, error) {
	name := h.Name()
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	work := c.Clone()
	if work == nil {
		work = customer.New()
	}
	done := make(chan error, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- dErrors.New(dErrors.CodeInternal, fmt.Sprintf("note hook %s panicked: %v", name, rec))
			}
		}()
		done <- h.Apply(ctx, work, p)
	}()

	select {
	case err := <-done:
		if err != nil && ctx.Err() != nil {
			return c, r.timedOut(name)
		}
		if err != nil {
			return c, dErrors.Wrap(err, dErrors.CodeInternal, fmt.Sprintf("note hook %s failed", name))
		}
		r.logger.Debug("note hook applied", "hook", name)
		return work, nil
	case <-ctx.Done():
		return c, r.timedOut(name)
	}
}

func (r *Runner) record(b *circuit.Breaker, err error) {
	var change circuit.StateChange
	if err != nil {
		change = b.RecordFailure()
	} else {
		change = b.RecordSuccess()
	}
	switch {
	case change.Opened:
		r.logger.Warn("note hook circuit opened", "hook", b.Name())
	case change.Closed:
		r.logger.Info("note hook circuit closed", "hook", b.Name())
	}
}

// Breaker returns the circuit breaker guarding the named hook.
func (r *Runner) Breaker(name string) *circuit.Breaker {
	return r.breaker(strings.ToLower(strings.TrimSpace(name)))
}

func (r *Runner) breaker(name string) *circuit.Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.breakers[name]
	if !ok {
		b = circuit.New(name, r.breakerOpts...)
		r.breakers[name] = b
	}
	return b
}

func (r *Runner) timedOut(name string) error {
	return dErrors.Wrap(sentinel.ErrUnavailable, dErrors.CodeTimeout, fmt.Sprintf("note hook %s timed out", name))
}
