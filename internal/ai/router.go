package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ErrNoProviders is returned when no provider is registered.
var ErrNoProviders = errors.New("ai: no providers registered")

// Router tries registered providers in order until one succeeds.
type Router struct {
	providers map[string]Provider
	fallback  []string // ordered fallback chain
	limiter   *rate.Limiter
	mu        sync.RWMutex
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithRequestsPerMinute caps outgoing completions. Zero or negative means
// no limit.
func WithRequestsPerMinute(n int) RouterOption {
	return func(r *Router) {
		if n > 0 {
			r.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(n)), n)
		}
	}
}

// NewRouter creates a new AI router.
func NewRouter(opts ...RouterOption) *Router {
	r := &Router{
		providers: make(map[string]Provider),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a provider to the router.
func (r *Router) Register(name string, provider Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.providers[name]; !exists {
		r.fallback = append(r.fallback, name)
	}
	r.providers[name] = provider
}

// Complete routes a request to the first provider that answers.
func (r *Router) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return CompletionResponse{}, fmt.Errorf("rate limit: %w", err)
		}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.fallback) == 0 {
		return CompletionResponse{}, ErrNoProviders
	}

	var errs []error
	for _, name := range r.fallback {
		provider := r.providers[name]

		resp, err := provider.Complete(ctx, req)
		if err != nil {
			slog.Warn("AI provider failed, trying next",
				"provider", name,
				"task", req.Task.String(),
				"error", err,
			)
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			if ctx.Err() != nil {
				break
			}
			continue
		}

		slog.Debug("AI request completed",
			"provider", name,
			"task", req.Task.String(),
			"model", resp.Model,
			"input_tokens", resp.InputTokens,
			"output_tokens", resp.OutputTokens,
		)
		return resp, nil
	}

	return CompletionResponse{}, fmt.Errorf("all AI providers failed: %w", errors.Join(errs...))
}

// HasProvider returns true if at least one provider is registered.
func (r *Router) HasProvider() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.providers) > 0
}

// HealthCheck reports healthy when any registered provider is healthy.
func (r *Router) HealthCheck(ctx context.Context) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.fallback) == 0 {
		return ErrNoProviders
	}
	var errs []error
	for _, name := range r.fallback {
		if err := r.providers[name].HealthCheck(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		return nil
	}
	return errors.Join(errs...)
}
