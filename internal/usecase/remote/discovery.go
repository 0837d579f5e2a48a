package remote

import (
	"context"
	"log/slog"
	"time"

	"github.com/whchoi98/netaiops/internal/domain"
	"github.com/whchoi98/netaiops/internal/infra/config"
)

// AgentDialer is the outbound side of discovery: health probing, card
// resolution, and opening task connections.
type AgentDialer interface {
	Probe(ctx context.Context, addr string) error
	ResolveCard(ctx context.Context, addr string) (*domain.AgentCard, error)
	Open(endpoint string) domain.AgentConnection
}

// FailedAddress records one address that could not be resolved after all
// attempts, with the classification of its final error.
type FailedAddress struct {
	Address string
	Code    domain.ErrorCode
	Reason  string
}

// Report summarizes one discovery pass.
type Report struct {
	Succeeded []string
	Failed    []FailedAddress
}

// Discoverer resolves configured specialist addresses into registry
// entries. Addresses are processed sequentially; a failure on one address
// never prevents the rest from being tried.
type Discoverer struct {
	dialer   AgentDialer
	registry *Registry
	cfg      config.DiscoveryConfig
	logger   *slog.Logger

	// sleep is injectable so tests can run backoff without waiting.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewDiscoverer creates a Discoverer over the given registry.
func NewDiscoverer(dialer AgentDialer, registry *Registry, cfg config.DiscoveryConfig, logger *slog.Logger) *Discoverer {
	if cfg.Attempts < 1 {
		cfg.Attempts = 1
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 2 * time.Second
	}
	return &Discoverer{
		dialer:   dialer,
		registry: registry,
		cfg:      cfg,
		logger:   logger,
		sleep:    sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Discover runs one pass over all configured addresses, registering each
// agent whose card resolves. The returned report lists both outcomes; the
// pass itself only errors when the context is canceled.
func (d *Discoverer) Discover(ctx context.Context) (*Report, error) {
	return d.DiscoverAddresses(ctx, d.cfg.Addresses)
}

// DiscoverAddresses runs one pass over an explicit address list. Used by
// periodic rediscovery to include addresses found by network scanning.
func (d *Discoverer) DiscoverAddresses(ctx context.Context, addresses []string) (*Report, error) {
	report := &Report{}

	for _, addr := range addresses {
		card, err := d.resolveWithRetry(ctx, addr)
		if err != nil {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			code := domain.ErrorCodeOf(err)
			d.logger.Warn("agent discovery failed",
				"address", addr,
				"code", string(code),
				"error", err,
			)
			report.Failed = append(report.Failed, FailedAddress{
				Address: addr,
				Code:    code,
				Reason:  err.Error(),
			})
			continue
		}

		d.registry.Register(&domain.AgentDescriptor{
			Card:     *card,
			Endpoint: addr,
			Conn:     d.dialer.Open(addr),
		})
		report.Succeeded = append(report.Succeeded, card.Name)
	}

	d.logger.Info("discovery pass complete",
		"succeeded", len(report.Succeeded),
		"failed", len(report.Failed),
	)
	return report, nil
}

// resolveWithRetry fetches the agent card with bounded retries and doubling
// backoff. The health probe runs once per address and is best-effort: a
// failed probe is logged but never skips card resolution.
func (d *Discoverer) resolveWithRetry(ctx context.Context, addr string) (*domain.AgentCard, error) {
	if d.cfg.HealthProbe {
		if err := d.dialer.Probe(ctx, addr); err != nil {
			d.logger.Debug("health probe failed", "address", addr, "error", err)
		}
	}

	var lastErr error
	delay := d.cfg.BaseDelay

	for attempt := 1; attempt <= d.cfg.Attempts; attempt++ {
		card, err := d.dialer.ResolveCard(ctx, addr)
		if err == nil {
			return card, nil
		}
		lastErr = err

		if attempt < d.cfg.Attempts {
			d.logger.Debug("card resolution retry",
				"address", addr,
				"attempt", attempt,
				"delay", delay,
				"error", err,
			)
			if err := d.sleep(ctx, delay); err != nil {
				return nil, err
			}
			delay *= 2
		}
	}
	return nil, lastErr
}
