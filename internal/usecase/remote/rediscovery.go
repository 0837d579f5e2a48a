package remote

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Scanner finds additional agent addresses beyond the configured list.
type Scanner interface {
	Scan(ctx context.Context) ([]string, error)
}

// Rediscoverer reruns discovery on a cron schedule so agents that were down
// at startup, or that appeared later on the network, eventually join the
// registry. Registration is last-write-wins, so repeated passes are safe.
type Rediscoverer struct {
	disc    *Discoverer
	scanner Scanner
	cron    *cron.Cron
	spec    string
	logger  *slog.Logger
}

// NewRediscoverer creates a Rediscoverer with a cron spec such as
// "@every 10m". scanner may be nil.
func NewRediscoverer(disc *Discoverer, scanner Scanner, spec string, logger *slog.Logger) *Rediscoverer {
	return &Rediscoverer{
		disc:    disc,
		scanner: scanner,
		cron:    cron.New(),
		spec:    spec,
		logger:  logger,
	}
}

// Start schedules periodic passes. The context bounds each individual pass.
func (r *Rediscoverer) Start(ctx context.Context) error {
	_, err := r.cron.AddFunc(r.spec, func() {
		r.runPass(ctx)
	})
	if err != nil {
		return fmt.Errorf("schedule rediscovery: %w", err)
	}
	r.cron.Start()
	r.logger.Info("periodic rediscovery scheduled", "spec", r.spec)
	return nil
}

// Stop halts the schedule. In-flight passes run to completion.
func (r *Rediscoverer) Stop() {
	r.cron.Stop()
}

func (r *Rediscoverer) runPass(ctx context.Context) {
	addrs := r.disc.cfg.Addresses
	if r.scanner != nil {
		scanned, err := r.scanner.Scan(ctx)
		if err != nil {
			r.logger.Warn("network scan failed", "error", err)
		}
		addrs = mergeAddresses(addrs, scanned)
	}

	if _, err := r.disc.DiscoverAddresses(ctx, addrs); err != nil {
		r.logger.Warn("rediscovery pass aborted", "error", err)
	}
}

func mergeAddresses(configured, scanned []string) []string {
	seen := make(map[string]struct{}, len(configured))
	merged := make([]string, 0, len(configured)+len(scanned))
	for _, a := range configured {
		seen[a] = struct{}{}
		merged = append(merged, a)
	}
	for _, a := range scanned {
		if _, dup := seen[a]; !dup {
			seen[a] = struct{}{}
			merged = append(merged, a)
		}
	}
	return merged
}
