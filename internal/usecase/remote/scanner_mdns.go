//go:build mdns

package remote

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
)

const (
	mdnsServiceType = "_netaiops-agent._tcp"
	mdnsDomain      = "local."
	mdnsScanTimeout = 5 * time.Second
)

// MDNSScanner finds specialist agents advertising themselves on the local
// network via mDNS/DNS-SD. Scanned addresses supplement the statically
// configured ones; each still goes through normal card resolution.
type MDNSScanner struct {
	logger *slog.Logger
}

// NewMDNSScanner creates a new MDNSScanner.
func NewMDNSScanner(logger *slog.Logger) *MDNSScanner {
	return &MDNSScanner{logger: logger}
}

// Scan browses for agent services and returns their base URLs.
func (s *MDNSScanner) Scan(ctx context.Context) ([]string, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("mdns resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry)
	var mu sync.Mutex
	var addrs []string
	var wg sync.WaitGroup

	scanCtx, cancel := context.WithTimeout(ctx, mdnsScanTimeout)
	defer cancel()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for entry := range entries {
			addr := entryToAddr(entry)
			if addr == "" {
				continue
			}
			mu.Lock()
			addrs = append(addrs, addr)
			mu.Unlock()
			s.logger.Debug("mdns discovered agent", "name", entry.ServiceRecord.Instance, "address", addr)
		}
	}()

	if err := resolver.Browse(scanCtx, mdnsServiceType, mdnsDomain, entries); err != nil {
		cancel()
		// Wait for consumer goroutine to drain the channel before returning.
		wg.Wait()
		return nil, fmt.Errorf("mdns browse: %w", err)
	}

	<-scanCtx.Done()
	wg.Wait()

	mu.Lock()
	result := make([]string, len(addrs))
	copy(result, addrs)
	mu.Unlock()

	return result, nil
}

func entryToAddr(entry *zeroconf.ServiceEntry) string {
	if len(entry.AddrIPv4) > 0 {
		return fmt.Sprintf("http://%s:%d", entry.AddrIPv4[0], entry.Port)
	}
	if len(entry.AddrIPv6) > 0 {
		return fmt.Sprintf("http://[%s]:%d", entry.AddrIPv6[0], entry.Port)
	}
	return ""
}
