//go:build !mdns

package remote

import (
	"context"
	"log/slog"
)

// MDNSScanner is a placeholder used when mDNS support is not compiled in.
type MDNSScanner struct{}

// NewMDNSScanner creates a no-op scanner.
func NewMDNSScanner(_ *slog.Logger) *MDNSScanner { return &MDNSScanner{} }

// Scan returns nil; network discovery needs the mdns build tag.
func (s *MDNSScanner) Scan(_ context.Context) ([]string, error) {
	return nil, nil
}
