package scanner

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/projectdiscovery/subfinder/v2/pkg/resolve"
	"github.com/projectdiscovery/subfinder/v2/pkg/runner"
)

// SubfinderScanner enumerates subdomains passively through the subfinder
// library.
type SubfinderScanner struct {
	Threads            int    // concurrent sources
	Timeout            int    // per-source timeout (seconds)
	MaxEnumerationTime int    // total budget (minutes)
	ProviderConfigPath string // optional API key config
}

// NewSubfinderScanner creates a scanner with conservative defaults.
func NewSubfinderScanner() *SubfinderScanner {
	return &SubfinderScanner{
		Threads:            10,
		Timeout:            30,
		MaxEnumerationTime: 10,
	}
}

// SetProviderConfig sets the provider API key configuration file.
func (s *SubfinderScanner) SetProviderConfig(path string) {
	s.ProviderConfigPath = path
}

// Enumerate collects subdomains for a domain. The result is deduplicated
// but otherwise unfiltered; resolution happens downstream.
func (s *SubfinderScanner) Enumerate(ctx context.Context, domain string) ([]string, error) {
	var (
		mu   sync.Mutex
		seen = make(map[string]struct{})
		subs []string
	)

	opts := &runner.Options{
		Threads:            s.Threads,
		Timeout:            s.Timeout,
		MaxEnumerationTime: s.MaxEnumerationTime,
		Domain:             []string{domain},
		Output:             &bytes.Buffer{},
		ResultCallback: func(entry *resolve.HostEntry) {
			mu.Lock()
			if _, dup := seen[entry.Host]; !dup {
				seen[entry.Host] = struct{}{}
				subs = append(subs, entry.Host)
			}
			mu.Unlock()
		},
	}
	if s.ProviderConfigPath != "" {
		opts.ProviderConfig = s.ProviderConfigPath
	}

	subfinderRunner, err := runner.NewRunner(opts)
	if err != nil {
		return nil, fmt.Errorf("create subfinder runner: %w", err)
	}

	if err := subfinderRunner.RunEnumerationWithCtx(ctx); err != nil {
		return subs, fmt.Errorf("subdomain enumeration: %w", err)
	}
	return subs, nil
}
