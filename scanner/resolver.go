package scanner

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/miekg/dns"
)

// DNSResolver resolves hostnames to IPv4 addresses against a fixed set
// of upstream resolvers.
type DNSResolver struct {
	Servers     []string // "ip:port"
	Concurrency int
	Timeout     time.Duration
}

func NewDNSResolver(servers []string, concurrency int) *DNSResolver {
	if len(servers) == 0 {
		servers = []string{"8.8.8.8:53", "1.1.1.1:53"}
	}
	if concurrency <= 0 {
		concurrency = 50
	}
	return &DNSResolver{
		Servers:     servers,
		Concurrency: concurrency,
		Timeout:     5 * time.Second,
	}
}

// Resolve looks up A records for every host and returns the deduplicated
// IP set, sorted for stable output. Hosts that fail to resolve are
// skipped; resolution failure is absence of signal, not an error.
func (r *DNSResolver) Resolve(ctx context.Context, hosts []string) []string {
	var (
		mu   sync.Mutex
		wg   sync.WaitGroup
		seen = make(map[string]struct{})
		sem  = make(chan struct{}, r.Concurrency)
	)

	for _, host := range hosts {
		wg.Add(1)
		go func(host string) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				return
			}

			for _, ip := range r.lookupA(ctx, host) {
				mu.Lock()
				seen[ip] = struct{}{}
				mu.Unlock()
			}
		}(host)
	}
	wg.Wait()

	ips := make([]string, 0, len(seen))
	for ip := range seen {
		ips = append(ips, ip)
	}
	sort.Strings(ips)
	return ips
}

// lookupA queries each upstream until one answers.
func (r *DNSResolver) lookupA(ctx context.Context, host string) []string {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(host), dns.TypeA)
	msg.RecursionDesired = true

	client := &dns.Client{Timeout: r.Timeout}
	for _, server := range r.Servers {
		resp, _, err := client.ExchangeContext(ctx, msg, server)
		if err != nil || resp == nil {
			continue
		}

		var ips []string
		for _, answer := range resp.Answer {
			if a, ok := answer.(*dns.A); ok {
				ips = append(ips, a.A.String())
			}
		}
		return ips
	}
	return nil
}
