package utils

import (
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// ExtractDomain normalizes an analysis target (email address, URL,
// hostname or subdomain) down to its registrable domain (eTLD+1).
// Returns "" when no valid domain can be derived.
func ExtractDomain(target string) string {
	t := strings.ToLower(strings.TrimSpace(target))
	if t == "" {
		return ""
	}

	// email: keep only the part after @
	if i := strings.Index(t, "@"); i >= 0 {
		t = t[i+1:]
	}

	// URL: keep only the host
	if strings.Contains(t, "://") {
		u, err := url.Parse(t)
		if err != nil || u.Host == "" {
			return ""
		}
		t = u.Host
	} else if i := strings.Index(t, "/"); i >= 0 {
		t = t[:i]
	}

	if host, _, err := net.SplitHostPort(t); err == nil {
		t = host
	}
	if t == "" || net.ParseIP(t) != nil {
		return ""
	}

	// require a real ICANN suffix, matching tldextract semantics
	if _, icann := publicsuffix.PublicSuffix(t); !icann {
		return ""
	}

	domain, err := publicsuffix.EffectiveTLDPlusOne(t)
	if err != nil {
		return ""
	}
	return domain
}
