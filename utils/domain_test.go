package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractDomain(t *testing.T) {
	cases := []struct {
		name   string
		target string
		want   string
	}{
		{"BareDomain", "example.com", "example.com"},
		{"Subdomain", "mail.corp.example.com", "example.com"},
		{"Email", "alice@example.com", "example.com"},
		{"URL", "https://www.example.com/login?next=/", "example.com"},
		{"URLWithPort", "https://www.example.com:8443/admin", "example.com"},
		{"HostWithPort", "example.com:443", "example.com"},
		{"PathWithoutScheme", "example.com/robots.txt", "example.com"},
		{"UpperCase", "WWW.EXAMPLE.COM", "example.com"},
		{"Whitespace", "  example.com  ", "example.com"},
		{"CountryCodeTLD", "shop.example.co.uk", "example.co.uk"},
		{"Empty", "", ""},
		{"IPv4", "192.168.1.10", ""},
		{"IPv4WithPort", "192.168.1.10:8080", ""},
		{"NoValidSuffix", "localhost", ""},
		{"InvalidSuffix", "server.internal", ""},
		{"BareTLD", "com", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ExtractDomain(tc.target))
		})
	}
}
