package intelligence

import (
	"regexp"
	"strings"
)

// Banner parsing is deliberately heuristic: services self-describe in
// free text, so we look for well-known product tokens and version
// patterns and fall back to a bounded opaque fingerprint.

const maxBannerLen = 60

var (
	esmtpRe = regexp.MustCompile(`(?i)ESMTP\s+([\w\-\./]+)`)
	mysqlRe = regexp.MustCompile(`([Mm]\s*\d+\.\d+(?:\.\d+)?(?:-\S+)?)`)

	// softwareRe extracts name/version pairs like "nginx/1.18.0" or
	// "OpenSSH/8.2p1" from a banner or Server header.
	softwareRe = regexp.MustCompile(`(\w[\w\-\.]*?/\d+\.\d+(?:\.\d+)?)`)
)

// ParseBanner reduces a raw service banner to a short software identifier.
// Returns "" when the banner is empty after trimming.
func ParseBanner(port int, banner string) string {
	banner = strings.TrimSpace(banner)
	if banner == "" {
		return ""
	}
	lower := strings.ToLower(banner)

	switch {
	case port == 21:
		switch {
		case strings.Contains(lower, "pure-ftpd"):
			return "Pure-FTPd"
		case strings.Contains(lower, "proftpd"):
			return "ProFTPD"
		case strings.Contains(lower, "vsftpd"):
			return "vsFTPd"
		}
	case port == 22 && strings.HasPrefix(banner, "SSH-"):
		// full identification line carries the version
		return truncate(banner)
	case port == 25 || port == 465 || port == 587:
		if m := esmtpRe.FindStringSubmatch(banner); m != nil {
			return "ESMTP " + m[1]
		}
	case port == 3306 && strings.Contains(banner, "mysql_native_password"):
		if m := mysqlRe.FindStringSubmatch(banner); m != nil {
			return m[1]
		}
		return truncate(banner)
	}

	return truncate(banner)
}

// ExtractSoftware pulls all name/version candidates out of a banner.
// A banner may yield zero or several candidates.
func ExtractSoftware(banner string) []string {
	return softwareRe.FindAllString(banner, -1)
}

func truncate(s string) string {
	if len(s) > maxBannerLen {
		return s[:maxBannerLen]
	}
	return s
}
