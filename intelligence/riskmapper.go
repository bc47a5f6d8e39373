package intelligence

import (
	"context"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"threatlens/models"

	"github.com/PuerkitoBio/goquery"
	"github.com/gosnmp/gosnmp"
	"github.com/spaolacci/murmur3"
	"golang.org/x/sync/semaphore"
)

const (
	oidSysDescr    = ".1.3.6.1.2.1.1.1.0"
	maxBannerRead  = 1024
	maxFaviconRead = 512 * 1024
)

// RiskMapperConfig bounds the analyzer's network usage.
type RiskMapperConfig struct {
	IPConcurrency   int           // concurrent hosts
	ConnConcurrency int           // concurrent sockets
	HostTimeout     time.Duration // wall-clock budget per host
	ProbeTimeout    time.Duration // budget per socket operation
}

// DefaultRiskMapperConfig returns the production bounds.
func DefaultRiskMapperConfig() RiskMapperConfig {
	return RiskMapperConfig{
		IPConcurrency:   20,
		ConnConcurrency: 50,
		HostTimeout:     30 * time.Second,
		ProbeTimeout:    10 * time.Second,
	}
}

type dialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// RiskMapper probes open ports for service-level risk. Hosts run in
// parallel under the IP semaphore, ports within a host fan out and join,
// and every socket passes through the connection semaphore. Probe
// failures are swallowed: the analyzer always returns, possibly with
// empty results.
type RiskMapper struct {
	ipSem        *semaphore.Weighted
	connSem      *semaphore.Weighted
	hostTimeout  time.Duration
	probeTimeout time.Duration

	dial       dialFunc
	httpClient *http.Client
	snmpGet    func(host string, timeout time.Duration) bool
}

func NewRiskMapper(cfg RiskMapperConfig) *RiskMapper {
	if cfg.IPConcurrency <= 0 {
		cfg.IPConcurrency = 20
	}
	if cfg.ConnConcurrency <= 0 {
		cfg.ConnConcurrency = 50
	}
	if cfg.HostTimeout <= 0 {
		cfg.HostTimeout = 30 * time.Second
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 10 * time.Second
	}

	dialer := &net.Dialer{Timeout: cfg.ProbeTimeout}
	return &RiskMapper{
		ipSem:        semaphore.NewWeighted(int64(cfg.IPConcurrency)),
		connSem:      semaphore.NewWeighted(int64(cfg.ConnConcurrency)),
		hostTimeout:  cfg.HostTimeout,
		probeTimeout: cfg.ProbeTimeout,
		dial:         dialer.DialContext,
		httpClient:   &http.Client{Timeout: cfg.ProbeTimeout},
		snmpGet:      snmpGetSysDescr,
	}
}

// hostReport accumulates one host's results so a timed-out host can be
// discarded wholesale without leaking partial alerts.
type hostReport struct {
	mu       sync.Mutex
	alerts   []models.RiskAlert
	findings []models.SoftwareFinding
}

func (r *hostReport) alert(ip string, port int, message string) {
	r.mu.Lock()
	r.alerts = append(r.alerts, models.RiskAlert{IP: ip, Port: port, Message: message})
	r.mu.Unlock()
}

func (r *hostReport) finding(ip string, port int, banner string) {
	r.mu.Lock()
	r.findings = append(r.findings, models.SoftwareFinding{IP: ip, Port: port, Banner: banner})
	r.mu.Unlock()
}

// AnalyzePorts runs the per-port policy checks for every host. Alert
// ordering across hosts and ports is unspecified; callers treat the
// result as an unordered set.
func (m *RiskMapper) AnalyzePorts(ctx context.Context, portsByIP map[string][]int) ([]models.RiskAlert, []models.SoftwareFinding) {
	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		alerts   []models.RiskAlert
		findings []models.SoftwareFinding
	)

	for ip, ports := range portsByIP {
		wg.Add(1)
		go func(ip string, ports []int) {
			defer wg.Done()

			if err := m.ipSem.Acquire(ctx, 1); err != nil {
				return
			}
			defer m.ipSem.Release(1)

			rep := m.analyzeHost(ctx, ip, ports)
			if rep == nil {
				return
			}
			mu.Lock()
			alerts = append(alerts, rep.alerts...)
			findings = append(findings, rep.findings...)
			mu.Unlock()
		}(ip, ports)
	}
	wg.Wait()

	return alerts, findings
}

// analyzeHost fans out one goroutine per open port and joins them under
// the host timeout. A timed-out host yields nil so siblings continue
// unaffected.
func (m *RiskMapper) analyzeHost(ctx context.Context, ip string, ports []int) *hostReport {
	hostCtx, cancel := context.WithTimeout(ctx, m.hostTimeout)
	defer cancel()

	open := make(map[int]bool, len(ports))
	for _, p := range ports {
		open[p] = true
	}

	rep := &hostReport{}
	done := make(chan struct{})
	go func() {
		defer close(done)
		var wg sync.WaitGroup
		for _, port := range ports {
			wg.Add(1)
			go func(port int) {
				defer wg.Done()
				m.checkPort(hostCtx, ip, port, open, rep)
			}(port)
		}
		wg.Wait()
	}()

	select {
	case <-done:
		return rep
	case <-hostCtx.Done():
		if ctx.Err() == nil {
			log.Printf("[RiskMapper] analysis of %s exceeded %s, discarded", ip, m.hostTimeout)
		}
		return nil
	}
}

// checkPort applies the per-port policy table.
func (m *RiskMapper) checkPort(ctx context.Context, ip string, port int, open map[int]bool, rep *hostReport) {
	switch port {
	case 21:
		rep.alert(ip, port, "FTP open - company files may be exposed")
		m.grabBanner(ctx, ip, port, rep, "ftp")

	case 22:
		if ok, banner := m.grabBanner(ctx, ip, port, rep, "ssh"); ok {
			rep.alert(ip, port, fmt.Sprintf("SSH accessible - remote brute-force risk (%s)", banner))
		}

	case 23:
		rep.alert(ip, port, "Telnet enabled - unencrypted communication")

	case 25, 465, 587:
		if exposed, software := m.checkSMTP(ctx, ip, port, rep); exposed {
			msg := "SMTP open - responds without initial authentication"
			if software != "" {
				msg += " (" + software + ")"
			}
			rep.alert(ip, port, msg)
		}

	case 80:
		if !open[443] {
			rep.alert(ip, port, "HTTP without HTTPS - traffic can be intercepted")
		} else if m.checkHTTPNoRedirect(ctx, ip) {
			rep.alert(ip, port, "HTTP exposed without redirect - returns 200 OK")
		}
		m.webFingerprint(ctx, ip, "http", rep)

	case 110:
		if ok, banner := m.grabBanner(ctx, ip, port, rep, "pop3"); ok {
			rep.alert(ip, port, fmt.Sprintf("POP3 without TLS - interception risk (version: %s)", banner))
		}

	case 143:
		if ok, banner := m.grabBanner(ctx, ip, port, rep, "imap"); ok {
			rep.alert(ip, port, fmt.Sprintf("IMAP without TLS - interception risk (version: %s)", banner))
		}

	case 161:
		if m.snmpGet(ip, m.probeTimeout) {
			rep.alert(ip, port, "SNMP with 'public' community enabled - unauthenticated access to network configuration")
		} else {
			rep.alert(ip, port, "SNMP exposed - no access with 'public' community")
		}

	case 443:
		m.webFingerprint(ctx, ip, "https", rep)

	case 445:
		rep.alert(ip, port, "SMB enabled - ransomware and file exposure risk")

	case 500:
		rep.alert(ip, port, "IPsec/IKE detected on port 500 - possible VPN exposure")

	case 1433:
		if ok, banner := m.grabBanner(ctx, ip, port, rep, "microsoft", "sql"); ok {
			rep.alert(ip, port, fmt.Sprintf("Microsoft SQL Server accessible (%s)", banner))
		}

	case 1521:
		if ok, banner := m.grabBanner(ctx, ip, port, rep, "oracle", "tns"); ok {
			rep.alert(ip, port, fmt.Sprintf("Oracle DB accessible (version: %s)", banner))
		}

	case 1723:
		rep.alert(ip, port, "PPTP VPN enabled - obsolete insecure protocol")

	case 3306:
		if ok, _ := m.grabBanner(ctx, ip, port, rep, "mysql"); ok {
			rep.alert(ip, port, "MySQL database publicly accessible")
		}

	case 3389:
		rep.alert(ip, port, "RDP exposed - high risk of remote desktop intrusion")

	case 4500:
		rep.alert(ip, port, "IPsec NAT-T detected on port 4500 - possible VPN exposure")

	case 5432:
		if ok, banner := m.grabBanner(ctx, ip, port, rep, "postgres"); ok {
			rep.alert(ip, port, fmt.Sprintf("PostgreSQL exposed (%s)", banner))
		}
	}
}

// grabBanner reads the service greeting and checks it against the given
// keywords (any match counts). Non-empty banners are always recorded as
// findings, matched or not, so the resolver can still attempt a lookup.
func (m *RiskMapper) grabBanner(ctx context.Context, ip string, port int, rep *hostReport, keywords ...string) (bool, string) {
	raw, err := m.readBanner(ctx, ip, port)
	if err != nil || raw == "" {
		return false, ""
	}

	parsed := ParseBanner(port, raw)
	if parsed != "" {
		rep.finding(ip, port, parsed)
	}

	lower := strings.ToLower(raw)
	for _, kw := range keywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return true, parsed
		}
	}
	return false, ""
}

// readBanner opens a TCP connection and reads the first bytes the
// service sends. Errors collapse to an empty result.
func (m *RiskMapper) readBanner(ctx context.Context, ip string, port int) (string, error) {
	if err := m.connSem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer m.connSem.Release(1)

	conn, err := m.dial(ctx, "tcp", fmt.Sprintf("%s:%d", ip, port))
	if err != nil {
		return "", err
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(m.probeTimeout))
	buf := make([]byte, maxBannerRead)
	n, err := conn.Read(buf)
	if n == 0 {
		return "", err
	}
	return strings.TrimSpace(string(buf[:n])), nil
}

// checkSMTP looks for a 220 greeting before any authentication exchange.
func (m *RiskMapper) checkSMTP(ctx context.Context, ip string, port int, rep *hostReport) (bool, string) {
	raw, err := m.readBanner(ctx, ip, port)
	if err != nil || raw == "" {
		return false, ""
	}
	if !strings.Contains(raw, "220") {
		return false, ""
	}
	software := ParseBanner(port, raw)
	if software != "" {
		rep.finding(ip, port, software)
	}
	return true, software
}

// checkHTTPNoRedirect issues a raw GET on port 80 and reports whether the
// server answers 200 OK directly instead of redirecting to HTTPS.
func (m *RiskMapper) checkHTTPNoRedirect(ctx context.Context, ip string) bool {
	if err := m.connSem.Acquire(ctx, 1); err != nil {
		return false
	}
	defer m.connSem.Release(1)

	conn, err := m.dial(ctx, "tcp", ip+":80")
	if err != nil {
		return false
	}
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(m.probeTimeout))
	request := fmt.Sprintf("GET / HTTP/1.1\r\nHost: %s\r\nConnection: close\r\n\r\n", ip)
	if _, err := conn.Write([]byte(request)); err != nil {
		return false
	}

	buf := make([]byte, maxBannerRead)
	n, _ := conn.Read(buf)
	return strings.Contains(string(buf[:n]), "HTTP/1.1 200 OK")
}

// webFingerprint captures web server identity: the Server header, the
// page title and the favicon murmur3 hash. Titles and favicon hashes are
// recorded as opaque fingerprints.
func (m *RiskMapper) webFingerprint(ctx context.Context, ip, scheme string, rep *hostReport) {
	port := 80
	if scheme == "https" {
		port = 443
	}
	base := fmt.Sprintf("%s://%s", scheme, ip)

	if server := m.fetchServerHeader(ctx, base); server != "" {
		rep.finding(ip, port, server)
	}
	if title := m.fetchPageTitle(ctx, base); title != "" {
		rep.finding(ip, port, "title: "+title)
	}
	if hash, ok := m.fetchFaviconHash(ctx, base); ok {
		rep.finding(ip, port, fmt.Sprintf("favicon-mmh3: %d", hash))
	}
}

func (m *RiskMapper) fetchServerHeader(ctx context.Context, base string) string {
	if err := m.connSem.Acquire(ctx, 1); err != nil {
		return ""
	}
	defer m.connSem.Release(1)

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, base, nil)
	if err != nil {
		return ""
	}
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return ""
	}
	defer resp.Body.Close()
	return strings.TrimSpace(resp.Header.Get("Server"))
}

func (m *RiskMapper) fetchPageTitle(ctx context.Context, base string) string {
	if err := m.connSem.Acquire(ctx, 1); err != nil {
		return ""
	}
	defer m.connSem.Release(1)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base, nil)
	if err != nil {
		return ""
	}
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return ""
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxFaviconRead))
	if err != nil {
		return ""
	}
	return truncate(strings.TrimSpace(doc.Find("title").First().Text()))
}

func (m *RiskMapper) fetchFaviconHash(ctx context.Context, base string) (uint32, bool) {
	if err := m.connSem.Acquire(ctx, 1); err != nil {
		return 0, false
	}
	defer m.connSem.Release(1)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/favicon.ico", nil)
	if err != nil {
		return 0, false
	}
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return 0, false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, false
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFaviconRead))
	if err != nil || len(data) == 0 {
		return 0, false
	}
	return murmur3.Sum32(data), true
}

// snmpGetSysDescr attempts an unauthenticated sysDescr read with the
// public community string.
func snmpGetSysDescr(host string, timeout time.Duration) bool {
	client := &gosnmp.GoSNMP{
		Target:    host,
		Port:      161,
		Community: "public",
		Version:   gosnmp.Version2c,
		Timeout:   timeout,
		Retries:   1,
	}
	if err := client.Connect(); err != nil {
		return false
	}
	defer client.Conn.Close()

	result, err := client.Get([]string{oidSysDescr})
	if err != nil || result == nil || len(result.Variables) == 0 {
		return false
	}
	return result.Variables[0].Value != nil
}
