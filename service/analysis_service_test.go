package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"threatlens/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubEnumerator struct {
	subs []string
	err  error
}

func (s *stubEnumerator) Enumerate(ctx context.Context, domain string) ([]string, error) {
	return s.subs, s.err
}

type stubResolver struct {
	ips []string
}

func (s *stubResolver) Resolve(ctx context.Context, hosts []string) []string {
	return s.ips
}

type stubScanner struct {
	ports map[string][]int
	err   error
}

func (s *stubScanner) ScanHosts(ctx context.Context, ips []string, ports []int) (map[string][]int, error) {
	return s.ports, s.err
}

type stubAnalyzer struct {
	alerts   []models.RiskAlert
	findings []models.SoftwareFinding
}

func (s *stubAnalyzer) AnalyzePorts(ctx context.Context, portsByIP map[string][]int) ([]models.RiskAlert, []models.SoftwareFinding) {
	return s.alerts, s.findings
}

// stubVulns optionally blocks until cancellation to exercise the
// background stage mid-flight.
type stubVulns struct {
	alerts      []models.SoftwareAlert
	blockCancel bool
	started     chan struct{}
}

func (s *stubVulns) ResolveVulnerabilities(ctx context.Context, findings []models.SoftwareFinding) []models.SoftwareAlert {
	if s.started != nil {
		close(s.started)
	}
	if s.blockCancel {
		<-ctx.Done()
		return nil
	}
	return s.alerts
}

type stubLeaks struct {
	result *models.LeakResult
	err    error
}

func (s *stubLeaks) CheckDomain(ctx context.Context, domain string) (*models.LeakResult, error) {
	return s.result, s.err
}

type stubSink struct {
	mu      sync.Mutex
	reports []*models.Report
}

func (s *stubSink) Upsert(ctx context.Context, report *models.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, report)
	return nil
}

func (s *stubSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.reports)
}

type fixture struct {
	enum  *stubEnumerator
	res   *stubResolver
	scan  *stubScanner
	anlz  *stubAnalyzer
	vulns *stubVulns
	leaks *stubLeaks
	sink  *stubSink
}

func newFixture() *fixture {
	return &fixture{
		enum: &stubEnumerator{subs: []string{"www.example.com", "mail.example.com"}},
		res:  &stubResolver{ips: []string{"10.0.0.1", "10.0.0.2"}},
		scan: &stubScanner{ports: map[string][]int{"10.0.0.1": {22, 80}}},
		anlz: &stubAnalyzer{
			alerts: []models.RiskAlert{
				{IP: "10.0.0.1", Port: 22, Message: "SSH accessible - remote brute-force risk (OpenSSH)"},
			},
			findings: []models.SoftwareFinding{
				{IP: "10.0.0.1", Port: 80, Banner: "nginx/1.18.0"},
			},
		},
		vulns: &stubVulns{},
		leaks: &stubLeaks{result: &models.LeakResult{NumEmails: 2, NumPasswords: 1}},
		sink:  &stubSink{},
	}
}

func (f *fixture) service() *AnalysisService {
	return NewAnalysisService(f.enum, f.res, f.scan, f.anlz, f.vulns, f.leaks, f.sink, 0)
}

// waitTerminal polls until the job leaves the background state and
// returns the terminal snapshot. The read also evicts the job.
func waitTerminal(t *testing.T, s *AnalysisService, jobID string) *JobSnapshot {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		snap, err := s.GetJobStatus(jobID)
		require.NoError(t, err)
		if snap.Status != models.JobStatusBackground {
			return snap
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("job never reached a terminal state")
	return nil
}

func TestSubmitAnalysis(t *testing.T) {
	t.Run("InvalidTarget", func(t *testing.T) {
		s := newFixture().service()
		_, err := s.SubmitAnalysis(context.Background(), "not a domain", false)
		assert.ErrorIs(t, err, ErrInvalidTarget)
	})

	t.Run("NoResolvedHosts", func(t *testing.T) {
		f := newFixture()
		f.res.ips = nil
		s := f.service()

		_, err := s.SubmitAnalysis(context.Background(), "example.com", false)
		assert.ErrorIs(t, err, ErrNoHosts)
	})

	t.Run("PortPhaseResult", func(t *testing.T) {
		f := newFixture()
		s := f.service()

		phase, err := s.SubmitAnalysis(context.Background(), "https://www.example.com/login", false)
		require.NoError(t, err)

		assert.Equal(t, "example.com", phase.Domain)
		assert.NotEmpty(t, phase.JobID)
		assert.Equal(t, 2, phase.NumSubdomains)
		assert.Equal(t, 2, phase.NumIPs)
		assert.Len(t, phase.PortAlerts, 1)
		assert.Greater(t, phase.PortScore, 0.0)
		assert.Less(t, phase.PortScore, 1.0)
	})

	t.Run("EnumerationFailureDegrades", func(t *testing.T) {
		f := newFixture()
		f.enum.subs = nil
		f.enum.err = errors.New("provider quota exceeded")
		s := f.service()

		phase, err := s.SubmitAnalysis(context.Background(), "example.com", false)
		require.NoError(t, err)
		assert.Equal(t, 0, phase.NumSubdomains)
	})

	t.Run("ScanFailureDegrades", func(t *testing.T) {
		f := newFixture()
		f.scan.ports = nil
		f.scan.err = errors.New("naabu not found")
		f.anlz.alerts = nil
		f.anlz.findings = nil
		s := f.service()

		phase, err := s.SubmitAnalysis(context.Background(), "example.com", false)
		require.NoError(t, err)
		assert.Empty(t, phase.OpenPorts)
		assert.Equal(t, 1.0, phase.PortScore)
	})
}

func TestBackgroundCompletion(t *testing.T) {
	t.Run("CompletesAndPersists", func(t *testing.T) {
		f := newFixture()
		f.vulns.alerts = []models.SoftwareAlert{
			{IP: "10.0.0.1", Port: 80, Software: "nginx/1.18.0", CVEID: "CVE-2021-23017", CVSS: fptr(7.7)},
		}
		s := f.service()

		phase, err := s.SubmitAnalysis(context.Background(), "example.com", true)
		require.NoError(t, err)

		snap := waitTerminal(t, s, phase.JobID)
		assert.Equal(t, models.JobStatusCompleted, snap.Status)
		require.NotNil(t, snap.Background)
		assert.Len(t, snap.Background.SoftwareAlerts, 1)
		assert.Less(t, snap.Background.SoftwareScore, 1.0)
		assert.Less(t, snap.Background.LeakScore, 1.0)
		assert.Less(t, snap.Background.FinalScore, 1.0)
		assert.Equal(t, 2, snap.Background.Leak.NumEmails)

		assert.Equal(t, 1, f.sink.count())
		report := f.sink.reports[0]
		assert.Equal(t, "example.com", report.Domain)
		assert.Equal(t, snap.Background.FinalScore, report.FinalScore)
	})

	t.Run("TerminalJobEvictedOnRead", func(t *testing.T) {
		f := newFixture()
		s := f.service()

		phase, err := s.SubmitAnalysis(context.Background(), "example.com", false)
		require.NoError(t, err)

		waitTerminal(t, s, phase.JobID)
		_, err = s.GetJobStatus(phase.JobID)
		assert.ErrorIs(t, err, ErrJobNotFound)
	})

	t.Run("LeakFailureDegrades", func(t *testing.T) {
		f := newFixture()
		f.leaks.result = nil
		f.leaks.err = errors.New("upstream 503")
		s := f.service()

		phase, err := s.SubmitAnalysis(context.Background(), "example.com", true)
		require.NoError(t, err)

		snap := waitTerminal(t, s, phase.JobID)
		assert.Equal(t, models.JobStatusCompleted, snap.Status)
		assert.Equal(t, 1.0, snap.Background.LeakScore)
	})

	t.Run("LeaksSkippedWhenNotRequested", func(t *testing.T) {
		f := newFixture()
		s := f.service()

		phase, err := s.SubmitAnalysis(context.Background(), "example.com", false)
		require.NoError(t, err)

		snap := waitTerminal(t, s, phase.JobID)
		assert.Equal(t, 1.0, snap.Background.LeakScore)
		assert.Equal(t, 0, snap.Background.Leak.NumEmails)
	})
}

func TestCancellation(t *testing.T) {
	t.Run("CancelMidBackgroundNeverPersists", func(t *testing.T) {
		f := newFixture()
		f.vulns.blockCancel = true
		f.vulns.started = make(chan struct{})
		s := f.service()

		phase, err := s.SubmitAnalysis(context.Background(), "example.com", false)
		require.NoError(t, err)

		<-f.vulns.started
		assert.True(t, s.CancelJob(phase.JobID))

		snap := waitTerminal(t, s, phase.JobID)
		assert.Equal(t, models.JobStatusCancelled, snap.Status)
		assert.Nil(t, snap.Background)
		assert.Equal(t, 0, f.sink.count())
	})

	t.Run("CancelUnknownJob", func(t *testing.T) {
		s := newFixture().service()
		assert.False(t, s.CancelJob("no-such-job"))
	})

	t.Run("CancelCurrentIdle", func(t *testing.T) {
		s := newFixture().service()
		assert.False(t, s.CancelCurrent())
	})

	t.Run("CancelCurrentJob", func(t *testing.T) {
		f := newFixture()
		f.vulns.blockCancel = true
		f.vulns.started = make(chan struct{})
		s := f.service()

		phase, err := s.SubmitAnalysis(context.Background(), "example.com", false)
		require.NoError(t, err)

		<-f.vulns.started
		assert.True(t, s.CancelCurrent())

		snap := waitTerminal(t, s, phase.JobID)
		assert.Equal(t, models.JobStatusCancelled, snap.Status)
		assert.Equal(t, 0, f.sink.count())
	})
}

func fptr(v float64) *float64 { return &v }
