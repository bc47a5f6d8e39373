package service

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"threatlens/intelligence"
	"threatlens/models"
	"threatlens/utils"

	"github.com/google/uuid"
)

var (
	ErrInvalidTarget = errors.New("target is not a valid domain, email or URL")
	ErrNoHosts       = errors.New("no IP addresses resolved for domain")
	ErrJobNotFound   = errors.New("job not found")
	ErrCancelled     = errors.New("analysis cancelled")
)

// Collaborator interfaces, declared on the consumer side so tests can
// stub each stage of the pipeline.

type SubdomainEnumerator interface {
	Enumerate(ctx context.Context, domain string) ([]string, error)
}

type HostResolver interface {
	Resolve(ctx context.Context, hosts []string) []string
}

type PortScanner interface {
	ScanHosts(ctx context.Context, ips []string, ports []int) (map[string][]int, error)
}

type PortAnalyzer interface {
	AnalyzePorts(ctx context.Context, portsByIP map[string][]int) ([]models.RiskAlert, []models.SoftwareFinding)
}

type VulnResolver interface {
	ResolveVulnerabilities(ctx context.Context, findings []models.SoftwareFinding) []models.SoftwareAlert
}

type LeakChecker interface {
	CheckDomain(ctx context.Context, domain string) (*models.LeakResult, error)
}

type ResultSink interface {
	Upsert(ctx context.Context, report *models.Report) error
}

// jobEntry is the registry record for one analysis. The orchestrator is
// the only writer of status transitions; the background task is the only
// writer of the background result.
type jobEntry struct {
	status     models.JobStatus
	phase      *models.PortPhaseResult
	background *models.BackgroundResult
	cancel     context.CancelFunc
}

// JobSnapshot is what the status endpoint sees. Background is nil while
// the continuation is still running.
type JobSnapshot struct {
	JobID      string                   `json:"job_id"`
	Status     models.JobStatus         `json:"status"`
	Phase      *models.PortPhaseResult  `json:"phase"`
	Background *models.BackgroundResult `json:"background,omitempty"`
}

// AnalysisService orchestrates the full assessment: discovery, port
// analysis (synchronous) and CVE/leak resolution (background), with
// cooperative cancellation throughout.
type AnalysisService struct {
	enumerator  SubdomainEnumerator
	resolver    HostResolver
	portScanner PortScanner
	analyzer    PortAnalyzer
	vulns       VulnResolver
	leaks       LeakChecker
	sink        ResultSink
	adjustK     float64

	mu                sync.Mutex
	jobs              map[string]*jobEntry
	currentJobID      string
	currentPortCancel context.CancelFunc
}

func NewAnalysisService(
	enumerator SubdomainEnumerator,
	resolver HostResolver,
	portScanner PortScanner,
	analyzer PortAnalyzer,
	vulns VulnResolver,
	leaks LeakChecker,
	sink ResultSink,
	adjustK float64,
) *AnalysisService {
	if adjustK <= 0 {
		adjustK = intelligence.DefaultAdjustK
	}
	return &AnalysisService{
		enumerator:  enumerator,
		resolver:    resolver,
		portScanner: portScanner,
		analyzer:    analyzer,
		vulns:       vulns,
		leaks:       leaks,
		sink:        sink,
		adjustK:     adjustK,
		jobs:        make(map[string]*jobEntry),
	}
}

// SubmitAnalysis runs the synchronous port phase and returns its result
// together with a job id. CVE resolution and leak lookup continue in the
// background; poll GetJobStatus for the rest. An unresolvable target is
// a terminal failure and creates no job.
func (s *AnalysisService) SubmitAnalysis(ctx context.Context, target string, includeLeaks bool) (*models.PortPhaseResult, error) {
	domain := utils.ExtractDomain(target)
	if domain == "" {
		return nil, ErrInvalidTarget
	}

	portCtx, portCancel := context.WithCancel(ctx)
	defer portCancel()

	s.mu.Lock()
	s.currentPortCancel = portCancel
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.currentPortCancel = nil
		s.mu.Unlock()
	}()

	subdomains, err := s.enumerator.Enumerate(portCtx, domain)
	if err != nil {
		// partial enumeration still feeds resolution
		log.Printf("[Analysis] subdomain enumeration degraded for %s: %v", domain, err)
	}

	hosts := append([]string{domain}, subdomains...)
	ips := s.resolver.Resolve(portCtx, hosts)
	if err := portCtx.Err(); err != nil {
		return nil, ErrCancelled
	}
	if len(ips) == 0 {
		return nil, ErrNoHosts
	}

	openPorts, err := s.portScanner.ScanHosts(portCtx, ips, nil)
	if err != nil {
		log.Printf("[Analysis] port scan degraded for %s: %v", domain, err)
		openPorts = map[string][]int{}
	}

	alerts, findings := s.analyzer.AnalyzePorts(portCtx, openPorts)
	if err := portCtx.Err(); err != nil {
		return nil, ErrCancelled
	}

	portScore := intelligence.CalcPortScoreK(alerts, len(ips), s.adjustK)

	phase := &models.PortPhaseResult{
		JobID:         uuid.New().String(),
		Domain:        domain,
		OpenPorts:     openPorts,
		PortAlerts:    alerts,
		PortScore:     portScore,
		NumSubdomains: len(subdomains),
		NumIPs:        len(ips),
	}

	// The continuation outlives the request, so it gets its own
	// cancellable context rather than inheriting the caller's.
	bgCtx, bgCancel := context.WithCancel(context.Background())

	s.mu.Lock()
	s.jobs[phase.JobID] = &jobEntry{
		status: models.JobStatusBackground,
		phase:  phase,
		cancel: bgCancel,
	}
	s.currentJobID = phase.JobID
	s.mu.Unlock()

	go s.runBackground(bgCtx, phase, findings, includeLeaks)

	return phase, nil
}

// runBackground resolves CVEs and leak intelligence concurrently, scores
// the job and persists the completed report. Cancellation discards the
// partial result and never persists.
func (s *AnalysisService) runBackground(ctx context.Context, phase *models.PortPhaseResult, findings []models.SoftwareFinding, includeLeaks bool) {
	var (
		wg             sync.WaitGroup
		softwareAlerts []models.SoftwareAlert
		leak           = &models.LeakResult{}
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		softwareAlerts = s.vulns.ResolveVulnerabilities(ctx, findings)
	}()

	if includeLeaks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := s.leaks.CheckDomain(ctx, phase.Domain)
			if err != nil {
				// degraded: zero-signal leak score, job still completes
				log.Printf("[Analysis] leak lookup failed for %s: %v", phase.Domain, err)
				return
			}
			leak = result
		}()
	}
	wg.Wait()

	if ctx.Err() != nil {
		s.markCancelled(phase.JobID)
		return
	}

	softwareScore := intelligence.CalcSoftwareScoreK(softwareAlerts, s.adjustK)
	leakScore := intelligence.CalcLeakScoreK(leak.NumEmails, leak.NumPasswords, leak.NumHashes, s.adjustK)
	finalScore := intelligence.CalcFinalScore(phase.PortScore, softwareScore, leakScore)

	background := &models.BackgroundResult{
		SoftwareAlerts: softwareAlerts,
		SoftwareScore:  softwareScore,
		LeakScore:      leakScore,
		FinalScore:     finalScore,
		Leak:           *leak,
	}

	report := &models.Report{
		Domain:         phase.Domain,
		NumSubdomains:  phase.NumSubdomains,
		NumIPs:         phase.NumIPs,
		PortAlerts:     phase.PortAlerts,
		SoftwareAlerts: softwareAlerts,
		PortScore:      phase.PortScore,
		SoftwareScore:  softwareScore,
		LeakScore:      leakScore,
		FinalScore:     finalScore,
		NumEmails:      leak.NumEmails,
		NumPasswords:   leak.NumPasswords,
		NumHashes:      leak.NumHashes,
		LeakedData:     leak.Records,
		Timestamp:      time.Now().UTC(),
	}

	if ctx.Err() != nil {
		s.markCancelled(phase.JobID)
		return
	}
	if err := s.sink.Upsert(ctx, report); err != nil {
		log.Printf("[Analysis] failed to persist report for %s: %v", phase.Domain, err)
	}

	s.mu.Lock()
	if entry, ok := s.jobs[phase.JobID]; ok && entry.status == models.JobStatusBackground {
		entry.background = background
		entry.status = models.JobStatusCompleted
	}
	s.mu.Unlock()
}

func (s *AnalysisService) markCancelled(jobID string) {
	s.mu.Lock()
	if entry, ok := s.jobs[jobID]; ok && entry.status == models.JobStatusBackground {
		entry.status = models.JobStatusCancelled
	}
	s.mu.Unlock()
}

// GetJobStatus returns the job's current snapshot. Terminal jobs
// (completed, cancelled, failed) are evicted on read: the durable copy
// lives in the result sink.
func (s *AnalysisService) GetJobStatus(jobID string) (*JobSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.jobs[jobID]
	if !ok {
		return nil, ErrJobNotFound
	}

	snapshot := &JobSnapshot{
		JobID:      jobID,
		Status:     entry.status,
		Phase:      entry.phase,
		Background: entry.background,
	}

	switch entry.status {
	case models.JobStatusCompleted, models.JobStatusCancelled, models.JobStatusFailed:
		delete(s.jobs, jobID)
		if s.currentJobID == jobID {
			s.currentJobID = ""
		}
	}
	return snapshot, nil
}

// CancelJob cancels the job's background task if still running. Returns
// false when the job id is unknown.
func (s *AnalysisService) CancelJob(jobID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelLocked(jobID)
}

func (s *AnalysisService) cancelLocked(jobID string) bool {
	entry, ok := s.jobs[jobID]
	if !ok {
		return false
	}
	if entry.cancel != nil {
		entry.cancel()
	}
	if entry.status == models.JobStatusBackground {
		entry.status = models.JobStatusCancelled
	}
	return true
}

// CancelCurrent aborts the most recently submitted analysis: the
// in-flight port phase, if any, and the current job's background task.
func (s *AnalysisService) CancelCurrent() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	cancelled := false
	if s.currentPortCancel != nil {
		s.currentPortCancel()
		s.currentPortCancel = nil
		cancelled = true
	}
	if s.currentJobID != "" {
		if s.cancelLocked(s.currentJobID) {
			cancelled = true
		}
		s.currentJobID = ""
	}
	return cancelled
}
