package orchestration

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/reconflow/reconflow/internal/domain/asset"
	"github.com/reconflow/reconflow/internal/domain/events"
	"github.com/reconflow/reconflow/internal/domain/scanning"
	"github.com/reconflow/reconflow/internal/infra/procregistry"
	"github.com/reconflow/reconflow/internal/infra/provider"
	"github.com/reconflow/reconflow/internal/infra/ratelimit"
	"github.com/reconflow/reconflow/pkg/common"
	"github.com/reconflow/reconflow/pkg/common/logger"
)

// Config holds the orchestrator's tunables.
type Config struct {
	// PhaseTimeout bounds each phase's fan-out.
	PhaseTimeout time.Duration

	// RateLimit and RatePeriod parameterize the shared fixed-window limiter
	// gating tool invocations per target.
	RateLimit  int64
	RatePeriod time.Duration

	// PaceRPS and PaceBurst smooth how fast this node launches tools,
	// independent of the shared window.
	PaceRPS   float64
	PaceBurst int

	// SubdomainTools are the enumeration providers of phase one. A quick scan
	// uses only the first.
	SubdomainTools []string
}

func (c Config) withDefaults() Config {
	if c.PhaseTimeout <= 0 {
		c.PhaseTimeout = 15 * time.Minute
	}
	if c.RateLimit <= 0 {
		c.RateLimit = 10
	}
	if c.RatePeriod <= 0 {
		c.RatePeriod = time.Minute
	}
	if c.PaceRPS <= 0 {
		c.PaceRPS = 5
	}
	if c.PaceBurst <= 0 {
		c.PaceBurst = 10
	}
	if len(c.SubdomainTools) == 0 {
		c.SubdomainTools = []string{"subfinder", "assetfinder", "findomain"}
	}
	return c
}

// activeScan pairs a session with the cancel function of its pipeline context.
type activeScan struct {
	session *scanning.Session
	quick   bool
	cancel  context.CancelFunc
}

// Orchestrator sequences the reconnaissance phases of every active scan. It is
// the only component that mutates sessions, maps provider stream events to
// persistence calls and guarantees each scan ends with exactly one terminating
// status event.
type Orchestrator struct {
	cfg       Config
	repo      asset.Repository
	registry  *procregistry.Registry
	limiter   *ratelimit.Limiter
	pacer     *common.RateLimiter
	tools     provider.ToolConfig
	broadcast scanning.Broadcaster
	publisher events.DomainEventPublisher
	logger    *logger.Logger

	mu     sync.Mutex
	active map[uuid.UUID]*activeScan
	wg     sync.WaitGroup
}

// NewOrchestrator wires an orchestrator from its collaborators. broadcast may
// be nil when no dashboard is attached; publisher may be nil in single-node
// deployments without a bus.
func NewOrchestrator(
	cfg Config,
	repo asset.Repository,
	registry *procregistry.Registry,
	limiter *ratelimit.Limiter,
	tools provider.ToolConfig,
	broadcast scanning.Broadcaster,
	publisher events.DomainEventPublisher,
	log *logger.Logger,
) *Orchestrator {
	cfg = cfg.withDefaults()
	if broadcast == nil {
		broadcast = scanning.NopBroadcaster
	}
	return &Orchestrator{
		cfg:       cfg,
		repo:      repo,
		registry:  registry,
		limiter:   limiter,
		pacer:     common.NewRateLimiter(cfg.PaceRPS, cfg.PaceBurst),
		tools:     tools,
		broadcast: broadcast,
		publisher: publisher,
		logger:    log.With("component", "orchestrator"),
		active:    make(map[uuid.UUID]*activeScan),
	}
}

// StartScan begins a pipeline run against targetDomain and returns its scan id.
// The pipeline executes in the background; progress surfaces through the
// broadcast sink and, when a publisher is wired, as domain events.
func (o *Orchestrator) StartScan(ctx context.Context, targetDomain string, quick bool) (uuid.UUID, error) {
	if targetDomain == "" {
		return uuid.Nil, errors.New("target domain is required")
	}

	scanID := uuid.New()
	session := scanning.NewSession(scanID, targetDomain)
	o.registry.RegisterScan(scanID)

	// The pipeline outlives the request that started it.
	scanCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	scan := &activeScan{session: session, quick: quick, cancel: cancel}

	o.mu.Lock()
	o.active[scanID] = scan
	o.mu.Unlock()

	o.logger.Info(ctx, "scan started",
		"scan_id", scanID.String(),
		"target_domain", targetDomain,
		"quick", quick,
	)

	o.wg.Add(1)
	go o.runPipeline(scanCtx, scan)

	return scanID, nil
}

// CancelScan terminates every live subprocess of the scan, stops further phase
// transitions and returns whether a live scan matched.
func (o *Orchestrator) CancelScan(ctx context.Context, scanID uuid.UUID) bool {
	o.mu.Lock()
	scan, ok := o.active[scanID]
	o.mu.Unlock()

	existed := o.registry.Cancel(ctx, scanID)
	if !ok {
		return existed
	}

	scan.cancel()
	o.logger.Info(ctx, "scan cancel requested", "scan_id", scanID.String())
	return true
}

// ActiveScans returns the ids of scans still running.
func (o *Orchestrator) ActiveScans() []uuid.UUID {
	o.mu.Lock()
	defer o.mu.Unlock()
	ids := make([]uuid.UUID, 0, len(o.active))
	for id := range o.active {
		ids = append(ids, id)
	}
	return ids
}

// Wait blocks until every active pipeline has finished. Used on shutdown.
func (o *Orchestrator) Wait() { o.wg.Wait() }

// runPipeline drives the phase state machine for one scan. Phase errors abort
// only their phase and surface as status events; only cancellation stops the
// progression early.
func (o *Orchestrator) runPipeline(ctx context.Context, scan *activeScan) {
	session := scan.session
	scanID := session.ScanID()

	lc := logger.NewLoggerContext(o.logger)
	lc.Add("scan_id", scanID.String(), "target_domain", session.TargetDomain(), "quick", scan.quick)

	defer o.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			o.finishFailed(ctx, scan, fmt.Sprintf("panic: %v", r))
		}
		o.registry.RemoveScan(scanID)
		o.mu.Lock()
		delete(o.active, scanID)
		o.mu.Unlock()
	}()

	o.emitStatus(ctx, session, "scan started")

	// The target itself is a host worth probing; seed it before enumeration.
	if _, err := o.repo.AddSubdomain(ctx, session.TargetDomain(), session.TargetDomain(), "root"); err != nil {
		o.logger.Error(ctx, "failed to seed root subdomain", "scan_id", scanID.String(), "error", err)
	}

	steps := []struct {
		phase scanning.ScanPhase
		run   func(context.Context, *activeScan) error
		skip  bool
	}{
		{phase: scanning.PhaseSubdomainEnum, run: o.subdomainPhase},
		{phase: scanning.PhaseHostDiscovery, run: o.hostDiscoveryPhase},
		{phase: scanning.PhaseCrawling, run: o.crawlPhase, skip: scan.quick},
		{phase: scanning.PhaseVulnScan, run: o.vulnScanPhase},
	}

	for _, step := range steps {
		if ctx.Err() != nil {
			o.finishCancelled(ctx, scan)
			return
		}
		if step.skip {
			continue
		}

		if session.Phase() != step.phase {
			if err := session.AdvancePhase(step.phase); err != nil {
				o.finishFailed(ctx, scan, err.Error())
				return
			}
		}
		o.emitStatus(ctx, session, fmt.Sprintf("phase started: %s", step.phase))

		err := step.run(ctx, scan)
		switch {
		case ctx.Err() != nil:
			o.finishCancelled(ctx, scan)
			return
		case errors.Is(err, ErrBatchTimeout):
			// The next phase still runs against whatever the repository
			// already durably holds.
			lc.Warn(ctx, "phase timed out", "phase", string(step.phase))
			o.emitStatus(ctx, session, fmt.Sprintf("phase timed out: %s", step.phase))
		case err != nil:
			lc.Warn(ctx, "phase failed", "phase", string(step.phase), "error", err)
			o.emitStatus(ctx, session, fmt.Sprintf("phase failed: %s: %v", step.phase, err))
		default:
			lc.Info(ctx, "phase finished", "phase", string(step.phase))
			o.emitStatus(ctx, session, fmt.Sprintf("phase finished: %s", step.phase))
		}
	}

	if ctx.Err() != nil {
		o.finishCancelled(ctx, scan)
		return
	}
	if err := session.AdvancePhase(scanning.PhaseComplete); err != nil {
		o.finishFailed(ctx, scan, err.Error())
		return
	}
	o.emitStatus(ctx, session, "complete")
	o.publish(ctx, session, scanning.NewScanStatusChangedEvent(scanID, scanning.StatusCompleted, ""))
	lc.Info(ctx, "scan completed")
}

func (o *Orchestrator) finishCancelled(ctx context.Context, scan *activeScan) {
	// The scan context is already dead; terminal notifications still go out.
	ctx = context.WithoutCancel(ctx)
	if err := scan.session.Cancel(); err != nil {
		o.logger.Warn(ctx, "cancel on terminal session", "scan_id", scan.session.ScanID().String(), "error", err)
	}
	o.emitStatus(ctx, scan.session, "cancelled")
	o.publish(ctx, scan.session, scanning.NewScanStatusChangedEvent(scan.session.ScanID(), scanning.StatusCancelled, ""))
	o.logger.Info(ctx, "scan cancelled", "scan_id", scan.session.ScanID().String())
}

func (o *Orchestrator) finishFailed(ctx context.Context, scan *activeScan, reason string) {
	ctx = context.WithoutCancel(ctx)
	if err := scan.session.Fail(); err != nil {
		o.logger.Warn(ctx, "fail on terminal session", "scan_id", scan.session.ScanID().String(), "error", err)
	}
	o.emitStatus(ctx, scan.session, "failed: "+reason)
	o.publish(ctx, scan.session, scanning.NewScanStatusChangedEvent(scan.session.ScanID(), scanning.StatusFailed, reason))
	o.logger.Error(ctx, "scan failed", "scan_id", scan.session.ScanID().String(), "reason", reason)
}

// subdomainPhase fans the enumeration tools out against the target domain.
func (o *Orchestrator) subdomainPhase(ctx context.Context, scan *activeScan) error {
	tools := o.cfg.SubdomainTools
	if scan.quick {
		tools = tools[:1]
	}

	var tasks []Task
	for _, name := range tools {
		p, err := provider.New(name, o.providerDeps())
		if err != nil {
			o.logger.Warn(ctx, "skipping unknown provider", "provider", name, "error", err)
			continue
		}
		tasks = append(tasks, o.providerTask(scan, p, provider.Job{Target: scan.session.TargetDomain()}))
	}
	_, err := RunParallel(ctx, o.logger, o.cfg.PhaseTimeout, tasks)
	return err
}

// hostDiscoveryPhase probes every recorded subdomain for live HTTP services.
func (o *Orchestrator) hostDiscoveryPhase(ctx context.Context, scan *activeScan) error {
	hosts, err := o.repo.SubdomainsForTarget(ctx, scan.session.TargetDomain())
	if err != nil {
		return fmt.Errorf("reading subdomains: %w", err)
	}
	if len(hosts) == 0 {
		o.emitStatus(ctx, scan.session, "host discovery skipped: no subdomains recorded")
		return nil
	}

	httpx := provider.NewHTTPX(o.providerDeps())
	tasks := []Task{o.providerTask(scan, httpx, provider.Job{
		Target: scan.session.TargetDomain(),
		Inputs: hosts,
	})}
	_, err = RunParallel(ctx, o.logger, o.cfg.PhaseTimeout, tasks)
	return err
}

// crawlPhase combines active crawling of alive hosts with passive archive
// discovery for the whole domain; both run concurrently within the phase.
func (o *Orchestrator) crawlPhase(ctx context.Context, scan *activeScan) error {
	alive, err := o.repo.AliveSubdomainsForTarget(ctx, scan.session.TargetDomain())
	if err != nil {
		return fmt.Errorf("reading alive subdomains: %w", err)
	}
	if len(alive) == 0 {
		o.emitStatus(ctx, scan.session, "crawling skipped: no alive hosts")
		return nil
	}

	urls := make([]string, len(alive))
	for i, host := range alive {
		urls[i] = "https://" + host
	}

	deps := o.providerDeps()
	tasks := []Task{
		o.providerTask(scan, provider.NewKatana(deps), provider.Job{
			Target: scan.session.TargetDomain(),
			Inputs: urls,
		}),
		o.providerTask(scan, provider.NewGau(deps), provider.Job{
			Target: scan.session.TargetDomain(),
		}),
	}
	_, err = RunParallel(ctx, o.logger, o.cfg.PhaseTimeout, tasks)
	return err
}

// vulnScanPhase runs the vulnerability scanner over everything collected,
// falling back to alive hosts when crawling found nothing.
func (o *Orchestrator) vulnScanPhase(ctx context.Context, scan *activeScan) error {
	targets, err := o.repo.CrawledURLsForTarget(ctx, scan.session.TargetDomain())
	if err != nil {
		return fmt.Errorf("reading crawled urls: %w", err)
	}
	if len(targets) == 0 {
		alive, err := o.repo.AliveSubdomainsForTarget(ctx, scan.session.TargetDomain())
		if err != nil {
			return fmt.Errorf("reading alive subdomains: %w", err)
		}
		for _, host := range alive {
			targets = append(targets, "https://"+host)
		}
	}
	if len(targets) == 0 {
		o.emitStatus(ctx, scan.session, "vulnerability scan skipped: nothing to scan")
		return nil
	}

	nuclei := provider.NewNuclei(o.providerDeps())
	tasks := []Task{o.providerTask(scan, nuclei, provider.Job{
		Target: scan.session.TargetDomain(),
		Inputs: targets,
	})}
	_, err = RunParallel(ctx, o.logger, o.cfg.PhaseTimeout, tasks)
	return err
}

// RunFuzz fuzzes a single URL on demand, outside the regular phase graph. It
// returns the scan id tracking the fuzzer process and blocks until it finishes.
func (o *Orchestrator) RunFuzz(ctx context.Context, targetDomain, url string) (uuid.UUID, error) {
	scanID := uuid.New()
	session := scanning.NewSession(scanID, targetDomain)
	o.registry.RegisterScan(scanID)
	defer o.registry.RemoveScan(scanID)

	scan := &activeScan{session: session, cancel: func() {}}
	task := o.providerTask(scan, provider.NewFFUF(o.providerDeps()), provider.Job{Target: url})
	_, err := RunParallel(ctx, o.logger, o.cfg.PhaseTimeout, []Task{task})
	return scanID, err
}

func (o *Orchestrator) providerDeps() provider.Deps {
	return provider.Deps{Registry: o.registry, Tools: o.tools, Logger: o.logger}
}

// providerTask wraps a provider invocation as a phase task: it takes one slot
// from the shared window limiter, paces the launch, then streams the tool's
// events through persistence and broadcast.
func (o *Orchestrator) providerTask(scan *activeScan, p provider.Provider, job provider.Job) Task {
	return func(ctx context.Context) ([]scanning.StreamEvent, error) {
		granted, err := o.limiter.Acquire(ctx, "scan:"+scan.session.TargetDomain(), o.cfg.RateLimit, o.cfg.RatePeriod, true)
		if err != nil {
			return nil, fmt.Errorf("rate limit acquire for %s: %w", p.Name(), err)
		}
		if !granted {
			return nil, fmt.Errorf("rate limit denied for %s", p.Name())
		}
		if err := o.pacer.Wait(ctx); err != nil {
			return nil, err
		}

		stream, err := p.StreamOutput(ctx, scan.session.ScanID(), job)
		if err != nil {
			return nil, err
		}

		var results []scanning.StreamEvent
		for evt := range stream {
			o.handleStreamEvent(ctx, scan.session, evt)
			if evt.Kind == scanning.StreamResult {
				results = append(results, evt)
			}
		}
		return results, ctx.Err()
	}
}

// handleStreamEvent maps one provider stream event to its persistence call and
// forwards it, decorated with is_new where applicable, to the broadcast sink.
// Persistence failures are logged and swallowed: one failed row must not sink
// the scan.
func (o *Orchestrator) handleStreamEvent(ctx context.Context, session *scanning.Session, evt scanning.StreamEvent) {
	scanID := session.ScanID()

	switch evt.Kind {
	case scanning.StreamLog:
		o.send(ctx, scanning.BroadcastEvent{
			Type: scanning.BroadcastLog, ScanID: scanID.String(), Tool: evt.Tool, Message: evt.Line,
		})
	case scanning.StreamError:
		o.send(ctx, scanning.BroadcastEvent{
			Type: scanning.BroadcastError, ScanID: scanID.String(), Tool: evt.Tool, Message: evt.Line,
		})
	case scanning.StreamStatus:
		o.send(ctx, scanning.BroadcastEvent{
			Type: scanning.BroadcastStatus, ScanID: scanID.String(), Tool: evt.Tool, Message: evt.Line,
		})
	case scanning.StreamResult:
		o.handleResult(ctx, session, evt)
	}
}

func (o *Orchestrator) handleResult(ctx context.Context, session *scanning.Session, evt scanning.StreamEvent) {
	scanID := session.ScanID()
	target := session.TargetDomain()

	switch p := evt.Payload.(type) {
	case scanning.SubdomainFound:
		isNew, err := o.repo.AddSubdomain(ctx, target, p.Hostname, evt.Tool)
		if err != nil {
			o.logger.Error(ctx, "failed to persist subdomain", "hostname", p.Hostname, "error", err)
			return
		}
		o.send(ctx, scanning.BroadcastEvent{
			Type: scanning.BroadcastSubdomain, ScanID: scanID.String(),
			Domain: target, Subdomain: p.Hostname, Tool: evt.Tool, IsNew: isNew,
		})
		if isNew {
			o.publish(ctx, session, scanning.NewSubdomainDiscoveredEvent(scanID, target, p.Hostname, evt.Tool))
		}

	case scanning.HostProbe:
		updated, err := o.repo.UpdateSubdomainAlive(ctx, p.URL, true)
		if err != nil {
			o.logger.Error(ctx, "failed to mark subdomain alive", "url", p.URL, "error", err)
			return
		}
		o.send(ctx, scanning.BroadcastEvent{
			Type: scanning.BroadcastResult, ScanID: scanID.String(),
			Domain: target, URL: p.URL, Tool: evt.Tool, IsNew: updated,
		})
		if updated {
			o.publish(ctx, session, scanning.NewHostAliveEvent(scanID, target, p.URL))
		}

	case scanning.CrawledEndpoint:
		tags := asset.ClassifyURL(p.URL)
		isNew, err := o.repo.AddCrawledURL(ctx, target, p.URL, evt.Tool, tags)
		if err != nil {
			o.logger.Error(ctx, "failed to persist crawled url", "url", p.URL, "error", err)
			return
		}
		o.send(ctx, scanning.BroadcastEvent{
			Type: scanning.BroadcastCrawl, ScanID: scanID.String(),
			Domain: target, URL: p.URL, Tags: tags, Tool: evt.Tool, IsNew: isNew,
		})
		if isNew {
			o.publish(ctx, session, scanning.NewURLDiscoveredEvent(scanID, target, p.URL, tags))
		}

	case scanning.Finding:
		vuln := asset.Vulnerability{
			TargetDomain: target,
			Name:         p.Name,
			Severity:     asset.ParseSeverity(p.Severity),
			URL:          p.MatchedAt,
			MatcherName:  p.MatcherName,
			Description:  p.Description,
		}
		isNew, err := o.repo.AddVulnerability(ctx, vuln)
		if err != nil {
			o.logger.Error(ctx, "failed to persist vulnerability", "name", p.Name, "error", err)
			return
		}
		o.send(ctx, scanning.BroadcastEvent{
			Type: scanning.BroadcastVuln, ScanID: scanID.String(),
			Domain: target, URL: p.MatchedAt, Tool: evt.Tool, IsNew: isNew,
			VulnName: p.Name, VulnSeverity: string(vuln.Severity),
		})

	case scanning.FuzzHit:
		o.send(ctx, scanning.BroadcastEvent{
			Type: scanning.BroadcastResult, ScanID: scanID.String(),
			Domain: target, URL: p.URL, Tool: evt.Tool,
			Message: fmt.Sprintf("status=%d length=%d word=%s", p.Status, p.ContentLength, p.Word),
		})

	default:
		o.send(ctx, scanning.BroadcastEvent{
			Type: scanning.BroadcastRaw, ScanID: scanID.String(),
			Tool: evt.Tool, Message: fmt.Sprintf("%v", evt.Payload),
		})
	}
}

func (o *Orchestrator) emitStatus(ctx context.Context, session *scanning.Session, msg string) {
	o.send(ctx, scanning.BroadcastEvent{
		Type:    scanning.BroadcastStatus,
		ScanID:  session.ScanID().String(),
		Domain:  session.TargetDomain(),
		Message: msg,
	})
}

func (o *Orchestrator) send(ctx context.Context, evt scanning.BroadcastEvent) {
	if err := o.broadcast(ctx, evt); err != nil {
		o.logger.Warn(ctx, "broadcast delivery failed", "type", string(evt.Type), "error", err)
	}
}

func (o *Orchestrator) publish(ctx context.Context, session *scanning.Session, event events.DomainEvent) {
	if o.publisher == nil {
		return
	}
	if err := o.publisher.PublishDomainEvent(ctx, event, events.WithKey(session.ScanID().String())); err != nil {
		o.logger.Warn(ctx, "failed to publish domain event",
			"event_type", string(event.EventType()),
			"scan_id", session.ScanID().String(),
			"error", err,
		)
	}
}
