package orchestration

import (
	"context"
	"fmt"

	"github.com/reconflow/reconflow/internal/domain/events"
	"github.com/reconflow/reconflow/internal/domain/scanning"
	"github.com/reconflow/reconflow/internal/infra/provider"
)

// SubscribeControl registers the orchestrator as a consumer of scan lifecycle
// events: ScanRequested starts a pipeline on this node, ScanCancelled tears one
// down wherever its processes run.
func (o *Orchestrator) SubscribeControl(ctx context.Context, bus events.EventBus) error {
	types := []events.EventType{
		scanning.EventTypeScanRequested,
		scanning.EventTypeScanCancelled,
	}
	return bus.Subscribe(ctx, types, func(ctx context.Context, evt events.EventEnvelope) error {
		switch p := evt.Payload.(type) {
		case scanning.ScanRequestedEvent:
			_, err := o.StartScan(ctx, p.TargetDomain, p.Quick)
			return err
		case scanning.ScanCancelledEvent:
			o.CancelScan(ctx, p.ScanID)
			return nil
		default:
			return fmt.Errorf("unexpected control payload %T", evt.Payload)
		}
	})
}

// SubscribeCancellations registers only the cancellation half of the control
// stream. Worker nodes use this so a cancel kills their in-flight subprocesses
// without also making them react to scan requests.
func (o *Orchestrator) SubscribeCancellations(ctx context.Context, bus events.EventBus) error {
	types := []events.EventType{scanning.EventTypeScanCancelled}
	return bus.Subscribe(ctx, types, func(ctx context.Context, evt events.EventEnvelope) error {
		p, ok := evt.Payload.(scanning.ScanCancelledEvent)
		if !ok {
			return fmt.Errorf("unexpected cancellation payload %T", evt.Payload)
		}
		o.registry.Cancel(ctx, p.ScanID)
		return nil
	})
}

// SubscribeDiscovery turns this node into a reactive worker: each discovery
// event schedules the next phase's unit of work for that single asset rather
// than for a whole batch, trading batch efficiency for finer-grained,
// independently retryable units.
func (o *Orchestrator) SubscribeDiscovery(ctx context.Context, bus events.EventBus) error {
	types := []events.EventType{
		scanning.EventTypeSubdomainDiscovered,
		scanning.EventTypeHostAlive,
		scanning.EventTypeURLDiscovered,
		scanning.EventTypeVulnScanRequested,
		scanning.EventTypeScanStatusChanged,
	}
	return bus.Subscribe(ctx, types, func(ctx context.Context, evt events.EventEnvelope) error {
		switch p := evt.Payload.(type) {
		case scanning.SubdomainDiscoveredEvent:
			session := scanning.NewSession(p.ScanID, p.TargetDomain)
			return o.runUnit(ctx, session, provider.NewHTTPX(o.providerDeps()), provider.Job{
				Target: p.TargetDomain,
				Inputs: []string{p.Hostname},
			})
		case scanning.HostAliveEvent:
			session := scanning.NewSession(p.ScanID, p.TargetDomain)
			return o.runUnit(ctx, session, provider.NewKatana(o.providerDeps()), provider.Job{
				Target: p.URL,
			})
		case scanning.URLDiscoveredEvent:
			// Hand the URL to the vuln-scan stage explicitly, so scan requests
			// stay separate from discovery notifications.
			o.publish(ctx, scanning.NewSession(p.ScanID, p.TargetDomain),
				scanning.NewVulnScanRequestedEvent(p.ScanID, p.TargetDomain, p.URL))
			return nil
		case scanning.VulnScanRequestedEvent:
			session := scanning.NewSession(p.ScanID, p.TargetDomain)
			return o.runUnit(ctx, session, provider.NewNuclei(o.providerDeps()), provider.Job{
				Target: p.URL,
			})
		case scanning.ScanStatusChangedEvent:
			if p.Status.IsTerminal() {
				o.registry.RemoveScan(p.ScanID)
			}
			return nil
		default:
			return fmt.Errorf("unexpected discovery payload %T", evt.Payload)
		}
	})
}

// runUnit executes one per-asset unit of work on behalf of a scan running
// elsewhere. The scan id is registered locally so a cancellation event can kill
// the unit's subprocess on this node too.
func (o *Orchestrator) runUnit(ctx context.Context, session *scanning.Session, p provider.Provider, job provider.Job) error {
	o.registry.RegisterScan(session.ScanID())

	scan := &activeScan{session: session, cancel: func() {}}
	task := o.providerTask(scan, p, job)
	_, err := RunParallel(ctx, o.logger, o.cfg.PhaseTimeout, []Task{task})
	return err
}
