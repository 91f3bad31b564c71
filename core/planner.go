package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/fabric-planner/internal/logging"
	"github.com/signalsfoundry/fabric-planner/inventory"
	"github.com/signalsfoundry/fabric-planner/model"
)

// defaultMinRedundancy is the dual-homing floor: every speed group
// must reach at least this many distinct peer switches.
const defaultMinRedundancy = 2

// PlannerMetrics receives planner-level measurements. Implemented by
// observability.PlannerCollector; nil-safe via the noop default.
type PlannerMetrics interface {
	ObserveInvocation(outcome string, seconds float64)
	AddCablesCommitted(n int)
	AddConflicts(n int)
}

// ConnectRequest identifies one target device plus the execution
// context it should be planned under. Workspace is carried opaquely
// onto committed cables; the planner itself never branches on it.
type ConnectRequest struct {
	Device    string `json:"device"`
	Workspace string `json:"workspace,omitempty"`
}

// Planner computes and commits endpoint connectivity for one target
// device per invocation. It holds no mutable state of its own, so a
// single Planner is safe for concurrent invocations across devices;
// all shared state lives behind the inventory store, whose atomic
// per-pair accept/reject is the sole correctness mechanism across
// concurrent runs.
type Planner struct {
	store   inventory.Store
	log     logging.Logger
	metrics PlannerMetrics
	tracer  trace.Tracer

	minRedundancy int
}

// Option customises Planner construction.
type Option func(*Planner)

// WithMetrics attaches a metrics recorder.
func WithMetrics(m PlannerMetrics) Option {
	return func(p *Planner) { p.metrics = m }
}

// WithMinRedundancy overrides the dual-homing floor. Values below 1
// are ignored.
func WithMinRedundancy(n int) Option {
	return func(p *Planner) {
		if n >= 1 {
			p.minRedundancy = n
		}
	}
}

// New constructs a Planner over the given store.
func New(store inventory.Store, log logging.Logger, opts ...Option) *Planner {
	if log == nil {
		log = logging.Noop()
	}
	p := &Planner{
		store:         store,
		log:           log,
		tracer:        otel.Tracer("fabric-planner/core"),
		minRedundancy: defaultMinRedundancy,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Connect plans connectivity for one device and commits the validated
// pairs. Repeated calls over the same device converge: satisfied pairs
// are skipped, remaining free interfaces are planned, and a fully
// cabled device is a successful no-op.
//
// A non-nil error is returned for device lookup failures, store I/O
// failures, and plan validation failures (errors.Is ErrPlanValidation;
// the partially-populated result is still returned alongside).
// Group-level failures are not errors: they appear under
// result.Failed.
func (p *Planner) Connect(ctx context.Context, req ConnectRequest) (*DeviceResult, error) {
	return p.run(ctx, req, true)
}

// Plan is the dry-run variant of Connect: the full pipeline executes
// but nothing is materialized.
func (p *Planner) Plan(ctx context.Context, req ConnectRequest) (*DeviceResult, error) {
	return p.run(ctx, req, false)
}

// ConnectBatch plans every named device independently. A failure on
// one device is recorded and never aborts its siblings.
func (p *Planner) ConnectBatch(ctx context.Context, workspace string, devices []string) *BatchResult {
	batch := &BatchResult{Devices: []*DeviceResult{}}
	for _, dev := range devices {
		res, err := p.Connect(ctx, ConnectRequest{Device: dev, Workspace: workspace})
		if res != nil {
			batch.Devices = append(batch.Devices, res)
		}
		if err != nil {
			if batch.Errors == nil {
				batch.Errors = make(map[string]string)
			}
			batch.Errors[dev] = err.Error()
		}
	}
	return batch
}

func (p *Planner) run(ctx context.Context, req ConnectRequest, commit bool) (*DeviceResult, error) {
	start := time.Now()
	ctx, span := p.tracer.Start(ctx, "planner.connect",
		trace.WithAttributes(
			attribute.String("device", req.Device),
			attribute.Bool("commit", commit),
		))
	defer span.End()

	outcome := "error"
	defer func() {
		if p.metrics != nil {
			p.metrics.ObserveInvocation(outcome, time.Since(start).Seconds())
		}
	}()

	dev, err := p.store.GetDevice(ctx, req.Device)
	if err != nil {
		return nil, err
	}
	rack, err := p.store.GetRack(ctx, dev.Rack)
	if err != nil {
		return nil, err
	}

	result := newDeviceResult(dev.Name, req.Workspace)
	result.DryRun = !commit

	// One batched read covers the target's own interfaces and every
	// cable already touching them.
	localSnap, err := p.store.Query(ctx, inventory.QueryFilter{Racks: []string{dev.Rack}})
	if err != nil {
		return nil, fmt.Errorf("query rack %s: %w", dev.Rack, err)
	}
	devInv := localSnap.Device(dev.Name)
	if devInv == nil {
		return nil, fmt.Errorf("device %q missing from rack snapshot: %w", dev.Name, inventory.ErrNotFound)
	}
	targetIx := newCableIndex(localSnap.CablesTouching(dev.Name))

	var uplinks, free []model.Interface
	for _, intf := range devInv.Interfaces {
		if intf.Role != model.InterfaceUplink {
			continue
		}
		uplinks = append(uplinks, intf)
		ref := intf.Ref()
		if cable, ok := targetIx.cableFor(ref); ok {
			result.AlreadyConnected = append(result.AlreadyConnected, InterfaceOutcome{
				Interface: ref,
				Peer:      cable.OtherEnd(ref),
				CableID:   cable.ID,
			})
			continue
		}
		if intf.Status != model.StatusFree {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("interface %s is %s; excluded from allocation", ref, intf.Status))
			continue
		}
		free = append(free, intf)
	}

	if len(uplinks) == 0 {
		result.NoOp = true
		result.Warnings = append(result.Warnings, "device has no uplink interfaces")
		outcome = result.Outcome()
		return result, nil
	}
	if len(free) == 0 {
		// Everything is committed (or reserved): nothing to plan.
		// This short-circuits before any scope resolution.
		result.NoOp = true
		outcome = result.Outcome()
		p.log.Info(ctx, "device already fully connected",
			logging.String("device", dev.Name),
			logging.Int("interfaces", len(uplinks)))
		return result, nil
	}

	groups := groupBySpeed(free)
	// Redundancy credit for committed cabling is tracked per rate:
	// each speed group plans against its own existing peers only.
	existingPeers, existingCables := peersBySpeed(uplinks, targetIx)

	cands, err := p.resolveScope(ctx, *rack, *dev)
	if err != nil {
		if errors.Is(err, ErrNoEligibleSwitchScope) || errors.Is(err, ErrNoDeployment) {
			for _, speed := range sortedSpeeds(groups) {
				for _, intf := range groups[speed] {
					result.Failed = append(result.Failed, InterfaceOutcome{
						Interface: intf.Ref(),
						Reason:    err.Error(),
					})
				}
			}
			outcome = result.Outcome()
			return result, nil
		}
		return nil, err
	}
	result.Scope = cands.Scope
	span.SetAttributes(attribute.String("scope", cands.Scope))

	var plans []*GroupPlan
	candidateCounts := make(map[string]int)
	for _, speed := range sortedSpeeds(groups) {
		switches := cands.BySpeed[speed]
		for _, sw := range switches {
			candidateCounts[string(speed)] += len(sw.Interfaces)
		}

		gp, err := planGroup(speed, groups[speed], switches, len(existingPeers[speed]), p.minRedundancy)
		if err != nil {
			// Group-level failure: siblings still proceed.
			for _, intf := range groups[speed] {
				result.Failed = append(result.Failed, InterfaceOutcome{
					Interface: intf.Ref(),
					Reason:    err.Error(),
				})
			}
			continue
		}
		for _, ref := range gp.Unmatched {
			result.Failed = append(result.Failed, InterfaceOutcome{
				Interface:   ref,
				Reason:      fmt.Sprintf("speed %s: switch capacity exhausted in %s", speed, cands.Scope),
				Recoverable: true,
			})
		}
		if len(gp.Unmatched) > 0 {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("partial capacity at %s: %d of %d interfaces placed", speed, len(gp.Pairs), len(groups[speed])))
		}
		plans = append(plans, gp)
	}

	var pairs []PlannedPair
	for _, gp := range plans {
		pairs = append(pairs, gp.Pairs...)
	}
	fresh, satisfied := splitSatisfied(pairs, targetIx)
	for _, pair := range satisfied {
		cable, _ := targetIx.satisfied(pair.Fingerprint)
		result.AlreadyConnected = append(result.AlreadyConnected, InterfaceOutcome{
			Interface: pair.ServerInterface,
			Peer:      pair.SwitchInterface,
			CableID:   cable.ID,
		})
	}

	if err := validatePlan(plans, existingPeers, existingCables, candidateCounts, p.minRedundancy); err != nil {
		for _, pair := range fresh {
			result.Failed = append(result.Failed, InterfaceOutcome{
				Interface: pair.ServerInterface,
				Peer:      pair.SwitchInterface,
				Reason:    err.Error(),
			})
		}
		outcome = "failed"
		p.log.Warn(ctx, "plan rejected by validator",
			logging.String("device", dev.Name),
			logging.String("error", err.Error()))
		return result, err
	}

	if !commit {
		for _, pair := range fresh {
			result.Connected = append(result.Connected, InterfaceOutcome{
				Interface: pair.ServerInterface,
				Peer:      pair.SwitchInterface,
			})
		}
		outcome = result.Outcome()
		return result, nil
	}

	if len(fresh) > 0 {
		reqs := make([]inventory.CableRequest, 0, len(fresh))
		for _, pair := range fresh {
			reqs = append(reqs, inventory.CableRequest{
				EndpointA: pair.ServerInterface,
				EndpointB: pair.SwitchInterface,
				Workspace: req.Workspace,
			})
		}
		created, err := p.store.CreateCables(ctx, reqs)
		if err != nil {
			return nil, fmt.Errorf("materialize %d cables: %w", len(reqs), err)
		}
		committed, conflicts := 0, 0
		for i, res := range created {
			pair := fresh[i]
			switch res.Outcome {
			case inventory.OutcomeCreated:
				committed++
				result.Connected = append(result.Connected, InterfaceOutcome{
					Interface: pair.ServerInterface,
					Peer:      pair.SwitchInterface,
					CableID:   res.Cable.ID,
				})
			case inventory.OutcomeDuplicate:
				result.AlreadyConnected = append(result.AlreadyConnected, InterfaceOutcome{
					Interface: pair.ServerInterface,
					Peer:      pair.SwitchInterface,
					CableID:   res.Cable.ID,
				})
			default:
				// Lost the race to a concurrent invocation. Safe to
				// retry the whole device; the fingerprint check will
				// resume from whatever state won.
				conflicts++
				result.Failed = append(result.Failed, InterfaceOutcome{
					Interface:   pair.ServerInterface,
					Peer:        pair.SwitchInterface,
					Reason:      res.Reason,
					Recoverable: true,
				})
			}
		}
		if p.metrics != nil {
			p.metrics.AddCablesCommitted(committed)
			p.metrics.AddConflicts(conflicts)
		}
	}

	outcome = result.Outcome()
	p.log.Info(ctx, "connectivity planned",
		logging.String("device", dev.Name),
		logging.String("scope", result.Scope),
		logging.String("outcome", outcome),
		logging.Int("connected", len(result.Connected)),
		logging.Int("already_connected", len(result.AlreadyConnected)),
		logging.Int("failed", len(result.Failed)))
	return result, nil
}
