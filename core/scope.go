package core

import (
	"context"
	"fmt"
	"sort"

	"github.com/signalsfoundry/fabric-planner/inventory"
	"github.com/signalsfoundry/fabric-planner/model"
)

// peerScope is one concrete location to search for switch interfaces.
// The snapshot query is deferred so that scopes later in the chain are
// only fetched when earlier ones come up short.
type peerScope struct {
	Name  string
	fetch func(ctx context.Context) (*inventory.Snapshot, error)
}

// scopeChain derives the ordered fallback scopes for a target rack
// from its deployment classification:
//
//	tor:         same rack, then the rest of the row
//	middle_rack: the row's network rack only
//	mixed:       same rack, then the row's network rack
//
// Each scope also pins the device roles it will accept: ToR-style
// scopes admit top-of-rack switches only, network-rack scopes admit
// the aggregation roles, so a row fallback never homes a ToR server
// on a leaf that happens to sort first. Scopes are never merged;
// rack-first, row-second preference depends on each scope being
// exhausted before the next is considered.
//
// A switch target inverts the rack/row role filter: a newly added ToR
// cables upward, so its peers are the aggregation roles, not other
// ToRs.
func (p *Planner) scopeChain(rack model.Rack, target model.Device) ([]peerScope, error) {
	sameRack := func(roles []model.DeviceRole) peerScope {
		return peerScope{
			Name: "rack:" + rack.Name,
			fetch: func(ctx context.Context) (*inventory.Snapshot, error) {
				return p.store.Query(ctx, inventory.QueryFilter{
					Racks:       []string{rack.Name},
					DeviceRoles: roles,
				})
			},
		}
	}
	sameRow := func(roles []model.DeviceRole) peerScope {
		return peerScope{
			Name: fmt.Sprintf("row:%s/%s", rack.Pod, rack.Row),
			fetch: func(ctx context.Context) (*inventory.Snapshot, error) {
				return p.store.Query(ctx, inventory.QueryFilter{
					Pod:         rack.Pod,
					Row:         rack.Row,
					DeviceRoles: roles,
				})
			},
		}
	}
	networkRack := peerScope{
		Name: fmt.Sprintf("network-rack:%s/%s", rack.Pod, rack.Row),
		fetch: func(ctx context.Context) (*inventory.Snapshot, error) {
			return p.store.Query(ctx, inventory.QueryFilter{
				Pod:         rack.Pod,
				Row:         rack.Row,
				RackKinds:   []model.RackKind{model.RackKindNetwork},
				DeviceRoles: aggregationRoles,
			})
		},
	}

	rackRoles := torRoles
	if target.Role.IsSwitch() {
		rackRoles = aggregationRoles
	}

	switch rack.Deployment {
	case model.DeploymentToR:
		return []peerScope{sameRack(rackRoles), sameRow(rackRoles)}, nil
	case model.DeploymentMiddleRack:
		// Compute racks never host switches here; there is no
		// same-rack scope at all.
		return []peerScope{networkRack}, nil
	case model.DeploymentMixed:
		return []peerScope{sameRack(rackRoles), networkRack}, nil
	default:
		return nil, fmt.Errorf("rack %q: %w", rack.Name, ErrNoDeployment)
	}
}

var (
	torRoles         = []model.DeviceRole{model.RoleToR}
	aggregationRoles = []model.DeviceRole{model.RoleLeaf, model.RoleSpine}
)

// scopeCandidates is the eligible switch inventory of one resolved
// scope: free, uncabled downlink interfaces partitioned by signaling
// rate and by owning switch, with switches in lexical order and each
// switch's interfaces in natural order.
type scopeCandidates struct {
	Scope    string
	BySpeed  map[model.Speed][]switchCandidates
	Switches int // distinct switch devices with at least one free port
}

// switchCandidates is one switch's free interfaces at one rate.
type switchCandidates struct {
	Device     string
	Interfaces []model.Interface
}

// collectCandidates narrows a scope snapshot to eligible switch
// interfaces for the given target. A switch is eligible when it is a
// different device than the target, plays a different role (a ToR is
// never a peer of another ToR), and exposes at least one free downlink
// whose endpoint is not already consumed by a committed cable. A
// switch that is physically present but fully saturated contributes
// nothing, which is what lets the resolver fall through past it.
func collectCandidates(scope string, snap *inventory.Snapshot, target model.Device) *scopeCandidates {
	ix := newCableIndex(snap.Cables)
	out := &scopeCandidates{
		Scope:   scope,
		BySpeed: make(map[model.Speed][]switchCandidates),
	}

	distinct := make(map[string]bool)
	for _, rackInv := range snap.Racks {
		for _, devInv := range rackInv.Devices {
			dev := devInv.Device
			if !dev.Role.IsSwitch() || dev.Name == target.Name || dev.Role == target.Role {
				continue
			}
			free := make(map[model.Speed][]model.Interface)
			for _, intf := range devInv.Interfaces {
				if intf.Role != model.InterfaceDownlink || intf.Status != model.StatusFree {
					continue
				}
				if ix.used(intf.Ref()) {
					continue
				}
				free[intf.Speed] = append(free[intf.Speed], intf)
			}
			if len(free) == 0 {
				continue
			}
			distinct[dev.Name] = true
			for speed, ifaces := range free {
				sortInterfacesNatural(ifaces)
				out.BySpeed[speed] = append(out.BySpeed[speed], switchCandidates{
					Device:     dev.Name,
					Interfaces: ifaces,
				})
			}
		}
	}
	out.Switches = len(distinct)

	// Lexical switch order within every rate group keeps the
	// allocator's rotation stable across runs.
	for speed := range out.BySpeed {
		sortSwitchCandidates(out.BySpeed[speed])
	}
	return out
}

func sortSwitchCandidates(cands []switchCandidates) {
	sort.Slice(cands, func(i, j int) bool { return cands[i].Device < cands[j].Device })
}

// resolveScope walks the chain and returns the candidates of the first
// scope holding at least minRedundancy distinct eligible switches. If
// no scope reaches the minimum, the earliest scope with at least one
// switch is returned so the allocator can report the redundancy
// shortfall precisely; ErrNoEligibleSwitchScope means every scope was
// empty.
func (p *Planner) resolveScope(ctx context.Context, rack model.Rack, target model.Device) (*scopeCandidates, error) {
	scopes, err := p.scopeChain(rack, target)
	if err != nil {
		return nil, err
	}

	var fallback *scopeCandidates
	for _, scope := range scopes {
		snap, err := scope.fetch(ctx)
		if err != nil {
			return nil, fmt.Errorf("query scope %s: %w", scope.Name, err)
		}
		cands := collectCandidates(scope.Name, snap, target)
		if cands.Switches >= p.minRedundancy {
			return cands, nil
		}
		if cands.Switches > 0 && fallback == nil {
			fallback = cands
		}
	}
	if fallback != nil {
		return fallback, nil
	}
	return nil, fmt.Errorf("device %s (rack %s, %s): %w", target.Name, rack.Name, rack.Deployment, ErrNoEligibleSwitchScope)
}
