// Package inventory defines the contract between the planner core and
// the topology store. The store owns all persistent state (racks,
// devices, interfaces, cables) and is the sole arbiter of the
// "interface used at most once" invariant; the planner only reads
// scoped snapshots and submits cable create requests.
package inventory

import (
	"context"
	"errors"

	"github.com/signalsfoundry/fabric-planner/model"
)

// ErrNotFound is returned by lookups for unknown racks or devices.
var ErrNotFound = errors.New("not found")

// QueryFilter narrows a topology query to a location scope and,
// optionally, to device/interface roles and interface statuses. Empty
// fields are wildcards. Filtering happens store-side so callers never
// fetch more of the topology than the scope they are planning against.
type QueryFilter struct {
	Pod   string
	Row   string
	Racks []string // explicit rack names; overrides Pod/Row matching when set

	RackKinds         []model.RackKind
	DeviceRoles       []model.DeviceRole
	InterfaceRoles    []model.InterfaceRole
	InterfaceStatuses []model.InterfaceStatus
}

// Snapshot is the result of one batched topology query: the racks in
// scope with their devices and (filtered) interfaces, plus every
// committed cable touching any interface of those devices. Cables are
// reported regardless of interface-level filters so callers can always
// see which endpoints are already consumed.
type Snapshot struct {
	Racks  []*RackInventory
	Cables []model.Cable
}

// RackInventory is one rack's slice of the snapshot.
type RackInventory struct {
	Rack    model.Rack
	Devices []*DeviceInventory
}

// DeviceInventory is one device's slice of the snapshot.
type DeviceInventory struct {
	Device     model.Device
	Interfaces []model.Interface
}

// Device returns the named device's inventory from the snapshot, or
// nil when the device is not in scope.
func (s *Snapshot) Device(name string) *DeviceInventory {
	if s == nil {
		return nil
	}
	for _, r := range s.Racks {
		for _, d := range r.Devices {
			if d.Device.Name == name {
				return d
			}
		}
	}
	return nil
}

// CablesTouching returns the snapshot's cables with at least one
// endpoint on the named device.
func (s *Snapshot) CablesTouching(device string) []model.Cable {
	if s == nil {
		return nil
	}
	var out []model.Cable
	for _, c := range s.Cables {
		if model.RefDevice(c.EndpointA) == device || model.RefDevice(c.EndpointB) == device {
			out = append(out, c)
		}
	}
	return out
}

// CableRequest proposes one cable between two interface refs.
type CableRequest struct {
	EndpointA string
	EndpointB string
	Workspace string
}

// CableOutcome is the store's per-request verdict.
type CableOutcome string

const (
	// OutcomeCreated: a new cable was committed.
	OutcomeCreated CableOutcome = "created"
	// OutcomeDuplicate: a cable with this exact fingerprint already
	// exists; the request is an idempotent no-op.
	OutcomeDuplicate CableOutcome = "duplicate"
	// OutcomeConflict: an endpoint is already consumed by a different
	// cable, or the request is structurally invalid. Recoverable for
	// the caller: another invocation may simply have won the race.
	OutcomeConflict CableOutcome = "conflict"
)

// CableResult reports the store's decision for one CableRequest.
// Cable is set for created and duplicate outcomes.
type CableResult struct {
	Outcome CableOutcome
	Cable   *model.Cable
	Reason  string
}

// Store is the read/write surface the planner depends on. Both the
// in-memory reference store and the SQLite store implement it.
//
// CreateCables must decide each request atomically: two concurrent
// invocations racing for the same endpoint see exactly one created
// and one conflict, never two cables.
type Store interface {
	GetRack(ctx context.Context, name string) (*model.Rack, error)
	GetDevice(ctx context.Context, name string) (*model.Device, error)
	Query(ctx context.Context, f QueryFilter) (*Snapshot, error)
	CreateCables(ctx context.Context, reqs []CableRequest) ([]CableResult, error)
}

// Seeder is the bootstrapping surface used by the topology loader and
// tests. Production writes flow exclusively through CreateCables.
type Seeder interface {
	AddRack(ctx context.Context, r model.Rack) error
	AddDevice(ctx context.Context, d model.Device) error
	AddInterface(ctx context.Context, i model.Interface) error
}

// MetricsRecorder receives entity-count updates from store mutators.
type MetricsRecorder interface {
	SetInventoryCounts(racks, devices, interfaces, cables int)
}
