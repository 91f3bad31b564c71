package inventory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/signalsfoundry/fabric-planner/model"
)

// MemoryStore is a mutex-guarded in-memory Store. It is the reference
// implementation used by tests and fabrictl; the SQLite store mirrors
// its semantics for persistent deployments.
type MemoryStore struct {
	mu sync.RWMutex

	racks      map[string]*model.Rack
	devices    map[string]*model.Device
	interfaces map[string]*model.Interface // keyed by interface ref
	byDevice   map[string][]string         // device name -> interface refs, insertion order

	cables     map[string]*model.Cable // keyed by fingerprint
	byEndpoint map[string]string       // interface ref -> fingerprint

	metrics MetricsRecorder
}

// MemoryOption customises MemoryStore construction.
type MemoryOption func(*MemoryStore)

// WithMetricsRecorder attaches an optional recorder for entity counts.
func WithMetricsRecorder(m MetricsRecorder) MemoryOption {
	return func(s *MemoryStore) {
		s.metrics = m
	}
}

// NewMemoryStore constructs an empty store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		racks:      make(map[string]*model.Rack),
		devices:    make(map[string]*model.Device),
		interfaces: make(map[string]*model.Interface),
		byDevice:   make(map[string][]string),
		cables:     make(map[string]*model.Cable),
		byEndpoint: make(map[string]string),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// AddRack registers a rack. Network racks must not carry a deployment
// classification of their own: classification is a pod-level policy
// that only applies to compute racks.
func (s *MemoryStore) AddRack(_ context.Context, r model.Rack) error {
	if r.Name == "" {
		return fmt.Errorf("rack name is required")
	}
	if r.Kind == model.RackKindNetwork && r.Deployment != "" {
		return fmt.Errorf("network rack %q must not carry a deployment classification", r.Name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.racks[r.Name]; exists {
		return fmt.Errorf("rack %q already exists", r.Name)
	}
	cp := r
	s.racks[r.Name] = &cp
	s.recordCountsLocked()
	return nil
}

// AddDevice registers a device. The owning rack must already exist.
func (s *MemoryStore) AddDevice(_ context.Context, d model.Device) error {
	if d.Name == "" {
		return fmt.Errorf("device name is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.devices[d.Name]; exists {
		return fmt.Errorf("device %q already exists", d.Name)
	}
	if _, ok := s.racks[d.Rack]; !ok {
		return fmt.Errorf("rack %q not found for device %q", d.Rack, d.Name)
	}
	cp := d
	s.devices[d.Name] = &cp
	s.recordCountsLocked()
	return nil
}

// AddInterface registers an interface on an existing device. Status
// defaults to free when unset.
func (s *MemoryStore) AddInterface(_ context.Context, i model.Interface) error {
	if i.Name == "" || i.Device == "" {
		return fmt.Errorf("interface name and device are required")
	}
	if i.Status == "" {
		i.Status = model.StatusFree
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.devices[i.Device]; !ok {
		return fmt.Errorf("device %q not found for interface %q", i.Device, i.Name)
	}
	ref := i.Ref()
	if _, exists := s.interfaces[ref]; exists {
		return fmt.Errorf("interface %q already exists", ref)
	}
	cp := i
	s.interfaces[ref] = &cp
	s.byDevice[i.Device] = append(s.byDevice[i.Device], ref)
	s.recordCountsLocked()
	return nil
}

// GetRack returns a copy of the named rack.
func (s *MemoryStore) GetRack(_ context.Context, name string) (*model.Rack, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.racks[name]
	if !ok {
		return nil, fmt.Errorf("rack %q: %w", name, ErrNotFound)
	}
	cp := *r
	return &cp, nil
}

// GetDevice returns a copy of the named device.
func (s *MemoryStore) GetDevice(_ context.Context, name string) (*model.Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.devices[name]
	if !ok {
		return nil, fmt.Errorf("device %q: %w", name, ErrNotFound)
	}
	cp := *d
	return &cp, nil
}

// Query builds a filtered snapshot in one pass. Cables are matched
// against all interfaces of the in-scope devices, before interface
// filters are applied, so consumed endpoints are always visible.
func (s *MemoryStore) Query(_ context.Context, f QueryFilter) (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := &Snapshot{}
	seenCable := make(map[string]bool)

	rackNames := make([]string, 0, len(s.racks))
	for name := range s.racks {
		rackNames = append(rackNames, name)
	}
	slices.Sort(rackNames)

	for _, name := range rackNames {
		rack := s.racks[name]
		if !rackInScope(*rack, f) {
			continue
		}
		ri := &RackInventory{Rack: *rack}

		devNames := make([]string, 0)
		for dn, d := range s.devices {
			if d.Rack == rack.Name {
				devNames = append(devNames, dn)
			}
		}
		slices.Sort(devNames)

		for _, dn := range devNames {
			dev := s.devices[dn]
			if len(f.DeviceRoles) > 0 && !slices.Contains(f.DeviceRoles, dev.Role) {
				continue
			}
			di := &DeviceInventory{Device: *dev}
			for _, ref := range s.byDevice[dn] {
				intf := s.interfaces[ref]
				if fp, ok := s.byEndpoint[ref]; ok && !seenCable[fp] {
					seenCable[fp] = true
					snap.Cables = append(snap.Cables, *s.cables[fp])
				}
				if len(f.InterfaceRoles) > 0 && !slices.Contains(f.InterfaceRoles, intf.Role) {
					continue
				}
				if len(f.InterfaceStatuses) > 0 && !slices.Contains(f.InterfaceStatuses, intf.Status) {
					continue
				}
				di.Interfaces = append(di.Interfaces, *intf)
			}
			ri.Devices = append(ri.Devices, di)
		}
		snap.Racks = append(snap.Racks, ri)
	}
	return snap, nil
}

// CreateCables decides every request under one lock acquisition, so a
// batch from one invocation is serialised against concurrent batches.
// Each request is still judged independently: an earlier conflict
// never poisons later requests.
func (s *MemoryStore) CreateCables(_ context.Context, reqs []CableRequest) ([]CableResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	results := make([]CableResult, 0, len(reqs))
	for _, req := range reqs {
		results = append(results, s.createCableLocked(req))
	}
	s.recordCountsLocked()
	return results, nil
}

func (s *MemoryStore) createCableLocked(req CableRequest) CableResult {
	a, b := req.EndpointA, req.EndpointB
	if b < a {
		a, b = b, a
	}

	fp := model.PairFingerprint(a, b)
	if existing, ok := s.cables[fp]; ok {
		cp := *existing
		return CableResult{Outcome: OutcomeDuplicate, Cable: &cp}
	}

	ifA, okA := s.interfaces[a]
	ifB, okB := s.interfaces[b]
	if !okA || !okB {
		return CableResult{Outcome: OutcomeConflict, Reason: "unknown interface endpoint"}
	}
	if ifA.Device == ifB.Device {
		return CableResult{Outcome: OutcomeConflict, Reason: "both endpoints on device " + ifA.Device}
	}
	if used, ok := s.byEndpoint[a]; ok {
		return CableResult{Outcome: OutcomeConflict, Reason: fmt.Sprintf("endpoint %s already cabled (%s)", a, used)}
	}
	if used, ok := s.byEndpoint[b]; ok {
		return CableResult{Outcome: OutcomeConflict, Reason: fmt.Sprintf("endpoint %s already cabled (%s)", b, used)}
	}

	cable := &model.Cable{
		ID:          uuid.NewString(),
		EndpointA:   a,
		EndpointB:   b,
		Fingerprint: fp,
		Workspace:   req.Workspace,
	}
	s.cables[fp] = cable
	s.byEndpoint[a] = fp
	s.byEndpoint[b] = fp
	ifA.Status = model.StatusActive
	ifB.Status = model.StatusActive

	cp := *cable
	return CableResult{Outcome: OutcomeCreated, Cable: &cp}
}

// Cables returns a snapshot of every committed cable, for tests and
// the CLI summary.
func (s *MemoryStore) Cables() []model.Cable {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Cable, 0, len(s.cables))
	for _, c := range s.cables {
		out = append(out, *c)
	}
	slices.SortFunc(out, func(x, y model.Cable) int {
		if x.Fingerprint < y.Fingerprint {
			return -1
		}
		if x.Fingerprint > y.Fingerprint {
			return 1
		}
		return 0
	})
	return out
}

func (s *MemoryStore) recordCountsLocked() {
	if s.metrics == nil {
		return
	}
	s.metrics.SetInventoryCounts(len(s.racks), len(s.devices), len(s.interfaces), len(s.cables))
}

func rackInScope(r model.Rack, f QueryFilter) bool {
	if len(f.RackKinds) > 0 && !slices.Contains(f.RackKinds, r.Kind) {
		return false
	}
	if len(f.Racks) > 0 {
		return slices.Contains(f.Racks, r.Name)
	}
	if f.Pod != "" && r.Pod != f.Pod {
		return false
	}
	if f.Row != "" && r.Row != f.Row {
		return false
	}
	return true
}
