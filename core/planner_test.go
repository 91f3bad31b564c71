package core

import (
	"context"
	"strconv"
	"strings"
	"testing"

	"github.com/signalsfoundry/fabric-planner/inventory"
	"github.com/signalsfoundry/fabric-planner/model"
)

// Topology seeding helpers shared by the planner tests. Every scenario
// starts from an empty in-memory store.

func seedRack(t *testing.T, s *inventory.MemoryStore, name, pod, row string, kind model.RackKind, dep model.Deployment) {
	t.Helper()
	err := s.AddRack(context.Background(), model.Rack{
		Name: name, Pod: pod, Row: row, Kind: kind, Deployment: dep,
	})
	if err != nil {
		t.Fatalf("AddRack(%s): %v", name, err)
	}
}

func seedDevice(t *testing.T, s *inventory.MemoryStore, name, rack string, role model.DeviceRole) {
	t.Helper()
	if err := s.AddDevice(context.Background(), model.Device{Name: name, Rack: rack, Role: role}); err != nil {
		t.Fatalf("AddDevice(%s): %v", name, err)
	}
}

func seedPorts(t *testing.T, s *inventory.MemoryStore, device, prefix string, n int, role model.InterfaceRole, speed model.Speed) {
	t.Helper()
	for i := 0; i < n; i++ {
		err := s.AddInterface(context.Background(), model.Interface{
			Name:   prefix + strconv.Itoa(i),
			Device: device,
			Role:   role,
			Speed:  speed,
		})
		if err != nil {
			t.Fatalf("AddInterface(%s/%s%d): %v", device, prefix, i, err)
		}
	}
}

// torRackTopology builds the canonical ToR scenario: one compute rack
// with two top-of-rack switches and one server with four 25G uplinks.
func torRackTopology(t *testing.T) *inventory.MemoryStore {
	t.Helper()
	s := inventory.NewMemoryStore()
	seedRack(t, s, "rack-a1", "pod1", "row1", model.RackKindCompute, model.DeploymentToR)
	seedDevice(t, s, "tor1", "rack-a1", model.RoleToR)
	seedDevice(t, s, "tor2", "rack-a1", model.RoleToR)
	seedPorts(t, s, "tor1", "swp", 4, model.InterfaceDownlink, model.Speed25G)
	seedPorts(t, s, "tor2", "swp", 4, model.InterfaceDownlink, model.Speed25G)
	seedDevice(t, s, "srv1", "rack-a1", model.RoleServer)
	seedPorts(t, s, "srv1", "eth", 4, model.InterfaceUplink, model.Speed25G)
	return s
}

// TestToRAlternation verifies the baseline scenario: four uplinks on a
// ToR rack alternate across the two local switches, A,B,A,B, consuming
// each switch's ports in natural order.
func TestToRAlternation(t *testing.T) {
	s := torRackTopology(t)
	p := New(s, nil)

	res, err := p.Connect(context.Background(), ConnectRequest{Device: "srv1"})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if got := len(res.Connected); got != 4 {
		t.Fatalf("expected 4 connected interfaces, got %d (failed: %+v)", got, res.Failed)
	}
	if res.Scope != "rack:rack-a1" {
		t.Fatalf("expected same-rack scope, got %q", res.Scope)
	}

	wantPeers := []string{"tor1/swp0", "tor2/swp0", "tor1/swp1", "tor2/swp1"}
	for i, out := range res.Connected {
		if out.Peer != wantPeers[i] {
			t.Errorf("connected[%d]: peer = %q, want %q", i, out.Peer, wantPeers[i])
		}
		if out.CableID == "" {
			t.Errorf("connected[%d]: missing cable ID", i)
		}
	}
	if got := len(s.Cables()); got != 4 {
		t.Fatalf("store holds %d cables, want 4", got)
	}
}

// TestSecondRunConverges verifies idempotency: re-invoking over an
// already-connected device creates nothing and reports a no-op.
func TestSecondRunConverges(t *testing.T) {
	s := torRackTopology(t)
	p := New(s, nil)
	ctx := context.Background()

	if _, err := p.Connect(ctx, ConnectRequest{Device: "srv1"}); err != nil {
		t.Fatalf("first Connect: %v", err)
	}
	res, err := p.Connect(ctx, ConnectRequest{Device: "srv1"})
	if err != nil {
		t.Fatalf("second Connect: %v", err)
	}
	if !res.NoOp {
		t.Fatalf("expected NoOp on second run, got %+v", res)
	}
	if len(res.Connected) != 0 || len(res.AlreadyConnected) != 4 {
		t.Fatalf("second run: connected=%d skipped=%d, want 0/4",
			len(res.Connected), len(res.AlreadyConnected))
	}
	if got := len(s.Cables()); got != 4 {
		t.Fatalf("store holds %d cables after rerun, want 4", got)
	}
}

// TestPartialRerunResumes verifies convergence from a half-done state:
// two pairs pre-committed, a rerun plans only the remaining two and
// skips the satisfied ones.
func TestPartialRerunResumes(t *testing.T) {
	s := torRackTopology(t)
	ctx := context.Background()

	pre, err := s.CreateCables(ctx, []inventory.CableRequest{
		{EndpointA: "srv1/eth0", EndpointB: "tor1/swp0"},
		{EndpointA: "srv1/eth1", EndpointB: "tor2/swp0"},
	})
	if err != nil {
		t.Fatalf("pre-seed cables: %v", err)
	}
	for i, r := range pre {
		if r.Outcome != inventory.OutcomeCreated {
			t.Fatalf("pre-seed cable %d: outcome %s (%s)", i, r.Outcome, r.Reason)
		}
	}

	res, err := New(s, nil).Connect(ctx, ConnectRequest{Device: "srv1"})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if len(res.Connected) != 2 || len(res.AlreadyConnected) != 2 {
		t.Fatalf("connected=%d skipped=%d, want 2/2 (failed: %+v)",
			len(res.Connected), len(res.AlreadyConnected), res.Failed)
	}
	if got := len(s.Cables()); got != 4 {
		t.Fatalf("store holds %d cables, want 4", got)
	}
}

// TestMiddleRackUsesNetworkRack verifies the middle_rack chain: the
// compute rack hosts no switches and allocation lands on the row's
// network rack.
func TestMiddleRackUsesNetworkRack(t *testing.T) {
	s := inventory.NewMemoryStore()
	seedRack(t, s, "rack-b1", "pod1", "row2", model.RackKindCompute, model.DeploymentMiddleRack)
	seedRack(t, s, "rack-net", "pod1", "row2", model.RackKindNetwork, "")
	seedDevice(t, s, "leaf1", "rack-net", model.RoleLeaf)
	seedDevice(t, s, "leaf2", "rack-net", model.RoleLeaf)
	seedPorts(t, s, "leaf1", "swp", 4, model.InterfaceDownlink, model.Speed100G)
	seedPorts(t, s, "leaf2", "swp", 4, model.InterfaceDownlink, model.Speed100G)
	seedDevice(t, s, "srv1", "rack-b1", model.RoleServer)
	seedPorts(t, s, "srv1", "eth", 2, model.InterfaceUplink, model.Speed100G)

	res, err := New(s, nil).Connect(context.Background(), ConnectRequest{Device: "srv1"})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if res.Scope != "network-rack:pod1/row2" {
		t.Fatalf("scope = %q, want network-rack:pod1/row2", res.Scope)
	}
	if len(res.Connected) != 2 {
		t.Fatalf("connected=%d, want 2 (failed: %+v)", len(res.Connected), res.Failed)
	}
	peers := map[string]bool{}
	for _, out := range res.Connected {
		peers[model.RefDevice(out.Peer)] = true
	}
	if !peers["leaf1"] || !peers["leaf2"] {
		t.Fatalf("expected dual-homing across leaf1 and leaf2, got %v", peers)
	}
}

// TestMixedRackPrefersLocalSwitches verifies that a mixed rack with
// usable local switches never reaches for the network rack.
func TestMixedRackPrefersLocalSwitches(t *testing.T) {
	s := inventory.NewMemoryStore()
	seedRack(t, s, "rack-c1", "pod1", "row3", model.RackKindCompute, model.DeploymentMixed)
	seedRack(t, s, "rack-net", "pod1", "row3", model.RackKindNetwork, "")
	seedDevice(t, s, "tor1", "rack-c1", model.RoleToR)
	seedDevice(t, s, "tor2", "rack-c1", model.RoleToR)
	seedPorts(t, s, "tor1", "swp", 2, model.InterfaceDownlink, model.Speed25G)
	seedPorts(t, s, "tor2", "swp", 2, model.InterfaceDownlink, model.Speed25G)
	seedDevice(t, s, "leaf1", "rack-net", model.RoleLeaf)
	seedDevice(t, s, "leaf2", "rack-net", model.RoleLeaf)
	seedPorts(t, s, "leaf1", "swp", 4, model.InterfaceDownlink, model.Speed25G)
	seedPorts(t, s, "leaf2", "swp", 4, model.InterfaceDownlink, model.Speed25G)
	seedDevice(t, s, "srv1", "rack-c1", model.RoleServer)
	seedPorts(t, s, "srv1", "eth", 2, model.InterfaceUplink, model.Speed25G)

	res, err := New(s, nil).Connect(context.Background(), ConnectRequest{Device: "srv1"})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if res.Scope != "rack:rack-c1" {
		t.Fatalf("scope = %q, want rack:rack-c1", res.Scope)
	}
	for _, out := range res.Connected {
		if dev := model.RefDevice(out.Peer); dev != "tor1" && dev != "tor2" {
			t.Errorf("interface %s homed on %s, want a local switch", out.Interface, dev)
		}
	}
}

// TestMixedRackSaturatedFallsThrough verifies that fully-consumed local
// switches contribute nothing and allocation falls through to the
// network rack.
func TestMixedRackSaturatedFallsThrough(t *testing.T) {
	s := inventory.NewMemoryStore()
	ctx := context.Background()
	seedRack(t, s, "rack-c1", "pod1", "row3", model.RackKindCompute, model.DeploymentMixed)
	seedRack(t, s, "rack-net", "pod1", "row3", model.RackKindNetwork, "")
	seedDevice(t, s, "tor1", "rack-c1", model.RoleToR)
	seedDevice(t, s, "tor2", "rack-c1", model.RoleToR)
	// Local switch ports exist but are already in service.
	for _, dev := range []string{"tor1", "tor2"} {
		if err := s.AddInterface(ctx, model.Interface{
			Name: "swp0", Device: dev,
			Role: model.InterfaceDownlink, Speed: model.Speed25G,
			Status: model.StatusActive,
		}); err != nil {
			t.Fatalf("AddInterface(%s): %v", dev, err)
		}
	}
	seedDevice(t, s, "leaf1", "rack-net", model.RoleLeaf)
	seedDevice(t, s, "leaf2", "rack-net", model.RoleLeaf)
	seedPorts(t, s, "leaf1", "swp", 4, model.InterfaceDownlink, model.Speed25G)
	seedPorts(t, s, "leaf2", "swp", 4, model.InterfaceDownlink, model.Speed25G)
	seedDevice(t, s, "srv1", "rack-c1", model.RoleServer)
	seedPorts(t, s, "srv1", "eth", 2, model.InterfaceUplink, model.Speed25G)

	res, err := New(s, nil).Connect(ctx, ConnectRequest{Device: "srv1"})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if res.Scope != "network-rack:pod1/row3" {
		t.Fatalf("scope = %q, want network-rack fall-through", res.Scope)
	}
	if len(res.Connected) != 2 {
		t.Fatalf("connected=%d, want 2 (failed: %+v)", len(res.Connected), res.Failed)
	}
}

// TestMixedSpeedGroupsPlanIndependently verifies per-rate isolation:
// 25G and 100G uplinks each reach their own dual-homed switch pair.
func TestMixedSpeedGroupsPlanIndependently(t *testing.T) {
	s := torRackTopology(t)
	// Extend the rack: two 100G uplinks and 100G capacity on both tors.
	for _, dev := range []string{"tor1", "tor2"} {
		seedPorts(t, s, dev, "qsfp", 2, model.InterfaceDownlink, model.Speed100G)
	}
	seedPorts(t, s, "srv1", "hs", 2, model.InterfaceUplink, model.Speed100G)

	res, err := New(s, nil).Connect(context.Background(), ConnectRequest{Device: "srv1"})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if len(res.Connected) != 6 {
		t.Fatalf("connected=%d, want 6 (failed: %+v)", len(res.Connected), res.Failed)
	}
	for _, out := range res.Connected {
		_, peerName, err := model.SplitRef(out.Peer)
		if err != nil {
			t.Fatalf("malformed peer ref %q", out.Peer)
		}
		serverIs100 := strings.HasPrefix(out.Interface, "srv1/hs")
		peerIs100 := strings.HasPrefix(peerName, "qsfp")
		if serverIs100 != peerIs100 {
			t.Errorf("speed mismatch: %s cabled to %s", out.Interface, out.Peer)
		}
	}
}

// TestInsufficientRedundancy verifies that a single reachable switch
// fails the group rather than producing a single-homed plan.
func TestInsufficientRedundancy(t *testing.T) {
	s := inventory.NewMemoryStore()
	seedRack(t, s, "rack-a1", "pod1", "row1", model.RackKindCompute, model.DeploymentToR)
	seedDevice(t, s, "tor1", "rack-a1", model.RoleToR)
	seedPorts(t, s, "tor1", "swp", 8, model.InterfaceDownlink, model.Speed25G)
	seedDevice(t, s, "srv1", "rack-a1", model.RoleServer)
	seedPorts(t, s, "srv1", "eth", 4, model.InterfaceUplink, model.Speed25G)

	res, err := New(s, nil).Connect(context.Background(), ConnectRequest{Device: "srv1"})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if len(res.Connected) != 0 {
		t.Fatalf("expected no cables, got %d connected", len(res.Connected))
	}
	if len(res.Failed) != 4 {
		t.Fatalf("failed=%d, want 4", len(res.Failed))
	}
	for _, out := range res.Failed {
		if !strings.Contains(out.Reason, ErrInsufficientRedundancy.Error()) {
			t.Errorf("interface %s: reason %q does not name the redundancy shortfall", out.Interface, out.Reason)
		}
	}
	if got := len(s.Cables()); got != 0 {
		t.Fatalf("store holds %d cables, want 0", got)
	}
}

// TestExistingPeerCountsTowardRedundancy verifies resumption when one
// switch saturates: a device already cabled to tor1 may plan its
// remaining port against tor2 alone.
func TestExistingPeerCountsTowardRedundancy(t *testing.T) {
	s := inventory.NewMemoryStore()
	ctx := context.Background()
	seedRack(t, s, "rack-a1", "pod1", "row1", model.RackKindCompute, model.DeploymentToR)
	seedDevice(t, s, "tor1", "rack-a1", model.RoleToR)
	seedDevice(t, s, "tor2", "rack-a1", model.RoleToR)
	seedPorts(t, s, "tor1", "swp", 1, model.InterfaceDownlink, model.Speed25G)
	seedPorts(t, s, "tor2", "swp", 1, model.InterfaceDownlink, model.Speed25G)
	seedDevice(t, s, "srv1", "rack-a1", model.RoleServer)
	seedPorts(t, s, "srv1", "eth", 2, model.InterfaceUplink, model.Speed25G)

	if _, err := s.CreateCables(ctx, []inventory.CableRequest{
		{EndpointA: "srv1/eth0", EndpointB: "tor1/swp0"},
	}); err != nil {
		t.Fatalf("pre-seed cable: %v", err)
	}

	res, err := New(s, nil).Connect(ctx, ConnectRequest{Device: "srv1"})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if len(res.Connected) != 1 || len(res.Failed) != 0 {
		t.Fatalf("connected=%d failed=%+v, want exactly the remaining pair", len(res.Connected), res.Failed)
	}
	if peer := model.RefDevice(res.Connected[0].Peer); peer != "tor2" {
		t.Fatalf("remaining pair homed on %s, want tor2", peer)
	}
}

// TestRedundancyCreditStaysWithinSpeedGroup verifies that committed
// cabling at one rate never satisfies the dual-homing floor at
// another: a device already dual-homed at 100G must still refuse a
// single-switch 25G plan.
func TestRedundancyCreditStaysWithinSpeedGroup(t *testing.T) {
	s := inventory.NewMemoryStore()
	ctx := context.Background()
	seedRack(t, s, "rack-a1", "pod1", "row1", model.RackKindCompute, model.DeploymentToR)
	seedDevice(t, s, "tor1", "rack-a1", model.RoleToR)
	seedDevice(t, s, "tor2", "rack-a1", model.RoleToR)
	seedDevice(t, s, "tor3", "rack-a1", model.RoleToR)
	seedPorts(t, s, "tor1", "qsfp", 1, model.InterfaceDownlink, model.Speed100G)
	seedPorts(t, s, "tor2", "qsfp", 1, model.InterfaceDownlink, model.Speed100G)
	seedPorts(t, s, "tor3", "swp", 2, model.InterfaceDownlink, model.Speed25G)
	seedDevice(t, s, "srv1", "rack-a1", model.RoleServer)
	seedPorts(t, s, "srv1", "hs", 2, model.InterfaceUplink, model.Speed100G)
	seedPorts(t, s, "srv1", "eth", 2, model.InterfaceUplink, model.Speed25G)

	pre, err := s.CreateCables(ctx, []inventory.CableRequest{
		{EndpointA: "srv1/hs0", EndpointB: "tor1/qsfp0"},
		{EndpointA: "srv1/hs1", EndpointB: "tor2/qsfp0"},
	})
	if err != nil {
		t.Fatalf("pre-seed cables: %v", err)
	}
	for i, r := range pre {
		if r.Outcome != inventory.OutcomeCreated {
			t.Fatalf("pre-seed cable %d: outcome %s (%s)", i, r.Outcome, r.Reason)
		}
	}

	res, err := New(s, nil).Connect(ctx, ConnectRequest{Device: "srv1"})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if len(res.Connected) != 0 {
		t.Fatalf("expected no new cables, got %d connected (%+v)", len(res.Connected), res.Connected)
	}
	if len(res.Failed) != 2 {
		t.Fatalf("failed=%d, want both 25G uplinks (%+v)", len(res.Failed), res.Failed)
	}
	for _, out := range res.Failed {
		if !strings.Contains(out.Reason, ErrInsufficientRedundancy.Error()) {
			t.Errorf("interface %s: reason %q does not name the redundancy shortfall", out.Interface, out.Reason)
		}
	}
	if got := len(s.Cables()); got != 2 {
		t.Fatalf("store holds %d cables, want the 2 pre-seeded", got)
	}
}

// TestRowFallbackScopedToExpectedRole verifies that a ToR rack's row
// fallback admits only top-of-rack peers, even when the same row's
// network rack hosts leafs that sort first lexically.
func TestRowFallbackScopedToExpectedRole(t *testing.T) {
	s := inventory.NewMemoryStore()
	seedRack(t, s, "rack-a1", "pod1", "row1", model.RackKindCompute, model.DeploymentToR)
	seedRack(t, s, "rack-a2", "pod1", "row1", model.RackKindCompute, model.DeploymentToR)
	seedRack(t, s, "rack-net", "pod1", "row1", model.RackKindNetwork, "")
	seedDevice(t, s, "tor1", "rack-a2", model.RoleToR)
	seedDevice(t, s, "tor2", "rack-a2", model.RoleToR)
	seedPorts(t, s, "tor1", "swp", 2, model.InterfaceDownlink, model.Speed25G)
	seedPorts(t, s, "tor2", "swp", 2, model.InterfaceDownlink, model.Speed25G)
	seedDevice(t, s, "leaf1", "rack-net", model.RoleLeaf)
	seedDevice(t, s, "leaf2", "rack-net", model.RoleLeaf)
	seedPorts(t, s, "leaf1", "swp", 4, model.InterfaceDownlink, model.Speed25G)
	seedPorts(t, s, "leaf2", "swp", 4, model.InterfaceDownlink, model.Speed25G)
	seedDevice(t, s, "srv1", "rack-a1", model.RoleServer)
	seedPorts(t, s, "srv1", "eth", 2, model.InterfaceUplink, model.Speed25G)

	res, err := New(s, nil).Connect(context.Background(), ConnectRequest{Device: "srv1"})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if res.Scope != "row:pod1/row1" {
		t.Fatalf("scope = %q, want the row fallback", res.Scope)
	}
	if len(res.Connected) != 2 {
		t.Fatalf("connected=%d, want 2 (failed: %+v)", len(res.Connected), res.Failed)
	}
	for _, out := range res.Connected {
		if dev := model.RefDevice(out.Peer); dev != "tor1" && dev != "tor2" {
			t.Errorf("interface %s homed on %s, want a top-of-rack peer", out.Interface, dev)
		}
	}
}

// TestNoEligibleSwitchScope verifies that an empty scope chain fails
// every interface with the scope error rather than erroring the call.
func TestNoEligibleSwitchScope(t *testing.T) {
	s := inventory.NewMemoryStore()
	seedRack(t, s, "rack-a1", "pod1", "row1", model.RackKindCompute, model.DeploymentToR)
	seedDevice(t, s, "srv1", "rack-a1", model.RoleServer)
	seedPorts(t, s, "srv1", "eth", 2, model.InterfaceUplink, model.Speed25G)

	res, err := New(s, nil).Connect(context.Background(), ConnectRequest{Device: "srv1"})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if len(res.Failed) != 2 {
		t.Fatalf("failed=%d, want 2", len(res.Failed))
	}
	for _, out := range res.Failed {
		if !strings.Contains(out.Reason, ErrNoEligibleSwitchScope.Error()) {
			t.Errorf("interface %s: reason %q", out.Interface, out.Reason)
		}
	}
}

// TestMissingDeploymentFailsInterfaces covers racks whose pod policy
// was never set.
func TestMissingDeploymentFailsInterfaces(t *testing.T) {
	s := inventory.NewMemoryStore()
	seedRack(t, s, "rack-a1", "pod1", "row1", model.RackKindCompute, "")
	seedDevice(t, s, "srv1", "rack-a1", model.RoleServer)
	seedPorts(t, s, "srv1", "eth", 2, model.InterfaceUplink, model.Speed25G)

	res, err := New(s, nil).Connect(context.Background(), ConnectRequest{Device: "srv1"})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if len(res.Failed) != 2 {
		t.Fatalf("failed=%d, want 2", len(res.Failed))
	}
	if !strings.Contains(res.Failed[0].Reason, ErrNoDeployment.Error()) {
		t.Fatalf("reason %q does not name the missing classification", res.Failed[0].Reason)
	}
}

// TestPartialCapacityWarns verifies the shortfall path: capacity for
// two of four uplinks yields two cables, two recoverable failures, and
// a warning.
func TestPartialCapacityWarns(t *testing.T) {
	s := inventory.NewMemoryStore()
	seedRack(t, s, "rack-a1", "pod1", "row1", model.RackKindCompute, model.DeploymentToR)
	seedDevice(t, s, "tor1", "rack-a1", model.RoleToR)
	seedDevice(t, s, "tor2", "rack-a1", model.RoleToR)
	seedPorts(t, s, "tor1", "swp", 1, model.InterfaceDownlink, model.Speed25G)
	seedPorts(t, s, "tor2", "swp", 1, model.InterfaceDownlink, model.Speed25G)
	seedDevice(t, s, "srv1", "rack-a1", model.RoleServer)
	seedPorts(t, s, "srv1", "eth", 4, model.InterfaceUplink, model.Speed25G)

	res, err := New(s, nil).Connect(context.Background(), ConnectRequest{Device: "srv1"})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if len(res.Connected) != 2 || len(res.Failed) != 2 {
		t.Fatalf("connected=%d failed=%d, want 2/2", len(res.Connected), len(res.Failed))
	}
	for _, out := range res.Failed {
		if !out.Recoverable {
			t.Errorf("interface %s: capacity shortfall should be recoverable", out.Interface)
		}
	}
	if len(res.Warnings) == 0 {
		t.Fatalf("expected a partial-capacity warning")
	}
	if res.Outcome() != "partial" {
		t.Fatalf("outcome = %q, want partial", res.Outcome())
	}
}

// TestDryRunCommitsNothing verifies Plan reports the would-be pairs
// without touching the store.
func TestDryRunCommitsNothing(t *testing.T) {
	s := torRackTopology(t)
	p := New(s, nil)
	ctx := context.Background()

	res, err := p.Plan(ctx, ConnectRequest{Device: "srv1"})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if !res.DryRun {
		t.Fatalf("expected DryRun to be set")
	}
	if len(res.Connected) != 4 {
		t.Fatalf("planned=%d, want 4", len(res.Connected))
	}
	for _, out := range res.Connected {
		if out.CableID != "" {
			t.Errorf("dry run assigned cable ID %s to %s", out.CableID, out.Interface)
		}
	}
	if got := len(s.Cables()); got != 0 {
		t.Fatalf("store holds %d cables after dry run, want 0", got)
	}

	// A second dry run must produce the identical plan.
	again, err := p.Plan(ctx, ConnectRequest{Device: "srv1"})
	if err != nil {
		t.Fatalf("second Plan: %v", err)
	}
	for i := range res.Connected {
		if res.Connected[i].Peer != again.Connected[i].Peer {
			t.Errorf("plan drifted between dry runs: %s vs %s",
				res.Connected[i].Peer, again.Connected[i].Peer)
		}
	}
}

// TestReservedInterfaceExcluded verifies that reserved ports are left
// alone but surfaced as warnings.
func TestReservedInterfaceExcluded(t *testing.T) {
	s := torRackTopology(t)
	ctx := context.Background()
	if err := s.AddInterface(ctx, model.Interface{
		Name: "eth9", Device: "srv1",
		Role: model.InterfaceUplink, Speed: model.Speed25G,
		Status: model.StatusReserved,
	}); err != nil {
		t.Fatalf("AddInterface: %v", err)
	}

	res, err := New(s, nil).Connect(ctx, ConnectRequest{Device: "srv1"})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if len(res.Connected) != 4 {
		t.Fatalf("connected=%d, want 4", len(res.Connected))
	}
	found := false
	for _, w := range res.Warnings {
		if strings.Contains(w, "srv1/eth9") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a warning for the reserved interface, got %v", res.Warnings)
	}
}

// TestConnectUnknownDevice verifies lookup failures surface as errors.
func TestConnectUnknownDevice(t *testing.T) {
	s := inventory.NewMemoryStore()
	_, err := New(s, nil).Connect(context.Background(), ConnectRequest{Device: "ghost"})
	if err == nil {
		t.Fatalf("expected an error for an unknown device")
	}
	if !strings.Contains(err.Error(), "not found") {
		t.Fatalf("error %q does not indicate a missing device", err)
	}
}

// TestConnectBatchIsolatesFailures verifies that one bad device never
// aborts its siblings.
func TestConnectBatchIsolatesFailures(t *testing.T) {
	s := torRackTopology(t)
	batch := New(s, nil).ConnectBatch(context.Background(), "ws-1", []string{"srv1", "ghost"})
	if len(batch.Devices) != 1 {
		t.Fatalf("devices=%d, want 1", len(batch.Devices))
	}
	if batch.Devices[0].Device != "srv1" || len(batch.Devices[0].Connected) != 4 {
		t.Fatalf("srv1 result unexpected: %+v", batch.Devices[0])
	}
	if _, ok := batch.Errors["ghost"]; !ok {
		t.Fatalf("expected a batch error for ghost, got %v", batch.Errors)
	}
}

// TestWorkspaceCarriedOntoCables verifies the workspace tag flows from
// the request through to the committed cables.
func TestWorkspaceCarriedOntoCables(t *testing.T) {
	s := torRackTopology(t)
	_, err := New(s, nil).Connect(context.Background(), ConnectRequest{Device: "srv1", Workspace: "ws-42"})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	for _, c := range s.Cables() {
		if c.Workspace != "ws-42" {
			t.Errorf("cable %s carries workspace %q, want ws-42", c.ID, c.Workspace)
		}
	}
}
