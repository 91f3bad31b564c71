package core

import (
	"sort"

	"github.com/signalsfoundry/fabric-planner/model"
)

// cableIndex is a lookup view over committed cables, keyed both by
// canonical pair fingerprint and by individual endpoint. It is what
// lets repeated invocations converge: satisfied pairs are dropped,
// consumed endpoints are excluded from planning, and fully-cabled
// devices short-circuit to a no-op.
type cableIndex struct {
	byFingerprint map[string]model.Cable
	byEndpoint    map[string]model.Cable
}

func newCableIndex(cables []model.Cable) *cableIndex {
	ix := &cableIndex{
		byFingerprint: make(map[string]model.Cable, len(cables)),
		byEndpoint:    make(map[string]model.Cable, 2*len(cables)),
	}
	for _, c := range cables {
		fp := c.Fingerprint
		if fp == "" {
			fp = model.PairFingerprint(c.EndpointA, c.EndpointB)
		}
		ix.byFingerprint[fp] = c
		ix.byEndpoint[c.EndpointA] = c
		ix.byEndpoint[c.EndpointB] = c
	}
	return ix
}

// satisfied reports whether a cable with exactly this fingerprint is
// already committed.
func (ix *cableIndex) satisfied(fp string) (model.Cable, bool) {
	c, ok := ix.byFingerprint[fp]
	return c, ok
}

// used reports whether the endpoint already terminates any committed
// cable, regardless of its far end.
func (ix *cableIndex) used(ref string) bool {
	_, ok := ix.byEndpoint[ref]
	return ok
}

// cableFor returns the committed cable touching ref, if any.
func (ix *cableIndex) cableFor(ref string) (model.Cable, bool) {
	c, ok := ix.byEndpoint[ref]
	return c, ok
}

// peersBySpeed maps each signaling rate to the distinct far-end
// devices already reached by committed cables on the given interfaces
// (sorted), plus the number of such cables per rate. Redundancy credit
// never crosses rate groups: a device dual-homed at 100G still owes
// the full floor at 25G.
func peersBySpeed(ifaces []model.Interface, ix *cableIndex) (map[model.Speed][]string, map[model.Speed]int) {
	sets := make(map[model.Speed]map[string]bool)
	cables := make(map[model.Speed]int)
	for _, intf := range ifaces {
		ref := intf.Ref()
		c, ok := ix.cableFor(ref)
		if !ok {
			continue
		}
		cables[intf.Speed]++
		far := model.RefDevice(c.OtherEnd(ref))
		if far == "" {
			continue
		}
		if sets[intf.Speed] == nil {
			sets[intf.Speed] = make(map[string]bool)
		}
		sets[intf.Speed][far] = true
	}

	peers := make(map[model.Speed][]string, len(sets))
	for speed, set := range sets {
		names := make([]string, 0, len(set))
		for p := range set {
			names = append(names, p)
		}
		sort.Strings(names)
		peers[speed] = names
	}
	return peers, cables
}

// splitSatisfied separates pairs whose fingerprint already exists in
// the committed set from pairs that still need materializing.
func splitSatisfied(pairs []PlannedPair, ix *cableIndex) (fresh, satisfied []PlannedPair) {
	for _, pair := range pairs {
		if _, ok := ix.satisfied(pair.Fingerprint); ok {
			satisfied = append(satisfied, pair)
			continue
		}
		fresh = append(fresh, pair)
	}
	return fresh, satisfied
}
