package core

import (
	"fmt"

	"github.com/signalsfoundry/fabric-planner/model"
)

// PlannedPair is one proposed server-to-switch cabling, annotated with
// its canonical fingerprint.
type PlannedPair struct {
	ServerInterface string      `json:"server_interface"`
	SwitchInterface string      `json:"switch_interface"`
	SwitchDevice    string      `json:"switch_device"`
	Speed           model.Speed `json:"speed"`
	Fingerprint     string      `json:"fingerprint"`
}

// GroupPlan is the allocator's output for one speed group. Unmatched
// holds server interface refs that could not be placed because switch
// capacity ran out; they are reported as a shortfall, never silently
// dropped.
type GroupPlan struct {
	Speed     model.Speed
	Pairs     []PlannedPair
	Unmatched []string
}

// planGroup assigns switch ports to one speed group of server
// interfaces, alternating across the candidate switches.
//
// The switches form a fixed rotation in lexical device order; the i-th
// server interface is homed on rotation[i mod n], falling forward to
// the next switch with capacity when its cursor is exhausted. Each
// switch's own cursor only ever advances through its interfaces in
// natural order, so port consumption is sequential and gap-free on
// both sides. Existing peer switches of the target at this group's
// rate count toward the redundancy minimum: a partially-cabled device
// that already reaches switch A may legitimately plan its remaining
// ports against switch B alone.
func planGroup(speed model.Speed, serverIfaces []model.Interface, switches []switchCandidates, existingPeers int, minRedundancy int) (*GroupPlan, error) {
	if len(serverIfaces) == 0 {
		return &GroupPlan{Speed: speed}, nil
	}
	if len(switches)+existingPeers < minRedundancy {
		return nil, fmt.Errorf("speed %s: %d candidate switch(es), need %d: %w",
			speed, len(switches), minRedundancy, ErrInsufficientRedundancy)
	}

	plan := &GroupPlan{Speed: speed}
	cursors := make([]int, len(switches))

	for i, serverIf := range serverIfaces {
		assigned := false
		for probe := 0; probe < len(switches); probe++ {
			slot := (i + probe) % len(switches)
			sw := switches[slot]
			if cursors[slot] >= len(sw.Interfaces) {
				continue
			}
			peerIf := sw.Interfaces[cursors[slot]]
			cursors[slot]++

			serverRef := serverIf.Ref()
			peerRef := peerIf.Ref()
			plan.Pairs = append(plan.Pairs, PlannedPair{
				ServerInterface: serverRef,
				SwitchInterface: peerRef,
				SwitchDevice:    sw.Device,
				Speed:           speed,
				Fingerprint:     model.PairFingerprint(serverRef, peerRef),
			})
			assigned = true
			break
		}
		if !assigned {
			plan.Unmatched = append(plan.Unmatched, serverIf.Ref())
		}
	}
	return plan, nil
}
