package core

import (
	"fmt"

	"github.com/signalsfoundry/fabric-planner/model"
)

// validatePlan checks the global invariants of a post-filter plan
// before anything is handed to the materializer:
//
//	(a) no interface appears twice, on either side of any pair;
//	(b) each speed group's pairs, together with the target's existing
//	    cables at that same rate, reach at least minRedundancy distinct
//	    peer switches (unless the group plus its existing cabling is a
//	    single link, in which case distinctness is unattainable by
//	    construction);
//	(c) no group plans more pairs than it had candidates.
//
// Existing peers and cables are keyed by rate; credit from one speed
// group never satisfies another. Any violation fails the whole plan;
// partial commits are never attempted.
func validatePlan(groups []*GroupPlan, existingPeers map[model.Speed][]string, existingCables map[model.Speed]int, candidateCounts map[string]int, minRedundancy int) error {
	seen := make(map[string]bool)
	for _, g := range groups {
		for _, pair := range g.Pairs {
			for _, ref := range []string{pair.ServerInterface, pair.SwitchInterface} {
				if seen[ref] {
					return &ValidationError{
						Reason:     "interface assigned more than once",
						Interfaces: []string{ref},
					}
				}
				seen[ref] = true
			}
		}
	}

	for _, g := range groups {
		if len(g.Pairs) == 0 {
			continue
		}
		if limit, ok := candidateCounts[string(g.Speed)]; ok && len(g.Pairs) > limit {
			return &ValidationError{
				Reason: fmt.Sprintf("speed %s plans %d pairs against %d candidates", g.Speed, len(g.Pairs), limit),
			}
		}

		peers := make(map[string]bool)
		for _, p := range existingPeers[g.Speed] {
			peers[p] = true
		}
		for _, pair := range g.Pairs {
			peers[pair.SwitchDevice] = true
		}
		if len(g.Pairs)+existingCables[g.Speed] >= minRedundancy && len(peers) < minRedundancy {
			offenders := make([]string, 0, len(g.Pairs))
			for _, pair := range g.Pairs {
				offenders = append(offenders, pair.ServerInterface)
			}
			return &ValidationError{
				Reason:     fmt.Sprintf("speed %s resolves to a single peer switch", g.Speed),
				Interfaces: offenders,
			}
		}
	}
	return nil
}
