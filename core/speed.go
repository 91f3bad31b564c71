package core

import (
	"sort"

	"github.com/signalsfoundry/fabric-planner/model"
)

// groupBySpeed partitions interfaces into per-signaling-rate groups,
// each ordered by natural sort of the interface name so consumption is
// sequential and reproducible (eth2 before eth10). Rates never mix: a
// device with 2x100G + 2x25G yields two independent groups, each
// planned (and dual-homed) on its own.
func groupBySpeed(ifaces []model.Interface) map[model.Speed][]model.Interface {
	groups := make(map[model.Speed][]model.Interface)
	for _, intf := range ifaces {
		groups[intf.Speed] = append(groups[intf.Speed], intf)
	}
	for speed := range groups {
		sortInterfacesNatural(groups[speed])
	}
	return groups
}

// sortedSpeeds returns the group keys in a stable order so callers can
// iterate deterministically.
func sortedSpeeds(groups map[model.Speed][]model.Interface) []model.Speed {
	speeds := make([]model.Speed, 0, len(groups))
	for s := range groups {
		speeds = append(speeds, s)
	}
	sort.Slice(speeds, func(i, j int) bool { return naturalLess(string(speeds[i]), string(speeds[j])) })
	return speeds
}

func sortInterfacesNatural(ifaces []model.Interface) {
	sort.Slice(ifaces, func(i, j int) bool {
		return naturalLess(ifaces[i].Name, ifaces[j].Name)
	})
}

// naturalLess compares strings treating digit runs as numbers, so
// "swp9" sorts before "swp10". Ties on numeric value (e.g. "01" vs
// "1") fall back to plain byte comparison for total ordering.
func naturalLess(a, b string) bool {
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		ca, cb := a[i], b[j]
		if isDigit(ca) && isDigit(cb) {
			ia, na := scanNumber(a, i)
			jb, nb := scanNumber(b, j)
			if na != nb {
				return na < nb
			}
			i, j = ia, jb
			continue
		}
		if ca != cb {
			return ca < cb
		}
		i++
		j++
	}
	if len(a)-i != len(b)-j {
		return len(a)-i < len(b)-j
	}
	return a < b
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// scanNumber consumes a digit run starting at position i and returns
// the position past the run plus the numeric value.
func scanNumber(s string, i int) (int, uint64) {
	var n uint64
	for i < len(s) && isDigit(s[i]) {
		n = n*10 + uint64(s[i]-'0')
		i++
	}
	return i, n
}
