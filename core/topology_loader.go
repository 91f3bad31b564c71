package core

import (
	"context"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/fabric-planner/inventory"
	"github.com/signalsfoundry/fabric-planner/model"
)

// TopologySummary is a small summary of what was loaded from YAML,
// mainly useful for logging from main().
type TopologySummary struct {
	Racks      []string
	Devices    []string
	Interfaces int
	Cables     int
}

// TopologyStore is the store surface the loader needs: seeding plus
// cable creation (pre-existing cables flow through the same commit
// path as planner output so the used-once invariant holds for them
// too).
type TopologyStore interface {
	inventory.Seeder
	CreateCables(ctx context.Context, reqs []inventory.CableRequest) ([]inventory.CableResult, error)
}

// internal YAML shapes - unexported so the document format can evolve
// without leaking into the model types.
type topologyYAML struct {
	Racks   []rackYAML   `yaml:"racks"`
	Devices []deviceYAML `yaml:"devices"`
	Cables  []cableYAML  `yaml:"cables"`
}

type rackYAML struct {
	Name       string `yaml:"name"`
	Datacenter string `yaml:"datacenter"`
	Pod        string `yaml:"pod"`
	Row        string `yaml:"row"`
	Kind       string `yaml:"kind"`
	Deployment string `yaml:"deployment"`
}

type deviceYAML struct {
	Name       string          `yaml:"name"`
	Rack       string          `yaml:"rack"`
	Role       string          `yaml:"role"`
	Interfaces []interfaceYAML `yaml:"interfaces"`
}

type interfaceYAML struct {
	Name   string `yaml:"name"`
	Role   string `yaml:"role"`   // optional; defaults by device role
	Speed  string `yaml:"speed"`  // e.g. 25G, 100G
	Status string `yaml:"status"` // optional; defaults to free
	Count  int    `yaml:"count"`  // optional; expands name as a prefix
}

type cableYAML struct {
	A         string `yaml:"a"`
	B         string `yaml:"b"`
	Workspace string `yaml:"workspace"`
}

// LoadTopology reads a YAML topology document from r and seeds the
// store with its racks, devices, interfaces, and pre-existing cables.
// Interface entries with a count expand to numbered ports
// (name "eth", count 2 -> eth0, eth1).
func LoadTopology(ctx context.Context, store TopologyStore, r io.Reader) (*TopologySummary, error) {
	if store == nil {
		return nil, fmt.Errorf("LoadTopology: store is nil")
	}

	var doc topologyYAML
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("LoadTopology: decode failed: %w", err)
	}

	summary := &TopologySummary{}

	for _, ry := range doc.Racks {
		rack := model.Rack{
			Name:       ry.Name,
			Datacenter: ry.Datacenter,
			Pod:        ry.Pod,
			Row:        ry.Row,
			Kind:       model.RackKind(ry.Kind),
			Deployment: model.Deployment(ry.Deployment),
		}
		if rack.Kind == "" {
			rack.Kind = model.RackKindCompute
		}
		if err := store.AddRack(ctx, rack); err != nil {
			return nil, fmt.Errorf("rack %s: %w", ry.Name, err)
		}
		summary.Racks = append(summary.Racks, rack.Name)
	}

	for _, dy := range doc.Devices {
		dev := model.Device{
			Name: dy.Name,
			Rack: dy.Rack,
			Role: model.DeviceRole(dy.Role),
		}
		if err := store.AddDevice(ctx, dev); err != nil {
			return nil, fmt.Errorf("device %s: %w", dy.Name, err)
		}
		summary.Devices = append(summary.Devices, dev.Name)

		for _, iy := range dy.Interfaces {
			for _, name := range expandInterfaceNames(iy) {
				intf := model.Interface{
					Name:   name,
					Device: dev.Name,
					Role:   model.InterfaceRole(iy.Role),
					Speed:  model.Speed(iy.Speed),
					Status: model.InterfaceStatus(iy.Status),
				}
				if intf.Role == "" {
					if dev.Role.IsSwitch() {
						intf.Role = model.InterfaceDownlink
					} else {
						intf.Role = model.InterfaceUplink
					}
				}
				if err := store.AddInterface(ctx, intf); err != nil {
					return nil, fmt.Errorf("interface %s/%s: %w", dev.Name, name, err)
				}
				summary.Interfaces++
			}
		}
	}

	if len(doc.Cables) > 0 {
		reqs := make([]inventory.CableRequest, 0, len(doc.Cables))
		for _, cy := range doc.Cables {
			reqs = append(reqs, inventory.CableRequest{
				EndpointA: cy.A,
				EndpointB: cy.B,
				Workspace: cy.Workspace,
			})
		}
		results, err := store.CreateCables(ctx, reqs)
		if err != nil {
			return nil, fmt.Errorf("seed cables: %w", err)
		}
		for i, res := range results {
			if res.Outcome == inventory.OutcomeConflict {
				return nil, fmt.Errorf("seed cable %s--%s: %s", doc.Cables[i].A, doc.Cables[i].B, res.Reason)
			}
			summary.Cables++
		}
	}

	return summary, nil
}

func expandInterfaceNames(iy interfaceYAML) []string {
	if iy.Count <= 0 {
		return []string{iy.Name}
	}
	names := make([]string, 0, iy.Count)
	for i := 0; i < iy.Count; i++ {
		names = append(names, fmt.Sprintf("%s%d", iy.Name, i))
	}
	return names
}
