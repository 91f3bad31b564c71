package model

// RackKind distinguishes compute racks (hosting servers) from network
// racks (hosting the row's aggregation switches).
type RackKind string

const (
	RackKindCompute RackKind = "compute"
	RackKindNetwork RackKind = "network"
)

// Deployment is the pod-level connectivity policy that determines where
// a rack's servers find their upstream switches.
type Deployment string

const (
	// DeploymentToR: switches live in the same rack as the servers,
	// with the rest of the row as a fallback.
	DeploymentToR Deployment = "tor"
	// DeploymentMiddleRack: switches live only in the row's designated
	// network rack; compute racks never host switches.
	DeploymentMiddleRack Deployment = "middle_rack"
	// DeploymentMixed: same-rack switches are preferred when present,
	// falling back to the row's network rack.
	DeploymentMixed Deployment = "mixed"
)

// Rack is the leaf of the site hierarchy. The containing datacenter,
// pod, and row are carried as plain names; the planner only ever needs
// them for scope membership, not as first-class objects.
//
// Deployment is inherited from the pod: every compute rack in a pod
// shares one classification, and network racks carry none of their own.
type Rack struct {
	Name       string     `json:"name" yaml:"name"`
	Datacenter string     `json:"datacenter,omitempty" yaml:"datacenter,omitempty"`
	Pod        string     `json:"pod" yaml:"pod"`
	Row        string     `json:"row" yaml:"row"`
	Kind       RackKind   `json:"kind" yaml:"kind"`
	Deployment Deployment `json:"deployment,omitempty" yaml:"deployment,omitempty"`
}

// SameRow reports whether two racks sit in the same row of the same pod.
func (r Rack) SameRow(other Rack) bool {
	return r.Pod == other.Pod && r.Row == other.Row
}
