package model

// DeviceRole classifies a device's function in the fabric.
type DeviceRole string

const (
	RoleServer DeviceRole = "server"
	RoleToR    DeviceRole = "tor"
	RoleLeaf   DeviceRole = "leaf"
	RoleSpine  DeviceRole = "spine"
)

// IsSwitch reports whether devices of this role expose downlink
// interfaces that servers can be cabled to.
func (r DeviceRole) IsSwitch() bool {
	switch r {
	case RoleToR, RoleLeaf, RoleSpine:
		return true
	}
	return false
}

// Device is a read-only topology object owned by the inventory store.
// The planner never mutates devices; it only reads them and proposes
// cables between their interfaces.
type Device struct {
	Name string     `json:"name" yaml:"name"`
	Role DeviceRole `json:"role" yaml:"role"`
	Rack string     `json:"rack" yaml:"rack"`
}
