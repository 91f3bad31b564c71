package model

import (
	"fmt"
	"strings"
)

// InterfaceRole marks which side of a cable an interface is meant to
// be: servers expose uplinks, switches expose downlinks toward servers.
type InterfaceRole string

const (
	InterfaceUplink   InterfaceRole = "uplink"
	InterfaceDownlink InterfaceRole = "downlink"
)

// InterfaceStatus tracks whether an interface is available for new
// allocation. Anything other than free is never a candidate.
type InterfaceStatus string

const (
	StatusFree     InterfaceStatus = "free"
	StatusActive   InterfaceStatus = "active"
	StatusReserved InterfaceStatus = "reserved"
)

// Speed is a signaling rate. Cables only ever connect interfaces of
// identical speed; there is no negotiation or down-shifting.
type Speed string

const (
	Speed10G  Speed = "10G"
	Speed25G  Speed = "25G"
	Speed40G  Speed = "40G"
	Speed100G Speed = "100G"
	Speed400G Speed = "400G"
)

// Interface is a physical port on a device. Name is unique within the
// owning device; the globally unique identity is the Ref.
type Interface struct {
	Name   string          `json:"name" yaml:"name"`
	Device string          `json:"device" yaml:"device"`
	Role   InterfaceRole   `json:"role" yaml:"role"`
	Speed  Speed           `json:"speed" yaml:"speed"`
	Status InterfaceStatus `json:"status" yaml:"status"`
}

// Ref returns the interface's global identity, "device/name".
func (i Interface) Ref() string {
	return InterfaceRef(i.Device, i.Name)
}

// InterfaceRef builds the global identity for an interface.
func InterfaceRef(device, name string) string {
	return device + "/" + name
}

// SplitRef decomposes an interface ref into device and interface name.
func SplitRef(ref string) (device, name string, err error) {
	idx := strings.IndexByte(ref, '/')
	if idx <= 0 || idx == len(ref)-1 {
		return "", "", fmt.Errorf("malformed interface ref %q", ref)
	}
	return ref[:idx], ref[idx+1:], nil
}

// RefDevice returns the device component of an interface ref, or ""
// when the ref is malformed.
func RefDevice(ref string) string {
	dev, _, err := SplitRef(ref)
	if err != nil {
		return ""
	}
	return dev
}
