package model

// Cable is a committed point-to-point physical link. Endpoints are
// interface refs on distinct devices, stored in canonical (sorted)
// order so A–B and B–A describe the same cable. Cables are immutable
// once committed; only the inventory store creates them.
type Cable struct {
	ID          string `json:"id" yaml:"id"`
	EndpointA   string `json:"endpoint_a" yaml:"a"`
	EndpointB   string `json:"endpoint_b" yaml:"b"`
	Fingerprint string `json:"fingerprint" yaml:"-"`
	Workspace   string `json:"workspace,omitempty" yaml:"workspace,omitempty"`
}

// Touches reports whether the cable terminates on the given interface.
func (c Cable) Touches(ref string) bool {
	return c.EndpointA == ref || c.EndpointB == ref
}

// OtherEnd returns the far endpoint relative to ref, or "" when the
// cable does not touch ref at all.
func (c Cable) OtherEnd(ref string) string {
	switch ref {
	case c.EndpointA:
		return c.EndpointB
	case c.EndpointB:
		return c.EndpointA
	}
	return ""
}

// PairFingerprint computes the canonical, order-independent identity
// of a proposed interface pairing. The two refs are ordered before
// joining so evaluation order never changes the result.
func PairFingerprint(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "--" + b
}
