package core

// InterfaceOutcome is the per-server-interface verdict of one
// invocation. Operators see exactly which ports got cabled, which were
// already done, and which failed with why.
type InterfaceOutcome struct {
	Interface   string `json:"interface"`
	Peer        string `json:"peer,omitempty"`
	CableID     string `json:"cable_id,omitempty"`
	Reason      string `json:"reason,omitempty"`
	Recoverable bool   `json:"recoverable,omitempty"`
}

// DeviceResult is the structured outcome of planning one device.
// Idempotency-induced no-ops are successes, not errors: a fully
// connected device yields NoOp with everything under
// skipped_already_connected.
type DeviceResult struct {
	Device    string `json:"device"`
	Workspace string `json:"workspace,omitempty"`
	Scope     string `json:"scope,omitempty"`
	DryRun    bool   `json:"dry_run,omitempty"`
	NoOp      bool   `json:"no_op,omitempty"`

	Connected        []InterfaceOutcome `json:"connected"`
	AlreadyConnected []InterfaceOutcome `json:"skipped_already_connected"`
	Failed           []InterfaceOutcome `json:"failed"`

	// Warnings carries non-fatal conditions such as a capacity
	// shortfall (PartialCapacity): the plan proceeded with the subset
	// that fit.
	Warnings []string `json:"warnings,omitempty"`
}

func newDeviceResult(device, workspace string) *DeviceResult {
	return &DeviceResult{
		Device:           device,
		Workspace:        workspace,
		Connected:        []InterfaceOutcome{},
		AlreadyConnected: []InterfaceOutcome{},
		Failed:           []InterfaceOutcome{},
	}
}

// Outcome classifies the invocation for metrics and logs.
func (r *DeviceResult) Outcome() string {
	switch {
	case r.NoOp:
		return "noop"
	case len(r.Failed) > 0 && len(r.Connected) == 0:
		return "failed"
	case len(r.Failed) > 0:
		return "partial"
	default:
		return "ok"
	}
}

// BatchResult aggregates per-device results for a scoped batch.
// Device-level failures are reported alongside the successes; they
// never abort the rest of the batch.
type BatchResult struct {
	Devices []*DeviceResult   `json:"devices"`
	Errors  map[string]string `json:"errors,omitempty"`
}
