package core

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the planner's failure taxonomy. Group-level
// failures (ErrInsufficientRedundancy, ErrNoEligibleSwitchScope for a
// group's rate) never abort sibling groups; validation failures abort
// the whole plan before anything commits.
var (
	// ErrNoEligibleSwitchScope: no fallback scope yielded a single
	// eligible switch.
	ErrNoEligibleSwitchScope = errors.New("no eligible switch scope")

	// ErrInsufficientRedundancy: fewer than the minimum number of
	// distinct peer switches are reachable, so a dual-homed plan is
	// impossible. Single-homed plans are never produced instead.
	ErrInsufficientRedundancy = errors.New("insufficient switch redundancy")

	// ErrPlanValidation: the assembled plan violated a global
	// invariant. Nothing commits.
	ErrPlanValidation = errors.New("plan validation failed")

	// ErrNoDeployment: the target's rack carries no deployment
	// classification, so no scope chain can be derived.
	ErrNoDeployment = errors.New("rack has no deployment classification")
)

// ValidationError reports which interfaces broke which plan invariant.
type ValidationError struct {
	Reason     string
	Interfaces []string
}

func (e *ValidationError) Error() string {
	if len(e.Interfaces) == 0 {
		return fmt.Sprintf("%v: %s", ErrPlanValidation, e.Reason)
	}
	return fmt.Sprintf("%v: %s (%s)", ErrPlanValidation, e.Reason, strings.Join(e.Interfaces, ", "))
}

func (e *ValidationError) Unwrap() error { return ErrPlanValidation }
