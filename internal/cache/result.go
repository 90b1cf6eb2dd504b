package cache

import "fmt"

// RestoreState classifies the outcome of a restore attempt
type RestoreState int

const (
	// RestoreNoCache means no cached candidate existed for the target
	RestoreNoCache RestoreState = iota

	// RestoreSucceeded means the artifact is now present locally and
	// verified
	RestoreSucceeded

	// RestoreFailed means a candidate existed but transfer or
	// validation failed
	RestoreFailed
)

// RestoreResult is the three-way outcome of a restore attempt. Failure
// carries its reason so diagnostics can distinguish "tried and failed"
// from "nothing to try".
type RestoreResult struct {
	State RestoreState
	Err   error
}

// NoCache reports that no cached candidate existed
func NoCache() RestoreResult {
	return RestoreResult{State: RestoreNoCache}
}

// Succeeded reports a verified local artifact
func Succeeded() RestoreResult {
	return RestoreResult{State: RestoreSucceeded}
}

// Failed reports a candidate that could not be restored
func Failed(err error) RestoreResult {
	return RestoreResult{State: RestoreFailed, Err: err}
}

// Restored reports whether the artifact ended up locally present
func (r RestoreResult) Restored() bool {
	return r.State == RestoreSucceeded
}

func (r RestoreResult) String() string {
	switch r.State {
	case RestoreSucceeded:
		return "succeeded"
	case RestoreFailed:
		return fmt.Sprintf("failed: %v", r.Err)
	default:
		return "no cache"
	}
}
