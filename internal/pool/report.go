package pool

import (
	"fmt"
	"strings"
)

// RelaunchState is the overall progress of relaunch rounds
type RelaunchState int

const (
	RelaunchPending RelaunchState = iota
	RelaunchInProgress
	RelaunchDone
	RelaunchDegraded
)

func (s RelaunchState) String() string {
	switch s {
	case RelaunchPending:
		return "pending"
	case RelaunchInProgress:
		return "in progress"
	case RelaunchDone:
		return "done"
	case RelaunchDegraded:
		return "degraded"
	default:
		return "unknown"
	}
}

// PortError is a failed relaunch of the server on Port
type PortError struct {
	Port int
	Err  error
}

// Report summarizes relaunch rounds
type Report struct {
	State    RelaunchState
	Rounds   int
	Total    int // Relaunches requested across rounds
	Finished int
	Failed   []PortError
}

// String renders the report for the dashboard status line
func (r Report) String() string {
	switch r.State {
	case RelaunchInProgress:
		return fmt.Sprintf("in progress (%d/%d)", r.Finished, r.Total)
	case RelaunchDegraded:
		parts := make([]string, len(r.Failed))
		for i, f := range r.Failed {
			parts[i] = fmt.Sprintf(":%d: %v", f.Port, f.Err)
		}
		return fmt.Sprintf("degraded (%s)", strings.Join(parts, "; "))
	default:
		return r.State.String()
	}
}
