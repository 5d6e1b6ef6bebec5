package model

import (
	"fmt"
	"strings"
)

// OutcomeStatus classifies one executed action.
type OutcomeStatus string

const (
	StatusOK    OutcomeStatus = "ok"
	StatusSkip  OutcomeStatus = "skip"
	StatusError OutcomeStatus = "error"
)

// Outcome is one ledger record.
type Outcome struct {
	Status OutcomeStatus `yaml:"status"           json:"status"`
	Action string        `yaml:"action"           json:"action"`
	Reason string        `yaml:"reason,omitempty" json:"reason,omitempty"`
}

// String renders the record as "ok:<action>", "skip:<action>" or
// "error:<action> reason=<cause>".
func (o Outcome) String() string {
	if o.Status == StatusError {
		return fmt.Sprintf("%s:%s reason=%s", o.Status, o.Action, o.Reason)
	}
	return fmt.Sprintf("%s:%s", o.Status, o.Action)
}

// Ledger is the ordered outcome record of executed actions.
type Ledger []Outcome

// Lines renders every record in execution order.
func (l Ledger) Lines() []string {
	out := make([]string, len(l))
	for i, o := range l {
		out[i] = o.String()
	}
	return out
}

// Failed reports whether any record is an error.
func (l Ledger) Failed() bool {
	for _, o := range l {
		if o.Status == StatusError {
			return true
		}
	}
	return false
}

// RecentHistory renders the last n lines most recent first, one per line.
func RecentHistory(lines []string, n int) string {
	if n <= 0 || len(lines) == 0 {
		return ""
	}
	start := len(lines) - n
	if start < 0 {
		start = 0
	}
	tail := lines[start:]
	rev := make([]string, len(tail))
	for i, line := range tail {
		rev[len(tail)-1-i] = line
	}
	return strings.Join(rev, "\n")
}
