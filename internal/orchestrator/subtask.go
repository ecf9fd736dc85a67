package orchestrator

import (
	"fmt"

	"github.com/af-corp/docroute/internal/types"
)

// State is the terminal state of one subtask.
type State string

const (
	// StateRouted means a backend answered with a usable payload.
	StateRouted State = "routed"
	// StateDegraded means a fallback (interim or local) produced the fields.
	StateDegraded State = "degraded"
	// StateFailed means neither the backend nor a fallback produced anything.
	StateFailed State = "failed"
)

// Fallback sources recorded on degraded subtasks.
const (
	SourceInterim = "interim"
	SourceLocal   = "local"
)

// Subtask records how one header or line-items subtask ended.
type Subtask struct {
	Task     string `json:"task"`
	Page     int    `json:"page"`
	State    State  `json:"state"`
	Source   string `json:"source,omitempty"`
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`
	Attempts int    `json:"attempts"`
	Reason   string `json:"reason,omitempty"`
}

// Label is the step trace entry for s.
func (s Subtask) Label() string {
	prefix := "header"
	if s.Task == types.TaskLineItems {
		prefix = fmt.Sprintf("line_items:p%d", s.Page)
	}
	switch s.State {
	case StateRouted:
		return fmt.Sprintf("%s:routed:%s/%s", prefix, s.Provider, s.Model)
	case StateDegraded:
		return fmt.Sprintf("%s:degraded:%s", prefix, s.Source)
	default:
		return prefix + ":failed"
	}
}
