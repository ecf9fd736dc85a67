package orchestrator

import (
	"github.com/af-corp/docroute/internal/extract"
	"github.com/af-corp/docroute/internal/types"
)

// Result is the aggregate record produced for one document. It is not
// modified after Orchestrate returns.
type Result struct {
	Success     bool                    `json:"success"`
	Error       string                  `json:"error,omitempty"`
	Filename    string                  `json:"filename"`
	DocumentID  string                  `json:"document_id"`
	Mode        string                  `json:"mode"`
	PageCount   int                     `json:"page_count"`
	Fields      *extract.FieldSet       `json:"fields,omitempty"`
	Confidence  float64                 `json:"confidence"`
	Summary     string                  `json:"summary,omitempty"`
	Steps       []string                `json:"steps"`
	RouterTrace []types.RoutingDecision `json:"router_trace"`
	Subtasks    []Subtask               `json:"subtasks"`
	ElapsedMs   int64                   `json:"elapsed_ms"`
	Cached      bool                    `json:"cached,omitempty"`
}

func (r *Result) step(label string) {
	r.Steps = append(r.Steps, label)
}

// fail turns r into a failed result. Steps collected so far are kept.
func (r *Result) fail(err error) {
	r.Success = false
	r.Error = err.Error()
	r.Fields = nil
	r.Confidence = 0
	r.Summary = ""
}

// Subtask returns the first recorded subtask for task and page.
func (r *Result) Subtask(task string, page int) (Subtask, bool) {
	for _, s := range r.Subtasks {
		if s.Task == task && s.Page == page {
			return s, true
		}
	}
	return Subtask{}, false
}
