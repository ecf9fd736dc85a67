package types

// Well-known subtask names.
const (
	TaskHeader    = "header_extraction"
	TaskLineItems = "line_items"
)

// Capabilities a model may advertise in the portfolio.
const (
	CapVision = "vision"
	CapJSON   = "json"
)

// Features is the feature context of one subtask. It is built once per
// document and copied per subtask with the task overridden.
type Features struct {
	Task                 string         `json:"task"`
	PageCount            int            `json:"page_count"`
	DocType              string         `json:"doc_type"`
	Budget               string         `json:"budget"`
	Offline              bool           `json:"offline"`
	RequiredCapabilities []string       `json:"required_capabilities,omitempty"`
	Extra                map[string]any `json:"extra,omitempty"`
}

// WithTask returns a copy of f for the given task.
func (f Features) WithTask(task string) Features {
	out := f
	out.Task = task
	if f.RequiredCapabilities != nil {
		out.RequiredCapabilities = append([]string(nil), f.RequiredCapabilities...)
	}
	if f.Extra != nil {
		out.Extra = make(map[string]any, len(f.Extra))
		for k, v := range f.Extra {
			out.Extra[k] = v
		}
	}
	return out
}

// Map flattens the features into the evaluation context used by routing
// conditions. Extra keys never shadow the named features. Empty string
// features are omitted so conditions on them evaluate as missing.
func (f Features) Map() map[string]any {
	m := make(map[string]any, 6+len(f.Extra))
	for k, v := range f.Extra {
		m[k] = v
	}
	if f.Task != "" {
		m["task"] = f.Task
	}
	m["page_count"] = f.PageCount
	if f.DocType != "" {
		m["doc_type"] = f.DocType
	}
	if f.Budget != "" {
		m["budget"] = f.Budget
	}
	m["offline"] = f.Offline
	caps := make([]any, len(f.RequiredCapabilities))
	for i, c := range f.RequiredCapabilities {
		caps[i] = c
	}
	m["required_capabilities"] = caps
	return m
}
