package harness

import "github.com/roach88/aclreg/internal/wire"

// TraceEvent records one processed message and the notices it produced.
type TraceEvent struct {
	Step      int           `json:"step"`
	Seq       int64         `json:"seq"`
	MessageID string        `json:"message_id"`
	Action    string        `json:"action"`
	From      string        `json:"from"`
	Outcome   string        `json:"outcome"`
	Duplicate bool          `json:"duplicate,omitempty"`
	Notices   []wire.Notice `json:"notices"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if every expect clause and assertion matched.
	Pass bool `json:"pass"`

	// Trace contains every processed message in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// StateHash is the hash of the final registry state.
	StateHash string `json:"state_hash,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends a processed message to the trace.
func (r *Result) AddTrace(event TraceEvent) {
	if event.Notices == nil {
		event.Notices = []wire.Notice{}
	}
	r.Trace = append(r.Trace, event)
}

// Notices returns every notice in the trace in emission order.
func (r *Result) Notices() []wire.Notice {
	var out []wire.Notice
	for _, e := range r.Trace {
		out = append(out, e.Notices...)
	}
	return out
}
