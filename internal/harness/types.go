package harness

// TraceEvent records one executed step.
type TraceEvent struct {
	Seq    int64          `json:"seq"`
	Op     string         `json:"op"`
	Args   map[string]any `json:"args,omitempty"`
	Result any            `json:"result,omitempty"`
	// Error is the integrity code of a failed query, or "error".
	Error string `json:"error,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expectation and assertion held.
	Pass bool `json:"pass"`

	// Trace contains every step in execution order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains expectation and assertion failures.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends an event with the next sequence number.
func (r *Result) AddTrace(op string, args map[string]any, result any, errCode string) TraceEvent {
	ev := TraceEvent{
		Seq:    int64(len(r.Trace) + 1),
		Op:     op,
		Args:   args,
		Result: result,
		Error:  errCode,
	}
	r.Trace = append(r.Trace, ev)
	return ev
}
