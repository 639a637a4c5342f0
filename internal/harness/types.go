package harness

// TraceEvent is one executed statement.
type TraceEvent struct {
	// Step names the part of the scenario that issued the statement:
	// "define", "setup[i]", "steps[i]" or "assertions".
	Step     string `json:"step"`
	Seq      int64  `json:"seq"`
	SQL      string `json:"sql"`
	Bindings []any  `json:"bindings"`
	Tx       string `json:"tx"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expectation and assertion held.
	Pass bool `json:"pass"`

	// Trace contains every executed statement in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains failed expectations and assertions.
	// Empty if Pass is true.
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

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// toCanonical converts the event for canonical JSON output.
func (e TraceEvent) toCanonical() map[string]any {
	bindings := make([]any, len(e.Bindings))
	copy(bindings, e.Bindings)
	for i, b := range bindings {
		if raw, ok := b.([]byte); ok {
			bindings[i] = string(raw)
		}
	}
	return map[string]any{
		"step":     e.Step,
		"seq":      e.Seq,
		"sql":      e.SQL,
		"bindings": bindings,
		"tx":       e.Tx,
	}
}
