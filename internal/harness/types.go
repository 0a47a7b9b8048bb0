package harness

// TraceEvent is one observable outcome of a scenario step.
type TraceEvent struct {
	Step    int      `json:"step"`
	Op      string   `json:"op"`
	Tag     string   `json:"tag,omitempty"`
	Value   any      `json:"value,omitempty"`
	Fault   *bool    `json:"fault,omitempty"`
	Origin  string   `json:"origin,omitempty"`
	Status  string   `json:"status,omitempty"`
	Active  []bool   `json:"active,omitempty"`
	Latched []string `json:"latched,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// FinalState summarises the engine after the last step.
type FinalState struct {
	Status      string          `json:"status"`
	ActiveRungs int             `json:"active_rungs"`
	FaultCount  int             `json:"fault_count"`
	Outputs     map[string]bool `json:"outputs"`
	Banner      string          `json:"banner,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every step and assertion met its expectation.
	Pass bool `json:"pass"`

	// Trace holds one event per step, or per scan for scan steps.
	Trace []TraceEvent `json:"trace"`

	Final FinalState `json:"final"`

	// Errors contains validation error messages. Empty if Pass is true.
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

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

func (r *Result) add(ev TraceEvent) {
	r.Trace = append(r.Trace, ev)
}
