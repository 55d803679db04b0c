package harness

import "github.com/roach88/amlkernel/internal/model"

// Result is the outcome of one scenario run.
type Result struct {
	// Name is the scenario name.
	Name string `json:"name"`

	// Pass is true when every step behaved as expected and every
	// assertion held.
	Pass bool `json:"pass"`

	// Steps is the number of steps executed.
	Steps int `json:"steps"`

	// Trace holds one line per event delivered during the steps, rendered
	// at delivery time. Teardown events are not included.
	Trace []string `json:"trace"`

	// Errors lists step and assertion failures.
	Errors []string `json:"errors,omitempty"`

	events []model.Event
}

// NewResult creates a passing result for the named scenario.
func NewResult(name string) *Result {
	return &Result{
		Name:   name,
		Pass:   true,
		Trace:  []string{},
		Errors: []string{},
	}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Events returns the events behind Trace.
func (r *Result) Events() []model.Event {
	return r.events
}
