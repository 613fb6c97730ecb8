package bootstrap

import (
	"context"
	"fmt"
	"time"
)

// DefaultStepTimeout bounds each step.
const DefaultStepTimeout = 60 * time.Second

// Step outcomes.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// Step is one startup check.
type Step struct {
	Name string
	Run  func(ctx context.Context) error
}

// StepResult is the outcome of one Step.
type StepResult struct {
	Name     string        `json:"name"`
	Status   string        `json:"status"`
	Err      error         `json:"-"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Result collects the outcomes of a Run.
type Result struct {
	Steps    []StepResult `json:"steps"`
	Started  time.Time    `json:"started"`
	Finished time.Time    `json:"finished"`
}

// OK reports whether every step succeeded.
func (r *Result) OK() bool {
	for _, s := range r.Steps {
		if s.Status != StatusOK {
			return false
		}
	}
	return true
}

// Failed returns the failed steps.
func (r *Result) Failed() []StepResult {
	var out []StepResult
	for _, s := range r.Steps {
		if s.Status != StatusOK {
			out = append(out, s)
		}
	}
	return out
}

// Runner executes steps in order.
type Runner struct {
	Steps       []Step
	StepTimeout time.Duration
	// OnStep is called after each step, e.g. to record metrics.
	OnStep func(ctx context.Context, r StepResult)
}

// Run executes every step, whatever earlier steps returned. A cancelled
// ctx marks the remaining steps failed without running them.
func (r *Runner) Run(ctx context.Context) *Result {
	timeout := r.StepTimeout
	if timeout <= 0 {
		timeout = DefaultStepTimeout
	}

	res := &Result{Started: time.Now()}
	for _, step := range r.Steps {
		var sr StepResult
		if err := ctx.Err(); err != nil {
			sr = StepResult{Name: step.Name, Status: StatusFailed, Err: err}
		} else {
			sr = runStep(ctx, step, timeout)
		}
		if sr.Err != nil {
			sr.Error = sr.Err.Error()
		}
		res.Steps = append(res.Steps, sr)
		if r.OnStep != nil {
			r.OnStep(ctx, sr)
		}
	}
	res.Finished = time.Now()
	return res
}

func runStep(ctx context.Context, step Step, timeout time.Duration) (sr StepResult) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	sr = StepResult{Name: step.Name, Status: StatusOK}
	defer func() {
		if p := recover(); p != nil {
			sr.Err = fmt.Errorf("panic: %v", p)
		}
		if sr.Err != nil {
			sr.Status = StatusFailed
		}
		sr.Duration = time.Since(start)
	}()

	sr.Err = step.Run(ctx)
	return sr
}
