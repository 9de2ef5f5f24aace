package crosschain

import (
	"context"
	"fmt"
	"time"

	"github.com/AvaProtocol/aa-bridge/metrics"
	"github.com/AvaProtocol/aa-bridge/pkg/logger"
)

// Step is one stage of a pipeline. It reads what earlier steps left in state and adds its own output.
type Step[S any] struct {
	Name string
	Run  func(ctx context.Context, state *S) error
}

// StepError names the step that stopped a pipeline.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// RunPipeline runs steps in order and stops at the first failure, which is returned as a *StepError.
func RunPipeline[S any](ctx context.Context, state *S, steps []Step[S], lgr logger.Logger, recorder metrics.Recorder) error {
	lgr = logger.EnsureLogger(lgr)
	recorder = metrics.EnsureRecorder(recorder)

	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return &StepError{Step: step.Name, Err: err}
		}

		start := time.Now()
		lgr.Debug("step started", "step", step.Name)
		if err := step.Run(ctx, state); err != nil {
			recorder.IncStep(step.Name, "error")
			lgr.Error("step failed", "step", step.Name, "error", err, "code", GetErrorCode(err))
			return &StepError{Step: step.Name, Err: err}
		}
		recorder.IncStep(step.Name, "ok")
		lgr.Debug("step completed", "step", step.Name, "elapsed", time.Since(start).Round(time.Millisecond))
	}
	return nil
}
