package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jsamuelsen/quotebot/internal/platform/logging"
	"github.com/jsamuelsen/quotebot/internal/platform/telemetry"
)

// Every state-changing use case runs as Validate → Perform → Verify → Archive → Respond.
//
// For a post that is: check the request, load the collection and select and
// publish a quote, confirm the platform returned a receipt, save the mutated
// collection, then report the result. Archive only runs after Verify, so a
// failed publish never marks a quote used.

// ExecutionStep names one stage of an Operation.
type ExecutionStep string

const (
	StepValidate ExecutionStep = "validate"
	StepPerform  ExecutionStep = "perform"
	StepVerify   ExecutionStep = "verify"
	StepArchive  ExecutionStep = "archive"
	StepRespond  ExecutionStep = "respond"
)

// ExecutionError records the step at which an operation stopped.
// It unwraps to the step's own error, so domain sentinels stay visible to errors.Is.
type ExecutionError struct {
	Operation string
	Step      ExecutionStep
	Cause     error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s: %s step: %v", e.Operation, e.Step, e.Cause)
}

func (e *ExecutionError) Unwrap() error {
	return e.Cause
}

// Executor runs operations step by step, logging and tracing each one.
type Executor struct {
	logger *slog.Logger
}

// NewExecutor returns an Executor logging to logger, or slog.Default when nil.
func NewExecutor(logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}

	return &Executor{logger: logger}
}

// Operation holds one function per step. Nil steps are skipped; a nil Verify
// passes the performed value through when P and V are the same type.
type Operation[I, P, V, O any] struct {
	Name string

	Validate func(ctx context.Context, input I) error
	Perform  func(ctx context.Context, input I) (P, error)
	Verify   func(ctx context.Context, input I, performed P) (V, error)
	Archive  func(ctx context.Context, input I, verified V) error
	Respond  func(ctx context.Context, input I, verified V) (O, error)
}

// run executes one step, wrapping its error and marking the span.
func run(ctx context.Context, logger *slog.Logger, op string, step ExecutionStep, fn func() error) error {
	trace.SpanFromContext(ctx).AddEvent(string(step))

	if err := fn(); err != nil {
		level := slog.LevelError
		if step == StepValidate || step == StepRespond {
			level = slog.LevelWarn
		}

		logger.Log(ctx, level, "step failed", slog.String("step", string(step)), slog.Any("error", err))

		return &ExecutionError{Operation: op, Step: step, Cause: err}
	}

	logger.DebugContext(ctx, "step done", slog.String("step", string(step)))

	return nil
}

// Execute runs op against input, stopping at the first failing step.
// Errors come back as *ExecutionError.
func Execute[I, P, V, O any](ctx context.Context, exec *Executor, op Operation[I, P, V, O], input I) (result O, err error) {
	logger := logging.FromContextOr(ctx, exec.logger).With(slog.String("operation", op.Name))
	start := time.Now()

	ctx, span := telemetry.StartSpan(ctx, "app."+op.Name)
	defer func() {
		if err != nil {
			if step, ok := GetExecutionStep(err); ok {
				span.SetAttributes(attribute.String("quotebot.failed_step", string(step)))
			}

			span.SetStatus(codes.Error, err.Error())
		}

		span.End()
	}()

	var (
		performed P
		verified  V
		zero      O
	)

	steps := []struct {
		step ExecutionStep
		fn   func() error
	}{
		{StepValidate, func() error {
			if op.Validate == nil {
				return nil
			}

			return op.Validate(ctx, input)
		}},
		{StepPerform, func() (err error) {
			if op.Perform != nil {
				performed, err = op.Perform(ctx, input)
			}

			return err
		}},
		{StepVerify, func() (err error) {
			if op.Verify != nil {
				verified, err = op.Verify(ctx, input, performed)
			} else if v, ok := any(performed).(V); ok {
				verified = v
			}

			return err
		}},
		{StepArchive, func() error {
			if op.Archive == nil {
				return nil
			}

			return op.Archive(ctx, input, verified)
		}},
		{StepRespond, func() (err error) {
			if op.Respond != nil {
				result, err = op.Respond(ctx, input, verified)
			}

			return err
		}},
	}

	for _, s := range steps {
		if err := run(ctx, logger, op.Name, s.step, s.fn); err != nil {
			return zero, err
		}
	}

	logger.InfoContext(ctx, "operation completed", slog.Duration("duration", time.Since(start)))

	return result, nil
}

// IsExecutionError reports whether err came out of Execute.
func IsExecutionError(err error) bool {
	var execErr *ExecutionError

	return errors.As(err, &execErr)
}

// GetExecutionStep returns the step at which err stopped an operation.
func GetExecutionStep(err error) (ExecutionStep, bool) {
	var execErr *ExecutionError
	if errors.As(err, &execErr) {
		return execErr.Step, true
	}

	return "", false
}
