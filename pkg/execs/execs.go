package execs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/macropower/sopsgate/pkg/log"
)

// Executor runs a [Command] with additional arguments.
type Executor struct {
	tracer    trace.Tracer
	cmd       Command
	extraArgs []string
}

func NewExecutor(cmd Command, args ...string) Executor {
	return Executor{
		tracer:    otel.Tracer("executor"),
		cmd:       cmd,
		extraArgs: args,
	}
}

// Exec runs the command in dir and waits for it to exit. There is no timeout;
// the command only stops early if ctx is canceled.
//
// A non-zero exit returns an error wrapping [ErrCommandExecution]. The result,
// with its exit code, is still returned in that case if the command produced
// any output.
func (e Executor) Exec(ctx context.Context, dir string) (*Result, error) {
	ctx, span := e.tracer.Start(ctx, "exec", trace.WithAttributes(
		attribute.String("command", e.String()),
		attribute.String("path", dir),
	))
	defer span.End()

	if e.cmd.Command == "" {
		return nil, ErrEmptyCommand
	}

	logger := log.WithContext(ctx).With(
		slog.String("command", e.String()),
		slog.String("path", dir),
	)

	start := time.Now()

	//nolint:gosec // G204: Subprocess launched with a potential tainted input or cmd arguments.
	cmd := exec.CommandContext(ctx, e.cmd.Command, e.args()...)
	cmd.Dir = dir
	cmd.Env = e.cmd.GetEnv()

	var stdout, stderr bytes.Buffer

	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := &Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}

		span.SetAttributes(attribute.Int("exit_code", result.ExitCode))
		span.SetStatus(codes.Error, err.Error())
		logger.DebugContext(ctx, "command failed",
			slog.Duration("duration", time.Since(start)),
			slog.Int("exit_code", result.ExitCode),
			slog.Any("error", err),
		)

		if stdout.Len() > 0 || stderr.Len() > 0 {
			return result, fmt.Errorf("%w: %w", ErrCommandExecution, err)
		}

		return nil, fmt.Errorf("%w: %w", ErrCommandExecution, err)
	}

	logger.DebugContext(ctx, "command executed successfully",
		slog.Duration("duration", time.Since(start)),
	)

	return result, nil
}

func (e Executor) String() string {
	return strings.Join(append([]string{e.cmd.Command}, e.args()...), " ")
}

// args combines the command's own arguments with the executor's extra arguments.
func (e Executor) args() []string {
	return append(append([]string{}, e.cmd.Args...), e.extraArgs...)
}
