// Package shell runs device bridge binaries (adb, hdc) as subprocesses
// with a shared rate limit and timeout.
package shell

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/phonepilot/api/schemas"
)

// execCommand is a seam for tests.
var execCommand = exec.CommandContext

// Runner executes one bridge binary's commands. The rate limiter keeps
// gesture injection from outpacing the device's input pipeline; a phone is
// a single exclusive action stream, never a target for bursts.
type Runner struct {
	binary  string
	limiter *rate.Limiter
	timeout time.Duration
	logger  *zap.Logger
}

// NewRunner builds a runner for the named binary (e.g. "adb").
func NewRunner(binary string, perSecond float64, timeout time.Duration, logger *zap.Logger) *Runner {
	return &Runner{
		binary:  binary,
		limiter: rate.NewLimiter(rate.Limit(perSecond), 1),
		timeout: timeout,
		logger:  logger.Named("shell"),
	}
}

// Run executes the binary with args and returns combined output. Failures
// that indicate the device itself is gone wrap schemas.ErrDeviceUnreachable.
func (r *Runner) Run(ctx context.Context, args ...string) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", err
	}

	runCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	cmd := execCommand(runCtx, r.binary, args...)
	out, err := cmd.CombinedOutput()
	output := string(out)
	if err != nil {
		r.logger.Debug("Device command failed",
			zap.String("binary", r.binary),
			zap.Strings("args", args),
			zap.String("output", strings.TrimSpace(output)),
			zap.Error(err),
		)
		return output, r.classify(err, output, args)
	}
	return output, nil
}

// RunTimeout is Run with a one-off timeout overriding the runner default.
func (r *Runner) RunTimeout(ctx context.Context, timeout time.Duration, args ...string) (string, error) {
	sub := *r
	sub.timeout = timeout
	return sub.Run(ctx, args...)
}

// Binary returns the bridge binary name.
func (r *Runner) Binary() string { return r.binary }

// unreachableMarkers are substrings the bridges print when the device (or
// the bridge server) is gone rather than a single command failing.
var unreachableMarkers = []string{
	"device not found",
	"device offline",
	"no devices/emulators found",
	"cannot connect to daemon",
	"connect failed",
	"device '", // adb: "device 'X' not found"
}

func (r *Runner) classify(err error, output string, args []string) error {
	if errors.Is(err, exec.ErrNotFound) {
		return fmt.Errorf("%s is not installed: %w: %w", r.binary, err, schemas.ErrDeviceUnreachable)
	}
	lower := strings.ToLower(output)
	for _, marker := range unreachableMarkers {
		if strings.Contains(lower, marker) {
			return fmt.Errorf("%s %s: %s: %w", r.binary, strings.Join(args, " "),
				strings.TrimSpace(output), schemas.ErrDeviceUnreachable)
		}
	}
	return fmt.Errorf("%s %s: %w (output: %s)", r.binary, strings.Join(args, " "),
		err, strings.TrimSpace(output))
}
