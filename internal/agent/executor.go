package agent

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/phonepilot/api/schemas"
	"github.com/xkilldash9x/phonepilot/internal/apps"
	"github.com/xkilldash9x/phonepilot/internal/config"
)

const defaultWait = 3 * time.Second

// ExecutionResult is the outcome of one action. Success covers the normal
// path; the other flags mark the human-in-the-loop outcomes the loop treats
// specially.
type ExecutionResult struct {
	Success  bool
	Finished bool
	Declined bool
	TookOver bool
	Code     ErrorCode
	Detail   string

	// Message carries the model's finish summary or takeover reason.
	Message string
}

// Executor performs parsed actions on the device, applying the
// sensitive-screen gate, confirmation gate and wait cap.
type Executor struct {
	device     schemas.DeviceController
	classifier schemas.SensitivityClassifier
	confirm    schemas.ConfirmationFunc
	takeover   schemas.TakeoverFunc
	platform   apps.Platform
	maxWait    time.Duration
	logger     *zap.Logger
}

// NewExecutor wires the executor. confirm and takeover may be nil, in which
// case gestures are confirmed implicitly and takeovers fail the step.
func NewExecutor(
	device schemas.DeviceController,
	classifier schemas.SensitivityClassifier,
	confirm schemas.ConfirmationFunc,
	takeover schemas.TakeoverFunc,
	deviceType config.DeviceType,
	maxWait time.Duration,
	logger *zap.Logger,
) *Executor {
	platform := apps.PlatformAndroid
	if deviceType == config.DeviceHDC {
		platform = apps.PlatformHarmonyOS
	}
	if maxWait <= 0 {
		maxWait = 10 * time.Second
	}
	return &Executor{
		device:     device,
		classifier: classifier,
		confirm:    confirm,
		takeover:   takeover,
		platform:   platform,
		maxWait:    maxWait,
		logger:     logger.Named("executor"),
	}
}

// Execute runs one action against the frame it was planned on. The returned
// error is reserved for conditions that end the task (device unreachable,
// context cancelled); everything else is reported in the result so the loop
// can feed it back to the model.
func (e *Executor) Execute(ctx context.Context, action *schemas.Action, frame *schemas.Frame) (*ExecutionResult, error) {
	if action == nil {
		return &ExecutionResult{Code: ErrCodeUnknownAction, Detail: "no action to execute"}, nil
	}

	// The gate sees the frame, not the action: any screen-touching gesture
	// on a sensitive screen is handed to the human.
	if action.Mutating() && e.classifier.IsSensitive(frame) {
		e.logger.Warn("Sensitive screen detected, handing over",
			zap.String("action", string(action.Kind)))
		return e.runTakeover(ctx, "The current screen appears to be sensitive (login, payment or secure content). Please complete this step manually.", ErrCodeSensitiveScreen)
	}

	if action.NeedsConfirmation() {
		ok, err := e.askConfirmation(ctx, action)
		if err != nil {
			return nil, err
		}
		if !ok {
			return &ExecutionResult{
				Declined: true,
				Code:     ErrCodeUserDeclined,
				Detail:   "the user declined the action: " + action.Message,
			}, nil
		}
	}

	switch action.Kind {
	case schemas.ActionFinish:
		return &ExecutionResult{Success: true, Finished: true, Message: action.Message}, nil
	case schemas.ActionTakeOver:
		return e.runTakeover(ctx, action.Message, "")
	case schemas.ActionWait:
		return e.runWait(ctx, action.Duration)
	}

	// A launch target that neither resolves nor looks like a raw package id
	// cannot start anything; fail it without touching the device.
	if action.Kind == schemas.ActionLaunch {
		if pkg, known := apps.Resolve(e.platform, action.App); !known && !strings.Contains(pkg, ".") {
			e.logger.Warn("Unknown app name", zap.String("app", action.App))
			return &ExecutionResult{
				Code:   ErrCodeUnknownApp,
				Detail: fmt.Sprintf("app %q is not in the registry", action.App),
			}, nil
		}
	}

	err := e.runGesture(ctx, action, frame)
	if err == nil {
		return &ExecutionResult{Success: true}, nil
	}
	if errors.Is(err, schemas.ErrDeviceUnreachable) || ctx.Err() != nil {
		return nil, err
	}
	code := ErrCodeDeviceCommand
	if action.Kind == schemas.ActionLaunch {
		if _, known := apps.Lookup(e.platform, action.App); !known {
			code = ErrCodeUnknownApp
		}
	}
	e.logger.Warn("Action failed",
		zap.String("action", string(action.Kind)),
		zap.String("code", string(code)),
		zap.Error(err))
	return &ExecutionResult{Code: code, Detail: err.Error()}, nil
}

func (e *Executor) runGesture(ctx context.Context, action *schemas.Action, frame *schemas.Frame) error {
	switch action.Kind {
	case schemas.ActionLaunch:
		pkg, _ := apps.Resolve(e.platform, action.App)
		return e.device.Launch(ctx, pkg)
	case schemas.ActionTap:
		x, y := e.toPixels(action.Element, frame)
		return e.device.Tap(ctx, x, y)
	case schemas.ActionDoubleTap:
		x, y := e.toPixels(action.Element, frame)
		return e.device.DoubleTap(ctx, x, y)
	case schemas.ActionLongPress:
		x, y := e.toPixels(action.Element, frame)
		return e.device.LongPress(ctx, x, y)
	case schemas.ActionSwipe:
		x1, y1 := e.toPixels(action.Start, frame)
		x2, y2 := e.toPixels(action.End, frame)
		return e.device.Swipe(ctx, x1, y1, x2, y2, 0)
	case schemas.ActionTypeText:
		return e.device.TypeText(ctx, action.Text)
	case schemas.ActionBack:
		return e.device.Back(ctx)
	case schemas.ActionHome:
		return e.device.Home(ctx)
	default:
		return fmt.Errorf("unsupported action kind %q", action.Kind)
	}
}

func (e *Executor) runWait(ctx context.Context, d time.Duration) (*ExecutionResult, error) {
	if d <= 0 {
		d = defaultWait
	}
	if d > e.maxWait {
		e.logger.Debug("Capping wait", zap.Duration("requested", d), zap.Duration("cap", e.maxWait))
		d = e.maxWait
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return &ExecutionResult{Success: true}, nil
	}
}

func (e *Executor) runTakeover(ctx context.Context, message string, code ErrorCode) (*ExecutionResult, error) {
	if e.takeover == nil {
		return &ExecutionResult{
			Code:   ErrCodeTakeoverFailed,
			Detail: "manual takeover required but no handler is configured",
		}, nil
	}
	if err := e.takeover(ctx, message); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return &ExecutionResult{Code: ErrCodeTakeoverFailed, Detail: err.Error()}, nil
	}
	return &ExecutionResult{Success: true, TookOver: true, Code: code, Message: message}, nil
}

func (e *Executor) askConfirmation(ctx context.Context, action *schemas.Action) (bool, error) {
	if e.confirm == nil {
		return true, nil
	}
	ok, err := e.confirm(ctx, action)
	if err != nil {
		return false, err
	}
	return ok, nil
}

// toPixels converts a normalized [0,999] point to device pixels for the
// frame the model saw. Out-of-range input clamps instead of failing; the
// model occasionally emits 1000.
func (e *Executor) toPixels(p *schemas.Point, frame *schemas.Frame) (int, int) {
	if p == nil {
		return 0, 0
	}
	return scaleCoord(p.X, frame.Width), scaleCoord(p.Y, frame.Height)
}

func scaleCoord(v, size int) int {
	c := int(math.Round(float64(v) / 999.0 * float64(size)))
	if c < 0 {
		c = 0
	} else if c > size-1 {
		c = size - 1
	}
	return c
}
