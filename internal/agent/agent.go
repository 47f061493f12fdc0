// Package agent runs the perceive-plan-execute loop against one device.
package agent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/phonepilot/api/schemas"
	"github.com/xkilldash9x/phonepilot/internal/config"
	"github.com/xkilldash9x/phonepilot/internal/history"
	"github.com/xkilldash9x/phonepilot/internal/llmutil"
	"github.com/xkilldash9x/phonepilot/internal/prompts"
)

// State names the loop's current phase, mostly for logging and progress
// display.
type State int

const (
	StateInit State = iota
	StatePerceiving
	StatePlanning
	StateConfirming
	StateTakingOver
	StateExecuting
	StateCompleted
	StateFailed
	StateMaxSteps
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StatePerceiving:
		return "perceiving"
	case StatePlanning:
		return "planning"
	case StateConfirming:
		return "confirming"
	case StateTakingOver:
		return "taking_over"
	case StateExecuting:
		return "executing"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateMaxSteps:
		return "max_steps"
	default:
		return "unknown"
	}
}

const cleanupTimeout = 10 * time.Second

// staleAge is how old a leftover remote temp file must be before the
// pre-task sweep removes it.
const staleAge = time.Hour

// sweeper is implemented by bridges that support pre-task stale file
// removal.
type sweeper interface {
	SweepStale(ctx context.Context, maxAge time.Duration) error
}

// Deps collects the agent's collaborators.
type Deps struct {
	Planner    schemas.Planner
	Device     schemas.DeviceController
	Classifier schemas.SensitivityClassifier
	Store      history.Store

	// Confirm gates message-bearing gestures; nil confirms implicitly.
	Confirm schemas.ConfirmationFunc
	// Takeover hands the device to the human; nil fails takeover steps.
	Takeover schemas.TakeoverFunc

	// OnStep, when set, observes every completed step. Used by the CLI to
	// print progress; errors are not expected and not handled.
	OnStep func(rec *schemas.StepRecord)
}

// Agent drives one task at a time on one device.
type Agent struct {
	deps     Deps
	executor *Executor
	cfg      config.AgentConfig
	logger   *zap.Logger
}

// New assembles the loop for the given device type and tuning.
func New(deps Deps, agentCfg config.AgentConfig, deviceType config.DeviceType, logger *zap.Logger) *Agent {
	log := logger.Named("agent")
	return &Agent{
		deps: deps,
		executor: NewExecutor(deps.Device, deps.Classifier, deps.Confirm, deps.Takeover,
			deviceType, agentCfg.MaxWait, log),
		cfg:    agentCfg,
		logger: log,
	}
}

// Run executes one task to completion. The returned result is non-nil for
// every terminal outcome including cancellation; the error mirrors the
// failure for callers that only check err.
func (a *Agent) Run(ctx context.Context, goal string) (*schemas.TaskResult, error) {
	taskID := uuid.NewString()
	start := time.Now()
	log := a.logger.With(zap.String("task_id", taskID))
	log.Info("Starting task", zap.String("goal", goal))

	if err := a.deps.Store.BeginTask(ctx, taskID, goal); err != nil {
		log.Warn("Failed to record task start", zap.Error(err))
	}

	// Device hygiene runs regardless of how the loop exits, on a fresh
	// context so cancellation does not strand temp files on the device.
	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
		defer cancel()
		if err := a.deps.Device.Cleanup(cleanupCtx); err != nil {
			log.Warn("Device cleanup failed", zap.Error(err))
		}
	}()
	if s, ok := a.deps.Device.(sweeper); ok {
		if err := s.SweepStale(ctx, staleAge); err != nil {
			log.Debug("Stale sweep failed", zap.Error(err))
		}
	}

	result := a.loop(ctx, taskID, goal, log)
	result.Duration = time.Since(start)

	// Terminal outcome persists even when the task context is already
	// cancelled.
	finishCtx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()
	if err := a.deps.Store.FinishTask(finishCtx, result); err != nil {
		log.Warn("Failed to record task result", zap.Error(err))
	}

	log.Info("Task finished",
		zap.String("outcome", string(result.Outcome)),
		zap.Int("steps", result.Steps),
		zap.Duration("duration", result.Duration))

	switch result.Outcome {
	case schemas.OutcomeCompleted:
		return result, nil
	default:
		return result, fmt.Errorf("task %s: %s", result.Outcome, result.Message)
	}
}

func (a *Agent) loop(ctx context.Context, taskID, goal string, log *zap.Logger) *schemas.TaskResult {
	result := &schemas.TaskResult{TaskID: taskID, Goal: goal}
	fail := func(msg string) *schemas.TaskResult {
		result.Outcome = schemas.OutcomeFailed
		result.Message = msg
		if ctx.Err() != nil {
			result.Outcome = schemas.OutcomeCancelled
			result.Message = ctx.Err().Error()
		}
		return result
	}

	conv := schemas.NewContext(a.systemPrompt())
	frame, err := a.perceiveFirst(ctx)
	if err != nil {
		return fail("initial screen capture failed: " + err.Error())
	}

	parseFailures := 0
	consecutiveWaits := 0
	pending := a.taskTurn(goal, frame)

	maxSteps := a.cfg.MaxSteps
	if maxSteps <= 0 {
		maxSteps = 100
	}

	// A parse-failure retry repeats the same step number as a new attempt,
	// so the budget counts executed actions, not planning calls.
	step := 1
	attempt := 1
	for step <= maxSteps {
		if ctx.Err() != nil {
			return fail("cancelled")
		}
		stepStart := time.Now()
		log.Debug("Loop state", zap.Int("step", step), zap.Stringer("state", StatePlanning))

		conv.Append(pending)
		conv.StripImages(a.cfg.KeepImageTurns)

		resp, err := a.deps.Planner.Plan(ctx, conv.Turns())
		if err != nil && !isParseError(err) {
			return fail("planning failed: " + err.Error())
		}
		if err != nil {
			// One retry with corrective feedback; a second consecutive
			// parse failure ends the task.
			parseFailures++
			a.recordStep(ctx, &schemas.StepRecord{
				TaskID:     taskID,
				StepNumber: step,
				Attempt:    attempt,
				Thinking:   respThinking(resp),
				RawAction:  respRaw(resp),
				Success:    false,
				Detail:     string(ErrCodeParseFailure) + ": " + err.Error(),
				Duration:   time.Since(stepStart),
				Metrics:    respMetrics(resp),
				StartedAt:  stepStart,
			}, log)
			if parseFailures >= 2 {
				return fail("model produced no parseable action twice in a row")
			}
			// The unparseable reply still goes back as an assistant turn so
			// the conversation keeps alternating user/assistant.
			conv.Append(schemas.TextTurn(schemas.RoleAssistant, respEcho(resp)))
			pending = schemas.TextTurn(schemas.RoleUser,
				"Your previous response could not be parsed ("+err.Error()+"). "+
					"Reply with exactly one action inside <answer></answer> using the documented grammar.")
			attempt++
			continue
		}
		parseFailures = 0
		action := resp.Action

		if action.Kind == schemas.ActionWait {
			consecutiveWaits++
		} else {
			consecutiveWaits = 0
		}
		if maxWaits := a.cfg.MaxConsecutiveWaits; maxWaits > 0 && consecutiveWaits > maxWaits {
			log.Warn("Wait limit reached, forcing takeover", zap.Int("waits", consecutiveWaits))
			action = &schemas.Action{
				Kind:    schemas.ActionTakeOver,
				Message: "The screen has not changed after repeated waits. Please check the device.",
			}
			consecutiveWaits = 0
		}

		log.Debug("Loop state", zap.Int("step", step), zap.Stringer("state", StateExecuting),
			zap.String("action", llmutil.FormatAction(action)))
		execResult, err := a.executor.Execute(ctx, action, frame)
		if err != nil {
			return fail("execution failed: " + err.Error())
		}

		conv.Append(schemas.TextTurn(schemas.RoleAssistant, resp.AssistantEcho()))

		rec := &schemas.StepRecord{
			TaskID:     taskID,
			StepNumber: step,
			Attempt:    attempt,
			Thinking:   resp.Thinking,
			RawAction:  resp.RawAction,
			Action:     action,
			Success:    execResult.Success,
			Detail:     execResult.Detail,
			Duration:   time.Since(stepStart),
			Metrics:    resp.Metrics,
			StartedAt:  stepStart,
		}
		a.recordStep(ctx, rec, log)
		result.Steps = step

		if execResult.Finished {
			result.Outcome = schemas.OutcomeCompleted
			result.Message = execResult.Message
			return result
		}

		frame, err = a.perceive(ctx)
		if err != nil {
			return fail("screen capture failed: " + err.Error())
		}
		pending = a.observationTurn(execResult, frame)
		step++
		attempt = 1
	}

	result.Outcome = schemas.OutcomeMaxSteps
	result.Message = fmt.Sprintf("step budget of %d exhausted", maxSteps)
	return result
}

func (a *Agent) recordStep(ctx context.Context, rec *schemas.StepRecord, log *zap.Logger) {
	if err := a.deps.Store.RecordStep(ctx, rec); err != nil {
		log.Warn("Failed to record step", zap.Int("step", rec.StepNumber), zap.Error(err))
	}
	if a.deps.OnStep != nil {
		a.deps.OnStep(rec)
	}
}

// systemPrompt prefers a prompt file override; the built-in prompt for the
// configured language is the fallback.
func (a *Agent) systemPrompt() string {
	if a.cfg.SystemPromptFile != "" {
		data, err := os.ReadFile(a.cfg.SystemPromptFile)
		if err == nil {
			return string(data)
		}
		a.logger.Warn("Failed to read system prompt file, using built-in prompt",
			zap.String("file", a.cfg.SystemPromptFile), zap.Error(err))
	}
	return prompts.SystemPrompt(a.cfg.Lang)
}

func (a *Agent) perceive(ctx context.Context) (*schemas.Frame, error) {
	return a.deps.Device.CaptureFrame(ctx)
}

// perceiveFirst captures the opening frame. A black first frame usually
// means the device is asleep or on a transition, so the agent presses Home
// once and captures again before giving the model a useless screenshot.
func (a *Agent) perceiveFirst(ctx context.Context) (*schemas.Frame, error) {
	frame, err := a.perceive(ctx)
	if err != nil {
		return nil, err
	}
	if !a.deps.Classifier.IsSensitive(frame) {
		return frame, nil
	}
	a.logger.Debug("First frame unreadable, pressing Home and retrying")
	if err := a.deps.Device.Home(ctx); err != nil {
		return frame, nil
	}
	retry, err := a.perceive(ctx)
	if err != nil {
		return frame, nil
	}
	return retry, nil
}

// taskTurn is the opening user turn: the goal, screen metadata and the
// first screenshot.
func (a *Agent) taskTurn(goal string, frame *schemas.Frame) schemas.Turn {
	return schemas.Turn{
		Role: schemas.RoleUser,
		Content: []schemas.ContentPart{
			{Type: "text", Text: "Task: " + goal + "\n" + screenInfo(frame)},
			{Type: "image_url", ImageURL: &schemas.ImageURL{URL: frame.DataURL()}},
		},
	}
}

// observationTurn reports the previous action's outcome with the fresh
// screenshot.
func (a *Agent) observationTurn(res *ExecutionResult, frame *schemas.Frame) schemas.Turn {
	var text string
	switch {
	case res.TookOver:
		text = "The user has completed the manual step. Continue the task.\n"
	case res.Declined:
		text = "The user declined the previous action. Choose a different approach or finish.\n"
	case !res.Success:
		text = "The previous action failed (" + string(res.Code) + ": " + res.Detail + ").\n"
	}
	return schemas.Turn{
		Role: schemas.RoleUser,
		Content: []schemas.ContentPart{
			{Type: "text", Text: text + screenInfo(frame)},
			{Type: "image_url", ImageURL: &schemas.ImageURL{URL: frame.DataURL()}},
		},
	}
}

func screenInfo(frame *schemas.Frame) string {
	info := fmt.Sprintf("Screen: %dx%d", frame.Width, frame.Height)
	if frame.ForegroundApp != "" {
		info += ", foreground app: " + frame.ForegroundApp
	}
	return info
}

func isParseError(err error) bool {
	return errors.Is(err, llmutil.ErrNoAction) || errors.Is(err, llmutil.ErrMalformedAction)
}

func respThinking(r *schemas.ModelResponse) string {
	if r == nil {
		return ""
	}
	return r.Thinking
}

func respRaw(r *schemas.ModelResponse) string {
	if r == nil {
		return ""
	}
	return r.RawText
}

// respEcho renders the assistant turn for an unparseable reply. When the
// marker structure survived it is preserved; otherwise the raw text is
// echoed verbatim.
func respEcho(r *schemas.ModelResponse) string {
	if r == nil {
		return ""
	}
	if r.Thinking != "" || r.RawAction != "" {
		return r.AssistantEcho()
	}
	return r.RawText
}

func respMetrics(r *schemas.ModelResponse) schemas.StreamMetrics {
	if r == nil {
		return schemas.StreamMetrics{}
	}
	return r.Metrics
}
