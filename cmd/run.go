package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/xkilldash9x/phonepilot/api/schemas"
	"github.com/xkilldash9x/phonepilot/internal/agent"
	"github.com/xkilldash9x/phonepilot/internal/config"
	"github.com/xkilldash9x/phonepilot/internal/device"
	"github.com/xkilldash9x/phonepilot/internal/device/screen"
	"github.com/xkilldash9x/phonepilot/internal/history"
	"github.com/xkilldash9x/phonepilot/internal/llmclient"
	"github.com/xkilldash9x/phonepilot/internal/llmutil"
	"github.com/xkilldash9x/phonepilot/internal/observability"
	"github.com/xkilldash9x/phonepilot/internal/prompts"
)

func newRunCmd() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run [task]",
		Short: "Run a task on the device, or start an interactive session",
		Long: "Runs one task to completion when a task description is given.\n" +
			"Without arguments, starts an interactive session that reads one task per line.",
		Args: cobra.ArbitraryArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if err := viper.BindPFlag("agent.max_steps", cmd.Flags().Lookup("max-steps")); err != nil {
				return err
			}
			if err := viper.BindPFlag("agent.lang", cmd.Flags().Lookup("lang")); err != nil {
				return err
			}
			if err := viper.BindPFlag("device.id", cmd.Flags().Lookup("device-id")); err != nil {
				return err
			}
			return viper.BindPFlag("device.type", cmd.Flags().Lookup("device-type"))
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()
			cfg := appConfig

			// Flags changed after PersistentPreRunE built the config, so
			// the bound keys are re-read here.
			cfg.Agent.MaxSteps = viper.GetInt("agent.max_steps")
			cfg.Agent.Lang = viper.GetString("agent.lang")
			cfg.Device.ID = viper.GetString("device.id")
			if flag := viper.GetString("device.type"); flag != "" {
				cfg.Device.Type = config.DeviceType(flag)
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			quiet, _ := cmd.Flags().GetBool("quiet")
			autoConfirm, _ := cmd.Flags().GetBool("yes")

			planner, err := llmclient.New(ctx, cfg.Model, logger)
			if err != nil {
				return err
			}
			controller, err := device.New(cfg.Device, logger)
			if err != nil {
				return err
			}
			store, err := history.NewFromConfig(ctx, cfg.History, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			ui := &consoleUI{
				in:    bufio.NewReader(cmd.InOrStdin()),
				out:   cmd.OutOrStdout(),
				lang:  cfg.Agent.Lang,
				quiet: quiet,
			}

			deps := agent.Deps{
				Planner:    planner,
				Device:     controller,
				Classifier: screen.Classifier{},
				Store:      store,
				Takeover:   ui.takeover,
				OnStep:     ui.step,
			}
			if !autoConfirm {
				deps.Confirm = ui.confirm
			}
			pilot := agent.New(deps, cfg.Agent, cfg.Device.Type, logger)

			if len(args) > 0 {
				return runTask(ctx, pilot, ui, strings.Join(args, " "))
			}
			return runInteractive(ctx, pilot, ui)
		},
	}

	runCmd.Flags().Int("max-steps", 0, "Step budget per task. (Overrides config/env)")
	runCmd.Flags().String("lang", "", "Prompt and UI language, 'en' or 'cn'. (Overrides config/env)")
	runCmd.Flags().String("device-id", "", "Device serial or connect key. (Overrides config/env)")
	runCmd.Flags().String("device-type", "", "Device bridge, 'adb' or 'hdc'. (Overrides config/env)")
	runCmd.Flags().BoolP("quiet", "q", false, "Suppress per-step output")
	runCmd.Flags().BoolP("yes", "y", false, "Skip confirmation prompts for sensitive gestures")

	return runCmd
}

func runTask(ctx context.Context, pilot *agent.Agent, ui *consoleUI, goal string) error {
	ui.printf("%s: %s\n", prompts.Message("starting_task", ui.lang), goal)
	result, err := pilot.Run(ctx, goal)
	if result != nil {
		ui.printResult(result)
	}
	return err
}

func runInteractive(ctx context.Context, pilot *agent.Agent, ui *consoleUI) error {
	ui.printf("%s> ", prompts.Message("task", ui.lang))
	for {
		line, err := ui.in.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		goal := strings.TrimSpace(line)
		switch goal {
		case "":
		case "exit", "quit":
			return nil
		default:
			if err := runTask(ctx, pilot, ui, goal); err != nil && ctx.Err() != nil {
				return err
			}
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		ui.printf("%s> ", prompts.Message("task", ui.lang))
	}
}

// consoleUI owns all terminal interaction: step progress, confirmation
// prompts and takeover handoffs. Prompts read whole lines so a confirmation
// never consumes the start of the next task.
type consoleUI struct {
	in    *bufio.Reader
	out   io.Writer
	lang  string
	quiet bool
}

func (ui *consoleUI) printf(format string, args ...any) {
	fmt.Fprintf(ui.out, format, args...)
}

func (ui *consoleUI) step(rec *schemas.StepRecord) {
	if ui.quiet {
		return
	}
	ui.printf("\n[%s %d]\n", prompts.Message("step", ui.lang), rec.StepNumber)
	if rec.Thinking != "" {
		ui.printf("%s: %s\n", prompts.Message("thinking", ui.lang), rec.Thinking)
	}
	action := rec.RawAction
	if rec.Action != nil {
		action = llmutil.FormatAction(rec.Action)
	}
	ui.printf("%s: %s\n", prompts.Message("action", ui.lang), action)
	if !rec.Success && rec.Detail != "" {
		ui.printf("%s: %s\n", prompts.Message("result", ui.lang), rec.Detail)
	}
	if ttft := rec.Metrics.TimeToFirstToken; ttft > 0 {
		ui.printf("%s: %s\n", prompts.Message("time_to_first_token", ui.lang), ttft.Round(time.Millisecond))
	}
}

func (ui *consoleUI) printResult(result *schemas.TaskResult) {
	ui.printf("\n%s: %s", prompts.Message("task_result", ui.lang), result.Outcome)
	if result.Message != "" {
		ui.printf(" (%s)", result.Message)
	}
	ui.printf("\n")
}

func (ui *consoleUI) confirm(ctx context.Context, action *schemas.Action) (bool, error) {
	ui.printf("\n%s: %s\n%s ", prompts.Message("confirmation_required", ui.lang),
		action.Message, prompts.Message("continue_prompt", ui.lang))
	line, err := ui.readLine(ctx)
	if err != nil {
		return false, err
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}

func (ui *consoleUI) takeover(ctx context.Context, message string) error {
	ui.printf("\n%s: %s\n%s\n%s ", prompts.Message("manual_operation_required", ui.lang),
		message, prompts.Message("manual_operation_hint", ui.lang),
		prompts.Message("press_enter_when_done", ui.lang))
	_, err := ui.readLine(ctx)
	return err
}

// readLine reads one line of input without outliving the task context.
func (ui *consoleUI) readLine(ctx context.Context) (string, error) {
	type lineResult struct {
		line string
		err  error
	}
	ch := make(chan lineResult, 1)
	go func() {
		line, err := ui.in.ReadString('\n')
		ch <- lineResult{line, err}
	}()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.err != nil && res.err != io.EOF {
			return "", res.err
		}
		return res.line, nil
	}
}
