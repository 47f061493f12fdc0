package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/phonepilot/api/schemas"
	"github.com/xkilldash9x/phonepilot/internal/config"
	"github.com/xkilldash9x/phonepilot/internal/device"
	"github.com/xkilldash9x/phonepilot/internal/device/adb"
	"github.com/xkilldash9x/phonepilot/internal/llmclient"
	"github.com/xkilldash9x/phonepilot/internal/llmutil"
	"github.com/xkilldash9x/phonepilot/internal/observability"
)

const doctorTimeout = 30 * time.Second

type checkResult struct {
	name   string
	ok     bool
	detail string
}

// newDoctorCmd diagnoses the environment: bridge binary, attached device,
// text input support and model endpoint. Checks run in parallel and all of
// them report, even when some fail.
func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check that the device bridge and model endpoint are usable",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), doctorTimeout)
			defer cancel()

			logger := observability.GetLogger()
			cfg := appConfig

			var mu sync.Mutex
			var results []checkResult
			report := func(name string, ok bool, detail string) {
				mu.Lock()
				defer mu.Unlock()
				results = append(results, checkResult{name, ok, detail})
			}

			g, gctx := errgroup.WithContext(ctx)

			g.Go(func() error {
				binary := string(cfg.Device.Type)
				if path, err := exec.LookPath(binary); err != nil {
					report("bridge binary", false, binary+" not found on PATH")
				} else {
					report("bridge binary", true, path)
				}
				return nil
			})

			g.Go(func() error {
				lister, err := device.NewLister(cfg.Device, logger)
				if err != nil {
					report("device attached", false, err.Error())
					return nil
				}
				devices, err := lister.ListDevices(gctx)
				if err != nil {
					report("device attached", false, err.Error())
					return nil
				}
				ready := 0
				for _, d := range devices {
					if d.State == "device" || d.State == "connected" {
						ready++
					}
				}
				if ready == 0 {
					report("device attached", false, fmt.Sprintf("%d device(s) listed, none ready", len(devices)))
					return nil
				}
				report("device attached", true, fmt.Sprintf("%d device(s) ready", ready))
				return nil
			})

			if cfg.Device.Type == config.DeviceADB {
				g.Go(func() error {
					controller := adb.New(cfg.Device, logger)
					installed, err := controller.KeyboardInstalled(gctx)
					switch {
					case err != nil:
						report("adb keyboard", false, err.Error())
					case !installed:
						report("adb keyboard", false, "ADB Keyboard IME not installed; Type actions will fail")
					default:
						report("adb keyboard", true, "installed")
					}
					return nil
				})
			}

			g.Go(func() error {
				planner, err := llmclient.New(gctx, cfg.Model, logger)
				if err != nil {
					report("model endpoint", false, err.Error())
					return nil
				}
				probe := []schemas.Turn{
					schemas.TextTurn(schemas.RoleSystem, "Reply with the single word: pong"),
					schemas.TextTurn(schemas.RoleUser, "ping"),
				}
				_, err = planner.Plan(gctx, probe)
				// A parse failure still proves the endpoint streamed a
				// response; only transport errors count against it.
				if err != nil && !errors.Is(err, llmutil.ErrNoAction) && !errors.Is(err, llmutil.ErrMalformedAction) {
					report("model endpoint", false, err.Error())
					return nil
				}
				report("model endpoint", true, cfg.Model.BaseURL+" ("+cfg.Model.Name+")")
				return nil
			})

			_ = g.Wait()

			sort.Slice(results, func(i, j int) bool { return results[i].name < results[j].name })
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			failed := 0
			for _, r := range results {
				status := "OK"
				if !r.ok {
					status = "FAIL"
					failed++
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", status, r.name, r.detail)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d checks failed", failed, len(results))
			}
			return nil
		},
	}
}
