package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/phonepilot/internal/config"
	"github.com/xkilldash9x/phonepilot/internal/device"
	"github.com/xkilldash9x/phonepilot/internal/device/adb"
	"github.com/xkilldash9x/phonepilot/internal/observability"
)

func newDevicesCmd() *cobra.Command {
	devicesCmd := &cobra.Command{
		Use:   "devices",
		Short: "List devices attached to the configured bridge",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			connect, _ := cmd.Flags().GetString("connect")
			disconnect, _ := cmd.Flags().GetString("disconnect")
			if connect != "" || disconnect != "" {
				if appConfig.Device.Type != config.DeviceADB {
					return fmt.Errorf("tcp connect/disconnect is only supported for the adb bridge")
				}
				controller := adb.New(appConfig.Device, logger)
				if disconnect != "" {
					if err := controller.Disconnect(ctx, disconnect); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Disconnected %s\n", disconnect)
				}
				if connect != "" {
					if err := controller.Connect(ctx, connect); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Connected %s\n", connect)
				}
			}

			lister, err := device.NewLister(appConfig.Device, logger)
			if err != nil {
				return err
			}
			devices, err := lister.ListDevices(ctx)
			if err != nil {
				return err
			}
			if len(devices) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No devices attached.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SERIAL\tSTATE\tTRANSPORT\tMODEL")
			for _, d := range devices {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", d.Serial, d.State, d.Transport, d.Model)
			}
			return w.Flush()
		},
	}

	devicesCmd.Flags().String("connect", "", "Connect a device over TCP first (host:port, adb only)")
	devicesCmd.Flags().String("disconnect", "", "Disconnect a TCP device first (host:port, adb only)")
	return devicesCmd
}
