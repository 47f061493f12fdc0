package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/phonepilot/internal/apps"
	"github.com/xkilldash9x/phonepilot/internal/config"
)

func newAppsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "apps",
		Short: "List the app names the model can launch by name",
		RunE: func(cmd *cobra.Command, args []string) error {
			platform := apps.PlatformAndroid
			if appConfig.Device.Type == config.DeviceHDC {
				platform = apps.PlatformHarmonyOS
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tPACKAGE")
			for _, name := range apps.Names(platform) {
				pkg, _ := apps.Lookup(platform, name)
				fmt.Fprintf(w, "%s\t%s\n", name, pkg)
			}
			return w.Flush()
		},
	}
}
