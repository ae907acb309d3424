package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"zipfetch/core/internal/version"
)

func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "zipfetch",
		Short:         "Fetch remote files and deliver them as one zip archive",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().String("config", "", "Path to YAML config file")
	cmd.PersistentFlags().String("log-level", "", "Log level (debug|info|warn|error); overrides config")

	cmd.AddCommand(NewBundleCmd())
	cmd.AddCommand(NewTextCmd())
	cmd.AddCommand(NewServerCmd())
	cmd.AddCommand(NewRemoteCmd())
	cmd.AddCommand(NewVersionCmd())

	cmd.SetVersionTemplate(fmt.Sprintf("%s (%s/%s)\n", version.Version, runtime.GOOS, runtime.GOARCH))
	cmd.Version = version.Version

	return cmd
}
