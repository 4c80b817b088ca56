package version

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/modelget/rget/pkg/version"
)

const VersionCMDName = "version"

var VersionCMD = &cobra.Command{
	Use:   VersionCMDName,
	Short: "print version and build information",
	Long:  "Print the version information",
	Run: func(cmd *cobra.Command, args []string) {
		buildTime := version.BuildTime
		if buildTime == "" {
			buildTime = "unknown"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "rget Version %s - Build Time %s\n", version.GetVersion(), buildTime)
	},
}
