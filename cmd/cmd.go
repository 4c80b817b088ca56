package cmd

import (
	"github.com/spf13/cobra"

	"github.com/modelget/rget/cmd/multifile"
	"github.com/modelget/rget/cmd/root"
	"github.com/modelget/rget/cmd/version"
)

func GetRootCommand() *cobra.Command {
	rootCMD := root.GetCommand()
	rootCMD.AddCommand(multifile.GetCommand())
	rootCMD.AddCommand(version.VersionCMD)
	return rootCMD
}
