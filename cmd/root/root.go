package root

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/modelget/rget/pkg/cli"
	"github.com/modelget/rget/pkg/config"
	"github.com/modelget/rget/pkg/logging"
	"github.com/modelget/rget/pkg/optname"
)

const rootLongDesc = `
rget

rget is a resumable file downloader for large model files. Interrupted downloads
are kept as <dest>.downloading and continue from where they stopped, either on
the next run or automatically when the connection drops mid-transfer.

The destination is taken from the command line, or from the Content-Disposition
header the server sends. Failed requests are retried with a growing back-off,
and progress is reported as size, percentage and speed while the file streams
to disk.

If the downloaded file is an archive (tar, tar.gz, tar.bz2, tar.xz, tar.lz4 or
zip), --extract unpacks it next to the downloaded file.
`

const rootExamples = `  rget https://example.com/model.safetensors
  rget https://example.com/model.safetensors models/
  rget -n v2.safetensors -d models https://example.com/model.safetensors
  rget --api-key $TOKEN --duplicate rename-new https://example.com/model.tar.gz model.tar.gz`

func GetCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rget [flags] <url> [dest]",
		Short: "rget",
		Long:  rootLongDesc,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.PersistentStartupProcessFlags()
		},
		RunE:    runRootCMD,
		Args:    cobra.RangeArgs(1, 2),
		Example: rootExamples,
	}
	cmd.Flags().StringP(optname.OutputDir, "d", ".", "Directory to download into when no dest is given")
	cmd.Flags().StringP(optname.Filename, "n", "", "File name inside the destination directory (default from Content-Disposition)")
	cmd.SetUsageTemplate(cli.UsageTemplate)
	err := config.AddRootPersistentFlags(cmd)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	return cmd
}

func runRootCMD(cmd *cobra.Command, args []string) error {
	// After we run through the PreRun functions we want to silence usage from being printed
	// on all errors
	cmd.SilenceUsage = true
	logger := logging.GetLogger()

	var dest string
	if len(args) > 1 {
		dest = args[1]
	}
	req, err := cli.RequestFromArgs(args[0], dest, viper.GetString(optname.OutputDir), viper.GetString(optname.Filename))
	if err != nil {
		return err
	}

	logger.Info().
		Str("url", req.URL).
		Str("dest", dest).
		Str("chunk_size", viper.GetString(optname.ChunkSize)).
		Msg("Initiating")

	return cli.WithPIDFile(viper.GetString(optname.PIDFile), func() error {
		printer := cli.NewProgressPrinter(os.Stderr)
		getter, err := cli.NewGetter(printer.Print)
		if err != nil {
			return err
		}
		req.Headers = getter.Options.Headers
		req.Duplicate = getter.Options.Duplicate

		result, err := getter.DownloadFile(cmd.Context(), req)
		printer.Done()
		cli.PrintResult(os.Stderr, result, err)
		// PrintResult already reported the failure.
		cmd.SilenceErrors = err != nil
		return err
	})
}
