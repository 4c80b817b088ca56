package multifile

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/modelget/rget/pkg/cli"
	"github.com/modelget/rget/pkg/logging"
	"github.com/modelget/rget/pkg/optname"
)

const longDesc = `
'multifile' mode for rget takes a manifest file as input (can use '-' for stdin) and downloads all files listed in the manifest.

The manifest is expected to be in the format of a newline-separated list of pairs of URLs and destination paths, separated by a space.
e.g.
https://example.com/model.safetensors /models/model.safetensors

Every file is an independent resumable transfer. 'multifile' runs at most '--max-concurrent-files' of them at once, and
stops the remaining transfers on the first failure. Their partial files are kept for the next run to resume.
`

const multifileExamples = `
  rget multifile manifest.txt

  rget multifile - < manifest.txt

  cat manifest.txt | rget multifile -
`

const defaultMaxConcurrentFiles = 4

func GetCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "multifile [flags] <manifest-file>",
		Short:   "download files from a manifest file in parallel",
		Long:    longDesc,
		Args:    cobra.ExactArgs(1),
		RunE:    runMultifileCMD,
		Example: multifileExamples,
	}

	cmd.Flags().Int(optname.MaxConcurrentFiles, defaultMaxConcurrentFiles, "Maximum number of files to download concurrently (0 for no limit)")
	err := viper.BindPFlags(cmd.Flags())
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	cmd.SetUsageTemplate(cli.UsageTemplate)
	return cmd
}

func runMultifileCMD(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true
	manifestPath := args[0]
	file, err := manifestFile(manifestPath)
	if err != nil {
		return err
	}
	defer file.Close()
	manifest, err := parseManifest(file)
	if err != nil {
		return fmt.Errorf("error processing manifest file %s: %w", manifestPath, err)
	}

	return cli.WithPIDFile(viper.GetString(optname.PIDFile), func() error {
		logger := logging.GetLogger()
		// Lines from parallel transfers would interleave on one terminal line,
		// so per-file progress only goes to the debug log.
		getter, err := cli.NewGetter(func(line string) {
			logger.Debug().Msg(line)
		})
		if err != nil {
			return err
		}
		logger.Info().Int("file_count", manifest.Len()).Msg("Initiating")
		if _, _, err := getter.DownloadFiles(cmd.Context(), manifest); err != nil {
			return fmt.Errorf("error downloading files: %w", err)
		}
		return nil
	})
}
