package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/capitalize-ai/journal-coach/internal/config"
	"github.com/capitalize-ai/journal-coach/internal/extract"
)

func newExtractCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "extract <file.pdf>",
		Short: "Print the text of a journal PDF",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := opts.logger()
			if err != nil {
				return err
			}
			defer log.Sync()

			cfg := config.Load()
			text, err := extract.NewExtractor(cfg.TempDir, log).ExtractFile(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), text)
			return nil
		},
	}
}
