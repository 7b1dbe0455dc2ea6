package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/capitalize-ai/journal-coach/internal/analysis"
	"github.com/capitalize-ai/journal-coach/internal/config"
	"github.com/capitalize-ai/journal-coach/internal/extract"
)

func newAnalyzeCmd(opts *options) *cobra.Command {
	var showText bool

	cmd := &cobra.Command{
		Use:   "analyze <file.pdf>",
		Short: "Extract a journal PDF and print its sentiment analysis",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := opts.logger()
			if err != nil {
				return err
			}
			defer log.Sync()

			cfg := config.Load()
			summarizer, err := opts.llmClient(cfg, cfg.SummaryProvider, cfg.SummaryModel)
			if err != nil {
				return fmt.Errorf("creating summarizer: %w", err)
			}

			text, err := extract.NewExtractor(cfg.TempDir, log).ExtractFile(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			result, err := analysis.NewAnalyzer(summarizer, summarizer.Name(), cfg.RemoteCallTimeout, log).
				Analyze(cmd.Context(), text)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if showText {
				fmt.Fprintf(out, "%s\n\n---\n\n", text)
			}
			fmt.Fprintln(out, result)
			return nil
		},
	}

	cmd.Flags().BoolVar(&showText, "show-text", false, "Print the extracted text before the analysis")
	return cmd
}
