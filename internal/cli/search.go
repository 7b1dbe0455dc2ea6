package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/capitalize-ai/journal-coach/internal/config"
	"github.com/capitalize-ai/journal-coach/internal/model"
	"github.com/capitalize-ai/journal-coach/internal/search"
)

func newSearchCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   `search "<what the coach said>"`,
		Short: "Derive a web search from a coach utterance and print the results",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := opts.logger()
			if err != nil {
				return err
			}
			defer log.Sync()

			cfg := config.Load()
			querier, err := opts.llmClient(cfg, cfg.QueryProvider, cfg.QueryModel)
			if err != nil {
				return fmt.Errorf("creating query model: %w", err)
			}

			searcher := search.NewGoogleSearcher(cfg.SearchEndpoint, cfg.SearchAPIKey, cfg.SearchEngineID, cfg.RemoteCallTimeout)
			deriver := search.NewDeriver(querier, searcher, cfg.RemoteCallTimeout, log)

			query, results, err := deriver.Derive(cmd.Context(), &model.ConversationMessage{
				Role:    model.RoleAssistant,
				Content: strings.Join(args, " "),
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Query: %s\n", query)
			for i, r := range results {
				fmt.Fprintf(out, "\n%d. %s\n   %s\n   %s\n", i+1, r.Title, r.Summary, r.URL)
			}
			return nil
		},
	}
}
