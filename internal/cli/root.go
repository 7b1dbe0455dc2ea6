// Package cli defines the coachctl commands for running the analysis and
// search pipelines against local files, without the API server.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/capitalize-ai/journal-coach/internal/config"
	"github.com/capitalize-ai/journal-coach/internal/llm"
	"github.com/capitalize-ai/journal-coach/pkg/logger"
)

var version = "dev" // set via ldflags at build time

// options are the persistent flags shared by every command.
type options struct {
	logLevel string
	provider string
	model    string
}

// NewRootCmd builds the coachctl command tree.
func NewRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "coachctl",
		Short: "Journal coach tools",
		Long: `coachctl runs the journal coach pipelines from the command line:
extract the text of a journal PDF, analyze its emotional sentiment, or
derive a web search from something the coach said.`,
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "Log level written to stderr")
	root.PersistentFlags().StringVar(&opts.provider, "provider", "", "LLM provider (openai, anthropic, ollama); defaults to the configured one")
	root.PersistentFlags().StringVar(&opts.model, "model", "", "LLM model; defaults to the provider's")

	root.AddCommand(newExtractCmd(opts))
	root.AddCommand(newAnalyzeCmd(opts))
	root.AddCommand(newSearchCmd(opts))
	return root
}

// Execute runs the root command. Called from main.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func (o *options) logger() (*logger.Logger, error) {
	return logger.NewWithOptions(o.logLevel, logger.Options{Stderr: true})
}

// llmClient creates the client for a pipeline step. The flag wins over the
// configured provider and model.
func (o *options) llmClient(cfg *config.Config, provider, model string) (llm.Client, error) {
	if o.provider != "" {
		provider, model = o.provider, ""
	}
	if o.model != "" {
		model = o.model
	}
	return llm.NewClientFor(llm.Provider(provider), llm.Keys{
		Anthropic:     cfg.AnthropicAPIKey,
		OpenAI:        cfg.OpenAIAPIKey,
		OpenAIBaseURL: cfg.OpenAIBaseURL,
	}, model)
}
