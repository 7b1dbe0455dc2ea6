package search

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/journal-coach/internal/llm"
	"github.com/capitalize-ai/journal-coach/internal/model"
	"github.com/capitalize-ai/journal-coach/pkg/logger"
	"github.com/capitalize-ai/journal-coach/pkg/metrics"
)

// QueryInstruction is the system prompt for query generation.
const QueryInstruction = "You help a mental health coach find supporting material. " +
	"Read the coach's latest reply and call search_web with one short, specific web search " +
	"query (at most eight words) for a resource that would help the user. Do not answer the user."

// SearchTool is the single tool offered to the model.
var SearchTool = llm.Tool{
	Name:        "search_web",
	Description: "Search the web for helpful, reputable resources.",
	Params: []llm.ToolParam{
		{Name: "query", Description: "The search query.", Required: true},
	},
}

// Deriver turns the latest assistant message into web results.
type Deriver struct {
	completer llm.ToolCompleter
	searcher  WebSearcher
	timeout   time.Duration
	logger    *logger.Logger
}

// NewDeriver creates a deriver. timeout bounds each remote call and is
// ignored when zero.
func NewDeriver(completer llm.ToolCompleter, searcher WebSearcher, timeout time.Duration, log *logger.Logger) *Deriver {
	return &Deriver{
		completer: completer,
		searcher:  searcher,
		timeout:   timeout,
		logger:    log,
	}
}

// Derive returns at most model.MaxSearchResults results for latest, along
// with the query that produced them. A nil message fails with ErrNoContext
// before any remote call.
func (d *Deriver) Derive(ctx context.Context, latest *model.ConversationMessage) (string, []model.SearchResult, error) {
	if latest == nil || strings.TrimSpace(latest.Content) == "" {
		return "", nil, model.ErrNoContext
	}

	query, err := d.query(ctx, latest.Content)
	if err != nil {
		return "", nil, err
	}
	if query == "" {
		return "", nil, model.ErrEmptyQuery
	}

	callCtx, cancel := d.withTimeout(ctx)
	defer cancel()
	items, err := d.searcher.Search(callCtx, query)
	if err != nil {
		metrics.SearchRequests.WithLabelValues("error").Inc()
		return query, nil, fmt.Errorf("%w: %w", model.ErrSearch, err)
	}
	metrics.SearchRequests.WithLabelValues("success").Inc()

	results := project(items)
	d.logger.Debug("search derived",
		zap.String("query", query),
		zap.Int("results", len(results)),
	)
	return query, results, nil
}

func (d *Deriver) query(ctx context.Context, utterance string) (string, error) {
	callCtx, cancel := d.withTimeout(ctx)
	defer cancel()

	resp, err := d.completer.CompleteWithTools(callCtx, &llm.CompletionRequest{
		System:   QueryInstruction,
		Messages: []llm.ChatMessage{{Role: "user", Content: utterance}},
	}, []llm.Tool{SearchTool})
	if err != nil {
		return "", fmt.Errorf("%w: %w", model.ErrAnalysis, err)
	}

	for _, call := range resp.ToolCalls {
		if call.Name != SearchTool.Name {
			continue
		}
		var args struct {
			Query string `json:"query"`
		}
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			return "", fmt.Errorf("%w: decode tool arguments: %w", model.ErrAnalysis, err)
		}
		return strings.TrimSpace(args.Query), nil
	}

	return StripQuotes(resp.Content), nil
}

func (d *Deriver) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.timeout > 0 {
		return context.WithTimeout(ctx, d.timeout)
	}
	return context.WithCancel(ctx)
}

// project keeps the first results in provider order.
func project(items []WebResult) []model.SearchResult {
	n := min(len(items), model.MaxSearchResults)
	results := make([]model.SearchResult, 0, n)
	for _, item := range items[:n] {
		results = append(results, model.SearchResult{
			Title:   item.Title,
			Summary: item.Snippet,
			URL:     item.Link,
		})
	}
	return results
}

// StripQuotes trims s and removes one matching pair of enclosing single or
// double quotes.
func StripQuotes(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if first == last && (first == '"' || first == '\'') {
			s = s[1 : len(s)-1]
		}
	}
	return strings.TrimSpace(s)
}
