// Package analysis summarizes journal text chunk by chunk.
package analysis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/journal-coach/internal/llm"
	"github.com/capitalize-ai/journal-coach/internal/model"
	"github.com/capitalize-ai/journal-coach/pkg/logger"
	"github.com/capitalize-ai/journal-coach/pkg/metrics"
)

// ChunkSize is the maximum number of characters sent per summarizer call.
const ChunkSize = 4000

// Instruction is the system prompt for every chunk.
const Instruction = "You are assisting a mental health coach. Summarize the emotional sentiment " +
	"of the following journal excerpt: the feelings expressed, their intensity, and any " +
	"recurring worries or sources of comfort. Reply with the summary only."

// Analyzer produces an analysis by summarizing each chunk in order.
type Analyzer struct {
	summarizer llm.Completer
	provider   string
	timeout    time.Duration
	logger     *logger.Logger
}

// NewAnalyzer creates an analyzer. provider labels metrics; timeout bounds
// each summarizer call and is ignored when zero.
func NewAnalyzer(summarizer llm.Completer, provider string, timeout time.Duration, log *logger.Logger) *Analyzer {
	return &Analyzer{
		summarizer: summarizer,
		provider:   provider,
		timeout:    timeout,
		logger:     log,
	}
}

// Analyze returns the concatenated chunk summaries of text. Chunks are
// summarized one at a time; the first failure aborts the rest.
func (a *Analyzer) Analyze(ctx context.Context, text string) (string, error) {
	chunks := Chunk(text, ChunkSize)
	metrics.AnalysisChunks.Observe(float64(len(chunks)))

	var out strings.Builder
	for i, chunk := range chunks {
		summary, err := a.summarize(ctx, chunk)
		if err != nil {
			a.logger.Warn("chunk summary failed",
				zap.Int("chunk", i),
				zap.Int("chunks", len(chunks)),
				zap.Error(err),
			)
			return "", fmt.Errorf("%w: chunk %d of %d: %w", model.ErrAnalysis, i+1, len(chunks), err)
		}
		a.logger.Debug("chunk summarized",
			zap.Int("chunk", i),
			zap.Int("chars", len([]rune(chunk))),
		)
		out.WriteString(summary)
	}

	return out.String(), nil
}

func (a *Analyzer) summarize(ctx context.Context, chunk string) (string, error) {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := a.summarizer.Complete(ctx, &llm.CompletionRequest{
		System:   Instruction,
		Messages: []llm.ChatMessage{{Role: "user", Content: chunk}},
	})
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.RecordSummarizerCall(a.provider, status, time.Since(start).Seconds())
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// Chunk splits text into contiguous pieces of at most size characters.
// The last piece may be shorter. Empty text yields no chunks.
func Chunk(text string, size int) []string {
	if size <= 0 {
		size = ChunkSize
	}
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	chunks := make([]string, 0, (len(runes)+size-1)/size)
	for start := 0; start < len(runes); start += size {
		end := min(start+size, len(runes))
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}
