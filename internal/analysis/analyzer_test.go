package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/journal-coach/internal/llm"
	"github.com/capitalize-ai/journal-coach/internal/model"
	"github.com/capitalize-ai/journal-coach/pkg/logger"
)

// scriptedSummarizer records calls and replies "S<n>" for the n-th call.
type scriptedSummarizer struct {
	mu       sync.Mutex
	delay    time.Duration
	failOn   int
	inFlight int
	overlap  bool
	calls    []string
	systems  []string
}

func (s *scriptedSummarizer) Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	s.mu.Lock()
	s.inFlight++
	if s.inFlight > 1 {
		s.overlap = true
	}
	s.calls = append(s.calls, req.Messages[0].Content)
	s.systems = append(s.systems, req.System)
	n := len(s.calls)
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inFlight--
		s.mu.Unlock()
	}()

	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if n == s.failOn {
		return nil, errors.New("upstream unavailable")
	}
	return &llm.CompletionResponse{Content: fmt.Sprintf("S%d", n)}, nil
}

func TestChunk(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		size  int
		sizes []int
	}{
		{name: "empty", text: "", size: 4000, sizes: nil},
		{name: "shorter than size", text: strings.Repeat("a", 10), size: 4000, sizes: []int{10}},
		{name: "exact multiple", text: strings.Repeat("a", 8000), size: 4000, sizes: []int{4000, 4000}},
		{name: "remainder", text: strings.Repeat("a", 9000), size: 4000, sizes: []int{4000, 4000, 1000}},
		{name: "multibyte counts characters", text: strings.Repeat("é", 5), size: 2, sizes: []int{2, 2, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks := Chunk(tt.text, tt.size)
			require.Len(t, chunks, len(tt.sizes))
			for i, c := range chunks {
				assert.Equal(t, tt.sizes[i], len([]rune(c)))
			}
			assert.Equal(t, tt.text, strings.Join(chunks, ""))
		})
	}
}

func TestAnalyzeCallCountAndConcatenation(t *testing.T) {
	for _, length := range []int{1, 3999, 4000, 4001, 9000, 12000} {
		t.Run(fmt.Sprint(length), func(t *testing.T) {
			s := &scriptedSummarizer{}
			a := NewAnalyzer(s, "test", time.Second, logger.NewNop())

			out, err := a.Analyze(t.Context(), strings.Repeat("x", length))
			require.NoError(t, err)

			want := (length + ChunkSize - 1) / ChunkSize
			assert.Len(t, s.calls, want)

			var expected strings.Builder
			for i := 1; i <= want; i++ {
				fmt.Fprintf(&expected, "S%d", i)
			}
			assert.Equal(t, expected.String(), out)
			for _, system := range s.systems {
				assert.Equal(t, Instruction, system)
			}
		})
	}
}

func TestAnalyzeEmptyText(t *testing.T) {
	s := &scriptedSummarizer{}
	a := NewAnalyzer(s, "test", 0, logger.NewNop())

	out, err := a.Analyze(t.Context(), "")

	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Empty(t, s.calls)
}

func TestAnalyzeIsSequential(t *testing.T) {
	s := &scriptedSummarizer{delay: 20 * time.Millisecond}
	a := NewAnalyzer(s, "test", time.Second, logger.NewNop())

	text := strings.Repeat("a", 4000) + strings.Repeat("b", 4000) + strings.Repeat("c", 1000)
	_, err := a.Analyze(t.Context(), text)
	require.NoError(t, err)

	assert.False(t, s.overlap, "summarizer calls must not overlap")
	require.Len(t, s.calls, 3)
	assert.Equal(t, strings.Repeat("a", 4000), s.calls[0])
	assert.Equal(t, strings.Repeat("b", 4000), s.calls[1])
	assert.Equal(t, strings.Repeat("c", 1000), s.calls[2])
}

func TestAnalyzeAbortsOnFailure(t *testing.T) {
	s := &scriptedSummarizer{failOn: 2}
	a := NewAnalyzer(s, "test", time.Second, logger.NewNop())

	out, err := a.Analyze(t.Context(), strings.Repeat("x", 12000))

	require.ErrorIs(t, err, model.ErrAnalysis)
	assert.Empty(t, out)
	assert.Len(t, s.calls, 2, "remaining chunks must not be sent")
}

func TestAnalyzeTimeoutIsAnalysisError(t *testing.T) {
	a := NewAnalyzer(blockingSummarizer{}, "test", 10*time.Millisecond, logger.NewNop())

	_, err := a.Analyze(t.Context(), "hello")

	require.ErrorIs(t, err, model.ErrAnalysis)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

type blockingSummarizer struct{}

func (blockingSummarizer) Complete(ctx context.Context, _ *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}
