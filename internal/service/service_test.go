package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/journal-coach/internal/analysis"
	"github.com/capitalize-ai/journal-coach/internal/llm"
	"github.com/capitalize-ai/journal-coach/internal/model"
	"github.com/capitalize-ai/journal-coach/internal/repository"
	"github.com/capitalize-ai/journal-coach/internal/voice"
	"github.com/capitalize-ai/journal-coach/pkg/logger"
)

// textExtractor treats the upload body as the document text.
type textExtractor struct{}

func (textExtractor) Extract(_ context.Context, r io.Reader) (string, error) {
	b, err := io.ReadAll(r)
	return string(b), err
}

type countingSummarizer struct {
	mu     sync.Mutex
	chunks []int
}

func (s *countingSummarizer) Complete(_ context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = append(s.chunks, len([]rune(req.Messages[0].Content)))
	return &llm.CompletionResponse{Content: fmt.Sprintf("S%d", len(s.chunks))}, nil
}

// gatedAnalyzer blocks analysis of texts starting with "slow" until released.
type gatedAnalyzer struct {
	started chan struct{}
	release chan struct{}
}

func (a *gatedAnalyzer) Analyze(_ context.Context, text string) (string, error) {
	if strings.HasPrefix(text, "slow") {
		close(a.started)
		<-a.release
	}
	return "analysis of " + text, nil
}

type stubDeriver struct {
	results []model.SearchResult
	err     error
	calls   int
}

func (d *stubDeriver) Derive(_ context.Context, latest *model.ConversationMessage) (string, []model.SearchResult, error) {
	d.calls++
	if latest == nil {
		return "", nil, model.ErrNoContext
	}
	return "query", d.results, d.err
}

type recordingConn struct {
	mu     sync.Mutex
	sent   []voice.ClientEvent
	events chan voice.ServerEvent
	once   sync.Once
	closed bool

	// held and entered stall the next Send until held is closed.
	held    chan struct{}
	entered chan struct{}
}

// hold stalls the next Send. The returned channel closes once that Send is
// waiting.
func (c *recordingConn) hold() (<-chan struct{}, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	held := make(chan struct{})
	c.held = held
	c.entered = make(chan struct{})
	return c.entered, func() { close(held) }
}

func (c *recordingConn) Send(ev voice.ClientEvent) error {
	c.mu.Lock()
	held, entered := c.held, c.entered
	c.held, c.entered = nil, nil
	c.mu.Unlock()
	if held != nil {
		close(entered)
		<-held
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, ev)
	return nil
}

func (c *recordingConn) Events() <-chan voice.ServerEvent { return c.events }
func (c *recordingConn) Err() error                       { return nil }

func (c *recordingConn) Close() error {
	c.once.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.events)
	})
	return nil
}

func (c *recordingConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *recordingConn) settings() []voice.ClientEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []voice.ClientEvent
	for _, ev := range c.sent {
		if ev.Type == voice.ClientSessionSettings {
			out = append(out, ev)
		}
	}
	return out
}

type recordingTransport struct {
	mu    sync.Mutex
	conns []*recordingConn
}

func (t *recordingTransport) Dial(context.Context) (voice.Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c := &recordingConn{events: make(chan voice.ServerEvent, 8)}
	t.conns = append(t.conns, c)
	return c, nil
}

func (t *recordingTransport) last() *recordingConn {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conns[len(t.conns)-1]
}

type fixture struct {
	repo       *repository.MemoryDocumentRepository
	summarizer *countingSummarizer
	deriver    *stubDeriver
	transport  *recordingTransport
	deps       Dependencies
}

func newFixture() *fixture {
	f := &fixture{
		repo:       repository.NewMemoryDocumentRepository(),
		summarizer: &countingSummarizer{},
		deriver:    &stubDeriver{},
		transport:  &recordingTransport{},
	}
	f.deps = Dependencies{
		Extractor:   textExtractor{},
		Analyzer:    analysis.NewAnalyzer(f.summarizer, "test", time.Second, logger.NewNop()),
		Deriver:     f.deriver,
		Repository:  f.repo,
		Transport:   f.transport,
		CallTimeout: time.Second,
		Logger:      logger.NewNop(),
	}
	return f
}

func TestUploadEndToEnd(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.repo.Insert(t.Context(), &model.UploadedDocument{OwnerID: "u1", Name: "older.pdf"}))
	w := newWorkspace("u1", f.deps)
	t.Cleanup(w.Close)

	doc, err := w.Upload(t.Context(), "entry.pdf", strings.NewReader(strings.Repeat("x", 9000)))
	require.NoError(t, err)

	assert.Equal(t, []int{4000, 4000, 1000}, f.summarizer.chunks)
	assert.Equal(t, "S1S2S3", doc.Analysis)
	assert.True(t, doc.Persisted)
	assert.NotEmpty(t, doc.ID)
	assert.False(t, strings.HasPrefix(doc.ID, "local-"))

	docs, selected, err := w.Documents(t.Context())
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, doc.ID, docs[0].ID)
	assert.Equal(t, "older.pdf", docs[1].Name)
	assert.Equal(t, doc.ID, selected)
	assert.Equal(t, doc.ID, w.Session().State().SelectedID)

	stored, err := f.repo.ListByOwner(t.Context(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "S1S2S3", stored[0].Analysis)
}

func TestUploadKeepsDocumentWhenPersistenceFails(t *testing.T) {
	f := newFixture()
	w := newWorkspace("u1", f.deps)
	t.Cleanup(w.Close)
	_, _, err := w.Documents(t.Context())
	require.NoError(t, err)
	f.repo.Fail = errors.New("connection refused")

	doc, err := w.Upload(t.Context(), "entry.pdf", strings.NewReader("short entry"))

	require.ErrorIs(t, err, model.ErrPersistence)
	require.NotNil(t, doc)
	assert.False(t, doc.Persisted)
	assert.True(t, strings.HasPrefix(doc.ID, "local-"))
	assert.Equal(t, "S1", doc.Analysis)

	docs, selected, err := w.Documents(t.Context())
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, doc.ID, selected)
}

func TestUploadWithoutOwnerStaysLocal(t *testing.T) {
	f := newFixture()
	w := newWorkspace("", f.deps)
	t.Cleanup(w.Close)

	doc, err := w.Upload(t.Context(), "entry.pdf", strings.NewReader("anonymous"))

	require.NoError(t, err)
	assert.False(t, doc.Persisted)
	stored, err := f.repo.ListByOwner(t.Context(), "")
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestSupersededUploadIsDiscarded(t *testing.T) {
	f := newFixture()
	gate := &gatedAnalyzer{started: make(chan struct{}), release: make(chan struct{})}
	f.deps.Analyzer = gate
	w := newWorkspace("u1", f.deps)
	t.Cleanup(w.Close)

	slow := make(chan error, 1)
	go func() {
		_, err := w.Upload(t.Context(), "slow.pdf", strings.NewReader("slow entry"))
		slow <- err
	}()
	<-gate.started

	fast, err := w.Upload(t.Context(), "fast.pdf", strings.NewReader("fast entry"))
	require.NoError(t, err)
	close(gate.release)

	require.ErrorIs(t, <-slow, model.ErrSuperseded)
	docs, selected, err := w.Documents(t.Context())
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, fast.ID, selected)
}

func TestSelectionRePrimesOpenSession(t *testing.T) {
	f := newFixture()
	w := newWorkspace("u1", f.deps)
	t.Cleanup(w.Close)

	require.NoError(t, w.Session().Connect(t.Context()))
	a, err := w.Upload(t.Context(), "a.pdf", strings.NewReader("entry a"))
	require.NoError(t, err)
	b, err := w.Upload(t.Context(), "b.pdf", strings.NewReader("entry b"))
	require.NoError(t, err)
	require.NoError(t, w.Select(t.Context(), ""))

	settings := f.transport.last().settings()
	require.Len(t, settings, 2)
	assert.Equal(t, a.Analysis, settings[0].Variables["journal_analysis"])
	assert.Equal(t, b.Analysis, settings[1].Variables["journal_analysis"])

	require.NoError(t, w.Select(t.Context(), a.ID))
	assert.Len(t, f.transport.last().settings(), 3)
	assert.ErrorIs(t, w.Select(t.Context(), "missing"), model.ErrDocumentNotFound)
}

func TestDocumentsLoadRetriesAfterFailure(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.repo.Insert(t.Context(), &model.UploadedDocument{OwnerID: "u1", Name: "stored.pdf"}))
	f.repo.Fail = errors.New("timeout")
	w := newWorkspace("u1", f.deps)
	t.Cleanup(w.Close)

	_, _, err := w.Documents(t.Context())
	require.ErrorIs(t, err, model.ErrPersistence)

	f.repo.Fail = nil
	docs, _, err := w.Documents(t.Context())
	require.NoError(t, err)
	require.Len(t, docs, 1)

	got, err := w.Document(t.Context(), docs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "stored.pdf", got.Name)
}

func TestSearchKeepsPreviousResultsOnFailure(t *testing.T) {
	f := newFixture()
	f.deriver.results = []model.SearchResult{{Title: "t", Summary: "s", URL: "u"}}
	w := newWorkspace("u1", f.deps)
	t.Cleanup(w.Close)

	_, err := w.Search(t.Context())
	require.ErrorIs(t, err, model.ErrNoContext)
	assert.Empty(t, w.SearchResults().Results)

	require.NoError(t, w.Session().Connect(t.Context()))
	f.transport.last().events <- voice.ServerEvent{Type: voice.ServerAssistantMessage, Role: model.RoleAssistant, Content: "Try a walk."}
	require.Eventually(t, func() bool { return w.Session().LatestAssistantMessage() != nil }, time.Second, 5*time.Millisecond)

	resp, err := w.Search(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "query", resp.Query)
	require.Len(t, resp.Results, 1)

	f.deriver.err = model.ErrEmptyQuery
	_, err = w.Search(t.Context())
	require.ErrorIs(t, err, model.ErrEmptyQuery)
	assert.Len(t, w.SearchResults().Results, 1)
}

func TestCoachServiceReusesAndEvictsWorkspaces(t *testing.T) {
	f := newFixture()
	svc := NewCoachService(f.deps, 60*time.Millisecond)
	t.Cleanup(func() { svc.Shutdown(context.Background()) })

	w := svc.Workspace("u1")
	assert.Same(t, w, svc.Workspace("u1"))
	assert.NotSame(t, w, svc.Workspace("u2"))

	require.NoError(t, w.Session().Connect(t.Context()))
	conn := f.transport.last()

	require.Eventually(t, conn.isClosed, 2*time.Second, 10*time.Millisecond, "idle workspace must release its connection")
	assert.NotSame(t, w, svc.Workspace("u1"))
}

func TestCoachServiceTouchKeepsStreamedWorkspace(t *testing.T) {
	f := newFixture()
	svc := NewCoachService(f.deps, 60*time.Millisecond)
	t.Cleanup(func() { svc.Shutdown(context.Background()) })

	w := svc.Workspace("u1")
	require.NoError(t, w.Session().Connect(t.Context()))
	conn := f.transport.last()

	svc.Touch("nobody")
	for deadline := time.Now().Add(250 * time.Millisecond); time.Now().Before(deadline); {
		svc.Touch("u1")
		time.Sleep(10 * time.Millisecond)
	}
	assert.False(t, conn.isClosed())
	assert.Equal(t, model.StatusOpen, w.Session().State().Status)

	require.Eventually(t, conn.isClosed, 2*time.Second, 10*time.Millisecond)
	assert.NotSame(t, w, svc.Workspace("u1"))
}

func TestSelectionDoesNotHoldWorkspaceDuringSend(t *testing.T) {
	f := newFixture()
	w := newWorkspace("u1", f.deps)
	t.Cleanup(w.Close)

	a, err := w.Upload(t.Context(), "a.pdf", strings.NewReader("entry a"))
	require.NoError(t, err)
	_, err = w.Upload(t.Context(), "b.pdf", strings.NewReader("entry b"))
	require.NoError(t, err)
	require.NoError(t, w.Session().Connect(t.Context()))
	conn := f.transport.last()
	entered, release := conn.hold()

	selected := make(chan error, 1)
	go func() { selected <- w.Select(context.Background(), a.ID) }()
	<-entered

	listed := make(chan string, 1)
	go func() {
		_, id, _ := w.Documents(context.Background())
		listed <- id
	}()
	select {
	case id := <-listed:
		assert.Equal(t, a.ID, id)
	case <-time.After(time.Second):
		t.Fatal("Documents blocked behind a pending session send")
	}

	release()
	require.NoError(t, <-selected)
	assert.Equal(t, a.ID, w.Session().State().SelectedID)
	assert.Len(t, conn.settings(), 2)
}

func TestCoachServiceShutdownClosesSessions(t *testing.T) {
	f := newFixture()
	svc := NewCoachService(f.deps, 0)

	w := svc.Workspace("u1")
	require.NoError(t, w.Session().Connect(t.Context()))
	conn := f.transport.last()

	svc.Shutdown(context.Background())

	assert.True(t, conn.isClosed())
	_, err := w.Upload(t.Context(), "late.pdf", strings.NewReader("late"))
	assert.ErrorIs(t, err, model.ErrSuperseded)
}
