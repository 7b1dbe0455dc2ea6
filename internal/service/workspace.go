package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/capitalize-ai/journal-coach/internal/model"
	"github.com/capitalize-ai/journal-coach/internal/voice"
	"github.com/capitalize-ai/journal-coach/pkg/logger"
	"github.com/capitalize-ai/journal-coach/pkg/metrics"
	"github.com/capitalize-ai/journal-coach/pkg/tracing"
)

var tracer = tracing.Tracer("github.com/capitalize-ai/journal-coach/internal/service")

// Workspace is one user's coaching state: their documents, the selected
// document, the live voice session and the latest search results.
type Workspace struct {
	ownerID string
	deps    Dependencies
	session *voice.Session
	logger  *logger.Logger

	// promptMu orders prompt updates; it is never held with mu across a send.
	promptMu sync.Mutex

	mu         sync.Mutex
	docs       []model.UploadedDocument
	loaded     bool
	selectedID string
	uploadGen  uint64
	searchGen  uint64
	search     model.SearchResponse
	closed     bool
}

func newWorkspace(ownerID string, deps Dependencies) *Workspace {
	log := deps.Logger.With(zap.String("owner_id", ownerID))
	return &Workspace{
		ownerID: ownerID,
		deps:    deps,
		logger:  log,
		session: voice.NewSession(deps.Transport, voice.Options{
			OwnerID:   ownerID,
			TurnPause: deps.TurnPause,
			Recorder:  deps.Recorder,
			Chats:     deps.Chats,
			Logger:    log,
		}),
		search: model.SearchResponse{Results: []model.SearchResult{}},
	}
}

// Session returns the live voice session.
func (w *Workspace) Session() *voice.Session {
	return w.session
}

// Documents returns the user's documents, most recent first. Persisted
// documents are loaded on first use; a failed load is retried next time.
func (w *Workspace) Documents(ctx context.Context) ([]model.UploadedDocument, string, error) {
	err := w.ensureLoaded(ctx)

	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]model.UploadedDocument, len(w.docs))
	copy(out, w.docs)
	return out, w.selectedID, err
}

// Document returns one document by id.
func (w *Workspace) Document(ctx context.Context, id string) (*model.UploadedDocument, error) {
	loadErr := w.ensureLoaded(ctx)

	w.mu.Lock()
	defer w.mu.Unlock()
	if doc := w.findLocked(id); doc != nil {
		return doc, nil
	}
	if loadErr != nil {
		return nil, loadErr
	}
	return nil, model.ErrDocumentNotFound
}

func (w *Workspace) ensureLoaded(ctx context.Context) error {
	w.mu.Lock()
	if w.loaded || w.ownerID == "" || w.deps.Repository == nil {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	ctx, cancel := w.callContext(ctx)
	defer cancel()
	stored, err := w.deps.Repository.ListByOwner(ctx, w.ownerID)
	if err != nil {
		w.logger.Warn("failed to load documents", zap.Error(err))
		return persistenceErr(err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.loaded {
		return nil
	}

	seen := make(map[string]bool, len(stored))
	for _, doc := range stored {
		seen[doc.ID] = true
	}
	merged := make([]model.UploadedDocument, 0, len(w.docs)+len(stored))
	for _, doc := range w.docs {
		if !seen[doc.ID] {
			merged = append(merged, doc)
		}
	}
	w.docs = append(merged, stored...)
	w.loaded = true
	return nil
}

// Upload extracts, analyzes and stores a document, then selects it.
//
// If persistence fails the document is kept for this session only and is
// still selected; the returned error wraps ErrPersistence. If a newer upload
// starts or the workspace closes before analysis finishes, the result is
// discarded with ErrSuperseded.
func (w *Workspace) Upload(ctx context.Context, name string, r io.Reader) (*model.UploadedDocument, error) {
	ctx, span := tracer.Start(ctx, "workspace.upload")
	defer span.End()
	span.SetAttributes(attribute.String("document.name", name))

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil, model.ErrSuperseded
	}
	w.uploadGen++
	gen := w.uploadGen
	w.mu.Unlock()

	doc, err := w.upload(ctx, gen, name, r)
	status := "success"
	switch {
	case errors.Is(err, model.ErrSuperseded):
		status = "superseded"
	case errors.Is(err, model.ErrPersistence):
		status = "unsaved"
	case err != nil:
		status = "error"
	}
	metrics.DocumentsUploaded.WithLabelValues(status).Inc()
	if err != nil {
		span.RecordError(err)
		if doc == nil {
			span.SetStatus(codes.Error, err.Error())
		}
	}
	return doc, err
}

func (w *Workspace) upload(ctx context.Context, gen uint64, name string, r io.Reader) (*model.UploadedDocument, error) {
	// Load first so the new document lands ahead of the stored ones.
	_ = w.ensureLoaded(ctx)

	text, err := w.deps.Extractor.Extract(ctx, r)
	if err != nil {
		return nil, err
	}
	analysis, err := w.deps.Analyzer.Analyze(ctx, text)
	if err != nil {
		return nil, err
	}
	if w.superseded(gen) {
		w.logger.Info("discarding superseded upload", zap.String("name", name))
		return nil, model.ErrSuperseded
	}

	doc := &model.UploadedDocument{
		OwnerID:  w.ownerID,
		Name:     name,
		Content:  text,
		Analysis: analysis,
	}

	var persistErr error
	if w.ownerID != "" && w.deps.Repository != nil {
		callCtx, cancel := w.callContext(ctx)
		if err := w.deps.Repository.Insert(callCtx, doc); err != nil {
			persistErr = persistenceErr(err)
			w.logger.Warn("keeping unsaved document for this session", zap.Error(err))
		}
		cancel()
	}
	if !doc.Persisted {
		doc.ID = "local-" + uuid.New().String()
		doc.CreatedAt = time.Now().UTC()
	}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil, model.ErrSuperseded
	}
	w.docs = append([]model.UploadedDocument{*doc}, w.docs...)
	latest := gen == w.uploadGen
	if latest {
		w.selectedID = doc.ID
	}
	w.mu.Unlock()

	if latest {
		w.applySelection()
	}
	w.logger.Info("document uploaded",
		zap.String("document_id", doc.ID),
		zap.Bool("persisted", doc.Persisted),
		zap.Int("chars", len(text)),
	)
	return doc, persistErr
}

func (w *Workspace) superseded(gen uint64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed || gen != w.uploadGen
}

// Select makes id the document that primes the voice session. An empty id
// clears the selection without changing an active prompt.
func (w *Workspace) Select(ctx context.Context, id string) error {
	if id == "" {
		w.mu.Lock()
		w.selectedID = ""
		w.mu.Unlock()
		w.applySelection()
		return nil
	}

	loadErr := w.ensureLoaded(ctx)

	w.mu.Lock()
	if w.findLocked(id) == nil {
		w.mu.Unlock()
		if loadErr != nil {
			return loadErr
		}
		return model.ErrDocumentNotFound
	}
	w.selectedID = id
	w.mu.Unlock()

	w.applySelection()
	return nil
}

// applySelection hands the currently selected document to the session.
// Sending settings may block on the connection, so mu is not held; the
// selection is re-read under promptMu so the last selection always wins.
func (w *Workspace) applySelection() {
	w.promptMu.Lock()
	defer w.promptMu.Unlock()

	w.mu.Lock()
	var doc *model.UploadedDocument
	if w.selectedID != "" {
		doc = w.findLocked(w.selectedID)
	}
	w.mu.Unlock()

	if err := w.session.SetDocument(doc); err != nil {
		w.logger.Warn("failed to update session prompt", zap.Error(err))
	}
}

func (w *Workspace) findLocked(id string) *model.UploadedDocument {
	for i := range w.docs {
		if w.docs[i].ID == id {
			doc := w.docs[i]
			return &doc
		}
	}
	return nil
}

// Search derives a query from the latest assistant message and replaces the
// current results. On failure the previous results are kept.
func (w *Workspace) Search(ctx context.Context) (*model.SearchResponse, error) {
	ctx, span := tracer.Start(ctx, "workspace.search")
	defer span.End()

	w.mu.Lock()
	w.searchGen++
	gen := w.searchGen
	w.mu.Unlock()

	query, results, err := w.deps.Deriver.Derive(ctx, w.session.LatestAssistantMessage())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("search.results", len(results)))

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed || gen != w.searchGen {
		return nil, model.ErrSuperseded
	}
	w.search = model.SearchResponse{Query: query, Results: results}
	resp := w.search
	return &resp, nil
}

// SearchResults returns the results of the last successful search.
func (w *Workspace) SearchResults() model.SearchResponse {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.search
}

// Close releases the voice session. Work still in flight is discarded.
func (w *Workspace) Close() {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
	w.session.Close()
}

func (w *Workspace) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if w.deps.CallTimeout > 0 {
		return context.WithTimeout(ctx, w.deps.CallTimeout)
	}
	return context.WithCancel(ctx)
}

func persistenceErr(err error) error {
	if errors.Is(err, model.ErrPersistence) {
		return err
	}
	return fmt.Errorf("%w: %w", model.ErrPersistence, err)
}
