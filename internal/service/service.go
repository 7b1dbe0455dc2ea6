// Package service coordinates document analysis, the voice session and web
// search for each user.
package service

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/capitalize-ai/journal-coach/internal/model"
	"github.com/capitalize-ai/journal-coach/internal/repository"
	"github.com/capitalize-ai/journal-coach/internal/voice"
	"github.com/capitalize-ai/journal-coach/pkg/logger"
	"github.com/capitalize-ai/journal-coach/pkg/metrics"
)

// Extractor turns an uploaded document into text.
type Extractor interface {
	Extract(ctx context.Context, r io.Reader) (string, error)
}

// Analyzer summarizes document text.
type Analyzer interface {
	Analyze(ctx context.Context, text string) (string, error)
}

// Deriver turns the latest assistant message into search results.
type Deriver interface {
	Derive(ctx context.Context, latest *model.ConversationMessage) (string, []model.SearchResult, error)
}

// Dependencies are shared by every workspace.
type Dependencies struct {
	Extractor  Extractor
	Analyzer   Analyzer
	Deriver    Deriver
	Repository repository.DocumentRepository
	Transport  voice.Transport
	Recorder   voice.Recorder
	Chats      voice.ChatRecorder

	TurnPause   time.Duration
	CallTimeout time.Duration
	Logger      *logger.Logger
}

// CoachService hands out one workspace per user and closes workspaces that
// have been idle for longer than the configured TTL.
type CoachService struct {
	deps       Dependencies
	workspaces *cache.Cache
	mu         sync.Mutex
	logger     *logger.Logger
}

// NewCoachService creates the service. An idleTTL of zero keeps workspaces
// until Shutdown.
func NewCoachService(deps Dependencies, idleTTL time.Duration) *CoachService {
	if deps.Logger == nil {
		deps.Logger = logger.NewNop()
	}

	expiration, cleanup := cache.NoExpiration, time.Duration(0)
	if idleTTL > 0 {
		expiration, cleanup = idleTTL, idleTTL/2
	}

	s := &CoachService{
		deps:       deps,
		workspaces: cache.New(expiration, cleanup),
		logger:     deps.Logger,
	}
	s.workspaces.OnEvicted(func(ownerID string, v interface{}) {
		s.logger.Info("closing idle workspace", zap.String("owner_id", ownerID))
		v.(*Workspace).Close()
		metrics.WorkspacesActive.Dec()
	})
	return s
}

// Workspace returns the user's workspace, creating it on first use. Each
// call extends the workspace's idle deadline.
func (s *CoachService) Workspace(ownerID string) *Workspace {
	s.mu.Lock()
	defer s.mu.Unlock()

	if x, found := s.workspaces.Get(ownerID); found {
		w := x.(*Workspace)
		s.workspaces.SetDefault(ownerID, w)
		return w
	}

	// An expired entry not yet swept would be replaced without eviction.
	s.workspaces.DeleteExpired()

	w := newWorkspace(ownerID, s.deps)
	s.workspaces.SetDefault(ownerID, w)
	metrics.WorkspacesActive.Inc()
	s.logger.Debug("workspace created", zap.String("owner_id", ownerID))
	return w
}

// Touch extends the idle deadline of an existing workspace. It is called
// while a client holds the event stream open so a live conversation is not
// evicted between requests.
func (s *CoachService) Touch(ownerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if x, found := s.workspaces.Get(ownerID); found {
		s.workspaces.SetDefault(ownerID, x)
	}
}

// Shutdown closes every workspace.
func (s *CoachService) Shutdown(ctx context.Context) {
	s.mu.Lock()
	items := s.workspaces.Items()
	s.workspaces.Flush()
	s.mu.Unlock()

	for _, item := range items {
		select {
		case <-ctx.Done():
			return
		default:
		}
		item.Object.(*Workspace).Close()
		metrics.WorkspacesActive.Dec()
	}
}
