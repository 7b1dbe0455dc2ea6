package search

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/journal-coach/pkg/logger"
)

func TestCachedSearcherServesRepeatsFromMemory(t *testing.T) {
	live := &stubSearcher{items: tenItems()[:1]}
	s := NewCachedSearcher(live, NewMemoryCache(time.Minute), logger.NewNop())

	first, err := s.Search(t.Context(), "Sleep  Hygiene")
	require.NoError(t, err)
	second, err := s.Search(t.Context(), "sleep hygiene")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, live.queries, 1)
}

func TestCachedSearcherDoesNotCacheFailures(t *testing.T) {
	live := &stubSearcher{err: errors.New("down")}
	s := NewCachedSearcher(live, NewMemoryCache(time.Minute), logger.NewNop())

	_, err := s.Search(t.Context(), "q")
	require.Error(t, err)

	live.mu.Lock()
	live.err = nil
	live.items = tenItems()[:2]
	live.mu.Unlock()

	results, err := s.Search(t.Context(), "q")
	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.Len(t, live.queries, 2)
}

func TestCachedSearcherFallsThroughWhenRedisIsDown(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer rdb.Close()

	live := &stubSearcher{items: tenItems()[:3]}
	s := NewCachedSearcher(live, NewRedisCache(rdb, time.Minute), logger.NewNop())

	results, err := s.Search(t.Context(), "grounding techniques")
	require.NoError(t, err)
	assert.Len(t, results, 3)
	assert.Len(t, live.queries, 1)
}

func TestGoogleSearcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "k", r.URL.Query().Get("key"))
		assert.Equal(t, "cx1", r.URL.Query().Get("cx"))
		assert.Equal(t, "box breathing", r.URL.Query().Get("q"))
		_, _ = w.Write([]byte(`{"items":[
			{"title":"Box breathing","snippet":"Inhale for four","link":"https://example.com/box","displayLink":"example.com"},
			{"title":"Second","snippet":"s","link":"https://example.com/2"}
		]}`))
	}))
	defer srv.Close()

	g := NewGoogleSearcher(srv.URL, "k", "cx1", time.Second)
	items, err := g.Search(t.Context(), "box breathing")
	require.NoError(t, err)

	require.Len(t, items, 2)
	assert.Equal(t, WebResult{Title: "Box breathing", Snippet: "Inhale for four", Link: "https://example.com/box"}, items[0])
}

func TestGoogleSearcherAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"code":403,"message":"Daily limit exceeded"}}`))
	}))
	defer srv.Close()

	g := NewGoogleSearcher(srv.URL, "k", "cx1", time.Second)
	_, err := g.Search(t.Context(), "q")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "Daily limit exceeded")
}

func TestGoogleSearcherRequiresCredentials(t *testing.T) {
	_, err := NewGoogleSearcher("", "", "", 0).Search(t.Context(), "q")
	assert.Error(t, err)
}
