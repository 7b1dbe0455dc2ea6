package voice

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/journal-coach/internal/model"
)

func TestHistoryListChats(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v0/evi/chats", r.URL.Path)
		assert.Equal(t, "key", r.Header.Get("X-Hume-Api-Key"))
		assert.Equal(t, "2", r.URL.Query().Get("page_number"))
		assert.Equal(t, "5", r.URL.Query().Get("page_size"))
		assert.Equal(t, "false", r.URL.Query().Get("ascending_order"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"page_number": 2, "page_size": 5, "total_pages": 3,
			"chats_page": [{"id": "c1", "chat_group_id": "g1", "status": "COMPLETED", "start_timestamp": 1700000000000, "event_count": 12}]
		}`))
	}))
	defer srv.Close()

	client := NewHistoryClient(srv.URL, "key", time.Second)
	page, err := client.ListChats(t.Context(), 2, 5)
	require.NoError(t, err)

	assert.Equal(t, 3, page.TotalPages)
	require.Len(t, page.Chats, 1)
	assert.Equal(t, "g1", page.Chats[0].ChatGroupID)
	require.NotNil(t, page.Chats[0].EventCount)
	assert.Equal(t, int64(12), *page.Chats[0].EventCount)
	assert.Nil(t, page.Chats[0].EndTimestamp)
}

func TestHistoryListChatGroupEvents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v0/evi/chat_groups/g1/events", r.URL.Path)
		assert.Equal(t, "10", r.URL.Query().Get("page_size"))
		_, _ = w.Write([]byte(`{
			"chat_group_id": "g1", "page_number": 0, "page_size": 10, "total_pages": 1,
			"events_page": [
				{"id": "e1", "chat_id": "c1", "timestamp": 1, "role": "USER", "type": "USER_MESSAGE", "message_text": "hi"},
				{"id": "e2", "chat_id": "c1", "timestamp": 2, "role": "SYSTEM", "type": "SYSTEM_PROMPT"}
			]
		}`))
	}))
	defer srv.Close()

	client := NewHistoryClient(srv.URL, "key", time.Second)
	page, err := client.ListChatGroupEvents(t.Context(), "g1", 0, 0)
	require.NoError(t, err)

	require.Len(t, page.Events, 2)
	require.NotNil(t, page.Events[0].MessageText)
	assert.Equal(t, "hi", *page.Events[0].MessageText)
	assert.Nil(t, page.Events[1].MessageText)
}

func TestHistoryErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid api key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := NewHistoryClient(srv.URL, "bad", time.Second)
	_, err := client.ListChats(t.Context(), 0, 10)

	require.ErrorIs(t, err, model.ErrTransport)
	assert.Contains(t, err.Error(), "401")
}
