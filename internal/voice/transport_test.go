package voice

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/journal-coach/internal/model"
)

func TestBuildChatURL(t *testing.T) {
	u, err := buildChatURL(EVIConfig{BaseURL: "https://api.hume.ai/", APIKey: "key", ConfigID: "cfg"}, "")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(u, "wss://api.hume.ai/v0/evi/chat?"))
	assert.Contains(t, u, "api_key=key")
	assert.Contains(t, u, "config_id=cfg")

	u, err = buildChatURL(EVIConfig{BaseURL: "http://localhost:9000", APIKey: "key"}, "tok")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(u, "ws://localhost:9000/v0/evi/chat?"))
	assert.Contains(t, u, "access_token=tok")
	assert.NotContains(t, u, "api_key")
	assert.NotContains(t, u, "config_id")
}

func TestDialRequiresCredentials(t *testing.T) {
	_, err := NewEVITransport(EVIConfig{}).Dial(t.Context())
	assert.Error(t, err)
}

func TestDecodeServerEvent(t *testing.T) {
	ev, err := DecodeServerEvent([]byte(`{
		"type": "assistant_message",
		"message": {"role": "assistant", "content": "How are you feeling?"},
		"models": {"prosody": {"scores": {"Calmness": 0.7, "Interest": 0.2}}}
	}`))
	require.NoError(t, err)
	assert.Equal(t, ServerAssistantMessage, ev.Type)
	assert.Equal(t, model.RoleAssistant, ev.Role)
	assert.Equal(t, "How are you feeling?", ev.Content)
	assert.InDelta(t, 0.7, ev.Prosody["Calmness"], 1e-9)

	ev, err = DecodeServerEvent([]byte(`{"type":"user_message","message":{"role":"user","content":"ok"}}`))
	require.NoError(t, err)
	assert.Nil(t, ev.Prosody)

	ev, err = DecodeServerEvent([]byte(`{"type":"error","code":"E0100","slug":"bad","message":"config not found"}`))
	require.NoError(t, err)
	assert.Equal(t, "E0100", ev.ErrorCode)
	assert.Equal(t, "config not found", ev.ErrorText)

	ev, err = DecodeServerEvent([]byte(`{"type":"chat_metadata","chat_id":"c1","chat_group_id":"g1"}`))
	require.NoError(t, err)
	assert.Equal(t, "c1", ev.ChatID)
	assert.Equal(t, "g1", ev.ChatGroupID)

	_, err = DecodeServerEvent([]byte(`not json`))
	assert.Error(t, err)
}

// fakeEVI is a websocket server that records client events and lets the
// test push server events.
type fakeEVI struct {
	received chan ClientEvent
	push     chan string
	query    chan string
}

func newFakeEVI(t *testing.T) (*fakeEVI, *httptest.Server) {
	t.Helper()
	f := &fakeEVI{
		received: make(chan ClientEvent, 16),
		push:     make(chan string, 16),
		query:    make(chan string, 1),
	}
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.query <- r.URL.RawQuery
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()

		go func() {
			for payload := range f.push {
				if err := ws.WriteMessage(websocket.TextMessage, []byte(payload)); err != nil {
					return
				}
			}
			_ = ws.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		}()

		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			var ev ClientEvent
			if json.Unmarshal(data, &ev) == nil {
				f.received <- ev
			}
		}
	}))
	t.Cleanup(srv.Close)
	return f, srv
}

func TestEVITransportRoundTrip(t *testing.T) {
	fake, srv := newFakeEVI(t)
	tr := NewEVITransport(EVIConfig{BaseURL: srv.URL, APIKey: "secret", ConfigID: "cfg-1"})

	conn, err := tr.Dial(t.Context())
	require.NoError(t, err)
	assert.Contains(t, <-fake.query, "config_id=cfg-1")

	require.NoError(t, conn.Send(SessionSettings(&model.UploadedDocument{Name: "entry", Analysis: "calm"})))
	select {
	case ev := <-fake.received:
		assert.Equal(t, ClientSessionSettings, ev.Type)
		assert.Equal(t, "calm", ev.Variables["journal_analysis"])
	case <-time.After(time.Second):
		t.Fatal("server did not receive session settings")
	}

	fake.push <- `{"type":"assistant_message","message":{"role":"assistant","content":"hello"}}`
	select {
	case ev := <-conn.Events():
		assert.Equal(t, "hello", ev.Content)
	case <-time.After(time.Second):
		t.Fatal("client did not receive assistant message")
	}

	close(fake.push)
	for range conn.Events() {
	}
	assert.NoError(t, conn.Err(), "normal close is not an error")
	assert.NoError(t, conn.Close())
}

func TestEVITransportLocalClose(t *testing.T) {
	_, srv := newFakeEVI(t)
	tr := NewEVITransport(EVIConfig{BaseURL: srv.URL, APIKey: "secret"})

	conn, err := tr.Dial(t.Context())
	require.NoError(t, err)

	assert.NoError(t, conn.Close())
	_, open := <-conn.Events()
	assert.False(t, open)
	assert.Error(t, conn.Send(UserInput("late")))
}
