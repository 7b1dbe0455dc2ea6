package voice

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/capitalize-ai/journal-coach/internal/model"
)

// Chat is one past conversation.
type Chat struct {
	ID             string `json:"id"`
	ChatGroupID    string `json:"chat_group_id"`
	Status         string `json:"status"`
	StartTimestamp int64  `json:"start_timestamp"`
	EndTimestamp   *int64 `json:"end_timestamp,omitempty"`
	EventCount     *int64 `json:"event_count,omitempty"`
}

// ChatsPage is a page of past conversations.
type ChatsPage struct {
	PageNumber int    `json:"page_number"`
	PageSize   int    `json:"page_size"`
	TotalPages int    `json:"total_pages"`
	Chats      []Chat `json:"chats_page"`
}

// ChatEvent is one recorded event of a past conversation.
type ChatEvent struct {
	ID              string  `json:"id"`
	ChatID          string  `json:"chat_id"`
	Timestamp       int64   `json:"timestamp"`
	Role            string  `json:"role"`
	Type            string  `json:"type"`
	MessageText     *string `json:"message_text,omitempty"`
	EmotionFeatures *string `json:"emotion_features,omitempty"`
}

// EventsPage is a page of events for a chat group.
type EventsPage struct {
	ChatGroupID string      `json:"chat_group_id"`
	PageNumber  int         `json:"page_number"`
	PageSize    int         `json:"page_size"`
	TotalPages  int         `json:"total_pages"`
	Events      []ChatEvent `json:"events_page"`
}

// HistoryClient reads past conversations from the EVI REST API.
type HistoryClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewHistoryClient creates a history client.
func NewHistoryClient(baseURL, apiKey string, timeout time.Duration) *HistoryClient {
	if baseURL == "" {
		baseURL = "https://api.hume.ai"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HistoryClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// ListChats returns past conversations, most recent first.
func (c *HistoryClient) ListChats(ctx context.Context, page, size int) (*ChatsPage, error) {
	query := pageQuery(page, size)
	query.Set("ascending_order", "false")

	var out ChatsPage
	if err := c.get(ctx, "/v0/evi/chats", query, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListChatGroupEvents returns the events of one chat group in order.
func (c *HistoryClient) ListChatGroupEvents(ctx context.Context, groupID string, page, size int) (*EventsPage, error) {
	query := pageQuery(page, size)
	query.Set("ascending_order", "true")

	var out EventsPage
	path := "/v0/evi/chat_groups/" + url.PathEscape(groupID) + "/events"
	if err := c.get(ctx, path, query, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func pageQuery(page, size int) url.Values {
	if page < 0 {
		page = 0
	}
	if size <= 0 || size > 100 {
		size = 10
	}
	query := url.Values{}
	query.Set("page_number", strconv.Itoa(page))
	query.Set("page_size", strconv.Itoa(size))
	return query
}

func (c *HistoryClient) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+query.Encode(), nil)
	if err != nil {
		return fmt.Errorf("%w: %w", model.ErrTransport, err)
	}
	req.Header.Set("X-Hume-Api-Key", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", model.ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: history request returned %d: %s", model.ErrTransport, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode history response: %w", model.ErrTransport, err)
	}
	return nil
}
