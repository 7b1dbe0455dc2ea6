package voice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/oauth2"
)

// Transport opens live conversation connections.
type Transport interface {
	Dial(ctx context.Context) (Conn, error)
}

// Conn is one open conversation. Events is closed when the connection ends;
// Err then reports why, or nil for a clean close.
type Conn interface {
	Send(event ClientEvent) error
	Events() <-chan ServerEvent
	Err() error
	Close() error
}

// EVIConfig controls the EVI websocket transport.
type EVIConfig struct {
	BaseURL  string
	APIKey   string
	ConfigID string

	// Tokens, when set, authenticates with short-lived access tokens
	// instead of sending the API key on the socket URL.
	Tokens oauth2.TokenSource
}

// EVITransport dials the EVI chat websocket.
type EVITransport struct {
	cfg    EVIConfig
	dialer *websocket.Dialer
}

// NewEVITransport creates a transport.
func NewEVITransport(cfg EVIConfig) *EVITransport {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.hume.ai"
	}
	return &EVITransport{
		cfg: cfg,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 15 * time.Second,
		},
	}
}

// Dial opens a chat socket. The returned connection outlives ctx.
func (t *EVITransport) Dial(ctx context.Context) (Conn, error) {
	var token string
	if t.cfg.Tokens != nil {
		tok, err := t.cfg.Tokens.Token()
		if err != nil {
			return nil, fmt.Errorf("failed to fetch access token: %w", err)
		}
		token = tok.AccessToken
	} else if strings.TrimSpace(t.cfg.APIKey) == "" {
		return nil, errors.New("HUME_API_KEY is not configured")
	}

	wsURL, err := buildChatURL(t.cfg, token)
	if err != nil {
		return nil, err
	}

	ws, _, err := t.dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to EVI websocket: %w", err)
	}

	return startConn(ws), nil
}

func buildChatURL(cfg EVIConfig, accessToken string) (string, error) {
	base := strings.TrimSpace(cfg.BaseURL)
	if strings.HasPrefix(base, "https://") {
		base = "wss://" + strings.TrimPrefix(base, "https://")
	} else if strings.HasPrefix(base, "http://") {
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	base = strings.TrimRight(base, "/")

	chatURL, err := url.Parse(base + "/v0/evi/chat")
	if err != nil {
		return "", fmt.Errorf("invalid EVI base URL: %w", err)
	}

	query := chatURL.Query()
	if cfg.ConfigID != "" {
		query.Set("config_id", cfg.ConfigID)
	}
	if accessToken != "" {
		query.Set("access_token", accessToken)
	} else {
		query.Set("api_key", cfg.APIKey)
	}
	chatURL.RawQuery = query.Encode()
	return chatURL.String(), nil
}

type eviConn struct {
	ws *websocket.Conn

	events   chan ServerEvent
	outbound chan []byte
	closing  chan struct{}
	done     chan struct{}

	wg sync.WaitGroup

	errMu sync.Mutex
	err   error

	closeOnce sync.Once
}

func startConn(ws *websocket.Conn) *eviConn {
	c := &eviConn{
		ws:       ws,
		events:   make(chan ServerEvent, 64),
		outbound: make(chan []byte, 64),
		closing:  make(chan struct{}),
		done:     make(chan struct{}),
	}

	c.wg.Add(2)
	go c.readLoop()
	go c.writeLoop()
	go func() {
		c.wg.Wait()
		close(c.events)
		close(c.done)
		_ = ws.Close()
	}()

	return c
}

func (c *eviConn) Send(event ClientEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if c.isClosing() {
		return errors.New("connection closed")
	}

	select {
	case c.outbound <- payload:
		return nil
	case <-c.closing:
		return errors.New("connection closed")
	case <-c.done:
		if err := c.Err(); err != nil {
			return err
		}
		return errors.New("connection closed")
	}
}

func (c *eviConn) Events() <-chan ServerEvent {
	return c.events
}

func (c *eviConn) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

func (c *eviConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.closing)
		_ = c.ws.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		_ = c.ws.Close()
	})
	<-c.done
	return c.Err()
}

func (c *eviConn) isClosing() bool {
	select {
	case <-c.closing:
		return true
	default:
		return false
	}
}

func (c *eviConn) setErr(err error) {
	if err == nil || c.isClosing() {
		return
	}
	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	) {
		return
	}

	c.errMu.Lock()
	defer c.errMu.Unlock()
	if c.err == nil {
		c.err = err
	}
}

func (c *eviConn) writeLoop() {
	defer c.wg.Done()

	for {
		select {
		case payload := <-c.outbound:
			if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.setErr(fmt.Errorf("failed to send event: %w", err))
				_ = c.ws.Close()
				return
			}
		case <-c.closing:
			return
		}
	}
}

func (c *eviConn) readLoop() {
	defer c.wg.Done()
	// Unblock the writer when the remote side goes away.
	defer c.closeOnce.Do(func() { close(c.closing) })

	for {
		_, payload, err := c.ws.ReadMessage()
		if err != nil {
			c.setErr(fmt.Errorf("failed to read EVI event: %w", err))
			return
		}

		event, err := DecodeServerEvent(payload)
		if err != nil {
			continue
		}

		select {
		case c.events <- event:
		case <-c.closing:
			return
		}
	}
}
