package voice

import (
	"context"
	"sync"

	"github.com/capitalize-ai/journal-coach/internal/model"
)

type fakeConn struct {
	mu     sync.Mutex
	sent   []ClientEvent
	events chan ServerEvent
	err    error
	closed bool
	once   sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{events: make(chan ServerEvent, 16)}
}

func (c *fakeConn) Send(event ClientEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, event)
	return nil
}

func (c *fakeConn) Events() <-chan ServerEvent { return c.events }

func (c *fakeConn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.drop(nil)
	return nil
}

// drop ends the event stream as if the remote side went away.
func (c *fakeConn) drop(err error) {
	c.once.Do(func() {
		c.mu.Lock()
		c.err = err
		c.mu.Unlock()
		close(c.events)
	})
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) sentOfType(typ string) []ClientEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []ClientEvent
	for _, ev := range c.sent {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

type fakeTransport struct {
	mu    sync.Mutex
	dials int
	conns []*fakeConn
	err   error

	// gate, when set, blocks Dial until it is closed or ctx ends.
	gate    chan struct{}
	dialing chan struct{}
}

func (t *fakeTransport) Dial(ctx context.Context) (Conn, error) {
	t.mu.Lock()
	t.dials++
	gate, dialing := t.gate, t.dialing
	t.mu.Unlock()

	if dialing != nil {
		close(dialing)
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			// Mimic a transport that completes the handshake anyway.
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err != nil {
		return nil, t.err
	}
	conn := newFakeConn()
	t.conns = append(t.conns, conn)
	return conn, nil
}

func (t *fakeTransport) dialCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dials
}

func (t *fakeTransport) last() *fakeConn {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.conns) == 0 {
		return nil
	}
	return t.conns[len(t.conns)-1]
}

type recordedMessage struct {
	owner, chatID string
	content       string
}

type fakeRecorder struct {
	mu   sync.Mutex
	msgs []recordedMessage
}

func (r *fakeRecorder) Record(_ context.Context, ownerID, chatID string, msg model.ConversationMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, recordedMessage{owner: ownerID, chatID: chatID, content: msg.Content})
	return nil
}

func (r *fakeRecorder) recorded() []recordedMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recordedMessage(nil), r.msgs...)
}
