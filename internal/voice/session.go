package voice

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/capitalize-ai/journal-coach/internal/model"
	"github.com/capitalize-ai/journal-coach/pkg/logger"
	"github.com/capitalize-ai/journal-coach/pkg/metrics"
)

const (
	subscriberBuffer = 64
	recordTimeout    = 5 * time.Second
	topEmotions      = 3
)

// Recorder captures conversation messages before they are shown.
type Recorder interface {
	Record(ctx context.Context, ownerID, chatID string, msg model.ConversationMessage) error
}

// ChatRecorder is told which conversation the service opened for the owner.
type ChatRecorder interface {
	RecordChat(ctx context.Context, ownerID, chatID, chatGroupID string) error
}

// Options configures a Session.
type Options struct {
	OwnerID string

	// TurnPause holds assistant audio after each assistant message.
	// Zero disables pacing.
	TurnPause time.Duration

	Recorder Recorder
	Chats    ChatRecorder
	Logger   *logger.Logger
}

// Session owns one user's live voice conversation. At most one connection
// is open at a time; a generation counter discards results and callbacks
// that belong to a connection the session has moved past.
type Session struct {
	transport Transport
	opts      Options
	logger    *logger.Logger

	mu          sync.Mutex
	gen         uint64
	status      model.ConnectionStatus
	muted       bool
	errMsg      string
	doc         *model.UploadedDocument
	chatID      string
	chatGroupID string
	messages    []model.ConversationMessage
	conn        Conn
	cancelDial  context.CancelFunc
	pauseTimer  *time.Timer
	pauseSeq    uint64
	subs        map[uint64]chan model.SessionEvent
	nextSub     uint64
	closed      bool
}

// NewSession creates an idle session.
func NewSession(transport Transport, opts Options) *Session {
	log := opts.Logger
	if log == nil {
		log = logger.NewNop()
	}
	return &Session{
		transport: transport,
		opts:      opts,
		logger:    log.With(zap.String("owner_id", opts.OwnerID)),
		status:    model.StatusIdle,
		subs:      make(map[uint64]chan model.SessionEvent),
	}
}

// Connect opens the conversation. It is a no-op while connecting or open.
// If Disconnect is called before the dial completes, the late connection is
// closed and ErrSuperseded is returned.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("%w: session closed", model.ErrTransport)
	}
	if s.status == model.StatusConnecting || s.status == model.StatusOpen {
		s.mu.Unlock()
		return nil
	}

	s.gen++
	gen := s.gen
	dialCtx, cancel := context.WithCancel(ctx)
	s.cancelDial = cancel
	s.status = model.StatusConnecting
	s.errMsg = ""
	s.muted = false
	s.messages = nil
	s.chatID = ""
	s.chatGroupID = ""
	s.publishStateLocked()
	s.mu.Unlock()

	conn, err := s.transport.Dial(dialCtx)
	cancel()

	s.mu.Lock()
	if s.gen != gen || s.closed {
		s.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return model.ErrSuperseded
	}
	s.cancelDial = nil

	if err != nil {
		s.status = model.StatusError
		s.errMsg = err.Error()
		s.publishStateLocked()
		s.mu.Unlock()
		s.logger.Warn("voice connect failed", zap.Error(err))
		return fmt.Errorf("%w: %w", model.ErrTransport, err)
	}

	s.conn = conn
	s.status = model.StatusOpen
	metrics.VoiceSessionsActive.Inc()
	if s.doc != nil {
		s.sendLocked(SessionSettings(s.doc))
	}
	s.publishStateLocked()
	s.mu.Unlock()

	s.logger.Info("voice session open")
	go s.consume(gen, conn)
	return nil
}

// Disconnect closes the conversation, or cancels a dial in progress.
// It always succeeds locally.
func (s *Session) Disconnect() {
	s.mu.Lock()
	conn := s.resetLocked(model.StatusIdle, "")
	s.messages = nil
	s.publishStateLocked()
	s.mu.Unlock()

	if conn != nil {
		if err := conn.Close(); err != nil {
			s.logger.Debug("voice connection closed with error", zap.Error(err))
		}
	}
}

// Close tears the session down and ends every subscription.
func (s *Session) Close() {
	s.Disconnect()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for id, ch := range s.subs {
		close(ch)
		delete(s.subs, id)
	}
}

// resetLocked moves to status and returns the connection to release.
func (s *Session) resetLocked(status model.ConnectionStatus, errMsg string) Conn {
	s.gen++
	if s.cancelDial != nil {
		s.cancelDial()
		s.cancelDial = nil
	}
	s.stopPauseLocked()

	conn := s.conn
	if conn != nil {
		metrics.VoiceSessionsActive.Dec()
	}
	s.conn = nil
	s.status = status
	s.errMsg = errMsg
	s.muted = false
	return conn
}

// Mute stops forwarding audio without closing the connection.
func (s *Session) Mute() error {
	return s.setMuted(true)
}

// Unmute resumes forwarding audio.
func (s *Session) Unmute() error {
	return s.setMuted(false)
}

func (s *Session) setMuted(muted bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != model.StatusOpen {
		return model.ErrNotConnected
	}
	if s.muted != muted {
		s.muted = muted
		s.publishStateLocked()
	}
	return nil
}

// SetDocument selects the document that primes the conversation. While
// open, switching to a different document sends new session settings.
// A nil document leaves the active prompt untouched.
func (s *Session) SetDocument(doc *model.UploadedDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.doc
	s.doc = doc
	defer s.publishStateLocked()

	if doc == nil || s.status != model.StatusOpen || s.conn == nil {
		return nil
	}
	if prev != nil && prev.ID == doc.ID {
		return nil
	}
	if err := s.conn.Send(SessionSettings(doc)); err != nil {
		return fmt.Errorf("%w: %w", model.ErrTransport, err)
	}
	return nil
}

// SendAudio forwards captured audio. Audio is dropped while muted.
func (s *Session) SendAudio(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != model.StatusOpen || s.conn == nil {
		return model.ErrNotConnected
	}
	if s.muted || len(data) == 0 {
		return nil
	}
	if err := s.conn.Send(AudioInput(data)); err != nil {
		return fmt.Errorf("%w: %w", model.ErrTransport, err)
	}
	return nil
}

// SendText injects a typed user turn.
func (s *Session) SendText(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != model.StatusOpen || s.conn == nil {
		return model.ErrNotConnected
	}
	if err := s.conn.Send(UserInput(text)); err != nil {
		return fmt.Errorf("%w: %w", model.ErrTransport, err)
	}
	return nil
}

// State returns a snapshot of the session.
func (s *Session) State() model.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

// Messages returns the messages of the current conversation in arrival order.
func (s *Session) Messages() []model.ConversationMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.ConversationMessage, len(s.messages))
	copy(out, s.messages)
	return out
}

// LatestAssistantMessage returns the most recent assistant message, or nil.
func (s *Session) LatestAssistantMessage() *model.ConversationMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].Role == model.RoleAssistant {
			msg := s.messages[i]
			return &msg
		}
	}
	return nil
}

// Subscribe returns a channel of session events in the order they happen,
// starting with the current state. Events are dropped for a subscriber that
// falls behind. The returned func ends the subscription.
func (s *Session) Subscribe() (<-chan model.SessionEvent, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan model.SessionEvent, subscriberBuffer)
	if s.closed {
		close(ch)
		return ch, func() {}
	}

	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch

	state := s.stateLocked()
	ch <- model.SessionEvent{Type: model.SessionEventState, State: &state, At: time.Now()}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if sub, ok := s.subs[id]; ok {
				close(sub)
				delete(s.subs, id)
			}
		})
	}
}

func (s *Session) consume(gen uint64, conn Conn) {
	for ev := range conn.Events() {
		s.handle(gen, conn, ev)
	}
	s.dropped(gen, conn)
}

func (s *Session) handle(gen uint64, conn Conn, ev ServerEvent) {
	switch ev.Type {
	case ServerUserMessage, ServerAssistantMessage:
		msg := model.ConversationMessage{
			ID:         uuid.New().String(),
			Role:       ev.Role,
			Content:    ev.Content,
			Prosody:    ev.Prosody,
			Emotions:   ev.Prosody.Top(topEmotions),
			ReceivedAt: time.Now().UTC(),
		}
		s.record(gen, msg)

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.gen != gen {
			return
		}
		s.messages = append(s.messages, msg)
		metrics.VoiceMessagesTotal.WithLabelValues(string(msg.Role)).Inc()
		s.publishLocked(model.SessionEvent{Type: model.SessionEventMessage, Message: &msg})
		if msg.Role == model.RoleAssistant && s.opts.TurnPause > 0 {
			s.sendLocked(PauseAssistant())
			s.armResumeLocked(gen, conn)
		}

	case ServerChatMetadata:
		s.mu.Lock()
		if s.gen != gen {
			s.mu.Unlock()
			return
		}
		s.chatID = ev.ChatID
		s.chatGroupID = ev.ChatGroupID
		s.publishStateLocked()
		s.mu.Unlock()

		s.recordChat(ev.ChatID, ev.ChatGroupID)

	case ServerAssistantEnd:
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.gen != gen {
			return
		}
		s.publishLocked(model.SessionEvent{Type: model.SessionEventAssistantEnd})

	case ServerUserInterruption:
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.gen != gen {
			return
		}
		s.publishLocked(model.SessionEvent{Type: model.SessionEventInterruption})

	case ServerAudioOutput:
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.gen != gen {
			return
		}
		s.publishLocked(model.SessionEvent{Type: model.SessionEventAudioOutput, Audio: ev.Audio})

	case ServerError:
		s.logger.Warn("voice service error",
			zap.String("code", ev.ErrorCode),
			zap.String("message", ev.ErrorText),
		)
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.gen != gen {
			return
		}
		s.publishLocked(model.SessionEvent{Type: model.SessionEventError, Error: ev.ErrorText})
	}
}

// record offers msg to the recorder. Failures are logged and do not block
// the conversation.
func (s *Session) record(gen uint64, msg model.ConversationMessage) {
	if s.opts.Recorder == nil {
		return
	}

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	chatID := s.chatID
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	if err := s.opts.Recorder.Record(ctx, s.opts.OwnerID, chatID, msg); err != nil {
		s.logger.Warn("failed to record message",
			zap.String("chat_id", chatID),
			zap.String("role", string(msg.Role)),
			zap.Error(err),
		)
	}
}

// recordChat stores the conversation's owner. Anonymous sessions own nothing.
func (s *Session) recordChat(chatID, chatGroupID string) {
	if s.opts.Chats == nil || s.opts.OwnerID == "" || chatID == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	if err := s.opts.Chats.RecordChat(ctx, s.opts.OwnerID, chatID, chatGroupID); err != nil {
		s.logger.Warn("failed to record chat owner",
			zap.String("chat_id", chatID),
			zap.Error(err),
		)
	}
}

// dropped runs when the transport ends on its own.
func (s *Session) dropped(gen uint64, conn Conn) {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}

	status, errMsg := model.StatusIdle, ""
	if err := conn.Err(); err != nil {
		status, errMsg = model.StatusError, err.Error()
	}
	released := s.resetLocked(status, errMsg)
	s.publishStateLocked()
	s.mu.Unlock()

	s.logger.Info("voice connection ended", zap.String("status", string(status)))
	if released != nil {
		_ = released.Close()
	}
}

func (s *Session) armResumeLocked(gen uint64, conn Conn) {
	s.stopPauseLocked()
	s.pauseSeq++
	seq := s.pauseSeq

	s.pauseTimer = time.AfterFunc(s.opts.TurnPause, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.gen != gen || s.pauseSeq != seq || s.conn != conn {
			return
		}
		s.pauseTimer = nil
		s.sendLocked(ResumeAssistant())
	})
}

func (s *Session) stopPauseLocked() {
	if s.pauseTimer != nil {
		s.pauseTimer.Stop()
		s.pauseTimer = nil
	}
	s.pauseSeq++
}

func (s *Session) sendLocked(event ClientEvent) {
	if s.conn == nil {
		return
	}
	if err := s.conn.Send(event); err != nil {
		s.logger.Warn("failed to send voice event", zap.String("type", event.Type), zap.Error(err))
	}
}

func (s *Session) stateLocked() model.SessionState {
	state := model.SessionState{
		Status:      s.status,
		Muted:       s.muted,
		Error:       s.errMsg,
		ChatID:      s.chatID,
		ChatGroupID: s.chatGroupID,
	}
	if s.doc != nil {
		state.SelectedID = s.doc.ID
	}
	return state
}

func (s *Session) publishStateLocked() {
	state := s.stateLocked()
	s.publishLocked(model.SessionEvent{Type: model.SessionEventState, State: &state})
}

func (s *Session) publishLocked(event model.SessionEvent) {
	if event.At.IsZero() {
		event.At = time.Now()
	}
	for _, ch := range s.subs {
		select {
		case ch <- event:
		default:
		}
	}
}
