package model

import (
	"time"
)

// SessionEventType is the kind of event fanned out to session subscribers.
type SessionEventType string

const (
	SessionEventState       SessionEventType = "state"
	SessionEventMessage     SessionEventType = "message"
	SessionEventAudioOutput SessionEventType = "audio_output"
	SessionEventError       SessionEventType = "error"

	// SessionEventAssistantEnd marks the end of an assistant turn.
	SessionEventAssistantEnd SessionEventType = "assistant_end"
	// SessionEventInterruption tells players to drop queued assistant audio.
	SessionEventInterruption SessionEventType = "interruption"
)

// SessionEvent is delivered, in transport order, to every session subscriber.
type SessionEvent struct {
	Type    SessionEventType     `json:"type"`
	State   *SessionState        `json:"state,omitempty"`
	Message *ConversationMessage `json:"message,omitempty"`
	Audio   string               `json:"audio,omitempty"`
	Error   string               `json:"error,omitempty"`
	At      time.Time            `json:"at"`
}

// HeartbeatEvent represents a heartbeat event.
type HeartbeatEvent struct {
	Timestamp time.Time `json:"timestamp"`
}
