// Package voice drives a live empathic-voice conversation over the EVI
// websocket protocol.
package voice

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/capitalize-ai/journal-coach/internal/model"
)

// Client event types.
const (
	ClientSessionSettings = "session_settings"
	ClientAudioInput      = "audio_input"
	ClientUserInput       = "user_input"
	ClientPauseAssistant  = "pause_assistant_message"
	ClientResumeAssistant = "resume_assistant_message"
)

// Server event types.
const (
	ServerChatMetadata     = "chat_metadata"
	ServerUserMessage      = "user_message"
	ServerAssistantMessage = "assistant_message"
	ServerAudioOutput      = "audio_output"
	ServerAssistantEnd     = "assistant_end"
	ServerUserInterruption = "user_interruption"
	ServerError            = "error"
)

// PromptTemplate is the system prompt installed when a journal entry is
// selected. The analysis is bound through session variables.
const PromptTemplate = `You are a warm, patient mental health coach having a spoken conversation.
The user has shared a journal entry titled "{{journal_name}}".
An emotional analysis of that entry follows:

{{journal_analysis}}

Use the analysis to guide gentle, open questions. Reflect feelings back, keep replies short, and never diagnose.`

// ClientEvent is a message sent to the voice service.
type ClientEvent struct {
	Type         string            `json:"type"`
	SystemPrompt string            `json:"system_prompt,omitempty"`
	Variables    map[string]string `json:"variables,omitempty"`
	Data         string            `json:"data,omitempty"`
	Text         string            `json:"text,omitempty"`
}

// SessionSettings builds the event that primes the conversation with doc.
func SessionSettings(doc *model.UploadedDocument) ClientEvent {
	return ClientEvent{
		Type:         ClientSessionSettings,
		SystemPrompt: PromptTemplate,
		Variables: map[string]string{
			"journal_name":     doc.Name,
			"journal_analysis": doc.Analysis,
		},
	}
}

// AudioInput wraps raw audio bytes.
func AudioInput(data []byte) ClientEvent {
	return ClientEvent{Type: ClientAudioInput, Data: base64.StdEncoding.EncodeToString(data)}
}

// UserInput injects a typed user turn.
func UserInput(text string) ClientEvent {
	return ClientEvent{Type: ClientUserInput, Text: text}
}

// PauseAssistant asks the service to hold assistant audio.
func PauseAssistant() ClientEvent {
	return ClientEvent{Type: ClientPauseAssistant}
}

// ResumeAssistant releases held assistant audio.
func ResumeAssistant() ClientEvent {
	return ClientEvent{Type: ClientResumeAssistant}
}

// ServerEvent is a decoded message from the voice service. Fields not
// relevant to Type are empty.
type ServerEvent struct {
	Type        string
	ChatID      string
	ChatGroupID string
	Role        model.Role
	Content     string
	Prosody     model.ProsodyScores
	Audio       string
	ErrorCode   string
	ErrorText   string
}

// wireEvent mirrors the JSON shape. "message" is an object on chat
// messages and a string on errors, so it is decoded lazily.
type wireEvent struct {
	Type        string          `json:"type"`
	ChatID      string          `json:"chat_id"`
	ChatGroupID string          `json:"chat_group_id"`
	Message     json.RawMessage `json:"message"`
	Models      struct {
		Prosody *struct {
			Scores map[string]float64 `json:"scores"`
		} `json:"prosody"`
	} `json:"models"`
	Data string `json:"data"`
	Code string `json:"code"`
	Slug string `json:"slug"`
}

type wireChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// DecodeServerEvent parses one websocket payload.
func DecodeServerEvent(payload []byte) (ServerEvent, error) {
	var w wireEvent
	if err := json.Unmarshal(payload, &w); err != nil {
		return ServerEvent{}, fmt.Errorf("decode server event: %w", err)
	}

	ev := ServerEvent{
		Type:        w.Type,
		ChatID:      w.ChatID,
		ChatGroupID: w.ChatGroupID,
		Audio:       w.Data,
	}

	switch w.Type {
	case ServerUserMessage, ServerAssistantMessage:
		var m wireChatMessage
		if len(w.Message) > 0 {
			if err := json.Unmarshal(w.Message, &m); err != nil {
				return ServerEvent{}, fmt.Errorf("decode %s: %w", w.Type, err)
			}
		}
		ev.Role = model.Role(m.Role)
		if ev.Role == "" {
			ev.Role = model.RoleUser
			if w.Type == ServerAssistantMessage {
				ev.Role = model.RoleAssistant
			}
		}
		ev.Content = m.Content
		if w.Models.Prosody != nil && len(w.Models.Prosody.Scores) > 0 {
			ev.Prosody = model.ProsodyScores(w.Models.Prosody.Scores)
		}
	case ServerError:
		var text string
		if len(w.Message) > 0 {
			_ = json.Unmarshal(w.Message, &text)
		}
		ev.ErrorCode = w.Code
		if ev.ErrorCode == "" {
			ev.ErrorCode = w.Slug
		}
		ev.ErrorText = text
	}

	return ev, nil
}
