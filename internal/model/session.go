package model

// ConnectionStatus is the voice connection lifecycle state.
type ConnectionStatus string

const (
	StatusIdle       ConnectionStatus = "idle"
	StatusConnecting ConnectionStatus = "connecting"
	StatusOpen       ConnectionStatus = "open"
	StatusError      ConnectionStatus = "error"
)

// SessionState is a snapshot of one user's live session.
type SessionState struct {
	Status      ConnectionStatus `json:"status"`
	Muted       bool             `json:"muted"`
	SelectedID  string           `json:"selected_document_id,omitempty"`
	Error       string           `json:"error,omitempty"`
	ChatID      string           `json:"chat_id,omitempty"`
	ChatGroupID string           `json:"chat_group_id,omitempty"`
}
