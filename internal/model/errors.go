package model

import "errors"

// Error kinds. Components wrap causes as fmt.Errorf("%w: %w", ErrKind, cause).
var (
	ErrExtraction  = errors.New("document could not be read")
	ErrAnalysis    = errors.New("analysis failed")
	ErrNoContext   = errors.New("no assistant message to search from yet")
	ErrEmptyQuery  = errors.New("could not derive a search query")
	ErrTransport   = errors.New("voice connection failed")
	ErrPersistence = errors.New("document could not be saved")
	ErrSearch      = errors.New("web search failed")

	ErrNotConnected     = errors.New("voice session is not connected")
	ErrDocumentNotFound = errors.New("document not found")
	ErrSuperseded       = errors.New("result superseded by a newer action")
)
