// Package extract converts uploaded PDF documents into plain text.
package extract

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"

	"github.com/capitalize-ai/journal-coach/internal/model"
	"github.com/capitalize-ai/journal-coach/pkg/logger"
)

// Extractor reads PDF text. The parser needs random access, so uploads are
// spooled to a temporary file first.
type Extractor struct {
	tempDir string
	logger  *logger.Logger
}

// NewExtractor creates an extractor. An empty tempDir uses os.TempDir.
func NewExtractor(tempDir string, log *logger.Logger) *Extractor {
	return &Extractor{tempDir: tempDir, logger: log}
}

// Extract spools r to a temp file and returns the text of every page.
// The temp file is removed whether or not extraction succeeds.
func (e *Extractor) Extract(ctx context.Context, r io.Reader) (string, error) {
	tmp, err := os.CreateTemp(e.tempDir, "upload-*.pdf")
	if err != nil {
		return "", fmt.Errorf("%w: %w", model.ErrExtraction, err)
	}
	path := tmp.Name()
	defer func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			e.logger.Warn("failed to remove temp upload", zap.String("path", path), zap.Error(err))
		}
	}()

	_, err = io.Copy(tmp, r)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return "", fmt.Errorf("%w: %w", model.ErrExtraction, err)
	}

	return e.ExtractFile(ctx, path)
}

// ExtractFile returns the text of every page of the PDF at path.
func (e *Extractor) ExtractFile(ctx context.Context, path string) (text string, err error) {
	// The parser panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = fmt.Errorf("%w: parser panic: %v", model.ErrExtraction, r)
		}
	}()

	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: %w", model.ErrExtraction, err)
	}
	defer f.Close()

	total := reader.NumPage()
	if total == 0 {
		return "", fmt.Errorf("%w: document has no pages", model.ErrExtraction)
	}

	segments := make([]string, 0, total)
	for i := 1; i <= total; i++ {
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("%w: %w", model.ErrExtraction, err)
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			segments = append(segments, "")
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("%w: page %d: %w", model.ErrExtraction, i, err)
		}
		segments = append(segments, content)
	}

	text = joinSegments(segments)
	e.logger.Debug("extracted document",
		zap.Int("pages", total),
		zap.Int("chars", len(text)),
	)
	return text, nil
}

// joinSegments joins page texts with a single space and trims the result.
func joinSegments(segments []string) string {
	return strings.TrimSpace(strings.Join(segments, " "))
}
