// Package extraction turns uploaded pathology reports and oncology notes into
// patient profiles: document text extraction, LLM biomarker extraction and the
// mapping of the loosely-typed LLM output onto domain.PatientProfile.
package extraction

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/sirupsen/logrus"

	"github.com/trialscout/trial-matcher/internal/domain"
)

// DefaultMaxDocumentBytes caps uploads at 10 MiB
const DefaultMaxDocumentBytes int64 = 10 << 20

// MinTextLength is the least number of characters, after trimming, a document
// must yield before it is worth sending to the LLM.
const MinTextLength = 20

// Document is an uploaded file awaiting text extraction
type Document struct {
	Filename    string
	ContentType string
	Body        io.Reader
}

// TextExtractor pulls plain text out of PDF and text documents
type TextExtractor struct {
	maxBytes int64
	logger   *logrus.Logger
}

// NewTextExtractor creates an extractor that rejects documents above maxBytes.
// A non-positive maxBytes selects DefaultMaxDocumentBytes.
func NewTextExtractor(maxBytes int64, logger *logrus.Logger) *TextExtractor {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxDocumentBytes
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	return &TextExtractor{maxBytes: maxBytes, logger: logger}
}

// SupportedContentType reports whether ct (parameters allowed) can be extracted
func SupportedContentType(ct string) bool {
	switch mediaType(ct) {
	case "application/pdf", "text/plain", "text/txt", "application/txt":
		return true
	}
	return false
}

func mediaType(ct string) string {
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(ct))
	}
	return mt
}

// ExtractText returns the text content of doc. PDF pages are joined with
// newlines; text files are decoded as UTF-8 with invalid bytes dropped.
func (e *TextExtractor) ExtractText(ctx context.Context, doc Document) (string, error) {
	if !SupportedContentType(doc.ContentType) {
		return "", domain.NewExtractionError(domain.STAGE_DOCUMENT,
			fmt.Errorf("%w: %s", domain.ErrUnsupportedDocument, doc.ContentType))
	}

	data, err := io.ReadAll(io.LimitReader(doc.Body, e.maxBytes+1))
	if err != nil {
		return "", domain.NewExtractionError(domain.STAGE_DOCUMENT, fmt.Errorf("failed to read document: %w", err))
	}
	if int64(len(data)) > e.maxBytes {
		return "", domain.NewExtractionError(domain.STAGE_DOCUMENT,
			fmt.Errorf("%w: limit is %d bytes", domain.ErrDocumentTooLarge, e.maxBytes))
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}

	var text string
	if mediaType(doc.ContentType) == "application/pdf" {
		text, err = extractPDF(ctx, data)
		if err != nil {
			return "", domain.NewExtractionError(domain.STAGE_DOCUMENT, err)
		}
	} else {
		text = strings.ToValidUTF8(string(data), "")
	}

	e.logger.WithFields(logrus.Fields{
		"filename":     doc.Filename,
		"content_type": doc.ContentType,
		"bytes":        len(data),
		"chars":        utf8.RuneCountInString(text),
	}).Info("Extracted document text")

	return text, nil
}

// RequireText rejects text too short to carry a clinical summary
func RequireText(text string) error {
	if utf8.RuneCountInString(strings.TrimSpace(text)) < MinTextLength {
		return domain.NewExtractionError(domain.STAGE_DOCUMENT, domain.ErrInsufficientText)
	}
	return nil
}

func extractPDF(ctx context.Context, data []byte) (text string, err error) {
	// the pdf reader panics on some malformed cross-reference tables
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("failed to parse PDF: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to open PDF: %w", err)
	}

	pages := make([]string, 0, reader.NumPage())
	for i := 1; i <= reader.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("failed to read page %d: %w", i, err)
		}
		pages = append(pages, content)
	}

	return strings.Join(pages, "\n"), nil
}
