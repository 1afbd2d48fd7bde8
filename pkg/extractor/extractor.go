package extractor

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/eezybuild/eezybuild/internal/models"
	"github.com/eezybuild/eezybuild/internal/types"
	"github.com/eezybuild/eezybuild/pkg/apierr"
	"github.com/eezybuild/eezybuild/pkg/gateway"
	"github.com/eezybuild/eezybuild/pkg/logger"
)

const DefaultMaxChars = 8000

var binaryKinds = map[string]string{
	"application/pdf":    "PDF document",
	"application/msword": "Word document",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": "Word document",
	"application/vnd.ms-excel": "Excel spreadsheet",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": "Excel spreadsheet",
}

// Extractor turns project documents into prompt text.
type Extractor struct {
	blobs    types.BlobStore
	vision   types.VisionAnalyzer
	maxChars int
	log      *logger.Logger
}

func New(blobs types.BlobStore, vision types.VisionAnalyzer, maxChars int, log *logger.Logger) *Extractor {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	return &Extractor{
		blobs:    blobs,
		vision:   vision,
		maxChars: maxChars,
		log:      log.With("component", "extractor"),
	}
}

// ExtractAll extracts every document in order. A scope violation aborts the
// batch; any other failure is replaced by a placeholder for that document.
func (e *Extractor) ExtractAll(ctx context.Context, docs []models.ProjectDocument, userMessage, projectID, userID string) ([]models.DocumentAnalysis, error) {
	out := make([]models.DocumentAnalysis, 0, len(docs))
	for _, doc := range docs {
		content, err := e.Extract(ctx, doc, userMessage, projectID, userID)
		if apierr.Is(err, apierr.SecurityViolation) {
			return nil, err
		}
		if err != nil {
			e.log.Warn("document extraction failed",
				"document_id", doc.ID,
				"file", doc.FileName,
				"project_id", projectID,
				"error", err,
			)
			content = fmt.Sprintf("[DOCUMENT: %s] This document could not be processed but is available for reference.", doc.FileName)
		}
		out = append(out, models.DocumentAnalysis{Document: doc, Content: content})
	}
	return out, nil
}

// Extract validates the document against the scope before reading any bytes.
func (e *Extractor) Extract(ctx context.Context, doc models.ProjectDocument, userMessage, projectID, userID string) (string, error) {
	if err := gateway.ValidateDocument(doc, projectID, userID); err != nil {
		return "", err
	}

	fileType := normalizeType(doc.FileType)
	if kind, ok := binaryKinds[fileType]; ok {
		return binaryPlaceholder(doc.FileName, kind, doc.FileSize), nil
	}
	if !isText(fileType) && !isImage(fileType) {
		return "", apierr.Errorf(apierr.ExtractionFailure, "unsupported file type %q", doc.FileType)
	}

	data, err := e.blobs.Download(ctx, doc.FilePath)
	if err != nil {
		return "", apierr.New(apierr.ExtractionFailure, err)
	}
	return e.ExtractContent(ctx, data, doc.FileName, doc.FileType, userMessage, projectID, userID)
}

// ExtractContent dispatches on the file type of already downloaded bytes.
func (e *Extractor) ExtractContent(ctx context.Context, data []byte, fileName, fileType, userMessage, projectID, userID string) (string, error) {
	fileType = normalizeType(fileType)

	switch {
	case isImage(fileType):
		if e.vision == nil {
			return "", apierr.Errorf(apierr.MissingConfiguration, "no vision analyzer configured")
		}
		return e.vision.AnalyzeImage(ctx, data, fileName, fileType, userMessage, projectID, userID), nil
	case isText(fileType):
		// Text is kept verbatim up to maxChars runes (DefaultMaxChars, chat.max_document_chars)
		// to bound prompt size; invalid UTF-8 bytes are dropped.
		text := strings.ToValidUTF8(string(data), "")
		return e.truncate(text), nil
	default:
		if kind, ok := binaryKinds[fileType]; ok {
			return binaryPlaceholder(fileName, kind, int64(len(data))), nil
		}
		return "", apierr.Errorf(apierr.ExtractionFailure, "unsupported file type %q", fileType)
	}
}

func (e *Extractor) truncate(text string) string {
	if utf8.RuneCountInString(text) <= e.maxChars {
		return text
	}
	return string([]rune(text)[:e.maxChars]) + "\n[... content truncated ...]"
}

func binaryPlaceholder(fileName, kind string, size int64) string {
	return fmt.Sprintf("[DOCUMENT: %s] %s (%s) uploaded to this project. It may contain drawings, specifications, schedules or calculations relevant to Building Regulations compliance. Its contents cannot be read directly; refer the user to it by name when relevant.",
		fileName, kind, humanSize(size))
}

func humanSize(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d bytes", n)
	}
}

func normalizeType(t string) string {
	t = strings.ToLower(strings.TrimSpace(t))
	if i := strings.IndexByte(t, ';'); i >= 0 {
		t = strings.TrimSpace(t[:i])
	}
	return t
}

func isImage(t string) bool { return strings.HasPrefix(t, "image/") }

func isText(t string) bool {
	return strings.HasPrefix(t, "text/") || t == "application/json" || t == "application/xml"
}
