// Package extract converts uploaded document bytes into plain text. PDF pages
// without a usable native text layer are rasterized and transcribed by a
// vision OCR engine, decided page by page.
package extract

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	// ErrUnsupportedFormat marks an upload with an unrecognized file type.
	ErrUnsupportedFormat = errors.New("unsupported document format")
	// ErrExtractionFailed marks an upload from which no usable text could be
	// recovered.
	ErrExtractionFailed = errors.New("could not extract any valid text")
)

// DocumentFormat enumerates supported document payload formats.
type DocumentFormat string

const (
	FormatUnknown  DocumentFormat = ""
	FormatText     DocumentFormat = "text"
	FormatMarkdown DocumentFormat = "markdown"
	FormatPDF      DocumentFormat = "pdf"
)

// DetectFormat infers a document format from the provided filename's extension.
func DetectFormat(name string) DocumentFormat {
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".txt", ".text":
		return FormatText
	case ".md", ".markdown":
		return FormatMarkdown
	case ".pdf":
		return FormatPDF
	default:
		return FormatUnknown
	}
}

// OCR transcribes a rendered page image into plain text.
type OCR interface {
	TranscribeImage(ctx context.Context, image []byte) (string, error)
}

// PageRenderer rasterizes a single PDF page (1-based) into a PNG image.
type PageRenderer interface {
	RenderPNG(data []byte, page int) ([]byte, error)
}

type Extractor struct {
	renderer PageRenderer
	ocr      OCR
	logger   *log.Logger
}

func New(renderer PageRenderer, ocr OCR, logger *log.Logger) *Extractor {
	if logger == nil {
		logger = log.Default()
	}

	return &Extractor{
		renderer: renderer,
		ocr:      ocr,
		logger:   logger,
	}
}

// Extract converts document bytes into a single text string. The transform
// has no side effects; the payload is not retained.
func (e *Extractor) Extract(ctx context.Context, data []byte, filename string) (string, error) {
	var (
		text string
		err  error
	)

	switch DetectFormat(filename) {
	case FormatText, FormatMarkdown:
		text, err = plainText(data)
	case FormatPDF:
		text, err = e.extractPDF(ctx, data)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(filename))
	}
	if err != nil {
		return "", err
	}

	if strings.TrimSpace(text) == "" {
		return "", ErrExtractionFailed
	}

	return text, nil
}

func plainText(data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: invalid UTF-8 encoding", ErrExtractionFailed)
	}
	return string(data), nil
}

// meaningfulChars counts the non-whitespace runes in s.
func meaningfulChars(s string) int {
	count := 0
	for _, r := range s {
		if !unicode.IsSpace(r) {
			count++
		}
	}
	return count
}
