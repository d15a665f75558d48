// Package extractor turns resume documents into plain text.
//
// Supported formats:
//   - .pdf: one text unit per page (pdfcpu content streams)
//   - .docx: one text unit per paragraph of word/document.xml
//   - .txt: file contents verbatim
//   - .json: file contents verbatim, after checking the document parses
//
// Units are joined with a single newline. A unit without text still
// contributes an empty string so the unit count survives extraction.
package extractor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/justsurfingit/careerboost/internal/logger"
	"go.uber.org/zap"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported document format")
	ErrRead              = errors.New("document could not be read")
)

// Format identifies a document container type.
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatDocx Format = "docx"
	FormatText Format = "txt"
	FormatJSON Format = "json"
)

// Document is a source artifact on disk. It is never modified.
type Document struct {
	Path   string `json:"path"`
	Format Format `json:"format"`
}

// DetectFormat returns the document format based on file extension.
func DetectFormat(path string) (Format, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".pdf":
		return FormatPDF, nil
	case ".docx":
		return FormatDocx, nil
	case ".txt", ".text":
		return FormatText, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

// NewDocument builds a Document for path, tagging it by extension.
func NewDocument(path string) (Document, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return Document{}, err
	}
	return Document{Path: path, Format: format}, nil
}

// SupportedFormats lists the accepted extensions without the dot.
func SupportedFormats() []string {
	return []string{string(FormatPDF), string(FormatDocx), string(FormatText), string(FormatJSON)}
}

// Config configures the extractor.
type Config struct {
	// MaxFileSize is the largest document accepted, in bytes (default 5 MiB).
	MaxFileSize int64
	Logger      *zap.Logger
}

func (c *Config) defaults() {
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = 5 * 1024 * 1024
	}
	c.Logger = logger.OrNop(c.Logger)
}

// Extractor reads documents. It holds no per-call state and is safe for
// concurrent use.
type Extractor struct {
	cfg    Config
	logger *zap.Logger
}

func New(cfg Config) *Extractor {
	cfg.defaults()
	return &Extractor{cfg: cfg, logger: cfg.Logger}
}

// MaxFileSize returns the configured size limit.
func (e *Extractor) MaxFileSize() int64 {
	return e.cfg.MaxFileSize
}

// Extract returns the linear text of doc.
func (e *Extractor) Extract(ctx context.Context, doc Document) (string, error) {
	switch doc.Format {
	case FormatPDF, FormatDocx, FormatText, FormatJSON:
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, doc.Format)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	info, err := os.Stat(doc.Path)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrRead, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%w: %s is a directory", ErrRead, doc.Path)
	}
	if info.Size() > e.cfg.MaxFileSize {
		return "", fmt.Errorf("%w: file too large: %d bytes (max %d)", ErrRead, info.Size(), e.cfg.MaxFileSize)
	}

	e.logger.Debug("extracting document",
		zap.String("path", doc.Path),
		zap.String("format", string(doc.Format)),
		zap.Int64("size", info.Size()),
	)

	var units []string
	switch doc.Format {
	case FormatPDF:
		units, err = extractPDF(ctx, doc.Path)
	case FormatDocx:
		units, err = extractDocx(ctx, doc.Path)
	case FormatText:
		units, err = extractText(doc.Path)
	case FormatJSON:
		units, err = extractJSON(doc.Path)
	}
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", err
		}
		return "", fmt.Errorf("%w: %s (%s): %w", ErrRead, doc.Path, doc.Format, err)
	}

	text := strings.Join(units, "\n")
	e.logger.Debug("document extracted",
		zap.String("path", doc.Path),
		zap.Int("units", len(units)),
		zap.Int("chars", utf8.RuneCountInString(text)),
	)
	return text, nil
}

func readUTF8(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(data) {
		return "", errors.New("content is not valid UTF-8")
	}
	return strings.TrimPrefix(string(data), "\uFEFF"), nil
}

func extractText(path string) ([]string, error) {
	text, err := readUTF8(path)
	if err != nil {
		return nil, err
	}
	return []string{text}, nil
}

func extractJSON(path string) ([]string, error) {
	text, err := readUTF8(path)
	if err != nil {
		return nil, err
	}
	if !json.Valid([]byte(text)) {
		return nil, errors.New("content is not valid JSON")
	}
	return []string{text}, nil
}
