package intake

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/kirillkom/docverify/internal/core/domain"
)

// DefaultMaxFileBytes bounds a single uploaded side before compression.
const DefaultMaxFileBytes int64 = 25 << 20

// Inspector turns raw uploads into SourceImage values. The content is sniffed;
// the declared type is only a hint and is never trusted over the bytes.
type Inspector struct {
	maxFileBytes int64
}

func NewInspector(maxFileBytes int64) *Inspector {
	if maxFileBytes <= 0 {
		maxFileBytes = DefaultMaxFileBytes
	}
	return &Inspector{maxFileBytes: maxFileBytes}
}

func (i *Inspector) Inspect(filename, declaredMIME string, data []byte) (domain.SourceImage, error) {
	name := strings.TrimSpace(filename)
	if name == "" {
		return domain.SourceImage{}, fmt.Errorf("%w: filename is required", domain.ErrInvalidInput)
	}
	if len(data) == 0 {
		return domain.SourceImage{}, fmt.Errorf("%w: %s is empty", domain.ErrInvalidInput, name)
	}
	if int64(len(data)) > i.maxFileBytes {
		return domain.SourceImage{}, fmt.Errorf("%w: %s exceeds %d bytes", domain.ErrInvalidInput, name, i.maxFileBytes)
	}

	mimeType := sniff(data)
	src := domain.SourceImage{Filename: name, MIMEType: mimeType, Data: data}

	switch mimeType {
	case domain.MIMEJPEG, domain.MIMEPNG:
		cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			// The planner falls back to the original bytes for rasters it cannot decode.
			return src, nil
		}
		src.Width, src.Height = cfg.Width, cfg.Height
		return src, nil
	case domain.MIMEPDF:
		if err := checkPDF(data); err != nil {
			return domain.SourceImage{}, fmt.Errorf("%w: %s: %v", domain.ErrInvalidInput, name, err)
		}
		return src, nil
	default:
		return domain.SourceImage{}, fmt.Errorf("%w: unsupported file type %q for %s (declared %q)",
			domain.ErrInvalidInput, mimeType, name, normalizeDeclared(declaredMIME))
	}
}

func sniff(data []byte) string {
	detected := http.DetectContentType(data)
	if idx := strings.Index(detected, ";"); idx >= 0 {
		detected = detected[:idx]
	}
	return strings.TrimSpace(detected)
}

func checkPDF(data []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parse pdf: %v", r)
		}
	}()
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return fmt.Errorf("open pdf: %w", err)
	}
	if reader.NumPage() < 1 {
		return fmt.Errorf("pdf has no pages")
	}
	return nil
}

func normalizeDeclared(raw string) string {
	value := strings.ToLower(strings.TrimSpace(raw))
	if value == "image/jpg" {
		return domain.MIMEJPEG
	}
	return value
}
