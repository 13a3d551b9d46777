package imaging

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kirillkom/docverify/internal/core/domain"
)

var ocrEnhancement = domain.Enhancement{
	Contrast:   1.15,
	Brightness: 1.02,
	Saturation: 0.90,
}

// DefaultLadder lists the passes from least to most aggressive.
func DefaultLadder() []domain.CompressionPass {
	return []domain.CompressionPass{
		{MaxDimension: 2560, Quality: 0.90, Enhancement: ocrEnhancement},
		{MaxDimension: 2048, Quality: 0.85, Enhancement: ocrEnhancement},
		{MaxDimension: 1920, Quality: 0.75, Enhancement: ocrEnhancement},
	}
}

// Planner drives the transcoder through the ladder until a pass fits the
// byte budget.
type Planner struct {
	transcoder *Transcoder
	ladder     []domain.CompressionPass
}

func NewPlanner(ladder []domain.CompressionPass) (*Planner, error) {
	if len(ladder) == 0 {
		return nil, fmt.Errorf("compression ladder is empty")
	}
	for i, pass := range ladder {
		if pass.MaxDimension <= 0 || pass.Quality <= 0 || pass.Quality > 1 {
			return nil, fmt.Errorf("compression pass %d out of range: %+v", i, pass)
		}
		if i > 0 && (pass.MaxDimension > ladder[i-1].MaxDimension || pass.Quality > ladder[i-1].Quality) {
			return nil, fmt.Errorf("compression pass %d is less aggressive than pass %d", i, i-1)
		}
	}
	return &Planner{
		transcoder: NewTranscoder(),
		ladder:     append([]domain.CompressionPass(nil), ladder...),
	}, nil
}

func NewDefaultPlanner() *Planner {
	p, err := NewPlanner(DefaultLadder())
	if err != nil {
		panic(err)
	}
	return p
}

// Compress returns the first pass whose output fits targetBytes, or the last
// pass when none does. The budget is best effort.
func (p *Planner) Compress(ctx context.Context, src domain.SourceImage, targetBytes int64) (domain.CompressionResult, error) {
	if targetBytes <= 0 {
		targetBytes = domain.DefaultTargetBytes
	}
	if !src.IsRaster() {
		return domain.CompressionResult{
			Filename:  src.Filename,
			Format:    src.MIMEType,
			Data:      src.Data,
			PassIndex: -1,
			Width:     src.Width,
			Height:    src.Height,
		}, nil
	}

	img, err := p.transcoder.decode(src)
	if err != nil {
		slog.Warn("compression_fallback", "filename", src.Filename, "bytes", src.Size(), "error", err)
		return domain.CompressionResult{
			Filename:  src.Filename,
			Format:    src.MIMEType,
			Data:      src.Data,
			PassIndex: -1,
			Fallback:  true,
		}, nil
	}

	var result domain.CompressionResult
	for i, pass := range p.ladder {
		if err := ctx.Err(); err != nil {
			return domain.CompressionResult{}, domain.ContextError("compress "+src.Filename, err)
		}
		encoded, err := p.transcoder.render(img, pass)
		if err != nil {
			return domain.CompressionResult{}, fmt.Errorf("compression pass %d: %w", i, err)
		}
		result = domain.CompressionResult{
			Filename:   jpegFilename(src.Filename),
			Format:     encoded.Format,
			Data:       encoded.Data,
			PassIndex:  i,
			Width:      encoded.Width,
			Height:     encoded.Height,
			Transcoded: true,
		}
		slog.Debug("compression_pass",
			"filename", src.Filename,
			"pass", i,
			"max_dimension", pass.MaxDimension,
			"quality", pass.Quality,
			"bytes_in", src.Size(),
			"bytes_out", result.Size(),
			"target_bytes", targetBytes,
		)
		if result.Size() <= targetBytes {
			return result, nil
		}
	}
	slog.Warn("compression_over_budget", "filename", src.Filename, "bytes_out", result.Size(), "target_bytes", targetBytes)
	return result, nil
}
