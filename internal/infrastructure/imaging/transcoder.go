package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"math"
	"path/filepath"
	"strings"

	"golang.org/x/image/draw"

	"github.com/kirillkom/docverify/internal/core/domain"
)

// Encoded is the output of a single transcoding pass.
type Encoded struct {
	Data       []byte
	Format     string
	Width      int
	Height     int
	Transcoded bool
}

// Transcoder resizes, enhances and re-encodes raster images as JPEG. It holds
// no state and is safe for concurrent use.
type Transcoder struct{}

func NewTranscoder() *Transcoder {
	return &Transcoder{}
}

// Transcode runs one pass. Non-raster inputs come back unchanged; a corrupt
// raster yields domain.ErrDecode.
func (t *Transcoder) Transcode(src domain.SourceImage, pass domain.CompressionPass) (Encoded, error) {
	if !src.IsRaster() {
		return passthrough(src), nil
	}
	img, err := t.decode(src)
	if err != nil {
		return Encoded{}, err
	}
	return t.render(img, pass)
}

func (t *Transcoder) decode(src domain.SourceImage) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(src.Data))
	if err != nil {
		return nil, domain.WrapError(domain.ErrDecode, "decode "+src.Filename, err)
	}
	return img, nil
}

func (t *Transcoder) render(img image.Image, pass domain.CompressionPass) (Encoded, error) {
	bounds := img.Bounds()
	width, height := fitWithin(bounds.Dx(), bounds.Dy(), pass.MaxDimension)

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	if width == bounds.Dx() && height == bounds.Dy() {
		draw.Draw(dst, dst.Bounds(), img, bounds.Min, draw.Over)
	} else {
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	}

	enhance(dst, pass.Enhancement)

	var out bytes.Buffer
	if err := jpeg.Encode(&out, dst, &jpeg.Options{Quality: jpegQuality(pass.Quality)}); err != nil {
		return Encoded{}, fmt.Errorf("encode jpeg: %w", err)
	}
	return Encoded{
		Data:       out.Bytes(),
		Format:     domain.MIMEJPEG,
		Width:      width,
		Height:     height,
		Transcoded: true,
	}, nil
}

// fitWithin scales (w, h) so the longer side is at most maxDim, keeping the
// aspect ratio. It never upscales.
func fitWithin(w, h, maxDim int) (int, int) {
	longest := w
	if h > longest {
		longest = h
	}
	if maxDim <= 0 || longest <= maxDim {
		return w, h
	}
	scale := float64(maxDim) / float64(longest)
	nw := int(math.Round(float64(w) * scale))
	nh := int(math.Round(float64(h) * scale))
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}
	return nw, nh
}

func jpegQuality(q float64) int {
	v := int(math.Round(q * 100))
	switch {
	case v < 1:
		return 1
	case v > 100:
		return 100
	default:
		return v
	}
}

func passthrough(src domain.SourceImage) Encoded {
	return Encoded{
		Data:   src.Data,
		Format: src.MIMEType,
		Width:  src.Width,
		Height: src.Height,
	}
}

func jpegFilename(name string) string {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	if base == "" {
		base = "document"
	}
	return base + ".jpg"
}
