package compress

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"path/filepath"
	"strings"

	// Registered decoders.
	_ "image/gif"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/Klingon-tech/inscribe/pkg/inscription"
)

// DefaultMaxDimension caps the longest edge of a re-encoded image.
const DefaultMaxDimension = 2048

// JPEGCompressor decodes any accepted image type, downsizes it to fit
// MaxDimension and re-encodes it as JPEG.
type JPEGCompressor struct {
	MaxDimension int
}

// Compress re-encodes f at the given JPEG quality (1-100).
func (c JPEGCompressor) Compress(ctx context.Context, f *inscription.File, quality int) (*inscription.File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	img, format, err := image.Decode(bytes.NewReader(f.Data))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", f.Name, err)
	}

	img = c.fit(img)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: clampQuality(quality)}); err != nil {
		return nil, fmt.Errorf("encode %s (from %s): %w", f.Name, format, err)
	}
	return &inscription.File{
		Name:     jpegName(f.Name),
		MimeType: "image/jpeg",
		Data:     buf.Bytes(),
	}, nil
}

func (c JPEGCompressor) fit(img image.Image) image.Image {
	limit := c.MaxDimension
	if limit <= 0 {
		limit = DefaultMaxDimension
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= limit && h <= limit {
		return img
	}
	if w >= h {
		h = max(1, h*limit/w)
		w = limit
	} else {
		w = max(1, w*limit/h)
		h = limit
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

func jpegName(name string) string {
	ext := filepath.Ext(name)
	switch strings.ToLower(ext) {
	case ".jpg", ".jpeg":
		return name
	}
	return strings.TrimSuffix(name, ext) + ".jpg"
}

func clampQuality(q int) int {
	if q < 1 {
		return 1
	}
	if q > 100 {
		return 100
	}
	return q
}
