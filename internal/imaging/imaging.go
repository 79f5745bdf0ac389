// Package imaging prepares captured pictures for upload and storage and
// decodes stored pictures back into display previews.
package imaging

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"

	_ "image/gif"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// UploadPrefix is the data-URI prefix the translation endpoint expects.
// The payload itself is JPEG; the endpoint only checks the prefix.
const UploadPrefix = "data:image/png;base64,"

const previewPrefix = "data:image/jpeg;base64,"

// ErrInvalidImage is returned when raw bytes cannot be decoded or re-encoded.
var ErrInvalidImage = errors.New("invalid image")

// DefaultMaxPixels bounds width*height of any picture decoded here. A full
// decode costs about four bytes per pixel, so this caps one decode near 160MiB.
const DefaultMaxPixels = 40_000_000

// Options controls how a raw picture is compressed before upload.
type Options struct {
	// MaxDimension bounds the longest edge; 0 disables downscaling.
	MaxDimension int
	Quality      int
	// MaxPixels rejects pictures whose header declares more pixels;
	// 0 means DefaultMaxPixels.
	MaxPixels int64
}

func DefaultOptions() Options {
	return Options{MaxDimension: 2048, Quality: 80, MaxPixels: DefaultMaxPixels}
}

// Compress decodes raw (JPEG, PNG, GIF or WebP), downsizes it so the longest
// edge fits MaxDimension and re-encodes it as JPEG. A JPEG that already fits
// is returned unchanged, so compressing twice yields the same bytes.
//
// The header is checked against MaxPixels before any pixel data is decoded.
func Compress(raw []byte, opts Options) ([]byte, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty", ErrInvalidImage)
	}
	cfg, format, err := checkConfig(raw, opts.MaxPixels)
	if err != nil {
		return nil, err
	}
	if format == "jpeg" && (opts.MaxDimension <= 0 || (cfg.Width <= opts.MaxDimension && cfg.Height <= opts.MaxDimension)) {
		return raw, nil
	}

	src, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	if opts.MaxDimension > 0 {
		src = fit(src, opts.MaxDimension)
	}

	quality := opts.Quality
	if quality <= 0 || quality > 100 {
		quality = jpeg.DefaultQuality
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, src, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("%w: encode jpeg: %v", ErrInvalidImage, err)
	}
	return buf.Bytes(), nil
}

// checkConfig reads only the header of raw and rejects pictures with no
// area or with more than maxPixels pixels.
func checkConfig(raw []byte, maxPixels int64) (image.Config, string, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return cfg, format, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return cfg, format, fmt.Errorf("%w: %dx%d has no area", ErrInvalidImage, cfg.Width, cfg.Height)
	}
	if int64(cfg.Width)*int64(cfg.Height) > maxPixels {
		return cfg, format, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrInvalidImage, cfg.Width, cfg.Height, maxPixels)
	}
	return cfg, format, nil
}

// UploadURI returns data base64-encoded behind UploadPrefix.
func UploadURI(data []byte) string {
	return UploadPrefix + base64.StdEncoding.EncodeToString(data)
}

// Preview is a decoded stored picture, ready for display.
type Preview struct {
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Format    string `json:"format"`
	Thumbnail string `json:"thumbnail"`
}

// Decode turns stored bytes into a Preview with a JPEG thumbnail whose longest
// edge is at most thumbEdge. ok is false for empty or malformed data and for
// pictures over DefaultMaxPixels.
func Decode(data []byte, thumbEdge int) (p *Preview, ok bool) {
	if len(data) == 0 {
		return nil, false
	}
	if _, _, err := checkConfig(data, DefaultMaxPixels); err != nil {
		return nil, false
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, false
	}

	b := img.Bounds()
	p = &Preview{Width: b.Dx(), Height: b.Dy(), Format: format}

	if thumbEdge > 0 {
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, fit(img, thumbEdge), &jpeg.Options{Quality: 70}); err == nil {
			p.Thumbnail = previewPrefix + base64.StdEncoding.EncodeToString(buf.Bytes())
		}
	}
	return p, true
}

// fit scales src down, preserving aspect ratio, so neither edge exceeds max.
func fit(src image.Image, max int) image.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= max && h <= max {
		return src
	}

	tw, th := max, max
	if w >= h {
		th = h * max / w
	} else {
		tw = w * max / h
	}
	if tw < 1 {
		tw = 1
	}
	if th < 1 {
		th = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, tw, th))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	return dst
}
