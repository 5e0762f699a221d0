// Package imaging re-encodes arbitrary input images into the compact JPEG
// representation the blob store keeps: longest edge bounded at 800 pixels,
// fixed lossy quality.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	_ "image/gif"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	// MaxEdge bounds the longest output dimension. Inputs already within the
	// bound are re-encoded at their original size, never upscaled.
	MaxEdge = 800
	// Quality is the fixed JPEG quality factor (0.7 on the encoder's 0-1 scale).
	Quality = 70
)

// MimeType is the media type of every Compress output.
const MimeType = "image/jpeg"

// Compress decodes data (JPEG, PNG, GIF or WebP), scales it down to fit
// MaxEdge preserving aspect ratio, and re-encodes as JPEG.
func Compress(data []byte) ([]byte, error) {
	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	b := src.Bounds()
	w, h := Fit(b.Dx(), b.Dy())

	out := src
	if w != b.Dx() || h != b.Dy() {
		dst := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
		out = dst
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, out, &jpeg.Options{Quality: Quality}); err != nil {
		return nil, fmt.Errorf("failed to encode %s image as jpeg: %w", format, err)
	}
	return buf.Bytes(), nil
}

// Fit returns the output dimensions for a w x h input: the longest edge is
// clamped to MaxEdge, the other scaled proportionally, and inputs within the
// bound come back unchanged.
func Fit(w, h int) (int, int) {
	if w <= MaxEdge && h <= MaxEdge {
		return w, h
	}
	if w > h {
		return MaxEdge, scale(h, w)
	}
	return scale(w, h), MaxEdge
}

// scale resizes short proportionally to long shrinking to MaxEdge, rounding
// to nearest and never below one pixel.
func scale(short, long int) int {
	s := (short*MaxEdge + long/2) / long
	if s < 1 {
		s = 1
	}
	return s
}
