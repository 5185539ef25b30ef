// Package testsupport provides fixtures shared by package tests.
package testsupport

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"testing"
)

// Card artwork dimensions.
const (
	CardWidth  = 745
	CardHeight = 1040
)

// SolidPNG encodes a card-sized PNG filled with c.
func SolidPNG(t testing.TB, c color.Color) []byte {
	t.Helper()
	return PNG(t, CardWidth, CardHeight, c)
}

// PNG encodes a w×h PNG filled with c.
func PNG(t testing.TB, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}
