// Package compose tiles card artwork into printable sheet rasters.
package compose

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg" // artwork from local files may be JPEG
	"image/png"

	xdraw "golang.org/x/image/draw"

	"proxysheet/internal/domain"
)

// Canonical raster size of fetched artwork.
const (
	CellWidth  = 745
	CellHeight = 1040
)

var (
	white = image.NewUniform(color.White)
	black = image.NewUniform(color.Black)
)

// CanvasSize returns the raster dimensions of a page laid out with l.
func CanvasSize(l domain.LayoutConfig) (w, h int) {
	return l.Cols*CellWidth + 2*l.LineLen, l.Rows*CellHeight + 2*l.LineLen
}

// Compose lays out images, in row-major order, on one sheet. Missing
// trailing cells are left blank. More images than the grid holds is an
// error, as is any entry that does not decode.
func Compose(images [][]byte, l domain.LayoutConfig) (*Page, error) {
	if err := l.Validate(); err != nil {
		return nil, err
	}
	if len(images) > l.Capacity() {
		return nil, fmt.Errorf("%w: %d images for a %dx%d grid", domain.ErrComposition, len(images), l.Rows, l.Cols)
	}

	cells := make([]image.Image, 0, len(images))
	for i, data := range images {
		img, err := decodeCell(data)
		if err != nil {
			return nil, fmt.Errorf("%w: cell %d: %v", domain.ErrDecode, i, err)
		}
		cells = append(cells, img)
	}

	w, h := CanvasSize(l)
	canvas := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.Draw(canvas, canvas.Bounds(), white, image.Point{}, xdraw.Src)

	gridW, gridH := l.Cols*CellWidth, l.Rows*CellHeight
	inset := l.LineLen - l.Bleed
	bg := image.Rect(inset, inset, inset+gridW+2*l.Bleed, inset+gridH+2*l.Bleed)
	xdraw.Draw(canvas, bg, black, image.Point{}, xdraw.Over)

	for i := 0; i < l.Capacity(); i++ {
		col, row := i%l.Cols, i/l.Cols
		x, y := col*CellWidth+l.LineLen, row*CellHeight+l.LineLen
		r := image.Rect(x, y, x+CellWidth, y+CellHeight)
		if i >= len(cells) {
			xdraw.Draw(canvas, r, white, image.Point{}, xdraw.Src)
			continue
		}
		xdraw.Draw(canvas, r, cells[i], cells[i].Bounds().Min, xdraw.Over)
	}

	drawGuides(canvas, l)
	return flatten(canvas), nil
}

// drawGuides marks every grid line intersection, the outer border
// included, with a cross of 2*LineLen by 2*LineWidth bars. Guide pixels
// replace what is under them.
func drawGuides(canvas *image.RGBA, l domain.LayoutConfig) {
	c := l.LineColor
	ink := image.NewUniform(color.RGBA{R: c.R, G: c.G, B: c.B, A: 0xff})
	for i := 0; i <= l.Cols; i++ {
		for j := 0; j <= l.Rows; j++ {
			x, y := l.LineLen+i*CellWidth, l.LineLen+j*CellHeight
			horiz := image.Rect(x-l.LineLen, y-l.LineWidth, x+l.LineLen, y+l.LineWidth)
			vert := image.Rect(x-l.LineWidth, y-l.LineLen, x+l.LineWidth, y+l.LineLen)
			xdraw.Draw(canvas, horiz, ink, image.Point{}, xdraw.Src)
			xdraw.Draw(canvas, vert, ink, image.Point{}, xdraw.Src)
		}
	}
}

// decodeCell decodes artwork and resamples it to the cell size when the
// source has other dimensions.
func decodeCell(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty image")
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		var derr error
		img, _, derr = image.Decode(bytes.NewReader(data))
		if derr != nil {
			return nil, err
		}
	}
	b := img.Bounds()
	if b.Dx() == CellWidth && b.Dy() == CellHeight {
		return img, nil
	}
	if b.Empty() {
		return nil, fmt.Errorf("image has no pixels")
	}
	dst := image.NewRGBA(image.Rect(0, 0, CellWidth, CellHeight))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
	return dst, nil
}
