package domain

import (
	"fmt"
	"image/color"
)

// LayoutConfig describes one physical sheet. It is fixed for a whole job.
type LayoutConfig struct {
	Rows int
	Cols int

	// Cut guide geometry, in raster pixels.
	LineLen   int
	LineWidth int
	// LineColor is not premultiplied. Sheets carry no alpha, so guides are
	// painted with its color channels as given.
	LineColor color.NRGBA

	// Bleed is how far the black background extends past the card grid.
	Bleed int

	// Page size in PDF units.
	PageWidth  int
	PageHeight int
}

// DefaultLayout is a 3x3 grid on US letter paper.
var DefaultLayout = LayoutConfig{
	Rows:       3,
	Cols:       3,
	LineLen:    40,
	LineWidth:  1,
	LineColor:  color.NRGBA{R: 0x7f, G: 0x7f, B: 0x7f, A: 0xff},
	Bleed:      8,
	PageWidth:  595,
	PageHeight: 792,
}

// Capacity is the number of card cells per page.
func (l LayoutConfig) Capacity() int {
	return l.Rows * l.Cols
}

// Validate reports the first invalid field.
func (l LayoutConfig) Validate() error {
	switch {
	case l.Rows <= 0 || l.Cols <= 0:
		return fmt.Errorf("%w: grid must have positive rows and cols, got %dx%d", ErrInvalidRequest, l.Rows, l.Cols)
	case l.LineLen <= 0:
		return fmt.Errorf("%w: line length must be positive, got %d", ErrInvalidRequest, l.LineLen)
	case l.LineWidth <= 0:
		return fmt.Errorf("%w: line width must be positive, got %d", ErrInvalidRequest, l.LineWidth)
	case l.Bleed < 0 || l.Bleed > l.LineLen:
		return fmt.Errorf("%w: bleed must be between 0 and line length %d, got %d", ErrInvalidRequest, l.LineLen, l.Bleed)
	case l.PageWidth <= 0 || l.PageHeight <= 0:
		return fmt.Errorf("%w: page size must be positive, got %dx%d", ErrInvalidRequest, l.PageWidth, l.PageHeight)
	}
	return nil
}
