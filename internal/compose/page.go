package compose

import (
	"image"
	"image/color"
)

// Page is an opaque 8-bit RGB raster. Pixels are packed row by row with
// no padding, which is the layout a /DeviceRGB image stream expects.
type Page struct {
	Pix    []uint8
	Stride int
	Rect   image.Rectangle
}

// NewPage allocates a w×h page.
func NewPage(w, h int) *Page {
	return &Page{
		Pix:    make([]uint8, 3*w*h),
		Stride: 3 * w,
		Rect:   image.Rect(0, 0, w, h),
	}
}

func (p *Page) ColorModel() color.Model { return color.RGBAModel }

func (p *Page) Bounds() image.Rectangle { return p.Rect }

func (p *Page) At(x, y int) color.Color { return p.RGBAt(x, y) }

// RGBAt returns the pixel at (x, y); alpha is always 0xff.
func (p *Page) RGBAt(x, y int) color.RGBA {
	if !(image.Point{X: x, Y: y}.In(p.Rect)) {
		return color.RGBA{}
	}
	i := p.offset(x, y)
	return color.RGBA{R: p.Pix[i], G: p.Pix[i+1], B: p.Pix[i+2], A: 0xff}
}

// Opaque always reports true.
func (p *Page) Opaque() bool { return true }

// RGBBytes returns the packed pixel data without copying.
func (p *Page) RGBBytes() []byte { return p.Pix }

func (p *Page) offset(x, y int) int {
	return (y-p.Rect.Min.Y)*p.Stride + (x-p.Rect.Min.X)*3
}

// flatten drops the alpha channel of an opaque RGBA canvas.
func flatten(src *image.RGBA) *Page {
	b := src.Bounds()
	dst := NewPage(b.Dx(), b.Dy())
	for y := 0; y < b.Dy(); y++ {
		s := src.Pix[y*src.Stride : y*src.Stride+4*b.Dx()]
		d := dst.Pix[y*dst.Stride : (y+1)*dst.Stride]
		for x, j := 0, 0; x < len(s); x, j = x+4, j+3 {
			d[j], d[j+1], d[j+2] = s[x], s[x+1], s[x+2]
		}
	}
	return dst
}
