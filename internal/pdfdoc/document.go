// Package pdfdoc assembles composed sheet rasters into a PDF document.
//
// Each page embeds its raster as a Flate-compressed /DeviceRGB image and
// draws it scaled to card-sheet size, centred on the configured media box.
package pdfdoc

import (
	"bytes"
	"fmt"
	"image"

	"github.com/klauspost/compress/zlib"
	"seehuhn.de/go/pdf"

	"proxysheet/internal/domain"
)

// RGBImage is implemented by rasters that can hand out packed 8-bit RGB
// pixels directly.
type RGBImage interface {
	image.Image
	RGBBytes() []byte
}

// Document is a PDF under construction. Pages are encoded as they are
// added, so the caller may drop each raster right after AddPage returns.
type Document struct {
	buf    bytes.Buffer
	out    *pdf.Writer
	layout domain.LayoutConfig
	level  int

	pages pdf.Reference
	kids  pdf.Array
}

// New starts a document for layout. level is a zlib compression level
// from zlib.DefaultCompression to zlib.BestCompression.
func New(layout domain.LayoutConfig, level int) (*Document, error) {
	if level < zlib.DefaultCompression || level > zlib.BestCompression {
		return nil, fmt.Errorf("%w: invalid compression level %d", domain.ErrAssembly, level)
	}
	d := &Document{layout: layout, level: level}
	out, err := pdf.NewWriter(&d.buf, pdf.V1_4, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrAssembly, err)
	}
	d.out = out
	d.pages = out.Alloc()
	return d, nil
}

// Pages returns the number of pages added so far.
func (d *Document) Pages() int { return len(d.kids) }

// AddPage appends img as the next page.
func (d *Document) AddPage(img image.Image) error {
	if d.out == nil {
		return fmt.Errorf("%w: document already closed", domain.ErrAssembly)
	}
	b := img.Bounds()
	if b.Empty() {
		return fmt.Errorf("%w: page %d has no pixels", domain.ErrAssembly, len(d.kids)+1)
	}

	data, err := d.compress(rgbPixels(img))
	if err != nil {
		return fmt.Errorf("%w: compress page %d: %v", domain.ErrAssembly, len(d.kids)+1, err)
	}
	imgRef := d.out.Alloc()
	err = d.writeStream(imgRef, pdf.Dict{
		"Type":             pdf.Name("XObject"),
		"Subtype":          pdf.Name("Image"),
		"Width":            pdf.Integer(b.Dx()),
		"Height":           pdf.Integer(b.Dy()),
		"ColorSpace":       pdf.Name("DeviceRGB"),
		"BitsPerComponent": pdf.Integer(8),
		"Filter":           pdf.Name("FlateDecode"),
	}, data)
	if err != nil {
		return d.fail(err)
	}

	contentRef := d.out.Alloc()
	if err := d.writeStream(contentRef, nil, Placement(b.Dx(), b.Dy(), d.layout)); err != nil {
		return d.fail(err)
	}

	pageRef := d.out.Alloc()
	err = d.out.Put(pageRef, pdf.Dict{
		"Type":     pdf.Name("Page"),
		"Parent":   d.pages,
		"Contents": contentRef,
		"Resources": pdf.Dict{
			"ProcSet": pdf.Array{pdf.Name("PDF"), pdf.Name("ImageC")},
			"XObject": pdf.Dict{"I1": imgRef},
		},
	})
	if err != nil {
		return d.fail(err)
	}
	d.kids = append(d.kids, pageRef)
	return nil
}

// Close writes the page tree, catalog and trailer and returns the file.
// All pages hang directly off one Pages root, in the order they were added.
func (d *Document) Close() ([]byte, error) {
	if d.out == nil {
		return nil, fmt.Errorf("%w: document already closed", domain.ErrAssembly)
	}
	kids := d.kids
	if kids == nil {
		kids = pdf.Array{}
	}
	err := d.out.Put(d.pages, pdf.Dict{
		"Type":  pdf.Name("Pages"),
		"Kids":  kids,
		"Count": pdf.Integer(len(kids)),
		"MediaBox": pdf.Array{
			pdf.Integer(0), pdf.Integer(0),
			pdf.Integer(d.layout.PageWidth), pdf.Integer(d.layout.PageHeight),
		},
	})
	if err != nil {
		return nil, d.fail(err)
	}
	d.out.GetMeta().Catalog.Pages = d.pages
	if err := d.out.Close(); err != nil {
		return nil, d.fail(err)
	}
	d.out = nil
	return d.buf.Bytes(), nil
}

// writeStream stores data verbatim; any /Filter in dict must already
// describe its encoding.
func (d *Document) writeStream(ref pdf.Reference, dict pdf.Dict, data []byte) error {
	w, err := d.out.OpenStream(ref, dict)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	return w.Close()
}

func (d *Document) fail(err error) error {
	return fmt.Errorf("%w: %v", domain.ErrAssembly, err)
}

func (d *Document) compress(raw []byte) ([]byte, error) {
	var out bytes.Buffer
	zw, err := zlib.NewWriterLevel(&out, d.level)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(raw); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// Placement returns the content stream that draws a w×h raster scaled to
// card-sheet size and centred on the layout's page.
func Placement(w, h int, l domain.LayoutConfig) []byte {
	cw, ch := w*72/298, h*72/297
	tx, ty := (l.PageWidth-cw)/2, (l.PageHeight-ch)/2
	return []byte(fmt.Sprintf("%d 0 0 %d %d %d cm\n/I1 Do", cw, ch, tx, ty))
}

// rgbPixels returns packed RGB bytes, converting when img is not an RGBImage.
func rgbPixels(img image.Image) []byte {
	if p, ok := img.(RGBImage); ok {
		return p.RGBBytes()
	}
	b := img.Bounds()
	out := make([]byte, 0, 3*b.Dx()*b.Dy())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			out = append(out, byte(r>>8), byte(g>>8), byte(bl>>8))
		}
	}
	return out
}

// Assemble builds a document from pages in order. Each slice entry is
// cleared once its page is embedded.
func Assemble(pages []image.Image, l domain.LayoutConfig) ([]byte, error) {
	d, err := New(l, zlib.DefaultCompression)
	if err != nil {
		return nil, err
	}
	for i := range pages {
		if err := d.AddPage(pages[i]); err != nil {
			return nil, err
		}
		pages[i] = nil
	}
	return d.Close()
}
