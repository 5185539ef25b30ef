package testsupport

import (
	"bytes"
	"io"
	"regexp"
	"strconv"
	"testing"

	"github.com/klauspost/compress/zlib"
)

// PDFObject is one indirect object of a written file.
type PDFObject struct {
	Dict   string
	Data   []byte
	Stream bool
}

// PDFPage is a page as found through the page tree.
type PDFPage struct {
	Dict    string
	Content string
	Image   PDFObject
}

// PDFFile is a parsed uncompressed-xref PDF, enough to inspect documents
// built from image pages.
type PDFFile struct {
	Raw     []byte
	Objects map[int]PDFObject
	Root    PDFObject
	Tree    PDFObject
	Pages   []PDFPage
}

var (
	objRE      = regexp.MustCompile(`(?s)(\d+) 0 obj\s*(.*?)\s*endobj`)
	streamRE   = regexp.MustCompile(`stream\r?\n`)
	refRE      = regexp.MustCompile(`(\d+) 0 R`)
	rootRE     = regexp.MustCompile(`/Root\s+(\d+) 0 R`)
	pagesRE    = regexp.MustCompile(`/Pages\s+(\d+) 0 R`)
	kidsRE     = regexp.MustCompile(`/Kids\s*\[([^\]]*)\]`)
	contentsRE = regexp.MustCompile(`/Contents\s+(\d+) 0 R`)
	xobjectRE  = regexp.MustCompile(`/I1\s+(\d+) 0 R`)
)

// ParsePDF splits data into objects and walks catalog, page tree and
// pages. It fails the test on any structural problem.
func ParsePDF(t testing.TB, data []byte) *PDFFile {
	t.Helper()
	f := &PDFFile{Raw: data, Objects: make(map[int]PDFObject)}
	for _, m := range objRE.FindAllSubmatch(data, -1) {
		num, _ := strconv.Atoi(string(m[1]))
		body := m[2]
		obj := PDFObject{Dict: string(body)}
		if loc := streamRE.FindIndex(body); loc != nil {
			end := bytes.LastIndex(body, []byte("endstream"))
			if end < loc[1] {
				t.Fatalf("object %d: unterminated stream", num)
			}
			obj.Dict = string(body[:loc[0]])
			obj.Data = bytes.TrimSuffix(bytes.TrimSuffix(body[loc[1]:end], []byte("\n")), []byte("\r"))
			obj.Stream = true
		}
		f.Objects[num] = obj
	}

	f.Root = f.lookup(t, rootRE, string(data), "trailer /Root")
	f.Tree = f.lookup(t, pagesRE, f.Root.Dict, "catalog /Pages")

	kids := kidsRE.FindStringSubmatch(f.Tree.Dict)
	if kids == nil {
		t.Fatalf("page tree has no /Kids: %q", f.Tree.Dict)
	}
	for _, ref := range refRE.FindAllStringSubmatch(kids[1], -1) {
		num, _ := strconv.Atoi(ref[1])
		page, ok := f.Objects[num]
		if !ok {
			t.Fatalf("page object %d missing", num)
		}
		f.Pages = append(f.Pages, PDFPage{
			Dict:    page.Dict,
			Content: string(f.lookup(t, contentsRE, page.Dict, "page /Contents").Data),
			Image:   f.lookup(t, xobjectRE, page.Dict, "page image"),
		})
	}
	return f
}

func (f *PDFFile) lookup(t testing.TB, re *regexp.Regexp, s, what string) PDFObject {
	t.Helper()
	m := re.FindAllStringSubmatch(s, -1)
	if m == nil {
		t.Fatalf("%s not found", what)
	}
	// the trailer comes last
	num, _ := strconv.Atoi(m[len(m)-1][1])
	obj, ok := f.Objects[num]
	if !ok {
		t.Fatalf("%s points at missing object %d", what, num)
	}
	return obj
}

// Pixels inflates a FlateDecode image stream.
func (o PDFObject) Pixels(t testing.TB) []byte {
	t.Helper()
	zr, err := zlib.NewReader(bytes.NewReader(o.Data))
	if err != nil {
		t.Fatalf("inflate: %v", err)
	}
	defer zr.Close()
	out, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("inflate: %v", err)
	}
	return out
}
