package domain

import "errors"

var (
	// ErrInvalidRequest signals malformed caller input.
	ErrInvalidRequest = errors.New("invalid print request")
	// ErrNetwork signals a failed artwork retrieval.
	ErrNetwork = errors.New("artwork retrieval failed")
	// ErrDecode signals artwork bytes that are not a readable image.
	ErrDecode = errors.New("artwork decode failed")
	// ErrComposition signals a broken invariant while laying out a page.
	ErrComposition = errors.New("page composition failed")
	// ErrAssembly signals an encoding or I/O failure while building the document.
	ErrAssembly = errors.New("document assembly failed")
)
