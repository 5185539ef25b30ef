package domain

import (
	"fmt"
	"strings"
)

// Face selects which side of a card is rendered.
type Face string

const (
	FaceFront Face = "front"
	FaceBack  Face = "back"
)

// ParseFace parses a face selector. The empty string selects the front face.
func ParseFace(s string) (Face, error) {
	switch Face(strings.ToLower(strings.TrimSpace(s))) {
	case "", FaceFront:
		return FaceFront, nil
	case FaceBack:
		return FaceBack, nil
	}
	return "", fmt.Errorf("%w: unknown face %q", ErrInvalidRequest, s)
}

// CardKey is the cache and fetch identity of one piece of artwork.
type CardKey struct {
	ID   string
	Face Face
}

func (k CardKey) String() string {
	return k.ID + "/" + string(k.Face)
}

// CardRequest asks for Quantity copies of one card face.
//
// Image optionally carries artwork the caller already holds; such keys are
// resolved without consulting the cache or the network.
type CardRequest struct {
	ID       string `json:"id"`
	Face     Face   `json:"face,omitempty"`
	Quantity int    `json:"quantity"`
	Image    []byte `json:"-"`
}

// Key returns the request's identity. An unset face means the front face.
func (r CardRequest) Key() CardKey {
	face := r.Face
	if face == "" {
		face = FaceFront
	}
	return CardKey{ID: r.ID, Face: face}
}

// Validate checks a single request.
func (r CardRequest) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("%w: card id is empty", ErrInvalidRequest)
	}
	if r.Quantity < 1 {
		return fmt.Errorf("%w: card %s: quantity must be at least 1, got %d", ErrInvalidRequest, r.ID, r.Quantity)
	}
	if _, err := ParseFace(string(r.Face)); err != nil {
		return err
	}
	return nil
}

// Expand flattens requests into one key per requested unit, preserving input
// order. Repeated requests of the same key yield repeated entries.
func Expand(reqs []CardRequest) ([]CardKey, error) {
	total := 0
	for _, r := range reqs {
		if err := r.Validate(); err != nil {
			return nil, err
		}
		total += r.Quantity
	}
	keys := make([]CardKey, 0, total)
	for _, r := range reqs {
		k := r.Key()
		for i := 0; i < r.Quantity; i++ {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

// Distinct returns the distinct keys of reqs in first-seen order.
func Distinct(reqs []CardRequest) []CardKey {
	seen := make(map[CardKey]struct{}, len(reqs))
	out := make([]CardKey, 0, len(reqs))
	for _, r := range reqs {
		k := r.Key()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

// Chunk splits keys into consecutive chunks of size. Only the last chunk may
// be shorter. No keys means no chunks.
func Chunk(keys []CardKey, size int) [][]CardKey {
	if size <= 0 {
		return nil
	}
	chunks := make([][]CardKey, 0, (len(keys)+size-1)/size)
	for start := 0; start < len(keys); start += size {
		end := min(start+size, len(keys))
		chunks = append(chunks, keys[start:end])
	}
	return chunks
}

// TotalQuantity sums the requested units.
func TotalQuantity(reqs []CardRequest) int {
	n := 0
	for _, r := range reqs {
		n += r.Quantity
	}
	return n
}
