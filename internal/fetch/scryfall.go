package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"proxysheet/internal/domain"
)

// DefaultMaxImageBytes bounds a single artwork download.
const DefaultMaxImageBytes = 16 << 20

// ScryfallSource downloads PNG card artwork from the Scryfall API.
type ScryfallSource struct {
	BaseURL   string
	UserAgent string
	MaxBytes  int64
	Client    *http.Client
}

// NewScryfallSource creates a source rooted at baseURL.
func NewScryfallSource(baseURL, userAgent string, timeout time.Duration, maxBytes int64) *ScryfallSource {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxImageBytes
	}
	return &ScryfallSource{
		BaseURL:   strings.TrimRight(baseURL, "/"),
		UserAgent: userAgent,
		MaxBytes:  maxBytes,
		Client:    &http.Client{Timeout: timeout},
	}
}

// ImageURL returns the PNG image endpoint for key. Card ids must be UUIDs.
func (s *ScryfallSource) ImageURL(key domain.CardKey) (string, error) {
	id, err := uuid.Parse(key.ID)
	if err != nil {
		return "", fmt.Errorf("%w: card id %q is not a uuid", domain.ErrInvalidRequest, key.ID)
	}
	q := url.Values{}
	q.Set("format", "image")
	q.Set("version", "png")
	if key.Face == domain.FaceBack {
		q.Set("face", "back")
	}
	return fmt.Sprintf("%s/cards/%s?%s", s.BaseURL, id.String(), q.Encode()), nil
}

// Fetch implements Source.
func (s *ScryfallSource) Fetch(ctx context.Context, key domain.CardKey) ([]byte, error) {
	target, err := s.ImageURL(key)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrNetwork, key, err)
	}
	if s.UserAgent != "" {
		req.Header.Set("User-Agent", s.UserAgent)
	}
	req.Header.Set("Accept", "image/png")

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrNetwork, key, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s: unexpected status %d", domain.ErrNetwork, key, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, s.MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: read body: %v", domain.ErrNetwork, key, err)
	}
	if int64(len(body)) > s.MaxBytes {
		return nil, fmt.Errorf("%w: %s: image exceeds %d bytes", domain.ErrNetwork, key, s.MaxBytes)
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: %s: empty body", domain.ErrNetwork, key)
	}
	return body, nil
}

var _ Source = (*ScryfallSource)(nil)
