// Package fetch resolves card faces to raw artwork bytes, consulting the
// content cache first and falling back to a paced network source.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"proxysheet/internal/cache"
	"proxysheet/internal/domain"
	u "proxysheet/internal/utils"
)

// Source retrieves artwork for one card face from the network.
type Source interface {
	Fetch(ctx context.Context, key domain.CardKey) ([]byte, error)
}

// Options tune a Fetcher.
type Options struct {
	// MinInterval is the floor between the starts of two network
	// retrievals. Zero disables pacing.
	MinInterval time.Duration
	// TTL is how long fetched artwork stays cached. Zero means cache.DefaultTTL.
	TTL time.Duration
}

// Fetcher resolves request lists to artwork. Network retrievals never run
// concurrently, not even across jobs sharing the Fetcher, and concurrent
// misses on the same key share one retrieval.
type Fetcher struct {
	cache   *cache.Store
	source  Source
	limiter *rate.Limiter
	ttl     time.Duration

	// net is a one-slot semaphore held for the duration of a retrieval.
	net   chan struct{}
	group singleflight.Group
}

// New creates a Fetcher backed by store and src.
func New(store *cache.Store, src Source, opts Options) *Fetcher {
	limit := rate.Inf
	if opts.MinInterval > 0 {
		limit = rate.Every(opts.MinInterval)
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = cache.DefaultTTL
	}
	return &Fetcher{
		cache:   store,
		source:  src,
		limiter: rate.NewLimiter(limit, 1),
		ttl:     ttl,
		net:     make(chan struct{}, 1),
	}
}

// Resolution is the outcome of Resolve.
type Resolution struct {
	// Images maps every distinct key of the request list to its bytes.
	Images map[domain.CardKey][]byte
	// Keys lists the distinct keys in first-seen order.
	Keys []domain.CardKey
	// Retrievals counts the network retrievals this call performed.
	Retrievals int
	// CacheHits counts keys served from the cache.
	CacheHits int
}

// Resolve resolves every distinct key of reqs exactly once. Any failure
// aborts the whole call without partial results.
func (f *Fetcher) Resolve(ctx context.Context, reqs []domain.CardRequest, progress domain.Progress) (*Resolution, error) {
	if progress == nil {
		progress = domain.NoProgress
	}

	supplied := make(map[domain.CardKey][]byte)
	for _, r := range reqs {
		k := r.Key()
		if _, ok := supplied[k]; !ok && len(r.Image) > 0 {
			supplied[k] = r.Image
		}
	}

	keys := domain.Distinct(reqs)
	res := &Resolution{
		Images: make(map[domain.CardKey][]byte, len(keys)),
		Keys:   keys,
	}

	for i, key := range keys {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		progress.Report(fmt.Sprintf("Downloading images (%d / %d)", i+1, len(keys)))

		if data, ok := supplied[key]; ok {
			res.Images[key] = data
			continue
		}
		if data, ok := f.cache.Get(key); ok {
			u.Debug("Artwork cache hit", "key", key.String())
			res.Images[key] = data
			res.CacheHits++
			continue
		}

		data, retrieved, err := f.retrieve(ctx, key)
		if err != nil {
			return nil, err
		}
		if retrieved {
			res.Retrievals++
		} else {
			res.CacheHits++
		}
		res.Images[key] = data
	}
	return res, nil
}

// retrieve fetches key from the source, sharing the work with concurrent
// callers asking for the same key. The shared retrieval runs detached from
// any single caller, so a caller that gives up only abandons its own wait.
// retrieved reports whether this caller started the network request.
func (f *Fetcher) retrieve(ctx context.Context, key domain.CardKey) (data []byte, retrieved bool, err error) {
	work := context.WithoutCancel(ctx)
	var leader bool
	ch := f.group.DoChan(key.String(), func() (interface{}, error) {
		leader = true
		return f.download(work, key)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, false, res.Err
		}
		fetched := res.Val.(download)
		return fetched.data, leader && fetched.fetched, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

type download struct {
	data    []byte
	fetched bool
}

func (f *Fetcher) download(ctx context.Context, key domain.CardKey) (download, error) {
	// A concurrent job may have filled the cache while we waited.
	if data, ok := f.cache.Get(key); ok {
		return download{data: data}, nil
	}

	f.net <- struct{}{}
	defer func() { <-f.net }()

	if err := f.limiter.Wait(ctx); err != nil {
		return download{}, err
	}

	start := time.Now()
	data, err := f.source.Fetch(ctx, key)
	if err != nil {
		return download{}, classify(key, err)
	}
	u.Debug("Artwork downloaded", "key", key.String(), "bytes", len(data), "duration", time.Since(start).String())

	f.cache.Put(key, data, f.ttl)
	return download{data: data, fetched: true}, nil
}

func classify(key domain.CardKey, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, domain.ErrNetwork) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", domain.ErrNetwork, key, err)
}
