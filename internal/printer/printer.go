// Package printer turns card request lists into printable proxy sheets.
package printer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/klauspost/compress/zlib"
	"golang.org/x/sync/errgroup"

	"proxysheet/internal/cache"
	"proxysheet/internal/compose"
	"proxysheet/internal/domain"
	"proxysheet/internal/fetch"
	"proxysheet/internal/pdfdoc"
	"proxysheet/internal/render"
	u "proxysheet/internal/utils"
)

// Printer runs print jobs. A Printer is safe for concurrent use; jobs only
// share the content cache.
type Printer struct {
	cache   *cache.Store
	fetcher *fetch.Fetcher
	pool    *render.Pool
	level   int
}

// New wires a Printer. level is the zlib level for page images; zero
// selects zlib.DefaultCompression.
func New(store *cache.Store, f *fetch.Fetcher, pool *render.Pool, level int) *Printer {
	if level == 0 {
		level = zlib.DefaultCompression
	}
	return &Printer{cache: store, fetcher: f, pool: pool, level: level}
}

// Job is one print request.
type Job struct {
	Requests []domain.CardRequest
	Layout   domain.LayoutConfig
	// Progress is optional.
	Progress domain.Progress
}

// Result describes a finished job.
type Result struct {
	PDF          []byte
	Pages        int
	Cards        int
	DistinctKeys int
	Retrievals   int
	CacheHits    int
}

// Print renders reqs with layout and returns the PDF.
func (p *Printer) Print(ctx context.Context, reqs []domain.CardRequest, layout domain.LayoutConfig) ([]byte, error) {
	res, err := p.Run(ctx, Job{Requests: reqs, Layout: layout})
	if err != nil {
		return nil, err
	}
	return res.PDF, nil
}

// PruneCache drops expired artwork and returns how many entries went.
func (p *Printer) PruneCache() int {
	return p.cache.Prune()
}

// Run executes job. Any failure aborts the whole job and no document is
// returned.
func (p *Printer) Run(ctx context.Context, job Job) (*Result, error) {
	start := time.Now()
	layout := job.Layout
	if err := layout.Validate(); err != nil {
		return nil, err
	}
	progress := serialize(job.Progress)

	keys, err := domain.Expand(job.Requests)
	if err != nil {
		return nil, err
	}

	resolved, err := p.fetcher.Resolve(ctx, job.Requests, progress)
	if err != nil {
		u.Warn("Print job failed while fetching artwork", "error", err)
		return nil, err
	}

	chunks := domain.Chunk(keys, layout.Capacity())
	doc, err := pdfdoc.New(layout, p.level)
	if err != nil {
		return nil, err
	}

	if err := p.renderPages(ctx, chunks, resolved.Images, layout, doc, progress); err != nil {
		u.Warn("Print job failed while rendering", "error", err, "pages", len(chunks))
		return nil, err
	}

	var pdf []byte
	if err := p.pool.Do(ctx, func() error {
		var err error
		pdf, err = doc.Close()
		return err
	}); err != nil {
		return nil, err
	}

	res := &Result{
		PDF:          pdf,
		Pages:        len(chunks),
		Cards:        len(keys),
		DistinctKeys: len(resolved.Keys),
		Retrievals:   resolved.Retrievals,
		CacheHits:    resolved.CacheHits,
	}
	u.Info("Print job finished",
		"pages", res.Pages,
		"cards", res.Cards,
		"distinct", res.DistinctKeys,
		"retrievals", res.Retrievals,
		"bytes", len(pdf),
		"duration", time.Since(start).String(),
	)
	return res, nil
}

// renderPages composes chunks and embeds them into doc in order. The
// compositor runs one page ahead of the encoder so at most two rasters are
// alive at once.
func (p *Printer) renderPages(ctx context.Context, chunks [][]domain.CardKey, images map[domain.CardKey][]byte,
	layout domain.LayoutConfig, doc *pdfdoc.Document, progress domain.Progress) error {
	g, gctx := errgroup.WithContext(ctx)
	pages := make(chan *compose.Page, 1)
	total := len(chunks)

	g.Go(func() error {
		defer close(pages)
		for i, chunk := range chunks {
			progress.Report(fmt.Sprintf("Generating page images (%d / %d)", i+1, total))

			cells := make([][]byte, len(chunk))
			for j, key := range chunk {
				data, ok := images[key]
				if !ok {
					return fmt.Errorf("%w: no artwork resolved for %s", domain.ErrComposition, key)
				}
				cells[j] = data
			}

			var page *compose.Page
			err := p.pool.Do(gctx, func() error {
				var err error
				page, err = compose.Compose(cells, layout)
				return err
			})
			if err != nil {
				return err
			}

			select {
			case pages <- page:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	g.Go(func() error {
		i := 0
		for page := range pages {
			i++
			progress.Report(fmt.Sprintf("Compressing pages (%d / %d)", i, total))
			if err := p.pool.Do(gctx, func() error { return doc.AddPage(page) }); err != nil {
				return err
			}
			u.Debug("Page embedded", "page", i, "total", total)
		}
		return nil
	})

	return g.Wait()
}

type lockedProgress struct {
	mu   sync.Mutex
	sink domain.Progress
}

func (l *lockedProgress) Report(message string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sink.Report(message)
}

// serialize makes a caller's sink safe to call from both pipeline stages.
func serialize(p domain.Progress) domain.Progress {
	if p == nil {
		return domain.NoProgress
	}
	return &lockedProgress{sink: p}
}
