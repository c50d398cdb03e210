// seehuhn.de/go/exammark - mark up and export scanned exam PDFs
// Copyright (C) 2026  The exammark authors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package render turns pages of the students' exams into bitmaps.
//
// A [Cache] loads each document once, keeps recently used documents and
// bitmaps in memory and can prefetch pages in the background.  A
// [Viewport] shows one page at a time and makes sure that only the most
// recently requested page is ever committed.
package render

import (
	"context"
	"errors"
	"image"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"seehuhn.de/go/exammark/docsource"
	"seehuhn.de/go/exammark/examdoc"
)

// Default sizes for the caches.
const (
	DefaultMaxPages        = 64
	DefaultMaxDocuments    = 16
	DefaultPrefetchWorkers = 2
)

// Rasterizer renders a single page of a document.
type Rasterizer interface {
	Rasterize(ctx context.Context, doc *examdoc.Document, page int, scale float64) (*image.RGBA, error)
}

// Key identifies a rendered page.  The scale is part of the key, so the
// same page at two zoom levels is cached twice.
type Key struct {
	StudentID string
	Page      int
	Scale     float64
}

// Options configure a [Cache].  Zero values select the defaults.
type Options struct {
	MaxPages        int
	MaxDocuments    int
	PrefetchWorkers int

	Log     zerolog.Logger
	Metrics *Metrics
}

// Cache loads documents and memoizes rendered pages.
//
// Both caches are bounded and evict the least recently used entry.
type Cache struct {
	src     docsource.Source
	ras     Rasterizer
	log     zerolog.Logger
	metrics *Metrics

	loads singleflight.Group
	docs  *lru.Cache[string, *examdoc.Document]
	pages *lru.Cache[Key, *image.RGBA]

	mu    sync.Mutex
	epoch map[string]uint64 // incremented by Invalidate

	prefetch   *semaphore.Weighted
	background context.Context
	stop       context.CancelFunc
	running    sync.WaitGroup
}

// NewCache creates a new page cache.  opt may be nil.
func NewCache(src docsource.Source, ras Rasterizer, opt *Options) (*Cache, error) {
	if opt == nil {
		opt = &Options{}
	}
	maxPages := opt.MaxPages
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}
	maxDocs := opt.MaxDocuments
	if maxDocs <= 0 {
		maxDocs = DefaultMaxDocuments
	}
	workers := opt.PrefetchWorkers
	if workers <= 0 {
		workers = DefaultPrefetchWorkers
	}

	docs, err := lru.New[string, *examdoc.Document](maxDocs)
	if err != nil {
		return nil, err
	}
	pages, err := lru.New[Key, *image.RGBA](maxPages)
	if err != nil {
		return nil, err
	}

	background, stop := context.WithCancel(context.Background())
	return &Cache{
		src:        src,
		ras:        ras,
		log:        opt.Log,
		metrics:    opt.Metrics,
		docs:       docs,
		pages:      pages,
		epoch:      make(map[string]uint64),
		prefetch:   semaphore.NewWeighted(int64(workers)),
		background: background,
		stop:       stop,
	}, nil
}

// Load returns the parsed document of a student.
//
// Concurrent calls for the same student share a single load.  Once the
// load has finished, successfully or not, the next call for the student
// starts afresh.  Failures are reported as [*LoadError].
func (c *Cache) Load(ctx context.Context, studentID string) (*examdoc.Document, error) {
	if doc, ok := c.docs.Get(studentID); ok {
		return doc, nil
	}

	epoch := c.currentEpoch(studentID)
	ch := c.loads.DoChan(studentID, func() (any, error) {
		// The load is shared between callers, so it must not be aborted
		// when the first caller goes away.
		loadCtx := context.WithoutCancel(ctx)
		doc, err := c.load(loadCtx, studentID)
		if err != nil {
			return nil, err
		}
		if c.currentEpoch(studentID) == epoch {
			c.docs.Add(studentID, doc)
		}
		return doc, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*examdoc.Document), nil
	}
}

func (c *Cache) load(ctx context.Context, studentID string) (*examdoc.Document, error) {
	data, err := c.src.Open(ctx, studentID)
	if err != nil {
		kind := DocumentLoadFailed
		if errors.Is(err, docsource.ErrNotFound) {
			kind = DocumentNotFound
		}
		c.metrics.loaded(kind.String())
		c.log.Info().Err(err).Str("student", studentID).Stringer("kind", kind).Msg("document not loaded")
		return nil, &LoadError{StudentID: studentID, Kind: kind, Err: err}
	}

	doc, err := examdoc.Parse(data)
	if err != nil {
		c.metrics.loaded(DocumentLoadFailed.String())
		c.log.Info().Err(err).Str("student", studentID).Msg("document not parsed")
		return nil, &LoadError{StudentID: studentID, Kind: DocumentLoadFailed, Err: err}
	}

	c.metrics.loaded("ok")
	c.log.Debug().Str("student", studentID).Int("pages", doc.NumPages()).Msg("document loaded")
	return doc, nil
}

// GetPage returns the bitmap of a page, rendering it if necessary.
//
// Errors other than cancellation of ctx are reported as [*LoadError].
func (c *Cache) GetPage(ctx context.Context, studentID string, page int, scale float64) (*image.RGBA, error) {
	key := Key{StudentID: studentID, Page: page, Scale: scale}
	if img, ok := c.pages.Get(key); ok {
		c.metrics.hit()
		return img, nil
	}
	c.metrics.miss()

	epoch := c.currentEpoch(studentID)
	doc, err := c.Load(ctx, studentID)
	if err != nil {
		return nil, err
	}

	img, err := c.ras.Rasterize(ctx, doc, page, scale)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &LoadError{StudentID: studentID, Kind: DocumentLoadFailed, Err: err}
	}
	c.metrics.rasterized()

	if c.currentEpoch(studentID) == epoch {
		c.pages.Add(key, img)
	}
	return img, nil
}

// Cached reports whether the bitmap for key is in the cache.
func (c *Cache) Cached(key Key) bool {
	return c.pages.Contains(key)
}

// Prefetch renders a page in the background, so that a later call to
// [Cache.GetPage] is served from the cache.  Prefetch never blocks.  If
// all prefetch workers are busy, the request is dropped.  Errors are
// logged at debug level and otherwise ignored.
func (c *Cache) Prefetch(studentID string, page int, scale float64) {
	key := Key{StudentID: studentID, Page: page, Scale: scale}
	if c.pages.Contains(key) {
		return
	}
	if !c.prefetch.TryAcquire(1) {
		c.log.Debug().Str("student", studentID).Int("page", page).Msg("prefetch dropped")
		return
	}

	c.running.Add(1)
	go func() {
		defer c.running.Done()
		defer c.prefetch.Release(1)
		_, err := c.GetPage(c.background, studentID, page, scale)
		if err != nil {
			c.log.Debug().Err(err).Str("student", studentID).Int("page", page).Msg("prefetch failed")
		}
	}()
}

// PrefetchNeighbours prefetches the first page of the students before and
// after current in the given order.
func (c *Cache) PrefetchNeighbours(order []string, current string, scale float64) {
	for i, id := range order {
		if id != current {
			continue
		}
		if i > 0 {
			c.Prefetch(order[i-1], 1, scale)
		}
		if i+1 < len(order) {
			c.Prefetch(order[i+1], 1, scale)
		}
		return
	}
}

// Invalidate removes the document of a student and all its bitmaps from
// the cache.  Loads and renders which are in flight while Invalidate is
// called still complete, but their results are not cached.
func (c *Cache) Invalidate(studentID string) {
	c.mu.Lock()
	c.epoch[studentID]++
	c.mu.Unlock()

	c.loads.Forget(studentID)
	c.docs.Remove(studentID)
	for _, key := range c.pages.Keys() {
		if key.StudentID == studentID {
			c.pages.Remove(key)
		}
	}
	c.log.Debug().Str("student", studentID).Msg("cache invalidated")
}

// Wait blocks until all running prefetches have finished.
func (c *Cache) Wait() {
	c.running.Wait()
}

// Close cancels all running prefetches and waits for them to finish.
func (c *Cache) Close() {
	c.stop()
	c.running.Wait()
}

func (c *Cache) currentEpoch(studentID string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch[studentID]
}
