package catalog

import (
	"context"
	"sync"
)

// Pager reads a feed sequentially, one page per call.
type Pager struct {
	store    *Store
	feed     string
	pageSize int

	mu     sync.Mutex
	offset int
}

// NewPager returns a pager over feed that starts reading at offset.
func NewPager(store *Store, feed string, offset, pageSize int) *Pager {
	if pageSize <= 0 {
		pageSize = 20
	}
	return &Pager{store: store, feed: feed, offset: offset, pageSize: pageSize}
}

// Next returns the next page. An empty page means the feed is exhausted for
// now; later calls pick up items added in the meantime.
func (p *Pager) Next(ctx context.Context) ([]Item, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	items, err := p.store.Page(ctx, p.feed, p.offset, p.pageSize)
	if err != nil {
		return nil, err
	}
	p.offset += len(items)
	return items, nil
}

// Offset returns the number of items consumed so far.
func (p *Pager) Offset() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.offset
}

// Seek moves the read position to offset.
func (p *Pager) Seek(offset int) {
	if offset < 0 {
		offset = 0
	}
	p.mu.Lock()
	p.offset = offset
	p.mu.Unlock()
}
