package chunking

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Progress aggregates per-chunk progress into one overall value:
// (completed + fraction of the current chunk) / total. Reported values
// never go backwards.
type Progress struct {
	mu       sync.Mutex
	total    int
	done     map[int]bool
	within   map[int]float64
	reported float64
	report   func(float64)
}

// NewProgress creates a tracker for total chunks. report may be nil.
func NewProgress(total int, report func(float64)) *Progress {
	if total < 1 {
		total = 1
	}
	return &Progress{
		total:  total,
		done:   make(map[int]bool),
		within: make(map[int]float64),
		report: report,
	}
}

// Chunk returns a progress callback scoped to chunk index.
func (p *Progress) Chunk(index int) func(float64) {
	return func(f float64) {
		p.update(index, f, false)
	}
}

// Done marks chunk index complete.
func (p *Progress) Done(index int) {
	p.update(index, 1, true)
}

// Value returns the last reported overall progress.
func (p *Progress) Value() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reported
}

func (p *Progress) update(index int, f float64, done bool) {
	if f < 0 {
		f = 0
	}
	if f > 1 {
		f = 1
	}

	p.mu.Lock()
	if done {
		p.done[index] = true
		delete(p.within, index)
	} else if !p.done[index] {
		p.within[index] = f
	}

	sum := float64(len(p.done))
	for _, w := range p.within {
		sum += w
	}
	overall := sum / float64(p.total)
	if overall > 1 {
		overall = 1
	}
	if overall <= p.reported {
		p.mu.Unlock()
		return
	}
	p.reported = overall
	report := p.report
	p.mu.Unlock()

	if report != nil {
		report(overall)
	}
}

// Ordered runs fn for indexes 0..n-1 and returns the results in index
// order. With limit <= 1 chunks run strictly in sequence and the first
// error stops the loop before the next chunk starts. With a higher limit
// up to limit chunks run at once; the first error cancels the rest.
func Ordered[T any](ctx context.Context, n, limit int, fn func(ctx context.Context, index int) (T, error)) ([]T, error) {
	results := make([]T, n)

	if limit <= 1 {
		for i := 0; i < n; i++ {
			r, err := fn(ctx, i)
			if err != nil {
				return nil, err
			}
			results[i] = r
		}
		return results, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			r, err := fn(gctx, i)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
