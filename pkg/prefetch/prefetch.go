package prefetch

// Package prefetch wraps a single-pass iterator with a pool of worker
// goroutines and a bounded queue, so that slow per-item work (typically
// network fetches) overlaps with consumer iteration.

import (
	"errors"
	"sync"
)

// Done is returned by Next when the upstream iterator is exhausted and all
// workers have drained.
var Done = errors.New("prefetch: iteration complete")

// ErrStopped is returned by Next after Stop has been called.
var ErrStopped = errors.New("prefetch: stopped")

const (
	DefaultQueueLimit        = 20
	DefaultWorkers           = 1
	DefaultWorkersNumThreads = 4 // Default worker count when multithreading is requested
)

// Options configures a Prefetcher. The zero value gives a single worker and
// a queue limit of 20.
type Options struct {
	Workers    int
	QueueLimit int
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = DefaultWorkers
	}
	if o.QueueLimit <= 0 {
		o.QueueLimit = DefaultQueueLimit
	}
	return o
}

// ThreadSafeIterator serializes access to an arbitrary upstream iterator so
// that multiple workers can pull from it. The upstream function returns
// (item, false) when exhausted.
type ThreadSafeIterator[T any] struct {
	mu   sync.Mutex
	next func() (T, bool)
	done bool
}

func NewThreadSafeIterator[T any](next func() (T, bool)) *ThreadSafeIterator[T] {
	return &ThreadSafeIterator[T]{next: next}
}

func (it *ThreadSafeIterator[T]) Next() (T, bool) {
	it.mu.Lock()
	defer it.mu.Unlock()
	var zero T
	if it.done {
		return zero, false
	}
	item, ok := it.next()
	if !ok {
		it.done = true
		return zero, false
	}
	return item, true
}

type result[T any] struct {
	item T
	err  error
	done bool // worker end-of-stream marker
}

// Prefetcher drives an upstream iterator through a transform with one or
// more workers, emitting into a bounded queue.
type Prefetcher[T any] struct {
	upstream *ThreadSafeIterator[T]
	queue    chan result[T]
	quit     chan struct{}
	quitOnce sync.Once
	workers  int
	doneSeen int
	err      error
}

// New starts the worker pool immediately. transform may be nil. Workers call
// the upstream under a single mutex, so any iterator is safe to hand in.
func New[T any](upstream func() (T, bool), transform func(T) (T, error), opt Options) *Prefetcher[T] {
	opt = opt.withDefaults()
	p := &Prefetcher[T]{
		upstream: NewThreadSafeIterator(upstream),
		queue:    make(chan result[T], opt.QueueLimit),
		quit:     make(chan struct{}),
		workers:  opt.Workers,
	}
	for i := 0; i < opt.Workers; i++ {
		go p.work(transform)
	}
	return p
}

func (p *Prefetcher[T]) work(transform func(T) (T, error)) {
	for {
		item, ok := p.upstream.Next()
		if !ok {
			p.put(result[T]{done: true})
			return
		}
		if transform != nil {
			transformed, err := transform(item)
			if err != nil {
				p.put(result[T]{err: err})
				return
			}
			item = transformed
		}
		if !p.put(result[T]{item: item}) {
			return
		}
	}
}

func (p *Prefetcher[T]) put(r result[T]) bool {
	select {
	case p.queue <- r:
		return true
	case <-p.quit:
		return false
	}
}

// Next blocks until the next item is available. It returns Done once every
// worker has signaled end-of-stream, or the first worker error, after which
// the pool is torn down and the same error is returned on every call.
func (p *Prefetcher[T]) Next() (T, error) {
	var zero T
	if p.err != nil {
		return zero, p.err
	}
	for {
		select {
		case r := <-p.queue:
			if r.err != nil {
				p.err = r.err
				p.Stop()
				return zero, r.err
			}
			if r.done {
				p.doneSeen++
				if p.doneSeen == p.workers {
					p.err = Done
					return zero, Done
				}
				continue
			}
			return r.item, nil
		case <-p.quit:
			p.err = ErrStopped
			return zero, ErrStopped
		}
	}
}

// Stop tears down the pool. Workers observe the quit channel on their next
// queue put and exit.
func (p *Prefetcher[T]) Stop() {
	p.quitOnce.Do(func() { close(p.quit) })
}
