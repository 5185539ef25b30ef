// Package render runs CPU-heavy raster and encoding work on a bounded set
// of worker slots, away from request-serving goroutines.
package render

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
)

// ErrPoolClosed is returned by Acquire and Do after Close.
var ErrPoolClosed = errors.New("render pool is closed")

// Pool is a semaphore of worker slots.
type Pool struct {
	sem chan struct{}

	mu     sync.RWMutex
	closed bool

	completed atomic.Uint64
	failed    atomic.Uint64
}

// Stats is a snapshot of pool usage.
type Stats struct {
	Enabled   bool   `json:"enabled"`
	Capacity  int    `json:"capacity"`
	Idle      int    `json:"idle"`
	InUse     int    `json:"in_use"`
	Completed uint64 `json:"completed"`
	Failed    uint64 `json:"failed"`
}

// NewPool creates a pool with size slots; size <= 0 means one per CPU.
func NewPool(size int) *Pool {
	if size <= 0 {
		size = runtime.NumCPU()
	}
	p := &Pool{sem: make(chan struct{}, size)}
	for i := 0; i < size; i++ {
		p.sem <- struct{}{}
	}
	return p
}

// Acquire takes a slot, blocking until one is free or ctx is done.
func (p *Pool) Acquire(ctx context.Context) error {
	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()
	if closed {
		return ErrPoolClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	select {
	case <-p.sem:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release returns a slot taken by Acquire.
func (p *Pool) Release() {
	select {
	case p.sem <- struct{}{}:
	default:
	}
}

// Do runs fn on a worker slot and waits for it. When ctx ends first Do
// returns ctx.Err() while fn keeps its slot until it finishes.
func (p *Pool) Do(ctx context.Context, fn func() error) error {
	if err := p.Acquire(ctx); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		err := p.run(fn)
		p.Release()
		done <- err
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) run(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("render task panicked: %v", r)
		}
		if err != nil {
			p.failed.Add(1)
		} else {
			p.completed.Add(1)
		}
	}()
	return fn()
}

// Stats reports current usage.
func (p *Pool) Stats() Stats {
	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()

	idle := len(p.sem)
	return Stats{
		Enabled:   !closed,
		Capacity:  cap(p.sem),
		Idle:      idle,
		InUse:     cap(p.sem) - idle,
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
	}
}

// Close stops the pool from handing out new slots. Running tasks finish
// normally. Close is idempotent.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
}
