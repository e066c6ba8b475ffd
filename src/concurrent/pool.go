// Package concurrent provides the bounded-concurrency primitives used
// wherever this module fans work out across a slice and joins it at a
// single point: session.Orchestrator's concurrentFetch and
// fetchEmbeddings use ParallelForEach/ParallelMap to join the catalog,
// user, and engagement fetches and the chunked embedding lookups;
// cmd/ingest's embedding backfill uses WorkerPool directly to cap how
// many embedding requests it has in flight at once.
package concurrent

import (
	"context"
	"sync"
)

// WorkerPool caps the number of goroutines that may run Do's fn
// concurrently, independent of how many goroutines call Do.
type WorkerPool struct {
	maxWorkers int
	sem        chan struct{}
}

// NewWorkerPool creates a pool admitting at most maxWorkers concurrent
// Do calls.
func NewWorkerPool(maxWorkers int) *WorkerPool {
	if maxWorkers <= 0 {
		maxWorkers = 10
	}
	return &WorkerPool{
		maxWorkers: maxWorkers,
		sem:        make(chan struct{}, maxWorkers),
	}
}

// Do blocks until a slot is free, then runs fn. It returns early with
// ctx.Err() if ctx is canceled while waiting for a slot.
func (wp *WorkerPool) Do(ctx context.Context, fn func() error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case wp.sem <- struct{}{}:
		defer func() { <-wp.sem }()
		return fn()
	}
}

// ParallelMap runs fn over every item with at most maxConcurrency
// goroutines in flight, and returns the results in input order. It
// waits for every item to finish even after an error is observed, and
// returns the first error seen (by index).
func ParallelMap[T, R any](ctx context.Context, items []T, fn func(T) (R, error), maxConcurrency int) ([]R, error) {
	if len(items) == 0 {
		return nil, nil
	}

	if maxConcurrency <= 0 {
		maxConcurrency = 10
	}

	results := make([]R, len(items))
	errors := make([]error, len(items))

	var wg sync.WaitGroup
	sem := make(chan struct{}, maxConcurrency)

	for i, item := range items {
		wg.Add(1)
		go func(idx int, val T) {
			defer wg.Done()

			select {
			case <-ctx.Done():
				errors[idx] = ctx.Err()
				return
			case sem <- struct{}{}:
				defer func() { <-sem }()
				results[idx], errors[idx] = fn(val)
			}
		}(i, item)
	}

	wg.Wait()

	// Check for errors
	for _, err := range errors {
		if err != nil {
			return results, err
		}
	}

	return results, nil
}

// ParallelForEach executes a function on each item in parallel
func ParallelForEach[T any](ctx context.Context, items []T, fn func(T) error, maxConcurrency int) error {
	if len(items) == 0 {
		return nil
	}

	if maxConcurrency <= 0 {
		maxConcurrency = 10
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, maxConcurrency)
	errChan := make(chan error, len(items))

	for _, item := range items {
		wg.Add(1)
		go func(val T) {
			defer wg.Done()

			select {
			case <-ctx.Done():
				errChan <- ctx.Err()
				return
			case sem <- struct{}{}:
				defer func() { <-sem }()
				if err := fn(val); err != nil {
					errChan <- err
				}
			}
		}(item)
	}

	wg.Wait()
	close(errChan)

	// Return first error if any
	for err := range errChan {
		if err != nil {
			return err
		}
	}

	return nil
}
