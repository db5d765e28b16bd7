// Package workpool runs independent units of work on a bounded number of
// goroutines and collects their outcomes by key.
//
// Unit errors are recorded, not propagated: a failing unit never cancels its
// siblings. Completion order is irrelevant because callers reassemble results
// through the key alone.
package workpool

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Unit is one keyed job.
type Unit[K comparable, R any] struct {
	Key K
	Run func(ctx context.Context) (R, error)
}

// Result is the outcome of a unit.
type Result[K comparable, R any] struct {
	Key   K
	Value R
	Err   error
}

// Results maps unit keys to outcomes.
type Results[K comparable, R any] map[K]Result[K, R]

// Errors returns the failed results ordered by less.
func (r Results[K, R]) Errors(less func(a, b K) bool) []Result[K, R] {
	var failed []Result[K, R]
	for _, res := range r {
		if res.Err != nil {
			failed = append(failed, res)
		}
	}
	sort.Slice(failed, func(i, j int) bool { return less(failed[i].Key, failed[j].Key) })
	return failed
}

// Pool bounds concurrent unit execution.
type Pool struct {
	limit  int
	onDone func(done, total int)
}

// New returns a pool running at most limit units at once. Non-positive limits
// run one unit at a time.
func New(limit int) *Pool {
	if limit < 1 {
		limit = 1
	}
	return &Pool{limit: limit}
}

// Limit reports the concurrency bound.
func (p *Pool) Limit() int { return p.limit }

// OnDone registers a progress hook called after each unit finishes. Calls are
// serialized.
func (p *Pool) OnDone(fn func(done, total int)) *Pool {
	p.onDone = fn
	return p
}

// Run executes every unit and returns their outcomes. Units already started
// run to completion; once ctx is done no further units are submitted and
// ctx.Err() is returned alongside the partial results.
func Run[K comparable, R any](ctx context.Context, p *Pool, units []Unit[K, R]) (Results[K, R], error) {
	results := make(Results[K, R], len(units))
	if len(units) == 0 {
		return results, ctx.Err()
	}

	var (
		mu   sync.Mutex
		done int
	)
	record := func(res Result[K, R]) {
		mu.Lock()
		defer mu.Unlock()
		results[res.Key] = res
		done++
		if p.onDone != nil {
			p.onDone(done, len(units))
		}
	}

	var g errgroup.Group
	g.SetLimit(p.limit)
	var submitErr error
	for _, unit := range units {
		if err := ctx.Err(); err != nil {
			submitErr = err
			break
		}
		g.Go(func() error {
			value, err := unit.Run(ctx)
			record(Result[K, R]{Key: unit.Key, Value: value, Err: err})
			return nil
		})
	}
	_ = g.Wait()
	return results, submitErr
}

// RunFirstThenRest runs units[0] on the calling goroutine and returns its
// error without touching the remaining units if it fails. Otherwise the rest
// fan out through Run and the first unit's result is merged in.
func RunFirstThenRest[K comparable, R any](ctx context.Context, p *Pool, units []Unit[K, R]) (Results[K, R], error) {
	if len(units) == 0 {
		return Results[K, R]{}, ctx.Err()
	}
	if err := ctx.Err(); err != nil {
		return Results[K, R]{}, err
	}

	first := units[0]
	value, err := first.Run(ctx)
	if err != nil {
		return Results[K, R]{first.Key: {Key: first.Key, Value: value, Err: err}}, err
	}

	rest := units[1:]
	total := len(units)
	if p.onDone != nil {
		p.onDone(1, total)
	}
	// Shift progress so callers see counts against the full unit list.
	shifted := &Pool{limit: p.limit}
	if p.onDone != nil {
		hook := p.onDone
		shifted.onDone = func(done, _ int) { hook(done+1, total) }
	}
	results, runErr := Run(ctx, shifted, rest)
	results[first.Key] = Result[K, R]{Key: first.Key, Value: value}
	return results, runErr
}
