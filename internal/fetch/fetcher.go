// Package fetch retrieves rendered page text under a hard wall-clock budget.
//
// A Fetch call never outlives its budget: engine startup, navigation, the
// settle delay and text extraction each run under their own deadline nested
// inside the call deadline, and every layer is guarded so that a component
// which ignores cancellation is abandoned rather than waited on. Resources
// opened by the call are released on every exit path.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/rahul/mia/internal/observability"
	"github.com/rs/zerolog/log"
)

// ErrBlocked is returned by a Reader when the target refuses access.
var ErrBlocked = errors.New("access blocked by target")

// WaitCondition selects how long navigation waits before returning.
type WaitCondition int

const (
	// WaitContentLoaded waits for the load event and a ready body.
	WaitContentLoaded WaitCondition = iota
	// WaitCommitted only waits for the navigation to commit and a body to exist.
	WaitCommitted
)

func (w WaitCondition) String() string {
	if w == WaitCommitted {
		return "committed"
	}
	return "content_loaded"
}

// Engine starts a rendering engine instance. The context bounds the lifetime
// of the instance, not just its startup.
type Engine interface {
	Open(ctx context.Context) (Page, error)
}

// Page is one rendering session. Close releases the session and the engine
// instance behind it.
type Page interface {
	Navigate(ctx context.Context, address string, wait WaitCondition) error
	Scroll(ctx context.Context) error
	Text(ctx context.Context) (string, error)
	Close() error
}

// Reader is the cheap, browserless strategy used when rendering fails.
type Reader interface {
	Read(ctx context.Context, address string) (string, error)
}

type Options struct {
	Budget          time.Duration
	StartupTimeout  time.Duration
	NavigateTimeout time.Duration
	SettleDelay     time.Duration
	ExtractTimeout  time.Duration
	// ReleaseReserve is held back from the layers so closing the engine
	// still fits inside the budget. Capped at a tenth of the budget.
	ReleaseReserve  time.Duration
	MinContentChars int
}

func DefaultOptions() Options {
	return Options{
		Budget:          30 * time.Second,
		StartupTimeout:  10 * time.Second,
		NavigateTimeout: 20 * time.Second,
		SettleDelay:     time.Second,
		ExtractTimeout:  5 * time.Second,
		ReleaseReserve:  500 * time.Millisecond,
		MinContentChars: 100,
	}
}

type Fetcher struct {
	engine Engine
	reader Reader
	opts   Options
}

// NewFetcher builds a fetcher. reader may be nil, in which case a failed
// browser path ends as Degraded without text.
func NewFetcher(engine Engine, reader Reader, opts Options) *Fetcher {
	if opts.Budget <= 0 {
		opts.Budget = DefaultOptions().Budget
	}
	return &Fetcher{engine: engine, reader: reader, opts: opts}
}

// Fetch renders address and returns its text. budget <= 0 uses the
// configured default.
func (f *Fetcher) Fetch(ctx context.Context, address string, budget time.Duration) Outcome {
	start := time.Now()
	out := f.fetch(ctx, address, budget)
	out.Elapsed = time.Since(start)

	observability.FetchOutcomes.WithLabelValues(out.Kind.String()).Inc()
	observability.FetchDuration.Observe(out.Elapsed.Seconds())
	log.Debug().Str("address", address).Str("kind", out.Kind.String()).Str("reason", out.Reason).
		Dur("elapsed", out.Elapsed).Int("chars", len(out.Text)).Msg("fetch finished")
	return out
}

func (f *Fetcher) fetch(parent context.Context, address string, budget time.Duration) Outcome {
	if address == "" {
		return Outcome{Kind: Degraded, Reason: "empty address"}
	}
	if budget <= 0 {
		budget = f.opts.Budget
	}

	deadline := time.Now().Add(budget)
	workEnd := deadline.Add(-f.reserve(budget))

	ctx, cancel := context.WithDeadline(parent, deadline)
	defer cancel()

	page, err := f.open(ctx, workEnd)
	if err != nil {
		if isTimeout(err) {
			return timedOut("engine startup", err)
		}
		return f.degrade(ctx, address, workEnd, fmt.Sprintf("browser unavailable: %v", err))
	}
	defer f.release(page, deadline)

	if err := f.navigate(ctx, page, address, workEnd); err != nil {
		if isTimeout(err) {
			return timedOut("navigation", err)
		}
		return f.degrade(ctx, address, workEnd, fmt.Sprintf("navigation failed: %v", err))
	}

	f.settle(ctx, page, workEnd)

	text, err := runLayer(ctx, workEnd, f.opts.ExtractTimeout, page.Text)
	if err != nil {
		if isTimeout(err) {
			return timedOut("extraction", err)
		}
		return Outcome{Kind: Degraded, Reason: fmt.Sprintf("extraction failed: %v", err)}
	}
	return f.classify(Normalize(text), Content, "")
}

func (f *Fetcher) reserve(budget time.Duration) time.Duration {
	r := f.opts.ReleaseReserve
	if limit := budget / 10; r > limit {
		r = limit
	}
	if r < 0 {
		r = 0
	}
	return r
}

// open starts the engine under the startup timeout. The engine is bound to
// the call context so it dies with the call; a page that arrives after the
// startup layer gave up is closed in the background.
func (f *Fetcher) open(ctx context.Context, workEnd time.Time) (Page, error) {
	d := layerTimeout(workEnd, f.opts.StartupTimeout)
	if d <= 0 {
		return nil, context.DeadlineExceeded
	}
	lctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	ch := make(chan layerResult[Page], 1)
	go func() {
		p, err := f.engine.Open(ctx)
		ch <- layerResult[Page]{v: p, err: err}
	}()

	select {
	case r := <-ch:
		if r.err != nil && lctx.Err() != nil {
			return nil, lctx.Err()
		}
		return r.v, r.err
	case <-lctx.Done():
		go func() {
			if r := <-ch; r.v != nil {
				_ = r.v.Close()
			}
		}()
		return nil, lctx.Err()
	}
}

// navigate tries the high-fidelity wait condition first and, only when it
// times out, the cheaper committed condition once. Each attempt may take at
// most two thirds of what is left so later layers keep some budget.
func (f *Fetcher) navigate(ctx context.Context, page Page, address string, workEnd time.Time) error {
	err := runStep(ctx, workEnd, share(workEnd, f.opts.NavigateTimeout), func(lctx context.Context) error {
		return page.Navigate(lctx, address, WaitContentLoaded)
	})
	if err == nil || !isTimeout(err) || ctx.Err() != nil {
		return err
	}

	log.Debug().Str("address", address).Msg("content-loaded navigation timed out, retrying with committed")
	return runStep(ctx, workEnd, share(workEnd, f.opts.NavigateTimeout), func(lctx context.Context) error {
		return page.Navigate(lctx, address, WaitCommitted)
	})
}

// settle scrolls once and waits for late content. Failures are ignored; the
// extraction layer decides whether the page is usable.
func (f *Fetcher) settle(ctx context.Context, page Page, workEnd time.Time) {
	if f.opts.SettleDelay <= 0 {
		return
	}
	err := runStep(ctx, workEnd, share(workEnd, 2*f.opts.SettleDelay), func(lctx context.Context) error {
		if err := page.Scroll(lctx); err != nil {
			return err
		}
		return sleep(lctx, f.opts.SettleDelay)
	})
	if err != nil {
		log.Debug().Err(err).Msg("settle step skipped")
	}
}

// degrade runs the browserless reader inside whatever budget is left.
func (f *Fetcher) degrade(ctx context.Context, address string, workEnd time.Time, reason string) Outcome {
	if f.reader == nil {
		return Outcome{Kind: Degraded, Reason: reason}
	}
	text, err := runLayer(ctx, workEnd, 0, func(lctx context.Context) (string, error) {
		return f.reader.Read(lctx, address)
	})
	switch {
	case err == nil:
		return f.classify(Normalize(text), Degraded, reason)
	case errors.Is(err, ErrBlocked):
		return Outcome{Kind: Blocked, Reason: err.Error()}
	case isTimeout(err):
		return timedOut("http fallback", err)
	default:
		return Outcome{Kind: Degraded, Reason: fmt.Sprintf("%s; http fallback failed: %v", reason, err)}
	}
}

func (f *Fetcher) classify(text string, kind Kind, reason string) Outcome {
	if n := utf8.RuneCountInString(text); n < f.opts.MinContentChars {
		return Outcome{Kind: Blocked, Text: text, Reason: fmt.Sprintf("only %d characters extracted", n)}
	}
	return Outcome{Kind: kind, Text: text, Reason: reason}
}

// release closes the page but never waits past the call deadline; a close
// that hangs finishes in the background.
func (f *Fetcher) release(page Page, deadline time.Time) {
	done := make(chan error, 1)
	go func() { done <- page.Close() }()

	wait := time.Until(deadline)
	if wait < 0 {
		wait = 0
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case err := <-done:
		if err != nil {
			log.Debug().Err(err).Msg("page close failed")
		}
	case <-timer.C:
		log.Warn().Msg("page close still pending at budget end, abandoning")
	}
}

func timedOut(layer string, err error) Outcome {
	return Outcome{Kind: TimedOut, Reason: fmt.Sprintf("%s: %v", layer, err)}
}

type layerResult[T any] struct {
	v   T
	err error
}

// runLayer runs fn under min(limit, time left until workEnd); limit <= 0 means
// all of the time left. fn runs in its own goroutine so a call that ignores
// its context cannot hold the caller past the deadline.
func runLayer[T any](ctx context.Context, workEnd time.Time, limit time.Duration, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	d := layerTimeout(workEnd, limit)
	if d <= 0 {
		return zero, context.DeadlineExceeded
	}
	lctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	ch := make(chan layerResult[T], 1)
	go func() {
		v, err := fn(lctx)
		ch <- layerResult[T]{v: v, err: err}
	}()

	select {
	case r := <-ch:
		if r.err != nil && lctx.Err() != nil {
			return zero, lctx.Err()
		}
		return r.v, r.err
	case <-lctx.Done():
		return zero, lctx.Err()
	}
}

func runStep(ctx context.Context, workEnd time.Time, limit time.Duration, fn func(context.Context) error) error {
	_, err := runLayer(ctx, workEnd, limit, func(lctx context.Context) (struct{}, error) {
		return struct{}{}, fn(lctx)
	})
	return err
}

func layerTimeout(workEnd time.Time, limit time.Duration) time.Duration {
	remaining := time.Until(workEnd)
	if limit > 0 && limit < remaining {
		return limit
	}
	return remaining
}

func share(workEnd time.Time, limit time.Duration) time.Duration {
	d := time.Until(workEnd) * 2 / 3
	if limit > 0 && limit < d {
		return limit
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func isTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}
