package tasks

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/echo/internal/models"
	"github.com/desertthunder/echo/internal/paging"
	"github.com/desertthunder/echo/internal/shared"
	"golang.org/x/sync/semaphore"
)

// Page is one window's worth of playlist items.
//
// It carries its originating window so that pages fetched concurrently can be put back in order.
type Page struct {
	Window paging.Window
	Items  []models.Track
	Total  int // Size of the whole collection as reported by the API
}

// PageResult is what a concurrent worker reports for its window.
type PageResult struct {
	Window paging.Window
	Page   *Page
	Err    error
}

// PageFetcher reads a single window from a paginated collection.
type PageFetcher interface {
	FetchPage(ctx context.Context, w paging.Window) (*Page, error)
}

// BatchSender writes one batch of item URIs, optionally at an insertion position.
type BatchSender interface {
	SendBatch(ctx context.Context, items []string, position *uint32) error
}

// PageFetcherFunc adapts a function to [PageFetcher].
type PageFetcherFunc func(ctx context.Context, w paging.Window) (*Page, error)

func (f PageFetcherFunc) FetchPage(ctx context.Context, w paging.Window) (*Page, error) {
	return f(ctx, w)
}

// BatchSenderFunc adapts a function to [BatchSender].
type BatchSenderFunc func(ctx context.Context, items []string, position *uint32) error

func (f BatchSenderFunc) SendBatch(ctx context.Context, items []string, position *uint32) error {
	return f(ctx, items, position)
}

// WindowError records the window whose fetch failed.
type WindowError struct {
	Window paging.Window
	Err    error
}

func (e *WindowError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Window, e.Err)
}

func (e *WindowError) Unwrap() error { return e.Err }

// BatchError records the batch whose write failed.
type BatchError struct {
	Index    int // Zero-based batch number
	Size     int
	Position *uint32
	Err      error
}

func (e *BatchError) Error() string {
	if e.Position != nil {
		return fmt.Sprintf("send batch %d (%d items at position %d): %v", e.Index, e.Size, *e.Position, e.Err)
	}
	return fmt.Sprintf("send batch %d (%d items): %v", e.Index, e.Size, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }

// Engine executes read and write plans against a playlist service.
type Engine struct {
	logger *log.Logger
	limits paging.Limits
	fanOut int
}

// EngineOption configures an [Engine].
type EngineOption func(*Engine)

// WithLogger sets the logger used for request tracing.
func WithLogger(l *log.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithLimits overrides the page and batch limits. Zero values keep the defaults.
func WithLimits(l paging.Limits) EngineOption {
	return func(e *Engine) { e.limits = l.Normalize() }
}

// WithFanOut bounds the number of concurrent page fetches. Zero or less runs one worker per window.
func WithFanOut(n int) EngineOption {
	return func(e *Engine) { e.fanOut = max(n, 0) }
}

// NewEngine creates an Engine with the Spotify limits and no logging.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{logger: shared.DiscardLogger(), limits: paging.DefaultLimits()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Limits returns the limits the engine plans with.
func (e *Engine) Limits() paging.Limits {
	return e.limits
}

// sendProgress sends a progress update through the channel without blocking.
func (e *Engine) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

// FetchSequential reads [offset, offset+limit) one window at a time.
func (e *Engine) FetchSequential(
	ctx context.Context,
	fetcher PageFetcher,
	offset, limit uint32,
	progress chan<- ProgressUpdate,
) ([]Page, error) {
	plan := paging.NewReadPlan(offset, limit, e.limits.Page)
	total := windowCount(limit, e.limits.Page)
	pages := make([]Page, 0, total)

	step := 0
	for w := range plan.Windows() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		step++
		e.sendProgress(progress, fetchWindowUpdate(step, total, w))
		e.logger.Debug("fetching window", "offset", w.Offset, "limit", w.Limit)

		page, err := e.fetch(ctx, fetcher, w)
		if err != nil {
			return nil, err
		}
		pages = append(pages, *page)
		e.sendProgress(progress, pageFetchedUpdate(step, total, page))
	}
	return pages, nil
}

// FetchConcurrent reads every window of [offset, offset+limit) in its own goroutine.
//
// A failed window does not cancel the others. The call fails if any window failed, with every
// [*WindowError] joined together. Pages are returned in offset order.
func (e *Engine) FetchConcurrent(
	ctx context.Context,
	fetcher PageFetcher,
	offset, limit uint32,
	progress chan<- ProgressUpdate,
) ([]Page, error) {
	if limit == 0 {
		return nil, nil
	}

	windows := paging.PlanWindows(offset, limit, e.limits.Page)
	results := make(chan PageResult, len(windows))

	var sem *semaphore.Weighted
	if e.fanOut > 0 {
		sem = semaphore.NewWeighted(int64(e.fanOut))
	}

	var wg sync.WaitGroup
	for i, w := range windows {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if sem != nil {
				if err := sem.Acquire(ctx, 1); err != nil {
					results <- PageResult{Window: w, Err: &WindowError{Window: w, Err: err}}
					return
				}
				defer sem.Release(1)
			}

			e.sendProgress(progress, fetchWindowUpdate(i+1, len(windows), w))
			page, err := e.fetch(ctx, fetcher, w)
			results <- PageResult{Window: w, Page: page, Err: err}
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	pages := make([]Page, 0, len(windows))
	var errs []error
	completed := 0
	for res := range results {
		completed++
		if res.Err != nil {
			errs = append(errs, res.Err)
			var we *WindowError
			if errors.As(res.Err, &we) {
				e.sendProgress(progress, pageFailedUpdate(completed, len(windows), we))
			}
			e.logger.Warn("window failed", "window", res.Window, "error", res.Err)
			continue
		}
		pages = append(pages, *res.Page)
		e.sendProgress(progress, pageFetchedUpdate(completed, len(windows), res.Page))
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	slices.SortFunc(pages, func(a, b Page) int {
		return cmp.Compare(a.Window.Offset, b.Window.Offset)
	})
	return pages, nil
}

// fetch performs one window request and stamps the window on the returned page.
func (e *Engine) fetch(ctx context.Context, fetcher PageFetcher, w paging.Window) (*Page, error) {
	page, err := fetcher.FetchPage(ctx, w)
	if err != nil {
		return nil, &WindowError{Window: w, Err: err}
	}
	if page == nil {
		page = &Page{}
	}
	page.Window = w
	return page, nil
}

// SendBatches writes items through sender in batches, returning how many items were sent.
//
// With a position, the first batch is inserted there and each later batch directly after the previous one.
func (e *Engine) SendBatches(
	ctx context.Context,
	sender BatchSender,
	items []string,
	position *uint32,
	progress chan<- ProgressUpdate,
) (int, error) {
	plan := paging.NewBatchPlan(items, position, e.limits.Batch)
	total := batchCount(len(items), e.limits.Batch)

	sent := 0
	for index := 0; plan.RequestLimitExceeded() || plan.RequestRequired(); index++ {
		if err := ctx.Err(); err != nil {
			return sent, err
		}

		b := plan.Next()
		e.sendProgress(progress, sendBatchUpdate(index+1, total, b))
		e.logger.Debug("sending batch", "index", index, "size", len(b.Items))

		if err := sender.SendBatch(ctx, b.Items, b.Position); err != nil {
			return sent, &BatchError{Index: index, Size: len(b.Items), Position: b.Position, Err: err}
		}
		sent += len(b.Items)
	}
	return sent, nil
}

func windowCount(limit, pageLimit uint32) int {
	return int((uint64(limit) + uint64(pageLimit) - 1) / uint64(pageLimit))
}

func batchCount(items, batchLimit int) int {
	return (items + batchLimit - 1) / batchLimit
}
