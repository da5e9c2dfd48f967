package paging

import (
	"errors"
	"fmt"
	"iter"
)

const (
	// DefaultPageLimit is the maximum number of items a single read request may ask for.
	DefaultPageLimit uint32 = 50
	// DefaultBatchLimit is the maximum number of items a single write request may carry.
	DefaultBatchLimit = 100
)

// ErrPlanExhausted is the panic value raised when a planner is advanced after it reported no remaining work.
var ErrPlanExhausted = errors.New("paging: plan exhausted")

// Window is a single (offset, limit) read request.
type Window struct {
	Offset uint32 `json:"offset"`
	Limit  uint32 `json:"limit"`
}

func (w Window) String() string {
	return fmt.Sprintf("offset=%d limit=%d", w.Offset, w.Limit)
}

// End returns the offset one past the last item covered by w.
func (w Window) End() uint32 {
	return w.Offset + w.Limit
}

// Limits holds the per-request ceilings imposed by the remote API.
type Limits struct {
	Page  uint32
	Batch int
}

// DefaultLimits returns the Spotify Web API limits.
func DefaultLimits() Limits {
	return Limits{Page: DefaultPageLimit, Batch: DefaultBatchLimit}
}

// Normalize replaces zero or negative limits with their defaults.
func (l Limits) Normalize() Limits {
	if l.Page == 0 {
		l.Page = DefaultPageLimit
	}
	if l.Batch <= 0 {
		l.Batch = DefaultBatchLimit
	}
	return l
}

// windowLimit returns the size of the next window given the items still wanted.
func windowLimit(remaining, pageLimit uint32) uint32 {
	return min(remaining, pageLimit)
}

// ReadPlan hands out read windows one at a time until the requested range is covered.
//
// A ReadPlan is owned by a single goroutine.
type ReadPlan struct {
	offset    uint32
	limit     uint32
	pageLimit uint32
	remaining bool
}

// NewReadPlan creates a plan covering [offset, offset+limit). A pageLimit of zero uses [DefaultPageLimit].
func NewReadPlan(offset, limit, pageLimit uint32) *ReadPlan {
	if pageLimit == 0 {
		pageLimit = DefaultPageLimit
	}
	return &ReadPlan{
		offset:    offset,
		limit:     limit,
		pageLimit: pageLimit,
		remaining: limit > 0,
	}
}

// RequestRequired reports whether another window is still to be produced.
func (p *ReadPlan) RequestRequired() bool {
	return p.remaining
}

// RequestLimitExceeded reports whether the remaining limit is larger than a single page.
func (p *ReadPlan) RequestLimitExceeded() bool {
	return p.limit > p.pageLimit
}

// Offset returns the offset of the next window.
func (p *ReadPlan) Offset() uint32 {
	return p.offset
}

// Remaining returns how many items are still to be requested.
func (p *ReadPlan) Remaining() uint32 {
	return p.limit
}

// NextWindow returns the next window and advances the plan.
//
// It panics with [ErrPlanExhausted] once [ReadPlan.RequestRequired] reports false.
func (p *ReadPlan) NextWindow() Window {
	if !p.remaining {
		panic(ErrPlanExhausted)
	}

	w := Window{Offset: p.offset, Limit: windowLimit(p.limit, p.pageLimit)}
	if p.RequestLimitExceeded() {
		p.limit -= w.Limit
		p.offset += w.Limit
		if p.limit == 0 {
			p.remaining = false
		}
		return w
	}

	p.offset += w.Limit
	p.limit = 0
	p.remaining = false
	return w
}

// Windows drains the plan, yielding each window in order.
func (p *ReadPlan) Windows() iter.Seq[Window] {
	return func(yield func(Window) bool) {
		for p.RequestLimitExceeded() || p.RequestRequired() {
			if !yield(p.NextWindow()) {
				return
			}
		}
	}
}

// PlanWindows partitions [offset, offset+limit) into windows of at most pageLimit items, ordered by offset.
//
// The result is immutable and safe to share between goroutines. A limit that fits in one page yields a
// single window, including the degenerate zero-limit window.
func PlanWindows(offset, limit, pageLimit uint32) []Window {
	if pageLimit == 0 {
		pageLimit = DefaultPageLimit
	}
	if limit <= pageLimit {
		return []Window{{Offset: offset, Limit: limit}}
	}

	count := limit / pageLimit
	if limit%pageLimit != 0 {
		count++
	}

	windows := make([]Window, 0, count)
	for remaining := limit; remaining > 0; {
		size := windowLimit(remaining, pageLimit)
		windows = append(windows, Window{Offset: offset, Limit: size})
		offset += size
		remaining -= size
	}
	return windows
}
