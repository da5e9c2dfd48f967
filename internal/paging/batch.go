package paging

// BatchPlan splits a queue of item URIs into write batches of at most batchLimit items.
//
// When an insertion position is supplied it is advanced by the size of every non-final batch, so each
// batch lands directly after the one before it.
type BatchPlan struct {
	items      []string
	position   *uint32
	batchLimit int
	remaining  bool
}

// NewBatchPlan creates a plan over a copy of items. A nil position appends to the end of the target.
// A batchLimit of zero or less uses [DefaultBatchLimit].
func NewBatchPlan(items []string, position *uint32, batchLimit int) *BatchPlan {
	if batchLimit <= 0 {
		batchLimit = DefaultBatchLimit
	}

	var pos *uint32
	if position != nil {
		p := *position
		pos = &p
	}

	return &BatchPlan{
		items:      append([]string(nil), items...),
		position:   pos,
		batchLimit: batchLimit,
		remaining:  len(items) > 0,
	}
}

// RequestRequired reports whether a batch is still to be produced.
func (p *BatchPlan) RequestRequired() bool {
	return p.remaining
}

// RequestLimitExceeded reports whether the queue holds more than one batch worth of items.
func (p *BatchPlan) RequestLimitExceeded() bool {
	return len(p.items) > p.batchLimit
}

// Len returns the number of queued items.
func (p *BatchPlan) Len() int {
	return len(p.items)
}

// Position returns the current insertion position, if one was supplied.
func (p *BatchPlan) Position() (uint32, bool) {
	if p.position == nil {
		return 0, false
	}
	return *p.position, true
}

// positionRef returns a copy of the position suitable for handing to a sender.
func (p *BatchPlan) positionRef() *uint32 {
	if p.position == nil {
		return nil
	}
	pos := *p.position
	return &pos
}

// NextBatch removes and returns the next batch.
//
// It panics with [ErrPlanExhausted] once [BatchPlan.RequestRequired] reports false.
func (p *BatchPlan) NextBatch() []string {
	if !p.remaining {
		panic(ErrPlanExhausted)
	}

	if p.RequestLimitExceeded() {
		batch := append([]string(nil), p.items[:p.batchLimit]...)
		p.items = p.items[p.batchLimit:]
		if p.position != nil {
			*p.position += uint32(p.batchLimit)
		}
		if len(p.items) == 0 {
			p.remaining = false
		}
		return batch
	}

	batch := append([]string(nil), p.items...)
	p.items = nil
	p.remaining = false
	return batch
}

// Batch is one write request produced by [BatchPlan.Next].
type Batch struct {
	Items    []string
	Position *uint32
}

// Next returns the next batch together with the position it must be inserted at.
//
// The position is captured before the plan advances so that the first batch goes to the
// caller's original position and later batches follow it.
func (p *BatchPlan) Next() Batch {
	pos := p.positionRef()
	return Batch{Items: p.NextBatch(), Position: pos}
}
