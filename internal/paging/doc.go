// Package paging plans bounded-size requests against a paginated API.
//
// # Read windows
//
// The Spotify Web API caps every read at [DefaultPageLimit] items. A caller that wants
// `limit` items starting at `offset` asks a planner for API-legal [Window] values:
//
//   - [ReadPlan] hands out windows one at a time.
//   - [PlanWindows] precomputes the whole list up front so that windows can be fetched concurrently.
//
// A ReadPlan behaves as a `do; while;` loop when its two predicates are paired:
//
//	for plan.RequestLimitExceeded() || plan.RequestRequired() {
//		w := plan.NextWindow()
//		// issue w
//	}
//
// Both share [windowLimit] so the windowing arithmetic lives in one place.
//
// # Write batches
//
// [BatchPlan] splits a list of item URIs into chunks of at most [DefaultBatchLimit] and tracks an optional
// insertion position that moves forward as earlier chunks are inserted ahead of it.
//
// Planners never fail at runtime. Asking an exhausted planner for more work is a caller bug and panics
// with [ErrPlanExhausted].
package paging
