// Package tasks drives paginated reads and batched writes against a playlist service with progress reporting.
//
// # Engine
//
// [Engine] turns the planners in [paging] into requests:
//
//  1. [Engine.FetchSequential] : walks a [paging.ReadPlan] one window at a time
//     - Stops at the first failure and returns a [*WindowError]
//
//  2. [Engine.FetchConcurrent] : fans out one worker per window of [paging.PlanWindows]
//     - Every worker reports a [PageResult] into one channel, closed once all workers finish
//     - A failure never cancels sibling workers; all results are drained before returning
//     - Failures are joined with [errors.Join] and pages are returned sorted by offset
//     - [WithFanOut] bounds the number of in-flight workers
//
//  3. [Engine.SendBatches] : walks a [paging.BatchPlan]
//     - Each batch is inserted at the position captured before the plan advances
//     - Stops at the first failure and returns a [*BatchError]
//
// The engine only knows two capabilities, [PageFetcher] and [BatchSender]. The Spotify client in
// package services provides both.
//
// # Playlist Operations
//
//   - [Engine.Load] : resolves the collection size when no limit is given and flattens pages into a [models.Snapshot]
//   - [Compare] : matches two snapshots by URI, then ISRC, then normalized title and artist
//   - [FindPlaylists] : fuzzy playlist name search
//   - [Engine.ReplicateLiked] : copies the liked tracks into a public playlist, creating it on first use
//
// # Progress Reporting
//
// Every operation accepts an optional [ProgressUpdate] channel. Sends use select with default so a
// slow or absent reader never blocks a transfer. A nil channel disables reporting.
package tasks
