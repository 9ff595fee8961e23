// Package tasks implements ingestion of listening snapshots with real-time progress reporting.
//
// # Building Blocks
//
//  1. [FetchRanked] : Paged, ranked retrieval per window
//     - Requests pages sequentially until an empty page
//     - Ranks are 1-based and contiguous across pages
//     - A failing window is reported in its [WindowResult] and does not affect the others
//
//  2. [GenreResolver] : Per-run genre memoization over a [GenreCache]
//     - At most one artist lookup per distinct artist ID
//     - Failed lookups resolve to an empty list and are not retried
//
//  3. [Ingestor] : One full run
//     - Stamps every record with a single timestamp captured at the start
//     - Fetches top artists and tracks, then optionally the user's playlist tracks
//     - Appends each kind through a [SnapshotWriter] and records the run through a [RunRecorder]
//
// # Progress Reporting
//
// # All operations use non-blocking channels for progress updates
//
// The [ProgressUpdate] struct contains phase, step counters, messages, and optional data for advanced UI rendering.
// Updates use select with default to prevent blocking.
package tasks
