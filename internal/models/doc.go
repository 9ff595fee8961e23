// Package models defines the snapshot records and enumerations shared by ingestion, storage and presentation.
//
// Records are fixed structs constructed once per fetched entity:
//   - [ArtistRecord] : one ranked entry of the user's top artists for a [Window]
//   - [TrackRecord] : one ranked entry of the user's top tracks, with resolved genres and embed markup
//   - [PlaylistTrackRecord] : one track of one of the user's own playlists
//
// Every record produced by a single ingestion run carries the same FetchedAt and RunID.
// [IngestRun] is the audit row describing that run.
//
// A [Window] is both the upstream time_range query parameter and the local snapshot filter key.
// [Window.Cutoff] maps a window to the earliest snapshot time the dashboard considers part of it.
package models
