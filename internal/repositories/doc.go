// Package repositories implements SQL persistence for listening snapshots, on SQLite or PostgreSQL.
//
// Key Implementations:
//   - [SnapshotRepository] : append-only writes and latest-row reads over top_artists, top_tracks and all_tracks
//   - [RunRepository] : ingest run audit rows in ingest_runs
//
// Snapshot tables never update or delete. Every row carries an autoincrementing seq (insertion order) and a
// fetched_at stored as Unix microseconds, shared by all rows written by one run.
//
// The latest reads pick, per entity, the row with the greatest fetched_at among rows inside the [Query] bounds,
// breaking ties with seq, using ROW_NUMBER() over a partition by entity id.
package repositories
