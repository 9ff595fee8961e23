// Package web serves the snapshot dashboard.
//
// The dashboard renders the latest artist, track and playlist-track rows for a selected window
// (or a custom date range) with sortable columns and a text filter. The same rows are exposed as JSON under /api/{kind}.
//
// Routes
//
//	GET /?window=long|medium|short|custom&start=YYYY-MM-DD&end=YYYY-MM-DD&sort=<column>&order=asc|desc&q=<text>
//	GET /api/artists
//	GET /api/tracks
//	GET /api/playlist-tracks
//	GET /healthz
//
// A custom range ranks rows by the long window and keeps snapshots fetched between start and the end of the end date.
package web
