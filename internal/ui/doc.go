// Package ui implements an interactive terminal interface using bubbletea's Elm architecture.
//
// The TUI browses the latest snapshots and can trigger an ingestion run:
//  1. [BrowseView] : Latest artists, tracks or playlist tracks for a window
//  2. [IngestView] : Monitor real-time progress updates of a run
//  3. [ResultView] : Display the run's status and row counts
//
// The (view) [Model] implements bubbletea/Elm's standard Init/Update/View pattern, receiving messages via the Msg union type.
// Progress updates flow through a channel from the Ingestor while the run executes in its own goroutine.
//
// Keyboard navigation uses tab to cycle kinds, 1/2/3 to pick a window, i to ingest and q to quit,
// with contextual help displayed via charmbracelet/bubbles/help.
package ui
