package tasks

import (
	"context"
	"fmt"

	"github.com/desertthunder/toptally/internal/models"
	"github.com/desertthunder/toptally/internal/shared"
)

const (
	// MaxTopLimit is the top-items endpoint's maximum page size.
	MaxTopLimit = 50
	// MaxPlaylistLimit is the playlist items endpoint's maximum page size.
	MaxPlaylistLimit = 100
)

// PageFunc fetches one page of a window's ranked items.
type PageFunc[T any] func(ctx context.Context, window models.Window, limit, offset int) ([]T, error)

// Ranked pairs an item with its 1-based upstream position.
type Ranked[T any] struct {
	Item T
	Rank int
}

// WindowResult holds one window's ranked items, or the error that aborted it.
//
// Items is empty whenever Err is set.
type WindowResult[T any] struct {
	Window models.Window
	Items  []Ranked[T]
	Err    error
}

// FetchRanked fetches each window's top n items in upstream order, one window at a time.
//
// n below 1 is treated as 1. Pages hold at most [MaxTopLimit] items and are requested at increasing
// offsets until n items are collected or an empty page comes back; ranks continue across pages.
// A failed page aborts only its window: the result carries an error wrapping [shared.ErrFetchFailed].
// Repeated windows are fetched once, in first-seen order.
func FetchRanked[T any](ctx context.Context, windows []models.Window, n int, page PageFunc[T]) []WindowResult[T] {
	n = max(n, 1)

	seen := make(map[models.Window]bool, len(windows))
	results := make([]WindowResult[T], 0, len(windows))

	for _, window := range windows {
		if seen[window] {
			continue
		}
		seen[window] = true

		items, err := Paginate(ctx, MaxTopLimit, n, func(ctx context.Context, limit, offset int) ([]T, error) {
			return page(ctx, window, limit, offset)
		})
		if err != nil {
			results = append(results, WindowResult[T]{
				Window: window,
				Err:    fmt.Errorf("%w: window %s: %v", shared.ErrFetchFailed, window, err),
			})
			continue
		}

		ranked := make([]Ranked[T], len(items))
		for i, item := range items {
			ranked[i] = Ranked[T]{Item: item, Rank: i + 1}
		}
		results = append(results, WindowResult[T]{Window: window, Items: ranked})
	}

	return results
}

// Paginate requests pages of up to pageSize items, each at the offset of the items collected so far.
//
// It stops at an empty page or, when total is positive, once total items are collected.
// The first failure stops pagination; items collected so far are discarded.
func Paginate[T any](ctx context.Context, pageSize, total int, page func(ctx context.Context, limit, offset int) ([]T, error)) ([]T, error) {
	pageSize = max(pageSize, 1)

	var all []T
	for total <= 0 || len(all) < total {
		offset := len(all)
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("offset %d: %w", offset, err)
		}

		limit := pageSize
		if total > 0 {
			limit = min(pageSize, total-offset)
		}

		items, err := page(ctx, limit, offset)
		if err != nil {
			return nil, fmt.Errorf("offset %d: %w", offset, err)
		}
		if len(items) == 0 {
			break
		}
		all = append(all, items[:min(len(items), limit)]...)
	}
	return all, nil
}
