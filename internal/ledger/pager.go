package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
)

const DefaultMaxPages = 1000

var (
	ErrRepeatedMarker = errors.New("ledger: pagination marker repeated")
	ErrTooManyPages   = errors.New("ledger: pagination exceeded page limit")
)

// PageFunc fetches the page that starts at marker. An empty next marker ends
// the listing.
type PageFunc[T any] func(ctx context.Context, marker json.RawMessage) (items []T, next json.RawMessage, err error)

// Pages lazily walks a marker-paginated listing. It stops after the page
// without a marker, and yields an error instead of looping when the node
// repeats a marker or the listing runs past maxPages.
func Pages[T any](ctx context.Context, maxPages int, fetch PageFunc[T]) iter.Seq2[[]T, error] {
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}
	return func(yield func([]T, error) bool) {
		var marker json.RawMessage
		seen := make(map[string]struct{})

		for page := 0; ; page++ {
			if page == maxPages {
				yield(nil, fmt.Errorf("%w (%d)", ErrTooManyPages, maxPages))
				return
			}
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}

			items, next, err := fetch(ctx, marker)
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(items, nil) {
				return
			}

			if isEmptyMarker(next) {
				return
			}
			key := string(next)
			if _, dup := seen[key]; dup {
				yield(nil, fmt.Errorf("%w: %s", ErrRepeatedMarker, key))
				return
			}
			seen[key] = struct{}{}
			marker = next
		}
	}
}

// Collect drains seq into a single slice.
func Collect[T any](seq iter.Seq2[[]T, error]) ([]T, error) {
	var out []T
	for items, err := range seq {
		if err != nil {
			return out, err
		}
		out = append(out, items...)
	}
	return out, nil
}

func isEmptyMarker(m json.RawMessage) bool {
	m = bytes.TrimSpace(m)
	return len(m) == 0 || bytes.Equal(m, []byte("null")) || bytes.Equal(m, []byte(`""`))
}
