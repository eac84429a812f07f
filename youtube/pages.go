package youtube

import (
	"context"
	"fmt"
	"iter"

	"ytorbit/internal/fault"
)

// fetchPage requests the page identified by token ("" for the first page)
// and returns its items plus the next page token ("" on the last page).
type fetchPage[T any] func(ctx context.Context, token string) (items []T, next string, err error)

// pages walks a cursor-paginated resource one page at a time, in order.
// It stops after the first error, after a page with no next token, or when
// ctx is done between pages.
func pages[T any](ctx context.Context, fetch fetchPage[T]) iter.Seq2[[]T, error] {
	return func(yield func([]T, error) bool) {
		token := ""
		seen := make(map[string]struct{})
		for {
			items, next, err := fetch(ctx, token)
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(items, nil) || next == "" {
				return
			}
			if _, dup := seen[next]; dup {
				yield(nil, &fault.UpstreamError{
					Service: "youtube",
					Op:      "pagination",
					Body:    fmt.Sprintf("page token %q repeated", next),
				})
				return
			}
			seen[next] = struct{}{}
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			token = next
		}
	}
}

// collect drains seq into one slice. Any error discards what was collected.
func collect[T any](seq iter.Seq2[[]T, error]) ([]T, error) {
	out := make([]T, 0)
	for items, err := range seq {
		if err != nil {
			return nil, err
		}
		out = append(out, items...)
	}
	return out, nil
}
