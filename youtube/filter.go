package youtube

import (
	"time"

	"ytorbit/internal/fault"
)

// FilterRecent keeps the comments published at most hours before now,
// boundary included, in their original order. Comments dated after now
// are kept.
func FilterRecent(comments []Comment, hours int, now time.Time) ([]Comment, error) {
	if hours <= 0 {
		return nil, fault.InvalidInput("youtube: hours must be positive, got %d", hours)
	}

	window := time.Duration(hours) * time.Hour
	out := make([]Comment, 0, len(comments))
	for _, c := range comments {
		if now.Sub(c.PublishedAt) <= window {
			out = append(out, c)
		}
	}
	return out, nil
}
