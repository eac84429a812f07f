// Package orbit maps YouTube comments to Orbit activities and submits them
// to the Orbit REST API.
package orbit

import (
	"time"

	"ytorbit/youtube"
)

// Activity fields shared by every comment.
const (
	ActivityType   = "youtube:comment"
	LinkText       = "See comment on YouTube"
	ChannelTag     = "channel:youtube"
	IdentitySource = "YouTube"
	IdentityHost   = "youtube.com"
	DefaultTitle   = "Commented on YouTube Video"
	keyPrefix      = "youtube-comment-"
	watchURLPrefix = "https://www.youtube.com/watch?v="
	titlePrefix    = "Commented on "
)

// Member names the person behind an activity.
type Member struct {
	Name string `json:"name"`
}

// Activity is the "someone did something" half of an Orbit record.
type Activity struct {
	Description  string    `json:"description"`
	Link         string    `json:"link"`
	LinkText     string    `json:"link_text"`
	Title        string    `json:"title"`
	Tags         []string  `json:"tags"`
	ActivityType string    `json:"activity_type"`
	Key          string    `json:"key"`
	OccurredAt   time.Time `json:"occurred_at"`
	Member       Member    `json:"member"`
}

// Identity is the "who" half of an Orbit record.
type Identity struct {
	Source     string `json:"source"`
	SourceHost string `json:"source_host"`
	Username   string `json:"username"`
	URL        string `json:"url"`
	UID        string `json:"uid"`
}

// Record is one activity with its identity, the body of a single POST.
type Record struct {
	Activity Activity `json:"activity"`
	Identity Identity `json:"identity"`
}

// Prepare maps comments to records in order. It never returns nil.
func Prepare(comments []youtube.Comment) []Record {
	out := make([]Record, 0, len(comments))
	for _, c := range comments {
		out = append(out, FromComment(c))
	}
	return out
}

// FromComment maps one comment to its record.
func FromComment(c youtube.Comment) Record {
	title := DefaultTitle
	if c.VideoTitle != "" {
		title = titlePrefix + c.VideoTitle
	}

	return Record{
		Activity: Activity{
			Description:  c.Text,
			Link:         watchURLPrefix + c.VideoID,
			LinkText:     LinkText,
			Title:        title,
			Tags:         []string{ChannelTag},
			ActivityType: ActivityType,
			Key:          Key(c),
			OccurredAt:   c.PublishedAt,
			Member:       Member{Name: c.AuthorDisplayName},
		},
		Identity: Identity{
			Source:     IdentitySource,
			SourceHost: IdentityHost,
			Username:   c.AuthorDisplayName,
			URL:        c.AuthorChannelURL,
			UID:        c.AuthorChannelID,
		},
	}
}

// Key returns the idempotency key Orbit uses to reject re-submitted
// comments. The comment id is used; the publish time only stands in when
// the id is missing.
func Key(c youtube.Comment) string {
	if c.ID != "" {
		return keyPrefix + c.ID
	}
	return keyPrefix + c.PublishedAt.Format(time.RFC3339)
}
