package youtube

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/youtube/v3"

	"ytorbit/internal/fault"
)

// Comment is a top-level comment or a reply. Replies carry no link to
// their parent once flattened.
type Comment struct {
	ID                string    `json:"id"`
	VideoID           string    `json:"videoId"`
	Text              string    `json:"text"`
	AuthorDisplayName string    `json:"authorDisplayName"`
	AuthorChannelID   string    `json:"authorChannelId"`
	AuthorChannelURL  string    `json:"authorChannelUrl"`
	PublishedAt       time.Time `json:"publishedAt"`
	VideoTitle        string    `json:"videoTitle,omitempty"`
}

// VideoComments returns every comment on a video, top-level comments and
// inlined replies flattened in thread order. A video whose comments are
// disabled or missing yields no comments and no error.
func (s *Service) VideoComments(ctx context.Context, videoID string) ([]Comment, error) {
	if videoID == "" {
		return nil, fault.InvalidInput("youtube: video id required")
	}

	comments, err := collect(s.commentPages(ctx, videoID))
	if err != nil {
		if commentsUnavailable(err) {
			s.log.Debug().Str("video_id", videoID).Err(err).Msg("comments unavailable")
			return []Comment{}, nil
		}
		if errors.Is(err, fault.ErrUpstream) {
			return nil, err
		}
		return nil, upstream("commentThreads.list", err)
	}
	return comments, nil
}

// InlineReplies is the most replies commentThreads.list returns with a
// thread. Longer threads are completed through comments.list.
const InlineReplies = 5

// ReplyPageSize is the comments.list page size, the API maximum.
const ReplyPageSize = 100

func (s *Service) commentPages(ctx context.Context, videoID string) iter.Seq2[[]Comment, error] {
	return pages[Comment](ctx, func(ctx context.Context, token string) ([]Comment, string, error) {
		var resp *youtube.CommentThreadListResponse
		err := s.call(ctx, func(ctx context.Context) error {
			call := s.api.CommentThreads.List([]string{"snippet", "replies"}).
				VideoId(videoID).
				MaxResults(PageSize).
				Context(ctx)
			if token != "" {
				call = call.PageToken(token)
			}

			var err error
			resp, err = call.Do()
			return err
		})
		if err != nil {
			return nil, "", err
		}

		comments := make([]Comment, 0, len(resp.Items))
		for _, th := range resp.Items {
			var replies []*youtube.Comment
			if missing := missingReplies(th); missing > 0 {
				s.log.Debug().
					Str("video_id", videoID).
					Str("thread_id", th.Id).
					Int64("missing", missing).
					Msg("fetching remaining replies")
				replies, err = s.threadReplies(ctx, th.Id)
				if err != nil {
					return nil, "", err
				}
			}
			cs, err := flattenThread(videoID, th, replies)
			if err != nil {
				return nil, "", err
			}
			comments = append(comments, cs...)
		}
		return comments, resp.NextPageToken, nil
	})
}

// threadReplies lists every reply to the thread whose top-level comment is
// parentID, oldest first as the API returns them.
func (s *Service) threadReplies(ctx context.Context, parentID string) ([]*youtube.Comment, error) {
	replies, err := collect(pages[*youtube.Comment](ctx, func(ctx context.Context, token string) ([]*youtube.Comment, string, error) {
		var resp *youtube.CommentListResponse
		err := s.call(ctx, func(ctx context.Context) error {
			call := s.api.Comments.List([]string{"snippet"}).
				ParentId(parentID).
				MaxResults(ReplyPageSize).
				Context(ctx)
			if token != "" {
				call = call.PageToken(token)
			}

			var err error
			resp, err = call.Do()
			return err
		})
		if err != nil {
			return nil, "", err
		}
		return resp.Items, resp.NextPageToken, nil
	}))
	if err != nil {
		if errors.Is(err, fault.ErrUpstream) {
			return nil, err
		}
		return nil, upstream("comments.list", err)
	}
	return replies, nil
}

// missingReplies reports how many of a thread's replies were not inlined.
func missingReplies(th *youtube.CommentThread) int64 {
	if th == nil || th.Snippet == nil || th.Id == "" {
		return 0
	}
	inlined := 0
	if th.Replies != nil {
		inlined = len(th.Replies.Comments)
	}
	return th.Snippet.TotalReplyCount - int64(inlined)
}

// flatten turns a page of threads into comments: each thread's top-level
// comment followed by its inlined replies.
func flatten(videoID string, threads []*youtube.CommentThread) ([]Comment, error) {
	out := make([]Comment, 0, len(threads))
	for _, th := range threads {
		cs, err := flattenThread(videoID, th, nil)
		if err != nil {
			return nil, err
		}
		out = append(out, cs...)
	}
	return out, nil
}

// flattenThread returns the thread's top-level comment followed by replies,
// or by the inlined replies when replies is empty.
func flattenThread(videoID string, th *youtube.CommentThread, replies []*youtube.Comment) ([]Comment, error) {
	if th == nil || th.Snippet == nil {
		return nil, nil
	}
	vid := th.Snippet.VideoId
	if vid == "" {
		vid = videoID
	}
	if len(replies) == 0 && th.Replies != nil {
		replies = th.Replies.Comments
	}

	out := make([]Comment, 0, 1+len(replies))
	if top := th.Snippet.TopLevelComment; top != nil {
		c, err := fromAPIComment(top, vid)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	for _, r := range replies {
		c, err := fromAPIComment(r, vid)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func fromAPIComment(c *youtube.Comment, videoID string) (Comment, error) {
	if c == nil || c.Snippet == nil {
		return Comment{}, &fault.UpstreamError{
			Service: "youtube",
			Op:      "commentThreads.list",
			Body:    "comment without snippet",
		}
	}
	sn := c.Snippet

	published, err := time.Parse(time.RFC3339, sn.PublishedAt)
	if err != nil {
		return Comment{}, &fault.UpstreamError{
			Service: "youtube",
			Op:      "commentThreads.list",
			Body:    fmt.Sprintf("comment %s: bad publishedAt %q", c.Id, sn.PublishedAt),
			Err:     err,
		}
	}

	out := Comment{
		ID:                c.Id,
		VideoID:           videoID,
		Text:              sn.TextOriginal,
		AuthorDisplayName: sn.AuthorDisplayName,
		AuthorChannelURL:  sn.AuthorChannelUrl,
		PublishedAt:       published,
	}
	if out.Text == "" {
		out.Text = sn.TextDisplay
	}
	if sn.AuthorChannelId != nil {
		out.AuthorChannelID = sn.AuthorChannelId.Value
	}
	return out, nil
}

// commentsUnavailable reports whether err is the API telling us a video's
// comments are disabled or the video is gone.
func commentsUnavailable(err error) bool {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return false
	}
	for _, item := range gerr.Errors {
		switch item.Reason {
		case "commentsDisabled", "videoNotFound":
			return true
		}
	}
	text := strings.ToLower(gerr.Message + " " + gerr.Body)
	return strings.Contains(text, "disabled") || strings.Contains(text, "not found")
}
