package youtube

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// ChannelOptions configures ChannelComments.
type ChannelOptions struct {
	// Log emits one progress line per video and a summary line.
	Log bool
	// AddTitle stamps each comment with its video's title.
	AddTitle bool
	// Workers bounds how many videos are fetched at once. Values below 2
	// fetch strictly one video after another.
	Workers int
}

// ChannelComments returns the comments on every upload of a channel,
// grouped by video in playlist order.
func (s *Service) ChannelComments(ctx context.Context, channelID string, opts ChannelOptions) ([]Comment, error) {
	start := time.Now()

	playlistID, err := s.UploadsPlaylistID(ctx, channelID)
	if err != nil {
		return nil, err
	}
	videos, err := s.ListVideos(ctx, playlistID)
	if err != nil {
		return nil, err
	}

	perVideo := make([][]Comment, len(videos))
	fetch := func(ctx context.Context, i int) error {
		v := videos[i]
		comments, err := s.VideoComments(ctx, v.ID)
		if err != nil {
			return err
		}
		if opts.AddTitle {
			for j := range comments {
				comments[j].VideoTitle = v.Title
			}
		}
		perVideo[i] = comments
		if opts.Log {
			s.log.Info().
				Str("video_id", v.ID).
				Str("title", v.Title).
				Int("count", len(comments)).
				Msgf("fetched comments for video %d/%d", i+1, len(videos))
		}
		return nil
	}

	if opts.Workers < 2 {
		for i := range videos {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if err := fetch(ctx, i); err != nil {
				return nil, err
			}
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(opts.Workers)
		for i := range videos {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				return fetch(gctx, i)
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	total := 0
	for _, c := range perVideo {
		total += len(c)
	}
	out := make([]Comment, 0, total)
	for _, c := range perVideo {
		out = append(out, c...)
	}

	if opts.Log {
		s.log.Info().
			Str("channel_id", channelID).
			Int("videos", len(videos)).
			Int("count", total).
			Dur("elapsed", time.Since(start)).
			Msg("fetched channel comments")
	}
	return out, nil
}
