package youtube

import (
	"context"
	"errors"
	"iter"

	"google.golang.org/api/youtube/v3"

	"ytorbit/internal/fault"
)

// Video is an upload listed from a channel's uploads playlist.
type Video struct {
	ID    string `json:"videoId"`
	Title string `json:"title"`
}

// UploadsPlaylistID resolves a channel to the id of its uploads playlist
// with a single channels.list request.
func (s *Service) UploadsPlaylistID(ctx context.Context, channelID string) (string, error) {
	if channelID == "" {
		return "", fault.InvalidInput("youtube: channel id required")
	}

	var playlistID string
	err := s.call(ctx, func(ctx context.Context) error {
		resp, err := s.api.Channels.List([]string{"contentDetails"}).
			Id(channelID).
			Context(ctx).
			Do()
		if err != nil {
			return err
		}
		if len(resp.Items) == 0 {
			return ErrChannelNotFound
		}

		ch := resp.Items[0]
		if ch.ContentDetails == nil || ch.ContentDetails.RelatedPlaylists == nil ||
			ch.ContentDetails.RelatedPlaylists.Uploads == "" {
			return &fault.UpstreamError{
				Service: "youtube",
				Op:      "channels.list",
				Body:    "channel " + channelID + " has no uploads playlist",
			}
		}
		playlistID = ch.ContentDetails.RelatedPlaylists.Uploads
		return nil
	})
	if err != nil {
		if errors.Is(err, fault.ErrNotFound) || errors.Is(err, fault.ErrUpstream) {
			return "", err
		}
		return "", upstream("channels.list", err)
	}

	return playlistID, nil
}

// ListVideos returns every video in the playlist in playlist order.
// A failure on any page fails the whole call.
func (s *Service) ListVideos(ctx context.Context, playlistID string) ([]Video, error) {
	if playlistID == "" {
		return nil, fault.InvalidInput("youtube: playlist id required")
	}
	videos, err := collect(s.videoPages(ctx, playlistID))
	if err != nil {
		if errors.Is(err, fault.ErrUpstream) {
			return nil, err
		}
		return nil, upstream("playlistItems.list", err)
	}
	return videos, nil
}

func (s *Service) videoPages(ctx context.Context, playlistID string) iter.Seq2[[]Video, error] {
	return pages[Video](ctx, func(ctx context.Context, token string) ([]Video, string, error) {
		var (
			videos []Video
			next   string
		)
		err := s.call(ctx, func(ctx context.Context) error {
			call := s.api.PlaylistItems.List([]string{"snippet", "contentDetails"}).
				PlaylistId(playlistID).
				MaxResults(PageSize).
				Context(ctx)
			if token != "" {
				call = call.PageToken(token)
			}

			resp, err := call.Do()
			if err != nil {
				return err
			}
			videos = make([]Video, 0, len(resp.Items))
			for _, item := range resp.Items {
				if v, ok := videoFromItem(item); ok {
					videos = append(videos, v)
				}
			}
			next = resp.NextPageToken
			return nil
		})
		return videos, next, err
	})
}

func videoFromItem(item *youtube.PlaylistItem) (Video, bool) {
	if item == nil {
		return Video{}, false
	}
	var v Video
	if item.ContentDetails != nil {
		v.ID = item.ContentDetails.VideoId
	}
	if item.Snippet != nil {
		v.Title = item.Snippet.Title
		if v.ID == "" && item.Snippet.ResourceId != nil {
			v.ID = item.Snippet.ResourceId.VideoId
		}
	}
	return v, v.ID != ""
}
