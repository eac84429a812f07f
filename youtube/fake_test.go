package youtube

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"ytorbit/internal/retry"
)

// fakeAPI serves the Data API resources the service reads. Like the real
// API it inlines at most InlineReplies replies per thread.
type fakeAPI struct {
	mu        sync.Mutex
	uploads   map[string]string        // channel id -> uploads playlist id
	playlists map[string][]Video       // playlist id -> videos
	threads   map[string][]fakeThread  // video id -> threads
	failures  map[string][]fakeFailure // resource or video id -> queued failures
	requests  map[string]int           // resource -> request count
	keys      map[string]bool
}

type fakeThread struct {
	top     fakeComment
	replies []fakeComment
}

type fakeComment struct {
	id        string
	text      string
	author    string
	published time.Time
}

type fakeFailure struct {
	status  int
	reason  string
	message string
	token   string // only fail the page with this token; "" matches any
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		uploads:   make(map[string]string),
		playlists: make(map[string][]Video),
		threads:   make(map[string][]fakeThread),
		failures:  make(map[string][]fakeFailure),
		requests:  make(map[string]int),
		keys:      make(map[string]bool),
	}
}

func (f *fakeAPI) fail(target string, failures ...fakeFailure) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[target] = append(f.failures[target], failures...)
}

func (f *fakeAPI) count(resource string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[resource]
}

// popFailure must be called with the mutex held.
func (f *fakeAPI) popFailure(target, token string) (fakeFailure, bool) {
	queue := f.failures[target]
	for i, failure := range queue {
		if failure.token == "" || failure.token == token {
			f.failures[target] = append(queue[:i:i], queue[i+1:]...)
			return failure, true
		}
	}
	return fakeFailure{}, false
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resource := strings.TrimPrefix(r.URL.Path, "/youtube/v3/")
	q := r.URL.Query()

	f.mu.Lock()
	f.requests[resource]++
	f.keys[q.Get("key")] = true
	failure, failed := f.popFailure(resource, q.Get("pageToken"))
	if !failed && resource == "commentThreads" {
		failure, failed = f.popFailure(q.Get("videoId"), q.Get("pageToken"))
	}
	f.mu.Unlock()

	if failed {
		writeAPIError(w, failure)
		return
	}

	switch resource {
	case "channels":
		f.serveChannels(w, q.Get("id"))
	case "playlistItems":
		f.servePlaylist(w, q.Get("playlistId"), q.Get("pageToken"), q.Get("maxResults"))
	case "commentThreads":
		f.serveThreads(w, q.Get("videoId"), q.Get("pageToken"), q.Get("maxResults"))
	case "comments":
		f.serveReplies(w, q.Get("parentId"), q.Get("pageToken"), q.Get("maxResults"))
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeAPI) serveChannels(w http.ResponseWriter, id string) {
	f.mu.Lock()
	uploads, ok := f.uploads[id]
	f.mu.Unlock()

	items := []any{}
	if ok {
		items = append(items, map[string]any{
			"id": id,
			"contentDetails": map[string]any{
				"relatedPlaylists": map[string]any{"uploads": uploads},
			},
		})
	}
	writeJSON(w, map[string]any{"items": items})
}

func (f *fakeAPI) servePlaylist(w http.ResponseWriter, id, token, maxResults string) {
	f.mu.Lock()
	videos := f.playlists[id]
	f.mu.Unlock()

	start, end, next := window(len(videos), token, maxResults)
	items := make([]any, 0, end-start)
	for _, v := range videos[start:end] {
		items = append(items, map[string]any{
			"snippet":        map[string]any{"title": v.Title},
			"contentDetails": map[string]any{"videoId": v.ID},
		})
	}
	writePage(w, items, next)
}

func (f *fakeAPI) serveThreads(w http.ResponseWriter, videoID, token, maxResults string) {
	f.mu.Lock()
	threads := f.threads[videoID]
	f.mu.Unlock()

	start, end, next := window(len(threads), token, maxResults)
	items := make([]any, 0, end-start)
	for _, th := range threads[start:end] {
		item := map[string]any{
			"id": th.top.id,
			"snippet": map[string]any{
				"videoId":         videoID,
				"totalReplyCount": len(th.replies),
				"topLevelComment": commentJSON(th.top, videoID),
			},
		}
		if len(th.replies) > 0 {
			replies := make([]any, 0, InlineReplies)
			for _, r := range th.replies[:min(len(th.replies), InlineReplies)] {
				replies = append(replies, commentJSON(r, videoID))
			}
			item["replies"] = map[string]any{"comments": replies}
		}
		items = append(items, item)
	}
	writePage(w, items, next)
}

func (f *fakeAPI) serveReplies(w http.ResponseWriter, parentID, token, maxResults string) {
	f.mu.Lock()
	var replies []fakeComment
	for _, threads := range f.threads {
		for _, th := range threads {
			if th.top.id == parentID {
				replies = th.replies
			}
		}
	}
	f.mu.Unlock()

	start, end, next := window(len(replies), token, maxResults)
	items := make([]any, 0, end-start)
	for _, r := range replies[start:end] {
		c := commentJSON(r, "")
		c["snippet"].(map[string]any)["parentId"] = parentID
		items = append(items, c)
	}
	writePage(w, items, next)
}

func commentJSON(c fakeComment, videoID string) map[string]any {
	return map[string]any{
		"id": c.id,
		"snippet": map[string]any{
			"videoId":           videoID,
			"textDisplay":       "<b>" + c.text + "</b>",
			"textOriginal":      c.text,
			"authorDisplayName": c.author,
			"authorChannelUrl":  "http://www.youtube.com/channel/UC" + c.author,
			"authorChannelId":   map[string]any{"value": "UC" + c.author},
			"publishedAt":       c.published.Format(time.RFC3339),
		},
	}
}

// window returns the slice bounds for the page named by token and the token
// of the following page.
func window(total int, token, maxResults string) (start, end int, next string) {
	size, err := strconv.Atoi(maxResults)
	if err != nil || size <= 0 {
		size = 5
	}
	if token != "" {
		start, _ = strconv.Atoi(strings.TrimPrefix(token, "page-"))
	}
	end = min(start+size, total)
	if end < total {
		next = fmt.Sprintf("page-%d", end)
	}
	return start, end, next
}

func writePage(w http.ResponseWriter, items []any, next string) {
	body := map[string]any{"items": items}
	if next != "" {
		body["nextPageToken"] = next
	}
	writeJSON(w, body)
}

func writeJSON(w http.ResponseWriter, body any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(body)
}

func writeAPIError(w http.ResponseWriter, f fakeFailure) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(f.status)
	errs := []any{}
	if f.reason != "" {
		errs = append(errs, map[string]any{"reason": f.reason, "message": f.message})
	}
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"code":    f.status,
			"message": f.message,
			"errors":  errs,
		},
	})
}

func fastRetry() *retry.Config {
	return &retry.Config{
		MaxRetries:     2,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
	}
}

func newTestService(t *testing.T, api *fakeAPI, logger zerolog.Logger) *Service {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	svc, err := NewService(context.Background(), Config{
		APIKey:   "test-key",
		Endpoint: srv.URL + "/",
		Retry:    fastRetry(),
		Logger:   logger,
	})
	require.NoError(t, err)
	return svc
}

func makeVideos(n int) []Video {
	videos := make([]Video, n)
	for i := range videos {
		videos[i] = Video{ID: fmt.Sprintf("vid%03d", i), Title: fmt.Sprintf("Video %d", i)}
	}
	return videos
}

func makeThreads(videoID string, n, withReplies, replies int, published time.Time) []fakeThread {
	threads := make([]fakeThread, n)
	for i := range threads {
		threads[i].top = fakeComment{
			id:        fmt.Sprintf("%s-c%d", videoID, i),
			text:      fmt.Sprintf("comment %d", i),
			author:    fmt.Sprintf("author%d", i),
			published: published,
		}
		if i < withReplies {
			for j := 0; j < replies; j++ {
				threads[i].replies = append(threads[i].replies, fakeComment{
					id:        fmt.Sprintf("%s-c%d.r%d", videoID, i, j),
					text:      fmt.Sprintf("reply %d to %d", j, i),
					author:    fmt.Sprintf("replier%d", j),
					published: published,
				})
			}
		}
	}
	return threads
}
