package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// cliEnv isolates the command from the caller's environment, config files
// and .env, and points both upstreams at srv when it is non-nil.
func cliEnv(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", dir)
	for _, env := range []string{"YOUTUBE_CHANNEL_ID", "YTORBIT_HOURS", "YTORBIT_LOG_LEVEL", "YTORBIT_METRICS_PUSH_URL"} {
		t.Setenv(env, "")
	}
	t.Setenv("ORBIT_WORKSPACE_ID", "acme")
	t.Setenv("ORBIT_API_KEY", "orbit-key")
	t.Setenv("YOUTUBE_API_KEY", "yt-key")
	t.Setenv("YTORBIT_LOG_FORMAT", "json")
	t.Setenv("YTORBIT_MAX_RETRIES", "0")
	t.Setenv("YTORBIT_ORBIT_RPS", "0")
	t.Setenv("YTORBIT_YOUTUBE_RPS", "0")
	if srv != nil {
		t.Setenv("YTORBIT_ORBIT_BASE_URL", srv.URL+"/api/v1")
		t.Setenv("YTORBIT_YOUTUBE_ENDPOINT", srv.URL+"/")
	}
	return dir
}

func fakeUpstreams(t *testing.T, posts *atomic.Int32) *httptest.Server {
	t.Helper()
	published := time.Now().Add(-time.Hour).UTC().Format(time.RFC3339)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasPrefix(r.URL.Path, "/api/v1/acme/activities"):
			posts.Add(1)
			w.WriteHeader(http.StatusCreated)
			io.WriteString(w, `{"data":{}}`)
		case strings.HasSuffix(r.URL.Path, "/channels"):
			io.WriteString(w, `{"items":[{"id":"UC1","contentDetails":{"relatedPlaylists":{"uploads":"UU1"}}}]}`)
		case strings.HasSuffix(r.URL.Path, "/playlistItems"):
			io.WriteString(w, `{"items":[{"snippet":{"title":"Launch"},"contentDetails":{"videoId":"v1"}}]}`)
		case strings.HasSuffix(r.URL.Path, "/commentThreads"):
			fmt.Fprintf(w, `{"items":[{"id":"t1","snippet":{"topLevelComment":{"id":"c1","snippet":{
				"textOriginal":"Nice","authorDisplayName":"Ada","authorChannelId":{"value":"UCada"},
				"authorChannelUrl":"http://www.youtube.com/channel/UCada","publishedAt":%q}}}}]}`, published)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func runCLI(args ...string) (code int, stdout, stderr string) {
	var out, errOut bytes.Buffer
	code = run(context.Background(), args, &out, &errOut)
	return code, out.String(), errOut.String()
}

func TestRunNoArgs(t *testing.T) {
	code, _, stderr := runCLI()
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "Usage:")
}

func TestRunHelp(t *testing.T) {
	code, _, stderr := runCLI("help")
	assert.Equal(t, 0, code)
	assert.Contains(t, stderr, "ytorbit comments")
}

func TestRunUnknownCommand(t *testing.T) {
	code, _, stderr := runCLI("videos")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, `unknown command "videos"`)
}

func TestCommentsMissingCredentials(t *testing.T) {
	cliEnv(t, nil)
	t.Setenv("ORBIT_API_KEY", "")

	code, stdout, stderr := runCLI("comments", "--channel", "UC1")
	assert.Equal(t, 1, code)
	assert.Empty(t, stdout)
	assert.Contains(t, stderr, "ORBIT_API_KEY")
	assert.Contains(t, stderr, "Usage:")
}

func TestCommentsMissingChannel(t *testing.T) {
	cliEnv(t, nil)

	code, _, stderr := runCLI("comments")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "YOUTUBE_CHANNEL_ID")
}

func TestCommentsBadHours(t *testing.T) {
	cliEnv(t, nil)

	for _, hours := range []string{"abc", "-2", "1.5"} {
		code, _, stderr := runCLI("comments", "--channel", "UC1", "--hours", hours)
		assert.Equal(t, 1, code, hours)
		assert.Contains(t, stderr, "Error:", hours)
	}
}

func TestCommentsZeroHoursUsesDefault(t *testing.T) {
	var posts atomic.Int32
	srv := fakeUpstreams(t, &posts)
	cliEnv(t, srv)

	for _, tc := range []struct {
		env  string
		want float64
	}{
		{"", 24},
		{"48", 48},
	} {
		t.Setenv("YTORBIT_HOURS", tc.env)
		code, stdout, stderr := runCLI("comments", "--channel", "UC1", "--hours", "0", "--dry-run")
		require.Equal(t, 0, code, stderr)

		var res map[string]any
		require.NoError(t, json.Unmarshal([]byte(stdout), &res))
		assert.Equal(t, tc.want, res["hours"])
	}
	assert.Zero(t, posts.Load())
}

func TestCommentsAddsActivities(t *testing.T) {
	var posts atomic.Int32
	srv := fakeUpstreams(t, &posts)
	dir := cliEnv(t, srv)
	reportPath := filepath.Join(dir, "out", "run.json")

	code, stdout, stderr := runCLI("comments", "--channel", "UC1", "--hours", "24", "--report", reportPath)
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, int32(1), posts.Load())
	assert.Contains(t, stderr, "Added 1 activities to the acme Orbit workspace.")

	var res map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout), &res))
	assert.Equal(t, "UC1", res["channelId"])
	assert.Equal(t, float64(1), res["retained"])

	saved, err := os.ReadFile(reportPath)
	require.NoError(t, err)
	assert.JSONEq(t, stdout, string(saved))
}

func TestCommentsDryRun(t *testing.T) {
	var posts atomic.Int32
	srv := fakeUpstreams(t, &posts)
	cliEnv(t, srv)

	code, stdout, stderr := runCLI("comments", "--channel", "UC1", "--dry-run")
	require.Equal(t, 0, code, stderr)
	assert.Zero(t, posts.Load())
	assert.Contains(t, stderr, "Dry run: 1 activities prepared")
	assert.Contains(t, stdout, `"dryRun": true`)
}

func TestCommentsEnvFile(t *testing.T) {
	var posts atomic.Int32
	srv := fakeUpstreams(t, &posts)
	dir := cliEnv(t, srv)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("YOUTUBE_CHANNEL_ID=UC1\n"), 0o600))
	// godotenv leaves variables that are already set alone.
	os.Unsetenv("YOUTUBE_CHANNEL_ID")

	code, _, stderr := runCLI("comments", "--dry-run")
	require.Equal(t, 0, code, stderr)
}
