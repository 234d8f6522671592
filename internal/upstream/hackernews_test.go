package upstream

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	collyfetcher "github.com/warka/warka/internal/fetcher/colly"
)

func TestTopStoriesOverHTTP(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/v0/topstories.json":
			fmt.Fprint(w, `[11,12,13,14,15,16]`)
		case strings.HasPrefix(r.URL.Path, "/v0/item/"):
			var id int
			_, _ = fmt.Sscanf(r.URL.Path, "/v0/item/%d.json", &id)
			fmt.Fprintf(w, `{"id":%d,"title":"story %d","score":%d,"time":1700000000,"descendants":%d,"by":"pg"}`, id, id, id*10, id-10)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	hn := NewHackerNews(collyfetcher.New(collyfetcher.Config{Timeout: time.Second}), srv.URL+"/v0/", 0)
	stories, err := hn.TopStories(context.Background())
	require.NoError(t, err)
	require.Len(t, stories, 4)
	require.Equal(t, Story{Title: "story 11", Score: 110, Time: 1700000000, CommentsCount: 1}, stories[0])
	require.Equal(t, "story 14", stories[3].Title)
}

func TestTopStoriesFewerThanCount(t *testing.T) {
	t.Parallel()

	g := &fakeGetter{bodies: map[string]string{
		"hn/topstories.json": `[1]`,
		"hn/item/1.json":     `{"title":"only","score":3,"time":5}`,
	}}
	stories, err := NewHackerNews(g, "hn", 4).TopStories(context.Background())
	require.NoError(t, err)
	require.Equal(t, []Story{{Title: "only", Score: 3, Time: 5}}, stories)
}

func TestTopStoriesUpstreamError(t *testing.T) {
	t.Parallel()

	g := &fakeGetter{bodies: map[string]string{"hn/topstories.json": `[1,2]`}}
	_, err := NewHackerNews(g, "hn", 4).TopStories(context.Background())
	require.ErrorIs(t, err, ErrUpstream)
	require.ErrorIs(t, err, collyfetcher.ErrStatus)
}
