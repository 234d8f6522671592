package upstream

import (
	"context"
	"fmt"
	"strings"

	collyfetcher "github.com/warka/warka/internal/fetcher/colly"
)

// DefaultHackerNewsURL is the public Firebase API root.
const DefaultHackerNewsURL = "https://hacker-news.firebaseio.com/v0"

// Story is one summarised Hacker News post.
type Story struct {
	Title         string `json:"title"`
	Score         int    `json:"score"`
	Time          int64  `json:"time"`
	CommentsCount int    `json:"comments_count"`
}

type hnItem struct {
	Title       string `json:"title"`
	Score       int    `json:"score"`
	Time        int64  `json:"time"`
	Descendants int    `json:"descendants"`
}

// HackerNews lists the current top stories.
type HackerNews struct {
	client  Getter
	baseURL string
	count   int
}

// NewHackerNews creates the service; count <= 0 means 4 stories.
func NewHackerNews(client Getter, baseURL string, count int) *HackerNews {
	if baseURL == "" {
		baseURL = DefaultHackerNewsURL
	}
	if count <= 0 {
		count = 4
	}
	return &HackerNews{client: client, baseURL: strings.TrimRight(baseURL, "/"), count: count}
}

// TopStories returns the first count top stories in rank order.
func (h *HackerNews) TopStories(ctx context.Context) ([]Story, error) {
	var ids []int64
	if err := h.client.GetJSON(ctx, collyfetcher.Request{URL: h.baseURL + "/topstories.json"}, &ids); err != nil {
		return nil, fmt.Errorf("%w: top stories: %w", ErrUpstream, err)
	}
	if len(ids) > h.count {
		ids = ids[:h.count]
	}
	stories := make([]Story, 0, len(ids))
	for _, id := range ids {
		var item hnItem
		url := fmt.Sprintf("%s/item/%d.json", h.baseURL, id)
		if err := h.client.GetJSON(ctx, collyfetcher.Request{URL: url}, &item); err != nil {
			return nil, fmt.Errorf("%w: item %d: %w", ErrUpstream, id, err)
		}
		stories = append(stories, Story{
			Title:         item.Title,
			Score:         item.Score,
			Time:          item.Time,
			CommentsCount: item.Descendants,
		})
	}
	return stories, nil
}
