package dataflows

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"minerva/pkg/errors"
	"minerva/pkg/logger"
)

const redditBaseURL = "https://www.reddit.com"

// Default subreddits scanned when no qualifier narrows the search.
var defaultSubreddits = []string{"stocks", "investing", "wallstreetbets"}

// RedditClient serves discussion threads from reddit's public JSON API.
// Reddit requires a descriptive User-Agent and throttles anonymous
// clients hard, so results are kept small and cached aggressively.
type RedditClient struct {
	http *resty.Client
	log  *logger.Logger
}

// NewRedditClient creates a reddit vendor client. userAgent must identify
// the application per reddit API rules.
func NewRedditClient(userAgent string, timeout time.Duration) *RedditClient {
	client := resty.New()
	client.SetBaseURL(redditBaseURL)
	client.SetTimeout(timeout)
	client.SetHeader("User-Agent", userAgent)

	return &RedditClient{
		http: client,
		log:  logger.Get().With("component", "reddit"),
	}
}

// Name returns the vendor identifier used in cache keys.
func (c *RedditClient) Name() string { return "reddit" }

// Fetch searches the configured subreddits for threads mentioning the
// symbol, or pulls the front page of each when no symbol is given.
func (c *RedditClient) Fetch(ctx context.Context, req Request, cond Conditional) (*VendorResponse, error) {
	subreddits := defaultSubreddits
	if req.Qualifier != "" {
		subreddits = strings.Split(req.Qualifier, ",")
	}

	var (
		posts      []RedditPost
		lastStatus int
	)
	for _, sub := range subreddits {
		batch, status, err := c.fetchSubreddit(ctx, strings.TrimSpace(sub), req.Symbol, cond)
		if err != nil {
			c.log.Warnw("Subreddit fetch failed", "subreddit", sub, "error", err)
			continue
		}
		lastStatus = status
		if status == 304 {
			// Treat a 304 from the first subreddit as valid for the whole
			// composite payload; later subreddits share its freshness.
			return &VendorResponse{Status: 304, ETag: cond.ETag}, nil
		}
		posts = append(posts, batch...)
	}

	if lastStatus == 0 {
		return nil, errors.Wrap(errors.ErrUpstream, "all subreddit fetches failed")
	}

	body, err := json.Marshal(posts)
	if err != nil {
		return nil, fmt.Errorf("marshal reddit posts: %w", err)
	}

	return &VendorResponse{Status: 200, Body: body}, nil
}

func (c *RedditClient) fetchSubreddit(ctx context.Context, subreddit, symbol string, cond Conditional) ([]RedditPost, int, error) {
	var path string
	query := map[string]string{"limit": "15", "raw_json": "1"}

	if symbol != "" {
		path = fmt.Sprintf("/r/%s/search.json", subreddit)
		query["q"] = symbol
		query["restrict_sr"] = "1"
		query["sort"] = "hot"
		query["t"] = "week"
	} else {
		path = fmt.Sprintf("/r/%s/hot.json", subreddit)
	}

	r := c.http.R().SetContext(ctx).SetQueryParams(query)
	if cond.ETag != "" {
		r.SetHeader("If-None-Match", cond.ETag)
	}

	resp, err := r.Get(path)
	if err != nil {
		return nil, 0, errors.Wrapf(err, "reddit r/%s", subreddit)
	}
	if resp.StatusCode() == 304 {
		return nil, 304, nil
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return nil, resp.StatusCode(), errors.Wrapf(errors.ErrUpstream, "reddit r/%s returned %d", subreddit, resp.StatusCode())
	}

	var wire struct {
		Data struct {
			Children []struct {
				Data struct {
					Title       string  `json:"title"`
					Subreddit   string  `json:"subreddit"`
					Score       int     `json:"score"`
					NumComments int     `json:"num_comments"`
					CreatedUTC  float64 `json:"created_utc"`
					Permalink   string  `json:"permalink"`
					Selftext    string  `json:"selftext"`
				} `json:"data"`
			} `json:"children"`
		} `json:"data"`
	}
	if err := json.Unmarshal(resp.Body(), &wire); err != nil {
		return nil, resp.StatusCode(), errors.Wrapf(errors.ErrUpstream, "parse r/%s listing: %v", subreddit, err)
	}

	posts := make([]RedditPost, 0, len(wire.Data.Children))
	for _, child := range wire.Data.Children {
		d := child.Data
		preview := html.UnescapeString(d.Selftext)
		if len(preview) > 280 {
			preview = preview[:280]
		}
		posts = append(posts, RedditPost{
			Title:       html.UnescapeString(d.Title),
			Subreddit:   d.Subreddit,
			Score:       d.Score,
			NumComments: d.NumComments,
			CreatedUTC:  int64(d.CreatedUTC),
			Permalink:   d.Permalink,
			Preview:     preview,
		})
	}

	return posts, resp.StatusCode(), nil
}
