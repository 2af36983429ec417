package postapi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	log "github.com/sirupsen/logrus"

	"postboard/pkg/logger"
	"postboard/pkg/models"
)

// FeedClient serves posts from an RSS or Atom feed. The feed is fetched on
// every call and paged in memory.
type FeedClient struct {
	feedURL string
	client  *http.Client
	parser  *gofeed.Parser
}

func NewFeedClient(feedURL string, timeout time.Duration) *FeedClient {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &FeedClient{
		feedURL: feedURL,
		client:  &http.Client{Timeout: timeout},
		parser:  gofeed.NewParser(),
	}
}

func (c *FeedClient) GetAll(ctx context.Context, query url.Values) (*models.PostsResponse, error) {
	sID := logger.Shorten(logger.RequestID(ctx))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request to feed: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error fetching feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, &ErrNotFound{msg: "feed returned 404 for " + c.feedURL}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Service: "feed", Code: resp.StatusCode}
	}

	feed, err := c.parser.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error parsing feed %s: %w", c.feedURL, err)
	}

	posts := make([]models.Post, 0, len(feed.Items))
	for _, item := range feed.Items {
		posts = append(posts, postFromItem(item))
	}
	log.Debugf("[postapi][%s] feed %s: %d items", sID, c.feedURL, len(posts))

	return Paginate(posts, query), nil
}

func postFromItem(item *gofeed.Item) models.Post {
	post := models.Post{
		ID:          item.GUID,
		Title:       strings.TrimSpace(item.Title),
		Description: strings.TrimSpace(item.Description),
	}
	if post.ID == "" {
		post.ID = item.Link
	}

	switch {
	case item.Author != nil && item.Author.Name != "":
		post.Author = item.Author.Name
	case len(item.Authors) > 0 && item.Authors[0] != nil:
		post.Author = item.Authors[0].Name
	}

	if item.Image != nil && item.Image.URL != "" {
		post.ImageURL = item.Image.URL
	} else {
		for _, enc := range item.Enclosures {
			if enc != nil && strings.HasPrefix(enc.Type, "image/") {
				post.ImageURL = enc.URL
				break
			}
		}
	}

	if item.PublishedParsed != nil {
		post.CreatedAt = models.NewTimestamp(item.PublishedParsed.UTC())
	}
	switch {
	case item.UpdatedParsed != nil:
		post.UpdatedAt = models.NewTimestamp(item.UpdatedParsed.UTC())
	case item.PublishedParsed != nil:
		post.UpdatedAt = post.CreatedAt
	}

	return post
}
