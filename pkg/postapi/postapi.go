// Package postapi talks to the remote posts API and to anything else that can
// answer the same paged query.
package postapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"postboard/pkg/logger"
	"postboard/pkg/models"
)

const defaultTimeout = 10 * time.Second

// Client returns one page of posts for a query holding at least _page and _limit.
// Any other pair is a filter understood by the source.
type Client interface {
	GetAll(ctx context.Context, query url.Values) (*models.PostsResponse, error)
}

// HTTPClient calls GET {baseURL}/posts on a json-server style API.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) GetAll(ctx context.Context, query url.Values) (*models.PostsResponse, error) {
	sID := logger.Shorten(logger.RequestID(ctx))

	targetURL := c.baseURL + "/posts"
	if len(query) > 0 {
		targetURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request to posts API: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if reqID := logger.RequestID(ctx); reqID != "" {
		req.Header.Set("X-Request-Id", reqID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error calling posts API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, &ErrNotFound{msg: "posts API returned 404 for " + targetURL}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Service: "posts API", Code: resp.StatusCode}
	}

	var out models.PostsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("error decoding response from posts API: %w", err)
	}

	log.Debugf("[postapi][%s] GET %s: %d posts, %d total rows", sID, targetURL, len(out.Data), out.Pagination.TotalRows)
	return &out, nil
}
