package postapi

import (
	"net/url"
	"sort"
	"strconv"
	"strings"

	"postboard/pkg/models"
)

// Query parameters understood by in-process sources.
const (
	ParamPage      = "_page"
	ParamLimit     = "_limit"
	ParamTitleLike = "title_like"
	ParamAuthor    = "author"

	defaultPage  = 1
	defaultLimit = 10
)

// PageQuery is the parsed form of a paged posts query.
type PageQuery struct {
	Page      int
	Limit     int
	TitleLike string
	Author    string
}

// ParseQuery reads the paging and filter parameters from q, falling back to
// page 1 and the json-server default limit of 10.
func ParseQuery(q url.Values) PageQuery {
	pq := PageQuery{
		Page:      defaultPage,
		Limit:     defaultLimit,
		TitleLike: q.Get(ParamTitleLike),
		Author:    q.Get(ParamAuthor),
	}
	if p, err := strconv.Atoi(q.Get(ParamPage)); err == nil && p > 0 {
		pq.Page = p
	}
	if l, err := strconv.Atoi(q.Get(ParamLimit)); err == nil && l > 0 {
		pq.Limit = l
	}
	return pq
}

// Match reports whether post passes the query filters.
func (pq PageQuery) Match(post models.Post) bool {
	if pq.Author != "" && post.Author != pq.Author {
		return false
	}
	if pq.TitleLike != "" && !strings.Contains(strings.ToLower(post.Title), strings.ToLower(pq.TitleLike)) {
		return false
	}
	return true
}

// Offset is the index of the first post of the page.
func (pq PageQuery) Offset() int {
	return (pq.Page - 1) * pq.Limit
}

// Paginate filters posts, orders them newest first and cuts out the
// requested page. The input slice is not modified.
func Paginate(posts []models.Post, q url.Values) *models.PostsResponse {
	pq := ParseQuery(q)

	matched := make([]models.Post, 0, len(posts))
	for _, p := range posts {
		if pq.Match(p) {
			matched = append(matched, p)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if !a.UpdatedAt.Equal(b.UpdatedAt.Time) {
			return a.UpdatedAt.After(b.UpdatedAt.Time)
		}
		return a.ID < b.ID
	})

	resp := &models.PostsResponse{
		Data: []models.Post{},
		Pagination: models.Pagination{
			Page:      pq.Page,
			Limit:     pq.Limit,
			TotalRows: len(matched),
		},
	}

	start := pq.Offset()
	if start >= len(matched) {
		return resp
	}
	end := start + pq.Limit
	if end > len(matched) {
		end = len(matched)
	}
	resp.Data = append(resp.Data, matched[start:end]...)
	return resp
}
