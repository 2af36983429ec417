// Package render fills the posts page: one cloned template item per post and
// the prev/next state of the pagination bar.
//
// Every step is a silent no-op when a structural node it needs is missing.
package render

import (
	"strconv"
	"time"

	"github.com/dustin/go-humanize"

	"postboard/pkg/dom"
	"postboard/pkg/models"
	"postboard/pkg/page"
)

// Page structure the renderers rely on.
const (
	SelItemTemplate = "#postItemTemplate"
	SelPostList     = "#postList"
	SelPagination   = "#postsPagination"

	SelTitle       = `[data-id="title"]`
	SelDescription = `[data-id="description"]`
	SelAuthor      = `[data-id="author"]`
	SelThumbnail   = `[data-id="thumbnail"]`
	SelTimeSpan    = `[data-id="timeSpan"]`

	AttrPage       = "data-page"
	AttrTotalPages = "data-total-pages"

	ClassDisabled = "disabled"
)

type Renderer struct {
	now func() time.Time
}

func New() *Renderer {
	return &Renderer{now: time.Now}
}

// WithClock returns a renderer that measures relative time against now.
func WithClock(now func() time.Time) *Renderer {
	return &Renderer{now: now}
}

// RelativeTime formats t against the renderer clock, e.g. "3 hours ago".
func (r *Renderer) RelativeTime(t time.Time) string {
	return humanize.RelTime(t, r.now(), "ago", "from now")
}

// CreatePostElement clones the item template and fills it from post.
// The returned node is detached from the page.
func (r *Renderer) CreatePostElement(p *page.Page, post *models.Post) (dom.Node, bool) {
	if post == nil || p == nil {
		return dom.Node{}, false
	}

	tpl, ok := dom.Lookup(p.Root(), SelItemTemplate)
	if !ok {
		return dom.Node{}, false
	}
	proto, ok := tpl.FirstChild()
	if !ok {
		return dom.Node{}, false
	}
	item := proto.Clone()

	dom.Apply(item, SelTitle, func(n dom.Node) { n.SetText(post.Title) })
	dom.Apply(item, SelDescription, func(n dom.Node) { n.SetText(post.Description) })
	dom.Apply(item, SelAuthor, func(n dom.Node) { n.SetText(post.Author) })

	if post.ImageURL != "" {
		dom.Apply(item, SelThumbnail, func(n dom.Node) { n.SetAttr("src", post.ImageURL) })
	}
	if !post.UpdatedAt.IsZero() {
		dom.Apply(item, SelTimeSpan, func(n dom.Node) { n.SetText(r.RelativeTime(post.UpdatedAt.Time)) })
	}

	return item, true
}

// RenderPostList replaces the content of the post list with one item per post.
// An empty slice leaves the list as it was. It reports whether the list changed.
func (r *Renderer) RenderPostList(p *page.Page, posts []models.Post) bool {
	if len(posts) == 0 || p == nil {
		return false
	}
	list, ok := dom.Lookup(p.Root(), SelPostList)
	if !ok {
		return false
	}

	list.Empty()
	for i := range posts {
		item, ok := r.CreatePostElement(p, &posts[i])
		if !ok {
			continue
		}
		list.Append(item)
	}
	return true
}

// RenderPagination records the current and total page on the pagination bar
// and disables its first/last control at the edges.
func (r *Renderer) RenderPagination(p *page.Page, pg *models.Pagination) bool {
	if pg == nil || p == nil {
		return false
	}
	bar, ok := dom.Lookup(p.Root(), SelPagination)
	if !ok {
		return false
	}

	totalPages := pg.TotalPages()
	bar.SetAttr(AttrPage, strconv.Itoa(pg.Page))
	bar.SetAttr(AttrTotalPages, strconv.Itoa(totalPages))

	if first, ok := bar.FirstChild(); ok {
		first.ToggleClass(ClassDisabled, pg.Page <= 1)
	}
	if last, ok := bar.LastChild(); ok {
		last.ToggleClass(ClassDisabled, pg.Page >= totalPages)
	}
	return true
}
