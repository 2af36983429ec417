// Package board drives one posts page: it keeps the page URL, the fetched
// data and the rendered document in step.
package board

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"sync"

	log "github.com/sirupsen/logrus"

	"postboard/pkg/dom"
	"postboard/pkg/logger"
	"postboard/pkg/models"
	"postboard/pkg/nav"
	"postboard/pkg/page"
	"postboard/pkg/postapi"
	"postboard/pkg/render"
)

const (
	attrHref         = "href"
	attrAriaDisabled = "aria-disabled"
)

// Controller is the navigation controller of a single posts page.
// Its methods are safe for concurrent use. URL pushes and request tags are
// issued in the same order, and only the newest response is rendered.
type Controller struct {
	api postapi.Client
	r   *render.Renderer

	// navMu orders reading and pushing the location with tagging the request.
	navMu sync.Mutex
	loc   nav.Location
	seq   nav.Sequencer

	mu   sync.Mutex
	page *page.Page
}

func New(api postapi.Client, p *page.Page, loc nav.Location, r *render.Renderer) *Controller {
	if r == nil {
		r = render.New()
	}
	return &Controller{
		api:  api,
		loc:  loc,
		r:    r,
		page: p,
	}
}

// Init defaults the URL query, renders the page for it and points the
// prev/next controls at their targets.
func (c *Controller) Init(ctx context.Context) error {
	c.navMu.Lock()
	c.initURL()
	state := nav.FromValues(c.loc.URL().Query())
	seq := c.seq.Next()
	c.navMu.Unlock()

	c.mu.Lock()
	c.bindControls()
	c.mu.Unlock()

	return c.load(ctx, seq, state)
}

// InitURL pushes a URL carrying default _page and _limit when either is
// missing. It reports whether a new URL was pushed.
func (c *Controller) InitURL() bool {
	c.navMu.Lock()
	defer c.navMu.Unlock()

	return c.initURL()
}

func (c *Controller) initURL() bool {
	u, changed := nav.InitURL(c.loc.URL())
	if changed {
		c.loc.PushState(u)
	}
	return changed
}

// HandleFilterChange sets query parameter name to value, pushes the new URL
// and re-renders the page from a fresh fetch. On error the page is unchanged.
func (c *Controller) HandleFilterChange(ctx context.Context, name, value string) error {
	c.navMu.Lock()
	cur := c.loc.URL()
	u := nav.SetParam(cur, name, value)
	c.loc.PushState(u)
	state := nav.FromValues(cur.Query()).With(name, value)
	seq := c.seq.Next()
	c.navMu.Unlock()

	return c.load(ctx, seq, state)
}

// HandlePrevClick moves one page back unless already on the first page.
func (c *Controller) HandlePrevClick(ctx context.Context) error {
	target, ok := c.prevTarget()
	if !ok {
		return nil
	}
	return c.HandleFilterChange(ctx, nav.ParamPage, strconv.Itoa(target))
}

// HandleNextClick moves one page forward unless already on the last page.
func (c *Controller) HandleNextClick(ctx context.Context) error {
	target, ok := c.nextTarget()
	if !ok {
		return nil
	}
	return c.HandleFilterChange(ctx, nav.ParamPage, strconv.Itoa(target))
}

// WriteTo serialises the current page.
func (c *Controller) WriteTo(w io.Writer) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.page.WriteTo(w)
}

// URL returns the current page URL.
func (c *Controller) URL() *url.URL {
	return c.loc.URL()
}

// load fetches the posts for state and renders them unless a response with
// a newer tag than seq has already been rendered.
func (c *Controller) load(ctx context.Context, seq uint64, state nav.State) error {
	sID := logger.Shorten(logger.RequestID(ctx))

	query := state.Values()
	resp, err := c.api.GetAll(ctx, query)
	if err != nil {
		return fmt.Errorf("fetch posts %s: %w", query.Encode(), err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.seq.Commit(seq) {
		log.Debugf("[board][%s] dropped stale response #%d, #%d already rendered", sID, seq, c.seq.Last())
		return nil
	}

	c.apply(resp)
	log.Debugf("[board][%s] rendered #%d: %d posts, page %d/%d", sID, seq, len(resp.Data), resp.Pagination.Page, resp.Pagination.TotalPages())
	return nil
}

// apply must be called with c.mu held.
func (c *Controller) apply(resp *models.PostsResponse) {
	c.r.RenderPostList(c.page, resp.Data)
	c.r.RenderPagination(c.page, &resp.Pagination)
	c.bindControls()
}

func (c *Controller) prevTarget() (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.prevTargetLocked()
}

func (c *Controller) nextTarget() (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.nextTargetLocked()
}

func (c *Controller) prevTargetLocked() (int, bool) {
	cur, _, ok := c.pageState()
	if !ok || cur <= 1 {
		return 0, false
	}
	return cur - 1, true
}

func (c *Controller) nextTargetLocked() (int, bool) {
	cur, total, ok := c.pageState()
	if !ok || cur >= total {
		return 0, false
	}
	return cur + 1, true
}

// pageState reads the current and total page recorded on the pagination bar.
// Before the first render the current page comes from the URL. An unparsable
// current page counts as 1 and an unknown total as 0.
func (c *Controller) pageState() (cur, total int, ok bool) {
	bar, ok := dom.Lookup(c.page.Root(), render.SelPagination)
	if !ok {
		return 0, 0, false
	}

	if v, found := bar.Attr(render.AttrPage); found {
		cur = 1
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cur = n
		}
	} else {
		cur = nav.FromValues(c.loc.URL().Query()).Page
	}
	if v, found := bar.Attr(render.AttrTotalPages); found {
		if n, err := strconv.Atoi(v); err == nil {
			total = n
		}
	}
	return cur, total, true
}

// bindControls points the prev/next links at the URL their click leads to,
// or marks them inert when the click would be ignored.
func (c *Controller) bindControls() {
	bar, ok := dom.Lookup(c.page.Root(), render.SelPagination)
	if !ok {
		return
	}

	if first, ok := bar.FirstChild(); ok {
		if link, ok := first.FirstChild(); ok {
			target, ok := c.prevTargetLocked()
			c.bindLink(link, target, ok)
		}
	}
	if last, ok := bar.LastChild(); ok {
		if link, ok := last.LastChild(); ok {
			target, ok := c.nextTargetLocked()
			c.bindLink(link, target, ok)
		}
	}
}

func (c *Controller) bindLink(link dom.Node, target int, enabled bool) {
	if !enabled {
		link.RemoveAttr(attrHref)
		link.SetAttr(attrAriaDisabled, "true")
		return
	}
	u := nav.SetParam(c.loc.URL(), nav.ParamPage, strconv.Itoa(target))
	link.SetAttr(attrHref, u.RequestURI())
	link.RemoveAttr(attrAriaDisabled)
}
