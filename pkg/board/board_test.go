package board

import (
	"bytes"
	"context"
	"errors"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"

	"postboard/pkg/dom"
	"postboard/pkg/models"
	"postboard/pkg/nav"
	"postboard/pkg/page"
	"postboard/pkg/render"
)

func TestMain(m *testing.M) {
	log.SetLevel(log.PanicLevel)
	exitCode := m.Run()
	os.Exit(exitCode)
}

// fakeAPI answers from a fixed set of posts and records every query.
type fakeAPI struct {
	mu      sync.Mutex
	total   int
	err     error
	queries []url.Values
}

func (f *fakeAPI) GetAll(ctx context.Context, q url.Values) (*models.PostsResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.queries = append(f.queries, q)
	if f.err != nil {
		return nil, f.err
	}

	pageNum, _ := strconv.Atoi(q.Get("_page"))
	limit, _ := strconv.Atoi(q.Get("_limit"))
	resp := &models.PostsResponse{
		Pagination: models.Pagination{Page: pageNum, Limit: limit, TotalRows: f.total},
	}
	for i := (pageNum - 1) * limit; i < pageNum*limit && i < f.total; i++ {
		resp.Data = append(resp.Data, models.Post{
			ID:        strconv.Itoa(i),
			Title:     "Post " + strconv.Itoa(i),
			UpdatedAt: models.NewTimestamp(time.Now().Add(-time.Hour)),
		})
	}
	return resp, nil
}

func (f *fakeAPI) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queries)
}

func (f *fakeAPI) lastQuery() url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queries[len(f.queries)-1]
}

func newController(t *testing.T, api *fakeAPI, rawURL string) (*Controller, *nav.History, *page.Page) {
	t.Helper()
	tmpl, err := page.Default()
	if err != nil {
		t.Fatalf("failed to load template: %v", err)
	}
	p, err := tmpl.New()
	if err != nil {
		t.Fatalf("failed to create page: %v", err)
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("failed to parse url: %v", err)
	}
	h := nav.NewHistory(u)
	return New(api, p, h, render.New()), h, p
}

func listTitles(p *page.Page) []string {
	list, _ := dom.Lookup(p.Root(), render.SelPostList)
	var out []string
	for i := 0; i < list.Len(); i++ {
		item := dom.Wrap(list.Selection().Children().Eq(i))
		title, _ := dom.Lookup(item, render.SelTitle)
		out = append(out, title.Text())
	}
	return out
}

func barAttr(p *page.Page, name string) string {
	bar, _ := dom.Lookup(p.Root(), render.SelPagination)
	v, _ := bar.Attr(name)
	return v
}

func controlLinks(p *page.Page) (prev, next dom.Node) {
	bar, _ := dom.Lookup(p.Root(), render.SelPagination)
	first, _ := bar.FirstChild()
	last, _ := bar.LastChild()
	prev, _ = first.FirstChild()
	next, _ = last.LastChild()
	return prev, next
}

func TestController_Init(t *testing.T) {
	api := &fakeAPI{total: 18}
	c, h, p := newController(t, api, "/")

	if err := c.Init(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := h.URL().String(); got != "/?_page=1&_limit=6" {
		t.Errorf("want URL with defaults, got %q", got)
	}
	if api.calls() != 1 {
		t.Fatalf("want exactly one request, got %d", api.calls())
	}
	if q := api.lastQuery(); q.Get("_page") != "1" || q.Get("_limit") != "6" {
		t.Errorf("want request for page 1 limit 6, got %v", q)
	}
	if got := len(listTitles(p)); got != 6 {
		t.Errorf("want 6 rendered posts, got %d", got)
	}
	if barAttr(p, render.AttrPage) != "1" || barAttr(p, render.AttrTotalPages) != "3" {
		t.Errorf("want page 1 of 3 recorded, got %s of %s", barAttr(p, render.AttrPage), barAttr(p, render.AttrTotalPages))
	}

	prev, next := controlLinks(p)
	if _, ok := prev.Attr("href"); ok {
		t.Error("want no href on prev link on first page")
	}
	if v, _ := prev.Attr("aria-disabled"); v != "true" {
		t.Error("want prev link aria-disabled on first page")
	}
	if href, _ := next.Attr("href"); href != "/?_page=2&_limit=6" {
		t.Errorf("want next href to page 2, got %q", href)
	}
}

func TestController_InitKeepsExistingQuery(t *testing.T) {
	api := &fakeAPI{total: 18}
	c, h, _ := newController(t, api, "/?_page=2&_limit=6&author=Alice")

	if err := c.Init(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.Len() != 1 {
		t.Errorf("want no history push for complete URL, got %d entries", h.Len())
	}
	if q := api.lastQuery(); q.Get("author") != "Alice" || q.Get("_page") != "2" {
		t.Errorf("want filters forwarded verbatim, got %v", q)
	}
}

func TestController_HandleFilterChange(t *testing.T) {
	api := &fakeAPI{total: 18}
	c, h, p := newController(t, api, "/?_page=1&_limit=6")
	if err := c.Init(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	before := api.calls()

	if err := c.HandleFilterChange(context.Background(), "_page", "3"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := h.URL().Query().Get("_page"); got != "3" {
		t.Errorf("want _page=3 in URL, got %q", got)
	}
	if api.calls()-before != 1 {
		t.Errorf("want exactly one request, got %d", api.calls()-before)
	}
	if got := api.lastQuery().Get("_page"); got != "3" {
		t.Errorf("want request for page 3, got %q", got)
	}
	if titles := listTitles(p); len(titles) != 6 || titles[0] != "Post 12" {
		t.Errorf("want posts 12..17 rendered, got %v", titles)
	}
	if barAttr(p, render.AttrPage) != "3" {
		t.Errorf("want page 3 recorded, got %s", barAttr(p, render.AttrPage))
	}

	bar, _ := dom.Lookup(p.Root(), render.SelPagination)
	first, _ := bar.FirstChild()
	last, _ := bar.LastChild()
	if first.HasClass(render.ClassDisabled) {
		t.Error("want prev enabled on last page")
	}
	if !last.HasClass(render.ClassDisabled) {
		t.Error("want next disabled on last page")
	}
}

func TestController_HandleFilterChangeFailure(t *testing.T) {
	api := &fakeAPI{total: 18}
	c, _, p := newController(t, api, "/?_page=1&_limit=6")
	if err := c.Init(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var before bytes.Buffer
	c.WriteTo(&before)

	api.err = errors.New("boom")
	if err := c.HandleFilterChange(context.Background(), "_page", "2"); err == nil {
		t.Fatal("want error from failing API, got nil")
	}

	var after bytes.Buffer
	c.WriteTo(&after)
	if before.String() != after.String() {
		t.Error("want page unchanged after failed fetch")
	}
	if barAttr(p, render.AttrPage) != "1" {
		t.Errorf("want page 1 still recorded, got %s", barAttr(p, render.AttrPage))
	}
}

func TestController_HandleNextClick(t *testing.T) {
	api := &fakeAPI{total: 18}
	c, h, _ := newController(t, api, "/?_page=2&_limit=6")
	if err := c.Init(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := c.HandleNextClick(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := h.URL().Query().Get("_page"); got != "3" {
		t.Errorf("want _page=3 after next, got %q", got)
	}

	// On the last page next does nothing.
	calls, entries := api.calls(), h.Len()
	if err := c.HandleNextClick(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if api.calls() != calls {
		t.Errorf("want no request on last page, got %d new", api.calls()-calls)
	}
	if h.Len() != entries {
		t.Errorf("want no navigation on last page, got %d new entries", h.Len()-entries)
	}
}

func TestController_HandlePrevClick(t *testing.T) {
	api := &fakeAPI{total: 18}
	c, h, _ := newController(t, api, "/?_page=2&_limit=6")
	if err := c.Init(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := c.HandlePrevClick(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := h.URL().Query().Get("_page"); got != "1" {
		t.Errorf("want _page=1 after prev, got %q", got)
	}

	calls := api.calls()
	if err := c.HandlePrevClick(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if api.calls() != calls {
		t.Errorf("want no request on first page, got %d new", api.calls()-calls)
	}
}

func TestController_ClicksBeforeRender(t *testing.T) {
	api := &fakeAPI{total: 18}
	c, h, _ := newController(t, api, "/?_page=1&_limit=6")

	// Nothing is recorded on the bar yet: page defaults to 1, total is unknown.
	if err := c.HandleNextClick(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := c.HandlePrevClick(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if api.calls() != 0 || h.Len() != 1 {
		t.Errorf("want no navigation before first render, got %d calls %d entries", api.calls(), h.Len())
	}
}

func TestController_EmptyPageKeepsList(t *testing.T) {
	api := &fakeAPI{total: 6}
	c, _, p := newController(t, api, "/?_page=1&_limit=6")
	if err := c.Init(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := c.HandleFilterChange(context.Background(), "_page", "5"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := len(listTitles(p)); got != 6 {
		t.Errorf("want previous posts left in place for empty data, got %d", got)
	}
	if barAttr(p, render.AttrPage) != "5" {
		t.Errorf("want pagination updated to page 5, got %s", barAttr(p, render.AttrPage))
	}
}

// gatedAPI blocks each call until its gate for the requested page is opened.
type gatedAPI struct {
	fakeAPI
	gates map[string]chan struct{}
}

func (g *gatedAPI) GetAll(ctx context.Context, q url.Values) (*models.PostsResponse, error) {
	<-g.gates[q.Get("_page")]
	return g.fakeAPI.GetAll(ctx, q)
}

func TestController_DropsStaleResponse(t *testing.T) {
	api := &gatedAPI{
		fakeAPI: fakeAPI{total: 18},
		gates: map[string]chan struct{}{
			"2": make(chan struct{}),
			"3": make(chan struct{}),
		},
	}

	tmpl, _ := page.Default()
	p, _ := tmpl.New()
	u, _ := url.Parse("/?_page=1&_limit=6")
	c := New(api, p, nav.NewHistory(u), nil)

	older := make(chan error, 1)
	go func() { older <- c.HandleFilterChange(context.Background(), "_page", "2") }()

	// Wait until the older request holds its sequence number.
	for c.seq.Issued() < 1 {
		time.Sleep(time.Millisecond)
	}

	newer := make(chan error, 1)
	go func() { newer <- c.HandleFilterChange(context.Background(), "_page", "3") }()
	for c.seq.Issued() < 2 {
		time.Sleep(time.Millisecond)
	}

	close(api.gates["3"])
	if err := <-newer; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	close(api.gates["2"])
	if err := <-older; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := barAttr(p, render.AttrPage); got != "3" {
		t.Errorf("want newest page 3 rendered, got %s", got)
	}
	if titles := listTitles(p); len(titles) == 0 || !strings.HasPrefix(titles[0], "Post 12") {
		t.Errorf("want posts of page 3 rendered, got %v", titles)
	}
}

func TestController_PrevClickBeforeRenderUsesURLPage(t *testing.T) {
	api := &fakeAPI{total: 18}
	c, h, _ := newController(t, api, "/?_page=3&_limit=6")

	if err := c.HandlePrevClick(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := h.URL().Query().Get("_page"); got != "2" {
		t.Errorf("want _page=2 after prev from URL page 3, got %q", got)
	}
	if got := api.lastQuery().Get("_page"); got != "2" {
		t.Errorf("want request for page 2, got %q", got)
	}
}

// heldLocation parks PushState of a chosen URL until released.
type heldLocation struct {
	*nav.History
	holdPage string
	pushed   chan struct{}
	release  chan struct{}
}

func (l *heldLocation) PushState(u *url.URL) {
	l.History.PushState(u)
	if u.Query().Get("_page") == l.holdPage {
		close(l.pushed)
		<-l.release
	}
}

func TestController_URLMatchesRenderedPage(t *testing.T) {
	api := &fakeAPI{total: 30}
	tmpl, _ := page.Default()
	p, _ := tmpl.New()
	u, _ := url.Parse("/?_page=1&_limit=6")
	loc := &heldLocation{
		History:  nav.NewHistory(u),
		holdPage: "2",
		pushed:   make(chan struct{}),
		release:  make(chan struct{}),
	}
	c := New(api, p, loc, nil)

	older := make(chan error, 1)
	go func() { older <- c.HandleFilterChange(context.Background(), "_page", "2") }()
	<-loc.pushed

	newer := make(chan error, 1)
	go func() { newer <- c.HandleFilterChange(context.Background(), "_page", "3") }()

	// The newer change must wait for the held push to finish.
	select {
	case err := <-newer:
		t.Fatalf("want newer change to wait for the held push, it returned %v", err)
	case <-time.After(20 * time.Millisecond):
	}

	close(loc.release)
	if err := <-older; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := <-newer; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	urlPage := loc.URL().Query().Get("_page")
	shown := barAttr(p, render.AttrPage)
	if urlPage != "3" || shown != "3" {
		t.Errorf("want URL and rendered page both 3, got URL %s rendered %s", urlPage, shown)
	}
}

func TestController_ConcurrentChangesKeepEveryParam(t *testing.T) {
	api := &fakeAPI{total: 18}
	c, h, _ := newController(t, api, "/?_page=1&_limit=6")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		c.HandleFilterChange(context.Background(), "author", "Alice")
	}()
	go func() {
		defer wg.Done()
		c.HandleFilterChange(context.Background(), "title_like", "go")
	}()
	wg.Wait()

	q := h.URL().Query()
	if q.Get("author") != "Alice" || q.Get("title_like") != "go" {
		t.Errorf("want both filters in URL, got %q", h.URL().RawQuery)
	}
}
