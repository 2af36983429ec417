// Package nav keeps the posts page navigation state. The URL query is the
// source of truth; State is its typed view and Location the place it lives.
package nav

import (
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
)

const (
	ParamPage  = "_page"
	ParamLimit = "_limit"

	DefaultPage  = 1
	DefaultLimit = 6
)

// State is the navigation state carried by the page URL.
type State struct {
	Page    int
	Limit   int
	Filters url.Values
}

// FromValues reads State from query values. Missing or invalid page and
// limit fall back to the defaults; every other pair is kept as a filter.
func FromValues(v url.Values) State {
	s := State{
		Page:    positiveOr(v.Get(ParamPage), DefaultPage),
		Limit:   positiveOr(v.Get(ParamLimit), DefaultLimit),
		Filters: url.Values{},
	}
	for k, vv := range v {
		if k == ParamPage || k == ParamLimit {
			continue
		}
		s.Filters[k] = append([]string(nil), vv...)
	}
	return s
}

// Values returns the full query for s.
func (s State) Values() url.Values {
	v := url.Values{}
	for k, vv := range s.Filters {
		v[k] = append([]string(nil), vv...)
	}
	v.Set(ParamPage, strconv.Itoa(s.Page))
	v.Set(ParamLimit, strconv.Itoa(s.Limit))
	return v
}

// With returns a copy of s with query parameter name set to value.
func (s State) With(name, value string) State {
	v := s.Values()
	v.Set(name, value)
	return FromValues(v)
}

func positiveOr(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return def
	}
	return n
}

// InitURL returns a copy of u with _page and _limit defaulted when absent,
// and whether anything was added.
func InitURL(u *url.URL) (*url.URL, bool) {
	out := *u
	q := out.Query()

	changed := false
	if q.Get(ParamPage) == "" {
		out.RawQuery = setQuery(out.RawQuery, ParamPage, strconv.Itoa(DefaultPage))
		changed = true
	}
	if q.Get(ParamLimit) == "" {
		out.RawQuery = setQuery(out.RawQuery, ParamLimit, strconv.Itoa(DefaultLimit))
		changed = true
	}
	return &out, changed
}

// SetParam returns a copy of u with query parameter name set to value.
func SetParam(u *url.URL, name, value string) *url.URL {
	out := *u
	out.RawQuery = setQuery(out.RawQuery, name, value)
	return &out
}

// setQuery sets name=value in a raw query the way a browser's
// URLSearchParams.set does: the first occurrence is replaced in place, later
// duplicates are dropped and a new pair goes to the end.
func setQuery(raw, name, value string) string {
	pair := url.QueryEscape(name) + "=" + url.QueryEscape(value)

	var out []string
	replaced := false
	for _, part := range strings.Split(raw, "&") {
		if part == "" {
			continue
		}
		key, _, _ := strings.Cut(part, "=")
		if k, err := url.QueryUnescape(key); err == nil && k == name {
			if !replaced {
				out = append(out, pair)
				replaced = true
			}
			continue
		}
		out = append(out, part)
	}
	if !replaced {
		out = append(out, pair)
	}
	return strings.Join(out, "&")
}

// Location is the addressable place the navigation state is synchronised with.
type Location interface {
	URL() *url.URL
	PushState(u *url.URL)
}

// History is an in-memory Location that remembers every pushed URL.
type History struct {
	mu      sync.Mutex
	entries []*url.URL
}

func NewHistory(start *url.URL) *History {
	u := *start
	return &History{entries: []*url.URL{&u}}
}

// URL returns a copy of the current entry.
func (h *History) URL() *url.URL {
	h.mu.Lock()
	defer h.mu.Unlock()

	u := *h.entries[len(h.entries)-1]
	return &u
}

func (h *History) PushState(u *url.URL) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c := *u
	h.entries = append(h.entries, &c)
}

// Len returns the number of entries, including the starting one.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.entries)
}

// Sequencer tags outgoing requests and rejects responses that arrive after
// a newer one has already been rendered.
type Sequencer struct {
	issued    atomic.Uint64
	mu        sync.Mutex
	committed uint64
}

// Next returns a new, strictly increasing sequence number.
func (s *Sequencer) Next() uint64 {
	return s.issued.Add(1)
}

// Issued returns the number of sequence numbers handed out so far.
func (s *Sequencer) Issued() uint64 {
	return s.issued.Load()
}

// Commit records seq as rendered. It returns false when a response with an
// equal or newer sequence number was committed first.
func (s *Sequencer) Commit(seq uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if seq <= s.committed {
		return false
	}
	s.committed = seq
	return true
}

// Last returns the most recently committed sequence number.
func (s *Sequencer) Last() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.committed
}
