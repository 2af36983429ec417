package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

type Post struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Author      string    `json:"author"`
	ImageURL    string    `json:"imageUrl"`
	CreatedAt   Timestamp `json:"createdAt"`
	UpdatedAt   Timestamp `json:"updatedAt"`
}

// Pagination is the paging metadata reported by the posts API.
type Pagination struct {
	Page      int `json:"_page"`
	Limit     int `json:"_limit"`
	TotalRows int `json:"_totalRows"`
}

// TotalPages returns ceil(TotalRows / Limit), or 0 for a non-positive limit.
func (p Pagination) TotalPages() int {
	if p.Limit <= 0 || p.TotalRows <= 0 {
		return 0
	}
	return (p.TotalRows + p.Limit - 1) / p.Limit
}

type PostsResponse struct {
	Data       []Post     `json:"data"`
	Pagination Pagination `json:"pagination"`
}

// Timestamp accepts epoch milliseconds or an RFC 3339 string on the wire
// and always encodes as epoch milliseconds.
type Timestamp struct {
	time.Time
}

func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t}
}

func (ts Timestamp) MarshalJSON() ([]byte, error) {
	if ts.IsZero() {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatInt(ts.UnixMilli(), 10)), nil
}

func (ts *Timestamp) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		ts.Time = time.Time{}
		return nil
	}

	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if s == "" {
			ts.Time = time.Time{}
			return nil
		}
		if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
			ts.Time = time.UnixMilli(ms).UTC()
			return nil
		}
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return fmt.Errorf("invalid timestamp %q: %w", s, err)
		}
		ts.Time = t.UTC()
		return nil
	}

	var ms json.Number
	if err := json.Unmarshal(b, &ms); err != nil {
		return fmt.Errorf("invalid timestamp %s: %w", b, err)
	}
	n, err := ms.Int64()
	if err != nil {
		f, ferr := ms.Float64()
		if ferr != nil {
			return fmt.Errorf("invalid timestamp %s: %w", b, err)
		}
		n = int64(f)
	}
	ts.Time = time.UnixMilli(n).UTC()
	return nil
}

// LogEntry is one access log record shipped to Kafka and indexed by the log keeper.
type LogEntry struct {
	Timestamp  time.Time `json:"timestamp"`
	IP         string    `json:"ip"`
	StatusCode int       `json:"status_code"`
	RequestID  string    `json:"request_id"`
	Method     string    `json:"method"`
	Path       string    `json:"path"`
	Query      string    `json:"query,omitempty"`
	Bytes      int       `json:"bytes"`
	Duration   float64   `json:"duration_sec"`
	Service    string    `json:"service"`
}
