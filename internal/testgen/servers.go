package testgen

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/segmentio/encoding/json"
)

// ImageServer serves fixed bodies by path and counts every request.
type ImageServer struct {
	*httptest.Server

	mu       sync.Mutex
	bodies   map[string][]byte
	requests map[string]int
}

func NewImageServer(t *testing.T) *ImageServer {
	t.Helper()
	s := &ImageServer{bodies: map[string][]byte{}, requests: map[string]int{}}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests[r.URL.Path]++
		body, ok := s.bodies[r.URL.Path]
		s.mu.Unlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(body)
	}))
	t.Cleanup(s.Close)
	return s
}

// Add registers body at path and returns its absolute URL.
func (s *ImageServer) Add(path string, body []byte) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bodies[path] = body
	return s.URL + path
}

// Requests is the number of requests made for path.
func (s *ImageServer) Requests(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[path]
}

// TotalRequests is the number of requests made for any path.
func (s *ImageServer) TotalRequests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, n := range s.requests {
		total += n
	}
	return total
}

// UpstreamBookmark is a bookmark held by the fake upstream.
type UpstreamBookmark struct {
	ID    int64
	Title string
	URL   string
	Tags  []string
	Text  string
	Time  int64
}

// Upstream is a fake of the bookmarking service's Full API. It does not check
// OAuth signatures, only that one is present.
type Upstream struct {
	*httptest.Server

	mu        sync.Mutex
	bookmarks []UpstreamBookmark
	calls     map[string]int
	archived  []int64
	failList  bool
	nextID    int64
}

func NewUpstream(t *testing.T) *Upstream {
	t.Helper()
	u := &Upstream{calls: map[string]int{}, nextID: 1000}
	u.Server = httptest.NewServer(http.HandlerFunc(u.serve))
	t.Cleanup(u.Close)
	return u
}

func (u *Upstream) AddBookmark(b UpstreamBookmark) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.bookmarks = append(u.bookmarks, b)
}

// FailList makes bookmarks/list return a server error.
func (u *Upstream) FailList(fail bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.failList = fail
}

// Calls is the number of requests made to the API path, e.g.
// "/bookmarks/get_text".
func (u *Upstream) Calls(path string) int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.calls[path]
}

func (u *Upstream) TotalCalls() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	total := 0
	for _, n := range u.calls {
		total += n
	}
	return total
}

func (u *Upstream) Archived() []int64 {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]int64(nil), u.archived...)
}

func (u *Upstream) serve(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/1")
	_ = r.ParseForm()

	u.mu.Lock()
	defer u.mu.Unlock()
	u.calls[path]++

	if !strings.HasPrefix(r.Header.Get("Authorization"), "OAuth ") {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	switch path {
	case "/oauth/access_token":
		if r.PostForm.Get("x_auth_password") != "password" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte("Invalid xAuth credentials."))
			return
		}
		_, _ = w.Write([]byte("oauth_token=token-" + r.PostForm.Get("x_auth_username") + "&oauth_token_secret=secret"))
	case "/bookmarks/list":
		if u.failList {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		records := []map[string]any{{"type": "meta"}, {"type": "user", "user_id": 1}}
		limit, _ := strconv.Atoi(r.PostForm.Get("limit"))
		for i, b := range u.bookmarks {
			if limit > 0 && i >= limit {
				break
			}
			records = append(records, bookmarkRecord(b))
		}
		writeJSON(w, records)
	case "/bookmarks/add":
		u.nextID++
		b := UpstreamBookmark{ID: u.nextID, Title: "Added", URL: r.PostForm.Get("url"), Time: 1700000000}
		u.bookmarks = append(u.bookmarks, b)
		writeJSON(w, []map[string]any{bookmarkRecord(b)})
	case "/bookmarks/get_text":
		id, _ := strconv.ParseInt(r.PostForm.Get("bookmark_id"), 10, 64)
		for _, b := range u.bookmarks {
			if b.ID == id && b.Text != "" {
				_, _ = w.Write([]byte(b.Text))
				return
			}
		}
		w.WriteHeader(http.StatusBadRequest)
		writeJSON(w, []map[string]any{{"type": "error", "error_code": 1241, "message": "Invalid or missing bookmark_id"}})
	case "/bookmarks/update_read_progress":
		writeJSON(w, []map[string]any{})
	case "/bookmarks/archive":
		id, _ := strconv.ParseInt(r.PostForm.Get("bookmark_id"), 10, 64)
		u.archived = append(u.archived, id)
		writeJSON(w, []map[string]any{})
	default:
		http.NotFound(w, r)
	}
}

func bookmarkRecord(b UpstreamBookmark) map[string]any {
	tags := make([]map[string]any, 0, len(b.Tags))
	for i, name := range b.Tags {
		tags = append(tags, map[string]any{"id": i + 1, "name": name})
	}
	return map[string]any{
		"type":               "bookmark",
		"bookmark_id":        b.ID,
		"title":              b.Title,
		"url":                b.URL,
		"description":        fmt.Sprintf("About %s", b.Title),
		"time":               b.Time,
		"progress":           0,
		"progress_timestamp": 0,
		"starred":            "0",
		"tags":               tags,
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
