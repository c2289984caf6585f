// Package backendtest is an in-memory stand-in for the AfterWord REST
// backend. It speaks the same JSON contract (snake_case payloads,
// {code, message} errors, ETag revalidation, per-device write locks and
// suggestion gating) so client, session and bridge code can be exercised
// end to end with httptest.
package backendtest

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/cespare/xxhash/v2"
)

// DefaultPageSize is the number of versions returned per list page.
const DefaultPageSize = 20

// Backend holds all server-side state.
type Backend struct {
	mu sync.Mutex

	users  map[string]*user // by email
	works  map[string]*work
	locks  map[string]string // work id -> device id
	secret []byte

	// PageSize bounds version list pages.
	PageSize int
	// Analyzer produces the sentence comments for a submitted version.
	Analyzer Analyzer
	// Now is the clock used for timestamps and token expiry.
	Now func() time.Time
	// TokenTTL is the lifetime of issued tokens.
	TokenTTL time.Duration

	requests    map[string]int
	notModified int

	mux *http.ServeMux
}

type user struct {
	ID       string
	Email    string
	Username string
	Password string
}

type work struct {
	ID          string
	Owner       string
	Title       string
	Content     string
	EssayPrompt *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Versions    []*version
	NextNumber  int
	AutoSaves   int
}

type version struct {
	Number     int
	Content    string
	Submitted  bool
	ChangeType string
	Parent     int
	Reflection string
	CreatedAt  time.Time
	Analysis   *analysis
}

type analysis struct {
	ID         string
	FAOComment string
	Comments   []SentenceComment
}

// New creates an empty backend.
func New() *Backend {
	b := &Backend{
		users:    make(map[string]*user),
		works:    make(map[string]*work),
		locks:    make(map[string]string),
		secret:   []byte("backendtest-secret"),
		PageSize: DefaultPageSize,
		Analyzer: DefaultAnalyzer,
		Now:      time.Now,
		TokenTTL: time.Hour,
		requests: make(map[string]int),
	}
	b.mux = http.NewServeMux()
	b.registerRoutes()
	return b
}

// Start serves the backend on a test server that is closed with the test.
func Start(t testing.TB) (*Backend, *httptest.Server) {
	t.Helper()
	b := New()
	srv := httptest.NewServer(b.Handler())
	t.Cleanup(srv.Close)
	return b, srv
}

func (b *Backend) registerRoutes() {
	b.mux.HandleFunc("POST /api/auth/signup", b.handleSignup)
	b.mux.HandleFunc("POST /api/auth/login", b.handleLogin)
	b.mux.HandleFunc("GET /api/auth/me", b.authed(b.handleMe))
	b.mux.HandleFunc("POST /api/auth/change_username", b.authed(b.handleChangeUsername))
	b.mux.HandleFunc("POST /api/auth/change_password", b.authed(b.handleChangePassword))

	b.mux.HandleFunc("POST /api/work/create", b.authed(b.handleCreate))
	b.mux.HandleFunc("GET /api/work/list", b.authed(b.handleList))
	b.mux.HandleFunc("GET /api/work/total_word_count", b.authed(b.handleTotalWordCount))
	b.mux.HandleFunc("GET /api/work/total_project_count", b.authed(b.handleTotalProjectCount))
	b.mux.HandleFunc("GET /api/work/{id}", b.authed(b.handleGet))
	b.mux.HandleFunc("DELETE /api/work/{id}", b.authed(b.handleDelete))
	b.mux.HandleFunc("POST /api/work/{id}/update", b.authed(b.handleUpdate))
	b.mux.HandleFunc("POST /api/work/{id}/submit", b.authed(b.handleSubmit))
	b.mux.HandleFunc("POST /api/work/{id}/revert", b.authed(b.handleRevert))
	b.mux.HandleFunc("POST /api/work/{id}/rename", b.authed(b.handleRename))
	b.mux.HandleFunc("GET /api/work/{id}/versions", b.authed(b.handleVersions))
	b.mux.HandleFunc("GET /api/work/{id}/versions/{n}", b.authed(b.handleVersion))
}

// Handler returns the HTTP handler.
func (b *Backend) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.requests[r.Method+" "+r.URL.Path]++
		b.mu.Unlock()
		b.mux.ServeHTTP(w, r)
	})
}

// Requests returns how many requests hit method and path.
func (b *Backend) Requests(method, path string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.requests[method+" "+path]
}

// NotModified returns how many GETs were answered with 304.
func (b *Backend) NotModified() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.notModified
}

// HoldLock makes deviceID the lock holder for a work, as if another device
// were editing it.
func (b *Backend) HoldLock(workID, deviceID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.locks[workID] = deviceID
}

// ReleaseLock frees a work's write lock.
func (b *Backend) ReleaseLock(workID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.locks, workID)
}

// acquireLocked takes or refreshes the write lock for deviceID.
func (b *Backend) acquireLocked(workID, deviceID string) bool {
	holder, ok := b.locks[workID]
	if ok && holder != deviceID {
		return false
	}
	b.locks[workID] = deviceID
	return true
}

// Content returns the stored content of a work.
func (b *Backend) Content(workID string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if w, ok := b.works[workID]; ok {
		return w.Content
	}
	return ""
}

// --- response helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]string{"code": code, "message": msg})
}

// writeCached answers a GET with an ETag derived from the payload and
// honours If-None-Match.
func (b *Backend) writeCached(w http.ResponseWriter, r *http.Request, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	etag := `"` + strconv.FormatUint(xxhash.Sum64(body), 16) + `"`
	w.Header().Set("ETag", etag)
	if r.Header.Get("If-None-Match") == etag {
		b.mu.Lock()
		b.notModified++
		b.mu.Unlock()
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func readJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return fmt.Errorf("empty request body")
	}
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
