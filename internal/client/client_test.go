package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afterword/afterword/internal/model"
)

type fakeTokens struct {
	token   string
	expired atomic.Int32
}

func (f *fakeTokens) Token() string { return f.token }
func (f *fakeTokens) Expire()       { f.expired.Add(1) }

func TestBearerTokenAndExpiry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-1" {
			t.Errorf("missing bearer header: %q", r.Header.Get("Authorization"))
		}
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"code": "unauthorized", "message": "token expired"})
	}))
	defer srv.Close()

	tokens := &fakeTokens{token: "tok-1"}
	c := New(srv.URL, WithTokenSource(tokens))

	_, err := c.ListWorks(context.Background())
	require.Error(t, err)

	apiErr, ok := AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, CodeUnauthorized, apiErr.Code)
	assert.Equal(t, "token expired", apiErr.Message)
	assert.Equal(t, int32(1), tokens.expired.Load())
}

func TestMethodNotAllowedHint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusMethodNotAllowed)
	}))
	defer srv.Close()

	_, err := New(srv.URL).CreateWork(context.Background())
	apiErr, ok := AsAPIError(err)
	require.True(t, ok)
	assert.Contains(t, apiErr.Message, "base URL")
}

func TestMissingMessageFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("not json"))
	}))
	defer srv.Close()

	_, err := New(srv.URL).GetWork(context.Background(), "w1")
	apiErr, ok := AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, "request failed with status 500", apiErr.Message)
}

func TestETagCache(t *testing.T) {
	var gets, notModified atomic.Int32
	content := "first"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/work/w1":
			gets.Add(1)
			etag := `"` + content + `"`
			if r.Header.Get("If-None-Match") == etag {
				notModified.Add(1)
				w.WriteHeader(http.StatusNotModified)
				return
			}
			w.Header().Set("ETag", etag)
			_ = json.NewEncoder(w).Encode(map[string]any{"work_id": "w1", "content": content, "current_version": 1})
		case r.Method == http.MethodPost && r.URL.Path == "/api/work/w1/update":
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			content = body["content"].(string)
			_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "version": nil})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := New(srv.URL)
	ctx := context.Background()

	w, err := c.GetWork(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, "first", w.Content)

	w, err = c.GetWork(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, "first", w.Content)
	assert.Equal(t, int64(1), c.Cache().Hits())
	assert.Equal(t, int32(1), notModified.Load())

	res, err := c.UpdateWork(ctx, "w1", UpdateInput{Content: "second", DeviceID: "d1", AutoSave: true})
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.Equal(t, 0, c.Cache().Len())

	w, err = c.GetWork(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, "second", w.Content)
	assert.Equal(t, int32(3), gets.Load())
	assert.Equal(t, int64(1), c.Cache().Hits())
}

func TestCacheInvalidationScope(t *testing.T) {
	cache := NewCache()
	cache.put("/api/work/list", "a", nil)
	cache.put("/api/work/w1", "b", nil)
	cache.put("/api/work/w1/versions?type=all", "c", nil)
	cache.put("/api/work/w1/versions/3", "d", nil)
	cache.put("/api/work/w10", "e", nil)
	cache.put("/api/work/w2", "f", nil)

	cache.InvalidateWork("w1")

	_, ok := cache.get("/api/work/w10")
	assert.True(t, ok, "prefix sibling must survive")
	_, ok = cache.get("/api/work/w2")
	assert.True(t, ok)
	assert.Equal(t, 2, cache.Len())
}

func TestSubmitWireShape(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/work/w1/submit", r.URL.Path)
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "version": 4, "analysis_id": "a4"})
	}))
	defer srv.Close()

	res, err := New(srv.URL).SubmitWork(context.Background(), "w1", SubmitInput{
		Content:       "text",
		DeviceID:      "d1",
		FAOReflection: "   ",
		Actions: model.Markings{
			"c1": {Action: model.ActionResolved, Note: "  fixed it  "},
			"c2": {Action: model.ActionRejected, Note: "   "},
			"c3": {Note: "undecided"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, SubmitResult{Version: 4, AnalysisID: "a4"}, res)

	assert.Nil(t, got["fao_reflection"])
	actions := got["suggestion_actions"].(map[string]any)
	require.Len(t, actions, 2)
	assert.Equal(t, map[string]any{"action": "resolved", "user_note": "fixed it"}, actions["c1"])
	assert.Equal(t, map[string]any{"action": "rejected"}, actions["c2"])
}

func TestVersionQueryEncoding(t *testing.T) {
	tests := []struct {
		q    VersionQuery
		want string
	}{
		{VersionQuery{}, "type=all"},
		{VersionQuery{Type: VersionsSubmitted, Parent: 3}, "type=submitted"},
		{VersionQuery{Type: VersionsDraft, Parent: 3}, "parent=3&type=draft"},
		{VersionQuery{Type: VersionsAll, Cursor: "abc"}, "cursor=abc&type=all"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.q.encode())
	}
}

func TestVersionDetailDecoding(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"version_number": 3,
			"content": "Hello world.",
			"is_submitted": true,
			"change_type": "submission",
			"created_at": "2025-03-01T10:00:00.123456",
			"analysis": {
				"analysis_id": "a3",
				"fao_comment": "Good start",
				"sentence_comments": [
					{"id": "c1", "original_text": "Hello world.", "issue_type": "clarity", "severity": "high",
					 "title": "Vague", "description": "d", "suggestion": "s"}
				]
			}
		}`))
	}))
	defer srv.Close()

	d, err := New(srv.URL).GetVersion(context.Background(), "w1", 3)
	require.NoError(t, err)
	assert.Equal(t, 3, d.Number)
	assert.True(t, d.Submitted)
	assert.Equal(t, 2025, d.CreatedAt.Year())
	require.NotNil(t, d.Analysis)
	require.Len(t, d.Analysis.SentenceComments, 1)
	assert.Equal(t, model.SeverityHigh, d.Analysis.SentenceComments[0].Severity)
	assert.Equal(t, []string{"c1"}, d.Analysis.CommentIDs())
}
