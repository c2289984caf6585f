package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afterword/afterword/internal/auth"
	"github.com/afterword/afterword/internal/backendtest"
	"github.com/afterword/afterword/internal/client"
	"github.com/afterword/afterword/internal/kv"
	"github.com/afterword/afterword/internal/model"
	"github.com/afterword/afterword/internal/session"
)

type fixture struct {
	backend *backendtest.Backend
	srv     *Server
	workID  string
}

// newFixture starts a fake backend with one work whose baseline (v2)
// carries a single comment, v2-s0.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	b, backendSrv := backendtest.Start(t)
	token := b.AddUser("ann@example.com", "ann", "secret1")
	id := b.CreateWork("ann@example.com", "Summer", "My summer.")
	require.Equal(t, 2, b.SubmitVersion(id, "My summer was good."))

	store := auth.NewStore(kv.NewMemoryStore(), nil)
	require.NoError(t, store.Set(token, model.User{Email: "ann@example.com", Username: "ann"}))
	c := client.New(backendSrv.URL, client.WithTokenSource(store))

	m := NewManager(c, session.Options{DeviceID: "device-a", AutoSaveDelay: time.Hour}, nil)
	t.Cleanup(m.CloseAll)
	return &fixture{backend: b, srv: New(":0", m, nil), workID: id}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(w, req)
	return w
}

func decodeState(t *testing.T, w *httptest.ResponseRecorder) stateJSON {
	t.Helper()
	var st stateJSON
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	return st
}

func TestHealthEndpoint(t *testing.T) {
	srv := New(":0", NewManager(nil, session.Options{}, nil), nil)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json decode: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("expected status ok, got %q", resp["status"])
	}
}

func TestSessionState(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/api/sessions/"+f.workID, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	st := decodeState(t, w)
	assert.Equal(t, "idle", st.Phase)
	assert.Equal(t, "My summer was good.", st.Content)
	require.NotNil(t, st.Baseline)
	assert.Equal(t, 2, st.Baseline.Number)
	assert.Equal(t, 1, st.Unprocessed)
	require.Len(t, st.Comments, 1)
	assert.Equal(t, "v2-s0", st.Comments[0].ID)
	assert.Equal(t, 1, st.Comments[0].Line)
	assert.Equal(t, "1 medium", st.Summary)

	w = f.do(t, http.MethodGet, "/api/sessions", nil)
	assert.JSONEq(t, `{"sessions":["`+f.workID+`"]}`, w.Body.String())
}

func TestSubmitGateAndMarkings(t *testing.T) {
	f := newFixture(t)
	base := "/api/sessions/" + f.workID

	w := f.do(t, http.MethodPost, base+"/submit", submitRequest{})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())
	var resp sessionErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, string(session.KindSuggestionsNotProcessed), resp.Error.Kind)
	assert.Equal(t, 0, f.backend.Requests("POST", "/api/work/"+f.workID+"/submit"))

	note := "kept it"
	w = f.do(t, http.MethodPost, base+"/markings", markingRequest{CommentID: "v2-s0", Action: "rejected", Note: &note})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	st := decodeState(t, w)
	assert.Equal(t, 0, st.Unprocessed)
	assert.Equal(t, "rejected", st.Comments[0].Action)
	assert.Equal(t, "kept it", st.Comments[0].Note)

	w = f.do(t, http.MethodPost, base+"/markings", markingRequest{CommentID: "v2-s0"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, decodeState(t, w).Unprocessed, "empty action clears the marking")

	f.do(t, http.MethodPost, base+"/markings", markingRequest{CommentID: "v2-s0", Action: "resolved"})
	reflection := "Tried harder."
	w = f.do(t, http.MethodPost, base+"/submit", submitRequest{Reflection: &reflection})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	st = decodeState(t, w)
	require.NotNil(t, st.Baseline)
	assert.Equal(t, 3, st.Baseline.Number)
	assert.Equal(t, "Tried harder.", st.Baseline.UserReflection)
}

func TestContentAndDiff(t *testing.T) {
	f := newFixture(t)
	base := "/api/sessions/" + f.workID

	text := "My summer was golden."
	w := f.do(t, http.MethodPost, base+"/content", contentRequest{Content: &text})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	st := decodeState(t, w)
	assert.True(t, st.Dirty)
	var passes []string
	for _, fd := range st.Findings {
		passes = append(passes, fd.Pass)
	}
	assert.Equal(t, []string{"stale", "unmarked"}, passes)

	w = f.do(t, http.MethodGet, base+"/diff", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var d diffResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &d))
	assert.Equal(t, 2, d.From)
	assert.Equal(t, 1, d.Added)
	assert.Equal(t, 1, d.Deleted)
	require.Len(t, d.Hunks, 1)
	assert.Equal(t, []lineJSON{
		{Op: "-", Text: "My summer was good.\n"},
		{Op: "+", Text: "My summer was golden.\n"},
	}, d.Hunks[0].Lines)

	w = f.do(t, http.MethodPost, base+"/save", saveRequest{})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.False(t, decodeState(t, w).Dirty)
	assert.Equal(t, text, f.backend.Content(f.workID))
}

func TestLockedSave(t *testing.T) {
	f := newFixture(t)
	base := "/api/sessions/" + f.workID
	f.do(t, http.MethodGet, base, nil)

	f.backend.HoldLock(f.workID, "device-b")
	text := "edited"
	f.do(t, http.MethodPost, base+"/content", contentRequest{Content: &text})

	w := f.do(t, http.MethodPost, base+"/save", saveRequest{})
	require.Equal(t, http.StatusLocked, w.Code, w.Body.String())
	var resp sessionErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.State)
	assert.True(t, resp.State.Locked)
	assert.Equal(t, "locked", resp.State.Phase)

	w = f.do(t, http.MethodPost, base+"/content", contentRequest{Content: &text})
	assert.Equal(t, http.StatusLocked, w.Code, "editor is read-only")
}

func TestBadRequests(t *testing.T) {
	f := newFixture(t)
	base := "/api/sessions/" + f.workID

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"unknown work", http.MethodGet, "/api/sessions/nope", nil, http.StatusNotFound},
		{"revert without target", http.MethodPost, base + "/revert", revertRequest{}, http.StatusBadRequest},
		{"bad version number", http.MethodPost, base + "/versions/abc", nil, http.StatusBadRequest},
		{"marking without id", http.MethodPost, base + "/markings", markingRequest{Action: "resolved"}, http.StatusBadRequest},
		{"close unopened", http.MethodDelete, "/api/sessions/other", nil, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}

func TestHistoryRoutes(t *testing.T) {
	f := newFixture(t)
	base := "/api/sessions/" + f.workID

	w := f.do(t, http.MethodPost, base+"/versions/1", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	st := decodeState(t, w)
	require.NotNil(t, st.Selected)
	assert.Equal(t, "My summer.", st.Selected.Content)

	w = f.do(t, http.MethodPost, base+"/revert", revertRequest{Target: 1})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "My summer.", decodeState(t, w).Content)
	assert.Equal(t, "My summer.", f.backend.Content(f.workID))

	w = f.do(t, http.MethodDelete, base, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	_, ok := f.srv.manager.Get(f.workID)
	assert.False(t, ok)
}

func TestWebSocketIntents(t *testing.T) {
	f := newFixture(t)
	ts := httptest.NewServer(f.srv.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/ws?work=" + f.workID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	read := func() wsMessage {
		t.Helper()
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var msg wsMessage
		require.NoError(t, conn.ReadJSON(&msg))
		return msg
	}
	waitState := func(pred func(stateJSON) bool) stateJSON {
		t.Helper()
		for {
			msg := read()
			if msg.Type != wsMsgState {
				continue
			}
			var st stateJSON
			require.NoError(t, json.Unmarshal(msg.Data, &st))
			if pred(st) {
				return st
			}
		}
	}

	first := read()
	require.Equal(t, wsMsgState, first.Type)

	send := func(typ string, data any) {
		t.Helper()
		raw, err := json.Marshal(data)
		require.NoError(t, err)
		require.NoError(t, conn.WriteJSON(wsMessage{Type: typ, Data: raw}))
	}

	send(wsMsgSetContent, wsText{Text: "Summer was long."})
	st := waitState(func(st stateJSON) bool { return st.Content == "Summer was long." })
	assert.True(t, st.Dirty)

	send(wsMsgMark, markingRequest{CommentID: "v2-s0", Action: "resolved"})
	waitState(func(st stateJSON) bool { return st.Unprocessed == 0 })

	send(wsMsgSave, saveRequest{})
	waitState(func(st stateJSON) bool { return !st.Dirty && st.Phase == "idle" })
	assert.Equal(t, "Summer was long.", f.backend.Content(f.workID))

	send(wsMsgRevert, wsVersion{})
	for {
		msg := read()
		if msg.Type == wsMsgError {
			var e errorJSON
			require.NoError(t, json.Unmarshal(msg.Data, &e))
			assert.Equal(t, "bad_request", e.Kind)
			break
		}
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{session.ErrReadOnly, http.StatusLocked},
		{session.ErrClosed, http.StatusGone},
		{&client.APIError{Status: 409, Code: client.CodeLocked}, http.StatusLocked},
		{&client.APIError{Status: 422, Code: client.CodeValidationFailed}, http.StatusUnprocessableEntity},
		{&client.APIError{Status: 429}, http.StatusTooManyRequests},
		{&client.APIError{Status: 500, Code: client.CodeLLMFailed}, http.StatusBadGateway},
	}
	for _, tt := range tests {
		got, _ := statusFor(tt.err)
		assert.Equal(t, tt.want, got, "%v", tt.err)
	}
}
