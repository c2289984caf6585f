package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllowedOrigin(t *testing.T) {
	tests := []struct {
		origin string
		host   string
		want   bool
	}{
		{"", "127.0.0.1:7420", true},
		{"http://localhost:5173", "127.0.0.1:7420", true},
		{"http://127.0.0.1", "127.0.0.1:7420", true},
		{"http://[::1]:3000", "127.0.0.1:7420", true},
		{"https://LOCALHOST", "127.0.0.1:7420", true},
		{"http://192.168.1.5:7420", "192.168.1.5:7420", true},
		{"http://localhost.evil.example", "127.0.0.1:7420", false},
		{"http://127.0.0.1.evil.example", "127.0.0.1:7420", false},
		{"http://evil.example", "127.0.0.1:7420", false},
		{"http://192.168.1.5:9999", "192.168.1.5:7420", false},
		{"file://localhost", "127.0.0.1:7420", false},
		{"null", "127.0.0.1:7420", false},
		{"http://%zz", "127.0.0.1:7420", false},
	}
	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/api/ws", nil)
			r.Host = tt.host
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.want, allowedOrigin(r))
		})
	}
}

func TestGuardRejectsForeignWrites(t *testing.T) {
	f := newFixture(t)
	submit := "/api/work/" + f.workID + "/submit"
	path := "/api/sessions/" + f.workID + "/submit"

	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", "http://localhost.evil.example")
	w := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	req = httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "text/plain")
	w = httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)

	req = httptest.NewRequest(http.MethodDelete, "/api/sessions/"+f.workID, nil)
	req.Header.Set("Origin", "http://evil.example")
	w = httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	assert.Zero(t, f.backend.Requests(http.MethodPost, submit))

	// reads stay open
	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://evil.example")
	w = httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestWebSocketRejectsForeignOrigin(t *testing.T) {
	f := newFixture(t)
	ts := httptest.NewServer(f.srv.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/ws?work=" + f.workID
	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"http://localhost.evil.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"http://localhost:5173"}})
	require.NoError(t, err)
	conn.Close()
}
