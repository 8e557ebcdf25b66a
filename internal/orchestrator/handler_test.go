package orchestrator

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"restream-orchestrator/internal/datastore"
	"restream-orchestrator/internal/platform/logger"
)

func newTestRouter(t *testing.T, servers ...datastore.MediaServer) (*chi.Mux, *testEnv) {
	t.Helper()
	env := newTestEnv(t, servers)
	r := chi.NewRouter()
	NewHandler(env.svc, logger.Discard()).Routes(r)
	return r, env
}

func postJSON(t *testing.T, r http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	b, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestHandler_StartSession(t *testing.T) {
	r, env := newTestRouter(t, server(1, 0, 5, 10))

	rec := postJSON(t, r, "/sessions", map[string]any{
		"session_id": "s1",
		"user_id":    "u1",
		"destinations": []map[string]any{
			{"platform_id": "youtube", "ingest_url": "rtmp://a.rtmp.youtube.com/live2", "stream_key": "k"},
		},
	})

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp StartResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Success || resp.Data == nil || resp.Data.SessionID != "s1" {
		t.Errorf("unexpected response %+v", resp)
	}
	if env.active(t, 1) != 1 {
		t.Errorf("expected active count 1, got %d", env.active(t, 1))
	}
}

func TestHandler_StartSession_bad_request(t *testing.T) {
	r, _ := newTestRouter(t, server(1, 0, 5, 10))

	req := httptest.NewRequest(http.MethodPost, "/sessions", bytes.NewReader([]byte("not json")))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}

	rec = postJSON(t, r, "/sessions", map[string]any{"user_id": " "})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without user_id, got %d", rec.Code)
	}

	rec = postJSON(t, r, "/sessions", map[string]any{"user_id": "u1/../server"})
	var resp StartResponse
	_ = json.NewDecoder(rec.Body).Decode(&resp)
	if rec.Code != http.StatusBadRequest || resp.Code != "invalid_request" {
		t.Errorf("expected 400 invalid_request for unsafe user_id, got %d %q", rec.Code, resp.Code)
	}
}

func TestHandler_StartSession_capacity(t *testing.T) {
	r, _ := newTestRouter(t, server(1, 5, 5, 10))

	rec := postJSON(t, r, "/sessions", map[string]any{"user_id": "u1"})
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	var resp StartResponse
	_ = json.NewDecoder(rec.Body).Decode(&resp)
	if resp.Code != "server_at_capacity" {
		t.Errorf("expected server_at_capacity, got %q", resp.Code)
	}
}

func TestHandler_StopSession(t *testing.T) {
	r, env := newTestRouter(t, server(1, 0, 5, 10))
	if rec := postJSON(t, r, "/sessions", map[string]any{"session_id": "s1", "user_id": "u1"}); rec.Code != http.StatusCreated {
		t.Fatalf("setup: expected 201, got %d", rec.Code)
	}

	rec := postJSON(t, r, "/sessions/s1/stop", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if env.active(t, 1) != 0 {
		t.Errorf("expected active count 0 after stop, got %d", env.active(t, 1))
	}

	rec = postJSON(t, r, "/sessions/unknown/stop", nil)
	var resp StopResponse
	_ = json.NewDecoder(rec.Body).Decode(&resp)
	if rec.Code != http.StatusOK || !resp.Success || resp.Message != "session was not active" {
		t.Errorf("stop unknown: code %d resp %+v", rec.Code, resp)
	}
}

func TestHandler_SessionStats_unknown(t *testing.T) {
	r, _ := newTestRouter(t, server(1, 0, 5, 10))

	req := httptest.NewRequest(http.MethodGet, "/sessions/none/stats", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var st Stats
	_ = json.NewDecoder(rec.Body).Decode(&st)
	if st.IsActive || st.Uptime != "00:00:00" {
		t.Errorf("unexpected stats %+v", st)
	}
}

func TestHandler_ListSessions(t *testing.T) {
	r, _ := newTestRouter(t, server(1, 0, 5, 10))

	req := httptest.NewRequest(http.MethodGet, "/sessions", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || bytes.TrimSpace(rec.Body.Bytes())[0] != '[' {
		t.Errorf("expected empty JSON array, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestHandler_user_endpoints(t *testing.T) {
	r, _ := newTestRouter(t, server(1, 0, 5, 10))

	req := httptest.NewRequest(http.MethodGet, "/users/u1/connectivity", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusConflict {
		t.Errorf("connectivity before initialize: expected 409, got %d", rec.Code)
	}

	if rec := postJSON(t, r, "/users/u1/initialize", nil); rec.Code != http.StatusOK {
		t.Fatalf("initialize: expected 200, got %d", rec.Code)
	}

	for _, path := range []string{"/users/u1/connectivity", "/users/u1/applications", "/users/u1/server"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", path, rec.Code)
		}
	}
}

func TestHandler_InitializeUser_no_servers(t *testing.T) {
	r, _ := newTestRouter(t)

	rec := postJSON(t, r, "/users/u1/initialize", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
}
