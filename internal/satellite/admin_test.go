package satellite

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/danmuck/satellite/internal/auth"
	"github.com/danmuck/satellite/internal/entity"
	"github.com/danmuck/satellite/internal/testutil/testlog"
	"github.com/gin-gonic/gin"
)

func newTestAdmin(t *testing.T, allowed []string) (*Admin, *entity.Registry, *fakeRunner) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	reg, _ := testRegistry(t)
	runner := &fakeRunner{}
	d := startDispatcher(t, allowed, runner)
	srv := NewServer(testConfig(), reg, nil)
	a := NewAdmin("kitchen", nil, AdminDeps{
		Registry: reg,
		Server:   srv,
		Dispatch: d.Dispatch,
	})
	return a, reg, runner
}

func serve(t *testing.T, a *Admin, method, path, body string) (int, map[string]any) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, req)
	out := map[string]any{}
	if rec.Body.Len() > 0 && strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatalf("%s %s decode: %v", method, path, err)
		}
	}
	return rec.Code, out
}

func TestAdminHealthAndReady(t *testing.T) {
	testlog.Start(t)

	a, _, _ := newTestAdmin(t, nil)
	code, body := serve(t, a, http.MethodGet, "/health", "")
	if code != http.StatusOK || body["status"] != "ok" || body["device"] != "kitchen" {
		t.Fatalf("unexpected health: code=%d body=%v", code, body)
	}
	code, body = serve(t, a, http.MethodGet, "/ready", "")
	if code != http.StatusOK || body["hub_connected"] != false {
		t.Fatalf("unexpected ready: code=%d body=%v", code, body)
	}
}

func TestAdminListsEntities(t *testing.T) {
	testlog.Start(t)

	a, reg, _ := newTestAdmin(t, nil)
	sensor, _ := reg.Lookup(entity.KindTextSensor, "last_command")
	if _, err := reg.Update(sensor.Key, entity.Text("idle")); err != nil {
		t.Fatalf("update: %v", err)
	}
	code, body := serve(t, a, http.MethodGet, "/entities", "")
	if code != http.StatusOK {
		t.Fatalf("unexpected status: %d", code)
	}
	list, ok := body["entities"].([]any)
	if !ok || len(list) != 2 {
		t.Fatalf("unexpected entities: %v", body["entities"])
	}
	first := list[0].(map[string]any)
	if first["object_id"] != "shutdown" || first["command"] != "shutdown" {
		t.Fatalf("unexpected first entity: %v", first)
	}
	second := list[1].(map[string]any)
	if second["value"] == nil {
		t.Fatalf("expected value on updated sensor: %v", second)
	}
}

func TestAdminCommandOutcomeStatus(t *testing.T) {
	testlog.Start(t)

	a, _, runner := newTestAdmin(t, nil)
	code, body := serve(t, a, http.MethodPost, "/commands/shutdown", "")
	if code != http.StatusForbidden || body["outcome"] != "rejected" {
		t.Fatalf("expected rejected shutdown: code=%d body=%v", code, body)
	}
	code, _ = serve(t, a, http.MethodPost, "/commands/reboot.now", `{"args":{"delay":"5"}}`)
	if code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown command, got=%d", code)
	}
	if runner.count() != 0 {
		t.Fatalf("rejected commands must not run")
	}

	allowed, _, runner := newTestAdmin(t, []string{"shutdown"})
	code, body = serve(t, allowed, http.MethodPost, "/commands/shutdown", "")
	if code != http.StatusOK || body["outcome"] != "success" {
		t.Fatalf("expected success: code=%d body=%v", code, body)
	}
	if runner.count() != 1 {
		t.Fatalf("runner calls mismatch: got=%d want=1", runner.count())
	}
}

func TestAdminVoiceRoutesWithoutPipeline(t *testing.T) {
	testlog.Start(t)

	a, _, _ := newTestAdmin(t, nil)
	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/voice"},
		{http.MethodGet, "/timers"},
		{http.MethodPost, "/wake"},
		{http.MethodPost, "/announce"},
	} {
		if code, _ := serve(t, a, tc.method, tc.path, ""); code != http.StatusNotFound {
			t.Fatalf("%s %s: got=%d want=404", tc.method, tc.path, code)
		}
	}
}

func TestNormalizeOrigins(t *testing.T) {
	testlog.Start(t)

	if got := normalizeOrigins([]string{" ", ""}); len(got) != 1 || got[0] != "http://localhost:3000" {
		t.Fatalf("unexpected default origins: %v", got)
	}
	if got := normalizeOrigins([]string{" http://tray.local "}); len(got) != 1 || got[0] != "http://tray.local" {
		t.Fatalf("unexpected origins: %v", got)
	}
}

func TestAdminTokenGuardsPostRoutes(t *testing.T) {
	testlog.Start(t)
	gin.SetMode(gin.TestMode)

	reg, _ := testRegistry(t)
	d := startDispatcher(t, []string{"shutdown"}, &fakeRunner{})
	a := NewAdmin("kitchen", nil, AdminDeps{
		Registry: reg,
		Server:   NewServer(testConfig(), reg, nil),
		Dispatch: d.Dispatch,
		Auth:     auth.StaticToken{Token: "tray-token"},
	})

	if code, _ := serve(t, a, http.MethodGet, "/health", ""); code != http.StatusOK {
		t.Fatalf("health must stay open, got=%d", code)
	}
	if code, _ := serve(t, a, http.MethodPost, "/commands/shutdown", ""); code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got=%d", code)
	}

	req := httptest.NewRequest(http.MethodPost, "/commands/shutdown", nil)
	req.Header.Set("Authorization", "Bearer tray-token")
	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got=%d body=%s", rec.Code, rec.Body.String())
	}
}
