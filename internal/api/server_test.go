package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/nerrad567/knxip-device/internal/infrastructure/config"
	"github.com/nerrad567/knxip-device/internal/infrastructure/logging"
	"github.com/nerrad567/knxip-device/internal/knxip"
	"github.com/nerrad567/knxip-device/internal/nvstore"
)

type testEnv struct {
	srv     *Server
	handler http.Handler
	dev     *knxip.Device
	store   *nvstore.Memory
	sent    *[][]byte
	fired   *int
	rec     *fakeRecorder

	roomID, setpointID, nightID, modeID, gaID knxip.ConfigID
}

type fakeRecorder struct {
	mu       sync.Mutex
	saves    int
	triggers int
}

func (r *fakeRecorder) ObserveSave(error) {
	r.mu.Lock()
	r.saves++
	r.mu.Unlock()
}

func (r *fakeRecorder) ObserveTrigger(string, error) {
	r.mu.Lock()
	r.triggers++
	r.mu.Unlock()
}

type fakeHealth struct{ err error }

func (f fakeHealth) HealthCheck(context.Context) error { return f.err }

// testServer creates a Server around a device with a memory store, one of
// each configuration kind, two callbacks and two feedback items.
func testServer(t *testing.T) *testEnv {
	t.Helper()

	caps := knxip.Capacities{Callbacks: 4, Assignments: 3, Configs: 8, ConfigSpace: 64, Feedbacks: 4}
	store, err := nvstore.NewMemory(knxip.ImageSize(caps))
	if err != nil {
		t.Fatal(err)
	}
	var sent [][]byte
	dev, err := knxip.New(knxip.Options{
		PhysicalAddress: knxip.PhysicalAddress(1, 1, 250),
		Capacities:      caps,
		Store:           store,
		Sender: knxip.SenderFunc(func(_ context.Context, frame []byte) error {
			sent = append(sent, frame)
			return nil
		}),
	})
	if err != nil {
		t.Fatal(err)
	}

	env := &testEnv{dev: dev, store: store, sent: &sent, rec: &fakeRecorder{}}
	fired := 0
	env.fired = &fired

	noop := knxip.HandlerFunc(func(knxip.Message, any) {})
	_, _ = dev.RegisterCallback("light", noop, nil, nil)
	_, _ = dev.RegisterCallback("blind", noop, nil, func() bool { return false })

	env.roomID, _ = dev.RegisterConfigString("room", 8, "hall", nil)
	env.setpointID, _ = dev.RegisterConfigInt("setpoint", 21, nil)
	env.nightID, _ = dev.RegisterConfigBool("night mode", false, nil)
	env.modeID, _ = dev.RegisterConfigOptions("mode", []knxip.Option{{Name: "auto", Value: 0}, {Name: "manual", Value: 5}}, 0, nil)
	env.gaID, _ = dev.RegisterConfigGA("status ga", func() bool { return false })

	_, _ = dev.RegisterFeedbackInt("uptime", func() int32 { return 7 }, nil)
	_, _ = dev.RegisterFeedbackAction("identify", func(any) { fired++ }, nil, nil)
	_, _ = dev.RegisterFeedbackAction("reboot", func(any) { fired += 100 }, nil, func() bool { return false })

	log := logging.NewWithWriter(io.Discard, config.LoggingConfig{Level: "error", Format: "text"}, "test")
	srv, err := New(Deps{
		Config:   config.APIConfig{Host: "127.0.0.1", Port: 0, Timeouts: config.APITimeoutConfig{Read: 5, Write: 5, Idle: 5}},
		Logger:   log,
		Device:   dev,
		Version:  "test",
		Recorder: env.rec,
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, "knxip_frames_received_total 0\n")
		}),
		Health: map[string]HealthChecker{"storage": fakeHealth{}},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	env.srv = srv
	env.handler = srv.Handler()
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			r = strings.NewReader(b)
		default:
			data, err := json.Marshal(b)
			if err != nil {
				t.Fatal(err)
			}
			r = bytes.NewReader(data)
		}
	}
	req := httptest.NewRequest(method, path, r)
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decoding response %q: %v", rec.Body.String(), err)
	}
	return v
}

// =============================================================================
// Server
// =============================================================================

func TestNewRequiresDeps(t *testing.T) {
	if _, err := New(Deps{}); err == nil {
		t.Error("New() without logger expected error")
	}
	if _, err := New(Deps{Logger: logging.Default()}); err == nil {
		t.Error("New() without device expected error")
	}
}

func TestStartAndClose(t *testing.T) {
	env := testServer(t)
	if err := env.srv.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() before Start expected error")
	}
	if err := env.srv.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	resp, err := http.Get("http://" + env.srv.Addr().String() + "/api/v1/health")
	if err != nil {
		t.Fatalf("GET /health error = %v", err)
	}
	resp.Body.Close() //nolint:errcheck // Test cleanup
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}

	if err := env.srv.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestHealth(t *testing.T) {
	env := testServer(t)

	rec := env.do(t, "GET", "/api/v1/health", nil)
	body := decode[map[string]any](t, rec)
	if body["status"] != "ok" || body["version"] != "test" {
		t.Errorf("health = %v", body)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID not set")
	}

	env.srv.health["mqtt"] = fakeHealth{err: errors.New("mqtt: client not connected")}
	body = decode[map[string]any](t, env.do(t, "GET", "/api/v1/health", nil))
	checks, _ := body["checks"].(map[string]any)
	if body["status"] != "degraded" || checks["mqtt"] != "mqtt: client not connected" || checks["storage"] != "ok" {
		t.Errorf("degraded health = %v", body)
	}
}

func TestMetricsMounted(t *testing.T) {
	env := testServer(t)
	rec := env.do(t, "GET", "/metrics", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "knxip_frames_received_total") {
		t.Errorf("GET /metrics = %d %q", rec.Code, rec.Body.String())
	}
}

func TestRequestIDPropagated(t *testing.T) {
	env := testServer(t)
	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "abc-123" {
		t.Errorf("X-Request-ID = %q", got)
	}
}

func TestCORS(t *testing.T) {
	env := testServer(t)
	env.srv.cfg.CORS.AllowedOrigins = []string{"http://panel.local"}
	env.handler = env.srv.Handler()

	tests := []struct {
		origin string
		want   string
	}{
		{"http://panel.local", "http://panel.local"},
		{"http://evil.example", ""},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodOptions, "/api/v1/config", nil)
		req.Header.Set("Origin", tt.origin)
		rec := httptest.NewRecorder()
		env.handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusNoContent {
			t.Errorf("preflight status = %d", rec.Code)
		}
		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.want {
			t.Errorf("origin %s: allow = %q, want %q", tt.origin, got, tt.want)
		}
	}
}

// =============================================================================
// Configuration
// =============================================================================

func TestListConfig(t *testing.T) {
	env := testServer(t)

	body := decode[struct {
		Items []ConfigItemResponse `json:"items"`
		Count int                  `json:"count"`
	}](t, env.do(t, "GET", "/api/v1/config", nil))

	if body.Count != 5 {
		t.Fatalf("count = %d, want 5", body.Count)
	}
	want := []struct {
		name    string
		kind    string
		value   any
		enabled bool
	}{
		{"room", "string", "hall", true},
		{"setpoint", "int", float64(21), true},
		{"night mode", "bool", false, true},
		{"mode", "options", float64(0), true},
		{"status ga", "ga", "", false},
	}
	for i, w := range want {
		got := body.Items[i]
		if got.Name != w.name || got.Kind != w.kind || got.Value != w.value || got.Enabled != w.enabled {
			t.Errorf("item %d = %+v, want %+v", i, got, w)
		}
	}
	if len(body.Items[3].Options) != 2 {
		t.Errorf("options = %v", body.Items[3].Options)
	}

	filtered := decode[map[string]any](t, env.do(t, "GET", "/api/v1/config?enabled=true", nil))
	if filtered["count"] != float64(4) {
		t.Errorf("enabled-only count = %v", filtered["count"])
	}
}

func TestSetConfig(t *testing.T) {
	env := testServer(t)

	tests := []struct {
		name       string
		id         knxip.ConfigID
		body       any
		wantStatus int
		wantValue  any
	}{
		{"string", env.roomID, map[string]any{"value": "kitchen"}, http.StatusOK, "kitchen"},
		{"string truncated", env.roomID, map[string]any{"value": "living room"}, http.StatusOK, "living r"},
		{"int", env.setpointID, map[string]any{"value": -5}, http.StatusOK, float64(-5)},
		{"bool", env.nightID, map[string]any{"value": true}, http.StatusOK, true},
		{"option", env.modeID, map[string]any{"value": 5}, http.StatusOK, float64(5)},
		{"invalid option", env.modeID, map[string]any{"value": 3}, http.StatusUnprocessableEntity, nil},
		{"ga", env.gaID, map[string]any{"value": "1/2/3"}, http.StatusOK, "1/2/3"},
		{"ga unset", env.gaID, map[string]any{"value": ""}, http.StatusOK, ""},
		{"ga out of range", env.gaID, map[string]any{"value": "32/0/0"}, http.StatusUnprocessableEntity, nil},
		{"wrong type", env.setpointID, map[string]any{"value": "warm"}, http.StatusUnprocessableEntity, nil},
		{"missing value", env.roomID, map[string]any{}, http.StatusBadRequest, nil},
		{"malformed", env.roomID, "{", http.StatusBadRequest, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, "PUT", "/api/v1/config/"+strconv.Itoa(int(tt.id)), tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantStatus == http.StatusOK {
				got := decode[ConfigItemResponse](t, rec)
				if got.Value != tt.wantValue {
					t.Errorf("value = %v, want %v", got.Value, tt.wantValue)
				}
			}
		})
	}

	if v, _ := env.dev.ConfigInt(env.setpointID); v != -5 {
		t.Errorf("device setpoint = %d", v)
	}
}

func TestGetConfig(t *testing.T) {
	env := testServer(t)

	if rec := env.do(t, "GET", "/api/v1/config/0", nil); rec.Code != http.StatusOK {
		t.Errorf("GET /config/0 = %d", rec.Code)
	}
	if rec := env.do(t, "GET", "/api/v1/config/7", nil); rec.Code != http.StatusNotFound {
		t.Errorf("GET /config/7 = %d, want 404", rec.Code)
	}
	if rec := env.do(t, "GET", "/api/v1/config/abc", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("GET /config/abc = %d, want 400", rec.Code)
	}
	if rec := env.do(t, "GET", "/api/v1/config/255", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("GET /config/255 = %d, want 400", rec.Code)
	}
}

func TestRestoreDefaults(t *testing.T) {
	env := testServer(t)
	_ = env.dev.SetConfigString(env.roomID, "attic")

	if rec := env.do(t, "POST", "/api/v1/config/restore-defaults", nil); rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if v, _ := env.dev.ConfigString(env.roomID); v != "hall" {
		t.Errorf("room = %q after restore, want hall", v)
	}
}

// =============================================================================
// Callbacks and assignments
// =============================================================================

func TestCallbacks(t *testing.T) {
	env := testServer(t)
	body := decode[struct {
		Callbacks []CallbackResponse `json:"callbacks"`
	}](t, env.do(t, "GET", "/api/v1/callbacks", nil))

	if len(body.Callbacks) != 2 || body.Callbacks[0].Name != "light" || !body.Callbacks[0].Enabled || body.Callbacks[1].Enabled {
		t.Errorf("callbacks = %+v", body.Callbacks)
	}
}

func TestAssignmentLifecycle(t *testing.T) {
	env := testServer(t)

	rec := env.do(t, "POST", "/api/v1/assignments", AssignmentRequest{Address: "1/2/3", Callback: 0})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rec.Code, rec.Body.String())
	}
	created := decode[AssignmentResponse](t, rec)

	list := decode[struct {
		Assignments []AssignmentResponse `json:"assignments"`
		Capacity    int                  `json:"capacity"`
	}](t, env.do(t, "GET", "/api/v1/assignments", nil))
	if len(list.Assignments) != 1 || list.Assignments[0].CallbackName != "light" || list.Assignments[0].Address != "1/2/3" || list.Capacity != 3 {
		t.Errorf("assignments = %+v", list)
	}

	errCases := []struct {
		name string
		body any
		want int
	}{
		{"unknown callback", AssignmentRequest{Address: "1/2/4", Callback: 3}, http.StatusNotFound},
		{"bad address", AssignmentRequest{Address: "1.2.3", Callback: 0}, http.StatusUnprocessableEntity},
	}
	for _, tt := range errCases {
		if rec := env.do(t, "POST", "/api/v1/assignments", tt.body); rec.Code != tt.want {
			t.Errorf("%s: status = %d, want %d", tt.name, rec.Code, tt.want)
		}
	}

	// Fill the table: two more fit, the fourth conflicts.
	for _, ga := range []string{"1/2/4", "1/2/5"} {
		if rec := env.do(t, "POST", "/api/v1/assignments", AssignmentRequest{Address: ga, Callback: 1}); rec.Code != http.StatusCreated {
			t.Fatalf("create %s status = %d", ga, rec.Code)
		}
	}
	if rec := env.do(t, "POST", "/api/v1/assignments", AssignmentRequest{Address: "1/2/6", Callback: 0}); rec.Code != http.StatusConflict {
		t.Errorf("full table status = %d, want 409", rec.Code)
	}

	path := "/api/v1/assignments/" + strconv.Itoa(int(created.ID))
	if rec := env.do(t, "DELETE", path, nil); rec.Code != http.StatusNoContent {
		t.Errorf("delete status = %d", rec.Code)
	}
	if rec := env.do(t, "DELETE", path, nil); rec.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", rec.Code)
	}
}

func TestWithoutStoreOrSender(t *testing.T) {
	dev, err := knxip.New(knxip.Options{})
	if err != nil {
		t.Fatal(err)
	}
	srv, err := New(Deps{Logger: logging.NewWithWriter(io.Discard, config.LoggingConfig{Level: "error"}, "test"), Device: dev})
	if err != nil {
		t.Fatal(err)
	}
	env := &testEnv{srv: srv, handler: srv.Handler()}

	if rec := env.do(t, "POST", "/api/v1/storage/save", nil); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("save without store = %d, want 503", rec.Code)
	}
	if rec := env.do(t, "POST", "/api/v1/telegrams", TelegramRequest{Address: "1/2/3", Payload: "01", Compact: true}); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("send without sender = %d, want 503", rec.Code)
	}
	if rec := env.do(t, "GET", "/metrics", nil); rec.Code != http.StatusNotFound {
		t.Errorf("metrics without handler = %d, want 404", rec.Code)
	}
}

// =============================================================================
// Device, storage, feedback and telegrams
// =============================================================================

func TestDeviceInfoAndPhysicalAddress(t *testing.T) {
	env := testServer(t)

	info := decode[DeviceResponse](t, env.do(t, "GET", "/api/v1/device", nil))
	if info.PhysicalAddress != "1.1.250" || info.ImageSize != knxip.ImageSize(env.dev.Capacities()) || info.Callbacks != 2 || info.ConfigItems != 5 {
		t.Errorf("device = %+v", info)
	}
	if !strings.HasPrefix(info.Magic, "DEADBEEF") {
		t.Errorf("magic = %s", info.Magic)
	}

	if rec := env.do(t, "PUT", "/api/v1/device/physical-address", AddressRequest{Address: "1.3.7"}); rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := env.dev.PhysicalAddress(); got != knxip.PhysicalAddress(1, 3, 7) {
		t.Errorf("PhysicalAddress() = %s", got.PhysicalString())
	}
	if rec := env.do(t, "PUT", "/api/v1/device/physical-address", AddressRequest{Address: "16.0.0"}); rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("invalid address status = %d", rec.Code)
	}
}

func TestSaveAndLoad(t *testing.T) {
	env := testServer(t)

	_ = env.dev.SetConfigString(env.roomID, "attic")
	if rec := env.do(t, "POST", "/api/v1/storage/save", nil); rec.Code != http.StatusOK {
		t.Fatalf("save status = %d: %s", rec.Code, rec.Body.String())
	}
	if env.store.Commits() != 1 || env.rec.saves != 1 {
		t.Errorf("commits = %d, recorded saves = %d", env.store.Commits(), env.rec.saves)
	}

	_ = env.dev.SetConfigString(env.roomID, "cellar")
	rec := env.do(t, "POST", "/api/v1/storage/load", nil)
	if body := decode[map[string]any](t, rec); body["restored"] != true {
		t.Errorf("load = %v", body)
	}
	if v, _ := env.dev.ConfigString(env.roomID); v != "attic" {
		t.Errorf("room after load = %q, want attic", v)
	}
}

func TestFeedback(t *testing.T) {
	env := testServer(t)

	body := decode[struct {
		Items []knxip.FeedbackValue `json:"items"`
	}](t, env.do(t, "GET", "/api/v1/feedback", nil))
	if len(body.Items) != 3 || body.Items[0].Text != "7" || body.Items[1].Kind != knxip.FeedbackAction {
		t.Errorf("feedback = %+v", body.Items)
	}

	if rec := env.do(t, "POST", "/api/v1/feedback/1/trigger", nil); rec.Code != http.StatusOK {
		t.Errorf("trigger status = %d", rec.Code)
	}
	if rec := env.do(t, "POST", "/api/v1/feedback/0/trigger", nil); rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("trigger non-action status = %d, want 422", rec.Code)
	}
	if rec := env.do(t, "POST", "/api/v1/feedback/2/trigger", nil); rec.Code != http.StatusConflict {
		t.Errorf("trigger disabled status = %d, want 409", rec.Code)
	}
	if rec := env.do(t, "POST", "/api/v1/feedback/9/trigger", nil); rec.Code != http.StatusNotFound {
		t.Errorf("trigger unknown status = %d, want 404", rec.Code)
	}
	if *env.fired != 1 || env.rec.triggers != 4 {
		t.Errorf("fired = %d, recorded = %d", *env.fired, env.rec.triggers)
	}
}

func TestSendTelegram(t *testing.T) {
	env := testServer(t)

	tests := []struct {
		name string
		req  TelegramRequest
		want int
	}{
		{"compact write", TelegramRequest{Address: "1/2/3", Payload: "01", Compact: true}, http.StatusAccepted},
		{"read", TelegramRequest{Address: "1/2/3", Command: "read"}, http.StatusAccepted},
		{"two byte answer", TelegramRequest{Address: "1/2/3", Command: "answer", Payload: "0C1A"}, http.StatusAccepted},
		{"bad command", TelegramRequest{Address: "1/2/3", Command: "toggle"}, http.StatusBadRequest},
		{"bad hex", TelegramRequest{Address: "1/2/3", Payload: "zz"}, http.StatusBadRequest},
		{"zero address", TelegramRequest{Address: "0/0/0", Payload: "01"}, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := env.do(t, "POST", "/api/v1/telegrams", tt.req); rec.Code != tt.want {
				t.Errorf("status = %d, want %d: %s", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
	if len(*env.sent) != 3 {
		t.Errorf("sent %d frames, want 3", len(*env.sent))
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	env := testServer(t)
	h := env.srv.recoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestBodyLimit(t *testing.T) {
	env := testServer(t)
	big := `{"value": "` + strings.Repeat("x", maxRequestBodySize) + `"}`
	rec := env.do(t, "PUT", "/api/v1/config/"+strconv.Itoa(int(env.roomID)), big)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("oversized body status = %d, want 400", rec.Code)
	}
}
