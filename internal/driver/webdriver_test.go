package driver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/supremehyo/appium-mcp-claude-android/internal/model"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   map[string]interface{}
}

// fakeAppium routes "METHOD /path" (with the /session/<id> prefix stripped)
// to handlers and records every request.
type fakeAppium struct {
	mu       sync.Mutex
	requests []recordedRequest
	handlers map[string]func(w http.ResponseWriter, body map[string]interface{})
}

func newFakeAppium(t *testing.T, handlers map[string]func(w http.ResponseWriter, body map[string]interface{})) (*fakeAppium, *httptest.Server) {
	f := &fakeAppium{handlers: handlers}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		if strings.HasPrefix(path, "/session/") {
			parts := strings.SplitN(path[len("/session/"):], "/", 2)
			if len(parts) > 1 {
				path = "/" + parts[1]
			} else {
				path = "/"
			}
		}
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)

		f.mu.Lock()
		f.requests = append(f.requests, recordedRequest{Method: r.Method, Path: path, Body: body})
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if h, ok := f.handlers[r.Method+" "+path]; ok {
			h(w, body)
			return
		}
		t.Logf("unhandled request: %s %s", r.Method, r.URL.Path)
		writeValue(w, nil)
	}))
	t.Cleanup(srv.Close)
	return f, srv
}

func writeValue(w http.ResponseWriter, v interface{}) {
	json.NewEncoder(w).Encode(map[string]interface{}{"value": v})
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{"value": map[string]string{"error": code, "message": msg}})
}

func sessionHandler(w http.ResponseWriter, _ map[string]interface{}) {
	writeValue(w, map[string]interface{}{"sessionId": "s-1", "capabilities": map[string]interface{}{}})
}

func connect(t *testing.T, srv *httptest.Server) Session {
	t.Helper()
	sess, err := NewWebDriver(srv.Client()).Connect(context.Background(), srv.URL, map[string]interface{}{
		"platformName": "Android",
		"deviceName":   "emulator-5554",
	})
	if err != nil {
		t.Fatal(err)
	}
	return sess
}

func TestNormalizeCapabilities(t *testing.T) {
	got, err := NormalizeCapabilities(map[string]interface{}{
		"platformName":        "Android",
		"deviceName":          "Pixel",
		"appium:noReset":      true,
		"acceptInsecureCerts": true,
	})
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]interface{}{
		"platformName":          "Android",
		"appium:deviceName":     "Pixel",
		"appium:noReset":        true,
		"acceptInsecureCerts":   true,
		"appium:automationName": "UiAutomator2",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("capabilities mismatch (-want +got):\n%s", diff)
	}

	ios, err := NormalizeCapabilities(map[string]interface{}{"platformName": "iOS"})
	if err != nil || ios["appium:automationName"] != "XCUITest" {
		t.Errorf("iOS default automation: got %v err=%v", ios, err)
	}

	if _, err := NormalizeCapabilities(map[string]interface{}{"platformName": "Windows"}); err == nil {
		t.Error("expected error for unsupported platform")
	}
}

func TestConnect_SendsAlwaysMatch(t *testing.T) {
	fake, srv := newFakeAppium(t, map[string]func(http.ResponseWriter, map[string]interface{}){
		"POST /session": sessionHandler,
	})
	sess := connect(t, srv)
	if sess.ID() != "s-1" {
		t.Errorf("session id: got %q", sess.ID())
	}
	caps := fake.requests[0].Body["capabilities"].(map[string]interface{})["alwaysMatch"].(map[string]interface{})
	if caps["appium:deviceName"] != "emulator-5554" || caps["appium:automationName"] != "UiAutomator2" {
		t.Errorf("unexpected capabilities: %v", caps)
	}
}

func TestConnect_ServerError(t *testing.T) {
	_, srv := newFakeAppium(t, map[string]func(http.ResponseWriter, map[string]interface{}){
		"POST /session": func(w http.ResponseWriter, _ map[string]interface{}) {
			writeError(w, http.StatusInternalServerError, "session not created", "device offline")
		},
	})
	_, err := NewWebDriver(srv.Client()).Connect(context.Background(), srv.URL, map[string]interface{}{"platformName": "Android"})
	if err == nil || !strings.Contains(err.Error(), "device offline") {
		t.Errorf("expected session error, got %v", err)
	}
}

func TestFind_MapsStrategyAndMiss(t *testing.T) {
	fake, srv := newFakeAppium(t, map[string]func(http.ResponseWriter, map[string]interface{}){
		"POST /session": sessionHandler,
		"POST /element": func(w http.ResponseWriter, body map[string]interface{}) {
			if body["value"] == "missing" {
				writeError(w, http.StatusNotFound, "no such element", "not found")
				return
			}
			writeValue(w, map[string]string{w3cElementKey: "el-1"})
		},
	})
	sess := connect(t, srv)
	ctx := context.Background()

	el, err := sess.Find(ctx, model.StrategyAccessibilityID, "login")
	if err != nil {
		t.Fatal(err)
	}
	if el.ID() != "el-1" {
		t.Errorf("element id: got %q", el.ID())
	}
	if got := fake.requests[1].Body["using"]; got != "accessibility id" {
		t.Errorf("using: got %v", got)
	}

	if _, err := sess.Find(ctx, model.StrategyID, "missing"); !errors.Is(err, ErrNoSuchElement) {
		t.Errorf("expected ErrNoSuchElement, got %v", err)
	}
	if _, err := sess.Find(ctx, "bogus", "x"); !errors.Is(err, ErrUnsupportedStrategy) {
		t.Errorf("expected ErrUnsupportedStrategy, got %v", err)
	}
}

func TestElementOperations(t *testing.T) {
	fake, srv := newFakeAppium(t, map[string]func(http.ResponseWriter, map[string]interface{}){
		"POST /session": sessionHandler,
		"POST /element": func(w http.ResponseWriter, _ map[string]interface{}) {
			writeValue(w, map[string]string{legacyElementKey: "el-2"})
		},
		"GET /element/el-2/text": func(w http.ResponseWriter, _ map[string]interface{}) {
			writeValue(w, "  Login Page ")
		},
		"GET /element/el-2/rect": func(w http.ResponseWriter, _ map[string]interface{}) {
			writeValue(w, map[string]int{"x": 10, "y": 20, "width": 100, "height": 40})
		},
	})
	sess := connect(t, srv)
	ctx := context.Background()

	el, err := sess.Find(ctx, model.StrategyXPath, "//x")
	if err != nil {
		t.Fatal(err)
	}
	if err := el.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	if err := el.SendKeys(ctx, "hi"); err != nil {
		t.Fatal(err)
	}
	text, err := el.Text(ctx)
	if err != nil || text != "  Login Page " {
		t.Errorf("text: got %q err=%v", text, err)
	}
	rect, err := el.Rect(ctx)
	if err != nil || rect.Center() != (model.Point{X: 60, Y: 40}) {
		t.Errorf("rect: got %+v err=%v", rect, err)
	}

	var sendKeys map[string]interface{}
	for _, r := range fake.requests {
		if r.Path == "/element/el-2/value" {
			sendKeys = r.Body
		}
	}
	if sendKeys["text"] != "hi" {
		t.Errorf("send keys body: %v", sendKeys)
	}
}

func TestPerform_W3CPayload(t *testing.T) {
	fake, srv := newFakeAppium(t, map[string]func(http.ResponseWriter, map[string]interface{}){
		"POST /session": sessionHandler,
	})
	sess := connect(t, srv)

	g := Drag(model.Point{X: 540, Y: 1600}, model.Point{X: 540, Y: 400}, 300*time.Millisecond)
	if err := sess.Perform(context.Background(), g); err != nil {
		t.Fatal(err)
	}

	body := fake.requests[len(fake.requests)-1]
	if body.Path != "/actions" {
		t.Fatalf("expected /actions, got %s", body.Path)
	}
	pointer := body.Body["actions"].([]interface{})[0].(map[string]interface{})
	steps := pointer["actions"].([]interface{})
	var kinds []string
	for _, s := range steps {
		kinds = append(kinds, s.(map[string]interface{})["type"].(string))
	}
	want := []string{"pointerMove", "pointerDown", "pause", "pointerMove", "pointerUp"}
	if diff := cmp.Diff(want, kinds); diff != "" {
		t.Errorf("step kinds mismatch (-want +got):\n%s", diff)
	}
	if pause := steps[2].(map[string]interface{})["duration"]; pause != float64(300) {
		t.Errorf("pause duration: got %v", pause)
	}
}

func TestSessionQueries(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G'}
	_, srv := newFakeAppium(t, map[string]func(http.ResponseWriter, map[string]interface{}){
		"POST /session": sessionHandler,
		"GET /source": func(w http.ResponseWriter, _ map[string]interface{}) {
			writeValue(w, "<hierarchy/>")
		},
		"GET /window/rect": func(w http.ResponseWriter, _ map[string]interface{}) {
			writeValue(w, map[string]int{"x": 0, "y": 0, "width": 1080, "height": 2340})
		},
		"GET /appium/device/is_keyboard_shown": func(w http.ResponseWriter, _ map[string]interface{}) {
			writeValue(w, true)
		},
		"GET /screenshot": func(w http.ResponseWriter, _ map[string]interface{}) {
			writeValue(w, base64.StdEncoding.EncodeToString(png))
		},
		"GET /timeouts": func(w http.ResponseWriter, _ map[string]interface{}) {
			writeValue(w, map[string]int{"implicit": 0})
		},
	})
	sess := connect(t, srv)
	ctx := context.Background()

	if src, err := sess.Source(ctx); err != nil || src != "<hierarchy/>" {
		t.Errorf("source: got %q err=%v", src, err)
	}
	if w, h, err := sess.WindowSize(ctx); err != nil || w != 1080 || h != 2340 {
		t.Errorf("window size: got %dx%d err=%v", w, h, err)
	}
	if shown, err := sess.IsKeyboardShown(ctx); err != nil || !shown {
		t.Errorf("keyboard shown: got %v err=%v", shown, err)
	}
	if got, err := sess.Screenshot(ctx); err != nil || string(got) != string(png) {
		t.Errorf("screenshot: got %v err=%v", got, err)
	}
	if !sess.IsAlive(ctx) {
		t.Error("session should be alive")
	}
}

func TestIsAlive_InvalidSession(t *testing.T) {
	_, srv := newFakeAppium(t, map[string]func(http.ResponseWriter, map[string]interface{}){
		"POST /session": sessionHandler,
		"GET /timeouts": func(w http.ResponseWriter, _ map[string]interface{}) {
			writeError(w, http.StatusNotFound, "invalid session id", "gone")
		},
	})
	sess := connect(t, srv)
	if sess.IsAlive(context.Background()) {
		t.Error("session should be reported dead")
	}
}
