package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/supremehyo/appium-mcp-claude-android/internal/appium"
	"github.com/supremehyo/appium-mcp-claude-android/internal/config"
	"github.com/supremehyo/appium-mcp-claude-android/internal/device"
	"github.com/supremehyo/appium-mcp-claude-android/internal/driver"
	"github.com/supremehyo/appium-mcp-claude-android/internal/driver/drivertest"
	"github.com/supremehyo/appium-mcp-claude-android/internal/model"
	"github.com/supremehyo/appium-mcp-claude-android/internal/output"
	"github.com/supremehyo/appium-mcp-claude-android/internal/store"
)

const loginSource = `<hierarchy>
  <android.widget.Button text="Login" resource-id="btn_login" class="android.widget.Button" bounds="[0,0][100,50]"/>
</hierarchy>`

const twoButtonSource = `<hierarchy>
  <android.widget.Button text="Login" resource-id="btn_login" class="android.widget.Button" bounds="[0,0][100,50]"/>
  <android.widget.Button text="Sign up" resource-id="btn_signup" class="android.widget.Button" bounds="[0,60][100,110]"/>
</hierarchy>`

const testConfig = `server_url: http://127.0.0.1:4723
capabilities:
  platformName: Android
  udid: emulator-5554
loop:
  connect_delay: 0s
  keyboard_settle: 0s
  input_settle: 0s
`

// Helper to create a CallToolRequest with arguments
func makeToolRequest(args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Arguments: args,
		},
	}
}

// Helper to get text content from result
func getTextContent(result *mcp.CallToolResult) string {
	if result == nil || len(result.Content) == 0 {
		return ""
	}
	for _, c := range result.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config", "appium.yaml")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

type testServer struct {
	*Server
	sess     *drivertest.Session
	connects int
}

func newTestServer(t *testing.T, configPath string, ttl time.Duration, options ...Option) *testServer {
	t.Helper()
	ts := &testServer{sess: drivertest.NewSession("session-1")}
	ts.sess.PageSource = loginSource
	conn := driver.ConnectorFunc(func(context.Context, string, map[string]interface{}) (driver.Session, error) {
		ts.connects++
		ts.sess.Closed = false
		return ts.sess, nil
	})
	srv, err := New(Config{ConfigPath: configPath, CacheTTL: ttl}, append([]Option{WithConnector(conn)}, options...)...)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ts.Server = srv
	return ts
}

func call(t *testing.T, handler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error), args map[string]interface{}) (string, bool) {
	t.Helper()
	result, err := handler(context.Background(), makeToolRequest(args))
	if err != nil {
		t.Fatalf("unexpected handler error: %v", err)
	}
	return getTextContent(result), result.IsError
}

func decodeElements(t *testing.T, text string) output.ElementsResult {
	t.Helper()
	var res output.ElementsResult
	if err := json.Unmarshal([]byte(text), &res); err != nil {
		t.Fatalf("elements are not JSON: %v\n%s", err, text)
	}
	return res
}

func fakeADB(outputs map[string]string) *device.ADB {
	return device.NewADB("adb").WithRunner(func(_ context.Context, _ string, args ...string) ([]byte, error) {
		out, ok := outputs[strings.Join(args, " ")]
		if !ok {
			return nil, errors.New("unexpected command")
		}
		return []byte(out), nil
	})
}

func TestGetScreenElements_CachedUntilWrite(t *testing.T) {
	ts := newTestServer(t, writeConfig(t, testConfig), time.Minute)

	text, isErr := call(t, ts.handleGetScreenElements, nil)
	if isErr {
		t.Fatalf("unexpected error: %s", text)
	}
	first := decodeElements(t, text)
	if first.Count != 1 || first.Source != "device" || first.Device != "emulator-5554" {
		t.Fatalf("unexpected first snapshot: %+v", first)
	}
	if got := first.Elements[0]; got.Index != 1 || got.ResourceID != "btn_login" {
		t.Errorf("unexpected element: %+v", got)
	}

	ts.sess.PageSource = twoButtonSource
	text, _ = call(t, ts.handleGetScreenElements, nil)
	if second := decodeElements(t, text); second.Count != 1 || second.Source != "cache" {
		t.Errorf("expected cached snapshot, got %+v", second)
	}

	if text, isErr := call(t, ts.handleExecuteAction, map[string]interface{}{"action": "back"}); isErr {
		t.Fatalf("back failed: %s", text)
	}
	text, _ = call(t, ts.handleGetScreenElements, nil)
	if third := decodeElements(t, text); third.Count != 2 || third.Source != "device" {
		t.Errorf("write should invalidate the cache, got %+v", third)
	}
	if ts.connects != 1 {
		t.Errorf("session should be reused, connected %d times", ts.connects)
	}
}

func TestGetScreenElements_RefreshBypassesCache(t *testing.T) {
	ts := newTestServer(t, writeConfig(t, testConfig), time.Minute)
	call(t, ts.handleGetScreenElements, nil)
	ts.sess.PageSource = twoButtonSource

	text, _ := call(t, ts.handleGetScreenElements, map[string]interface{}{"refresh": true})
	if res := decodeElements(t, text); res.Count != 2 {
		t.Errorf("refresh should read the device, got %+v", res)
	}
}

func TestGetScreenElements_FilterAndChanges(t *testing.T) {
	ts := newTestServer(t, writeConfig(t, testConfig), 0)

	text, _ := call(t, ts.handleGetScreenElements, map[string]interface{}{"changes": true})
	if first := decodeElements(t, text); first.Changes != nil {
		t.Errorf("first call has nothing to compare with, got %+v", first.Changes)
	}

	ts.sess.PageSource = twoButtonSource
	text, isErr := call(t, ts.handleGetScreenElements, map[string]interface{}{"changes": true, "text": "sign"})
	if isErr {
		t.Fatalf("unexpected error: %s", text)
	}
	res := decodeElements(t, text)
	if res.Count != 1 || res.Elements[0].Index != 2 || res.Elements[0].ResourceID != "btn_signup" {
		t.Errorf("filter should keep the original index, got %+v", res.Elements)
	}
	if res.Changes == nil || len(res.Changes.Added) != 1 || res.Changes.UnchangedCount != 1 {
		t.Errorf("expected one added element, got %+v", res.Changes)
	}
}

func TestGetScreenElements_AdvertisesArguments(t *testing.T) {
	ts := newTestServer(t, writeConfig(t, testConfig), 0)

	tool, ok := ts.mcp.ListTools()["get_screen_elements"]
	if !ok {
		t.Fatal("get_screen_elements is not registered")
	}
	for _, name := range []string{"refresh", "text", "roles", "changes"} {
		if _, ok := tool.Tool.InputSchema.Properties[name]; !ok {
			t.Errorf("get_screen_elements schema is missing %q", name)
		}
	}
}

func TestGetScreenElements_MissingConfig(t *testing.T) {
	ts := newTestServer(t, filepath.Join(t.TempDir(), "missing.yaml"), 0)
	text, isErr := call(t, ts.handleGetScreenElements, nil)
	if !isErr || !strings.Contains(text, "setup_connection") {
		t.Errorf("expected setup hint, got %q (error=%v)", text, isErr)
	}
	if ts.connects != 0 {
		t.Error("no connection should be attempted without a config")
	}
}

func TestExecuteAction_TapByIndex(t *testing.T) {
	ts := newTestServer(t, writeConfig(t, testConfig), 0)
	login := &drivertest.Element{IDValue: "el-1"}
	ts.sess.Elements[drivertest.Key(model.StrategyID, "btn_login")] = login

	text, isErr := call(t, ts.handleExecuteAction, map[string]interface{}{"action": "tap", "index": float64(1)})
	if isErr {
		t.Fatalf("unexpected error: %s", text)
	}
	if !strings.Contains(text, "ok: true") || !strings.Contains(text, "tap(node_index=1)") {
		t.Errorf("unexpected result: %s", text)
	}
	if login.Clicks != 1 {
		t.Errorf("expected one click, got %d", login.Clicks)
	}
}

func TestExecuteAction_Errors(t *testing.T) {
	ts := newTestServer(t, writeConfig(t, testConfig), 0)
	ts.sess.BackErr = errors.New("back failed")

	tests := []struct {
		name string
		args map[string]interface{}
		want string
	}{
		{"missing action", map[string]interface{}{}, "action is required"},
		{"unknown action", map[string]interface{}{"action": "pinch"}, "unknown action: pinch"},
		{"tap without target", map[string]interface{}{"action": "tap"}, "tap needs"},
		{"driver failure", map[string]interface{}{"action": "back"}, "back failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, isErr := call(t, ts.handleExecuteAction, tt.args)
			if !isErr || !strings.Contains(text, tt.want) {
				t.Errorf("expected error containing %q, got %q (error=%v)", tt.want, text, isErr)
			}
		})
	}
}

func TestRunScenario_RecordsRun(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })

	ts := newTestServer(t, writeConfig(t, testConfig), 0, WithStore(st))
	login := &drivertest.Element{IDValue: "el-1"}
	ts.sess.Elements[drivertest.Key(model.StrategyID, "btn_login")] = login

	text, isErr := call(t, ts.handleRunScenario, map[string]interface{}{"scenario": "tap login", "max_steps": float64(3)})
	if isErr {
		t.Fatalf("unexpected error: %s", text)
	}
	if !strings.Contains(text, "tap(node_index=1)") || !strings.Contains(text, "run_id:") {
		t.Errorf("unexpected result: %s", text)
	}
	if login.Clicks != 1 {
		t.Errorf("expected one click, got %d", login.Clicks)
	}

	runs, err := st.Recent(context.Background(), 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].Request != "tap login" || runs[0].Device != "emulator-5554" || runs[0].Status != store.StatusOK {
		t.Fatalf("unexpected stored runs: %+v", runs)
	}

	text, isErr = call(t, ts.handleRunHistory, map[string]interface{}{"limit": float64(5)})
	if isErr || !strings.Contains(text, "count: 1") || !strings.Contains(text, "tap login") {
		t.Errorf("unexpected history: %s", text)
	}
}

func TestRunScenario_FailureCarriesLedger(t *testing.T) {
	ts := newTestServer(t, writeConfig(t, testConfig), 0)
	ts.sess.Elements[drivertest.Key(model.StrategyID, "btn_login")] = &drivertest.Element{ClickErr: errors.New("stale element")}

	text, isErr := call(t, ts.handleRunScenario, map[string]interface{}{"scenario": "tap login"})
	if !isErr {
		t.Fatalf("expected tool error, got %s", text)
	}
	if !strings.Contains(text, "ok: false") || !strings.Contains(text, "stale element") {
		t.Errorf("failure should carry the partial ledger: %s", text)
	}
}

func TestRunScenario_RequiresScenario(t *testing.T) {
	ts := newTestServer(t, writeConfig(t, testConfig), 0)
	if text, isErr := call(t, ts.handleRunScenario, nil); !isErr || !strings.Contains(text, "scenario is required") {
		t.Errorf("unexpected result: %q", text)
	}
}

func TestRunHistory_Disabled(t *testing.T) {
	ts := newTestServer(t, writeConfig(t, testConfig), 0)
	if text, isErr := call(t, ts.handleRunHistory, nil); !isErr || !strings.Contains(text, "disabled") {
		t.Errorf("unexpected result: %q", text)
	}
}

func TestConfigChange_RebuildsBridge(t *testing.T) {
	path := writeConfig(t, testConfig)
	ts := newTestServer(t, path, 0)
	call(t, ts.handleGetScreenElements, nil)

	same, err := config.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	ts.onConfigChange(same)
	call(t, ts.handleGetScreenElements, nil)
	if ts.connects != 1 {
		t.Fatalf("unchanged config should keep the session, connected %d times", ts.connects)
	}

	changed := same
	changed.Loop.MaxTurns = 7
	ts.onConfigChange(changed)
	call(t, ts.handleGetScreenElements, nil)
	if ts.connects != 2 {
		t.Errorf("changed config should reconnect, connected %d times", ts.connects)
	}
}

func TestListDevices(t *testing.T) {
	adb := fakeADB(map[string]string{
		"devices -l": "List of devices attached\nemulator-5554 device model:sdk_gphone64\nR58M offline\n",
		"-s emulator-5554 shell getprop ro.product.manufacturer":  "Google\n",
		"-s emulator-5554 shell getprop ro.product.model":         "sdk_gphone64\n",
		"-s emulator-5554 shell getprop ro.build.version.release": "14\n",
	})
	ts := newTestServer(t, writeConfig(t, testConfig), 0, WithADB(adb))

	text, isErr := call(t, ts.handleListDevices, nil)
	if isErr {
		t.Fatalf("unexpected error: %s", text)
	}
	for _, want := range []string{"count: 2", "emulator-5554", "manufacturer: Google", "android_version: \"14\"", "R58M"} {
		if !strings.Contains(text, want) {
			t.Errorf("result should contain %q:\n%s", want, text)
		}
	}
}

func TestListDevices_None(t *testing.T) {
	adb := fakeADB(map[string]string{"devices -l": "List of devices attached\n\n"})
	ts := newTestServer(t, writeConfig(t, testConfig), 0, WithADB(adb))
	text, isErr := call(t, ts.handleListDevices, nil)
	if isErr || !strings.Contains(text, "no Android devices found") {
		t.Errorf("unexpected result: %q", text)
	}
}

func appiumStub(t *testing.T) int {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"value":{"ready":true}}`))
	}))
	t.Cleanup(srv.Close)
	_, port, _ := net.SplitHostPort(srv.Listener.Addr().String())
	p, _ := strconv.Atoi(port)
	return p
}

func TestSetup_WritesConfigAndConnects(t *testing.T) {
	port := appiumStub(t)
	adb := fakeADB(map[string]string{
		"devices -l": "List of devices attached\nemulator-5554 device model:sdk_gphone64\n",
		"-s emulator-5554 shell getprop ro.product.manufacturer":  "Google\n",
		"-s emulator-5554 shell getprop ro.product.model":         "Pixel 7\n",
		"-s emulator-5554 shell getprop ro.build.version.release": "14\n",
	})
	path := filepath.Join(t.TempDir(), "config", "appium.yaml")
	ts := newTestServer(t, path, 0, WithADB(adb))

	text, isErr := call(t, ts.handleSetupConnection, map[string]interface{}{"port": float64(port)})
	if isErr {
		t.Fatalf("unexpected error: %s", text)
	}
	if !strings.Contains(text, "server: already_running") || !strings.Contains(text, "session: session-1") {
		t.Errorf("unexpected result: %s", text)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.UDID() != "emulator-5554" || cfg.Capabilities["deviceName"] != "Pixel 7" || cfg.PlatformName() != "Android" {
		t.Errorf("unexpected capabilities: %v", cfg.Capabilities)
	}
	if cfg.ServerURL != "http://127.0.0.1:"+strconv.Itoa(port) || cfg.Appium.Port != port {
		t.Errorf("unexpected server: %s port %d", cfg.ServerURL, cfg.Appium.Port)
	}

	call(t, ts.handleGetScreenElements, nil)
	if ts.connects != 1 {
		t.Errorf("setup session should be reused, connected %d times", ts.connects)
	}
}

func TestSetup_NoDevice(t *testing.T) {
	port := appiumStub(t)
	adb := fakeADB(map[string]string{"devices -l": "List of devices attached\nR58M unauthorized\n"})
	ts := newTestServer(t, filepath.Join(t.TempDir(), "appium.yaml"), 0, WithADB(adb))

	text, isErr := call(t, ts.handleSetupConnection, map[string]interface{}{"port": float64(port)})
	if !isErr || !strings.Contains(text, "no Android devices found") {
		t.Errorf("unexpected result: %q", text)
	}
}

func TestStartServer_AlreadyRunning(t *testing.T) {
	port := appiumStub(t)
	ts := newTestServer(t, writeConfig(t, testConfig), 0)
	text, isErr := call(t, ts.handleStartServer, map[string]interface{}{"port": float64(port)})
	if isErr || !strings.Contains(text, "status: already_running") {
		t.Errorf("unexpected result: %q", text)
	}
}

func TestStopServer_NotRunning(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	_, port, _ := net.SplitHostPort(l.Addr().String())
	l.Close()
	p, _ := strconv.Atoi(port)

	mgr := appium.NewManager(config.AppiumConfig{Host: "127.0.0.1", Port: p})
	ts := newTestServer(t, writeConfig(t, testConfig), 0, WithAppium(mgr))
	text, isErr := call(t, ts.handleStopServer, nil)
	if isErr || !strings.Contains(text, "status: not_running") {
		t.Errorf("unexpected result: %q", text)
	}
}

func TestStopServer_NotOwned(t *testing.T) {
	port := appiumStub(t)
	mgr := appium.NewManager(config.AppiumConfig{Host: "127.0.0.1", Port: port})
	ts := newTestServer(t, writeConfig(t, testConfig), 0, WithAppium(mgr))
	text, isErr := call(t, ts.handleStopServer, nil)
	if !isErr || !strings.Contains(text, "not started by this process") {
		t.Errorf("unexpected result: %q", text)
	}
}
