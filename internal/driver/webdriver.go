package driver

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/supremehyo/appium-mcp-claude-android/internal/logging"
	"github.com/tidwall/gjson"
)

// W3C element reference keys; older servers use "ELEMENT".
const (
	w3cElementKey    = "element-6066-11e4-a52e-4f735466cecf"
	legacyElementKey = "ELEMENT"
)

// Capabilities defined by W3C WebDriver. Everything else is sent with the
// "appium:" vendor prefix.
var w3cCapabilities = map[string]bool{
	"platformName":              true,
	"browserName":               true,
	"browserVersion":            true,
	"acceptInsecureCerts":       true,
	"pageLoadStrategy":          true,
	"proxy":                     true,
	"setWindowRect":             true,
	"timeouts":                  true,
	"strictFileInteractability": true,
	"unhandledPromptBehavior":   true,
	"webSocketUrl":              true,
}

var defaultAutomation = map[string]string{
	"android": "UiAutomator2",
	"ios":     "XCUITest",
}

// WebDriver connects to an Appium server over HTTP.
type WebDriver struct {
	client *http.Client
	log    zerolog.Logger
}

// NewWebDriver returns a connector using client, or a client with a
// generous timeout when nil. Session creation can take a minute on a cold
// device.
func NewWebDriver(client *http.Client) *WebDriver {
	if client == nil {
		client = &http.Client{Timeout: 120 * time.Second}
	}
	return &WebDriver{client: client, log: logging.For("driver")}
}

// NormalizeCapabilities validates the platform and prefixes vendor keys.
// Android defaults to UiAutomator2 and iOS to XCUITest when no automation
// name is given.
func NormalizeCapabilities(caps map[string]interface{}) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(caps)+1)
	for k, v := range caps {
		if !w3cCapabilities[k] && !strings.Contains(k, ":") {
			k = "appium:" + k
		}
		out[k] = v
	}

	platform, _ := out["platformName"].(string)
	automation, ok := defaultAutomation[strings.ToLower(platform)]
	if !ok {
		return nil, fmt.Errorf("unsupported platform: %q (use Android or iOS)", platform)
	}
	if _, set := out["appium:automationName"]; !set {
		out["appium:automationName"] = automation
	}
	return out, nil
}

// Connect creates a new session.
func (w *WebDriver) Connect(ctx context.Context, endpoint string, caps map[string]interface{}) (Session, error) {
	normalized, err := NormalizeCapabilities(caps)
	if err != nil {
		return nil, err
	}
	base := strings.TrimSuffix(endpoint, "/")
	body := map[string]interface{}{
		"capabilities": map[string]interface{}{
			"alwaysMatch": normalized,
			"firstMatch":  []interface{}{map[string]interface{}{}},
		},
	}

	raw, err := w.do(ctx, http.MethodPost, base+"/session", body)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	id := gjson.GetBytes(raw, "value.sessionId").String()
	if id == "" {
		id = gjson.GetBytes(raw, "sessionId").String()
	}
	if id == "" {
		return nil, fmt.Errorf("create session: response has no session id")
	}
	w.log.Info().Str("session", id).Str("endpoint", base).Msg("session created")
	return &wdSession{wd: w, id: id, url: base + "/session/" + id}, nil
}

// do sends one request and returns the raw response body. WebDriver error
// payloads are mapped onto the package sentinels.
func (w *WebDriver) do(ctx context.Context, method, url string, body interface{}) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if code := gjson.GetBytes(data, "value.error").String(); code != "" {
			return nil, wireError(code, gjson.GetBytes(data, "value.message").String())
		}
		return data, nil
	}

	code := gjson.GetBytes(data, "value.error").String()
	msg := gjson.GetBytes(data, "value.message").String()
	if code == "" {
		return nil, fmt.Errorf("%s %s: status %d: %s", method, url, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return nil, wireError(code, msg)
}

func wireError(code, msg string) error {
	switch code {
	case "no such element", "stale element reference":
		return fmt.Errorf("%w: %s", ErrNoSuchElement, msg)
	case "invalid session id":
		return fmt.Errorf("%w: %s", ErrNoSession, msg)
	}
	return fmt.Errorf("%s: %s", code, msg)
}

type wdSession struct {
	wd  *WebDriver
	id  string
	url string
}

func (s *wdSession) ID() string { return s.id }

func (s *wdSession) get(ctx context.Context, path string) (gjson.Result, error) {
	data, err := s.wd.do(ctx, http.MethodGet, s.url+path, nil)
	if err != nil {
		return gjson.Result{}, err
	}
	return gjson.GetBytes(data, "value"), nil
}

func (s *wdSession) post(ctx context.Context, path string, body interface{}) (gjson.Result, error) {
	if body == nil {
		body = map[string]interface{}{}
	}
	data, err := s.wd.do(ctx, http.MethodPost, s.url+path, body)
	if err != nil {
		return gjson.Result{}, err
	}
	return gjson.GetBytes(data, "value"), nil
}

func (s *wdSession) IsAlive(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := s.get(ctx, "/timeouts")
	return err == nil
}

func (s *wdSession) Source(ctx context.Context) (string, error) {
	v, err := s.get(ctx, "/source")
	if err != nil {
		return "", fmt.Errorf("page source: %w", err)
	}
	return v.String(), nil
}

func (s *wdSession) Find(ctx context.Context, strategy, value string) (Element, error) {
	using, ok := Using(strategy)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedStrategy, strategy)
	}
	v, err := s.post(ctx, "/element", map[string]string{"using": using, "value": value})
	if err != nil {
		return nil, err
	}
	return s.element(v)
}

func (s *wdSession) ActiveElement(ctx context.Context) (Element, error) {
	v, err := s.get(ctx, "/element/active")
	if err != nil {
		return nil, err
	}
	return s.element(v)
}

func (s *wdSession) element(v gjson.Result) (Element, error) {
	id := v.Get(w3cElementKey).String()
	if id == "" {
		id = v.Get(legacyElementKey).String()
	}
	if id == "" {
		return nil, ErrNoSuchElement
	}
	return &wdElement{s: s, id: id}, nil
}

func (s *wdSession) Perform(ctx context.Context, g Gesture) error {
	if _, err := s.post(ctx, "/actions", g.w3cActions()); err != nil {
		return fmt.Errorf("perform gesture: %w", err)
	}
	return nil
}

func (s *wdSession) WindowSize(ctx context.Context) (int, int, error) {
	v, err := s.get(ctx, "/window/rect")
	if err != nil {
		return 0, 0, fmt.Errorf("window size: %w", err)
	}
	return int(v.Get("width").Int()), int(v.Get("height").Int()), nil
}

func (s *wdSession) HideKeyboard(ctx context.Context) error {
	_, err := s.post(ctx, "/appium/device/hide_keyboard", nil)
	return err
}

func (s *wdSession) IsKeyboardShown(ctx context.Context) (bool, error) {
	v, err := s.get(ctx, "/appium/device/is_keyboard_shown")
	if err != nil {
		return false, err
	}
	return v.Bool(), nil
}

func (s *wdSession) Back(ctx context.Context) error {
	_, err := s.post(ctx, "/back", nil)
	return err
}

func (s *wdSession) Screenshot(ctx context.Context) ([]byte, error) {
	v, err := s.get(ctx, "/screenshot")
	if err != nil {
		return nil, fmt.Errorf("screenshot: %w", err)
	}
	data, err := base64.StdEncoding.DecodeString(v.String())
	if err != nil {
		return nil, fmt.Errorf("decode screenshot: %w", err)
	}
	return data, nil
}

func (s *wdSession) Close(ctx context.Context) error {
	_, err := s.wd.do(ctx, http.MethodDelete, s.url, nil)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	s.wd.log.Info().Str("session", s.id).Msg("session closed")
	return nil
}

type wdElement struct {
	s  *wdSession
	id string
}

func (e *wdElement) ID() string { return e.id }

func (e *wdElement) path(suffix string) string {
	return "/element/" + e.id + suffix
}

func (e *wdElement) Click(ctx context.Context) error {
	_, err := e.s.post(ctx, e.path("/click"), nil)
	return err
}

func (e *wdElement) Clear(ctx context.Context) error {
	_, err := e.s.post(ctx, e.path("/clear"), nil)
	return err
}

func (e *wdElement) SendKeys(ctx context.Context, text string) error {
	chars := make([]string, 0, len(text))
	for _, r := range text {
		chars = append(chars, string(r))
	}
	_, err := e.s.post(ctx, e.path("/value"), map[string]interface{}{"text": text, "value": chars})
	return err
}

func (e *wdElement) Text(ctx context.Context) (string, error) {
	v, err := e.s.get(ctx, e.path("/text"))
	if err != nil {
		return "", err
	}
	return v.String(), nil
}

func (e *wdElement) Rect(ctx context.Context) (Rect, error) {
	v, err := e.s.get(ctx, e.path("/rect"))
	if err != nil {
		return Rect{}, err
	}
	return Rect{
		X:      int(v.Get("x").Int()),
		Y:      int(v.Get("y").Int()),
		Width:  int(v.Get("width").Int()),
		Height: int(v.Get("height").Int()),
	}, nil
}
