// Package prompt assembles the planning request sent to a planner.
package prompt

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/supremehyo/appium-mcp-claude-android/internal/model"
	"github.com/supremehyo/appium-mcp-claude-android/internal/snapshot"
	"gopkg.in/yaml.v3"
)

// DefaultNodeLimit is how many nodes the planner sees when no limit is set.
const DefaultNodeLimit = 40

// RequestMarker precedes the raw user request in every built prompt.
const RequestMarker = "User request:"

var requestMarkerPattern = regexp.MustCompile(`(?i)` + regexp.QuoteMeta(RequestMarker))

const template = `You are an expert Appium test agent that works in iterative steps.
Each turn you receive:
1. Device/app configuration details.
2. Snapshot of the current UI nodes (each line is indexed; refer to them via ` + "`locator.strategy=\"node_index\"`" + ` and provide the matching index).
3. The original natural language request from the user.
4. Execution history from previous steps (if any).

Return a valid JSON object:
{
  "thought": "<short reasoning>",
  "actions": [
     {
        "name": "tap" | "input_text" | "wait" | "swipe" | "assert_text" | "long_press" | "back" | "hide_keyboard" | "scroll_down" | "scroll_up",
        "locator": {"strategy": "node_index|id|accessibility_id|xpath|android_uiautomator|ios_predicate|class_name|text|coordinates", "value": "<locator value>"},
        "value": "<text for input/assertion or 'x,y' coordinates>",
        "metadata": {"duration_ms": <duration in milliseconds for long_press or swipe>, "end": "<x,y end coordinates for swipe>"}
     }
  ],
  "request_refresh": true | false
}

Guidelines:
- Prefer ` + "`node_index`" + ` whenever the target exists in the node list; fallback to other strategies only if necessary.
- Keep actions deterministic and directly related to fulfilling the request. At most 3 actions per response.
- Set ` + "`request_refresh=true`" + ` when more steps are needed after executing these actions; otherwise false when the goal is complete.
- Use ` + "`assert_text`" + ` to validate expected results, and ` + "`wait`" + ` only when essential (value in seconds).

Configuration:
%s

Current UI nodes (limit=%d):
%s

Execution history (latest first):
%s

` + RequestMarker + `
%s
`

// DeviceContext is the device/app configuration embedded in every prompt.
type DeviceContext struct {
	Platform    string `yaml:"platform"`
	Automation  string `yaml:"automation"`
	DeviceName  string `yaml:"device_name,omitempty"`
	AppPackage  string `yaml:"app_package,omitempty"`
	AppActivity string `yaml:"app_activity,omitempty"`
	BundleID    string `yaml:"bundle_id,omitempty"`
}

// ContextFromCapabilities picks the prompt-relevant fields out of a driver
// capability set. Keys may carry the "appium:" vendor prefix.
func ContextFromCapabilities(caps map[string]interface{}) DeviceContext {
	get := func(key string) string {
		for _, k := range []string{key, "appium:" + key} {
			if v, ok := caps[k]; ok && v != nil {
				return fmt.Sprintf("%v", v)
			}
		}
		return ""
	}
	return DeviceContext{
		Platform:    get("platformName"),
		Automation:  get("automationName"),
		DeviceName:  get("deviceName"),
		AppPackage:  get("appPackage"),
		AppActivity: get("appActivity"),
		BundleID:    get("bundleId"),
	}
}

// Builder renders planning prompts.
type Builder struct {
	Device    DeviceContext
	NodeLimit int
}

// NewBuilder returns a builder with the default node limit when limit <= 0.
func NewBuilder(device DeviceContext, limit int) *Builder {
	if limit <= 0 {
		limit = DefaultNodeLimit
	}
	return &Builder{Device: device, NodeLimit: limit}
}

// Build renders the prompt. Only the first NodeLimit nodes are listed; the
// history and request are embedded verbatim.
func (b *Builder) Build(request string, nodes []model.NodeSnapshot, history string) string {
	limit := b.NodeLimit
	if limit <= 0 {
		limit = DefaultNodeLimit
	}

	nodeText := snapshot.Summarize(nodes, limit)
	if nodeText == "" {
		nodeText = "<no nodes available>"
	}
	if history == "" {
		history = "<empty>"
	}
	return fmt.Sprintf(template, b.configText(), limit, nodeText, history, request)
}

func (b *Builder) configText() string {
	out, err := yaml.Marshal(b.Device)
	if err != nil {
		return fmt.Sprintf("%+v", b.Device)
	}
	return strings.TrimRight(string(out), "\n")
}

// ExtractRequest returns the user request embedded in a built prompt: the
// text after the last request marker, matched case-insensitively. Payloads
// without a marker are returned trimmed.
func ExtractRequest(payload string) string {
	found := requestMarkerPattern.FindAllStringIndex(payload, -1)
	if len(found) == 0 {
		return strings.TrimSpace(payload)
	}
	return strings.TrimSpace(payload[found[len(found)-1][1]:])
}
