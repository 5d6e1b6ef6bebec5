package prompt

import (
	"strings"
	"testing"

	"github.com/supremehyo/appium-mcp-claude-android/internal/model"
)

func TestBuild_EmbedsSections(t *testing.T) {
	b := NewBuilder(DeviceContext{Platform: "Android", Automation: "UiAutomator2", AppPackage: "com.example"}, 0)
	nodes := []model.NodeSnapshot{
		{Text: "Login", ResourceID: "btn_login", ClassName: "android.widget.Button", Bounds: model.Bounds{0, 0, 100, 50}},
		{ContentDesc: "Back", ClassName: "android.widget.ImageButton"},
	}
	out := b.Build("log in as alice", nodes, "ok:tap(node_index=1)")

	for _, want := range []string{
		"platform: Android",
		"app_package: com.example",
		"Current UI nodes (limit=40):",
		"1. text='Login' desc='-' id='btn_login' class='android.widget.Button' bounds=(0, 0, 100, 50)",
		"2. text='Back' desc='Back' id='-' class='android.widget.ImageButton' bounds=(0, 0, 0, 0)",
		"Execution history (latest first):\nok:tap(node_index=1)",
		"User request:\nlog in as alice\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("prompt missing %q\n%s", want, out)
		}
	}
}

func TestBuild_Placeholders(t *testing.T) {
	out := NewBuilder(DeviceContext{}, 10).Build("anything", nil, "")
	if !strings.Contains(out, "<no nodes available>") {
		t.Error("empty node list should render a placeholder")
	}
	if !strings.Contains(out, "Execution history (latest first):\n<empty>") {
		t.Error("empty history should render a placeholder")
	}
}

func TestBuild_TruncatesNodes(t *testing.T) {
	nodes := make([]model.NodeSnapshot, 5)
	for i := range nodes {
		nodes[i] = model.NodeSnapshot{Text: string(rune('a' + i))}
	}
	out := NewBuilder(DeviceContext{}, 3).Build("x", nodes, "")
	if !strings.Contains(out, "3. text='c'") {
		t.Error("third node should be listed")
	}
	if strings.Contains(out, "4. text='d'") {
		t.Error("nodes past the limit must not be listed")
	}
}

func TestExtractRequest(t *testing.T) {
	out := NewBuilder(DeviceContext{}, 0).Build("click submit", nil, "")
	if got := ExtractRequest(out); got != "click submit" {
		t.Errorf("got %q", got)
	}
	if got := ExtractRequest("  tap login "); got != "tap login" {
		t.Errorf("bare request: got %q", got)
	}
	if got := ExtractRequest("USER REQUEST: open menu"); got != "open menu" {
		t.Errorf("case-insensitive marker: got %q", got)
	}
}

func TestContextFromCapabilities(t *testing.T) {
	ctx := ContextFromCapabilities(map[string]interface{}{
		"platformName":          "Android",
		"appium:automationName": "UiAutomator2",
		"appium:appPackage":     "com.example",
	})
	if ctx.Platform != "Android" || ctx.Automation != "UiAutomator2" || ctx.AppPackage != "com.example" {
		t.Errorf("unexpected context %+v", ctx)
	}
}
