package model

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestMapRole_KnownRoles(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"android.widget.Button", "btn"},
		{"android.widget.ImageButton", "btn"},
		{"com.google.android.material.button.MaterialButton", "btn"},
		{"android.widget.TextView", "txt"},
		{"android.widget.ImageView", "img"},
		{"android.widget.EditText", "input"},
		{"XCUIElementTypeSecureTextField", "input"},
		{"android.widget.CheckBox", "chk"},
		{"android.widget.Switch", "toggle"},
		{"android.widget.RadioButton", "radio"},
		{"androidx.recyclerview.widget.RecyclerView", "list"},
		{"android.widget.ScrollView", "scroll"},
		{"android.webkit.WebView", "web"},
		{"android.widget.FrameLayout", "group"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := MapRole(tt.input)
			if got != tt.want {
				t.Errorf("MapRole(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestMapRole_UnknownFallback(t *testing.T) {
	unknowns := []string{"android.widget.SeekBar", "android.view.View", "SomethingElse", ""}
	for _, class := range unknowns {
		got := MapRole(class)
		if got != "other" {
			t.Errorf("MapRole(%q) = %q, want %q", class, got, "other")
		}
	}
}

func TestExpandRoles(t *testing.T) {
	got := ExpandRoles([]string{"txt", "interactive", "btn"})
	want := []string{"txt", "btn", "input", "chk", "toggle", "radio", "menu", "tab"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ExpandRoles mismatch (-want +got):\n%s", diff)
	}
}
