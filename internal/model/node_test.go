package model

import "testing"

func TestBounds_CenterUnknown(t *testing.T) {
	if _, ok := (Bounds{}).Center(); ok {
		t.Error("all-zero bounds should have no center")
	}
	p, ok := Bounds{0, 100, 200, 300}.Center()
	if !ok || p != (Point{X: 100, Y: 200}) {
		t.Errorf("center: got %v ok=%v, want 100,200", p, ok)
	}
}

func TestPreferredLocator_Priority(t *testing.T) {
	tests := []struct {
		name string
		node NodeSnapshot
		want Locator
		ok   bool
	}{
		{"resource id wins", NodeSnapshot{Text: "Login", ContentDesc: "login", ResourceID: "btn_login"}, Locator{StrategyID, "btn_login"}, true},
		{"description before text", NodeSnapshot{Text: "Login", ContentDesc: "login"}, Locator{StrategyAccessibilityID, "login"}, true},
		{"text last", NodeSnapshot{Text: "Login"}, Locator{StrategyText, "Login"}, true},
		{"nothing", NodeSnapshot{ClassName: "android.view.View"}, Locator{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.node.PreferredLocator()
			if ok != tt.ok || got != tt.want {
				t.Errorf("got %v ok=%v, want %v ok=%v", got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestPromptLine(t *testing.T) {
	n := NodeSnapshot{Text: "Submit", ResourceID: "btn_submit", ClassName: "android.widget.Button", Bounds: Bounds{0, 0, 540, 100}}
	want := "3. text='Submit' desc='-' id='btn_submit' class='android.widget.Button' bounds=(0, 0, 540, 100)"
	if got := n.PromptLine(3); got != want {
		t.Errorf("got  %q\nwant %q", got, want)
	}

	empty := NodeSnapshot{ClassName: "android.view.View"}
	want = "1. text='<empty>' desc='-' id='-' class='android.view.View' bounds=(0, 0, 0, 0)"
	if got := empty.PromptLine(1); got != want {
		t.Errorf("got  %q\nwant %q", got, want)
	}

	descOnly := NodeSnapshot{ContentDesc: "Back"}
	if got := descOnly.PromptLine(2); got != "2. text='Back' desc='Back' id='-' class='' bounds=(0, 0, 0, 0)" {
		t.Errorf("description should stand in for text, got %q", got)
	}
}

func TestNodeAt(t *testing.T) {
	nodes := []NodeSnapshot{{Text: "a"}, {Text: "b"}}
	for _, idx := range []int{0, -1, 3} {
		if _, ok := NodeAt(nodes, idx); ok {
			t.Errorf("index %d should be out of range", idx)
		}
	}
	if n, ok := NodeAt(nodes, 2); !ok || n.Text != "b" {
		t.Errorf("index 2: got %v ok=%v", n, ok)
	}
}

func TestIndexed_OneBased(t *testing.T) {
	got := Indexed([]NodeSnapshot{{Text: "a"}, {Text: "b"}, {Text: "c"}})
	for i, n := range got {
		if n.Index != i+1 {
			t.Errorf("position %d has index %d", i, n.Index)
		}
	}
}
