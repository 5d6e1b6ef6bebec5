package model

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

var filterFixture = Indexed([]NodeSnapshot{
	{ClassName: "android.widget.FrameLayout", Bounds: Bounds{0, 0, 1080, 2400}},
	{Text: "Username", ResourceID: "com.app:id/username", ClassName: "android.widget.EditText", Bounds: Bounds{40, 300, 1040, 400}},
	{Text: "Login", ResourceID: "com.app:id/btn_login", ClassName: "android.widget.Button", Bounds: Bounds{40, 500, 1040, 600}},
	{ContentDesc: "Help", ClassName: "android.widget.ImageButton", Bounds: Bounds{980, 40, 1060, 120}},
	{Text: "Terms of service", ClassName: "android.widget.TextView", Bounds: Bounds{40, 2200, 1040, 2260}},
})

func indexesOf(nodes []IndexedNode) []int {
	out := make([]int, len(nodes))
	for i, n := range nodes {
		out[i] = n.Index
	}
	return out
}

func TestFilterNodes(t *testing.T) {
	tests := []struct {
		name   string
		filter NodeFilter
		want   []int
	}{
		{"no filter", NodeFilter{}, []int{1, 2, 3, 4, 5}},
		{"role", NodeFilter{Roles: []string{"btn"}}, []int{3, 4}},
		{"meta role", NodeFilter{Roles: []string{"interactive"}}, []int{2, 3, 4}},
		{"text matches label", NodeFilter{Text: "login"}, []int{3}},
		{"text matches description", NodeFilter{Text: "HELP"}, []int{4}},
		{"text matches resource id", NodeFilter{Text: "id/username"}, []int{2}},
		{"bbox", NodeFilter{BBox: &Bounds{0, 0, 1080, 450}}, []int{1, 2, 4}},
		{"combined", NodeFilter{Roles: []string{"btn"}, BBox: &Bounds{0, 0, 1080, 450}}, []int{4}},
		{"nothing matches", NodeFilter{Text: "checkout"}, []int{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := indexesOf(FilterNodes(filterFixture, tt.filter))
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("FilterNodes mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestBoundsIntersect(t *testing.T) {
	tests := []struct {
		name string
		a, b Bounds
		want bool
	}{
		{"overlapping", Bounds{0, 0, 100, 100}, Bounds{50, 50, 150, 150}, true},
		{"adjacent_no_overlap", Bounds{0, 0, 100, 100}, Bounds{100, 0, 200, 100}, false},
		{"contained", Bounds{0, 0, 200, 200}, Bounds{50, 50, 60, 60}, true},
		{"no_overlap", Bounds{0, 0, 10, 10}, Bounds{20, 20, 30, 30}, false},
		{"unknown bounds", Bounds{}, Bounds{0, 0, 10, 10}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := boundsIntersect(tt.a, tt.b)
			if got != tt.want {
				t.Errorf("boundsIntersect(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}
