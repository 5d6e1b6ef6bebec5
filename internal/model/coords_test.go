package model

import "testing"

func TestParseCoordinates(t *testing.T) {
	want := Point{X: 120, Y: 340}
	accepted := []interface{}{
		"120,340",
		"120 340",
		" 120 , 340 ",
		[]interface{}{float64(120), float64(340)},
		[]int{120, 340},
	}
	for _, raw := range accepted {
		got, ok := ParseCoordinates(raw)
		if !ok || got != want {
			t.Errorf("%#v: got %v ok=%v, want %v", raw, got, ok, want)
		}
	}

	rejected := []interface{}{
		nil,
		"",
		"120",
		"abc,def",
		"120,abc",
		[]interface{}{float64(1)},
		[]interface{}{"x", "y"},
		42,
	}
	for _, raw := range rejected {
		if got, ok := ParseCoordinates(raw); ok {
			t.Errorf("%#v: expected no coordinates, got %v", raw, got)
		}
	}
}

func TestParseSeconds(t *testing.T) {
	tests := []struct {
		raw  interface{}
		want float64
	}{
		{nil, 1.0},
		{"", 1.0},
		{"abc", 1.0},
		{"2.5", 2.5},
		{float64(3), 3},
		{0, 1.0},
	}
	for _, tt := range tests {
		if got := ParseSeconds(tt.raw, 1.0); got != tt.want {
			t.Errorf("%#v: got %v, want %v", tt.raw, got, tt.want)
		}
	}
}
