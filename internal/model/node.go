package model

import "fmt"

// Bounds is a screen rectangle as [left, top, right, bottom] in pixels.
// The all-zero value means the bounds are unknown, not a zero-area box at the origin.
type Bounds [4]int

// IsZero reports whether the bounds are unknown.
func (b Bounds) IsZero() bool {
	return b == Bounds{}
}

// Center returns the midpoint of the rectangle. ok is false for unknown bounds.
func (b Bounds) Center() (p Point, ok bool) {
	if b.IsZero() {
		return Point{}, false
	}
	return Point{X: (b[0] + b[2]) / 2, Y: (b[1] + b[3]) / 2}, true
}

// String renders the bounds in tuple form, e.g. "(0, 0, 540, 100)".
func (b Bounds) String() string {
	return fmt.Sprintf("(%d, %d, %d, %d)", b[0], b[1], b[2], b[3])
}

// NodeSnapshot is one UI element observation from a single snapshot.
type NodeSnapshot struct {
	Text        string `yaml:"text"         json:"text"`
	ContentDesc string `yaml:"content_desc" json:"content_desc"`
	ResourceID  string `yaml:"resource_id"  json:"resource_id"`
	ClassName   string `yaml:"class_name"   json:"class_name"`
	Package     string `yaml:"package,omitempty" json:"package,omitempty"`
	Bounds      Bounds `yaml:"bounds,flow"  json:"bounds"`
}

// PreferredLocator derives a driver-findable locator for the node:
// resource id, then content description, then literal text.
func (n NodeSnapshot) PreferredLocator() (Locator, bool) {
	switch {
	case n.ResourceID != "":
		return Locator{Strategy: StrategyID, Value: n.ResourceID}, true
	case n.ContentDesc != "":
		return Locator{Strategy: StrategyAccessibilityID, Value: n.ContentDesc}, true
	case n.Text != "":
		return Locator{Strategy: StrategyText, Value: n.Text}, true
	}
	return Locator{}, false
}

// Label is the node's human-facing label: text, falling back to description.
func (n NodeSnapshot) Label() string {
	if n.Text != "" {
		return n.Text
	}
	return n.ContentDesc
}

// PromptLine renders the node as one index-anchored summary line.
func (n NodeSnapshot) PromptLine(index int) string {
	text := n.Label()
	if text == "" {
		text = "<empty>"
	}
	return fmt.Sprintf("%d. text='%s' desc='%s' id='%s' class='%s' bounds=%s",
		index, text, orDash(n.ContentDesc), orDash(n.ResourceID), n.ClassName, n.Bounds)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// IndexedNode pairs a node with its 1-based position in a snapshot.
type IndexedNode struct {
	Index        int `yaml:"index" json:"index"`
	NodeSnapshot `yaml:",inline"`
}

// Indexed numbers nodes from 1 in snapshot order.
func Indexed(nodes []NodeSnapshot) []IndexedNode {
	out := make([]IndexedNode, len(nodes))
	for i, n := range nodes {
		out[i] = IndexedNode{Index: i + 1, NodeSnapshot: n}
	}
	return out
}

// NodeAt returns the node referenced by a 1-based index. Out-of-range
// indices return ok=false.
func NodeAt(nodes []NodeSnapshot, index int) (NodeSnapshot, bool) {
	if index <= 0 || index > len(nodes) {
		return NodeSnapshot{}, false
	}
	return nodes[index-1], true
}
