package model

import "strings"

// NodeFilter narrows a snapshot. Zero fields match everything.
type NodeFilter struct {
	Text  string   // case-insensitive substring of text, content description or resource id
	Roles []string // compact role codes or meta-roles, see MapRole
	BBox  *Bounds  // keep nodes intersecting this rectangle
}

// IsZero reports whether the filter keeps every node.
func (f NodeFilter) IsZero() bool {
	return f.Text == "" && len(f.Roles) == 0 && f.BBox == nil
}

// FilterNodes returns the nodes matching f. Nodes keep their original
// index so it can still be used to target them.
func FilterNodes(nodes []IndexedNode, f NodeFilter) []IndexedNode {
	if f.IsZero() {
		return nodes
	}

	roleSet := make(map[string]bool)
	for _, r := range ExpandRoles(f.Roles) {
		roleSet[r] = true
	}
	textLower := strings.ToLower(f.Text)

	result := []IndexedNode{}
	for _, n := range nodes {
		if len(roleSet) > 0 && !roleSet[MapRole(n.ClassName)] {
			continue
		}
		if f.BBox != nil && !boundsIntersect(n.Bounds, *f.BBox) {
			continue
		}
		if textLower != "" && !textMatchesNode(n.NodeSnapshot, textLower) {
			continue
		}
		result = append(result, n)
	}
	return result
}

func textMatchesNode(n NodeSnapshot, textLower string) bool {
	return strings.Contains(strings.ToLower(n.Text), textLower) ||
		strings.Contains(strings.ToLower(n.ContentDesc), textLower) ||
		strings.Contains(strings.ToLower(n.ResourceID), textLower)
}

// boundsIntersect reports whether two [left, top, right, bottom] rectangles
// overlap. Unknown bounds never intersect.
func boundsIntersect(a, b Bounds) bool {
	if a.IsZero() || b.IsZero() {
		return false
	}
	return a[0] < b[2] && b[0] < a[2] && a[1] < b[3] && b[1] < a[3]
}
