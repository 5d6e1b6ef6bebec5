// Package snapshot turns UI-tree serializations into flat, ordered node lists.
//
// Two sources are understood: the markup page source returned by the
// automation driver and the line-oriented `dumpsys accessibility` report.
// Parsing never fails; malformed input yields an empty or partial list.
package snapshot

import (
	"encoding/xml"
	"errors"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/supremehyo/appium-mcp-claude-android/internal/model"
)

var (
	boundsPattern = regexp.MustCompile(`\[(\d+),(\d+)\]\[(\d+),(\d+)\]`)
	signedInt     = regexp.MustCompile(`-?\d+`)
)

// ParseTree parses a page-source document. Every element carrying at least
// one attribute becomes a node, in depth-first document order.
func ParseTree(payload string) []model.NodeSnapshot {
	dec := xml.NewDecoder(strings.NewReader(payload))
	dec.Strict = true

	var nodes []model.NodeSnapshot
	depth, roots := 0, 0
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if depth == 0 {
				roots++
				if roots > 1 {
					return nil
				}
			}
			depth++
			if len(t.Attr) == 0 {
				continue
			}
			nodes = append(nodes, nodeFromAttrs(t.Attr))
		case xml.EndElement:
			depth--
		case xml.CharData:
			if depth == 0 && strings.TrimSpace(string(t)) != "" {
				return nil
			}
		}
	}
	if roots == 0 {
		return nil
	}
	return nodes
}

func nodeFromAttrs(attrs []xml.Attr) model.NodeSnapshot {
	get := func(names ...string) string {
		for _, name := range names {
			for _, a := range attrs {
				if a.Name.Local == name && a.Value != "" {
					return a.Value
				}
			}
		}
		return ""
	}
	// Android attribute names first; XCUITest sources use label/name/type.
	return model.NodeSnapshot{
		Text:        get("text", "label"),
		ContentDesc: get("content-desc", "name"),
		ResourceID:  get("resource-id"),
		ClassName:   get("class", "type"),
		Package:     get("package"),
		Bounds:      parseBounds(get("bounds")),
	}
}

// parseBounds extracts "[x1,y1][x2,y2]". A missing or malformed value is the
// unknown (all-zero) rectangle.
func parseBounds(raw string) model.Bounds {
	m := boundsPattern.FindStringSubmatch(raw)
	if m == nil {
		return model.Bounds{}
	}
	var b model.Bounds
	for i := 0; i < 4; i++ {
		n, err := strconv.Atoi(m[i+1])
		if err != nil {
			return model.Bounds{}
		}
		b[i] = n
	}
	return b
}

var dumpBoundaries = []string{"View[", "AccessibilityNodeInfo["}

type dumpField struct {
	prefix string
	set    func(n *model.NodeSnapshot, v string)
}

var dumpFields = []dumpField{
	{"text:", func(n *model.NodeSnapshot, v string) { n.Text = v }},
	{"contentDescription:", func(n *model.NodeSnapshot, v string) { n.ContentDesc = v }},
	{"resourceName:", func(n *model.NodeSnapshot, v string) { n.ResourceID = v }},
	{"className:", func(n *model.NodeSnapshot, v string) { n.ClassName = v }},
	{"packageName:", func(n *model.NodeSnapshot, v string) { n.Package = v }},
}

// ParseDump parses `dumpsys accessibility` output. A node starts at every
// boundary line; the following lines fill its fields by prefix.
func ParseDump(payload string) []model.NodeSnapshot {
	var (
		nodes   []model.NodeSnapshot
		current *model.NodeSnapshot
	)
	for _, line := range strings.Split(payload, "\n") {
		line = strings.TrimSpace(line)
		if hasAnyPrefix(line, dumpBoundaries) {
			if current != nil {
				nodes = append(nodes, *current)
			}
			current = &model.NodeSnapshot{}
			continue
		}
		if current == nil {
			continue
		}
		if strings.HasPrefix(line, "boundsInScreen:") {
			current.Bounds = parseDumpBounds(line)
			continue
		}
		for _, f := range dumpFields {
			if strings.HasPrefix(line, f.prefix) {
				f.set(current, strings.TrimSpace(line[len(f.prefix):]))
				break
			}
		}
	}
	if current != nil {
		nodes = append(nodes, *current)
	}
	return nodes
}

// parseDumpBounds takes the first four signed integers on the line.
func parseDumpBounds(line string) model.Bounds {
	found := signedInt.FindAllString(line, 4)
	if len(found) < 4 {
		return model.Bounds{}
	}
	var b model.Bounds
	for i, s := range found {
		n, err := strconv.Atoi(s)
		if err != nil {
			return model.Bounds{}
		}
		b[i] = n
	}
	return b
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// Summarize renders the first limit nodes as index-anchored prompt lines.
// Indices are 1-based and match positions in nodes.
func Summarize(nodes []model.NodeSnapshot, limit int) string {
	if limit > 0 && len(nodes) > limit {
		nodes = nodes[:limit]
	}
	lines := make([]string, len(nodes))
	for i, n := range nodes {
		lines[i] = n.PromptLine(i + 1)
	}
	return strings.Join(lines, "\n")
}
