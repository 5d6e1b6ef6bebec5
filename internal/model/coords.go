package model

import (
	"fmt"
	"strconv"
	"strings"
)

// Point is a screen coordinate in pixels.
type Point struct {
	X int `yaml:"x" json:"x"`
	Y int `yaml:"y" json:"y"`
}

func (p Point) String() string {
	return fmt.Sprintf("%d,%d", p.X, p.Y)
}

// ParseCoordinates reads a coordinate pair from "x,y", "x y" or a two-element
// numeric array. Anything with fewer than two parseable integers yields ok=false.
func ParseCoordinates(raw interface{}) (Point, bool) {
	switch v := raw.(type) {
	case nil:
		return Point{}, false
	case Point:
		return v, true
	case *Point:
		if v == nil {
			return Point{}, false
		}
		return *v, true
	case string:
		return parseCoordinateString(v)
	case []int:
		if len(v) < 2 {
			return Point{}, false
		}
		return Point{X: v[0], Y: v[1]}, true
	case []float64:
		if len(v) < 2 {
			return Point{}, false
		}
		return Point{X: int(v[0]), Y: int(v[1])}, true
	case []interface{}:
		if len(v) < 2 {
			return Point{}, false
		}
		x, okX := toInt(v[0])
		y, okY := toInt(v[1])
		if !okX || !okY {
			return Point{}, false
		}
		return Point{X: x, Y: y}, true
	}
	return Point{}, false
}

func parseCoordinateString(s string) (Point, bool) {
	fields := strings.Fields(strings.ReplaceAll(s, ",", " "))
	if len(fields) < 2 {
		return Point{}, false
	}
	nums := make([]int, 0, len(fields))
	for _, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil {
			return Point{}, false
		}
		nums = append(nums, n)
	}
	return Point{X: nums[0], Y: nums[1]}, true
}

func toInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		return i, err == nil
	}
	return 0, false
}

// ParseSeconds reads a wait duration in seconds. Missing, invalid or
// non-positive values yield def.
func ParseSeconds(raw interface{}, def float64) float64 {
	var secs float64
	switch v := raw.(type) {
	case float64:
		secs = v
	case int:
		secs = float64(v)
	case int64:
		secs = float64(v)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return def
		}
		secs = f
	default:
		return def
	}
	if secs <= 0 {
		return def
	}
	return secs
}
