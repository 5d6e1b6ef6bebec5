package driver

import (
	"time"

	"github.com/supremehyo/appium-mcp-claude-android/internal/model"
)

// StepKind is one primitive of a single-finger touch sequence.
type StepKind string

const (
	StepMove  StepKind = "pointerMove"
	StepDown  StepKind = "pointerDown"
	StepPause StepKind = "pause"
	StepUp    StepKind = "pointerUp"
)

// Step is one primitive. X and Y apply to moves; Duration to moves and pauses.
type Step struct {
	Kind     StepKind
	X, Y     int
	Duration time.Duration
}

// Gesture is an ordered single-finger touch sequence.
type Gesture []Step

// DragMoveDuration is how long the finger travels during a drag.
const DragMoveDuration = 250 * time.Millisecond

// Tap is press-and-release at p.
func Tap(p model.Point) Gesture {
	return Gesture{
		{Kind: StepMove, X: p.X, Y: p.Y},
		{Kind: StepDown},
		{Kind: StepUp},
	}
}

// Press holds at p for hold before releasing.
func Press(p model.Point, hold time.Duration) Gesture {
	return Gesture{
		{Kind: StepMove, X: p.X, Y: p.Y},
		{Kind: StepDown},
		{Kind: StepPause, Duration: hold},
		{Kind: StepUp},
	}
}

// Drag presses at from, holds, moves to to and releases.
func Drag(from, to model.Point, hold time.Duration) Gesture {
	return Gesture{
		{Kind: StepMove, X: from.X, Y: from.Y},
		{Kind: StepDown},
		{Kind: StepPause, Duration: hold},
		{Kind: StepMove, X: to.X, Y: to.Y, Duration: DragMoveDuration},
		{Kind: StepUp},
	}
}

// w3cActions renders the gesture as a W3C actions payload for one touch pointer.
func (g Gesture) w3cActions() map[string]interface{} {
	steps := make([]map[string]interface{}, 0, len(g))
	for _, s := range g {
		switch s.Kind {
		case StepMove:
			steps = append(steps, map[string]interface{}{
				"type":     string(StepMove),
				"duration": s.Duration.Milliseconds(),
				"x":        s.X,
				"y":        s.Y,
				"origin":   "viewport",
			})
		case StepDown, StepUp:
			steps = append(steps, map[string]interface{}{"type": string(s.Kind), "button": 0})
		case StepPause:
			steps = append(steps, map[string]interface{}{"type": string(StepPause), "duration": s.Duration.Milliseconds()})
		}
	}
	return map[string]interface{}{
		"actions": []interface{}{
			map[string]interface{}{
				"type":       "pointer",
				"id":         "finger1",
				"parameters": map[string]interface{}{"pointerType": "touch"},
				"actions":    steps,
			},
		},
	}
}
