// Package planner turns an assembled prompt into a structured plan.
//
// Two strategies implement Planner: Heuristic, a deterministic offline
// keyword matcher, and Anthropic, which asks a hosted model. Selection is a
// configuration choice made by New.
package planner

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/supremehyo/appium-mcp-claude-android/internal/config"
	"github.com/supremehyo/appium-mcp-claude-android/internal/model"
)

// ErrMissingCredential is returned when the model strategy has no API key.
var ErrMissingCredential = errors.New("planner: missing API credential")

// Request is everything a planner may look at for one turn.
type Request struct {
	Prompt      string               // fully assembled prompt
	UserRequest string               // raw instruction; derived from Prompt when empty
	Nodes       []model.NodeSnapshot // the snapshot the prompt indices refer to
}

// Planner produces a plan for one turn.
type Planner interface {
	Plan(ctx context.Context, req Request) (model.PlanResponse, error)
}

// Provider names accepted by New.
const (
	ProviderHeuristic = "heuristic"
	ProviderMock      = "mock"
	ProviderAnthropic = "anthropic"
)

// New builds the planner named by cfg.Provider. nodeLimit caps how many
// snapshot nodes the heuristic considers, matching what the prompt lists.
func New(cfg config.PlannerConfig, nodeLimit int) (Planner, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", ProviderHeuristic, ProviderMock:
		return NewHeuristic(nodeLimit), nil
	case ProviderAnthropic:
		return NewAnthropic(cfg)
	default:
		return nil, fmt.Errorf("unsupported planner provider: %s (use heuristic or anthropic)", cfg.Provider)
	}
}
