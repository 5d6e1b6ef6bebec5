package planner

import (
	"context"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/supremehyo/appium-mcp-claude-android/internal/logging"
	"github.com/supremehyo/appium-mcp-claude-android/internal/model"
	"github.com/supremehyo/appium-mcp-claude-android/internal/prompt"
)

// Scoring weights.
const (
	scorePhrase      = 100
	scoreTextWord    = 10
	scoreDescWord    = 8
	scoreIDWord      = 5
	scoreShortText   = 5
	shortTextMaxRune = 20
)

var stopWords = map[string]bool{
	// Korean particles and filler verbs
	"를": true, "을": true, "에": true, "에서": true, "의": true, "로": true, "으로": true,
	"과": true, "와": true, "이": true, "가": true, "은": true, "는": true,
	"현재": true, "화면": true, "버튼": true, "클릭": true, "눌러": true, "눌러줘": true,
	"해줘": true, "주세요": true, "수": true, "있습니다": true,
	// English fillers
	"the": true, "a": true, "an": true, "on": true, "to": true, "button": true,
	"click": true, "tap": true, "please": true, "screen": true,
}

// Particles stripped from keywords before matching.
var particles = []string{"을", "를", "에서"}

var inputCues = []string{"입력", "input", "type", "enter"}

// Heuristic scores snapshot nodes against the words of the request. It is
// single-shot: plans never ask for another turn.
type Heuristic struct {
	NodeLimit int
	log       zerolog.Logger
}

// NewHeuristic returns a heuristic planner that looks at the first nodeLimit
// nodes (all nodes when nodeLimit <= 0).
func NewHeuristic(nodeLimit int) *Heuristic {
	return &Heuristic{NodeLimit: nodeLimit, log: logging.For("planner")}
}

// Plan picks the best scoring node and taps it, or types into it when the
// request carries an input cue.
func (h *Heuristic) Plan(_ context.Context, req Request) (model.PlanResponse, error) {
	request := req.UserRequest
	if request == "" {
		request = prompt.ExtractRequest(req.Prompt)
	}
	request = strings.ToLower(request)

	nodes := req.Nodes
	if h.NodeLimit > 0 && len(nodes) > h.NodeLimit {
		nodes = nodes[:h.NodeLimit]
	}

	resp := model.PlanResponse{Thought: "heuristic match", Continue: false}
	if len(nodes) == 0 {
		h.log.Warn().Msg("no screen elements available")
		resp.Actions = []model.PlannedAction{noop("no nodes")}
		return resp, nil
	}

	keywords := Keywords(request)
	h.log.Debug().Strs("keywords", keywords).Int("nodes", len(nodes)).Msg("scoring nodes")

	index, score := BestMatch(nodes, keywords)
	if index == 0 {
		h.log.Warn().Strs("keywords", keywords).Msg("no matching element")
		resp.Actions = []model.PlannedAction{noop("no match found")}
		return resp, nil
	}

	target := nodes[index-1]
	h.log.Info().
		Int("index", index).
		Int("score", score).
		Str("text", target.Text).
		Str("resource_id", target.ResourceID).
		Msg("matched element")

	locator := &model.Locator{Strategy: model.StrategyNodeIndex, Value: strconv.Itoa(index)}
	if hasInputCue(request) {
		resp.Actions = []model.PlannedAction{{
			Name:     model.ActionInputText.String(),
			Locator:  locator,
			Value:    "",
			Metadata: map[string]interface{}{model.MetaReason: "input field matched"},
		}}
		return resp, nil
	}
	resp.Actions = []model.PlannedAction{{
		Name:     model.ActionTap.String(),
		Locator:  locator,
		Metadata: map[string]interface{}{model.MetaReason: "keyword matched"},
	}}
	return resp, nil
}

func noop(reason string) model.PlannedAction {
	return model.PlannedAction{Name: "noop", Metadata: map[string]interface{}{model.MetaReason: reason}}
}

// Keywords splits a lowercased request into searchable words, dropping stop
// words and single-rune words.
func Keywords(request string) []string {
	var out []string
	for _, w := range strings.Fields(request) {
		if stopWords[w] || utf8.RuneCountInString(w) <= 1 {
			continue
		}
		out = append(out, w)
	}
	return out
}

func stripParticles(s string) string {
	for _, p := range particles {
		s = strings.ReplaceAll(s, p, "")
	}
	return s
}

// Score rates one node against the keywords. Nodes with neither text nor
// description score zero.
func Score(n model.NodeSnapshot, keywords []string) int {
	if n.Text == "" && n.ContentDesc == "" {
		return 0
	}
	text := strings.ToLower(n.Text)
	desc := strings.ToLower(n.ContentDesc)
	rid := strings.ToLower(n.ResourceID)

	score := 0
	phrase := strings.TrimSpace(stripParticles(strings.Join(keywords, " ")))
	if phrase != "" && strings.Contains(text, phrase) {
		score += scorePhrase
	}
	for _, kw := range keywords {
		kw = stripParticles(kw)
		if kw == "" {
			continue
		}
		if strings.Contains(text, kw) {
			score += scoreTextWord
		}
		if strings.Contains(desc, kw) {
			score += scoreDescWord
		}
		if strings.Contains(rid, kw) {
			score += scoreIDWord
		}
	}
	if score > 0 && utf8.RuneCountInString(n.Text) < shortTextMaxRune {
		score += scoreShortText
	}
	return score
}

// BestMatch returns the 1-based index and score of the first node with the
// strictly highest positive score, or 0 when nothing scores.
func BestMatch(nodes []model.NodeSnapshot, keywords []string) (index, score int) {
	for i, n := range nodes {
		if s := Score(n, keywords); s > score {
			index, score = i+1, s
		}
	}
	return index, score
}

func hasInputCue(request string) bool {
	for _, cue := range inputCues {
		if strings.Contains(request, cue) {
			return true
		}
	}
	return false
}
