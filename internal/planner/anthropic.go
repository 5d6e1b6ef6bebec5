package planner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/supremehyo/appium-mcp-claude-android/internal/config"
	"github.com/supremehyo/appium-mcp-claude-android/internal/logging"
	"github.com/supremehyo/appium-mcp-claude-android/internal/model"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

const anthropicVersion = "2023-06-01"

// Anthropic asks the Messages API for a plan. Failures are returned as-is;
// retrying is left to the caller.
type Anthropic struct {
	cfg     config.PlannerConfig
	apiKey  string
	client  *http.Client
	limiter *rate.Limiter
	log     zerolog.Logger
}

// NewAnthropic reads the API key from the environment variable named by
// cfg.APIKeyEnv and returns ErrMissingCredential when it is unset.
func NewAnthropic(cfg config.PlannerConfig) (*Anthropic, error) {
	def := config.Default().Planner
	if cfg.APIKeyEnv == "" {
		cfg.APIKeyEnv = def.APIKeyEnv
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = def.Endpoint
	}
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}

	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("%w: %s is not set", ErrMissingCredential, cfg.APIKeyEnv)
	}

	limit := rate.Inf
	if cfg.RequestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(cfg.RequestsPerMinute))
	}

	return &Anthropic{
		cfg:     cfg,
		apiKey:  key,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(limit, 1),
		log:     logging.For("planner"),
	}, nil
}

type messagesRequest struct {
	Model       string            `json:"model"`
	MaxTokens   int               `json:"max_tokens"`
	Temperature float64           `json:"temperature"`
	Messages    []messagesMessage `json:"messages"`
}

type messagesMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Plan submits the prompt and parses the first text block as a plan.
func (a *Anthropic) Plan(ctx context.Context, req Request) (model.PlanResponse, error) {
	timer := logging.Start(a.log, "anthropic_plan")

	if err := a.limiter.Wait(ctx); err != nil {
		timer.End(err)
		return model.PlanResponse{}, fmt.Errorf("rate limit wait: %w", err)
	}

	text, err := a.complete(ctx, req.Prompt)
	if err != nil {
		timer.End(err)
		return model.PlanResponse{}, err
	}

	plan, err := model.ParsePlan([]byte(stripCodeFence(text)))
	timer.End(err)
	if err != nil {
		return model.PlanResponse{}, err
	}
	a.log.Info().Int("actions", len(plan.Actions)).Bool("continue", plan.Continue).Str("thought", plan.Thought).Msg("model produced plan")
	return plan, nil
}

func (a *Anthropic) complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(messagesRequest{
		Model:       a.cfg.Model,
		MaxTokens:   a.cfg.MaxTokens,
		Temperature: a.cfg.Temperature,
		Messages:    []messagesMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := strings.TrimSuffix(a.cfg.Endpoint, "/") + "/v1/messages"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", a.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("planner request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := gjson.GetBytes(data, "error.message").String()
		if msg == "" {
			msg = string(data)
		}
		return "", fmt.Errorf("planner API error (status %d): %s", resp.StatusCode, msg)
	}

	text := gjson.GetBytes(data, `content.#(type=="text").text`)
	if !text.Exists() {
		return "{}", nil
	}
	return text.String(), nil
}

// stripCodeFence removes a surrounding ``` or ```json fence.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = ""
	}
	s = strings.TrimSpace(s)
	return strings.TrimSpace(strings.TrimSuffix(s, "```"))
}
