package strategy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"connect-arena/internal/game"
)

// ErrRateLimited marks upstream throttling. Callers snooze the match
// instead of burning the move on a fallback.
var ErrRateLimited = errors.New("rate_limited")

type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Proposal is one move suggestion from a model.
type Proposal struct {
	Column    int
	Reasoning string
	Usage     Usage
}

type Provider interface {
	ProposeMove(ctx context.Context, b *game.Board, strategyKey string) (*Proposal, error)
}

// OpenAIProvider speaks the OpenAI-compatible chat completions API.
type OpenAIProvider struct {
	registry *Registry
	baseURL  string
	apiKey   string
	client   *http.Client
}

func NewOpenAIProvider(registry *Registry, baseURL, apiKey string) *OpenAIProvider {
	return &OpenAIProvider{
		registry: registry,
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiKey:   apiKey,
		client:   &http.Client{Timeout: 60 * time.Second},
	}
}

const systemPrompt = `You are playing Connect Four on a 6x7 grid. You drop pieces into columns 0-6 and they fall to the lowest empty cell. Four of your pieces in a row horizontally, vertically or diagonally wins. Respond with JSON only: {"column": <0-6>, "reasoning": "<one sentence>"}.`

func buildUserPrompt(b *game.Board) string {
	player := "X (player 1)"
	if b.Turn() == 2 {
		player = "O (player 2)"
	}
	return fmt.Sprintf("You are %s. It is your turn.\n\nBoard (top row first):\n%s\n\nColumn contents bottom-up:\n%s\n\nValid columns: %v\nPick one valid column.",
		player, b.AsciiGrid(), b.ColumnSummary(), b.ValidMoves())
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func (p *OpenAIProvider) ProposeMove(ctx context.Context, b *game.Board, strategyKey string) (*Proposal, error) {
	model, ok := p.registry.Get(strategyKey)
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q", strategyKey)
	}

	body, err := json.Marshal(chatRequest{
		Model: model.ModelID,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: buildUserPrompt(b)},
		},
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		if looksRateLimited(string(raw)) {
			return nil, ErrRateLimited
		}
		return nil, fmt.Errorf("llm status %d: %s", resp.StatusCode, truncate(string(raw), 200))
	}

	var cr chatResponse
	if err := json.Unmarshal(raw, &cr); err != nil {
		return nil, fmt.Errorf("decode llm response: %w", err)
	}
	if cr.Error != nil {
		if looksRateLimited(cr.Error.Message) || looksRateLimited(cr.Error.Type) {
			return nil, ErrRateLimited
		}
		return nil, fmt.Errorf("llm error: %s", cr.Error.Message)
	}
	if len(cr.Choices) == 0 {
		return nil, errors.New("llm returned no choices")
	}

	col, reasoning, err := parseMoveContent(cr.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}
	return &Proposal{
		Column:    col,
		Reasoning: reasoning,
		Usage: Usage{
			InputTokens:  cr.Usage.PromptTokens,
			OutputTokens: cr.Usage.CompletionTokens,
		},
	}, nil
}

func looksRateLimited(s string) bool {
	s = strings.ToLower(s)
	return strings.Contains(s, "rate limit") ||
		strings.Contains(s, "rate_limit") ||
		strings.Contains(s, "too many requests") ||
		strings.Contains(s, "quota")
}

// parseMoveContent extracts {"column": n, "reasoning": "..."} from model
// output, tolerating markdown fences and surrounding prose.
func parseMoveContent(content string) (int, string, error) {
	content = strings.TrimSpace(content)
	if start := strings.Index(content, "{"); start >= 0 {
		if end := strings.LastIndex(content, "}"); end > start {
			content = content[start : end+1]
		}
	}
	var move struct {
		Column    int    `json:"column"`
		Reasoning string `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(content), &move); err != nil {
		return 0, "", fmt.Errorf("parse move %q: %w", truncate(content, 120), err)
	}
	return move.Column, move.Reasoning, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
