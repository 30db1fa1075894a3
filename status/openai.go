package status

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ghillie/ghillie/evidence"
	"github.com/ghillie/ghillie/ghillieerr"
)

// OpenAIConfig configures the LLM-backed status model, matching the
// credential and tuning fields of config.Config's openai_* settings.
type OpenAIConfig struct {
	APIKey      string
	Endpoint    string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// OpenAIModel drives an OpenAI-compatible chat-completions endpoint,
// reusing the teacher provider's connection-pooled HTTP client
// construction (provider/openai.go) for the same correctness reasons:
// bounded idle connections, an explicit timeout, and a dedicated
// transport rather than http.DefaultClient.
type OpenAIModel struct {
	config OpenAIConfig
	client *http.Client
}

// NewOpenAIModel builds a model against an OpenAI-compatible endpoint.
func NewOpenAIModel(cfg OpenAIConfig) (*OpenAIModel, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, &ghillieerr.ConfigError{Field: "GHILLIE_OPENAI_API_KEY", Message: "missing API key"}
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = "https://api.openai.com/v1/chat/completions"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	transport := &http.Transport{
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}
	return &OpenAIModel{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout, Transport: transport},
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatCompletionUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage chatCompletionUsage `json:"usage"`
}

// GenerateReport builds a prompt from the evidence bundle, grounded on the
// original prompt construction (status/prompts.py): a system instruction
// establishing the report's voice, and a user message enumerating each
// work-category group with its sample titles. Latency and token usage are
// captured onto the returned draft's Metrics for the reporting service to
// persist alongside the report.
func (m *OpenAIModel) GenerateReport(ctx context.Context, repo RepoContext, bundle *evidence.Bundle) (*Draft, error) {
	prompt := buildPrompt(repo, bundle)

	reqBody, err := json.Marshal(chatCompletionRequest{
		Model: m.config.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature: m.config.Temperature,
		MaxTokens:   m.config.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("status: marshal openai request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.config.Endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("status: build openai request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+m.config.APIKey)
	req.Header.Set("Content-Type", "application/json")

	started := time.Now()
	resp, err := m.client.Do(req)
	latency := time.Since(started)
	if err != nil {
		return nil, fmt.Errorf("status: openai request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return nil, &ghillieerr.APIError{StatusCode: resp.StatusCode, Message: string(body)}
	}

	var parsed chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("status: decode openai response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, &ghillieerr.ResponseShapeError{Missing: "choices"}
	}

	draft, err := parseDraft(parsed.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}
	draft.Metadata["model"] = m.config.Model
	draft.Metrics = InvocationMetrics{
		LatencyMS:        float64(latency.Milliseconds()),
		PromptTokens:     parsed.Usage.PromptTokens,
		CompletionTokens: parsed.Usage.CompletionTokens,
		TotalTokens:      parsed.Usage.TotalTokens,
	}
	return draft, nil
}

const systemPrompt = "You summarize repository activity for engineering stakeholders. " +
	"Respond with a JSON object containing summary (string), status (one of " +
	"on_track, at_risk, blocked, unknown), highlights (string array), risks " +
	"(string array), and next_steps (string array). Be concise and factual; " +
	"only describe activity present in the evidence provided."

func buildPrompt(repo RepoContext, bundle *evidence.Bundle) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Repository: %s\nWindow: %s to %s\n\n",
		repo.Slug(), bundle.Window.Start.Format(time.RFC3339), bundle.Window.End.Format(time.RFC3339))
	if bundle.HasPreviousContext {
		latest := bundle.PreviousReports[0]
		fmt.Fprintf(&b, "Previous report status: %s\n\n", latest.Status)
	}
	for _, g := range bundle.WorkTypeGroupings {
		fmt.Fprintf(&b, "## %s (%d commits, %d PRs, %d issues)\n", g.Category, g.CommitCount, g.PRCount, g.IssueCount)
		for _, title := range g.SampleTitles {
			fmt.Fprintf(&b, "- %s\n", title)
		}
	}
	return b.String()
}

func parseDraft(content string) (*Draft, error) {
	var parsed struct {
		Summary    string   `json:"summary"`
		Status     string   `json:"status"`
		Highlights []string `json:"highlights"`
		Risks      []string `json:"risks"`
		NextSteps  []string `json:"next_steps"`
	}
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return nil, fmt.Errorf("status: openai response was not valid JSON: %w", err)
	}
	return &Draft{
		Summary:    parsed.Summary,
		Status:     parseReportStatus(parsed.Status),
		Highlights: parsed.Highlights,
		RiskFlags:  parsed.Risks,
		NextSteps:  parsed.NextSteps,
		Metadata:   map[string]any{"backend": "openai"},
	}, nil
}

// parseReportStatus maps a status string to its enum value, falling back
// to UNKNOWN for anything the model returns that doesn't match one of the
// four documented values.
func parseReportStatus(s string) evidence.ReportStatus {
	switch evidence.ReportStatus(strings.ToLower(strings.TrimSpace(s))) {
	case evidence.ReportStatusOnTrack:
		return evidence.ReportStatusOnTrack
	case evidence.ReportStatusAtRisk:
		return evidence.ReportStatusAtRisk
	case evidence.ReportStatusBlocked:
		return evidence.ReportStatusBlocked
	default:
		return evidence.ReportStatusUnknown
	}
}
