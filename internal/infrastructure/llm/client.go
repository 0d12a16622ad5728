package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"ScholarLoop/internal/config"
	"ScholarLoop/internal/domain"
	"ScholarLoop/internal/ports"
)

// Client talks to an OpenAI-compatible chat endpoint and exposes the
// four oracle operations: document evaluation, strategic planning,
// query refinement, and report compilation.
//
// Responses carrying structured data must be valid JSON matching the
// expected shape; anything else is a collaborator failure. The client
// never scrapes JSON fragments out of prose.
type Client struct {
	endpoint   string
	model      string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

var (
	_ ports.Evaluator = (*Client)(nil)
	_ ports.Planner   = (*Client)(nil)
	_ ports.Refiner   = (*Client)(nil)
	_ ports.Compiler  = (*Client)(nil)
)

// NewClient builds a client from configuration. A configured proxy is
// applied to this client's transport only, never to the process
// environment.
func NewClient(cfg config.LLMConfig, logger *slog.Logger) (*Client, error) {
	httpClient := &http.Client{Timeout: cfg.Timeout()}

	if cfg.ProxyURL != "" {
		proxyURL, err := url.Parse(cfg.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy url: %w", err)
		}
		httpClient.Transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
	}

	return &Client{
		endpoint:   cfg.Endpoint,
		model:      cfg.Model,
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

const evaluateSystemPrompt = `You are an autonomous scientific critic stress-testing this claim: %q.
Audit the paper excerpt for logical fallacies, claimed limitations, or contradictions of the claim.
Respond with a single JSON object, no markdown, with exactly these fields:
{
  "score": 0.0,               // critical impact, 0-10, 10 = total refutation
  "summary": "...",           // brief context, one or two sentences
  "flaws": "...",             // limitations or flaws the paper admits or exposes
  "thought_signature": "...", // first-person note on why this shifts confidence
  "suggested_queries": ["..."] // up to 3 search queries for more counter-evidence
}`

type evaluationPayload struct {
	Score            *float64 `json:"score"`
	Summary          string   `json:"summary"`
	Flaws            string   `json:"flaws"`
	ThoughtSignature string   `json:"thought_signature"`
	SuggestedQueries []string `json:"suggested_queries"`
}

// Evaluate scores a document excerpt against the goal.
func (c *Client) Evaluate(ctx context.Context, content, goal string) (domain.Evaluation, error) {
	var payload evaluationPayload
	system := fmt.Sprintf(evaluateSystemPrompt, goal)
	if err := c.chatJSON(ctx, system, "Paper excerpt:\n"+content, &payload); err != nil {
		return domain.Evaluation{}, fmt.Errorf("evaluate: %w", err)
	}

	if payload.Score == nil {
		return domain.Evaluation{}, fmt.Errorf("evaluate: response missing score")
	}
	if *payload.Score < 0 || *payload.Score > 10 {
		return domain.Evaluation{}, fmt.Errorf("evaluate: score %v out of range", *payload.Score)
	}
	if strings.TrimSpace(payload.Summary) == "" {
		return domain.Evaluation{}, fmt.Errorf("evaluate: response missing summary")
	}

	return domain.Evaluation{
		Score:            *payload.Score,
		Summary:          payload.Summary,
		Flaws:            payload.Flaws,
		ThoughtSignature: payload.ThoughtSignature,
		FollowUpQueries:  payload.SuggestedQueries,
	}, nil
}

const planSystemPrompt = `You supervise a long-running literature audit attacking this claim: %q.
Review progress and redirect the search if it is drifting into confirmation instead of critique.
Respond with a single JSON object, no markdown, with exactly these fields:
{
  "reflection": "...",             // one-paragraph review of the audit so far
  "status_check": "attacking",     // one of: broad_search, deep_dive, attacking, stalled
  "new_search_queries": ["..."]    // queries focused on limitations, failures, contradictions
}`

type guidancePayload struct {
	Reflection       string   `json:"reflection"`
	StatusCheck      string   `json:"status_check"`
	NewSearchQueries []string `json:"new_search_queries"`
}

// Plan requests strategic guidance at a checkpoint. The caller treats
// an error as "no guidance this time".
func (c *Client) Plan(ctx context.Context, state *domain.SessionState, recentFacts string) (*domain.Guidance, error) {
	system := fmt.Sprintf(planSystemPrompt, state.Goal)
	user := fmt.Sprintf("Current hypothesis: %s\nCurrent posture: %s\nStep: %d\n\nRecent evidence:\n%s",
		state.CurrentHypothesis, state.Strategy, state.StepCount, recentFacts)

	var payload guidancePayload
	if err := c.chatJSON(ctx, system, user, &payload); err != nil {
		return nil, fmt.Errorf("plan: %w", err)
	}
	if strings.TrimSpace(payload.Reflection) == "" {
		return nil, fmt.Errorf("plan: response missing reflection")
	}

	strategy := domain.Strategy(payload.StatusCheck)
	if !domain.KnownStrategy(strategy) {
		strategy = domain.StrategyAttacking
	}

	return &domain.Guidance{
		Reflection: payload.Reflection,
		Strategy:   strategy,
		NewQueries: payload.NewSearchQueries,
	}, nil
}

const refineSystemPrompt = `Searches for counter-evidence against the claim %q have come up empty.
Propose three sharper search queries focused on limitations, failures, or debunking.
Respond with a single JSON object, no markdown: {"queries": ["...", "...", "..."]}`

type refinementPayload struct {
	Queries []string `json:"queries"`
}

// Refine generates replacement queries after repeated starvation.
func (c *Client) Refine(ctx context.Context, seed, goal string) ([]string, error) {
	system := fmt.Sprintf(refineSystemPrompt, goal)
	user := "Last exhausted query: " + seed

	var payload refinementPayload
	if err := c.chatJSON(ctx, system, user, &payload); err != nil {
		return nil, fmt.Errorf("refine: %w", err)
	}
	if len(payload.Queries) == 0 {
		return nil, fmt.Errorf("refine: response has no queries")
	}
	return payload.Queries, nil
}

const compileSystemPrompt = `You are writing the final stress-test report for the claim %q.
Synthesize the collected evidence into a structured markdown report: verdict first, then the
strongest counter-evidence ranked by impact, then open gaps. Cite paper titles.`

// Compile turns collected findings into a markdown report.
func (c *Client) Compile(ctx context.Context, goal string, findings []domain.Finding) (string, error) {
	if len(findings) == 0 {
		return "", fmt.Errorf("compile: no findings collected yet")
	}

	var sb strings.Builder
	for i, f := range findings {
		fmt.Fprintf(&sb, "%d. %s (impact %.1f/10)\n   %s\n   %s\n", i+1, f.Title, f.Score, f.Summary, f.URL)
	}

	report, err := c.chat(ctx, fmt.Sprintf(compileSystemPrompt, goal), sb.String(), false)
	if err != nil {
		return "", fmt.Errorf("compile: %w", err)
	}
	if strings.TrimSpace(report) == "" {
		return "", fmt.Errorf("compile: empty report")
	}
	return report, nil
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// chatJSON runs a chat completion and unmarshals the reply content
// strictly into out.
func (c *Client) chatJSON(ctx context.Context, system, user string, out interface{}) error {
	content, err := c.chat(ctx, system, user, true)
	if err != nil {
		return err
	}

	decoder := json.NewDecoder(strings.NewReader(content))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("response violates contract: %w", err)
	}
	// A single JSON value and nothing else. Prose before the object
	// already fails Decode; prose after it must fail too.
	if decoder.More() {
		return fmt.Errorf("response violates contract: trailing data after json value")
	}
	return nil
}

func (c *Client) chat(ctx context.Context, system, user string, jsonMode bool) (string, error) {
	if c.apiKey == "" || c.endpoint == "" || c.model == "" {
		return "", fmt.Errorf("llm client misconfigured")
	}

	request := map[string]any{
		"model": c.model,
		"messages": []map[string]string{
			{"role": "system", "content": system},
			{"role": "user", "content": user},
		},
		"temperature": 0.2,
	}
	if jsonMode {
		request["response_format"] = map[string]string{"type": "json_object"}
	}

	body, err := json.Marshal(request)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("llm error %s: %s", resp.Status, strings.TrimSpace(string(detail)))
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("response has no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}
