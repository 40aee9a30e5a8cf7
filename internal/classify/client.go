package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/tduarte/mailmind/internal/config"
)

// Result is one email classification verdict. The zero verdict (category
// noise, everything else empty) is what callers get when the model is
// unreachable or answers garbage.
type Result struct {
	Category       string   `json:"category"`
	Confidence     float64  `json:"confidence"`
	Topics         []string `json:"topics"`
	RelevanceScore float64  `json:"relevance_score"`
	Summary        string   `json:"summary"`
	HasUsefulLinks bool     `json:"has_useful_links"`
	ModelUsed      string   `json:"-"`
}

// LinkScore is the model's relevance verdict for one URL.
type LinkScore struct {
	URL            string  `json:"url"`
	RelevanceScore float64 `json:"relevance_score"`
	LinkType       string  `json:"link_type"`
	Reason         string  `json:"reason"`
}

// maxScoredLinks caps the links per scoring call so the model's JSON answer
// stays within its output token limit.
const maxScoredLinks = 10

// Client talks to a local Ollama instance. Every method degrades to a safe
// default instead of returning an error: one flaky model answer must never
// stall the processing pipeline.
type Client struct {
	cfg  config.Model
	http *http.Client
	log  *zap.Logger
}

// New creates a classifier client against the configured model endpoint.
func New(cfg config.Model, log *zap.Logger) *Client {
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout()},
		log:  log.Named("classify"),
	}
}

// ClassifyEmail asks the model to categorize one email. Body text is
// truncated to 2000 characters before prompting.
func (c *Client) ClassifyEmail(ctx context.Context, subject, fromName, fromAddress, bodyText, date string) Result {
	fallback := Result{Category: "noise", ModelUsed: c.cfg.Name}

	if fromName == "" {
		fromName = "Unknown"
	}
	if fromAddress == "" {
		fromAddress = "unknown@unknown"
	}
	if subject == "" {
		subject = "(no subject)"
	}
	if date == "" {
		date = "unknown"
	}
	body := bodyText
	if len(body) > 2000 {
		body = body[:2000]
	}
	if body == "" {
		body = "(empty body)"
	}

	prompt := fmt.Sprintf(classifyPrompt, fromName, fromAddress, subject, date, body)
	answer, err := c.generate(ctx, prompt)
	if err != nil {
		c.log.Warn("classification call failed", zap.Error(err))
		return fallback
	}

	var r Result
	if err := json.Unmarshal([]byte(extractJSON(answer)), &r); err != nil {
		c.log.Warn("unparseable classification answer",
			zap.Error(err), zap.String("answer", truncate(answer, 500)))
		return fallback
	}
	r.Category = strings.ToLower(strings.TrimSpace(r.Category))
	if !validCategory(r.Category) {
		r.Category = "noise"
	}
	r.ModelUsed = c.cfg.Name
	return r
}

// ScoreLinks asks the model to rate URLs from one email. At most ten links
// are sent; any link the model skips comes back with a zero score so every
// input URL has a verdict.
func (c *Client) ScoreLinks(ctx context.Context, links []string, subject, fromAddress, category string) []LinkScore {
	if len(links) == 0 {
		return nil
	}

	capped := links
	if len(capped) > maxScoredLinks {
		capped = capped[:maxScoredLinks]
	}
	var b strings.Builder
	for _, url := range capped {
		fmt.Fprintf(&b, "  - %s\n", url)
	}

	if subject == "" {
		subject = "(no subject)"
	}
	if fromAddress == "" {
		fromAddress = "unknown"
	}

	prompt := fmt.Sprintf(scoreLinksPrompt, subject, fromAddress, category, b.String())
	answer, err := c.generate(ctx, prompt)
	if err != nil {
		c.log.Warn("link scoring call failed", zap.Error(err))
		return zeroScores(links)
	}

	var parsed struct {
		ScoredLinks []LinkScore `json:"scored_links"`
	}
	if err := json.Unmarshal([]byte(extractJSON(answer)), &parsed); err != nil {
		c.log.Warn("unparseable link scores", zap.Error(err))
		return zeroScores(links)
	}

	scored := parsed.ScoredLinks
	for i := range scored {
		if scored[i].LinkType == "" {
			scored[i].LinkType = "other"
		}
	}

	// Backfill links the model dropped from its answer.
	seen := make(map[string]struct{}, len(scored))
	for _, s := range scored {
		seen[s.URL] = struct{}{}
	}
	for _, url := range links {
		if _, ok := seen[url]; !ok {
			scored = append(scored, LinkScore{URL: url, LinkType: "other"})
		}
	}
	return scored
}

type generateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options"`
}

func (c *Client) generate(ctx context.Context, prompt string) (string, error) {
	payload, err := json.Marshal(generateRequest{
		Model:  c.cfg.Name,
		Prompt: prompt,
		Stream: false,
		Options: map[string]any{
			// Low temperature keeps classification answers consistent.
			"temperature": 0.1,
			"num_predict": 2048,
		},
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.URL+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("model returned %d: %s", resp.StatusCode, body)
	}

	var data struct {
		Response string `json:"response"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return "", fmt.Errorf("decode model answer: %w", err)
	}
	return strings.TrimSpace(data.Response), nil
}

// extractJSON pulls the first balanced JSON object out of a model answer
// that may be wrapped in markdown fences or prose.
func extractJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```") {
		lines := strings.Split(text, "\n")
		start := 1
		end := len(lines)
		for i := len(lines) - 1; i >= 0; i-- {
			if strings.TrimSpace(lines[i]) == "```" {
				end = i
				break
			}
		}
		if start <= end {
			text = strings.TrimSpace(strings.Join(lines[start:end], "\n"))
		}
	}

	braceStart := strings.IndexByte(text, '{')
	if braceStart == -1 {
		return text
	}
	depth := 0
	for i := braceStart; i < len(text); i++ {
		switch text[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[braceStart : i+1]
			}
		}
	}
	return text[braceStart:]
}

func validCategory(c string) bool {
	for _, v := range Categories {
		if c == v {
			return true
		}
	}
	return false
}

func zeroScores(links []string) []LinkScore {
	out := make([]LinkScore, 0, len(links))
	for _, url := range links {
		out = append(out, LinkScore{URL: url, LinkType: "other"})
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
