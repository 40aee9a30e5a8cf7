package classify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/tduarte/mailmind/internal/config"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(config.Model{URL: srv.URL, Name: "test-model", TimeoutSeconds: 5}, zap.NewNop())
}

func modelAnswer(t *testing.T, w http.ResponseWriter, answer string) {
	t.Helper()
	if err := json.NewEncoder(w).Encode(map[string]string{"response": answer}); err != nil {
		t.Fatal(err)
	}
}

func TestClassifyEmailParsesAnswer(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if req.Stream {
			t.Error("stream should be false")
		}
		if req.Model != "test-model" {
			t.Errorf("model = %q", req.Model)
		}
		modelAnswer(t, w, `{"category": "Newsletter", "confidence": 0.9, "topics": ["machine_learning"], "relevance_score": 0.7, "summary": "ML digest", "has_useful_links": true}`)
	})

	r := c.ClassifyEmail(context.Background(), "ML Weekly", "Ed", "ed@ml.io", "body", "")
	if r.Category != "newsletter" {
		t.Errorf("category = %q, want newsletter (normalized)", r.Category)
	}
	if r.Confidence != 0.9 || r.RelevanceScore != 0.7 {
		t.Errorf("scores = %v/%v", r.Confidence, r.RelevanceScore)
	}
	if !r.HasUsefulLinks {
		t.Error("has_useful_links lost")
	}
	if r.ModelUsed != "test-model" {
		t.Errorf("model_used = %q", r.ModelUsed)
	}
}

func TestClassifyEmailFencedAnswer(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		modelAnswer(t, w, "```json\n{\"category\": \"actionable\", \"confidence\": 0.8}\n```")
	})

	r := c.ClassifyEmail(context.Background(), "Meeting", "", "", "", "")
	if r.Category != "actionable" {
		t.Errorf("category = %q, want actionable", r.Category)
	}
}

func TestClassifyEmailDefaultsOnGarbage(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		modelAnswer(t, w, "I think this email is probably a newsletter!")
	})

	r := c.ClassifyEmail(context.Background(), "x", "", "", "", "")
	if r.Category != "noise" || r.Confidence != 0 {
		t.Errorf("got %+v, want noise fallback", r)
	}
}

func TestClassifyEmailDefaultsOnServerError(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model loading", http.StatusServiceUnavailable)
	})

	r := c.ClassifyEmail(context.Background(), "x", "", "", "", "")
	if r.Category != "noise" {
		t.Errorf("category = %q, want noise fallback", r.Category)
	}
	if r.ModelUsed != "test-model" {
		t.Errorf("model_used = %q, want recorded even on failure", r.ModelUsed)
	}
}

func TestClassifyEmailUnknownCategoryCoercedToNoise(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		modelAnswer(t, w, `{"category": "spam", "confidence": 0.9}`)
	})

	r := c.ClassifyEmail(context.Background(), "x", "", "", "", "")
	if r.Category != "noise" {
		t.Errorf("category = %q, want noise", r.Category)
	}
}

func TestScoreLinksBackfillsMissing(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		modelAnswer(t, w, `{"scored_links": [{"url": "https://a.example/1", "relevance_score": 0.9, "link_type": "article"}]}`)
	})

	scores := c.ScoreLinks(context.Background(),
		[]string{"https://a.example/1", "https://b.example/2"}, "subj", "from@x", "newsletter")
	if len(scores) != 2 {
		t.Fatalf("got %d scores, want 2", len(scores))
	}
	if scores[0].RelevanceScore != 0.9 || scores[0].LinkType != "article" {
		t.Errorf("scored = %+v", scores[0])
	}
	if scores[1].URL != "https://b.example/2" || scores[1].RelevanceScore != 0 || scores[1].LinkType != "other" {
		t.Errorf("backfill = %+v", scores[1])
	}
}

func TestScoreLinksCapsPromptAtTen(t *testing.T) {
	var prompt string
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		prompt = req.Prompt
		modelAnswer(t, w, `{"scored_links": []}`)
	})

	links := make([]string, 12)
	for i := range links {
		links[i] = "https://x.example/" + string(rune('a'+i))
	}
	scores := c.ScoreLinks(context.Background(), links, "", "", "noise")

	// All 12 inputs get verdicts even though only 10 were prompted.
	if len(scores) != 12 {
		t.Errorf("got %d scores, want 12", len(scores))
	}
	if strings.Count(prompt, "https://x.example/") != 10 {
		t.Errorf("prompt should carry exactly 10 links:\n%s", prompt)
	}
}

func TestScoreLinksEmptyInput(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no call expected for empty input")
	})
	if scores := c.ScoreLinks(context.Background(), nil, "", "", ""); scores != nil {
		t.Errorf("scores = %+v, want nil", scores)
	}
}

func TestExtractJSON(t *testing.T) {
	cases := []struct {
		name, in, want string
	}{
		{"bare", `{"a": 1}`, `{"a": 1}`},
		{"fenced", "```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"prose prefix", `Sure! Here you go: {"a": {"b": 2}} hope that helps`, `{"a": {"b": 2}}`},
		{"unterminated", `{"a": 1`, `{"a": 1`},
		{"no object", `nothing here`, `nothing here`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := extractJSON(tc.in); got != tc.want {
				t.Errorf("extractJSON(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}
