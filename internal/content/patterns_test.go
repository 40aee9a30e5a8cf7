package content

import "testing"

func TestClassifyLink(t *testing.T) {
	cases := []struct {
		url       string
		wantType  string
		extractor string
		value     string
	}{
		{"https://arxiv.org/abs/2401.12345", "arxiv", "arxiv", ValueHigh},
		{"https://arxiv.org/pdf/2401.12345", "arxiv", "arxiv", ValueHigh},
		{"https://github.com/user/repo", "github", "github", ValueHigh},
		{"https://medium.com/@author/some-post", "medium", "medium", ValueHigh},
		{"https://www.towardsdatascience.com/post", "medium", "medium", ValueHigh},
		{"https://x.com/user/status/123456", "twitter", "twitter", ValueMedium},
		{"https://news.ycombinator.com/item?id=1", "hackernews", "hackernews", ValueMedium},
		{"https://dev.to/user/post", "devto", "devto", ValueMedium},
		{"https://youtu.be/dQw4w9WgXcQ", "youtube", "", ValueMedium},
		{"https://someone.substack.com/p/post", "substack", "", ValueMedium},
		{"https://openreview.net/forum?id=x", "research", "", ValueHigh},
		{"https://click.example.com/redirect", "junk", "", ValueNone},
		{"https://www.facebook.com/page", "junk", "", ValueNone},
		{"https://random-blog.example.com/post", "generic", "", ValueLow},
	}
	for _, tc := range cases {
		t.Run(tc.url, func(t *testing.T) {
			got := ClassifyLink(tc.url)
			if got.Type != tc.wantType {
				t.Errorf("type = %q, want %q", got.Type, tc.wantType)
			}
			if got.Extractor != tc.extractor {
				t.Errorf("extractor = %q, want %q", got.Extractor, tc.extractor)
			}
			if got.Value != tc.value {
				t.Errorf("value = %q, want %q", got.Value, tc.value)
			}
		})
	}
}

func TestClassifyLinkJunkBeatsContentMatch(t *testing.T) {
	// A tracking redirect that mentions github in the query must stay junk.
	got := ClassifyLink("https://click.newsletter.example/r?u=https://github.com/user/repo")
	if got.Type != "junk" {
		t.Errorf("type = %q, want junk", got.Type)
	}
}

func TestExtractorFor(t *testing.T) {
	if e := extractorFor("arxiv"); e != "arxiv" {
		t.Errorf("arxiv extractor = %q", e)
	}
	if e := extractorFor("substack"); e != "" {
		t.Errorf("substack extractor = %q, want none", e)
	}
	if e := extractorFor("nonsense"); e != "" {
		t.Errorf("unknown extractor = %q, want none", e)
	}
}
