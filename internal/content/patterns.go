package content

import (
	"net/url"
	"regexp"
	"strings"
)

// Value tiers assigned by link classification.
const (
	ValueHigh   = "high"
	ValueMedium = "medium"
	ValueLow    = "low"
	ValueNone   = "none"
)

// Pattern maps URLs of one content type to its extraction route. Extractor
// is empty for types tracked without a downstream extractor yet.
type Pattern struct {
	Type        string
	Domains     []string
	URLPatterns []*regexp.Regexp
	Extractor   string
	Value       string
}

// contentPatterns is matched in order; the first hit wins.
var contentPatterns = []Pattern{
	{
		Type: "medium",
		Domains: []string{
			"medium.com", "towardsdatascience.com", "betterprogramming.pub",
			"levelup.gitconnected.com", "javascript.plainenglish.io",
			"python.plainenglish.io", "blog.devgenius.io",
			"ai.gopubby.com", "pub.towardsai.net",
		},
		Extractor: "medium",
		Value:     ValueHigh,
	},
	{
		Type:    "arxiv",
		Domains: []string{"arxiv.org"},
		URLPatterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)arxiv\.org/abs/\d+\.\d+`),
			regexp.MustCompile(`(?i)arxiv\.org/pdf/\d+\.\d+`),
		},
		Extractor: "arxiv",
		Value:     ValueHigh,
	},
	{
		Type:    "github",
		Domains: []string{"github.com"},
		URLPatterns: []*regexp.Regexp{
			// Repos, not assets.
			regexp.MustCompile(`(?i)github\.com/[\w-]+/[\w.-]+(?:/|$)`),
		},
		Extractor: "github",
		Value:     ValueHigh,
	},
	{
		Type:    "twitter",
		Domains: []string{"twitter.com", "x.com"},
		URLPatterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)(?:twitter|x)\.com/\w+/status/\d+`),
		},
		Extractor: "twitter",
		Value:     ValueMedium,
	},
	{
		Type:      "hackernews",
		Domains:   []string{"news.ycombinator.com"},
		Extractor: "hackernews",
		Value:     ValueMedium,
	},
	{
		Type:      "devto",
		Domains:   []string{"dev.to"},
		Extractor: "devto",
		Value:     ValueMedium,
	},
	{
		Type:    "youtube",
		Domains: []string{"youtube.com", "youtu.be"},
		URLPatterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)(?:youtube\.com/watch\?v=|youtu\.be/)[\w-]+`),
		},
		Value: ValueMedium,
	},
	{
		Type: "substack",
		URLPatterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)[\w-]+\.substack\.com`),
		},
		Value: ValueMedium,
	},
	{
		Type: "research",
		Domains: []string{
			"openreview.net", "paperswithcode.com", "aclweb.org",
			"proceedings.neurips.cc", "openai.com/research",
			"deepmind.google", "research.google",
		},
		Value: ValueHigh,
	},
}

// junkDomains are substrings that mark a link as noise regardless of score.
var junkDomains = []string{
	"unsubscribe.", "click.", "track.", "email.", "list-manage.com",
	"mailchimp.com", "sendgrid.net", "amazonses.com", "mandrillapp.com",
	"google.com/maps", "facebook.com", "instagram.com", "linkedin.com/feed",
	"apple.com/legal", "protonmail.com",
}

// LinkClass is the routing verdict for one URL.
type LinkClass struct {
	Type      string `json:"type"`
	Extractor string `json:"extractor,omitempty"`
	Value     string `json:"value"`
}

// ClassifyLink routes a URL to a content type. Junk wins over everything;
// unmatched URLs fall through to generic.
func ClassifyLink(raw string) LinkClass {
	u, err := url.Parse(raw)
	if err != nil {
		return LinkClass{Type: "unknown", Value: ValueLow}
	}
	domain := strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	lowerURL := strings.ToLower(raw)

	for _, junk := range junkDomains {
		if strings.Contains(domain, junk) || strings.Contains(lowerURL, junk) {
			return LinkClass{Type: "junk", Value: ValueNone}
		}
	}

	for _, p := range contentPatterns {
		for _, d := range p.Domains {
			if domain == d || strings.HasSuffix(domain, "."+d) {
				return LinkClass{Type: p.Type, Extractor: p.Extractor, Value: p.Value}
			}
		}
		for _, re := range p.URLPatterns {
			if re.MatchString(raw) {
				return LinkClass{Type: p.Type, Extractor: p.Extractor, Value: p.Value}
			}
		}
	}

	if strings.Contains(domain, ".substack.com") {
		return LinkClass{Type: "substack", Value: ValueMedium}
	}

	return LinkClass{Type: "generic", Value: ValueLow}
}

// extractorFor returns the gateway extractor name for a content type, or ""
// when the type has no extractor.
func extractorFor(contentType string) string {
	for _, p := range contentPatterns {
		if p.Type == contentType {
			return p.Extractor
		}
	}
	return ""
}
