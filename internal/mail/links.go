package mail

import (
	"regexp"
	"sort"
	"strings"

	"golang.org/x/net/html"
)

// Substrings that mark a URL as tracking/unsubscribe noise rather than
// content worth scoring.
var junkURLPatterns = []string{
	"unsubscribe",
	"list-unsubscribe",
	"manage-preferences",
	"email-preferences",
	"tracking",
	"click.mailchimp",
	"click.convertkit",
	"click.pstmrk",
	"email.mg.",
	"mandrillapp.com",
	"sendgrid.net/wf/click",
	"list-manage.com/track",
	"open.substack.com/pub",
	".gif?",
	".png?u=",
	"beacon.",
	"pixel.",
	"/track/open",
	"/o/",
}

var textURLPattern = regexp.MustCompile(`(?i)https?://[^\s<>"')\]]+`)

// ExtractLinks collects unique http(s) URLs from the HTML and plain-text
// bodies, drops tracking noise, and returns them sorted.
func ExtractLinks(htmlBody, textBody string) []string {
	urls := make(map[string]struct{})

	if htmlBody != "" {
		doc, err := html.Parse(strings.NewReader(htmlBody))
		if err == nil {
			var walk func(*html.Node)
			walk = func(n *html.Node) {
				if n.Type == html.ElementNode && n.Data == "a" {
					for _, attr := range n.Attr {
						if attr.Key != "href" {
							continue
						}
						href := strings.TrimSpace(attr.Val)
						if (strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://")) && !isJunkURL(href) {
							urls[href] = struct{}{}
						}
					}
				}
				for c := n.FirstChild; c != nil; c = c.NextSibling {
					walk(c)
				}
			}
			walk(doc)
		}
	}

	if textBody != "" {
		for _, m := range textURLPattern.FindAllString(textBody, -1) {
			url := strings.TrimRight(m, ".,;:!?)")
			if !isJunkURL(url) {
				urls[url] = struct{}{}
			}
		}
	}

	if len(urls) == 0 {
		return nil
	}
	out := make([]string, 0, len(urls))
	for u := range urls {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

func isJunkURL(url string) bool {
	lower := strings.ToLower(url)
	for _, p := range junkURLPatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// htmlToText flattens an HTML document to whitespace-joined text, skipping
// style and script subtrees.
func htmlToText(htmlBody string) string {
	doc, err := html.Parse(strings.NewReader(htmlBody))
	if err != nil {
		return ""
	}

	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.ElementNode:
			switch n.Data {
			case "style", "script", "noscript", "head":
				return
			}
		case html.TextNode:
			if text := strings.TrimSpace(n.Data); text != "" {
				if b.Len() > 0 {
					b.WriteByte('\n')
				}
				b.WriteString(text)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return b.String()
}
