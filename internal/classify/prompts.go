package classify

// Classification categories assigned to every email.
var Categories = []string{
	"newsletter",     // recurring content from subscriptions
	"transactional",  // receipts, confirmations, password resets
	"notification",   // service alerts, social media notifications
	"personal",       // direct human-to-human communication
	"marketing",      // promotions, sales, ads
	"actionable",     // requires action (meetings, requests, deadlines)
	"noise",          // junk, spam that passed filters, irrelevant
}

const classifyPrompt = `You are an email classification AI. Analyze the following email and return a JSON response.

EMAIL:
From: %s <%s>
Subject: %s
Date: %s

Body (first 2000 chars):
%s

---

Respond with ONLY valid JSON (no markdown, no explanation):
{
  "category": "<one of: newsletter, transactional, notification, personal, marketing, actionable, noise>",
  "confidence": <float 0.0-1.0>,
  "topics": [<list of relevant topics from: cryptocurrency, machine_learning, ai_research, trading, software_engineering, startup, data_science, finance, security, devops, other>],
  "relevance_score": <float 0.0-1.0, how relevant to a technical builder focused on crypto/ML/AI>,
  "summary": "<one sentence summary of the email's content or purpose>",
  "has_useful_links": <boolean, true if email contains links to articles/repos/papers worth extracting>
}`

const scoreLinksPrompt = `You are a link relevance scorer. Given these URLs extracted from an email, score each link's value for a technical builder focused on cryptocurrency, machine learning, AI research, and trading.

Email context:
Subject: %s
From: %s
Category: %s

Links found:
%s

---

Respond with ONLY valid JSON (no markdown, no explanation):
{
  "scored_links": [
    {
      "url": "<the url>",
      "relevance_score": <float 0.0-1.0>,
      "link_type": "<one of: article, github, arxiv, video, tool, docs, social, other>",
      "reason": "<brief reason for the score>"
    }
  ]
}`
