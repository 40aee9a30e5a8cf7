package proposal

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tduarte/mailmind/internal/bus"
	"github.com/tduarte/mailmind/internal/store"
)

var (
	// ErrProposalNotFound is returned for operations on unknown proposal IDs.
	ErrProposalNotFound = errors.New("proposal not found")

	// ErrProposalNotPending is returned when reviewing a proposal that was
	// already approved or rejected.
	ErrProposalNotPending = errors.New("proposal is not pending")
)

// Generator thresholds.
const (
	unsubscribeMinEmails    = 3
	unsubscribeMaxRelevance = 0.3
	archiveMinCount         = 5
	archiveAgeDays          = 30
	extractionMinRelevance  = 0.6
	extractionMaxLinks      = 50
)

// archiveCategories are the low-priority verdicts eligible for archiving.
var archiveCategories = []string{"noise", "transactional", "notification", "marketing"}

// Engine generates and reviews inbox cleanup proposals.
type Engine struct {
	db  *store.DB
	bus *bus.Bus
	log *zap.Logger
}

// NewEngine creates a proposal engine.
func NewEngine(db *store.DB, b *bus.Bus, log *zap.Logger) *Engine {
	return &Engine{db: db, bus: b, log: log.Named("proposal")}
}

// GenerateAll runs every proposal generator. A generator that finds nothing
// produces no proposal; a generator that fails is logged and skipped.
func (e *Engine) GenerateAll() ([]store.Proposal, error) {
	generators := []struct {
		name string
		run  func() (*store.Proposal, error)
	}{
		{"unsubscribe", e.generateUnsubscribe},
		{"archive", e.generateArchive},
		{"extraction", e.generateExtraction},
	}

	var proposals []store.Proposal
	for _, g := range generators {
		p, err := g.run()
		if err != nil {
			e.log.Error("generator failed", zap.String("generator", g.name), zap.Error(err))
			continue
		}
		if p == nil {
			continue
		}
		e.log.Info("generated proposal",
			zap.String("type", p.Type),
			zap.String("title", p.Title),
			zap.Int64("affected", p.AffectedCount))
		e.bus.Emit("proposal.generated", *p)
		proposals = append(proposals, *p)
	}
	return proposals, nil
}

// generateUnsubscribe proposes unsubscribing from newsletter/marketing
// senders that keep mailing but never score relevant.
func (e *Engine) generateUnsubscribe() (*store.Proposal, error) {
	senders, err := e.db.ListLowEngagementSenders(
		[]string{"newsletter", "marketing"}, unsubscribeMinEmails, unsubscribeMaxRelevance)
	if err != nil {
		return nil, err
	}
	if len(senders) == 0 {
		return nil, nil
	}

	var totalAffected int64
	for _, s := range senders {
		totalAffected += s.TotalEmails
	}

	p := &store.Proposal{
		Type:  "unsubscribe",
		Title: fmt.Sprintf("%d low-value senders (%d emails)", len(senders), totalAffected),
		Description: fmt.Sprintf(
			"Found %d newsletter/marketing senders with low relevance scores (< %.1f). "+
				"Together they sent %d emails. Consider unsubscribing to reduce inbox noise.",
			len(senders), unsubscribeMaxRelevance, totalAffected),
		AffectedCount: totalAffected,
		AffectedQuery: map[string]any{
			"type":         "low_relevance_senders",
			"threshold":    unsubscribeMaxRelevance,
			"sender_types": []string{"newsletter", "marketing"},
		},
		ProposedAction: map[string]any{"action": "unsubscribe", "archive_existing": true},
	}
	if err := e.db.InsertProposal(p); err != nil {
		return nil, err
	}

	for _, s := range senders {
		relevance := "N/A"
		if s.RelevanceScore != nil {
			relevance = fmt.Sprintf("%.2f", *s.RelevanceScore)
		}
		item := &store.ProposalItem{
			ProposalID: p.ID,
			SenderID:   s.ID,
			Action:     "unsubscribe",
			Reason: fmt.Sprintf("%d emails, relevance: %s, type: %s",
				s.TotalEmails, relevance, s.SenderType),
		}
		if err := e.db.InsertProposalItem(item); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// generateArchive proposes archiving read, month-old emails in low-priority
// categories. Below five matches the proposal is not worth the review click.
func (e *Engine) generateArchive() (*store.Proposal, error) {
	cutoff := time.Now().AddDate(0, 0, -archiveAgeDays).UnixMilli()

	breakdown, err := e.db.ArchivableByCategory(cutoff, archiveCategories)
	if err != nil {
		return nil, err
	}
	var total int64
	for _, n := range breakdown {
		total += n
	}
	if total < archiveMinCount {
		return nil, nil
	}

	categories := make([]string, 0, len(breakdown))
	for cat := range breakdown {
		categories = append(categories, cat)
	}
	sort.Strings(categories)
	parts := make([]string, 0, len(categories))
	for _, cat := range categories {
		parts = append(parts, fmt.Sprintf("%s: %d", cat, breakdown[cat]))
	}

	p := &store.Proposal{
		Type:  "archive",
		Title: fmt.Sprintf("Archive %d old read emails (%d+ days)", total, archiveAgeDays),
		Description: fmt.Sprintf(
			"Found %d read emails older than %d days in low-priority categories. Breakdown: %s",
			total, archiveAgeDays, strings.Join(parts, ", ")),
		AffectedCount: total,
		AffectedQuery: map[string]any{
			"type":            "old_read_emails",
			"older_than_days": archiveAgeDays,
			"categories":      archiveCategories,
		},
		ProposedAction: map[string]any{"action": "archive"},
	}
	if err := e.db.InsertProposal(p); err != nil {
		return nil, err
	}
	return p, nil
}

// generateExtraction proposes feeding the best still-pending links into the
// content pipeline.
func (e *Engine) generateExtraction() (*store.Proposal, error) {
	links, err := e.db.ListHighValueLinks(extractionMinRelevance, extractionMaxLinks)
	if err != nil {
		return nil, err
	}
	if len(links) == 0 {
		return nil, nil
	}

	p := &store.Proposal{
		Type:  "extraction",
		Title: fmt.Sprintf("Extract %d high-value links into content pipeline", len(links)),
		Description: fmt.Sprintf(
			"Found %d links with relevance >= %.1f that haven't been extracted into the "+
				"content pipeline yet. These are from emails with potentially valuable "+
				"articles, repos, or papers.",
			len(links), extractionMinRelevance),
		AffectedCount: int64(len(links)),
		AffectedQuery: map[string]any{
			"type":          "high_value_links",
			"min_relevance": extractionMinRelevance,
			"status":        store.LinkPending,
		},
		ProposedAction: map[string]any{"action": "extract_to_pipeline"},
	}
	if err := e.db.InsertProposal(p); err != nil {
		return nil, err
	}

	for _, l := range links {
		url := l.URL
		if len(url) > 80 {
			url = url[:80]
		}
		item := &store.ProposalItem{
			ProposalID: p.ID,
			EmailID:    l.EmailID,
			LinkID:     l.ID,
			Action:     "extract",
			Reason:     fmt.Sprintf("[%s] rel=%.2f: %s", l.LinkType, l.RelevanceScore, url),
		}
		if err := e.db.InsertProposalItem(item); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Approve marks a pending proposal approved.
func (e *Engine) Approve(id int64) error {
	return e.review(id, store.ProposalApproved)
}

// Reject marks a pending proposal rejected.
func (e *Engine) Reject(id int64) error {
	return e.review(id, store.ProposalRejected)
}

func (e *Engine) review(id int64, to string) error {
	ok, err := e.db.SetProposalStatus(id, store.ProposalPending, to)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	// Distinguish missing from already-reviewed.
	p, err := e.db.GetProposal(id)
	if err != nil {
		return err
	}
	if p == nil {
		return ErrProposalNotFound
	}
	return fmt.Errorf("%w: status is %s", ErrProposalNotPending, p.Status)
}

// Get returns one proposal with its evidence items.
func (e *Engine) Get(id int64) (*store.Proposal, []store.ProposalItem, error) {
	p, err := e.db.GetProposal(id)
	if err != nil {
		return nil, nil, err
	}
	if p == nil {
		return nil, nil, ErrProposalNotFound
	}
	items, err := e.db.ListProposalItems(id)
	if err != nil {
		return nil, nil, err
	}
	return p, items, nil
}

// List returns proposals newest first, optionally filtered by status.
func (e *Engine) List(status string) ([]store.Proposal, error) {
	return e.db.ListProposals(status)
}
