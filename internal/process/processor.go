package process

import (
	"context"
	"errors"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/tduarte/mailmind/internal/bus"
	"github.com/tduarte/mailmind/internal/classify"
	"github.com/tduarte/mailmind/internal/mail"
	"github.com/tduarte/mailmind/internal/store"
)

// ErrEmailNotFound is returned when processing is requested for an unknown
// email ID.
var ErrEmailNotFound = errors.New("email not found")

// Classifier is the model surface the processor needs. *classify.Client
// implements it; tests substitute a fake.
type Classifier interface {
	ClassifyEmail(ctx context.Context, subject, fromName, fromAddress, bodyText, date string) classify.Result
	ScoreLinks(ctx context.Context, links []string, subject, fromAddress, category string) []classify.LinkScore
}

// dispatchThreshold gates scored links into the extraction pipeline: anything
// below it is stored as skipped so the pipeline never touches it.
const dispatchThreshold = 0.5

// ItemResult summarizes processing of one email.
type ItemResult struct {
	EmailID    int64   `json:"email_id"`
	Category   string  `json:"category"`
	Relevance  float64 `json:"relevance"`
	Summary    string  `json:"summary"`
	LinksFound int     `json:"links_found"`
}

// BatchResult summarizes one ProcessUnclassified run.
type BatchResult struct {
	Processed  int `json:"processed"`
	Errors     int `json:"errors"`
	LinksFound int `json:"links_found"`
}

// Processor orchestrates classification, link scoring and sender-profile
// maintenance for synced emails.
type Processor struct {
	db         *store.DB
	classifier Classifier
	bus        *bus.Bus
	log        *zap.Logger
}

// New creates a processor.
func New(db *store.DB, classifier Classifier, b *bus.Bus, log *zap.Logger) *Processor {
	return &Processor{
		db:         db,
		classifier: classifier,
		bus:        b,
		log:        log.Named("process"),
	}
}

// ProcessUnclassified classifies up to limit emails that have no verdict yet,
// newest first. Failures are isolated per email: one bad message never stops
// the batch.
func (p *Processor) ProcessUnclassified(ctx context.Context, limit int) (*BatchResult, error) {
	result := &BatchResult{}

	emails, err := p.db.ListUnclassified(limit)
	if err != nil {
		return nil, err
	}
	if len(emails) == 0 {
		p.log.Info("no unclassified emails")
		return result, nil
	}
	p.log.Info("processing unclassified emails", zap.Int("count", len(emails)))

	for i := range emails {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		item, err := p.processOne(ctx, &emails[i])
		if err != nil {
			p.log.Error("process email failed", zap.Int64("email_id", emails[i].ID), zap.Error(err))
			result.Errors++
			continue
		}
		result.Processed++
		result.LinksFound += item.LinksFound
	}
	return result, nil
}

// ProcessEmailByID classifies a single email regardless of whether it was
// classified before; a new verdict row is appended.
func (p *Processor) ProcessEmailByID(ctx context.Context, emailID int64) (*ItemResult, error) {
	e, err := p.db.GetEmail(emailID)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, ErrEmailNotFound
	}
	return p.processOne(ctx, e)
}

// processOne runs the classify -> score links -> update sender pipeline for
// one email. All writes happen in a single transaction so a failure partway
// through leaves the email fully unprocessed and eligible for retry.
func (p *Processor) processOne(ctx context.Context, e *store.Email) (*ItemResult, error) {
	date := ""
	if e.DateSent > 0 {
		date = time.UnixMilli(e.DateSent).UTC().Format(time.RFC3339)
	}
	verdict := p.classifier.ClassifyEmail(ctx, e.Subject, e.FromName, e.FromAddress, e.BodyText, date)

	links := mail.ExtractLinks(e.BodyHTML, e.BodyText)
	var scores []classify.LinkScore
	if len(links) > 0 {
		scores = p.classifier.ScoreLinks(ctx, links, e.Subject, e.FromAddress, verdict.Category)
	}

	tx, err := p.db.Begin()
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	c := &store.Classification{
		EmailID:        e.ID,
		Category:       verdict.Category,
		Confidence:     verdict.Confidence,
		Topics:         verdict.Topics,
		RelevanceScore: verdict.RelevanceScore,
		Summary:        verdict.Summary,
		ModelUsed:      verdict.ModelUsed,
	}
	if err := store.InsertClassification(tx, c); err != nil {
		return nil, err
	}

	item := &ItemResult{
		EmailID:   e.ID,
		Category:  verdict.Category,
		Relevance: verdict.RelevanceScore,
		Summary:   verdict.Summary,
	}

	for _, s := range scores {
		pipelineStatus := store.LinkSkipped
		if s.RelevanceScore >= dispatchThreshold {
			pipelineStatus = store.LinkPending
		}
		l := &store.Link{
			EmailID:        e.ID,
			URL:            s.URL,
			Domain:         extractDomain(s.URL),
			LinkType:       s.LinkType,
			RelevanceScore: s.RelevanceScore,
			PipelineStatus: pipelineStatus,
		}
		if err := store.InsertLink(tx, l); err != nil {
			return nil, err
		}
		item.LinksFound++
	}

	if e.FromAddress != "" {
		if err := p.updateSenderProfile(tx, e, verdict); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	p.log.Info("processed email",
		zap.Int64("email_id", e.ID),
		zap.String("category", verdict.Category),
		zap.Float64("relevance", verdict.RelevanceScore),
		zap.Int("links", item.LinksFound))

	p.bus.Emit("process.email_classified", *item)
	return item, nil
}

// updateSenderProfile creates or refreshes the rolling profile for the
// sender. Relevance decays toward recent behavior: 80% history, 20% new.
func (p *Processor) updateSenderProfile(tx store.Querier, e *store.Email, verdict classify.Result) error {
	now := time.Now().UnixMilli()

	profile, err := store.GetSenderProfile(tx, e.FromAddress)
	if err != nil {
		return err
	}

	if profile == nil {
		seen := e.DateSent
		if seen == 0 {
			seen = now
		}
		opened := int64(0)
		if e.IsRead {
			opened = 1
		}
		rel := verdict.RelevanceScore
		return store.InsertSenderProfile(tx, &store.SenderProfile{
			EmailAddress:   e.FromAddress,
			DisplayName:    e.FromName,
			SenderType:     inferSenderType(verdict.Category),
			TotalEmails:    1,
			EmailsOpened:   opened,
			FirstSeen:      seen,
			LastSeen:       seen,
			RelevanceScore: &rel,
			UpdatedAt:      now,
		})
	}

	profile.TotalEmails++
	if e.IsRead {
		profile.EmailsOpened++
	}
	if e.DateSent > 0 && e.DateSent > profile.LastSeen {
		profile.LastSeen = e.DateSent
	}
	if profile.RelevanceScore != nil {
		rolled := *profile.RelevanceScore*0.8 + verdict.RelevanceScore*0.2
		profile.RelevanceScore = &rolled
	} else {
		rel := verdict.RelevanceScore
		profile.RelevanceScore = &rel
	}
	profile.UpdatedAt = now
	return store.UpdateSenderProfile(tx, profile)
}

// Stats returns the aggregate processing snapshot.
func (p *Processor) Stats() (*store.ProcessingStats, error) {
	return p.db.ProcessingSnapshot()
}

func inferSenderType(category string) string {
	switch category {
	case "newsletter":
		return "newsletter"
	case "transactional", "notification":
		return "service"
	case "personal", "actionable":
		return "person"
	case "marketing", "noise":
		return "marketing"
	default:
		return "service"
	}
}

func extractDomain(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Host
}
