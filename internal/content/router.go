package content

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tduarte/mailmind/internal/bus"
	"github.com/tduarte/mailmind/internal/store"
)

// classifyThreshold is the floor for the classification pass; dispatch uses
// the caller-supplied threshold on top of it.
const classifyThreshold = 0.3

// highValueThreshold marks links worth surfacing in intelligence reports.
const highValueThreshold = 0.7

// Dispatcher submits URL batches downstream. *Gateway implements it; tests
// substitute a fake.
type Dispatcher interface {
	Dispatch(ctx context.Context, extractor string, urls []string) (string, error)
}

// ScanStats summarizes one classification pass.
type ScanStats struct {
	Total   int            `json:"total"`
	ByType  map[string]int `json:"by_type"`
	ByValue map[string]int `json:"by_value"`
}

// DispatchRecord describes one per-type dispatch outcome.
type DispatchRecord struct {
	Count   int      `json:"count"`
	URLs    []string `json:"urls,omitempty"`
	BatchID string   `json:"batch_id,omitempty"`
	DryRun  bool     `json:"dry_run,omitempty"`
}

// SkipRecord describes a group left undispatched and why.
type SkipRecord struct {
	Count  int    `json:"count"`
	Reason string `json:"reason"`
}

// PipelineResult summarizes one RunPipeline invocation.
type PipelineResult struct {
	Classified int                       `json:"classified"`
	Dispatched map[string]DispatchRecord `json:"dispatched"`
	Skipped    map[string]SkipRecord     `json:"skipped"`
	Errors     []string                  `json:"errors"`
}

// Intelligence is the content report consumed by the downstream ML system.
type Intelligence struct {
	ByContentType    []store.TypeStat   `json:"by_content_type"`
	TopDomains       []store.DomainStat `json:"top_domains"`
	PipelineStatus   map[string]int64   `json:"pipeline_status"`
	HighValuePending int64              `json:"high_value_pending"`
}

// Router classifies extracted links into content types and dispatches them
// to the extraction gateway in per-type batches.
type Router struct {
	db         *store.DB
	dispatcher Dispatcher
	bus        *bus.Bus
	log        *zap.Logger
}

// NewRouter creates a content router.
func NewRouter(db *store.DB, dispatcher Dispatcher, b *bus.Bus, log *zap.Logger) *Router {
	return &Router{
		db:         db,
		dispatcher: dispatcher,
		bus:        b,
		log:        log.Named("content"),
	}
}

// ScanAndClassify tags every pending link at or above minRelevance with a
// content type. Re-running is harmless: links already typed get the same
// verdict again and junk stays skipped.
func (r *Router) ScanAndClassify(minRelevance float64) (*ScanStats, error) {
	stats := &ScanStats{
		ByType:  make(map[string]int),
		ByValue: make(map[string]int),
	}

	links, err := r.db.ListPendingLinks(minRelevance)
	if err != nil {
		return nil, err
	}

	for _, link := range links {
		class := ClassifyLink(link.URL)

		result := link.PipelineResult
		if result == nil {
			result = make(map[string]any)
		}
		result["content_classification"] = class
		result["classified_at"] = time.Now().UTC().Format(time.RFC3339)

		newStatus := ""
		if class.Type == "junk" {
			newStatus = store.LinkSkipped
		}
		if err := r.db.SetLinkClassification(link.ID, class.Type, result, newStatus); err != nil {
			return nil, err
		}

		stats.Total++
		stats.ByType[class.Type]++
		stats.ByValue[class.Value]++
	}
	return stats, nil
}

// RunPipeline classifies pending links, groups the dispatchable ones by
// content type, and submits each group to its extractor. Dry runs report the
// exact groups a real run would dispatch without any state change.
func (r *Router) RunPipeline(ctx context.Context, minRelevance float64, limitPerType int, dryRun bool) (*PipelineResult, error) {
	result := &PipelineResult{
		Dispatched: make(map[string]DispatchRecord),
		Skipped:    make(map[string]SkipRecord),
	}
	if limitPerType <= 0 {
		limitPerType = 20
	}

	scan, err := r.ScanAndClassify(classifyThreshold)
	if err != nil {
		return nil, err
	}
	result.Classified = scan.Total

	links, err := r.db.ListDispatchableLinks(minRelevance)
	if err != nil {
		return nil, err
	}

	// Group by content type, keeping the highest-relevance links per type.
	byType := make(map[string][]store.Link)
	for _, link := range links {
		if len(byType[link.LinkType]) < limitPerType {
			byType[link.LinkType] = append(byType[link.LinkType], link)
		}
	}

	for contentType, group := range byType {
		urls := make([]string, 0, len(group))
		ids := make([]int64, 0, len(group))
		for _, l := range group {
			urls = append(urls, l.URL)
			ids = append(ids, l.ID)
		}

		if dryRun {
			preview := urls
			if len(preview) > 5 {
				preview = preview[:5]
			}
			result.Dispatched[contentType] = DispatchRecord{
				Count:  len(urls),
				URLs:   preview,
				DryRun: true,
			}
			continue
		}

		extractor := extractorFor(contentType)
		if extractor == "" {
			result.Skipped[contentType] = SkipRecord{
				Count:  len(urls),
				Reason: fmt.Sprintf("no extractor for %s", contentType),
			}
			continue
		}

		batchID, err := r.dispatcher.Dispatch(ctx, extractor, urls)
		if err != nil {
			// Links stay pending; a later run retries them.
			r.log.Error("dispatch failed",
				zap.String("type", contentType),
				zap.String("extractor", extractor),
				zap.Error(err))
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", contentType, err))
			continue
		}

		if err := r.db.MarkLinksQueued(ids); err != nil {
			return result, err
		}
		result.Dispatched[contentType] = DispatchRecord{
			Count:   len(urls),
			BatchID: batchID,
		}
		r.log.Info("dispatched batch",
			zap.String("type", contentType),
			zap.String("extractor", extractor),
			zap.String("batch_id", batchID),
			zap.Int("urls", len(urls)))

		r.bus.Emit("content.batch_dispatched", map[string]any{"type": contentType, "batch_id": batchID, "count": len(urls)})
	}
	return result, nil
}

// CompleteExtraction records an extractor's result for one link.
func (r *Router) CompleteExtraction(linkID int64, result map[string]any) (bool, error) {
	return r.db.MarkLinkExtracted(linkID, result)
}

// Report builds the content intelligence summary.
func (r *Router) Report() (*Intelligence, error) {
	byType, err := r.db.TypeBreakdown()
	if err != nil {
		return nil, err
	}
	topDomains, err := r.db.TopDomains(20)
	if err != nil {
		return nil, err
	}
	statuses, err := r.db.LinkStatusCounts()
	if err != nil {
		return nil, err
	}
	highValue, err := r.db.CountPendingAbove(highValueThreshold)
	if err != nil {
		return nil, err
	}
	return &Intelligence{
		ByContentType:    byType,
		TopDomains:       topDomains,
		PipelineStatus:   statuses,
		HighValuePending: highValue,
	}, nil
}

// HighValueLinks lists the best pending links joined to their email subjects.
func (r *Router) HighValueLinks(minRelevance float64, limit int) ([]store.LinkWithSubject, error) {
	return r.db.ListHighValueLinks(minRelevance, limit)
}
