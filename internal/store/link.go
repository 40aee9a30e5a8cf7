package store

import (
	"database/sql"
	"fmt"
	"time"
)

const linkColumns = `id, email_id, url, anchor_text, domain, link_type,
	relevance_score, pipeline_status, pipeline_result, extracted_at`

// InsertLink stores a scored link for an email.
func InsertLink(q Querier, l *Link) error {
	if l.ExtractedAt == 0 {
		l.ExtractedAt = time.Now().UnixMilli()
	}
	if l.PipelineStatus == "" {
		l.PipelineStatus = LinkPending
	}
	res, err := q.Exec(`
		INSERT INTO extracted_links
			(email_id, url, anchor_text, domain, link_type, relevance_score,
			 pipeline_status, pipeline_result, extracted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.EmailID, l.URL, l.AnchorText, l.Domain, l.LinkType, l.RelevanceScore,
		l.PipelineStatus, marshalJSON(l.PipelineResult, "{}"), l.ExtractedAt)
	if err != nil {
		return fmt.Errorf("insert link: %w", err)
	}
	l.ID, _ = res.LastInsertId()
	return nil
}

// ListPendingLinks returns pending links at or above the relevance threshold,
// highest relevance first.
func (db *DB) ListPendingLinks(minRelevance float64) ([]Link, error) {
	rows, err := db.Query(`
		SELECT `+linkColumns+` FROM extracted_links
		WHERE pipeline_status = ? AND relevance_score >= ?
		ORDER BY relevance_score DESC`, LinkPending, minRelevance)
	if err != nil {
		return nil, err
	}
	return collectLinks(rows)
}

// ListDispatchableLinks returns pending links above the threshold that carry
// a content type eligible for dispatch (typed, and neither junk nor generic).
func (db *DB) ListDispatchableLinks(minRelevance float64) ([]Link, error) {
	rows, err := db.Query(`
		SELECT `+linkColumns+` FROM extracted_links
		WHERE pipeline_status = ? AND relevance_score >= ?
			AND link_type != '' AND link_type != 'junk' AND link_type != 'generic'
		ORDER BY relevance_score DESC`, LinkPending, minRelevance)
	if err != nil {
		return nil, err
	}
	return collectLinks(rows)
}

// SetLinkClassification records a content-type verdict on a link. Status is
// only changed when newStatus is non-empty (used to auto-skip junk);
// re-classification may relabel the type but never rewinds pipeline state.
func (db *DB) SetLinkClassification(id int64, linkType string, result map[string]any, newStatus string) error {
	if newStatus != "" {
		_, err := db.Exec(`
			UPDATE extracted_links
			SET link_type = ?, pipeline_result = ?, pipeline_status = ?
			WHERE id = ?`,
			linkType, marshalJSON(result, "{}"), newStatus, id)
		return err
	}
	_, err := db.Exec(`
		UPDATE extracted_links
		SET link_type = ?, pipeline_result = ?
		WHERE id = ?`,
		linkType, marshalJSON(result, "{}"), id)
	return err
}

// MarkLinksQueued transitions the given pending links to queued after a
// successful gateway dispatch.
func (db *DB) MarkLinksQueued(ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]any, 0, len(ids)+1)
	args = append(args, LinkQueued)
	for _, id := range ids {
		args = append(args, id)
	}
	_, err := db.Exec(`
		UPDATE extracted_links SET pipeline_status = ?
		WHERE id IN (`+placeholders(len(ids))+`) AND pipeline_status = 'pending'`,
		args...)
	return err
}

// MarkLinkExtracted records a completed extraction, merging result metadata
// into the link's pipeline_result payload. Returns false when the link is
// unknown.
func (db *DB) MarkLinkExtracted(id int64, result map[string]any) (bool, error) {
	link, err := db.getLink(id)
	if err != nil {
		return false, err
	}
	if link == nil {
		return false, nil
	}
	merged := link.PipelineResult
	if merged == nil {
		merged = make(map[string]any)
	}
	for k, v := range result {
		merged[k] = v
	}
	merged["extracted_at"] = time.Now().UTC().Format(time.RFC3339)

	_, err = db.Exec(`
		UPDATE extracted_links SET pipeline_status = ?, pipeline_result = ?
		WHERE id = ?`, LinkExtracted, marshalJSON(merged, "{}"), id)
	return err == nil, err
}

// ListHighValueLinks returns pending links at or above minRelevance joined to
// their originating email subjects, highest relevance first.
func (db *DB) ListHighValueLinks(minRelevance float64, limit int) ([]LinkWithSubject, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT l.id, l.email_id, l.url, l.anchor_text, l.domain, l.link_type,
			l.relevance_score, l.pipeline_status, l.pipeline_result, l.extracted_at,
			e.subject
		FROM extracted_links l
		JOIN emails e ON e.id = l.email_id
		WHERE l.pipeline_status = ? AND l.relevance_score >= ?
		ORDER BY l.relevance_score DESC
		LIMIT ?`, LinkPending, minRelevance, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var links []LinkWithSubject
	for rows.Next() {
		var l LinkWithSubject
		var result string
		if err := rows.Scan(&l.ID, &l.EmailID, &l.URL, &l.AnchorText, &l.Domain,
			&l.LinkType, &l.RelevanceScore, &l.PipelineStatus, &result,
			&l.ExtractedAt, &l.EmailSubject); err != nil {
			return nil, err
		}
		unmarshalJSON(result, &l.PipelineResult)
		links = append(links, l)
	}
	return links, rows.Err()
}

// TypeBreakdown returns per-content-type counts and average relevance for
// typed links, most frequent first.
func (db *DB) TypeBreakdown() ([]TypeStat, error) {
	rows, err := db.Query(`
		SELECT link_type, COUNT(*), AVG(relevance_score)
		FROM extracted_links
		WHERE link_type != ''
		GROUP BY link_type
		ORDER BY COUNT(*) DESC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var stats []TypeStat
	for rows.Next() {
		var s TypeStat
		if err := rows.Scan(&s.Type, &s.Count, &s.AvgRelevance); err != nil {
			return nil, err
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// TopDomains returns the domains contributing the most non-skipped links.
func (db *DB) TopDomains(limit int) ([]DomainStat, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.Query(`
		SELECT domain, COUNT(*), AVG(relevance_score)
		FROM extracted_links
		WHERE pipeline_status != 'skipped' AND domain != ''
		GROUP BY domain
		ORDER BY COUNT(*) DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var stats []DomainStat
	for rows.Next() {
		var s DomainStat
		if err := rows.Scan(&s.Domain, &s.Count, &s.AvgRelevance); err != nil {
			return nil, err
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// LinkStatusCounts returns the pipeline-status histogram.
func (db *DB) LinkStatusCounts() (map[string]int64, error) {
	rows, err := db.Query(`
		SELECT pipeline_status, COUNT(*) FROM extracted_links GROUP BY pipeline_status`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[string]int64)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// CountPendingAbove counts pending links at or above the relevance threshold.
func (db *DB) CountPendingAbove(minRelevance float64) (int64, error) {
	var n int64
	err := db.QueryRow(`
		SELECT COUNT(*) FROM extracted_links
		WHERE pipeline_status = ? AND relevance_score >= ?`,
		LinkPending, minRelevance).Scan(&n)
	return n, err
}

// CountLinks returns total and pending link counts.
func (db *DB) CountLinks() (total, pending int64, err error) {
	err = db.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(pipeline_status = 'pending'), 0)
		FROM extracted_links`).Scan(&total, &pending)
	return total, pending, err
}

// ListLinksByEmail returns all links extracted from one email.
func (db *DB) ListLinksByEmail(emailID int64) ([]Link, error) {
	rows, err := db.Query(`
		SELECT `+linkColumns+` FROM extracted_links
		WHERE email_id = ? ORDER BY relevance_score DESC`, emailID)
	if err != nil {
		return nil, err
	}
	return collectLinks(rows)
}

func collectLinks(rows *sql.Rows) ([]Link, error) {
	defer func() { _ = rows.Close() }()

	var links []Link
	for rows.Next() {
		var l Link
		var result string
		if err := rows.Scan(&l.ID, &l.EmailID, &l.URL, &l.AnchorText, &l.Domain,
			&l.LinkType, &l.RelevanceScore, &l.PipelineStatus, &result,
			&l.ExtractedAt); err != nil {
			return nil, err
		}
		unmarshalJSON(result, &l.PipelineResult)
		links = append(links, l)
	}
	return links, rows.Err()
}

func (db *DB) getLink(id int64) (*Link, error) {
	rows, err := db.Query(`SELECT `+linkColumns+` FROM extracted_links WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	links, err := collectLinks(rows)
	if err != nil {
		return nil, err
	}
	if len(links) == 0 {
		return nil, nil
	}
	return &links[0], nil
}
