package store

// ProcessingStats is the aggregate snapshot reported by the orchestrator.
type ProcessingStats struct {
	TotalEmails  int64            `json:"total_emails"`
	Classified   int64            `json:"classified"`
	Unclassified int64            `json:"unclassified"`
	Categories   map[string]int64 `json:"categories"`
	TotalLinks   int64            `json:"total_links"`
	PendingLinks int64            `json:"pending_links"`
	KnownSenders int64            `json:"known_senders"`
}

// ProcessingSnapshot gathers counts across emails, classifications, links and
// sender profiles. Reads are not transactional; the snapshot is advisory.
func (db *DB) ProcessingSnapshot() (*ProcessingStats, error) {
	s := &ProcessingStats{}

	var err error
	if s.TotalEmails, err = db.CountEmails(); err != nil {
		return nil, err
	}
	if err = db.QueryRow(`SELECT COUNT(DISTINCT email_id) FROM email_classifications`).Scan(&s.Classified); err != nil {
		return nil, err
	}
	s.Unclassified = s.TotalEmails - s.Classified
	if s.Categories, err = db.CategoryCounts(); err != nil {
		return nil, err
	}
	if s.TotalLinks, s.PendingLinks, err = db.CountLinks(); err != nil {
		return nil, err
	}
	if s.KnownSenders, err = db.CountSenders(); err != nil {
		return nil, err
	}
	return s, nil
}
