package store

import (
	"database/sql"
	"fmt"
)

const senderColumns = `id, email_address, display_name, sender_type,
	total_emails, emails_opened, emails_acted_on, links_extracted,
	first_seen, last_seen, relevance_score, suggested_action, updated_at`

// GetSenderProfile returns the profile for an address, or nil when absent.
func GetSenderProfile(q Querier, address string) (*SenderProfile, error) {
	row := q.QueryRow(`SELECT `+senderColumns+` FROM sender_profiles WHERE email_address = ?`, address)
	p, err := scanSender(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// InsertSenderProfile creates a profile on first sight of an address.
func InsertSenderProfile(q Querier, p *SenderProfile) error {
	res, err := q.Exec(`
		INSERT INTO sender_profiles
			(email_address, display_name, sender_type, total_emails, emails_opened,
			 emails_acted_on, links_extracted, first_seen, last_seen,
			 relevance_score, suggested_action, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.EmailAddress, p.DisplayName, p.SenderType, p.TotalEmails, p.EmailsOpened,
		p.EmailsActedOn, p.LinksExtracted, p.FirstSeen, p.LastSeen,
		nullableFloat(p.RelevanceScore), p.SuggestedAction, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert sender profile: %w", err)
	}
	p.ID, _ = res.LastInsertId()
	return nil
}

// UpdateSenderProfile writes back mutated aggregate fields.
func UpdateSenderProfile(q Querier, p *SenderProfile) error {
	_, err := q.Exec(`
		UPDATE sender_profiles
		SET display_name = ?, sender_type = ?, total_emails = ?, emails_opened = ?,
			emails_acted_on = ?, links_extracted = ?, first_seen = ?, last_seen = ?,
			relevance_score = ?, suggested_action = ?, updated_at = ?
		WHERE id = ?`,
		p.DisplayName, p.SenderType, p.TotalEmails, p.EmailsOpened,
		p.EmailsActedOn, p.LinksExtracted, p.FirstSeen, p.LastSeen,
		nullableFloat(p.RelevanceScore), p.SuggestedAction, p.UpdatedAt, p.ID)
	if err != nil {
		return fmt.Errorf("update sender profile: %w", err)
	}
	return nil
}

// ListLowEngagementSenders returns senders of the given types with at least
// minEmails messages whose rolling relevance is below maxRelevance or still
// unset, busiest first.
func (db *DB) ListLowEngagementSenders(types []string, minEmails int64, maxRelevance float64) ([]SenderProfile, error) {
	if len(types) == 0 {
		return nil, nil
	}
	args := make([]any, 0, len(types)+2)
	for _, t := range types {
		args = append(args, t)
	}
	args = append(args, minEmails, maxRelevance)

	rows, err := db.Query(`
		SELECT `+senderColumns+` FROM sender_profiles
		WHERE sender_type IN (`+placeholders(len(types))+`)
			AND total_emails >= ?
			AND (relevance_score < ? OR relevance_score IS NULL)
		ORDER BY total_emails DESC`, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var profiles []SenderProfile
	for rows.Next() {
		p, err := scanSender(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, *p)
	}
	return profiles, rows.Err()
}

// CountSenders returns the number of sender profiles.
func (db *DB) CountSenders() (int64, error) {
	var n int64
	err := db.QueryRow(`SELECT COUNT(*) FROM sender_profiles`).Scan(&n)
	return n, err
}

func scanSender(r rowScanner) (*SenderProfile, error) {
	var p SenderProfile
	var rel sql.NullFloat64
	err := r.Scan(&p.ID, &p.EmailAddress, &p.DisplayName, &p.SenderType,
		&p.TotalEmails, &p.EmailsOpened, &p.EmailsActedOn, &p.LinksExtracted,
		&p.FirstSeen, &p.LastSeen, &rel, &p.SuggestedAction, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if rel.Valid {
		v := rel.Float64
		p.RelevanceScore = &v
	}
	return &p, nil
}

func nullableFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}
