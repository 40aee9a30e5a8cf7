package store

import (
	"fmt"
	"time"
)

// InsertClassification stores one AI verdict for an email. Runs on a plain
// DB or inside the orchestrator's per-message transaction.
func InsertClassification(q Querier, c *Classification) error {
	if c.ClassifiedAt == 0 {
		c.ClassifiedAt = time.Now().UnixMilli()
	}
	res, err := q.Exec(`
		INSERT INTO email_classifications
			(email_id, category, confidence, topics, relevance_score, summary, model_used, classified_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.EmailID, c.Category, c.Confidence, marshalJSON(c.Topics, "[]"),
		c.RelevanceScore, c.Summary, c.ModelUsed, c.ClassifiedAt)
	if err != nil {
		return fmt.Errorf("insert classification: %w", err)
	}
	c.ID, _ = res.LastInsertId()
	return nil
}

// CountClassifications returns the total number of classification rows.
func (db *DB) CountClassifications() (int64, error) {
	var n int64
	err := db.QueryRow(`SELECT COUNT(*) FROM email_classifications`).Scan(&n)
	return n, err
}

// CategoryCounts returns classification counts grouped by category.
func (db *DB) CategoryCounts() (map[string]int64, error) {
	rows, err := db.Query(`
		SELECT category, COUNT(*) FROM email_classifications GROUP BY category`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[string]int64)
	for rows.Next() {
		var cat string
		var n int64
		if err := rows.Scan(&cat, &n); err != nil {
			return nil, err
		}
		counts[cat] = n
	}
	return counts, rows.Err()
}

// ArchivableByCategory counts read emails sent before cutoff whose latest
// classification falls in the given categories, grouped by category.
func (db *DB) ArchivableByCategory(cutoff int64, categories []string) (map[string]int64, error) {
	if len(categories) == 0 {
		return map[string]int64{}, nil
	}
	query := `
		SELECT c.category, COUNT(*)
		FROM emails e
		JOIN email_classifications c ON c.email_id = e.id
			AND c.id = (SELECT MAX(id) FROM email_classifications WHERE email_id = e.id)
		WHERE e.is_read = 1 AND e.date_sent > 0 AND e.date_sent < ?
			AND c.category IN (` + placeholders(len(categories)) + `)
		GROUP BY c.category`
	args := make([]any, 0, len(categories)+1)
	args = append(args, cutoff)
	for _, c := range categories {
		args = append(args, c)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[string]int64)
	for rows.Next() {
		var cat string
		var n int64
		if err := rows.Scan(&cat, &n); err != nil {
			return nil, err
		}
		counts[cat] = n
	}
	return counts, rows.Err()
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	out := "?"
	for i := 1; i < n; i++ {
		out += ", ?"
	}
	return out
}
