package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

const emailColumns = `id, message_id, uid, folder, from_address, from_name,
	to_addresses, cc_addresses, reply_to, subject, body_text, body_html,
	date_sent, date_synced, is_read, has_attachments, size_bytes, raw_headers`

// InsertEmail stores an email with insert-if-absent semantics on message_id.
// Returns true if the row was inserted, false if an email with the same
// message_id already exists (the existing row is never overwritten).
func (db *DB) InsertEmail(e *Email) (bool, error) {
	if e.DateSynced == 0 {
		e.DateSynced = time.Now().UnixMilli()
	}
	res, err := db.Exec(`
		INSERT INTO emails (message_id, uid, folder, from_address, from_name,
			to_addresses, cc_addresses, reply_to, subject, body_text, body_html,
			date_sent, date_synced, is_read, has_attachments, size_bytes, raw_headers)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(message_id) DO NOTHING`,
		e.MessageID, e.UID, e.Folder, e.FromAddress, e.FromName,
		marshalJSON(e.ToAddresses, "[]"), marshalJSON(e.CcAddresses, "[]"),
		e.ReplyTo, e.Subject, e.BodyText, e.BodyHTML,
		e.DateSent, e.DateSynced, e.IsRead, e.HasAttachments, e.SizeBytes,
		marshalJSON(e.RawHeaders, "{}"))
	if err != nil {
		return false, fmt.Errorf("insert email: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// GetEmail returns a single email by ID, or nil when absent.
func (db *DB) GetEmail(id int64) (*Email, error) {
	row := db.QueryRow(`SELECT `+emailColumns+` FROM emails WHERE id = ?`, id)
	e, err := scanEmail(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

// EmailFilter narrows ListEmails results.
type EmailFilter struct {
	Folder     string
	Category   string
	UnreadOnly bool
	Limit      int
	Offset     int
}

// ListEmails returns emails most-recent-first with optional filters.
func (db *DB) ListEmails(f EmailFilter) ([]Email, error) {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	var conds []string
	var args []any
	if f.Folder != "" {
		conds = append(conds, "folder = ?")
		args = append(args, f.Folder)
	}
	if f.Category != "" {
		conds = append(conds, `EXISTS (
			SELECT 1 FROM email_classifications c
			WHERE c.email_id = emails.id AND c.category = ?
		)`)
		args = append(args, f.Category)
	}
	if f.UnreadOnly {
		conds = append(conds, "is_read = 0")
	}
	query := `SELECT ` + emailColumns + ` FROM emails`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY date_sent DESC LIMIT ? OFFSET ?"
	args = append(args, f.Limit, f.Offset)

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var emails []Email
	for rows.Next() {
		e, err := scanEmail(rows)
		if err != nil {
			return nil, err
		}
		emails = append(emails, *e)
	}
	return emails, rows.Err()
}

// ListUnclassified returns emails with no classification row, most recent
// first, bounded by limit.
func (db *DB) ListUnclassified(limit int) ([]Email, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT `+emailColumns+` FROM emails e
		WHERE NOT EXISTS (
			SELECT 1 FROM email_classifications c WHERE c.email_id = e.id
		)
		ORDER BY date_sent DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var emails []Email
	for rows.Next() {
		e, err := scanEmail(rows)
		if err != nil {
			return nil, err
		}
		emails = append(emails, *e)
	}
	return emails, rows.Err()
}

// CountEmails returns the total number of stored emails.
func (db *DB) CountEmails() (int64, error) {
	var n int64
	err := db.QueryRow(`SELECT COUNT(*) FROM emails`).Scan(&n)
	return n, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEmail(r rowScanner) (*Email, error) {
	var e Email
	var to, cc, headers string
	err := r.Scan(&e.ID, &e.MessageID, &e.UID, &e.Folder, &e.FromAddress,
		&e.FromName, &to, &cc, &e.ReplyTo, &e.Subject, &e.BodyText,
		&e.BodyHTML, &e.DateSent, &e.DateSynced, &e.IsRead,
		&e.HasAttachments, &e.SizeBytes, &headers)
	if err != nil {
		return nil, err
	}
	unmarshalJSON(to, &e.ToAddresses)
	unmarshalJSON(cc, &e.CcAddresses)
	unmarshalJSON(headers, &e.RawHeaders)
	return &e, nil
}
