package store

import (
	"database/sql"
	"fmt"
	"time"
)

const proposalColumns = `id, proposal_type, title, description, affected_count,
	affected_query, proposed_action, status, created_at, reviewed_at, executed_at`

// InsertProposal stores a new cleanup proposal in pending status.
func (db *DB) InsertProposal(p *Proposal) error {
	if p.Status == "" {
		p.Status = ProposalPending
	}
	if p.CreatedAt == 0 {
		p.CreatedAt = time.Now().UnixMilli()
	}
	res, err := db.Exec(`
		INSERT INTO cleanup_proposals
			(proposal_type, title, description, affected_count, affected_query,
			 proposed_action, status, created_at, reviewed_at, executed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.Type, p.Title, p.Description, p.AffectedCount,
		marshalJSON(p.AffectedQuery, "{}"), marshalJSON(p.ProposedAction, "{}"),
		p.Status, p.CreatedAt, p.ReviewedAt, p.ExecutedAt)
	if err != nil {
		return fmt.Errorf("insert proposal: %w", err)
	}
	p.ID, _ = res.LastInsertId()
	return nil
}

// InsertProposalItem stores one supporting item for a proposal.
func (db *DB) InsertProposalItem(it *ProposalItem) error {
	if it.ItemStatus == "" {
		it.ItemStatus = ProposalPending
	}
	res, err := db.Exec(`
		INSERT INTO proposal_items
			(proposal_id, email_id, sender_id, link_id, action, reason, item_status)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		it.ProposalID, nullableID(it.EmailID), nullableID(it.SenderID),
		nullableID(it.LinkID), it.Action, it.Reason, it.ItemStatus)
	if err != nil {
		return fmt.Errorf("insert proposal item: %w", err)
	}
	it.ID, _ = res.LastInsertId()
	return nil
}

// GetProposal returns a proposal by ID, or nil when absent.
func (db *DB) GetProposal(id int64) (*Proposal, error) {
	row := db.QueryRow(`SELECT `+proposalColumns+` FROM cleanup_proposals WHERE id = ?`, id)
	p, err := scanProposal(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// SetProposalStatus transitions a proposal from one status to another,
// stamping reviewed_at. Returns false when the proposal was not in the
// expected current status (conflict; nothing changed).
func (db *DB) SetProposalStatus(id int64, from, to string) (bool, error) {
	res, err := db.Exec(`
		UPDATE cleanup_proposals
		SET status = ?, reviewed_at = ?
		WHERE id = ? AND status = ?`,
		to, time.Now().UnixMilli(), id, from)
	if err != nil {
		return false, fmt.Errorf("set proposal status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListProposals returns proposals newest first, optionally filtered by status.
func (db *DB) ListProposals(status string) ([]Proposal, error) {
	query := `SELECT ` + proposalColumns + ` FROM cleanup_proposals`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var proposals []Proposal
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, err
		}
		proposals = append(proposals, *p)
	}
	return proposals, rows.Err()
}

// ListProposalItems returns the evidence items for one proposal.
func (db *DB) ListProposalItems(proposalID int64) ([]ProposalItem, error) {
	rows, err := db.Query(`
		SELECT id, proposal_id, COALESCE(email_id, 0), COALESCE(sender_id, 0),
			COALESCE(link_id, 0), action, reason, item_status
		FROM proposal_items WHERE proposal_id = ?`, proposalID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var items []ProposalItem
	for rows.Next() {
		var it ProposalItem
		if err := rows.Scan(&it.ID, &it.ProposalID, &it.EmailID, &it.SenderID,
			&it.LinkID, &it.Action, &it.Reason, &it.ItemStatus); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func scanProposal(r rowScanner) (*Proposal, error) {
	var p Proposal
	var query, action string
	err := r.Scan(&p.ID, &p.Type, &p.Title, &p.Description, &p.AffectedCount,
		&query, &action, &p.Status, &p.CreatedAt, &p.ReviewedAt, &p.ExecutedAt)
	if err != nil {
		return nil, err
	}
	unmarshalJSON(query, &p.AffectedQuery)
	unmarshalJSON(action, &p.ProposedAction)
	return &p, nil
}

func nullableID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}
