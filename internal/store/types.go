package store

import "encoding/json"

// Link pipeline statuses. Transitions are one-directional:
// pending -> queued -> extracted, or pending -> skipped.
const (
	LinkPending   = "pending"
	LinkQueued    = "queued"
	LinkExtracted = "extracted"
	LinkSkipped   = "skipped"
)

// Proposal lifecycle statuses.
const (
	ProposalPending  = "pending"
	ProposalApproved = "approved"
	ProposalRejected = "rejected"
	ProposalExecuted = "executed"
)

// Address is one parsed mailbox from an address header.
type Address struct {
	Name    string `json:"name,omitempty"`
	Address string `json:"address"`
}

// Email represents a synced message. Immutable once stored except for flags.
// Timestamps are Unix milliseconds.
type Email struct {
	ID             int64             `json:"id"`
	MessageID      string            `json:"message_id"`
	UID            uint32            `json:"uid"`
	Folder         string            `json:"folder"`
	FromAddress    string            `json:"from_address"`
	FromName       string            `json:"from_name"`
	ToAddresses    []Address         `json:"to_addresses"`
	CcAddresses    []Address         `json:"cc_addresses,omitempty"`
	ReplyTo        string            `json:"reply_to,omitempty"`
	Subject        string            `json:"subject"`
	BodyText       string            `json:"body_text"`
	BodyHTML       string            `json:"body_html,omitempty"`
	DateSent       int64             `json:"date_sent"`
	DateSynced     int64             `json:"date_synced"`
	IsRead         bool              `json:"is_read"`
	HasAttachments bool              `json:"has_attachments"`
	SizeBytes      int64             `json:"size_bytes"`
	RawHeaders     map[string]string `json:"raw_headers,omitempty"`
}

// SyncState is the per-folder high-water-mark cursor. LastUID only increases.
type SyncState struct {
	ID          int64  `json:"id"`
	Folder      string `json:"folder"`
	LastUID     uint32 `json:"last_uid"`
	LastSync    int64  `json:"last_sync"`
	TotalSynced int64  `json:"total_synced"`
}

// Classification is an AI-derived verdict for one email.
type Classification struct {
	ID             int64    `json:"id"`
	EmailID        int64    `json:"email_id"`
	Category       string   `json:"category"`
	Confidence     float64  `json:"confidence"`
	Topics         []string `json:"topics"`
	RelevanceScore float64  `json:"relevance_score"`
	Summary        string   `json:"summary"`
	ModelUsed      string   `json:"model_used"`
	ClassifiedAt   int64    `json:"classified_at"`
}

// Link is a URL extracted from an email with AI scoring and pipeline state.
type Link struct {
	ID             int64          `json:"id"`
	EmailID        int64          `json:"email_id"`
	URL            string         `json:"url"`
	AnchorText     string         `json:"anchor_text,omitempty"`
	Domain         string         `json:"domain"`
	LinkType       string         `json:"link_type"`
	RelevanceScore float64        `json:"relevance_score"`
	PipelineStatus string         `json:"pipeline_status"`
	PipelineResult map[string]any `json:"pipeline_result,omitempty"`
	ExtractedAt    int64          `json:"extracted_at"`
}

// LinkWithSubject joins a link to its originating email's subject line.
type LinkWithSubject struct {
	Link
	EmailSubject string `json:"email_subject"`
}

// SenderProfile aggregates intelligence about one sender address.
// RelevanceScore is nil until the first classification lands.
type SenderProfile struct {
	ID              int64    `json:"id"`
	EmailAddress    string   `json:"email_address"`
	DisplayName     string   `json:"display_name,omitempty"`
	SenderType      string   `json:"sender_type"`
	TotalEmails     int64    `json:"total_emails"`
	EmailsOpened    int64    `json:"emails_opened"`
	EmailsActedOn   int64    `json:"emails_acted_on"`
	LinksExtracted  int64    `json:"links_extracted"`
	FirstSeen       int64    `json:"first_seen"`
	LastSeen        int64    `json:"last_seen"`
	RelevanceScore  *float64 `json:"relevance_score"`
	SuggestedAction string   `json:"suggested_action,omitempty"`
	UpdatedAt       int64    `json:"updated_at"`
}

// Proposal is a generated cleanup recommendation with a review lifecycle.
type Proposal struct {
	ID             int64          `json:"id"`
	Type           string         `json:"proposal_type"`
	Title          string         `json:"title"`
	Description    string         `json:"description"`
	AffectedCount  int64          `json:"affected_count"`
	AffectedQuery  map[string]any `json:"affected_query,omitempty"`
	ProposedAction map[string]any `json:"proposed_action,omitempty"`
	Status         string         `json:"status"`
	CreatedAt      int64          `json:"created_at"`
	ReviewedAt     int64          `json:"reviewed_at,omitempty"`
	ExecutedAt     int64          `json:"executed_at,omitempty"`
}

// ProposalItem is one piece of evidence supporting a proposal. Reference IDs
// are 0 when the item does not point at that entity.
type ProposalItem struct {
	ID         int64  `json:"id"`
	ProposalID int64  `json:"proposal_id"`
	EmailID    int64  `json:"email_id,omitempty"`
	SenderID   int64  `json:"sender_id,omitempty"`
	LinkID     int64  `json:"link_id,omitempty"`
	Action     string `json:"action"`
	Reason     string `json:"reason"`
	ItemStatus string `json:"item_status"`
}

// TypeStat is an aggregate row for one link content type.
type TypeStat struct {
	Type         string  `json:"type"`
	Count        int64   `json:"count"`
	AvgRelevance float64 `json:"avg_relevance"`
}

// DomainStat is an aggregate row for one link domain.
type DomainStat struct {
	Domain       string  `json:"domain"`
	Count        int64   `json:"count"`
	AvgRelevance float64 `json:"avg_relevance"`
}

// marshalJSON serializes v for a JSON text column, falling back to the given
// empty literal on error or nil.
func marshalJSON(v any, empty string) string {
	if v == nil {
		return empty
	}
	data, err := json.Marshal(v)
	if err != nil {
		return empty
	}
	return string(data)
}

// unmarshalJSON deserializes a JSON text column into out, ignoring empty or
// malformed payloads.
func unmarshalJSON(data string, out any) {
	if data == "" {
		return
	}
	_ = json.Unmarshal([]byte(data), out)
}
