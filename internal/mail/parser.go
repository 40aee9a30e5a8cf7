package mail

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/emersion/go-message/mail"

	"github.com/tduarte/mailmind/internal/store"
)

// ParsedMessage is the structured form of one raw RFC 5322 message.
type ParsedMessage struct {
	MessageID      string
	UID            uint32
	Folder         string
	FromAddress    string
	FromName       string
	ToAddresses    []store.Address
	CcAddresses    []store.Address
	ReplyTo        string
	Subject        string
	BodyText       string
	BodyHTML       string
	DateSent       int64
	IsRead         bool
	HasAttachments bool
	SizeBytes      int64
	RawHeaders     map[string]string
	Links          []string
}

// Only these headers are persisted; the rest of the header block is dropped.
var keptHeaders = []string{
	"From", "To", "Cc", "Subject", "Date", "Reply-To",
	"List-Unsubscribe", "X-Mailer", "DKIM-Signature",
}

var addressPattern = regexp.MustCompile(`[\w.+-]+@[\w-]+\.[\w.-]+`)

// Parse converts a raw message into a ParsedMessage. Parsing never fails
// outright: a message whose MIME structure cannot be read is stored with the
// raw bytes as plain text so sync progress is not blocked by one bad message.
func Parse(raw []byte, uid uint32, folder string, flags []string) *ParsedMessage {
	p := &ParsedMessage{
		UID:        uid,
		Folder:     folder,
		SizeBytes:  int64(len(raw)),
		RawHeaders: make(map[string]string),
	}
	for _, f := range flags {
		if f == `\Seen` {
			p.IsRead = true
		}
	}

	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		// Headers may still be readable even when the body structure is not.
		p.BodyText = string(raw)
		p.MessageID = fmt.Sprintf("<no-id-uid-%d@local>", uid)
		return p
	}
	defer func() { _ = mr.Close() }()

	h := mr.Header
	if id, err := h.MessageID(); err == nil && id != "" {
		p.MessageID = "<" + id + ">"
	} else {
		p.MessageID = fmt.Sprintf("<no-id-uid-%d@local>", uid)
	}
	p.Subject, _ = h.Subject()
	if date, err := h.Date(); err == nil && !date.IsZero() {
		p.DateSent = date.UnixMilli()
	}
	p.ReplyTo = h.Get("Reply-To")

	from := parseAddressList(h.Get("From"))
	if len(from) > 0 {
		p.FromAddress = from[0].Address
		p.FromName = from[0].Name
	}
	p.ToAddresses = parseAddressList(h.Get("To"))
	p.CcAddresses = parseAddressList(h.Get("Cc"))

	for _, name := range keptHeaders {
		if v := h.Get(name); v != "" {
			p.RawHeaders[name] = v
		}
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF || err != nil {
			break
		}
		switch ph := part.Header.(type) {
		case *mail.InlineHeader:
			contentType, _, _ := ph.ContentType()
			body, readErr := io.ReadAll(part.Body)
			if readErr != nil {
				continue
			}
			switch {
			case strings.HasPrefix(contentType, "text/plain") && p.BodyText == "":
				p.BodyText = string(body)
			case strings.HasPrefix(contentType, "text/html") && p.BodyHTML == "":
				p.BodyHTML = string(body)
			}
		case *mail.AttachmentHeader:
			p.HasAttachments = true
		}
	}

	if p.BodyText == "" && p.BodyHTML != "" {
		p.BodyText = htmlToText(p.BodyHTML)
	}

	p.Links = ExtractLinks(p.BodyHTML, p.BodyText)
	return p
}

// parseAddressList parses an address header value, falling back to a regex
// scan when the header is malformed (a common sight in marketing mail).
func parseAddressList(value string) []store.Address {
	if value == "" {
		return nil
	}
	var h mail.Header
	h.Set("To", value)
	addrs, err := h.AddressList("To")
	if err == nil && len(addrs) > 0 {
		out := make([]store.Address, 0, len(addrs))
		for _, a := range addrs {
			out = append(out, store.Address{Name: a.Name, Address: a.Address})
		}
		return out
	}

	var out []store.Address
	for _, m := range addressPattern.FindAllString(value, -1) {
		out = append(out, store.Address{Address: m})
	}
	return out
}

// Email converts the parsed message to its storage row.
func (p *ParsedMessage) Email() *store.Email {
	return &store.Email{
		MessageID:      strings.TrimSpace(p.MessageID),
		UID:            p.UID,
		Folder:         p.Folder,
		FromAddress:    p.FromAddress,
		FromName:       p.FromName,
		ToAddresses:    p.ToAddresses,
		CcAddresses:    p.CcAddresses,
		ReplyTo:        p.ReplyTo,
		Subject:        p.Subject,
		BodyText:       p.BodyText,
		BodyHTML:       p.BodyHTML,
		DateSent:       p.DateSent,
		IsRead:         p.IsRead,
		HasAttachments: p.HasAttachments,
		SizeBytes:      p.SizeBytes,
		RawHeaders:     p.RawHeaders,
	}
}
