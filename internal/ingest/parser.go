package ingest

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/jhillyerd/enmime"

	"github.com/coder92330/nylas-mail/internal/mail/domain"
	"github.com/coder92330/nylas-mail/internal/session"
)

const snippetLength = 140

// ParsedFile is one extracted body part before persistence.
type ParsedFile struct {
	Filename    string
	ContentType string
	ContentID   string
	Size        int64
}

// ParsedMessage is the normalized form of one raw fetched message.
type ParsedMessage struct {
	HeaderMessageID string
	Hash            string

	Subject string
	Snippet string
	Body    string
	Date    time.Time

	From domain.ParticipantList
	To   domain.ParticipantList
	Cc   domain.ParticipantList
	Bcc  domain.ParticipantList

	// Cited message-ids in declared order (References, then In-Reply-To).
	References []string

	Labels []string

	Unread  bool
	Starred bool

	Files []ParsedFile
}

// Parse turns a raw fetched message into normalized values. The envelope is
// read with go-message, bodies and attachments with enmime.
func Parse(fetched session.FetchedMessage) (*ParsedMessage, error) {
	if len(fetched.Raw) == 0 {
		return nil, fmt.Errorf("fetched message %d has no body", fetched.UID)
	}

	reader, err := mail.CreateReader(bytes.NewReader(fetched.Raw))
	if err != nil {
		return nil, fmt.Errorf("failed to read message envelope: %w", err)
	}
	header := reader.Header

	parsed := &ParsedMessage{
		Unread:  true,
		Starred: false,
	}
	for _, flag := range fetched.Flags {
		switch flag {
		case `\Seen`:
			parsed.Unread = false
		case `\Flagged`:
			parsed.Starred = true
		}
	}

	parsed.Subject, _ = header.Subject()

	if date, err := header.Date(); err == nil && !date.IsZero() {
		parsed.Date = date
	} else {
		parsed.Date = fetched.InternalDate
	}

	if mid, err := header.MessageID(); err == nil {
		parsed.HeaderMessageID = mid
	}

	parsed.From = addressList(header, "From")
	parsed.To = addressList(header, "To")
	parsed.Cc = addressList(header, "Cc")
	parsed.Bcc = addressList(header, "Bcc")

	if refs, err := header.MsgIDList("References"); err == nil {
		parsed.References = append(parsed.References, refs...)
	}
	if replies, err := header.MsgIDList("In-Reply-To"); err == nil {
		for _, mid := range replies {
			if !contains(parsed.References, mid) {
				parsed.References = append(parsed.References, mid)
			}
		}
	}

	parsed.Hash = hashMessage(parsed)

	env, err := enmime.ReadEnvelope(bytes.NewReader(fetched.Raw))
	if err != nil {
		// Envelope parsed fine; keep the message with an empty body rather
		// than failing the whole ingestion
		parsed.Snippet = ""
		return parsed, nil
	}

	parsed.Body = env.Text
	if parsed.Body == "" {
		parsed.Body = env.HTML
	}
	parsed.Snippet = makeSnippet(env.Text)

	for _, part := range env.Attachments {
		parsed.Files = append(parsed.Files, ParsedFile{
			Filename:    part.FileName,
			ContentType: part.ContentType,
			Size:        int64(len(part.Content)),
		})
	}
	for _, part := range env.Inlines {
		if part.ContentID == "" && part.FileName == "" {
			continue
		}
		parsed.Files = append(parsed.Files, ParsedFile{
			Filename:    part.FileName,
			ContentType: part.ContentType,
			ContentID:   part.ContentID,
			Size:        int64(len(part.Content)),
		})
	}

	return parsed, nil
}

// hashMessage computes the canonical content hash over identity-bearing
// headers. Two fetches of the same logical message (e.g. a locally-sent copy
// later observed on the server) produce the same hash.
func hashMessage(p *ParsedMessage) string {
	var b strings.Builder
	b.WriteString(p.HeaderMessageID)
	b.WriteString("\x00")
	b.WriteString(p.Subject)
	b.WriteString("\x00")
	for _, list := range []domain.ParticipantList{p.From, p.To, p.Cc} {
		for _, participant := range list {
			b.WriteString(participant.Email)
			b.WriteString(",")
		}
		b.WriteString("\x00")
	}
	b.WriteString(p.Date.UTC().Format(time.RFC3339))
	return domain.HashForHeaders(b.String())
}

func addressList(header mail.Header, key string) domain.ParticipantList {
	addrs, err := header.AddressList(key)
	if err != nil {
		return nil
	}
	out := make(domain.ParticipantList, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, domain.Participant{Name: a.Name, Email: a.Address})
	}
	return out
}

func makeSnippet(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	// Truncate in runes so a multi-byte character is never split.
	runes := []rune(text)
	if len(runes) > snippetLength {
		return string(runes[:snippetLength])
	}
	return text
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
