package ingest

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/coder92330/nylas-mail/internal/session"
)

func rawMessage(headers map[string]string, body string) []byte {
	var b strings.Builder
	for key, value := range headers {
		b.WriteString(key)
		b.WriteString(": ")
		b.WriteString(value)
		b.WriteString("\r\n")
	}
	b.WriteString("\r\n")
	b.WriteString(body)
	return []byte(b.String())
}

func simpleHeaders() map[string]string {
	return map[string]string{
		"From":       "Alice <alice@example.com>",
		"To":         "Bob <bob@example.com>",
		"Subject":    "Quarterly report",
		"Date":       "Mon, 02 Jan 2023 15:04:05 +0000",
		"Message-ID": "<m1@example.com>",
	}
}

func TestParseEnvelope(t *testing.T) {
	headers := simpleHeaders()
	headers["References"] = "<r1@example.com> <r2@example.com>"
	headers["In-Reply-To"] = "<r2@example.com>"

	parsed, err := Parse(session.FetchedMessage{
		UID:   7,
		Flags: []string{`\Seen`},
		Raw:   rawMessage(headers, "The numbers look good.\r\n"),
	})
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if parsed.Subject != "Quarterly report" {
		t.Fatalf("subject = %q", parsed.Subject)
	}
	if parsed.HeaderMessageID != "m1@example.com" {
		t.Fatalf("message id = %q", parsed.HeaderMessageID)
	}
	if parsed.Unread {
		t.Fatal("seen message should not be unread")
	}
	if len(parsed.From) != 1 || parsed.From[0].Email != "alice@example.com" {
		t.Fatalf("from = %+v", parsed.From)
	}
	if len(parsed.References) != 2 || parsed.References[0] != "r1@example.com" || parsed.References[1] != "r2@example.com" {
		t.Fatalf("references = %v", parsed.References)
	}
	if !strings.Contains(parsed.Body, "The numbers look good.") {
		t.Fatalf("body = %q", parsed.Body)
	}
	if parsed.Date.IsZero() {
		t.Fatal("date not parsed")
	}
}

func TestParseFlagsDefaultUnread(t *testing.T) {
	parsed, err := Parse(session.FetchedMessage{
		UID:   1,
		Flags: []string{`\Flagged`},
		Raw:   rawMessage(simpleHeaders(), "hi"),
	})
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if !parsed.Unread {
		t.Fatal("message without \\Seen should be unread")
	}
	if !parsed.Starred {
		t.Fatal("flagged message should be starred")
	}
}

func TestParseFallsBackToInternalDate(t *testing.T) {
	headers := simpleHeaders()
	delete(headers, "Date")
	internal := time.Date(2023, 6, 1, 10, 0, 0, 0, time.UTC)

	parsed, err := Parse(session.FetchedMessage{
		UID:          1,
		InternalDate: internal,
		Raw:          rawMessage(headers, "hi"),
	})
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if !parsed.Date.Equal(internal) {
		t.Fatalf("date = %v, want internal date", parsed.Date)
	}
}

func TestParseHashStable(t *testing.T) {
	fetched := session.FetchedMessage{UID: 1, Raw: rawMessage(simpleHeaders(), "hi")}

	first, err := Parse(fetched)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	second, err := Parse(fetched)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if first.Hash != second.Hash {
		t.Fatal("same message must hash identically")
	}

	other := simpleHeaders()
	other["Subject"] = "Different subject"
	third, err := Parse(session.FetchedMessage{UID: 1, Raw: rawMessage(other, "hi")})
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if third.Hash == first.Hash {
		t.Fatal("different subject must change the hash")
	}
}

func TestParseAttachment(t *testing.T) {
	raw := []byte("From: Alice <alice@example.com>\r\n" +
		"To: Bob <bob@example.com>\r\n" +
		"Subject: With attachment\r\n" +
		"Date: Mon, 02 Jan 2023 15:04:05 +0000\r\n" +
		"Message-ID: <m2@example.com>\r\n" +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: multipart/mixed; boundary=\"b1\"\r\n" +
		"\r\n" +
		"--b1\r\n" +
		"Content-Type: text/plain\r\n" +
		"\r\n" +
		"See attached.\r\n" +
		"--b1\r\n" +
		"Content-Type: application/pdf; name=\"report.pdf\"\r\n" +
		"Content-Disposition: attachment; filename=\"report.pdf\"\r\n" +
		"\r\n" +
		"fake pdf bytes\r\n" +
		"--b1--\r\n")

	parsed, err := Parse(session.FetchedMessage{UID: 2, Raw: raw})
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(parsed.Files) != 1 {
		t.Fatalf("files = %+v, want one attachment", parsed.Files)
	}
	if parsed.Files[0].Filename != "report.pdf" {
		t.Fatalf("filename = %q", parsed.Files[0].Filename)
	}
	if parsed.Files[0].ContentID != "" {
		t.Fatal("attachment should not carry a content id")
	}
	if !strings.Contains(parsed.Body, "See attached.") {
		t.Fatalf("body = %q", parsed.Body)
	}
}

func TestMakeSnippetRuneBoundary(t *testing.T) {
	snippet := makeSnippet(strings.Repeat("é", 200))
	if !utf8.ValidString(snippet) {
		t.Fatalf("snippet %q is not valid UTF-8", snippet)
	}
	if got := utf8.RuneCountInString(snippet); got != 140 {
		t.Fatalf("snippet runes = %d, want 140", got)
	}

	if got := makeSnippet("  short\t text "); got != "short text" {
		t.Fatalf("snippet = %q, whitespace should collapse", got)
	}
}

func TestParseRejectsEmpty(t *testing.T) {
	if _, err := Parse(session.FetchedMessage{UID: 3}); err == nil {
		t.Fatal("expected error for empty message")
	}
}
