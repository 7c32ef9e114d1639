package ingest

import (
	"regexp"
	"strings"

	"github.com/coder92330/nylas-mail/internal/mail/domain"
	"github.com/coder92330/nylas-mail/internal/mail/repository"
)

var subjectPrefixRE = regexp.MustCompile(`(?i)^((re|fwd?|aw)(\[\d+\])?:\s*)+`)

// normalizeSubject strips reply/forward prefixes so replies thread with their
// originals.
func normalizeSubject(subject string) string {
	subject = strings.TrimSpace(subject)
	return strings.TrimSpace(subjectPrefixRE.ReplaceAllString(subject, ""))
}

// detectThread assigns the parsed message to a thread: first by following the
// reference chain (including the message's own id, so an earlier message that
// cited us pulls us in), then by normalized subject, finally by starting a
// new thread. The returned thread is unsaved when brand new (empty ID).
func detectThread(accountID string, parsed *ParsedMessage, threads repository.ThreadRepository, references repository.ReferenceRepository) (*domain.Thread, error) {
	candidates := make([]string, 0, len(parsed.References)+1)
	candidates = append(candidates, parsed.References...)
	if parsed.HeaderMessageID != "" && !contains(candidates, parsed.HeaderMessageID) {
		candidates = append(candidates, parsed.HeaderMessageID)
	}

	refs, err := references.FindByMessageIDs(accountID, candidates)
	if err != nil {
		return nil, err
	}
	for _, ref := range refs {
		if ref.ThreadID == "" {
			continue
		}
		thread, err := threads.FindByID(ref.ThreadID)
		if err != nil {
			return nil, err
		}
		if thread != nil {
			return thread, nil
		}
	}

	subject := normalizeSubject(parsed.Subject)
	if subject != "" {
		thread, err := threads.FindBySubject(accountID, subject)
		if err != nil {
			return nil, err
		}
		if thread != nil {
			return thread, nil
		}
	}

	return &domain.Thread{
		AccountID: accountID,
		Subject:   subject,
	}, nil
}
