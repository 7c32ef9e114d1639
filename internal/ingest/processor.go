package ingest

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/coder92330/nylas-mail/internal/ingest/assembler"
	"github.com/coder92330/nylas-mail/internal/mail/domain"
	"github.com/coder92330/nylas-mail/internal/mail/repository"
	"github.com/coder92330/nylas-mail/internal/session"
)

// DataIntegrityError reports a processed message with no thread. This state
// cannot be reached through the pipeline's own writes, so it is surfaced
// loudly instead of silently repaired.
type DataIntegrityError struct {
	MessageID string
}

func (e *DataIntegrityError) Error() string {
	return fmt.Sprintf("data integrity error: processed message %s has no thread", e.MessageID)
}

// Processor turns one raw fetched message into persisted message, thread,
// reference, file and contact records. Every call is a single store
// transaction: either all records and their change-log entries commit, or
// none do.
type Processor struct {
	store  *repository.Store
	logger *logrus.Logger
}

func NewProcessor(store *repository.Store, logger *logrus.Logger) *Processor {
	return &Processor{store: store, logger: logger}
}

// txRepos bundles transaction-bound repositories for one processing pass.
type txRepos struct {
	messages   repository.MessageRepository
	threads    repository.ThreadRepository
	mailboxes  repository.MailboxRepository
	references repository.ReferenceRepository
	labels     repository.LabelRepository
	files      repository.FileRepository
	contacts   repository.ContactRepository
	assembler  *assembler.Assembler
}

func (p *Processor) repos(tx *gorm.DB) *txRepos {
	r := &txRepos{
		messages:   repository.NewMessageRepository(tx),
		threads:    repository.NewThreadRepository(tx),
		mailboxes:  repository.NewMailboxRepository(tx),
		references: repository.NewReferenceRepository(tx),
		labels:     repository.NewLabelRepository(tx),
		files:      repository.NewFileRepository(tx),
		contacts:   repository.NewContactRepository(tx),
	}
	r.assembler = assembler.New(r.threads, r.messages, r.mailboxes, p.logger)
	return r
}

// ProcessMessage ingests one fetched message for the given account/mailbox.
func (p *Processor) ProcessMessage(accountID, mailboxID string, fetched session.FetchedMessage) error {
	parsed, err := Parse(fetched)
	if err != nil {
		return fmt.Errorf("failed to parse message uid %d: %w", fetched.UID, err)
	}

	return p.store.Transaction(func(tx *gorm.DB, log *repository.ChangeLog) error {
		r := p.repos(tx)

		existing, err := r.messages.FindByHash(accountID, parsed.Hash)
		if err != nil {
			return err
		}
		if existing != nil {
			return p.processExisting(r, log, accountID, mailboxID, existing, parsed, fetched)
		}
		return p.processNew(r, log, accountID, mailboxID, parsed, fetched)
	})
}

func (p *Processor) processNew(r *txRepos, log *repository.ChangeLog, accountID, mailboxID string, parsed *ParsedMessage, fetched session.FetchedMessage) error {
	msg := &domain.Message{
		ID:              uuid.New().String(),
		AccountID:       accountID,
		MailboxID:       mailboxID,
		HeaderMessageID: parsed.HeaderMessageID,
		Hash:            parsed.Hash,
		Subject:         parsed.Subject,
		Snippet:         parsed.Snippet,
		Body:            parsed.Body,
		Date:            parsed.Date,
		Unread:          parsed.Unread,
		Starred:         parsed.Starred,
		From:            parsed.From,
		To:              parsed.To,
		Cc:              parsed.Cc,
		Bcc:             parsed.Bcc,
		UID:             fetched.UID,
	}

	msgLabels, err := p.upsertLabels(r, accountID, parsed.Labels)
	if err != nil {
		return err
	}
	msg.Labels = msgLabels

	thread, err := detectThread(accountID, parsed, r.threads, r.references)
	if err != nil {
		return fmt.Errorf("thread detection failed: %w", err)
	}
	newThread := thread.ID == ""

	if _, err := r.assembler.UpdateFromMessages(thread, []domain.Message{*msg}, false); err != nil {
		return fmt.Errorf("failed to update thread rollups: %w", err)
	}
	msg.ThreadID = thread.ID

	if err := r.messages.Create(msg); err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	if len(msgLabels) > 0 {
		if err := r.messages.SetLabels(msg, msgLabels); err != nil {
			return err
		}
	}

	if err := p.addReferences(r, accountID, msg, thread, parsed.References); err != nil {
		return fmt.Errorf("failed to persist references: %w", err)
	}

	hasAttachments, err := p.extractFiles(r, log, accountID, msg, parsed.Files)
	if err != nil {
		return fmt.Errorf("failed to extract files: %w", err)
	}
	if hasAttachments && !thread.HasAttachments {
		thread.HasAttachments = true
		if err := r.threads.Save(thread); err != nil {
			return err
		}
	}

	if err := p.extractContacts(r, log, accountID, msg); err != nil {
		return fmt.Errorf("failed to extract contacts: %w", err)
	}

	msg.Processed = true
	if err := r.messages.Save(msg); err != nil {
		return err
	}

	if err := log.Record(accountID, "message", msg.ID, domain.TransactionCreate); err != nil {
		return err
	}
	threadEvent := domain.TransactionModify
	if newThread {
		threadEvent = domain.TransactionCreate
	}
	return log.Record(accountID, "thread", thread.ID, threadEvent)
}

// processExisting handles a message whose canonical hash is already known:
// a locally-sent copy later observed from the server, or a message whose
// folder/flags changed remotely. Mutable fields update in place; the
// extraction steps run at most once, guarded by the processed flag.
func (p *Processor) processExisting(r *txRepos, log *repository.ChangeLog, accountID, mailboxID string, existing *domain.Message, parsed *ParsedMessage, fetched session.FetchedMessage) error {
	existing.Unread = parsed.Unread
	existing.Starred = parsed.Starred
	existing.MailboxID = mailboxID
	existing.UID = fetched.UID
	if existing.Body == "" {
		existing.Body = parsed.Body
		existing.Snippet = parsed.Snippet
	}

	if len(parsed.Labels) > 0 {
		msgLabels, err := p.upsertLabels(r, accountID, parsed.Labels)
		if err != nil {
			return err
		}
		if err := r.messages.SetLabels(existing, msgLabels); err != nil {
			return err
		}
		existing.Labels = msgLabels
	}

	var thread *domain.Thread
	var err error

	if !existing.Processed {
		if existing.ThreadID == "" {
			thread, err = detectThread(accountID, parsed, r.threads, r.references)
			if err != nil {
				return err
			}
			if _, err := r.assembler.UpdateFromMessages(thread, []domain.Message{*existing}, false); err != nil {
				return err
			}
			existing.ThreadID = thread.ID
		} else if thread, err = r.threads.FindByID(existing.ThreadID); err != nil {
			return err
		}

		if err := p.addReferences(r, accountID, existing, thread, parsed.References); err != nil {
			return err
		}
		hasAttachments, err := p.extractFiles(r, log, accountID, existing, parsed.Files)
		if err != nil {
			return err
		}
		if hasAttachments && !thread.HasAttachments {
			thread.HasAttachments = true
			if err := r.threads.Save(thread); err != nil {
				return err
			}
		}
		if err := p.extractContacts(r, log, accountID, existing); err != nil {
			return err
		}
		existing.Processed = true
	} else {
		if existing.ThreadID == "" {
			return &DataIntegrityError{MessageID: existing.ID}
		}
		if thread, err = r.threads.FindByID(existing.ThreadID); err != nil {
			return err
		}
	}

	if err := r.messages.Save(existing); err != nil {
		return err
	}
	if thread != nil {
		if err := r.assembler.UpdateLabelsAndFolders(thread); err != nil {
			return err
		}
		if err := log.Record(accountID, "thread", thread.ID, domain.TransactionModify); err != nil {
			return err
		}
	}
	return log.Record(accountID, "message", existing.ID, domain.TransactionModify)
}

// addReferences replaces cited message-ids with Reference rows, creating the
// ones never seen before, and links both the message and its thread to them.
// The declared citation order is preserved on the message, and a reference
// for the message's own id is recorded so later replies can find this thread.
func (p *Processor) addReferences(r *txRepos, accountID string, msg *domain.Message, thread *domain.Thread, cited []string) error {
	all := make([]string, 0, len(cited)+1)
	all = append(all, cited...)
	if msg.HeaderMessageID != "" && !contains(all, msg.HeaderMessageID) {
		all = append(all, msg.HeaderMessageID)
	}
	if len(all) == 0 {
		return nil
	}

	existing, err := r.references.FindByMessageIDs(accountID, all)
	if err != nil {
		return err
	}
	byMID := make(map[string]domain.Reference, len(existing))
	for _, ref := range existing {
		byMID[ref.RFC2822MessageID] = ref
	}
	for _, mid := range all {
		if _, ok := byMID[mid]; ok {
			continue
		}
		ref := domain.Reference{
			AccountID:        accountID,
			RFC2822MessageID: mid,
			ThreadID:         thread.ID,
		}
		if err := r.references.Create(&ref); err != nil {
			return err
		}
		byMID[mid] = ref
	}

	ordered := make([]domain.Reference, 0, len(cited))
	orderedIDs := make(domain.StringList, 0, len(cited))
	for _, mid := range cited {
		ref := byMID[mid]
		ordered = append(ordered, ref)
		orderedIDs = append(orderedIDs, ref.ID)
	}

	msg.ReferencesOrder = orderedIDs
	if len(ordered) > 0 {
		if err := r.messages.SetReferences(msg, ordered); err != nil {
			return err
		}
	}

	refs := make([]domain.Reference, 0, len(byMID))
	for _, ref := range byMID {
		refs = append(refs, ref)
	}
	return r.threads.AddReferences(thread, refs)
}

func (p *Processor) extractFiles(r *txRepos, log *repository.ChangeLog, accountID string, msg *domain.Message, parsed []ParsedFile) (bool, error) {
	hasAttachments := false
	for _, pf := range parsed {
		file := domain.File{
			AccountID:   accountID,
			MessageID:   msg.ID,
			Filename:    pf.Filename,
			ContentType: pf.ContentType,
			ContentID:   pf.ContentID,
			Size:        pf.Size,
		}
		if err := r.files.Create(&file); err != nil {
			return false, err
		}
		if err := log.Record(accountID, "file", file.ID, domain.TransactionCreate); err != nil {
			return false, err
		}
		if !file.IsInline() {
			hasAttachments = true
		}
	}
	return hasAttachments, nil
}

func (p *Processor) extractContacts(r *txRepos, log *repository.ChangeLog, accountID string, msg *domain.Message) error {
	for _, participant := range msg.Participants() {
		if participant.Email == "" {
			continue
		}
		contact, created, err := r.contacts.Upsert(accountID, participant.Email, participant.Name)
		if err != nil {
			return err
		}
		if created {
			if err := log.Record(accountID, "contact", contact.ID, domain.TransactionCreate); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *Processor) upsertLabels(r *txRepos, accountID string, names []string) ([]domain.Label, error) {
	if len(names) == 0 {
		return nil, nil
	}
	labels := make([]domain.Label, 0, len(names))
	for _, name := range names {
		label, err := r.labels.Upsert(accountID, name, roleForLabel(name))
		if err != nil {
			return nil, err
		}
		labels = append(labels, *label)
	}
	return labels, nil
}

func roleForLabel(name string) string {
	switch name {
	case "\\Sent", "[Gmail]/Sent Mail", "sent":
		return domain.RoleSent
	case "\\Inbox", "INBOX", "inbox":
		return domain.RoleInbox
	case "\\Draft", "\\Drafts", "drafts":
		return domain.RoleDrafts
	case "\\Spam", "spam":
		return domain.RoleSpam
	case "\\Trash", "trash":
		return domain.RoleTrash
	}
	return ""
}
