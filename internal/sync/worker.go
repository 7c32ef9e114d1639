package sync

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	accountdomain "github.com/coder92330/nylas-mail/internal/account/domain"
	accountrepo "github.com/coder92330/nylas-mail/internal/account/repository"
	"github.com/coder92330/nylas-mail/internal/ingest"
	"github.com/coder92330/nylas-mail/internal/mail/domain"
	mailrepo "github.com/coder92330/nylas-mail/internal/mail/repository"
	"github.com/coder92330/nylas-mail/internal/session"
	"github.com/coder92330/nylas-mail/internal/sync/backoff"
	"github.com/coder92330/nylas-mail/pkg/bus"
	"github.com/coder92330/nylas-mail/pkg/crypto"
)

// activityWindow is how long a manual trigger keeps the account on the
// active poll interval.
const activityWindow = 5 * time.Minute

// Deps carries everything a worker needs besides its account id.
type Deps struct {
	Accounts  accountrepo.AccountRepository
	Mailboxes mailrepo.MailboxRepository
	Syncbacks mailrepo.SyncbackRepository
	Connector session.Connector
	Pipeline  *ingest.Pipeline
	Bus       *bus.Bus
	Logger    *logrus.Logger
	Secret    string
	Retry     backoff.Scheduler
}

// Worker owns the sync lifecycle of one account: connect, replay pending
// syncback requests, fetch every mailbox, then idle or sleep until the next
// trigger. All failures funnel through a single recovery point; transport
// errors reschedule with backoff, everything else sticks to the account and
// suspends automatic cycles until the account is edited.
type Worker struct {
	accountID string
	deps      Deps
	logger    *logrus.Entry

	session session.Session
	syncNow chan struct{}

	attempt       int
	lastActivity  atomic.Int64
	idleCancel    context.CancelFunc
	idleDone      chan struct{}
	sessionBroken bool
}

func NewWorker(accountID string, deps Deps) *Worker {
	if deps.Retry == nil {
		deps.Retry = backoff.Exponential{
			Base:   2 * time.Second,
			Max:    5 * time.Minute,
			Jitter: true,
		}
	}
	return &Worker{
		accountID: accountID,
		deps:      deps,
		logger:    deps.Logger.WithField("account_id", accountID),
		syncNow:   make(chan struct{}, 1),
	}
}

// SyncNow requests a sync cycle as soon as possible. Safe from any goroutine;
// coalesces with an already-pending request.
func (w *Worker) SyncNow() {
	w.lastActivity.Store(time.Now().UnixNano())
	select {
	case w.syncNow <- struct{}{}:
	default:
	}
}

// Run drives the worker until ctx is cancelled. Meant to run as a goroutine,
// one per account, owned by the Manager.
func (w *Worker) Run(ctx context.Context) {
	events, cancel := w.deps.Bus.Subscribe(w.accountID)
	defer cancel()
	defer w.closeSession()

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			w.stopIdle()
			return
		case <-timer.C:
		case <-w.syncNow:
		case evt, ok := <-events:
			if !ok {
				w.stopIdle()
				return
			}
			if evt.Kind != bus.EventAccountUpdated {
				continue
			}
			// Settings or credentials changed; drop the session so the next
			// cycle reconnects with fresh material.
			w.stopIdle()
			w.closeSession()
		}

		w.stopIdle()
		if w.sessionBroken {
			w.closeSession()
			w.sessionBroken = false
		}

		account, err := w.deps.Accounts.FindByID(w.accountID)
		if err != nil {
			w.logger.WithError(err).Error("Could not load account")
			w.schedule(timer, w.deps.Retry.NextDelay(w.attempt))
			w.attempt++
			continue
		}
		if account == nil {
			w.logger.Info("Account removed, stopping worker")
			return
		}
		if account.Errored() {
			// Suspended until the account is edited; no reschedule.
			continue
		}

		syncErr := w.syncOnce(ctx, account)
		if ctx.Err() != nil {
			return
		}
		w.recover(timer, account, syncErr)
	}
}

// schedule arms the next cycle. A non-positive delay means "do not
// reschedule"; only a push event or manual trigger wakes the worker then.
func (w *Worker) schedule(timer *time.Timer, delay time.Duration) {
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
	if delay <= 0 {
		return
	}
	timer.Reset(delay)
}

// recover is the single post-cycle decision point.
func (w *Worker) recover(timer *time.Timer, account *accountdomain.Account, err error) {
	if err == nil {
		w.attempt = 0
		active := time.Since(time.Unix(0, w.lastActivity.Load())) < activityWindow
		w.schedule(timer, account.SyncPolicy.Interval(active))
		return
	}

	if IsTransport(err) {
		w.logger.WithError(err).Warn("Sync cycle hit transport failure, will retry")
		w.closeSession()
		w.schedule(timer, w.deps.Retry.NextDelay(w.attempt))
		w.attempt++
		return
	}

	w.logger.WithError(err).Error("Sync cycle failed, suspending account")
	w.closeSession()
	kind := "sync"
	if IsConfiguration(err) {
		kind = "configuration"
	}
	var integrity *ProtocolIntegrityError
	if errors.As(err, &integrity) {
		kind = "protocol-integrity"
	}
	if setErr := w.deps.Accounts.SetSyncError(w.accountID, accountdomain.SyncError{
		Kind:       kind,
		Message:    err.Error(),
		OccurredAt: time.Now().UTC(),
	}); setErr != nil {
		w.logger.WithError(setErr).Error("Could not persist sync error")
	}
}

func (w *Worker) syncOnce(ctx context.Context, account *accountdomain.Account) error {
	if err := w.ensureSession(ctx, account); err != nil {
		return err
	}

	boxes, err := w.refreshMailboxes(ctx, account)
	if err != nil {
		return err
	}

	if err := w.replaySyncbacks(ctx, account); err != nil {
		return err
	}

	for _, mb := range boxes {
		if err := w.syncMailbox(ctx, account, mb); err != nil {
			return err
		}
	}

	now := time.Now().UTC()
	if err := w.deps.Accounts.SetLastSyncCompletedAt(account.ID, now); err != nil {
		return err
	}
	w.logger.WithField("mailboxes", len(boxes)).Info("Sync cycle completed")

	switch account.SyncPolicy.AfterSync {
	case accountdomain.AfterSyncIdle:
		w.startIdle(ctx)
	case accountdomain.AfterSyncClose, "":
		w.closeSession()
	default:
		w.logger.WithField("after_sync", account.SyncPolicy.AfterSync).
			Error("Unknown after-sync policy, closing session")
		w.closeSession()
	}
	return nil
}

// ensureSession decrypts the stored credentials and opens a session when none
// is held. Credential problems are configuration errors; dial and auth
// problems are transport errors.
func (w *Worker) ensureSession(ctx context.Context, account *accountdomain.Account) error {
	if w.session != nil {
		return nil
	}

	creds, err := DecryptCredentials(account.Credentials, w.deps.Secret)
	if err != nil {
		return &ConfigurationError{Reason: err.Error()}
	}
	if account.ConnectionSettings.IMAPHost == "" {
		return &ConfigurationError{Reason: "account has no IMAP host"}
	}

	s, err := w.deps.Connector.Connect(ctx, account.ConnectionSettings, *creds)
	if err != nil {
		return &TransportError{Err: err}
	}
	w.session = s
	return nil
}

func (w *Worker) closeSession() {
	if w.session == nil {
		return
	}
	if err := w.session.Close(); err != nil {
		w.logger.WithError(err).Debug("Session close failed")
	}
	w.session = nil
}

// refreshMailboxes lists the remote containers, verifies provider invariants
// and upserts the local mailbox rows. Returned in fetch priority order.
func (w *Worker) refreshMailboxes(ctx context.Context, account *accountdomain.Account) ([]*domain.Mailbox, error) {
	infos, err := w.session.ListMailboxes(ctx)
	if err != nil {
		return nil, &TransportError{Err: err}
	}

	if account.Provider == accountdomain.ProviderGmail {
		names := make(map[string]bool, len(infos))
		for _, info := range infos {
			names[info.Name] = true
		}
		for _, canonical := range domain.GmailCanonicalMailboxes {
			if !names[canonical] {
				return nil, &ProtocolIntegrityError{
					Reason: "account is missing canonical mailbox " + canonical,
				}
			}
		}
	}

	var boxes []*domain.Mailbox
	for _, info := range infos {
		if hasAttribute(info.Attributes, `\Noselect`) {
			continue
		}
		mb, err := w.deps.Mailboxes.Upsert(account.ID, info.Name, classifyMailbox(info))
		if err != nil {
			return nil, err
		}
		// Gmail exposes every message through the canonical containers;
		// fetching label folders on top would ingest each message once per
		// label. Other folders still get local rows for role mapping.
		if account.Provider == accountdomain.ProviderGmail && !isGmailCanonical(info.Name) {
			continue
		}
		boxes = append(boxes, mb)
	}

	sortByPriority(boxes)
	return boxes, nil
}

func isGmailCanonical(name string) bool {
	for _, canonical := range domain.GmailCanonicalMailboxes {
		if name == canonical {
			return true
		}
	}
	return false
}

// replaySyncbacks applies pending local edits to the remote mailbox. A failed
// request is marked and skipped; it never blocks the fetch pass.
func (w *Worker) replaySyncbacks(ctx context.Context, account *accountdomain.Account) error {
	pending, err := w.deps.Syncbacks.FindPending(account.ID)
	if err != nil {
		return err
	}
	for _, req := range pending {
		op, err := buildOperation(req)
		if err != nil {
			w.logger.WithError(err).Warn("Unusable syncback request")
			if err := w.deps.Syncbacks.MarkFailed(req.ID, err.Error()); err != nil {
				return err
			}
			continue
		}
		if err := w.session.RunOperation(ctx, op); err != nil {
			w.logger.WithFields(logrus.Fields{"syncback_id": req.ID, "type": req.Type}).
				WithError(err).Warn("Syncback operation failed")
			if err := w.deps.Syncbacks.MarkFailed(req.ID, err.Error()); err != nil {
				return err
			}
			continue
		}
		if err := w.deps.Syncbacks.MarkSucceeded(req.ID); err != nil {
			return err
		}
	}
	return nil
}

// syncMailbox fetches everything above the stored cursor and funnels it into
// the ingestion pipeline. The cursor only advances once every fetched message
// was handled; a full queue leaves it in place so the remainder is picked up
// next cycle.
func (w *Worker) syncMailbox(ctx context.Context, account *accountdomain.Account, mb *domain.Mailbox) error {
	status, err := w.session.Open(ctx, mb.Name)
	if err != nil {
		return &TransportError{Err: err}
	}

	if mb.SyncState.UIDValidity != 0 && mb.SyncState.UIDValidity != status.UIDValidity {
		w.logger.WithFields(logrus.Fields{
			"mailbox": mb.Name,
			"old":     mb.SyncState.UIDValidity,
			"new":     status.UIDValidity,
		}).Warn("UIDVALIDITY changed, resetting cursor")
		mb.SyncState.UIDNext = 0
		mb.SyncState.FailedUIDs = nil
	}

	since := mb.SyncState.UIDNext
	if since != 0 && since >= status.UIDNext {
		mb.SyncState.UIDValidity = status.UIDValidity
		return w.deps.Mailboxes.SaveSyncState(mb)
	}

	fetched := make(chan session.FetchedMessage, 16)
	fetchErr := make(chan error, 1)
	go func() {
		fetchErr <- w.session.Fetch(ctx, since, fetched)
	}()

	var dones []<-chan struct{}
	queueFull := false
	for msg := range fetched {
		if queueFull {
			continue
		}
		done, err := w.deps.Pipeline.Enqueue(&ingest.Item{
			AccountID:   account.ID,
			MailboxID:   mb.ID,
			MailboxName: mb.Name,
			Fetched:     msg,
		})
		if errors.Is(err, ingest.ErrQueueFull) {
			w.logger.WithField("mailbox", mb.Name).Warn("Ingestion queue full, deferring rest of mailbox")
			queueFull = true
			continue
		}
		dones = append(dones, done)
	}

	err = <-fetchErr
	for _, done := range dones {
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err != nil {
		return &TransportError{Err: err}
	}
	if queueFull {
		return nil
	}

	mb.SyncState.UIDValidity = status.UIDValidity
	mb.SyncState.UIDNext = status.UIDNext
	return w.deps.Mailboxes.SaveSyncState(mb)
}

// startIdle holds the inbox open for push events. Each event requests a sync
// cycle; the worker stops the idle before running it.
func (w *Worker) startIdle(ctx context.Context) {
	idleCtx, cancel := context.WithCancel(ctx)
	w.idleCancel = cancel
	w.idleDone = make(chan struct{})

	s := w.session
	go func() {
		defer close(w.idleDone)

		if _, err := s.Open(idleCtx, "INBOX"); err != nil {
			w.sessionBroken = true
			w.SyncNow()
			return
		}

		events := make(chan session.Event, 4)
		relayDone := make(chan struct{})
		go func() {
			defer close(relayDone)
			for range events {
				w.SyncNow()
			}
		}()

		err := s.Idle(idleCtx, events)
		close(events)
		<-relayDone

		if err != nil && idleCtx.Err() == nil {
			w.sessionBroken = true
			w.SyncNow()
		}
	}()
}

func (w *Worker) stopIdle() {
	if w.idleCancel == nil {
		return
	}
	w.idleCancel()
	<-w.idleDone
	w.idleCancel = nil
	w.idleDone = nil
}

// DecryptCredentials unseals the stored credentials blob.
func DecryptCredentials(sealed, secret string) (*accountdomain.Credentials, error) {
	if sealed == "" {
		return nil, errors.New("account has no stored credentials")
	}
	plain, err := crypto.Decrypt(sealed, secret)
	if err != nil {
		return nil, err
	}
	var creds accountdomain.Credentials
	if err := json.Unmarshal([]byte(plain), &creds); err != nil {
		return nil, errors.New("stored credentials are not valid JSON")
	}
	if creds.Username == "" {
		return nil, errors.New("stored credentials have no username")
	}
	return &creds, nil
}

// fetchPriority orders mailboxes so the containers users look at first sync
// first.
var fetchPriority = map[string]int{
	domain.RoleInbox:  5,
	domain.RoleDrafts: 4,
	domain.RoleSent:   3,
	domain.RoleAll:    1,
	domain.RoleSpam:   -1,
	domain.RoleTrash:  -2,
}

func sortByPriority(boxes []*domain.Mailbox) {
	for i := 1; i < len(boxes); i++ {
		for j := i; j > 0 && fetchPriority[boxes[j].Role] > fetchPriority[boxes[j-1].Role]; j-- {
			boxes[j], boxes[j-1] = boxes[j-1], boxes[j]
		}
	}
}

// classifyMailbox derives the role from SPECIAL-USE attributes when present,
// falling back to well-known names.
func classifyMailbox(info session.MailboxInfo) string {
	for _, attr := range info.Attributes {
		switch attr {
		case `\Sent`:
			return domain.RoleSent
		case `\Drafts`:
			return domain.RoleDrafts
		case `\Trash`:
			return domain.RoleTrash
		case `\Junk`:
			return domain.RoleSpam
		case `\All`:
			return domain.RoleAll
		case `\Inbox`:
			return domain.RoleInbox
		}
	}

	switch strings.ToUpper(info.Name) {
	case "INBOX":
		return domain.RoleInbox
	}
	switch info.Name {
	case "[Gmail]/Sent Mail", "Sent", "Sent Items":
		return domain.RoleSent
	case "[Gmail]/Drafts", "Drafts":
		return domain.RoleDrafts
	case "[Gmail]/Trash", "Trash", "Deleted Items":
		return domain.RoleTrash
	case "[Gmail]/Spam", "Spam", "Junk":
		return domain.RoleSpam
	case "[Gmail]/All Mail":
		return domain.RoleAll
	}
	return ""
}

func hasAttribute(attrs []string, want string) bool {
	for _, a := range attrs {
		if a == want {
			return true
		}
	}
	return false
}
