package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

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

const testSecret = "worker-test-secret"

type fakeSession struct {
	boxes    []session.MailboxInfo
	statuses map[string]*session.MailboxStatus
	messages map[string][]session.FetchedMessage

	current   string
	flagCalls []string
	moveCalls []string
	closed    bool
}

func (s *fakeSession) ListMailboxes(ctx context.Context) ([]session.MailboxInfo, error) {
	return s.boxes, nil
}

func (s *fakeSession) Open(ctx context.Context, name string) (*session.MailboxStatus, error) {
	status, ok := s.statuses[name]
	if !ok {
		return nil, fmt.Errorf("no such mailbox %q", name)
	}
	s.current = name
	return status, nil
}

func (s *fakeSession) Fetch(ctx context.Context, sinceUID uint32, out chan<- session.FetchedMessage) error {
	defer close(out)
	for _, msg := range s.messages[s.current] {
		if msg.UID < sinceUID {
			continue
		}
		select {
		case out <- msg:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (s *fakeSession) AddFlags(ctx context.Context, uid uint32, flags []string) error {
	s.flagCalls = append(s.flagCalls, fmt.Sprintf("add %v uid=%d box=%s", flags, uid, s.current))
	return nil
}

func (s *fakeSession) RemoveFlags(ctx context.Context, uid uint32, flags []string) error {
	s.flagCalls = append(s.flagCalls, fmt.Sprintf("remove %v uid=%d box=%s", flags, uid, s.current))
	return nil
}

func (s *fakeSession) Move(ctx context.Context, uid uint32, dest string) error {
	s.moveCalls = append(s.moveCalls, fmt.Sprintf("uid=%d from=%s to=%s", uid, s.current, dest))
	return nil
}

func (s *fakeSession) RunOperation(ctx context.Context, op session.Operation) error {
	return op.Run(ctx, s)
}

func (s *fakeSession) Idle(ctx context.Context, events chan<- session.Event) error {
	<-ctx.Done()
	return nil
}

func (s *fakeSession) Close() error {
	s.closed = true
	return nil
}

type fakeConnector struct {
	session  *fakeSession
	err      error
	connects int
}

func (c *fakeConnector) Connect(ctx context.Context, settings accountdomain.ConnectionSettings, creds accountdomain.Credentials) (session.Session, error) {
	c.connects++
	if c.err != nil {
		return nil, c.err
	}
	return c.session, nil
}

type workerEnv struct {
	store     *mailrepo.Store
	accounts  accountrepo.AccountRepository
	mailboxes mailrepo.MailboxRepository
	syncbacks mailrepo.SyncbackRepository
	sess      *fakeSession
	conn      *fakeConnector
	worker    *Worker
	cancel    context.CancelFunc
}

func sealCredentials(t *testing.T, creds accountdomain.Credentials) string {
	t.Helper()
	raw, err := json.Marshal(creds)
	if err != nil {
		t.Fatalf("marshal credentials: %v", err)
	}
	sealed, err := crypto.Encrypt(string(raw), testSecret)
	if err != nil {
		t.Fatalf("seal credentials: %v", err)
	}
	return sealed
}

func newWorkerEnv(t *testing.T, provider accountdomain.Provider, sess *fakeSession) *workerEnv {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	b := bus.New()
	store := mailrepo.NewStore(db, b)
	if err := store.Migrate(); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	accounts := accountrepo.NewAccountRepository(db)
	account := &accountdomain.Account{
		ID:           "acc",
		EmailAddress: "alice@example.com",
		Provider:     provider,
		ConnectionSettings: accountdomain.ConnectionSettings{
			IMAPHost: "imap.example.com",
			IMAPPort: 993,
			TLS:      true,
		},
		Credentials: sealCredentials(t, accountdomain.Credentials{Username: "alice@example.com", Password: "pw"}),
		SyncPolicy: accountdomain.SyncPolicy{
			ActiveIntervalSec:   60,
			InactiveIntervalSec: 300,
			AfterSync:           accountdomain.AfterSyncClose,
		},
	}
	if err := accounts.Create(account); err != nil {
		t.Fatalf("create account: %v", err)
	}

	mailboxes := mailrepo.NewMailboxRepository(db)
	pipeline := ingest.NewPipeline(ingest.NewProcessor(store, logger), mailboxes, logger, 100, 0, "")
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go pipeline.Run(ctx)

	conn := &fakeConnector{session: sess}
	env := &workerEnv{
		store:     store,
		accounts:  accounts,
		mailboxes: mailboxes,
		syncbacks: mailrepo.NewSyncbackRepository(db),
		sess:      sess,
		conn:      conn,
		cancel:    cancel,
	}
	env.worker = NewWorker("acc", Deps{
		Accounts:  accounts,
		Mailboxes: mailboxes,
		Syncbacks: env.syncbacks,
		Connector: conn,
		Pipeline:  pipeline,
		Bus:       b,
		Logger:    logger,
		Secret:    testSecret,
		Retry:     backoff.Fixed{Delay: time.Hour},
	})
	return env
}

func (e *workerEnv) account(t *testing.T) *accountdomain.Account {
	t.Helper()
	account, err := e.accounts.FindByID("acc")
	if err != nil {
		t.Fatalf("load account: %v", err)
	}
	if account == nil {
		t.Fatal("account row missing")
	}
	return account
}

func rawTestMessage(uid uint32) []byte {
	return []byte(fmt.Sprintf("From: Alice <alice@example.com>\r\n"+
		"To: Bob <bob@example.com>\r\n"+
		"Subject: message %d\r\n"+
		"Date: Mon, 02 Jan 2023 15:04:05 +0000\r\n"+
		"Message-ID: <m%d@example.com>\r\n"+
		"\r\n"+
		"body %d\r\n", uid, uid, uid))
}

func inboxSession(uids ...uint32) *fakeSession {
	msgs := make([]session.FetchedMessage, 0, len(uids))
	for _, uid := range uids {
		msgs = append(msgs, session.FetchedMessage{UID: uid, Raw: rawTestMessage(uid)})
	}
	return &fakeSession{
		boxes: []session.MailboxInfo{{Name: "INBOX"}},
		statuses: map[string]*session.MailboxStatus{
			"INBOX": {Name: "INBOX", UIDValidity: 7, UIDNext: 3},
		},
		messages: map[string][]session.FetchedMessage{"INBOX": msgs},
	}
}

func TestSyncOnceAdvancesCursor(t *testing.T) {
	env := newWorkerEnv(t, accountdomain.ProviderIMAP, inboxSession(1, 2))

	if err := env.worker.syncOnce(context.Background(), env.account(t)); err != nil {
		t.Fatalf("syncOnce: %v", err)
	}

	boxes, err := env.mailboxes.FindByAccount("acc")
	if err != nil || len(boxes) != 1 {
		t.Fatalf("mailboxes = %v, %v", boxes, err)
	}
	if boxes[0].SyncState.UIDNext != 3 || boxes[0].SyncState.UIDValidity != 7 {
		t.Fatalf("sync state = %+v, cursor should match the server status", boxes[0].SyncState)
	}

	var count int64
	env.store.DB().Model(&domain.Message{}).Count(&count)
	if count != 2 {
		t.Fatalf("messages = %d, want 2", count)
	}

	if env.account(t).LastSyncCompletedAt == nil {
		t.Fatal("completed timestamp should be set")
	}
	if !env.sess.closed {
		t.Fatal("close policy must tear the session down after the cycle")
	}
}

func TestGmailFetchesOnlyCanonicalMailboxes(t *testing.T) {
	sess := &fakeSession{
		boxes: []session.MailboxInfo{
			{Name: "INBOX"},
			{Name: "Work"},
			{Name: "[Gmail]/All Mail", Attributes: []string{`\All`}},
			{Name: "[Gmail]/Trash", Attributes: []string{`\Trash`}},
			{Name: "[Gmail]/Spam", Attributes: []string{`\Junk`}},
		},
		statuses: map[string]*session.MailboxStatus{
			"[Gmail]/All Mail": {Name: "[Gmail]/All Mail", UIDValidity: 1, UIDNext: 2},
			"[Gmail]/Trash":    {Name: "[Gmail]/Trash", UIDValidity: 1, UIDNext: 1},
			"[Gmail]/Spam":     {Name: "[Gmail]/Spam", UIDValidity: 1, UIDNext: 1},
		},
		messages: map[string][]session.FetchedMessage{
			"[Gmail]/All Mail": {{UID: 1, Raw: rawTestMessage(1)}},
		},
	}
	env := newWorkerEnv(t, accountdomain.ProviderGmail, sess)

	if err := env.worker.syncOnce(context.Background(), env.account(t)); err != nil {
		t.Fatalf("syncOnce: %v", err)
	}

	// INBOX and Work get local rows but are never opened; everything is
	// reachable through All Mail.
	boxes, err := env.mailboxes.FindByAccount("acc")
	if err != nil {
		t.Fatalf("FindByAccount: %v", err)
	}
	if len(boxes) != 5 {
		t.Fatalf("mailbox rows = %d, want all containers recorded", len(boxes))
	}
	for _, mb := range boxes {
		if mb.Name == "INBOX" && mb.SyncState.UIDNext != 0 {
			t.Fatal("INBOX cursor must stay untouched on Gmail accounts")
		}
	}

	var count int64
	env.store.DB().Model(&domain.Message{}).Count(&count)
	if count != 1 {
		t.Fatalf("messages = %d", count)
	}
}

func TestSyncOnceSkipsUpToDateMailbox(t *testing.T) {
	sess := inboxSession(1, 2)
	env := newWorkerEnv(t, accountdomain.ProviderIMAP, sess)

	account := env.account(t)
	if err := env.worker.syncOnce(context.Background(), account); err != nil {
		t.Fatalf("first cycle: %v", err)
	}
	if err := env.worker.syncOnce(context.Background(), account); err != nil {
		t.Fatalf("second cycle: %v", err)
	}

	var count int64
	env.store.DB().Model(&domain.Message{}).Count(&count)
	if count != 2 {
		t.Fatalf("messages = %d, second cycle must not refetch", count)
	}
}

func TestUIDValidityChangeResetsCursor(t *testing.T) {
	sess := inboxSession(1)
	env := newWorkerEnv(t, accountdomain.ProviderIMAP, sess)

	mb, err := env.mailboxes.Upsert("acc", "INBOX", domain.RoleInbox)
	if err != nil {
		t.Fatalf("seed mailbox: %v", err)
	}
	mb.SyncState = domain.MailboxSyncState{UIDValidity: 1, UIDNext: 50, FailedUIDs: domain.UintList{9}}
	if err := env.mailboxes.SaveSyncState(mb); err != nil {
		t.Fatalf("seed sync state: %v", err)
	}

	if err := env.worker.syncOnce(context.Background(), env.account(t)); err != nil {
		t.Fatalf("syncOnce: %v", err)
	}

	got, err := env.mailboxes.FindByID(mb.ID)
	if err != nil {
		t.Fatalf("load mailbox: %v", err)
	}
	if got.SyncState.UIDValidity != 7 || got.SyncState.UIDNext != 3 {
		t.Fatalf("sync state = %+v, want cursor rebuilt under new validity", got.SyncState)
	}
	if len(got.SyncState.FailedUIDs) != 0 {
		t.Fatal("failed uids belong to the old validity and must be dropped")
	}

	var count int64
	env.store.DB().Model(&domain.Message{}).Count(&count)
	if count != 1 {
		t.Fatalf("messages = %d, mailbox should be refetched from scratch", count)
	}
}

func TestGmailMissingCanonicalMailbox(t *testing.T) {
	env := newWorkerEnv(t, accountdomain.ProviderGmail, inboxSession())

	err := env.worker.syncOnce(context.Background(), env.account(t))
	var integrity *ProtocolIntegrityError
	if !errors.As(err, &integrity) {
		t.Fatalf("got %v, want ProtocolIntegrityError", err)
	}

	timer := time.NewTimer(time.Hour)
	defer timer.Stop()
	env.worker.recover(timer, env.account(t), err)

	account := env.account(t)
	if !account.Errored() {
		t.Fatal("protocol integrity failure must stick to the account")
	}
	if account.SyncError.Kind != "protocol-integrity" {
		t.Fatalf("kind = %q", account.SyncError.Kind)
	}
}

func TestTransportErrorIsNotSticky(t *testing.T) {
	env := newWorkerEnv(t, accountdomain.ProviderIMAP, inboxSession())
	env.conn.err = fmt.Errorf("connection refused")

	err := env.worker.syncOnce(context.Background(), env.account(t))
	if !IsTransport(err) {
		t.Fatalf("got %v, want transport error", err)
	}

	timer := time.NewTimer(time.Hour)
	defer timer.Stop()
	env.worker.recover(timer, env.account(t), err)

	if env.account(t).Errored() {
		t.Fatal("transport failures must not suspend the account")
	}
	if env.worker.attempt != 1 {
		t.Fatalf("attempt = %d, want backoff counter advanced", env.worker.attempt)
	}

	// A later clean cycle resets the counter.
	env.worker.recover(timer, env.account(t), nil)
	if env.worker.attempt != 0 {
		t.Fatalf("attempt = %d after success, want 0", env.worker.attempt)
	}
}

func TestBadCredentialsAreConfigurationError(t *testing.T) {
	env := newWorkerEnv(t, accountdomain.ProviderIMAP, inboxSession())

	account := env.account(t)
	account.Credentials = "not-a-sealed-blob"
	err := env.worker.syncOnce(context.Background(), account)
	if !IsConfiguration(err) {
		t.Fatalf("got %v, want configuration error", err)
	}
	if env.conn.connects != 0 {
		t.Fatal("must not dial with unusable credentials")
	}
}

func TestReplaySyncbacks(t *testing.T) {
	sess := inboxSession(1)
	env := newWorkerEnv(t, accountdomain.ProviderIMAP, sess)

	reqs := []*domain.SyncbackRequest{
		{AccountID: "acc", Type: SyncbackMarkRead, Payload: domain.SyncbackPayload{"mailbox": "INBOX", "uid": float64(5)}},
		{AccountID: "acc", Type: "unknown-type", Payload: domain.SyncbackPayload{"mailbox": "INBOX", "uid": float64(6)}},
	}
	for _, req := range reqs {
		if err := env.syncbacks.Create(req); err != nil {
			t.Fatalf("create syncback: %v", err)
		}
	}

	if err := env.worker.syncOnce(context.Background(), env.account(t)); err != nil {
		t.Fatalf("syncOnce: %v", err)
	}

	if len(sess.flagCalls) != 1 || sess.flagCalls[0] != `add [\Seen] uid=5 box=INBOX` {
		t.Fatalf("flag calls = %v", sess.flagCalls)
	}

	pending, err := env.syncbacks.FindPending("acc")
	if err != nil {
		t.Fatalf("FindPending: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("pending = %d, every request must be resolved", len(pending))
	}

	var failed domain.SyncbackRequest
	if err := env.store.DB().Where("id = ?", reqs[1].ID).First(&failed).Error; err != nil {
		t.Fatalf("load failed request: %v", err)
	}
	if failed.Status != domain.SyncbackFailed || failed.Error == "" {
		t.Fatalf("unusable request = %+v, want marked failed with reason", failed)
	}
}

func TestClassifyMailbox(t *testing.T) {
	cases := []struct {
		info session.MailboxInfo
		want string
	}{
		{session.MailboxInfo{Name: "INBOX"}, domain.RoleInbox},
		{session.MailboxInfo{Name: "inbox"}, domain.RoleInbox},
		{session.MailboxInfo{Name: "Custom", Attributes: []string{`\Sent`}}, domain.RoleSent},
		{session.MailboxInfo{Name: "[Gmail]/Sent Mail"}, domain.RoleSent},
		{session.MailboxInfo{Name: "[Gmail]/All Mail"}, domain.RoleAll},
		{session.MailboxInfo{Name: "Junk"}, domain.RoleSpam},
		{session.MailboxInfo{Name: "Deleted Items"}, domain.RoleTrash},
		{session.MailboxInfo{Name: "Receipts"}, ""},
	}
	for _, tc := range cases {
		if got := classifyMailbox(tc.info); got != tc.want {
			t.Fatalf("classifyMailbox(%+v) = %q, want %q", tc.info, got, tc.want)
		}
	}
}

func TestSortByPriority(t *testing.T) {
	boxes := []*domain.Mailbox{
		{Name: "Trash", Role: domain.RoleTrash},
		{Name: "Sent", Role: domain.RoleSent},
		{Name: "Drafts", Role: domain.RoleDrafts},
		{Name: "Receipts", Role: ""},
		{Name: "INBOX", Role: domain.RoleInbox},
	}
	sortByPriority(boxes)

	want := []string{"INBOX", "Drafts", "Sent", "Receipts", "Trash"}
	for i, name := range want {
		if boxes[i].Name != name {
			t.Fatalf("position %d = %q, want %q", i, boxes[i].Name, name)
		}
	}
}

func TestDecryptCredentials(t *testing.T) {
	sealed := sealCredentials(t, accountdomain.Credentials{Username: "alice@example.com", Password: "pw"})

	creds, err := DecryptCredentials(sealed, testSecret)
	if err != nil {
		t.Fatalf("DecryptCredentials: %v", err)
	}
	if creds.Username != "alice@example.com" || creds.Password != "pw" {
		t.Fatalf("creds = %+v", creds)
	}

	if _, err := DecryptCredentials(sealed, "wrong-secret"); err == nil {
		t.Fatal("wrong secret must fail")
	}
	if _, err := DecryptCredentials("", testSecret); err == nil {
		t.Fatal("empty blob must fail")
	}
}
