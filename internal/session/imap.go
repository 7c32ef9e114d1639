package session

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-sasl"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	accountdomain "github.com/coder92330/nylas-mail/internal/account/domain"
)

// imapConnector dials and authenticates go-imap sessions. Accounts with a
// refresh token authenticate with OAUTHBEARER; the rest use plain LOGIN.
type imapConnector struct {
	logger *logrus.Logger
}

func NewIMAPConnector(logger *logrus.Logger) Connector {
	return &imapConnector{logger: logger}
}

func (c *imapConnector) Connect(ctx context.Context, settings accountdomain.ConnectionSettings, creds accountdomain.Credentials) (Session, error) {
	addr := fmt.Sprintf("%s:%d", settings.IMAPHost, settings.IMAPPort)

	var cl *client.Client
	var err error
	if settings.TLS {
		cl, err = client.DialTLS(addr, &tls.Config{
			ServerName: settings.IMAPHost,
			MinVersion: tls.VersionTLS12,
		})
	} else {
		cl, err = client.Dial(addr)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}

	if err := c.authenticate(ctx, cl, creds); err != nil {
		cl.Logout() //nolint:errcheck
		return nil, err
	}

	c.logger.WithField("host", settings.IMAPHost).Info("IMAP session established")
	return &imapSession{client: cl, logger: c.logger}, nil
}

func (c *imapConnector) authenticate(ctx context.Context, cl *client.Client, creds accountdomain.Credentials) error {
	if creds.RefreshToken != "" {
		conf := &oauth2.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			Endpoint:     google.Endpoint,
		}
		token, err := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: creds.RefreshToken}).Token()
		if err != nil {
			return fmt.Errorf("failed to refresh oauth token: %w", err)
		}
		auth := sasl.NewOAuthBearerClient(&sasl.OAuthBearerOptions{
			Username: creds.Username,
			Token:    token.AccessToken,
		})
		if err := cl.Authenticate(auth); err != nil {
			return fmt.Errorf("oauth authentication failed: %w", err)
		}
		return nil
	}

	if err := cl.Login(creds.Username, creds.Password); err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	return nil
}

// imapSession adapts a go-imap client to the Session capability.
type imapSession struct {
	client *client.Client
	logger *logrus.Logger
}

func (s *imapSession) ListMailboxes(ctx context.Context) ([]MailboxInfo, error) {
	mailboxes := make(chan *imap.MailboxInfo, 10)
	done := make(chan error, 1)
	go func() {
		done <- s.client.List("", "*", mailboxes)
	}()

	var out []MailboxInfo
	for m := range mailboxes {
		out = append(out, MailboxInfo{Name: m.Name, Attributes: m.Attributes})
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("failed to list mailboxes: %w", err)
	}
	return out, nil
}

func (s *imapSession) Open(ctx context.Context, name string) (*MailboxStatus, error) {
	mbox, err := s.client.Select(name, false)
	if err != nil {
		return nil, fmt.Errorf("failed to open mailbox %q: %w", name, err)
	}
	return &MailboxStatus{
		Name:        mbox.Name,
		Messages:    mbox.Messages,
		UIDValidity: mbox.UidValidity,
		UIDNext:     mbox.UidNext,
	}, nil
}

func (s *imapSession) Fetch(ctx context.Context, sinceUID uint32, out chan<- FetchedMessage) error {
	defer close(out)

	if sinceUID == 0 {
		sinceUID = 1
	}
	seqSet := new(imap.SeqSet)
	seqSet.AddRange(sinceUID, 0)

	items := []imap.FetchItem{imap.FetchFlags, imap.FetchInternalDate, imap.FetchUid, imap.FetchRFC822}

	messages := make(chan *imap.Message, 10)
	done := make(chan error, 1)
	go func() {
		done <- s.client.UidFetch(seqSet, items, messages)
	}()

	for msg := range messages {
		fetched := FetchedMessage{
			UID:          msg.Uid,
			InternalDate: msg.InternalDate,
		}
		fetched.Flags = append(fetched.Flags, msg.Flags...)
		fetched.Raw = rawBody(msg)

		select {
		case out <- fetched:
		case <-ctx.Done():
			// Drain the fetch goroutine before bailing out
			for range messages {
			}
			<-done
			return ctx.Err()
		}
	}
	return <-done
}

// rawBody extracts the full RFC822 literal from a fetched message.
func rawBody(msg *imap.Message) []byte {
	for _, literal := range msg.Body {
		if literal == nil {
			continue
		}
		var buf bytes.Buffer
		if _, err := io.Copy(&buf, literal); err == nil && buf.Len() > 0 {
			return buf.Bytes()
		}
	}
	return nil
}

func (s *imapSession) AddFlags(ctx context.Context, uid uint32, flags []string) error {
	return s.storeFlags(uid, imap.AddFlags, flags)
}

func (s *imapSession) RemoveFlags(ctx context.Context, uid uint32, flags []string) error {
	return s.storeFlags(uid, imap.RemoveFlags, flags)
}

func (s *imapSession) storeFlags(uid uint32, op imap.FlagsOp, flags []string) error {
	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uid)
	item := imap.FormatFlagsOp(op, true)
	values := make([]interface{}, len(flags))
	for i, f := range flags {
		values[i] = f
	}
	if err := s.client.UidStore(seqSet, item, values, nil); err != nil {
		return fmt.Errorf("failed to store flags on uid %d: %w", uid, err)
	}
	return nil
}

func (s *imapSession) Move(ctx context.Context, uid uint32, dest string) error {
	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uid)
	if err := s.client.UidMove(seqSet, dest); err != nil {
		return fmt.Errorf("failed to move uid %d to %q: %w", uid, dest, err)
	}
	return nil
}

func (s *imapSession) RunOperation(ctx context.Context, op Operation) error {
	s.logger.WithField("operation", op.Describe()).Debug("Running syncback operation")
	return op.Run(ctx, s)
}

func (s *imapSession) Idle(ctx context.Context, events chan<- Event) error {
	updates := make(chan client.Update, 16)
	s.client.Updates = updates
	defer func() { s.client.Updates = nil }()

	stop := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- s.client.Idle(stop, &client.IdleOptions{LogoutTimeout: 25 * time.Minute})
	}()

	for {
		select {
		case update := <-updates:
			var evt Event
			switch update.(type) {
			case *client.MailboxUpdate:
				evt = Event{Kind: EventMail}
			case *client.MessageUpdate, *client.ExpungeUpdate:
				evt = Event{Kind: EventUpdate}
			default:
				continue
			}
			select {
			case events <- evt:
			default:
				// Worker already has a pending wakeup
			}
		case <-ctx.Done():
			close(stop)
			<-done
			return nil
		case err := <-done:
			return err
		}
	}
}

func (s *imapSession) Close() error {
	return s.client.Logout()
}
