package sync

import (
	"context"
	"fmt"

	"github.com/coder92330/nylas-mail/internal/mail/domain"
	"github.com/coder92330/nylas-mail/internal/session"
)

// Syncback request types replayed against the remote mailbox before a fetch
// pass. Local edits win over concurrent remote state, so replay comes first.
const (
	SyncbackMarkRead   = "mark-read"
	SyncbackMarkUnread = "mark-unread"
	SyncbackStar       = "star"
	SyncbackUnstar     = "unstar"
	SyncbackMove       = "move"
)

// flagOperation adds or removes flags on one message.
type flagOperation struct {
	mailbox string
	uid     uint32
	flags   []string
	add     bool
}

func (o *flagOperation) Describe() string {
	verb := "remove"
	if o.add {
		verb = "add"
	}
	return fmt.Sprintf("%s flags %v on uid %d in %q", verb, o.flags, o.uid, o.mailbox)
}

func (o *flagOperation) Run(ctx context.Context, s session.Session) error {
	if _, err := s.Open(ctx, o.mailbox); err != nil {
		return err
	}
	if o.add {
		return s.AddFlags(ctx, o.uid, o.flags)
	}
	return s.RemoveFlags(ctx, o.uid, o.flags)
}

// moveOperation relocates one message to another mailbox.
type moveOperation struct {
	mailbox string
	uid     uint32
	dest    string
}

func (o *moveOperation) Describe() string {
	return fmt.Sprintf("move uid %d from %q to %q", o.uid, o.mailbox, o.dest)
}

func (o *moveOperation) Run(ctx context.Context, s session.Session) error {
	if _, err := s.Open(ctx, o.mailbox); err != nil {
		return err
	}
	return s.Move(ctx, o.uid, o.dest)
}

// buildOperation maps a persisted syncback request to a protocol operation.
// Payloads come from a JSON column, so numbers arrive as float64.
func buildOperation(req domain.SyncbackRequest) (session.Operation, error) {
	mailbox, _ := req.Payload["mailbox"].(string)
	if mailbox == "" {
		return nil, fmt.Errorf("syncback %s: payload missing mailbox", req.ID)
	}
	uid, err := payloadUID(req.Payload)
	if err != nil {
		return nil, fmt.Errorf("syncback %s: %w", req.ID, err)
	}

	switch req.Type {
	case SyncbackMarkRead:
		return &flagOperation{mailbox: mailbox, uid: uid, flags: []string{`\Seen`}, add: true}, nil
	case SyncbackMarkUnread:
		return &flagOperation{mailbox: mailbox, uid: uid, flags: []string{`\Seen`}, add: false}, nil
	case SyncbackStar:
		return &flagOperation{mailbox: mailbox, uid: uid, flags: []string{`\Flagged`}, add: true}, nil
	case SyncbackUnstar:
		return &flagOperation{mailbox: mailbox, uid: uid, flags: []string{`\Flagged`}, add: false}, nil
	case SyncbackMove:
		dest, _ := req.Payload["target"].(string)
		if dest == "" {
			return nil, fmt.Errorf("syncback %s: move payload missing target", req.ID)
		}
		return &moveOperation{mailbox: mailbox, uid: uid, dest: dest}, nil
	}
	return nil, fmt.Errorf("syncback %s: unknown type %q", req.ID, req.Type)
}

func payloadUID(p domain.SyncbackPayload) (uint32, error) {
	switch v := p["uid"].(type) {
	case float64:
		return uint32(v), nil
	case int:
		return uint32(v), nil
	case uint32:
		return v, nil
	}
	return 0, fmt.Errorf("payload missing uid")
}
