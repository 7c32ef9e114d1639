package sync

import (
	"testing"

	"github.com/coder92330/nylas-mail/internal/mail/domain"
)

func TestBuildOperationFlagTypes(t *testing.T) {
	cases := []struct {
		reqType  string
		wantFlag string
		wantAdd  bool
	}{
		{SyncbackMarkRead, `\Seen`, true},
		{SyncbackMarkUnread, `\Seen`, false},
		{SyncbackStar, `\Flagged`, true},
		{SyncbackUnstar, `\Flagged`, false},
	}
	for _, tc := range cases {
		op, err := buildOperation(domain.SyncbackRequest{
			ID:      "r1",
			Type:    tc.reqType,
			Payload: domain.SyncbackPayload{"mailbox": "INBOX", "uid": float64(7)},
		})
		if err != nil {
			t.Fatalf("%s: %v", tc.reqType, err)
		}
		flag, ok := op.(*flagOperation)
		if !ok {
			t.Fatalf("%s: got %T, want flag operation", tc.reqType, op)
		}
		if flag.uid != 7 || flag.mailbox != "INBOX" {
			t.Fatalf("%s: %+v", tc.reqType, flag)
		}
		if len(flag.flags) != 1 || flag.flags[0] != tc.wantFlag || flag.add != tc.wantAdd {
			t.Fatalf("%s: flags=%v add=%v", tc.reqType, flag.flags, flag.add)
		}
	}
}

func TestBuildOperationMove(t *testing.T) {
	op, err := buildOperation(domain.SyncbackRequest{
		ID:      "r1",
		Type:    SyncbackMove,
		Payload: domain.SyncbackPayload{"mailbox": "INBOX", "uid": float64(7), "target": "Archive"},
	})
	if err != nil {
		t.Fatalf("buildOperation: %v", err)
	}
	move, ok := op.(*moveOperation)
	if !ok {
		t.Fatalf("got %T, want move operation", op)
	}
	if move.mailbox != "INBOX" || move.uid != 7 || move.dest != "Archive" {
		t.Fatalf("move = %+v", move)
	}
}

func TestBuildOperationRejectsBadPayloads(t *testing.T) {
	cases := map[string]domain.SyncbackRequest{
		"missing mailbox": {ID: "r1", Type: SyncbackMarkRead, Payload: domain.SyncbackPayload{"uid": float64(7)}},
		"missing uid":     {ID: "r2", Type: SyncbackMarkRead, Payload: domain.SyncbackPayload{"mailbox": "INBOX"}},
		"move sans target": {ID: "r3", Type: SyncbackMove,
			Payload: domain.SyncbackPayload{"mailbox": "INBOX", "uid": float64(7)}},
		"unknown type": {ID: "r4", Type: "archive-forever",
			Payload: domain.SyncbackPayload{"mailbox": "INBOX", "uid": float64(7)}},
	}
	for name, req := range cases {
		if _, err := buildOperation(req); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

// JSON round-trips turn numbers into float64, but callers constructing
// requests in-process may pass native integer types.
func TestPayloadUIDTypes(t *testing.T) {
	for _, payload := range []domain.SyncbackPayload{
		{"uid": float64(42)},
		{"uid": int(42)},
		{"uid": uint32(42)},
	} {
		uid, err := payloadUID(payload)
		if err != nil {
			t.Fatalf("payloadUID(%v): %v", payload, err)
		}
		if uid != 42 {
			t.Fatalf("uid = %d", uid)
		}
	}
}
