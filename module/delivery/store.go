package delivery

import (
	"context"
	"time"

	"PPRealtime/module/chat/model"
)

// Store persists receipts and participant counters. Implementations live in
// module/chat/store.
type Store interface {
	// CreateReceipts inserts a SENT receipt per recipient and bumps their
	// unread counters. Replaying the same message changes nothing.
	CreateReceipts(ctx context.Context, msg *model.Message, recipientIDs []string, at time.Time) error

	// GetReceipt returns errs.ErrRecordNotFound when absent.
	GetReceipt(ctx context.Context, messageID, recipientID string) (*model.Receipt, error)

	// AdvanceReceipt moves the receipt to `to` only while its stored status is
	// lower. false means nothing changed.
	AdvanceReceipt(ctx context.Context, messageID, recipientID string, to model.Status, at time.Time) (bool, error)

	// PendingReceipts lists the recipient's receipts in the conversation that
	// are not READ yet, oldest first.
	PendingReceipts(ctx context.Context, conversationID, recipientID string) ([]model.Receipt, error)

	ReceiptsOf(ctx context.Context, messageID string) ([]model.Receipt, error)

	// ResetUnread zeroes the counter and stamps last_read_at.
	ResetUnread(ctx context.Context, conversationID, userID string, at time.Time) error
}

// Presence returns the subset of userIDs with a live session on any node.
// chat.Core implements it over the local registry and the presence mirror.
type Presence interface {
	OnlineStatus(ctx context.Context, userIDs []string) []string
}
