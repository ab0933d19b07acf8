package interfaces

import (
	"context"
	"time"

	"github.com/secmon-lab/punchcard/pkg/domain/model"
)

// SessionStore records which (user, channel) pairs hold an open session.
// Implementations must make TryAcquireOpen atomic per key: of two concurrent
// calls for the same key exactly one succeeds.
type SessionStore interface {
	// TryAcquireOpen marks key as open with session. It returns (nil, nil) on
	// success, or the existing session and model.ErrAlreadyOpen without
	// mutating state. Records expire at session.ExpiresAt.
	TryAcquireOpen(ctx context.Context, key model.SessionKey, session *model.ClockSession) (*model.ClockSession, error)

	// PeekOpen returns the open session for key, or nil when none
	PeekOpen(ctx context.Context, key model.SessionKey) (*model.ClockSession, error)

	// Release removes the open mark. Releasing an absent key is not an error.
	Release(ctx context.Context, key model.SessionKey) error
}

// SessionPurger is implemented by stores that keep expired records around
// until they are removed explicitly.
type SessionPurger interface {
	PurgeExpired(ctx context.Context, before time.Time) (int, error)
}

// SessionLister is implemented by key/value stores so mirror entries can be
// reconciled against the ledger.
type SessionLister interface {
	// ListOpen returns unexpired sessions of the team
	ListOpen(ctx context.Context, teamID string) ([]*model.ClockSession, error)

	// ReleaseIfMatch removes the entry of key only while it still holds
	// recordID, and reports whether it did
	ReleaseIfMatch(ctx context.Context, key model.SessionKey, recordID model.RecordID) (bool, error)
}

// LedgerBacked is implemented by stores that derive open state from the
// ledger itself. Their answers are never reconciled.
type LedgerBacked interface {
	LedgerBacked()
}
