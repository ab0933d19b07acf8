package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
)

// SessionTTL bounds how long an open session blocks a new clock-in
const SessionTTL = 24 * time.Hour

// MirrorGrace is how long a session store entry may exist without its
// ledger row before it is considered orphaned. The ledger append follows
// the acquisition within one attempt.
const MirrorGrace = 5 * time.Minute

// RecordID identifies one ledger row
type RecordID string

// NewRecordID generates a new UUID v4 RecordID
func NewRecordID() RecordID {
	return RecordID(uuid.New().String())
}

func (x RecordID) String() string {
	return string(x)
}

// SessionKey identifies the (user, channel) pair within a Slack team.
// At most one session is open per key.
type SessionKey struct {
	TeamID    string
	UserID    string
	ChannelID string
}

// String returns a stable storage key
func (k SessionKey) String() string {
	return k.TeamID + ":" + k.ChannelID + ":" + k.UserID
}

// Validate checks that every component is present
func (k SessionKey) Validate() error {
	if k.TeamID == "" || k.UserID == "" || k.ChannelID == "" {
		return goerr.Wrap(ErrInvalidKey, "session key has empty component",
			goerr.V(TeamIDKey, k.TeamID),
			goerr.V(UserIDKey, k.UserID),
			goerr.V(ChannelIDKey, k.ChannelID))
	}
	return nil
}

// ClockSession is one open-to-close work interval
type ClockSession struct {
	RecordID     RecordID   `json:"record_id" firestore:"record_id"`
	TeamID       string     `json:"team_id" firestore:"team_id"`
	UserID       string     `json:"user_id" firestore:"user_id"`
	ChannelID    string     `json:"channel_id" firestore:"channel_id"`
	DisplayName  string     `json:"display_name" firestore:"display_name"`
	ProjectLabel string     `json:"project_label" firestore:"project_label"`
	StartAt      time.Time  `json:"start_at" firestore:"start_at"`
	EndAt        *time.Time `json:"end_at,omitempty" firestore:"end_at,omitempty"`

	// ExpiresAt is when a store forgets the open mark, SessionTTL after the
	// clock-in was accepted.
	ExpiresAt time.Time `json:"expires_at" firestore:"expires_at"`
}

// Key returns the session key of s
func (s *ClockSession) Key() SessionKey {
	return SessionKey{TeamID: s.TeamID, UserID: s.UserID, ChannelID: s.ChannelID}
}

// IsOpen reports whether the session has no end instant yet
func (s *ClockSession) IsOpen() bool {
	return s.EndAt == nil
}

// IsStale reports whether an open session started more than SessionTTL
// before now and therefore no longer blocks a new clock-in.
func (s *ClockSession) IsStale(now time.Time) bool {
	return s.IsOpen() && now.Sub(s.StartAt) > SessionTTL
}

// IsExpired reports whether the store level expiry has passed
func (s *ClockSession) IsExpired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// AcquiredAt is when a store accepted the open mark
func (s *ClockSession) AcquiredAt() time.Time {
	return s.ExpiresAt.Add(-SessionTTL)
}

// InGrace reports whether the store entry is too young to be reconciled
// against the ledger
func (s *ClockSession) InGrace(now time.Time) bool {
	return now.Sub(s.AcquiredAt()) < MirrorGrace
}

// Close sets the end instant and returns the elapsed duration. A session
// closes exactly once.
func (s *ClockSession) Close(end time.Time) (time.Duration, error) {
	if !s.IsOpen() {
		return 0, goerr.Wrap(ErrNotOpen, "session is already closed", goerr.V(RecordIDKey, s.RecordID))
	}
	if end.Before(s.StartAt) {
		return 0, goerr.Wrap(ErrEndBeforeStart, "end is before start",
			goerr.V(StartAtKey, s.StartAt),
			goerr.V(EndAtKey, end))
	}
	endAt := end.UTC()
	s.EndAt = &endAt
	return endAt.Sub(s.StartAt), nil
}

// Duration returns the elapsed time of a closed session, or zero while open
func (s *ClockSession) Duration() time.Duration {
	if s.EndAt == nil {
		return 0
	}
	return s.EndAt.Sub(s.StartAt)
}
