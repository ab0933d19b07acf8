package model

import (
	"context"
	"errors"
	"net"

	"github.com/m-mizutani/goerr/v2"
)

// Clock session errors. Everything except ErrBackendUnavailable is a
// semantic outcome and is never retried.
var (
	ErrParse                = goerr.New("time or date text is malformed")
	ErrFutureTime           = goerr.New("requested time is in the future")
	ErrAlreadyOpen          = goerr.New("session is already open")
	ErrNotOpen              = goerr.New("no open session")
	ErrEndBeforeStart       = goerr.New("end time is before start time")
	ErrConfigurationMissing = goerr.New("organization has not completed ledger setup")
	ErrNoteRequired         = goerr.New("note is required to clock out")
	ErrPermissionDenied     = goerr.New("permission denied")

	ErrBackendUnavailable        = goerr.New("backend unavailable")
	ErrTransientFailureExhausted = goerr.New("retry attempts exhausted")

	ErrSheetNotFound = goerr.New("sheet not found")
	ErrInvalidKey    = goerr.New("invalid session key")
)

// Context keys for error values
const (
	TeamIDKey      = "team_id"
	UserIDKey      = "user_id"
	ChannelIDKey   = "channel_id"
	RecordIDKey    = "record_id"
	DocumentIDKey  = "document_id"
	SheetKey       = "sheet"
	RangeKey       = "range"
	StartAtKey     = "start_at"
	EndAtKey       = "end_at"
	RequestedAtKey = "requested_at"
	TimeTextKey    = "time_text"
	DateTextKey    = "date_text"
	AttemptsKey    = "attempts"
	LastErrorKey   = "last_error"
)

var nonRetryable = []error{
	ErrParse,
	ErrFutureTime,
	ErrAlreadyOpen,
	ErrNotOpen,
	ErrEndBeforeStart,
	ErrConfigurationMissing,
	ErrNoteRequired,
	ErrPermissionDenied,
	ErrInvalidKey,
}

// IsRetryable reports whether err belongs to the transient class: backend
// unavailability, deadlines and network failures. Semantic failures and
// unclassified errors return false so the caller reports them at once.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	for _, target := range nonRetryable {
		if errors.Is(err, target) {
			return false
		}
	}
	if errors.Is(err, ErrBackendUnavailable) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// ErrorValue looks up key in the values attached to err or any goerr.Error
// it wraps. The outermost value wins.
func ErrorValue(err error, key string) (any, bool) {
	for e := err; e != nil; e = errors.Unwrap(e) {
		var ge *goerr.Error
		if !errors.As(e, &ge) {
			return nil, false
		}
		if v, ok := ge.Values()[key]; ok {
			return v, true
		}
		e = ge
	}
	return nil, false
}
