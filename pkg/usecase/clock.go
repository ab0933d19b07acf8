package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/punchcard/pkg/domain/interfaces"
	"github.com/secmon-lab/punchcard/pkg/domain/model"
	"github.com/secmon-lab/punchcard/pkg/utils/logging"
	"github.com/secmon-lab/punchcard/pkg/utils/metrics"
)

// ClockUseCase is the per (user, channel) session state machine. The ledger
// append of Open and the range update of Close are the commit points.
//
// Every transition for one key runs under an in-process lock, so scan and
// append of a ledger backed store cannot interleave inside this process.
// Two processes sharing a ledger backed store can still race.
type ClockUseCase struct {
	orgs     interfaces.OrganizationRepository
	sessions interfaces.SessionStore
	ledger   interfaces.Ledger
	now      func() time.Time
	metrics  *metrics.Metrics

	locks        *keyLock
	ledgerBacked bool
}

func NewClockUseCase(orgs interfaces.OrganizationRepository, sessions interfaces.SessionStore, ledger interfaces.Ledger, now func() time.Time, m *metrics.Metrics) *ClockUseCase {
	if now == nil {
		now = time.Now
	}
	_, ledgerBacked := sessions.(interfaces.LedgerBacked)
	return &ClockUseCase{
		orgs:         orgs,
		sessions:     sessions,
		ledger:       ledger,
		now:          now,
		metrics:      m,
		locks:        newKeyLock(),
		ledgerBacked: ledgerBacked,
	}
}

// OpenInput is one clock-in request. RecordID and ReceivedAt stay the same
// across attempts of one command.
type OpenInput struct {
	Key          model.SessionKey
	RecordID     model.RecordID
	DisplayName  string
	ProjectLabel string
	TimeText     string
	DateText     string
	ReceivedAt   time.Time

	// Retry is set on every attempt after the first
	Retry bool
}

type OpenResult struct {
	Organization *model.Organization
	Session      *model.ClockSession

	// Replayed is set when an earlier attempt had already committed the row
	Replayed bool
}

// CloseInput is one clock-out request
type CloseInput struct {
	Key        model.SessionKey
	TimeText   string
	DateText   string
	Note       string
	ReceivedAt time.Time
	Retry      bool
}

type CloseResult struct {
	Organization *model.Organization
	Session      *model.ClockSession
	Duration     time.Duration
	Note         string
	Replayed     bool
}

type StatusResult struct {
	Organization *model.Organization
	// Session is nil when nothing is open
	Session *model.ClockSession
	Elapsed time.Duration
}

func hasExplicitTime(timeText, dateText string) bool {
	return strings.TrimSpace(timeText) != "" || strings.TrimSpace(dateText) != ""
}

func (uc *ClockUseCase) receivedAt(t time.Time) time.Time {
	if t.IsZero() {
		return uc.now()
	}
	return t
}

// Open records a clock-in. It fails with model.ErrFutureTime,
// model.ErrAlreadyOpen or model.ErrConfigurationMissing without touching the
// ledger. If the append fails the store acquisition is released.
func (uc *ClockUseCase) Open(ctx context.Context, in OpenInput) (*OpenResult, error) {
	if err := in.Key.Validate(); err != nil {
		return nil, err
	}

	org, err := requireOrganization(ctx, uc.orgs, in.Key.TeamID)
	if err != nil {
		return nil, err
	}

	receivedAt := uc.receivedAt(in.ReceivedAt)
	startAt, err := model.ParseClockTime(in.TimeText, in.DateText, receivedAt)
	if err != nil {
		return nil, err
	}
	if hasExplicitTime(in.TimeText, in.DateText) && model.IsFutureRelativeTo(startAt, receivedAt) {
		return nil, goerr.Wrap(model.ErrFutureTime, "clock-in time is in the future",
			goerr.V(model.RequestedAtKey, startAt),
			goerr.V(model.TimeTextKey, in.TimeText),
			goerr.V(model.DateTextKey, in.DateText))
	}

	recordID := in.RecordID
	if recordID == "" {
		recordID = model.NewRecordID()
	}
	session := &model.ClockSession{
		RecordID:     recordID,
		TeamID:       in.Key.TeamID,
		UserID:       in.Key.UserID,
		ChannelID:    in.Key.ChannelID,
		DisplayName:  in.DisplayName,
		ProjectLabel: in.ProjectLabel,
		StartAt:      startAt.UTC(),
		ExpiresAt:    uc.now().Add(model.SessionTTL),
	}
	sheet := model.MonthKey(startAt)

	unlock := uc.locks.lock(in.Key.String())
	defer unlock()

	if err := uc.ledger.EnsureMonthlySheetExists(ctx, org.Document, sheet); err != nil {
		return nil, goerr.Wrap(err, "failed to prepare month sheet",
			goerr.V(model.DocumentIDKey, org.Document.ID),
			goerr.V(model.SheetKey, sheet))
	}

	if in.Retry {
		rows, err := readSheet(ctx, uc.ledger, org.Document, sheet)
		if err != nil {
			return nil, err
		}
		if _, _, found := model.FindRowByRecordID(rows, recordID); found {
			uc.restoreMirror(ctx, session)
			logging.From(ctx).Info("clock-in already committed by earlier attempt",
				"record_id", recordID,
				"sheet", sheet)
			return &OpenResult{Organization: org, Session: session, Replayed: true}, nil
		}
	}

	if err := uc.acquire(ctx, org, session); err != nil {
		return nil, err
	}

	row := model.NewLedgerRow(session).Values()
	if err := uc.ledger.AppendRow(ctx, org.Document, sheet, row); err != nil {
		if releaseErr := uc.sessions.Release(ctx, in.Key); releaseErr != nil {
			logging.From(ctx).Error("failed to release session after append failure",
				"error", releaseErr.Error(),
				"record_id", recordID)
		}
		return nil, goerr.Wrap(err, "failed to append ledger row",
			goerr.V(model.RecordIDKey, recordID),
			goerr.V(model.SheetKey, sheet))
	}

	logging.From(ctx).Info("clock-in recorded",
		"record_id", recordID,
		"start_at", startAt,
		"sheet", sheet)

	return &OpenResult{Organization: org, Session: session}, nil
}

// acquire takes the open mark for session. A store entry left by an earlier
// attempt of the same command is reused. A key/value entry whose ledger row
// is missing or closed is released and acquired again.
func (uc *ClockUseCase) acquire(ctx context.Context, org *model.Organization, session *model.ClockSession) error {
	key := session.Key()

	existing, err := uc.sessions.TryAcquireOpen(ctx, key, session)
	if err == nil {
		return nil
	}
	if !errors.Is(err, model.ErrAlreadyOpen) {
		return goerr.Wrap(err, "failed to acquire open session", goerr.V(model.RecordIDKey, session.RecordID))
	}
	if existing == nil {
		return err
	}
	if existing.RecordID == session.RecordID {
		return nil
	}
	if uc.ledgerBacked || existing.InGrace(uc.now()) {
		return alreadyOpen(err, existing)
	}

	orphaned, checkErr := uc.isOrphaned(ctx, org.Document, existing)
	if checkErr != nil {
		return checkErr
	}
	if !orphaned {
		return alreadyOpen(err, existing)
	}

	logging.From(ctx).Warn("releasing session store entry without open ledger row",
		"record_id", existing.RecordID,
		"start_at", existing.StartAt)
	if err := uc.sessions.Release(ctx, key); err != nil {
		return goerr.Wrap(err, "failed to release orphaned session", goerr.V(model.RecordIDKey, existing.RecordID))
	}
	uc.metrics.MirrorReleased()

	existing, err = uc.sessions.TryAcquireOpen(ctx, key, session)
	if err == nil {
		return nil
	}
	if errors.Is(err, model.ErrAlreadyOpen) && existing != nil {
		return alreadyOpen(err, existing)
	}
	return goerr.Wrap(err, "failed to acquire open session", goerr.V(model.RecordIDKey, session.RecordID))
}

func alreadyOpen(err error, existing *model.ClockSession) error {
	return goerr.Wrap(err, "session is already open",
		goerr.V(model.StartAtKey, existing.StartAt),
		goerr.V(model.RecordIDKey, existing.RecordID))
}

// isOrphaned reports whether the ledger has no open row for a store entry
func (uc *ClockUseCase) isOrphaned(ctx context.Context, doc model.Document, s *model.ClockSession) (bool, error) {
	rows, err := readSheet(ctx, uc.ledger, doc, model.MonthKey(s.StartAt))
	if err != nil {
		return false, err
	}
	_, row, found := model.FindRowByRecordID(rows, s.RecordID)
	return !found || !row.IsOpen(), nil
}

// restoreMirror puts back the store entry of a row committed by an earlier
// attempt whose acquisition was rolled back
func (uc *ClockUseCase) restoreMirror(ctx context.Context, session *model.ClockSession) {
	if uc.ledgerBacked {
		return
	}
	existing, err := uc.sessions.TryAcquireOpen(ctx, session.Key(), session)
	switch {
	case err == nil:
	case errors.Is(err, model.ErrAlreadyOpen):
		if existing != nil && existing.RecordID != session.RecordID {
			logging.From(ctx).Warn("another session holds the key of a committed clock-in",
				"record_id", session.RecordID,
				"holder", existing.RecordID)
		}
	default:
		logging.From(ctx).Warn("failed to restore session store entry",
			"error", err.Error(),
			"record_id", session.RecordID)
	}
}

// Close records a clock-out on the open session of the key. A note is
// required and checked before any I/O.
func (uc *ClockUseCase) Close(ctx context.Context, in CloseInput) (*CloseResult, error) {
	note := strings.TrimSpace(in.Note)
	if note == "" {
		return nil, goerr.Wrap(model.ErrNoteRequired, "clock-out without note")
	}
	if err := in.Key.Validate(); err != nil {
		return nil, err
	}

	org, err := requireOrganization(ctx, uc.orgs, in.Key.TeamID)
	if err != nil {
		return nil, err
	}

	receivedAt := uc.receivedAt(in.ReceivedAt)
	endAt, err := model.ParseClockTime(in.TimeText, in.DateText, receivedAt)
	if err != nil {
		return nil, err
	}
	if hasExplicitTime(in.TimeText, in.DateText) && model.IsFutureRelativeTo(endAt, receivedAt) {
		return nil, goerr.Wrap(model.ErrFutureTime, "clock-out time is in the future",
			goerr.V(model.RequestedAtKey, endAt),
			goerr.V(model.TimeTextKey, in.TimeText),
			goerr.V(model.DateTextKey, in.DateText))
	}

	unlock := uc.locks.lock(in.Key.String())
	defer unlock()

	open, err := uc.sessions.PeekOpen(ctx, in.Key)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to look up open session")
	}

	if open == nil {
		if in.Retry {
			closed, err := uc.findClosed(ctx, org.Document, in.Key, endAt)
			if err != nil {
				return nil, err
			}
			if closed != nil {
				logging.From(ctx).Info("clock-out already committed by earlier attempt",
					"record_id", closed.RecordID)
				return &CloseResult{
					Organization: org,
					Session:      closed,
					Duration:     closed.Duration(),
					Note:         note,
					Replayed:     true,
				}, nil
			}
		}
		return nil, goerr.Wrap(model.ErrNotOpen, "no open session",
			goerr.V(model.UserIDKey, in.Key.UserID),
			goerr.V(model.ChannelIDKey, in.Key.ChannelID))
	}

	if endAt.Before(open.StartAt) {
		return nil, goerr.Wrap(model.ErrEndBeforeStart, "clock-out time is before clock-in",
			goerr.V(model.StartAtKey, open.StartAt),
			goerr.V(model.EndAtKey, endAt),
			goerr.V(model.RecordIDKey, open.RecordID))
	}

	sheet := model.MonthKey(open.StartAt)
	rows, err := readSheet(ctx, uc.ledger, org.Document, sheet)
	if err != nil {
		return nil, err
	}

	rowNum, row, found := model.FindRowByRecordID(rows, open.RecordID)
	if !found || !row.IsOpen() {
		if found && in.Retry && row.End == model.FormatInstant(endAt) {
			uc.release(ctx, in.Key)
			closed, err := row.Session(in.Key.TeamID)
			if err != nil {
				return nil, err
			}
			return &CloseResult{
				Organization: org,
				Session:      closed,
				Duration:     closed.Duration(),
				Note:         note,
				Replayed:     true,
			}, nil
		}

		if !uc.ledgerBacked && !open.InGrace(uc.now()) {
			logging.From(ctx).Warn("releasing session store entry without open ledger row",
				"record_id", open.RecordID,
				"found", found)
			uc.release(ctx, in.Key)
			uc.metrics.MirrorReleased()
		}
		return nil, goerr.Wrap(model.ErrNotOpen, "ledger has no open row for session",
			goerr.V(model.RecordIDKey, open.RecordID),
			goerr.V(model.SheetKey, sheet))
	}

	duration, err := open.Close(endAt)
	if err != nil {
		return nil, err
	}

	if err := uc.ledger.UpdateRange(ctx, org.Document, model.CloseRange(sheet, rowNum), model.CloseValues(open)); err != nil {
		return nil, goerr.Wrap(err, "failed to write clock-out",
			goerr.V(model.RecordIDKey, open.RecordID),
			goerr.V(model.SheetKey, sheet),
			goerr.V(model.RangeKey, model.CloseRange(sheet, rowNum)))
	}

	uc.release(ctx, in.Key)

	logging.From(ctx).Info("clock-out recorded",
		"record_id", open.RecordID,
		"end_at", endAt,
		"duration", duration.String(),
		"note", note)

	return &CloseResult{
		Organization: org,
		Session:      open,
		Duration:     duration,
		Note:         note,
	}, nil
}

// release drops the open mark after the ledger was updated. A failure only
// leaves a stale entry that the next transition reconciles.
func (uc *ClockUseCase) release(ctx context.Context, key model.SessionKey) {
	if err := uc.sessions.Release(ctx, key); err != nil {
		logging.From(ctx).Warn("failed to release session", "error", err.Error(), "key", key.String())
	}
}

// findClosed looks for the row of key closed at end in the sheets that may
// hold it
func (uc *ClockUseCase) findClosed(ctx context.Context, doc model.Document, key model.SessionKey, end time.Time) (*model.ClockSession, error) {
	for _, sheet := range model.ScanMonths(end) {
		rows, err := readSheet(ctx, uc.ledger, doc, sheet)
		if err != nil {
			return nil, err
		}
		if row, ok := model.FindClosedRow(rows, key, end); ok {
			return row.Session(key.TeamID)
		}
	}
	return nil, nil
}

// Status returns the open session of key, if any
func (uc *ClockUseCase) Status(ctx context.Context, key model.SessionKey) (*StatusResult, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}

	org, err := requireOrganization(ctx, uc.orgs, key.TeamID)
	if err != nil {
		return nil, err
	}

	open, err := uc.sessions.PeekOpen(ctx, key)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to look up open session")
	}

	result := &StatusResult{Organization: org, Session: open}
	if open != nil {
		result.Elapsed = uc.now().Sub(open.StartAt)
	}
	return result, nil
}
