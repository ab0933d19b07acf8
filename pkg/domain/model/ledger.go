package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
)

// Ledger columns, A through H
const (
	ColumnProject = iota
	ColumnName
	ColumnDuration
	ColumnStart
	ColumnEnd
	ColumnChannelID
	ColumnUserID
	ColumnRecordID

	ledgerColumns
)

// LedgerHeader is the first row of every month sheet
var LedgerHeader = []string{
	"プロジェクト",
	"名前",
	"稼働時間",
	"開始時刻",
	"終了時刻",
	"チャンネルID",
	"ユーザーID",
	"レコードID",
}

// AbandonedMarker is written to the end cell of a row the sweeper gave up on
const AbandonedMarker = "ABANDONED"

// LedgerRow is one row of a month sheet in cell text form
type LedgerRow struct {
	ProjectLabel string
	DisplayName  string
	Duration     string
	Start        string
	End          string
	ChannelID    string
	UserID       string
	RecordID     RecordID
}

// NewLedgerRow builds the row appended on clock-in. Duration and end stay
// empty until the session closes.
func NewLedgerRow(s *ClockSession) LedgerRow {
	return LedgerRow{
		ProjectLabel: s.ProjectLabel,
		DisplayName:  s.DisplayName,
		Start:        FormatInstant(s.StartAt),
		ChannelID:    s.ChannelID,
		UserID:       s.UserID,
		RecordID:     s.RecordID,
	}
}

// ParseLedgerRow converts cells read from a sheet. Google Sheets trims
// trailing empty cells, so short rows are padded.
func ParseLedgerRow(cells []string) LedgerRow {
	padded := make([]string, ledgerColumns)
	copy(padded, cells)
	for i := range padded {
		padded[i] = strings.TrimSpace(padded[i])
	}
	return LedgerRow{
		ProjectLabel: padded[ColumnProject],
		DisplayName:  padded[ColumnName],
		Duration:     padded[ColumnDuration],
		Start:        padded[ColumnStart],
		End:          padded[ColumnEnd],
		ChannelID:    padded[ColumnChannelID],
		UserID:       padded[ColumnUserID],
		RecordID:     RecordID(padded[ColumnRecordID]),
	}
}

// Values returns the cells in column order
func (r LedgerRow) Values() []string {
	return []string{
		r.ProjectLabel,
		r.DisplayName,
		r.Duration,
		r.Start,
		r.End,
		r.ChannelID,
		r.UserID,
		r.RecordID.String(),
	}
}

// IsOpen reports whether the row has a start and no end
func (r LedgerRow) IsOpen() bool {
	return r.Start != "" && r.End == ""
}

// Matches reports whether the row belongs to the user and channel of key
func (r LedgerRow) Matches(key SessionKey) bool {
	return r.UserID == key.UserID && r.ChannelID == key.ChannelID
}

// Session converts the row to a ClockSession. teamID is not stored in the
// ledger because each organization owns its own document.
func (r LedgerRow) Session(teamID string) (*ClockSession, error) {
	start, err := ParseInstant(r.Start)
	if err != nil {
		return nil, goerr.Wrap(err, "invalid start cell", goerr.V(RecordIDKey, r.RecordID))
	}
	s := &ClockSession{
		RecordID:     r.RecordID,
		TeamID:       teamID,
		UserID:       r.UserID,
		ChannelID:    r.ChannelID,
		DisplayName:  r.DisplayName,
		ProjectLabel: r.ProjectLabel,
		StartAt:      start,
		ExpiresAt:    start.Add(SessionTTL),
	}
	if r.End != "" {
		end, err := ParseInstant(r.End)
		if err != nil {
			return nil, goerr.Wrap(err, "invalid end cell", goerr.V(RecordIDKey, r.RecordID))
		}
		s.EndAt = &end
	}
	return s, nil
}

// LedgerRange is the A1 range covering every column of a month sheet
func LedgerRange(sheet string) string {
	return fmt.Sprintf("'%s'!A:H", sheet)
}

// HeaderRange is the A1 range of the header row
func HeaderRange(sheet string) string {
	return fmt.Sprintf("'%s'!A1:H1", sheet)
}

// CloseRange is the duration, start and end cells of a 1-based row
func CloseRange(sheet string, row int) string {
	return fmt.Sprintf("'%s'!C%d:E%d", sheet, row, row)
}

// EndCellRange is the end cell of a 1-based row
func EndCellRange(sheet string, row int) string {
	return fmt.Sprintf("'%s'!E%d", sheet, row)
}

// CloseValues returns the cells written to CloseRange
func CloseValues(s *ClockSession) [][]string {
	end := ""
	if s.EndAt != nil {
		end = FormatInstant(*s.EndAt)
	}
	return [][]string{{FormatDuration(s.Duration()), FormatInstant(s.StartAt), end}}
}

// FindRowByRecordID returns the 1-based sheet row holding id. rows is the
// result of reading LedgerRange, header included.
func FindRowByRecordID(rows [][]string, id RecordID) (int, LedgerRow, bool) {
	for i := len(rows) - 1; i >= 1; i-- {
		row := ParseLedgerRow(rows[i])
		if row.RecordID == id {
			return i + 1, row, true
		}
	}
	return 0, LedgerRow{}, false
}

// FindOpenRow returns the latest open row for key whose start is within
// SessionTTL of now. Older open rows are abandoned and do not block.
func FindOpenRow(rows [][]string, key SessionKey, now time.Time) (*ClockSession, bool) {
	for i := len(rows) - 1; i >= 1; i-- {
		row := ParseLedgerRow(rows[i])
		if !row.Matches(key) || !row.IsOpen() {
			continue
		}
		s, err := row.Session(key.TeamID)
		if err != nil || s.IsStale(now) {
			continue
		}
		return s, true
	}
	return nil, false
}

// FindClosedRow returns the row for key that was closed at exactly end. It
// recognizes a close that already reached the ledger on an earlier attempt.
func FindClosedRow(rows [][]string, key SessionKey, end time.Time) (LedgerRow, bool) {
	endText := FormatInstant(end)
	for i := len(rows) - 1; i >= 1; i-- {
		row := ParseLedgerRow(rows[i])
		if row.Matches(key) && row.End == endText {
			return row, true
		}
	}
	return LedgerRow{}, false
}

// StaleRow is an open row older than SessionTTL
type StaleRow struct {
	Row     int
	Sheet   string
	Session *ClockSession
}

// FindStaleRows lists open rows that started more than SessionTTL before now
func FindStaleRows(sheet string, rows [][]string, teamID string, now time.Time) []StaleRow {
	var stale []StaleRow
	for i := 1; i < len(rows); i++ {
		row := ParseLedgerRow(rows[i])
		if !row.IsOpen() {
			continue
		}
		s, err := row.Session(teamID)
		if err != nil || !s.IsStale(now) {
			continue
		}
		stale = append(stale, StaleRow{Row: i + 1, Sheet: sheet, Session: s})
	}
	return stale
}

// ScanMonths returns the month sheets that may hold a row started within
// SessionTTL of now, newest first.
func ScanMonths(now time.Time) []string {
	current := MonthKey(now)
	previous := MonthKey(now.Add(-SessionTTL))
	if previous == current {
		return []string{current}
	}
	return []string{current, previous}
}
