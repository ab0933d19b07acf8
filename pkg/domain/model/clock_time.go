package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"golang.org/x/text/width"
)

// JST is the organizational timezone. A fixed zone keeps parsing
// independent of the host TZ and tzdata.
var JST = time.FixedZone("JST", 9*60*60)

// MaxDayOffset bounds relative date input such as "-3"
const MaxDayOffset = 31

// AcceptedFormats lists the input forms shown to users on ErrParse
var AcceptedFormats = []string{
	"時刻: HH:MM, HHMM, HMM (例: 9:00, 0900, 900)",
	"日付: YYYY-MM-DD, YYYYMMDD, today, yesterday, 日数 (例: 0, -1, +1)",
}

const (
	instantLayout = "2006/01/02 15:04:05"
	clockLayout   = "15:04"
	monthLayout   = "2006-01"
)

// ParseClockTime resolves user supplied clock and date text into a UTC
// instant. Wall clock values are interpreted in JST. When both texts are
// empty now is returned unchanged. A missing time keeps the time of day of
// now and a missing date means today.
func ParseClockTime(timeText, dateText string, now time.Time) (time.Time, error) {
	timeText = normalizeInput(timeText)
	dateText = normalizeInput(dateText)
	if timeText == "" && dateText == "" {
		return now, nil
	}

	local := now.In(JST)
	year, month, day := local.Date()
	hour, minute, sec, nsec := local.Hour(), local.Minute(), local.Second(), local.Nanosecond()

	if dateText != "" {
		d, err := parseDate(dateText, local)
		if err != nil {
			return time.Time{}, err
		}
		year, month, day = d.Date()
	}

	if timeText != "" {
		h, m, err := parseClock(timeText)
		if err != nil {
			return time.Time{}, err
		}
		hour, minute, sec, nsec = h, m, 0, 0
	}

	return time.Date(year, month, day, hour, minute, sec, nsec, JST).UTC(), nil
}

// IsFutureRelativeTo reports whether instant is strictly after now
func IsFutureRelativeTo(instant, now time.Time) bool {
	return instant.After(now)
}

// LooksLikeClock reports whether s has the surface shape of clock text,
// regardless of range validity.
func LooksLikeClock(s string) bool {
	s = normalizeInput(s)
	if hh, mm, ok := strings.Cut(s, ":"); ok {
		return isDigits(hh) && len(hh) >= 1 && len(hh) <= 2 && isDigits(mm) && len(mm) == 2
	}
	return isDigits(s) && (len(s) == 3 || len(s) == 4)
}

// LooksLikeDate reports whether s has the surface shape of date text
func LooksLikeDate(s string) bool {
	s = strings.ToLower(normalizeInput(s))
	switch {
	case s == "today" || s == "yesterday":
		return true
	case len(s) == 10 && s[4] == '-' && s[7] == '-':
		return isDigits(s[:4]) && isDigits(s[5:7]) && isDigits(s[8:])
	case len(s) == 8 && isDigits(s):
		return true
	}
	body := strings.TrimLeft(s, "+-")
	return len(s)-len(body) <= 1 && len(body) >= 1 && len(body) <= 2 && isDigits(body)
}

func parseClock(s string) (int, int, error) {
	var hh, mm string
	if h, m, ok := strings.Cut(s, ":"); ok {
		hh, mm = h, m
		if len(hh) < 1 || len(hh) > 2 || len(mm) != 2 {
			return 0, 0, clockError(s)
		}
	} else {
		switch len(s) {
		case 3:
			hh, mm = s[:1], s[1:]
		case 4:
			hh, mm = s[:2], s[2:]
		default:
			return 0, 0, clockError(s)
		}
	}
	if !isDigits(hh) || !isDigits(mm) {
		return 0, 0, clockError(s)
	}

	hour, _ := strconv.Atoi(hh)
	minute, _ := strconv.Atoi(mm)
	if hour > 23 || minute > 59 {
		return 0, 0, goerr.Wrap(ErrParse, "clock value out of range", goerr.V(TimeTextKey, s))
	}
	return hour, minute, nil
}

func clockError(s string) error {
	return goerr.Wrap(ErrParse, "unsupported clock format", goerr.V(TimeTextKey, s))
}

func parseDate(s string, local time.Time) (time.Time, error) {
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, JST)

	switch strings.ToLower(s) {
	case "today":
		return today, nil
	case "yesterday":
		return today.AddDate(0, 0, -1), nil
	}

	if len(s) == 10 && strings.Count(s, "-") == 2 {
		d, err := time.ParseInLocation("2006-01-02", s, JST)
		if err != nil {
			return time.Time{}, goerr.Wrap(ErrParse, "invalid date", goerr.V(DateTextKey, s))
		}
		return d, nil
	}

	if len(s) == 8 && isDigits(s) {
		d, err := time.ParseInLocation("20060102", s, JST)
		if err != nil {
			return time.Time{}, goerr.Wrap(ErrParse, "invalid date", goerr.V(DateTextKey, s))
		}
		return d, nil
	}

	offset, err := strconv.Atoi(s)
	if err != nil {
		return time.Time{}, goerr.Wrap(ErrParse, "unsupported date format", goerr.V(DateTextKey, s))
	}
	if offset < -MaxDayOffset || offset > MaxDayOffset {
		return time.Time{}, goerr.Wrap(ErrParse, "day offset out of range", goerr.V(DateTextKey, s))
	}
	return today.AddDate(0, 0, offset), nil
}

// normalizeInput folds full-width digits and punctuation typed by Japanese
// IMEs into ASCII.
func normalizeInput(s string) string {
	return strings.TrimSpace(width.Fold.String(s))
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// FormatInstant renders t as YYYY/MM/DD HH:MM:SS in JST
func FormatInstant(t time.Time) string {
	return t.In(JST).Format(instantLayout)
}

// FormatClock renders t as HH:MM in JST
func FormatClock(t time.Time) string {
	return t.In(JST).Format(clockLayout)
}

// MonthKey returns the YYYY-MM sheet name the instant belongs to
func MonthKey(t time.Time) string {
	return t.In(JST).Format(monthLayout)
}

// ParseMonthKey validates a YYYY-MM sheet name and returns the first
// instant of that month.
func ParseMonthKey(s string) (time.Time, error) {
	t, err := time.ParseInLocation(monthLayout, s, JST)
	if err != nil {
		return time.Time{}, goerr.Wrap(ErrParse, "invalid month", goerr.V(SheetKey, s))
	}
	return t, nil
}

// ParseInstant reads a ledger timestamp cell written by FormatInstant. A few
// spreadsheet display variants are accepted as well.
func ParseInstant(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{instantLayout, "2006/1/2 15:04:05", "2006-01-02 15:04:05", "2006/01/02 15:04"} {
		if t, err := time.ParseInLocation(layout, s, JST); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, goerr.Wrap(ErrParse, "invalid ledger timestamp", goerr.V("value", s))
}

// FormatDuration renders d as hours and minutes with seconds truncated.
// Negative values clamp to zero.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	hours := int(d / time.Hour)
	minutes := int((d % time.Hour) / time.Minute)
	return fmt.Sprintf("%d時間%d分", hours, minutes)
}
