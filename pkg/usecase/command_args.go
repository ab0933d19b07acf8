package usecase

import (
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/punchcard/pkg/domain/model"
	"golang.org/x/text/width"
)

// clockArgs is the parsed argument text of a clock command
type clockArgs struct {
	TimeText string
	DateText string
	Note     string
}

// parseClockArgs reads time and date tokens from the left and treats the
// rest as the note. time=, date= and note= prefixes may be used anywhere
// before the note starts.
//
// A bare unsigned day offset is a date only before the time token, so
// "18:00 2 bugs fixed" keeps "2 bugs fixed" as the note. Before the time
// token, numeric or colon tokens that are neither clock nor date are
// rejected instead of starting the note. Without allowNote any leftover
// text is an error.
func parseClockArgs(text string, allowNote bool) (clockArgs, error) {
	var args clockArgs
	fields := strings.Fields(text)

	i := 0
scan:
	for ; i < len(fields); i++ {
		f := fields[i]
		switch {
		case strings.HasPrefix(f, "time="):
			args.TimeText = strings.TrimPrefix(f, "time=")
		case strings.HasPrefix(f, "date="):
			args.DateText = strings.TrimPrefix(f, "date=")
		case strings.HasPrefix(f, "note="):
			fields[i] = strings.TrimPrefix(f, "note=")
			break scan
		case args.TimeText == "" && model.LooksLikeClock(f):
			args.TimeText = f
		case args.DateText == "" && model.LooksLikeDate(f) && (args.TimeText == "" || !isBareOffset(f)):
			args.DateText = f
		case args.TimeText == "" && (isNumeric(f) || strings.ContainsAny(f, ":：")):
			return clockArgs{}, goerr.Wrap(model.ErrParse, "malformed time or date argument",
				goerr.V(model.TimeTextKey, f))
		default:
			break scan
		}
	}

	if i < len(fields) {
		args.Note = strings.TrimSpace(strings.Join(fields[i:], " "))
	}
	if !allowNote && args.Note != "" {
		return clockArgs{}, goerr.Wrap(model.ErrParse, "unexpected argument",
			goerr.V(model.TimeTextKey, args.Note))
	}
	return args, nil
}

// isNumeric reports whether s is an optionally signed run of digits
func isNumeric(s string) bool {
	s = strings.TrimLeft(width.Narrow.String(s), "+-")
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

// isBareOffset reports whether s is an unsigned day offset such as "2"
func isBareOffset(s string) bool {
	s = width.Narrow.String(s)
	return len(s) <= 2 && !strings.HasPrefix(s, "+") && !strings.HasPrefix(s, "-") && isNumeric(s)
}
