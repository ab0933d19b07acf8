package usecase

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/secmon-lab/punchcard/pkg/domain/model"
	"github.com/secmon-lab/punchcard/pkg/domain/types"
	"github.com/slack-go/slack"
)

// ProcessingText is the provisional acknowledgment
const ProcessingText = "処理中..."

func markdownSection(text string) slack.Block {
	return slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, text, false, false), nil, nil)
}

func contextLine(text string) slack.Block {
	return slack.NewContextBlock("", slack.NewTextBlockObject(slack.MarkdownType, text, false, false))
}

func fieldsSection(pairs ...string) slack.Block {
	var fields []*slack.TextBlockObject
	for i := 0; i+1 < len(pairs); i += 2 {
		fields = append(fields, slack.NewTextBlockObject(slack.MarkdownType, "*"+pairs[i]+"*\n"+pairs[i+1], false, false))
	}
	return slack.NewSectionBlock(nil, fields, nil)
}

func openReply(res *OpenResult) *model.Reply {
	s := res.Session
	text := fmt.Sprintf("%s さんが出勤しました (%s)", s.DisplayName, model.FormatInstant(s.StartAt))
	return &model.Reply{
		Text: text,
		Blocks: []slack.Block{
			markdownSection(fmt.Sprintf(":large_green_circle: *%s* さんが出勤しました", s.DisplayName)),
			fieldsSection(
				"プロジェクト", s.ProjectLabel,
				"開始時刻", model.FormatInstant(s.StartAt),
			),
			contextLine("レコードID: " + s.RecordID.String()),
		},
	}
}

func closeReply(res *CloseResult) *model.Reply {
	s := res.Session
	end := ""
	if s.EndAt != nil {
		end = model.FormatInstant(*s.EndAt)
	}
	duration := model.FormatDuration(res.Duration)
	text := fmt.Sprintf("%s さんが退勤しました (%s, 稼働時間 %s)", s.DisplayName, end, duration)
	return &model.Reply{
		Text: text,
		Blocks: []slack.Block{
			markdownSection(fmt.Sprintf(":red_circle: *%s* さんが退勤しました", s.DisplayName)),
			fieldsSection(
				"プロジェクト", s.ProjectLabel,
				"稼働時間", duration,
				"開始時刻", model.FormatInstant(s.StartAt),
				"終了時刻", end,
			),
			markdownSection("*作業内容*\n" + res.Note),
			contextLine("レコードID: " + s.RecordID.String()),
		},
	}
}

func statusReply(res *StatusResult) *model.Reply {
	if res.Session == nil {
		return &model.Reply{
			Text:      "このチャンネルで出勤中の記録はありません",
			Ephemeral: true,
		}
	}
	s := res.Session
	text := fmt.Sprintf("%s から出勤中です (経過 %s)", model.FormatInstant(s.StartAt), model.FormatDuration(res.Elapsed))
	return &model.Reply{
		Text: text,
		Blocks: []slack.Block{
			markdownSection(":hourglass_flowing_sand: 出勤中です"),
			fieldsSection(
				"プロジェクト", s.ProjectLabel,
				"開始時刻", model.FormatInstant(s.StartAt),
				"経過時間", model.FormatDuration(res.Elapsed),
			),
		},
		Ephemeral: true,
	}
}

func setupReply(org *model.Organization) *model.Reply {
	return &model.Reply{
		Text: "勤怠台帳を設定しました: " + org.Document.URL,
		Blocks: []slack.Block{
			markdownSection(":white_check_mark: 勤怠台帳を設定しました"),
			markdownSection(fmt.Sprintf("<%s|スプレッドシートを開く>", org.Document.URL)),
		},
		Ephemeral: true,
	}
}

// HelpReply describes the commands of set
func HelpReply(set CommandSet) *model.Reply {
	lines := []string{
		fmt.Sprintf("`%s [時刻] [日付]` 出勤を記録します", set.ClockIn),
		fmt.Sprintf("`%s [時刻] [日付] 作業内容` 退勤を記録します (作業内容は必須)", set.ClockOut),
		fmt.Sprintf("`%s` 出勤中の記録を表示します", set.Status),
		fmt.Sprintf("`%s スプレッドシートURL` 勤怠台帳を設定します (管理者のみ)", set.Setup),
		"`time=`, `date=`, `note=` を付けて指定することもできます",
	}
	return &model.Reply{
		Text: strings.Join(lines, "\n"),
		Blocks: []slack.Block{
			markdownSection(strings.Join(lines, "\n")),
			contextLine(strings.Join(model.AcceptedFormats, "\n")),
		},
		Ephemeral: true,
	}
}

func timeValue(err error, key string) (time.Time, bool) {
	v, ok := model.ErrorValue(err, key)
	if !ok {
		return time.Time{}, false
	}
	t, ok := v.(time.Time)
	return t, ok
}

// FailureReply renders the private message of a failed command
func FailureReply(action types.Action, err error) *model.Reply {
	text := failureText(action, err)
	return &model.Reply{
		Text:   text,
		Blocks: []slack.Block{markdownSection(":warning: " + text)},
	}
}

func failureText(action types.Action, err error) string {
	switch {
	case errors.Is(err, model.ErrAlreadyOpen):
		if start, ok := timeValue(err, model.StartAtKey); ok {
			return fmt.Sprintf("すでに出勤中です (開始時刻: %s)", model.FormatInstant(start))
		}
		return "すでに出勤中です"

	case errors.Is(err, model.ErrNotOpen):
		return "出勤中の記録がありません。先に出勤を記録してください"

	case errors.Is(err, model.ErrFutureTime):
		if requested, ok := timeValue(err, model.RequestedAtKey); ok {
			return fmt.Sprintf("未来の時刻は指定できません (%s)", model.FormatInstant(requested))
		}
		return "未来の時刻は指定できません"

	case errors.Is(err, model.ErrEndBeforeStart):
		start, okStart := timeValue(err, model.StartAtKey)
		end, okEnd := timeValue(err, model.EndAtKey)
		if okStart && okEnd {
			return fmt.Sprintf("終了時刻 %s が開始時刻 %s より前です", model.FormatInstant(end), model.FormatInstant(start))
		}
		return "終了時刻が開始時刻より前です"

	case errors.Is(err, model.ErrParse):
		if action == types.ActionSetup {
			return "スプレッドシートのURLまたはIDを指定してください"
		}
		return "時刻または日付の形式が正しくありません。使用できる形式:\n" + strings.Join(model.AcceptedFormats, "\n")

	case errors.Is(err, model.ErrConfigurationMissing):
		return "このワークスペースの勤怠台帳がまだ設定されていません。管理者に設定を依頼してください"

	case errors.Is(err, model.ErrNoteRequired):
		return "退勤には作業内容の入力が必要です (例: 18:00 資料作成)"

	case errors.Is(err, model.ErrPermissionDenied):
		return "この操作にはワークスペース管理者の権限が必要です"

	case errors.Is(err, model.ErrTransientFailureExhausted):
		attempts := DefaultMaxAttempts
		if v, ok := model.ErrorValue(err, model.AttemptsKey); ok {
			if n, ok := v.(int); ok {
				attempts = n
			}
		}
		last := err.Error()
		if v, ok := model.ErrorValue(err, model.LastErrorKey); ok {
			if s, ok := v.(string); ok {
				last = s
			}
		}
		return fmt.Sprintf("%d回試行しましたが記録できませんでした: %s", attempts, last)

	default:
		return "処理に失敗しました: " + err.Error()
	}
}
