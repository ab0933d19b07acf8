package usecase

import (
	"context"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/punchcard/pkg/domain/interfaces"
	"github.com/secmon-lab/punchcard/pkg/domain/model"
	"github.com/secmon-lab/punchcard/pkg/domain/types"
	slacksvc "github.com/secmon-lab/punchcard/pkg/service/slack"
	"github.com/secmon-lab/punchcard/pkg/utils/logging"
	"github.com/secmon-lab/punchcard/pkg/utils/metrics"
)

// CommandSet maps slash command names to actions
type CommandSet struct {
	ClockIn  string
	ClockOut string
	Status   string
	Setup    string
	Help     string
}

func DefaultCommandSet() CommandSet {
	return CommandSet{
		ClockIn:  "/clock-in",
		ClockOut: "/clock-out",
		Status:   "/clock-status",
		Setup:    "/clock-setup",
		Help:     "/clock-help",
	}
}

// Resolve returns the action of a command name
func (s CommandSet) Resolve(name string) (types.Action, bool) {
	switch name {
	case s.ClockIn:
		return types.ActionOpen, true
	case s.ClockOut:
		return types.ActionClose, true
	case s.Status:
		return types.ActionStatus, true
	case s.Setup:
		return types.ActionSetup, true
	case s.Help:
		return types.ActionHelp, true
	}
	return "", false
}

// Command is one slash command invocation
type Command struct {
	Name        string
	Text        string
	TeamID      string
	ChannelID   string
	ChannelName string
	UserID      string
	UserName    string
	ReceivedAt  time.Time
}

func (c *Command) key() model.SessionKey {
	return model.SessionKey{TeamID: c.TeamID, UserID: c.UserID, ChannelID: c.ChannelID}
}

// CommandUseCase maps slash commands to clock transitions run through the
// retry coordinator
type CommandUseCase struct {
	clock    *ClockUseCase
	setup    *SetupUseCase
	retry    *RetryCoordinator
	slack    slacksvc.Service
	commands CommandSet
	now      func() time.Time
	metrics  *metrics.Metrics
}

func NewCommandUseCase(clock *ClockUseCase, setup *SetupUseCase, retry *RetryCoordinator, slackService slacksvc.Service, commands CommandSet, now func() time.Time, m *metrics.Metrics) *CommandUseCase {
	if now == nil {
		now = time.Now
	}
	return &CommandUseCase{
		clock:    clock,
		setup:    setup,
		retry:    retry,
		slack:    slackService,
		commands: commands,
		now:      now,
		metrics:  m,
	}
}

// Resolve returns the action of a command name
func (uc *CommandUseCase) Resolve(name string) (types.Action, bool) {
	return uc.commands.Resolve(name)
}

// Help returns the usage message
func (uc *CommandUseCase) Help() *model.Reply {
	return HelpReply(uc.commands)
}

// Acknowledge returns the provisional message sent as the HTTP response.
// Clock transitions are acknowledged in the channel, the rest privately.
func (uc *CommandUseCase) Acknowledge(action types.Action) *model.Reply {
	return &model.Reply{
		Text:      ProcessingText,
		Ephemeral: !action.IsTransition(),
	}
}

// Execute runs the command to completion and resolves the provisional
// message through responder
func (uc *CommandUseCase) Execute(ctx context.Context, cmd *Command, responder interfaces.Responder) error {
	action, ok := uc.commands.Resolve(cmd.Name)
	if !ok {
		return goerr.New("unknown command", goerr.V("command", cmd.Name))
	}
	if cmd.ReceivedAt.IsZero() {
		cmd.ReceivedAt = uc.now()
	}
	uc.metrics.CommandReceived(action.String())

	logger := logging.From(ctx).With(
		"action", action.String(),
		"team_id", cmd.TeamID,
		"channel_id", cmd.ChannelID,
		"user_id", cmd.UserID,
	)
	ctx = logging.With(ctx, logger)

	var fn AttemptFunc
	switch action {
	case types.ActionOpen:
		fn = uc.clockIn(ctx, cmd)
	case types.ActionClose:
		fn = uc.clockOut(cmd)
	case types.ActionStatus:
		fn = uc.status(cmd)
	case types.ActionSetup:
		fn = uc.configure(cmd)
	case types.ActionHelp:
		return responder.Replace(ctx, uc.Help())
	}

	_, err := uc.retry.Run(ctx, action, responder, fn)
	return err
}

// rejected returns an attempt that fails with err without touching any
// backend
func rejected(err error) AttemptFunc {
	return func(ctx context.Context, attempt int) (*model.Reply, error) {
		return nil, err
	}
}

func (uc *CommandUseCase) clockIn(ctx context.Context, cmd *Command) AttemptFunc {
	args, err := parseClockArgs(cmd.Text, false)
	if err != nil {
		return rejected(err)
	}
	recordID := model.NewRecordID()
	displayName := uc.displayName(ctx, cmd)
	projectLabel := uc.channelLabel(ctx, cmd)

	return func(ctx context.Context, attempt int) (*model.Reply, error) {
		res, err := uc.clock.Open(ctx, OpenInput{
			Key:          cmd.key(),
			RecordID:     recordID,
			DisplayName:  displayName,
			ProjectLabel: projectLabel,
			TimeText:     args.TimeText,
			DateText:     args.DateText,
			ReceivedAt:   cmd.ReceivedAt,
			Retry:        attempt > 1,
		})
		if err != nil {
			return nil, err
		}
		return openReply(res), nil
	}
}

func (uc *CommandUseCase) clockOut(cmd *Command) AttemptFunc {
	args, err := parseClockArgs(cmd.Text, true)
	if err != nil {
		return rejected(err)
	}

	return func(ctx context.Context, attempt int) (*model.Reply, error) {
		res, err := uc.clock.Close(ctx, CloseInput{
			Key:        cmd.key(),
			TimeText:   args.TimeText,
			DateText:   args.DateText,
			Note:       args.Note,
			ReceivedAt: cmd.ReceivedAt,
			Retry:      attempt > 1,
		})
		if err != nil {
			return nil, err
		}
		return closeReply(res), nil
	}
}

func (uc *CommandUseCase) status(cmd *Command) AttemptFunc {
	return func(ctx context.Context, attempt int) (*model.Reply, error) {
		res, err := uc.clock.Status(ctx, cmd.key())
		if err != nil {
			return nil, err
		}
		return statusReply(res), nil
	}
}

func (uc *CommandUseCase) configure(cmd *Command) AttemptFunc {
	return func(ctx context.Context, attempt int) (*model.Reply, error) {
		org, err := uc.setup.Configure(ctx, SetupInput{
			TeamID:      cmd.TeamID,
			UserID:      cmd.UserID,
			DocumentRef: strings.TrimSpace(cmd.Text),
		})
		if err != nil {
			return nil, err
		}
		return setupReply(org), nil
	}
}

// displayName prefers the Slack profile name and falls back to the user
// name sent with the command
func (uc *CommandUseCase) displayName(ctx context.Context, cmd *Command) string {
	if uc.slack == nil {
		return cmd.UserName
	}
	user, err := uc.slack.GetUserInfo(ctx, cmd.UserID)
	if err != nil {
		logging.From(ctx).Warn("failed to get user info, using command user name", "error", err.Error())
		return cmd.UserName
	}
	if label := user.Label(); label != "" {
		return label
	}
	return cmd.UserName
}

// channelLabel resolves the project label of the channel at clock-in
func (uc *CommandUseCase) channelLabel(ctx context.Context, cmd *Command) string {
	if uc.slack == nil {
		return cmd.ChannelName
	}
	names, err := uc.slack.GetChannelNames(ctx, []string{cmd.ChannelID})
	if err != nil {
		logging.From(ctx).Warn("failed to get channel name, using command channel name", "error", err.Error())
		return cmd.ChannelName
	}
	if name := names[cmd.ChannelID]; name != "" {
		return name
	}
	return cmd.ChannelName
}
