package config

import (
	"log/slog"
	"time"

	"github.com/m-mizutani/goerr/v2"
	slacksvc "github.com/secmon-lab/punchcard/pkg/service/slack"
	"github.com/secmon-lab/punchcard/pkg/usecase"
	"github.com/urfave/cli/v3"
)

type Slack struct {
	botToken      string
	signingSecret string
	cacheTTL      time.Duration
	commands      usecase.CommandSet
}

func (x *Slack) setDefaultCommands() {
	x.commands = usecase.DefaultCommandSet()
}

func (x *Slack) Flags() []cli.Flag {
	defaults := usecase.DefaultCommandSet()
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "slack-bot-token",
			Usage:       "Slack Bot User OAuth Token (for user and channel lookups)",
			Category:    "Slack",
			Destination: &x.botToken,
			Sources:     cli.EnvVars("PUNCHCARD_SLACK_BOT_TOKEN"),
		},
		&cli.StringFlag{
			Name:        "slack-signing-secret",
			Usage:       "Slack Signing Secret (for slash command verification)",
			Category:    "Slack",
			Destination: &x.signingSecret,
			Sources:     cli.EnvVars("PUNCHCARD_SLACK_SIGNING_SECRET"),
		},
		&cli.DurationFlag{
			Name:        "slack-cache-ttl",
			Usage:       "TTL of cached channel names",
			Category:    "Slack",
			Value:       slacksvc.DefaultCacheTTL,
			Destination: &x.cacheTTL,
			Sources:     cli.EnvVars("PUNCHCARD_SLACK_CACHE_TTL"),
		},
		&cli.StringFlag{
			Name:        "command-clock-in",
			Usage:       "Slash command name that opens a session",
			Category:    "Slack",
			Value:       defaults.ClockIn,
			Destination: &x.commands.ClockIn,
			Sources:     cli.EnvVars("PUNCHCARD_COMMAND_CLOCK_IN"),
		},
		&cli.StringFlag{
			Name:        "command-clock-out",
			Usage:       "Slash command name that closes a session",
			Category:    "Slack",
			Value:       defaults.ClockOut,
			Destination: &x.commands.ClockOut,
			Sources:     cli.EnvVars("PUNCHCARD_COMMAND_CLOCK_OUT"),
		},
		&cli.StringFlag{
			Name:        "command-status",
			Usage:       "Slash command name that shows the open session",
			Category:    "Slack",
			Value:       defaults.Status,
			Destination: &x.commands.Status,
			Sources:     cli.EnvVars("PUNCHCARD_COMMAND_STATUS"),
		},
		&cli.StringFlag{
			Name:        "command-setup",
			Usage:       "Slash command name that binds the ledger spreadsheet",
			Category:    "Slack",
			Value:       defaults.Setup,
			Destination: &x.commands.Setup,
			Sources:     cli.EnvVars("PUNCHCARD_COMMAND_SETUP"),
		},
		&cli.StringFlag{
			Name:        "command-help",
			Usage:       "Slash command name that shows usage",
			Category:    "Slack",
			Value:       defaults.Help,
			Destination: &x.commands.Help,
			Sources:     cli.EnvVars("PUNCHCARD_COMMAND_HELP"),
		},
	}
}

func (x Slack) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("bot-token.len", len(x.botToken)),
		slog.Int("signing-secret.len", len(x.signingSecret)),
		slog.String("command.clock-in", x.commands.ClockIn),
		slog.String("command.clock-out", x.commands.ClockOut),
	)
}

// Configure returns the Slack API service, or nil when no bot token is set.
// Without it display names fall back to the command payload and setup is
// refused.
func (x *Slack) Configure() (slacksvc.Service, error) {
	if x.botToken == "" {
		return nil, nil
	}
	var opts []slacksvc.Option
	if x.cacheTTL > 0 {
		opts = append(opts, slacksvc.WithCacheTTL(x.cacheTTL))
	}
	svc, err := slacksvc.New(x.botToken, opts...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to initialize slack service")
	}
	return svc, nil
}

// Commands returns the configured slash command names. Every name must be
// distinct.
func (x *Slack) Commands() (usecase.CommandSet, error) {
	seen := map[string]bool{}
	for _, name := range []string{x.commands.ClockIn, x.commands.ClockOut, x.commands.Status, x.commands.Setup, x.commands.Help} {
		if name == "" || name[0] != '/' {
			return usecase.CommandSet{}, goerr.Wrap(ErrInvalidConfig, "slash command must start with /", goerr.V("command", name))
		}
		if seen[name] {
			return usecase.CommandSet{}, goerr.Wrap(ErrInvalidConfig, "duplicate slash command", goerr.V("command", name))
		}
		seen[name] = true
	}
	return x.commands, nil
}

// IsWebhookConfigured checks if slash command verification is configured
func (x *Slack) IsWebhookConfigured() bool {
	return x.signingSecret != ""
}

// SigningSecret returns the Slack signing secret
func (x *Slack) SigningSecret() string {
	return x.signingSecret
}
