package config

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/m-mizutani/clog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/masq"
	"github.com/secmon-lab/punchcard/pkg/domain/model"
	"github.com/secmon-lab/punchcard/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

// Logger holds CLI flags for the default logger
type Logger struct {
	level  string
	format string
	output string
}

func (x *Logger) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "Log level (debug, info, warn, error)",
			Category:    "Logging",
			Value:       "info",
			Sources:     cli.EnvVars("PUNCHCARD_LOG_LEVEL"),
			Destination: &x.level,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "Log format (console or json)",
			Category:    "Logging",
			Value:       "console",
			Sources:     cli.EnvVars("PUNCHCARD_LOG_FORMAT"),
			Destination: &x.format,
		},
		&cli.StringFlag{
			Name:        "log-output",
			Usage:       "Log output (stdout, stderr or a file path)",
			Category:    "Logging",
			Value:       "stdout",
			Sources:     cli.EnvVars("PUNCHCARD_LOG_OUTPUT"),
			Destination: &x.output,
		},
	}
}

func (x Logger) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("level", x.level),
		slog.String("format", x.format),
		slog.String("output", x.output),
	)
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, goerr.Wrap(ErrInvalidConfig, "invalid log level", goerr.V("level", s))
}

// redactor masks secrets in log attributes
func redactor() func(groups []string, a slog.Attr) slog.Attr {
	return masq.New(
		masq.WithTag("secret"),
		masq.WithType[model.Credentials](),
	)
}

// NewHandler builds the slog handler for format writing to w
func NewHandler(w io.Writer, format string, level slog.Level) (slog.Handler, error) {
	switch format {
	case "", "console":
		return clog.New(
			clog.WithWriter(w),
			clog.WithLevel(level),
			clog.WithColor(w == os.Stdout || w == os.Stderr),
			clog.WithReplaceAttr(redactor()),
		), nil

	case "json":
		return slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level:       level,
			ReplaceAttr: redactor(),
		}), nil
	}
	return nil, goerr.Wrap(ErrInvalidConfig, "invalid log format", goerr.V("format", format))
}

// Configure installs the default logger. The returned function closes the
// log file, if any.
func (x *Logger) Configure() (func(), error) {
	level, err := parseLevel(x.level)
	if err != nil {
		return nil, err
	}

	closer := func() {}
	var w io.Writer
	switch x.output {
	case "", "stdout", "-":
		w = os.Stdout
	case "stderr":
		w = os.Stderr
	default:
		// #nosec G304 - path is provided by the operator
		f, err := os.OpenFile(x.output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to open log file", goerr.V("path", x.output))
		}
		w = f
		closer = func() {
			if err := f.Close(); err != nil {
				logging.Default().Error("failed to close log file", "error", err.Error())
			}
		}
	}

	handler, err := NewHandler(w, x.format, level)
	if err != nil {
		closer()
		return nil, err
	}
	logging.SetDefault(slog.New(handler))
	return closer, nil
}
