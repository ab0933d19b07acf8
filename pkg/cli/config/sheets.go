package config

import (
	"log/slog"
	"os"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/punchcard/pkg/domain/interfaces"
	"github.com/secmon-lab/punchcard/pkg/service/sheets"
	"github.com/secmon-lab/punchcard/pkg/utils/logging"
	"github.com/urfave/cli/v3"
	"google.golang.org/api/option"
)

// Sheets holds CLI flags for the ledger document backend
type Sheets struct {
	backend         string
	credentialsFile string
	timeout         time.Duration
}

func (x *Sheets) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "sheets-backend",
			Usage:       "Ledger backend (google or memory)",
			Category:    "Ledger",
			Value:       "google",
			Sources:     cli.EnvVars("PUNCHCARD_SHEETS_BACKEND"),
			Destination: &x.backend,
		},
		&cli.StringFlag{
			Name:        "sheets-credentials-file",
			Usage:       "Service account key used for organizations without their own credentials. Application default credentials when empty",
			Category:    "Ledger",
			Sources:     cli.EnvVars("PUNCHCARD_SHEETS_CREDENTIALS_FILE"),
			Destination: &x.credentialsFile,
		},
		&cli.DurationFlag{
			Name:        "sheets-timeout",
			Usage:       "Timeout of one Sheets API call",
			Category:    "Ledger",
			Value:       sheets.DefaultTimeout,
			Sources:     cli.EnvVars("PUNCHCARD_SHEETS_TIMEOUT"),
			Destination: &x.timeout,
		},
	}
}

func (x Sheets) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("backend", x.backend),
		slog.String("credentials_file", x.credentialsFile),
		slog.Duration("timeout", x.timeout),
	)
}

// Configure returns the ledger backend
func (x *Sheets) Configure() (interfaces.Ledger, error) {
	switch x.backend {
	case "", "google":
		var opts []sheets.Option
		if x.timeout > 0 {
			opts = append(opts, sheets.WithTimeout(x.timeout))
		}
		if x.credentialsFile != "" {
			// #nosec G304 - path is provided by the operator
			data, err := os.ReadFile(x.credentialsFile)
			if err != nil {
				return nil, goerr.Wrap(ErrCredentialsMissing, err.Error(), goerr.V(ConfigPathKey, x.credentialsFile))
			}
			opts = append(opts, sheets.WithClientOptions(option.WithCredentialsJSON(data)))
		}
		logging.Default().Info("Using Google Sheets ledger", "credentials_file", x.credentialsFile)
		return sheets.New(opts...), nil

	case "memory":
		logging.Default().Info("Using in-memory ledger (development mode)")
		return sheets.NewMemory(), nil
	}
	return nil, goerr.Wrap(ErrUnknownBackend, "invalid sheets backend", goerr.V(BackendKey, x.backend))
}
