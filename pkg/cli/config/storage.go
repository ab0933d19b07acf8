package config

import (
	"context"
	"log/slog"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/punchcard/pkg/service/archive"
	"github.com/secmon-lab/punchcard/pkg/utils/logging"
	"github.com/urfave/cli/v3"
	"google.golang.org/api/option"
)

// Storage holds CLI flags for the CSV export bucket
type Storage struct {
	bucket          string
	prefix          string
	credentialsFile string
}

func (x *Storage) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "export-bucket",
			Usage:       "Cloud Storage bucket receiving month exports",
			Category:    "Export",
			Sources:     cli.EnvVars("PUNCHCARD_EXPORT_BUCKET"),
			Destination: &x.bucket,
		},
		&cli.StringFlag{
			Name:        "export-prefix",
			Usage:       "Object name prefix of exports",
			Category:    "Export",
			Sources:     cli.EnvVars("PUNCHCARD_EXPORT_PREFIX"),
			Destination: &x.prefix,
		},
		&cli.StringFlag{
			Name:        "export-credentials-file",
			Usage:       "Service account key for the bucket. Application default credentials when empty",
			Category:    "Export",
			Sources:     cli.EnvVars("PUNCHCARD_EXPORT_CREDENTIALS_FILE"),
			Destination: &x.credentialsFile,
		},
	}
}

func (x Storage) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("bucket", x.bucket),
		slog.String("prefix", x.prefix),
	)
}

// Configure returns the archive client, or nil when no bucket is set. The
// caller closes it.
func (x *Storage) Configure(ctx context.Context) (*archive.Client, error) {
	if x.bucket == "" {
		return nil, nil
	}

	var clientOpts []option.ClientOption
	if x.credentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(x.credentialsFile))
	}
	var opts []archive.Option
	if x.prefix != "" {
		opts = append(opts, archive.WithPrefix(x.prefix))
	}

	client, err := archive.New(ctx, x.bucket, clientOpts, opts...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to initialize export bucket", goerr.V("bucket", x.bucket))
	}
	logging.Default().Info("Export bucket configured", "bucket", x.bucket, "prefix", x.prefix)
	return client, nil
}
