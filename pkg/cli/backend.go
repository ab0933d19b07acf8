package cli

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/punchcard/pkg/cli/config"
	"github.com/secmon-lab/punchcard/pkg/domain/interfaces"
	"github.com/secmon-lab/punchcard/pkg/service/archive"
	"github.com/secmon-lab/punchcard/pkg/usecase"
	"github.com/secmon-lab/punchcard/pkg/utils/logging"
	"github.com/secmon-lab/punchcard/pkg/utils/metrics"
	"github.com/urfave/cli/v3"
)

// backendConfig groups the flags every command touching the ledger needs
type backendConfig struct {
	repo   config.Repository
	sheets config.Sheets
	orgs   config.Organizations
}

func (x *backendConfig) Flags() []cli.Flag {
	var flags []cli.Flag
	flags = append(flags, x.repo.Flags()...)
	flags = append(flags, x.sheets.Flags()...)
	flags = append(flags, x.orgs.Flags()...)
	return flags
}

// backend is the wired repository and ledger
type backend struct {
	store  *config.Store
	ledger interfaces.Ledger
}

func (x *backendConfig) Configure(ctx context.Context) (*backend, error) {
	ledger, err := x.sheets.Configure()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to initialize ledger")
	}

	store, err := x.repo.Configure(ctx, ledger)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to initialize repository")
	}

	return &backend{store: store, ledger: ledger}, nil
}

func (b *backend) Close(ctx context.Context) {
	if err := b.store.Close(ctx); err != nil {
		logging.Default().Error("failed to close repository", "error", err.Error())
	}
}

// seed registers the organizations of the seed file
func (b *backend) seed(ctx context.Context, uc *usecase.UseCases, orgs *config.Organizations) error {
	seeded, err := orgs.Load(time.Now())
	if err != nil {
		return goerr.Wrap(err, "failed to load organizations")
	}
	if len(seeded) == 0 {
		return nil
	}
	if err := uc.Setup.Seed(ctx, seeded); err != nil {
		return goerr.Wrap(err, "failed to register organizations")
	}
	logging.Default().Info("Organizations registered", "count", len(seeded), "path", orgs.Path())
	return nil
}

// archiveOption adds the archive when one is configured
func archiveOption(client *archive.Client) []usecase.Option {
	if client == nil {
		return nil
	}
	return []usecase.Option{usecase.WithArchive(client)}
}

func metricsOption(m *metrics.Metrics) []usecase.Option {
	if m == nil {
		return nil
	}
	return []usecase.Option{usecase.WithMetrics(m)}
}
