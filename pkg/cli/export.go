package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/punchcard/pkg/cli/config"
	"github.com/secmon-lab/punchcard/pkg/domain/model"
	"github.com/secmon-lab/punchcard/pkg/usecase"
	"github.com/secmon-lab/punchcard/pkg/utils/safe"
	"github.com/urfave/cli/v3"
)

func cmdExport() *cli.Command {
	var teamID string
	var month string
	var backendCfg backendConfig
	var storageCfg config.Storage

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "team",
			Usage:       "Slack team ID to export",
			Required:    true,
			Destination: &teamID,
		},
		&cli.StringFlag{
			Name:        "month",
			Usage:       "Month sheet to export (YYYY-MM), the current month when empty",
			Destination: &month,
		},
	}
	flags = append(flags, backendCfg.Flags()...)
	flags = append(flags, storageCfg.Flags()...)

	return &cli.Command{
		Name:  "export",
		Usage: "Write a month sheet as CSV to Cloud Storage",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			if month == "" {
				month = model.MonthKey(time.Now())
			}

			archiveClient, err := storageCfg.Configure(ctx)
			if err != nil {
				return err
			}
			if archiveClient == nil {
				return goerr.Wrap(config.ErrInvalidConfig, "export-bucket is required")
			}
			defer safe.Close(context.Background(), archiveClient)

			be, err := backendCfg.Configure(ctx)
			if err != nil {
				return err
			}
			defer be.Close(context.Background())

			uc := usecase.New(be.store, be.ledger, archiveOption(archiveClient)...)
			if err := be.seed(ctx, uc, &backendCfg.orgs); err != nil {
				return err
			}

			location, err := uc.Export.ExportMonth(ctx, teamID, month)
			if err != nil {
				return err
			}
			fmt.Fprintln(c.Root().Writer, location)
			return nil
		},
	}
}
