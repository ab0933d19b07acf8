package cli

import (
	"context"
	"fmt"

	"github.com/secmon-lab/punchcard/pkg/domain/model"
	"github.com/secmon-lab/punchcard/pkg/usecase"
	"github.com/urfave/cli/v3"
)

func cmdSweep() *cli.Command {
	var markAbandoned bool
	var backendCfg backendConfig

	flags := []cli.Flag{
		&cli.BoolFlag{
			Name:        "mark-abandoned",
			Usage:       "Write ABANDONED to the end cell of stale rows",
			Destination: &markAbandoned,
		},
	}
	flags = append(flags, backendCfg.Flags()...)

	return &cli.Command{
		Name:  "sweep",
		Usage: "Report open sessions older than the session horizon once",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			be, err := backendCfg.Configure(ctx)
			if err != nil {
				return err
			}
			defer be.Close(context.Background())

			uc := usecase.New(be.store, be.ledger)
			if err := be.seed(ctx, uc, &backendCfg.orgs); err != nil {
				return err
			}

			report, err := uc.Sweep.Run(ctx, usecase.SweepOptions{MarkAbandoned: markAbandoned})
			if err != nil {
				return err
			}

			out := c.Root().Writer
			for _, stale := range report.Stale {
				fmt.Fprintf(out, "%s\t%s\trow %d\t%s\t%s\t%s\n",
					stale.Session.TeamID,
					stale.Sheet,
					stale.Row,
					stale.Session.UserID,
					stale.Session.ChannelID,
					model.FormatInstant(stale.Session.StartAt))
			}
			fmt.Fprintf(out, "organizations=%d stale=%d marked=%d released=%d\n",
				report.Organizations, len(report.Stale), report.Marked, report.Released)
			return nil
		},
	}
}
