package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/punchcard/pkg/cli/config"
	"github.com/secmon-lab/punchcard/pkg/domain/interfaces"
	"github.com/secmon-lab/punchcard/pkg/domain/model"
	"github.com/urfave/cli/v3"
)

var (
	okMark   = color.New(color.FgGreen).SprintFunc()
	failMark = color.New(color.FgRed).SprintFunc()
	dimText  = color.New(color.Faint).SprintFunc()
)

// ErrValidationFailed is returned when any organization fails a check
var ErrValidationFailed = goerr.New("validation failed")

func cmdValidate() *cli.Command {
	var orgsCfg config.Organizations
	var slackCfg config.Slack
	var sheetsCfg config.Sheets
	var checkLedger bool

	var flags []cli.Flag
	flags = append(flags, orgsCfg.Flags()...)
	flags = append(flags, slackCfg.Flags()...)
	flags = append(flags, sheetsCfg.Flags()...)
	flags = append(flags, &cli.BoolFlag{
		Name:        "check-ledger",
		Usage:       "Read the current month sheet of every organization to verify access",
		Destination: &checkLedger,
	})

	return &cli.Command{
		Name:    "validate",
		Aliases: []string{"v"},
		Usage:   "Validate configuration and optionally ledger access",
		Flags:   flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			out := c.Root().Writer
			if out == nil {
				out = os.Stdout
			}

			if _, err := slackCfg.Commands(); err != nil {
				fmt.Fprintf(out, "%s slash commands: %s\n", failMark("✘"), err.Error())
				return err
			}
			fmt.Fprintf(out, "%s slash commands\n", okMark("✔"))

			orgs, err := orgsCfg.Load(time.Now())
			if err != nil {
				fmt.Fprintf(out, "%s organizations: %s\n", failMark("✘"), err.Error())
				return err
			}
			fmt.Fprintf(out, "%s organizations %s\n", okMark("✔"), dimText(fmt.Sprintf("(%d)", len(orgs))))

			if !checkLedger {
				return nil
			}

			ledger, err := sheetsCfg.Configure()
			if err != nil {
				return err
			}
			return checkLedgers(ctx, out, ledger, orgs, time.Now())
		},
	}
}

// checkLedgers reads the header of the current month sheet of every
// organization. A missing sheet still proves access.
func checkLedgers(ctx context.Context, out io.Writer, ledger interfaces.Ledger, orgs []*model.Organization, now time.Time) error {
	sheet := model.MonthKey(now)
	failed := 0
	for _, org := range orgs {
		_, err := ledger.ReadRange(ctx, org.Document, model.HeaderRange(sheet))
		if err != nil && !errors.Is(err, model.ErrSheetNotFound) {
			failed++
			fmt.Fprintf(out, "%s %s %s: %s\n", failMark("✘"), org.TeamID, dimText(org.Document.ID), err.Error())
			continue
		}
		fmt.Fprintf(out, "%s %s %s\n", okMark("✔"), org.TeamID, dimText(org.Document.ID))
	}

	if failed > 0 {
		return goerr.Wrap(ErrValidationFailed, "ledger is not accessible", goerr.V("failed", failed))
	}
	return nil
}
