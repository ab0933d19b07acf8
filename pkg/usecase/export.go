package usecase

import (
	"context"
	"fmt"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/punchcard/pkg/domain/interfaces"
	"github.com/secmon-lab/punchcard/pkg/domain/model"
	"github.com/secmon-lab/punchcard/pkg/utils/logging"
)

// ExportUseCase snapshots month sheets into the archive
type ExportUseCase struct {
	orgs    interfaces.OrganizationRepository
	ledger  interfaces.Ledger
	archive interfaces.Archive
}

func NewExportUseCase(orgs interfaces.OrganizationRepository, ledger interfaces.Ledger, archive interfaces.Archive) *ExportUseCase {
	return &ExportUseCase{orgs: orgs, ledger: ledger, archive: archive}
}

// ExportObject is the archive object name of a team's month
func ExportObject(teamID, month string) string {
	return fmt.Sprintf("%s/%s.csv", teamID, month)
}

// ExportMonth writes the month sheet of the team, header included, and
// returns the archive location
func (uc *ExportUseCase) ExportMonth(ctx context.Context, teamID, month string) (string, error) {
	if uc.archive == nil {
		return "", goerr.New("archive is not configured")
	}
	if _, err := model.ParseMonthKey(month); err != nil {
		return "", err
	}

	org, err := requireOrganization(ctx, uc.orgs, teamID)
	if err != nil {
		return "", err
	}

	rows, err := uc.ledger.ReadRange(ctx, org.Document, model.LedgerRange(month))
	if err != nil {
		return "", goerr.Wrap(err, "failed to read month sheet",
			goerr.V(model.TeamIDKey, teamID),
			goerr.V(model.SheetKey, month))
	}

	location, err := uc.archive.WriteCSV(ctx, ExportObject(teamID, month), rows)
	if err != nil {
		return "", goerr.Wrap(err, "failed to write export", goerr.V(model.SheetKey, month))
	}

	logging.From(ctx).Info("month exported",
		"team_id", teamID,
		"month", month,
		"rows", len(rows),
		"location", location)
	return location, nil
}
