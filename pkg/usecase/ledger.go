package usecase

import (
	"context"
	"errors"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/punchcard/pkg/domain/interfaces"
	"github.com/secmon-lab/punchcard/pkg/domain/model"
)

// requireOrganization returns the team's ledger configuration or
// model.ErrConfigurationMissing
func requireOrganization(ctx context.Context, orgs interfaces.OrganizationRepository, teamID string) (*model.Organization, error) {
	org, err := orgs.Get(ctx, teamID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get organization", goerr.V(model.TeamIDKey, teamID))
	}
	if !org.HasConfig() {
		return nil, goerr.Wrap(model.ErrConfigurationMissing, "organization is not configured", goerr.V(model.TeamIDKey, teamID))
	}
	return org, nil
}

// readSheet reads a whole month sheet. A missing sheet reads as empty.
func readSheet(ctx context.Context, ledger interfaces.Ledger, doc model.Document, sheet string) ([][]string, error) {
	rows, err := ledger.ReadRange(ctx, doc, model.LedgerRange(sheet))
	if errors.Is(err, model.ErrSheetNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read ledger",
			goerr.V(model.DocumentIDKey, doc.ID),
			goerr.V(model.SheetKey, sheet))
	}
	return rows, nil
}
