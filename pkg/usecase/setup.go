package usecase

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/punchcard/pkg/domain/interfaces"
	"github.com/secmon-lab/punchcard/pkg/domain/model"
	slacksvc "github.com/secmon-lab/punchcard/pkg/service/slack"
	"github.com/secmon-lab/punchcard/pkg/utils/logging"
)

// SetupUseCase manages organization ledger configuration
type SetupUseCase struct {
	orgs   interfaces.OrganizationRepository
	ledger interfaces.Ledger
	slack  slacksvc.Service
	now    func() time.Time
}

func NewSetupUseCase(orgs interfaces.OrganizationRepository, ledger interfaces.Ledger, slackService slacksvc.Service, now func() time.Time) *SetupUseCase {
	if now == nil {
		now = time.Now
	}
	return &SetupUseCase{
		orgs:   orgs,
		ledger: ledger,
		slack:  slackService,
		now:    now,
	}
}

type SetupInput struct {
	TeamID      string
	UserID      string
	DocumentRef string
}

// Configure binds a spreadsheet to the team. Only workspace admins and
// owners may do so. Access is verified by creating the current month sheet.
func (uc *SetupUseCase) Configure(ctx context.Context, in SetupInput) (*model.Organization, error) {
	if err := uc.authorize(ctx, in.UserID); err != nil {
		return nil, err
	}

	doc, err := model.ParseDocumentRef(in.DocumentRef)
	if err != nil {
		return nil, err
	}

	now := uc.now()
	if err := uc.ledger.EnsureMonthlySheetExists(ctx, doc, model.MonthKey(now)); err != nil {
		return nil, goerr.Wrap(err, "failed to prepare ledger", goerr.V(model.DocumentIDKey, doc.ID))
	}

	existing, err := uc.orgs.Get(ctx, in.TeamID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get organization", goerr.V(model.TeamIDKey, in.TeamID))
	}

	org := &model.Organization{
		TeamID:    in.TeamID,
		Document:  doc,
		CreatedBy: in.UserID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if existing != nil {
		org.CreatedBy = existing.CreatedBy
		org.CreatedAt = existing.CreatedAt
		// Credentials from a seed file stay with the document they were issued for
		if existing.Document.ID == doc.ID {
			org.Document.Credentials = existing.Document.Credentials
		}
	}

	if err := uc.orgs.Put(ctx, org); err != nil {
		return nil, goerr.Wrap(err, "failed to save organization", goerr.V(model.TeamIDKey, in.TeamID))
	}

	logging.From(ctx).Info("organization configured",
		"team_id", in.TeamID,
		"document_id", doc.ID,
		"by", in.UserID)
	return org, nil
}

func (uc *SetupUseCase) authorize(ctx context.Context, userID string) error {
	if uc.slack == nil {
		return goerr.Wrap(model.ErrPermissionDenied, "slack service is not configured", goerr.V(model.UserIDKey, userID))
	}
	user, err := uc.slack.GetUserInfo(ctx, userID)
	if err != nil {
		return goerr.Wrap(err, "failed to get user info", goerr.V(model.UserIDKey, userID))
	}
	if !model.IsAuthorized(user.Permission, model.PermissionManage) {
		return goerr.Wrap(model.ErrPermissionDenied, "setup requires admin",
			goerr.V(model.UserIDKey, userID),
			goerr.V("permission", user.Permission.String()))
	}
	return nil
}

// Seed stores organizations from a configuration file. Entries replace
// stored configuration of the same team.
func (uc *SetupUseCase) Seed(ctx context.Context, orgs []*model.Organization) error {
	now := uc.now()
	for _, org := range orgs {
		if err := org.Validate(); err != nil {
			return err
		}
		if org.CreatedAt.IsZero() {
			org.CreatedAt = now
		}
		org.UpdatedAt = now
		if err := uc.orgs.Put(ctx, org); err != nil {
			return goerr.Wrap(err, "failed to seed organization", goerr.V(model.TeamIDKey, org.TeamID))
		}
	}
	if len(orgs) > 0 {
		logging.From(ctx).Info("organizations seeded", "count", len(orgs))
	}
	return nil
}
