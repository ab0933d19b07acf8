package interfaces

import (
	"context"

	"github.com/secmon-lab/punchcard/pkg/domain/model"
)

// OrganizationRepository stores ledger configuration per Slack team
type OrganizationRepository interface {
	// Get returns nil, nil when the team has no configuration
	Get(ctx context.Context, teamID string) (*model.Organization, error)
	Put(ctx context.Context, org *model.Organization) error
	Delete(ctx context.Context, teamID string) error
	List(ctx context.Context) ([]*model.Organization, error)
}
