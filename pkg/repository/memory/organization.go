package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/punchcard/pkg/domain/interfaces"
	"github.com/secmon-lab/punchcard/pkg/domain/model"
)

type organizationRepository struct {
	mu   sync.RWMutex
	orgs map[string]*model.Organization
}

var _ interfaces.OrganizationRepository = &organizationRepository{}

func newOrganizationRepository() *organizationRepository {
	return &organizationRepository{
		orgs: make(map[string]*model.Organization),
	}
}

func copyOrganization(o *model.Organization) *model.Organization {
	copied := *o
	return &copied
}

func (r *organizationRepository) Get(ctx context.Context, teamID string) (*model.Organization, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	org, ok := r.orgs[teamID]
	if !ok {
		return nil, nil
	}
	return copyOrganization(org), nil
}

func (r *organizationRepository) Put(ctx context.Context, org *model.Organization) error {
	if err := org.Validate(); err != nil {
		return goerr.Wrap(err, "invalid organization")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.orgs[org.TeamID] = copyOrganization(org)
	return nil
}

func (r *organizationRepository) Delete(ctx context.Context, teamID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.orgs, teamID)
	return nil
}

func (r *organizationRepository) List(ctx context.Context) ([]*model.Organization, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	orgs := make([]*model.Organization, 0, len(r.orgs))
	for _, org := range r.orgs {
		orgs = append(orgs, copyOrganization(org))
	}
	sort.Slice(orgs, func(i, j int) bool {
		return orgs[i].TeamID < orgs[j].TeamID
	})
	return orgs, nil
}
