package repository_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/punchcard/pkg/domain/interfaces"
	"github.com/secmon-lab/punchcard/pkg/domain/model"
	"github.com/secmon-lab/punchcard/pkg/repository/memory"
)

func runOrganizationRepositoryTest(t *testing.T, newRepo func(t *testing.T) interfaces.Repository) {
	t.Helper()

	newOrg := func() *model.Organization {
		now := time.Now().UTC().Truncate(time.Millisecond)
		return &model.Organization{
			TeamID: fmt.Sprintf("T%d", time.Now().UnixNano()),
			Document: model.Document{
				ID:          "1AbCdEfGhIjKlMnOpQrStUvWxYz",
				URL:         model.SpreadsheetURL("1AbCdEfGhIjKlMnOpQrStUvWxYz"),
				Credentials: `{"type":"service_account"}`,
			},
			CreatedBy: "U1",
			CreatedAt: now,
			UpdatedAt: now,
		}
	}

	t.Run("Put and Get", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		org := newOrg()

		gt.NoError(t, repo.Organization().Put(ctx, org)).Required()

		got, err := repo.Organization().Get(ctx, org.TeamID)
		gt.NoError(t, err).Required()
		gt.Value(t, got).NotNil()
		gt.Value(t, got.Document).Equal(org.Document)
		gt.Value(t, got.CreatedBy).Equal("U1")
		gt.Bool(t, got.CreatedAt.Equal(org.CreatedAt)).True()
		gt.Bool(t, got.HasConfig()).True()
	})

	t.Run("Get returns nil for unknown team", func(t *testing.T) {
		repo := newRepo(t)
		got, err := repo.Organization().Get(context.Background(), fmt.Sprintf("T%d", time.Now().UnixNano()))
		gt.NoError(t, err).Required()
		gt.Value(t, got).Nil()
	})

	t.Run("Put overwrites", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		org := newOrg()
		gt.NoError(t, repo.Organization().Put(ctx, org)).Required()

		org.Document.ID = "2ZyXwVuTsRqPoNmLkJiHgFeDcBa"
		gt.NoError(t, repo.Organization().Put(ctx, org)).Required()

		got, err := repo.Organization().Get(ctx, org.TeamID)
		gt.NoError(t, err).Required()
		gt.Value(t, got.Document.ID).Equal("2ZyXwVuTsRqPoNmLkJiHgFeDcBa")
	})

	t.Run("Put rejects missing document", func(t *testing.T) {
		repo := newRepo(t)
		org := newOrg()
		org.Document.ID = ""
		gt.Error(t, repo.Organization().Put(context.Background(), org))
	})

	t.Run("Delete and List", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		org1 := newOrg()
		org2 := newOrg()
		gt.NoError(t, repo.Organization().Put(ctx, org1)).Required()
		gt.NoError(t, repo.Organization().Put(ctx, org2)).Required()

		orgs, err := repo.Organization().List(ctx)
		gt.NoError(t, err).Required()
		gt.Number(t, len(orgs)).GreaterOrEqual(2)

		gt.NoError(t, repo.Organization().Delete(ctx, org1.TeamID)).Required()
		got, err := repo.Organization().Get(ctx, org1.TeamID)
		gt.NoError(t, err).Required()
		gt.Value(t, got).Nil()

		// Deleting twice is fine
		gt.NoError(t, repo.Organization().Delete(ctx, org1.TeamID))
	})
}

func TestMemoryOrganizationRepository(t *testing.T) {
	runOrganizationRepositoryTest(t, func(t *testing.T) interfaces.Repository {
		return memory.New()
	})
}

func TestFirestoreOrganizationRepository(t *testing.T) {
	runOrganizationRepositoryTest(t, func(t *testing.T) interfaces.Repository {
		return newFirestoreRepository(t)
	})
}
