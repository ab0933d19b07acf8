package usecase_test

import (
	"context"
	"errors"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/punchcard/pkg/domain/model"
	"github.com/secmon-lab/punchcard/pkg/usecase"
)

const newSpreadsheetID = "1AbCdEfGhIjKlMnOpQrStUvWxYz0123456789"

func TestSetupConfigure(t *testing.T) {
	ctx := context.Background()

	t.Run("admin binds a spreadsheet", func(t *testing.T) {
		env := newTestEnv(t, jst(2026, 10, 15, 10, 0), usecase.WithSlackService(newFakeSlack()))
		env.ledger.AddDocument(newSpreadsheetID)

		org, err := env.uc.Setup.Configure(ctx, usecase.SetupInput{
			TeamID:      "T3",
			UserID:      "admin",
			DocumentRef: "https://docs.google.com/spreadsheets/d/" + newSpreadsheetID + "/edit#gid=0",
		})
		gt.NoError(t, err).Required()
		gt.Value(t, org.Document.ID).Equal(newSpreadsheetID)
		gt.Value(t, org.CreatedBy).Equal("admin")

		stored, err := env.repo.Organization().Get(ctx, "T3")
		gt.NoError(t, err).Required()
		gt.Bool(t, stored.HasConfig()).True()

		header := env.ledger.Rows(newSpreadsheetID, "2026-10")[0]
		gt.Value(t, header).Equal(model.LedgerHeader)
	})

	t.Run("member is denied", func(t *testing.T) {
		env := newTestEnv(t, jst(2026, 10, 15, 10, 0), usecase.WithSlackService(newFakeSlack()))

		_, err := env.uc.Setup.Configure(ctx, usecase.SetupInput{TeamID: "T3", UserID: "u1", DocumentRef: newSpreadsheetID})
		gt.Bool(t, errors.Is(err, model.ErrPermissionDenied)).True()

		stored, err := env.repo.Organization().Get(ctx, "T3")
		gt.NoError(t, err).Required()
		gt.Value(t, stored).Nil()
	})

	t.Run("invalid reference is a parse error", func(t *testing.T) {
		env := newTestEnv(t, jst(2026, 10, 15, 10, 0), usecase.WithSlackService(newFakeSlack()))

		_, err := env.uc.Setup.Configure(ctx, usecase.SetupInput{TeamID: "T3", UserID: "admin", DocumentRef: "not a sheet"})
		gt.Bool(t, errors.Is(err, model.ErrParse)).True()
	})

	t.Run("without slack nobody is authorized", func(t *testing.T) {
		env := newTestEnv(t, jst(2026, 10, 15, 10, 0))

		_, err := env.uc.Setup.Configure(ctx, usecase.SetupInput{TeamID: "T3", UserID: "admin", DocumentRef: newSpreadsheetID})
		gt.Bool(t, errors.Is(err, model.ErrPermissionDenied)).True()
	})
}

func TestSetupSeed(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, jst(2026, 10, 15, 10, 0))

	err := env.uc.Setup.Seed(ctx, []*model.Organization{
		{TeamID: "T4", Document: model.Document{ID: newSpreadsheetID}},
	})
	gt.NoError(t, err).Required()

	stored, err := env.repo.Organization().Get(ctx, "T4")
	gt.NoError(t, err).Required()
	gt.Value(t, stored.Document.ID).Equal(newSpreadsheetID)
	gt.Bool(t, stored.CreatedAt.IsZero()).False()

	gt.Error(t, env.uc.Setup.Seed(ctx, []*model.Organization{{TeamID: "T5"}}))
}
