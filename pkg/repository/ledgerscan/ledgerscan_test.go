package ledgerscan_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/punchcard/pkg/domain/model"
	"github.com/secmon-lab/punchcard/pkg/repository/ledgerscan"
	"github.com/secmon-lab/punchcard/pkg/repository/memory"
	"github.com/secmon-lab/punchcard/pkg/service/sheets"
)

var key = model.SessionKey{TeamID: "T1", UserID: "U1", ChannelID: "C1"}

func setup(t *testing.T, now time.Time) (*ledgerscan.SessionStore, *sheets.Memory, model.Document) {
	t.Helper()
	ctx := context.Background()

	ledger := sheets.NewMemory()
	doc, err := ledger.CreateSpreadsheet(ctx, "ledger")
	gt.NoError(t, err).Required()

	repo := memory.New()
	gt.NoError(t, repo.Organization().Put(ctx, &model.Organization{TeamID: key.TeamID, Document: doc})).Required()

	store := ledgerscan.New(repo.Organization(), ledger, ledgerscan.WithClock(func() time.Time { return now }))
	return store, ledger, doc
}

func openRow(start, recordID string) []string {
	return []string{"general", "alice", "", start, "", key.ChannelID, key.UserID, recordID}
}

func TestPeekOpen(t *testing.T) {
	// 2026-10-15 18:00 JST
	now := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)

	t.Run("no sheet means no session", func(t *testing.T) {
		store, _, _ := setup(t, now)
		got, err := store.PeekOpen(context.Background(), key)
		gt.NoError(t, err).Required()
		gt.Value(t, got).Nil()
	})

	t.Run("finds open row", func(t *testing.T) {
		store, ledger, doc := setup(t, now)
		ledger.SetRows(doc.ID, "2026-10", [][]string{model.LedgerHeader, openRow("2026/10/15 09:00:00", "rec-1")})

		got, err := store.PeekOpen(context.Background(), key)
		gt.NoError(t, err).Required()
		gt.Value(t, got).NotNil()
		gt.Value(t, got.RecordID).Equal(model.RecordID("rec-1"))
	})

	t.Run("finds row in previous month across the boundary", func(t *testing.T) {
		// 2026-11-01 05:00 JST
		store, ledger, doc := setup(t, time.Date(2026, 10, 31, 20, 0, 0, 0, time.UTC))
		ledger.SetRows(doc.ID, "2026-10", [][]string{model.LedgerHeader, openRow("2026/10/31 22:00:00", "rec-1")})

		got, err := store.PeekOpen(context.Background(), key)
		gt.NoError(t, err).Required()
		gt.Value(t, got).NotNil()
		gt.Value(t, got.RecordID).Equal(model.RecordID("rec-1"))
	})

	t.Run("stale row does not block", func(t *testing.T) {
		store, ledger, doc := setup(t, now)
		ledger.SetRows(doc.ID, "2026-10", [][]string{model.LedgerHeader, openRow("2026/10/14 17:00:00", "rec-1")})

		got, err := store.PeekOpen(context.Background(), key)
		gt.NoError(t, err).Required()
		gt.Value(t, got).Nil()
	})

	t.Run("read failure surfaces", func(t *testing.T) {
		store, ledger, doc := setup(t, now)
		ledger.SetRows(doc.ID, "2026-10", [][]string{model.LedgerHeader})
		ledger.FailNext(sheets.OpRead, 1, model.ErrBackendUnavailable)

		_, err := store.PeekOpen(context.Background(), key)
		gt.Bool(t, errors.Is(err, model.ErrBackendUnavailable)).True()
	})

	t.Run("unconfigured team", func(t *testing.T) {
		store, _, _ := setup(t, now)
		_, err := store.PeekOpen(context.Background(), model.SessionKey{TeamID: "T2", UserID: "U1", ChannelID: "C1"})
		gt.Bool(t, errors.Is(err, model.ErrConfigurationMissing)).True()
	})
}

func TestTryAcquireOpen(t *testing.T) {
	now := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)
	store, ledger, doc := setup(t, now)
	ctx := context.Background()
	session := &model.ClockSession{RecordID: "rec-2", TeamID: key.TeamID, UserID: key.UserID, ChannelID: key.ChannelID, StartAt: now}

	existing, err := store.TryAcquireOpen(ctx, key, session)
	gt.NoError(t, err).Required()
	gt.Value(t, existing).Nil()

	// Acquire does not write; the ledger append is the commit
	gt.Value(t, ledger.Calls(sheets.OpAppend)).Equal(0)

	ledger.SetRows(doc.ID, "2026-10", [][]string{model.LedgerHeader, openRow("2026/10/15 09:00:00", "rec-1")})
	existing, err = store.TryAcquireOpen(ctx, key, session)
	gt.Bool(t, errors.Is(err, model.ErrAlreadyOpen)).True()
	gt.Value(t, existing.RecordID).Equal(model.RecordID("rec-1"))

	gt.NoError(t, store.Release(ctx, key))
}
