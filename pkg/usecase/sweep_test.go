package usecase_test

import (
	"context"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/punchcard/pkg/domain/interfaces"
	"github.com/secmon-lab/punchcard/pkg/domain/model"
	"github.com/secmon-lab/punchcard/pkg/usecase"
	"github.com/secmon-lab/punchcard/pkg/utils/metrics"
)

func TestSweepMonths(t *testing.T) {
	gt.Value(t, usecase.SweepMonths(jst(2026, 10, 31, 12, 0))).Equal([]string{"2026-10", "2026-09"})
	gt.Value(t, usecase.SweepMonths(jst(2026, 1, 1, 0, 30))).Equal([]string{"2026-01", "2025-12"})
}

func TestSweep(t *testing.T) {
	ctx := context.Background()

	t.Run("reports and marks abandoned rows", func(t *testing.T) {
		env := newTestEnv(t, jst(2026, 10, 15, 10, 0), usecase.WithMetrics(metrics.New()))
		key := env.key("u1", "c1")

		opened, err := env.uc.Clock.Open(ctx, openInput(key, ""))
		gt.NoError(t, err).Required()
		_, err = env.uc.Clock.Open(ctx, openInput(env.key("u2", "c1"), ""))
		gt.NoError(t, err).Required()

		env.clock.Advance(time.Hour)
		report, err := env.uc.Sweep.Run(ctx, usecase.SweepOptions{MarkAbandoned: true})
		gt.NoError(t, err).Required()
		gt.Array(t, report.Stale).Length(0)

		_, err = env.uc.Clock.Close(ctx, usecase.CloseInput{Key: env.key("u2", "c1"), Note: "done"})
		gt.NoError(t, err).Required()

		env.clock.Advance(model.SessionTTL)
		report, err = env.uc.Sweep.Run(ctx, usecase.SweepOptions{MarkAbandoned: true})
		gt.NoError(t, err).Required()
		gt.Number(t, report.Organizations).Equal(1)
		gt.Array(t, report.Stale).Length(1)
		gt.Value(t, report.Stale[0].Session.RecordID).Equal(opened.Session.RecordID)
		gt.Number(t, report.Marked).Equal(1)

		open, err := env.repo.Session().PeekOpen(ctx, key)
		gt.NoError(t, err).Required()
		gt.Value(t, open).Nil()

		row := model.ParseLedgerRow(env.dataRows("2026-10")[0])
		gt.Value(t, row.End).Equal(model.AbandonedMarker)

		report, err = env.uc.Sweep.Run(ctx, usecase.SweepOptions{MarkAbandoned: true})
		gt.NoError(t, err).Required()
		gt.Array(t, report.Stale).Length(0)
	})

	t.Run("reporting only leaves the ledger untouched", func(t *testing.T) {
		env := newTestEnv(t, jst(2026, 10, 15, 10, 0))
		_, err := env.uc.Clock.Open(ctx, openInput(env.key("u1", "c1"), ""))
		gt.NoError(t, err).Required()

		env.clock.Advance(model.SessionTTL + time.Minute)
		report, err := env.uc.Sweep.Run(ctx, usecase.SweepOptions{})
		gt.NoError(t, err).Required()
		gt.Array(t, report.Stale).Length(1)
		gt.Number(t, report.Marked).Equal(0)

		row := model.ParseLedgerRow(env.dataRows("2026-10")[0])
		gt.Value(t, row.End).Equal("")
	})

	t.Run("releases store entries without open rows", func(t *testing.T) {
		env := newTestEnv(t, jst(2026, 10, 15, 10, 0))
		key := env.key("u1", "c1")

		_, err := env.repo.Session().TryAcquireOpen(ctx, key, &model.ClockSession{
			RecordID:  model.NewRecordID(),
			TeamID:    key.TeamID,
			UserID:    key.UserID,
			ChannelID: key.ChannelID,
			StartAt:   env.clock.Now(),
			ExpiresAt: env.clock.Now().Add(model.SessionTTL),
		})
		gt.NoError(t, err).Required()

		report, err := env.uc.Sweep.Run(ctx, usecase.SweepOptions{})
		gt.NoError(t, err).Required()
		gt.Number(t, report.Released).Equal(0)

		env.clock.Advance(model.MirrorGrace)
		report, err = env.uc.Sweep.Run(ctx, usecase.SweepOptions{})
		gt.NoError(t, err).Required()
		gt.Number(t, report.Released).Equal(1)

		open, err := env.repo.Session().PeekOpen(ctx, key)
		gt.NoError(t, err).Required()
		gt.Value(t, open).Nil()
	})

	t.Run("keeps an entry replaced after listing", func(t *testing.T) {
		env := newTestEnv(t, jst(2026, 10, 15, 10, 0))
		key := env.key("u1", "c1")
		store := env.repo.Session()

		orphan := newStoreEntry(key, env.clock.Now())
		_, err := store.TryAcquireOpen(ctx, key, orphan)
		gt.NoError(t, err).Required()
		env.clock.Advance(model.MirrorGrace)

		replacement := newStoreEntry(key, env.clock.Now())
		sessions := &listThenReplace{
			SessionStore: store,
			lister:       store.(interfaces.SessionLister),
			replace: func(ctx context.Context) {
				gt.NoError(t, store.Release(ctx, key)).Required()
				_, err := store.TryAcquireOpen(ctx, key, replacement)
				gt.NoError(t, err).Required()
			},
		}

		sweep := usecase.NewSweepUseCase(env.repo.Organization(), sessions, env.ledger, env.clock.Now, nil)
		report, err := sweep.Run(ctx, usecase.SweepOptions{})
		gt.NoError(t, err).Required()
		gt.Number(t, report.Released).Equal(0)

		open, err := store.PeekOpen(ctx, key)
		gt.NoError(t, err).Required()
		gt.Value(t, open).NotNil().Required()
		gt.Value(t, open.RecordID).Equal(replacement.RecordID)
	})
}

func newStoreEntry(key model.SessionKey, now time.Time) *model.ClockSession {
	return &model.ClockSession{
		RecordID:  model.NewRecordID(),
		TeamID:    key.TeamID,
		UserID:    key.UserID,
		ChannelID: key.ChannelID,
		StartAt:   now,
		ExpiresAt: now.Add(model.SessionTTL),
	}
}

// listThenReplace returns a listing and then swaps the entry behind it,
// as a close followed by a new open would
type listThenReplace struct {
	interfaces.SessionStore
	lister  interfaces.SessionLister
	replace func(ctx context.Context)
}

func (s *listThenReplace) ListOpen(ctx context.Context, teamID string) ([]*model.ClockSession, error) {
	sessions, err := s.lister.ListOpen(ctx, teamID)
	if s.replace != nil {
		s.replace(ctx)
		s.replace = nil
	}
	return sessions, err
}

func (s *listThenReplace) ReleaseIfMatch(ctx context.Context, key model.SessionKey, recordID model.RecordID) (bool, error) {
	return s.lister.ReleaseIfMatch(ctx, key, recordID)
}
