package usecase

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/punchcard/pkg/domain/interfaces"
	"github.com/secmon-lab/punchcard/pkg/domain/model"
	"github.com/secmon-lab/punchcard/pkg/utils/errutil"
	"github.com/secmon-lab/punchcard/pkg/utils/logging"
	"github.com/secmon-lab/punchcard/pkg/utils/metrics"
)

// SweepUseCase finds abandoned sessions. Open rows older than
// model.SessionTTL are never closed automatically; they are reported and
// optionally marked so an admin can fix them by hand.
type SweepUseCase struct {
	orgs     interfaces.OrganizationRepository
	sessions interfaces.SessionStore
	ledger   interfaces.Ledger
	now      func() time.Time
	metrics  *metrics.Metrics
}

func NewSweepUseCase(orgs interfaces.OrganizationRepository, sessions interfaces.SessionStore, ledger interfaces.Ledger, now func() time.Time, m *metrics.Metrics) *SweepUseCase {
	if now == nil {
		now = time.Now
	}
	return &SweepUseCase{
		orgs:     orgs,
		sessions: sessions,
		ledger:   ledger,
		now:      now,
		metrics:  m,
	}
}

type SweepOptions struct {
	// MarkAbandoned writes model.AbandonedMarker to the end cell of stale rows
	MarkAbandoned bool
}

type SweepReport struct {
	Organizations int
	Stale         []model.StaleRow
	Marked        int
	Released      int
	Purged        int
}

// sweepMonths returns the current and previous month sheets
func sweepMonths(now time.Time) []string {
	local := now.In(model.JST)
	first := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, model.JST)
	return []string{model.MonthKey(first), model.MonthKey(first.AddDate(0, -1, 0))}
}

// Run sweeps every configured organization. A failing organization is
// logged and skipped.
func (uc *SweepUseCase) Run(ctx context.Context, opts SweepOptions) (*SweepReport, error) {
	now := uc.now()
	report := &SweepReport{}

	orgs, err := uc.orgs.List(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list organizations")
	}

	for _, org := range orgs {
		if !org.HasConfig() {
			continue
		}
		report.Organizations++

		orgCtx := logging.With(ctx, logging.From(ctx).With("team_id", org.TeamID))
		if err := uc.sweepLedger(orgCtx, org, now, opts, report); err != nil {
			_ = errutil.Handle(orgCtx, err, "failed to sweep ledger")
		}
		if err := uc.reconcileStore(orgCtx, org, now, report); err != nil {
			_ = errutil.Handle(orgCtx, err, "failed to reconcile session store")
		}
	}

	if purger, ok := uc.sessions.(interfaces.SessionPurger); ok {
		n, err := purger.PurgeExpired(ctx, now)
		if err != nil {
			return report, goerr.Wrap(err, "failed to purge expired sessions")
		}
		report.Purged = n
	}

	logging.From(ctx).Info("sweep finished",
		"organizations", report.Organizations,
		"stale", len(report.Stale),
		"marked", report.Marked,
		"released", report.Released,
		"purged", report.Purged)
	return report, nil
}

func (uc *SweepUseCase) sweepLedger(ctx context.Context, org *model.Organization, now time.Time, opts SweepOptions, report *SweepReport) error {
	logger := logging.From(ctx)
	count := 0

	for _, sheet := range sweepMonths(now) {
		rows, err := readSheet(ctx, uc.ledger, org.Document, sheet)
		if err != nil {
			return err
		}

		for _, stale := range model.FindStaleRows(sheet, rows, org.TeamID, now) {
			count++
			report.Stale = append(report.Stale, stale)
			logger.Warn("abandoned session found",
				"sheet", stale.Sheet,
				"row", stale.Row,
				"record_id", stale.Session.RecordID,
				"user_id", stale.Session.UserID,
				"channel_id", stale.Session.ChannelID,
				"start_at", stale.Session.StartAt)

			if !opts.MarkAbandoned {
				continue
			}
			cell := model.EndCellRange(stale.Sheet, stale.Row)
			if err := uc.ledger.UpdateRange(ctx, org.Document, cell, [][]string{{model.AbandonedMarker}}); err != nil {
				return goerr.Wrap(err, "failed to mark abandoned row",
					goerr.V(model.RangeKey, cell),
					goerr.V(model.RecordIDKey, stale.Session.RecordID))
			}
			report.Marked++
		}
	}

	uc.metrics.StaleSessions(org.TeamID, count)
	return nil
}

// reconcileStore releases key/value entries whose ledger row is missing or
// closed. Entries younger than model.MirrorGrace are left alone.
func (uc *SweepUseCase) reconcileStore(ctx context.Context, org *model.Organization, now time.Time, report *SweepReport) error {
	if _, ok := uc.sessions.(interfaces.LedgerBacked); ok {
		return nil
	}
	lister, ok := uc.sessions.(interfaces.SessionLister)
	if !ok {
		return nil
	}

	sessions, err := lister.ListOpen(ctx, org.TeamID)
	if err != nil {
		return goerr.Wrap(err, "failed to list open sessions")
	}

	sheets := map[string][][]string{}
	for _, s := range sessions {
		if s.InGrace(now) {
			continue
		}

		sheet := model.MonthKey(s.StartAt)
		rows, cached := sheets[sheet]
		if !cached {
			if rows, err = readSheet(ctx, uc.ledger, org.Document, sheet); err != nil {
				return err
			}
			sheets[sheet] = rows
		}

		if _, row, found := model.FindRowByRecordID(rows, s.RecordID); found && row.IsOpen() {
			continue
		}

		// A close and a new open may have replaced the entry since ListOpen
		released, err := lister.ReleaseIfMatch(ctx, s.Key(), s.RecordID)
		if err != nil {
			return goerr.Wrap(err, "failed to release session", goerr.V(model.RecordIDKey, s.RecordID))
		}
		if !released {
			continue
		}
		uc.metrics.MirrorReleased()
		report.Released++
		logging.From(ctx).Warn("released session store entry without open ledger row",
			"record_id", s.RecordID,
			"user_id", s.UserID,
			"channel_id", s.ChannelID)
	}
	return nil
}
