// Package ledgerscan derives open sessions from the ledger itself. A row
// with a start, no end and a start within model.SessionTTL is open.
//
// Acquire does not write: the ledger append performed by the caller is the
// commit. Two processes racing on the same key can both pass the scan
// before either append lands; callers serialize per key inside a process.
package ledgerscan

import (
	"context"
	"errors"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/punchcard/pkg/domain/interfaces"
	"github.com/secmon-lab/punchcard/pkg/domain/model"
	"golang.org/x/sync/errgroup"
)

type SessionStore struct {
	orgs   interfaces.OrganizationRepository
	ledger interfaces.Ledger
	now    func() time.Time
}

var _ interfaces.SessionStore = &SessionStore{}

type Option func(*SessionStore)

// WithClock replaces the time source used for the staleness horizon
func WithClock(now func() time.Time) Option {
	return func(s *SessionStore) {
		s.now = now
	}
}

func New(orgs interfaces.OrganizationRepository, ledger interfaces.Ledger, opts ...Option) *SessionStore {
	s := &SessionStore{
		orgs:   orgs,
		ledger: ledger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *SessionStore) TryAcquireOpen(ctx context.Context, key model.SessionKey, session *model.ClockSession) (*model.ClockSession, error) {
	existing, err := s.PeekOpen(ctx, key)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, goerr.Wrap(model.ErrAlreadyOpen, "open row found in ledger",
			goerr.V(model.RecordIDKey, existing.RecordID),
			goerr.V(model.StartAtKey, existing.StartAt))
	}
	return nil, nil
}

func (s *SessionStore) PeekOpen(ctx context.Context, key model.SessionKey) (*model.ClockSession, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}

	org, err := s.orgs.Get(ctx, key.TeamID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get organization", goerr.V(model.TeamIDKey, key.TeamID))
	}
	if !org.HasConfig() {
		return nil, goerr.Wrap(model.ErrConfigurationMissing, "no ledger for team", goerr.V(model.TeamIDKey, key.TeamID))
	}

	now := s.now()
	months := model.ScanMonths(now)
	found := make([]*model.ClockSession, len(months))

	eg, ctx := errgroup.WithContext(ctx)
	for i, month := range months {
		eg.Go(func() error {
			rows, err := s.ledger.ReadRange(ctx, org.Document, model.LedgerRange(month))
			if err != nil {
				if errors.Is(err, model.ErrSheetNotFound) {
					return nil
				}
				return goerr.Wrap(err, "failed to scan ledger", goerr.V(model.SheetKey, month))
			}
			if session, ok := model.FindOpenRow(rows, key, now); ok {
				found[i] = session
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	// Months are newest first
	for _, session := range found {
		if session != nil {
			return session, nil
		}
	}
	return nil, nil
}

// Release is a no-op: a row with an end cell is closed by construction
func (s *SessionStore) Release(ctx context.Context, key model.SessionKey) error {
	return nil
}

// LedgerBacked marks the store as reading open state from the ledger
func (s *SessionStore) LedgerBacked() {}

var _ interfaces.LedgerBacked = &SessionStore{}
