package usecase

import (
	"time"

	"github.com/secmon-lab/punchcard/pkg/domain/interfaces"
	slacksvc "github.com/secmon-lab/punchcard/pkg/service/slack"
	"github.com/secmon-lab/punchcard/pkg/utils/metrics"
)

type UseCases struct {
	repo     interfaces.Repository
	ledger   interfaces.Ledger
	slack    slacksvc.Service
	archive  interfaces.Archive
	metrics  *metrics.Metrics
	now      func() time.Time
	sleep    Sleeper
	commands CommandSet

	Clock   *ClockUseCase
	Retry   *RetryCoordinator
	Command *CommandUseCase
	Setup   *SetupUseCase
	Export  *ExportUseCase
	Sweep   *SweepUseCase
}

type Option func(*UseCases)

// WithSlackService enables channel label, display name and permission lookup
func WithSlackService(svc slacksvc.Service) Option {
	return func(uc *UseCases) {
		uc.slack = svc
	}
}

func WithArchive(archive interfaces.Archive) Option {
	return func(uc *UseCases) {
		uc.archive = archive
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(uc *UseCases) {
		uc.metrics = m
	}
}

func WithClock(now func() time.Time) Option {
	return func(uc *UseCases) {
		uc.now = now
	}
}

// WithSleeper replaces the backoff wait of the retry coordinator
func WithSleeper(sleep Sleeper) Option {
	return func(uc *UseCases) {
		uc.sleep = sleep
	}
}

func WithCommandSet(commands CommandSet) Option {
	return func(uc *UseCases) {
		uc.commands = commands
	}
}

func New(repo interfaces.Repository, ledger interfaces.Ledger, opts ...Option) *UseCases {
	uc := &UseCases{
		repo:     repo,
		ledger:   ledger,
		now:      time.Now,
		sleep:    SleepContext,
		commands: DefaultCommandSet(),
	}

	for _, opt := range opts {
		opt(uc)
	}

	uc.Clock = NewClockUseCase(repo.Organization(), repo.Session(), ledger, uc.now, uc.metrics)
	uc.Retry = NewRetryCoordinator(uc.sleep, uc.now, uc.metrics)
	uc.Setup = NewSetupUseCase(repo.Organization(), ledger, uc.slack, uc.now)
	uc.Export = NewExportUseCase(repo.Organization(), ledger, uc.archive)
	uc.Sweep = NewSweepUseCase(repo.Organization(), repo.Session(), ledger, uc.now, uc.metrics)
	uc.Command = NewCommandUseCase(uc.Clock, uc.Setup, uc.Retry, uc.slack, uc.commands, uc.now, uc.metrics)

	return uc
}
