package memory

import (
	"context"
	"time"

	"github.com/secmon-lab/punchcard/pkg/domain/interfaces"
)

// Repository is an alias for Memory to match the pattern
type Repository = Memory

type Memory struct {
	organization *organizationRepository
	session      *sessionStore
}

var _ interfaces.Repository = &Memory{}

type Option func(*Memory)

// WithClock replaces the time source used for session expiry
func WithClock(now func() time.Time) Option {
	return func(m *Memory) {
		m.session.now = now
	}
}

func New(opts ...Option) *Memory {
	m := &Memory{
		organization: newOrganizationRepository(),
		session:      newSessionStore(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Memory) Organization() interfaces.OrganizationRepository {
	return m.organization
}

func (m *Memory) Session() interfaces.SessionStore {
	return m.session
}

func (m *Memory) Close(ctx context.Context) error {
	return nil
}
