package config

import (
	"context"
	"errors"
	"log/slog"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/punchcard/pkg/domain/interfaces"
	"github.com/secmon-lab/punchcard/pkg/repository/firestore"
	"github.com/secmon-lab/punchcard/pkg/repository/ledgerscan"
	"github.com/secmon-lab/punchcard/pkg/repository/memory"
	"github.com/secmon-lab/punchcard/pkg/repository/redis"
	"github.com/secmon-lab/punchcard/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

// Repository holds CLI flags for the organization and session store backends
type Repository struct {
	backend          string
	projectID        string
	databaseID       string
	collectionPrefix string
	sessionBackend   string
	redisURL         string
}

// Flags returns CLI flags for repository configuration
func (r *Repository) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "repository-backend",
			Usage:       "Organization repository backend (firestore or memory)",
			Category:    "Repository",
			Value:       "firestore",
			Sources:     cli.EnvVars("PUNCHCARD_REPOSITORY_BACKEND"),
			Destination: &r.backend,
		},
		&cli.StringFlag{
			Name:        "firestore-project-id",
			Usage:       "Firestore Project ID (required when using firestore backend)",
			Category:    "Repository",
			Sources:     cli.EnvVars("PUNCHCARD_FIRESTORE_PROJECT_ID"),
			Destination: &r.projectID,
		},
		&cli.StringFlag{
			Name:        "firestore-database-id",
			Usage:       "Firestore Database ID",
			Category:    "Repository",
			Sources:     cli.EnvVars("PUNCHCARD_FIRESTORE_DATABASE_ID"),
			Destination: &r.databaseID,
		},
		&cli.StringFlag{
			Name:        "firestore-collection-prefix",
			Usage:       "Prefix of every Firestore collection",
			Category:    "Repository",
			Sources:     cli.EnvVars("PUNCHCARD_FIRESTORE_COLLECTION_PREFIX"),
			Destination: &r.collectionPrefix,
		},
		&cli.StringFlag{
			Name:        "session-backend",
			Usage:       "Open session store (repository, redis or ledger). repository uses the repository backend",
			Category:    "Repository",
			Value:       "repository",
			Sources:     cli.EnvVars("PUNCHCARD_SESSION_BACKEND"),
			Destination: &r.sessionBackend,
		},
		&cli.StringFlag{
			Name:        "redis-url",
			Usage:       "Redis URL (required when session-backend is redis)",
			Category:    "Repository",
			Sources:     cli.EnvVars("PUNCHCARD_REDIS_URL"),
			Destination: &r.redisURL,
		},
	}
}

func (r Repository) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("backend", r.backend),
		slog.String("project_id", r.projectID),
		slog.String("database_id", r.databaseID),
		slog.String("session_backend", r.sessionBackend),
		slog.Bool("redis_url.set", r.redisURL != ""),
	)
}

// ProjectID returns the Firestore project ID
func (r *Repository) ProjectID() string {
	return r.projectID
}

// DatabaseID returns the Firestore database ID
func (r *Repository) DatabaseID() string {
	return r.databaseID
}

// Store is the configured repository. Ping checks every backend it holds.
type Store struct {
	orgs     interfaces.OrganizationRepository
	sessions interfaces.SessionStore
	pings    []func(ctx context.Context) error
	closers  []func(ctx context.Context) error
}

var _ interfaces.Repository = &Store{}

func (s *Store) Organization() interfaces.OrganizationRepository { return s.orgs }
func (s *Store) Session() interfaces.SessionStore                { return s.sessions }

func (s *Store) Ping(ctx context.Context) error {
	for _, ping := range s.pings {
		if err := ping(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Close(ctx context.Context) error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Configure initializes the repository. ledger backs the ledger session
// store. The caller is responsible for calling Close() on the returned store.
func (r *Repository) Configure(ctx context.Context, ledger interfaces.Ledger) (*Store, error) {
	store := &Store{}

	var base interfaces.Repository
	switch r.backend {
	case "firestore":
		if r.projectID == "" {
			return nil, goerr.Wrap(ErrInvalidConfig, "firestore-project-id is required when using firestore backend")
		}
		var opts []firestore.Option
		if r.collectionPrefix != "" {
			opts = append(opts, firestore.WithCollectionPrefix(r.collectionPrefix))
		}
		repo, err := firestore.New(ctx, r.projectID, r.databaseID, opts...)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to initialize firestore repository")
		}
		logging.Default().Info("Using Firestore repository",
			"project_id", r.projectID,
			"database_id", r.databaseID,
		)
		base = repo

	case "memory":
		logging.Default().Info("Using in-memory repository (development mode)")
		base = memory.New()

	default:
		return nil, goerr.Wrap(ErrUnknownBackend, "invalid repository backend", goerr.V(BackendKey, r.backend))
	}

	store.orgs = base.Organization()
	store.closers = append(store.closers, base.Close)
	store.pings = append(store.pings, func(ctx context.Context) error {
		_, err := base.Organization().Get(ctx, "health-check")
		return err
	})

	switch r.sessionBackend {
	case "", "repository":
		store.sessions = base.Session()

	case "redis":
		if r.redisURL == "" {
			_ = store.Close(ctx)
			return nil, goerr.Wrap(ErrInvalidConfig, "redis-url is required when session-backend is redis")
		}
		sessions, err := redis.New(ctx, r.redisURL)
		if err != nil {
			_ = store.Close(ctx)
			return nil, goerr.Wrap(err, "failed to initialize redis session store")
		}
		store.sessions = sessions
		store.pings = append(store.pings, sessions.Ping)
		store.closers = append(store.closers, func(context.Context) error { return sessions.Close() })
		logging.Default().Info("Using Redis session store")

	case "ledger":
		store.sessions = ledgerscan.New(store.orgs, ledger)
		logging.Default().Info("Using ledger scan session store")

	default:
		_ = store.Close(ctx)
		return nil, goerr.Wrap(ErrUnknownBackend, "invalid session backend", goerr.V(BackendKey, r.sessionBackend))
	}

	return store, nil
}
