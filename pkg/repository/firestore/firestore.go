package firestore

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/punchcard/pkg/domain/interfaces"
	"github.com/secmon-lab/punchcard/pkg/domain/model"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type Firestore struct {
	client       *firestore.Client
	organization *organizationRepository
	session      *sessionStore
}

var _ interfaces.Repository = &Firestore{}

type Option func(*Firestore)

// WithCollectionPrefix namespaces every collection, used by tests sharing a
// database
func WithCollectionPrefix(prefix string) Option {
	return func(f *Firestore) {
		f.organization.collectionPrefix = prefix
		f.session.collectionPrefix = prefix
	}
}

// WithClock replaces the time source used for session expiry
func WithClock(now func() time.Time) Option {
	return func(f *Firestore) {
		f.session.now = now
	}
}

func New(ctx context.Context, projectID, databaseID string, opts ...Option) (*Firestore, error) {
	if databaseID == "" {
		databaseID = firestore.DefaultDatabaseID
	}
	client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore client",
			goerr.V("projectID", projectID),
			goerr.V("databaseID", databaseID))
	}

	f := &Firestore{
		client:       client,
		organization: newOrganizationRepository(client),
		session:      newSessionStore(client),
	}

	for _, opt := range opts {
		opt(f)
	}

	return f, nil
}

func (f *Firestore) Organization() interfaces.OrganizationRepository {
	return f.organization
}

func (f *Firestore) Session() interfaces.SessionStore {
	return f.session
}

func (f *Firestore) Close(ctx context.Context) error {
	if f.client != nil {
		return f.client.Close()
	}
	return nil
}

func collectionName(prefix, name string) string {
	if prefix != "" {
		return prefix + "_" + name
	}
	return name
}

// wrapErr marks transient gRPC failures as model.ErrBackendUnavailable so
// callers retry them. The original status stays in the chain.
func wrapErr(err error, msg string, values ...goerr.Option) error {
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted:
		err = errors.Join(model.ErrBackendUnavailable, err)
	}
	return goerr.Wrap(err, msg, values...)
}
