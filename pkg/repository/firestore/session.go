package firestore

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/punchcard/pkg/domain/interfaces"
	"github.com/secmon-lab/punchcard/pkg/domain/model"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const openSessionsCollection = "open_sessions"

type sessionStore struct {
	client           *firestore.Client
	collectionPrefix string
	now              func() time.Time
}

var (
	_ interfaces.SessionStore  = &sessionStore{}
	_ interfaces.SessionPurger = &sessionStore{}
	_ interfaces.SessionLister = &sessionStore{}
)

func newSessionStore(client *firestore.Client) *sessionStore {
	return &sessionStore{
		client: client,
		now:    time.Now,
	}
}

// sessionDoc is the Firestore persistence model. expires_at is the field a
// Firestore TTL policy should be configured on.
type sessionDoc struct {
	RecordID     string    `firestore:"record_id"`
	TeamID       string    `firestore:"team_id"`
	UserID       string    `firestore:"user_id"`
	ChannelID    string    `firestore:"channel_id"`
	DisplayName  string    `firestore:"display_name"`
	ProjectLabel string    `firestore:"project_label"`
	StartAt      time.Time `firestore:"start_at"`
	ExpiresAt    time.Time `firestore:"expires_at"`
}

func (r *sessionStore) collection() *firestore.CollectionRef {
	return r.client.Collection(collectionName(r.collectionPrefix, openSessionsCollection))
}

func (r *sessionStore) toDoc(key model.SessionKey, s *model.ClockSession) *sessionDoc {
	expiresAt := s.ExpiresAt
	if expiresAt.IsZero() {
		expiresAt = r.now().Add(model.SessionTTL)
	}
	return &sessionDoc{
		RecordID:     s.RecordID.String(),
		TeamID:       key.TeamID,
		UserID:       key.UserID,
		ChannelID:    key.ChannelID,
		DisplayName:  s.DisplayName,
		ProjectLabel: s.ProjectLabel,
		StartAt:      s.StartAt,
		ExpiresAt:    expiresAt,
	}
}

func (d *sessionDoc) toModel() *model.ClockSession {
	return &model.ClockSession{
		RecordID:     model.RecordID(d.RecordID),
		TeamID:       d.TeamID,
		UserID:       d.UserID,
		ChannelID:    d.ChannelID,
		DisplayName:  d.DisplayName,
		ProjectLabel: d.ProjectLabel,
		StartAt:      d.StartAt.UTC(),
		ExpiresAt:    d.ExpiresAt.UTC(),
	}
}

func keyValues(key model.SessionKey) []goerr.Option {
	return []goerr.Option{
		goerr.V(model.TeamIDKey, key.TeamID),
		goerr.V(model.UserIDKey, key.UserID),
		goerr.V(model.ChannelIDKey, key.ChannelID),
	}
}

func (r *sessionStore) TryAcquireOpen(ctx context.Context, key model.SessionKey, session *model.ClockSession) (*model.ClockSession, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}

	ref := r.collection().Doc(key.String())
	doc := r.toDoc(key, session)

	// Create fails with AlreadyExists when any record is present
	_, err := ref.Create(ctx, doc)
	if err == nil {
		return nil, nil
	}
	if status.Code(err) != codes.AlreadyExists {
		return nil, wrapErr(err, "failed to create open session", keyValues(key)...)
	}

	// The existing record may have outlived its TTL without being removed
	var existing *model.ClockSession
	err = r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		existing = nil

		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return tx.Create(ref, doc)
			}
			return err
		}

		var cur sessionDoc
		if err := snap.DataTo(&cur); err != nil {
			return err
		}
		if s := cur.toModel(); !s.IsExpired(r.now()) {
			existing = s
			return nil
		}
		return tx.Set(ref, doc)
	})
	if err != nil {
		return nil, wrapErr(err, "failed to replace expired session", keyValues(key)...)
	}

	if existing != nil {
		return existing, goerr.Wrap(model.ErrAlreadyOpen, "session already open",
			append(keyValues(key),
				goerr.V(model.RecordIDKey, existing.RecordID),
				goerr.V(model.StartAtKey, existing.StartAt))...)
	}
	return nil, nil
}

func (r *sessionStore) PeekOpen(ctx context.Context, key model.SessionKey) (*model.ClockSession, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}

	snap, err := r.collection().Doc(key.String()).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, nil
		}
		return nil, wrapErr(err, "failed to get open session", keyValues(key)...)
	}

	var doc sessionDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, goerr.Wrap(err, "failed to decode open session", keyValues(key)...)
	}

	s := doc.toModel()
	if s.IsExpired(r.now()) {
		return nil, nil
	}
	return s, nil
}

func (r *sessionStore) Release(ctx context.Context, key model.SessionKey) error {
	if _, err := r.collection().Doc(key.String()).Delete(ctx); err != nil {
		if status.Code(err) == codes.NotFound {
			return nil
		}
		return wrapErr(err, "failed to release open session", keyValues(key)...)
	}
	return nil
}

// ReleaseIfMatch deletes the document inside a transaction when it still
// carries recordID
func (r *sessionStore) ReleaseIfMatch(ctx context.Context, key model.SessionKey, recordID model.RecordID) (bool, error) {
	ref := r.collection().Doc(key.String())
	released := false

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		released = false

		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return nil
			}
			return err
		}

		var cur sessionDoc
		if err := snap.DataTo(&cur); err != nil {
			return err
		}
		if model.RecordID(cur.RecordID) != recordID {
			return nil
		}

		released = true
		return tx.Delete(ref)
	})
	if err != nil {
		return false, wrapErr(err, "failed to release open session",
			append(keyValues(key), goerr.V(model.RecordIDKey, recordID))...)
	}
	return released, nil
}

// ListOpen uses the (team_id, expires_at) composite index
func (r *sessionStore) ListOpen(ctx context.Context, teamID string) ([]*model.ClockSession, error) {
	iter := r.collection().
		Where("team_id", "==", teamID).
		Where("expires_at", ">", r.now()).
		OrderBy("expires_at", firestore.Asc).
		Documents(ctx)
	defer iter.Stop()

	var sessions []*model.ClockSession
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, wrapErr(err, "failed to list open sessions", goerr.V(model.TeamIDKey, teamID))
		}

		var doc sessionDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, goerr.Wrap(err, "failed to decode open session", goerr.V("doc_id", snap.Ref.ID))
		}
		sessions = append(sessions, doc.toModel())
	}
	return sessions, nil
}

func (r *sessionStore) PurgeExpired(ctx context.Context, before time.Time) (int, error) {
	iter := r.collection().Where("expires_at", "<=", before).Documents(ctx)
	defer iter.Stop()

	bw := r.client.BulkWriter(ctx)
	count := 0
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			bw.End()
			return count, wrapErr(err, "failed to iterate expired sessions")
		}
		if _, err := bw.Delete(snap.Ref); err != nil {
			bw.End()
			return count, goerr.Wrap(err, "failed to enqueue delete", goerr.V("doc_id", snap.Ref.ID))
		}
		count++
	}
	bw.End()
	return count, nil
}
