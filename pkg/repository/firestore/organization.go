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

const organizationsCollection = "organizations"

type organizationRepository struct {
	client           *firestore.Client
	collectionPrefix string
}

var _ interfaces.OrganizationRepository = &organizationRepository{}

func newOrganizationRepository(client *firestore.Client) *organizationRepository {
	return &organizationRepository{
		client: client,
	}
}

// organizationDoc is the Firestore persistence model
type organizationDoc struct {
	TeamID      string    `firestore:"team_id"`
	DocumentID  string    `firestore:"document_id"`
	DocumentURL string    `firestore:"document_url"`
	Credentials string    `firestore:"credentials"`
	CreatedBy   string    `firestore:"created_by"`
	CreatedAt   time.Time `firestore:"created_at"`
	UpdatedAt   time.Time `firestore:"updated_at"`
}

func (r *organizationRepository) collection() *firestore.CollectionRef {
	return r.client.Collection(collectionName(r.collectionPrefix, organizationsCollection))
}

func toOrganizationDoc(org *model.Organization) *organizationDoc {
	return &organizationDoc{
		TeamID:      org.TeamID,
		DocumentID:  org.Document.ID,
		DocumentURL: org.Document.URL,
		Credentials: string(org.Document.Credentials),
		CreatedBy:   org.CreatedBy,
		CreatedAt:   org.CreatedAt,
		UpdatedAt:   org.UpdatedAt,
	}
}

func (d *organizationDoc) toModel() *model.Organization {
	return &model.Organization{
		TeamID: d.TeamID,
		Document: model.Document{
			ID:          d.DocumentID,
			URL:         d.DocumentURL,
			Credentials: model.Credentials(d.Credentials),
		},
		CreatedBy: d.CreatedBy,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

func (r *organizationRepository) Get(ctx context.Context, teamID string) (*model.Organization, error) {
	snap, err := r.collection().Doc(teamID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, nil
		}
		return nil, wrapErr(err, "failed to get organization", goerr.V(model.TeamIDKey, teamID))
	}

	var doc organizationDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, goerr.Wrap(err, "failed to decode organization", goerr.V(model.TeamIDKey, teamID))
	}
	return doc.toModel(), nil
}

func (r *organizationRepository) Put(ctx context.Context, org *model.Organization) error {
	if err := org.Validate(); err != nil {
		return goerr.Wrap(err, "invalid organization")
	}

	if _, err := r.collection().Doc(org.TeamID).Set(ctx, toOrganizationDoc(org)); err != nil {
		return wrapErr(err, "failed to put organization", goerr.V(model.TeamIDKey, org.TeamID))
	}
	return nil
}

func (r *organizationRepository) Delete(ctx context.Context, teamID string) error {
	if _, err := r.collection().Doc(teamID).Delete(ctx); err != nil {
		if status.Code(err) == codes.NotFound {
			return nil
		}
		return wrapErr(err, "failed to delete organization", goerr.V(model.TeamIDKey, teamID))
	}
	return nil
}

func (r *organizationRepository) List(ctx context.Context) ([]*model.Organization, error) {
	iter := r.collection().OrderBy("team_id", firestore.Asc).Documents(ctx)
	defer iter.Stop()

	var orgs []*model.Organization
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, wrapErr(err, "failed to iterate organizations")
		}

		var doc organizationDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, goerr.Wrap(err, "failed to decode organization", goerr.V("doc_id", snap.Ref.ID))
		}
		orgs = append(orgs, doc.toModel())
	}
	return orgs, nil
}
