package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// TenantsCollection is the root collection holding one document per tenant.
const TenantsCollection = "admins"

// Document is a decoded snapshot plus its server timestamps.
type Document[T any] struct {
	ID         string
	Data       T
	CreateTime time.Time
	UpdateTime time.Time
}

// Decoder hydrates an entity from a snapshot.
type Decoder[T any] func(snap *firestore.DocumentSnapshot) (T, error)

// QueryBuilder narrows a collection query before it runs.
type QueryBuilder func(query firestore.Query) firestore.Query

// TenantRepository reads and writes admins/{tenantID}/{collection}. Reads are available
// both standalone and inside a transaction.
type TenantRepository[T any] struct {
	provider   *Provider
	collection string
	decode     Decoder[T]
}

// NewTenantRepository binds a repository to a tenant sub-collection. A nil decode falls
// back to Firestore struct decoding.
func NewTenantRepository[T any](provider *Provider, collection string, decode Decoder[T]) *TenantRepository[T] {
	if decode == nil {
		decode = func(snap *firestore.DocumentSnapshot) (T, error) {
			var target T
			err := snap.DataTo(&target)
			return target, err
		}
	}
	return &TenantRepository[T]{
		provider:   provider,
		collection: strings.TrimSpace(collection),
		decode:     decode,
	}
}

// Set writes value under id outside of any transaction.
func (r *TenantRepository[T]) Set(ctx context.Context, tenantID, id string, value any, opts ...firestore.SetOption) error {
	ref, err := r.DocumentRef(ctx, tenantID, id)
	if err != nil {
		return err
	}
	if _, err := ref.Set(ctx, value, opts...); err != nil {
		return WrapError(r.op("set"), err)
	}
	return nil
}

// Get reads and decodes a single document.
func (r *TenantRepository[T]) Get(ctx context.Context, tenantID, id string) (Document[T], error) {
	ref, err := r.DocumentRef(ctx, tenantID, id)
	if err != nil {
		return Document[T]{}, err
	}
	snap, err := ref.Get(ctx)
	if err != nil {
		return Document[T]{}, r.readError("get", tenantID, id, err)
	}
	return r.Decode(snap)
}

// GetTx reads a single document inside tx.
func (r *TenantRepository[T]) GetTx(ctx context.Context, tx *firestore.Transaction, tenantID, id string) (Document[T], error) {
	ref, err := r.DocumentRef(ctx, tenantID, id)
	if err != nil {
		return Document[T]{}, err
	}
	snap, err := tx.Get(ref)
	if err != nil {
		return Document[T]{}, r.readError("get", tenantID, id, err)
	}
	return r.Decode(snap)
}

// GetAllTx reads the distinct ids inside tx in one round trip. Missing documents are
// left out of the result rather than reported.
func (r *TenantRepository[T]) GetAllTx(ctx context.Context, tx *firestore.Transaction, tenantID string, ids []string) ([]Document[T], error) {
	seen := make(map[string]struct{}, len(ids))
	refs := make([]*firestore.DocumentRef, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ref, err := r.DocumentRef(ctx, tenantID, id)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	if len(refs) == 0 {
		return nil, nil
	}

	snaps, err := tx.GetAll(refs)
	if err != nil {
		return nil, WrapError(r.op("getAll"), err)
	}
	docs := make([]Document[T], 0, len(snaps))
	for _, snap := range snaps {
		if snap == nil || !snap.Exists() {
			continue
		}
		doc, err := r.Decode(snap)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// Query runs build against the tenant collection and decodes every result.
func (r *TenantRepository[T]) Query(ctx context.Context, tenantID string, build QueryBuilder) ([]Document[T], error) {
	coll, err := r.CollectionRef(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	query := coll.Query
	if build != nil {
		query = build(query)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var docs []Document[T]
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			return docs, nil
		}
		if err != nil {
			return nil, WrapError(r.op("query"), err)
		}
		doc, err := r.Decode(snap)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
}

// Decode converts a snapshot that was read elsewhere.
func (r *TenantRepository[T]) Decode(snap *firestore.DocumentSnapshot) (Document[T], error) {
	entity, err := r.decode(snap)
	if err != nil {
		return Document[T]{}, fmt.Errorf("firestore: decode %s/%s: %w", r.collection, snap.Ref.ID, err)
	}
	return Document[T]{
		ID:         snap.Ref.ID,
		Data:       entity,
		CreateTime: snap.CreateTime,
		UpdateTime: snap.UpdateTime,
	}, nil
}

// CollectionRef returns admins/{tenantID}/{collection}.
func (r *TenantRepository[T]) CollectionRef(ctx context.Context, tenantID string) (*firestore.CollectionRef, error) {
	switch {
	case r == nil || r.provider == nil:
		return nil, WrapError(r.op("collection"), errors.New("firestore: provider is nil"))
	case r.collection == "":
		return nil, WrapError(r.op("collection"), errors.New("firestore: collection name is required"))
	case strings.TrimSpace(tenantID) == "":
		return nil, WrapError(r.op("collection"), errors.New("firestore: tenant id is required"))
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(TenantsCollection).Doc(tenantID).Collection(r.collection), nil
}

// DocumentRef returns admins/{tenantID}/{collection}/{id}.
func (r *TenantRepository[T]) DocumentRef(ctx context.Context, tenantID, id string) (*firestore.DocumentRef, error) {
	if strings.TrimSpace(id) == "" {
		return nil, WrapError(r.op("document"), errors.New("firestore: document id is required"))
	}
	coll, err := r.CollectionRef(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return coll.Doc(id), nil
}

func (r *TenantRepository[T]) readError(action, tenantID, id string, err error) error {
	if status.Code(err) == codes.NotFound {
		return NotFoundError(r.op(action), fmt.Errorf("%s %s not found for tenant %s", r.collection, id, tenantID))
	}
	return WrapError(r.op(action), err)
}

func (r *TenantRepository[T]) op(action string) string {
	if r == nil || r.collection == "" {
		return "firestore." + action
	}
	return r.collection + "." + action
}
