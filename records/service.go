// Package records implements tenant-scoped CRUD for accounts and tasks on top
// of the tenant handle cache, together with the HTTP module exposing them.
package records

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/gaborage/tenant-records/database"
	"github.com/gaborage/tenant-records/database/types"
	"github.com/gaborage/tenant-records/logger"
)

const tracerName = "tenant-records/records"

// HandleSource hands out leases on tenant handles. *database.Manager implements it.
type HandleSource interface {
	Get(ctx context.Context, tenantID string) (*database.Lease, error)
}

// Service performs CRUD for one record type in one collection of every
// tenant database. It is safe for concurrent use.
type Service[T any, P Document[T]] struct {
	resource   string
	collection string
	handles    HandleSource
	logger     logger.Logger
	tracer     trace.Tracer
}

// NewService creates a service for resource (used in error messages) stored in collection.
func NewService[T any, P Document[T]](resource, collection string, handles HandleSource, log logger.Logger) *Service[T, P] {
	return &Service[T, P]{
		resource:   resource,
		collection: collection,
		handles:    handles,
		logger:     log,
		tracer:     otel.Tracer(tracerName),
	}
}

// NewAccountService returns the service for the accounts collection.
func NewAccountService(handles HandleSource, log logger.Logger) *Service[Account, *Account] {
	return NewService[Account, *Account]("Account", AccountsCollection, handles, log)
}

// NewTaskService returns the service for the tasks collection.
func NewTaskService(handles HandleSource, log logger.Logger) *Service[Task, *Task] {
	return NewService[Task, *Task]("Task", TasksCollection, handles, log)
}

// Resource returns the record type name.
func (s *Service[T, P]) Resource() string {
	return s.resource
}

// Create inserts rec and returns the identifier assigned by the store. Any
// identifier already set on rec is ignored.
func (s *Service[T, P]) Create(ctx context.Context, tenantID string, rec T) (id bson.ObjectID, err error) {
	ctx, finish := s.begin(ctx, "create", tenantID)
	defer func() { finish(err) }()

	P(&rec).SetID(bson.ObjectID{})

	err = s.withCollection(ctx, tenantID, func(coll types.DocumentCollection) error {
		inserted, insErr := coll.InsertOne(ctx, &rec)
		if insErr != nil {
			return databaseError(s.resource, insErr)
		}
		oid, ok := inserted.(bson.ObjectID)
		if !ok || oid.IsZero() {
			return insertionFailed(s.resource)
		}
		id = oid
		return nil
	})
	return id, err
}

// Get returns the record stored under idHex.
func (s *Service[T, P]) Get(ctx context.Context, tenantID, idHex string) (rec *T, err error) {
	ctx, finish := s.begin(ctx, "get", tenantID)
	defer func() { finish(err) }()

	oid, err := s.parseID(idHex)
	if err != nil {
		return nil, err
	}

	err = s.withCollection(ctx, tenantID, func(coll types.DocumentCollection) error {
		var doc T
		if decErr := coll.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); decErr != nil {
			if errors.Is(decErr, types.ErrNoDocuments) {
				return notFound(s.resource)
			}
			return databaseError(s.resource, decErr)
		}
		rec = &doc
		return nil
	})
	return rec, err
}

// Update replaces every mutable field of the record stored under idHex with
// the values in rec. The identifier itself is never changed.
func (s *Service[T, P]) Update(ctx context.Context, tenantID, idHex string, rec T) (err error) {
	ctx, finish := s.begin(ctx, "update", tenantID)
	defer func() { finish(err) }()

	oid, err := s.parseID(idHex)
	if err != nil {
		return err
	}
	fields, err := mutableFields(&rec)
	if err != nil {
		return databaseError(s.resource, err)
	}

	return s.withCollection(ctx, tenantID, func(coll types.DocumentCollection) error {
		res, updErr := coll.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": fields})
		if updErr != nil {
			return databaseError(s.resource, updErr)
		}
		if res.MatchedCount() != 1 {
			return notFound(s.resource)
		}
		return nil
	})
}

// Delete removes the record stored under idHex.
func (s *Service[T, P]) Delete(ctx context.Context, tenantID, idHex string) (err error) {
	ctx, finish := s.begin(ctx, "delete", tenantID)
	defer func() { finish(err) }()

	oid, err := s.parseID(idHex)
	if err != nil {
		return err
	}

	return s.withCollection(ctx, tenantID, func(coll types.DocumentCollection) error {
		res, delErr := coll.DeleteOne(ctx, bson.M{"_id": oid})
		if delErr != nil {
			return databaseError(s.resource, delErr)
		}
		if res.DeletedCount() != 1 {
			return notFound(s.resource)
		}
		return nil
	})
}

// List returns every record in the tenant's collection in store order. A
// failure while iterating discards everything read so far.
func (s *Service[T, P]) List(ctx context.Context, tenantID string) (out []T, err error) {
	ctx, finish := s.begin(ctx, "list", tenantID)
	defer func() { finish(err) }()

	err = s.withCollection(ctx, tenantID, func(coll types.DocumentCollection) error {
		cur, findErr := coll.Find(ctx, bson.M{})
		if findErr != nil {
			return databaseError(s.resource, findErr)
		}
		defer func() { _ = cur.Close(ctx) }()

		recs := make([]T, 0)
		for cur.Next(ctx) {
			var doc T
			if decErr := cur.Decode(&doc); decErr != nil {
				return databaseError(s.resource, decErr)
			}
			recs = append(recs, doc)
		}
		if curErr := cur.Err(); curErr != nil {
			return databaseError(s.resource, curErr)
		}
		out = recs
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service[T, P]) parseID(idHex string) (bson.ObjectID, error) {
	oid, err := ParseID(idHex)
	if err != nil {
		return bson.ObjectID{}, invalidID(s.resource, err)
	}
	return oid, nil
}

// withCollection leases the tenant handle for the duration of fn. A handle
// that cannot be built fails this call only.
func (s *Service[T, P]) withCollection(ctx context.Context, tenantID string, fn func(types.DocumentCollection) error) error {
	lease, err := s.handles.Get(ctx, tenantID)
	if err != nil {
		return databaseError(s.resource, fmt.Errorf("tenant %s: %w", tenantID, err))
	}
	defer lease.Release()

	start := time.Now()
	err = fn(lease.Handle().Collection(s.collection))
	logger.IncrementDBCounter(ctx)
	logger.AddDBElapsed(ctx, time.Since(start).Nanoseconds())
	return err
}

func (s *Service[T, P]) begin(ctx context.Context, op, tenantID string) (context.Context, func(error)) {
	ctx, span := s.tracer.Start(ctx, "records."+strings.ToLower(s.resource)+"."+op,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("db.collection.name", s.collection),
			attribute.String("tenant.id", tenantID),
		),
	)
	return ctx, func(err error) {
		if err != nil {
			span.SetAttributes(attribute.String("records.error.kind", KindOf(err).String()))
			if KindOf(err) == KindDatabase || KindOf(err) == KindInsertionFailed {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				s.logger.WithContext(ctx).Error().
					Err(err).
					Str("tenant", tenantID).
					Str("collection", s.collection).
					Str("operation", op).
					Msg("Record operation failed")
			}
		}
		span.End()
	}
}

// mutableFields encodes rec and drops the identifier, leaving the fields an
// update may overwrite.
func mutableFields(rec any) (bson.M, error) {
	raw, err := bson.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	var fields bson.M
	if err := bson.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	delete(fields, "_id")
	return fields, nil
}
