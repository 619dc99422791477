// Package testing provides an in-memory document store for unit tests. It
// implements the handle and collection contracts of database/types, keeps one
// isolated database per tenant and exposes counters and fault injection so
// tests can assert how many store calls an operation made.
//
// Usage:
//
//	store := dbtest.NewStore()
//	manager, _ := database.NewManager(log, database.Options{}, store.Connector())
//	...
//	assert.Zero(t, store.Accesses())
package testing

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/gaborage/tenant-records/database/types"
)

// ErrHandleClosed is returned by operations on a handle that has been closed.
var ErrHandleClosed = errors.New("dbtest: handle is closed")

// Op names a collection operation for fault injection.
type Op string

// Operations that can be failed with Store.Fail.
const (
	OpInsert  Op = "insert"
	OpFindOne Op = "find_one"
	OpFind    Op = "find"
	OpUpdate  Op = "update"
	OpDelete  Op = "delete"
)

// Store is an in-memory multi-tenant document store.
type Store struct {
	mu        sync.Mutex
	databases map[string]map[string][]bson.M
	faults    map[Op]error

	connectErr  error
	insertedID  any
	cursorFault *cursorFault
	closes      map[string]int

	accesses atomic.Int64
	connects atomic.Int64
}

type cursorFault struct {
	after int
	err   error
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		databases: make(map[string]map[string][]bson.M),
		faults:    make(map[Op]error),
		closes:    make(map[string]int),
	}
}

// Connector returns a handle constructor suitable for database.NewManager.
// Every call builds a new handle and increments Connects.
func (s *Store) Connector() func(ctx context.Context, tenantID string) (types.Handle, error) {
	return func(_ context.Context, tenantID string) (types.Handle, error) {
		s.connects.Add(1)
		s.mu.Lock()
		err := s.connectErr
		s.mu.Unlock()
		if err != nil {
			return nil, err
		}
		return &Handle{store: s, name: tenantID}, nil
	}
}

// Handle returns a handle for tenantID without going through Connector.
func (s *Store) Handle(tenantID string) *Handle {
	return &Handle{store: s, name: tenantID}
}

// FailConnect makes Connector return err. Pass nil to clear.
func (s *Store) FailConnect(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connectErr = err
}

// Fail makes every call of op return err. Pass nil to clear.
func (s *Store) Fail(op Op, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.faults, op)
		return
	}
	s.faults[op] = err
}

// FailCursorAfter makes cursors return err after yielding n documents.
func (s *Store) FailCursorAfter(n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		s.cursorFault = nil
		return
	}
	s.cursorFault = &cursorFault{after: n, err: err}
}

// ReturnInsertedID overrides the identifier reported by InsertOne. The
// document is still stored. Pass nil to restore normal behavior.
func (s *Store) ReturnInsertedID(id any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insertedID = id
}

// Accesses returns the number of collection operations performed.
func (s *Store) Accesses() int64 { return s.accesses.Load() }

// Connects returns the number of handles built through Connector.
func (s *Store) Connects() int64 { return s.connects.Load() }

// Closes returns how many handles for tenantID have been closed.
func (s *Store) Closes(tenantID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes[tenantID]
}

// Count returns the number of documents in a tenant collection.
func (s *Store) Count(tenantID, collection string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.databases[tenantID][collection])
}

func (s *Store) fault(op Op) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.faults[op]
}

// Handle is a tenant-scoped view of the store.
type Handle struct {
	store  *Store
	name   string
	closed atomic.Bool
}

var _ types.Handle = (*Handle)(nil)

// Name implements types.Handle.
func (h *Handle) Name() string { return h.name }

// Collection implements types.Handle.
func (h *Handle) Collection(name string) types.DocumentCollection {
	return &Collection{handle: h, name: name}
}

// Ping implements types.Handle.
func (h *Handle) Ping(context.Context) error {
	if h.closed.Load() {
		return ErrHandleClosed
	}
	return nil
}

// Close implements types.Handle.
func (h *Handle) Close(context.Context) error {
	if h.closed.Swap(true) {
		return nil
	}
	h.store.mu.Lock()
	h.store.closes[h.name]++
	h.store.mu.Unlock()
	return nil
}

// Closed reports whether Close has been called.
func (h *Handle) Closed() bool { return h.closed.Load() }

// Collection is an in-memory collection bound to one tenant.
type Collection struct {
	handle *Handle
	name   string
}

var _ types.DocumentCollection = (*Collection)(nil)

func (c *Collection) begin(ctx context.Context, op Op) error {
	c.handle.store.accesses.Add(1)
	if c.handle.closed.Load() {
		return ErrHandleClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.handle.store.fault(op)
}

// docs must be called with the store lock held.
func (c *Collection) docs() []bson.M {
	return c.handle.store.databases[c.handle.name][c.name]
}

func (c *Collection) setDocs(docs []bson.M) {
	s := c.handle.store
	db, ok := s.databases[c.handle.name]
	if !ok {
		db = make(map[string][]bson.M)
		s.databases[c.handle.name] = db
	}
	db[c.name] = docs
}

// InsertOne implements types.DocumentCollection.
func (c *Collection) InsertOne(ctx context.Context, document any) (any, error) {
	if err := c.begin(ctx, OpInsert); err != nil {
		return nil, err
	}

	doc, err := normalize(document)
	if err != nil {
		return nil, err
	}
	if _, ok := doc["_id"]; !ok {
		doc["_id"] = bson.NewObjectID()
	}

	s := c.handle.store
	s.mu.Lock()
	defer s.mu.Unlock()
	c.setDocs(append(c.docs(), doc))

	if s.insertedID != nil {
		return s.insertedID, nil
	}
	return doc["_id"], nil
}

// FindOne implements types.DocumentCollection.
func (c *Collection) FindOne(ctx context.Context, filter any) types.DocumentResult {
	if err := c.begin(ctx, OpFindOne); err != nil {
		return &Result{err: err}
	}

	f, err := normalize(filter)
	if err != nil {
		return &Result{err: err}
	}

	s := c.handle.store
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, doc := range c.docs() {
		if matches(doc, f) {
			return &Result{doc: clone(doc)}
		}
	}
	return &Result{err: types.ErrNoDocuments}
}

// Find implements types.DocumentCollection.
func (c *Collection) Find(ctx context.Context, filter any) (types.DocumentCursor, error) {
	if err := c.begin(ctx, OpFind); err != nil {
		return nil, err
	}

	f, err := normalize(filter)
	if err != nil {
		return nil, err
	}

	s := c.handle.store
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []bson.M
	for _, doc := range c.docs() {
		if matches(doc, f) {
			out = append(out, clone(doc))
		}
	}
	cur := &Cursor{docs: out, pos: -1}
	if s.cursorFault != nil {
		cur.failAfter = s.cursorFault.after
		cur.failErr = s.cursorFault.err
	}
	return cur, nil
}

// UpdateOne implements types.DocumentCollection. Only $set updates are supported.
func (c *Collection) UpdateOne(ctx context.Context, filter any, update any) (types.DocumentUpdateResult, error) {
	if err := c.begin(ctx, OpUpdate); err != nil {
		return nil, err
	}

	f, err := normalize(filter)
	if err != nil {
		return nil, err
	}
	u, err := normalize(update)
	if err != nil {
		return nil, err
	}
	set, ok := asMap(u["$set"])
	if !ok || len(u) != 1 {
		return nil, fmt.Errorf("dbtest: unsupported update %v", u)
	}

	s := c.handle.store
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, doc := range c.docs() {
		if !matches(doc, f) {
			continue
		}
		modified := int64(0)
		for k, v := range set {
			if k == "_id" {
				return nil, errors.New("dbtest: _id is immutable")
			}
			if !reflect.DeepEqual(doc[k], v) {
				modified = 1
			}
			doc[k] = v
		}
		return &UpdateResult{matched: 1, modified: modified}, nil
	}
	return &UpdateResult{}, nil
}

// DeleteOne implements types.DocumentCollection.
func (c *Collection) DeleteOne(ctx context.Context, filter any) (types.DocumentDeleteResult, error) {
	if err := c.begin(ctx, OpDelete); err != nil {
		return nil, err
	}

	f, err := normalize(filter)
	if err != nil {
		return nil, err
	}

	s := c.handle.store
	s.mu.Lock()
	defer s.mu.Unlock()
	docs := c.docs()
	for i, doc := range docs {
		if matches(doc, f) {
			c.setDocs(append(docs[:i:i], docs[i+1:]...))
			return &DeleteResult{deleted: 1}, nil
		}
	}
	return &DeleteResult{}, nil
}

// Result implements types.DocumentResult.
type Result struct {
	doc bson.M
	err error
}

// Decode implements types.DocumentResult.
func (r *Result) Decode(v any) error {
	if r.err != nil {
		return r.err
	}
	return decode(r.doc, v)
}

// Err implements types.DocumentResult.
func (r *Result) Err() error { return r.err }

// Cursor implements types.DocumentCursor over a snapshot of matching documents.
type Cursor struct {
	docs      []bson.M
	pos       int
	yielded   int
	failAfter int
	failErr   error
	err       error
	closed    bool
}

// Next implements types.DocumentCursor.
func (c *Cursor) Next(ctx context.Context) bool {
	if c.closed || c.err != nil {
		return false
	}
	if err := ctx.Err(); err != nil {
		c.err = err
		return false
	}
	if c.failErr != nil && c.yielded >= c.failAfter {
		c.err = c.failErr
		return false
	}
	if c.pos+1 >= len(c.docs) {
		return false
	}
	c.pos++
	c.yielded++
	return true
}

// Decode implements types.DocumentCursor.
func (c *Cursor) Decode(v any) error {
	if c.pos < 0 || c.pos >= len(c.docs) {
		return errors.New("dbtest: cursor not positioned on a document")
	}
	return decode(c.docs[c.pos], v)
}

// Err implements types.DocumentCursor.
func (c *Cursor) Err() error { return c.err }

// Close implements types.DocumentCursor.
func (c *Cursor) Close(context.Context) error {
	c.closed = true
	return nil
}

// UpdateResult implements types.DocumentUpdateResult.
type UpdateResult struct{ matched, modified int64 }

// MatchedCount implements types.DocumentUpdateResult.
func (r *UpdateResult) MatchedCount() int64 { return r.matched }

// ModifiedCount implements types.DocumentUpdateResult.
func (r *UpdateResult) ModifiedCount() int64 { return r.modified }

// DeleteResult implements types.DocumentDeleteResult.
type DeleteResult struct{ deleted int64 }

// DeletedCount implements types.DocumentDeleteResult.
func (r *DeleteResult) DeletedCount() int64 { return r.deleted }

// normalize round-trips v through BSON so stored values and filters share one
// representation regardless of the Go types callers used.
func normalize(v any) (bson.M, error) {
	if v == nil {
		return bson.M{}, nil
	}
	raw, err := bson.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("dbtest: marshal: %w", err)
	}
	var out bson.M
	if err := bson.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("dbtest: unmarshal: %w", err)
	}
	if out == nil {
		out = bson.M{}
	}
	return out, nil
}

func decode(doc bson.M, v any) error {
	raw, err := bson.Marshal(doc)
	if err != nil {
		return err
	}
	return bson.Unmarshal(raw, v)
}

// matches reports whether doc has every field of filter with an equal value.
func matches(doc, filter bson.M) bool {
	for k, want := range filter {
		got, ok := doc[k]
		if !ok || !reflect.DeepEqual(got, want) {
			return false
		}
	}
	return true
}

func asMap(v any) (bson.M, bool) {
	switch m := v.(type) {
	case bson.M:
		return m, true
	case bson.D:
		out := make(bson.M, len(m))
		for _, e := range m {
			out[e.Key] = e.Value
		}
		return out, true
	case map[string]any:
		return bson.M(m), true
	default:
		return nil, false
	}
}

func clone(doc bson.M) bson.M {
	out := make(bson.M, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	return out
}
