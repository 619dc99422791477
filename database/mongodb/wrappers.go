package mongodb

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/gaborage/tenant-records/database/types"
)

// Collection wraps mongo.Collection to implement types.DocumentCollection
type Collection struct {
	coll *mongo.Collection
}

var _ types.DocumentCollection = (*Collection)(nil)

func (c *Collection) InsertOne(ctx context.Context, document any) (any, error) {
	res, err := c.coll.InsertOne(ctx, document)
	if err != nil {
		return nil, err
	}
	return res.InsertedID, nil
}

func (c *Collection) FindOne(ctx context.Context, filter any) types.DocumentResult {
	return &SingleResult{result: c.coll.FindOne(ctx, filter)}
}

func (c *Collection) Find(ctx context.Context, filter any) (types.DocumentCursor, error) {
	cur, err := c.coll.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	return &Cursor{cursor: cur}, nil
}

func (c *Collection) UpdateOne(ctx context.Context, filter any, update any) (types.DocumentUpdateResult, error) {
	res, err := c.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return nil, err
	}
	return &UpdateResult{result: res}, nil
}

func (c *Collection) DeleteOne(ctx context.Context, filter any) (types.DocumentDeleteResult, error) {
	res, err := c.coll.DeleteOne(ctx, filter)
	if err != nil {
		return nil, err
	}
	return &DeleteResult{result: res}, nil
}

// Cursor wraps mongo.Cursor to implement types.DocumentCursor
type Cursor struct {
	cursor *mongo.Cursor
}

var _ types.DocumentCursor = (*Cursor)(nil)

func (c *Cursor) Next(ctx context.Context) bool {
	return c.cursor.Next(ctx)
}

func (c *Cursor) Decode(val any) error {
	return c.cursor.Decode(val)
}

func (c *Cursor) Err() error {
	return c.cursor.Err()
}

func (c *Cursor) Close(ctx context.Context) error {
	return c.cursor.Close(ctx)
}

// SingleResult wraps mongo.SingleResult to implement types.DocumentResult.
// A lookup that matched nothing reports types.ErrNoDocuments.
type SingleResult struct {
	result *mongo.SingleResult
}

var _ types.DocumentResult = (*SingleResult)(nil)

func (r *SingleResult) Decode(v any) error {
	return translateErr(r.result.Decode(v))
}

func (r *SingleResult) Err() error {
	return translateErr(r.result.Err())
}

func translateErr(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return types.ErrNoDocuments
	}
	return err
}

// UpdateResult wraps mongo.UpdateResult to implement types.DocumentUpdateResult
type UpdateResult struct {
	result *mongo.UpdateResult
}

var _ types.DocumentUpdateResult = (*UpdateResult)(nil)

func (r *UpdateResult) MatchedCount() int64 {
	return r.result.MatchedCount
}

func (r *UpdateResult) ModifiedCount() int64 {
	return r.result.ModifiedCount
}

// DeleteResult wraps mongo.DeleteResult to implement types.DocumentDeleteResult
type DeleteResult struct {
	result *mongo.DeleteResult
}

var _ types.DocumentDeleteResult = (*DeleteResult)(nil)

func (r *DeleteResult) DeletedCount() int64 {
	return r.result.DeletedCount
}
