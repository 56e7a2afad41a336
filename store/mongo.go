package store

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"

	"github.com/arthur-debert/refshift/ids"
	"github.com/arthur-debert/refshift/types"
)

// MongoOptions configures a connection
type MongoOptions struct {
	URI            string
	Database       string
	ConnectTimeout time.Duration
	// ConnectRetries bounds the ping attempts made before giving up
	ConnectRetries uint64
	Logger         *zap.SugaredLogger
}

var _ Store = (*Mongo)(nil)

// Mongo is a Store backed by one MongoDB database
type Mongo struct {
	client *mongo.Client
	db     *mongo.Database
	log    *zap.SugaredLogger
}

// Connect opens a client and waits until the server answers a ping
func Connect(ctx context.Context, opts MongoOptions) (*Mongo, error) {
	if opts.Database == "" {
		return nil, fmt.Errorf("database name is required")
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	clientOpts := options.Client().
		ApplyURI(opts.URI).
		SetBSONOptions(&options.BSONOptions{DefaultDocumentM: true})
	if opts.ConnectTimeout > 0 {
		clientOpts.SetConnectTimeout(opts.ConnectTimeout)
		clientOpts.SetServerSelectionTimeout(opts.ConnectTimeout)
	}

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 250 * time.Millisecond
	policy.MaxInterval = 2 * time.Second
	retries := opts.ConnectRetries
	if retries == 0 {
		retries = 3
	}

	attempt := 0
	err = backoff.Retry(func() error {
		attempt++
		if err := client.Ping(ctx, readpref.Primary()); err != nil {
			log.Debugw("ping failed", "attempt", attempt, "error", err)
			return err
		}
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(policy, retries), ctx))
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to reach %s: %w", opts.URI, err)
	}

	log.Infow("Connected to mongo instance", "database", opts.Database)
	return &Mongo{client: client, db: client.Database(opts.Database), log: log}, nil
}

// Database returns a store over another database of the same server
func (m *Mongo) Database(name string) *Mongo {
	return &Mongo{client: m.client, db: m.client.Database(name), log: m.log}
}

func orEmpty(filter bson.M) bson.M {
	if filter == nil {
		return bson.M{}
	}
	return filter
}

// Each implements Store
func (m *Mongo) Each(ctx context.Context, collection string, q Query, fn func(types.Document) error) error {
	opts := options.Find()
	if q.Order != Natural {
		opts.SetSort(bson.D{{Key: types.IDField, Value: int(q.Order)}})
	}
	if q.Projection != nil {
		opts.SetProjection(q.Projection)
	}

	cursor, err := m.db.Collection(collection).Find(ctx, orEmpty(q.Filter), opts)
	if err != nil {
		return fmt.Errorf("find in %s: %w", collection, err)
	}
	defer cursor.Close(context.WithoutCancel(ctx))

	for cursor.Next(ctx) {
		var doc bson.M
		if err := cursor.Decode(&doc); err != nil {
			return fmt.Errorf("decode %s document: %w", collection, err)
		}
		if err := fn(doc); err != nil {
			return err
		}
	}
	return cursor.Err()
}

// BulkSet implements Store
func (m *Mongo) BulkSet(ctx context.Context, collection string, updates []Update) (BulkResult, error) {
	if len(updates) == 0 {
		return BulkResult{}, nil
	}

	models := make([]mongo.WriteModel, len(updates))
	idOf := make([]interface{}, len(updates))
	for i, u := range updates {
		models[i] = mongo.NewUpdateOneModel().
			SetFilter(bson.M{types.IDField: u.ID}).
			SetUpdate(u.Patch.Update())
		idOf[i] = u.ID
	}

	res, err := m.db.Collection(collection).BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	return bulkResult(res, err, idOf)
}

// Rekey implements Store
func (m *Mongo) Rekey(ctx context.Context, collection string, moves []Rekey) (BulkResult, error) {
	if len(moves) == 0 {
		return BulkResult{}, nil
	}

	var models []mongo.WriteModel
	var idOf []interface{}
	for _, mv := range moves {
		if mv.Doc != nil {
			models = append(models, mongo.NewInsertOneModel().SetDocument(mv.Doc))
			idOf = append(idOf, types.DocumentID(mv.Doc))
		}
		models = append(models, mongo.NewDeleteOneModel().SetFilter(bson.M{types.IDField: mv.Old}))
		idOf = append(idOf, mv.Old)
	}

	res, err := m.db.Collection(collection).BulkWrite(ctx, models, options.BulkWrite().SetOrdered(true))
	return bulkResult(res, err, idOf)
}

// bulkResult converts a driver outcome, turning write errors into per-document failures
func bulkResult(res *mongo.BulkWriteResult, err error, idOf []interface{}) (BulkResult, error) {
	var out BulkResult
	if res != nil {
		out.Matched = res.MatchedCount
		out.Modified = res.ModifiedCount
		out.Inserted = res.InsertedCount
		out.Deleted = res.DeletedCount
	}
	if err == nil {
		return out, nil
	}

	var bwe mongo.BulkWriteException
	if !errors.As(err, &bwe) {
		return out, err
	}
	if bwe.WriteConcernError != nil {
		return out, err
	}
	for _, we := range bwe.WriteErrors {
		var id interface{}
		if we.Index >= 0 && we.Index < len(idOf) {
			id = idOf[we.Index]
		}
		out.Failures = append(out.Failures, DocumentFailure{
			Index: we.Index,
			ID:    id,
			Err:   fmt.Errorf("code %d: %s", we.Code, we.Message),
		})
	}
	return out, nil
}

// Distinct implements Store
func (m *Mongo) Distinct(ctx context.Context, collection, path string, filter bson.M) ([]interface{}, error) {
	values, err := m.db.Collection(collection).Distinct(ctx, path, orEmpty(filter))
	if err != nil {
		return nil, fmt.Errorf("distinct %s.%s: %w", collection, path, err)
	}
	return values, nil
}

// IDRange implements Store
func (m *Mongo) IDRange(ctx context.Context, collection string) (IDRange, error) {
	// $min and $max skip the nulls standing in for non-numeric ids
	numeric := bson.M{"$cond": bson.A{bson.M{"$isNumber": "$_id"}, "$_id", nil}}
	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.M{
			"_id":   nil,
			"min":   bson.M{"$min": numeric},
			"max":   bson.M{"$max": numeric},
			"count": bson.M{"$sum": bson.M{"$cond": bson.A{bson.M{"$isNumber": "$_id"}, 1, 0}}},
			"total": bson.M{"$sum": 1},
		}}},
	}

	cursor, err := m.db.Collection(collection).Aggregate(ctx, pipeline)
	if err != nil {
		return IDRange{}, fmt.Errorf("id range of %s: %w", collection, err)
	}
	defer cursor.Close(context.WithoutCancel(ctx))

	var rows []bson.M
	if err := cursor.All(ctx, &rows); err != nil {
		return IDRange{}, fmt.Errorf("id range of %s: %w", collection, err)
	}
	if len(rows) == 0 {
		return IDRange{}, nil
	}

	var r IDRange
	r.Min, _ = ids.Coerce(rows[0]["min"])
	r.Max, _ = ids.Coerce(rows[0]["max"])
	r.Count, _ = ids.Coerce(rows[0]["count"])
	r.Total, _ = ids.Coerce(rows[0]["total"])
	return r, nil
}

// ShiftAll implements Store. The $out stage swaps the collection in a single
// rename, so readers see either the old or the new keys.
func (m *Mongo) ShiftAll(ctx context.Context, collection string, delta int64) error {
	var d interface{} = delta
	if delta >= math.MinInt32 && delta <= math.MaxInt32 {
		// keeps int32 ids int32 where the sum fits
		d = int32(delta)
	}
	pipeline := mongo.Pipeline{
		{{Key: "$addFields", Value: bson.M{types.IDField: bson.M{"$add": bson.A{"$_id", d}}}}},
		{{Key: "$out", Value: collection}},
	}

	cursor, err := m.db.Collection(collection).Aggregate(ctx, pipeline)
	if err != nil {
		return fmt.Errorf("shift ids of %s: %w", collection, err)
	}
	return cursor.Close(context.WithoutCancel(ctx))
}

// DeleteRange implements Store
func (m *Mongo) DeleteRange(ctx context.Context, collection string, min, max int64) (int64, error) {
	res, err := m.db.Collection(collection).DeleteMany(ctx, bson.M{
		types.IDField: bson.M{"$gte": min, "$lte": max},
	})
	if err != nil {
		return 0, fmt.Errorf("delete range of %s: %w", collection, err)
	}
	return res.DeletedCount, nil
}

// DeleteIDs implements Store
func (m *Mongo) DeleteIDs(ctx context.Context, collection string, idList []int64) (int64, error) {
	if len(idList) == 0 {
		return 0, nil
	}
	res, err := m.db.Collection(collection).DeleteMany(ctx, bson.M{
		types.IDField: bson.M{"$in": idList},
	})
	if err != nil {
		return 0, fmt.Errorf("delete from %s: %w", collection, err)
	}
	return res.DeletedCount, nil
}

// Close implements Store
func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}
