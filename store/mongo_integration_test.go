//go:build integration

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap/zaptest"

	"github.com/arthur-debert/refshift/patch"
)

func startMongo(t *testing.T) *Mongo {
	t.Helper()
	ctx := context.Background()

	container, err := mongodb.Run(ctx, "mongo:6")
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_ = container.Terminate(ctx)
	})

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	m, err := Connect(ctx, MongoOptions{
		URI:            uri,
		Database:       "refshift_test",
		ConnectTimeout: 10 * time.Second,
		Logger:         zaptest.NewLogger(t).Sugar(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close(context.Background()) })
	return m
}

func TestMongoStore(t *testing.T) {
	ctx := context.Background()
	m := startMongo(t)

	_, err := m.db.Collection("users").InsertMany(ctx, []interface{}{
		bson.M{"_id": int32(5), "email": "a@x.com"},
		bson.M{"_id": int32(6), "email": "b@x.com"},
		bson.M{"_id": int32(7), "email": "c@x.com"},
	})
	require.NoError(t, err)
	_, err = m.db.Collection("decks").InsertMany(ctx, []interface{}{
		bson.M{"_id": int32(1), "user": int32(5), "contributors": bson.A{bson.M{"user": int32(6)}}},
		bson.M{"_id": int32(2), "user": int32(7)},
	})
	require.NoError(t, err)

	t.Run("id range", func(t *testing.T) {
		r, err := m.IDRange(ctx, "users")
		require.NoError(t, err)
		assert.Equal(t, IDRange{Min: 5, Max: 7, Count: 3, Total: 3}, r)
	})

	t.Run("distinct traverses arrays", func(t *testing.T) {
		values, err := m.Distinct(ctx, "decks", "contributors.user", nil)
		require.NoError(t, err)
		assert.Equal(t, []interface{}{int32(6)}, values)
	})

	t.Run("bulk set", func(t *testing.T) {
		res, err := m.BulkSet(ctx, "decks", []Update{
			{ID: int32(1), Patch: patch.Patch{{Path: patch.ParsePath("contributors.0.user"), Value: int32(106)}}},
			{ID: int32(2), Patch: patch.Patch{{Path: patch.ParsePath("user.id"), Value: int32(107)}}},
		})
		require.NoError(t, err)
		assert.Equal(t, int64(1), res.Modified)
		require.Len(t, res.Failures, 1, "setting a field inside a number fails that document only")
		assert.Equal(t, int32(2), res.Failures[0].ID)
	})

	t.Run("rekey stops at duplicate", func(t *testing.T) {
		res, err := m.Rekey(ctx, "users", []Rekey{
			{Old: int32(5), Doc: bson.M{"_id": int32(6)}},
		})
		require.NoError(t, err)
		assert.True(t, res.Failed())
	})

	t.Run("shift all", func(t *testing.T) {
		require.NoError(t, m.ShiftAll(ctx, "users", 100))
		docs, err := Collect(ctx, m, "users", Query{Order: Ascending})
		require.NoError(t, err)
		require.Len(t, docs, 3)
		assert.Equal(t, int32(105), docs[0]["_id"])
	})

	t.Run("delete", func(t *testing.T) {
		n, err := m.DeleteIDs(ctx, "users", []int64{105})
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
		n, err = m.DeleteRange(ctx, "users", 100, 200)
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)
	})
}
