package rewrite

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap/zaptest"

	"github.com/arthur-debert/refshift/formats"
	"github.com/arthur-debert/refshift/ids"
	"github.com/arthur-debert/refshift/processors"
	"github.com/arthur-debert/refshift/store"
	"github.com/arthur-debert/refshift/testutil"
	"github.com/arthur-debert/refshift/types"
)

func dependent(t *testing.T, r Report, name string) DependentReport {
	t.Helper()
	for _, d := range r.Dependents {
		if d.Collection == name {
			return d
		}
	}
	t.Fatalf("no report for dependent %s", name)
	return DependentReport{}
}

func get(t *testing.T, m *store.Memory, collection string, id int64) types.Document {
	t.Helper()
	doc, ok := m.Get(collection, id)
	require.True(t, ok, "%s %d missing", collection, id)
	return doc
}

func TestRewriteUsers(t *testing.T) {
	ctx := context.Background()
	m, _ := testutil.LoadPlatform(t)
	engine := NewEngine(m, processors.Default(), Options{Logger: zaptest.NewLogger(t).Sugar()})
	shift := ids.NewShift(100, testutil.UserAna, testutil.UserCy)

	report, err := engine.RewriteReferences(ctx, "users", shift)
	require.NoError(t, err)
	assert.Equal(t, "users", report.Root)
	require.Len(t, report.Dependents, 8)

	groups := dependent(t, report, "usergroups")
	assert.Equal(t, int64(2), groups.Inspected)
	assert.Equal(t, int64(2), groups.Patched)
	assert.Equal(t, int64(2), groups.Modified)
	assert.Equal(t, int64(3), dependent(t, report, "activities").Modified)
	assert.Equal(t, int64(1), dependent(t, report, "media").Modified)

	editors := get(t, m, "usergroups", testutil.GroupEditors)
	assert.Equal(t, bson.M{"userid": int32(105)}, editors["creator"], "legacy creator is repaired")
	assert.Equal(t, int32(106), editors["members"].(bson.A)[0].(bson.M)["userid"])

	reviewers := get(t, m, "usergroups", testutil.GroupReviewers)
	assert.Equal(t, bson.M{"userid": int32(106), "username": "ben"}, reviewers["creator"])

	deck := get(t, m, "decks", testutil.DeckRoot)
	assert.Equal(t, int32(105), deck["user"])
	assert.Nil(t, deck["origin"])
	assert.Equal(t, int32(106), deck["editors"].(bson.M)["users"].(bson.A)[0].(bson.M)["id"])
	revision := deck["revisions"].(bson.A)[0].(bson.M)
	assert.Equal(t, int32(105), revision["user"])
	assert.Equal(t, int32(20), revision["contentItems"].(bson.A)[0].(bson.M)["ref"].(bson.M)["id"], "slide refs are not user refs")

	activity := get(t, m, "activities", 50)
	assert.Equal(t, "105", activity["user_id"])
	assert.Equal(t, "106", activity["content_owner_id"])
	assert.Equal(t, "11-1", activity["content_id"])

	t.Run("re-run is a no-op", func(t *testing.T) {
		again, err := engine.RewriteReferences(ctx, "users", shift)
		require.NoError(t, err)
		for _, d := range again.Dependents {
			assert.True(t, d.NoUpdatesNeeded(), "%s: %+v", d.Collection, d)
		}
	})
}

func TestRewriteDecks(t *testing.T) {
	ctx := context.Background()
	m, _ := testutil.LoadPlatform(t)
	engine := NewEngine(m, processors.Default(), Options{})

	report, err := engine.RewriteReferences(ctx, "decks", ids.NewShift(100, testutil.DeckRoot, testutil.DeckChild))
	require.NoError(t, err)

	testCases := []struct {
		dependent string
		inspected int64
		patched   int64
	}{
		{"decks", 2, 2},
		{"slides", 2, 2},
		{"deckchanges", 2, 2},
		{"discussions", 1, 1},
		{"activities", 2, 1},
	}
	for _, tc := range testCases {
		t.Run(tc.dependent, func(t *testing.T) {
			d := dependent(t, report, tc.dependent)
			assert.Equal(t, tc.inspected, d.Inspected)
			assert.Equal(t, tc.patched, d.Patched)
			assert.Equal(t, tc.patched, d.Modified)
		})
	}

	root := get(t, m, "decks", testutil.DeckRoot)
	items := root["revisions"].(bson.A)[0].(bson.M)["contentItems"].(bson.A)
	assert.Equal(t, int32(20), items[0].(bson.M)["ref"].(bson.M)["id"])
	assert.Equal(t, int32(111), items[1].(bson.M)["ref"].(bson.M)["id"])

	child := get(t, m, "decks", testutil.DeckChild)
	assert.Equal(t, int32(110), child["origin"].(bson.M)["id"])

	change := get(t, m, "deckchanges", 31)
	assert.Equal(t, bson.A{bson.M{"id": int32(110)}, bson.M{"id": int32(111)}}, change["path"])
	assert.Equal(t, int32(21), change["value"].(bson.M)["ref"].(bson.M)["id"])

	assert.Equal(t, "110-1", get(t, m, "discussions", 40)["content_id"])
	assert.Equal(t, "20-1", get(t, m, "discussions", 41)["content_id"])

	use := get(t, m, "activities", 50)
	assert.Equal(t, "111-1", use["content_id"])
	assert.Equal(t, "110-1", use["use_info"].(bson.M)["target_id"])
	deleted := get(t, m, "activities", 51)
	assert.Equal(t, "20-1", deleted["delete_info"].(bson.M)["content_id"])
}

func TestRewriteDryRun(t *testing.T) {
	ctx := context.Background()
	m, data := testutil.LoadPlatform(t)
	var out bytes.Buffer
	engine := NewEngine(m, processors.Default(), Options{DryRun: true, Out: &out, Format: formats.Text})

	report, err := engine.RewriteReferences(ctx, "slides", ids.NewShift(100, testutil.SlideIntro, testutil.SlideBody))
	require.NoError(t, err)
	assert.True(t, report.DryRun)
	assert.Equal(t, int64(0), report.Modified())
	assert.Equal(t, int64(5), report.Patched())

	assert.Contains(t, out.String(), "decks _id=10\n  revisions.0.contentItems.0.ref.id: 20 -> 120\n")
	assert.Contains(t, out.String(), "discussions _id=41\n  content_id: \"20-1\" -> \"120-1\"\n")

	for _, name := range testutil.Collections {
		for _, doc := range data.ByCollection[name] {
			stored, _ := m.Get(name, doc["_id"])
			assert.Equal(t, doc, stored, "%s was written during a dry run", name)
		}
	}
}

func TestRewriteMalformedDocument(t *testing.T) {
	ctx := context.Background()

	for _, batchSize := range []int{0, 1} {
		m, _ := testutil.LoadPlatform(t)
		m.Insert("decks", bson.M{"_id": int32(12), "user": "not-an-id"})
		engine := NewEngine(m, processors.Default(), Options{BatchSize: batchSize})

		report, err := engine.RewriteReferences(ctx, "users", ids.NewShift(100, 5, 7))
		require.Error(t, err)

		var e *types.Error
		require.ErrorAs(t, err, &e)
		assert.Equal(t, types.ErrCodeMalformedDocument, e.Code)
		assert.Equal(t, "decks", e.Collection)
		assert.Equal(t, int32(12), e.DocumentID)
		assert.Equal(t, "user", e.Field)
		assert.Equal(t, "not-an-id", e.Value)

		require.Len(t, report.Dependents, 2, "the run stops at the failing dependent")
		assert.Equal(t, int64(2), report.Dependents[0].Modified, "completed dependents keep their writes")
		assert.True(t, report.Dependents[1].Aborted)

		deck := get(t, m, "decks", testutil.DeckRoot)
		if batchSize == 0 {
			assert.Equal(t, int32(5), deck["user"], "the aborted batch is discarded")
		} else {
			assert.Equal(t, int32(105), deck["user"], "submitted chunks are not rolled back")
		}
	}
}

func TestRewriteMalformedDocumentKeepsSubmittedChunks(t *testing.T) {
	m, _ := testutil.LoadPlatform(t)
	m.Insert("media",
		bson.M{"_id": int32(71), "owner": int32(5)},
		bson.M{"_id": int32(72), "owner": "bad"},
	)
	engine := NewEngine(m, processors.Default(), Options{BatchSize: 1})

	report, err := engine.RewriteReferences(context.Background(), "users", ids.NewShift(100, 5, 7))
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrCodeMalformedDocument))

	media := dependent(t, report, "media")
	assert.True(t, media.Aborted)
	assert.Equal(t, int64(2), media.Modified)
	assert.Equal(t, int32(106), get(t, m, "media", 70)["owner"])
	assert.Equal(t, int32(105), get(t, m, "media", 71)["owner"])
	assert.Equal(t, "bad", get(t, m, "media", 72)["owner"])
}

func TestRewriteBulkFailure(t *testing.T) {
	ctx := context.Background()
	m, _ := testutil.LoadPlatform(t)
	m.FailWrite = func(collection string, id interface{}) error {
		if collection == "decks" && id == int32(testutil.DeckChild) {
			return errors.New("document failed validation")
		}
		return nil
	}
	engine := NewEngine(m, processors.Default(), Options{})

	report, err := engine.RewriteReferences(ctx, "users", ids.NewShift(100, 5, 7))
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrCodeBulkFailure))
	assert.Contains(t, err.Error(), "document failed validation")

	decks := dependent(t, report, "decks")
	assert.Equal(t, int64(1), decks.Modified)
	assert.Equal(t, int64(1), decks.Failed)
	require.Len(t, decks.Failures, 1)
	assert.Equal(t, int32(testutil.DeckChild), decks.Failures[0].ID)
	assert.Len(t, report.Dependents, 2)
}

func TestRewriteUnsupportedCollection(t *testing.T) {
	engine := NewEngine(store.NewMemory(), processors.Default(), Options{})
	_, err := engine.RewriteReferences(context.Background(), "comments", ids.Identity{})
	assert.True(t, types.IsCode(err, types.ErrCodeUnsupportedCollection))
}

func TestNothingMatched(t *testing.T) {
	engine := NewEngine(store.NewMemory(), processors.Default(), Options{})
	report, err := engine.RewriteReferences(context.Background(), "usergroups", ids.NewShift(1, 0, 0))
	require.NoError(t, err)
	for _, d := range report.Dependents {
		assert.True(t, d.NothingMatched())
		assert.False(t, d.NoUpdatesNeeded())
	}
}
