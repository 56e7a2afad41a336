package processors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/arthur-debert/refshift/ids"
	"github.com/arthur-debert/refshift/types"
)

func deckDocument() types.Document {
	return bson.M{
		"_id":    int32(1),
		"origin": bson.M{"id": int32(5), "user": int32(3)},
		"revisions": bson.A{
			bson.M{
				"user": int32(3),
				"contentItems": bson.A{
					bson.M{"kind": "deck", "ref": bson.M{"id": int32(6), "revision": int32(1)}},
					bson.M{"kind": "slide", "ref": bson.M{"id": int32(6), "revision": int32(2)}},
				},
				"usage": bson.A{bson.M{"id": int32(7), "revision": int32(1)}},
			},
		},
	}
}

func pathsOf(t *testing.T, sets interface{ Fields() bson.D }) []string {
	t.Helper()
	var out []string
	for _, e := range sets.Fields() {
		out = append(out, e.Key)
	}
	return out
}

func TestUpdateReferencesIn(t *testing.T) {
	shift := ids.NewShift(100, 0, 0)

	t.Run("deck tree", func(t *testing.T) {
		p, err := Decks().UpdateReferencesIn("decks", deckDocument(), shift)
		require.NoError(t, err)
		require.Len(t, p, 3)

		assert.Equal(t, "origin.id", p[0].Path.String())
		assert.Equal(t, int32(105), p[0].Value)
		assert.Equal(t, "revisions.0.contentItems.0.ref.id", p[1].Path.String())
		assert.Equal(t, int32(106), p[1].Value)
		assert.Equal(t, "revisions.0.usage.0.id", p[2].Path.String())
		assert.Equal(t, int32(107), p[2].Value)
	})

	t.Run("discriminator guards slide items", func(t *testing.T) {
		p, err := Slides().UpdateReferencesIn("decks", deckDocument(), shift)
		require.NoError(t, err)
		require.Len(t, p, 1)
		assert.Equal(t, "revisions.0.contentItems.1.ref.id", p[0].Path.String())
		assert.Equal(t, int32(106), p[0].Value)
	})

	t.Run("input is not mutated", func(t *testing.T) {
		doc := deckDocument()
		_, err := Decks().UpdateReferencesIn("decks", doc, shift)
		require.NoError(t, err)
		assert.Equal(t, deckDocument(), doc)
	})

	t.Run("ids outside the window are left alone", func(t *testing.T) {
		p, err := Decks().UpdateReferencesIn("decks", deckDocument(), ids.NewShift(100, 6, 6))
		require.NoError(t, err)
		assert.Equal(t, []string{"revisions.0.contentItems.0.ref.id"}, pathsOf(t, p))
	})

	t.Run("composite identifiers keep their revision", func(t *testing.T) {
		doc := bson.M{
			"_id":          int32(9),
			"content_kind": "deck",
			"content_id":   "5-3",
			"use_info":     bson.M{"target_id": "not-a-ref"},
			"fork_info":    bson.M{"content_id": "6"},
			"delete_info":  bson.M{"content_kind": "slide", "content_id": "7-1"},
		}
		p, err := Decks().UpdateReferencesIn("activities", doc, shift)
		require.NoError(t, err)
		require.Len(t, p, 2)
		assert.Equal(t, "content_id", p[0].Path.String())
		assert.Equal(t, "105-3", p[0].Value)
		assert.Equal(t, "fork_info.content_id", p[1].Path.String())
		assert.Equal(t, "106", p[1].Value)
	})

	t.Run("missing and null fields are skipped", func(t *testing.T) {
		doc := bson.M{"_id": int32(2), "origin": nil, "revisions": bson.A{bson.M{"usage": nil}}}
		p, err := Decks().UpdateReferencesIn("decks", doc, shift)
		require.NoError(t, err)
		assert.True(t, p.Empty())
	})

	t.Run("unknown dependent", func(t *testing.T) {
		_, err := Decks().UpdateReferencesIn("media", bson.M{}, shift)
		assert.True(t, types.IsCode(err, types.ErrCodeUnsupportedCollection))
	})
}

func TestMalformedDocument(t *testing.T) {
	testCases := []struct {
		name  string
		proc  Processor
		dep   string
		doc   types.Document
		field string
	}{
		{
			name:  "scalar where array expected",
			proc:  Decks(),
			dep:   "decks",
			doc:   bson.M{"_id": int32(4), "revisions": "oops"},
			field: "revisions",
		},
		{
			name:  "string where number expected",
			proc:  Users(),
			dep:   "decks",
			doc:   bson.M{"_id": int32(4), "user": "3"},
			field: "user",
		},
		{
			name:  "fractional id",
			proc:  Users(),
			dep:   "media",
			doc:   bson.M{"_id": int32(4), "owner": 3.5},
			field: "owner",
		},
		{
			name:  "object where composite expected",
			proc:  Users(),
			dep:   "activities",
			doc:   bson.M{"_id": int32(4), "user_id": bson.M{"id": 3}},
			field: "user_id",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.proc.UpdateReferencesIn(tc.dep, tc.doc, ids.NewShift(1, 0, 0))
			require.Error(t, err)

			var e *types.Error
			require.ErrorAs(t, err, &e)
			assert.Equal(t, types.ErrCodeMalformedDocument, e.Code)
			assert.Equal(t, tc.dep, e.Collection)
			assert.Equal(t, int32(4), e.DocumentID)
			assert.Equal(t, tc.field, e.Field)
		})
	}
}

func TestLegacyCreator(t *testing.T) {
	shift := ids.NewShift(100, 0, 0)

	t.Run("bare id is repaired", func(t *testing.T) {
		doc := bson.M{"_id": int32(1), "creator": int32(5)}
		p, err := Users().UpdateReferencesIn("usergroups", doc, shift)
		require.NoError(t, err)
		require.Len(t, p, 1)
		assert.Equal(t, "creator", p[0].Path.String())
		assert.Equal(t, bson.M{"userid": int32(105)}, p[0].Value)
	})

	t.Run("repair happens under identity", func(t *testing.T) {
		doc := bson.M{"_id": int32(1), "creator": int32(5)}
		p, err := Users().UpdateReferencesIn("usergroups", doc, ids.Identity{})
		require.NoError(t, err)
		require.Len(t, p, 1)
		assert.Equal(t, bson.M{"userid": int32(5)}, p[0].Value)
	})

	t.Run("object form", func(t *testing.T) {
		doc := bson.M{
			"_id":     int32(1),
			"creator": bson.M{"userid": int64(6), "username": "x"},
			"members": bson.A{bson.M{"userid": int32(7)}, bson.M{"userid": int32(8)}},
		}
		p, err := Users().UpdateReferencesIn("usergroups", doc, ids.Mapping{6: 60, 8: 80})
		require.NoError(t, err)
		assert.Equal(t, []string{"creator.userid", "members.1.userid"}, pathsOf(t, p))
	})
}

// Applying a patch and recomputing against the identity never yields further work
func TestIdempotence(t *testing.T) {
	docs := map[string]types.Document{
		"decks": deckDocument(),
		"activities": bson.M{
			"_id": int32(3), "content_kind": "deck", "content_id": "5-1",
			"move_info": bson.M{"target_id": "6", "source_id": "7"},
		},
		"deckchanges": bson.M{
			"_id":   int32(4),
			"path":  bson.A{bson.M{"id": int32(5)}, bson.M{"id": int32(6)}},
			"value": bson.M{"kind": "deck", "ref": bson.M{"id": int32(7)}, "origin": bson.M{"id": int32(5)}},
		},
	}
	transforms := []ids.Transform{
		ids.NewShift(100, 0, 0),
		ids.NewShift(100, 5, 7),
		ids.Mapping{5: 50, 6: 50},
		ids.Identity{},
	}

	for dep, doc := range docs {
		for _, tr := range transforms {
			t.Run(dep+"/"+tr.String(), func(t *testing.T) {
				p, err := Decks().UpdateReferencesIn(dep, doc, tr)
				require.NoError(t, err)

				patched := types.CloneDocument(doc)
				require.NoError(t, p.Apply(patched))

				again, err := Decks().UpdateReferencesIn(dep, patched, ids.Identity{})
				require.NoError(t, err)
				assert.True(t, again.Empty(), "unexpected patch %v", again)
			})
		}
	}
}

func TestReferencePaths(t *testing.T) {
	users := Users()
	paths := users.ReferencePaths("usergroups")
	require.Len(t, paths, 3)
	assert.Equal(t, "creator", paths[0].Path)
	assert.Equal(t, bson.M{"creator": bson.M{"$type": "number"}}, paths[0].Filter)
	assert.Equal(t, "creator.userid", paths[1].Path)
	assert.Equal(t, "members.userid", paths[2].Path)
	assert.True(t, users.Exact("usergroups"))

	decks := Decks()
	assert.False(t, decks.Exact("decks"))
	assert.True(t, decks.Exact("slides"))
	deckPaths := decks.ReferencePaths("decks")
	require.Len(t, deckPaths, 2)
	assert.Equal(t, "origin.id", deckPaths[0].Path)
	assert.Equal(t, "revisions.usage.id", deckPaths[1].Path)

	activities := decks.ReferencePaths("activities")
	for _, p := range activities {
		assert.True(t, p.Composite, p.Path)
	}
}

func TestReferencesIn(t *testing.T) {
	doc := bson.M{
		"_id":          int32(1),
		"content_kind": "deck",
		"content_id":   "5-2",
		"use_info":     bson.M{"target_id": "abc"},
		"fork_info":    bson.M{"content_id": "0"},
	}
	found, invalid, err := Decks().ReferencesIn("activities", doc)
	require.NoError(t, err)
	assert.Equal(t, []int64{5}, found)
	assert.Equal(t, []interface{}{"abc", "0"}, invalid)

	found, _, err = Users().ReferencesIn("usergroups", bson.M{"_id": int32(1), "creator": int32(4), "members": bson.A{bson.M{"userid": int32(9)}}})
	require.NoError(t, err)
	assert.Equal(t, []int64{4, 9}, found)
}

func TestFilterFor(t *testing.T) {
	assert.Equal(t, bson.M{}, Decks().FilterFor("deckchanges"))
	assert.Equal(t, bson.M{"content_kind": "deck"}, Decks().FilterFor("discussions"))
	assert.Equal(t, bson.M{}, Tags().FilterFor("anything"))
	assert.Empty(t, Tags().Dependents())
}
