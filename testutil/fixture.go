// Package testutil provides a small platform dataset shaped like the
// production collections, loaded into an in-memory store.
package testutil

import (
	_ "embed"
	"testing"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/arthur-debert/refshift/store"
	"github.com/arthur-debert/refshift/types"
)

//go:embed testdata/platform.json
var platformJSON []byte

// Well known ids of the fixture
const (
	UserAna = 5 // referenced everywhere
	UserBen = 6 // referenced everywhere
	UserCy  = 7 // never referenced

	GroupEditors   = 1
	GroupReviewers = 2 // never referenced

	DeckRoot  = 10 // holds DeckChild as a sub-deck
	DeckChild = 11

	SlideIntro = 20
	SlideBody  = 21

	TagMath = 60 // nothing references tags
)

// Collections lists the collections of the fixture
var Collections = []string{
	"users", "usergroups", "decks", "slides", "deckchanges",
	"discussions", "activities", "tags", "media",
}

// PlatformData gives typed access to the fixture documents
type PlatformData struct {
	// ByCollection holds the documents of each collection in file order
	ByCollection map[string][]types.Document
}

// Get returns a fixture document by collection and id
func (p *PlatformData) Get(collection string, id int64) types.Document {
	for _, doc := range p.ByCollection[collection] {
		if n, ok := doc[types.IDField].(int32); ok && int64(n) == id {
			return doc
		}
	}
	return nil
}

// Parse decodes the fixture. Integral numbers become int32, as the store
// returns them for documents written by the platform.
func Parse() (*PlatformData, error) {
	var raw bson.M
	if err := bson.UnmarshalExtJSON(platformJSON, false, &raw); err != nil {
		return nil, err
	}

	data := &PlatformData{ByCollection: make(map[string][]types.Document)}
	for _, name := range Collections {
		docs, _ := types.AsArray(raw[name])
		for _, d := range docs {
			m, ok := types.AsMap(d)
			if !ok {
				continue
			}
			data.ByCollection[name] = append(data.ByCollection[name], types.CloneDocument(m))
		}
	}
	return data, nil
}

// LoadPlatform returns an in-memory store populated with the fixture
func LoadPlatform(t testing.TB) (*store.Memory, *PlatformData) {
	t.Helper()

	data, err := Parse()
	if err != nil {
		t.Fatalf("failed to parse fixture: %v", err)
	}

	m := store.NewMemory()
	for name, docs := range data.ByCollection {
		m.Insert(name, docs...)
	}
	return m, data
}
