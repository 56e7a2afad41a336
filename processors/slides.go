package processors

import "go.mongodb.org/mongo-driver/bson"

type slidesProcessor struct {
	table
}

// Slides returns the processor for the slides collection
func Slides() Processor {
	return slidesProcessor{newTable("slides",
		Dependent{
			Collection: "decks",
			Filter:     bson.M{"revisions.contentItems.kind": "slide"},
			Refs: []Ref{
				{Path: "revisions.*.contentItems.*.ref.id", When: &Cond{Path: "revisions.*.contentItems.*.kind", Equals: "slide"}},
			},
		},
		Dependent{
			Collection: "deckchanges",
			Filter: bson.M{"$or": bson.A{
				bson.M{"value.kind": "slide"},
				bson.M{"oldValue.kind": "slide"},
			}},
			Refs: []Ref{
				{Path: "value.ref.id", When: &Cond{Path: "value.kind", Equals: "slide"}},
				{Path: "oldValue.ref.id", When: &Cond{Path: "oldValue.kind", Equals: "slide"}},
			},
		},
		Dependent{
			Collection: "discussions",
			Filter:     bson.M{"content_kind": "slide"},
			Refs: []Ref{
				{Path: "content_id", Shape: Composite, When: &Cond{Path: "content_kind", Equals: "slide"}},
			},
		},
		Dependent{
			Collection: "activities",
			Filter: bson.M{"$or": bson.A{
				bson.M{"content_id": bson.M{"$exists": true}, "content_kind": "slide"},
				bson.M{"delete_info.content_id": bson.M{"$exists": true}, "delete_info.content_kind": "slide"},
			}},
			Refs: []Ref{
				{Path: "content_id", Shape: Composite, When: &Cond{Path: "content_kind", Equals: "slide"}},
				{Path: "delete_info.content_id", Shape: Composite, When: &Cond{Path: "delete_info.content_kind", Equals: "slide"}},
			},
		},
	)}
}
