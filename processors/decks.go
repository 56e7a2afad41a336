package processors

import "go.mongodb.org/mongo-driver/bson"

// decks ids are referenced by deck trees, slide usage, change logs, comments and activities
type decksProcessor struct {
	table
}

// Decks returns the processor for the decks collection
func Decks() Processor {
	return decksProcessor{newTable("decks",
		Dependent{
			Collection: "decks",
			Filter: bson.M{"$or": bson.A{
				bson.M{"revisions.contentItems.kind": "deck"},
				bson.M{"revisions.usage.id": bson.M{"$exists": true}},
				bson.M{"origin.id": bson.M{"$exists": true}},
			}},
			Refs: []Ref{
				{Path: "origin.id"},
				{Path: "revisions.*.contentItems.*.ref.id", When: &Cond{Path: "revisions.*.contentItems.*.kind", Equals: "deck"}},
				{Path: "revisions.*.usage.*.id"},
			},
		},
		Dependent{
			Collection: "slides",
			Filter:     bson.M{"revisions.usage.id": bson.M{"$exists": true}},
			Refs: []Ref{
				{Path: "revisions.*.usage.*.id"},
			},
		},
		Dependent{
			Collection: "deckchanges",
			Refs: []Ref{
				{Path: "path.*.id"},
				{Path: "from.*.id"},
				{Path: "value.ref.id", When: &Cond{Path: "value.kind", Equals: "deck"}},
				{Path: "value.origin.id", When: &Cond{Path: "value.kind", Equals: "deck"}},
				{Path: "oldValue.ref.id", When: &Cond{Path: "oldValue.kind", Equals: "deck"}},
			},
		},
		Dependent{
			Collection: "discussions",
			Filter:     bson.M{"content_kind": "deck"},
			Refs: []Ref{
				{Path: "content_id", Shape: Composite, When: &Cond{Path: "content_kind", Equals: "deck"}},
			},
		},
		Dependent{
			Collection: "activities",
			Filter: bson.M{"$or": bson.A{
				bson.M{"content_kind": "deck"},
				bson.M{"use_info.target_id": bson.M{"$exists": true}},
				bson.M{"fork_info.content_id": bson.M{"$exists": true}},
				bson.M{"delete_info.content_id": bson.M{"$exists": true}},
				bson.M{"move_info": bson.M{"$exists": true}},
			}},
			Refs: []Ref{
				{Path: "content_id", Shape: Composite, When: &Cond{Path: "content_kind", Equals: "deck"}},
				{Path: "use_info.target_id", Shape: Composite},
				{Path: "fork_info.content_id", Shape: Composite},
				{Path: "delete_info.content_id", Shape: Composite, When: &Cond{Path: "delete_info.content_kind", Equals: "deck"}},
				{Path: "move_info.target_id", Shape: Composite},
				{Path: "move_info.source_id", Shape: Composite},
			},
		},
	)}
}
