package processors

import "go.mongodb.org/mongo-driver/bson"

type usergroupsProcessor struct {
	table
}

// Usergroups returns the processor for the usergroups collection.
// Usergroups keep a copy of their own _id in the id field.
func Usergroups() Processor {
	return usergroupsProcessor{newTable("usergroups",
		Dependent{
			Collection: "usergroups",
			Filter:     bson.M{"id": bson.M{"$exists": true}},
			Refs:       []Ref{{Path: "id"}},
		},
		Dependent{
			Collection: "decks",
			Filter:     bson.M{"editors.groups.0": bson.M{"$exists": true}},
			Refs:       []Ref{{Path: "editors.groups.*.id"}},
		},
		Dependent{
			Collection: "activities",
			Filter: bson.M{"$or": bson.A{
				bson.M{"content_id": bson.M{"$exists": true}, "content_kind": "group"},
				bson.M{"delete_info.content_id": bson.M{"$exists": true}, "delete_info.content_kind": "group"},
			}},
			Refs: []Ref{
				{Path: "content_id", Shape: Composite, When: &Cond{Path: "content_kind", Equals: "group"}},
				{Path: "delete_info.content_id", Shape: Composite, When: &Cond{Path: "delete_info.content_kind", Equals: "group"}},
			},
		},
	)}
}
