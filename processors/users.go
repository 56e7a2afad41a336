package processors

type usersProcessor struct {
	table
}

// Users returns the processor for the users collection.
//
// Every dependent is scanned in full: user references appear in almost every
// document. Usergroups created by old clients store the creator as a bare id
// instead of {userid}; those are repaired on rewrite.
func Users() Processor {
	return usersProcessor{newTable("users",
		Dependent{
			Collection: "usergroups",
			Refs: []Ref{
				{Path: "creator", Shape: Legacy, Key: "userid"},
				{Path: "members.*.userid"},
			},
		},
		Dependent{
			Collection: "decks",
			Refs: []Ref{
				{Path: "user"},
				{Path: "origin.user"},
				{Path: "contributors.*.user"},
				{Path: "editors.users.*.id"},
				{Path: "revisions.*.user"},
			},
		},
		Dependent{
			Collection: "slides",
			Refs: []Ref{
				{Path: "user"},
				{Path: "contributors.*.user"},
				{Path: "revisions.*.user"},
			},
		},
		Dependent{
			Collection: "tags",
			Refs:       []Ref{{Path: "user"}},
		},
		Dependent{
			Collection: "deckchanges",
			Refs:       []Ref{{Path: "user"}},
		},
		Dependent{
			Collection: "discussions",
			Refs:       []Ref{{Path: "user_id", Shape: Composite}},
		},
		Dependent{
			Collection: "activities",
			Refs: []Ref{
				{Path: "user_id", Shape: Composite},
				{Path: "content_owner_id", Shape: Composite},
			},
		},
		Dependent{
			Collection: "media",
			Refs:       []Ref{{Path: "owner"}},
		},
	)}
}
