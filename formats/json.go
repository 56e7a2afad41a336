package formats

import (
	"io"

	"go.mongodb.org/mongo-driver/bson"
)

// JSON writes one relaxed extended JSON object per line
var JSON = &OutputFormat{
	Name: "json",
	Preview: func(w io.Writer, p Preview) error {
		set := make(bson.D, 0, len(p.Patch))
		for _, s := range p.Patch {
			set = append(set, bson.E{Key: s.Path.String(), Value: bson.D{
				{Key: "old", Value: s.Old},
				{Key: "new", Value: s.Value},
			}})
		}
		return writeLine(w, bson.D{
			{Key: "collection", Value: p.Collection},
			{Key: "_id", Value: p.ID},
			{Key: "set", Value: set},
		})
	},
	Summary: func(w io.Writer, s Summary) error {
		rows := make(bson.D, 0, len(s.Rows))
		for _, r := range s.Rows {
			rows = append(rows, bson.E{Key: r.Label, Value: r.Value})
		}
		return writeLine(w, bson.D{
			{Key: "title", Value: s.Title},
			{Key: "rows", Value: rows},
		})
	},
}

func writeLine(w io.Writer, doc bson.D) error {
	out, err := bson.MarshalExtJSON(doc, false, false)
	if err != nil {
		return err
	}
	_, err = w.Write(append(out, '\n'))
	return err
}
