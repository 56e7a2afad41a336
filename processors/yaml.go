package processors

import (
	"fmt"
	"io"

	"go.mongodb.org/mongo-driver/bson"
	"gopkg.in/yaml.v3"

	"github.com/arthur-debert/refshift/types"
)

// File declares extra root collections in YAML:
//
//	roots:
//	  - collection: media
//	    dependents:
//	      - collection: decks
//	        filter: {theme.media: {$exists: true}}
//	        refs:
//	          - path: theme.media
//	          - path: items.*.ref
//	            shape: composite
//	            when: {path: items.*.kind, equals: media}
type File struct {
	Roots []RootSpec `yaml:"roots"`
}

// RootSpec is one root collection of a processors file
type RootSpec struct {
	Collection string          `yaml:"collection"`
	Dependents []DependentSpec `yaml:"dependents"`
}

// DependentSpec is the YAML form of a Dependent
type DependentSpec struct {
	Collection string                 `yaml:"collection"`
	Filter     map[string]interface{} `yaml:"filter,omitempty"`
	Refs       []RefSpec              `yaml:"refs"`
}

// RefSpec is the YAML form of a Ref
type RefSpec struct {
	Path  string `yaml:"path"`
	Shape string `yaml:"shape,omitempty"`
	Key   string `yaml:"key,omitempty"`
	When  *Cond  `yaml:"when,omitempty"`
}

// declared is a processor loaded from a processors file
type declared struct {
	table
}

// LoadYAML reads processor declarations
func LoadYAML(r io.Reader) ([]Processor, error) {
	var f File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to decode processors file: %w", err)
	}

	procs := make([]Processor, 0, len(f.Roots))
	for _, root := range f.Roots {
		p, err := root.build()
		if err != nil {
			return nil, err
		}
		procs = append(procs, p)
	}
	return procs, nil
}

func (rs RootSpec) build() (Processor, error) {
	if rs.Collection == "" {
		return nil, fmt.Errorf("root without collection name")
	}

	deps := make([]Dependent, 0, len(rs.Dependents))
	for _, ds := range rs.Dependents {
		if ds.Collection == "" {
			return nil, fmt.Errorf("root %q: dependent without collection name", rs.Collection)
		}
		dep := Dependent{Collection: ds.Collection}
		if len(ds.Filter) > 0 {
			dep.Filter = types.CloneDocument(bson.M(ds.Filter))
		}
		for _, spec := range ds.Refs {
			ref, err := spec.build()
			if err != nil {
				return nil, fmt.Errorf("root %q, dependent %q: %w", rs.Collection, ds.Collection, err)
			}
			dep.Refs = append(dep.Refs, ref)
		}
		deps = append(deps, dep)
	}

	return declared{newTable(rs.Collection, deps...)}, nil
}

func (rs RefSpec) build() (Ref, error) {
	if rs.Path == "" {
		return Ref{}, fmt.Errorf("ref without path")
	}
	ref := Ref{Path: rs.Path, Key: rs.Key, When: rs.When}
	switch rs.Shape {
	case "", "numeric":
		ref.Shape = Numeric
	case "composite":
		ref.Shape = Composite
	case "legacy":
		if rs.Key == "" {
			return Ref{}, fmt.Errorf("legacy ref %q needs a key", rs.Path)
		}
		ref.Shape = Legacy
	default:
		return Ref{}, fmt.Errorf("ref %q: unknown shape %q", rs.Path, rs.Shape)
	}
	if ref.When != nil && ref.When.Path == "" {
		return Ref{}, fmt.Errorf("ref %q: condition without path", rs.Path)
	}
	return ref, nil
}
