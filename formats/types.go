// Package formats renders dry-run previews and run summaries.
package formats

import (
	"fmt"
	"io"
	"sort"

	"github.com/arthur-debert/refshift/patch"
)

// Preview is the would-be update of one document
type Preview struct {
	Collection string
	ID         interface{}
	Patch      patch.Patch
}

// Row is one labelled value of a Summary
type Row struct {
	Label string
	Value interface{}
}

// Summary is a titled list of counters
type Summary struct {
	Title string
	Rows  []Row
}

// OutputFormat defines how previews and summaries are written
type OutputFormat struct {
	// Name is the format identifier (alphanumeric, dashes, underscores, lowercase)
	Name string

	// Preview writes one document preview
	Preview func(w io.Writer, p Preview) error

	// Summary writes a run summary
	Summary func(w io.Writer, s Summary) error
}

// registry holds all available output formats
var registry = make(map[string]*OutputFormat)

func init() {
	for _, f := range []*OutputFormat{Text, JSON} {
		if err := Register(f); err != nil {
			panic(err)
		}
	}
}

// Register adds a new output format to the registry
func Register(format *OutputFormat) error {
	// Validate format name (alphanumeric, dashes, underscores, lowercase)
	if !isValidFormatName(format.Name) {
		return fmt.Errorf("invalid format name %q: must be lowercase alphanumeric with dashes and underscores only", format.Name)
	}

	if format.Preview == nil || format.Summary == nil {
		return fmt.Errorf("format %q must define both Preview and Summary", format.Name)
	}

	// Check if format already exists
	if _, exists := registry[format.Name]; exists {
		return fmt.Errorf("format %q already registered", format.Name)
	}

	registry[format.Name] = format
	return nil
}

// Get returns an output format by name
func Get(name string) (*OutputFormat, error) {
	format, exists := registry[name]
	if !exists {
		return nil, fmt.Errorf("unknown format %q", name)
	}
	return format, nil
}

// List returns all registered format names, sorted
func List() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// isValidFormatName checks if a format name is valid
func isValidFormatName(name string) bool {
	if name == "" {
		return false
	}

	for _, r := range name {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '-' && r != '_' {
			return false
		}
	}
	return true
}
