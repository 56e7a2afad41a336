package formats

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/arthur-debert/refshift/patch"
)

func noop(io.Writer, Preview) error { return nil }

func noopSummary(io.Writer, Summary) error { return nil }

func TestRegister(t *testing.T) {
	// Save original registry
	originalRegistry := registry
	defer func() { registry = originalRegistry }()

	// Clear registry for testing
	registry = make(map[string]*OutputFormat)

	tests := []struct {
		name      string
		format    *OutputFormat
		wantError bool
		errorMsg  string
	}{
		{
			name:   "valid format",
			format: &OutputFormat{Name: "test-format", Preview: noop, Summary: noopSummary},
		},
		{
			name:      "invalid name with uppercase",
			format:    &OutputFormat{Name: "TestFormat", Preview: noop, Summary: noopSummary},
			wantError: true,
			errorMsg:  "invalid format name",
		},
		{
			name:      "invalid name with special chars",
			format:    &OutputFormat{Name: "test@format", Preview: noop, Summary: noopSummary},
			wantError: true,
			errorMsg:  "invalid format name",
		},
		{
			name:      "empty name",
			format:    &OutputFormat{Name: "", Preview: noop, Summary: noopSummary},
			wantError: true,
			errorMsg:  "invalid format name",
		},
		{
			name:      "missing renderer",
			format:    &OutputFormat{Name: "half", Preview: noop},
			wantError: true,
			errorMsg:  "must define both",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Register(tt.format)

			if tt.wantError {
				if err == nil {
					t.Errorf("expected error but got none")
				} else if tt.errorMsg != "" && !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("expected error containing %q, got %q", tt.errorMsg, err.Error())
				}
			} else if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}

	t.Run("duplicate format", func(t *testing.T) {
		format := &OutputFormat{Name: "duplicate", Preview: noop, Summary: noopSummary}
		if err := Register(format); err != nil {
			t.Fatalf("first registration failed: %v", err)
		}
		err := Register(format)
		if err == nil || !strings.Contains(err.Error(), "already registered") {
			t.Errorf("expected 'already registered' error, got %v", err)
		}
	})
}

func TestGet(t *testing.T) {
	for _, name := range []string{"text", "json"} {
		if _, err := Get(name); err != nil {
			t.Errorf("built-in format %q missing: %v", name, err)
		}
	}
	if _, err := Get("xml"); err == nil {
		t.Error("expected error for unknown format")
	}
	if got := List(); len(got) != 2 || got[0] != "json" || got[1] != "text" {
		t.Errorf("unexpected format list %v", got)
	}
}

func samplePreview() Preview {
	return Preview{
		Collection: "activities",
		ID:         int32(12),
		Patch: patch.Patch{
			{Path: patch.ParsePath("content_id"), Old: "5-3", Value: "105-3"},
			{Path: patch.ParsePath("user_id"), Old: int32(4), Value: int32(104)},
		},
	}
}

func TestTextPreview(t *testing.T) {
	var buf bytes.Buffer
	if err := Text.Preview(&buf, samplePreview()); err != nil {
		t.Fatal(err)
	}

	expected := "activities _id=12\n" +
		"  content_id: \"5-3\" -> \"105-3\"\n" +
		"  user_id: 4 -> 104\n"
	if buf.String() != expected {
		t.Errorf("expected:\n%s\ngot:\n%s", expected, buf.String())
	}
}

func TestTextSummary(t *testing.T) {
	var buf bytes.Buffer
	err := Text.Summary(&buf, Summary{
		Title: "decks",
		Rows:  []Row{{"inspected", int64(10)}, {"patched", int64(2)}},
	})
	if err != nil {
		t.Fatal(err)
	}

	expected := "decks\n  inspected:  10\n  patched:    2\n"
	if buf.String() != expected {
		t.Errorf("expected %q, got %q", expected, buf.String())
	}
}

func TestJSONPreview(t *testing.T) {
	var buf bytes.Buffer
	if err := JSON.Preview(&buf, samplePreview()); err != nil {
		t.Fatal(err)
	}

	var decoded bson.M
	if err := bson.UnmarshalExtJSON(bytes.TrimSpace(buf.Bytes()), false, &decoded); err != nil {
		t.Fatalf("output is not extended JSON: %v", err)
	}
	set, ok := decoded["set"].(bson.M)
	if !ok {
		t.Fatalf("missing set in %v", decoded)
	}
	content, ok := set["content_id"].(bson.M)
	if !ok || content["new"] != "105-3" || content["old"] != "5-3" {
		t.Errorf("unexpected content_id entry %v", set["content_id"])
	}
	if !strings.HasSuffix(buf.String(), "\n") {
		t.Error("expected one object per line")
	}
}
