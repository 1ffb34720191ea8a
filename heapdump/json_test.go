// ABOUTME: Tests for the JSON stub parser
// ABOUTME: Validates JSON parsing and error handling

package heapdump

import (
	"context"
	"strings"
	"testing"

	"github.com/prateek/heaplens/snapshot"
)

func TestJSONParse(t *testing.T) {
	jsonData := `{
		"objects": [
			{"id": 1, "type": "root", "size": 100, "ptrs": [2]},
			{"id": 2, "type": "child", "size": 50, "ptrs": []}
		],
		"roots": [1]
	}`

	parser := &JSONStub{}
	r := strings.NewReader(jsonData)

	snap, err := parser.Parse(context.Background(), r)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if snap.NumObjects() != 2 {
		t.Errorf("Expected 2 objects, got %d", snap.NumObjects())
	}

	entry := snap.Get(1)
	if entry.Kind != snapshot.EntryObject {
		t.Fatal("Object 1 not found")
	}
	if snap.TypeName(entry.Obj.TypeAddr) != "root" {
		t.Errorf("Expected type 'root', got %s", snap.TypeName(entry.Obj.TypeAddr))
	}
	if entry.Obj.Size != 100 {
		t.Errorf("Expected size 100, got %d", entry.Obj.Size)
	}
	if len(entry.Obj.Referents) != 1 || entry.Obj.Referents[0] != 2 {
		t.Errorf("Expected referents [2], got %v", entry.Obj.Referents)
	}

	threads := snap.Threads()
	if len(threads) != 1 {
		t.Fatalf("Expected 1 synthetic roots thread, got %d", len(threads))
	}
	if got := threads[0].Frames[0].Locals["root0"]; got != 1 {
		t.Errorf("Expected root0 -> 1, got %d", got)
	}
}

func TestJSONSniff(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    bool
	}{
		{
			name:    "Valid JSON object",
			content: `{"objects": [], "roots": []}`,
			want:    true,
		},
		{
			name:    "Leading whitespace",
			content: "\n\t {\"objects\": [{\"id\": 1}]}",
			want:    true,
		},
		{
			name:    "Non-JSON",
			content: `not json at all`,
			want:    false,
		},
		{
			name:    "JSON without objects key",
			content: `{"data": []}`,
			want:    false,
		},
		{
			name:    "Empty",
			content: ``,
			want:    false,
		},
	}

	parser := &JSONStub{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parser.Sniff([]byte(tt.content))
			if got != tt.want {
				t.Errorf("Sniff() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMalformedJSON(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name:    "Invalid JSON syntax",
			content: `{"objects": [}`,
		},
		{
			name:    "Missing required fields",
			content: `{"objects": [{"type": "test"}]}`, // missing id
		},
		{
			name:    "Wrong type for objects",
			content: `{"objects": "not an array", "roots": []}`,
		},
	}

	parser := &JSONStub{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := strings.NewReader(tt.content)
			_, err := parser.Parse(context.Background(), r)
			if err == nil {
				t.Error("Expected error for malformed JSON")
			}
		})
	}
}

func TestJSONWithComplexGraph(t *testing.T) {
	// Test with cycles and multiple roots
	jsonData := `{
		"objects": [
			{"id": 1, "type": "root1", "size": 10, "ptrs": [2, 3]},
			{"id": 2, "type": "node", "size": 20, "ptrs": [3]},
			{"id": 3, "type": "node", "size": 30, "ptrs": [1]},
			{"id": 4, "type": "root2", "size": 40, "ptrs": [2]}
		],
		"roots": [1, 4]
	}`

	parser := &JSONStub{}
	r := strings.NewReader(jsonData)

	snap, err := parser.Parse(context.Background(), r)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if snap.NumObjects() != 4 {
		t.Errorf("Expected 4 objects, got %d", snap.NumObjects())
	}

	threads := snap.Threads()
	if len(threads) != 1 {
		t.Fatalf("Expected 1 synthetic roots thread, got %d", len(threads))
	}
	if len(threads[0].Frames[0].Locals) != 2 {
		t.Errorf("Expected 2 roots, got %d", len(threads[0].Frames[0].Locals))
	}
}
