package chunker

import (
	"fmt"
	"strings"
	"testing"

	"codepilot/internal/domain"
)

func numberedLines(n int) string {
	lines := make([]string, n)
	for i := range lines {
		lines[i] = fmt.Sprintf("line %d", i+1)
	}
	return strings.Join(lines, "\n")
}

func TestLineChunkerBasic(t *testing.T) {
	chunker := NewLineChunker(4, 0)

	doc := domain.Document{ID: "doc1", Path: "/test/file.go", Text: numberedLines(10)}
	windows := chunker.Chunk(doc)

	if len(windows) != 3 {
		t.Fatalf("expected 3 windows, got %d", len(windows))
	}

	expected := [][2]int{{1, 4}, {5, 8}, {9, 10}}
	for i, w := range windows {
		if w.ID == "" {
			t.Error("window has empty ID")
		}
		if w.DocID != "doc1" {
			t.Errorf("expected DocID 'doc1', got '%s'", w.DocID)
		}
		if w.StartLine != expected[i][0] || w.EndLine != expected[i][1] {
			t.Errorf("window %d: expected lines %d-%d, got %d-%d",
				i, expected[i][0], expected[i][1], w.StartLine, w.EndLine)
		}
	}

	if !strings.HasPrefix(windows[1].Text, "line 5\n") {
		t.Errorf("unexpected text for second window: %q", windows[1].Text)
	}
	if windows[2].Offset() != 8 {
		t.Errorf("expected offset 8, got %d", windows[2].Offset())
	}
}

func TestLineChunkerOverlap(t *testing.T) {
	chunker := NewLineChunker(4, 2)

	windows := chunker.Chunk(domain.Document{ID: "doc1", Text: numberedLines(8)})
	if len(windows) < 2 {
		t.Fatalf("need at least 2 windows, got %d", len(windows))
	}

	for i := 0; i < len(windows)-1; i++ {
		current := windows[i]
		next := windows[i+1]

		if next.StartLine != current.EndLine-1 {
			t.Errorf("window %d ends at %d but window %d starts at %d",
				i, current.EndLine, i+1, next.StartLine)
		}
	}
	if last := windows[len(windows)-1]; last.EndLine != 8 {
		t.Errorf("last window should end at line 8, got %d", last.EndLine)
	}
}

func TestLineChunkerSingleLine(t *testing.T) {
	chunker := NewLineChunker(50, 10)

	content := "Just a single line of code"
	windows := chunker.Chunk(domain.Document{ID: "doc1", Text: content})

	if len(windows) != 1 {
		t.Fatalf("expected 1 window for single line, got %d", len(windows))
	}
	if windows[0].Text != content {
		t.Errorf("expected window text to match content")
	}
	if windows[0].StartLine != 1 || windows[0].EndLine != 1 {
		t.Errorf("expected lines 1-1, got %d-%d", windows[0].StartLine, windows[0].EndLine)
	}
}

func TestLineChunkerNeedsSplit(t *testing.T) {
	chunker := NewLineChunker(3, 0)

	if chunker.NeedsSplit(numberedLines(3)) {
		t.Error("3 lines fit in one window")
	}
	if !chunker.NeedsSplit(numberedLines(4)) {
		t.Error("4 lines need two windows")
	}
}

func TestLineChunkerStableIDs(t *testing.T) {
	chunker := NewLineChunker(2, 0)
	doc := domain.Document{ID: "doc1", Text: numberedLines(4)}

	a := chunker.Chunk(doc)
	b := chunker.Chunk(doc)
	for i := range a {
		if a[i].ID != b[i].ID {
			t.Errorf("window %d: IDs differ between runs", i)
		}
	}
	if a[0].ID == a[1].ID {
		t.Error("distinct windows share an ID")
	}
}
