package chunker

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"codepilot/internal/domain"
)

// Window is a contiguous run of document lines sent to the model as one
// request. StartLine and EndLine are 1-indexed and inclusive.
type Window struct {
	ID        string
	DocID     string
	StartLine int
	EndLine   int
	Text      string
}

// Offset is the number of lines preceding the window in its document.
func (w Window) Offset() int {
	return w.StartLine - 1
}

type LineChunker struct {
	maxLines int
	overlap  int
}

// NewLineChunker splits documents into windows of at most maxLines lines,
// each repeating the last overlap lines of the previous one.
func NewLineChunker(maxLines, overlap int) *LineChunker {
	if maxLines <= 0 {
		maxLines = 1000
	}
	if overlap < 0 || overlap >= maxLines {
		overlap = 0
	}
	return &LineChunker{
		maxLines: maxLines,
		overlap:  overlap,
	}
}

// NeedsSplit reports whether text is longer than one window.
func (c *LineChunker) NeedsSplit(text string) bool {
	return strings.Count(text, "\n")+1 > c.maxLines
}

func (c *LineChunker) Chunk(doc domain.Document) []Window {
	lines := strings.Split(doc.Text, "\n")

	var windows []Window
	startLine := 0

	for startLine < len(lines) {
		endLine := startLine + c.maxLines
		if endLine > len(lines) {
			endLine = len(lines)
		}

		windows = append(windows, Window{
			ID:        windowID(doc.ID, startLine, endLine),
			DocID:     doc.ID,
			StartLine: startLine + 1,
			EndLine:   endLine,
			Text:      strings.Join(lines[startLine:endLine], "\n"),
		})

		if endLine == len(lines) {
			break
		}
		newStart := endLine - c.overlap
		if newStart <= startLine {
			newStart = startLine + 1
		}
		startLine = newStart
	}

	return windows
}

func windowID(docID string, startLine, endLine int) string {
	data := fmt.Sprintf("%s:%d-%d", docID, startLine, endLine)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:8])
}
