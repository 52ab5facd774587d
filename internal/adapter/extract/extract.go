// Package extract recovers structured payloads from free-form model output.
// Nothing here returns an error: absence or malformation is reported as "not
// found" and the caller decides whether that is acceptable.
package extract

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// NoReasoning is returned as the thinking text when the output carries no
// reasoning block.
const NoReasoning = "no explicit reasoning provided"

var (
	fencedJSON = regexp.MustCompile("(?is)```json[ \\t]*\\r?\\n?(.*?)```")
	umlBlock   = regexp.MustCompile(`(?s)@startuml.*?@enduml`)
	thinkBlock = regexp.MustCompile(`(?s)<think>(.*?)</think>`)
	codeFence  = regexp.MustCompile("(?s)```([A-Za-z0-9_+#.-]*)[ \\t]*\\r?\\n(.*?)```")
)

type Kind string

const (
	KindObject Kind = "json-object"
	KindArray  Kind = "json-array"
	KindUML    Kind = "uml"
	KindNone   Kind = "none"
)

// Payload is the tagged result of Extract. Only the field matching Kind is set.
type Payload struct {
	Kind   Kind
	Object map[string]any
	Array  []any
	UML    string
}

// Extract tries an object, then an array, then a UML block.
func Extract(text string) Payload {
	if obj, ok := JSONObject(text); ok {
		return Payload{Kind: KindObject, Object: obj}
	}
	if arr, ok := JSONArray(text); ok {
		return Payload{Kind: KindArray, Array: arr}
	}
	if uml, ok := UML(text); ok {
		return Payload{Kind: KindUML, UML: uml}
	}
	return Payload{Kind: KindNone}
}

// JSONObject returns the first JSON object in text. A fenced ```json block
// wins over bare braces in the surrounding prose.
func JSONObject(text string) (map[string]any, bool) {
	span, ok := balancedSpan(candidate(text), '{', '}')
	if !ok {
		return nil, false
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(span), &obj); err != nil {
		return nil, false
	}
	return obj, true
}

// JSONArray returns the first JSON array in text.
func JSONArray(text string) ([]any, bool) {
	span, ok := balancedSpan(candidate(text), '[', ']')
	if !ok {
		return nil, false
	}
	var arr []any
	if err := json.Unmarshal([]byte(span), &arr); err != nil {
		return nil, false
	}
	return arr, true
}

// DecodeObject decodes the first JSON object in text into v.
func DecodeObject(text string, v any) bool {
	span, ok := balancedSpan(candidate(text), '{', '}')
	if !ok {
		return false
	}
	return json.Unmarshal([]byte(span), v) == nil
}

// UML returns the first @startuml ... @enduml block, sentinels included.
func UML(text string) (string, bool) {
	m := umlBlock.FindString(text)
	if m == "" {
		return "", false
	}
	return m, true
}

// Thinking splits a single <think> block from the rest of the output. When
// there is none, the remainder is text unmodified.
func Thinking(text string) (thinking, remainder string) {
	loc := thinkBlock.FindStringSubmatchIndex(text)
	if loc == nil {
		return NoReasoning, text
	}
	thinking = strings.TrimSpace(text[loc[2]:loc[3]])
	remainder = strings.TrimSpace(text[:loc[0]] + text[loc[1]:])
	return thinking, remainder
}

// LenientJSONObject behaves like JSONObject but runs the candidate span
// through jsonrepair when it does not parse, including spans cut off by a
// truncated response.
func LenientJSONObject(text string) (map[string]any, bool) {
	if obj, ok := JSONObject(text); ok {
		return obj, true
	}
	var obj map[string]any
	if !repairInto(candidate(text), '{', '}', &obj) || obj == nil {
		return nil, false
	}
	return obj, true
}

// LenientJSONArray is the array counterpart of LenientJSONObject.
func LenientJSONArray(text string) ([]any, bool) {
	if arr, ok := JSONArray(text); ok {
		return arr, true
	}
	var arr []any
	if !repairInto(candidate(text), '[', ']', &arr) || arr == nil {
		return nil, false
	}
	return arr, true
}

// LenientDecode decodes the first (possibly repaired) JSON object into v.
func LenientDecode(text string, v any) bool {
	if DecodeObject(text, v) {
		return true
	}
	return repairInto(candidate(text), '{', '}', v)
}

func repairInto(text string, open, close byte, v any) bool {
	span, ok := balancedSpan(text, open, close)
	if !ok {
		start := openerIndex(text, open)
		if start < 0 {
			return false
		}
		span = strings.TrimSpace(text[start:])
	}
	repaired, err := jsonrepair.JSONRepair(span)
	if err != nil {
		return false
	}
	return json.Unmarshal([]byte(repaired), v) == nil
}

// candidate narrows text to the first fenced json block when there is one.
func candidate(text string) string {
	if m := fencedJSON.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return text
}

// balancedSpan returns text from the first opener to its matching closer.
// The scan counts nesting and skips brackets inside string literals, so
// nested structures are neither truncated nor overrun.
func balancedSpan(text string, open, close byte) (string, bool) {
	start := openerIndex(text, open)
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}

// CodeBlock is one fenced block of model output.
type CodeBlock struct {
	Language string
	Code     string
}

// CodeBlocks returns every fenced block in order of appearance.
func CodeBlocks(text string) []CodeBlock {
	var blocks []CodeBlock
	for _, m := range codeFence.FindAllStringSubmatch(text, -1) {
		blocks = append(blocks, CodeBlock{
			Language: strings.ToLower(m[1]),
			Code:     strings.TrimRight(m[2], "\r\n"),
		})
	}
	return blocks
}

func openerIndex(text string, open byte) int {
	return strings.IndexByte(text, open)
}
