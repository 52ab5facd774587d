package render

import (
	"html"
	"html/template"
	"regexp"
	"strings"
)

var (
	headingLine = regexp.MustCompile(`^(#{1,6})\s+(.*)$`)
	listLine    = regexp.MustCompile(`^\s*[-*]\s+(.*)$`)
	inlineCode  = regexp.MustCompile("`([^`]+)`")
	boldText    = regexp.MustCompile(`\*\*([^*]+)\*\*`)
)

// Markdown converts the subset of markdown models produce (headings, lists,
// fenced code, inline code, bold, paragraphs) to HTML. All text is escaped
// before any tag is added.
func Markdown(src string) template.HTML {
	var out strings.Builder
	var para []string
	inList := false
	inFence := false
	fenceLang := ""
	var fence []string

	flushPara := func() {
		if len(para) > 0 {
			out.WriteString("<p>" + inline(strings.Join(para, " ")) + "</p>\n")
			para = nil
		}
	}
	closeList := func() {
		if inList {
			out.WriteString("</ul>\n")
			inList = false
		}
	}

	for _, line := range strings.Split(strings.ReplaceAll(src, "\r\n", "\n"), "\n") {
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "```") {
			if inFence {
				class := ""
				if fenceLang != "" {
					class = ` class="language-` + html.EscapeString(fenceLang) + `"`
				}
				out.WriteString("<pre><code" + class + ">" + html.EscapeString(strings.Join(fence, "\n")) + "</code></pre>\n")
				inFence, fence, fenceLang = false, nil, ""
				continue
			}
			flushPara()
			closeList()
			inFence = true
			fenceLang = strings.TrimSpace(strings.TrimPrefix(trimmed, "```"))
			continue
		}
		if inFence {
			fence = append(fence, line)
			continue
		}

		if trimmed == "" {
			flushPara()
			closeList()
			continue
		}
		if m := headingLine.FindStringSubmatch(trimmed); m != nil {
			flushPara()
			closeList()
			level := string(rune('0' + len(m[1])))
			out.WriteString("<h" + level + ">" + inline(m[2]) + "</h" + level + ">\n")
			continue
		}
		if m := listLine.FindStringSubmatch(line); m != nil {
			flushPara()
			if !inList {
				out.WriteString("<ul>\n")
				inList = true
			}
			out.WriteString("<li>" + inline(m[1]) + "</li>\n")
			continue
		}
		closeList()
		para = append(para, trimmed)
	}

	if inFence {
		out.WriteString("<pre><code>" + html.EscapeString(strings.Join(fence, "\n")) + "</code></pre>\n")
	}
	flushPara()
	closeList()

	return template.HTML(out.String())
}

func inline(text string) string {
	escaped := html.EscapeString(text)
	escaped = inlineCode.ReplaceAllString(escaped, "<code>$1</code>")
	return boldText.ReplaceAllString(escaped, "<strong>$1</strong>")
}
