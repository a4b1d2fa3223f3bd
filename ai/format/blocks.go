// Package format renders assistant markdown into the platform's dual
// representation: the unmodified text plus a block-structured layout for
// rich rendering.
package format

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Block types understood by the platform.
const (
	BlockHeader  = "header"
	BlockSection = "section"
	BlockDivider = "divider"
	BlockContext = "context"
)

// Text object types.
const (
	TextPlain    = "plain_text"
	TextMarkdown = "mrkdwn"
)

// TextObject is the text payload of a header/section/context block.
type TextObject struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Block is one structured UI element of a platform message.
type Block struct {
	Type string      `json:"type"`
	Text *TextObject `json:"text,omitempty"`
}

// Response is the dual-surface reply: Text always carries the source
// markdown unchanged; Blocks is present only when block rendering was
// requested.
type Response struct {
	Text   string  `json:"text"`
	Blocks []Block `json:"blocks,omitempty"`
}

var markdown = goldmark.New()

// Format produces the response surfaces for a markdown-ish source string.
// Headings open sections: each becomes a header block followed by a
// section block with the raw body beneath it, sections separated by
// dividers with no trailing divider.
func Format(source string, includeBlocks bool) *Response {
	resp := &Response{Text: source}
	if !includeBlocks {
		return resp
	}
	resp.Blocks = toBlocks(source)
	return resp
}

// FormatError renders an error card: a fixed "Error" header over the
// message body.
func FormatError(message string) *Response {
	return &Response{
		Text: message,
		Blocks: []Block{
			{Type: BlockHeader, Text: &TextObject{Type: TextPlain, Text: "Error"}},
			{Type: BlockSection, Text: &TextObject{Type: TextMarkdown, Text: message}},
		},
	}
}

type headingSpan struct {
	text      string
	lineStart int // offset of the heading line's first byte
	bodyStart int // offset just past the heading line
}

// toBlocks splits the source on heading lines. Goldmark locates the
// headings so that # characters inside fenced code are not mistaken for
// headers; section bodies are raw source slices, keeping the author's
// markdown verbatim.
func toBlocks(source string) []Block {
	src := []byte(source)
	root := markdown.Parser().Parse(text.NewReader(src))

	var headings []headingSpan
	for node := root.FirstChild(); node != nil; node = node.NextSibling() {
		heading, ok := node.(*ast.Heading)
		if !ok || heading.Lines().Len() == 0 {
			continue
		}
		seg := heading.Lines().At(0)
		lineStart := seg.Start
		for lineStart > 0 && src[lineStart-1] != '\n' {
			lineStart--
		}
		bodyStart := seg.Stop
		for bodyStart < len(src) && src[bodyStart] != '\n' {
			bodyStart++
		}
		if bodyStart < len(src) {
			bodyStart++
		}
		headings = append(headings, headingSpan{
			text:      nodeText(heading, src),
			lineStart: lineStart,
			bodyStart: bodyStart,
		})
	}

	var blocks []Block
	appendSection := func(raw string) {
		body := strings.TrimSpace(raw)
		if body == "" {
			return
		}
		blocks = append(blocks, Block{
			Type: BlockSection,
			Text: &TextObject{Type: TextMarkdown, Text: body},
		})
	}

	if len(headings) == 0 {
		appendSection(source)
		return blocks
	}

	// Preamble ahead of the first heading renders as a bare section.
	appendSection(source[:headings[0].lineStart])

	for i, h := range headings {
		if len(blocks) > 0 {
			blocks = append(blocks, Block{Type: BlockDivider})
		}
		blocks = append(blocks, Block{
			Type: BlockHeader,
			Text: &TextObject{Type: TextPlain, Text: h.text},
		})
		end := len(source)
		if i+1 < len(headings) {
			end = headings[i+1].lineStart
		}
		appendSection(source[h.bodyStart:end])
	}
	return blocks
}

// nodeText extracts the plain text content of an inline container.
func nodeText(n ast.Node, src []byte) string {
	var sb strings.Builder
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch t := c.(type) {
		case *ast.Text:
			sb.Write(t.Segment.Value(src))
		default:
			sb.WriteString(nodeText(c, src))
		}
	}
	return strings.TrimSpace(sb.String())
}
