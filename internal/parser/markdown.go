package parser

import (
	"bytes"
	"io"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// MarkdownExtractor renders Markdown to plain text using goldmark's AST.
// Every top-level block, headings included, becomes one text block.
type MarkdownExtractor struct{}

func (p *MarkdownExtractor) Extract(r io.Reader, filename string) (string, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}

	doc := goldmark.New().Parser().Parse(text.NewReader(src))

	var blocks []string
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		switch n.Kind() {
		case ast.KindList:
			for item := n.FirstChild(); item != nil; item = item.NextSibling() {
				blocks = append(blocks, blockText(item, src))
			}
		case ast.KindThematicBreak, ast.KindHTMLBlock:
		default:
			blocks = append(blocks, blockText(n, src))
		}
	}
	return joinBlocks(blocks), nil
}

// blockText gets the text content of a goldmark AST node. Leaf blocks such
// as code blocks carry their text in Lines; everything else in inline children.
func blockText(n ast.Node, src []byte) string {
	var buf bytes.Buffer
	writeText(&buf, n, src)
	return strings.TrimSpace(buf.String())
}

func writeText(buf *bytes.Buffer, n ast.Node, src []byte) {
	if n.ChildCount() == 0 && n.Type() == ast.TypeBlock {
		lines := n.Lines()
		for i := 0; i < lines.Len(); i++ {
			line := lines.At(i)
			buf.Write(line.Value(src))
		}
		return
	}
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch t := c.(type) {
		case *ast.Text:
			buf.Write(t.Value(src))
			if t.HardLineBreak() || t.SoftLineBreak() {
				buf.WriteByte('\n')
			}
		case *ast.String:
			buf.Write(t.Value)
		default:
			if c.Type() == ast.TypeBlock && buf.Len() > 0 {
				buf.WriteByte('\n')
			}
			writeText(buf, c, src)
		}
	}
}
