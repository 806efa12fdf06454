package discovery

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

var markdown = goldmark.New(goldmark.WithExtensions(extension.Table))

// parseMarkdown extracts rows from GFM tables. The text of the closest
// preceding heading becomes the category of each row.
func (p *Parser) parseMarkdown(src []byte) []Function {
	doc := markdown.Parser().Parse(text.NewReader(src))

	var (
		out      []Function
		category string
	)
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Heading:
			category = cleanHeading(nodeText(node, src))
			return ast.WalkSkipChildren, nil
		case *east.Table:
			out = append(out, p.markdownTable(node, src, category)...)
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return out
}

func (p *Parser) markdownTable(table *east.Table, src []byte, category string) []Function {
	var (
		layout tableLayout
		ok     bool
		out    []Function
	)
	for child := table.FirstChild(); child != nil; child = child.NextSibling() {
		cells := cellTexts(child, src)
		switch child.(type) {
		case *east.TableHeader:
			layout, ok = newTableLayout(cells)
			if !ok {
				return nil
			}
		case *east.TableRow:
			if layout == nil {
				return nil
			}
			if fn, ok := p.row(layout, cells, category); ok {
				out = append(out, fn)
			}
		}
	}
	return out
}

func cellTexts(row ast.Node, src []byte) []string {
	var cells []string
	for c := row.FirstChild(); c != nil; c = c.NextSibling() {
		if _, ok := c.(*east.TableCell); ok {
			cells = append(cells, nodeText(c, src))
		}
	}
	return cells
}

// nodeText concatenates the literal text below n, including code spans
// and link labels.
func nodeText(n ast.Node, src []byte) string {
	var b strings.Builder
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := c.(type) {
		case *ast.Text:
			b.Write(t.Segment.Value(src))
			if t.SoftLineBreak() || t.HardLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(t.Value)
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(b.String())
}
