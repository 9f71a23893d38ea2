package summarize

import (
	"bytes"
	"regexp"
	"strconv"
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/util"
)

// PlainRenderer renders markdown to plain text: markers are dropped,
// list items become bullets and tables become aligned text.
type PlainRenderer struct{}

// NewPlainRenderer creates a goldmark renderer producing plain text.
func NewPlainRenderer() renderer.Renderer {
	return renderer.NewRenderer(
		renderer.WithNodeRenderers(
			util.Prioritized(&PlainRenderer{}, 100),
		),
	)
}

// RegisterFuncs registers rendering functions for node types
func (r *PlainRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	// Block elements
	reg.Register(ast.KindDocument, r.renderContinue)
	reg.Register(ast.KindParagraph, r.renderParagraph)
	reg.Register(ast.KindHeading, r.renderHeading)
	reg.Register(ast.KindCodeBlock, r.renderCodeBlock)
	reg.Register(ast.KindFencedCodeBlock, r.renderCodeBlock)
	reg.Register(ast.KindBlockquote, r.renderContinue)
	reg.Register(ast.KindList, r.renderList)
	reg.Register(ast.KindListItem, r.renderListItem)
	reg.Register(ast.KindThematicBreak, r.renderThematicBreak)
	reg.Register(ast.KindHTMLBlock, r.renderSkip)

	// Inline elements
	reg.Register(ast.KindText, r.renderText)
	reg.Register(ast.KindString, r.renderString)
	reg.Register(ast.KindEmphasis, r.renderContinue)
	reg.Register(ast.KindCodeSpan, r.renderContinue)
	reg.Register(ast.KindLink, r.renderLink)
	reg.Register(ast.KindAutoLink, r.renderAutoLink)
	reg.Register(ast.KindImage, r.renderSkip)
	reg.Register(ast.KindRawHTML, r.renderSkip)

	// GFM
	reg.Register(east.KindTable, r.renderTable)
	reg.Register(east.KindStrikethrough, r.renderContinue)
	reg.Register(east.KindTaskCheckBox, r.renderTaskCheckBox)
}

func (r *PlainRenderer) renderContinue(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	return ast.WalkContinue, nil
}

func (r *PlainRenderer) renderSkip(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	return ast.WalkSkipChildren, nil
}

func (r *PlainRenderer) renderParagraph(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		if _, inItem := node.Parent().(*ast.ListItem); inItem && node.NextSibling() == nil {
			return ast.WalkContinue, nil
		}
		w.WriteString("\n\n")
	}
	return ast.WalkContinue, nil
}

func (r *PlainRenderer) renderHeading(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		w.WriteString("\n\n")
	}
	return ast.WalkContinue, nil
}

func (r *PlainRenderer) renderCodeBlock(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if entering {
		lines := node.Lines()
		for i := 0; i < lines.Len(); i++ {
			line := lines.At(i)
			w.Write(line.Value(source))
		}
		w.WriteString("\n")
	}
	return ast.WalkSkipChildren, nil
}

func (r *PlainRenderer) renderThematicBreak(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if entering {
		w.WriteString("\n")
	}
	return ast.WalkContinue, nil
}

func (r *PlainRenderer) renderList(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	_, nested := node.Parent().(*ast.ListItem)
	if entering && nested {
		w.WriteString("\n")
	}
	if !entering && !nested {
		w.WriteString("\n")
	}
	return ast.WalkContinue, nil
}

func (r *PlainRenderer) renderListItem(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		if _, endsWithList := node.LastChild().(*ast.List); !endsWithList {
			w.WriteString("\n")
		}
		return ast.WalkContinue, nil
	}

	list, _ := node.Parent().(*ast.List)
	w.WriteString(strings.Repeat("  ", listDepth(node)-1))
	if list != nil && list.IsOrdered() {
		n := list.Start
		for s := node.PreviousSibling(); s != nil; s = s.PreviousSibling() {
			n++
		}
		w.WriteString(strconv.Itoa(n) + ". ")
	} else {
		w.WriteString("• ")
	}
	return ast.WalkContinue, nil
}

func listDepth(node ast.Node) int {
	depth := 0
	for p := node.Parent(); p != nil; p = p.Parent() {
		if _, ok := p.(*ast.List); ok {
			depth++
		}
	}
	if depth < 1 {
		depth = 1
	}
	return depth
}

func (r *PlainRenderer) renderText(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if entering {
		n := node.(*ast.Text)
		w.Write(n.Segment.Value(source))
		if n.SoftLineBreak() || n.HardLineBreak() {
			w.WriteString("\n")
		}
	}
	return ast.WalkContinue, nil
}

func (r *PlainRenderer) renderString(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if entering {
		w.Write(node.(*ast.String).Value)
	}
	return ast.WalkContinue, nil
}

func (r *PlainRenderer) renderLink(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	n := node.(*ast.Link)
	if !entering && len(n.Destination) > 0 {
		w.WriteString(" (")
		w.Write(n.Destination)
		w.WriteString(")")
	}
	return ast.WalkContinue, nil
}

func (r *PlainRenderer) renderAutoLink(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if entering {
		w.Write(node.(*ast.AutoLink).URL(source))
	}
	return ast.WalkSkipChildren, nil
}

func (r *PlainRenderer) renderTaskCheckBox(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if entering {
		if node.(*east.TaskCheckBox).IsChecked {
			w.WriteString("[x] ")
		} else {
			w.WriteString("[ ] ")
		}
	}
	return ast.WalkContinue, nil
}

func (r *PlainRenderer) renderTable(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if entering {
		r.renderTableAsText(w, source, node)
		w.WriteString("\n")
	}
	return ast.WalkSkipChildren, nil
}

// renderTableAsText pads cells by display width so emoji and CJK align.
func (r *PlainRenderer) renderTableAsText(w util.BufWriter, source []byte, table ast.Node) {
	var colWidths []int
	for row := table.FirstChild(); row != nil; row = row.NextSibling() {
		col := 0
		for cell := row.FirstChild(); cell != nil; cell = cell.NextSibling() {
			width := runewidth.StringWidth(cellText(source, cell))
			if col >= len(colWidths) {
				colWidths = append(colWidths, width)
			} else if width > colWidths[col] {
				colWidths[col] = width
			}
			col++
		}
	}

	isHeader := true
	for row := table.FirstChild(); row != nil; row = row.NextSibling() {
		col := 0
		var line strings.Builder
		for cell := row.FirstChild(); cell != nil; cell = cell.NextSibling() {
			if col > 0 {
				line.WriteString("  ")
			}
			line.WriteString(runewidth.FillRight(cellText(source, cell), colWidths[col]))
			col++
		}
		w.WriteString(strings.TrimRight(line.String(), " "))
		w.WriteString("\n")

		if isHeader {
			for i, width := range colWidths {
				if i > 0 {
					w.WriteString("  ")
				}
				w.WriteString(strings.Repeat("-", width))
			}
			w.WriteString("\n")
			isHeader = false
		}
	}
}

func cellText(source []byte, cell ast.Node) string {
	var buf bytes.Buffer
	for child := cell.FirstChild(); child != nil; child = child.NextSibling() {
		extractText(&buf, source, child)
	}
	return strings.TrimSpace(buf.String())
}

func extractText(buf *bytes.Buffer, source []byte, node ast.Node) {
	switch n := node.(type) {
	case *ast.Text:
		buf.Write(n.Segment.Value(source))
	case *ast.String:
		buf.Write(n.Value)
	default:
		for child := node.FirstChild(); child != nil; child = child.NextSibling() {
			extractText(buf, source, child)
		}
	}
}

var (
	blankRuns      = regexp.MustCompile(`\n{3,}`)
	trailingSpaces = regexp.MustCompile(`[ \t]+\n`)
)

// PlainText converts model markdown to plain text. If conversion fails the
// input is returned trimmed.
func PlainText(markdown string) string {
	if strings.TrimSpace(markdown) == "" {
		return ""
	}

	md := goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRenderer(NewPlainRenderer()),
	)

	var buf bytes.Buffer
	if err := md.Convert([]byte(markdown), &buf); err != nil {
		return strings.TrimSpace(markdown)
	}

	out := trailingSpaces.ReplaceAllString(buf.String(), "\n")
	out = blankRuns.ReplaceAllString(out, "\n\n")
	out = strings.TrimSpace(out)
	if out == "" {
		return strings.TrimSpace(markdown)
	}
	return out
}
