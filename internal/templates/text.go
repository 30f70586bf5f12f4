package templates

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// InsertFooter places footer before the last closing </div>. Documents without
// one get it before </body>, then before </html>; otherwise it is appended.
func InsertFooter(doc, footer string) string {
	for _, marker := range []string{"</div>", "</body>", "</html>"} {
		if i := lastIndexFold(doc, marker); i >= 0 {
			return doc[:i] + footer + doc[i:]
		}
	}
	return doc + footer
}

// lastIndexFold is strings.LastIndex with ASCII case folding. The offsets
// refer to s itself, which a lowered copy does not guarantee.
func lastIndexFold(s, substr string) int {
	n := len(substr)
	for i := len(s) - n; i >= 0; i-- {
		if asciiEqualFold(s[i:i+n], substr) {
			return i
		}
	}
	return -1
}

func asciiEqualFold(a, b string) bool {
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

var blockElements = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Br: true, atom.Hr: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Ul: true, atom.Ol: true, atom.Li: true,
	atom.Table: true, atom.Tr: true,
	atom.Blockquote: true, atom.Section: true, atom.Header: true, atom.Footer: true,
}

var skippedElements = map[atom.Atom]bool{
	atom.Head: true, atom.Style: true, atom.Script: true, atom.Title: true,
}

// PlainText strips markup from an HTML document. Block elements become line
// breaks, table cells are separated by ": " and link targets are kept after
// the link text.
func PlainText(doc string) string {
	var (
		out   strings.Builder
		line  strings.Builder
		skip  int
		href  string
		label strings.Builder
		inA   bool
	)

	flush := func() {
		text := strings.Join(strings.Fields(line.String()), " ")
		line.Reset()
		out.WriteString(text)
		out.WriteByte('\n')
	}

	z := html.NewTokenizer(strings.NewReader(doc))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}
		tok := z.Token()

		switch tt {
		case html.StartTagToken, html.SelfClosingTagToken:
			if skippedElements[tok.DataAtom] && tt == html.StartTagToken {
				skip++
				continue
			}
			if skip > 0 {
				continue
			}
			switch {
			case blockElements[tok.DataAtom]:
				flush()
			case tok.DataAtom == atom.Td && line.Len() > 0:
				line.WriteString(": ")
			case tok.DataAtom == atom.A:
				inA = true
				href = attr(tok, "href")
				label.Reset()
			}
		case html.EndTagToken:
			if skippedElements[tok.DataAtom] {
				if skip > 0 {
					skip--
				}
				continue
			}
			if skip > 0 {
				continue
			}
			switch {
			case blockElements[tok.DataAtom]:
				flush()
			case tok.DataAtom == atom.A && inA:
				inA = false
				text := strings.TrimSpace(label.String())
				if href != "" && href != text {
					line.WriteString(" (" + href + ")")
				}
			}
		case html.TextToken:
			if skip > 0 {
				continue
			}
			line.WriteString(tok.Data)
			if inA {
				label.WriteString(tok.Data)
			}
		}
	}
	flush()

	return collapseBlankLines(out.String())
}

func attr(tok html.Token, name string) string {
	for _, a := range tok.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

// collapseBlankLines trims every line and keeps at most one empty line
// between paragraphs.
func collapseBlankLines(s string) string {
	var (
		lines []string
		blank bool
	)
	for _, l := range strings.Split(s, "\n") {
		l = strings.TrimSpace(l)
		if l == "" {
			blank = len(lines) > 0
			continue
		}
		if blank {
			lines = append(lines, "")
			blank = false
		}
		lines = append(lines, l)
	}
	return strings.Join(lines, "\n")
}
