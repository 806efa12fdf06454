package discovery

import (
	"regexp"
	"strings"
)

// Parser extracts functions from documentation content.
type Parser struct {
	prefix  string
	mention *regexp.Regexp
}

var slugPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)

// NewParser creates a Parser recognizing function paths under prefix
// (e.g. "/functions/v1/").
func NewParser(prefix string) *Parser {
	prefix = "/" + strings.Trim(prefix, "/") + "/"
	return &Parser{
		prefix:  prefix,
		mention: regexp.MustCompile(regexp.QuoteMeta(prefix) + `([A-Za-z0-9][A-Za-z0-9_-]*)`),
	}
}

// Prefix returns the normalized function path prefix.
func (p *Parser) Prefix() string { return p.prefix }

// Parse extracts table rows first, then free-text mentions, and merges them
// first-seen-wins. source labels the produced entries.
func (p *Parser) Parse(content []byte, format Format, source string) []Function {
	var rows []Function
	switch format {
	case FormatHTML:
		rows = p.parseHTML(content)
	default:
		rows = p.parseMarkdown(content)
	}
	mentions := p.Mentions(content)

	out := Merge(rows, mentions)
	for i := range out {
		out[i].Source = source
	}
	return out
}

// Mentions finds free-text references to function paths.
func (p *Parser) Mentions(content []byte) []Function {
	var out []Function
	for _, m := range p.mention.FindAllSubmatch(content, -1) {
		slug := string(m[1])
		out = append(out, Function{
			Slug:         slug,
			DisplayName:  slug,
			AuthRequired: true,
			Status:       StatusMentioned,
		})
	}
	return out
}

// slugFromPath derives a slug from a documented path or bare slug.
func (p *Parser) slugFromPath(raw string) string {
	s := strings.Trim(strings.TrimSpace(raw), "`'\" ")
	if s == "" {
		return ""
	}
	if i := strings.Index(s, p.prefix); i >= 0 {
		s = s[i+len(p.prefix):]
	} else {
		s = strings.TrimRight(s, "/")
		if i := strings.LastIndexByte(s, '/'); i >= 0 {
			s = s[i+1:]
		}
	}
	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}
	if !slugPattern.MatchString(s) {
		return ""
	}
	return s
}

type column int

const (
	colNone column = iota
	colName
	colSlug
	colPath
	colAuth
	colStatus
	colCategory
	colDescription
)

func classifyColumn(header string) column {
	h := strings.ToLower(strings.TrimSpace(header))
	switch {
	case strings.Contains(h, "auth"):
		return colAuth
	case strings.Contains(h, "slug"):
		return colSlug
	case strings.Contains(h, "path"), strings.Contains(h, "endpoint"),
		strings.Contains(h, "route"), strings.Contains(h, "url"):
		return colPath
	case strings.Contains(h, "status"):
		return colStatus
	case strings.Contains(h, "categor"):
		return colCategory
	case strings.Contains(h, "descr"):
		return colDescription
	case strings.Contains(h, "name"), strings.Contains(h, "function"):
		return colName
	}
	return colNone
}

// tableLayout maps column indexes to their meaning.
type tableLayout []column

func newTableLayout(headers []string) (tableLayout, bool) {
	layout := make(tableLayout, len(headers))
	var hasKey bool
	for i, h := range headers {
		layout[i] = classifyColumn(h)
		if layout[i] == colPath || layout[i] == colSlug {
			hasKey = true
		}
	}
	return layout, hasKey
}

// row converts one table row into a Function. The category comes from the
// nearest heading unless the table has a category column.
func (p *Parser) row(layout tableLayout, cells []string, category string) (Function, bool) {
	fn := Function{
		Category:     category,
		AuthRequired: true,
		Status:       StatusDocumented,
	}
	for i, cell := range cells {
		if i >= len(layout) {
			break
		}
		cell = strings.TrimSpace(cell)
		switch layout[i] {
		case colName:
			fn.DisplayName = strings.Trim(cell, "`*_ ")
		case colSlug:
			if s := p.slugFromPath(cell); s != "" {
				fn.Slug = s
			}
		case colPath:
			if fn.Slug == "" {
				fn.Slug = p.slugFromPath(cell)
			}
		case colAuth:
			fn.AuthRequired = parseAuthRequired(cell)
		case colStatus:
			if cell != "" {
				fn.Status = strings.ToLower(cell)
			}
		case colCategory:
			if cell != "" {
				fn.Category = cell
			}
		case colDescription:
			fn.Description = cell
		}
	}
	if fn.Slug == "" {
		return Function{}, false
	}
	if fn.DisplayName == "" {
		fn.DisplayName = fn.Slug
	}
	return fn, true
}

// parseAuthRequired reads an auth column. Anything not clearly negative,
// including an empty cell, means authentication is required.
func parseAuthRequired(v string) bool {
	switch strings.ToLower(strings.Trim(strings.TrimSpace(v), "`*_")) {
	case "no", "n", "false", "0", "none", "public", "optional", "anonymous",
		"-", "❌", "✗", "✘", "🔓":
		return false
	}
	return true
}

func cleanHeading(s string) string {
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(s), "#"))
}
