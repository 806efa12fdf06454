package discovery

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Function is one discovered callable function.
type Function struct {
	Slug         string `json:"slug"`
	DisplayName  string `json:"display_name"`
	Category     string `json:"category,omitempty"`
	Description  string `json:"description,omitempty"`
	AuthRequired bool   `json:"auth_required"`
	Status       string `json:"status,omitempty"`

	// Source names the documentation source that produced the entry.
	Source string `json:"source,omitempty"`
}

// Status values assigned when a source does not state one.
const (
	StatusDocumented = "documented"
	StatusMentioned  = "mentioned"
)

// Format is the document format of a source.
type Format string

const (
	FormatAuto     Format = "auto"
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
)

// ParseFormat validates a configured format. The empty string selects auto.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case "", FormatAuto:
		return FormatAuto, nil
	case FormatMarkdown, "md":
		return FormatMarkdown, nil
	case FormatHTML, "htm":
		return FormatHTML, nil
	}
	return FormatAuto, fmt.Errorf("unknown discovery source format %q", s)
}

// Source is one documentation location.
type Source struct {
	// Name labels the source in logs; defaults to Location.
	Name string

	// Location is an http(s) URL, a file:// URL, or a local path.
	Location string

	Format Format
}

func (s Source) label() string {
	if s.Name != "" {
		return s.Name
	}
	return s.Location
}

// detectFormat resolves FormatAuto from the location and content.
func detectFormat(s Source, content []byte) Format {
	if s.Format != "" && s.Format != FormatAuto {
		return s.Format
	}
	loc := s.Location
	if i := strings.IndexAny(loc, "?#"); i >= 0 {
		loc = loc[:i]
	}
	switch strings.ToLower(filepath.Ext(loc)) {
	case ".md", ".markdown":
		return FormatMarkdown
	case ".html", ".htm":
		return FormatHTML
	}
	head := strings.ToLower(strings.TrimSpace(string(content[:min(len(content), 512)])))
	if strings.HasPrefix(head, "<!doctype html") || strings.HasPrefix(head, "<html") || strings.Contains(head, "<table") {
		return FormatHTML
	}
	return FormatMarkdown
}

// Merge appends the functions of each batch in order, keeping the first
// entry seen for every slug.
func Merge(batches ...[]Function) []Function {
	seen := make(map[string]struct{})
	var out []Function
	for _, batch := range batches {
		for _, fn := range batch {
			if fn.Slug == "" {
				continue
			}
			if _, dup := seen[fn.Slug]; dup {
				continue
			}
			seen[fn.Slug] = struct{}{}
			out = append(out, fn)
		}
	}
	return out
}
