package discovery

import (
	"fmt"
	"path"
)

// Filter selects discovered slugs with glob patterns (path.Match syntax).
type Filter struct {
	Include []string
	Exclude []string
}

// Validate reports malformed patterns.
func (f Filter) Validate() error {
	for _, pat := range append(append([]string(nil), f.Include...), f.Exclude...) {
		if _, err := path.Match(pat, ""); err != nil {
			return fmt.Errorf("invalid discovery pattern %q: %w", pat, err)
		}
	}
	return nil
}

// ShouldInclude applies exclude patterns first, which always win, then
// include patterns. An empty include list allows everything.
func (f Filter) ShouldInclude(slug string) bool {
	for _, pat := range f.Exclude {
		if ok, _ := path.Match(pat, slug); ok {
			return false
		}
	}
	if len(f.Include) == 0 {
		return true
	}
	for _, pat := range f.Include {
		if ok, _ := path.Match(pat, slug); ok {
			return true
		}
	}
	return false
}
