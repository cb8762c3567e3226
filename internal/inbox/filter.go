package inbox

import (
	"strings"

	"github.com/matheus3301/omnisync/internal/crm"
)

// Filter is a read-side projection over the inbox. The zero value matches
// every row.
type Filter struct {
	Query    string       // case-insensitive substring of any identity field
	Platform crm.Platform // empty for all platforms
}

// Match reports whether s passes the filter.
func (f Filter) Match(s crm.Summary) bool {
	if f.Platform != "" && s.Platform != f.Platform {
		return false
	}
	q := strings.ToLower(strings.TrimSpace(f.Query))
	if q == "" {
		return true
	}
	for _, field := range []string{
		s.Name, s.Phone, s.Email,
		s.InstagramUsername, s.InstagramFullname, s.InstagramID,
	} {
		if field != "" && strings.Contains(strings.ToLower(field), q) {
			return true
		}
	}
	return false
}

// Apply returns the rows of list matching f, in list order. list is not
// modified.
func (f Filter) Apply(list []crm.Summary) []crm.Summary {
	out := make([]crm.Summary, 0, len(list))
	for _, s := range list {
		if f.Match(s) {
			out = append(out, s)
		}
	}
	return out
}
