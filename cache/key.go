package cache

import (
	"net/url"
	"slices"
	"strings"
)

// Key builds the cache key for a request: the upper-cased method, the path
// and the query with parameter names sorted and the values of each name
// sorted, so equivalent queries share one entry.
func Key(method, path string, query url.Values) string {
	var b strings.Builder
	b.WriteString(strings.ToUpper(method))
	b.WriteByte(' ')
	b.WriteString(path)
	if len(query) == 0 {
		return b.String()
	}

	canonical := make(url.Values, len(query))
	for k, vs := range query {
		sorted := slices.Clone(vs)
		slices.Sort(sorted)
		canonical[k] = sorted
	}
	b.WriteByte('?')
	b.WriteString(canonical.Encode())
	return b.String()
}
