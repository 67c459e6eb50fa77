package cache

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKey(t *testing.T) {
	tests := []struct {
		name   string
		method string
		path   string
		query  url.Values
		want   string
	}{
		{name: "no query", method: "get", path: "/rides", want: "GET /rides"},
		{name: "empty query", method: "GET", path: "/rides", query: url.Values{}, want: "GET /rides"},
		{
			name:   "sorted parameters",
			method: "GET",
			path:   "/rides",
			query:  url.Values{"status": {"active"}, "page": {"2"}, "limit": {"20"}},
			want:   "GET /rides?limit=20&page=2&status=active",
		},
		{
			name:   "repeated values sorted",
			method: "GET",
			path:   "/drivers",
			query:  url.Values{"id": {"9", "3"}},
			want:   "GET /drivers?id=3&id=9",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Key(tt.method, tt.path, tt.query))
		})
	}
}

func TestKeyIgnoresInsertionOrder(t *testing.T) {
	a := url.Values{}
	a.Add("b", "2")
	a.Add("a", "1")
	b := url.Values{}
	b.Add("a", "1")
	b.Add("b", "2")

	assert.Equal(t, Key("GET", "/x", a), Key("GET", "/x", b))
}
