package auth

import "strings"

// DefaultAuthPathMarkers identify authentication endpoints. A 401 from one
// of them means bad credentials, not an expired session, so it must never
// trigger a refresh.
var DefaultAuthPathMarkers = []string{"/auth/", "login", "register", "refresh", "verify-otp"}

// IsAuthPath reports whether path contains any of markers, case-insensitively.
func IsAuthPath(path string, markers []string) bool {
	p := strings.ToLower(path)
	for _, m := range markers {
		if m != "" && strings.Contains(p, strings.ToLower(m)) {
			return true
		}
	}
	return false
}
