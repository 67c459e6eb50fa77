package logger

import (
	"net/http"
	"net/url"
	"strings"
)

// DefaultMaskValue replaces sensitive values in log output.
const DefaultMaskValue = "***"

const bearerPrefix = "bearer "

// FilterConfig lists the field names treated as sensitive. Matching is a
// case-insensitive substring match, so "token" also covers "refreshToken".
type FilterConfig struct {
	SensitiveFields []string
	MaskValue       string
}

// DefaultFilterConfig covers credentials that travel through an API client.
func DefaultFilterConfig() *FilterConfig {
	return &FilterConfig{
		SensitiveFields: []string{
			"password", "passwd", "secret",
			"token", "api_key", "apikey",
			"authorization", "cookie", "otp",
			"credential",
		},
		MaskValue: DefaultMaskValue,
	}
}

// SensitiveDataFilter masks sensitive values before they reach the log sink.
type SensitiveDataFilter struct {
	config *FilterConfig
}

// NewSensitiveDataFilter creates a filter; a nil config uses the defaults.
func NewSensitiveDataFilter(config *FilterConfig) *SensitiveDataFilter {
	if config == nil {
		config = DefaultFilterConfig()
	}
	if config.MaskValue == "" {
		config.MaskValue = DefaultMaskValue
	}
	return &SensitiveDataFilter{config: config}
}

// FilterString masks the value when the key is sensitive. Bearer credentials
// are masked under any key.
func (f *SensitiveDataFilter) FilterString(key, value string) string {
	if value == "" {
		return value
	}
	if f.isSensitiveField(key) {
		return f.maskString(value)
	}
	if strings.HasPrefix(strings.ToLower(value), bearerPrefix) {
		return value[:len(bearerPrefix)] + f.config.MaskValue
	}
	return value
}

// FilterValue masks sensitive entries in headers and maps. Other values pass
// through unchanged.
func (f *SensitiveDataFilter) FilterValue(key string, value any) any {
	if f.isSensitiveField(key) {
		return f.config.MaskValue
	}

	switch v := value.(type) {
	case http.Header:
		return f.filterHeader(v)
	case map[string]string:
		out := make(map[string]string, len(v))
		for k, s := range v {
			out[k] = f.FilterString(k, s)
		}
		return out
	case map[string]any:
		return f.FilterFields(v)
	case string:
		return f.FilterString(key, v)
	default:
		return value
	}
}

// FilterFields filters every entry of a field map.
func (f *SensitiveDataFilter) FilterFields(fields map[string]any) map[string]any {
	filtered := make(map[string]any, len(fields))
	for key, value := range fields {
		filtered[key] = f.FilterValue(key, value)
	}
	return filtered
}

func (f *SensitiveDataFilter) filterHeader(h http.Header) map[string][]string {
	out := make(map[string][]string, len(h))
	for name, values := range h {
		masked := make([]string, len(values))
		for i, v := range values {
			masked[i] = f.FilterString(name, v)
		}
		out[name] = masked
	}
	return out
}

func (f *SensitiveDataFilter) isSensitiveField(fieldName string) bool {
	lower := strings.ToLower(fieldName)
	for _, sensitive := range f.config.SensitiveFields {
		if strings.Contains(lower, strings.ToLower(sensitive)) {
			return true
		}
	}
	return false
}

func (f *SensitiveDataFilter) maskString(value string) string {
	if strings.HasPrefix(value, "http://") || strings.HasPrefix(value, "https://") || strings.HasPrefix(value, "redis://") {
		return f.maskURL(value)
	}
	return f.config.MaskValue
}

// maskURL keeps the URL shape and masks only the password.
func (f *SensitiveDataFilter) maskURL(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return f.config.MaskValue
	}
	if parsed.User == nil {
		return raw
	}
	if _, ok := parsed.User.Password(); !ok {
		return raw
	}

	var b strings.Builder
	b.WriteString(parsed.Scheme)
	b.WriteString("://")
	b.WriteString(parsed.User.Username())
	b.WriteByte(':')
	b.WriteString(f.config.MaskValue)
	b.WriteByte('@')
	b.WriteString(parsed.Host)
	b.WriteString(parsed.EscapedPath())
	if parsed.RawQuery != "" {
		b.WriteByte('?')
		b.WriteString(parsed.RawQuery)
	}
	return b.String()
}
