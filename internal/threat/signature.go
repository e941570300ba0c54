package threat

import "regexp"

// Injection signature set. Deliberately small and fixed: these are
// high-confidence patterns, not a WAF. Each match names the signature so
// the audit trail records what tripped.
var injectionSignatures = []struct {
	name string
	re   *regexp.Regexp
}{
	{"sql_keywords", regexp.MustCompile(`(?i)\b(union[\s/*]+select|select\s+.{0,64}\s+from\b|insert\s+into\b|drop\s+(table|database)\b|delete\s+from\b)`)},
	{"sql_comment", regexp.MustCompile(`(['"]\s*(--|#)|/\*.*\*/|;\s*--)`)},
	{"script_tag", regexp.MustCompile(`(?i)<\s*(script|iframe)\b|javascript\s*:`)},
	{"path_traversal", regexp.MustCompile(`\.\./|\.\.\\|%2e%2e%2f`)},
	{"shell_metachars", regexp.MustCompile("(;|\\||`|\\$\\()\\s*(cat|ls|rm|id|whoami|wget|curl|sh|bash|nc)\\b")},
}

// matchInjection scans the request path and payload (body plus query as the
// caller assembles it) against the signature set. Returns the first
// matching signature name.
func matchInjection(path, payload string) (string, bool) {
	for _, sig := range injectionSignatures {
		if sig.re.MatchString(path) || sig.re.MatchString(payload) {
			return sig.name, true
		}
	}
	return "", false
}
