package utils

// Snippet truncates s to at most n runes, appending "..." when truncated.
// Used for citation snippets so stored sources stay bounded.
func Snippet(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
