package text

// TruncLen is how much of a message Trunc keeps.
const TruncLen = 256

// Trunc shortens s for logging, marking the cut with an ellipsis.
func Trunc(s string) string {
	if len(s) <= TruncLen {
		return s
	}
	return s[:TruncLen] + "..."
}
