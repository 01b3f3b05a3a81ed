package relay

import "strings"

// DefaultMarker separates the system instruction from the user content in a
// combined prompt.
const DefaultMarker = "USER INPUTS:"

// Split is a prompt divided at the marker.
type Split struct {
	System string
	User   string
}

// SplitPrompt divides prompt at the first occurrence of marker. System is the
// trimmed text before the marker; User is the marker plus everything after
// it, later occurrences of the marker included.
//
// When the marker is absent (or empty) found is false and the whole prompt is
// returned as User with no System.
func SplitPrompt(prompt, marker string) (s Split, found bool) {
	if marker == "" {
		return Split{User: prompt}, false
	}
	i := strings.Index(prompt, marker)
	if i < 0 {
		return Split{User: prompt}, false
	}
	return Split{
		System: strings.TrimSpace(prompt[:i]),
		User:   prompt[i:],
	}, true
}
