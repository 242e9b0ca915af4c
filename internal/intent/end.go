// Package intent classifies candidate utterances that ask to terminate the
// interview. It is a phrase/regex heuristic, not a model: false positives
// and negatives are expected and tolerated by the orchestrator.
package intent

import (
	"regexp"
	"strings"
)

// endPhrases are exact matches after normalization.
var endPhrases = map[string]struct{}{
	"end interview":       {},
	"stop the interview":  {},
	"wrap up":             {},
	"that's all":          {},
	"we are done":         {},
	"i'm done":            {},
	"cancel interview":    {},
	"terminate interview": {},
	"end it":              {},
	"stop it":             {},
}

var (
	spaceRe      = regexp.MustCompile(`\s+`)
	verbObjectRe = regexp.MustCompile(`\b(?:end|stop|finish|wrap|cancel|terminate)\b.*\b(?:interview|this)\b`)
	leadingRe    = regexp.MustCompile(`^(?:end|stop|finish|cancel|terminate)\b`)
	weStopRe     = regexp.MustCompile(`\bwe\s+(?:can\s+)?stop\b`)
	thatsAllRe   = regexp.MustCompile(`\b(?:that's\s+all|that\s+is\s+all|all)\b`)
)

// IsEnd reports whether text reads as a request to stop the interview now.
// Matching is case-insensitive and whitespace-trimmed; rules apply in order
// and short-circuit on the first hit. Empty input is never an end intent.
func IsEnd(text string) bool {
	if text == "" {
		return false
	}
	s := strings.ToLower(strings.TrimSpace(text))
	s = spaceRe.ReplaceAllString(s, " ")
	// normalize typographic apostrophes from STT output
	s = strings.ReplaceAll(s, "’", "'")
	if s == "" {
		return false
	}
	if _, ok := endPhrases[strings.Trim(s, " ,.!?;:")]; ok {
		return true
	}
	if verbObjectRe.MatchString(s) {
		return true
	}
	if leadingRe.MatchString(s) {
		return true
	}
	if weStopRe.MatchString(s) {
		return true
	}
	if thatsAllRe.MatchString(s) {
		return true
	}
	return false
}
