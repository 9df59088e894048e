package motion

import (
	"regexp"
	"strings"
)

// The deny vocabulary blocks anything destructive or account-mutating; the
// allow vocabulary is the only set of CTA texts a beat may target. Beats
// hover and never click, but the classifier is authoritative either way.
var (
	denyPattern = regexp.MustCompile(`(?i)buy|checkout|pay|subscribe|cart|sign ?in|log ?in|password|add to cart|register|create account`)

	allowPattern = regexp.MustCompile(`(?i)learn more|pricing|features|contact|book demo`)

	// navPreferPattern scores nav anchors worth hovering.
	navPreferPattern = regexp.MustCompile(`(?i)pricing|features|customers|demo|about|contact`)
)

// DeniedTarget reports whether an anchor matches the deny vocabulary.
// Explicit, author-scripted clicks consult only this list; autonomous beats
// additionally require an allow-list match via SafeTarget.
func DeniedTarget(a Anchor) bool {
	haystack := strings.Join([]string{a.Text, a.AriaLabel, a.Title, a.Href}, " ")
	return denyPattern.MatchString(haystack)
}

// SafeTarget reports whether an anchor is safe to approach. Deny wins over
// allow; cross-origin targets are always denied; absent an allow-list match
// the target is denied.
func SafeTarget(a Anchor) bool {
	haystack := strings.Join([]string{a.Text, a.AriaLabel, a.Title, a.Href}, " ")
	if denyPattern.MatchString(haystack) {
		return false
	}
	if !a.SameOrigin {
		return false
	}
	return allowPattern.MatchString(haystack)
}

// ScoreNavAnchor ranks a nav anchor for the hoverNav beat. Preferred link
// texts score highest; denied targets score zero.
func ScoreNavAnchor(a Anchor) int {
	haystack := strings.Join([]string{a.Text, a.AriaLabel, a.Title, a.Href}, " ")
	if denyPattern.MatchString(haystack) {
		return 0
	}
	score := 1
	if navPreferPattern.MatchString(haystack) {
		score += 10
	}
	if a.SameOrigin {
		score += 2
	}
	return score
}

// ScoreCTAAnchor ranks a CTA candidate for moveToCTAandHover. Only
// allow-listed, same-origin targets qualify.
func ScoreCTAAnchor(a Anchor) int {
	if !SafeTarget(a) {
		return 0
	}
	score := 1
	text := strings.ToLower(a.Text)
	switch {
	case strings.Contains(text, "book demo"):
		score += 8
	case strings.Contains(text, "pricing"):
		score += 6
	case strings.Contains(text, "learn more"):
		score += 4
	case strings.Contains(text, "features"), strings.Contains(text, "contact"):
		score += 3
	}
	return score
}
