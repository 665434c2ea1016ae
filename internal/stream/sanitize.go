package stream

import (
	"regexp"
	"strings"
)

// thinkEndMarker is the in-band token some upstreams embed between the
// reasoning phase and the answer.
const thinkEndMarker = "</think>"

var (
	citationPattern  = regexp.MustCompile(`\[citation:\d+\]`)
	searchRefPattern = regexp.MustCompile(`\[ref_\d+\]`)

	zeroWidthReplacer = strings.NewReplacer(
		"\u200b", "",
		"\u200c", "",
		"\u200d", "",
		"\ufeff", "",
	)
)

// stripZeroWidth removes zero-width unicode from any text, reasoning or
// content alike.
func stripZeroWidth(s string) string {
	return zeroWidthReplacer.Replace(s)
}

// sanitizeContent removes known artifact tokens from answer text: leftover
// end-of-thinking markers, citation markers, and search reference markers.
func sanitizeContent(s string) string {
	s = stripZeroWidth(s)
	s = strings.ReplaceAll(s, thinkEndMarker, "")
	s = citationPattern.ReplaceAllString(s, "")
	s = searchRefPattern.ReplaceAllString(s, "")

	return s
}

// sanitizeReasoning passes reasoning text through untouched except for the
// universal zero-width strip. Clean mode additionally removes citation and
// search markers.
func sanitizeReasoning(s string, clean bool) string {
	s = stripZeroWidth(s)

	if clean {
		s = citationPattern.ReplaceAllString(s, "")
		s = searchRefPattern.ReplaceAllString(s, "")
	}

	return s
}
