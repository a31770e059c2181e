package stream

import (
	"strings"
)

// Reasoning models that inline their thinking wrap it in think tags inside the
// ordinary content delta. The tags arrive as plain text or, from some
// providers, double-escaped so the angle brackets survive as < literals
// in the delta, and the upstream is free to split a tag across two network
// packets. thinkSplitter removes the tags and routes the wrapped text to the
// reasoning channel; whatever it returns as visible content carries zero
// trace of any tag.
type thinkSplitter struct {
	inThink bool
	pending string
}

var openThinkTags = []string{"<think>", `\u003cthink\u003e`}
var closeThinkTags = []string{"</think>", `\u003c/think\u003e`}

// findTag returns the earliest occurrence of any tag variant in s.
func findTag(s string, tags []string) (idx int, tagLen int) {
	idx = -1
	for _, tag := range tags {
		if i := strings.Index(s, tag); i >= 0 && (idx < 0 || i < idx) {
			idx, tagLen = i, len(tag)
		}
	}
	return idx, tagLen
}

// partialTagSuffix returns the length of the longest suffix of s that is a
// proper prefix of any tag variant. Those bytes may become a tag once the next
// fragment arrives, so they must be held back.
func partialTagSuffix(s string, tags []string) int {
	longest := 0
	for _, tag := range tags {
		max := len(tag) - 1
		if max > len(s) {
			max = len(s)
		}
		for n := max; n > longest; n-- {
			if strings.HasSuffix(s, tag[:n]) {
				longest = n
				break
			}
		}
	}
	return longest
}

// Feed consumes one content fragment and returns the visible and reasoning
// portions recovered so far. Bytes that may be the start of a split tag are
// retained until the next Feed or Flush.
func (ts *thinkSplitter) Feed(fragment string) (visible string, thought string) {
	if fragment == "" && ts.pending == "" {
		return "", ""
	}
	s := ts.pending + fragment
	ts.pending = ""

	var visibleB, thoughtB strings.Builder
	for s != "" {
		if !ts.inThink {
			if idx, tagLen := findTag(s, openThinkTags); idx >= 0 {
				visibleB.WriteString(s[:idx])
				s = s[idx+tagLen:]
				ts.inThink = true
				continue
			}
			if hold := partialTagSuffix(s, openThinkTags); hold > 0 {
				ts.pending = s[len(s)-hold:]
				s = s[:len(s)-hold]
			}
			visibleB.WriteString(s)
			break
		}

		if idx, tagLen := findTag(s, closeThinkTags); idx >= 0 {
			thoughtB.WriteString(s[:idx])
			s = s[idx+tagLen:]
			ts.inThink = false
			continue
		}
		if hold := partialTagSuffix(s, closeThinkTags); hold > 0 {
			ts.pending = s[len(s)-hold:]
			s = s[:len(s)-hold]
		}
		thoughtB.WriteString(s)
		break
	}
	return visibleB.String(), thoughtB.String()
}

// Flush releases any held-back bytes at end of stream. A partial tag that
// never completed is ordinary text after all.
func (ts *thinkSplitter) Flush() (visible string, thought string) {
	held := ts.pending
	ts.pending = ""
	if held == "" {
		return "", ""
	}
	if ts.inThink {
		return "", held
	}
	return held, ""
}
