package mcpclient

import "strings"

// JoinText concatenates every text block's content, in order, separated by
// newlines — used when a tool result's "join text blocks" step feeds the
// agent conversation (spec §4.3 step 6).
func JoinText(blocks []ContentBlock) string {
	var parts []string
	for _, b := range blocks {
		if b.Kind == ContentText {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// NthText returns the text of the n-th (0-based) text content block, used
// by the element resolver to read the second JSON block carrying
// available_elements (spec §4.4).
func NthText(blocks []ContentBlock, n int) (string, bool) {
	i := 0
	for _, b := range blocks {
		if b.Kind != ContentText {
			continue
		}
		if i == n {
			return b.Text, true
		}
		i++
	}
	return "", false
}

// Images returns every image content block.
func Images(blocks []ContentBlock) []ContentBlock {
	var out []ContentBlock
	for _, b := range blocks {
		if b.Kind == ContentImage {
			out = append(out, b)
		}
	}
	return out
}
