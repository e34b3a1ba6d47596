// Package assemble splits an assembled result into transport-safe chunks.
// Concatenating the returned chunks in order always reproduces
// header+body+footer exactly: no loss, no duplication.
package assemble

import "strings"

const DefaultMaxChunk = 4000

// Assemble paginates header+body+footer under maxChunk text units. Units are
// runes: the transport ceiling counts characters, and the output is routinely
// non-ASCII. The header always lands in the first chunk and the footer in
// the final chunk. Interior cuts prefer paragraph boundaries and fall back
// to a hard cut only when a single paragraph itself exceeds the ceiling.
func Assemble(header, body, footer string, maxChunk int) []string {
	if maxChunk <= 0 {
		maxChunk = DefaultMaxChunk
	}

	full := header + body + footer
	if runeLen(full) <= maxChunk {
		if full == "" {
			return nil
		}
		return []string{full}
	}

	// The footer stays atomic so it cannot straddle the final boundary.
	chunks := paginate(header+body, maxChunk)
	if footer != "" {
		if n := len(chunks); n > 0 && runeLen(chunks[n-1])+runeLen(footer) <= maxChunk {
			chunks[n-1] += footer
		} else {
			chunks = append(chunks, hardCut(footer, maxChunk)...)
		}
	}
	return chunks
}

// paginate greedily packs paragraph segments (split after "\n\n", separators
// kept attached) into maxChunk-sized chunks.
func paginate(text string, maxChunk int) []string {
	if text == "" {
		return nil
	}

	var chunks []string
	var cur strings.Builder
	curLen := 0

	flush := func() {
		if curLen > 0 {
			chunks = append(chunks, cur.String())
			cur.Reset()
			curLen = 0
		}
	}

	for _, seg := range strings.SplitAfter(text, "\n\n") {
		segLen := runeLen(seg)
		if segLen == 0 {
			continue
		}
		if curLen+segLen <= maxChunk {
			cur.WriteString(seg)
			curLen += segLen
			continue
		}
		flush()
		if segLen <= maxChunk {
			cur.WriteString(seg)
			curLen = segLen
			continue
		}
		// Oversized paragraph: hard length cut, keep the tail open so the
		// next segment can share its chunk.
		pieces := hardCut(seg, maxChunk)
		for _, p := range pieces[:len(pieces)-1] {
			chunks = append(chunks, p)
		}
		tail := pieces[len(pieces)-1]
		cur.WriteString(tail)
		curLen = runeLen(tail)
	}
	flush()
	return chunks
}

func hardCut(text string, maxChunk int) []string {
	r := []rune(text)
	var out []string
	for len(r) > maxChunk {
		out = append(out, string(r[:maxChunk]))
		r = r[maxChunk:]
	}
	if len(r) > 0 {
		out = append(out, string(r))
	}
	return out
}

func runeLen(s string) int { return len([]rune(s)) }
