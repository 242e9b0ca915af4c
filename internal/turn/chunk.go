package turn

import (
	"strings"
	"unicode/utf8"
)

// chunkFlushLen is the accumulated-buffer threshold for flushing a chunk.
// Small enough that the client can start TTS playback while the rest of
// the question is still in flight.
const chunkFlushLen = 26

// SplitChunks breaks question text into event-sized chunks by scanning
// word boundaries. A chunk is flushed once the buffer reaches
// chunkFlushLen characters or the last word ends a sentence; any
// remainder is flushed at the end. Delivery stays perceptually smooth
// instead of arriving as one large payload.
func SplitChunks(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	var out []string
	var buf strings.Builder
	for _, w := range strings.Fields(s) {
		if buf.Len() > 0 {
			buf.WriteByte(' ')
		}
		buf.WriteString(w)
		if buf.Len() >= chunkFlushLen || endsSentence(w) {
			out = append(out, buf.String())
			buf.Reset()
		}
	}
	if buf.Len() > 0 {
		out = append(out, buf.String())
	}
	return out
}

func endsSentence(w string) bool {
	r, size := utf8.DecodeLastRuneInString(w)
	if size == 0 {
		return false
	}
	return r == '.' || r == '!' || r == '?'
}
