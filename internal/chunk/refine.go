package chunk

import (
	"log/slog"
	"strings"
)

// refine is an optional post-processing pass: it merges trivially small
// adjacent chunks and fills in missing symbols. A failure here must never
// invalidate the chunks it refines, so any panic falls back to the input.
func (e *Extractor) refine(chunks []Chunk) (out []Chunk) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("chunk refinement failed, passing chunks through unrefined", "panic", r)
			out = chunks
		}
	}()

	if len(chunks) == 0 {
		return chunks
	}

	merged := make([]Chunk, 0, len(chunks))
	for _, c := range chunks {
		if len(merged) > 0 && len(c.Text) < minChunkChars && !c.Degraded {
			prev := &merged[len(merged)-1]
			if prev.Path == c.Path && len(prev.Text)+len(c.Text) < e.maxChars {
				prev.Text = prev.Text + "\n" + c.Text
				prev.EndByte = c.EndByte
				prev.EndLine = c.EndLine
				continue
			}
		}
		merged = append(merged, c)
	}

	for i := range merged {
		merged[i].Ordinal = i
		if merged[i].Symbol == "" {
			merged[i].Symbol = firstIdentifier(merged[i].Text)
		}
	}
	return merged
}

func firstIdentifier(text string) string {
	for _, line := range strings.Split(text, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			return identRe.FindString(trimmed)
		}
	}
	return ""
}
