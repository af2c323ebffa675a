// Package chunk splits source files into logical units for embedding.
//
// Splitting is grammar-aware where a splitter for the language exists and
// degrades to a single whole-file chunk otherwise. A failed structural parse
// never aborts ingestion.
package chunk

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Chunk is one bounded unit of source text. Ordinals are assigned per file
// and, together with repo and path, derive the chunk's stable index id.
type Chunk struct {
	Repo      string
	Path      string
	Language  string
	Ordinal   int
	Text      string
	StartByte int
	EndByte   int
	StartLine int
	EndLine   int
	Symbol    string
	Degraded  bool
}

// unit is an intermediate split result before ordinals are assigned.
type unit struct {
	text      string
	startByte int
	endByte   int
	startLine int
	endLine   int
	symbol    string
}

type splitFunc func(src []byte) ([]unit, error)

const (
	DefaultMaxChars = 4000
	minChunkChars   = 64
)

// Extractor holds the per-language splitter table. The table is decided once
// at construction; Extract only consults it.
type Extractor struct {
	maxChars  int
	splitters map[string]splitFunc
}

func NewExtractor(maxChars int) *Extractor {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	return &Extractor{
		maxChars: maxChars,
		splitters: map[string]splitFunc{
			"go":         splitGo,
			"python":     heuristicSplitter(pythonUnitStart),
			"c":          heuristicSplitter(braceUnitStart),
			"cpp":        heuristicSplitter(braceUnitStart),
			"java":       heuristicSplitter(braceUnitStart),
			"javascript": heuristicSplitter(braceUnitStart),
			"typescript": heuristicSplitter(braceUnitStart),
			"rust":       heuristicSplitter(braceUnitStart),
			"markdown":   heuristicSplitter(markdownUnitStart),
		},
	}
}

// Extract splits one file into chunks. It returns an error only when the
// file cannot be read; any structural-parse failure falls back to a single
// whole-file chunk marked Degraded.
func (e *Extractor) Extract(repo, root, relPath, language string) ([]Chunk, error) {
	src, err := os.ReadFile(filepath.Join(root, relPath))
	if err != nil {
		return nil, err
	}

	lang := strings.ToLower(language)
	units, degraded := e.split(relPath, lang, src)

	chunks := make([]Chunk, 0, len(units))
	for i, u := range units {
		chunks = append(chunks, Chunk{
			Repo:      repo,
			Path:      relPath,
			Language:  lang,
			Ordinal:   i,
			Text:      u.text,
			StartByte: u.startByte,
			EndByte:   u.endByte,
			StartLine: u.startLine,
			EndLine:   u.endLine,
			Symbol:    u.symbol,
			Degraded:  degraded,
		})
	}
	return e.refine(chunks), nil
}

func (e *Extractor) split(relPath, lang string, src []byte) ([]unit, bool) {
	splitter, ok := e.splitters[lang]
	if !ok {
		return []unit{wholeFile(src)}, true
	}

	units, err := splitter(src)
	if err != nil || len(units) == 0 {
		slog.Warn("structural split failed, falling back to whole file", "path", relPath, "language", lang, "error", err)
		return []unit{wholeFile(src)}, true
	}

	// Oversized structural units are split further on line boundaries,
	// never mid-token.
	var capped []unit
	for _, u := range units {
		if len(u.text) > e.maxChars {
			capped = append(capped, splitByLines(u, e.maxChars)...)
		} else {
			capped = append(capped, u)
		}
	}
	return capped, false
}

func wholeFile(src []byte) unit {
	text := string(src)
	return unit{
		text:      text,
		startByte: 0,
		endByte:   len(src),
		startLine: 1,
		endLine:   countLines(text),
	}
}

// splitByLines cuts an oversized unit into consecutive pieces bounded by
// maxChars, preserving byte and line ranges.
func splitByLines(u unit, maxChars int) []unit {
	lines := strings.Split(u.text, "\n")

	var out []unit
	var sb strings.Builder
	pieceStartByte := u.startByte
	pieceStartLine := u.startLine
	curByte := u.startByte
	curLine := u.startLine

	flush := func() {
		if sb.Len() == 0 {
			return
		}
		text := strings.TrimSuffix(sb.String(), "\n")
		out = append(out, unit{
			text:      text,
			startByte: pieceStartByte,
			endByte:   pieceStartByte + len(text),
			startLine: pieceStartLine,
			endLine:   curLine - 1,
			symbol:    u.symbol,
		})
		sb.Reset()
	}

	for _, line := range lines {
		if sb.Len() > 0 && sb.Len()+len(line)+1 > maxChars {
			flush()
			pieceStartByte = curByte
			pieceStartLine = curLine
		}
		sb.WriteString(line)
		sb.WriteString("\n")
		curByte += len(line) + 1
		curLine++
	}
	flush()
	return out
}

func countLines(text string) int {
	if text == "" {
		return 1
	}
	return strings.Count(text, "\n") + 1
}
