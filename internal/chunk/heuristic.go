package chunk

import (
	"regexp"
	"strings"
)

// Heuristic splitting for languages without a real grammar in-process.
// A unit begins at every line the start predicate accepts; everything before
// the first start (imports, includes, module docstrings) forms a preamble
// unit of its own.

var (
	pythonStartRe   = regexp.MustCompile(`^(?:def |class |async def |@\w)`)
	braceStartRe    = regexp.MustCompile(`^[A-Za-z_~$]`)
	markdownStartRe = regexp.MustCompile(`^#{1,6}\s`)
	identRe         = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*`)
)

func pythonUnitStart(line string) bool {
	return pythonStartRe.MatchString(line)
}

// braceUnitStart treats any non-indented line opening an identifier as a new
// top-level unit. Closing braces, comments, and preprocessor lines at column
// zero continue the current unit.
func braceUnitStart(line string) bool {
	if !braceStartRe.MatchString(line) {
		return false
	}
	trimmed := strings.TrimSpace(line)
	if strings.HasPrefix(trimmed, "else") || strings.HasPrefix(trimmed, "catch") {
		return false
	}
	return true
}

func markdownUnitStart(line string) bool {
	return markdownStartRe.MatchString(line)
}

func heuristicSplitter(isStart func(string) bool) splitFunc {
	return func(src []byte) ([]unit, error) {
		text := string(src)
		lines := strings.Split(text, "\n")

		var units []unit
		var cur []string
		curStartByte := 0
		curStartLine := 1
		byteOffset := 0
		lineNo := 1

		flush := func(endByte, endLine int) {
			body := strings.Join(cur, "\n")
			if strings.TrimSpace(body) == "" {
				cur = nil
				return
			}
			units = append(units, unit{
				text:      body,
				startByte: curStartByte,
				endByte:   endByte,
				startLine: curStartLine,
				endLine:   endLine,
				symbol:    leadingSymbol(cur),
			})
			cur = nil
		}

		for _, line := range lines {
			if len(cur) > 0 && isStart(line) {
				flush(byteOffset-1, lineNo-1)
				curStartByte = byteOffset
				curStartLine = lineNo
			}
			cur = append(cur, line)
			byteOffset += len(line) + 1
			lineNo++
		}
		flush(len(text), lineNo-1)

		return units, nil
	}
}

func leadingSymbol(lines []string) string {
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		for _, prefix := range []string{"def ", "async def ", "class ", "func ", "fn "} {
			if strings.HasPrefix(trimmed, prefix) {
				if m := identRe.FindString(trimmed[len(prefix):]); m != "" {
					return m
				}
			}
		}
		return ""
	}
	return ""
}
