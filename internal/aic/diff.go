package aic

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// jsonDiff renders a line-oriented diff between two JSON payloads with
// +/- prefixes, for showing what an update replaced. Equal runs longer
// than a few lines collapse to an ellipsis.
func jsonDiff(before, after []byte) string {
	beforeText := prettyJSON(before)
	afterText := prettyJSON(after)

	if beforeText == afterText {
		return "no changes"
	}

	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(beforeText, afterText)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	var sb strings.Builder

	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			writePrefixed(&sb, "- ", d.Text)
		case diffmatchpatch.DiffInsert:
			writePrefixed(&sb, "+ ", d.Text)
		case diffmatchpatch.DiffEqual:
			writeContext(&sb, d.Text)
		}
	}

	return strings.TrimRight(sb.String(), "\n")
}

func prettyJSON(data []byte) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		return string(data)
	}

	return buf.String()
}

func writePrefixed(sb *strings.Builder, prefix, text string) {
	for _, line := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
		sb.WriteString(prefix)
		sb.WriteString(line)
		sb.WriteString("\n")
	}
}

const contextLines = 2

// writeContext keeps a couple of unchanged lines on each side of a
// change and elides the rest.
func writeContext(sb *strings.Builder, text string) {
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	if len(lines) <= 2*contextLines+1 {
		writePrefixed(sb, "  ", strings.Join(lines, "\n"))
		return
	}

	writePrefixed(sb, "  ", strings.Join(lines[:contextLines], "\n"))
	sb.WriteString("  ...\n")
	writePrefixed(sb, "  ", strings.Join(lines[len(lines)-contextLines:], "\n"))
}
