package session

import (
	"regexp"
	"strings"
)

// labelLine matches a "label: answer" line, the shape of the degenerate
// repetition some hosts emit at the end of a reply.
var labelLine = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9 _-]{0,23}:\s*(.*)$`)

// stripRepetitionArtifact removes the known degenerate artifact where the
// reply ends in the same "label: answer" line repeated. The first instance is
// kept; pure duplicates are dropped.
func stripRepetitionArtifact(raw string) string {
	trimmed := strings.TrimRight(raw, " \t\n")
	lines := strings.Split(trimmed, "\n")
	if len(lines) < 2 {
		return trimmed
	}

	last := strings.TrimSpace(lines[len(lines)-1])
	if !labelLine.MatchString(last) {
		return trimmed
	}

	// Walk back over consecutive repeats of the same trailing line.
	end := len(lines) - 1
	for end > 0 && strings.TrimSpace(lines[end-1]) == last {
		end--
	}
	if end == len(lines)-1 {
		return trimmed
	}

	return strings.TrimRight(strings.Join(lines[:end+1], "\n"), " \t\n")
}
