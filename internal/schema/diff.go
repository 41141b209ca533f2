package schema

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Change summarises what a merge did to the stored value, line by line.
type Change struct {
	AddedLines   int
	RemovedLines int
}

// Unchanged reports whether the merge left the value as it was.
func (c Change) Unchanged() bool {
	return c.AddedLines == 0 && c.RemovedLines == 0
}

// Summarize diffs before and after at line granularity. A last line without
// a newline compares equal to the same line with one, so appending to "A"
// counts one added line. Values that differ only in that newline count as one
// line replaced.
func Summarize(before, after string) Change {
	if before == after {
		return Change{}
	}
	dmp := diffmatchpatch.New()
	beforeChars, afterChars, lineArray := dmp.DiffLinesToChars(terminate(before), terminate(after))
	diffs := dmp.DiffMain(beforeChars, afterChars, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)

	var change Change
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			change.AddedLines += countLines(d.Text)
		case diffmatchpatch.DiffDelete:
			change.RemovedLines += countLines(d.Text)
		}
	}
	if change.Unchanged() {
		return Change{AddedLines: 1, RemovedLines: 1}
	}
	return change
}

func terminate(text string) string {
	if text == "" || strings.HasSuffix(text, "\n") {
		return text
	}
	return text + "\n"
}

func countLines(text string) int {
	if text == "" {
		return 0
	}
	n := strings.Count(text, "\n")
	if !strings.HasSuffix(text, "\n") {
		n++
	}
	return n
}
