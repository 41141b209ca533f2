package schema

import "testing"

func TestMerge(t *testing.T) {
	tests := []struct {
		name       string
		old        string
		fragment   string
		deleteMode bool
		want       string
	}{
		{"empty old takes fragment", "", "X", false, "X"},
		{"fragment is trimmed", "", "  <script>A</script>\n", false, "<script>A</script>"},
		{"append with newline", "A", "B", false, "A\nB"},
		{"old is trimmed before append", "A\n\n", "B", false, "A\nB"},
		{"already present is a no-op", "<script>A</script>", "<script>A</script>", false, "<script>A</script>"},
		{"present after trimming fragment", "x\n<script>A</script>\ny", " <script>A</script> ", false, "x\n<script>A</script>\ny"},
		{"substring of a larger block counts as present", "<script>AB</script>", "AB", false, "<script>AB</script>"},
		{"whitespace-only old is treated as empty", "  \n", "X", false, "X"},
		{"whitespace-only old leaves no leading newline", "  \n ", "X", false, "X"},
		{"delete clears", "<script>A</script>", "<script>B</script>", true, ""},
		{"delete on empty", "", "", true, ""},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got := Merge(test.old, test.fragment, test.deleteMode)
			if got != test.want {
				t.Errorf("Merge(%q, %q, %v) = %q, expected %q", test.old, test.fragment, test.deleteMode, got, test.want)
			}
		})
	}
}

func TestMergeIsIdempotent(t *testing.T) {
	olds := []string{"A", "<script>1</script>", "line1\nline2\n", "  padded  "}
	fragments := []string{"B", "<script>2</script>", "line2", " <x/> "}

	for _, old := range olds {
		for _, fragment := range fragments {
			once := Merge(old, fragment, false)
			twice := Merge(once, fragment, false)
			if once != twice {
				t.Errorf("Merge not idempotent for old=%q fragment=%q: %q then %q", old, fragment, once, twice)
			}
		}
	}
}

func TestDeleteOverridesEverything(t *testing.T) {
	for _, old := range []string{"", "A", "<script>A</script>\n<script>B</script>"} {
		for _, fragment := range []string{"", "A", "new"} {
			if got := Merge(old, fragment, true); got != "" {
				t.Errorf("Expected empty result in delete mode for old=%q fragment=%q, got %q", old, fragment, got)
			}
		}
	}
}

func TestSummarize(t *testing.T) {
	if c := Summarize("A", "A"); !c.Unchanged() {
		t.Errorf("Expected no change, got %+v", c)
	}

	c := Summarize("A\n", "A\nB\n")
	if c.AddedLines != 1 || c.RemovedLines != 0 {
		t.Errorf("Expected 1 added line, got %+v", c)
	}

	c = Summarize("", "X")
	if c.AddedLines != 1 || c.RemovedLines != 0 {
		t.Errorf("Expected 1 added line, got %+v", c)
	}

	c = Summarize("<a>\n<b>", "")
	if c.AddedLines != 0 || c.RemovedLines != 2 {
		t.Errorf("Expected 2 removed lines, got %+v", c)
	}

	c = Summarize("A", Merge("A", "B", false))
	if c.AddedLines != 1 || c.RemovedLines != 0 {
		t.Errorf("Expected appending to an unterminated value to add 1 line, got %+v", c)
	}

	c = Summarize("A", "A\n")
	if c.Unchanged() {
		t.Errorf("Expected a changed final newline to count, got %+v", c)
	}
}
