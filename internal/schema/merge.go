// Package schema computes the new value of a stored script field.
package schema

import "strings"

// Merge returns the value to store given the current value and a new fragment.
//
// In delete mode the result is always empty. Otherwise the trimmed fragment is
// appended on a new line unless the current value already contains it. The
// containment test is a plain substring match on the whole stored value, so a
// fragment that happens to appear inside a larger unrelated block counts as
// present. A current value that is only whitespace counts as empty and is
// replaced by the fragment.
func Merge(old, fragment string, deleteMode bool) string {
	if deleteMode {
		return ""
	}
	fragment = strings.TrimSpace(fragment)
	current := strings.TrimSpace(old)
	switch {
	case current != "" && strings.Contains(current, fragment):
		return old
	case current != "":
		return current + "\n" + fragment
	default:
		return fragment
	}
}
