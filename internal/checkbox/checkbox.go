// Package checkbox parses, diffs, and applies markdown checklist state.
//
// Matching is keyed on item text rather than line number because the two
// documents being synchronized (local spec file and remote issue body) are
// edited independently and drift in ordering and surrounding prose. Apply
// rewrites only the checked/unchecked marker on matched lines; every other
// byte of the document is preserved.
package checkbox

import (
	"regexp"
	"strings"
)

// Item is one checklist entry, with the nearest preceding heading as Section.
type Item struct {
	Section string
	Text    string
	Checked bool
}

// Change records a checkbox whose state differs between two documents.
type Change struct {
	Text     string
	Section  string
	OldValue bool
	NewValue bool
}

var (
	// checkboxPattern matches "- [ ] text" and "* [x] text" with leading
	// indentation, capturing the marker state and the item text.
	checkboxPattern = regexp.MustCompile(`^(\s*[-*]\s+\[)([ xX])(\]\s+)(.*)$`)

	headingPattern = regexp.MustCompile(`^#{1,6}\s+(.*)$`)
)

// Parse scans a document line by line and returns checklist items in order.
func Parse(document string) []Item {
	var items []Item
	section := ""

	for _, line := range strings.Split(document, "\n") {
		if m := headingPattern.FindStringSubmatch(line); m != nil {
			section = strings.TrimSpace(m[1])
			continue
		}
		if m := checkboxPattern.FindStringSubmatch(line); m != nil {
			items = append(items, Item{
				Section: section,
				Text:    strings.TrimSpace(m[4]),
				Checked: m[2] == "x" || m[2] == "X",
			})
		}
	}
	return items
}

// Diff compares source items against target items matched by text and returns
// one Change per item whose checked state differs. NewValue is the source's
// state: applying the result to the target document makes it agree with the
// source. Items present in only one list produce no change.
func Diff(source, target []Item) []Change {
	targetByText := make(map[string]Item, len(target))
	for _, it := range target {
		// First occurrence wins when the same text appears twice.
		if _, ok := targetByText[it.Text]; !ok {
			targetByText[it.Text] = it
		}
	}

	var changes []Change
	for _, src := range source {
		tgt, ok := targetByText[src.Text]
		if !ok || tgt.Checked == src.Checked {
			continue
		}
		changes = append(changes, Change{
			Text:     src.Text,
			Section:  src.Section,
			OldValue: tgt.Checked,
			NewValue: src.Checked,
		})
	}
	return changes
}

// Apply rewrites the checkbox marker on every line whose item text matches a
// change entry, leaving all other lines byte-identical. Trailing newlines and
// line endings are preserved.
func Apply(document string, changes []Change) string {
	if len(changes) == 0 {
		return document
	}

	byText := make(map[string]bool, len(changes))
	for _, c := range changes {
		byText[c.Text] = c.NewValue
	}

	lines := strings.Split(document, "\n")
	for i, line := range lines {
		m := checkboxPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		newValue, ok := byText[strings.TrimSpace(m[4])]
		if !ok {
			continue
		}
		marker := " "
		if newValue {
			marker = "x"
		}
		lines[i] = m[1] + marker + m[3] + m[4]
	}
	return strings.Join(lines, "\n")
}
