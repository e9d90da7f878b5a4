package changeset

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mindlens/mindlens/internal/lens"
)

// Summarize renders a human-readable summary of a change list.
//
// Changes are grouped by target state: emphasized, softened (weakened from
// emphasize back to keep), disabled, and restored (re-enabled from off).
// The rendering is a pure function of the change list, so regenerating it
// from the same changes always yields the same text.
func Summarize(changes []lens.NodeChange) string {
	if len(changes) == 0 {
		return "No changes."
	}

	var emphasized, softened, disabled, restored []string
	for _, c := range changes {
		label := c.NodeLabel
		if label == "" {
			label = c.NodeID
		}
		switch {
		case c.ToState == lens.StateEmphasize:
			emphasized = append(emphasized, label)
		case c.ToState == lens.StateOff:
			disabled = append(disabled, label)
		case c.FromState == lens.StateEmphasize:
			softened = append(softened, label)
		default:
			restored = append(restored, label)
		}
	}

	var parts []string
	appendGroup := func(verb string, labels []string) {
		if len(labels) == 0 {
			return
		}
		sort.Strings(labels)
		parts = append(parts, fmt.Sprintf("%s: %s", verb, strings.Join(labels, ", ")))
	}
	appendGroup("Emphasized", emphasized)
	appendGroup("Softened", softened)
	appendGroup("Disabled", disabled)
	appendGroup("Restored", restored)

	return strings.Join(parts, ". ") + "."
}
