package compiler

import (
	"sort"

	"github.com/mindlens/mindlens/internal/lens"
)

// Composition priorities. Higher wins downstream.
const (
	PriorityHard    = 10
	PriorityHardish = 5
	PrioritySoft    = 1
)

// CompositionEntry is one layer of a prompt-assembly stack.
type CompositionEntry struct {
	Priority int      `json:"priority"`
	Locked   bool     `json:"locked"`
	Weight   float64  `json:"weight"`
	Label    string   `json:"label"`
	NodeIDs  []string `json:"node_ids"`
}

// LensComposition is the prioritized, weighted stack handed to the
// prompt-assembly pipeline. Distinct from the prompt-context compile.
type LensComposition struct {
	LensHash string             `json:"lens_hash"`
	Entries  []CompositionEntry `json:"entries"`
}

// Compile produces the composition stack for a lens:
//
//   - hard-rule nodes: one entry each at priority 10, locked (non-overridable
//     downstream)
//   - hard-ish nodes: one entry each at priority 5
//   - soft nodes: a single aggregated entry at priority 1 whose weight is
//     the arithmetic mean of the contributing nodes' weights
//
// Entries are ordered by priority descending, then label, so the stack is
// deterministic.
func Compile(l *lens.EffectiveLens) LensComposition {
	b := Partition(l)

	var entries []CompositionEntry
	for _, n := range b.Hard {
		entries = append(entries, CompositionEntry{
			Priority: PriorityHard,
			Locked:   true,
			Weight:   n.Weight,
			Label:    n.NodeLabel,
			NodeIDs:  []string{n.NodeID},
		})
	}
	for _, n := range b.Hardish {
		entries = append(entries, CompositionEntry{
			Priority: PriorityHardish,
			Weight:   n.Weight,
			Label:    n.NodeLabel,
			NodeIDs:  []string{n.NodeID},
		})
	}
	if len(b.Soft) > 0 {
		ids := make([]string, len(b.Soft))
		total := 0.0
		for i, n := range b.Soft {
			ids[i] = n.NodeID
			total += n.Weight
		}
		sort.Strings(ids)
		entries = append(entries, CompositionEntry{
			Priority: PrioritySoft,
			Weight:   total / float64(len(b.Soft)),
			Label:    "soft emphasis",
			NodeIDs:  ids,
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Priority != entries[j].Priority {
			return entries[i].Priority > entries[j].Priority
		}
		return entries[i].Label < entries[j].Label
	})

	return LensComposition{LensHash: l.Hash, Entries: entries}
}
