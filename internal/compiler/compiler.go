// Package compiler transforms effective lenses into target-specific prompt
// context and into weighted composition stacks.
//
// Bucketing is target-specific (each plugin maps node types to its own
// categories) but one rule is universal across all targets: nodes in state
// off are excluded from every bucket.
package compiler

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mindlens/mindlens/internal/lens"
)

// CompiledContext is the prompt-context output of a compile.
type CompiledContext struct {
	SystemPromptAdditions string   `json:"system_prompt_additions"`
	AntiGoals             []string `json:"anti_goals"`
	EmphasizedValues      []string `json:"emphasized_values"`
	StyleRules            []string `json:"style_rules"`
	LensHash              string   `json:"lens_hash"`
}

// Buckets is the partition of an effective lens used by the default
// compiler and reused by plugins that only vary the rendering:
//
//	hard    - exclusionary constraints (boundary nodes, any included state)
//	hardish - emphasized core values/worldview
//	soft    - every other emphasized node
//
// Off nodes never appear in any bucket.
type Buckets struct {
	Hard    []lens.EffectiveNode
	Hardish []lens.EffectiveNode
	Soft    []lens.EffectiveNode
}

// Partition buckets a lens with the default type mapping. Node order is
// preserved (lenses are already ordered by node id), so rendering is
// deterministic.
func Partition(l *lens.EffectiveLens) Buckets {
	var b Buckets
	for _, n := range l.Nodes {
		if n.State == lens.StateOff {
			continue
		}
		switch {
		case n.NodeType == lens.TypeBoundary:
			b.Hard = append(b.Hard, n)
		case n.State != lens.StateEmphasize:
			// keep-state non-boundary nodes contribute baseline weight but
			// no prompt text
		case n.NodeType == lens.TypeValue || n.NodeType == lens.TypeWorldview:
			b.Hardish = append(b.Hardish, n)
		default:
			b.Soft = append(b.Soft, n)
		}
	}
	return b
}

// CompileDefault renders a lens with the default bucket mapping.
func CompileDefault(l *lens.EffectiveLens) CompiledContext {
	b := Partition(l)

	ctx := CompiledContext{
		AntiGoals:        labels(b.Hard),
		EmphasizedValues: labels(b.Hardish),
		StyleRules:       labels(b.Soft),
		LensHash:         l.Hash,
	}

	var sections []string
	if len(b.Hard) > 0 {
		sections = append(sections, "Hard constraints - never do any of the following: "+joinLabels(b.Hard)+".")
	}
	if len(b.Hardish) > 0 {
		sections = append(sections, "Center every response on these values: "+joinLabels(b.Hardish)+".")
	}
	if len(b.Soft) > 0 {
		sections = append(sections, "Lean toward: "+joinLabels(b.Soft)+".")
	}
	ctx.SystemPromptAdditions = strings.Join(sections, "\n\n")
	return ctx
}

func labels(nodes []lens.EffectiveNode) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.NodeLabel
	}
	sort.Strings(out)
	return out
}

func joinLabels(nodes []lens.EffectiveNode) string {
	return strings.Join(labels(nodes), ", ")
}

// describe renders "label (type)" lists for plugins that want typed detail.
func describe(nodes []lens.EffectiveNode) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = fmt.Sprintf("%s (%s)", n.NodeLabel, n.NodeType)
	}
	sort.Strings(out)
	return out
}
