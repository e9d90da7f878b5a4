package compiler

import (
	"strings"

	"github.com/mindlens/mindlens/internal/lens"
)

// CopyPlugin compiles lenses for written copy: tone and voice dominate, and
// boundary nodes become forbidden phrasing rather than generic anti-goals.
type CopyPlugin struct{}

// Target implements TargetPlugin.
func (CopyPlugin) Target() string { return "copy" }

// Compile implements TargetPlugin.
//
// Copy-specific bucketing: aesthetic and rhythm nodes carry the voice, so
// they are promoted out of the soft bucket whenever included (keep or
// emphasize), not only when emphasized.
func (CopyPlugin) Compile(l *lens.EffectiveLens) CompiledContext {
	var voice, forbidden, values, rest []lens.EffectiveNode
	for _, n := range l.Nodes {
		if n.State == lens.StateOff {
			continue
		}
		switch {
		case n.NodeType == lens.TypeBoundary:
			forbidden = append(forbidden, n)
		case n.NodeType == lens.TypeAesthetic || n.NodeType == lens.TypeRhythm:
			voice = append(voice, n)
		case n.State != lens.StateEmphasize:
			// included at baseline weight, no copy direction
		case n.NodeType == lens.TypeValue || n.NodeType == lens.TypeWorldview:
			values = append(values, n)
		default:
			rest = append(rest, n)
		}
	}

	ctx := CompiledContext{
		AntiGoals:        labels(forbidden),
		EmphasizedValues: labels(values),
		StyleRules:       append(labels(voice), labels(rest)...),
		LensHash:         l.Hash,
	}

	var sections []string
	if len(forbidden) > 0 {
		sections = append(sections, "Forbidden phrasing and topics: "+joinLabels(forbidden)+".")
	}
	if len(voice) > 0 {
		sections = append(sections, "Write in this voice: "+joinLabels(voice)+".")
	}
	if len(values) > 0 {
		sections = append(sections, "The copy must foreground: "+joinLabels(values)+".")
	}
	if len(rest) > 0 {
		sections = append(sections, "Secondary direction: "+joinLabels(rest)+".")
	}
	ctx.SystemPromptAdditions = strings.Join(sections, "\n\n")
	return ctx
}
