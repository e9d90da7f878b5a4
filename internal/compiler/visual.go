package compiler

import (
	"strings"

	"github.com/mindlens/mindlens/internal/lens"
)

// VisualPlugin compiles lenses for image/visual generation: palette, mood
// and composition lead, narrative values recede into mood hints.
type VisualPlugin struct{}

// Target implements TargetPlugin.
func (VisualPlugin) Target() string { return "visual" }

// Compile implements TargetPlugin.
func (VisualPlugin) Compile(l *lens.EffectiveLens) CompiledContext {
	var palette, mood, avoid []lens.EffectiveNode
	for _, n := range l.Nodes {
		if n.State == lens.StateOff {
			continue
		}
		switch {
		case n.NodeType == lens.TypeBoundary:
			avoid = append(avoid, n)
		case n.NodeType == lens.TypeAesthetic:
			// Aesthetic nodes define the palette whenever included.
			palette = append(palette, n)
		case n.State == lens.StateEmphasize:
			mood = append(mood, n)
		}
	}

	ctx := CompiledContext{
		AntiGoals:        labels(avoid),
		EmphasizedValues: describe(mood),
		StyleRules:       labels(palette),
		LensHash:         l.Hash,
	}

	var sections []string
	if len(avoid) > 0 {
		sections = append(sections, "Never depict: "+joinLabels(avoid)+".")
	}
	if len(palette) > 0 {
		sections = append(sections, "Palette and composition: "+joinLabels(palette)+".")
	}
	if len(mood) > 0 {
		sections = append(sections, "Overall mood: "+joinLabels(mood)+".")
	}
	ctx.SystemPromptAdditions = strings.Join(sections, "\n\n")
	return ctx
}
