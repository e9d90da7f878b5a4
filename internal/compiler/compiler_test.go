package compiler

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mindlens/mindlens/internal/lens"
)

func en(id, label string, typ lens.NodeType, state lens.NodeState) lens.EffectiveNode {
	return lens.EffectiveNode{
		NodeID:    id,
		NodeLabel: label,
		NodeType:  typ,
		State:     state,
		Weight:    lens.StateWeight(state),
	}
}

// testLens covers every bucket: a boundary, an emphasized value, an
// emphasized aesthetic, a keep-state rhythm, and an off worldview.
func testLens() *lens.EffectiveLens {
	return &lens.EffectiveLens{
		Hash: "abc123",
		Nodes: []lens.EffectiveNode{
			en("node-1", "No dark patterns", lens.TypeBoundary, lens.StateKeep),
			en("node-2", "Honesty", lens.TypeValue, lens.StateEmphasize),
			en("node-3", "Brutalism", lens.TypeAesthetic, lens.StateEmphasize),
			en("node-4", "Staccato", lens.TypeRhythm, lens.StateKeep),
			en("node-5", "Techno-optimism", lens.TypeWorldview, lens.StateOff),
		},
	}
}

func TestPartition(t *testing.T) {
	b := Partition(testLens())

	require.Len(t, b.Hard, 1)
	assert.Equal(t, "node-1", b.Hard[0].NodeID)

	require.Len(t, b.Hardish, 1)
	assert.Equal(t, "node-2", b.Hardish[0].NodeID)

	require.Len(t, b.Soft, 1)
	assert.Equal(t, "node-3", b.Soft[0].NodeID)
}

func TestPartition_OffNodesExcludedEverywhere(t *testing.T) {
	l := &lens.EffectiveLens{Nodes: []lens.EffectiveNode{
		en("node-1", "Boundary", lens.TypeBoundary, lens.StateOff),
		en("node-2", "Value", lens.TypeValue, lens.StateOff),
	}}

	b := Partition(l)
	assert.Empty(t, b.Hard, "off boundary nodes are excluded too")
	assert.Empty(t, b.Hardish)
	assert.Empty(t, b.Soft)
}

func TestPartition_BoundaryIsHardAtAnyIncludedState(t *testing.T) {
	l := &lens.EffectiveLens{Nodes: []lens.EffectiveNode{
		en("node-1", "Keep boundary", lens.TypeBoundary, lens.StateKeep),
		en("node-2", "Emphasized boundary", lens.TypeBoundary, lens.StateEmphasize),
	}}

	b := Partition(l)
	assert.Len(t, b.Hard, 2)
}

func TestCompileDefault(t *testing.T) {
	ctx := CompileDefault(testLens())

	assert.Equal(t, []string{"No dark patterns"}, ctx.AntiGoals)
	assert.Equal(t, []string{"Honesty"}, ctx.EmphasizedValues)
	assert.Equal(t, []string{"Brutalism"}, ctx.StyleRules)
	assert.Equal(t, "abc123", ctx.LensHash)

	sections := strings.Split(ctx.SystemPromptAdditions, "\n\n")
	require.Len(t, sections, 3)
	assert.Contains(t, sections[0], "Hard constraints")
	assert.Contains(t, sections[0], "No dark patterns")
	assert.Contains(t, sections[1], "Honesty")
	assert.Contains(t, sections[2], "Brutalism")
}

func TestCompileDefault_EmptyLens(t *testing.T) {
	ctx := CompileDefault(&lens.EffectiveLens{Hash: "h"})

	assert.Empty(t, ctx.SystemPromptAdditions)
	assert.Empty(t, ctx.AntiGoals)
	assert.Equal(t, "h", ctx.LensHash)
}

func TestCopyPlugin_VoicePromotion(t *testing.T) {
	ctx := CopyPlugin{}.Compile(testLens())

	// Aesthetic and rhythm nodes carry the voice even at keep state.
	assert.Contains(t, ctx.SystemPromptAdditions, "Write in this voice: Brutalism, Staccato.")
	assert.Contains(t, ctx.SystemPromptAdditions, "Forbidden phrasing and topics: No dark patterns.")
	assert.Contains(t, ctx.SystemPromptAdditions, "The copy must foreground: Honesty.")
	assert.NotContains(t, ctx.SystemPromptAdditions, "Techno-optimism")
}

func TestVisualPlugin(t *testing.T) {
	ctx := VisualPlugin{}.Compile(testLens())

	assert.Contains(t, ctx.SystemPromptAdditions, "Never depict: No dark patterns.")
	assert.Contains(t, ctx.SystemPromptAdditions, "Palette and composition: Brutalism.")
	assert.Contains(t, ctx.SystemPromptAdditions, "Overall mood: Honesty.")
	// Keep-state rhythm contributes nothing to a visual compile.
	assert.NotContains(t, ctx.SystemPromptAdditions, "Staccato")
	assert.Equal(t, []string{"Honesty (value)"}, ctx.EmphasizedValues)
}

func TestComposition(t *testing.T) {
	l := testLens()
	l.Nodes = append(l.Nodes, en("node-6", "Playfulness", lens.TypeStrategy, lens.StateEmphasize))

	comp := Compile(l)
	require.Len(t, comp.Entries, 3)
	assert.Equal(t, "abc123", comp.LensHash)

	hard := comp.Entries[0]
	assert.Equal(t, PriorityHard, hard.Priority)
	assert.True(t, hard.Locked)
	assert.Equal(t, "No dark patterns", hard.Label)
	assert.Equal(t, []string{"node-1"}, hard.NodeIDs)

	hardish := comp.Entries[1]
	assert.Equal(t, PriorityHardish, hardish.Priority)
	assert.False(t, hardish.Locked)
	assert.Equal(t, 1.5, hardish.Weight)

	soft := comp.Entries[2]
	assert.Equal(t, PrioritySoft, soft.Priority)
	assert.Equal(t, "soft emphasis", soft.Label)
	assert.Equal(t, []string{"node-3", "node-6"}, soft.NodeIDs)
	assert.Equal(t, 1.5, soft.Weight, "mean of two emphasized weights")
}

func TestComposition_DeterministicOrder(t *testing.T) {
	l := &lens.EffectiveLens{Nodes: []lens.EffectiveNode{
		en("node-1", "Zeta rule", lens.TypeBoundary, lens.StateKeep),
		en("node-2", "Alpha rule", lens.TypeBoundary, lens.StateKeep),
	}}

	comp := Compile(l)
	require.Len(t, comp.Entries, 2)
	assert.Equal(t, "Alpha rule", comp.Entries[0].Label, "same priority orders by label")
	assert.Equal(t, "Zeta rule", comp.Entries[1].Label)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	assert.ElementsMatch(t, []string{"copy", "visual"}, r.Targets())

	l := testLens()
	assert.Equal(t, CompileDefault(l), r.Compile(l, ""))
	assert.Equal(t, CompileDefault(l), r.Compile(l, "unknown-target"))
	assert.Equal(t, CopyPlugin{}.Compile(l), r.Compile(l, "copy"))
	assert.Equal(t, VisualPlugin{}.Compile(l), r.Compile(l, "visual"))
}
