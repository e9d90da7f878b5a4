package preset

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mindlens/mindlens/internal/lens"
)

const validDefinition = `
preset: {
	name:    "brand-voice"
	profile: "profile-1"
	nodes: {
		"node-a": "keep"
		"node-b": "emphasize"
		"node-c": "off"
	}
}

catalog: [
	{id: "node-a", label: "Radical honesty", type: "value"},
	{id: "node-b", label: "Brutalism", type: "aesthetic"},
]
`

func TestParse_Valid(t *testing.T) {
	def, err := Parse([]byte(validDefinition), "brand.cue")
	require.NoError(t, err)

	assert.Equal(t, "brand-voice", def.Name)
	assert.Equal(t, "profile-1", def.ProfileID)
	assert.Equal(t, map[string]lens.NodeState{
		"node-a": lens.StateKeep,
		"node-b": lens.StateEmphasize,
		"node-c": lens.StateOff,
	}, def.Nodes)

	require.Len(t, def.Catalog, 2)
	assert.Equal(t, lens.GraphNode{ID: "node-a", Label: "Radical honesty", Type: lens.TypeValue}, def.Catalog[0])
}

func TestParse_CatalogOptional(t *testing.T) {
	def, err := Parse([]byte(`preset: {name: "p", profile: "profile-1", nodes: {"node-a": "keep"}}`), "min.cue")
	require.NoError(t, err)
	assert.Empty(t, def.Catalog)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		field string
	}{
		{
			"missing preset struct",
			`catalog: []`,
			"preset",
		},
		{
			"missing name",
			`preset: {profile: "profile-1", nodes: {"node-a": "keep"}}`,
			"name",
		},
		{
			"empty name",
			`preset: {name: "", profile: "profile-1", nodes: {"node-a": "keep"}}`,
			"name",
		},
		{
			"missing profile",
			`preset: {name: "p", nodes: {"node-a": "keep"}}`,
			"profile",
		},
		{
			"missing nodes",
			`preset: {name: "p", profile: "profile-1"}`,
			"preset.nodes",
		},
		{
			"empty nodes",
			`preset: {name: "p", profile: "profile-1", nodes: {}}`,
			"preset.nodes",
		},
		{
			"unknown state",
			`preset: {name: "p", profile: "profile-1", nodes: {"node-a": "boost"}}`,
			"preset.nodes.node-a",
		},
		{
			"non-string state",
			`preset: {name: "p", profile: "profile-1", nodes: {"node-a": 3}}`,
			"preset.nodes.node-a",
		},
		{
			"unknown catalog type",
			`preset: {name: "p", profile: "profile-1", nodes: {"node-a": "keep"}}
catalog: [{id: "node-a", label: "A", type: "vibe"}]`,
			"catalog",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.src), tt.name+".cue")
			require.Error(t, err)

			var pe *ParseError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.field, pe.Field)
		})
	}
}

func TestParse_InvalidCUE(t *testing.T) {
	_, err := Parse([]byte(`preset: {name: `), "broken.cue")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "compile preset definition")
}

func TestParseError_IncludesPosition(t *testing.T) {
	_, err := Parse([]byte("preset: {\n\tname:    \"p\"\n\tprofile: \"profile-1\"\n\tnodes: {\"node-a\": \"boost\"}\n}"), "pos.cue")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pos.cue:")
}

// fakeImportStore records import calls in order.
type fakeImportStore struct {
	ops       []string
	preset    lens.Preset
	createErr error
}

func (f *fakeImportStore) CreatePreset(_ context.Context, profileID, name string, activate bool) (lens.Preset, error) {
	if f.createErr != nil {
		return lens.Preset{}, f.createErr
	}
	f.ops = append(f.ops, "preset:"+name)
	f.preset = lens.Preset{ID: "preset-1", ProfileID: profileID, Name: name, Active: activate}
	return f.preset, nil
}

func (f *fakeImportStore) UpsertPresetNode(_ context.Context, presetID, nodeID string, state lens.NodeState) error {
	f.ops = append(f.ops, "node:"+presetID+":"+nodeID+":"+string(state))
	return nil
}

func (f *fakeImportStore) UpsertGraphNode(_ context.Context, node lens.GraphNode) error {
	f.ops = append(f.ops, "catalog:"+node.ID)
	return nil
}

func TestImport(t *testing.T) {
	def, err := Parse([]byte(validDefinition), "brand.cue")
	require.NoError(t, err)

	store := &fakeImportStore{}
	preset, err := Import(context.Background(), store, def, true)
	require.NoError(t, err)

	assert.Equal(t, "preset-1", preset.ID)
	assert.True(t, preset.Active)

	// Catalog nodes land before the preset row, node states after it.
	require.GreaterOrEqual(t, len(store.ops), 6)
	assert.Equal(t, "catalog:node-a", store.ops[0])
	assert.Equal(t, "catalog:node-b", store.ops[1])
	assert.Equal(t, "preset:brand-voice", store.ops[2])
	for _, op := range store.ops[3:] {
		assert.Contains(t, op, "node:preset-1:")
	}
}

func TestImport_CreateFailureStopsNodeWrites(t *testing.T) {
	def, err := Parse([]byte(validDefinition), "brand.cue")
	require.NoError(t, err)

	store := &fakeImportStore{createErr: errors.New("db locked")}
	_, err = Import(context.Background(), store, def, false)
	require.Error(t, err)

	for _, op := range store.ops {
		assert.NotContains(t, op, "node:", "no node writes after a failed preset create")
	}
}
