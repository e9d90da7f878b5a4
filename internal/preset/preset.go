// Package preset loads preset definitions authored as CUE files and imports
// them into the tier-1 store.
//
// A definition file has the shape:
//
//	preset: {
//		name:    "brand-voice"
//		profile: "profile-1"
//		nodes: {
//			"node-a": "keep"
//			"node-b": "emphasize"
//		}
//	}
//
//	// optional node catalog for environments without an external graph sync
//	catalog: [
//		{id: "node-a", label: "Radical honesty", type: "value"},
//	]
package preset

import (
	"context"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/token"

	"github.com/mindlens/mindlens/internal/lens"
)

// Definition is a parsed preset definition.
type Definition struct {
	Name      string
	ProfileID string
	Nodes     map[string]lens.NodeState
	Catalog   []lens.GraphNode
}

// ParseError reports a definition problem with CUE position info when
// available.
type ParseError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *ParseError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// LoadFile reads and parses one CUE definition file.
func LoadFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load preset definition: %w", err)
	}
	return Parse(data, path)
}

// Parse parses a CUE definition from bytes. filename is used for error
// positions only.
func Parse(data []byte, filename string) (*Definition, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(data, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("compile preset definition: %w", err)
	}

	presetVal := v.LookupPath(cue.ParsePath("preset"))
	if !presetVal.Exists() {
		return nil, &ParseError{Field: "preset", Message: "preset struct is required", Pos: v.Pos()}
	}

	def := &Definition{Nodes: make(map[string]lens.NodeState)}

	var err error
	if def.Name, err = requiredString(presetVal, "name"); err != nil {
		return nil, err
	}
	if def.ProfileID, err = requiredString(presetVal, "profile"); err != nil {
		return nil, err
	}

	nodesVal := presetVal.LookupPath(cue.ParsePath("nodes"))
	if !nodesVal.Exists() {
		return nil, &ParseError{Field: "preset.nodes", Message: "nodes map is required", Pos: presetVal.Pos()}
	}
	iter, err := nodesVal.Fields()
	if err != nil {
		return nil, fmt.Errorf("parse preset nodes: %w", err)
	}
	for iter.Next() {
		nodeID := fieldLabel(iter.Selector())
		stateStr, err := iter.Value().String()
		if err != nil {
			return nil, &ParseError{Field: "preset.nodes." + nodeID, Message: "state must be a string", Pos: iter.Value().Pos()}
		}
		state := lens.NodeState(stateStr)
		if !state.Valid() {
			return nil, &ParseError{
				Field:   "preset.nodes." + nodeID,
				Message: fmt.Sprintf("unknown state %q (want off, keep or emphasize)", stateStr),
				Pos:     iter.Value().Pos(),
			}
		}
		def.Nodes[nodeID] = state
	}
	if len(def.Nodes) == 0 {
		return nil, &ParseError{Field: "preset.nodes", Message: "at least one node is required", Pos: nodesVal.Pos()}
	}

	if def.Catalog, err = parseCatalog(v); err != nil {
		return nil, err
	}

	return def, nil
}

func parseCatalog(v cue.Value) ([]lens.GraphNode, error) {
	catVal := v.LookupPath(cue.ParsePath("catalog"))
	if !catVal.Exists() {
		return nil, nil
	}

	iter, err := catVal.List()
	if err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	var catalog []lens.GraphNode
	for iter.Next() {
		item := iter.Value()
		var node lens.GraphNode
		if node.ID, err = requiredString(item, "id"); err != nil {
			return nil, err
		}
		if node.Label, err = requiredString(item, "label"); err != nil {
			return nil, err
		}
		typ, err := requiredString(item, "type")
		if err != nil {
			return nil, err
		}
		node.Type = lens.NodeType(typ)
		if !lens.KnownNodeTypes[node.Type] {
			return nil, &ParseError{
				Field:   "catalog",
				Message: fmt.Sprintf("unknown node type %q", typ),
				Pos:     item.Pos(),
			}
		}
		catalog = append(catalog, node)
	}
	return catalog, nil
}

func requiredString(v cue.Value, field string) (string, error) {
	fieldVal := v.LookupPath(cue.ParsePath(field))
	if !fieldVal.Exists() {
		return "", &ParseError{Field: field, Message: field + " is required", Pos: v.Pos()}
	}
	s, err := fieldVal.String()
	if err != nil {
		return "", &ParseError{Field: field, Message: "must be a string", Pos: fieldVal.Pos()}
	}
	if s == "" {
		return "", &ParseError{Field: field, Message: "must not be empty", Pos: fieldVal.Pos()}
	}
	return s, nil
}

// fieldLabel extracts the plain label of a struct field, unquoting string
// labels like "node-a".
func fieldLabel(sel cue.Selector) string {
	if sel.LabelType() == cue.StringLabel {
		return sel.Unquoted()
	}
	return sel.String()
}

// ImportStore is the store surface an import needs. Satisfied by
// store.Store.
type ImportStore interface {
	CreatePreset(ctx context.Context, profileID, name string, activate bool) (lens.Preset, error)
	UpsertPresetNode(ctx context.Context, presetID, nodeID string, state lens.NodeState) error
	UpsertGraphNode(ctx context.Context, node lens.GraphNode) error
}

// Import writes a definition into the store: catalog nodes first, then the
// preset row, then its node states. When activate is true the imported
// preset becomes the profile's active preset.
func Import(ctx context.Context, s ImportStore, def *Definition, activate bool) (lens.Preset, error) {
	for _, node := range def.Catalog {
		if err := s.UpsertGraphNode(ctx, node); err != nil {
			return lens.Preset{}, fmt.Errorf("import preset: %w", err)
		}
	}

	preset, err := s.CreatePreset(ctx, def.ProfileID, def.Name, activate)
	if err != nil {
		return lens.Preset{}, fmt.Errorf("import preset: %w", err)
	}

	for nodeID, state := range def.Nodes {
		if err := s.UpsertPresetNode(ctx, preset.ID, nodeID, state); err != nil {
			return lens.Preset{}, fmt.Errorf("import preset: %w", err)
		}
	}

	return preset, nil
}
