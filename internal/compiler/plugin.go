package compiler

import (
	"log/slog"

	"github.com/mindlens/mindlens/internal/lens"
)

// TargetPlugin compiles an effective lens for one output target. New
// targets are added by registering a new plugin, never by branching inside
// the compiler.
type TargetPlugin interface {
	// Target is the identifier plugins are looked up by.
	Target() string

	// Compile performs the target's own type-to-bucket mapping and
	// rendering. Exclusion of off nodes is universal and enforced by the
	// bucketing helpers every plugin builds on.
	Compile(l *lens.EffectiveLens) CompiledContext
}

// Registry maps target identifiers to plugins. Explicitly constructed and
// passed where needed - no ambient global registry.
type Registry struct {
	plugins map[string]TargetPlugin
}

// NewRegistry creates a registry with the built-in targets registered.
func NewRegistry() *Registry {
	r := &Registry{plugins: make(map[string]TargetPlugin)}
	r.Register(CopyPlugin{})
	r.Register(VisualPlugin{})
	return r
}

// Register adds or replaces a plugin under its target identifier.
func (r *Registry) Register(p TargetPlugin) {
	r.plugins[p.Target()] = p
}

// Targets returns the registered target identifiers.
func (r *Registry) Targets() []string {
	targets := make([]string, 0, len(r.plugins))
	for t := range r.plugins {
		targets = append(targets, t)
	}
	return targets
}

// Compile compiles a lens for a target. An empty or unregistered target
// falls back to the default compiler.
func (r *Registry) Compile(l *lens.EffectiveLens, target string) CompiledContext {
	if target == "" {
		return CompileDefault(l)
	}
	plugin, ok := r.plugins[target]
	if !ok {
		slog.Debug("no plugin for compile target, using default", "target", target)
		return CompileDefault(l)
	}
	return plugin.Compile(l)
}
