package tools

import (
	"context"
	"encoding/json"
	"log"
	"sort"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// Registry stores tools by name with single-writer / many-reader discipline.
// Execute resolves under a read guard and releases it before invoking the
// tool, so in-flight calls are never invalidated by concurrent registration.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool

	// Warn receives non-fatal registry notices (duplicate registration).
	// Nil disables them.
	Warn *log.Logger
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register inserts t by name. Registering over an existing name overwrites
// the previous entry with a warning; it is not an error.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	_, dup := r.tools[t.Name()]
	r.tools[t.Name()] = t
	r.mu.Unlock()
	if dup && r.Warn != nil {
		r.Warn.Printf("tool %q re-registered, previous entry replaced", t.Name())
	}
}

// Unregister removes the named tool. Unknown names are a no-op.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	delete(r.tools, name)
	r.mu.Unlock()
}

// Get returns the named tool.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// List returns a name-sorted snapshot of the registered tool definitions.
func (r *Registry) List() []Definition {
	r.mu.RLock()
	defs := make([]Definition, 0, len(r.tools))
	for _, t := range r.tools {
		defs = append(defs, Definition{
			Name:        t.Name(),
			Description: t.Description(),
			InputSchema: t.Schema(),
		})
	}
	r.mu.RUnlock()
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Execute resolves name, validates args against the tool's schema, and runs
// the tool. Validation failure returns ErrInvalidInput without invoking the
// tool; unknown names return ErrUnknownTool.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (string, error) {
	t, ok := r.Get(name)
	if !ok {
		return "", Errf(ErrUnknownTool, name, "unknown tool %q (registered: %s)", name, strings.Join(r.names(), ", "))
	}
	if err := validateArgs(t, args); err != nil {
		return "", err
	}
	return t.Execute(ctx, args)
}

func (r *Registry) names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

func validateArgs(t Tool, args map[string]any) error {
	schemaJSON, err := json.Marshal(t.Schema())
	if err != nil {
		return Errf(ErrInvalidInput, t.Name(), "tool schema is not serializable: %v", err)
	}
	if args == nil {
		args = map[string]any{}
	}
	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(schemaJSON),
		gojsonschema.NewGoLoader(args),
	)
	if err != nil {
		return Errf(ErrInvalidInput, t.Name(), "schema validation failed: %v", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			msgs = append(msgs, desc.String())
		}
		return Errf(ErrInvalidInput, t.Name(), "%s", strings.Join(msgs, "; "))
	}
	return nil
}
