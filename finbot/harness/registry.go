package harness

import (
	harnessports "github.com/finbot-ai/finbot/finbot/harness/ports"
)

// Registry holds the fixed set of tools exposed to the model. Registration
// order is preserved so tool declarations are stable across calls.
type Registry struct {
	tools map[string]harnessports.Tool
	order []string
}

func NewRegistry(tools ...harnessports.Tool) *Registry {
	r := &Registry{tools: make(map[string]harnessports.Tool, len(tools))}
	for _, t := range tools {
		if _, dup := r.tools[t.Name()]; dup {
			continue
		}
		r.tools[t.Name()] = t
		r.order = append(r.order, t.Name())
	}
	return r
}

// Lookup returns the tool registered under name.
func (r *Registry) Lookup(name string) (harnessports.Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Specs returns provider-facing declarations for every registered tool.
func (r *Registry) Specs() []harnessports.ToolSpec {
	specs := make([]harnessports.ToolSpec, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		specs = append(specs, harnessports.ToolSpec{
			Name:        t.Name(),
			Description: t.Description(),
			JSONSchema:  t.Schema(),
		})
	}
	return specs
}

// SpecFor returns the declaration for a single tool.
func (r *Registry) SpecFor(name string) (harnessports.ToolSpec, bool) {
	t, ok := r.tools[name]
	if !ok {
		return harnessports.ToolSpec{}, false
	}
	return harnessports.ToolSpec{
		Name:        t.Name(),
		Description: t.Description(),
		JSONSchema:  t.Schema(),
	}, true
}
