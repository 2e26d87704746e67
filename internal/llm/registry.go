package llm

import "fmt"

// Route names used by the generators.
const (
	RouteDocstring = "docstring"
	RouteTest      = "test"
)

// ModelRoute binds a logical route to a provider and physical model name.
type ModelRoute struct {
	Name        string
	Provider    string
	Model       string
	Temperature float64
	MaxTokens   int
}

// Registry resolves routes to providers.
type Registry struct {
	providers    map[string]Provider
	models       map[string]ModelRoute
	defaultModel string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
		models:    make(map[string]ModelRoute),
	}
}

// RegisterProvider adds a provider implementation.
func (r *Registry) RegisterProvider(name string, p Provider) {
	r.providers[name] = p
}

// RegisterModel adds a model route.
func (r *Registry) RegisterModel(name string, route ModelRoute, isDefault bool) {
	route.Name = name
	r.models[name] = route
	if isDefault || r.defaultModel == "" {
		r.defaultModel = name
	}
}

// Resolve returns the provider and route for a given route name. Unknown or empty names fall back
// to the default route.
func (r *Registry) Resolve(name string) (Provider, ModelRoute, error) {
	route, ok := r.models[name]
	if !ok {
		if r.defaultModel == "" {
			return nil, ModelRoute{}, fmt.Errorf("model %q not registered", name)
		}
		route = r.models[r.defaultModel]
	}

	p, ok := r.providers[route.Provider]
	if !ok {
		return nil, ModelRoute{}, fmt.Errorf("provider %q not registered for model %q", route.Provider, route.Name)
	}

	return p, route, nil
}
