package router

import (
	"errors"
	"fmt"

	"github.com/askdesk/askdesk/pkg/config"
)

// ErrNoRoutes is returned when no usable provider/model pair is configured.
var ErrNoRoutes = errors.New("no routes configured")

// Route represents a resolved provider and model to try.
type Route struct {
	Provider config.ProviderConfig
	Model    string
}

func (r Route) String() string {
	return r.Provider.Name + "/" + r.Model
}

// Router turns the configured model list into an ordered provider+model chain.
type Router struct {
	cfg *config.Config
}

// New creates a Router from the given configuration.
func New(cfg *config.Config) *Router {
	return &Router{cfg: cfg}
}

// Resolve returns the ordered routes to try for a question.
// A model entry without a provider uses the first configured provider.
// Entries naming an unknown provider are skipped.
func (r *Router) Resolve() ([]Route, error) {
	if len(r.cfg.Providers) == 0 {
		return nil, fmt.Errorf("resolve routes: %w: no providers", ErrNoRoutes)
	}

	providerIndex := make(map[string]config.ProviderConfig, len(r.cfg.Providers))
	for _, p := range r.cfg.Providers {
		providerIndex[p.Name] = p
	}

	var routes []Route
	for _, target := range r.cfg.Models {
		if target.Model == "" {
			continue
		}
		provider := r.cfg.Providers[0]
		if target.Provider != "" {
			p, ok := providerIndex[target.Provider]
			if !ok {
				continue // skip unknown providers
			}
			provider = p
		}
		routes = append(routes, Route{Provider: provider, Model: target.Model})
	}
	if len(routes) == 0 {
		return nil, fmt.Errorf("resolve routes: %w", ErrNoRoutes)
	}
	return routes, nil
}
