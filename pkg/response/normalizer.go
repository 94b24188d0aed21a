package response

import (
	"fmt"
	"sync"

	"github.com/Sternrassler/pure-api-client/pkg/registry"
)

type transformKey struct {
	collection string
	version    string
}

// Normalizer resolves transforms by (collection, version). It is safe for
// concurrent use.
type Normalizer struct {
	registry *registry.Registry

	mu           sync.RWMutex
	transformers map[transformKey]TransformFunc
}

// New creates a normalizer with the built-in transforms registered for
// every version of reg that exposes their collection.
func New(reg *registry.Registry) (*Normalizer, error) {
	n := &Normalizer{
		registry:     reg,
		transformers: make(map[transformKey]TransformFunc),
	}

	for _, version := range reg.Versions() {
		for collection, fn := range defaultTransforms {
			ok, err := reg.ValidCollection(collection, version)
			if err != nil {
				return nil, fmt.Errorf("register transforms for version %s: %w", version, err)
			}
			if ok {
				n.transformers[transformKey{collection, version}] = fn
			}
		}
	}
	return n, nil
}

// Register installs fn for collection in version, replacing any existing
// transform.
func (n *Normalizer) Register(collection, version string, fn TransformFunc) error {
	if err := n.registry.ValidateVersion(version); err != nil {
		return err
	}
	collection = registry.Basename(collection)
	if err := n.registry.ValidateCollection(collection, version); err != nil {
		return err
	}

	n.mu.Lock()
	n.transformers[transformKey{collection, version}] = fn
	n.mu.Unlock()
	return nil
}

// TransformerFor returns the transform for the basename of collection in
// version, or Default when none is registered.
func (n *Normalizer) TransformerFor(collection, version string) (TransformFunc, error) {
	if err := n.registry.ValidateVersion(version); err != nil {
		return nil, err
	}
	collection = registry.Basename(collection)
	if err := n.registry.ValidateCollection(collection, version); err != nil {
		return nil, err
	}

	n.mu.RLock()
	fn, ok := n.transformers[transformKey{collection, version}]
	n.mu.RUnlock()
	if !ok {
		return Default, nil
	}
	return fn, nil
}

// Transform copies raw and applies the transform for (collection, version).
// raw itself is never modified.
func (n *Normalizer) Transform(collection string, raw map[string]any, version string) (Record, error) {
	fn, err := n.TransformerFor(collection, version)
	if err != nil {
		return nil, err
	}
	return fn(NewRecord(raw)), nil
}
