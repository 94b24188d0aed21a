// Package registry tracks the Pure API schema versions this client supports
// and the collections each version exposes.
//
// Collection names come from the swagger document of each version (the
// document's tags). They are derived once per version and memoized for the
// lifetime of the Registry.
package registry

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"
)

// Registry validates (collection, version) pairs before any request is built.
// A Registry is safe for concurrent use.
type Registry struct {
	source   Source
	versions []string

	mu          sync.Mutex
	collections map[string][]string
	sets        map[string]map[string]struct{}
}

// New creates a registry backed by the given schema source.
// A nil source uses the schema documents embedded in this package.
func New(src Source) (*Registry, error) {
	if src == nil {
		src = EmbeddedSource()
	}

	versions, err := src.Versions()
	if err != nil {
		return nil, fmt.Errorf("list schema versions: %w", err)
	}
	if len(versions) == 0 {
		return nil, fmt.Errorf("schema source has no versions")
	}

	sorted := slices.Clone(versions)
	slices.SortFunc(sorted, CompareVersions)

	return &Registry{
		source:      src,
		versions:    sorted,
		collections: make(map[string][]string),
		sets:        make(map[string]map[string]struct{}),
	}, nil
}

// Versions returns all known versions, oldest first.
func (r *Registry) Versions() []string {
	return slices.Clone(r.versions)
}

// LatestVersion returns the newest known version.
func (r *Registry) LatestVersion() string {
	return r.versions[len(r.versions)-1]
}

// OldestVersion returns the oldest known version.
func (r *Registry) OldestVersion() string {
	return r.versions[0]
}

// ValidVersion reports whether version is one of the known versions.
func (r *Registry) ValidVersion(version string) bool {
	return slices.Contains(r.versions, version)
}

// ValidateVersion returns an *InvalidVersionError when version is unknown.
func (r *Registry) ValidateVersion(version string) error {
	if !r.ValidVersion(version) {
		return &InvalidVersionError{Version: version}
	}
	return nil
}

// Collections returns the collection names for version in schema order.
func (r *Registry) Collections(version string) ([]string, error) {
	if err := r.ValidateVersion(version); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if names, ok := r.collections[version]; ok {
		return slices.Clone(names), nil
	}

	schema, err := r.source.Schema(version)
	if err != nil {
		return nil, fmt.Errorf("load schema %s: %w", version, err)
	}

	names := schema.CollectionNames()
	set := make(map[string]struct{}, len(names))
	for _, name := range names {
		set[name] = struct{}{}
	}
	r.collections[version] = names
	r.sets[version] = set

	return slices.Clone(names), nil
}

// ValidCollection reports whether name is a collection of version.
// It fails with an *InvalidVersionError when version is unknown.
func (r *Registry) ValidCollection(name, version string) (bool, error) {
	if _, err := r.Collections(version); err != nil {
		return false, err
	}

	r.mu.Lock()
	_, ok := r.sets[version][name]
	r.mu.Unlock()

	return ok, nil
}

// ValidateCollection returns an *InvalidVersionError or *InvalidCollectionError
// when the pair is not servable.
func (r *Registry) ValidateCollection(name, version string) error {
	ok, err := r.ValidCollection(name, version)
	if err != nil {
		return err
	}
	if !ok {
		return &InvalidCollectionError{Collection: name, Version: version}
	}
	return nil
}

// CollectionFromPath extracts and validates the collection segment of a
// resource path such as "persons/1234" or "changes/2020-03-12".
func (r *Registry) CollectionFromPath(resourcePath, version string) (string, error) {
	collection := Basename(resourcePath)
	if err := r.ValidateCollection(collection, version); err != nil {
		return "", err
	}
	return collection, nil
}

// Basename returns the first segment of a resource path.
func Basename(resourcePath string) string {
	collection, _, _ := strings.Cut(strings.TrimPrefix(resourcePath, "/"), "/")
	return collection
}

// CompareVersions orders versions numerically when both parse as integers
// ("99" < "520") and lexically otherwise.
func CompareVersions(a, b string) int {
	ai, aErr := strconv.Atoi(a)
	bi, bErr := strconv.Atoi(b)
	if aErr == nil && bErr == nil {
		switch {
		case ai < bi:
			return -1
		case ai > bi:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(a, b)
}
