package registry

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"path"
)

//go:embed schemas
var embeddedSchemas embed.FS

// Schema is the subset of a Pure API swagger document the registry needs.
type Schema struct {
	Swagger  string `json:"swagger"`
	BasePath string `json:"basePath"`
	Info     struct {
		Title   string `json:"title"`
		Version string `json:"version"`
	} `json:"info"`
	Tags []Tag `json:"tags"`
}

// Tag is a swagger tag. Pure names one tag per collection.
type Tag struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// CollectionNames returns the tag names in document order.
func (s *Schema) CollectionNames() []string {
	names := make([]string, 0, len(s.Tags))
	for _, tag := range s.Tags {
		names = append(names, tag.Name)
	}
	return names
}

// Source supplies schema documents by version.
type Source interface {
	// Versions lists the versions the source has documents for.
	Versions() ([]string, error)

	// Schema returns the document for version.
	Schema(version string) (*Schema, error)
}

// FSSource reads "<version>/swagger.json" documents below Root in FS.
type FSSource struct {
	FS   fs.FS
	Root string
}

// EmbeddedSource returns the schema documents compiled into this package.
func EmbeddedSource() *FSSource {
	return &FSSource{FS: embeddedSchemas, Root: "schemas"}
}

// Versions implements Source.
func (s *FSSource) Versions() ([]string, error) {
	entries, err := fs.ReadDir(s.FS, s.Root)
	if err != nil {
		return nil, err
	}

	var versions []string
	for _, entry := range entries {
		if entry.IsDir() {
			versions = append(versions, entry.Name())
		}
	}
	return versions, nil
}

// Schema implements Source.
func (s *FSSource) Schema(version string) (*Schema, error) {
	data, err := fs.ReadFile(s.FS, path.Join(s.Root, version, "swagger.json"))
	if err != nil {
		return nil, err
	}

	var schema Schema
	if err := json.Unmarshal(data, &schema); err != nil {
		return nil, fmt.Errorf("decode swagger document: %w", err)
	}
	return &schema, nil
}

// MapSource serves in-memory collection lists, keyed by version.
type MapSource map[string][]string

// Versions implements Source.
func (m MapSource) Versions() ([]string, error) {
	versions := make([]string, 0, len(m))
	for version := range m {
		versions = append(versions, version)
	}
	return versions, nil
}

// Schema implements Source.
func (m MapSource) Schema(version string) (*Schema, error) {
	names, ok := m[version]
	if !ok {
		return nil, fmt.Errorf("no schema for version %s", version)
	}

	schema := &Schema{Swagger: "2.0"}
	schema.Info.Version = version
	for _, name := range names {
		schema.Tags = append(schema.Tags, Tag{Name: name})
	}
	return schema, nil
}
