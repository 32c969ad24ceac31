// Package catalog loads the declarative list of known prebuilt extension
// packages. The catalog is read once per run and immutable afterwards.
package catalog

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	apperrors "git.home.luguber.info/inful/docsmith/internal/errors"
)

// Package describes one third-party extension package.
// Identity is (Name, Registry).
type Package struct {
	Name      string `yaml:"name"`
	Ecosystem string `yaml:"ecosystem"` // display ecosystem, e.g. "Python"
	Registry  string `yaml:"registry"`  // scheme:identifier, e.g. "pypi:pydantic-extra-types"
	Repo      string `yaml:"repo"`      // source repository URL
}

// Identity returns the unique catalog identity of the package.
func (p Package) Identity() string { return p.Name + "@" + p.Registry }

// RegistryScheme returns the registry scheme portion of the Registry field
// ("pypi" for "pypi:pydantic-extra-types"). Empty when malformed.
func (p Package) RegistryScheme() string {
	scheme, _, ok := strings.Cut(p.Registry, ":")
	if !ok {
		return ""
	}
	return scheme
}

// RegistryID returns the registry-local identifier portion of the Registry field.
func (p Package) RegistryID() string {
	_, id, ok := strings.Cut(p.Registry, ":")
	if !ok {
		return ""
	}
	return id
}

// Catalog is the loaded, validated package list. File order is preserved.
type Catalog struct {
	packages []Package
}

type catalogFile struct {
	Packages []Package `yaml:"packages"`
}

// Load reads and validates the catalog file. Any malformation (missing
// required field, duplicate identity) is fatal for the run since every
// downstream step depends on the catalog.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.CatalogMalformed(path, err)
	}

	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, apperrors.CatalogMalformed(path, err)
	}

	seen := make(map[string]struct{}, len(file.Packages))
	for i, p := range file.Packages {
		label := p.Name
		if label == "" {
			label = fmt.Sprintf("entry %d", i)
		}
		switch {
		case p.Name == "":
			return nil, apperrors.CatalogMissingField(label, "name")
		case p.Ecosystem == "":
			return nil, apperrors.CatalogMissingField(label, "ecosystem")
		case p.Registry == "":
			return nil, apperrors.CatalogMissingField(label, "registry")
		case p.Repo == "":
			return nil, apperrors.CatalogMissingField(label, "repo")
		}
		if p.RegistryScheme() == "" || p.RegistryID() == "" {
			return nil, apperrors.CatalogMalformed(path,
				fmt.Errorf("package %s: registry %q is not scheme:identifier", p.Name, p.Registry))
		}
		if _, dup := seen[p.Identity()]; dup {
			return nil, apperrors.CatalogDuplicate(p.Name, p.Registry)
		}
		seen[p.Identity()] = struct{}{}
	}

	return &Catalog{packages: file.Packages}, nil
}

// List returns the packages in file order. The returned slice is a copy so
// callers cannot mutate the catalog.
func (c *Catalog) List() []Package {
	out := make([]Package, len(c.packages))
	copy(out, c.packages)
	return out
}

// Len returns the number of packages in the catalog.
func (c *Catalog) Len() int { return len(c.packages) }
