// Package catalog loads the gas compatibility catalogue and the optional
// operation permission table from YAML.
package catalog

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"cylindercore/internal/core"
	"cylindercore/pkg/domain"
)

//go:embed default.yaml
var defaultCatalog []byte

// Catalog is the decoded catalogue document.
type Catalog struct {
	Version       int                       `yaml:"version"`
	Compatibility domain.CompatibilityRules `yaml:"compatibility"`
	// Permissions maps service operation names to the roles allowed to run them.
	Permissions map[string][]string `yaml:"permissions"`
}

// Default returns the built-in catalogue.
func Default() Catalog {
	c, err := Parse(bytes.NewReader(defaultCatalog))
	if err != nil {
		panic(fmt.Sprintf("catalog: invalid built-in catalogue: %v", err))
	}
	return c
}

// Load reads the catalogue at path. An empty path yields Default.
func Load(path string) (Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	f, err := os.Open(path) // #nosec G304 -- operator supplied path
	if err != nil {
		return Catalog{}, fmt.Errorf("failed to read catalog: %w", err)
	}
	defer func() { _ = f.Close() }()
	c, err := Parse(f)
	if err != nil {
		return Catalog{}, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Parse decodes and validates a catalogue document. Unknown fields are
// rejected.
func Parse(r io.Reader) (Catalog, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var c Catalog
	if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return Catalog{}, fmt.Errorf("failed to parse catalog: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Catalog{}, err
	}
	return c, nil
}

// Validate checks rule bounds and that permissions name known operations.
func (c Catalog) Validate() error {
	if c.Version > 1 {
		return fmt.Errorf("unsupported catalog version %d", c.Version)
	}
	var errs []error
	for i, r := range c.Compatibility {
		switch {
		case strings.TrimSpace(r.GasTypeID) == "":
			errs = append(errs, fmt.Errorf("compatibility[%d]: gas_type_id is required", i))
		case r.MinCapacity < 0 || r.MaxCapacity < 0:
			errs = append(errs, fmt.Errorf("compatibility[%d]: capacity bounds must not be negative", i))
		case r.MaxCapacity > 0 && r.MinCapacity > r.MaxCapacity:
			errs = append(errs, fmt.Errorf("compatibility[%d]: min_capacity_liters exceeds max_capacity_liters", i))
		}
	}
	known := core.Operations()
	for op, roles := range c.Permissions {
		if !slices.Contains(known, op) {
			errs = append(errs, fmt.Errorf("permissions: unknown operation %q", op))
		}
		if len(roles) == 0 {
			errs = append(errs, fmt.Errorf("permissions: operation %q lists no roles", op))
		}
	}
	return errors.Join(errs...)
}

// Authorizer returns the permission table as a core.Authorizer. Without
// permissions every action is allowed.
func (c Catalog) Authorizer() core.Authorizer {
	if len(c.Permissions) == 0 {
		return core.AllowAll{}
	}
	return core.RoleAuthorizer(c.Permissions)
}

// GasTypes returns the gas type ids governed by compatibility rules.
func (c Catalog) GasTypes() []string {
	ids := make([]string, 0, len(c.Compatibility))
	for _, r := range c.Compatibility {
		if !slices.Contains(ids, r.GasTypeID) {
			ids = append(ids, r.GasTypeID)
		}
	}
	slices.Sort(ids)
	return ids
}
