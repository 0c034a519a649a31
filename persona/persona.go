// Package persona loads the static participant descriptors that drive the
// two simulated call parties.
//
// Persona content is deploy-time static and treated as a read-only external
// data source: descriptors are validated against a JSON schema on load and
// cached in an explicitly constructed Cache that is injected into the
// components that need it. The cache offers a manual Clear for refresh;
// there is no implicit invalidation.
package persona

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

// Participant roles a persona can play.
const (
	RoleAgent    = "agent"
	RoleCustomer = "customer"
)

// descriptorSchema is the JSON schema every persona file must satisfy.
const descriptorSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["name", "role", "system_prompt"],
  "additionalProperties": false,
  "properties": {
    "name":          {"type": "string", "minLength": 1},
    "role":          {"type": "string", "enum": ["agent", "customer"]},
    "system_prompt": {"type": "string", "minLength": 1},
    "introduction":  {"type": "string"}
  }
}`

// Descriptor is a read-only persona definition.
type Descriptor struct {
	Name         string `json:"name" yaml:"name"`
	Role         string `json:"role" yaml:"role"`
	SystemPrompt string `json:"system_prompt" yaml:"system_prompt"`
	Introduction string `json:"introduction,omitempty" yaml:"introduction,omitempty"`
}

// Cache loads persona descriptors from a directory and memoizes them for
// the process lifetime. It is safe for concurrent use.
type Cache struct {
	dir string

	mu       sync.RWMutex
	personas map[string]*Descriptor
}

// NewCache creates a persona cache reading from dir.
func NewCache(dir string) *Cache {
	return &Cache{
		dir:      dir,
		personas: make(map[string]*Descriptor),
	}
}

// Get returns the descriptor for the named persona, loading and validating
// it on first access.
func (c *Cache) Get(name string) (*Descriptor, error) {
	c.mu.RLock()
	d, ok := c.personas[name]
	c.mu.RUnlock()
	if ok {
		return d, nil
	}

	d, err := c.load(name)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.personas[name] = d
	c.mu.Unlock()

	return d, nil
}

// Clear empties the cache so subsequent Gets reload from disk.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.personas = make(map[string]*Descriptor)
	c.mu.Unlock()
}

// load reads and validates a persona file. JSON and YAML are both accepted.
func (c *Cache) load(name string) (*Descriptor, error) {
	if name == "" || name != filepath.Base(name) || strings.Contains(name, ".") {
		return nil, fmt.Errorf("invalid persona name %q", name)
	}

	path, data, err := c.readFirst(name)
	if err != nil {
		return nil, err
	}

	// Normalize to JSON for schema validation.
	jsonData := data
	if ext := filepath.Ext(path); ext == ".yaml" || ext == ".yml" {
		var tmp interface{}
		if err := yaml.Unmarshal(data, &tmp); err != nil {
			return nil, fmt.Errorf("failed to parse YAML persona file %s: %w", path, err)
		}
		jsonData, err = json.Marshal(tmp)
		if err != nil {
			return nil, fmt.Errorf("failed to convert persona %s to JSON: %w", path, err)
		}
	}

	if err := validateDescriptor(jsonData, path); err != nil {
		return nil, err
	}

	var d Descriptor
	if err := json.Unmarshal(jsonData, &d); err != nil {
		return nil, fmt.Errorf("failed to parse persona file %s: %w", path, err)
	}

	if d.Role == RoleAgent && d.Introduction == "" {
		return nil, fmt.Errorf("persona %s: agent personas require an introduction", d.Name)
	}

	return &d, nil
}

// readFirst returns the first persona file found for name, trying JSON
// before YAML.
func (c *Cache) readFirst(name string) (string, []byte, error) {
	for _, ext := range []string{".json", ".yaml", ".yml"} {
		path := filepath.Join(c.dir, name+ext)
		data, err := os.ReadFile(path)
		if err == nil {
			return path, data, nil
		}
		if !os.IsNotExist(err) {
			return "", nil, fmt.Errorf("failed to read persona file %s: %w", path, err)
		}
	}
	return "", nil, fmt.Errorf("persona %q not found in %s", name, c.dir)
}

// validateDescriptor checks the descriptor JSON against the embedded schema.
func validateDescriptor(jsonData []byte, path string) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(descriptorSchema),
		gojsonschema.NewBytesLoader(jsonData),
	)
	if err != nil {
		return fmt.Errorf("schema validation failed for %s: %w", path, err)
	}

	if !result.Valid() {
		var errorMessages []string
		for _, e := range result.Errors() {
			errorMessages = append(errorMessages, fmt.Sprintf("  - %s: %s", e.Field(), e.Description()))
		}
		return fmt.Errorf("persona %s does not match schema:\n%s", path, strings.Join(errorMessages, "\n"))
	}

	return nil
}
