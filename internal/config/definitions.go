package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"transformd/internal/spec"
)

const SupportedSchema = "v1"

// LoadDefinitions parses a definitions YAML and validates schema_version.
func LoadDefinitions(path string) (spec.File, error) {
	var f spec.File
	raw, err := os.ReadFile(path)
	if err != nil {
		return f, err
	}
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return f, fmt.Errorf("definitions %s: %w", path, err)
	}
	if f.SchemaVersion == "" {
		f.SchemaVersion = SupportedSchema
	}
	if f.SchemaVersion != SupportedSchema {
		return f, fmt.Errorf("definitions schema_version %q not supported (want %q)", f.SchemaVersion, SupportedSchema)
	}
	return f, nil
}
