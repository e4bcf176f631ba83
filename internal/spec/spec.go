// Package spec is the on-disk format of the rendition definitions file.
package spec

import (
	"errors"
	"fmt"

	"transformd/internal/rendition"
)

type DefinitionSpec struct {
	Name           string            `yaml:"name"`
	TargetMimetype string            `yaml:"target_mimetype"`
	Options        map[string]string `yaml:"options"`
}

type File struct {
	SchemaVersion string `yaml:"schema_version"`

	// Definitions are registered in file order.
	Definitions []DefinitionSpec `yaml:"definitions"`
}

// Build converts the file into definitions, rejecting duplicate names.
func (f File) Build() ([]rendition.Definition, error) {
	seen := map[string]bool{}
	out := make([]rendition.Definition, 0, len(f.Definitions))
	var errs []error
	for i, d := range f.Definitions {
		switch {
		case d.Name == "":
			errs = append(errs, fmt.Errorf("definitions[%d]: name is required", i))
			continue
		case d.TargetMimetype == "":
			errs = append(errs, fmt.Errorf("definitions[%d] %q: target_mimetype is required", i, d.Name))
			continue
		case seen[d.Name]:
			errs = append(errs, fmt.Errorf("definitions[%d]: %w: %q", i, rendition.ErrDuplicateDefinition, d.Name))
			continue
		}
		seen[d.Name] = true
		out = append(out, rendition.NewDefinition(d.Name, d.TargetMimetype, d.Options))
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}
