package rendition

import (
	"errors"
	"maps"
)

var (
	ErrDuplicateDefinition = errors.New("rendition: duplicate definition")
	ErrUnknownDefinition   = errors.New("rendition: unknown definition")
	ErrInvalidDefinition   = errors.New("rendition: invalid definition")
)

// Definition names a rendition, the mimetype it produces and the flat option
// map handed to transform back-ends.
type Definition struct {
	Name           string
	TargetMimetype string
	Options        map[string]string
}

// NewDefinition copies options so later changes by the caller are not seen.
func NewDefinition(name, targetMimetype string, options map[string]string) Definition {
	return Definition{Name: name, TargetMimetype: targetMimetype, Options: maps.Clone(options)}
}

func (d Definition) validate() error {
	if d.Name == "" {
		return errors.Join(ErrInvalidDefinition, errors.New("name is required"))
	}
	if d.TargetMimetype == "" {
		return errors.Join(ErrInvalidDefinition, errors.New("target mimetype is required for "+d.Name))
	}
	return nil
}

// CapabilitySource answers whether a transform from one mimetype to another
// is possible with the given options, and up to which source size.
type CapabilitySource interface {
	IsSupported(sourceMimetype string, sourceSize int64, targetMimetype string, options map[string]string, renditionName string) bool
	// MaxSize returns -1 for unlimited, 0 for unsupported, or a positive
	// byte bound. ok is false when no engine knows the combination at all.
	MaxSize(sourceMimetype, targetMimetype string, options map[string]string, renditionName string) (size int64, ok bool)
}

// Capability is a cached (rendition, max source size) pair.
type Capability struct {
	Name    string `json:"name"`
	MaxSize int64  `json:"maxSize"`
}

// Allows reports whether a source of the given size may be rendered.
func (c Capability) Allows(size int64) bool {
	if c.MaxSize == 0 {
		return false
	}
	return c.MaxSize == -1 || c.MaxSize >= size
}
