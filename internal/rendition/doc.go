// Package rendition holds rendition definitions and the registry that decides
// which renditions are currently possible for a given source mimetype and
// size. Capability lookups are cached per source mimetype in an explicit
// Cache owned by the Registry.
package rendition
