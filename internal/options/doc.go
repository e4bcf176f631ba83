// Package options maps the flat option map of a rendition definition onto
// the structured options understood by the legacy transform engine.
//
// Translation is pure. Keys are split into limits, the include-embedded flag
// and media keys; the media keys must all belong to one option family, tried
// in a fixed order (flash, image, pdf). The first family containing every
// media key wins.
package options
