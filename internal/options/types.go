package options

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnmappableOptions  = errors.New("options: unmappable options")
	ErrInvalidOptionValue = errors.New("options: invalid option value")
)

// UnmappableOptionsError lists the media keys no family knows about.
type UnmappableOptionsError struct {
	Rendition string
	Keys      []string
}

func (e *UnmappableOptionsError) Error() string {
	if len(e.Keys) == 0 {
		return fmt.Sprintf("options: rendition %q mixes options from more than one family", e.Rendition)
	}
	return fmt.Sprintf("options: rendition %q has unmappable options: %s", e.Rendition, strings.Join(e.Keys, ", "))
}

func (e *UnmappableOptionsError) Is(target error) bool { return target == ErrUnmappableOptions }

type InvalidOptionValueError struct {
	Rendition string
	Key       string
	Value     string
}

func (e *InvalidOptionValueError) Error() string {
	return fmt.Sprintf("options: rendition %q: invalid value %q for %s", e.Rendition, e.Value, e.Key)
}

func (e *InvalidOptionValueError) Is(target error) bool { return target == ErrInvalidOptionValue }

type Kind int

const (
	KindNone Kind = iota
	KindFlash
	KindImage
	KindPDF
)

func (k Kind) String() string {
	switch k {
	case KindFlash:
		return "flash"
	case KindImage:
		return "image"
	case KindPDF:
		return "pdf"
	default:
		return "none"
	}
}

// Limits caps a transform; -1 means unset.
type Limits struct {
	TimeoutMs           int64
	ReadLimitTimeMs     int64
	MaxSourceSizeKBytes int64
	ReadLimitKBytes     int64
	MaxPages            int
	PageLimit           int
}

func NoLimits() Limits {
	return Limits{-1, -1, -1, -1, -1, -1}
}

// MaxSourceSizeBytes converts the KB cap to bytes, -1 when unset.
func (l Limits) MaxSourceSizeBytes() int64 {
	if l.MaxSourceSizeKBytes < 0 {
		return -1
	}
	return l.MaxSourceSizeKBytes * 1024
}

type TransformationOptions struct {
	Kind            Kind
	IncludeEmbedded bool
	Limits          Limits

	Flash *FlashOptions
	Image *ImageOptions
	PDF   *PDFOptions
}

type FlashOptions struct {
	Version string
}

// ImageOptions carries independent, optional sub-structures.
type ImageOptions struct {
	AlphaRemove    bool
	AutoOrient     bool
	CommandOptions string

	Paging   *PagingOptions
	Crop     *CropOptions
	Temporal *TemporalOptions
	Resize   *ResizeOptions
}

type PagingOptions struct {
	StartPage int
	EndPage   int
}

type CropOptions struct {
	Gravity    string
	Width      int
	Height     int
	Percentage bool
	XOffset    int
	YOffset    int
}

// TemporalOptions holds HH:MM:SS[.fff] offsets into a video source.
type TemporalOptions struct {
	Offset   string
	Duration string
}

type ResizeOptions struct {
	Width               int
	Height              int
	Percentage          bool
	AllowEnlargement    bool
	MaintainAspectRatio bool
	Thumbnail           bool
}

type PDFOptions struct {
	Page                int
	Width               int
	Height              int
	AllowEnlargement    bool
	MaintainAspectRatio bool
}
