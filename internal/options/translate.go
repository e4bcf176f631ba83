package options

import (
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

var temporalPattern = regexp.MustCompile(`^\d\d:\d\d:\d\d(\.\d+)?$`)

// Translate converts a rendition's flat options to TransformationOptions.
func Translate(renditionName string, flat map[string]string) (*TransformationOptions, error) {
	p := parser{rendition: renditionName, opts: flat}

	var media []string
	for k := range flat {
		if limitKeys.has(k) || k == KeyIncludeContents {
			continue
		}
		media = append(media, k)
	}
	slices.Sort(media)

	out := &TransformationOptions{Kind: KindNone}
	if len(media) > 0 {
		matched := false
		for _, f := range families {
			if f.keys.containsAll(media) {
				out.Kind = f.kind
				matched = true
				break
			}
		}
		if !matched {
			return nil, &UnmappableOptionsError{Rendition: renditionName, Keys: unmatched(media)}
		}
	}

	switch out.Kind {
	case KindFlash:
		out.Flash = &FlashOptions{Version: flat[KeyFlashVersion]}
	case KindImage:
		out.Image = p.image()
	case KindPDF:
		out.PDF = p.pdf()
	}

	out.IncludeEmbedded = p.boolean(KeyIncludeContents, false)
	out.Limits = p.limits()

	if p.err != nil {
		return nil, p.err
	}
	return out, nil
}

// unmatched returns the media keys that belong to no family at all.
func unmatched(media []string) []string {
	var out []string
	for _, k := range media {
		known := false
		for _, f := range families {
			if f.keys.has(k) {
				known = true
				break
			}
		}
		if !known {
			out = append(out, k)
		}
	}
	return out
}

type parser struct {
	rendition string
	opts      map[string]string
	err       error
}

func (p *parser) fail(key, val string) {
	if p.err == nil {
		p.err = &InvalidOptionValueError{Rendition: p.rendition, Key: key, Value: val}
	}
}

func (p *parser) int64(key string, def int64) int64 {
	raw, ok := p.opts[key]
	if !ok {
		return def
	}
	s := strings.TrimSpace(raw)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f > math.MaxInt64 || f < math.MinInt64 {
		p.fail(key, raw)
		return def
	}
	return int64(f)
}

func (p *parser) int(key string, def int) int {
	n := p.int64(key, int64(def))
	if n > math.MaxInt32 || n < math.MinInt32 {
		p.fail(key, p.opts[key])
		return def
	}
	return int(n)
}

func (p *parser) boolean(key string, def bool) bool {
	raw, ok := p.opts[key]
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		p.fail(key, raw)
		return def
	}
	return b
}

func (p *parser) temporal(key string) string {
	raw, ok := p.opts[key]
	if !ok {
		return ""
	}
	if !temporalPattern.MatchString(raw) {
		p.fail(key, raw)
		return ""
	}
	return raw
}

func (p *parser) limits() Limits {
	l := NoLimits()
	l.TimeoutMs = p.int64(KeyTimeout, l.TimeoutMs)
	l.ReadLimitTimeMs = p.int64(KeyReadLimitTimeMs, l.ReadLimitTimeMs)
	l.MaxSourceSizeKBytes = p.int64(KeyMaxSourceSizeKBytes, l.MaxSourceSizeKBytes)
	l.ReadLimitKBytes = p.int64(KeyReadLimitKBytes, l.ReadLimitKBytes)
	l.MaxPages = p.int(KeyMaxPages, l.MaxPages)
	l.PageLimit = p.int(KeyPageLimit, l.PageLimit)
	return l
}

func (p *parser) image() *ImageOptions {
	img := &ImageOptions{
		AlphaRemove:    p.boolean(KeyAlphaRemove, false),
		AutoOrient:     p.boolean(KeyAutoOrient, false),
		CommandOptions: p.opts[KeyCommandOptions],
	}
	if pagingKeys.any(p.opts) {
		img.Paging = &PagingOptions{
			StartPage: p.int(KeyStartPage, 1),
			EndPage:   p.int(KeyEndPage, math.MaxInt32),
		}
	}
	if cropKeys.any(p.opts) {
		img.Crop = &CropOptions{
			Gravity:    p.opts[KeyCropGravity],
			Width:      p.int(KeyCropWidth, -1),
			Height:     p.int(KeyCropHeight, -1),
			Percentage: p.boolean(KeyCropPercentage, false),
			XOffset:    p.int(KeyCropXOffset, 0),
			YOffset:    p.int(KeyCropYOffset, 0),
		}
	}
	if temporalKeys.any(p.opts) {
		img.Temporal = &TemporalOptions{
			Offset:   p.temporal(KeyOffset),
			Duration: p.temporal(KeyDuration),
		}
	}
	if resizeKeys.any(p.opts) {
		img.Resize = &ResizeOptions{
			Width:               p.int(KeyResizeWidth, -1),
			Height:              p.int(KeyResizeHeight, -1),
			Percentage:          p.boolean(KeyResizePercentage, false),
			AllowEnlargement:    p.boolean(KeyAllowEnlargement, true),
			MaintainAspectRatio: p.boolean(KeyMaintainAspectRatio, true),
			Thumbnail:           p.boolean(KeyThumbnail, false),
		}
	}
	return img
}

func (p *parser) pdf() *PDFOptions {
	return &PDFOptions{
		Page:                p.int(KeyPage, 1),
		Width:               p.int(KeyWidth, -1),
		Height:              p.int(KeyHeight, -1),
		AllowEnlargement:    p.boolean(KeyAllowPdfEnlargement, true),
		MaintainAspectRatio: p.boolean(KeyMaintainPdfAspectRatio, true),
	}
}
