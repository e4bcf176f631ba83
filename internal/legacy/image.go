package legacy

import (
	"context"

	"transformd/internal/content"
	"transformd/internal/imaging"
	"transformd/internal/options"
)

// ImageResizer handles image options with resize, and no options at all.
// Crop, paging and temporal sub-options are refused.
type ImageResizer struct {
	MaxSourceBytes int64
}

func (ImageResizer) Name() string { return "legacy.image" }

func (t ImageResizer) MaxSourceSize(src, target string, opts *options.TransformationOptions) (int64, bool) {
	if !imaging.Readable(src) || !imaging.Writable(target) {
		return 0, false
	}
	switch opts.Kind {
	case options.KindNone:
	case options.KindImage:
		img := opts.Image
		if img == nil || img.Crop != nil || img.Paging != nil || img.Temporal != nil {
			return 0, false
		}
	default:
		return 0, false
	}
	if t.MaxSourceBytes <= 0 {
		return -1, true
	}
	return t.MaxSourceBytes, true
}

func (ImageResizer) Transform(_ context.Context, src content.Reader, out content.Writer, opts *options.TransformationOptions) error {
	rc, err := src.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	spec := imaging.Spec{TargetMimetype: out.Mimetype(), MaintainAspect: true}
	var resize *options.ResizeOptions
	if opts.Image != nil {
		resize = opts.Image.Resize
	}
	if resize == nil {
		_, err = imaging.Resize(rc, out, spec)
		return err
	}
	spec.Width, spec.Height = resize.Width, resize.Height
	spec.Percent = resize.Percentage
	spec.MaintainAspect = resize.MaintainAspectRatio
	spec.AllowEnlargement = resize.AllowEnlargement
	_, err = imaging.Resize(rc, out, spec)
	return err
}
