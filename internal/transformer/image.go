package transformer

import (
	"context"
	"fmt"
	"strconv"

	"transformd/internal/content"
	"transformd/internal/imaging"
	"transformd/internal/options"
)

// Image scales raster images. It reads the resize keys straight from the
// flat option map.
type Image struct {
	// MaxSourceBytes bounds accepted sources; -1 or 0 means unlimited.
	MaxSourceBytes int64
}

func (Image) Name() string { return "image" }

func (t Image) Supported(src, target string, _ map[string]string) (int64, bool) {
	if !imaging.Readable(src) || !imaging.Writable(target) {
		return 0, false
	}
	if t.MaxSourceBytes <= 0 {
		return -1, true
	}
	return t.MaxSourceBytes, true
}

func (t Image) Transform(_ context.Context, src content.Reader, out content.Writer, opts map[string]string) error {
	spec, err := imageSpec(opts, out.Mimetype())
	if err != nil {
		return err
	}
	rc, err := src.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	_, err = imaging.Resize(rc, out, spec)
	return err
}

func imageSpec(opts map[string]string, target string) (imaging.Spec, error) {
	spec := imaging.Spec{TargetMimetype: target, MaintainAspect: true}
	var err error
	if spec.Width, err = intOpt(opts, options.KeyResizeWidth); err != nil {
		return spec, err
	}
	if spec.Height, err = intOpt(opts, options.KeyResizeHeight); err != nil {
		return spec, err
	}
	if v, ok := opts[options.KeyMaintainAspectRatio]; ok {
		spec.MaintainAspect, _ = strconv.ParseBool(v)
	}
	if v, ok := opts[options.KeyAllowEnlargement]; ok {
		spec.AllowEnlargement, _ = strconv.ParseBool(v)
	}
	return spec, nil
}

func intOpt(opts map[string]string, key string) (int, error) {
	v, ok := opts[key]
	if !ok || v == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("transformer: %s=%q: %w", key, v, err)
	}
	return int(f), nil
}
