// Package imaging scales raster images for the image transformers.
package imaging

import (
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"

	"golang.org/x/image/draw"

	_ "image/gif" // Register GIF decoder

	_ "golang.org/x/image/webp" // Register WebP decoder
)

const (
	MimeJPEG = "image/jpeg"
	MimePNG  = "image/png"
	MimeGIF  = "image/gif"
	MimeWebP = "image/webp"
)

const DefaultQuality = 85

var ErrUnsupportedFormat = errors.New("imaging: unsupported format")

// Spec describes the wanted output. Zero Width or Height leaves that side
// unconstrained. With Percent set they are percentages of the source.
type Spec struct {
	Width            int
	Height           int
	Percent          bool
	MaintainAspect   bool
	AllowEnlargement bool
	Quality          int
	TargetMimetype   string
}

// Readable reports whether images of the mimetype can be decoded.
func Readable(mimetype string) bool {
	switch mimetype {
	case MimeJPEG, MimePNG, MimeGIF, MimeWebP:
		return true
	}
	return false
}

// Writable reports whether images can be encoded to the mimetype.
func Writable(mimetype string) bool {
	return mimetype == MimeJPEG || mimetype == MimePNG
}

// Result describes what Resize wrote.
type Result struct {
	Width   int
	Height  int
	Resized bool
}

// Resize decodes src, scales it to fit spec and encodes it into dst.
func Resize(src io.Reader, dst io.Writer, spec Spec) (Result, error) {
	if !Writable(spec.TargetMimetype) {
		return Result{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, spec.TargetMimetype)
	}
	img, _, err := image.Decode(src)
	if err != nil {
		return Result{}, fmt.Errorf("imaging: decode: %w", err)
	}

	b := img.Bounds()
	w, h := Fit(b.Dx(), b.Dy(), spec)
	out := img
	resized := w != b.Dx() || h != b.Dy()
	if resized {
		rgba := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.CatmullRom.Scale(rgba, rgba.Bounds(), img, b, draw.Over, nil)
		out = rgba
	}

	switch spec.TargetMimetype {
	case MimePNG:
		err = png.Encode(dst, out)
	default:
		q := spec.Quality
		if q <= 0 || q > 100 {
			q = DefaultQuality
		}
		err = jpeg.Encode(dst, out, &jpeg.Options{Quality: q})
	}
	if err != nil {
		return Result{}, fmt.Errorf("imaging: encode: %w", err)
	}
	return Result{Width: w, Height: h, Resized: resized}, nil
}

// Fit computes the target dimensions for an origW x origH image.
func Fit(origW, origH int, spec Spec) (int, int) {
	w, h := origW, origH
	if spec.Width <= 0 && spec.Height <= 0 {
		return w, h
	}
	if spec.Percent {
		spec.Width = origW * spec.Width / 100
		spec.Height = origH * spec.Height / 100
		spec.AllowEnlargement = true
	}

	if spec.MaintainAspect {
		ratio := 0.0
		if spec.Width > 0 {
			ratio = float64(spec.Width) / float64(origW)
		}
		if spec.Height > 0 {
			r := float64(spec.Height) / float64(origH)
			if ratio == 0 || r < ratio {
				ratio = r
			}
		}
		if ratio > 1 && !spec.AllowEnlargement {
			ratio = 1
		}
		w = int(float64(origW) * ratio)
		h = int(float64(origH) * ratio)
	} else {
		if spec.Width > 0 && (spec.Width < origW || spec.AllowEnlargement) {
			w = spec.Width
		}
		if spec.Height > 0 && (spec.Height < origH || spec.AllowEnlargement) {
			h = spec.Height
		}
	}

	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return w, h
}
