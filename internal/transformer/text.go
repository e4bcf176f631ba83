package transformer

import (
	"context"
	"io"
	"strings"

	"transformd/internal/content"
)

// Text copies any text/* source to text/plain unchanged.
type Text struct{}

func (Text) Name() string { return "text" }

func (Text) Supported(src, target string, _ map[string]string) (int64, bool) {
	if strings.HasPrefix(src, "text/") && target == "text/plain" {
		return -1, true
	}
	return 0, false
}

func (Text) Transform(_ context.Context, src content.Reader, out content.Writer, _ map[string]string) error {
	rc, err := src.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	_, err = io.Copy(out, rc)
	return err
}

// Builtins returns the transformers registered by default.
func Builtins(maxImageBytes int64) []Transformer {
	return []Transformer{Image{MaxSourceBytes: maxImageBytes}, Text{}}
}
