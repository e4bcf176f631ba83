package transformer

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transformd/internal/content"
)

type fixed struct {
	name   string
	src    string
	target string
	max    int64
}

func (f fixed) Name() string { return f.name }
func (f fixed) Supported(src, target string, _ map[string]string) (int64, bool) {
	if src == f.src && target == f.target {
		return f.max, true
	}
	return 0, false
}
func (fixed) Transform(context.Context, content.Reader, content.Writer, map[string]string) error {
	return nil
}

func TestRegistry_FindFirstMatchAndSize(t *testing.T) {
	r, err := NewRegistry(
		fixed{name: "small", src: "a/x", target: "b/y", max: 10},
		fixed{name: "big", src: "a/x", target: "b/y", max: 100},
	)
	require.NoError(t, err)

	tr, err := r.Find("a/x", 5, "b/y", nil)
	require.NoError(t, err)
	assert.Equal(t, "small", tr.Name())

	tr, err = r.Find("a/x", 50, "b/y", nil)
	require.NoError(t, err)
	assert.Equal(t, "big", tr.Name())

	_, err = r.Find("a/x", 500, "b/y", nil)
	assert.ErrorIs(t, err, ErrSourceTooLarge)

	_, err = r.Find("a/x", 5, "c/z", nil)
	assert.ErrorIs(t, err, ErrNoTransformer)
}

func TestRegistry_MaxSize(t *testing.T) {
	r, err := NewRegistry(
		fixed{name: "one", src: "a/x", target: "b/y", max: 10},
		fixed{name: "two", src: "a/x", target: "b/y", max: 100},
		fixed{name: "unbounded", src: "a/x", target: "c/z", max: -1},
	)
	require.NoError(t, err)

	m, ok := r.MaxSize("a/x", "b/y", nil, "")
	assert.True(t, ok)
	assert.EqualValues(t, 100, m)

	m, ok = r.MaxSize("a/x", "c/z", nil, "")
	assert.True(t, ok)
	assert.EqualValues(t, -1, m)

	_, ok = r.MaxSize("q/q", "c/z", nil, "")
	assert.False(t, ok)

	assert.True(t, r.IsSupported("a/x", 99, "b/y", nil, "thumb"))
	assert.False(t, r.IsSupported("a/x", 101, "b/y", nil, "thumb"))
}

func TestRegistry_SubscribeAndDuplicate(t *testing.T) {
	r, err := NewRegistry()
	require.NoError(t, err)

	var calls atomic.Int32
	cancel := r.Subscribe(func() { calls.Add(1) })

	require.NoError(t, r.Register(Text{}))
	assert.ErrorIs(t, r.Register(Text{}), ErrDuplicateName)
	require.NoError(t, r.Unregister("text"))
	assert.ErrorIs(t, r.Unregister("text"), ErrUnknownTransformer)
	assert.EqualValues(t, 2, calls.Load())

	cancel()
	require.NoError(t, r.Register(Text{}))
	assert.EqualValues(t, 2, calls.Load())
	assert.Equal(t, []string{"text"}, r.Names())
}

func TestImage_Transform(t *testing.T) {
	store, err := content.NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	img := image.NewRGBA(image.Rect(0, 0, 40, 20))
	img.Set(1, 1, color.White)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	src, err := store.PutContent(ctx, "n1", "image/png", &buf)
	require.NoError(t, err)

	out, err := store.GetTempWriter(ctx)
	require.NoError(t, err)
	out.SetMimetype("image/png")

	tr := Image{}
	limit, ok := tr.Supported("image/png", "image/png", nil)
	require.True(t, ok)
	assert.EqualValues(t, -1, limit)

	require.NoError(t, tr.Transform(ctx, src, out, map[string]string{"resizeWidth": "10", "resizeHeight": "10"}))
	require.NoError(t, out.Close())
	res, err := out.Reader()
	require.NoError(t, err)
	rc, err := res.Open()
	require.NoError(t, err)
	defer rc.Close()
	got, err := png.Decode(rc)
	require.NoError(t, err)
	assert.Equal(t, 10, got.Bounds().Dx())
	assert.Equal(t, 5, got.Bounds().Dy())

	_, err = imageSpec(map[string]string{"resizeWidth": "wide"}, "image/png")
	assert.Error(t, err)
}

func TestText_Transform(t *testing.T) {
	store, err := content.NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()
	src, err := store.PutContent(ctx, "n1", "text/markdown", strings.NewReader("# hi"))
	require.NoError(t, err)

	_, ok := Text{}.Supported("text/markdown", "text/plain", nil)
	assert.True(t, ok)
	_, ok = Text{}.Supported("image/png", "text/plain", nil)
	assert.False(t, ok)

	out, err := store.GetTempWriter(ctx)
	require.NoError(t, err)
	require.NoError(t, Text{}.Transform(ctx, src, out, nil))
	require.NoError(t, out.Close())
	res, err := out.Reader()
	require.NoError(t, err)
	rc, err := res.Open()
	require.NoError(t, err)
	defer rc.Close()
	b, _ := io.ReadAll(rc)
	assert.Equal(t, "# hi", string(b))
}
