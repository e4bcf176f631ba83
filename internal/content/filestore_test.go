package content

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readAll(t *testing.T, r Reader) string {
	t.Helper()
	rc, err := r.Open()
	require.NoError(t, err)
	defer rc.Close()
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(b)
}

func TestFileStore_MissingNode(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	r, err := s.GetReader(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, r.Exists())
	assert.Zero(t, Hash(r))
	_, err = r.Open()
	assert.ErrorIs(t, err, ErrNoContent)
}

func TestFileStore_PutContentChangesHash(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	first, err := s.PutContent(ctx, "n1", "text/plain", strings.NewReader("hello"))
	require.NoError(t, err)
	h1, err := CurrentHash(ctx, s, "n1")
	require.NoError(t, err)
	assert.Equal(t, Hash(first), h1)
	assert.NotZero(t, h1)

	_, err = s.PutContent(ctx, "n1", "text/plain", strings.NewReader("hello again"))
	require.NoError(t, err)
	h2, err := CurrentHash(ctx, s, "n1")
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)

	r, err := s.GetReader(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, "hello again", readAll(t, r))
	assert.EqualValues(t, 11, r.Size())
	assert.Equal(t, "text/plain", r.Mimetype())
	assert.False(t, first.Exists(), "old blob should be removed")
}

func TestFileStore_TempWriterAndRendition(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()
	src, err := s.PutContent(ctx, "n1", "text/plain", strings.NewReader("src"))
	require.NoError(t, err)

	w, err := s.GetTempWriter(ctx)
	require.NoError(t, err)
	w.SetMimetype("application/pdf")
	_, err = io.WriteString(w, "%PDF")
	require.NoError(t, err)

	_, err = w.Reader()
	assert.Error(t, err, "reader before close")
	require.NoError(t, w.Close())

	tr, err := w.Reader()
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", tr.Mimetype())
	require.NoError(t, s.PutRendition(ctx, "n1", "doc-preview", tr, Hash(src)))
	require.NoError(t, w.Discard())
	assert.False(t, tr.Exists())

	rr, info, err := s.Rendition(ctx, "n1", "doc-preview")
	require.NoError(t, err)
	assert.Equal(t, "%PDF", readAll(t, rr))
	assert.Equal(t, Hash(src), info.SourceHash)
	assert.Equal(t, "application/pdf", info.Mimetype)

	_, _, err = s.Rendition(ctx, "n1", "other")
	assert.ErrorIs(t, err, ErrNoContent)
	_, _, err = s.Rendition(ctx, "n2", "doc-preview")
	assert.ErrorIs(t, err, ErrNodeNotFound)
}

func TestFileStore_PutRenditionUnknownNode(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()
	src, err := s.PutContent(ctx, "n1", "text/plain", strings.NewReader("x"))
	require.NoError(t, err)
	assert.ErrorIs(t, s.PutRendition(ctx, "ghost", "r", src, 1), ErrNodeNotFound)
}

func TestFileStore_PutRenditionRejectsStaleHash(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()
	v1, err := s.PutContent(ctx, "n1", "text/plain", strings.NewReader("v1"))
	require.NoError(t, err)
	_, err = s.PutContent(ctx, "n1", "text/plain", strings.NewReader("v2"))
	require.NoError(t, err)

	tr := tempReader(t, s, "render of v1")
	assert.ErrorIs(t, s.PutRendition(ctx, "n1", "thumb", tr, Hash(v1)), ErrStale)
	_, _, err = s.Rendition(ctx, "n1", "thumb")
	assert.ErrorIs(t, err, ErrNoContent)
}

func TestFileStore_RenditionOfReplacedContentIsUnavailable(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()
	v1, err := s.PutContent(ctx, "n1", "text/plain", strings.NewReader("v1"))
	require.NoError(t, err)
	require.NoError(t, s.PutRendition(ctx, "n1", "thumb", tempReader(t, s, "render of v1"), Hash(v1)))
	_, _, err = s.Rendition(ctx, "n1", "thumb")
	require.NoError(t, err)

	_, err = s.PutContent(ctx, "n1", "text/plain", strings.NewReader("v2"))
	require.NoError(t, err)
	_, _, err = s.Rendition(ctx, "n1", "thumb")
	assert.ErrorIs(t, err, ErrNoContent)
}

func tempReader(t *testing.T, s *FileStore, body string) Reader {
	t.Helper()
	w, err := s.GetTempWriter(context.Background())
	require.NoError(t, err)
	w.SetMimetype("text/plain")
	_, err = io.WriteString(w, body)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	r, err := w.Reader()
	require.NoError(t, err)
	return r
}

func TestFileStore_IndexSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)
	ctx := context.Background()
	_, err = s.PutContent(ctx, "n1", "image/png", strings.NewReader("png"))
	require.NoError(t, err)
	h, _ := CurrentHash(ctx, s, "n1")

	again, err := NewFileStore(dir)
	require.NoError(t, err)
	h2, err := CurrentHash(ctx, again, "n1")
	require.NoError(t, err)
	assert.Equal(t, h, h2)
}

func TestFileStore_ReaderForURL(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()
	src, err := s.PutContent(ctx, "n1", "text/plain", strings.NewReader("shared"))
	require.NoError(t, err)

	r, err := s.ReaderForURL(ctx, src.ContentURL(), "text/plain")
	require.NoError(t, err)
	assert.Equal(t, "shared", readAll(t, r))

	missing, err := s.ReaderForURL(ctx, "store://2000/01/01/none.bin", "text/plain")
	require.NoError(t, err)
	assert.False(t, missing.Exists())

	_, err = s.ReaderForURL(ctx, "http://elsewhere", "text/plain")
	assert.Error(t, err)
}
