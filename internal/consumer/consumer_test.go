package consumer

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transformd/internal/content"
	"transformd/internal/executor"
	"transformd/internal/rendition"
	"transformd/internal/telemetry"
	"transformd/sink"
)

type events struct {
	mu  sync.Mutex
	got []sink.Event
}

func (e *events) Push(ev sink.Event) error {
	e.mu.Lock()
	e.got = append(e.got, ev)
	e.mu.Unlock()
	return nil
}

func (e *events) types() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.got))
	for _, ev := range e.got {
		out = append(out, ev.Type)
	}
	return out
}

var thumb = rendition.NewDefinition("thumb", "text/plain", nil)

func setup(t *testing.T) (*content.FileStore, *Consumer, *events, *prometheus.Registry) {
	t.Helper()
	store, err := content.NewFileStore(t.TempDir())
	require.NoError(t, err)
	reg := prometheus.NewRegistry()
	ev := &events{}
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	c := New(store, WithPublisher(ev), WithMetrics(telemetry.NewMetrics(reg)), WithClock(func() time.Time { return fixed }))
	return store, c, ev, reg
}

func tempResult(t *testing.T, store *content.FileStore, body string) content.Reader {
	t.Helper()
	w, err := store.GetTempWriter(context.Background())
	require.NoError(t, err)
	w.SetMimetype("text/plain")
	_, err = io.WriteString(w, body)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	r, err := w.Reader()
	require.NoError(t, err)
	return r
}

func TestConsume_StoresWhenHashMatches(t *testing.T) {
	store, c, ev, _ := setup(t)
	ctx := context.Background()
	src, err := store.PutContent(ctx, "n1", "text/html", strings.NewReader("<p>x</p>"))
	require.NoError(t, err)

	require.NoError(t, c.Consume(ctx, "n1", tempResult(t, store, "x"), thumb, content.Hash(src)))

	r, info, err := store.Rendition(ctx, "n1", "thumb")
	require.NoError(t, err)
	assert.True(t, r.Exists())
	assert.Equal(t, content.Hash(src), info.SourceHash)
	assert.Equal(t, []string{sink.EventCreated}, ev.types())
	assert.Equal(t, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), ev.got[0].Time)
}

func TestConsume_DiscardsWhenSourceChanged(t *testing.T) {
	store, c, ev, reg := setup(t)
	ctx := context.Background()
	v1, err := store.PutContent(ctx, "n1", "text/html", strings.NewReader("v1"))
	require.NoError(t, err)
	_, err = store.PutContent(ctx, "n1", "text/html", strings.NewReader("v2"))
	require.NoError(t, err)

	require.NoError(t, c.Consume(ctx, "n1", tempResult(t, store, "stale"), thumb, content.Hash(v1)))

	_, _, err = store.Rendition(ctx, "n1", "thumb")
	assert.ErrorIs(t, err, content.ErrNoContent)
	assert.Equal(t, []string{sink.EventDiscarded}, ev.types())

	n, err := testutil.GatherAndCount(reg, "transformd_renditions_discarded_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestFailure_PublishesCause(t *testing.T) {
	_, c, ev, _ := setup(t)
	c.Failure(context.Background(), "n1", thumb, 7, errors.New("engine down"))
	require.Len(t, ev.got, 1)
	assert.Equal(t, sink.EventFailed, ev.got[0].Type)
	assert.Equal(t, "engine down", ev.got[0].Error)
	assert.EqualValues(t, 7, ev.got[0].ContentHash)
}

// A job that captured H1 must not apply its result once the source is at H2.
func TestStaleJobIsDiscarded(t *testing.T) {
	store, c, ev, _ := setup(t)
	ctx := context.Background()
	v1, err := store.PutContent(ctx, "n1", "text/html", strings.NewReader("v1"))
	require.NoError(t, err)

	started := make(chan struct{})
	release := make(chan struct{})
	exec := executor.New(store, c)
	job := exec.Submit(ctx, executor.Task{
		SourceRef:   "n1",
		Definition:  thumb,
		ContentHash: content.Hash(v1),
		Run: func(_ context.Context, src content.Reader, out content.Writer) error {
			close(started)
			<-release
			_, err := io.WriteString(out, "render of v1")
			return err
		},
	})

	<-started
	_, err = store.PutContent(ctx, "n1", "text/html", strings.NewReader("v2"))
	require.NoError(t, err)
	close(release)

	wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, job.Wait(wctx))

	_, _, err = store.Rendition(ctx, "n1", "thumb")
	assert.ErrorIs(t, err, content.ErrNoContent)
	assert.Equal(t, []string{sink.EventDiscarded}, ev.types())
}

// replacingReader swaps the source content the moment the result is read,
// after the consumer has compared hashes.
type replacingReader struct {
	content.Reader
	replace func()
}

func (r replacingReader) Open() (io.ReadCloser, error) {
	r.replace()
	return r.Reader.Open()
}

func TestConsume_DiscardsWhenSourceChangesWhileStoring(t *testing.T) {
	store, c, ev, reg := setup(t)
	ctx := context.Background()
	v1, err := store.PutContent(ctx, "n1", "text/html", strings.NewReader("v1"))
	require.NoError(t, err)

	result := replacingReader{
		Reader: tempResult(t, store, "render of v1"),
		replace: func() {
			_, err := store.PutContent(ctx, "n1", "text/html", strings.NewReader("v2"))
			require.NoError(t, err)
		},
	}
	require.NoError(t, c.Consume(ctx, "n1", result, thumb, content.Hash(v1)))

	_, _, err = store.Rendition(ctx, "n1", "thumb")
	assert.ErrorIs(t, err, content.ErrNoContent)
	assert.Equal(t, []string{sink.EventDiscarded}, ev.types())

	n, err := testutil.GatherAndCount(reg, "transformd_renditions_discarded_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
