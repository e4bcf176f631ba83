package rendition

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	max   map[string]int64 // keyed by target mimetype
	calls atomic.Int32
}

func (f *fakeSource) IsSupported(src string, size int64, target string, opts map[string]string, name string) bool {
	m, ok := f.MaxSize(src, target, opts, name)
	return ok && m != 0 && (m == -1 || m >= size)
}

func (f *fakeSource) MaxSize(_, target string, _ map[string]string, _ string) (int64, bool) {
	f.calls.Add(1)
	m, ok := f.max[target]
	return m, ok
}

func newTestRegistry(t *testing.T, src CapabilitySource) *Registry {
	t.Helper()
	cache, err := NewMemoryCache(16)
	require.NoError(t, err)
	return NewRegistry(src, cache)
}

func TestRegistry_RegisterDuplicateAndUnregisterUnknown(t *testing.T) {
	r := newTestRegistry(t, &fakeSource{})

	require.NoError(t, r.Register(NewDefinition("pdf", "application/pdf", nil)))
	err := r.Register(NewDefinition("pdf", "application/pdf", nil))
	assert.ErrorIs(t, err, ErrDuplicateDefinition)

	assert.ErrorIs(t, r.Unregister("missing"), ErrUnknownDefinition)
	require.NoError(t, r.Unregister("pdf"))
	_, ok := r.Definition("pdf")
	assert.False(t, ok)
}

func TestRegistry_RejectsInvalidDefinition(t *testing.T) {
	r := newTestRegistry(t, &fakeSource{})
	assert.ErrorIs(t, r.Register(Definition{TargetMimetype: "image/png"}), ErrInvalidDefinition)
	assert.ErrorIs(t, r.Register(Definition{Name: "x"}), ErrInvalidDefinition)
}

func TestRegistry_DefinitionIsImmutable(t *testing.T) {
	r := newTestRegistry(t, &fakeSource{})
	opts := map[string]string{"resizeWidth": "100"}
	require.NoError(t, r.Register(Definition{Name: "thumb", TargetMimetype: "image/png", Options: opts}))
	opts["resizeWidth"] = "999"

	got, ok := r.Definition("thumb")
	require.True(t, ok)
	assert.Equal(t, "100", got.Options["resizeWidth"])

	got.Options["resizeWidth"] = "1"
	again, _ := r.Definition("thumb")
	assert.Equal(t, "100", again.Options["resizeWidth"])
}

func TestRegistry_SizeFiltering(t *testing.T) {
	src := &fakeSource{max: map[string]int64{
		"image/png":       100,
		"application/pdf": -1,
		"text/html":       0,
	}}
	r := newTestRegistry(t, src)
	require.NoError(t, r.Register(NewDefinition("bounded", "image/png", nil)))
	require.NoError(t, r.Register(NewDefinition("unlimited", "application/pdf", nil)))
	require.NoError(t, r.Register(NewDefinition("never", "text/html", nil)))
	require.NoError(t, r.Register(NewDefinition("unknown", "video/mp4", nil)))

	ctx := context.Background()
	assert.Equal(t, []string{"bounded", "unlimited"}, r.RenditionNamesFrom(ctx, "text/plain", 50))
	assert.Equal(t, []string{"bounded", "unlimited"}, r.RenditionNamesFrom(ctx, "text/plain", 100))
	assert.Equal(t, []string{"unlimited"}, r.RenditionNamesFrom(ctx, "text/plain", 150))
	assert.Equal(t, []string{"unlimited"}, r.RenditionNamesFrom(ctx, "text/plain", 1<<40))
}

func TestRegistry_CachesPerMimetypeNotPerSize(t *testing.T) {
	src := &fakeSource{max: map[string]int64{"image/png": 100}}
	r := newTestRegistry(t, src)
	require.NoError(t, r.Register(NewDefinition("thumb", "image/png", nil)))

	ctx := context.Background()
	r.RenditionNamesFrom(ctx, "image/jpeg", 10)
	r.RenditionNamesFrom(ctx, "image/jpeg", 500)
	r.RenditionNamesFrom(ctx, "image/jpeg", 50)
	assert.EqualValues(t, 1, src.calls.Load())

	r.RenditionNamesFrom(ctx, "image/gif", 10)
	assert.EqualValues(t, 2, src.calls.Load())
}

func TestRegistry_NewDefinitionVisibleOnlyAfterInvalidation(t *testing.T) {
	src := &fakeSource{max: map[string]int64{"image/png": -1, "application/pdf": -1}}
	r := newTestRegistry(t, src)
	require.NoError(t, r.Register(NewDefinition("thumb", "image/png", nil)))

	ctx := context.Background()
	assert.Equal(t, []string{"thumb"}, r.RenditionNamesFrom(ctx, "text/plain", 10))

	require.NoError(t, r.Register(NewDefinition("doc-preview", "application/pdf", nil)))
	assert.Equal(t, []string{"thumb"}, r.RenditionNamesFrom(ctx, "text/plain", 10), "stale cache expected")

	replacement := &fakeSource{max: map[string]int64{"image/png": -1, "application/pdf": -1}}
	r.SetCapabilitySource(ctx, replacement)
	assert.Equal(t, []string{"doc-preview", "thumb"}, r.RenditionNamesFrom(ctx, "text/plain", 10))
	assert.EqualValues(t, 2, replacement.calls.Load())
}

func TestRegistry_ReplacingSourceDiscardsOldResults(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t, &fakeSource{max: map[string]int64{"image/png": -1}})
	require.NoError(t, r.Register(NewDefinition("thumb", "image/png", nil)))
	assert.Equal(t, []string{"thumb"}, r.RenditionNamesFrom(ctx, "image/jpeg", 1))

	r.SetCapabilitySource(ctx, &fakeSource{max: map[string]int64{}})
	assert.Empty(t, r.RenditionNamesFrom(ctx, "image/jpeg", 1))
}

func TestRegistry_ConcurrentLookups(t *testing.T) {
	src := &fakeSource{max: map[string]int64{"image/png": -1}}
	r := newTestRegistry(t, src)
	require.NoError(t, r.Register(NewDefinition("thumb", "image/png", nil)))

	ctx := context.Background()
	mimes := []string{"image/jpeg", "image/gif", "text/plain", "application/pdf"}
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%16 == 0 {
				r.Invalidate(ctx)
			}
			names := r.RenditionNamesFrom(ctx, mimes[i%len(mimes)], int64(i))
			assert.Equal(t, []string{"thumb"}, names)
		}(i)
	}
	wg.Wait()
}

func TestRegistry_NilSourceYieldsNothing(t *testing.T) {
	r := NewRegistry(nil, nil)
	require.NoError(t, r.Register(NewDefinition("thumb", "image/png", nil)))
	assert.Empty(t, r.RenditionNamesFrom(context.Background(), "image/jpeg", 1))
}

func TestRegistry_DefinitionsSorted(t *testing.T) {
	r := newTestRegistry(t, nil)
	for _, n := range []string{"c", "a", "b"} {
		require.NoError(t, r.Register(NewDefinition(n, "image/png", nil)))
	}
	defs := r.Definitions()
	require.Len(t, defs, 3)
	assert.Equal(t, "a", defs[0].Name)
	assert.Equal(t, "c", defs[2].Name)
}

// pausingCache holds the first Put until released.
type pausingCache struct {
	*MemoryCache
	inPut   chan struct{}
	release chan struct{}
	once    sync.Once
}

func (c *pausingCache) Put(ctx context.Context, mimetype string, caps []Capability) {
	c.once.Do(func() {
		close(c.inPut)
		<-c.release
	})
	c.MemoryCache.Put(ctx, mimetype, caps)
}

func TestRegistry_InvalidateDuringWriteBackLeavesNoEntry(t *testing.T) {
	mem, err := NewMemoryCache(8)
	require.NoError(t, err)
	cache := &pausingCache{MemoryCache: mem, inPut: make(chan struct{}), release: make(chan struct{})}
	r := NewRegistry(&fakeSource{max: map[string]int64{"image/png": -1}}, cache)
	require.NoError(t, r.Register(NewDefinition("thumb", "image/png", nil)))
	ctx := context.Background()

	lookup := make(chan struct{})
	go func() {
		r.RenditionNamesFrom(ctx, "image/jpeg", 1)
		close(lookup)
	}()
	<-cache.inPut

	invalidated := make(chan struct{})
	go func() {
		r.Invalidate(ctx)
		close(invalidated)
	}()
	time.Sleep(20 * time.Millisecond)
	close(cache.release)
	<-lookup
	<-invalidated

	assert.Zero(t, mem.Len(), "entry computed before the invalidation survived it")
}
