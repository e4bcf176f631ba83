package remote

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transformd/internal/content"
	"transformd/internal/executor"
	"transformd/internal/rendition"
	"transformd/internal/transform"
	"transformd/source/kafka"
)

func TestRequest_WireFieldNames(t *testing.T) {
	req := Request{
		RequestID:        "r-1",
		TransformName:    "doc-preview",
		NodeRef:          "node-1",
		TargetMediaType:  "application/pdf",
		TransformOptions: map[string]string{"timeout": "100"},
		ClientData:       "store://x",
		ReplyQueue:       "replies",
	}
	b, err := json.Marshal(req)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(b, &raw))
	for _, k := range []string{"requestId", "transformName", "nodeRef", "targetMediaType", "transformOptions", "clientData", "replyQueue"} {
		assert.Contains(t, raw, k)
	}
	assert.Len(t, raw, 7)

	var back Request
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, req, back)
}

type harness struct {
	store    *content.FileStore
	producer *mocks.SyncProducer
	client   *Client
	src      content.Reader
}

func newHarness(t *testing.T, timeout time.Duration) *harness {
	t.Helper()
	store, err := content.NewFileStore(t.TempDir())
	require.NoError(t, err)
	src, err := store.PutContent(context.Background(), "node-1", "text/plain", strings.NewReader("hello"))
	require.NoError(t, err)
	cfg := mocks.NewTestConfig()
	cfg.Producer.Return.Successes = true
	p := mocks.NewSyncProducer(t, cfg)
	c := New(Config{
		Timeout: timeout,
		Routes:  []Route{{Source: "text/*", Target: "application/pdf", MaxSize: 1024}},
	}, p, store)
	return &harness{store: store, producer: p, client: c, src: src}
}

func (h *harness) negotiate(t *testing.T, opts map[string]string) executor.RunFunc {
	t.Helper()
	run, err := h.client.Negotiate(context.Background(), transform.SupportRequest{
		SourceRef:      "node-1",
		Definition:     rendition.NewDefinition("doc-preview", "application/pdf", opts),
		SourceMimetype: "text/plain",
		SourceSize:     h.src.Size(),
	})
	require.NoError(t, err)
	return run
}

func (h *harness) result(t *testing.T, body string) string {
	t.Helper()
	w, err := h.store.GetTempWriter(context.Background())
	require.NoError(t, err)
	_, err = io.WriteString(w, body)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	r, err := w.Reader()
	require.NoError(t, err)
	return r.ContentURL()
}

// replyWith answers the next published request from a worker goroutine.
func (h *harness) replyWith(t *testing.T, mk func(req Request) Reply) {
	h.producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var req Request
		if err := json.Unmarshal(val, &req); err != nil {
			return err
		}
		go func() {
			b, _ := json.Marshal(mk(req))
			_ = h.client.HandleReply(context.Background(), kafka.Message{Topic: "transformd.replies", Value: b})
		}()
		return nil
	})
}

func (h *harness) out(t *testing.T) content.Writer {
	t.Helper()
	w, err := h.store.GetTempWriter(context.Background())
	require.NoError(t, err)
	w.SetMimetype("application/pdf")
	return w
}

func TestClient_RoundTrip(t *testing.T) {
	h := newHarness(t, 5*time.Second)
	target := h.result(t, "%PDF remote")

	var seen Request
	h.replyWith(t, func(req Request) Reply {
		seen = req
		return Reply{RequestID: req.RequestID, Status: StatusSuccess, TargetRef: target}
	})

	out := h.out(t)
	require.NoError(t, h.negotiate(t, map[string]string{"timeout": "2000"})(context.Background(), h.src, out))
	require.NoError(t, out.Close())

	r, err := out.Reader()
	require.NoError(t, err)
	rc, err := r.Open()
	require.NoError(t, err)
	defer rc.Close()
	b, _ := io.ReadAll(rc)
	assert.Equal(t, "%PDF remote", string(b))

	assert.Equal(t, "doc-preview", seen.TransformName)
	assert.Equal(t, "node-1", seen.NodeRef)
	assert.Equal(t, "application/pdf", seen.TargetMediaType)
	assert.Equal(t, "transformd.replies", seen.ReplyQueue)
	assert.Equal(t, h.src.ContentURL(), seen.ClientData)
	assert.Equal(t, "2000", seen.TransformOptions["timeout"])
	assert.Zero(t, h.client.Waiting())
	assert.Zero(t, h.client.inflight.InFlight())
	require.NoError(t, h.client.Close())
}

func TestClient_ErrorReply(t *testing.T) {
	h := newHarness(t, 5*time.Second)
	h.replyWith(t, func(req Request) Reply {
		return Reply{RequestID: req.RequestID, Status: StatusError, ErrorDetails: "worker crashed"}
	})

	err := h.negotiate(t, nil)(context.Background(), h.src, h.out(t))
	var rerr *Error
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, "worker crashed", rerr.Details)
	assert.False(t, executor.IsTransient(err))
}

func TestClient_TimeoutIsTransient(t *testing.T) {
	h := newHarness(t, 20*time.Millisecond)
	h.producer.ExpectSendMessageAndSucceed()

	err := h.negotiate(t, nil)(context.Background(), h.src, h.out(t))
	require.Error(t, err)
	assert.True(t, executor.IsTransient(err))
	assert.Zero(t, h.client.Waiting())
}

func TestClient_PublishFailure(t *testing.T) {
	h := newHarness(t, time.Second)
	h.producer.ExpectSendMessageAndFail(errors.New("broker gone"))

	err := h.negotiate(t, nil)(context.Background(), h.src, h.out(t))
	assert.ErrorContains(t, err, "broker gone")
}

func TestClient_Negotiate(t *testing.T) {
	h := newHarness(t, time.Second)
	ctx := context.Background()
	base := transform.SupportRequest{
		SourceRef:      "node-1",
		Definition:     rendition.NewDefinition("doc-preview", "application/pdf", nil),
		SourceMimetype: "text/plain",
		SourceSize:     10,
	}

	_, err := h.client.Negotiate(ctx, base)
	require.NoError(t, err)

	big := base
	big.SourceSize = 4096
	_, err = h.client.Negotiate(ctx, big)
	assert.ErrorIs(t, err, transform.ErrUnsupportedTransform)

	img := base
	img.SourceMimetype = "image/png"
	_, err = h.client.Negotiate(ctx, img)
	assert.ErrorIs(t, err, transform.ErrUnsupportedTransform)

	bad := base
	bad.Definition = rendition.NewDefinition("doc-preview", "application/pdf", map[string]string{"bogus": "1"})
	_, err = h.client.Negotiate(ctx, bad)
	require.Error(t, err)
	assert.NotErrorIs(t, err, transform.ErrUnsupportedTransform)

	m, ok := h.client.MaxSize("text/html", "application/pdf", nil, "doc-preview")
	assert.True(t, ok)
	assert.EqualValues(t, 1024, m)
	assert.True(t, h.client.IsSupported("text/html", 10, "application/pdf", nil, "doc-preview"))
	assert.False(t, h.client.IsSupported("text/html", 2048, "application/pdf", nil, "doc-preview"))
}

func TestHandleReply_IgnoresUnknownAndMalformed(t *testing.T) {
	h := newHarness(t, time.Second)
	ctx := context.Background()
	assert.NoError(t, h.client.HandleReply(ctx, kafka.Message{Value: []byte("{not json")}))
	b, _ := json.Marshal(Reply{RequestID: "nobody", Status: StatusSuccess})
	assert.NoError(t, h.client.HandleReply(ctx, kafka.Message{Value: b}))
}

func TestController(t *testing.T) {
	c := NewController(1)
	ctx := context.Background()
	require.NoError(t, c.Acquire(ctx))
	assert.EqualValues(t, 1, c.InFlight())
	assert.False(t, c.TryAcquire(1))

	short, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, c.Acquire(short), context.DeadlineExceeded)

	got := make(chan error, 1)
	go func() { got <- c.Acquire(ctx) }()
	c.Release(1)
	select {
	case err := <-got:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("acquire not woken by release")
	}

	go func() { got <- c.Acquire(ctx) }()
	c.Close()
	select {
	case err := <-got:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("acquire not woken by close")
	}
}
