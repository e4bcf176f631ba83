// Package remote sends transforms to out-of-process workers over Kafka.
// Requests go to a request topic; workers write the result into the shared
// content store and answer on the reply topic with its content URL.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"

	"transformd/internal/content"
	"transformd/internal/executor"
	"transformd/internal/logging"
	"transformd/internal/options"
	"transformd/internal/transform"
	"transformd/source/kafka"
)

var ErrClosed = errors.New("remote: client closed")

// Route is one source/target combination the workers accept. Source may be
// a pattern such as "image/*".
type Route struct {
	Source  string `koanf:"source"`
	Target  string `koanf:"target"`
	MaxSize int64  `koanf:"max_size"` // bytes, -1 or 0 = unlimited
}

type Config struct {
	RequestTopic string        `koanf:"request_topic"`
	ReplyTopic   string        `koanf:"reply_topic"`
	Timeout      time.Duration `koanf:"timeout"`
	MaxInFlight  int64         `koanf:"max_in_flight"`
	Routes       []Route       `koanf:"routes"`
}

func (c *Config) ApplyDefaults() {
	if c.RequestTopic == "" {
		c.RequestTopic = "transformd.requests"
	}
	if c.ReplyTopic == "" {
		c.ReplyTopic = "transformd.replies"
	}
	if c.Timeout == 0 {
		c.Timeout = 5 * time.Minute
	}
	if c.MaxInFlight == 0 {
		c.MaxInFlight = 256
	}
}

// ResultStore resolves the content URL named in a reply.
type ResultStore interface {
	ReaderForURL(ctx context.Context, url, mimetype string) (content.Reader, error)
}

// Client is a transform.Backend backed by remote workers.
type Client struct {
	cfg      Config
	producer sarama.SyncProducer
	store    ResultStore
	inflight *Controller

	mu      sync.Mutex
	pending map[string]chan Reply
}

func New(cfg Config, producer sarama.SyncProducer, store ResultStore) *Client {
	cfg.ApplyDefaults()
	return &Client{
		cfg:      cfg,
		producer: producer,
		store:    store,
		inflight: NewController(cfg.MaxInFlight),
		pending:  map[string]chan Reply{},
	}
}

func (c *Client) Name() string { return "remote" }

func (c *Client) route(src, target string) (Route, bool) {
	for _, r := range c.cfg.Routes {
		if r.Target != target {
			continue
		}
		if ok, _ := path.Match(r.Source, src); ok {
			return r, true
		}
	}
	return Route{}, false
}

func limitOf(r Route) int64 {
	if r.MaxSize <= 0 {
		return -1
	}
	return r.MaxSize
}

// IsSupported implements rendition.CapabilitySource.
func (c *Client) IsSupported(src string, size int64, target string, opts map[string]string, name string) bool {
	if _, err := options.Translate(name, opts); err != nil {
		return false
	}
	r, ok := c.route(src, target)
	return ok && (limitOf(r) == -1 || size <= limitOf(r))
}

func (c *Client) MaxSize(src, target string, opts map[string]string, name string) (int64, bool) {
	if _, err := options.Translate(name, opts); err != nil {
		return 0, false
	}
	r, ok := c.route(src, target)
	if !ok {
		return 0, false
	}
	return limitOf(r), true
}

// Negotiate implements transform.Backend.
func (c *Client) Negotiate(_ context.Context, req transform.SupportRequest) (executor.RunFunc, error) {
	def := req.Definition
	opts, err := options.Translate(def.Name, def.Options)
	if err != nil {
		return nil, err
	}
	r, ok := c.route(req.SourceMimetype, def.TargetMimetype)
	if !ok {
		return nil, transform.Unsupported(fmt.Errorf("no remote route %s -> %s", req.SourceMimetype, def.TargetMimetype))
	}
	if lim := limitOf(r); lim != -1 && req.SourceSize > lim {
		return nil, transform.Unsupported(fmt.Errorf("source of %d bytes exceeds remote limit %d", req.SourceSize, lim))
	}

	flat := options.ToMap(opts)
	return func(ctx context.Context, src content.Reader, out content.Writer) error {
		return c.call(ctx, Request{
			TransformName:    def.Name,
			NodeRef:          string(req.SourceRef),
			TargetMediaType:  def.TargetMimetype,
			TransformOptions: flat,
			ClientData:       src.ContentURL(),
			ReplyQueue:       c.cfg.ReplyTopic,
		}, out)
	}, nil
}

// call publishes msg and waits for the matching reply.
func (c *Client) call(ctx context.Context, msg Request, out content.Writer) error {
	if err := c.inflight.Acquire(ctx); err != nil {
		return err
	}
	defer c.inflight.Release(1)

	msg.RequestID = uuid.NewString()
	replies := make(chan Reply, 1)
	c.mu.Lock()
	c.pending[msg.RequestID] = replies
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, msg.RequestID)
		c.mu.Unlock()
	}()

	log := logging.FromContext(ctx).With("request_id", msg.RequestID, "node", msg.NodeRef, "rendition", msg.TransformName)
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	partition, offset, err := c.producer.SendMessage(&sarama.ProducerMessage{
		Topic: c.cfg.RequestTopic,
		Key:   sarama.StringEncoder(msg.NodeRef),
		Value: sarama.ByteEncoder(b),
	})
	if err != nil {
		return fmt.Errorf("remote: publish: %w", err)
	}
	log.Info("remote transform requested", "topic", c.cfg.RequestTopic, "partition", partition, "offset", offset)

	timer := time.NewTimer(c.cfg.Timeout)
	defer timer.Stop()
	var rep Reply
	select {
	case rep = <-replies:
	case <-timer.C:
		return &Error{RequestID: msg.RequestID, Details: "timed out waiting for reply", Retryable: true}
	case <-ctx.Done():
		return ctx.Err()
	}

	if rep.Status != StatusSuccess {
		return &Error{RequestID: msg.RequestID, Details: rep.ErrorDetails}
	}
	res, err := c.store.ReaderForURL(ctx, rep.TargetRef, out.Mimetype())
	if err != nil {
		return err
	}
	if !res.Exists() {
		return fmt.Errorf("%w: remote result %s", content.ErrNoContent, rep.TargetRef)
	}
	rc, err := res.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	if _, err := io.Copy(out, rc); err != nil {
		return err
	}
	log.Info("remote transform completed", "target_ref", rep.TargetRef)
	return nil
}

// HandleReply routes a reply to its waiting request. Each instance reads
// every reply, so replies nobody here waits for belong to another instance
// and are dropped; malformed ones are logged and skipped.
func (c *Client) HandleReply(ctx context.Context, m kafka.Message) error {
	var rep Reply
	if err := json.Unmarshal(m.Value, &rep); err != nil {
		logging.FromContext(ctx).Warn("malformed remote reply", "topic", m.Topic, "offset", m.Offset, "err", err)
		return nil
	}
	c.mu.Lock()
	ch, ok := c.pending[rep.RequestID]
	c.mu.Unlock()
	if !ok {
		logging.FromContext(ctx).Debug("reply for unknown request", "request_id", rep.RequestID)
		return nil
	}
	select {
	case ch <- rep:
	default:
	}
	return nil
}

// Waiting is the number of requests awaiting a reply.
func (c *Client) Waiting() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *Client) Close() error {
	c.inflight.Close()
	return c.producer.Close()
}
