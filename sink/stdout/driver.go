package stdout

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"transformd/sink"
)

/* ────────── public config ────────── */
type Config struct {
	BatchSize int `koanf:"batch_size"` // flush after this many events; 0 = every event
	FlushMS   int `koanf:"flush_ms"`   // flush pending events after this delay; 0 = disabled

	// Out defaults to os.Stdout.
	Out io.Writer `koanf:"-"`
}

/* ────────── driver ────────── */
type driver struct {
	cfg Config

	mu      sync.Mutex // guards w+pending+timer
	w       *bufio.Writer
	enc     *json.Encoder
	pending int
	timer   *time.Timer // nil → no timer armed
	closed  bool
}

/* ────────── sink.Adapter ────────── */
func (d *driver) Configure(raw any) error {
	c, ok := raw.(Config)
	if !ok {
		return fmt.Errorf("stdout-sink: expected Config, got %T", raw)
	}
	if c.Out == nil {
		c.Out = os.Stdout
	}
	d.cfg = c
	d.w = bufio.NewWriter(c.Out)
	d.enc = json.NewEncoder(d.w)
	return nil
}

func (d *driver) Push(e sink.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return fmt.Errorf("stdout-sink: closed")
	}
	if err := d.enc.Encode(e); err != nil {
		return err
	}
	d.pending++

	/* 1. flush on batch size */
	if d.cfg.BatchSize <= 1 || d.pending >= d.cfg.BatchSize {
		return d.flushLocked()
	}

	/* 2. (re)-arm the one-shot timer if needed */
	if d.cfg.FlushMS > 0 && d.timer == nil {
		d.timer = time.AfterFunc(time.Duration(d.cfg.FlushMS)*time.Millisecond, d.timerFlush)
	}
	return nil
}

func (d *driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	return d.flushLocked()
}

/* ────────── internals ────────── */

// called by the background timer goroutine
func (d *driver) timerFlush() {
	d.mu.Lock()
	_ = d.flushLocked()
	d.mu.Unlock()
}

// must be called with d.mu *held*
func (d *driver) flushLocked() error {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.pending = 0
	return d.w.Flush()
}

/* ────────── auto-register ────────── */
func init() {
	sink.Register("stdout", func() sink.Adapter { return &driver{} })
}
