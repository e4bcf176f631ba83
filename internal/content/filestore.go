package content

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	storeScheme = "store://"
	tempScheme  = "temp://"
	indexFile   = "nodes.json"
)

type renditionEntry struct {
	URL        string    `json:"url"`
	Mimetype   string    `json:"mimetype"`
	Size       int64     `json:"size"`
	SourceHash int64     `json:"sourceHash"`
	CreatedAt  time.Time `json:"createdAt"`
}

type nodeEntry struct {
	URL        string                    `json:"url,omitempty"`
	Mimetype   string                    `json:"mimetype,omitempty"`
	Size       int64                     `json:"size,omitempty"`
	Renditions map[string]renditionEntry `json:"renditions,omitempty"`
}

// RenditionInfo describes a stored rendition.
type RenditionInfo struct {
	Name       string
	Mimetype   string
	Size       int64
	SourceHash int64
	CreatedAt  time.Time
}

// FileStore keeps binaries under a root directory and a JSON index of nodes.
// Every write of a node's content gets a fresh content URL.
type FileStore struct {
	root string

	mu    sync.RWMutex
	nodes map[NodeRef]*nodeEntry
}

func NewFileStore(root string) (*FileStore, error) {
	if root == "" {
		return nil, fmt.Errorf("content: root is required")
	}
	for _, d := range []string{"contentstore", "tmp"} {
		if err := os.MkdirAll(filepath.Join(root, d), 0o755); err != nil {
			return nil, err
		}
	}
	s := &FileStore{root: root, nodes: map[NodeRef]*nodeEntry{}}
	raw, err := os.ReadFile(filepath.Join(root, indexFile))
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		if err := json.Unmarshal(raw, &s.nodes); err != nil {
			return nil, fmt.Errorf("content: index: %w", err)
		}
	}
	return s, nil
}

func (s *FileStore) GetReader(_ context.Context, ref NodeRef) (Reader, error) {
	s.mu.RLock()
	n, ok := s.nodes[ref]
	s.mu.RUnlock()
	if !ok || n.URL == "" {
		return Missing{}, nil
	}
	return s.readerFor(n.URL, n.Mimetype, n.Size), nil
}

func (s *FileStore) GetTempWriter(context.Context) (Writer, error) {
	name := uuid.NewString() + ".bin"
	f, err := os.Create(filepath.Join(s.root, "tmp", name))
	if err != nil {
		return nil, err
	}
	return &fileWriter{store: s, f: f, url: tempScheme + name}, nil
}

// PutContent replaces the node's content and returns a reader for it.
func (s *FileStore) PutContent(_ context.Context, ref NodeRef, mimetype string, r io.Reader) (Reader, error) {
	url, size, err := s.writeBlob(r)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	n, ok := s.nodes[ref]
	if !ok {
		n = &nodeEntry{}
		s.nodes[ref] = n
	}
	old := n.URL
	n.URL, n.Mimetype, n.Size = url, mimetype, size
	err = s.saveLocked()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if old != "" {
		_ = os.Remove(s.pathFor(old))
	}
	return s.readerFor(url, mimetype, size), nil
}

// PutRendition stores the rendition of ref, replacing any previous one. It
// returns ErrStale, storing nothing, when ref's content no longer has
// sourceHash; the check and the index update happen under one lock.
func (s *FileStore) PutRendition(_ context.Context, ref NodeRef, name string, src Reader, sourceHash int64) error {
	rc, err := src.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	url, size, err := s.writeBlob(rc)
	if err != nil {
		return err
	}

	s.mu.Lock()
	n, ok := s.nodes[ref]
	if !ok {
		s.mu.Unlock()
		_ = os.Remove(s.pathFor(url))
		return fmt.Errorf("%w: %s", ErrNodeNotFound, ref)
	}
	if n.URL == "" || hashURL(n.URL) != sourceHash {
		s.mu.Unlock()
		_ = os.Remove(s.pathFor(url))
		return fmt.Errorf("%w: rendition %q of %s", ErrStale, name, ref)
	}
	if n.Renditions == nil {
		n.Renditions = map[string]renditionEntry{}
	}
	old := n.Renditions[name].URL
	n.Renditions[name] = renditionEntry{
		URL: url, Mimetype: src.Mimetype(), Size: size,
		SourceHash: sourceHash, CreatedAt: time.Now().UTC(),
	}
	err = s.saveLocked()
	s.mu.Unlock()
	if old != "" {
		_ = os.Remove(s.pathFor(old))
	}
	return err
}

// Rendition returns the stored rendition, or ErrNoContent when absent or
// made from content the node no longer has.
func (s *FileStore) Rendition(_ context.Context, ref NodeRef, name string) (Reader, RenditionInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[ref]
	if !ok {
		return nil, RenditionInfo{}, fmt.Errorf("%w: %s", ErrNodeNotFound, ref)
	}
	e, ok := n.Renditions[name]
	if !ok {
		return nil, RenditionInfo{}, fmt.Errorf("%w: rendition %q of %s", ErrNoContent, name, ref)
	}
	if n.URL == "" || hashURL(n.URL) != e.SourceHash {
		return nil, RenditionInfo{}, fmt.Errorf("%w: rendition %q of %s is out of date", ErrNoContent, name, ref)
	}
	info := RenditionInfo{Name: name, Mimetype: e.Mimetype, Size: e.Size, SourceHash: e.SourceHash, CreatedAt: e.CreatedAt}
	return s.readerFor(e.URL, e.Mimetype, e.Size), info, nil
}

// ReaderForURL opens a blob written by another process into the shared
// store, as done by remote transform workers.
func (s *FileStore) ReaderForURL(_ context.Context, url, mimetype string) (Reader, error) {
	if !strings.HasPrefix(url, storeScheme) && !strings.HasPrefix(url, tempScheme) {
		return nil, fmt.Errorf("content: unsupported url %q", url)
	}
	st, err := os.Stat(s.pathFor(url))
	if errors.Is(err, fs.ErrNotExist) {
		return Missing{}, nil
	}
	if err != nil {
		return nil, err
	}
	return s.readerFor(url, mimetype, st.Size()), nil
}

func (s *FileStore) writeBlob(r io.Reader) (string, int64, error) {
	rel := filepath.ToSlash(filepath.Join(time.Now().UTC().Format("2006/01/02"), uuid.NewString()+".bin"))
	url := storeScheme + rel
	dst := s.pathFor(url)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", 0, err
	}
	f, err := os.Create(dst)
	if err != nil {
		return "", 0, err
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(dst)
		return "", 0, err
	}
	return url, n, nil
}

func (s *FileStore) pathFor(url string) string {
	switch {
	case strings.HasPrefix(url, storeScheme):
		return filepath.Join(s.root, "contentstore", filepath.FromSlash(strings.TrimPrefix(url, storeScheme)))
	case strings.HasPrefix(url, tempScheme):
		return filepath.Join(s.root, "tmp", filepath.FromSlash(strings.TrimPrefix(url, tempScheme)))
	}
	return ""
}

// must be called with s.mu held
func (s *FileStore) saveLocked() error {
	raw, err := json.MarshalIndent(s.nodes, "", "  ")
	if err != nil {
		return err
	}
	tmp := filepath.Join(s.root, indexFile+".tmp")
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, filepath.Join(s.root, indexFile))
}

func (s *FileStore) readerFor(url, mimetype string, size int64) *fileReader {
	return &fileReader{path: s.pathFor(url), url: url, mimetype: mimetype, size: size}
}

type fileReader struct {
	path     string
	url      string
	mimetype string
	size     int64
}

func (r *fileReader) Exists() bool {
	_, err := os.Stat(r.path)
	return err == nil
}
func (r *fileReader) ContentURL() string { return r.url }
func (r *fileReader) Mimetype() string   { return r.mimetype }
func (r *fileReader) Size() int64        { return r.size }
func (r *fileReader) Open() (io.ReadCloser, error) {
	f, err := os.Open(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNoContent
	}
	return f, err
}

type fileWriter struct {
	store    *FileStore
	f        *os.File
	url      string
	mimetype string
	size     int64
	closed   bool
}

func (w *fileWriter) Write(p []byte) (int, error) {
	if w.closed {
		return 0, ErrClosed
	}
	n, err := w.f.Write(p)
	w.size += int64(n)
	return n, err
}

func (w *fileWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	return w.f.Close()
}

func (w *fileWriter) SetMimetype(m string) { w.mimetype = m }
func (w *fileWriter) Mimetype() string     { return w.mimetype }

func (w *fileWriter) Reader() (Reader, error) {
	if !w.closed {
		return nil, fmt.Errorf("content: writer for %s still open", w.url)
	}
	return w.store.readerFor(w.url, w.mimetype, w.size), nil
}

func (w *fileWriter) Discard() error {
	_ = w.Close()
	err := os.Remove(w.f.Name())
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
