// Package httpapi exposes the rendition service over HTTP.
package httpapi

import (
	"bytes"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"transformd/internal/content"
	"transformd/internal/logging"
	"transformd/internal/service"
)

// UserHeader carries the acting user; requests without it run as
// DefaultUser.
const (
	UserHeader  = "X-Transformd-User"
	DefaultUser = "system"
)

type Handler struct {
	svc *service.Service
}

func NewRouter(svc *service.Service) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	h := &Handler{svc: svc}

	// ---- HEALTH ----
	r.Get("/health", h.Health)

	// ---- DEFINITIONS ----
	r.Get("/definitions", h.ListDefinitions)
	r.Get("/renditions", h.RenditionNames)

	// ---- NODES ----
	r.Put("/nodes/{nodeRef}/content", h.PutContent)
	r.Get("/nodes/{nodeRef}/renditions", h.Available)
	r.Post("/nodes/{nodeRef}/renditions/{name}", h.Render)
	r.Get("/nodes/{nodeRef}/renditions/{name}", h.GetRendition)

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		logging.With("http").Debug("request",
			"method", r.Method, "path", r.URL.Path, "status", ww.Status(),
			"duration", time.Since(start), "request_id", middleware.GetReqID(r.Context()))
	})
}

func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (h *Handler) ListDefinitions(w http.ResponseWriter, _ *http.Request) {
	defs := h.svc.Definitions()
	out := make([]map[string]any, 0, len(defs))
	for _, d := range defs {
		out = append(out, map[string]any{
			"name":           d.Name,
			"targetMimetype": d.TargetMimetype,
			"options":        d.Options,
		})
	}
	WriteJSON(w, http.StatusOK, map[string]any{"definitions": out})
}

func (h *Handler) RenditionNames(w http.ResponseWriter, r *http.Request) {
	mimetype := r.URL.Query().Get("mimetype")
	if mimetype == "" {
		WriteErr(w, http.StatusBadRequest, "MISSING_MIMETYPE", "mimetype query parameter is required", nil)
		return
	}
	var size int64
	if raw := r.URL.Query().Get("size"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || v < 0 {
			WriteErr(w, http.StatusBadRequest, "INVALID_SIZE", "size must be a non-negative integer", map[string]any{"size": raw})
			return
		}
		size = v
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"mimetype":   mimetype,
		"size":       size,
		"renditions": h.svc.RenditionNames(r.Context(), mimetype, size),
	})
}

func (h *Handler) PutContent(w http.ResponseWriter, r *http.Request) {
	ref := content.NodeRef(chi.URLParam(r, "nodeRef"))
	mimetype := r.Header.Get("Content-Type")
	if i := strings.IndexByte(mimetype, ';'); i >= 0 {
		mimetype = strings.TrimSpace(mimetype[:i])
	}
	if mimetype == "" {
		WriteErr(w, http.StatusBadRequest, "MISSING_CONTENT_TYPE", "Content-Type header is required", nil)
		return
	}
	defer r.Body.Close()

	src, err := h.svc.PutContent(r.Context(), ref, mimetype, r.Body)
	if err != nil {
		writeDomainErr(w, err, map[string]any{"node_ref": ref})
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"node": map[string]any{
			"nodeRef":     ref,
			"mimetype":    src.Mimetype(),
			"size":        src.Size(),
			"contentHash": content.Hash(src),
		},
	})
}

func (h *Handler) Available(w http.ResponseWriter, r *http.Request) {
	ref := content.NodeRef(chi.URLParam(r, "nodeRef"))
	names, err := h.svc.Available(r.Context(), ref)
	if err != nil {
		writeDomainErr(w, err, map[string]any{"node_ref": ref})
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"nodeRef": ref, "renditions": names})
}

// Render starts an async transform, or runs it inline with ?sync=true.
func (h *Handler) Render(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ref := content.NodeRef(chi.URLParam(r, "nodeRef"))
	name := chi.URLParam(r, "name")
	details := map[string]any{"node_ref": ref, "rendition": name}
	user := r.Header.Get(UserHeader)
	if user == "" {
		user = DefaultUser
	}
	ctx = logging.ContextWithUser(ctx, user)

	if sync, _ := strconv.ParseBool(r.URL.Query().Get("sync")); sync {
		var buf bytes.Buffer
		mimetype, err := h.svc.RenderSync(ctx, ref, name, &buf)
		if err != nil {
			writeDomainErr(w, err, details)
			return
		}
		w.Header().Set("Content-Type", mimetype)
		w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
		w.WriteHeader(http.StatusOK)
		_, _ = buf.WriteTo(w)
		return
	}

	job, err := h.svc.Render(ctx, ref, name, user)
	if err != nil {
		writeDomainErr(w, err, details)
		return
	}
	select {
	case <-job.Done():
		if err := job.Err(); err != nil {
			writeDomainErr(w, err, details)
			return
		}
	default:
	}
	WriteJSON(w, http.StatusAccepted, map[string]any{"jobId": job.ID, "nodeRef": ref, "rendition": name})
}

func (h *Handler) GetRendition(w http.ResponseWriter, r *http.Request) {
	ref := content.NodeRef(chi.URLParam(r, "nodeRef"))
	name := chi.URLParam(r, "name")
	res, info, err := h.svc.Rendition(r.Context(), ref, name)
	if err != nil {
		writeDomainErr(w, err, map[string]any{"node_ref": ref, "rendition": name})
		return
	}
	rc, err := res.Open()
	if err != nil {
		writeDomainErr(w, err, map[string]any{"node_ref": ref, "rendition": name})
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", info.Mimetype)
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	w.Header().Set("X-Source-Hash", strconv.FormatInt(info.SourceHash, 10))
	w.Header().Set("Last-Modified", info.CreatedAt.UTC().Format(http.TimeFormat))
	_, _ = io.Copy(w, rc)
}
