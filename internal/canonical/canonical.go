// Package canonical redirects flat or oddly split hash paths to the sharded
// URL an object is served from.
package canonical

import (
	"errors"
	"net/http"
	"regexp"
	"strings"

	"github.com/elimage/service/internal/response"
	"github.com/elimage/service/internal/storage"
)

// ErrNotFound is returned for segments that do not name a content hash.
var ErrNotFound = errors.New("not a content hash")

// candidate matches request paths worth canonicalizing.
var candidate = regexp.MustCompile(`^[0-9a-fA-F/]{40,}(\.\w+)?$`)

var hexHash = regexp.MustCompile(`^[0-9a-fA-F]{40}$`)

// IsCandidate reports whether segment has the shape of a hash path.
func IsCandidate(segment string) bool {
	return candidate.MatchString(segment)
}

// Resolve maps a path segment such as "a9993e...d89d.png" or
// "a999/3e.../d89d" to its canonical form "a9/993e...d89d.png". Everything
// after the first dot, dot included, is carried over as the extension. The
// hash is lowercased to match the on-disk layout.
func Resolve(segment string) (string, error) {
	h, ext := segment, ""
	if i := strings.IndexByte(segment, '.'); i >= 0 {
		h, ext = segment[:i], segment[i:]
	}
	h = strings.ReplaceAll(h, "/", "")
	if !hexHash.MatchString(h) {
		return "", ErrNotFound
	}
	h = strings.ToLower(h)
	return h[:storage.ShardLen] + "/" + h[storage.ShardLen:] + ext, nil
}

// Handler serves permanent redirects to canonical object URLs.
type Handler struct {
	basePath       string
	notFoundMaxAge int
}

// NewHandler creates a Handler. basePath is prepended to redirect targets;
// notFoundMaxAge is the max-age in seconds attached to 404 responses.
func NewHandler(basePath string, notFoundMaxAge int) *Handler {
	return &Handler{basePath: strings.TrimRight(basePath, "/"), notFoundMaxAge: notFoundMaxAge}
}

// ServeHTTP resolves the request path, minus the base path, and redirects.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	segment := strings.TrimPrefix(r.URL.Path, h.basePath)
	segment = strings.TrimPrefix(segment, "/")

	if !IsCandidate(segment) {
		response.CachedNotFound(w, h.notFoundMaxAge)
		return
	}
	target, err := Resolve(segment)
	if err != nil {
		response.CachedNotFound(w, h.notFoundMaxAge)
		return
	}
	http.Redirect(w, r, h.basePath+"/"+target, http.StatusMovedPermanently)
}
