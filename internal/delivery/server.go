// Package delivery serves stored objects over HTTP with range support,
// long-lived caching and a PNG fallback for clients that cannot show WebP.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/elimage/service/internal/metrics"
	"github.com/elimage/service/internal/response"
	"github.com/elimage/service/internal/sniff"
	"github.com/elimage/service/internal/storage"
	"github.com/elimage/service/internal/transcode"
)

// sniffLimit is how much of an object is read to classify it.
const sniffLimit = 1 << 20

var (
	shardParam = regexp.MustCompile(`^[0-9a-fA-F]{2}$`)
	fileParam  = regexp.MustCompile(`^([0-9a-fA-F]{38})(\.\w*)?$`)
)

// Deriver produces the derived rendering of an original file.
type Deriver interface {
	EnsureDerived(ctx context.Context, original string) (string, error)
}

// Options tunes delivery behaviour.
type Options struct {
	// Bots and LegacyEngines are case-sensitive User-Agent substrings.
	Bots          []string
	LegacyEngines []string
	// MaxAge is the Cache-Control lifetime of served objects.
	MaxAge time.Duration
	// NotFoundMaxAge is the Cache-Control lifetime of 404 answers.
	NotFoundMaxAge time.Duration
	// Fallback handles paths that match the route but do not name an
	// object, such as a hash split at the wrong place. Nil answers 404.
	Fallback http.Handler
}

// Server serves GET and HEAD for /{shard}/{file}.
type Server struct {
	store   *storage.Store
	types   *sniff.Cache
	deriver Deriver
	opts    Options
	log     *zap.Logger
}

// NewServer creates a Server.
func NewServer(store *storage.Store, types *sniff.Cache, deriver Deriver, opts Options, log *zap.Logger) *Server {
	return &Server{store: store, types: types, deriver: deriver, opts: opts, log: log}
}

// Mount registers the object routes on r.
func (s *Server) Mount(r chi.Router) {
	r.Get("/{shard}/{file}", s.ServeHTTP)
	r.Head("/{shard}/{file}", s.ServeHTTP)
}

// ServeHTTP godoc
//
//	@Summary		Fetch a stored image
//	@Description	Serves the object at its sharded content path. Supports a single byte range, If-Modified-Since and HEAD.
//	@Tags			images
//	@Produce		octet-stream
//	@Param			shard	path		string	true	"First two hex characters of the hash"
//	@Param			file	path		string	true	"Remaining 38 hex characters plus optional extension"
//	@Param			Range	header		string	false	"Single byte range"
//	@Success		200		{file}		binary
//	@Success		206		{file}		binary
//	@Failure		404		{string}	string
//	@Failure		416		{string}	string
//	@Router			/{shard}/{file} [get]
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	storagePath, ok := parseObjectPath(chi.URLParam(r, "shard"), chi.URLParam(r, "file"))
	if !ok {
		if s.opts.Fallback != nil {
			s.opts.Fallback.ServeHTTP(w, r)
			return
		}
		s.notFound(w)
		return
	}
	abs, err := s.store.Abs(storagePath)
	if err != nil {
		s.notFound(w)
		return
	}

	servePath := abs
	contentType := s.classify(r.Context(), storagePath, abs)
	if contentType == sniff.WebP {
		w.Header().Set("Vary", "Accept, User-Agent")
		if s.needsFallback(r) {
			derived, err := s.deriver.EnsureDerived(r.Context(), abs)
			if err != nil {
				if errors.Is(err, os.ErrNotExist) || isMissing(abs) {
					s.notFound(w)
					return
				}
				s.log.Error("derived artifact unavailable", zap.String("path", storagePath), zap.Error(err))
				response.TextError(w, http.StatusInternalServerError, "Internal Server Error")
				return
			}
			servePath = derived
			contentType = transcode.DerivedContentType
		}
	}

	bot := s.isBot(r.UserAgent())
	f, err := openObject(servePath, bot)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.notFound(w)
			return
		}
		s.log.Error("open object", zap.String("path", servePath), zap.Error(err))
		response.TextError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		s.log.Error("stat object", zap.String("path", servePath), zap.Error(err))
		response.TextError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	s.serveContent(w, r, f, info, contentType, ioPath(bot))
}

func (s *Server) serveContent(w http.ResponseWriter, r *http.Request, f *os.File, info os.FileInfo, contentType, path string) {
	size := info.Size()
	modTime := info.ModTime().UTC().Truncate(time.Second)

	h := w.Header()
	h.Set("Content-Type", contentType)
	h.Set("Cache-Control", fmt.Sprintf("public, max-age=%d", int64(s.opts.MaxAge/time.Second)))
	h.Set("Last-Modified", modTime.Format(http.TimeFormat))
	h.Set("Accept-Ranges", "bytes")

	if ims := r.Header.Get("If-Modified-Since"); ims != "" {
		if t, err := http.ParseTime(ims); err == nil && !modTime.After(t) {
			h.Del("Content-Type")
			w.WriteHeader(http.StatusNotModified)
			metrics.Deliveries.WithLabelValues(path, "304").Inc()
			return
		}
	}

	start, end, status := int64(0), size, http.StatusOK
	if rh := r.Header.Get("Range"); rh != "" {
		rs, re, err := parseRange(rh, size)
		switch {
		case err == nil:
			start, end, status = rs, re, http.StatusPartialContent
			h.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end-1, size))
		case errors.Is(err, errUnsatisfiableRange):
			h.Set("Content-Range", fmt.Sprintf("bytes */%d", size))
			response.TextError(w, http.StatusRequestedRangeNotSatisfiable, "Requested Range Not Satisfiable")
			metrics.Deliveries.WithLabelValues(path, "416").Inc()
			return
		default:
			// multiple or malformed ranges: serve the whole object
		}
	}

	length := end - start
	h.Set("Content-Length", strconv.FormatInt(length, 10))
	w.WriteHeader(status)
	metrics.Deliveries.WithLabelValues(path, strconv.Itoa(status)).Inc()
	if r.Method == http.MethodHead {
		return
	}

	if start > 0 {
		if _, err := f.Seek(start, io.SeekStart); err != nil {
			s.log.Error("seek object", zap.String("path", f.Name()), zap.Error(err))
			return
		}
	}
	n, err := copyChunks(r.Context(), w, f, length)
	metrics.BytesServed.Add(float64(n))
	if err != nil && !errors.Is(err, context.Canceled) {
		s.log.Warn("short object write",
			zap.String("path", f.Name()),
			zap.Int64("written", n),
			zap.Int64("expected", length),
			zap.Error(err))
	}
}

// classify returns the Content-Type of the object at storagePath. An object
// that cannot be classified is served as opaque bytes.
func (s *Server) classify(ctx context.Context, storagePath, abs string) string {
	res, err := s.types.Classify(ctx, storagePath, func() ([]byte, error) {
		f, err := os.Open(abs)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return io.ReadAll(io.LimitReader(f, sniffLimit))
	})
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.log.Warn("classify object", zap.String("path", storagePath), zap.Error(err))
		}
		return sniff.OctetStream
	}
	return res.ContentType()
}

// needsFallback reports whether the client should get the PNG rendering of
// a WebP object: it does not advertise WebP support and runs a legacy engine.
func (s *Server) needsFallback(r *http.Request) bool {
	if strings.Contains(r.Header.Get("Accept"), sniff.WebP) {
		return false
	}
	return containsAny(r.UserAgent(), s.opts.LegacyEngines)
}

func (s *Server) isBot(ua string) bool {
	return containsAny(ua, s.opts.Bots)
}

func (s *Server) notFound(w http.ResponseWriter) {
	metrics.Deliveries.WithLabelValues("none", "404").Inc()
	response.CachedNotFound(w, int(s.opts.NotFoundMaxAge/time.Second))
}

// parseObjectPath validates the route parameters and returns the storage
// path they name. The URL extension is not part of the storage path.
func parseObjectPath(shard, file string) (string, bool) {
	if !shardParam.MatchString(shard) {
		return "", false
	}
	m := fileParam.FindStringSubmatch(file)
	if m == nil {
		return "", false
	}
	return strings.ToLower(shard) + "/" + strings.ToLower(m[1]), true
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if m != "" && strings.Contains(s, m) {
			return true
		}
	}
	return false
}

func isMissing(path string) bool {
	_, err := os.Stat(path)
	return errors.Is(err, os.ErrNotExist)
}

func ioPath(bot bool) string {
	if bot {
		return "bot"
	}
	return "default"
}
