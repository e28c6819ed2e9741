package upload

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"strings"
	"text/template"

	"go.uber.org/zap"

	"github.com/elimage/service/internal/account"
	"github.com/elimage/service/internal/response"
	"github.com/elimage/service/internal/storage"
)

// ToolPath is where the upload helper script is served, under the base path.
const ToolPath = "/elimage"

// formField is the multipart field name the index page and helper script use.
const formField = "imagefile[]"

var indexTemplate = template.Must(template.New("index").Parse(`elimage: content-addressed image hosting

Upload one or more files:

    curl -F "{{.Field}}=@photo.png" {{.URL}}/
    curl -F "{{.Field}}=@a.jpg" -F "{{.Field}}=@b.webp" {{.URL}}/
    curl -T photo.png {{.URL}}/

Or fetch the helper script:

    curl -o elimage {{.URL}}{{.ToolPath}} && chmod +x elimage
    ./elimage photo.png

Each file is answered with its permanent URL. Identical content always gets
the same URL.
`))

var toolTemplate = template.Must(template.New("tool").Parse(`#!/bin/sh
# Upload files to {{.URL}} and print their URLs.
set -e

if [ $# -eq 0 ]; then
  echo "usage: $0 FILE..." >&2
  exit 2
fi

args=""
for f in "$@"; do
  args="$args -F {{.Field}}=@$f"
done

# shellcheck disable=SC2086
exec curl -sS --fail-with-body $args {{.URL}}/
`))

// Options configures the upload handler.
type Options struct {
	// PublicHost replaces the request Host in generated URLs when set.
	PublicHost string
	// BasePath is prepended to generated URLs.
	BasePath string
	// MaxUploadBytes bounds a request body.
	MaxUploadBytes int64
}

// Handler holds the HTTP handlers of the public upload surface.
type Handler struct {
	svc  *Service
	opts Options
	log  *zap.Logger
}

// NewHandler creates a new upload Handler.
func NewHandler(svc *Service, opts Options, log *zap.Logger) *Handler {
	opts.BasePath = strings.TrimRight(opts.BasePath, "/")
	return &Handler{svc: svc, opts: opts, log: log}
}

// Upload godoc
//
//	@Summary		Upload images
//	@Description	Stores every file part of a multipart form and answers with one URL per file. With several files each line is prefixed by the uploaded filename.
//	@Tags			images
//	@Accept			multipart/form-data
//	@Produce		plain
//	@Param			imagefile[]	formData	file	true	"Files to upload"
//	@Success		200			{string}	string	"URL list"
//	@Failure		400			{string}	string
//	@Failure		403			{string}	string
//	@Failure		413			{string}	string
//	@Failure		500			{string}	string
//	@Router			/ [post]
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxUploadBytes)

	// the caller is admitted before an empty form is rejected
	files, err := readMultipart(r)
	if err != nil && !errors.Is(err, ErrNoFiles) {
		h.writeError(w, err)
		return
	}
	h.ingest(w, r, files)
}

// Put godoc
//
//	@Summary		Upload one image as the request body
//	@Description	The request path is the item filename; its extension is used when the content type is unknown.
//	@Tags			images
//	@Accept			octet-stream
//	@Produce		plain
//	@Param			name	path		string	true	"File name"
//	@Success		200		{string}	string	"URL"
//	@Failure		403		{string}	string
//	@Failure		413		{string}	string
//	@Failure		500		{string}	string
//	@Router			/{name} [put]
func (h *Handler) Put(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxUploadBytes)

	data, err := io.ReadAll(r.Body)
	if err != nil {
		h.writeError(w, err)
		return
	}
	// the whole request path names the item
	h.ingest(w, r, []File{{Filename: r.URL.Path, Data: data}})
}

// Index serves the usage page.
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	h.render(w, indexTemplate, r)
}

// Tool serves the upload helper script.
func (h *Handler) Tool(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/x-shellscript; charset=utf-8")
	h.render(w, toolTemplate, r)
}

func (h *Handler) render(w http.ResponseWriter, t *template.Template, r *http.Request) {
	err := t.Execute(w, map[string]string{
		"URL":      h.baseURL(r),
		"Field":    formField,
		"ToolPath": ToolPath,
	})
	if err != nil {
		h.log.Error("render template", zap.String("template", t.Name()), zap.Error(err))
	}
}

func (h *Handler) ingest(w http.ResponseWriter, r *http.Request, files []File) {
	results, err := h.svc.Ingest(r.Context(), clientAddr(r), h.baseURL(r), files)
	if err != nil {
		h.writeError(w, err)
		return
	}

	var b strings.Builder
	failed := 0
	for _, res := range results {
		switch {
		case res.Err != nil:
			failed++
			fmt.Fprintf(&b, "%s: error: %s\n", res.Filename, reason(res.Err))
		case len(results) == 1:
			b.WriteString(res.URL + "\n")
		default:
			fmt.Fprintf(&b, "%s: %s\n", res.Filename, res.URL)
		}
	}

	status := http.StatusOK
	if failed == len(results) {
		status = http.StatusInternalServerError
	}
	response.Text(w, status, b.String())
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.Is(err, account.ErrBlocked):
		response.TextError(w, http.StatusForbidden, "You are on our blacklist.")
	case errors.Is(err, ErrNoFiles):
		response.TextError(w, http.StatusBadRequest, "upload your image please")
	case errors.As(err, &tooLarge):
		response.TextError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d bytes", tooLarge.Limit))
	default:
		h.log.Error("upload request failed", zap.Error(err))
		response.TextError(w, http.StatusInternalServerError, "Internal Server Error")
	}
}

// baseURL returns scheme, host and base path for generated URLs.
func (h *Handler) baseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if p := r.Header.Get("X-Forwarded-Proto"); p == "http" || p == "https" {
		scheme = p
	}
	host := r.Host
	if h.opts.PublicHost != "" {
		host = h.opts.PublicHost
	}
	return scheme + "://" + host + h.opts.BasePath
}

// readMultipart collects the file parts of a multipart body in request order.
// A body that is not multipart carries no files.
func readMultipart(r *http.Request) ([]File, error) {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") {
		return nil, ErrNoFiles
	}
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, ErrNoFiles
	}

	var files []File
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read multipart: %w", err)
		}
		if part.FileName() == "" {
			_ = part.Close()
			continue
		}
		data, err := io.ReadAll(part)
		_ = part.Close()
		if err != nil {
			return nil, fmt.Errorf("read part %q: %w", part.FileName(), err)
		}
		files = append(files, File{Filename: part.FileName(), Data: data})
	}
	if len(files) == 0 {
		return nil, ErrNoFiles
	}
	return files, nil
}

// clientAddr returns the caller IP. chi's RealIP middleware has already
// replaced RemoteAddr when a proxy header is present.
func clientAddr(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// reason is the per-file failure text shown to the uploader.
func reason(err error) string {
	if errors.Is(err, storage.ErrStorageIO) {
		return "storage failure"
	}
	return err.Error()
}
