// Package sniff determines the MIME type, transport encoding and URL
// extension of uploaded content.
package sniff

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"path"
	"regexp"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

const (
	OctetStream = "application/octet-stream"
	WebP        = "image/webp"

	// EncodingGzip is the only transport encoding retained by Classify.
	EncodingGzip = "gzip"
)

// maxSniffBytes caps how much of a buffer is handed to the oracle.
const maxSniffBytes = 1 << 20

// ErrClassification is returned when the oracle cannot classify a buffer.
var ErrClassification = errors.New("classification failed")

// Result is the outcome of classifying a buffer.
type Result struct {
	MIME     string
	Encoding string
}

// ContentType is the Content-Type a stored object is served with.
func (r Result) ContentType() string {
	switch {
	case r.Encoding == EncodingGzip:
		return "application/gzip"
	case r.MIME != "":
		return r.MIME
	default:
		return OctetStream
	}
}

// descriptiveOverrides maps phrases in an oracle description to the MIME type
// they identify. They cover formats the oracle's MIME table reports as
// generic binary.
var descriptiveOverrides = []struct {
	phrase string
	mime   string
}{
	{"Web/P image", WebP},
}

// Classifier classifies buffers with an Oracle.
type Classifier struct {
	oracle Oracle
}

// NewClassifier creates a Classifier backed by oracle.
func NewClassifier(oracle Oracle) *Classifier {
	return &Classifier{oracle: oracle}
}

// Classify determines the MIME type and encoding of data.
func (c *Classifier) Classify(ctx context.Context, data []byte) (Result, error) {
	if len(data) > maxSniffBytes {
		data = data[:maxSniffBytes]
	}

	out, err := c.oracle.Inspect(ctx, data, ModeMIME)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrClassification, err)
	}
	res := parseMIMEOutput(out)

	if res.MIME == OctetStream {
		desc, err := c.oracle.Inspect(ctx, data, ModeDescribe)
		if err == nil {
			for _, o := range descriptiveOverrides {
				if strings.Contains(desc, o.phrase) {
					return Result{MIME: o.mime}, nil
				}
			}
		}
	}
	return res, nil
}

// parseMIMEOutput parses "type/subtype; charset=x[ compressed-encoding=y; charset=z]".
// Only a gzip compressed-encoding is kept; any other compression makes the
// compression format itself the MIME type.
func parseMIMEOutput(out string) Result {
	fields := strings.FieldsFunc(out, func(r rune) bool { return r == ';' || r == ' ' || r == '\t' })
	if len(fields) == 0 {
		return Result{}
	}

	res := Result{MIME: strings.ToLower(fields[0])}
	for _, f := range fields[1:] {
		enc, ok := strings.CutPrefix(f, "compressed-encoding=")
		if !ok {
			continue
		}
		switch strings.ToLower(enc) {
		case "application/gzip", "application/x-gzip":
			res.Encoding = EncodingGzip
		default:
			res.MIME = strings.ToLower(enc)
		}
	}
	return res
}

var extPattern = regexp.MustCompile(`^\.\w+$`)

// Extension infers a URL extension for r. It returns "" when none is known.
func Extension(r Result) string {
	if r.Encoding == EncodingGzip {
		return ".gz"
	}

	switch r.MIME {
	case "":
		return ""
	case OctetStream:
		return ".bin"
	case WebP:
		return ".webp"
	}

	ext := ""
	if m := mimetype.Lookup(r.MIME); m != nil {
		ext = m.Extension()
	}
	if ext == "" {
		if exts, err := mime.ExtensionsByType(r.MIME); err == nil && len(exts) > 0 {
			ext = exts[0]
		}
	}
	switch ext {
	case ".jpe", ".jpeg", ".jfif":
		ext = ".jpg"
	}
	if !extPattern.MatchString(ext) {
		return ""
	}
	return ext
}

// FallbackExtension returns the extension of an uploaded filename, or "" when
// it is not a plain word.
func FallbackExtension(filename string) string {
	ext := path.Ext(strings.ReplaceAll(filename, "\\", "/"))
	if !extPattern.MatchString(ext) {
		return ""
	}
	return ext
}

// riskyTypes are executable content types that trigger inspection on upload.
var riskyTypes = map[string]bool{
	"application/x-dosexec":                         true,
	"application/x-executable":                      true,
	"application/x-sharedlib":                       true,
	"application/x-pie-executable":                  true,
	"application/x-mach-binary":                     true,
	"application/x-msdownload":                      true,
	"application/vnd.microsoft.portable-executable": true,
}

// IsRisky reports whether mimeType is an executable content type.
func IsRisky(mimeType string) bool {
	return riskyTypes[mimeType]
}
