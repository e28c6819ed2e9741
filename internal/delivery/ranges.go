package delivery

import (
	"context"
	"errors"
	"io"
	"strconv"
	"strings"
)

// chunkSize is the read/write unit used when streaming objects.
const chunkSize = 64 << 10

var (
	errMalformedRange     = errors.New("malformed range")
	errMultiRange         = errors.New("multiple ranges")
	errUnsatisfiableRange = errors.New("range not satisfiable")
)

// parseRange parses a single "bytes=" range against an object of size bytes
// and returns the half-open interval [start, end).
func parseRange(header string, size int64) (start, end int64, err error) {
	rng, ok := strings.CutPrefix(header, "bytes=")
	if !ok {
		return 0, 0, errMalformedRange
	}
	rng = strings.TrimSpace(rng)
	if strings.Contains(rng, ",") {
		return 0, 0, errMultiRange
	}
	first, last, ok := strings.Cut(rng, "-")
	if !ok {
		return 0, 0, errMalformedRange
	}
	first, last = strings.TrimSpace(first), strings.TrimSpace(last)

	if first == "" {
		// suffix range: the final n bytes
		n, err := strconv.ParseInt(last, 10, 64)
		if err != nil || n < 0 {
			return 0, 0, errMalformedRange
		}
		if n == 0 || size == 0 {
			return 0, 0, errUnsatisfiableRange
		}
		if n > size {
			n = size
		}
		return size - n, size, nil
	}

	start, err = strconv.ParseInt(first, 10, 64)
	if err != nil || start < 0 {
		return 0, 0, errMalformedRange
	}
	if start >= size {
		return 0, 0, errUnsatisfiableRange
	}
	if last == "" {
		return start, size, nil
	}
	e, err := strconv.ParseInt(last, 10, 64)
	if err != nil || e < start {
		return 0, 0, errMalformedRange
	}
	end = e + 1
	if end > size {
		end = size
	}
	return start, end, nil
}

// copyChunks copies exactly n bytes from src to dst in chunkSize pieces,
// stopping early if ctx is cancelled. A source shorter than n is an error.
func copyChunks(ctx context.Context, dst io.Writer, src io.Reader, n int64) (int64, error) {
	buf := make([]byte, chunkSize)
	var written int64
	for written < n {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		want := int64(len(buf))
		if rem := n - written; rem < want {
			want = rem
		}
		nr, err := io.ReadFull(src, buf[:want])
		if nr > 0 {
			nw, werr := dst.Write(buf[:nr])
			written += int64(nw)
			if werr != nil {
				return written, werr
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return written, err
		}
	}
	return written, nil
}
