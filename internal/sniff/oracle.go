package sniff

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/klauspost/compress/gzip"

	"github.com/elimage/service/internal/executor"
)

// Mode selects how an Oracle reports on a buffer.
type Mode int

const (
	// ModeMIME asks for "type/subtype; charset=..." output, including a
	// compressed-encoding clause for compressed payloads.
	ModeMIME Mode = iota
	// ModeDescribe asks for a free-form description of the content.
	ModeDescribe
)

// Oracle is an external content classification facility.
type Oracle interface {
	Inspect(ctx context.Context, data []byte, mode Mode) (string, error)
}

// FileOracle classifies buffers with the file(1) command, feeding them on
// stdin so uploads can be sniffed before they are persisted.
type FileOracle struct {
	command string
	pool    *executor.Pool
}

// NewFileOracle creates a FileOracle running command (usually "file") on pool.
func NewFileOracle(command string, pool *executor.Pool) *FileOracle {
	return &FileOracle{command: command, pool: pool}
}

// Available reports whether the configured command can be found in PATH.
func (o *FileOracle) Available() bool {
	_, err := exec.LookPath(o.command)
	return err == nil
}

// Inspect runs the command against data.
func (o *FileOracle) Inspect(ctx context.Context, data []byte, mode Mode) (string, error) {
	args := []string{"-b", "-"}
	if mode == ModeMIME {
		args = []string{"-b", "--mime", "-z", "-"}
	}

	var stdout, stderr bytes.Buffer
	err := o.pool.Run(ctx, func(ctx context.Context) error {
		cmd := exec.CommandContext(ctx, o.command, args...)
		cmd.Stdin = bytes.NewReader(data)
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
		return cmd.Run()
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w: %s", o.command, err, strings.TrimSpace(stderr.String()))
	}
	return strings.TrimSpace(stdout.String()), nil
}

// gzipPeekSize is how much decompressed data MimetypeOracle inspects inside
// a gzip stream.
const gzipPeekSize = 3072

// MimetypeOracle classifies in process with the mimetype signature table.
// It produces output in the same shape as FileOracle.
type MimetypeOracle struct{}

// Inspect detects the type of data.
func (MimetypeOracle) Inspect(_ context.Context, data []byte, mode Mode) (string, error) {
	if mode == ModeDescribe {
		return "data", nil
	}

	m := mimetype.Detect(data)
	if !m.Is("application/gzip") {
		return m.String() + "; charset=binary", nil
	}

	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return m.String() + "; charset=binary", nil
	}
	defer zr.Close()

	head := make([]byte, gzipPeekSize)
	n, err := io.ReadFull(zr, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return m.String() + "; charset=binary", nil
	}
	inner := mimetype.Detect(head[:n])
	return inner.String() + "; charset=binary compressed-encoding=application/gzip; charset=binary", nil
}
