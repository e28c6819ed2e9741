// Package transcode lazily produces derived renderings of stored images for
// clients that cannot display the original format.
package transcode

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/elimage/service/internal/executor"
	"github.com/elimage/service/internal/metrics"
)

// DerivedSuffix is appended to an original's filename to name its derived
// artifact.
const DerivedSuffix = ".png"

// DerivedContentType is the MIME type of derived artifacts.
const DerivedContentType = "image/png"

// ErrTranscode wraps every conversion failure.
var ErrTranscode = errors.New("transcode failed")

// Converter renders src into dst.
type Converter interface {
	Convert(ctx context.Context, src, dst string) error
}

// CommandConverter runs an external program. Its argv template uses "{in}"
// and "{out}" placeholders, e.g. ["dwebp", "{in}", "-o", "{out}"].
type CommandConverter struct {
	argv []string
}

// NewCommandConverter creates a CommandConverter from an argv template.
func NewCommandConverter(argv []string) *CommandConverter {
	return &CommandConverter{argv: argv}
}

// Convert runs the command and waits for it to exit.
func (c *CommandConverter) Convert(ctx context.Context, src, dst string) error {
	if len(c.argv) == 0 {
		return errors.New("empty converter command")
	}
	args := make([]string, len(c.argv))
	for i, a := range c.argv {
		a = strings.ReplaceAll(a, "{in}", src)
		args[i] = strings.ReplaceAll(a, "{out}", dst)
	}

	out, err := exec.CommandContext(ctx, args[0], args[1:]...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", args[0], err, strings.TrimSpace(string(out)))
	}
	return nil
}

// Worker creates derived artifacts on first demand and reuses them after.
type Worker struct {
	conv  Converter
	pool  *executor.Pool
	log   *zap.Logger
	group singleflight.Group
}

// NewWorker creates a Worker running conv on pool.
func NewWorker(conv Converter, pool *executor.Pool, log *zap.Logger) *Worker {
	return &Worker{conv: conv, pool: pool, log: log}
}

// DerivedPath returns where the derived artifact of original lives.
func DerivedPath(original string) string {
	return original + DerivedSuffix
}

// EnsureDerived returns the derived artifact path for original, converting
// it first if it does not exist yet. Concurrent callers for the same
// original share one conversion. The conversion is not abandoned when a
// waiting caller goes away; it stays bounded by the pool deadline.
func (w *Worker) EnsureDerived(ctx context.Context, original string) (string, error) {
	derived := DerivedPath(original)
	if ok, err := exists(derived); err != nil {
		return "", fmt.Errorf("%w: stat %q: %v", ErrTranscode, derived, err)
	} else if ok {
		return derived, nil
	}

	convCtx := context.WithoutCancel(ctx)
	ch := w.group.DoChan(derived, func() (interface{}, error) {
		if ok, err := exists(derived); err == nil && ok {
			return derived, nil
		}
		return derived, w.convert(convCtx, original, derived)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return derived, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (w *Worker) convert(ctx context.Context, original, derived string) error {
	tmp, err := os.CreateTemp(filepath.Dir(derived), "."+filepath.Base(derived)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: create temp file: %v", ErrTranscode, err)
	}
	tmpName := tmp.Name()
	_ = tmp.Close()
	defer os.Remove(tmpName)

	start := time.Now()
	err = w.pool.Run(ctx, func(ctx context.Context) error {
		return w.conv.Convert(ctx, original, tmpName)
	})
	metrics.TranscodeSeconds.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.Transcodes.WithLabelValues("failed").Inc()
		w.log.Error("transcode failed", zap.String("original", original), zap.Error(err))
		return fmt.Errorf("%w: %v", ErrTranscode, err)
	}

	info, err := os.Stat(tmpName)
	if err != nil || info.Size() == 0 {
		metrics.Transcodes.WithLabelValues("failed").Inc()
		return fmt.Errorf("%w: converter produced no output for %q", ErrTranscode, original)
	}
	if err := os.Rename(tmpName, derived); err != nil {
		metrics.Transcodes.WithLabelValues("failed").Inc()
		return fmt.Errorf("%w: install %q: %v", ErrTranscode, derived, err)
	}

	metrics.Transcodes.WithLabelValues("converted").Inc()
	w.log.Info("derived artifact created",
		zap.String("original", original),
		zap.Duration("took", time.Since(start)))
	return nil
}

func exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
