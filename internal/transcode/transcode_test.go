package transcode

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/elimage/service/internal/executor"
)

type countingConverter struct {
	calls atomic.Int32
	delay time.Duration
	err   error
}

func (c *countingConverter) Convert(ctx context.Context, src, dst string) error {
	c.calls.Add(1)
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	if c.err != nil {
		return c.err
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, append([]byte("png:"), data...), 0o640)
}

func newOriginal(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "0123456789abcdef0123456789abcdef012345")
	require.NoError(t, os.WriteFile(p, []byte("webp-bytes"), 0o640))
	return p
}

func newWorker(conv Converter) *Worker {
	return NewWorker(conv, executor.NewPool(4, 5*time.Second), zap.NewNop())
}

func TestEnsureDerivedConverts(t *testing.T) {
	original := newOriginal(t)
	conv := &countingConverter{}
	w := newWorker(conv)

	derived, err := w.EnsureDerived(context.Background(), original)
	require.NoError(t, err)
	assert.Equal(t, original+".png", derived)

	data, err := os.ReadFile(derived)
	require.NoError(t, err)
	assert.Equal(t, "png:webp-bytes", string(data))
	assert.EqualValues(t, 1, conv.calls.Load())
}

func TestEnsureDerivedReusesExisting(t *testing.T) {
	original := newOriginal(t)
	conv := &countingConverter{}
	w := newWorker(conv)

	_, err := w.EnsureDerived(context.Background(), original)
	require.NoError(t, err)
	_, err = w.EnsureDerived(context.Background(), original)
	require.NoError(t, err)

	assert.EqualValues(t, 1, conv.calls.Load())
}

func TestEnsureDerivedCollapsesConcurrentCallers(t *testing.T) {
	original := newOriginal(t)
	conv := &countingConverter{delay: 50 * time.Millisecond}
	w := newWorker(conv)

	var wg sync.WaitGroup
	errs := make([]error, 16)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = w.EnsureDerived(context.Background(), original)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.EqualValues(t, 1, conv.calls.Load())
}

func TestEnsureDerivedFailure(t *testing.T) {
	original := newOriginal(t)
	w := newWorker(&countingConverter{err: errors.New("bad input")})

	_, err := w.EnsureDerived(context.Background(), original)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTranscode)

	_, statErr := os.Stat(DerivedPath(original))
	assert.True(t, os.IsNotExist(statErr))

	entries, err := os.ReadDir(filepath.Dir(original))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file must be cleaned up")
}

func TestEnsureDerivedTimeout(t *testing.T) {
	original := newOriginal(t)
	conv := &blockingConverter{}
	w := NewWorker(conv, executor.NewPool(1, 20*time.Millisecond), zap.NewNop())

	_, err := w.EnsureDerived(context.Background(), original)
	assert.ErrorIs(t, err, ErrTranscode)
}

type blockingConverter struct{}

func (blockingConverter) Convert(ctx context.Context, _, _ string) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestCommandConverterSubstitutesPlaceholders(t *testing.T) {
	if _, err := os.Stat("/bin/cp"); err != nil {
		t.Skip("cp not available")
	}
	original := newOriginal(t)
	dst := original + ".out"

	conv := NewCommandConverter([]string{"/bin/cp", "{in}", "{out}"})
	require.NoError(t, conv.Convert(context.Background(), original, dst))

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "webp-bytes", string(data))
}

func TestCommandConverterReportsFailure(t *testing.T) {
	conv := NewCommandConverter([]string{"/nonexistent/dwebp", "{in}", "-o", "{out}"})
	assert.Error(t, conv.Convert(context.Background(), "a", "b"))

	assert.Error(t, NewCommandConverter(nil).Convert(context.Background(), "a", "b"))
}
