package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/elimage/service/internal/account"
	"github.com/elimage/service/internal/canonical"
	"github.com/elimage/service/internal/delivery"
	"github.com/elimage/service/internal/executor"
	"github.com/elimage/service/internal/inspect"
	"github.com/elimage/service/internal/sniff"
	"github.com/elimage/service/internal/storage"
	"github.com/elimage/service/internal/transcode"
	"github.com/elimage/service/internal/upload"
)

const abcHash = "a9993e364706816aba3e25717850c26c9cd0d89d"

func testRouter(t *testing.T, basePath string) http.Handler {
	t.Helper()
	log := zap.NewNop()

	store, err := storage.New(t.TempDir())
	require.NoError(t, err)
	pool := executor.NewPool(2, 5*time.Second)
	types := sniff.NewCache(sniff.NewClassifier(sniff.MimetypeOracle{}))
	transcoder := transcode.NewWorker(transcode.NewCommandConverter([]string{"cp", "{in}", "{out}"}), pool, log)

	inspector := inspect.NewDispatcher(inspect.Nop{}, 1, time.Second, log)
	t.Cleanup(inspector.Wait)

	uploads := upload.NewHandler(
		upload.NewService(store, types, account.Open{}, inspector, log),
		upload.Options{BasePath: basePath, MaxUploadBytes: 1 << 20},
		log,
	)
	redirects := canonical.NewHandler(basePath, 300)
	objects := delivery.NewServer(store, types, transcoder, delivery.Options{
		MaxAge:         time.Hour,
		NotFoundMaxAge: 5 * time.Minute,
		Fallback:       redirects,
	}, log)

	return newRouter(routes{
		basePath:  basePath,
		uploads:   uploads,
		objects:   objects,
		redirects: redirects,
	}, log)
}

func do(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouterRedirectsHashPaths(t *testing.T) {
	h := testRouter(t, "")

	tests := []struct {
		name     string
		method   string
		path     string
		location string
	}{
		{"flat", http.MethodGet, "/" + abcHash, "/a9/993e364706816aba3e25717850c26c9cd0d89d"},
		{"flat with extension", http.MethodGet, "/" + abcHash + ".png", "/a9/993e364706816aba3e25717850c26c9cd0d89d.png"},
		{"three segments", http.MethodGet, "/a999/3e36/4706816aba3e25717850c26c9cd0d89d.png", "/a9/993e364706816aba3e25717850c26c9cd0d89d.png"},
		{"two segments split wrong", http.MethodGet, "/a9993e/364706816aba3e25717850c26c9cd0d89d", "/a9/993e364706816aba3e25717850c26c9cd0d89d"},
		{"head", http.MethodHead, "/" + abcHash + ".png", "/a9/993e364706816aba3e25717850c26c9cd0d89d.png"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(h, httptest.NewRequest(tt.method, tt.path, nil))

			assert.Equal(t, http.StatusMovedPermanently, rec.Code)
			assert.Equal(t, tt.location, rec.Header().Get("Location"))
		})
	}
}

func TestRouterUnknownPathIsCacheable404(t *testing.T) {
	h := testRouter(t, "")

	for _, p := range []string{"/nothing-here", "/a/b/c", "/" + abcHash[:20]} {
		rec := do(h, httptest.NewRequest(http.MethodGet, p, nil))

		assert.Equal(t, http.StatusNotFound, rec.Code, p)
		assert.Equal(t, "public, max-age=300", rec.Header().Get("Cache-Control"), p)
	}
}

func TestRouterPutThenRangeRead(t *testing.T) {
	h := testRouter(t, "")

	rec := do(h, httptest.NewRequest(http.MethodPut, "/abc.txt", strings.NewReader("abc")))
	require.Equal(t, http.StatusOK, rec.Code)
	url := strings.TrimSpace(rec.Body.String())
	assert.Equal(t, "http://example.com/a9/993e364706816aba3e25717850c26c9cd0d89d.txt", url)

	req := httptest.NewRequest(http.MethodGet, strings.TrimPrefix(url, "http://example.com"), nil)
	req.Header.Set("Range", "bytes=0-0")
	rec = do(h, req)

	assert.Equal(t, http.StatusPartialContent, rec.Code)
	assert.Equal(t, "a", rec.Body.String())
	assert.Equal(t, "bytes 0-0/3", rec.Header().Get("Content-Range"))
	assert.Equal(t, "1", rec.Header().Get("Content-Length"))
}

func TestRouterUnderBasePath(t *testing.T) {
	h := testRouter(t, "/img")

	rec := do(h, httptest.NewRequest(http.MethodPut, "/img/abc.txt", strings.NewReader("abc")))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "http://example.com/img/a9/993e364706816aba3e25717850c26c9cd0d89d.txt\n", rec.Body.String())

	rec = do(h, httptest.NewRequest(http.MethodGet, "/img/a9/993e364706816aba3e25717850c26c9cd0d89d.txt", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "abc", rec.Body.String())

	rec = do(h, httptest.NewRequest(http.MethodGet, "/img/"+abcHash+".txt", nil))
	assert.Equal(t, http.StatusMovedPermanently, rec.Code)
	assert.Equal(t, "/img/a9/993e364706816aba3e25717850c26c9cd0d89d.txt", rec.Header().Get("Location"))
}

func TestRouterServiceEndpoints(t *testing.T) {
	h := testRouter(t, "")

	rec := do(h, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = do(h, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(h, httptest.NewRequest(http.MethodGet, upload.ToolPath, nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	// accounting disabled: the admin API is not mounted
	rec = do(h, httptest.NewRequest(http.MethodGet, "/admin/callers?addr=10.0.0.1", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
