package account

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memStore struct {
	mu      sync.Mutex
	callers map[string]*Caller
	images  []Image
	lookups int
	failAdd error
}

func newMemStore() *memStore {
	return &memStore{callers: map[string]*Caller{}}
}

func (m *memStore) Create(_ context.Context, addr string) (*Caller, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.callers {
		if c.Addr == addr {
			return nil, ErrAlreadyExists
		}
	}
	c := &Caller{ID: uuid.NewString(), Addr: addr, CreatedAt: time.Now()}
	m.callers[c.ID] = c
	cp := *c
	return &cp, nil
}

func (m *memStore) GetByID(_ context.Context, id string) (*Caller, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookups++
	c, ok := m.callers[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memStore) GetByAddr(_ context.Context, addr string) (*Caller, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.callers {
		if c.Addr == addr {
			cp := *c
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memStore) SetBlocked(_ context.Context, id string, blocked bool) (*Caller, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookups++
	c, ok := m.callers[id]
	if !ok {
		return nil, ErrNotFound
	}
	c.Blocked = blocked
	cp := *c
	return &cp, nil
}

func (m *memStore) AddImage(_ context.Context, callerID, hash, filename string, size int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAdd != nil {
		return m.failAdd
	}
	m.images = append(m.images, Image{
		ID: uuid.NewString(), CallerID: callerID, Hash: hash,
		Filename: filename, Size: size, CreatedAt: time.Now(),
	})
	return nil
}

func (m *memStore) ListImages(_ context.Context, callerID string, limit int) ([]Image, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookups++
	var out []Image
	for i := len(m.images) - 1; i >= 0 && len(out) < limit; i-- {
		if m.images[i].CallerID == callerID {
			out = append(out, m.images[i])
		}
	}
	return out, nil
}

func TestAdmitRegistersNewCaller(t *testing.T) {
	store := newMemStore()
	svc := NewService(store)

	c, err := svc.Admit(context.Background(), "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1", c.Addr)
	assert.NotEmpty(t, c.ID)

	again, err := svc.Admit(context.Background(), "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, c.ID, again.ID)
	assert.Len(t, store.callers, 1)
}

func TestAdmitConcurrentRegistration(t *testing.T) {
	store := newMemStore()
	svc := NewService(store)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Admit(context.Background(), "10.0.0.9")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Len(t, store.callers, 1)
}

func TestAdmitBlockedCaller(t *testing.T) {
	svc := NewService(newMemStore())
	c, err := svc.Admit(context.Background(), "10.0.0.2")
	require.NoError(t, err)

	_, err = svc.Block(context.Background(), c.ID)
	require.NoError(t, err)

	_, err = svc.Admit(context.Background(), "10.0.0.2")
	assert.ErrorIs(t, err, ErrBlocked)

	_, err = svc.Unblock(context.Background(), c.ID)
	require.NoError(t, err)
	_, err = svc.Admit(context.Background(), "10.0.0.2")
	assert.NoError(t, err)
}

func TestBlockUnknownCaller(t *testing.T) {
	svc := NewService(newMemStore())

	_, err := svc.Block(context.Background(), "missing")
	assert.True(t, svc.IsNotFound(err))
}

func TestRecordImageAndList(t *testing.T) {
	store := newMemStore()
	svc := NewService(store)
	c, err := svc.Admit(context.Background(), "10.0.0.3")
	require.NoError(t, err)

	require.NoError(t, svc.RecordImage(context.Background(), c.ID, "a9993e364706816aba3e25717850c26c9cd0d89d", "abc.txt", 3))
	require.NoError(t, svc.RecordImage(context.Background(), c.ID, "da39a3ee5e6b4b0d3255bfef95601890afd80709", "empty", 0))

	images, err := svc.Images(context.Background(), c.ID, 0)
	require.NoError(t, err)
	require.Len(t, images, 2)
	assert.Equal(t, "empty", images[0].Filename)

	store.failAdd = errors.New("db down")
	assert.Error(t, svc.RecordImage(context.Background(), c.ID, "x", "y", 1))
}

func TestOpenAdmitsEveryone(t *testing.T) {
	c, err := Open{}.Admit(context.Background(), "10.0.0.4")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.4", c.Addr)
	assert.NoError(t, Open{}.RecordImage(context.Background(), "", "h", "f", 1))
}

func newAdminRouter(svc *Service) chi.Router {
	h := NewHandler(svc, zap.NewNop())
	r := chi.NewRouter()
	r.Get("/admin/callers", h.Lookup)
	r.Get("/admin/callers/{id}", h.Get)
	r.Post("/admin/callers/{id}/block", h.Block)
	r.Post("/admin/callers/{id}/unblock", h.Unblock)
	r.Get("/admin/callers/{id}/images", h.Images)
	return r
}

func decodeCaller(t *testing.T, rec *httptest.ResponseRecorder) Caller {
	t.Helper()
	var env struct {
		Success bool   `json:"success"`
		Data    Caller `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	require.True(t, env.Success)
	return env.Data
}

func TestHandlerBlockFlow(t *testing.T) {
	svc := NewService(newMemStore())
	c, err := svc.Admit(context.Background(), "10.0.0.5")
	require.NoError(t, err)
	r := newAdminRouter(svc)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/callers/"+c.ID+"/block", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeCaller(t, rec).Blocked)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/callers?addr=10.0.0.5", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, c.ID, decodeCaller(t, rec).ID)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/callers/"+c.ID+"/unblock", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decodeCaller(t, rec).Blocked)
}

func TestHandlerErrors(t *testing.T) {
	r := newAdminRouter(NewService(newMemStore()))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/callers", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	for _, p := range []string{"/admin/callers/nope", "/admin/callers/nope/images"} {
		rec = httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, p, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code, p)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/callers/nope/block", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerMalformedIDNeverReachesStore(t *testing.T) {
	store := newMemStore()
	r := newAdminRouter(NewService(store))

	requests := []struct{ method, path string }{
		{http.MethodGet, "/admin/callers/not-a-uuid"},
		{http.MethodPost, "/admin/callers/not-a-uuid/block"},
		{http.MethodPost, "/admin/callers/not-a-uuid/unblock"},
		{http.MethodGet, "/admin/callers/not-a-uuid/images"},
	}
	for _, req := range requests {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(req.method, req.path, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code, req.path)
	}
	assert.Zero(t, store.lookups)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/callers/"+uuid.NewString(), nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, 1, store.lookups)
}
