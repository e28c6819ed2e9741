// Package upload accepts files, stores them by content hash and answers with
// the URLs they are served from.
package upload

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/elimage/service/internal/account"
	"github.com/elimage/service/internal/inspect"
	"github.com/elimage/service/internal/metrics"
	"github.com/elimage/service/internal/sniff"
	"github.com/elimage/service/internal/storage"
)

// ErrNoFiles is returned when a request carries no file.
var ErrNoFiles = errors.New("no files uploaded")

// Accounting admits callers and records their uploads.
type Accounting interface {
	Admit(ctx context.Context, addr string) (*account.Caller, error)
	RecordImage(ctx context.Context, callerID, hash, filename string, size int64) error
}

// Inspector receives uploads of risky types. Submit must not block.
type Inspector interface {
	Submit(item inspect.Item) bool
}

// File is one uploaded file.
type File struct {
	Filename string
	Data     []byte
}

// Result is the outcome for one File.
type Result struct {
	Filename string
	URL      string
	Object   *storage.Object
	Type     sniff.Result
	Err      error
}

// Service runs the ingest flow.
type Service struct {
	store     *storage.Store
	types     *sniff.Cache
	accounts  Accounting
	inspector Inspector
	log       *zap.Logger
}

// NewService creates a new upload Service. types is shared with delivery so
// that freshly uploaded objects are served without a second classification.
func NewService(store *storage.Store, types *sniff.Cache, accounts Accounting, inspector Inspector, log *zap.Logger) *Service {
	return &Service{store: store, types: types, accounts: accounts, inspector: inspector, log: log}
}

// Ingest admits the caller at addr and stores every file. baseURL is the
// scheme, host and base path the object URLs are built on. Per-file failures
// are reported in the results; the error return is for request-level
// failures such as account.ErrBlocked and ErrNoFiles.
func (s *Service) Ingest(ctx context.Context, addr, baseURL string, files []File) ([]Result, error) {
	caller, err := s.accounts.Admit(ctx, addr)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, ErrNoFiles
	}

	results := make([]Result, 0, len(files))
	for _, f := range files {
		results = append(results, s.ingestOne(ctx, caller, baseURL, f))
	}
	return results, nil
}

func (s *Service) ingestOne(ctx context.Context, caller *account.Caller, baseURL string, f File) Result {
	res := Result{Filename: f.Filename}

	obj, err := s.store.Ingest(ctx, f.Data)
	if err != nil {
		metrics.Ingests.WithLabelValues("failed").Inc()
		s.log.Error("store upload", zap.String("filename", f.Filename), zap.Error(err))
		res.Err = err
		return res
	}
	res.Object = obj

	typ, err := s.types.Classify(ctx, obj.Path, func() ([]byte, error) { return f.Data, nil })
	if err != nil {
		s.log.Warn("classify upload", zap.String("hash", obj.Hash), zap.Error(err))
	}
	res.Type = typ

	ext := sniff.Extension(typ)
	if ext == "" {
		ext = sniff.FallbackExtension(f.Filename)
	}
	res.URL = fmt.Sprintf("%s/%s%s", baseURL, obj.Path, ext)

	if caller.ID != "" {
		if err := s.accounts.RecordImage(ctx, caller.ID, obj.Hash, f.Filename, obj.Size); err != nil {
			s.log.Warn("record upload", zap.String("caller", caller.ID), zap.String("hash", obj.Hash), zap.Error(err))
		}
	}

	if sniff.IsRisky(typ.MIME) {
		s.inspector.Submit(inspect.Item{
			Addr:     caller.Addr,
			Hash:     obj.Hash,
			Filename: f.Filename,
			MIME:     typ.MIME,
			Data:     f.Data,
		})
	}

	if obj.IsNew {
		metrics.Ingests.WithLabelValues("stored").Inc()
	} else {
		metrics.Ingests.WithLabelValues("duplicate").Inc()
	}
	s.log.Info("upload stored",
		zap.String("hash", obj.Hash),
		zap.String("filename", f.Filename),
		zap.String("mime", typ.MIME),
		zap.Bool("new", obj.IsNew))
	return res
}
