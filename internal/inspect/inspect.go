// Package inspect hands uploads of executable-looking content to an external
// reviewer without holding up the upload response.
package inspect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Item is an upload flagged for inspection.
type Item struct {
	Addr     string
	Hash     string
	Filename string
	MIME     string
	Data     []byte
}

// Hook receives flagged uploads.
type Hook interface {
	Inspect(ctx context.Context, item Item) error
}

// Nop discards every item.
type Nop struct{}

// Inspect does nothing.
func (Nop) Inspect(context.Context, Item) error { return nil }

// Webhook posts flagged uploads as JSON to a URL.
type Webhook struct {
	url    string
	client *http.Client
}

// NewWebhook creates a Webhook posting to url.
func NewWebhook(url string, timeout time.Duration) *Webhook {
	return &Webhook{url: url, client: &http.Client{Timeout: timeout}}
}

type webhookPayload struct {
	ID       string `json:"id"`
	Addr     string `json:"addr"`
	Hash     string `json:"hash"`
	Filename string `json:"filename"`
	MIME     string `json:"mime"`
	Size     int    `json:"size"`
	Data     []byte `json:"data"`
}

// Inspect posts item. Any non-2xx answer is an error.
func (h *Webhook) Inspect(ctx context.Context, item Item) error {
	body, err := json.Marshal(webhookPayload{
		ID:       uuid.NewString(),
		Addr:     item.Addr,
		Hash:     item.Hash,
		Filename: item.Filename,
		MIME:     item.MIME,
		Size:     len(item.Data),
		Data:     item.Data,
	})
	if err != nil {
		return fmt.Errorf("encode inspection payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build inspection request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("post inspection: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("post inspection: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// Dispatcher runs a Hook in the background on a bounded number of slots.
// Items arriving while every slot is busy are dropped. Failures are logged only.
type Dispatcher struct {
	hook    Hook
	slots   *semaphore.Weighted
	timeout time.Duration
	log     *zap.Logger
	wg      sync.WaitGroup
}

// NewDispatcher creates a Dispatcher running up to workers items at once,
// giving each up to timeout.
func NewDispatcher(hook Hook, workers int, timeout time.Duration, log *zap.Logger) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	return &Dispatcher{
		hook:    hook,
		slots:   semaphore.NewWeighted(int64(workers)),
		timeout: timeout,
		log:     log,
	}
}

// Submit schedules item and returns immediately. It reports false when the
// item was dropped.
func (d *Dispatcher) Submit(item Item) bool {
	if !d.slots.TryAcquire(1) {
		d.log.Warn("inspection queue full, dropping item",
			zap.String("hash", item.Hash),
			zap.String("addr", item.Addr))
		return false
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer d.slots.Release(1)

		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		if err := d.hook.Inspect(ctx, item); err != nil {
			d.log.Warn("inspection hook failed",
				zap.String("hash", item.Hash),
				zap.String("addr", item.Addr),
				zap.Error(err))
			return
		}
		d.log.Info("upload sent for inspection",
			zap.String("hash", item.Hash),
			zap.String("mime", item.MIME))
	}()
	return true
}

// Wait blocks until every submitted item has been handled.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
