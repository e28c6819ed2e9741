package sniff

import (
	"context"

	gocache "github.com/patrickmn/go-cache"
)

// Cache memoizes classification results by storage path. Entries never
// expire: stored content is addressed by its hash, so the bytes behind a
// path cannot change once written.
type Cache struct {
	classifier *Classifier
	entries    *gocache.Cache
}

// NewCache creates an empty Cache in front of classifier.
func NewCache(classifier *Classifier) *Cache {
	return &Cache{
		classifier: classifier,
		entries:    gocache.New(gocache.NoExpiration, 0),
	}
}

// Classify returns the cached result for key, calling load and classifying
// its bytes on a miss. Failed classifications are not cached.
func (c *Cache) Classify(ctx context.Context, key string, load func() ([]byte, error)) (Result, error) {
	if v, ok := c.entries.Get(key); ok {
		return v.(Result), nil
	}

	data, err := load()
	if err != nil {
		return Result{}, err
	}
	res, err := c.classifier.Classify(ctx, data)
	if err != nil {
		return Result{}, err
	}
	c.entries.SetDefault(key, res)
	return res, nil
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	return c.entries.ItemCount()
}
