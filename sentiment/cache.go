package sentiment

import (
	"crypto/sha1"
	"encoding/hex"
	"io"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// predictionCache memoizes predictions per model and normalized text.
type predictionCache struct {
	c          *gocache.Cache
	maxEntries int
}

func newPredictionCache(cfg CacheConfig) *predictionCache {
	if !cfg.Enabled {
		return nil
	}
	ttl := time.Duration(cfg.TTL)
	return &predictionCache{
		c:          gocache.New(ttl, 2*ttl),
		maxEntries: cfg.MaxEntries,
	}
}

func cacheKey(modelID, text string) string {
	h := sha1.New()
	_, _ = io.WriteString(h, modelID)
	_, _ = io.WriteString(h, "|")
	_, _ = io.WriteString(h, text)
	return hex.EncodeToString(h.Sum(nil))
}

func (p *predictionCache) get(key string) (Prediction, bool) {
	if p == nil {
		return Prediction{}, false
	}
	v, ok := p.c.Get(key)
	if !ok {
		return Prediction{}, false
	}
	pred, ok := v.(Prediction)
	return pred, ok
}

func (p *predictionCache) put(key string, pred Prediction) {
	if p == nil {
		return
	}
	if p.maxEntries > 0 && p.c.ItemCount() >= p.maxEntries {
		p.c.DeleteExpired()
		if p.c.ItemCount() >= p.maxEntries {
			return
		}
	}
	p.c.SetDefault(key, pred)
}

func (p *predictionCache) flush() {
	if p == nil {
		return
	}
	p.c.Flush()
}

func (p *predictionCache) len() int {
	if p == nil {
		return 0
	}
	return p.c.ItemCount()
}
