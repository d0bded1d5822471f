package qa

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"videoqa/core"
)

// CachedAnswer is one stored answer keyed by question fingerprint.
type CachedAnswer struct {
	Question string    `json:"question"`
	Answer   string    `json:"answer"`
	Language string    `json:"language,omitempty"`
	CachedAt time.Time `json:"cached_at"`
}

// Cache is a per-source answer cache: memory first, persisted through the
// file store so answers survive restarts. The question cache and the
// time-window cache are independent files; Invalidate clears both.
type Cache struct {
	store  *core.FileStore
	logger *zap.Logger

	mu      sync.Mutex
	answers map[string]map[string]CachedAnswer
	windows map[string]map[string]CachedAnswer
}

func NewCache(store *core.FileStore, logger *zap.Logger) *Cache {
	return &Cache{
		store:   store,
		logger:  logger,
		answers: make(map[string]map[string]CachedAnswer),
		windows: make(map[string]map[string]CachedAnswer),
	}
}

func (c *Cache) load(sourceID string, window bool) map[string]CachedAnswer {
	maps := c.answers
	if window {
		maps = c.windows
	}
	if m, ok := maps[sourceID]; ok {
		return m
	}
	m := make(map[string]CachedAnswer)
	var err error
	if window {
		err = c.store.LoadWindowCache(sourceID, &m)
	} else {
		err = c.store.LoadAnswerCache(sourceID, &m)
	}
	if err != nil && !errors.Is(err, core.ErrNotFound) {
		c.logger.Warn("answer cache load failed", zap.String("source", sourceID), zap.Error(err))
	}
	maps[sourceID] = m
	return m
}

func (c *Cache) persist(sourceID string, window bool) {
	var err error
	if window {
		err = c.store.SaveWindowCache(sourceID, c.windows[sourceID])
	} else {
		err = c.store.SaveAnswerCache(sourceID, c.answers[sourceID])
	}
	if err != nil {
		c.logger.Warn("answer cache persist failed", zap.String("source", sourceID), zap.Error(err))
	}
}

func (c *Cache) Get(sourceID, fingerprint string) (CachedAnswer, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ans, ok := c.load(sourceID, false)[fingerprint]
	return ans, ok
}

func (c *Cache) Put(sourceID, fingerprint string, ans CachedAnswer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.load(sourceID, false)[fingerprint] = ans
	c.persist(sourceID, false)
}

func (c *Cache) GetWindow(sourceID, fingerprint string) (CachedAnswer, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ans, ok := c.load(sourceID, true)[fingerprint]
	return ans, ok
}

func (c *Cache) PutWindow(sourceID, fingerprint string, ans CachedAnswer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.load(sourceID, true)[fingerprint] = ans
	c.persist(sourceID, true)
}

// Invalidate drops every cached answer for the source, memory and disk.
func (c *Cache) Invalidate(sourceID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.answers, sourceID)
	delete(c.windows, sourceID)
	if err := c.store.SaveAnswerCache(sourceID, map[string]CachedAnswer{}); err != nil {
		c.logger.Warn("answer cache invalidate failed", zap.String("source", sourceID), zap.Error(err))
	}
	if err := c.store.SaveWindowCache(sourceID, map[string]CachedAnswer{}); err != nil {
		c.logger.Warn("window cache invalidate failed", zap.String("source", sourceID), zap.Error(err))
	}
}
