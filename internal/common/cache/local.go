package cache

import (
	"container/list"
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	appErr "codejudge/pkg/errors"
)

const defaultLocalMaxSize = 1024

type localEntry struct {
	key       string
	value     string
	expiresAt time.Time
}

// LocalCache is an in-process LRU Cache with TTL support, used when no Redis
// is configured. Counters and windows are per process.
type LocalCache struct {
	mu      sync.Mutex
	items   map[string]*list.Element
	order   *list.List
	maxSize int
	now     func() time.Time
}

// NewLocalCache creates a cache holding at most maxSize keys.
func NewLocalCache(maxSize int) *LocalCache {
	if maxSize <= 0 {
		maxSize = defaultLocalMaxSize
	}
	return &LocalCache{
		items:   make(map[string]*list.Element, maxSize),
		order:   list.New(),
		maxSize: maxSize,
		now:     time.Now,
	}
}

func (c *LocalCache) Get(_ context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e := c.lookup(key); e != nil {
		return e.value, nil
	}
	return "", nil
}

func (c *LocalCache) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store(key, stringify(value), ttl)
	return nil
}

func (c *LocalCache) SetNX(_ context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lookup(key) != nil {
		return false, nil
	}
	c.store(key, stringify(value), ttl)
	return true, nil
}

func (c *LocalCache) Del(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range keys {
		if elem, ok := c.items[key]; ok {
			c.remove(elem)
		}
	}
	return nil
}

// Incr keeps the expiry of an existing key, like Redis INCR.
func (c *LocalCache) Incr(_ context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.lookup(key)
	if e == nil {
		c.store(key, "1", 0)
		return 1, nil
	}
	n, err := strconv.ParseInt(e.value, 10, 64)
	if err != nil {
		return 0, appErr.Newf(appErr.CacheError, "value of %s is not an integer", key)
	}
	n++
	e.value = strconv.FormatInt(n, 10)
	return n, nil
}

func (c *LocalCache) Expire(_ context.Context, key string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e := c.lookup(key); e != nil {
		e.expiresAt = c.expiry(ttl)
	}
	return nil
}

// TTL follows go-redis: -2 for a missing key, -1 for a key without expiry.
func (c *LocalCache) TTL(_ context.Context, key string) (time.Duration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.lookup(key)
	switch {
	case e == nil:
		return -2, nil
	case e.expiresAt.IsZero():
		return -1, nil
	}
	return e.expiresAt.Sub(c.now()), nil
}

func (c *LocalCache) Ping(context.Context) error { return nil }

func (c *LocalCache) Close() error { return nil }

// Len returns the number of stored keys, expired ones included until touched.
func (c *LocalCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *LocalCache) lookup(key string) *localEntry {
	elem, ok := c.items[key]
	if !ok {
		return nil
	}
	e := elem.Value.(*localEntry)
	if !e.expiresAt.IsZero() && !c.now().Before(e.expiresAt) {
		c.remove(elem)
		return nil
	}
	c.order.MoveToFront(elem)
	return e
}

func (c *LocalCache) store(key, value string, ttl time.Duration) {
	exp := c.expiry(ttl)
	if elem, ok := c.items[key]; ok {
		e := elem.Value.(*localEntry)
		e.value = value
		e.expiresAt = exp
		c.order.MoveToFront(elem)
		return
	}
	c.items[key] = c.order.PushFront(&localEntry{key: key, value: value, expiresAt: exp})
	if len(c.items) > c.maxSize {
		if oldest := c.order.Back(); oldest != nil {
			c.remove(oldest)
		}
	}
}

func (c *LocalCache) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return c.now().Add(ttl)
}

func (c *LocalCache) remove(elem *list.Element) {
	delete(c.items, elem.Value.(*localEntry).key)
	c.order.Remove(elem)
}

func stringify(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return fmt.Sprint(v)
	}
}
