package local

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"sync"
	"time"
)

// ErrNotFound is returned when a key does not exist.
var ErrNotFound = errors.New("cache: key not found")

// Config holds LocalCache settings.
type Config struct {
	GCInterval time.Duration
}

type entry struct {
	data     string
	expireAt time.Time // zero means no expiry
}

func (e entry) live(now time.Time) bool {
	return e.expireAt.IsZero() || now.Before(e.expireAt)
}

// LocalCache is an in-process Cache for single-node deployments and tests.
// Only plain keys expire; hashes, sets, sorted sets and lists live until
// deleted.
type LocalCache struct {
	mu     sync.RWMutex
	kv     map[string]entry
	hashes map[string]map[string]string
	sets   map[string]map[string]struct{}
	zsets  map[string]map[string]float64
	lists  map[string][]string

	stop      chan struct{}
	closeOnce sync.Once
}

// NewCache creates a LocalCache and starts sweeping expired keys every
// cfg.GCInterval (30s when unset).
func NewCache(cfg Config) (*LocalCache, error) {
	every := cfg.GCInterval
	if every <= 0 {
		every = 30 * time.Second
	}
	c := &LocalCache{
		kv:     make(map[string]entry),
		hashes: make(map[string]map[string]string),
		sets:   make(map[string]map[string]struct{}),
		zsets:  make(map[string]map[string]float64),
		lists:  make(map[string][]string),
		stop:   make(chan struct{}),
	}
	go c.sweep(every)
	return c, nil
}

// Close stops the sweeper. It is safe to call more than once.
func (c *LocalCache) Close() error {
	c.closeOnce.Do(func() { close(c.stop) })
	return nil
}

func (c *LocalCache) sweep(every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			now := time.Now()
			c.mu.Lock()
			for k, e := range c.kv {
				if !e.live(now) {
					delete(c.kv, k)
				}
			}
			c.mu.Unlock()
		case <-c.stop:
			return
		}
	}
}

// ---- KV ----

func (c *LocalCache) Get(_ context.Context, key string) (string, error) {
	c.mu.RLock()
	e, ok := c.kv[key]
	c.mu.RUnlock()
	if !ok || !e.live(time.Now()) {
		return "", ErrNotFound
	}
	return e.data, nil
}

func (c *LocalCache) Set(_ context.Context, key, value string, ttl time.Duration) error {
	e := entry{data: value}
	if ttl > 0 {
		e.expireAt = time.Now().Add(ttl)
	}
	c.mu.Lock()
	c.kv[key] = e
	c.mu.Unlock()
	return nil
}

// Del removes keys of any type.
func (c *LocalCache) Del(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.kv, k)
		delete(c.hashes, k)
		delete(c.sets, k)
		delete(c.zsets, k)
		delete(c.lists, k)
	}
	return nil
}

func (c *LocalCache) Exists(_ context.Context, key string) (bool, error) {
	c.mu.RLock()
	e, ok := c.kv[key]
	c.mu.RUnlock()
	return ok && e.live(time.Now()), nil
}

// ---- Hash ----

func (c *LocalCache) HSet(_ context.Context, key, field, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.hashes[key]
	if !ok {
		h = make(map[string]string)
		c.hashes[key] = h
	}
	h[field] = value
	return nil
}

func (c *LocalCache) HGet(_ context.Context, key, field string) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.hashes[key][field]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (c *LocalCache) HGetAll(_ context.Context, key string) (map[string]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]string, len(c.hashes[key]))
	for f, v := range c.hashes[key] {
		out[f] = v
	}
	return out, nil
}

func (c *LocalCache) HDel(_ context.Context, key string, fields ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	h := c.hashes[key]
	for _, f := range fields {
		delete(h, f)
	}
	if len(h) == 0 {
		delete(c.hashes, key)
	}
	return nil
}

// ---- Set ----

func (c *LocalCache) SAdd(_ context.Context, key string, members ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sets[key]
	if !ok {
		s = make(map[string]struct{}, len(members))
		c.sets[key] = s
	}
	for _, m := range members {
		s[m] = struct{}{}
	}
	return nil
}

func (c *LocalCache) SMembers(_ context.Context, key string) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.sets[key]))
	for m := range c.sets[key] {
		out = append(out, m)
	}
	return out, nil
}

// ---- Sorted set ----

// ZIncrBy adds incr to member's score, creating it at 0 first.
func (c *LocalCache) ZIncrBy(_ context.Context, key string, incr float64, member string) (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	z, ok := c.zsets[key]
	if !ok {
		z = make(map[string]float64)
		c.zsets[key] = z
	}
	z[member] += incr
	return z[member], nil
}

// ZRevRange returns members from highest to lowest score; equal scores are
// ordered by member, descending, as Redis does.
func (c *LocalCache) ZRevRange(_ context.Context, key string, start, stop int64) ([]string, error) {
	c.mu.RLock()
	z := c.zsets[key]
	members := make([]string, 0, len(z))
	for m := range z {
		members = append(members, m)
	}
	slices.SortFunc(members, func(a, b string) int {
		if d := cmp.Compare(z[b], z[a]); d != 0 {
			return d
		}
		return cmp.Compare(b, a)
	})
	c.mu.RUnlock()

	lo, hi, ok := span(int64(len(members)), start, stop)
	if !ok {
		return nil, nil
	}
	return members[lo : hi+1], nil
}

func (c *LocalCache) ZScore(_ context.Context, key, member string) (float64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.zsets[key][member]
	if !ok {
		return 0, ErrNotFound
	}
	return v, nil
}

// ---- List ----

// LPush prepends values one at a time, so the last value ends up first.
func (c *LocalCache) LPush(_ context.Context, key string, values ...string) error {
	head := slices.Clone(values)
	slices.Reverse(head)
	c.mu.Lock()
	c.lists[key] = append(head, c.lists[key]...)
	c.mu.Unlock()
	return nil
}

func (c *LocalCache) LRange(_ context.Context, key string, start, stop int64) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	l := c.lists[key]
	lo, hi, ok := span(int64(len(l)), start, stop)
	if !ok {
		return nil, nil
	}
	return slices.Clone(l[lo : hi+1]), nil
}

func (c *LocalCache) LTrim(_ context.Context, key string, start, stop int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	l := c.lists[key]
	lo, hi, ok := span(int64(len(l)), start, stop)
	if !ok {
		delete(c.lists, key)
		return nil
	}
	c.lists[key] = slices.Clone(l[lo : hi+1])
	return nil
}

// span resolves Redis-style inclusive indices (negative counts from the
// end) against a length n.
func span(n, start, stop int64) (int64, int64, bool) {
	if start < 0 {
		start = max(n+start, 0)
	}
	if stop < 0 {
		stop = n + stop
	}
	stop = min(stop, n-1)
	if n == 0 || start > stop {
		return 0, 0, false
	}
	return start, stop, true
}
