// Package statcache caches stat(2) results of request paths for a short time, so
// hot files don't cost a syscall per request.
package statcache

import (
	"time"

	"github.com/benbjohnson/clock"
	"github.com/hashicorp/golang-lru/v2/simplelru"
	"golang.org/x/sys/unix"
)

// Item is a single cached stat result.
type Item struct {
	Path    string
	Stat    unix.Stat_t
	Errno   unix.Errno
	Created time.Time
}

// Options configure the Cache.
type Options struct {
	// TTL is how long a successful result stays fresh.
	TTL time.Duration
	// NegativeTTL is how long a failed result stays fresh.
	NegativeTTL time.Duration
	// MaxEntries bounds the cache. The least recently used entry gets evicted
	// on insertion into a full cache.
	MaxEntries int
	// FollowSymlinks makes the cache stat the link target. Otherwise, links are
	// reported as ELOOP.
	FollowSymlinks bool
}

// Cache is a TTL cache of stat results. Stale entries are never swept in background:
// they are refreshed lazily by the next lookup of the same path. The Cache isn't safe for
// concurrent use, as it belongs to the event loop.
type Cache struct {
	opts    Options
	clock   clock.Clock
	entries *simplelru.LRU[string, *Item]
	stat    func(path string, st *unix.Stat_t) error
	hits    uint64
	misses  uint64
}

func New(opts Options, clk clock.Clock) *Cache {
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = 1
	}

	// the only possible error is a non-positive size, which is ruled out above
	entries, _ := simplelru.NewLRU[string, *Item](opts.MaxEntries, nil)

	c := &Cache{
		opts:    opts,
		clock:   clk,
		entries: entries,
		stat:    unix.Stat,
	}

	if !opts.FollowSymlinks {
		c.stat = lstatNoFollow
	}

	return c
}

// Stat returns a stat result of the path, either cached or a fresh one. The error is
// always either nil or unix.Errno.
func (c *Cache) Stat(path string) (unix.Stat_t, error) {
	item := c.Lookup(path)
	if item.Errno != 0 {
		return item.Stat, item.Errno
	}

	return item.Stat, nil
}

// Lookup returns the cache item of the path, refreshing it if it's stale or missing.
func (c *Cache) Lookup(path string) *Item {
	now := c.clock.Now()

	if item, found := c.entries.Get(path); found {
		if now.Sub(item.Created) < c.ttl(item) {
			c.hits++
			return item
		}
	}

	c.misses++
	item := &Item{
		Path:    path,
		Created: now,
	}

	for {
		err := c.stat(path, &item.Stat)
		if err == unix.EINTR {
			continue
		}

		if err != nil {
			item.Errno = toErrno(err)
		}

		break
	}

	c.entries.Add(path, item)

	return item
}

// Forget drops the cached result of the path, if any.
func (c *Cache) Forget(path string) {
	c.entries.Remove(path)
}

// Len returns the number of cached entries, stale ones included.
func (c *Cache) Len() int {
	return c.entries.Len()
}

// Stats returns the number of cache hits and misses so far.
func (c *Cache) Stats() (hits, misses uint64) {
	return c.hits, c.misses
}

func (c *Cache) ttl(item *Item) time.Duration {
	if item.Errno != 0 {
		return c.opts.NegativeTTL
	}

	return c.opts.TTL
}

func lstatNoFollow(path string, st *unix.Stat_t) error {
	if err := unix.Lstat(path, st); err != nil {
		return err
	}

	if st.Mode&unix.S_IFMT == unix.S_IFLNK {
		return unix.ELOOP
	}

	return nil
}

func toErrno(err error) unix.Errno {
	if errno, ok := err.(unix.Errno); ok {
		return errno
	}

	return unix.EIO
}
