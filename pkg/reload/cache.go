package reload

import (
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/daimatz/gojvm-reload/pkg/lambda"
	"github.com/daimatz/gojvm-reload/pkg/vm"
)

type siteKey struct {
	class *vm.Class
	index uint16
}

type siteEntry struct {
	generation uint64
	site       *lambda.CallSite
}

// siteCache holds linked call sites per (class, invokedynamic constant). An
// entry is only returned for the generation it was linked in; clear drops
// everything.
type siteCache struct {
	mu      sync.Mutex
	entries map[siteKey]siteEntry
	group   singleflight.Group
}

func newSiteCache() *siteCache {
	return &siteCache{entries: make(map[siteKey]siteEntry)}
}

// get returns the cached call site for key at generation, linking it with
// link on a miss. Concurrent misses on the same key share one link.
func (c *siteCache) get(key siteKey, generation uint64, link func() (*lambda.CallSite, error)) (*lambda.CallSite, bool, error) {
	c.mu.Lock()
	e, ok := c.entries[key]
	c.mu.Unlock()
	if ok && e.generation == generation {
		return e.site, true, nil
	}

	v, err, _ := c.group.Do(fmt.Sprintf("%p/%d/%d", key.class, key.index, generation), func() (interface{}, error) {
		site, err := link()
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		if cur, ok := c.entries[key]; !ok || cur.generation <= generation {
			c.entries[key] = siteEntry{generation: generation, site: site}
		}
		c.mu.Unlock()
		return site, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v.(*lambda.CallSite), false, nil
}

func (c *siteCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[siteKey]siteEntry)
}

func (c *siteCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
