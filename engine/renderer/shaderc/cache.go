package shaderc

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"sync"

	"github.com/spaghettifunk/anima-cgi/engine/core"
	"golang.org/x/sync/singleflight"
)

// Cache memoizes another Compiler by a hash of everything that affects the
// output. Concurrent requests for the same key share one compilation.
// Failures are not cached.
type Cache struct {
	compiler Compiler

	mu    sync.RWMutex
	code  map[string][]byte
	group singleflight.Group

	hits, misses int
}

func NewCache(c Compiler) *Cache {
	return &Cache{
		compiler: c,
		code:     make(map[string][]byte),
	}
}

func cacheKey(source []byte, defines map[string]string, entryPoint string, target Target) string {
	h := sha256.New()
	write := func(s string) {
		// length prefix keeps adjacent fields from running together
		h.Write([]byte(strconv.Itoa(len(s))))
		h.Write([]byte{':'})
		h.Write([]byte(s))
	}
	write(string(source))
	for _, name := range sortedDefines(defines) {
		write(name)
		write(defines[name])
	}
	write(entryPoint)
	write(target.Stage.String())
	write(target.Language.String())
	write(target.env())
	return hex.EncodeToString(h.Sum(nil))
}

func (c *Cache) Compile(ctx context.Context, source []byte, defines map[string]string, entryPoint string, target Target) ([]byte, error) {
	key := cacheKey(source, defines, entryPoint, target)

	c.mu.RLock()
	code, ok := c.code[key]
	c.mu.RUnlock()
	if ok {
		c.mu.Lock()
		c.hits++
		c.mu.Unlock()
		return code, nil
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		c.mu.RLock()
		code, ok := c.code[key]
		c.mu.RUnlock()
		if ok {
			return code, nil
		}
		code, err := c.compiler.Compile(ctx, source, defines, entryPoint, target)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.code[key] = code
		c.misses++
		c.mu.Unlock()
		core.LogDebug("compiled %s shader %s (%d bytes)", target.Stage, key[:12], len(code))
		return code, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// Stats returns the hit and miss counts.
func (c *Cache) Stats() (hits, misses int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits, c.misses
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.code)
}

// Purge drops every cached module.
func (c *Cache) Purge() {
	c.mu.Lock()
	c.code = make(map[string][]byte)
	c.mu.Unlock()
}
