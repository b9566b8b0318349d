// Package cache provides a generic, thread-safe LRU cache.
//
// The cache keeps at most Capacity entries and evicts the least recently
// used entry on overflow. GetOrCompute runs the compute function under the
// cache lock, so concurrent callers for the same key compute once.
//
//	c := cache.New[[32]byte, []byte](64)
//	spirv, err := c.GetOrCompute(sha256.Sum256(src), func() ([]byte, error) {
//		return compile(src)
//	})
//
// Failed computations are not cached.
package cache
