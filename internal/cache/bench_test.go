package cache

import (
	"crypto/sha256"
	"encoding/binary"
	"testing"
)

func shaderKey(i int) [32]byte {
	var src [8]byte
	binary.LittleEndian.PutUint64(src[:], uint64(i))
	return sha256.Sum256(src[:])
}

func BenchmarkModuleHit(b *testing.B) {
	c := New[[32]byte, []byte](64)
	key := shaderKey(7)
	c.Set(key, make([]byte, 1024))
	b.ReportAllocs()
	for b.Loop() {
		c.Get(key)
	}
}

func BenchmarkModuleChurn(b *testing.B) {
	c := New[[32]byte, []byte](64)
	keys := make([][32]byte, 256)
	for i := range keys {
		keys[i] = shaderKey(i)
	}
	spirv := make([]byte, 1024)
	b.ReportAllocs()
	i := 0
	for b.Loop() {
		_, _ = c.GetOrCompute(keys[i%len(keys)], func() ([]byte, error) { return spirv, nil })
		i++
	}
}
