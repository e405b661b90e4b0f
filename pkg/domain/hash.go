package domain

import (
	"math"

	"github.com/cespare/xxhash/v2"

	"github.com/ajitpratap0/tablewriter/pkg/types"
)

const maxBuckets = math.MaxInt32

// Bucket returns the bucket of v among n buckets, or -1 for NULL.
// Integral and temporal values bucket by value modulo n, so consecutive
// integer keys spread round-robin; everything else buckets by xxhash.
func Bucket(v types.Value, n int) int {
	if n <= 0 || v.IsNull() {
		return -1
	}
	switch v.Type.Elem() {
	case types.TypeFloat, types.TypeDouble:
		f, _ := v.Float64()
		if f == 0 {
			f = 0 // fold -0 into 0
		}
		return int(mix(math.Float64bits(f)) % uint64(n))
	case types.TypeString, types.TypeSymbol, types.TypeBlob, types.TypeUUID:
		b, _ := v.Bytes()
		return int(xxhash.Sum64(b) % uint64(n))
	}
	i, ok := v.Int64()
	if !ok {
		return int(xxhash.Sum64String(v.String()) % uint64(n))
	}
	m := i % int64(n)
	if m < 0 {
		m += int64(n)
	}
	return int(m)
}

// mix is the splitmix64 finalizer.
func mix(x uint64) uint64 {
	x ^= x >> 30
	x *= 0xbf58476d1ce4e5b9
	x ^= x >> 27
	x *= 0x94d049bb133111eb
	x ^= x >> 31
	return x
}
