package motion

import (
	"hash/fnv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeedFromURLMatchesFNV1a(t *testing.T) {
	for _, url := range []string{"", "https://example.com", "https://example.com/pricing?x=1"} {
		h := fnv.New32a()
		_, err := h.Write([]byte(url))
		require.NoError(t, err)
		assert.Equal(t, h.Sum32(), SeedFromURL(url), "url %q", url)
	}
}

func TestSeedDiffersAcrossURLs(t *testing.T) {
	assert.NotEqual(t, SeedFromURL("https://a.com"), SeedFromURL("https://b.com"))
}

func TestRNGIsDeterministic(t *testing.T) {
	a := NewRNG(12345)
	b := NewRNG(12345)
	for i := 0; i < 100; i++ {
		assert.Equal(t, a.Float64(), b.Float64())
	}
}

func TestRNGDiffersAcrossSeeds(t *testing.T) {
	a := NewRNG(1)
	b := NewRNG(2)
	same := 0
	for i := 0; i < 32; i++ {
		if a.Float64() == b.Float64() {
			same++
		}
	}
	assert.Less(t, same, 4)
}

func TestFloat64Bounds(t *testing.T) {
	r := NewRNG(99)
	for i := 0; i < 1000; i++ {
		v := r.Float64()
		assert.GreaterOrEqual(t, v, 0.0)
		assert.Less(t, v, 1.0)
	}
}

func TestRangeBounds(t *testing.T) {
	r := NewRNG(7)
	for i := 0; i < 1000; i++ {
		v := r.Range(10, 20)
		assert.GreaterOrEqual(t, v, 10.0)
		assert.Less(t, v, 20.0)
	}
}

func TestIntRangeBounds(t *testing.T) {
	r := NewRNG(7)
	seen := make(map[int]bool)
	for i := 0; i < 1000; i++ {
		v := r.IntRange(3, 6)
		assert.GreaterOrEqual(t, v, 3)
		assert.LessOrEqual(t, v, 6)
		seen[v] = true
	}
	// All four values should appear over 1000 draws.
	assert.Len(t, seen, 4)

	assert.Equal(t, 5, r.IntRange(5, 5))
	assert.Equal(t, 5, r.IntRange(5, 2))
}

func TestSignIsPlusMinusOne(t *testing.T) {
	r := NewRNG(42)
	plus, minus := 0, 0
	for i := 0; i < 200; i++ {
		switch r.Sign() {
		case 1:
			plus++
		case -1:
			minus++
		default:
			t.Fatal("sign outside {-1, 1}")
		}
	}
	assert.Greater(t, plus, 0)
	assert.Greater(t, minus, 0)
}

func TestPickBounds(t *testing.T) {
	r := NewRNG(3)
	for i := 0; i < 100; i++ {
		v := r.Pick(5)
		assert.GreaterOrEqual(t, v, 0)
		assert.Less(t, v, 5)
	}
	assert.Equal(t, 0, r.Pick(0))
	assert.Equal(t, 0, r.Pick(1))
}
