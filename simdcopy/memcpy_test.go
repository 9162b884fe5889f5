package simdcopy_test

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/openperf/packetcore/simdcopy"
)

// TestMemcpyEquivalence checks that for a range of n and of src/dst
// misalignments, Memcpy must match a plain copy() byte-for-byte.
func TestMemcpyEquivalence(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	const pad = 64

	for n := 0; n <= 4096; n += step(n) {
		for _, srcAlign := range []int{0, 1, 7, 31, 63} {
			for _, dstAlign := range []int{0, 1, 7, 31, 63} {
				src := make([]byte, n+pad+srcAlign)
				dst1 := make([]byte, n+pad+dstAlign)
				dst2 := make([]byte, n+pad+dstAlign)
				r.Read(src)

				want := make([]byte, n)
				copy(want, src[srcAlign:srcAlign+n])
				copy(dst1[dstAlign:], want)

				simdcopy.Memcpy(dst2[dstAlign:], src[srcAlign:], n)

				got := dst2[dstAlign : dstAlign+n]
				if !bytes.Equal(want, got) {
					t.Fatalf("n=%d srcAlign=%d dstAlign=%d: mismatch", n, srcAlign, dstAlign)
				}
			}
		}
	}
}

// step keeps the sweep over [0,4096] fast while still exercising every
// boundary the algorithm branches on (16/32/64/128/256/512 and block
// multiples).
func step(n int) int {
	if n < 300 {
		return 1
	}
	return 37
}

func TestAlignmentMasks(t *testing.T) {
	cases := map[simdcopy.Variant]int{
		simdcopy.VariantAVX512:  63,
		simdcopy.VariantAVX2:    31,
		simdcopy.VariantSSSE3:   15,
		simdcopy.VariantGeneric: 0,
	}
	for v, want := range cases {
		if got := v.AlignmentMask(); got != want {
			t.Errorf("variant %d: AlignmentMask() = %d, want %d", v, got, want)
		}
	}
}
