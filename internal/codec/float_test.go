package codec

import (
	"math"
	"testing"
)

func TestFloatToInt32(t *testing.T) {
	tests := []struct {
		in   float32
		want int32
	}{
		{0, 0},
		{0.1, 1036831949},
		{0.5, 1056964608},
		{1.5, 1069547520},
		{50.5, 1112145920},
		{-0.1, -1110651699},
		{-0.5, -1090519040},
		{-1.5, -1077936128},
	}
	for _, tt := range tests {
		if got := FloatToInt32(tt.in); got != tt.want {
			t.Errorf("FloatToInt32(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
	if got := FloatToBits(0.5); got != 1056964608 {
		t.Errorf("FloatToBits(0.5) = %d", got)
	}
}

func TestBitsRoundTrip(t *testing.T) {
	patterns := []uint32{
		0, 1, 0x7F800000, 0xFF800000, 0x7FC00000, 0x7FA00001, 0x80000000,
		0x3F800000, 0xBF800000, 0xFFFFFFFF, 0x00000001, 0x7F7FFFFF,
	}
	for i := uint32(0); i < 1<<16; i++ {
		patterns = append(patterns, i*65537+12345)
	}
	for _, p := range patterns {
		if got := FloatToBits(BitsToFloat(p)); got != p {
			t.Fatalf("bits %#08x came back as %#08x", p, got)
		}
	}

	floats := []float32{0, -0, 0.1, -2.5, math.MaxFloat32, math.SmallestNonzeroFloat32,
		float32(math.Inf(1)), float32(math.Inf(-1))}
	for _, f := range floats {
		if got := BitsToFloat(FloatToBits(f)); math.Float32bits(got) != math.Float32bits(f) {
			t.Errorf("float %v came back as %v", f, got)
		}
	}
	nan := BitsToFloat(0x7FC00001)
	if FloatToBits(BitsToFloat(FloatToBits(nan))) != 0x7FC00001 {
		t.Error("NaN payload not preserved")
	}
}

func TestClamp(t *testing.T) {
	in := []float32{-1, -0.5, 0, 0.5, 1, 1.5, 1000, -1000}
	want := []float32{-1, -0.5, 0, 0.5, 1, 1, 1, -1}
	for i, v := range in {
		if got := clamp(v, -1, 1); got != want[i] {
			t.Errorf("clamp(%v) = %v, want %v", v, got, want[i])
		}
	}
}
