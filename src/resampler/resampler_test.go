package resampler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentityResample(t *testing.T) {
	r := NewWindowedSincResampler()

	input := []byte{0x01, 0x00, 0x02, 0x00, 0x03, 0x00}
	out := r.Resample(input, 16000, 16000)

	assert.Equal(t, input, out)
}

func TestIdentityResampleAnyRate(t *testing.T) {
	r := NewWindowedSincResampler()
	input := bytesFromSamples([]int16{100, -200, 300, -400})

	for _, rate := range []int{8000, 16000, 24000, 48000} {
		out := r.Resample(input, rate, rate)
		assert.Equal(t, input, out, "rate %d", rate)
	}
}

func TestResampleChangesLength(t *testing.T) {
	r := NewWindowedSincResampler()
	input := bytesFromSamples(make([]int16, 1600)) // 100ms @ 16kHz

	out := r.Resample(input, 16000, 8000)
	require.NotEmpty(t, out)
	assert.InDelta(t, 800, len(out)/2, 2)
}

func bytesFromSamples(s []int16) []byte {
	out := make([]byte, len(s)*2)
	for i, v := range s {
		out[i*2] = byte(uint16(v))
		out[i*2+1] = byte(uint16(v) >> 8)
	}
	return out
}
