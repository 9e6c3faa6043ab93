package interruptions

import (
	"encoding/binary"
	"math"
	"sync"
)

// VolumeInterruptionStrategy agrees to an interruption once at least
// minFrames of the last windowSize audio appends exceeded the RMS threshold.
type VolumeInterruptionStrategy struct {
	BaseInterruptionStrategy

	threshold  float64
	windowSize int
	minFrames  int

	volumes     []float64
	framesAbove int
	mu          sync.Mutex
}

// VolumeInterruptionStrategyParams configures VolumeInterruptionStrategy.
type VolumeInterruptionStrategyParams struct {
	Threshold  float64
	WindowSize int
	MinFrames  int
}

func NewVolumeInterruptionStrategy(params *VolumeInterruptionStrategyParams) *VolumeInterruptionStrategy {
	if params == nil {
		params = &VolumeInterruptionStrategyParams{
			Threshold:  0.02,
			WindowSize: 10,
			MinFrames:  3,
		}
	}

	return &VolumeInterruptionStrategy{
		threshold:  params.Threshold,
		windowSize: params.WindowSize,
		minFrames:  params.MinFrames,
		volumes:    make([]float64, 0, params.WindowSize),
	}
}

func (v *VolumeInterruptionStrategy) AppendAudio(audio []byte, sampleRate int) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	rms := calculateRMS(audio)
	v.volumes = append(v.volumes, rms)
	if len(v.volumes) > v.windowSize {
		v.volumes = v.volumes[1:]
	}

	v.framesAbove = 0
	for _, vol := range v.volumes {
		if vol > v.threshold {
			v.framesAbove++
		}
	}

	return nil
}

func (v *VolumeInterruptionStrategy) ShouldInterrupt() (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if len(v.volumes) < v.minFrames {
		return false, nil
	}
	return v.framesAbove >= v.minFrames, nil
}

func (v *VolumeInterruptionStrategy) Reset() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.volumes = make([]float64, 0, v.windowSize)
	v.framesAbove = 0
	return nil
}

// calculateRMS computes the normalized RMS volume of s16le PCM audio.
func calculateRMS(audio []byte) float64 {
	if len(audio) == 0 {
		return 0.0
	}

	var sumSquares float64
	numSamples := 0

	for i := 0; i+1 < len(audio); i += 2 {
		sample := int16(binary.LittleEndian.Uint16(audio[i : i+2]))
		normalized := float64(sample) / 32768.0
		sumSquares += normalized * normalized
		numSamples++
	}

	if numSamples == 0 {
		return 0.0
	}
	return math.Sqrt(sumSquares / float64(numSamples))
}
