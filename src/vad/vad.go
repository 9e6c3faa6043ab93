// Package vad defines the VADAnalyzer capability consumed by the input
// transport and provides an energy-threshold reference implementation.
package vad

import (
	"math"
	"sync"

	"github.com/square-key-labs/strawpipe/src/telemetry"
)

// State is the voice-activity detector's state.
type State int

const (
	Quiet State = iota
	Starting
	Speaking
	Stopping
)

func (s State) String() string {
	switch s {
	case Quiet:
		return "quiet"
	case Starting:
		return "starting"
	case Speaking:
		return "speaking"
	case Stopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Params configures the VAD state machine's confidence threshold and
// start/stop debounce durations.
type Params struct {
	Confidence float32
	StartSecs  float32
	StopSecs   float32
	MinVolume  float32
}

// DefaultParams mirrors common speech-VAD defaults.
func DefaultParams() Params {
	return Params{
		Confidence: 0.7,
		StartSecs:  0.2,
		StopSecs:   0.8,
		MinVolume:  0.6,
	}
}

// Analyzer is the VADAnalyzer capability from §6: configure sample rate and
// params, then analyze fixed-size audio buffers into a State. AnalyzeAudio
// is synchronous and is run off the pipeline context by BaseInputTransport.
type Analyzer interface {
	SetSampleRate(sampleRate int)
	SetParams(params Params)
	NumFramesRequired() int
	VoiceConfidence(buffer []byte) float32
	AnalyzeAudio(buffer []byte) State
	Restart()
}

// EnergyAnalyzer is a reference VADAnalyzer driven by smoothed RMS energy
// rather than a model runtime, grounded on the teacher's BaseVADAnalyzer
// state machine (see DESIGN.md for why no model-backed analyzer is wired).
type EnergyAnalyzer struct {
	mu sync.Mutex

	params     Params
	sampleRate int

	state           State
	startFrames     int
	stopFrames      int
	startThreshold  int
	stopThreshold   int
	prevSampleCount int

	smoothedVolume float32

	log *telemetry.Logger
}

func NewEnergyAnalyzer(sampleRate int, params Params) *EnergyAnalyzer {
	return &EnergyAnalyzer{
		sampleRate: sampleRate,
		params:     params,
		state:      Quiet,
		log:        telemetry.NewLogger("vad.EnergyAnalyzer"),
	}
}

func (a *EnergyAnalyzer) SetSampleRate(sampleRate int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sampleRate = sampleRate
}

func (a *EnergyAnalyzer) SetParams(params Params) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.params = params
}

// NumFramesRequired reports how many samples a call to AnalyzeAudio expects;
// the energy analyzer has no minimum window so it accepts any buffer size.
func (a *EnergyAnalyzer) NumFramesRequired() int {
	return 0
}

// VoiceConfidence returns the buffer's RMS energy, normalized to [0,1], as a
// proxy for voice presence. It is not smoothed; only AnalyzeAudio smooths.
func (a *EnergyAnalyzer) VoiceConfidence(buffer []byte) float32 {
	return calculateVolume(buffer)
}

func (a *EnergyAnalyzer) Restart() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state = Quiet
	a.startFrames = 0
	a.stopFrames = 0
	a.smoothedVolume = 0
}

// AnalyzeAudio runs one step of the VAD state machine over buffer and
// returns the resulting state. STARTING/STOPPING are internal states the
// caller may observe but that BaseInputTransport never commits as a
// transition.
func (a *EnergyAnalyzer) AnalyzeAudio(buffer []byte) State {
	a.mu.Lock()
	defer a.mu.Unlock()

	volume := calculateVolume(buffer)
	const smoothingFactor = 0.2
	a.smoothedVolume = smoothingFactor*volume + (1-smoothingFactor)*a.smoothedVolume

	sampleCount := len(buffer) / 2
	if sampleCount != a.prevSampleCount && a.sampleRate > 0 && sampleCount > 0 {
		a.prevSampleCount = sampleCount
		frameTime := float32(sampleCount) / float32(a.sampleRate)
		a.startThreshold = int(a.params.StartSecs / frameTime)
		a.stopThreshold = int(a.params.StopSecs / frameTime)
	}

	confidence := a.smoothedVolume
	if a.smoothedVolume < a.params.MinVolume {
		confidence = 0
	}

	oldState := a.state

	switch a.state {
	case Quiet:
		if confidence >= a.params.Confidence {
			a.startFrames++
			if a.startFrames >= a.startThreshold {
				a.state = Speaking
				a.startFrames = 0
			} else {
				a.state = Starting
			}
		}

	case Starting:
		if confidence >= a.params.Confidence {
			a.startFrames++
			if a.startFrames >= a.startThreshold {
				a.state = Speaking
				a.startFrames = 0
			}
		} else {
			a.state = Quiet
			a.startFrames = 0
		}

	case Speaking:
		if confidence < a.params.Confidence {
			a.stopFrames++
			if a.stopFrames >= a.stopThreshold {
				a.state = Quiet
				a.stopFrames = 0
			} else {
				a.state = Stopping
			}
		} else {
			a.stopFrames = 0
		}

	case Stopping:
		if confidence < a.params.Confidence {
			a.stopFrames++
			if a.stopFrames >= a.stopThreshold {
				a.state = Quiet
				a.stopFrames = 0
			}
		} else {
			a.state = Speaking
			a.stopFrames = 0
		}
	}

	if oldState != a.state {
		a.log.Debugf("state transition: %s -> %s (volume=%.3f)", oldState, a.state, a.smoothedVolume)
	}

	return a.state
}

func calculateVolume(buffer []byte) float32 {
	if len(buffer) < 2 {
		return 0
	}
	numSamples := len(buffer) / 2
	var sumSquares float64
	for i := 0; i < numSamples; i++ {
		sample := int16(buffer[i*2]) | int16(buffer[i*2+1])<<8
		normalized := float64(sample) / 32768.0
		sumSquares += normalized * normalized
	}
	return float32(math.Sqrt(sumSquares / float64(numSamples)))
}
