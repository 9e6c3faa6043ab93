// Package turn defines the TurnAnalyzer capability consumed by the input
// transport to decide whether the user's utterance is complete, and
// provides a minimal reference implementation.
package turn

import (
	"sync"

	"github.com/square-key-labs/strawpipe/src/vad"
)

// Analyzer is the TurnAnalyzer capability from §6: SpeechTriggered reports
// whether the analyzer currently believes the user is mid-utterance (used
// by BaseInputTransport to deduplicate UserStartedSpeakingFrame), and
// Observe is the hook called for every input audio frame with the current
// VAD state and the previously committed one.
type Analyzer interface {
	SpeechTriggered() bool
	Observe(audio []byte, state, previous vad.State)
}

// SilenceTimeoutAnalyzer considers a turn triggered for as long as VAD
// reports Starting, Speaking or Stopping; it never independently extends a turn past
// a committed QUIET transition, so it adds no behavior beyond VAD's own
// debounce. It exists as a minimal, dependency-free reference that exercises
// the TurnAnalyzer contract end to end; real deployments plug in a model-
// backed analyzer instead.
type SilenceTimeoutAnalyzer struct {
	mu        sync.RWMutex
	triggered bool
}

func NewSilenceTimeoutAnalyzer() *SilenceTimeoutAnalyzer {
	return &SilenceTimeoutAnalyzer{}
}

func (a *SilenceTimeoutAnalyzer) SpeechTriggered() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.triggered
}

func (a *SilenceTimeoutAnalyzer) Observe(audio []byte, state, previous vad.State) {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch state {
	case vad.Speaking, vad.Starting, vad.Stopping:
		a.triggered = true
	case vad.Quiet:
		a.triggered = false
	}
}
