// Package transport implements the input and output transport cores:
// BaseInputTransport runs VAD/turn analysis over client audio and emits
// user-speaking/interruption events; BaseOutputTransport fans out paced,
// clock-synchronized audio to one MediaSender per destination.
package transport

import (
	"github.com/square-key-labs/strawpipe/src/interruptions"
	"github.com/square-key-labs/strawpipe/src/turn"
	"github.com/square-key-labs/strawpipe/src/vad"
)

// Params is TransportParams from §6: the recognized configuration surface
// for both the input and output transport cores.
type Params struct {
	// Output
	AudioOutEnabled      bool
	AudioOutSampleRate   int // 0 means "use StartFrame's negotiated rate"
	AudioOutChannels     int
	AudioOut10msChunks   int
	AudioOutDestinations []string

	// Input
	AudioInEnabled     bool
	AudioInPassthrough bool
	AudioInSampleRate  int
	AudioInChannels    int

	// VAD / turn
	VADEnabled          bool
	VADAnalyzer         vad.Analyzer
	VADAudioPassthrough bool
	TurnAnalyzer        turn.Analyzer

	// InterruptionStrategies gate §4.5.2's handleUserInterruption: when
	// non-empty, a VAD-detected speech-started transition only emits
	// StartInterruptionFrame once every configured strategy's
	// ShouldInterrupt agrees. Emulated interruptions (EmulateUserStarted...)
	// and BotInterruptionFrame always bypass these, matching the distilled
	// spec's unconditional emulated/bot paths.
	InterruptionStrategies []interruptions.InterruptionStrategy
}

// DefaultParams mirrors nanocat's TransportParams defaults. Per the resolved
// Open Question (see SPEC_FULL.md §9), AudioInEnabled/AudioInPassthrough
// default true but are never silently overridden once a caller sets them
// explicitly — BaseInputTransport reads these fields as configured, it does
// not force them.
func DefaultParams() Params {
	return Params{
		AudioOutEnabled:      false,
		AudioOutChannels:     1,
		AudioOut10msChunks:   4,
		AudioOutDestinations: nil,

		AudioInEnabled:     true,
		AudioInPassthrough: true,
		AudioInChannels:    1,

		VADEnabled:          false,
		VADAudioPassthrough: false,
	}
}
