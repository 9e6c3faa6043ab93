// Package interruptions implements strategies that gate whether a detected
// user-speaking event is allowed to interrupt the bot, beyond VAD alone.
// BaseInputTransport consults every configured strategy's ShouldInterrupt
// before emitting StartInterruptionFrame for a genuine (non-emulated) event.
package interruptions

import "sync"

// InterruptionStrategy decides whether accumulated audio/text evidence
// justifies interrupting the bot.
type InterruptionStrategy interface {
	AppendAudio(audio []byte, sampleRate int) error
	AppendText(text string) error
	ShouldInterrupt() (bool, error)
	Reset() error
}

// BaseInterruptionStrategy gives strategies that only care about one of
// audio/text a no-op default for the other.
type BaseInterruptionStrategy struct {
	mu sync.Mutex
}

func (b *BaseInterruptionStrategy) AppendAudio(audio []byte, sampleRate int) error { return nil }

func (b *BaseInterruptionStrategy) AppendText(text string) error { return nil }

func (b *BaseInterruptionStrategy) Reset() error { return nil }
