package interruptions

import (
	"strings"

	"github.com/square-key-labs/strawpipe/src/telemetry"
)

// MinWordsInterruptionStrategy gates interruption on the user having spoken
// at least minWords words since the last reset.
type MinWordsInterruptionStrategy struct {
	BaseInterruptionStrategy
	minWords int
	text     string
	log      *telemetry.Logger
}

// NewMinWordsInterruptionStrategy creates a new minimum words strategy
func NewMinWordsInterruptionStrategy(minWords int) *MinWordsInterruptionStrategy {
	return &MinWordsInterruptionStrategy{
		minWords: minWords,
		log:      telemetry.NewLogger("MinWordsInterruptionStrategy"),
	}
}

// AppendText appends text for word count analysis
func (m *MinWordsInterruptionStrategy) AppendText(text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.text += text
	return nil
}

// ShouldInterrupt checks if the minimum word count has been reached
func (m *MinWordsInterruptionStrategy) ShouldInterrupt() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	wordCount := len(strings.Fields(m.text))
	interrupt := wordCount >= m.minWords

	m.log.Debugf("should_interrupt=%v num_spoken_words=%d min_words=%d", interrupt, wordCount, m.minWords)

	return interrupt, nil
}

// Reset resets the accumulated text for the next analysis cycle
func (m *MinWordsInterruptionStrategy) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.text = ""
	return nil
}
