// Package aggregators turns a stream of TranscriptionFrame/TextFrame
// payloads into an LLMContextFrame, one aggregator per conversational role.
package aggregators

import (
	"strings"

	"github.com/square-key-labs/strawpipe/src/frames"
	"github.com/square-key-labs/strawpipe/src/processors"
	"github.com/square-key-labs/strawpipe/src/services"
)

// LLMContextAggregator is the shared base for the user- and
// assistant-facing aggregators: it owns the running LLMContext and a
// string-accumulation buffer, and knows how to emit it as an
// LLMContextFrame.
type LLMContextAggregator struct {
	*processors.BaseProcessor

	context     *services.LLMContext
	role        string
	aggregation []string
	addSpaces   bool
}

func NewLLMContextAggregator(name string, context *services.LLMContext, role string, handler processors.ProcessHandler) *LLMContextAggregator {
	agg := &LLMContextAggregator{
		context:   context,
		role:      role,
		addSpaces: true,
	}
	agg.BaseProcessor = processors.NewBaseProcessor(name, handler)
	return agg
}

// Reset clears the aggregation buffer without touching the underlying
// context.
func (a *LLMContextAggregator) Reset() error {
	a.aggregation = nil
	return nil
}

// AggregationString concatenates the accumulated text, space-joined unless
// SetAddSpaces(false) was called.
func (a *LLMContextAggregator) AggregationString() string {
	if len(a.aggregation) == 0 {
		return ""
	}
	if a.addSpaces {
		return strings.Join(a.aggregation, " ")
	}
	return strings.Join(a.aggregation, "")
}

func (a *LLMContextAggregator) AppendToAggregation(text string) {
	a.aggregation = append(a.aggregation, text)
}

// PushContextFrame emits the current context as an LLMContextFrame.
func (a *LLMContextAggregator) PushContextFrame(direction frames.FrameDirection) error {
	return a.PushFrame(frames.NewLLMContextFrame(a.context), direction)
}

func (a *LLMContextAggregator) GetContext() *services.LLMContext { return a.context }

func (a *LLMContextAggregator) GetRole() string { return a.role }

func (a *LLMContextAggregator) SetAddSpaces(addSpaces bool) { a.addSpaces = addSpaces }
