package aggregators

import (
	"context"

	"github.com/square-key-labs/strawpipe/src/frames"
	"github.com/square-key-labs/strawpipe/src/services"
	"github.com/square-key-labs/strawpipe/src/telemetry"
)

// LLMAssistantAggregator accumulates the TextFrame stream between an
// LLMFullResponseStartFrame/LLMFullResponseEndFrame pair and records it as
// one assistant message once the response completes. A StartInterruption
// mid-response flushes whatever was accumulated so far instead of
// discarding it.
type LLMAssistantAggregator struct {
	*LLMContextAggregator

	responding bool
	log        *telemetry.Logger
}

func NewLLMAssistantAggregator(context *services.LLMContext) *LLMAssistantAggregator {
	a := &LLMAssistantAggregator{log: telemetry.NewLogger("LLMAssistantAggregator")}
	a.LLMContextAggregator = NewLLMContextAggregator("LLMAssistantAggregator", context, "assistant", a)
	return a
}

func (a *LLMAssistantAggregator) HandleFrame(ctx context.Context, frame frames.Frame, direction frames.FrameDirection) error {
	switch f := frame.(type) {
	case *frames.StartInterruptionFrame:
		if err := a.flush(); err != nil {
			a.log.Errorf("flush on interruption: %v", err)
		}
		a.responding = false
		return a.PushFrame(frame, direction)

	case *frames.LLMFullResponseStartFrame:
		a.responding = true
		return a.PushFrame(frame, direction)

	case *frames.LLMFullResponseEndFrame:
		a.responding = false
		if err := a.flush(); err != nil {
			a.log.Errorf("flush on response end: %v", err)
		}
		return a.PushFrame(frame, direction)

	case *frames.TextFrame:
		if a.responding {
			a.AppendToAggregation(f.Text)
		}
		return a.PushFrame(frame, direction)
	}

	return a.PushFrame(frame, direction)
}

func (a *LLMAssistantAggregator) flush() error {
	text := a.AggregationString()
	if err := a.Reset(); err != nil {
		return err
	}
	if text == "" {
		return nil
	}
	a.context.AddAssistantMessage(text)
	return a.PushContextFrame(frames.Downstream)
}
