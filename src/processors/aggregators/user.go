package aggregators

import (
	"context"
	"time"

	"github.com/square-key-labs/strawpipe/src/frames"
	"github.com/square-key-labs/strawpipe/src/services"
	"github.com/square-key-labs/strawpipe/src/telemetry"
)

// UserAggregatorParams configures how long LLMUserAggregator waits for a
// final transcription to arrive after UserStoppedSpeakingFrame before
// flushing whatever it has accumulated.
type UserAggregatorParams struct {
	AggregationTimeout time.Duration
}

func DefaultUserAggregatorParams() *UserAggregatorParams {
	return &UserAggregatorParams{AggregationTimeout: 1500 * time.Millisecond}
}

// LLMUserAggregator accumulates final TranscriptionFrame text into the
// shared LLMContext and pushes an LLMContextFrame once the user has
// finished speaking. StartInterruption/StopInterruption handling, VAD, and
// the decision of whether detected speech counts as an interruption all
// live upstream in transport.BaseInputTransport and src/interruptions; this
// aggregator only ever sees the de-duplicated UserStarted/StoppedSpeaking
// signal.
type LLMUserAggregator struct {
	*LLMContextAggregator

	userSpeaking bool

	aggregationCancel context.CancelFunc
	aggregationEvent  chan struct{}

	params *UserAggregatorParams
	log    *telemetry.Logger
}

func NewLLMUserAggregator(context *services.LLMContext, params *UserAggregatorParams) *LLMUserAggregator {
	if params == nil {
		params = DefaultUserAggregatorParams()
	}

	u := &LLMUserAggregator{
		aggregationEvent: make(chan struct{}, 1),
		params:           params,
		log:              telemetry.NewLogger("LLMUserAggregator"),
	}
	u.LLMContextAggregator = NewLLMContextAggregator("LLMUserAggregator", context, "user", u)
	return u
}

func (u *LLMUserAggregator) HandleFrame(ctx context.Context, frame frames.Frame, direction frames.FrameDirection) error {
	switch f := frame.(type) {
	case *frames.StartFrame:
		var aggCtx context.Context
		aggCtx, u.aggregationCancel = context.WithCancel(ctx)
		go u.aggregationTaskHandler(aggCtx)
		return u.PushFrame(frame, direction)

	case *frames.EndFrame, *frames.CancelFrame:
		if u.aggregationCancel != nil {
			u.aggregationCancel()
		}
		return u.PushFrame(frame, direction)

	case *frames.UserStartedSpeakingFrame:
		u.userSpeaking = true
		return u.PushFrame(frame, direction)

	case *frames.UserStoppedSpeakingFrame:
		u.userSpeaking = false
		select {
		case u.aggregationEvent <- struct{}{}:
		default:
		}
		if err := u.flush(); err != nil {
			u.log.Errorf("flush on stop speaking: %v", err)
		}
		return u.PushFrame(frame, direction)

	case *frames.TranscriptionFrame:
		if f.Text == "" {
			return nil
		}
		if !f.Final {
			return nil
		}
		u.AppendToAggregation(f.Text)
		select {
		case u.aggregationEvent <- struct{}{}:
		default:
		}
		if !u.userSpeaking {
			if err := u.flush(); err != nil {
				u.log.Errorf("flush on final transcription: %v", err)
			}
		}
		return nil

	case *frames.LLMMessagesAppendFrame:
		if messages, ok := f.Messages.([]services.LLMMessage); ok {
			u.context.Messages = append(u.context.Messages, messages...)
			if f.RunLLM {
				return u.PushContextFrame(frames.Downstream)
			}
		}
		return nil

	case *frames.LLMMessagesUpdateFrame:
		if messages, ok := f.Messages.([]services.LLMMessage); ok {
			u.context.Messages = messages
			if f.RunLLM {
				return u.PushContextFrame(frames.Downstream)
			}
		}
		return nil
	}

	return u.PushFrame(frame, direction)
}

// flush pushes the accumulated aggregation into the context as a user
// message and emits it downstream. A no-op when nothing is pending.
func (u *LLMUserAggregator) flush() error {
	if u.AggregationString() == "" {
		if err := u.Reset(); err != nil {
			return err
		}
		return nil
	}

	text := u.AggregationString()
	if err := u.Reset(); err != nil {
		return err
	}
	u.context.AddUserMessage(text)
	return u.PushContextFrame(frames.Downstream)
}

// aggregationTaskHandler flushes accumulated text if it has sat unspoken
// for AggregationTimeout, covering the case where the STT adapter never
// produces a matching UserStoppedSpeakingFrame-aligned final result.
func (u *LLMUserAggregator) aggregationTaskHandler(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(u.params.AggregationTimeout):
			if !u.userSpeaking && u.AggregationString() != "" {
				if err := u.flush(); err != nil {
					u.log.Errorf("flush on timeout: %v", err)
				}
			}
		case <-u.aggregationEvent:
		}
	}
}
