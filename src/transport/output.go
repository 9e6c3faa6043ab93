package transport

import (
	"context"
	"sync"

	"github.com/square-key-labs/strawpipe/src/clock"
	"github.com/square-key-labs/strawpipe/src/frames"
	"github.com/square-key-labs/strawpipe/src/processors"
	"github.com/square-key-labs/strawpipe/src/resampler"
	"github.com/square-key-labs/strawpipe/src/telemetry"
)

// WireWriter is the concrete transport's duplex channel: it knows how to put
// bytes and out-of-band messages on the wire. BaseOutputTransport is
// transport-agnostic and delegates to this.
type WireWriter interface {
	WriteRawAudioFrames(audio []byte, destination string) error
	SendMessage(frame frames.Frame) error
}

// BaseOutputTransport fans paced, clock-synchronized output out over one
// MediaSender per destination.
type BaseOutputTransport struct {
	*processors.BaseProcessor

	params Params
	wire   WireWriter
	clock  clock.Clock

	mu             sync.RWMutex
	sampleRate     int
	audioChunkSize int
	senders        map[string]*MediaSender

	log *telemetry.Logger
}

// NewBaseOutputTransport constructs an output transport core. wire supplies
// the concrete write path; clk is typically a shared clock.SystemClock
// (tests inject a clock.ManualClock).
func NewBaseOutputTransport(name string, params Params, wire WireWriter, clk clock.Clock) *BaseOutputTransport {
	t := &BaseOutputTransport{
		params:  params,
		wire:    wire,
		clock:   clk,
		senders: make(map[string]*MediaSender),
		log:     telemetry.NewLogger(name),
	}
	t.BaseProcessor = processors.NewBaseProcessor(name, t)
	return t
}

func (t *BaseOutputTransport) HandleFrame(ctx context.Context, frame frames.Frame, direction frames.FrameDirection) error {
	switch f := frame.(type) {
	case *frames.StartFrame:
		if err := t.PushFrame(frame, direction); err != nil {
			return err
		}
		return t.start(f)

	case *frames.CancelFrame:
		t.cancelAll()
		return t.PushFrame(frame, direction)

	case *frames.StartInterruptionFrame:
		if err := t.PushFrame(frame, direction); err != nil {
			return err
		}
		return t.routeTo(frame, func(s *MediaSender) { s.handleInterruption() })

	case *frames.StopInterruptionFrame:
		return t.PushFrame(frame, direction)

	case *frames.TransportMessageUrgentFrame:
		return t.wire.SendMessage(frame)

	case *frames.EndFrame:
		t.stopAll()
		return t.PushFrame(frame, direction)

	case frames.AudioDataFrame:
		return t.routeTo(frame, func(s *MediaSender) { s.handleAudioFrame(f) })
	}

	if frame.Category() == frames.SystemCategory {
		return t.PushFrame(frame, direction)
	}

	if direction == frames.Upstream {
		return t.PushFrame(frame, direction)
	}

	if _, hasPTS := frame.PTS(); hasPTS {
		return t.routeTo(frame, func(s *MediaSender) { s.handleTimedFrame(frame) })
	}

	return t.routeTo(frame, func(s *MediaSender) { s.handleSyncFrame(frame) })
}

func (t *BaseOutputTransport) routeTo(frame frames.Frame, fn func(*MediaSender)) error {
	t.mu.RLock()
	sender, ok := t.senders[frame.TransportDestination()]
	t.mu.RUnlock()
	if !ok {
		t.log.Warnf("dropping frame %s: unknown destination %q", frame.Name(), frame.TransportDestination())
		return nil
	}
	fn(sender)
	return nil
}

func (t *BaseOutputTransport) start(frame *frames.StartFrame) error {
	t.SetInterruptionsAllowed(frame.AllowInterruptions)

	t.mu.Lock()
	if t.params.AudioOutSampleRate != 0 {
		t.sampleRate = t.params.AudioOutSampleRate
	} else {
		t.sampleRate = frame.AudioOutSampleRate
	}
	channels := t.params.AudioOutChannels
	if channels == 0 {
		channels = 1
	}
	chunks := t.params.AudioOut10msChunks
	if chunks == 0 {
		chunks = 4
	}
	audioBytes10ms := (t.sampleRate / 100) * channels * 2
	t.audioChunkSize = audioBytes10ms * chunks

	destinations := dedupe(t.params.AudioOutDestinations)
	allSenders := make([]*MediaSender, 0, len(destinations)+1)

	defaultSender := newMediaSender("", t, t.sampleRate, t.audioChunkSize, channels, chunks)
	t.senders[""] = defaultSender
	allSenders = append(allSenders, defaultSender)

	for _, dest := range destinations {
		sender := newMediaSender(dest, t, t.sampleRate, t.audioChunkSize, channels, chunks)
		t.senders[dest] = sender
		allSenders = append(allSenders, sender)
	}
	t.mu.Unlock()

	t.clock.Start()
	for _, s := range allSenders {
		s.start()
	}
	return nil
}

func (t *BaseOutputTransport) cancelAll() {
	t.mu.RLock()
	senders := make([]*MediaSender, 0, len(t.senders))
	for _, s := range t.senders {
		senders = append(senders, s)
	}
	t.mu.RUnlock()
	for _, s := range senders {
		s.cancel()
	}
}

func (t *BaseOutputTransport) stopAll() {
	t.mu.RLock()
	senders := make([]*MediaSender, 0, len(t.senders))
	for _, s := range t.senders {
		senders = append(senders, s)
	}
	t.mu.RUnlock()
	for _, s := range senders {
		s.stop()
	}
}

// interruptionsAllowed reports whether senders should act on
// StartInterruptionFrame; it mirrors the processor-level flag set from
// StartFrame.AllowInterruptions.
func (t *BaseOutputTransport) interruptionsAllowed() bool {
	return t.InterruptionsAllowed()
}

func (t *BaseOutputTransport) resampler() resampler.Resampler {
	return defaultResampler
}

var defaultResampler resampler.Resampler = resampler.NewWindowedSincResampler()

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
