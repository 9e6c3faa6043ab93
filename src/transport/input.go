package transport

import (
	"context"
	"sync"

	"github.com/square-key-labs/strawpipe/src/frames"
	"github.com/square-key-labs/strawpipe/src/processors"
	"github.com/square-key-labs/strawpipe/src/telemetry"
	"github.com/square-key-labs/strawpipe/src/vad"
)

// BaseInputTransport ingests client audio, runs VAD and optional turn
// analysis off the pipeline's own goroutine, and emits user-speaking and
// interruption frames. Concrete transports (WebSocket, Twilio, WebRTC) embed
// it and feed it audio via PushAudio.
type BaseInputTransport struct {
	*processors.BaseProcessor

	params Params

	mu              sync.Mutex
	sampleRate      int
	vadState        vad.State
	audioInQueue    chan *frames.InputAudioRawFrame
	audioTask       *taskHandle
	interruptionsOK bool

	log *telemetry.Logger
}

// taskHandle mirrors the processor package's private handle shape; the
// transport package spawns its own goroutines directly since its lifecycle
// (single long-lived audio worker, replaced wholesale rather than pooled)
// doesn't need BaseProcessor's task registry.
type taskHandle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// NewBaseInputTransport constructs an input transport core with the given
// params. Callers embed this in a concrete transport and supply a
// ProcessHandler that delegates unhandled frames to HandleFrame.
func NewBaseInputTransport(name string, params Params) *BaseInputTransport {
	t := &BaseInputTransport{
		params:     params,
		vadState:   vad.Quiet,
		sampleRate: params.AudioInSampleRate,
		log:        telemetry.NewLogger(name),
	}
	t.BaseProcessor = processors.NewBaseProcessor(name, t)
	return t
}

// PushAudio is the external ingress point: a concrete transport's read loop
// calls this with raw PCM s16le bytes captured from the client.
func (t *BaseInputTransport) PushAudio(audio []byte) {
	if !t.params.AudioInEnabled {
		return
	}
	t.mu.Lock()
	q := t.audioInQueue
	rate := t.sampleRate
	t.mu.Unlock()
	if q == nil {
		return
	}
	frame := frames.NewInputAudioRawFrame(audio, rate, t.params.AudioInChannels)
	select {
	case q <- frame:
	default:
		// Ingress queue is unbounded in spirit; a full buffered channel here
		// means the audio worker has stalled. Drop rather than block the
		// transport's read loop.
		t.log.Warnf("audio ingress queue full, dropping frame")
	}
}

// AppendInterruptionText feeds transcribed text to every configured
// InterruptionStrategy that cares about it (e.g. MinWordsInterruptionStrategy).
// The embedding application calls this as STT results arrive, since
// transcription is produced downstream of this transport.
func (t *BaseInputTransport) AppendInterruptionText(text string) {
	for _, strat := range t.params.InterruptionStrategies {
		_ = strat.AppendText(text)
	}
}

func (t *BaseInputTransport) HandleFrame(ctx context.Context, frame frames.Frame, direction frames.FrameDirection) error {
	switch f := frame.(type) {
	case *frames.StartFrame:
		if err := t.PushFrame(frame, direction); err != nil {
			return err
		}
		return t.start(f)

	case *frames.CancelFrame:
		t.cancelWorker()
		return t.PushFrame(frame, direction)

	case *frames.EndFrame:
		t.stopWorker()
		return t.PushFrame(frame, direction)

	case *frames.BotInterruptionFrame:
		return t.handleBotInterruption()

	case *frames.EmulateUserStartedSpeakingFrame:
		return t.handleUserInterruption(true, true)

	case *frames.EmulateUserStoppedSpeakingFrame:
		return t.handleUserInterruption(false, true)

	case *frames.VADParamsUpdateFrame:
		if t.params.VADAnalyzer != nil {
			t.params.VADAnalyzer.SetParams(vad.Params{
				Confidence: f.Confidence,
				StartSecs:  f.StartSecs,
				StopSecs:   f.StopSecs,
				MinVolume:  f.MinVolume,
			})
		}
		return t.PushFrame(frame, direction)

	default:
		return t.PushFrame(frame, direction)
	}
}

func (t *BaseInputTransport) start(frame *frames.StartFrame) error {
	t.mu.Lock()
	if t.params.AudioInSampleRate != 0 {
		t.sampleRate = t.params.AudioInSampleRate
	} else {
		t.sampleRate = frame.AudioInSampleRate
	}
	if t.params.VADAnalyzer != nil {
		t.params.VADAnalyzer.SetSampleRate(t.sampleRate)
	}
	t.interruptionsOK = frame.AllowInterruptions
	t.audioInQueue = make(chan *frames.InputAudioRawFrame, 256)
	queue := t.audioInQueue
	t.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	t.audioTask = &taskHandle{cancel: cancel, done: done}
	go t.audioTaskHandler(ctx, queue, done)
	return nil
}

func (t *BaseInputTransport) cancelWorker() {
	t.mu.Lock()
	task := t.audioTask
	t.audioTask = nil
	t.mu.Unlock()
	if task != nil {
		task.cancel()
	}
}

func (t *BaseInputTransport) stopWorker() {
	t.mu.Lock()
	task := t.audioTask
	t.audioTask = nil
	t.mu.Unlock()
	if task == nil {
		return
	}
	task.cancel()
	<-task.done
}

// audioTaskHandler is the audio worker loop (§4.5 step 1-5).
func (t *BaseInputTransport) audioTaskHandler(ctx context.Context, queue chan *frames.InputAudioRawFrame, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-queue:
			if !ok {
				return
			}
			t.processAudioFrame(frame)
		}
	}
}

func (t *BaseInputTransport) processAudioFrame(frame *frames.InputAudioRawFrame) {
	previousState := t.getVADState()
	newState := previousState

	for _, strat := range t.params.InterruptionStrategies {
		_ = strat.AppendAudio(frame.Audio, frame.SampleRate)
	}

	if t.params.VADEnabled && t.params.VADAnalyzer != nil {
		newState = t.params.VADAnalyzer.AnalyzeAudio(frame.Audio)
		if newState == vad.Speaking || newState == vad.Quiet {
			t.setVADState(newState)
		}
		t.reduceVAD(frame, newState, previousState)
	}

	if t.params.TurnAnalyzer != nil {
		t.params.TurnAnalyzer.Observe(frame.Audio, newState, previousState)
	}

	if t.params.AudioInPassthrough {
		_ = t.PushFrame(frame, frames.Downstream)
	}
}

func (t *BaseInputTransport) getVADState() vad.State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.vadState
}

func (t *BaseInputTransport) setVADState(s vad.State) {
	t.mu.Lock()
	t.vadState = s
	t.mu.Unlock()
}

// reduceVAD implements §4.5.1: commit only on transition to QUIET or
// SPEAKING, versus the prior *committed* state.
func (t *BaseInputTransport) reduceVAD(frame *frames.InputAudioRawFrame, newState, previousState vad.State) {
	if newState != vad.Speaking && newState != vad.Quiet {
		return
	}
	if newState == previousState {
		return
	}

	canCreateUserFrames := t.params.TurnAnalyzer == nil || !t.params.TurnAnalyzer.SpeechTriggered()

	switch newState {
	case vad.Speaking:
		_ = t.PushFrame(frames.NewVADUserStartedSpeakingFrame(), frames.Downstream)
		if canCreateUserFrames {
			_ = t.handleUserInterruption(true, false)
		}
	case vad.Quiet:
		_ = t.PushFrame(frames.NewVADUserStoppedSpeakingFrame(), frames.Downstream)
		if canCreateUserFrames {
			_ = t.handleUserInterruption(false, false)
		}
	}
}

// handleUserInterruption implements §4.5.2 for both genuine and emulated
// user-speaking events. A genuine (non-emulated) interruption additionally
// requires every configured InterruptionStrategy to agree via
// ShouldInterrupt before StartInterruptionFrame is emitted; emulated and
// bot-originated interruptions bypass strategies entirely.
func (t *BaseInputTransport) handleUserInterruption(started, emulated bool) error {
	var userFrame frames.Frame
	if started {
		userFrame = frames.NewUserStartedSpeakingFrame(emulated)
	} else {
		userFrame = frames.NewUserStoppedSpeakingFrame(emulated)
	}
	if err := t.PushFrame(userFrame, frames.Downstream); err != nil {
		return err
	}

	if !started {
		for _, strat := range t.params.InterruptionStrategies {
			_ = strat.Reset()
		}
	}

	if !t.interruptionsAllowed() {
		return nil
	}

	if started {
		if !emulated && !t.strategiesAllowInterruption() {
			return nil
		}
		return t.PushFrame(frames.NewStartInterruptionFrame(), frames.Downstream)
	}
	return t.PushFrame(frames.NewStopInterruptionFrame(), frames.Downstream)
}

// strategiesAllowInterruption reports whether every configured strategy's
// ShouldInterrupt agrees. An empty strategy list always allows.
func (t *BaseInputTransport) strategiesAllowInterruption() bool {
	for _, strat := range t.params.InterruptionStrategies {
		ok, err := strat.ShouldInterrupt()
		if err != nil {
			t.log.Warnf("interruption strategy error: %v", err)
			continue
		}
		if !ok {
			return false
		}
	}
	return true
}

// handleBotInterruption implements the BotInterruptionFrame branch: same
// interruption side effects as a user-speaking-started event, without the
// UserStartedSpeakingFrame itself.
func (t *BaseInputTransport) handleBotInterruption() error {
	if !t.interruptionsAllowed() {
		return nil
	}
	return t.PushFrame(frames.NewStartInterruptionFrame(), frames.Downstream)
}

func (t *BaseInputTransport) interruptionsAllowed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.interruptionsOK
}
