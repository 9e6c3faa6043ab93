package frames

// SystemFrame is embedded by every frame that bypasses the ordered FIFO
// queue and is delivered immediately, out-of-band.
type SystemFrame struct {
	BaseFrame
}

func (f *SystemFrame) Category() FrameCategory { return SystemCategory }

// StartFrame signals the beginning of pipeline execution. It carries the
// negotiated sample rates and interruption policy that every processor
// configures itself from on receipt.
type StartFrame struct {
	SystemFrame
	AllowInterruptions  bool
	AudioInSampleRate   int
	AudioOutSampleRate  int
}

func NewStartFrame(allowInterruptions bool, audioInSampleRate, audioOutSampleRate int) *StartFrame {
	return &StartFrame{
		SystemFrame:        SystemFrame{BaseFrame: NewBaseFrame("StartFrame")},
		AllowInterruptions: allowInterruptions,
		AudioInSampleRate:  audioInSampleRate,
		AudioOutSampleRate: audioOutSampleRate,
	}
}

// EndFrame signals graceful shutdown: downstream processors drain
// in-flight work before tearing down.
type EndFrame struct {
	SystemFrame
}

func NewEndFrame() *EndFrame {
	return &EndFrame{SystemFrame{BaseFrame: NewBaseFrame("EndFrame")}}
}

// CancelFrame signals abortive, immediate shutdown. Every processor treats
// it as fatal and propagates it without draining.
type CancelFrame struct {
	SystemFrame
}

func NewCancelFrame() *CancelFrame {
	return &CancelFrame{SystemFrame{BaseFrame: NewBaseFrame("CancelFrame")}}
}

// StartInterruptionFrame flushes in-flight output and silences the bot. It
// eventually pairs with a StopInterruptionFrame unless Cancel/End intervene.
type StartInterruptionFrame struct {
	SystemFrame
}

func NewStartInterruptionFrame() *StartInterruptionFrame {
	return &StartInterruptionFrame{SystemFrame{BaseFrame: NewBaseFrame("StartInterruptionFrame")}}
}

// StopInterruptionFrame closes out an interruption window.
type StopInterruptionFrame struct {
	SystemFrame
}

func NewStopInterruptionFrame() *StopInterruptionFrame {
	return &StopInterruptionFrame{SystemFrame{BaseFrame: NewBaseFrame("StopInterruptionFrame")}}
}

// BotInterruptionFrame requests an interruption that did not originate from
// detected user speech (e.g. a moderator forcing the bot to stop).
type BotInterruptionFrame struct {
	SystemFrame
}

func NewBotInterruptionFrame() *BotInterruptionFrame {
	return &BotInterruptionFrame{SystemFrame{BaseFrame: NewBaseFrame("BotInterruptionFrame")}}
}

// EmulateUserStartedSpeakingFrame synthesizes a user-speaking-started event
// without a VAD detection behind it (e.g. from a push-to-talk button).
type EmulateUserStartedSpeakingFrame struct {
	SystemFrame
}

func NewEmulateUserStartedSpeakingFrame() *EmulateUserStartedSpeakingFrame {
	return &EmulateUserStartedSpeakingFrame{SystemFrame{BaseFrame: NewBaseFrame("EmulateUserStartedSpeakingFrame")}}
}

// EmulateUserStoppedSpeakingFrame is the synthesized counterpart to
// EmulateUserStartedSpeakingFrame.
type EmulateUserStoppedSpeakingFrame struct {
	SystemFrame
}

func NewEmulateUserStoppedSpeakingFrame() *EmulateUserStoppedSpeakingFrame {
	return &EmulateUserStoppedSpeakingFrame{SystemFrame{BaseFrame: NewBaseFrame("EmulateUserStoppedSpeakingFrame")}}
}

// VADParamsUpdateFrame reconfigures a running VAD analyzer's parameters.
type VADParamsUpdateFrame struct {
	SystemFrame
	Confidence float32
	StartSecs  float32
	StopSecs   float32
	MinVolume  float32
}

func NewVADParamsUpdateFrame(confidence, startSecs, stopSecs, minVolume float32) *VADParamsUpdateFrame {
	return &VADParamsUpdateFrame{
		SystemFrame: SystemFrame{BaseFrame: NewBaseFrame("VADParamsUpdateFrame")},
		Confidence:  confidence,
		StartSecs:   startSecs,
		StopSecs:    stopSecs,
		MinVolume:   minVolume,
	}
}

// ErrorFrame carries a fatal or recoverable error up the pipeline.
type ErrorFrame struct {
	SystemFrame
	Err      error
	Fatal    bool
}

func NewErrorFrame(err error, fatal bool) *ErrorFrame {
	return &ErrorFrame{
		SystemFrame: SystemFrame{BaseFrame: NewBaseFrame("ErrorFrame")},
		Err:         err,
		Fatal:       fatal,
	}
}
