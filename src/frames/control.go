package frames

// ControlFrame is embedded by frames that must preserve FIFO order within a
// direction but are not raw data payloads.
type ControlFrame struct {
	BaseFrame
}

func (f *ControlFrame) Category() FrameCategory { return ControlCategory }

// VADUserStartedSpeakingFrame is the raw VAD transition QUIET/STARTING ->
// SPEAKING. It is emitted unconditionally, even when a turn analyzer is
// deduplicating the higher-level UserStartedSpeakingFrame.
type VADUserStartedSpeakingFrame struct {
	ControlFrame
}

func NewVADUserStartedSpeakingFrame() *VADUserStartedSpeakingFrame {
	return &VADUserStartedSpeakingFrame{ControlFrame{BaseFrame: NewBaseFrame("VADUserStartedSpeakingFrame")}}
}

// VADUserStoppedSpeakingFrame is the raw VAD transition SPEAKING/STOPPING ->
// QUIET.
type VADUserStoppedSpeakingFrame struct {
	ControlFrame
}

func NewVADUserStoppedSpeakingFrame() *VADUserStoppedSpeakingFrame {
	return &VADUserStoppedSpeakingFrame{ControlFrame{BaseFrame: NewBaseFrame("VADUserStoppedSpeakingFrame")}}
}

// UserStartedSpeakingFrame is the de-duplicated, turn-aware signal consumed
// by the interruption handler. Emulated is true when it was synthesized by
// EmulateUserStartedSpeakingFrame rather than derived from VAD.
type UserStartedSpeakingFrame struct {
	ControlFrame
	Emulated bool
}

func NewUserStartedSpeakingFrame(emulated bool) *UserStartedSpeakingFrame {
	return &UserStartedSpeakingFrame{
		ControlFrame: ControlFrame{BaseFrame: NewBaseFrame("UserStartedSpeakingFrame")},
		Emulated:     emulated,
	}
}

// UserStoppedSpeakingFrame is the de-duplicated counterpart of
// UserStartedSpeakingFrame.
type UserStoppedSpeakingFrame struct {
	ControlFrame
	Emulated bool
}

func NewUserStoppedSpeakingFrame(emulated bool) *UserStoppedSpeakingFrame {
	return &UserStoppedSpeakingFrame{
		ControlFrame: ControlFrame{BaseFrame: NewBaseFrame("UserStoppedSpeakingFrame")},
		Emulated:     emulated,
	}
}

// BotStartedSpeakingFrame marks the beginning of a bot-speaking interval for
// a given output destination. BotStartedSpeaking/BotStoppedSpeaking strictly
// alternate per destination, starting from stopped.
type BotStartedSpeakingFrame struct {
	ControlFrame
}

func NewBotStartedSpeakingFrame() *BotStartedSpeakingFrame {
	return &BotStartedSpeakingFrame{ControlFrame{BaseFrame: NewBaseFrame("BotStartedSpeakingFrame")}}
}

// BotStoppedSpeakingFrame marks the end of a bot-speaking interval.
type BotStoppedSpeakingFrame struct {
	ControlFrame
}

func NewBotStoppedSpeakingFrame() *BotStoppedSpeakingFrame {
	return &BotStoppedSpeakingFrame{ControlFrame{BaseFrame: NewBaseFrame("BotStoppedSpeakingFrame")}}
}

// BotSpeakingFrame is emitted periodically while the bot is actively
// streaming TTS audio; see MediaSender's audio worker for the cadence.
type BotSpeakingFrame struct {
	ControlFrame
}

func NewBotSpeakingFrame() *BotSpeakingFrame {
	return &BotSpeakingFrame{ControlFrame{BaseFrame: NewBaseFrame("BotSpeakingFrame")}}
}

// LLMFullResponseStartFrame marks the beginning of a streamed LLM response.
type LLMFullResponseStartFrame struct {
	ControlFrame
}

func NewLLMFullResponseStartFrame() *LLMFullResponseStartFrame {
	return &LLMFullResponseStartFrame{ControlFrame{BaseFrame: NewBaseFrame("LLMFullResponseStartFrame")}}
}

// LLMFullResponseEndFrame marks the end of a streamed LLM response.
type LLMFullResponseEndFrame struct {
	ControlFrame
}

func NewLLMFullResponseEndFrame() *LLMFullResponseEndFrame {
	return &LLMFullResponseEndFrame{ControlFrame{BaseFrame: NewBaseFrame("LLMFullResponseEndFrame")}}
}

// TTSStartedFrame marks the beginning of TTS synthesis for one utterance.
type TTSStartedFrame struct {
	ControlFrame
}

func NewTTSStartedFrame() *TTSStartedFrame {
	return &TTSStartedFrame{ControlFrame{BaseFrame: NewBaseFrame("TTSStartedFrame")}}
}

// TTSStoppedFrame marks the end of TTS synthesis for one utterance.
type TTSStoppedFrame struct {
	ControlFrame
}

func NewTTSStoppedFrame() *TTSStoppedFrame {
	return &TTSStoppedFrame{ControlFrame{BaseFrame: NewBaseFrame("TTSStoppedFrame")}}
}
