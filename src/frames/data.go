package frames

// DataFrame is embedded by frames that carry payload content and preserve
// FIFO order within a direction.
type DataFrame struct {
	BaseFrame
}

func (f *DataFrame) Category() FrameCategory { return DataCategory }

// InputAudioRawFrame carries a chunk of raw PCM s16le audio captured from an
// input transport, before any VAD or turn analysis.
type InputAudioRawFrame struct {
	DataFrame
	Audio       []byte
	SampleRate  int
	NumChannels int
}

func NewInputAudioRawFrame(audio []byte, sampleRate, numChannels int) *InputAudioRawFrame {
	return &InputAudioRawFrame{
		DataFrame:   DataFrame{BaseFrame: NewBaseFrame("InputAudioRawFrame")},
		Audio:       audio,
		SampleRate:  sampleRate,
		NumChannels: numChannels,
	}
}

// AudioDataFrame is satisfied by every output-bound audio frame variant.
// MediaSender's chunking logic uses WithAudio to rebuild chunks as the same
// concrete variant it received, so a TTSAudioRawFrame stays a
// TTSAudioRawFrame through chunking.
type AudioDataFrame interface {
	Frame
	AudioBytes() []byte
	AudioSampleRate() int
	AudioChannels() int
	WithAudio(audio []byte, sampleRate int) Frame
}

// OutputAudioRawFrame carries a chunk of raw PCM s16le audio destined for an
// output transport. MediaSender slices these into fixed-size chunks.
type OutputAudioRawFrame struct {
	DataFrame
	Audio       []byte
	SampleRate  int
	NumChannels int
}

func NewOutputAudioRawFrame(audio []byte, sampleRate, numChannels int) *OutputAudioRawFrame {
	return &OutputAudioRawFrame{
		DataFrame:   DataFrame{BaseFrame: NewBaseFrame("OutputAudioRawFrame")},
		Audio:       audio,
		SampleRate:  sampleRate,
		NumChannels: numChannels,
	}
}

func (f *OutputAudioRawFrame) AudioBytes() []byte    { return f.Audio }
func (f *OutputAudioRawFrame) AudioSampleRate() int  { return f.SampleRate }
func (f *OutputAudioRawFrame) AudioChannels() int    { return f.NumChannels }

func (f *OutputAudioRawFrame) WithAudio(audio []byte, sampleRate int) Frame {
	nf := NewOutputAudioRawFrame(audio, sampleRate, f.NumChannels)
	nf.SetTransportDestination(f.TransportDestination())
	return nf
}

// TTSAudioRawFrame is output audio produced by a TTS service. It is a type
// of its own with the same fields and AudioDataFrame methods as
// OutputAudioRawFrame. Its arrival at a MediaSender's audio worker triggers
// the bot-speaking lifecycle.
type TTSAudioRawFrame struct {
	DataFrame
	Audio       []byte
	SampleRate  int
	NumChannels int
}

func NewTTSAudioRawFrame(audio []byte, sampleRate, numChannels int) *TTSAudioRawFrame {
	return &TTSAudioRawFrame{
		DataFrame:   DataFrame{BaseFrame: NewBaseFrame("TTSAudioRawFrame")},
		Audio:       audio,
		SampleRate:  sampleRate,
		NumChannels: numChannels,
	}
}

func (f *TTSAudioRawFrame) AudioBytes() []byte   { return f.Audio }
func (f *TTSAudioRawFrame) AudioSampleRate() int { return f.SampleRate }
func (f *TTSAudioRawFrame) AudioChannels() int   { return f.NumChannels }

func (f *TTSAudioRawFrame) WithAudio(audio []byte, sampleRate int) Frame {
	nf := NewTTSAudioRawFrame(audio, sampleRate, f.NumChannels)
	nf.SetTransportDestination(f.TransportDestination())
	return nf
}

// TextFrame carries a chunk of plain text, e.g. an LLM token or a complete
// sentence handed to a TTS service.
type TextFrame struct {
	DataFrame
	Text string
}

func NewTextFrame(text string) *TextFrame {
	return &TextFrame{
		DataFrame: DataFrame{BaseFrame: NewBaseFrame("TextFrame")},
		Text:      text,
	}
}

// TranscriptionFrame carries a transcribed utterance from an STT service,
// final or interim.
type TranscriptionFrame struct {
	DataFrame
	Text     string
	UserID   string
	Final    bool
}

func NewTranscriptionFrame(text, userID string, final bool) *TranscriptionFrame {
	return &TranscriptionFrame{
		DataFrame: DataFrame{BaseFrame: NewBaseFrame("TranscriptionFrame")},
		Text:      text,
		UserID:    userID,
		Final:     final,
	}
}

// LLMContextFrame carries an accumulated conversation context, built by an
// LLMContextAggregator, ready for an LLMService to consume. Context is
// opaque (the concrete type is services.LLMContext) so this package never
// imports src/services.
type LLMContextFrame struct {
	DataFrame
	Context any
}

func NewLLMContextFrame(context any) *LLMContextFrame {
	return &LLMContextFrame{
		DataFrame: DataFrame{BaseFrame: NewBaseFrame("LLMContextFrame")},
		Context:   context,
	}
}

// LLMMessagesAppendFrame appends messages to a running LLMContext, e.g. to
// inject a tool result or a scripted system note. RunLLM requests that the
// aggregator immediately push the updated context for another LLM turn.
type LLMMessagesAppendFrame struct {
	DataFrame
	Messages any
	RunLLM   bool
}

func NewLLMMessagesAppendFrame(messages any, runLLM bool) *LLMMessagesAppendFrame {
	return &LLMMessagesAppendFrame{
		DataFrame: DataFrame{BaseFrame: NewBaseFrame("LLMMessagesAppendFrame")},
		Messages:  messages,
		RunLLM:    runLLM,
	}
}

// LLMMessagesUpdateFrame replaces a running LLMContext's message list
// wholesale, e.g. to reset the conversation.
type LLMMessagesUpdateFrame struct {
	DataFrame
	Messages any
	RunLLM   bool
}

func NewLLMMessagesUpdateFrame(messages any, runLLM bool) *LLMMessagesUpdateFrame {
	return &LLMMessagesUpdateFrame{
		DataFrame: DataFrame{BaseFrame: NewBaseFrame("LLMMessagesUpdateFrame")},
		Messages:  messages,
		RunLLM:    runLLM,
	}
}

// TransportMessageFrame carries an arbitrary, transport-specific message
// that is subject to the same ordering as other data frames.
type TransportMessageFrame struct {
	DataFrame
	Message any
}

func NewTransportMessageFrame(message any) *TransportMessageFrame {
	return &TransportMessageFrame{
		DataFrame: DataFrame{BaseFrame: NewBaseFrame("TransportMessageFrame")},
		Message:   message,
	}
}

// TransportMessageUrgentFrame carries a transport-specific message that must
// bypass the ordered queue, sent as soon as it reaches the output
// transport, ahead of any buffered audio.
type TransportMessageUrgentFrame struct {
	DataFrame
	Message any
}

func NewTransportMessageUrgentFrame(message any) *TransportMessageUrgentFrame {
	return &TransportMessageUrgentFrame{
		DataFrame: DataFrame{BaseFrame: NewBaseFrame("TransportMessageUrgentFrame")},
		Message:   message,
	}
}

// Category reports SystemCategory so PushFrame delivers the frame directly
// instead of through a processor's FIFO.
func (f *TransportMessageUrgentFrame) Category() FrameCategory { return SystemCategory }
