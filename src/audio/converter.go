// Package audio provides codec conversion and PCM utility processors that sit
// in front of a transport whose wire format isn't linear16 (e.g. Twilio's
// 8kHz mu-law), adapting it to the sample rate and codec the rest of the
// pipeline expects.
package audio

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/square-key-labs/strawpipe/src/frames"
	"github.com/square-key-labs/strawpipe/src/processors"
	"github.com/square-key-labs/strawpipe/src/resampler"
	"github.com/square-key-labs/strawpipe/src/telemetry"
)

// Codec names recognized by ConverterConfig.
const (
	CodecMulaw    = "mulaw"
	CodecLinear16 = "linear16"
)

// ConverterConfig describes the codec/rate conversion a ConverterProcessor
// performs on every InputAudioRawFrame or frames.AudioDataFrame it sees.
type ConverterConfig struct {
	InputSampleRate  int
	InputCodec       string
	OutputSampleRate int
	OutputCodec      string
}

// ConverterProcessor decodes incoming audio to PCM s16le, resamples it, and
// re-encodes to the configured output codec, rebuilding the frame as the same
// concrete type at the new rate (InputAudioRawFrame directly, any
// frames.AudioDataFrame through WithAudio).
type ConverterProcessor struct {
	*processors.BaseProcessor
	config    ConverterConfig
	resampler resampler.Resampler
	log       *telemetry.Logger
}

// NewConverterProcessor constructs a converter with its own resampler
// instance.
func NewConverterProcessor(config ConverterConfig) *ConverterProcessor {
	c := &ConverterProcessor{
		config:    config,
		resampler: resampler.NewWindowedSincResampler(),
		log:       telemetry.NewLogger("AudioConverter"),
	}
	c.BaseProcessor = processors.NewBaseProcessor("AudioConverter", c)
	return c
}

func (c *ConverterProcessor) HandleFrame(ctx context.Context, frame frames.Frame, direction frames.FrameDirection) error {
	if audioFrame, ok := frame.(*frames.InputAudioRawFrame); ok {
		converted, err := c.convert(audioFrame.Audio, audioFrame.SampleRate)
		if err != nil {
			c.log.Errorf("conversion failed: %v", err)
			return c.PushFrame(frames.NewErrorFrame(fmt.Errorf("audio conversion: %w", err), false), frames.Upstream)
		}

		newFrame := frames.NewInputAudioRawFrame(converted, c.config.OutputSampleRate, audioFrame.NumChannels)
		newFrame.SetTransportDestination(audioFrame.TransportDestination())
		return c.PushFrame(newFrame, direction)
	}

	// TTS/output audio flows the opposite direction (e.g. linear16 out of a
	// TTS service needing mu-law on the wire to Twilio); WithAudio lets this
	// processor stay codec-agnostic across every AudioDataFrame variant
	// instead of special-casing TTSAudioRawFrame/OutputAudioRawFrame.
	if audioFrame, ok := frame.(frames.AudioDataFrame); ok {
		converted, err := c.convert(audioFrame.AudioBytes(), audioFrame.AudioSampleRate())
		if err != nil {
			c.log.Errorf("conversion failed: %v", err)
			return c.PushFrame(frames.NewErrorFrame(fmt.Errorf("audio conversion: %w", err), false), frames.Upstream)
		}
		return c.PushFrame(audioFrame.WithAudio(converted, c.config.OutputSampleRate), direction)
	}

	return c.PushFrame(frame, direction)
}

func (c *ConverterProcessor) convert(data []byte, inputRate int) ([]byte, error) {
	pcm, err := c.decode(data)
	if err != nil {
		return nil, err
	}

	if inputRate != c.config.OutputSampleRate {
		raw := PCMToBytes(pcm)
		raw = c.resampler.Resample(raw, inputRate, c.config.OutputSampleRate)
		pcm, err = BytesToPCM(raw)
		if err != nil {
			return nil, err
		}
	}

	return c.encode(pcm)
}

func (c *ConverterProcessor) decode(data []byte) ([]int16, error) {
	switch c.config.InputCodec {
	case CodecMulaw:
		return MulawToPCM(data), nil
	case CodecLinear16, "":
		return BytesToPCM(data)
	default:
		return nil, fmt.Errorf("unsupported input codec: %s", c.config.InputCodec)
	}
}

func (c *ConverterProcessor) encode(pcm []int16) ([]byte, error) {
	switch c.config.OutputCodec {
	case CodecLinear16, "":
		return PCMToBytes(pcm), nil
	case CodecMulaw:
		return PCMToMulaw(pcm), nil
	default:
		return nil, fmt.Errorf("unsupported output codec: %s", c.config.OutputCodec)
	}
}

// MulawToPCM converts mu-law encoded audio to linear PCM s16.
func MulawToPCM(mulaw []byte) []int16 {
	pcm := make([]int16, len(mulaw))
	for i, val := range mulaw {
		pcm[i] = mulawDecode(val)
	}
	return pcm
}

// PCMToMulaw converts linear PCM s16 to mu-law.
func PCMToMulaw(pcm []int16) []byte {
	mulaw := make([]byte, len(pcm))
	for i, val := range pcm {
		mulaw[i] = mulawEncode(val)
	}
	return mulaw
}

// BytesToPCM converts little-endian PCM s16le bytes to an int16 slice.
func BytesToPCM(data []byte) ([]int16, error) {
	if len(data)%2 != 0 {
		return nil, fmt.Errorf("invalid PCM data length: %d", len(data))
	}
	pcm := make([]int16, len(data)/2)
	for i := range pcm {
		pcm[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return pcm, nil
}

// PCMToBytes converts an int16 slice to little-endian PCM s16le bytes.
func PCMToBytes(pcm []int16) []byte {
	data := make([]byte, len(pcm)*2)
	for i, val := range pcm {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(val))
	}
	return data
}

const (
	mulawBias = 0x84
	mulawClip = 32635
)

var mulawDecodeTable = [256]int16{
	-32124, -31100, -30076, -29052, -28028, -27004, -25980, -24956,
	-23932, -22908, -21884, -20860, -19836, -18812, -17788, -16764,
	-15996, -15484, -14972, -14460, -13948, -13436, -12924, -12412,
	-11900, -11388, -10876, -10364, -9852, -9340, -8828, -8316,
	-7932, -7676, -7420, -7164, -6908, -6652, -6396, -6140,
	-5884, -5628, -5372, -5116, -4860, -4604, -4348, -4092,
	-3900, -3772, -3644, -3516, -3388, -3260, -3132, -3004,
	-2876, -2748, -2620, -2492, -2364, -2236, -2108, -1980,
	-1884, -1820, -1756, -1692, -1628, -1564, -1500, -1436,
	-1372, -1308, -1244, -1180, -1116, -1052, -988, -924,
	-876, -844, -812, -780, -748, -716, -684, -652,
	-620, -588, -556, -524, -492, -460, -428, -396,
	-372, -356, -340, -324, -308, -292, -276, -260,
	-244, -228, -212, -196, -180, -164, -148, -132,
	-120, -112, -104, -96, -88, -80, -72, -64,
	-56, -48, -40, -32, -24, -16, -8, 0,
	32124, 31100, 30076, 29052, 28028, 27004, 25980, 24956,
	23932, 22908, 21884, 20860, 19836, 18812, 17788, 16764,
	15996, 15484, 14972, 14460, 13948, 13436, 12924, 12412,
	11900, 11388, 10876, 10364, 9852, 9340, 8828, 8316,
	7932, 7676, 7420, 7164, 6908, 6652, 6396, 6140,
	5884, 5628, 5372, 5116, 4860, 4604, 4348, 4092,
	3900, 3772, 3644, 3516, 3388, 3260, 3132, 3004,
	2876, 2748, 2620, 2492, 2364, 2236, 2108, 1980,
	1884, 1820, 1756, 1692, 1628, 1564, 1500, 1436,
	1372, 1308, 1244, 1180, 1116, 1052, 988, 924,
	876, 844, 812, 780, 748, 716, 684, 652,
	620, 588, 556, 524, 492, 460, 428, 396,
	372, 356, 340, 324, 308, 292, 276, 260,
	244, 228, 212, 196, 180, 164, 148, 132,
	120, 112, 104, 96, 88, 80, 72, 64,
	56, 48, 40, 32, 24, 16, 8, 0,
}

func mulawDecode(mulaw byte) int16 {
	return mulawDecodeTable[mulaw]
}

func mulawEncode(pcm int16) byte {
	sign := uint8(0)
	if pcm < 0 {
		sign = 0x80
		pcm = -pcm
	}

	if pcm > mulawClip {
		pcm = mulawClip
	}
	pcm += mulawBias

	var exponent uint8
	var mantissa uint8

	switch {
	case pcm >= 0x1000:
		exponent = 7
		mantissa = uint8((pcm >> 7) & 0x0F)
	case pcm >= 0x800:
		exponent = 6
		mantissa = uint8((pcm >> 6) & 0x0F)
	case pcm >= 0x400:
		exponent = 5
		mantissa = uint8((pcm >> 5) & 0x0F)
	case pcm >= 0x200:
		exponent = 4
		mantissa = uint8((pcm >> 4) & 0x0F)
	case pcm >= 0x100:
		exponent = 3
		mantissa = uint8((pcm >> 3) & 0x0F)
	case pcm >= 0x80:
		exponent = 2
		mantissa = uint8((pcm >> 2) & 0x0F)
	case pcm >= 0x40:
		exponent = 1
		mantissa = uint8((pcm >> 1) & 0x0F)
	default:
		exponent = 0
		mantissa = uint8(pcm & 0x0F)
	}

	mulaw := sign | (exponent << 4) | mantissa
	return ^mulaw
}

// ClipAudio clamps every sample to [-maxValue, maxValue].
func ClipAudio(pcm []int16, maxValue int16) []int16 {
	output := make([]int16, len(pcm))
	for i, val := range pcm {
		switch {
		case val > maxValue:
			output[i] = maxValue
		case val < -maxValue:
			output[i] = -maxValue
		default:
			output[i] = val
		}
	}
	return output
}

// NormalizeAudio scales pcm so its RMS matches targetRMS, clamping to the
// s16 range.
func NormalizeAudio(pcm []int16, targetRMS float64) []int16 {
	if len(pcm) == 0 {
		return pcm
	}

	var sum float64
	for _, val := range pcm {
		sum += float64(val) * float64(val)
	}
	currentRMS := math.Sqrt(sum / float64(len(pcm)))
	if currentRMS == 0 {
		return pcm
	}

	gain := targetRMS / currentRMS
	output := make([]int16, len(pcm))
	for i, val := range pcm {
		scaled := float64(val) * gain
		switch {
		case scaled > 32767:
			output[i] = 32767
		case scaled < -32768:
			output[i] = -32768
		default:
			output[i] = int16(scaled)
		}
	}
	return output
}
