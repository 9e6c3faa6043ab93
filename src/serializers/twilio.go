package serializers

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/square-key-labs/strawpipe/src/frames"
)

// TwilioFrameSerializer speaks Twilio Media Streams' JSON-over-WebSocket
// protocol. Audio on the wire is 8kHz mu-law, base64-encoded; codec
// conversion to/from linear16 is the audio package's job, not this one's -
// this serializer only moves bytes between the frame envelope and the JSON
// envelope Twilio expects.
type TwilioFrameSerializer struct {
	streamSid string
	callSid   string
}

type twilioMessage struct {
	Event     string                 `json:"event"`
	StreamSid string                 `json:"streamSid,omitempty"`
	Media     *twilioMedia           `json:"media,omitempty"`
	Start     *twilioStart           `json:"start,omitempty"`
	Mark      *twilioMark            `json:"mark,omitempty"`
	Stop      map[string]interface{} `json:"stop,omitempty"`
}

type twilioMedia struct {
	Track     string `json:"track"`
	Chunk     string `json:"chunk"`
	Timestamp string `json:"timestamp"`
	Payload   string `json:"payload"`
}

type twilioStart struct {
	StreamSid       string                 `json:"streamSid"`
	CallSid         string                 `json:"callSid"`
	AccountSid      string                 `json:"accountSid"`
	Tracks          []string               `json:"tracks"`
	MediaFormat     map[string]interface{} `json:"mediaFormat"`
	CustomParameters map[string]string     `json:"customParameters,omitempty"`
}

type twilioMark struct {
	Name string `json:"name"`
}

func NewTwilioFrameSerializer(streamSid, callSid string) *TwilioFrameSerializer {
	return &TwilioFrameSerializer{streamSid: streamSid, callSid: callSid}
}

func (s *TwilioFrameSerializer) Type() SerializerType { return SerializerTypeText }

func (s *TwilioFrameSerializer) Setup(frame *frames.StartFrame) error {
	return nil
}

func (s *TwilioFrameSerializer) Serialize(frame frames.Frame) (any, error) {
	switch f := frame.(type) {
	case frames.AudioDataFrame:
		payload := base64.StdEncoding.EncodeToString(f.AudioBytes())
		msg := twilioMessage{
			Event:     "media",
			StreamSid: s.streamSid,
			Media:     &twilioMedia{Payload: payload},
		}
		data, err := json.Marshal(msg)
		if err != nil {
			return nil, fmt.Errorf("marshal twilio media message: %w", err)
		}
		return string(data), nil

	case *frames.StartInterruptionFrame:
		msg := twilioMessage{Event: "clear", StreamSid: s.streamSid}
		data, err := json.Marshal(msg)
		if err != nil {
			return nil, fmt.Errorf("marshal twilio clear message: %w", err)
		}
		return string(data), nil

	case *frames.EndFrame:
		return nil, nil

	default:
		_ = f
		return nil, nil
	}
}

func (s *TwilioFrameSerializer) Deserialize(data any) (frames.Frame, error) {
	jsonData, ok := data.(string)
	if !ok {
		if b, ok := data.([]byte); ok {
			jsonData = string(b)
		} else {
			return nil, fmt.Errorf("expected string or []byte, got %T", data)
		}
	}

	var msg twilioMessage
	if err := json.Unmarshal([]byte(jsonData), &msg); err != nil {
		return nil, fmt.Errorf("unmarshal twilio message: %w", err)
	}

	switch msg.Event {
	case "start":
		if msg.Start != nil {
			s.streamSid = msg.Start.StreamSid
			s.callSid = msg.Start.CallSid
		}
		return frames.NewStartFrame(true, 8000, 8000), nil

	case "media":
		if msg.Media == nil {
			return nil, fmt.Errorf("media event missing media data")
		}
		audioData, err := base64.StdEncoding.DecodeString(msg.Media.Payload)
		if err != nil {
			return nil, fmt.Errorf("decode audio payload: %w", err)
		}
		return frames.NewInputAudioRawFrame(audioData, 8000, 1), nil

	case "stop":
		return frames.NewEndFrame(), nil

	case "mark":
		return nil, nil

	default:
		return nil, nil
	}
}

func (s *TwilioFrameSerializer) Cleanup() error { return nil }

func (s *TwilioFrameSerializer) GetStreamSid() string { return s.streamSid }

func (s *TwilioFrameSerializer) GetCallSid() string { return s.callSid }
