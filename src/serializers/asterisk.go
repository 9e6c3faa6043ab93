package serializers

import (
	"encoding/json"
	"fmt"

	"github.com/square-key-labs/strawpipe/src/frames"
)

// AsteriskFrameSerializer speaks Asterisk's ARI WebSocket protocol, either
// raw mu-law binary frames or a JSON control envelope, selected at
// construction.
type AsteriskFrameSerializer struct {
	channelID string
	useBinary bool
}

type asteriskMessage struct {
	Type      string                 `json:"type"`
	ChannelID string                 `json:"channel_id,omitempty"`
	Audio     string                 `json:"audio,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

func NewAsteriskFrameSerializer(channelID string, useBinary bool) *AsteriskFrameSerializer {
	return &AsteriskFrameSerializer{channelID: channelID, useBinary: useBinary}
}

func (s *AsteriskFrameSerializer) Type() SerializerType {
	if s.useBinary {
		return SerializerTypeBinary
	}
	return SerializerTypeText
}

func (s *AsteriskFrameSerializer) Setup(frame *frames.StartFrame) error {
	return nil
}

func (s *AsteriskFrameSerializer) Serialize(frame frames.Frame) (any, error) {
	switch f := frame.(type) {
	case frames.AudioDataFrame:
		if s.useBinary {
			return f.AudioBytes(), nil
		}
		msg := asteriskMessage{
			Type:      "audio",
			ChannelID: s.channelID,
			Audio:     string(f.AudioBytes()),
		}
		data, err := json.Marshal(msg)
		if err != nil {
			return nil, fmt.Errorf("marshal asterisk audio message: %w", err)
		}
		return string(data), nil

	case *frames.StartInterruptionFrame:
		msg := asteriskMessage{Type: "interrupt", ChannelID: s.channelID}
		data, err := json.Marshal(msg)
		if err != nil {
			return nil, fmt.Errorf("marshal asterisk interrupt message: %w", err)
		}
		return string(data), nil

	case *frames.EndFrame:
		msg := asteriskMessage{Type: "hangup", ChannelID: s.channelID}
		data, err := json.Marshal(msg)
		if err != nil {
			return nil, fmt.Errorf("marshal asterisk hangup message: %w", err)
		}
		return string(data), nil

	default:
		return nil, nil
	}
}

func (s *AsteriskFrameSerializer) Deserialize(data any) (frames.Frame, error) {
	if s.useBinary {
		var audioData []byte
		switch v := data.(type) {
		case []byte:
			audioData = v
		case string:
			audioData = []byte(v)
		default:
			return nil, fmt.Errorf("expected []byte or string for binary mode, got %T", data)
		}
		return frames.NewInputAudioRawFrame(audioData, 8000, 1), nil
	}

	jsonData, ok := data.(string)
	if !ok {
		if b, ok := data.([]byte); ok {
			jsonData = string(b)
		} else {
			return nil, fmt.Errorf("expected string or []byte for JSON mode, got %T", data)
		}
	}

	var msg asteriskMessage
	if err := json.Unmarshal([]byte(jsonData), &msg); err != nil {
		return nil, fmt.Errorf("unmarshal asterisk message: %w", err)
	}

	switch msg.Type {
	case "start":
		if msg.ChannelID != "" {
			s.channelID = msg.ChannelID
		}
		return frames.NewStartFrame(true, 8000, 8000), nil

	case "audio":
		return frames.NewInputAudioRawFrame([]byte(msg.Audio), 8000, 1), nil

	case "hangup":
		return frames.NewEndFrame(), nil

	default:
		return nil, nil
	}
}

func (s *AsteriskFrameSerializer) Cleanup() error { return nil }

func (s *AsteriskFrameSerializer) GetChannelID() string { return s.channelID }
