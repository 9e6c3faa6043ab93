// Package serializers converts between pipeline frames and the wire format a
// specific telephony/streaming provider speaks (Twilio Media Streams,
// Asterisk's ARI WebSocket). A concrete WireWriter-facing transport owns one
// FrameSerializer and uses it on both the ingress and egress path.
package serializers

import (
	"github.com/square-key-labs/strawpipe/src/frames"
)

// SerializerType distinguishes wire formats that carry raw bytes from ones
// that carry text (typically JSON).
type SerializerType string

const (
	SerializerTypeBinary SerializerType = "binary"
	SerializerTypeText   SerializerType = "text"
)

// FrameSerializer translates between frames.Frame and a provider's wire
// representation.
type FrameSerializer interface {
	Type() SerializerType
	Setup(frame *frames.StartFrame) error
	Serialize(frame frames.Frame) (any, error)
	Deserialize(data any) (frames.Frame, error)
	Cleanup() error
}
