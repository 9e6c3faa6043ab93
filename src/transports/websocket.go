// Package transports provides concrete duplex channels for transport.Params:
// gorilla/websocket for generic and Twilio/Asterisk wire formats, and
// pion/webrtc for browser clients. Each concrete transport composes a
// transport.BaseInputTransport/BaseOutputTransport pair with its wire
// channel and implements transport.WireWriter; the websocket transports
// frame their messages with a serializers.FrameSerializer.
package transports

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/square-key-labs/strawpipe/src/clock"
	"github.com/square-key-labs/strawpipe/src/frames"
	"github.com/square-key-labs/strawpipe/src/processors"
	"github.com/square-key-labs/strawpipe/src/serializers"
	"github.com/square-key-labs/strawpipe/src/telemetry"
	"github.com/square-key-labs/strawpipe/src/transport"
)

// Transport is the contract a pipeline wires in as its edge processors: a
// FrameProcessor pair plus a lifecycle.
type Transport interface {
	Input() processors.FrameProcessor
	Output() processors.FrameProcessor
	Start(ctx context.Context) error
	Stop() error
}

// WebSocketConfig configures a generic WebSocketTransport.
type WebSocketConfig struct {
	Port       int
	Path       string
	Serializer serializers.FrameSerializer
	Params     transport.Params
}

// WebSocketTransport is a single-connection WebSocket transport that
// delegates protocol framing to an injected FrameSerializer. TwilioTransport
// and AsteriskTransport are separate types with their own server and read
// loop, built on the same gorilla/websocket pattern.
type WebSocketTransport struct {
	port       int
	path       string
	serializer serializers.FrameSerializer

	input  *transport.BaseInputTransport
	output *transport.BaseOutputTransport

	server   *http.Server
	upgrader websocket.Upgrader

	mu   sync.Mutex
	conn *websocket.Conn

	log *telemetry.Logger
}

// NewWebSocketTransport constructs a WebSocketTransport. Start must be called
// before any client connects.
func NewWebSocketTransport(config WebSocketConfig) *WebSocketTransport {
	if config.Path == "" {
		config.Path = "/ws"
	}
	if config.Serializer == nil {
		panic("WebSocketTransport requires a serializer")
	}

	t := &WebSocketTransport{
		port:       config.Port,
		path:       config.Path,
		serializer: config.Serializer,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log: telemetry.NewLogger("WebSocketTransport"),
	}

	t.input = transport.NewBaseInputTransport("WebSocketInput", config.Params)
	t.output = transport.NewBaseOutputTransport("WebSocketOutput", config.Params, t, clock.NewSystemClock())
	return t
}

func (t *WebSocketTransport) Input() processors.FrameProcessor  { return t.input }
func (t *WebSocketTransport) Output() processors.FrameProcessor { return t.output }

// Start begins listening for a single WebSocket connection.
func (t *WebSocketTransport) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc(t.path, t.handleWebSocket)

	t.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", t.port),
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		_ = t.server.Shutdown(context.Background())
	}()

	t.log.Infof("listening on %s%s", t.server.Addr, t.path)
	if err := t.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("websocket server: %w", err)
	}
	return nil
}

func (t *WebSocketTransport) Stop() error {
	if t.server == nil {
		return nil
	}
	return t.server.Shutdown(context.Background())
}

func (t *WebSocketTransport) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		t.log.Errorf("upgrade: %v", err)
		return
	}

	t.mu.Lock()
	t.conn = conn
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		if t.conn == conn {
			t.conn = nil
		}
		t.mu.Unlock()
		conn.Close()
	}()

	if err := t.serializer.Setup(frames.NewStartFrame(true, 0, 0)); err != nil {
		t.log.Errorf("serializer setup: %v", err)
		return
	}

	for {
		msgType, msgBytes, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				t.log.Warnf("read: %v", err)
			}
			t.input.PushFrame(frames.NewEndFrame(), frames.Downstream)
			return
		}

		var data any
		if msgType == websocket.BinaryMessage {
			data = msgBytes
		} else {
			data = string(msgBytes)
		}

		frame, err := t.serializer.Deserialize(data)
		if err != nil {
			t.log.Warnf("deserialize: %v", err)
			continue
		}
		if frame == nil {
			continue
		}

		if audioFrame, ok := frame.(*frames.InputAudioRawFrame); ok {
			t.input.PushAudio(audioFrame.Audio)
			continue
		}

		if _, ok := frame.(*frames.EndFrame); ok {
			t.input.PushFrame(frame, frames.Downstream)
			return
		}

		t.input.PushFrame(frame, frames.Downstream)
	}
}

// WriteRawAudioFrames implements transport.WireWriter: it serializes the
// audio through the configured protocol serializer and writes it as a binary
// or text WebSocket frame depending on the serializer's wire type.
func (t *WebSocketTransport) WriteRawAudioFrames(audio []byte, destination string) error {
	data, err := t.serializer.Serialize(frames.NewOutputAudioRawFrame(audio, 0, 1))
	if err != nil {
		return fmt.Errorf("serialize audio: %w", err)
	}
	return t.writeData(data)
}

// SendMessage implements transport.WireWriter for control/message frames.
func (t *WebSocketTransport) SendMessage(frame frames.Frame) error {
	data, err := t.serializer.Serialize(frame)
	if err != nil {
		return fmt.Errorf("serialize message: %w", err)
	}
	if data == nil {
		return nil
	}
	return t.writeData(data)
}

func (t *WebSocketTransport) writeData(data any) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil || data == nil {
		return nil
	}

	switch v := data.(type) {
	case []byte:
		return conn.WriteMessage(websocket.BinaryMessage, v)
	case string:
		return conn.WriteMessage(websocket.TextMessage, []byte(v))
	default:
		return fmt.Errorf("unsupported serialized data type %T", data)
	}
}
