package transports

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/square-key-labs/strawpipe/src/audio"
	"github.com/square-key-labs/strawpipe/src/clock"
	"github.com/square-key-labs/strawpipe/src/frames"
	"github.com/square-key-labs/strawpipe/src/processors"
	"github.com/square-key-labs/strawpipe/src/serializers"
	"github.com/square-key-labs/strawpipe/src/telemetry"
	"github.com/square-key-labs/strawpipe/src/transport"
)

// AsteriskConfig configures an AsteriskTransport.
type AsteriskConfig struct {
	Port      int
	Path      string // defaults to "/media"
	ChannelID string
	UseBinary bool // true sends/receives raw mu-law frames, false wraps them in JSON
	Params    transport.Params
}

// AsteriskTransport speaks Asterisk's ARI WebSocket bridge: 8kHz mu-law,
// either as raw binary frames or JSON-enveloped, selected by UseBinary.
// Like TwilioTransport, codec conversion to/from linear16 happens here via
// src/audio so the AsteriskFrameSerializer only moves raw bytes.
type AsteriskTransport struct {
	port       int
	path       string
	serializer *serializers.AsteriskFrameSerializer
	useBinary  bool

	input  *transport.BaseInputTransport
	output *transport.BaseOutputTransport

	server   *http.Server
	upgrader websocket.Upgrader

	mu   sync.Mutex
	conn *websocket.Conn

	log *telemetry.Logger
}

func NewAsteriskTransport(config AsteriskConfig) *AsteriskTransport {
	if config.Path == "" {
		config.Path = "/media"
	}
	config.Params.AudioInSampleRate = 8000
	config.Params.AudioOutSampleRate = 8000
	config.Params.AudioOutChannels = 1

	t := &AsteriskTransport{
		port:       config.Port,
		path:       config.Path,
		serializer: serializers.NewAsteriskFrameSerializer(config.ChannelID, config.UseBinary),
		useBinary:  config.UseBinary,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log: telemetry.NewLogger("AsteriskTransport"),
	}

	t.input = transport.NewBaseInputTransport("AsteriskInput", config.Params)
	t.output = transport.NewBaseOutputTransport("AsteriskOutput", config.Params, t, clock.NewSystemClock())
	return t
}

func (t *AsteriskTransport) Input() processors.FrameProcessor  { return t.input }
func (t *AsteriskTransport) Output() processors.FrameProcessor { return t.output }

func (t *AsteriskTransport) Start(ctx context.Context) error {
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
		return fmt.Errorf("asterisk websocket server: %w", err)
	}
	return nil
}

func (t *AsteriskTransport) Stop() error {
	if t.server == nil {
		return nil
	}
	return t.server.Shutdown(context.Background())
}

func (t *AsteriskTransport) handleWebSocket(w http.ResponseWriter, r *http.Request) {
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

	for {
		msgType, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				t.log.Warnf("read: %v", err)
			}
			t.input.PushFrame(frames.NewEndFrame(), frames.Downstream)
			return
		}

		var data any
		if msgType == websocket.BinaryMessage {
			data = message
		} else {
			data = string(message)
		}

		frame, err := t.serializer.Deserialize(data)
		if err != nil {
			t.log.Warnf("deserialize: %v", err)
			continue
		}
		if frame == nil {
			continue
		}

		switch f := frame.(type) {
		case *frames.StartFrame:
			t.input.PushFrame(f, frames.Downstream)

		case *frames.InputAudioRawFrame:
			pcm := audio.MulawToPCM(f.Audio)
			t.input.PushAudio(audio.PCMToBytes(pcm))

		case *frames.EndFrame:
			t.input.PushFrame(f, frames.Downstream)
			return

		default:
			t.input.PushFrame(f, frames.Downstream)
		}
	}
}

// WriteRawAudioFrames implements transport.WireWriter: linear16 PCM is
// encoded to mu-law before being framed per useBinary.
func (t *AsteriskTransport) WriteRawAudioFrames(pcmBytes []byte, destination string) error {
	pcm, err := audio.BytesToPCM(pcmBytes)
	if err != nil {
		return fmt.Errorf("decode pcm for asterisk: %w", err)
	}
	mulaw := audio.PCMToMulaw(pcm)

	data, err := t.serializer.Serialize(frames.NewOutputAudioRawFrame(mulaw, 8000, 1))
	if err != nil {
		return fmt.Errorf("serialize asterisk audio message: %w", err)
	}
	return t.writeData(data)
}

// SendMessage implements transport.WireWriter for control frames (e.g.
// StartInterruptionFrame maps to an "interrupt" message, EndFrame to
// "hangup").
func (t *AsteriskTransport) SendMessage(frame frames.Frame) error {
	data, err := t.serializer.Serialize(frame)
	if err != nil {
		return fmt.Errorf("serialize asterisk message: %w", err)
	}
	if data == nil {
		return nil
	}
	return t.writeData(data)
}

func (t *AsteriskTransport) writeData(data any) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
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
