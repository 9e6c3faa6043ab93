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

// TwilioConfig configures a TwilioTransport.
type TwilioConfig struct {
	Port   int
	Path   string // defaults to "/media"
	Params transport.Params
}

// TwilioTransport speaks Twilio Media Streams over a single WebSocket
// connection. The wire carries 8kHz mu-law; PushAudio/WriteRawAudioFrames
// convert to/from the linear16 the pipeline's processors expect, via
// src/audio, so TwilioFrameSerializer itself only ever moves raw bytes.
type TwilioTransport struct {
	port       int
	path       string
	serializer *serializers.TwilioFrameSerializer

	input  *transport.BaseInputTransport
	output *transport.BaseOutputTransport

	server   *http.Server
	upgrader websocket.Upgrader

	mu   sync.Mutex
	conn *websocket.Conn

	log *telemetry.Logger
}

func NewTwilioTransport(config TwilioConfig) *TwilioTransport {
	if config.Path == "" {
		config.Path = "/media"
	}
	config.Params.AudioInSampleRate = 8000
	config.Params.AudioOutSampleRate = 8000
	config.Params.AudioOutChannels = 1

	t := &TwilioTransport{
		port:       config.Port,
		path:       config.Path,
		serializer: serializers.NewTwilioFrameSerializer("", ""),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log: telemetry.NewLogger("TwilioTransport"),
	}

	t.input = transport.NewBaseInputTransport("TwilioInput", config.Params)
	t.output = transport.NewBaseOutputTransport("TwilioOutput", config.Params, t, clock.NewSystemClock())
	return t
}

func (t *TwilioTransport) Input() processors.FrameProcessor  { return t.input }
func (t *TwilioTransport) Output() processors.FrameProcessor { return t.output }

func (t *TwilioTransport) Start(ctx context.Context) error {
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
		return fmt.Errorf("twilio websocket server: %w", err)
	}
	return nil
}

func (t *TwilioTransport) Stop() error {
	if t.server == nil {
		return nil
	}
	return t.server.Shutdown(context.Background())
}

func (t *TwilioTransport) handleWebSocket(w http.ResponseWriter, r *http.Request) {
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
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				t.log.Warnf("read: %v", err)
			}
			t.input.PushFrame(frames.NewEndFrame(), frames.Downstream)
			return
		}

		frame, err := t.serializer.Deserialize(string(message))
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
// encoded to mu-law before being framed as a Twilio "media" event.
func (t *TwilioTransport) WriteRawAudioFrames(pcmBytes []byte, destination string) error {
	pcm, err := audio.BytesToPCM(pcmBytes)
	if err != nil {
		return fmt.Errorf("decode pcm for twilio: %w", err)
	}
	mulaw := audio.PCMToMulaw(pcm)

	data, err := t.serializer.Serialize(frames.NewOutputAudioRawFrame(mulaw, 8000, 1))
	if err != nil {
		return fmt.Errorf("serialize twilio media event: %w", err)
	}
	return t.writeText(data)
}

// SendMessage implements transport.WireWriter for control frames (e.g.
// StartInterruptionFrame maps to Twilio's "clear" event).
func (t *TwilioTransport) SendMessage(frame frames.Frame) error {
	data, err := t.serializer.Serialize(frame)
	if err != nil {
		return fmt.Errorf("serialize twilio message: %w", err)
	}
	if data == nil {
		return nil
	}
	return t.writeText(data)
}

func (t *TwilioTransport) writeText(data any) error {
	text, ok := data.(string)
	if !ok {
		return fmt.Errorf("twilio serializer produced non-text data: %T", data)
	}

	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.WriteMessage(websocket.TextMessage, []byte(text))
}
