// Package deepgram adapts Deepgram's streaming transcription WebSocket API
// to the pipeline's STTService contract.
package deepgram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/square-key-labs/strawpipe/src/frames"
	"github.com/square-key-labs/strawpipe/src/processors"
	"github.com/square-key-labs/strawpipe/src/telemetry"
)

// STTService streams raw audio to Deepgram's /v1/listen WebSocket and emits
// TranscriptionFrame for every interim and final result. It connects lazily
// on the first InputAudioRawFrame rather than on StartFrame, so a pipeline
// that never receives audio never opens a socket.
type STTService struct {
	*processors.BaseProcessor
	apiKey   string
	language string
	model    string
	encoding string

	conn   *websocket.Conn
	connMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc

	log *telemetry.Logger
}

// STTConfig configures the Deepgram connection.
type STTConfig struct {
	APIKey   string
	Language string // e.g. "en-US"
	Model    string // e.g. "nova-2"
	Encoding string // "mulaw"/"ulaw", "alaw", or "linear16" (default)
}

func NewSTTService(config STTConfig) *STTService {
	encoding := normalizeDeepgramEncoding(config.Encoding)
	if encoding == "" {
		encoding = "linear16"
	}

	s := &STTService{
		apiKey:   config.APIKey,
		language: config.Language,
		model:    config.Model,
		encoding: encoding,
		log:      telemetry.NewLogger("DeepgramSTT"),
	}
	s.BaseProcessor = processors.NewBaseProcessor("DeepgramSTT", s)
	return s
}

func normalizeDeepgramEncoding(encoding string) string {
	switch encoding {
	case "ulaw", "PCMU":
		return "mulaw"
	case "PCMA":
		return "alaw"
	case "pcm", "PCM":
		return "linear16"
	default:
		return encoding
	}
}

func (s *STTService) SetLanguage(lang string) { s.language = lang }
func (s *STTService) SetModel(model string)   { s.model = model }

func (s *STTService) Initialize(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	sampleRate := "16000"
	if s.encoding == "mulaw" || s.encoding == "alaw" {
		sampleRate = "8000"
	}

	params := url.Values{}
	params.Set("language", s.language)
	params.Set("model", s.model)
	params.Set("encoding", s.encoding)
	params.Set("sample_rate", sampleRate)
	params.Set("channels", "1")
	params.Set("interim_results", "true")

	wsURL := fmt.Sprintf("wss://api.deepgram.com/v1/listen?%s", params.Encode())
	header := map[string][]string{"Authorization": {fmt.Sprintf("Token %s", s.apiKey)}}

	var err error
	s.conn, _, err = websocket.DefaultDialer.Dial(wsURL, header)
	if err != nil {
		return fmt.Errorf("connect to deepgram: %w", err)
	}

	go s.receiveTranscriptions()
	go s.keepaliveTask()

	s.log.Infof("connected")
	return nil
}

func (s *STTService) Cleanup() error {
	if s.cancel != nil {
		s.cancel()
	}
	time.Sleep(50 * time.Millisecond)

	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	return nil
}

func (s *STTService) reconnect(ctx context.Context) error {
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	if s.cancel != nil {
		s.cancel()
	}
	return s.Initialize(ctx)
}

func (s *STTService) HandleFrame(ctx context.Context, frame frames.Frame, direction frames.FrameDirection) error {
	switch f := frame.(type) {
	case *frames.StartFrame:
		return s.PushFrame(frame, direction)

	case *frames.EndFrame:
		if err := s.Cleanup(); err != nil {
			s.log.Errorf("cleanup: %v", err)
		}
		return s.PushFrame(frame, direction)

	case *frames.StartInterruptionFrame:
		if s.conn != nil {
			s.connMu.Lock()
			err := s.conn.WriteJSON(map[string]string{"type": "Finalize"})
			s.connMu.Unlock()
			if err != nil {
				s.log.Errorf("send finalize: %v", err)
			}
		}
		return s.PushFrame(frame, direction)

	case *frames.InputAudioRawFrame:
		if s.conn == nil {
			if err := s.Initialize(ctx); err != nil {
				s.log.Errorf("lazy initialize: %v", err)
				return s.PushFrame(frames.NewErrorFrame(err, false), frames.Upstream)
			}
		}

		s.connMu.Lock()
		err := s.conn.WriteMessage(websocket.BinaryMessage, f.Audio)
		s.connMu.Unlock()

		if err != nil {
			s.log.Warnf("send audio: %v, reconnecting", err)
			if reconnectErr := s.reconnect(ctx); reconnectErr != nil {
				s.log.Errorf("reconnect: %v", reconnectErr)
				return s.PushFrame(frames.NewErrorFrame(err, false), frames.Upstream)
			}

			s.connMu.Lock()
			retryErr := s.conn.WriteMessage(websocket.BinaryMessage, f.Audio)
			s.connMu.Unlock()
			if retryErr != nil {
				s.log.Errorf("send audio after reconnect: %v", retryErr)
				return s.PushFrame(frames.NewErrorFrame(retryErr, false), frames.Upstream)
			}
		}

		return s.PushFrame(frame, direction)
	}

	return s.PushFrame(frame, direction)
}

func (s *STTService) receiveTranscriptions() {
	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		_, message, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
				strings.Contains(err.Error(), "use of closed network connection") {
				return
			}
			s.log.Errorf("read: %v", err)
			s.PushFrame(frames.NewErrorFrame(err, false), frames.Upstream)
			return
		}

		var response struct {
			IsFinal bool `json:"is_final"`
			Channel struct {
				Alternatives []struct {
					Transcript string `json:"transcript"`
				} `json:"alternatives"`
			} `json:"channel"`
		}
		if err := json.Unmarshal(message, &response); err != nil {
			s.log.Warnf("parse response: %v", err)
			continue
		}

		if len(response.Channel.Alternatives) == 0 {
			continue
		}
		transcript := response.Channel.Alternatives[0].Transcript
		if transcript == "" {
			continue
		}

		s.PushFrame(frames.NewTranscriptionFrame(transcript, "", response.IsFinal), frames.Downstream)
	}
}

func (s *STTService) keepaliveTask() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if s.conn == nil {
				continue
			}
			s.connMu.Lock()
			err := s.conn.WriteJSON(map[string]string{"type": "KeepAlive"})
			s.connMu.Unlock()
			if err != nil {
				s.log.Warnf("keepalive: %v", err)
				return
			}
		}
	}
}
