// Package cartesia adapts Cartesia's streaming TTS WebSocket API to the
// pipeline's TTSService contract.
package cartesia

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/square-key-labs/strawpipe/src/frames"
	"github.com/square-key-labs/strawpipe/src/processors"
	"github.com/square-key-labs/strawpipe/src/telemetry"
)

// GenerationConfig holds Sonic-3 generation parameters.
type GenerationConfig struct {
	Volume  float64 `json:"volume,omitempty"`
	Speed   float64 `json:"speed,omitempty"`
	Emotion string  `json:"emotion,omitempty"`
}

// TTSService streams sentence-aggregated text to Cartesia over a single
// WebSocket connection, keyed by a context_id that is cancelled (not just
// dropped) on interruption so Cartesia stops billing/generating audio for
// cut-off speech. Contexts auto-expire 5 seconds after last input on
// Cartesia's side, so a fresh context_id is minted after every flush.
type TTSService struct {
	*processors.BaseProcessor
	apiKey             string
	voiceID            string
	model              string
	cartesiaVersion    string
	language           string
	sampleRate         int
	encoding           string
	container          string
	generationConfig   *GenerationConfig
	aggregateSentences bool

	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc

	contextID  string
	textBuffer strings.Builder

	isSpeaking bool
	mu         sync.Mutex

	log *telemetry.Logger
}

// TTSConfig configures the Cartesia connection.
type TTSConfig struct {
	APIKey             string
	VoiceID            string
	Model              string // default "sonic-3"
	CartesiaVersion    string // default "2025-04-16"
	Language           string // default "en"
	SampleRate         int    // default 24000; a non-zero StartFrame.AudioOutSampleRate replaces it
	Encoding           string // default "pcm_s16le"
	Container          string // default "raw"
	GenerationConfig   *GenerationConfig
	AggregateSentences bool
}

func NewTTSService(config TTSConfig) *TTSService {
	model := config.Model
	if model == "" {
		model = "sonic-3"
	}
	version := config.CartesiaVersion
	if version == "" {
		version = "2025-04-16"
	}
	language := config.Language
	if language == "" {
		language = "en"
	}
	encoding := config.Encoding
	if encoding == "" {
		encoding = "pcm_s16le"
	}
	container := config.Container
	if container == "" {
		container = "raw"
	}

	s := &TTSService{
		apiKey:             config.APIKey,
		voiceID:            config.VoiceID,
		model:              model,
		cartesiaVersion:    version,
		language:           language,
		sampleRate:         config.SampleRate,
		encoding:           encoding,
		container:          container,
		generationConfig:   config.GenerationConfig,
		aggregateSentences: true,
		log:                telemetry.NewLogger("CartesiaTTS"),
	}
	if config.SampleRate == 0 {
		s.sampleRate = 24000
	}
	s.BaseProcessor = processors.NewBaseProcessor("CartesiaTTS", s)
	return s
}

func (s *TTSService) SetVoice(voiceID string) { s.voiceID = voiceID }
func (s *TTSService) SetModel(model string)   { s.model = model }

func (s *TTSService) Initialize(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.contextID = uuid.New().String()

	wsURL := fmt.Sprintf("wss://api.cartesia.ai/tts/websocket?api_key=%s&cartesia_version=%s", s.apiKey, s.cartesiaVersion)
	var err error
	s.conn, _, err = websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		return fmt.Errorf("connect to cartesia: %w", err)
	}

	go s.receiveAudio()
	s.log.Infof("connected (context %s)", s.contextID)
	return nil
}

func (s *TTSService) Cleanup() error {
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

func (s *TTSService) HandleFrame(ctx context.Context, frame frames.Frame, direction frames.FrameDirection) error {
	switch f := frame.(type) {
	case *frames.StartFrame:
		if s.ctx == nil {
			if f.AudioOutSampleRate > 0 {
				s.sampleRate = f.AudioOutSampleRate
			}
			if err := s.Initialize(ctx); err != nil {
				s.log.Errorf("eager initialize: %v", err)
				return s.PushFrame(frames.NewErrorFrame(err, false), frames.Upstream)
			}
		}
		return s.PushFrame(frame, direction)

	case *frames.EndFrame:
		if err := s.Cleanup(); err != nil {
			s.log.Errorf("cleanup: %v", err)
		}
		return s.PushFrame(frame, direction)

	case *frames.StartInterruptionFrame:
		s.mu.Lock()
		wasSpeaking := s.isSpeaking
		oldContextID := s.contextID
		s.isSpeaking = false
		s.textBuffer.Reset()
		s.contextID = ""
		s.mu.Unlock()

		if s.conn != nil && oldContextID != "" {
			if err := s.conn.WriteJSON(map[string]interface{}{"context_id": oldContextID, "cancel": true}); err != nil {
				s.log.Warnf("cancel context %s: %v", oldContextID, err)
			}
		}
		if wasSpeaking {
			s.PushFrame(frames.NewTTSStoppedFrame(), frames.Upstream)
		}
		return s.PushFrame(frame, direction)

	case *frames.TextFrame:
		if s.ctx == nil {
			if err := s.Initialize(ctx); err != nil {
				s.log.Errorf("lazy initialize: %v", err)
				return s.PushFrame(frames.NewErrorFrame(err, false), frames.Upstream)
			}
		}
		return s.processTextInput(f.Text)

	case *frames.LLMFullResponseEndFrame:
		if s.textBuffer.Len() > 0 {
			remaining := s.textBuffer.String()
			s.textBuffer.Reset()
			if err := s.synthesizeText(remaining); err != nil {
				s.log.Errorf("synthesize remaining text: %v", err)
			}
		}

		if s.conn != nil && s.contextID != "" {
			if err := s.conn.WriteJSON(s.buildMessage("", false)); err != nil {
				s.log.Errorf("send flush: %v", err)
			}
			s.mu.Lock()
			s.isSpeaking = false
			s.contextID = ""
			s.mu.Unlock()
		}
		return s.PushFrame(frame, direction)
	}

	return s.PushFrame(frame, direction)
}

func (s *TTSService) processTextInput(text string) error {
	if text == "" {
		return nil
	}
	if !s.aggregateSentences {
		return s.synthesizeText(text)
	}

	s.textBuffer.WriteString(text)
	sentences, remainder := extractSentences(s.textBuffer.String())
	s.textBuffer.Reset()
	s.textBuffer.WriteString(remainder)

	for _, sentence := range sentences {
		sentence = strings.TrimSpace(sentence)
		if sentence == "" {
			continue
		}
		if err := s.synthesizeText(sentence); err != nil {
			return err
		}
	}
	return nil
}

// extractSentences splits on ./!/?/; followed by whitespace or end of text,
// a simple heuristic that misses abbreviations like "Dr." but needs no NLP
// dependency for a reference adapter.
func extractSentences(text string) ([]string, string) {
	var sentences []string
	var current strings.Builder

	sentenceEnders := map[rune]bool{'.': true, '!': true, '?': true, ';': true}
	runes := []rune(text)

	for i, r := range runes {
		current.WriteRune(r)
		if !sentenceEnders[r] {
			continue
		}
		if i == len(runes)-1 || unicode.IsSpace(runes[i+1]) {
			sentences = append(sentences, current.String())
			current.Reset()
		}
	}
	return sentences, current.String()
}

func (s *TTSService) synthesizeText(text string) error {
	if text == "" {
		return nil
	}
	if s.conn == nil {
		return fmt.Errorf("cartesia websocket not established")
	}

	if s.contextID == "" {
		s.mu.Lock()
		s.contextID = uuid.New().String()
		s.mu.Unlock()
	}

	s.mu.Lock()
	firstChunk := !s.isSpeaking
	if firstChunk {
		s.isSpeaking = true
	}
	s.mu.Unlock()

	if firstChunk {
		s.PushFrame(frames.NewTTSStartedFrame(), frames.Upstream)
		s.PushFrame(frames.NewTTSStartedFrame(), frames.Downstream)
	}

	return s.conn.WriteJSON(s.buildMessage(text, true))
}

func (s *TTSService) buildMessage(text string, continueTranscript bool) map[string]interface{} {
	msg := map[string]interface{}{
		"transcript": text,
		"continue":   continueTranscript,
		"context_id": s.contextID,
		"model_id":   s.model,
		"voice":      map[string]interface{}{"mode": "id", "id": s.voiceID},
		"output_format": map[string]interface{}{
			"container":   s.container,
			"encoding":    s.encoding,
			"sample_rate": s.sampleRate,
		},
		"language": s.language,
	}

	if s.generationConfig != nil {
		genConfig := map[string]interface{}{}
		if s.generationConfig.Volume != 0 {
			genConfig["volume"] = s.generationConfig.Volume
		}
		if s.generationConfig.Speed != 0 {
			genConfig["speed"] = s.generationConfig.Speed
		}
		if s.generationConfig.Emotion != "" {
			genConfig["emotion"] = s.generationConfig.Emotion
		}
		if len(genConfig) > 0 {
			msg["generation_config"] = genConfig
		}
	}
	return msg
}

func (s *TTSService) receiveAudio() {
	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		if s.conn == nil {
			if err := s.reconnect(); err != nil {
				s.log.Warnf("reconnect: %v", err)
				time.Sleep(time.Second)
				continue
			}
		}

		_, message, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
				strings.Contains(err.Error(), "use of closed network connection") {
				return
			}
			s.log.Warnf("read error, reconnecting: %v", err)
			if reconnectErr := s.reconnect(); reconnectErr != nil {
				s.log.Errorf("reconnect failed: %v", reconnectErr)
				s.PushFrame(frames.NewErrorFrame(err, false), frames.Upstream)
				return
			}
			continue
		}

		var response map[string]interface{}
		if err := json.Unmarshal(message, &response); err != nil {
			s.log.Warnf("parse response: %v", err)
			continue
		}

		msgType, _ := response["type"].(string)
		receivedCtxID, _ := response["context_id"].(string)

		s.mu.Lock()
		currentCtxID := s.contextID
		s.mu.Unlock()
		if receivedCtxID != "" && receivedCtxID != currentCtxID && msgType == "chunk" {
			continue
		}

		switch msgType {
		case "chunk":
			audioB64, _ := response["data"].(string)
			if audioB64 == "" {
				continue
			}
			audioData, err := base64.StdEncoding.DecodeString(audioB64)
			if err != nil {
				s.log.Warnf("decode audio chunk: %v", err)
				continue
			}
			s.PushFrame(frames.NewTTSAudioRawFrame(audioData, s.sampleRate, 1), frames.Downstream)

		case "done":
			s.mu.Lock()
			s.isSpeaking = false
			s.mu.Unlock()

		case "error":
			errMsg, _ := response["error"].(string)
			s.log.Errorf("cartesia error: %s", errMsg)
			s.PushFrame(frames.NewErrorFrame(fmt.Errorf("cartesia error: %s", errMsg), false), frames.Upstream)
		}
	}
}

func (s *TTSService) reconnect() error {
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	wsURL := fmt.Sprintf("wss://api.cartesia.ai/tts/websocket?api_key=%s&cartesia_version=%s", s.apiKey, s.cartesiaVersion)
	var err error
	s.conn, _, err = websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		return fmt.Errorf("reconnect to cartesia: %w", err)
	}
	return nil
}
