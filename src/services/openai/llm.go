// Package openai adapts the OpenAI chat-completions streaming API to the
// pipeline's LLMService contract using raw net/http, matching the teacher's
// preference for a hand-rolled SSE reader over a generated API client.
package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/square-key-labs/strawpipe/src/frames"
	"github.com/square-key-labs/strawpipe/src/processors"
	"github.com/square-key-labs/strawpipe/src/services"
	"github.com/square-key-labs/strawpipe/src/telemetry"
)

// LLMService streams chat completions from OpenAI. It is driven entirely by
// LLMContextFrame arrivals (built upstream by an LLMContextAggregator); it
// does not watch TranscriptionFrame directly.
type LLMService struct {
	*processors.BaseProcessor
	apiKey      string
	model       string
	temperature float64
	context     *services.LLMContext
	ctx         context.Context
	cancel      context.CancelFunc
	httpClient  *http.Client
	log         *telemetry.Logger
}

// LLMConfig configures the OpenAI connection.
type LLMConfig struct {
	APIKey       string
	Model        string // e.g. "gpt-4-turbo"
	SystemPrompt string
	Temperature  float64
}

func NewLLMService(config LLMConfig) *LLMService {
	s := &LLMService{
		apiKey:      config.APIKey,
		model:       config.Model,
		temperature: config.Temperature,
		context:     services.NewLLMContext(config.SystemPrompt),
		httpClient:  &http.Client{},
		log:         telemetry.NewLogger("OpenAI"),
	}
	s.BaseProcessor = processors.NewBaseProcessor("OpenAI", s)
	return s
}

func (s *LLMService) SetModel(model string)          { s.model = model }
func (s *LLMService) SetSystemPrompt(prompt string)   { s.context.SystemPrompt = prompt }
func (s *LLMService) SetTemperature(temp float64)     { s.temperature = temp }
func (s *LLMService) ClearContext()                   { s.context.Clear() }

func (s *LLMService) AddMessage(role, content string) {
	s.context.Messages = append(s.context.Messages, services.LLMMessage{Role: role, Content: content})
}

func (s *LLMService) Initialize(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.log.Infof("initialized with model %s", s.model)
	return nil
}

func (s *LLMService) Cleanup() error {
	if s.cancel != nil {
		s.cancel()
	}
	return nil
}

func (s *LLMService) HandleFrame(ctx context.Context, frame frames.Frame, direction frames.FrameDirection) error {
	contextFrame, ok := frame.(*frames.LLMContextFrame)
	if !ok {
		return s.PushFrame(frame, direction)
	}

	llmContext, ok := contextFrame.Context.(*services.LLMContext)
	if !ok {
		return nil
	}
	s.context = llmContext

	if err := s.PushFrame(frames.NewLLMFullResponseStartFrame(), frames.Downstream); err != nil {
		return err
	}

	if err := s.generateResponse(llmContext); err != nil {
		s.log.Errorf("generate response: %v", err)
		if pushErr := s.PushFrame(frames.NewErrorFrame(err, false), frames.Upstream); pushErr != nil {
			return pushErr
		}
	}

	return s.PushFrame(frames.NewLLMFullResponseEndFrame(), frames.Downstream)
}

func (s *LLMService) generateResponse(ctx *services.LLMContext) error {
	messages := make([]map[string]string, 0, len(ctx.Messages)+1)
	if ctx.SystemPrompt != "" {
		messages = append(messages, map[string]string{"role": "system", "content": ctx.SystemPrompt})
	}
	for _, msg := range ctx.Messages {
		messages = append(messages, map[string]string{"role": msg.Role, "content": msg.Content})
	}

	requestBody := map[string]interface{}{
		"model":       s.model,
		"messages":    messages,
		"temperature": s.temperature,
		"stream":      true,
	}

	bodyBytes, err := json.Marshal(requestBody)
	if err != nil {
		return fmt.Errorf("marshal chat completion request: %w", err)
	}

	req, err := http.NewRequest("POST", "https://api.openai.com/v1/chat/completions", bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("build chat completion request: %w", err)
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", s.apiKey))
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("chat completion request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("openai api error: %s", string(body))
	}

	var fullResponse strings.Builder
	scanner := bufio.NewScanner(resp.Body)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			break
		}

		var streamResp struct {
			Choices []struct {
				Delta struct {
					Content string `json:"content"`
				} `json:"delta"`
			} `json:"choices"`
		}
		if err := json.Unmarshal([]byte(data), &streamResp); err != nil {
			continue
		}
		if len(streamResp.Choices) == 0 {
			continue
		}

		content := streamResp.Choices[0].Delta.Content
		if content == "" {
			continue
		}
		fullResponse.WriteString(content)
		if err := s.PushFrame(frames.NewTextFrame(content), frames.Downstream); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read chat completion stream: %w", err)
	}

	s.log.Debugf("assistant: %s", fullResponse.String())
	return nil
}
