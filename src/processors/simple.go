package processors

import (
	"context"
	"time"

	"github.com/square-key-labs/strawpipe/src/frames"
	"github.com/square-key-labs/strawpipe/src/telemetry"
)

// TextGeneratorProcessor emits a fixed script of TextFrames on receipt of
// StartFrame, useful for exercising a pipeline without a live LLM.
type TextGeneratorProcessor struct {
	*BaseProcessor
	messages []string
	started  bool
	log      *telemetry.Logger
}

func NewTextGeneratorProcessor(messages []string) *TextGeneratorProcessor {
	tg := &TextGeneratorProcessor{
		messages: messages,
		log:      telemetry.NewLogger("TextGenerator"),
	}
	tg.BaseProcessor = NewBaseProcessor("TextGenerator", tg)
	return tg
}

func (p *TextGeneratorProcessor) HandleFrame(ctx context.Context, frame frames.Frame, direction frames.FrameDirection) error {
	if _, ok := frame.(*frames.StartFrame); ok {
		if !p.started {
			p.started = true
			go p.generateText(ctx)
		}
		return p.PushFrame(frame, direction)
	}
	return p.PushFrame(frame, direction)
}

func (p *TextGeneratorProcessor) generateText(ctx context.Context) {
	time.Sleep(100 * time.Millisecond)

	for _, msg := range p.messages {
		select {
		case <-ctx.Done():
			return
		default:
			p.log.Debugf("generated: %s", msg)
			if err := p.PushFrame(frames.NewTextFrame(msg), frames.Downstream); err != nil {
				p.log.Errorf("push frame: %v", err)
				return
			}
			time.Sleep(200 * time.Millisecond)
		}
	}
}

// TextPrinterProcessor logs received TextFrames and passes every frame
// through unchanged.
type TextPrinterProcessor struct {
	*BaseProcessor
	log *telemetry.Logger
}

func NewTextPrinterProcessor() *TextPrinterProcessor {
	tp := &TextPrinterProcessor{log: telemetry.NewLogger("TextPrinter")}
	tp.BaseProcessor = NewBaseProcessor("TextPrinter", tp)
	return tp
}

func (p *TextPrinterProcessor) HandleFrame(ctx context.Context, frame frames.Frame, direction frames.FrameDirection) error {
	if textFrame, ok := frame.(*frames.TextFrame); ok {
		p.log.Infof("output: %s", textFrame.Text)
	}
	return p.PushFrame(frame, direction)
}

// PassthroughProcessor forwards every frame unchanged, optionally logging
// each one as it passes. Useful as a pipeline tap point.
type PassthroughProcessor struct {
	*BaseProcessor
	logFrames bool
	log       *telemetry.Logger
}

func NewPassthroughProcessor(name string, logFrames bool) *PassthroughProcessor {
	pp := &PassthroughProcessor{logFrames: logFrames, log: telemetry.NewLogger(name)}
	pp.BaseProcessor = NewBaseProcessor(name, pp)
	return pp
}

func (p *PassthroughProcessor) HandleFrame(ctx context.Context, frame frames.Frame, direction frames.FrameDirection) error {
	if p.logFrames {
		p.log.Debugf("%s frame %s", direction, frame.Name())
	}
	return p.PushFrame(frame, direction)
}

// TextTransformProcessor rewrites each TextFrame's content through transform
// and forwards every other frame unchanged.
type TextTransformProcessor struct {
	*BaseProcessor
	transform func(string) string
	log       *telemetry.Logger
}

func NewTextTransformProcessor(name string, transform func(string) string) *TextTransformProcessor {
	tp := &TextTransformProcessor{transform: transform, log: telemetry.NewLogger(name)}
	tp.BaseProcessor = NewBaseProcessor(name, tp)
	return tp
}

func (p *TextTransformProcessor) HandleFrame(ctx context.Context, frame frames.Frame, direction frames.FrameDirection) error {
	if textFrame, ok := frame.(*frames.TextFrame); ok {
		transformed := p.transform(textFrame.Text)
		p.log.Debugf("transformed %q -> %q", textFrame.Text, transformed)
		return p.PushFrame(frames.NewTextFrame(transformed), direction)
	}
	return p.PushFrame(frame, direction)
}
