// Package pipeline composes a linear chain of processors behind synthetic
// source/sink endpoints, and drives it with a PipelineTask runner.
package pipeline

import (
	"context"
	"fmt"

	"github.com/square-key-labs/strawpipe/src/frames"
	"github.com/square-key-labs/strawpipe/src/processors"
	"github.com/square-key-labs/strawpipe/src/telemetry"
)

// PipelineSource is the synthetic head of a pipeline: downstream frames
// queued at the pipeline boundary enter here and flow into P1; frames
// flowing upstream out of P1 are handed back to the owning task.
type PipelineSource struct {
	*processors.BaseProcessor
	task *PipelineTask
}

func newPipelineSource(task *PipelineTask) *PipelineSource {
	ps := &PipelineSource{task: task}
	ps.BaseProcessor = processors.NewBaseProcessor("PipelineSource", ps)
	return ps
}

func (p *PipelineSource) HandleFrame(ctx context.Context, frame frames.Frame, direction frames.FrameDirection) error {
	if direction == frames.Upstream {
		if p.task != nil {
			return p.task.handleUpstreamFrame(frame)
		}
		return nil
	}
	return p.PushFrame(frame, direction)
}

// PipelineSink is the synthetic tail of a pipeline: downstream frames
// flowing out of Pn reach the owning task here; upstream frames injected at
// the pipeline boundary flow back into Pn.
type PipelineSink struct {
	*processors.BaseProcessor
	task *PipelineTask
}

func newPipelineSink(task *PipelineTask) *PipelineSink {
	ps := &PipelineSink{task: task}
	ps.BaseProcessor = processors.NewBaseProcessor("PipelineSink", ps)
	return ps
}

func (p *PipelineSink) HandleFrame(ctx context.Context, frame frames.Frame, direction frames.FrameDirection) error {
	if direction == frames.Downstream {
		if p.task != nil {
			return p.task.handleDownstreamFrame(frame)
		}
		return nil
	}
	return p.PushFrame(frame, direction)
}

// Pipeline is a linear composition of processors with synthetic source/sink
// endpoints. It owns every processor it links.
type Pipeline struct {
	procs  []processors.FrameProcessor
	source *PipelineSource
	sink   *PipelineSink
	log    *telemetry.Logger
}

// NewPipeline builds a pipeline over procs, in order.
func NewPipeline(procs []processors.FrameProcessor) *Pipeline {
	return &Pipeline{procs: procs, log: telemetry.NewLogger("Pipeline")}
}

// Initialize wires the source/sink endpoints around the configured
// processors and links the full chain. Called once by NewPipelineTask.
func (p *Pipeline) Initialize(task *PipelineTask) error {
	p.source = newPipelineSource(task)
	p.sink = newPipelineSink(task)

	chain := make([]processors.FrameProcessor, 0, len(p.procs)+2)
	chain = append(chain, p.source)
	chain = append(chain, p.procs...)
	chain = append(chain, p.sink)

	for i := 0; i < len(chain)-1; i++ {
		chain[i].Link(chain[i+1])
	}

	p.log.Infof("initialized with %d processor(s)", len(p.procs))
	return nil
}

// Start starts every processor in chain order: source, then each configured
// processor, then sink.
func (p *Pipeline) Start(ctx context.Context) error {
	if err := p.source.Start(ctx); err != nil {
		return fmt.Errorf("failed to start source: %w", err)
	}
	for _, proc := range p.procs {
		if err := proc.Start(ctx); err != nil {
			return fmt.Errorf("failed to start processor %s: %w", proc.Name(), err)
		}
	}
	if err := p.sink.Start(ctx); err != nil {
		return fmt.Errorf("failed to start sink: %w", err)
	}
	p.log.Infof("started all processors")
	return nil
}

// Stop stops every processor in reverse chain order and cleans them up.
func (p *Pipeline) Stop() error {
	if err := p.sink.Stop(); err != nil {
		p.log.Errorf("error stopping sink: %v", err)
	}
	for i := len(p.procs) - 1; i >= 0; i-- {
		if err := p.procs[i].Stop(); err != nil {
			p.log.Errorf("error stopping processor %s: %v", p.procs[i].Name(), err)
		}
	}
	if err := p.source.Stop(); err != nil {
		p.log.Errorf("error stopping source: %v", err)
	}

	if err := p.cleanup(); err != nil {
		p.log.Errorf("error during cleanup: %v", err)
	}
	p.log.Infof("stopped all processors")
	return nil
}

func (p *Pipeline) cleanup() error {
	if err := p.sink.Cleanup(); err != nil {
		return err
	}
	for i := len(p.procs) - 1; i >= 0; i-- {
		if err := p.procs[i].Cleanup(); err != nil {
			return err
		}
	}
	return p.source.Cleanup()
}

// QueueFrame injects a downstream frame at the pipeline's source boundary.
func (p *Pipeline) QueueFrame(frame frames.Frame) error {
	return p.source.QueueFrame(frame, frames.Downstream)
}
