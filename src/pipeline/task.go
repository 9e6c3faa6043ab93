package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/square-key-labs/strawpipe/src/frames"
	"github.com/square-key-labs/strawpipe/src/telemetry"
)

// PipelineTaskConfig configures the StartFrame a PipelineTask injects.
type PipelineTaskConfig struct {
	AllowInterruptions bool
	AudioInSampleRate  int
	AudioOutSampleRate int
}

// DefaultPipelineTaskConfig returns sensible defaults for a voice pipeline.
func DefaultPipelineTaskConfig() *PipelineTaskConfig {
	return &PipelineTaskConfig{
		AllowInterruptions: true,
		AudioInSampleRate:  16000,
		AudioOutSampleRate: 16000,
	}
}

// PipelineTask is the embedder that drives a Pipeline: it injects StartFrame,
// lets the caller queue further frames, and awaits EndFrame/CancelFrame.
type PipelineTask struct {
	pipeline *Pipeline
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	config *PipelineTaskConfig

	userFrameQueue chan frames.Frame

	mu       sync.RWMutex
	started  bool
	finished bool

	onStarted  func()
	onFinished func()
	onError    func(error)

	log *telemetry.Logger
}

// NewPipelineTask creates a task over pipeline with default configuration.
func NewPipelineTask(pipeline *Pipeline) *PipelineTask {
	return NewPipelineTaskWithConfig(pipeline, DefaultPipelineTaskConfig())
}

// NewPipelineTaskWithConfig creates a task over pipeline with explicit
// configuration and initializes the pipeline's source/sink endpoints.
func NewPipelineTaskWithConfig(pipeline *Pipeline, config *PipelineTaskConfig) *PipelineTask {
	task := &PipelineTask{
		pipeline:       pipeline,
		config:         config,
		userFrameQueue: make(chan frames.Frame, 100),
		log:            telemetry.NewLogger("PipelineTask"),
	}
	pipeline.Initialize(task)
	return task
}

func (t *PipelineTask) OnStarted(callback func())       { t.onStarted = callback }
func (t *PipelineTask) OnFinished(callback func())      { t.onFinished = callback }
func (t *PipelineTask) OnError(callback func(error))    { t.onError = callback }

// QueueFrame lets the embedder inject a frame downstream once the task has
// started.
func (t *PipelineTask) QueueFrame(frame frames.Frame) error {
	t.mu.RLock()
	started, finished, ctx := t.started, t.finished, t.ctx
	t.mu.RUnlock()

	if !started {
		return fmt.Errorf("pipeline not started")
	}
	if finished {
		return fmt.Errorf("pipeline already finished")
	}

	select {
	case t.userFrameQueue <- frame:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run starts the pipeline, injects StartFrame, and blocks until EndFrame or
// CancelFrame reaches the sink (or ctx is cancelled).
func (t *PipelineTask) Run(ctx context.Context) error {
	t.mu.Lock()
	if t.started {
		t.mu.Unlock()
		return fmt.Errorf("pipeline already started")
	}
	t.started = true
	t.ctx, t.cancel = context.WithCancel(ctx)
	t.mu.Unlock()

	t.log.Infof("starting pipeline")

	if err := t.pipeline.Start(t.ctx); err != nil {
		return fmt.Errorf("failed to start pipeline: %w", err)
	}

	t.wg.Add(1)
	go t.processUserFrames()

	start := frames.NewStartFrame(
		t.config.AllowInterruptions,
		t.config.AudioInSampleRate,
		t.config.AudioOutSampleRate,
	)
	if err := t.pipeline.QueueFrame(start); err != nil {
		return fmt.Errorf("failed to queue start frame: %w", err)
	}

	t.wg.Wait()

	if err := t.pipeline.Stop(); err != nil {
		t.log.Errorf("error stopping pipeline: %v", err)
	}

	t.log.Infof("pipeline finished")
	return nil
}

// Cancel requests immediate, abortive shutdown.
func (t *PipelineTask) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		t.log.Infof("cancelling pipeline")
		t.cancel()
	}
}

func (t *PipelineTask) processUserFrames() {
	defer t.wg.Done()
	for {
		select {
		case <-t.ctx.Done():
			return
		case frame := <-t.userFrameQueue:
			if err := t.pipeline.QueueFrame(frame); err != nil {
				t.log.Errorf("error queuing user frame: %v", err)
				if t.onError != nil {
					t.onError(err)
				}
			}
		}
	}
}

// handleDownstreamFrame reacts to frames that reached the pipeline sink.
func (t *PipelineTask) handleDownstreamFrame(frame frames.Frame) error {
	switch f := frame.(type) {
	case *frames.StartFrame:
		t.log.Infof("pipeline started")
		if t.onStarted != nil {
			t.onStarted()
		}

	case *frames.EndFrame:
		t.log.Infof("end frame reached sink, finishing pipeline")
		t.markFinished()
		t.Cancel()

	case *frames.CancelFrame:
		t.log.Infof("cancel frame reached sink, stopping immediately")
		t.markFinished()
		t.Cancel()

	case *frames.ErrorFrame:
		t.log.Errorf("error frame received: %v (fatal=%v)", f.Err, f.Fatal)
		if t.onError != nil {
			t.onError(f.Err)
		}
		if f.Fatal {
			t.markFinished()
			t.Cancel()
		}
	}
	return nil
}

// handleUpstreamFrame reacts to frames pushed upstream out of the pipeline.
func (t *PipelineTask) handleUpstreamFrame(frame frames.Frame) error {
	if f, ok := frame.(*frames.ErrorFrame); ok {
		t.log.Errorf("upstream error frame: %v (fatal=%v)", f.Err, f.Fatal)
		if t.onError != nil {
			t.onError(f.Err)
		}
		if f.Fatal {
			t.markFinished()
			t.Cancel()
		}
	}
	return nil
}

func (t *PipelineTask) markFinished() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.finished {
		t.finished = true
		if t.onFinished != nil {
			t.onFinished()
		}
	}
}
