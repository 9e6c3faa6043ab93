package transport

import (
	"container/heap"
	"context"
	"math"
	"sync"
	"time"

	"github.com/square-key-labs/strawpipe/src/frames"
	"github.com/square-key-labs/strawpipe/src/telemetry"
)

// botVADStopSecs is the audio worker's idle timeout before it synthesizes a
// BotStoppedSpeaking transition.
const botVADStopSecs = 350 * time.Millisecond

// MediaSender is a self-contained, per-destination actor: an audio queue, a
// priority clock queue, and the two worker goroutines that drain them.
type MediaSender struct {
	destination    string
	transport      *BaseOutputTransport
	sampleRate     int
	audioChunkSize int
	channels       int
	chunks10ms     int

	mu          sync.Mutex
	audioBuffer []byte
	botSpeaking bool
	chunkCount  int

	audioQueue chan frames.Frame
	clockQueue *clockPQ
	clockSig   chan struct{}

	audioCancel context.CancelFunc
	audioDone   chan struct{}
	clockCancel context.CancelFunc
	clockDone   chan struct{}

	log *telemetry.Logger
}

func newMediaSender(destination string, transport *BaseOutputTransport, sampleRate, chunkSize, channels, chunks10ms int) *MediaSender {
	return &MediaSender{
		destination:    destination,
		transport:      transport,
		sampleRate:     sampleRate,
		audioChunkSize: chunkSize,
		channels:       channels,
		chunks10ms:     chunks10ms,
		clockQueue:     newClockPQ(),
		log:            telemetry.NewLogger("MediaSender[" + destination + "]"),
	}
}

// start resets the buffer and spawns fresh audio/clock workers.
func (s *MediaSender) start() {
	s.mu.Lock()
	s.audioBuffer = s.audioBuffer[:0]
	s.mu.Unlock()
	s.spawnWorkers()
}

func (s *MediaSender) spawnWorkers() {
	s.mu.Lock()
	s.audioQueue = make(chan frames.Frame, 256)
	s.clockSig = make(chan struct{}, 1)
	s.clockQueue.reset()
	s.mu.Unlock()

	audioCtx, audioCancel := context.WithCancel(context.Background())
	s.audioCancel = audioCancel
	s.audioDone = make(chan struct{})
	go s.audioTaskHandler(audioCtx)

	clockCtx, clockCancel := context.WithCancel(context.Background())
	s.clockCancel = clockCancel
	s.clockDone = make(chan struct{})
	go s.clockTaskHandler(clockCtx)
}

// stop enqueues an End sentinel on both queues and awaits normal completion,
// draining whatever was already in flight.
func (s *MediaSender) stop() {
	end := frames.NewEndFrame()
	s.clockQueue.push(clockItem{pts: int64(math.MaxInt64), id: end.ID(), frame: end})
	s.signalClock()

	select {
	case s.audioQueue <- end:
	default:
		go func() { s.audioQueue <- end }()
	}

	if s.audioDone != nil {
		<-s.audioDone
	}
	if s.clockDone != nil {
		<-s.clockDone
	}
}

// cancel tears down both workers immediately, without draining.
func (s *MediaSender) cancel() {
	if s.audioCancel != nil {
		s.audioCancel()
	}
	if s.clockCancel != nil {
		s.clockCancel()
	}
	if s.audioDone != nil {
		<-s.audioDone
	}
	if s.clockDone != nil {
		<-s.clockDone
	}
}

// handleInterruption cancels and respawns both workers, discards queued
// audio, and ends any in-progress bot-speaking interval.
func (s *MediaSender) handleInterruption() {
	if !s.transport.interruptionsAllowed() {
		return
	}
	s.cancel()
	s.spawnWorkers()
	s.botStoppedSpeaking()
}

// handleAudioFrame implements §4.6.2: resample, buffer, and slice into
// fixed-size chunks of the same concrete frame type.
func (s *MediaSender) handleAudioFrame(frame frames.AudioDataFrame) {
	if !s.transport.params.AudioOutEnabled {
		return
	}

	resampled := s.transport.resampler().Resample(frame.AudioBytes(), frame.AudioSampleRate(), s.sampleRate)

	s.mu.Lock()
	s.audioBuffer = append(s.audioBuffer, resampled...)
	var chunks []frames.Frame
	for len(s.audioBuffer) >= s.audioChunkSize {
		chunk := make([]byte, s.audioChunkSize)
		copy(chunk, s.audioBuffer[:s.audioChunkSize])
		s.audioBuffer = s.audioBuffer[s.audioChunkSize:]

		newFrame := frame.WithAudio(chunk, s.sampleRate)
		newFrame.SetTransportDestination(s.destination)
		chunks = append(chunks, newFrame)
	}
	s.mu.Unlock()

	for _, c := range chunks {
		s.audioQueue <- c
	}
}

// handleTimedFrame implements §4.6.3: insert into the clock priority queue.
func (s *MediaSender) handleTimedFrame(frame frames.Frame) {
	pts, _ := frame.PTS()
	s.clockQueue.push(clockItem{pts: pts, id: frame.ID(), frame: frame})
	s.signalClock()
}

// handleSyncFrame enqueues directly onto the audio (FIFO) path.
func (s *MediaSender) handleSyncFrame(frame frames.Frame) {
	s.audioQueue <- frame
}

func (s *MediaSender) signalClock() {
	select {
	case s.clockSig <- struct{}{}:
	default:
	}
}

// audioTaskHandler implements the audio worker (§4.6.2): consumes
// audioQueue with a BOT_VAD_STOP_SECS timeout, synthesizing BotStopped on
// idle and BotStarted plus periodic BotSpeaking on TTS audio.
func (s *MediaSender) audioTaskHandler(ctx context.Context) {
	defer close(s.audioDone)
	cadence := botSpeakingCadence(s.chunks10ms)

	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-s.audioQueue:
			if _, ok := frame.(*frames.EndFrame); ok {
				return
			}
			s.onAudioFrame(frame, cadence)
		case <-time.After(botVADStopSecs):
			s.botStoppedSpeaking()
		}
	}
}

func (s *MediaSender) onAudioFrame(frame frames.Frame, cadence int) {
	if _, ok := frame.(*frames.TTSAudioRawFrame); ok {
		s.botStartedSpeaking()
		s.mu.Lock()
		s.chunkCount++
		emit := s.chunkCount%cadence == 0
		s.mu.Unlock()
		if emit {
			_ = s.transport.PushFrame(frames.NewBotSpeakingFrame(), frames.Downstream)
			_ = s.transport.PushFrame(frames.NewBotSpeakingFrame(), frames.Upstream)
		}
	}

	if msg, ok := frame.(*frames.TransportMessageFrame); ok {
		_ = s.transport.wire.SendMessage(msg)
	}

	_ = s.transport.PushFrame(frame, frames.Downstream)

	if audioFrame, ok := frame.(frames.AudioDataFrame); ok {
		_ = s.transport.wire.WriteRawAudioFrames(audioFrame.AudioBytes(), s.destination)
	}
}

// clockTaskHandler implements the clock worker (§4.6.3): pop smallest
// (pts,id), sleep until pts, push downstream.
func (s *MediaSender) clockTaskHandler(ctx context.Context) {
	defer close(s.clockDone)
	for {
		item, ok := s.clockQueue.popWait(ctx, s.clockSig)
		if !ok {
			return
		}
		if _, isEnd := item.frame.(*frames.EndFrame); isEnd {
			return
		}

		now := s.transport.clock.GetTime()
		if item.pts > now {
			select {
			case <-time.After(time.Duration(item.pts-now) * time.Nanosecond):
			case <-ctx.Done():
				return
			}
		}

		select {
		case <-ctx.Done():
			return
		default:
		}
		_ = s.transport.PushFrame(item.frame, frames.Downstream)
	}
}

func (s *MediaSender) botStartedSpeaking() {
	s.mu.Lock()
	if s.botSpeaking {
		s.mu.Unlock()
		return
	}
	s.botSpeaking = true
	s.mu.Unlock()

	frame := frames.NewBotStartedSpeakingFrame()
	frame.SetTransportDestination(s.destination)
	_ = s.transport.PushFrame(frame, frames.Downstream)

	frameUp := frames.NewBotStartedSpeakingFrame()
	frameUp.SetTransportDestination(s.destination)
	_ = s.transport.PushFrame(frameUp, frames.Upstream)
}

func (s *MediaSender) botStoppedSpeaking() {
	s.mu.Lock()
	if !s.botSpeaking {
		s.mu.Unlock()
		return
	}
	s.botSpeaking = false
	s.audioBuffer = s.audioBuffer[:0]
	s.chunkCount = 0
	s.mu.Unlock()

	frame := frames.NewBotStoppedSpeakingFrame()
	frame.SetTransportDestination(s.destination)
	_ = s.transport.PushFrame(frame, frames.Downstream)

	frameUp := frames.NewBotStoppedSpeakingFrame()
	frameUp.SetTransportDestination(s.destination)
	_ = s.transport.PushFrame(frameUp, frames.Upstream)
}

// botSpeakingCadence implements max(1, floor(200 / (chunks10ms*10))).
func botSpeakingCadence(chunks10ms int) int {
	totalChunkMS := chunks10ms * 10
	if totalChunkMS <= 0 {
		return 1
	}
	v := 200 / totalChunkMS
	if v < 1 {
		return 1
	}
	return v
}

// clockItem is one entry in the timed-frame priority queue, ordered by
// (pts, id) ascending.
type clockItem struct {
	pts   int64
	id    uint64
	frame frames.Frame
}

// clockPQ is a mutex-guarded container/heap.Interface implementation plus a
// condition-free pop that waits on an external signal channel (so callers
// can select against ctx.Done() at the same time).
type clockPQ struct {
	mu    sync.Mutex
	items []clockItem
}

func newClockPQ() *clockPQ {
	return &clockPQ{}
}

func (q *clockPQ) reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = nil
}

func (q *clockPQ) push(item clockItem) {
	q.mu.Lock()
	defer q.mu.Unlock()
	heap.Push((*clockHeap)(&q.items), item)
}

// popWait blocks until an item is available, ctx is cancelled, or sig fires
// (a hint that a new item may be available); it always re-checks the heap
// before reporting empty.
func (q *clockPQ) popWait(ctx context.Context, sig chan struct{}) (clockItem, bool) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			item := heap.Pop((*clockHeap)(&q.items)).(clockItem)
			q.mu.Unlock()
			return item, true
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return clockItem{}, false
		case <-sig:
		case <-time.After(10 * time.Millisecond):
			// Bounded poll interval: guards against a push racing between
			// the emptiness check above and the select below.
		}
	}
}

// clockHeap adapts []clockItem to container/heap, ordering by (pts, id).
type clockHeap []clockItem

func (h clockHeap) Len() int { return len(h) }
func (h clockHeap) Less(i, j int) bool {
	if h[i].pts != h[j].pts {
		return h[i].pts < h[j].pts
	}
	return h[i].id < h[j].id
}
func (h clockHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *clockHeap) Push(x any)   { *h = append(*h, x.(clockItem)) }
func (h *clockHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
