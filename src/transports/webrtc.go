package transports

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
	"github.com/pion/webrtc/v3/pkg/media"
	"github.com/square-key-labs/strawpipe/src/audio"
	"github.com/square-key-labs/strawpipe/src/clock"
	"github.com/square-key-labs/strawpipe/src/frames"
	"github.com/square-key-labs/strawpipe/src/processors"
	"github.com/square-key-labs/strawpipe/src/telemetry"
	"github.com/square-key-labs/strawpipe/src/transport"
	"gopkg.in/hraban/opus.v2"
)

const (
	webrtcSampleRate   = 48000
	webrtcChannels     = 1
	webrtcFrameSamples = webrtcSampleRate / 50 // 20ms at 48kHz
	webrtcFrameBytes   = webrtcFrameSamples * 2
	rtpBufferSize      = 1500
)

// WebRTCConfig configures a WebRTCTransport.
type WebRTCConfig struct {
	Port       int
	Path       string // HTTP SDP-offer endpoint, defaults to "/webrtc/offer"
	ICEServers []string
	Params     transport.Params
}

// WebRTCTransport is a browser-facing transport: one peer connection per
// client, Opus-encoded audio over negotiated tracks, and a JSON data channel
// carrying control frames (interruption, end). It speaks plain HTTP
// offer/answer signaling rather than trickle ICE: the client POSTs an SDP
// offer and gets back the fully-gathered SDP answer.
type WebRTCTransport struct {
	port       int
	path       string
	iceServers []string

	input  *transport.BaseInputTransport
	output *transport.BaseOutputTransport

	server *http.Server

	mu          sync.Mutex
	pc          *webrtc.PeerConnection
	control     *webrtc.DataChannel
	localTracks map[string]*webrtc.TrackLocalStaticSample
	encoder     *opus.Encoder
	decoder     *opus.Decoder

	outBufMu sync.Mutex
	outBuf   map[string][]byte

	log *telemetry.Logger
}

func NewWebRTCTransport(config WebRTCConfig) *WebRTCTransport {
	if config.Path == "" {
		config.Path = "/webrtc/offer"
	}
	config.Params.AudioInSampleRate = webrtcSampleRate
	config.Params.AudioOutSampleRate = webrtcSampleRate
	config.Params.AudioOutChannels = webrtcChannels

	t := &WebRTCTransport{
		port:        config.Port,
		path:        config.Path,
		iceServers:  config.ICEServers,
		localTracks: make(map[string]*webrtc.TrackLocalStaticSample),
		outBuf:      make(map[string][]byte),
		log:         telemetry.NewLogger("WebRTCTransport"),
	}

	t.input = transport.NewBaseInputTransport("WebRTCInput", config.Params)
	t.output = transport.NewBaseOutputTransport("WebRTCOutput", config.Params, t, clock.NewSystemClock())
	return t
}

func (t *WebRTCTransport) Input() processors.FrameProcessor  { return t.input }
func (t *WebRTCTransport) Output() processors.FrameProcessor { return t.output }

func (t *WebRTCTransport) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc(t.path, t.handleOffer)

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
		return fmt.Errorf("webrtc signaling server: %w", err)
	}
	return nil
}

func (t *WebRTCTransport) Stop() error {
	t.mu.Lock()
	if t.pc != nil {
		t.pc.Close()
		t.pc = nil
	}
	t.mu.Unlock()
	if t.server == nil {
		return nil
	}
	return t.server.Shutdown(context.Background())
}

type webrtcOfferRequest struct {
	SDP             string   `json:"sdp"`
	OutDestinations []string `json:"outDestinations,omitempty"`
}

type webrtcAnswerResponse struct {
	SDP string `json:"sdp"`
}

// handleOffer accepts a client SDP offer over HTTP, negotiates one audio
// track per destination (plus the default ""), and responds with the fully
// ICE-gathered SDP answer once negotiation completes.
func (t *WebRTCTransport) handleOffer(w http.ResponseWriter, r *http.Request) {
	var req webrtcOfferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("decode offer: %v", err), http.StatusBadRequest)
		return
	}

	encoder, err := opus.NewEncoder(webrtcSampleRate, webrtcChannels, opus.AppVoIP)
	if err != nil {
		http.Error(w, fmt.Sprintf("create opus encoder: %v", err), http.StatusInternalServerError)
		return
	}
	decoder, err := opus.NewDecoder(webrtcSampleRate, webrtcChannels)
	if err != nil {
		http.Error(w, fmt.Sprintf("create opus decoder: %v", err), http.StatusInternalServerError)
		return
	}

	iceServers := make([]webrtc.ICEServer, 0, len(t.iceServers))
	for _, url := range t.iceServers {
		iceServers = append(iceServers, webrtc.ICEServer{URLs: []string{url}})
	}

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{ICEServers: iceServers})
	if err != nil {
		http.Error(w, fmt.Sprintf("create peer connection: %v", err), http.StatusInternalServerError)
		return
	}

	destinations := append([]string{""}, req.OutDestinations...)
	localTracks := make(map[string]*webrtc.TrackLocalStaticSample, len(destinations))
	for _, dest := range destinations {
		trackID := "audio"
		if dest != "" {
			trackID = "audio-" + dest
		}
		track, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: webrtcSampleRate, Channels: webrtcChannels},
			trackID, "strawpipe",
		)
		if err != nil {
			http.Error(w, fmt.Sprintf("create local track: %v", err), http.StatusInternalServerError)
			return
		}
		if _, err := pc.AddTrack(track); err != nil {
			http.Error(w, fmt.Sprintf("add track: %v", err), http.StatusInternalServerError)
			return
		}
		localTracks[dest] = track
	}

	control, err := pc.CreateDataChannel("control", nil)
	if err != nil {
		http.Error(w, fmt.Sprintf("create control channel: %v", err), http.StatusInternalServerError)
		return
	}

	t.mu.Lock()
	if t.pc != nil {
		t.pc.Close()
	}
	t.pc = pc
	t.control = control
	t.localTracks = localTracks
	t.encoder = encoder
	t.decoder = decoder
	t.mu.Unlock()

	pc.OnTrack(func(remote *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		if remote.Kind() != webrtc.RTPCodecTypeAudio {
			return
		}
		go t.readRemoteAudio(remote)
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		t.log.Infof("connection state: %s", state)
		if state == webrtc.PeerConnectionStateFailed || state == webrtc.PeerConnectionStateClosed {
			t.input.PushFrame(frames.NewEndFrame(), frames.Downstream)
		}
	})

	gatherComplete := webrtc.GatheringCompletePromise(pc)

	if err := pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: req.SDP}); err != nil {
		http.Error(w, fmt.Sprintf("set remote description: %v", err), http.StatusBadRequest)
		return
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		http.Error(w, fmt.Sprintf("create answer: %v", err), http.StatusInternalServerError)
		return
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		http.Error(w, fmt.Sprintf("set local description: %v", err), http.StatusInternalServerError)
		return
	}

	select {
	case <-gatherComplete:
	case <-time.After(5 * time.Second):
		t.log.Warnf("ICE gathering timed out, answering with partial candidates")
	}

	t.input.PushFrame(frames.NewStartFrame(true, webrtcSampleRate, webrtcSampleRate), frames.Downstream)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(webrtcAnswerResponse{SDP: pc.LocalDescription().SDP})
}

// readRemoteAudio decodes incoming Opus RTP packets to PCM and feeds them
// into the input transport. One goroutine per negotiated remote track.
func (t *WebRTCTransport) readRemoteAudio(remote *webrtc.TrackRemote) {
	buf := make([]byte, rtpBufferSize)
	pcm := make([]int16, webrtcFrameSamples*4)

	for {
		n, _, err := remote.Read(buf)
		if err != nil {
			return
		}

		pkt := &rtp.Packet{}
		if err := pkt.Unmarshal(buf[:n]); err != nil {
			continue
		}
		if len(pkt.Payload) == 0 {
			continue
		}

		t.mu.Lock()
		decoder := t.decoder
		t.mu.Unlock()
		if decoder == nil {
			return
		}

		samples, err := decoder.Decode(pkt.Payload, pcm)
		if err != nil {
			t.log.Warnf("opus decode: %v", err)
			continue
		}

		t.input.PushAudio(audio.PCMToBytes(pcm[:samples]))
	}
}

// WriteRawAudioFrames implements transport.WireWriter: PCM is accumulated
// per destination until a full 20ms Opus frame is available, then encoded
// and written to that destination's local track.
func (t *WebRTCTransport) WriteRawAudioFrames(pcmBytes []byte, destination string) error {
	t.outBufMu.Lock()
	buf := append(t.outBuf[destination], pcmBytes...)

	var chunks [][]byte
	for len(buf) >= webrtcFrameBytes {
		chunks = append(chunks, buf[:webrtcFrameBytes])
		buf = buf[webrtcFrameBytes:]
	}
	t.outBuf[destination] = buf
	t.outBufMu.Unlock()

	t.mu.Lock()
	track, ok := t.localTracks[destination]
	encoder := t.encoder
	t.mu.Unlock()
	if !ok || encoder == nil {
		return nil
	}

	opusBuf := make([]byte, 4000)
	for _, pcmFrame := range chunks {
		pcm, err := audio.BytesToPCM(pcmFrame)
		if err != nil {
			return fmt.Errorf("decode pcm for webrtc: %w", err)
		}
		n, err := encoder.Encode(pcm, opusBuf)
		if err != nil {
			return fmt.Errorf("opus encode: %w", err)
		}
		sample := make([]byte, n)
		copy(sample, opusBuf[:n])
		if err := track.WriteSample(media.Sample{Data: sample, Duration: 20 * time.Millisecond}); err != nil {
			return fmt.Errorf("write webrtc sample: %w", err)
		}
	}
	return nil
}

// controlMessage is the JSON envelope sent over the "control" data channel.
type controlMessage struct {
	Type string `json:"type"`
}

// SendMessage implements transport.WireWriter for control frames, relayed
// over the peer connection's data channel since WebRTC has no dedicated
// signaling channel for in-band events.
func (t *WebRTCTransport) SendMessage(frame frames.Frame) error {
	t.mu.Lock()
	control := t.control
	t.mu.Unlock()
	if control == nil {
		return nil
	}
	data, err := json.Marshal(controlMessage{Type: frame.Name()})
	if err != nil {
		return fmt.Errorf("marshal control message: %w", err)
	}
	return control.SendText(string(data))
}
