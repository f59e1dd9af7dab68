package livestream

import (
	"context"
	"io"
	"sync"
	"time"

	"Raksha/internal/ports"
	"Raksha/pkg/errors"
	"Raksha/pkg/websocket"

	"github.com/pion/webrtc/v3"
	"github.com/pion/webrtc/v3/pkg/media"
	"github.com/pion/webrtc/v3/pkg/media/ivfreader"
	"go.uber.org/zap"
)

// WebRTCConfig configures the WebRTC publisher.
type WebRTCConfig struct {
	ICEServers []string
	// FrameDuration is used when IVF timestamps cannot give one.
	FrameDuration time.Duration
	// GatherTimeout bounds ICE gathering for one answer.
	GatherTimeout time.Duration
}

// WebRTCPublisher answers viewer offers with one peer connection per viewer,
// all sharing a VP8 track fed from the IVF capture tap.
type WebRTCPublisher struct {
	tap   Tap
	cfg   WebRTCConfig
	track *webrtc.TrackLocalStaticSample
	log   *zap.Logger

	mu    sync.Mutex
	peers map[string]*webrtc.PeerConnection
}

func NewWebRTCPublisher(tap Tap, cfg WebRTCConfig, lg *zap.Logger) (*WebRTCPublisher, error) {
	if cfg.FrameDuration <= 0 {
		cfg.FrameDuration = time.Second / 24
	}
	if cfg.GatherTimeout <= 0 {
		cfg.GatherTimeout = 5 * time.Second
	}
	if lg == nil {
		lg = zap.NewNop()
	}
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", "raksha")
	if err != nil {
		return nil, errors.Wrap(err, "create vp8 track")
	}
	return &WebRTCPublisher{
		tap:   tap,
		cfg:   cfg,
		track: track,
		log:   lg,
		peers: make(map[string]*webrtc.PeerConnection),
	}, nil
}

// Publish parses IVF frames off the tap and writes them to the shared track.
func (p *WebRTCPublisher) Publish(ctx context.Context, ch ports.Channel) error {
	defer p.closePeers()

	frames, unsubscribe := p.tap.Subscribe(1024)
	pr, pw := io.Pipe()
	go func() {
		defer unsubscribe()
		for {
			select {
			case <-ctx.Done():
				_ = pw.CloseWithError(ctx.Err())
				return
			case data, ok := <-frames:
				if !ok {
					_ = pw.Close()
					return
				}
				if _, err := pw.Write(data); err != nil {
					return
				}
			}
		}
	}()
	defer pr.Close()

	ivf, header, err := ivfreader.NewWith(pr)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return errors.Mark(err, errors.KindInvalid, "read ivf header")
	}
	if header.FourCC != "VP80" {
		return errors.Newf(errors.KindInvalid, "unsupported ivf codec %q", header.FourCC)
	}

	var prev uint64
	first := true
	for {
		frame, fh, err := ivf.ParseNextFrame()
		if err != nil {
			if ctx.Err() != nil || err == io.EOF {
				return nil
			}
			return errors.Mark(err, errors.KindInvalid, "read ivf frame")
		}
		dur := p.cfg.FrameDuration
		if !first && fh.Timestamp > prev && header.TimebaseDenominator > 0 {
			dur = time.Duration(fh.Timestamp-prev) * time.Second *
				time.Duration(header.TimebaseNumerator) / time.Duration(header.TimebaseDenominator)
		}
		prev, first = fh.Timestamp, false
		if err := p.track.WriteSample(media.Sample{Data: frame, Duration: dur}); err != nil {
			p.log.Debug("write sample", zap.Error(err))
		}
	}
}

// Signal answers a viewer offer or adds its remote candidate.
func (p *WebRTCPublisher) Signal(ctx context.Context, ch ports.Channel, sig websocket.Signal) error {
	switch sig.Kind {
	case websocket.KindOffer:
		return p.answer(ctx, ch, sig)
	case websocket.KindCandidate:
		p.mu.Lock()
		pc := p.peers[sig.From]
		p.mu.Unlock()
		if pc == nil {
			return errors.Newf(errors.KindInvalid, "candidate for unknown viewer %s", sig.From)
		}
		return pc.AddICECandidate(webrtc.ICECandidateInit{Candidate: sig.Candidate})
	}
	return nil
}

func (p *WebRTCPublisher) answer(ctx context.Context, ch ports.Channel, sig websocket.Signal) error {
	pc, err := webrtc.NewPeerConnection(p.configuration())
	if err != nil {
		return errors.Wrap(err, "new peer connection")
	}
	viewer := sig.From
	fail := func(err error, msg string) error {
		_ = pc.Close()
		return errors.Mark(err, errors.KindTransient, msg)
	}

	sender, err := pc.AddTrack(p.track)
	if err != nil {
		return fail(err, "add track")
	}
	go drainRTCP(sender)

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		p.log.Debug("viewer peer state", zap.String("viewer", viewer), zap.String("state", s.String()))
		if s == webrtc.PeerConnectionStateFailed || s == webrtc.PeerConnectionStateClosed {
			p.drop(viewer, pc)
		}
	})

	if err := pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sig.SDP}); err != nil {
		return fail(err, "set remote offer")
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return fail(err, "create answer")
	}
	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		return fail(err, "set local answer")
	}
	select {
	case <-gathered:
	case <-time.After(p.cfg.GatherTimeout):
		p.log.Warn("ice gathering timed out, answering with partial candidates", zap.String("viewer", viewer))
	case <-ctx.Done():
		return fail(ctx.Err(), "answer cancelled")
	}

	p.mu.Lock()
	if old := p.peers[viewer]; old != nil {
		_ = old.Close()
	}
	p.peers[viewer] = pc
	p.mu.Unlock()

	out, err := websocket.Encode(websocket.Signal{
		Kind: websocket.KindAnswer,
		SDP:  pc.LocalDescription().SDP,
		To:   viewer,
	})
	if err != nil {
		return fail(err, "encode answer")
	}
	return ch.Send(ctx, out)
}

func (p *WebRTCPublisher) configuration() webrtc.Configuration {
	cfg := webrtc.Configuration{}
	if len(p.cfg.ICEServers) > 0 {
		cfg.ICEServers = []webrtc.ICEServer{{URLs: p.cfg.ICEServers}}
	}
	return cfg
}

// Peers returns how many viewer peer connections are open.
func (p *WebRTCPublisher) Peers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.peers)
}

func (p *WebRTCPublisher) drop(viewer string, pc *webrtc.PeerConnection) {
	p.mu.Lock()
	if p.peers[viewer] == pc {
		delete(p.peers, viewer)
	}
	p.mu.Unlock()
	_ = pc.Close()
}

func (p *WebRTCPublisher) closePeers() {
	p.mu.Lock()
	peers := p.peers
	p.peers = make(map[string]*webrtc.PeerConnection)
	p.mu.Unlock()
	for _, pc := range peers {
		_ = pc.Close()
	}
}

func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}
