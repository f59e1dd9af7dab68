package livestream

import (
	"context"
	"encoding/binary"
	"testing"
	"time"

	"Raksha/pkg/errors"
	"Raksha/pkg/websocket"

	"github.com/goccy/go-json"
	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkPublisherForwardsTap(t *testing.T) {
	t.Parallel()
	tap := newFakeTap()
	ch := newFakeChannel()
	p := NewChunkPublisher(tap, 0, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Publish(ctx, ch) }()

	tap.ch <- []byte("one")
	tap.ch <- []byte("two")
	require.Eventually(t, func() bool { return len(ch.binaries()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, [][]byte{[]byte("one"), []byte("two")}, ch.binaries())

	cancel()
	require.NoError(t, <-done)
	<-tap.unsubscribed
	assert.NoError(t, p.Signal(ctx, ch, websocket.Signal{Kind: websocket.KindOffer, SDP: "x"}))
}

func TestChunkPublisherStopsOnSendError(t *testing.T) {
	t.Parallel()
	tap := newFakeTap()
	ch := newFakeChannel()
	require.NoError(t, ch.Close())

	tap.ch <- []byte("frame")
	err := NewChunkPublisher(tap, 4, nil).Publish(context.Background(), ch)
	assert.True(t, errors.IsKind(err, errors.KindUnavailable))
}

// ivf builds a VP8 IVF stream with a 1/1000 timebase.
func ivf(fourcc string, frames ...[]byte) []byte {
	out := make([]byte, 32)
	copy(out, "DKIF")
	binary.LittleEndian.PutUint16(out[6:], 32)
	copy(out[8:], fourcc)
	binary.LittleEndian.PutUint16(out[12:], 640)
	binary.LittleEndian.PutUint16(out[14:], 480)
	binary.LittleEndian.PutUint32(out[16:], 1000)
	binary.LittleEndian.PutUint32(out[20:], 1)
	binary.LittleEndian.PutUint32(out[24:], uint32(len(frames)))
	for i, f := range frames {
		hdr := make([]byte, 12)
		binary.LittleEndian.PutUint32(hdr, uint32(len(f)))
		binary.LittleEndian.PutUint64(hdr[4:], uint64(i*40))
		out = append(out, hdr...)
		out = append(out, f...)
	}
	return out
}

func TestWebRTCPublisherReadsIVF(t *testing.T) {
	t.Parallel()
	tap := newFakeTap()
	p, err := NewWebRTCPublisher(tap, WebRTCConfig{}, nil)
	require.NoError(t, err)

	stream := ivf("VP80", []byte{0x10, 0x02}, []byte{0x11, 0x03})
	// split across tap chunks at an arbitrary offset
	tap.ch <- stream[:20]
	tap.ch <- stream[20:]
	close(tap.ch)

	assert.NoError(t, p.Publish(context.Background(), newFakeChannel()))
}

func TestWebRTCPublisherRejectsCodec(t *testing.T) {
	t.Parallel()
	tap := newFakeTap()
	p, err := NewWebRTCPublisher(tap, WebRTCConfig{}, nil)
	require.NoError(t, err)

	tap.ch <- ivf("H264", []byte{1})
	err = p.Publish(context.Background(), newFakeChannel())
	assert.True(t, errors.IsKind(err, errors.KindInvalid))
}

func TestWebRTCPublisherStopsWithContext(t *testing.T) {
	t.Parallel()
	tap := newFakeTap()
	p, err := NewWebRTCPublisher(tap, WebRTCConfig{}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Publish(ctx, newFakeChannel()) }()
	tap.ch <- ivf("VP80")[:32]
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("publish ignored cancellation")
	}
}

func TestWebRTCPublisherAnswersOffer(t *testing.T) {
	t.Parallel()
	p, err := NewWebRTCPublisher(newFakeTap(), WebRTCConfig{GatherTimeout: 2 * time.Second}, nil)
	require.NoError(t, err)

	viewer, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	require.NoError(t, err)
	defer viewer.Close()
	_, err = viewer.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo,
		webrtc.RTPTransceiverInit{Direction: webrtc.RTPTransceiverDirectionRecvonly})
	require.NoError(t, err)
	offer, err := viewer.CreateOffer(nil)
	require.NoError(t, err)
	require.NoError(t, viewer.SetLocalDescription(offer))

	ch := newFakeChannel()
	err = p.Signal(context.Background(), ch, websocket.Signal{Kind: websocket.KindOffer, SDP: offer.SDP, From: "viewer-1"})
	require.NoError(t, err)
	assert.Equal(t, 1, p.Peers())

	require.Len(t, ch.texts(), 1)
	var answer websocket.Signal
	require.NoError(t, json.Unmarshal(ch.texts()[0], &answer))
	assert.Equal(t, websocket.KindAnswer, answer.Kind)
	assert.Equal(t, "viewer-1", answer.To)
	require.NoError(t, viewer.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: answer.SDP}))

	err = p.Signal(context.Background(), ch, websocket.Signal{Kind: websocket.KindCandidate, Candidate: "x", From: "nobody"})
	assert.True(t, errors.IsKind(err, errors.KindInvalid))

	p.closePeers()
	assert.Zero(t, p.Peers())
}
