package keyword

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"strings"
	"sync"
	"time"

	"Raksha/internal/domain"
	"Raksha/internal/media"
	"Raksha/pkg/errors"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// Transcriber is the slice of the OpenAI client the recognizer uses.
type Transcriber interface {
	CreateTranscription(ctx context.Context, req openai.AudioRequest) (openai.AudioResponse, error)
}

type WhisperConfig struct {
	Model    string
	Language string
	Prompt   string
	// Window is the length of audio sent per transcription request.
	Window time.Duration
	// SilencePeak skips windows whose loudest sample stays below it.
	SilencePeak int16
}

// NewOpenAIClient builds a client for the OpenAI API or a compatible endpoint.
func NewOpenAIClient(apiKey, baseURL string) *openai.Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return openai.NewClientWithConfig(cfg)
}

// WhisperRecognizer cuts microphone PCM into fixed windows and transcribes
// each with the audio transcription API.
type WhisperRecognizer struct {
	client Transcriber
	mic    media.Device
	cfg    WhisperConfig
	log    *zap.Logger
}

func NewWhisperRecognizer(client Transcriber, mic media.Device, cfg WhisperConfig, lg *zap.Logger) *WhisperRecognizer {
	if cfg.Model == "" {
		cfg.Model = openai.Whisper1
	}
	if cfg.Window <= 0 {
		cfg.Window = 3 * time.Second
	}
	if cfg.SilencePeak <= 0 {
		cfg.SilencePeak = 500
	}
	if lg == nil {
		lg = zap.NewNop()
	}
	return &WhisperRecognizer{client: client, mic: mic, cfg: cfg, log: lg}
}

func (r *WhisperRecognizer) Listen(ctx context.Context) (RecognitionStream, error) {
	mic, err := r.mic.Open(ctx, domain.Constraints{Audio: true})
	if err != nil {
		switch errors.KindOf(err) {
		case errors.KindBusy, errors.KindCancelled, errors.KindPermissionDenied:
			return nil, err
		}
		return nil, errors.Mark(err, errors.KindPermissionDenied, "open microphone")
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s := &whisperStream{
		out:    make(chan domain.Transcript, 8),
		done:   make(chan struct{}),
		mic:    mic,
		cancel: cancel,
	}
	go s.run(runCtx, r)
	return s, nil
}

type whisperStream struct {
	out    chan domain.Transcript
	done   chan struct{}
	mic    media.Stream
	cancel context.CancelFunc

	mu  sync.Mutex
	err error

	closeOnce sync.Once
}

func (s *whisperStream) Transcripts() <-chan domain.Transcript { return s.out }
func (s *whisperStream) Done() <-chan struct{}                 { return s.done }

func (s *whisperStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *whisperStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.cancel()
		err = s.mic.Stop()
		<-s.done
	})
	return err
}

func (s *whisperStream) run(ctx context.Context, r *WhisperRecognizer) {
	defer close(s.done)
	defer close(s.out)

	size := int(r.cfg.Window.Seconds()*media.PCMSampleRate) * 2
	buf := make([]byte, size)
	for {
		n, err := io.ReadFull(s.mic, buf)
		if n > 0 && ctx.Err() == nil {
			s.transcribe(ctx, r, buf[:n])
		}
		if err != nil {
			if ctx.Err() == nil {
				s.setErr(errors.Mark(err, errors.KindTransient, "microphone stream ended"))
			}
			return
		}
		if ctx.Err() != nil {
			return
		}
	}
}

func (s *whisperStream) transcribe(ctx context.Context, r *WhisperRecognizer, pcm []byte) {
	if peak(pcm) < r.cfg.SilencePeak {
		return
	}
	resp, err := r.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    r.cfg.Model,
		FilePath: "window.wav",
		Reader:   bytes.NewReader(wav(pcm)),
		Language: r.cfg.Language,
		Prompt:   r.cfg.Prompt,
	})
	if err != nil {
		r.log.Warn("transcription failed", zap.Error(err))
		return
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return
	}
	select {
	case s.out <- domain.Transcript{Text: text, Final: true}:
	case <-ctx.Done():
	}
}

func (s *whisperStream) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func peak(pcm []byte) int16 {
	var max int16
	for i := 0; i+1 < len(pcm); i += 2 {
		v := int16(binary.LittleEndian.Uint16(pcm[i:]))
		if v < 0 {
			v = -v
		}
		if v > max {
			max = v
		}
	}
	return max
}

// wav wraps mono 16-bit PCM in a RIFF header.
func wav(pcm []byte) []byte {
	const channels, bits = 1, 16
	rate := uint32(media.PCMSampleRate)
	out := bytes.NewBuffer(make([]byte, 0, 44+len(pcm)))
	out.WriteString("RIFF")
	_ = binary.Write(out, binary.LittleEndian, uint32(36+len(pcm)))
	out.WriteString("WAVEfmt ")
	_ = binary.Write(out, binary.LittleEndian, uint32(16))
	_ = binary.Write(out, binary.LittleEndian, uint16(1))
	_ = binary.Write(out, binary.LittleEndian, uint16(channels))
	_ = binary.Write(out, binary.LittleEndian, rate)
	_ = binary.Write(out, binary.LittleEndian, rate*channels*bits/8)
	_ = binary.Write(out, binary.LittleEndian, uint16(channels*bits/8))
	_ = binary.Write(out, binary.LittleEndian, uint16(bits))
	out.WriteString("data")
	_ = binary.Write(out, binary.LittleEndian, uint32(len(pcm)))
	out.Write(pcm)
	return out.Bytes()
}
