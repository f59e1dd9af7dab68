package media

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"Raksha/internal/domain"
	"Raksha/pkg/errors"
)

// Container selects the ffmpeg output format.
type Container string

const (
	// ContainerIVF is VP8 video only and can be fed to the WebRTC publisher.
	ContainerIVF Container = "ivf"
	// ContainerWebM carries VP8 video and Opus audio.
	ContainerWebM Container = "webm"
	// ContainerPCM is raw mono s16le audio for speech recognition.
	ContainerPCM Container = "s16le"
)

const PCMSampleRate = 16000

type FFmpegConfig struct {
	Command     string
	VideoFormat string // v4l2, avfoundation, dshow
	AudioFormat string // pulse, alsa
	Container   Container
	Bitrate     string
	// StartupGrace is how long the process must survive before Open returns.
	StartupGrace time.Duration
	StopGrace    time.Duration
}

// FFmpegDevice captures camera and microphone through an ffmpeg child process
// writing the encoded stream to stdout.
type FFmpegDevice struct {
	cfg FFmpegConfig
}

func NewFFmpegDevice(cfg FFmpegConfig) *FFmpegDevice {
	if cfg.Command == "" {
		cfg.Command = "ffmpeg"
	}
	if cfg.VideoFormat == "" {
		cfg.VideoFormat = "v4l2"
	}
	if cfg.AudioFormat == "" {
		cfg.AudioFormat = "pulse"
	}
	if cfg.Container == "" {
		cfg.Container = ContainerWebM
	}
	if cfg.Bitrate == "" {
		cfg.Bitrate = "800k"
	}
	if cfg.StartupGrace <= 0 {
		cfg.StartupGrace = 250 * time.Millisecond
	}
	if cfg.StopGrace <= 0 {
		cfg.StopGrace = 1200 * time.Millisecond
	}
	return &FFmpegDevice{cfg: cfg}
}

func (d *FFmpegDevice) Args(c domain.Constraints) []string {
	video, audio := d.tracks(c)
	args := []string{"-nostdin", "-hide_banner", "-loglevel", "warning"}
	if video {
		dev := c.VideoDevice
		if dev == "" {
			dev = "/dev/video0"
		}
		if c.Width > 0 && c.Height > 0 {
			args = append(args, "-video_size", fmt.Sprintf("%dx%d", c.Width, c.Height))
		}
		if c.FrameRate > 0 {
			args = append(args, "-framerate", strconv.Itoa(c.FrameRate))
		}
		args = append(args, "-f", d.cfg.VideoFormat, "-i", dev)
	}
	if audio {
		dev := c.AudioDevice
		if dev == "" {
			dev = "default"
		}
		args = append(args, "-f", d.cfg.AudioFormat, "-i", dev)
	}
	if video {
		args = append(args, "-c:v", "libvpx", "-deadline", "realtime", "-b:v", d.cfg.Bitrate)
	}
	switch d.cfg.Container {
	case ContainerPCM:
		args = append(args, "-ac", "1", "-ar", strconv.Itoa(PCMSampleRate))
	case ContainerWebM:
		if audio {
			args = append(args, "-c:a", "libopus")
		}
	}
	return append(args, "-f", string(d.cfg.Container), "-")
}

// tracks resolves which inputs the container can carry: IVF is video only,
// PCM is audio only.
func (d *FFmpegDevice) tracks(c domain.Constraints) (video, audio bool) {
	switch d.cfg.Container {
	case ContainerIVF:
		return c.Video, false
	case ContainerPCM:
		return false, c.Audio
	}
	return c.Video, c.Audio
}

func (d *FFmpegDevice) Open(ctx context.Context, c domain.Constraints) (Stream, error) {
	video, audio := d.tracks(c)
	if !video && !audio {
		return nil, errors.Newf(errors.KindInvalid, "constraints select no track for %s output", d.cfg.Container)
	}
	tracks := 0
	if video {
		tracks++
	}
	if audio {
		tracks++
	}

	cmd := exec.Command(d.cfg.Command, d.Args(c)...)
	var stderr syncBuffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, errors.Mark(err, errors.KindUnavailable, "start ffmpeg")
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
		close(waitErr)
	}()

	select {
	case err := <-waitErr:
		return nil, classifyStartFailure(err, stderr.String())
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		<-waitErr
		return nil, errors.Mark(ctx.Err(), errors.KindCancelled, "open capture")
	case <-time.After(d.cfg.StartupGrace):
	}

	return &ffmpegStream{
		stdout:      stdout,
		stderr:      &stderr,
		process:     cmd.Process,
		waitErr:     waitErr,
		tracks:      tracks,
		contentType: contentTypeOf(d.cfg.Container, c),
		grace:       d.cfg.StopGrace,
	}, nil
}

type ffmpegStream struct {
	stdout      io.ReadCloser
	stderr      *syncBuffer
	process     *os.Process
	waitErr     <-chan error
	contentType string
	grace       time.Duration

	mu     sync.Mutex
	tracks int

	stopOnce sync.Once
	stopErr  error
}

func (s *ffmpegStream) Read(p []byte) (int, error) { return s.stdout.Read(p) }

func (s *ffmpegStream) ContentType() string { return s.contentType }

func (s *ffmpegStream) ActiveTracks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracks
}

// Stop interrupts ffmpeg so it finalizes the container, killing it after the
// grace period.
func (s *ffmpegStream) Stop() error {
	s.stopOnce.Do(func() {
		_ = s.process.Signal(os.Interrupt)
		select {
		case err, ok := <-s.waitErr:
			if ok {
				s.stopErr = normalizeStopErr(err)
			}
		case <-time.After(s.grace):
			_ = s.process.Kill()
			if err, ok := <-s.waitErr; ok {
				s.stopErr = normalizeStopErr(err)
			}
		}
		s.mu.Lock()
		s.tracks = 0
		s.mu.Unlock()

		if s.stopErr != nil && s.stderr.Len() > 0 {
			s.stopErr = fmt.Errorf("%w: %s", s.stopErr, strings.TrimSpace(s.stderr.String()))
		}
	})
	return s.stopErr
}

func classifyStartFailure(err error, stderr string) error {
	msg := strings.TrimSpace(stderr)
	low := strings.ToLower(msg)
	kind := errors.KindUnavailable
	switch {
	case strings.Contains(low, "permission denied"), strings.Contains(low, "access denied"):
		kind = errors.KindPermissionDenied
	case strings.Contains(low, "device or resource busy"):
		kind = errors.KindBusy
	}
	if err == nil {
		err = fmt.Errorf("exit status 0")
	}
	return errors.Mark(fmt.Errorf("%w: %s", err, msg), kind, "ffmpeg exited before capture started")
}

func normalizeStopErr(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

func contentTypeOf(c Container, k domain.Constraints) string {
	switch {
	case c == ContainerIVF:
		return "video/x-ivf"
	case c == ContainerPCM:
		return "audio/L16"
	case !k.Video:
		return "audio/webm"
	}
	return "video/webm"
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *syncBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Len()
}
