package media

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"Raksha/internal/domain"
	"Raksha/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScript(t *testing.T, name, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o755))
	return path
}

func TestFFmpegDeviceOpenReadStop(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "capture.sh", "#!/usr/bin/env bash\nprintf 'frames'\nsleep 5\n")
	dev := NewFFmpegDevice(FFmpegConfig{Command: script})

	s, err := dev.Open(context.Background(), domain.DefaultConstraints())
	require.NoError(t, err)
	assert.Equal(t, 2, s.ActiveTracks())
	assert.Equal(t, "video/webm", s.ContentType())

	buf := make([]byte, 16)
	n, _ := s.Read(buf)
	assert.Equal(t, "frames", string(buf[:n]))

	require.NoError(t, s.Stop())
	assert.Equal(t, 0, s.ActiveTracks())
	require.NoError(t, s.Stop(), "stop is idempotent")
}

func TestFFmpegDevicePermissionDenied(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "denied.sh", "#!/usr/bin/env bash\necho '/dev/video0: Permission denied' 1>&2\nexit 1\n")
	dev := NewFFmpegDevice(FFmpegConfig{Command: script})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := dev.Open(ctx, domain.DefaultConstraints())
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindPermissionDenied))
	assert.Contains(t, err.Error(), "exited before capture started")
}

func TestFFmpegDeviceBusy(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "busy.sh", "#!/usr/bin/env bash\necho 'Device or resource busy' 1>&2\nexit 1\n")
	_, err := NewFFmpegDevice(FFmpegConfig{Command: script}).Open(context.Background(), domain.DefaultConstraints())
	assert.True(t, errors.IsKind(err, errors.KindBusy))
}

func TestFFmpegArgsIVFDropsAudio(t *testing.T) {
	t.Parallel()

	dev := NewFFmpegDevice(FFmpegConfig{Container: ContainerIVF})
	args := strings.Join(dev.Args(domain.DefaultConstraints()), " ")
	assert.Contains(t, args, "-f v4l2 -i /dev/video0")
	assert.NotContains(t, args, "pulse")
	assert.True(t, strings.HasSuffix(args, "-f ivf -"))

	webm := strings.Join(NewFFmpegDevice(FFmpegConfig{}).Args(domain.DefaultConstraints()), " ")
	assert.Contains(t, webm, "-f pulse -i default")
	assert.Contains(t, webm, "-c:a libopus")
}

func TestFFmpegDeviceRejectsEmptyConstraints(t *testing.T) {
	t.Parallel()

	_, err := NewFFmpegDevice(FFmpegConfig{}).Open(context.Background(), domain.Constraints{})
	assert.True(t, errors.IsKind(err, errors.KindInvalid))

	_, err = NewFFmpegDevice(FFmpegConfig{Container: ContainerIVF}).Open(context.Background(), domain.Constraints{Audio: true})
	assert.True(t, errors.IsKind(err, errors.KindInvalid))
}

func TestFFmpegArgsPCM(t *testing.T) {
	t.Parallel()

	args := strings.Join(NewFFmpegDevice(FFmpegConfig{Container: ContainerPCM}).Args(domain.DefaultConstraints()), " ")
	assert.NotContains(t, args, "v4l2")
	assert.True(t, strings.HasSuffix(args, "-ac 1 -ar 16000 -f s16le -"))
}
