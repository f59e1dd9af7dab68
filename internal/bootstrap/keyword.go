package bootstrap

import (
	"context"

	"Raksha/internal/domain"
	"Raksha/internal/keyword"
	"Raksha/internal/media"
	"Raksha/internal/ports"
	"Raksha/pkg/config"
	"Raksha/pkg/errors"

	"go.uber.org/zap"
)

// micDevice pins the recognizer to the configured input.
type micDevice struct {
	media.Device
	input string
}

func (d micDevice) Open(ctx context.Context, c domain.Constraints) (media.Stream, error) {
	if c.AudioDevice == "" {
		c.AudioDevice = d.input
	}
	return d.Device.Open(ctx, c)
}

// keywordCfg prefers the keyword file and falls back to the environment.
func keywordCfg(cfg config.KeywordConfig) (keyword.Config, error) {
	if cfg.File != "" {
		kc, err := keyword.LoadFile(cfg.File)
		if err != nil {
			return keyword.Config{}, errors.Mark(err, errors.KindInvalid, "keyword file")
		}
		if kc.Debounce <= 0 {
			kc.Debounce = cfg.Debounce
		}
		if kc.RestartDelay <= 0 {
			kc.RestartDelay = cfg.RestartDelay
		}
		return kc, nil
	}
	return keyword.Config{
		Keywords:     cfg.Keywords,
		Debounce:     cfg.Debounce,
		RestartDelay: cfg.RestartDelay,
	}, nil
}

func (a *App) keywordSpotter(ctx context.Context, cfg *config.Config, sink ports.EventSink) (*keyword.Spotter, error) {
	if cfg.Keyword.OpenAIKey == "" {
		return nil, errors.New(errors.KindInvalid, "KEYWORD_ENABLED needs OPENAI_API_KEY")
	}
	kc, err := keywordCfg(cfg.Keyword)
	if err != nil {
		return nil, err
	}

	mic := micDevice{
		Device: media.NewFFmpegDevice(media.FFmpegConfig{
			Command:     cfg.Capture.FFmpeg,
			AudioFormat: cfg.Keyword.MicFormat,
			Container:   media.ContainerPCM,
		}),
		input: cfg.Keyword.MicDevice,
	}
	lg := a.log.Named("keyword")
	rec := keyword.NewWhisperRecognizer(keyword.NewOpenAIClient(cfg.Keyword.OpenAIKey, cfg.Keyword.OpenAIBase), mic, keyword.WhisperConfig{
		Model:    cfg.Keyword.Model,
		Language: cfg.Emergency.Language,
		Window:   cfg.Keyword.Window,
	}, lg)

	machine := a.machine
	onDistress := func(d keyword.Detection) {
		lg.Info("distress keyword heard", zap.String("keyword", d.Keyword), zap.Float64("confidence", d.Confidence))
		machine.HandleDetection(ctx, d.Keyword, d.Text, d.At)
	}
	return keyword.NewSpotter(rec, kc, onDistress,
		keyword.WithLogger(lg),
		keyword.WithErrorHandler(func(err error) { sink.Error("keyword", err) }),
	), nil
}
