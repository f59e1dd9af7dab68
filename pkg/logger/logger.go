package logger

import (
	"os"
	"sync"

	"github.com/natefinch/lumberjack"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type LogConfig struct {
	Level      string `env:"LOG_LEVEL"`
	Filename   string `env:"LOG_FILENAME"`
	MaxSize    int    `env:"LOG_MAX_SIZE"`
	MaxAge     int    `env:"LOG_MAX_AGE"`
	MaxBackups int    `env:"LOG_MAX_BACKUPS"`
}

var (
	mu     sync.RWMutex
	global = zap.NewNop()
)

// Init builds the process logger. mode "development" switches to a colored
// console encoder; anything else logs JSON.
func Init(cfg LogConfig, mode string) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return nil, err
		}
	}

	var encoder zapcore.Encoder
	if mode == "development" {
		ec := zap.NewDevelopmentEncoderConfig()
		ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(ec)
	} else {
		ec := zap.NewProductionEncoderConfig()
		ec.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder = zapcore.NewJSONEncoder(ec)
	}

	sinks := []zapcore.WriteSyncer{zapcore.AddSync(os.Stdout)}
	if cfg.Filename != "" {
		sinks = append(sinks, zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.Filename,
			MaxSize:    orDefault(cfg.MaxSize, 100),
			MaxAge:     orDefault(cfg.MaxAge, 7),
			MaxBackups: orDefault(cfg.MaxBackups, 5),
			Compress:   true,
		}))
	}

	core := zapcore.NewCore(encoder, zapcore.NewMultiWriteSyncer(sinks...), level)
	lg := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1), zap.AddStacktrace(zapcore.ErrorLevel))

	mu.Lock()
	global = lg
	mu.Unlock()
	return lg, nil
}

// L returns the process logger without the helper caller skip.
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return global.WithOptions(zap.AddCallerSkip(-1))
}

// Named returns a child logger for a component.
func Named(name string) *zap.Logger {
	return L().Named(name)
}

// Set replaces the process logger. Tests use it with zaptest loggers.
func Set(lg *zap.Logger) {
	if lg == nil {
		lg = zap.NewNop()
	}
	mu.Lock()
	global = lg
	mu.Unlock()
}

func current() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return global
}

func Debug(msg string, fields ...zap.Field) { current().Debug(msg, fields...) }
func Info(msg string, fields ...zap.Field)  { current().Info(msg, fields...) }
func Warn(msg string, fields ...zap.Field)  { current().Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { current().Error(msg, fields...) }

func Sync() error {
	return current().Sync()
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
