package config

import (
	"log"
	"os"
	"time"

	"Raksha/pkg/cache"
	"Raksha/pkg/logger"
	"Raksha/pkg/notification"
	"Raksha/pkg/storage"
	"Raksha/pkg/util"
)

type Config struct {
	Addr          string `env:"ADDR"`
	Mode          string `env:"MODE"`
	DBDriver      string `env:"DB_DRIVER"`
	DSN           string `env:"DSN"`
	SessionSecret string `env:"SESSION_SECRET"`
	Log           logger.LogConfig

	Emergency  EmergencyConfig
	Keyword    KeywordConfig
	Capture    CaptureConfig
	Fanout     FanoutConfig
	Senders    SendersConfig
	Storage    storage.Config
	Livestream LivestreamConfig
	Cache      cache.Config

	GeoIPPath         string        `env:"GEOIP_DB_PATH"`
	GeoIPCacheTTL     time.Duration `env:"GEOIP_CACHE_TTL"`
	PublicIPURL       string        `env:"PUBLIC_IP_URL"`
	RateLimit         string        `env:"RATE_LIMIT"`
	RetentionSchedule string        `env:"CLIP_RETENTION_SCHEDULE"`
	RetentionDays     int           `env:"CLIP_RETENTION_DAYS"`
	DashboardUser     string        `env:"DASHBOARD_USER"`
	DashboardPassword string        `env:"DASHBOARD_PASSWORD"`
	MetricsEnabled    bool          `env:"METRICS_ENABLED"`
}

type EmergencyConfig struct {
	UserID     string        `env:"USER_ID"`
	UserName   string        `env:"USER_NAME"`
	Language   string        `env:"LANGUAGE"`
	Timezone   string        `env:"TIMEZONE"`
	GeoTimeout time.Duration `env:"GEO_TIMEOUT"`
}

type KeywordConfig struct {
	Enabled      bool          `env:"KEYWORD_ENABLED"`
	File         string        `env:"KEYWORD_FILE"`
	Keywords     []string      `env:"KEYWORDS"`
	Debounce     time.Duration `env:"KEYWORD_DEBOUNCE"`
	RestartDelay time.Duration `env:"KEYWORD_RESTART_DELAY"`
	OpenAIKey    string        `env:"OPENAI_API_KEY"`
	OpenAIBase   string        `env:"OPENAI_BASE_URL"`
	Model        string        `env:"WHISPER_MODEL"`
	Window       time.Duration `env:"WHISPER_WINDOW"`
	MicFormat    string        `env:"MIC_FORMAT"`
	MicDevice    string        `env:"MIC_DEVICE"`
}

type CaptureConfig struct {
	FFmpeg          string        `env:"FFMPEG_PATH"`
	VideoFormat     string        `env:"CAPTURE_VIDEO_FORMAT"`
	AudioFormat     string        `env:"CAPTURE_AUDIO_FORMAT"`
	VideoDevice     string        `env:"CAPTURE_VIDEO_DEVICE"`
	AudioDevice     string        `env:"CAPTURE_AUDIO_DEVICE"`
	Container       string        `env:"CAPTURE_CONTAINER"`
	Bitrate         string        `env:"CAPTURE_BITRATE"`
	Video           bool          `env:"CAPTURE_VIDEO"`
	ChunkInterval   time.Duration `env:"CAPTURE_CHUNK_INTERVAL"`
	CompactInterval time.Duration `env:"CAPTURE_COMPACT_INTERVAL"`
	MaxBytes        int64         `env:"CAPTURE_MAX_BYTES"`
	ReplayBytes     int64         `env:"CAPTURE_REPLAY_BYTES"`
}

type FanoutConfig struct {
	Stagger     time.Duration `env:"FANOUT_STAGGER"`
	SendTimeout time.Duration `env:"FANOUT_SEND_TIMEOUT"`
}

type SendersConfig struct {
	// DeepLinks launches sms:/wa.me links on the host instead of gateways.
	DeepLinks bool `env:"DEEPLINK_SENDERS"`
	SMS       notification.SMSGatewayConfig
	WhatsApp  notification.WhatsAppConfig
	Mail      notification.MailConfig
	JPush     notification.JPushConfig
	Breaker   notification.BreakerConfig
	// GuardianAliases are the companion app push aliases.
	GuardianAliases []string `env:"GUARDIAN_PUSH_ALIASES"`
}

type LivestreamConfig struct {
	Enabled bool   `env:"LIVESTREAM_ENABLED"`
	Relay   string `env:"LIVESTREAM_RELAY_URL"`
	// PublicBase prefixes viewer links.
	PublicBase string        `env:"PUBLIC_BASE_URL"`
	Secret     string        `env:"LIVESTREAM_SECRET"`
	LinkTTL    time.Duration `env:"LIVESTREAM_LINK_TTL"`
	Publisher  string        `env:"LIVESTREAM_PUBLISHER"` // chunk or webrtc
	ICEServers []string      `env:"ICE_SERVERS"`
}

var GlobalConfig *Config

func Load() error {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}
	if err := util.LoadEnv(env); err != nil {
		log.Printf("Failed to load .env file: %v", err)
	}

	GlobalConfig = &Config{
		Addr:          util.GetEnvOr("ADDR", ":8080"),
		Mode:          util.GetEnvOr("MODE", "development"),
		DBDriver:      util.GetEnv("DB_DRIVER"),
		DSN:           util.GetEnvOr("DSN", "raksha.db"),
		SessionSecret: util.GetEnv("SESSION_SECRET"),
		Log: logger.LogConfig{
			Level:      util.GetEnvOr("LOG_LEVEL", "info"),
			Filename:   util.GetEnv("LOG_FILENAME"),
			MaxSize:    int(util.GetIntEnv("LOG_MAX_SIZE")),
			MaxAge:     int(util.GetIntEnv("LOG_MAX_AGE")),
			MaxBackups: int(util.GetIntEnv("LOG_MAX_BACKUPS")),
		},
		Emergency: EmergencyConfig{
			UserID:     util.GetEnvOr("USER_ID", "local-user"),
			UserName:   util.GetEnv("USER_NAME"),
			Language:   util.GetEnvOr("LANGUAGE", "en"),
			Timezone:   util.GetEnvOr("TIMEZONE", "Asia/Kolkata"),
			GeoTimeout: util.GetDurationEnvOr("GEO_TIMEOUT", 10*time.Second),
		},
		Keyword: KeywordConfig{
			Enabled:      util.GetBoolEnv("KEYWORD_ENABLED"),
			File:         util.GetEnv("KEYWORD_FILE"),
			Keywords:     util.GetListEnv("KEYWORDS"),
			Debounce:     util.GetDurationEnvOr("KEYWORD_DEBOUNCE", 10*time.Second),
			RestartDelay: util.GetDurationEnvOr("KEYWORD_RESTART_DELAY", time.Second),
			OpenAIKey:    util.GetEnv("OPENAI_API_KEY"),
			OpenAIBase:   util.GetEnv("OPENAI_BASE_URL"),
			Model:        util.GetEnvOr("WHISPER_MODEL", "whisper-1"),
			Window:       util.GetDurationEnvOr("WHISPER_WINDOW", 3*time.Second),
			MicFormat:    util.GetEnvOr("MIC_FORMAT", "pulse"),
			MicDevice:    util.GetEnvOr("MIC_DEVICE", "default"),
		},
		Capture: CaptureConfig{
			FFmpeg:          util.GetEnvOr("FFMPEG_PATH", "ffmpeg"),
			VideoFormat:     util.GetEnvOr("CAPTURE_VIDEO_FORMAT", "v4l2"),
			AudioFormat:     util.GetEnvOr("CAPTURE_AUDIO_FORMAT", "pulse"),
			VideoDevice:     util.GetEnvOr("CAPTURE_VIDEO_DEVICE", "/dev/video0"),
			AudioDevice:     util.GetEnvOr("CAPTURE_AUDIO_DEVICE", "default"),
			Container:       util.GetEnvOr("CAPTURE_CONTAINER", "webm"),
			Bitrate:         util.GetEnv("CAPTURE_BITRATE"),
			Video:           util.GetBoolEnvOr("CAPTURE_VIDEO", true),
			ChunkInterval:   util.GetDurationEnvOr("CAPTURE_CHUNK_INTERVAL", time.Second),
			CompactInterval: util.GetDurationEnvOr("CAPTURE_COMPACT_INTERVAL", 30*time.Second),
			MaxBytes:        util.GetIntEnvOr("CAPTURE_MAX_BYTES", 50<<20),
			ReplayBytes:     util.GetIntEnvOr("CAPTURE_REPLAY_BYTES", 256<<10),
		},
		Fanout: FanoutConfig{
			Stagger:     util.GetDurationEnvOr("FANOUT_STAGGER", 1500*time.Millisecond),
			SendTimeout: util.GetDurationEnvOr("FANOUT_SEND_TIMEOUT", 15*time.Second),
		},
		Senders: SendersConfig{
			DeepLinks: util.GetBoolEnv("DEEPLINK_SENDERS"),
			SMS: notification.SMSGatewayConfig{
				BaseURL:    util.GetEnv("SMS_GATEWAY_URL"),
				AccountSID: util.GetEnv("SMS_ACCOUNT_SID"),
				AuthToken:  util.GetEnv("SMS_AUTH_TOKEN"),
				From:       util.GetEnv("SMS_FROM"),
			},
			WhatsApp: notification.WhatsAppConfig{
				BaseURL:       util.GetEnv("WHATSAPP_API_URL"),
				PhoneNumberID: util.GetEnv("WHATSAPP_PHONE_NUMBER_ID"),
				Token:         util.GetEnv("WHATSAPP_TOKEN"),
			},
			Mail: notification.MailConfig{
				Host:     util.GetEnv("MAIL_HOST"),
				Username: util.GetEnv("MAIL_USERNAME"),
				Password: util.GetEnv("MAIL_PASSWORD"),
				Port:     util.GetIntEnvOr("MAIL_PORT", 587),
				From:     util.GetEnv("MAIL_FROM"),
			},
			JPush: notification.JPushConfig{
				AppKey:       util.GetEnv("JPUSH_APP_KEY"),
				MasterSecret: util.GetEnv("JPUSH_MASTER_SECRET"),
				Endpoint:     util.GetEnv("JPUSH_ENDPOINT"),
			},
			Breaker: notification.BreakerConfig{
				ConsecutiveFailures: uint32(util.GetIntEnvOr("BREAKER_FAILURES", 3)),
				OpenTimeout:         util.GetDurationEnvOr("BREAKER_OPEN_TIMEOUT", 30*time.Second),
				Interval:            util.GetDurationEnvOr("BREAKER_INTERVAL", time.Minute),
			},
			GuardianAliases: util.GetListEnv("GUARDIAN_PUSH_ALIASES"),
		},
		Storage: storage.Config{
			Kind: util.GetEnv("STORAGE_KIND"),
			Local: storage.LocalConfig{
				Root:    util.GetEnvOr("STORAGE_LOCAL_ROOT", "data/clips"),
				BaseURL: util.GetEnv("STORAGE_LOCAL_BASE"),
			},
			Minio: storage.MinioConfig{
				Endpoint:  util.GetEnv("MINIO_ENDPOINT"),
				AccessKey: util.GetEnv("MINIO_ACCESS_KEY"),
				SecretKey: util.GetEnv("MINIO_SECRET_KEY"),
				Bucket:    util.GetEnv("MINIO_BUCKET"),
				UseSSL:    util.GetBoolEnv("MINIO_USE_SSL"),
				BaseURL:   util.GetEnv("MINIO_PUBLIC_BASE"),
			},
			COS: storage.COSConfig{
				BucketURL: util.GetEnv("COS_BUCKET_URL"),
				SecretID:  util.GetEnv("COS_SECRET_ID"),
				SecretKey: util.GetEnv("COS_SECRET_KEY"),
				BaseURL:   util.GetEnv("COS_PUBLIC_BASE"),
			},
		},
		Livestream: LivestreamConfig{
			Enabled:    util.GetBoolEnvOr("LIVESTREAM_ENABLED", true),
			Relay:      util.GetEnvOr("LIVESTREAM_RELAY_URL", "ws://127.0.0.1:8080"),
			PublicBase: util.GetEnvOr("PUBLIC_BASE_URL", "http://127.0.0.1:8080"),
			Secret:     util.GetEnv("LIVESTREAM_SECRET"),
			LinkTTL:    util.GetDurationEnvOr("LIVESTREAM_LINK_TTL", 24*time.Hour),
			Publisher:  util.GetEnvOr("LIVESTREAM_PUBLISHER", "chunk"),
			ICEServers: util.GetListEnv("ICE_SERVERS"),
		},
		Cache: cache.Config{
			Type: util.GetEnv("CACHE_TYPE"),
			Redis: cache.RedisConfig{
				Addr:     util.GetEnvOr("REDIS_ADDR", "127.0.0.1:6379"),
				Password: util.GetEnv("REDIS_PASSWORD"),
				DB:       int(util.GetIntEnv("REDIS_DB")),
				PoolSize: int(util.GetIntEnv("REDIS_POOL_SIZE")),
				Prefix:   util.GetEnvOr("REDIS_PREFIX", "raksha:"),
			},
			Local: cache.LocalConfig{
				MaxSize:           int(util.GetIntEnvOr("LOCAL_CACHE_MAX_SIZE", 1000)),
				DefaultExpiration: util.GetDurationEnvOr("LOCAL_CACHE_DEFAULT_EXPIRATION", 5*time.Minute),
				CleanupInterval:   util.GetDurationEnvOr("LOCAL_CACHE_CLEANUP_INTERVAL", 10*time.Minute),
			},
		},
		GeoIPPath:         util.GetEnv("GEOIP_DB_PATH"),
		GeoIPCacheTTL:     util.GetDurationEnvOr("GEOIP_CACHE_TTL", 10*time.Minute),
		PublicIPURL:       util.GetEnvOr("PUBLIC_IP_URL", "https://api.ipify.org"),
		RateLimit:         util.GetEnvOr("RATE_LIMIT", "10-M"),
		RetentionSchedule: util.GetEnvOr("CLIP_RETENTION_SCHEDULE", "0 3 * * *"),
		RetentionDays:     int(util.GetIntEnvOr("CLIP_RETENTION_DAYS", 30)),
		DashboardUser:     util.GetEnvOr("DASHBOARD_USER", "guardian"),
		DashboardPassword: util.GetEnv("DASHBOARD_PASSWORD"),
		MetricsEnabled:    util.GetBoolEnvOr("METRICS_ENABLED", true),
	}
	return nil
}
