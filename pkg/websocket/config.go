package websocket

import (
	"fmt"
	"time"

	"Raksha/pkg/util"
)

// Config tunes the relay hub.
type Config struct {
	MaxConnections    int64
	HeartbeatInterval time.Duration
	ConnectionTimeout time.Duration
	// Outbound queue length per connection.
	MessageBufferSize int
	ReadBufferSize    int
	WriteBufferSize   int
	// Read limit for viewers and guardians.
	MaxMessageSize int
	// Read limit for publishers, which push media frames.
	MaxFrameSize      int
	EnableCompression bool
	// Drop frames for a full queue instead of waiting SendTimeout.
	DropOnFull bool
	// Disconnect slow consumers once backpressure kicks in.
	CloseOnBackpressure bool
	SendTimeout         time.Duration
}

// DefaultConfig returns the relay defaults.
func DefaultConfig() *Config {
	return &Config{
		MaxConnections:      DefaultMaxConnections,
		HeartbeatInterval:   DefaultHeartbeatInterval * time.Second,
		ConnectionTimeout:   DefaultConnectionTimeout * time.Second,
		MessageBufferSize:   DefaultMessageBufferSize,
		ReadBufferSize:      DefaultReadBufferSize,
		WriteBufferSize:     DefaultWriteBufferSize,
		MaxMessageSize:      DefaultMaxMessageSize,
		MaxFrameSize:        8 << 20,
		EnableCompression:   false,
		DropOnFull:          true,
		CloseOnBackpressure: false,
		SendTimeout:         50 * time.Millisecond,
	}
}

// LoadConfigFromEnv overlays WEBSOCKET_* variables on the defaults.
func LoadConfigFromEnv() *Config {
	config := DefaultConfig()

	if maxConnections := util.GetIntEnv(EnvWebSocketMaxConnections); maxConnections > 0 {
		config.MaxConnections = maxConnections
	}
	if heartbeatInterval := util.GetIntEnv(EnvWebSocketHeartbeatInterval); heartbeatInterval > 0 {
		config.HeartbeatInterval = time.Duration(heartbeatInterval) * time.Second
	}
	if connectionTimeout := util.GetIntEnv(EnvWebSocketConnectionTimeout); connectionTimeout > 0 {
		config.ConnectionTimeout = time.Duration(connectionTimeout) * time.Second
	}
	if messageBufferSize := util.GetIntEnv(EnvWebSocketMessageBufferSize); messageBufferSize > 0 {
		config.MessageBufferSize = int(messageBufferSize)
	}
	if readBuf := util.GetIntEnv(EnvWebSocketReadBufferSize); readBuf > 0 {
		config.ReadBufferSize = int(readBuf)
	}
	if writeBuf := util.GetIntEnv(EnvWebSocketWriteBufferSize); writeBuf > 0 {
		config.WriteBufferSize = int(writeBuf)
	}
	if maxMsg := util.GetIntEnv(EnvWebSocketMaxMessageSize); maxMsg > 0 {
		config.MaxMessageSize = int(maxMsg)
	}
	config.EnableCompression = util.GetBoolEnvOr(EnvWebSocketEnableCompression, config.EnableCompression)
	config.DropOnFull = util.GetBoolEnvOr(EnvWebSocketDropOnFull, config.DropOnFull)
	config.CloseOnBackpressure = util.GetBoolEnvOr(EnvWebSocketCloseOnBackpressure, config.CloseOnBackpressure)
	if sendTimeoutMs := util.GetIntEnv(EnvWebSocketSendTimeoutMs); sendTimeoutMs > 0 {
		config.SendTimeout = time.Duration(sendTimeoutMs) * time.Millisecond
	}
	return config
}

// ValidateConfig rejects settings the hub cannot run with.
func ValidateConfig(config *Config) error {
	if config == nil {
		return fmt.Errorf("config must not be nil")
	}
	if config.MaxConnections <= 0 {
		return fmt.Errorf("max connections must be positive")
	}
	if config.HeartbeatInterval <= 0 {
		return fmt.Errorf("heartbeat interval must be positive")
	}
	if config.ConnectionTimeout <= 0 {
		return fmt.Errorf("connection timeout must be positive")
	}
	if config.MessageBufferSize <= 0 {
		return fmt.Errorf("message buffer size must be positive")
	}
	if config.ReadBufferSize <= 0 || config.WriteBufferSize <= 0 {
		return fmt.Errorf("read/write buffer sizes must be positive")
	}
	if config.MaxMessageSize <= 0 || config.MaxFrameSize <= 0 {
		return fmt.Errorf("message and frame limits must be positive")
	}
	if config.HeartbeatInterval >= config.ConnectionTimeout {
		return fmt.Errorf("heartbeat interval must be shorter than the connection timeout")
	}
	if config.CloseOnBackpressure && !config.DropOnFull && config.SendTimeout <= 0 {
		return fmt.Errorf("close on backpressure needs a send timeout")
	}
	return nil
}

// GetConfigSummary flattens the config for the stats endpoint.
func GetConfigSummary(config *Config) map[string]interface{} {
	return map[string]interface{}{
		"max_connections":       config.MaxConnections,
		"heartbeat_interval":    config.HeartbeatInterval.String(),
		"connection_timeout":    config.ConnectionTimeout.String(),
		"message_buffer_size":   config.MessageBufferSize,
		"read_buffer_size":      config.ReadBufferSize,
		"write_buffer_size":     config.WriteBufferSize,
		"max_message_size":      config.MaxMessageSize,
		"max_frame_size":        config.MaxFrameSize,
		"enable_compression":    config.EnableCompression,
		"drop_on_full":          config.DropOnFull,
		"close_on_backpressure": config.CloseOnBackpressure,
		"send_timeout":          config.SendTimeout.String(),
	}
}

// CloneConfig copies config.
func CloneConfig(config *Config) *Config {
	if config == nil {
		return nil
	}
	out := *config
	return &out
}
