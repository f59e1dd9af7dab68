package websocket

// Signal kinds exchanged over the relay
const (
	KindResolved    = "resolved"
	KindViewerCount = "viewerCount"
	KindOffer       = "offer"
	KindAnswer      = "answer"
	KindCandidate   = "candidate"
	KindError       = "error"
)

// Room roles
const (
	RolePublisher Role = "publisher"
	RoleViewer    Role = "viewer"
	RoleGuardian  Role = "guardian"
)

const (
	DefaultMaxConnections    = 10000
	DefaultHeartbeatInterval = 30
	DefaultConnectionTimeout = 60
	DefaultMessageBufferSize = 256
	DefaultReadBufferSize    = 4096
	DefaultWriteBufferSize   = 64 * 1024
	DefaultMaxMessageSize    = 64 * 1024

	EnvWebSocketMaxConnections      = "WEBSOCKET_MAX_CONNECTIONS"
	EnvWebSocketHeartbeatInterval   = "WEBSOCKET_HEARTBEAT_INTERVAL"
	EnvWebSocketConnectionTimeout   = "WEBSOCKET_CONNECTION_TIMEOUT"
	EnvWebSocketMessageBufferSize   = "WEBSOCKET_MESSAGE_BUFFER_SIZE"
	EnvWebSocketEnableCompression   = "WEBSOCKET_ENABLE_COMPRESSION"
	EnvWebSocketDropOnFull          = "WEBSOCKET_DROP_ON_FULL"
	EnvWebSocketReadBufferSize      = "WEBSOCKET_READ_BUFFER_SIZE"
	EnvWebSocketWriteBufferSize     = "WEBSOCKET_WRITE_BUFFER_SIZE"
	EnvWebSocketMaxMessageSize      = "WEBSOCKET_MAX_MESSAGE_SIZE"
	EnvWebSocketCloseOnBackpressure = "WEBSOCKET_CLOSE_ON_BACKPRESSURE"
	EnvWebSocketSendTimeoutMs       = "WEBSOCKET_SEND_TIMEOUT_MS"

	RouteStream          = "/ws/stream/:alertID"
	RouteWebSocketStats  = "/ws/stats"
	RouteWebSocketHealth = "/ws/health"
)
