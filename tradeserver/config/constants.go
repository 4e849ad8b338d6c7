package config

import "time"

// Database and Performance Constants
const (
	DefaultQueryTimeout = 30 * time.Second
	BatchQueryTimeout   = 30 * time.Second
	NetworkDialTimeout  = 5 * time.Second
	ShutdownTimeout     = 10 * time.Second

	MaxRetries          = 3
	RetryBaseDelay      = 15 * time.Millisecond
	SettlementCacheSize = 1024
)

// Trade Constants
const (
	DefaultHistoryLimit = 20
	MaxHistoryLimit     = 100

	// Matching sessions older than this are swept when the sweeper is on.
	StaleMatchingAfter = 10 * time.Minute
	SweepInterval      = 1 * time.Minute

	MaxStampIDLength   = 64
	MaxStickerIDLength = 128
	MaxItemQuantity    = 9999
)

// API and Rate Limiting Constants
const (
	DefaultWebAddr      = ":3000"
	DefaultRealtimeAddr = ":3001"

	UserRateLimit   = 60
	RateLimitWindow = 1 * time.Minute

	MaxRequestSize = 1024 * 1024 // 1MB
	RequestTimeout = 30 * time.Second
)

// Realtime Constants
const (
	DefaultChannelPrefix = "trade:"

	WSWriteWait      = 10 * time.Second
	WSPongWait       = 60 * time.Second
	WSPingPeriod     = (WSPongWait * 9) / 10
	WSMaxMessageSize = 4096
	WSSendBuffer     = 256
)

// Security Constants
const (
	TokenExpiration = 24 * time.Hour
)
