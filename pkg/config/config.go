package config

import "time"

// Server defaults
const (
	DefaultPort          = "8080"
	DefaultReadTimeout   = 10 * time.Second
	DefaultWriteTimeout  = 60 * time.Second
	DefaultReportTimeout = 45 * time.Second
	ShutdownTimeout      = 30 * time.Second
)

// Fetch limits. The remote store never returns more than MaxPageSize rows per
// query, so BatchSize must not exceed it.
const (
	MaxPageSize  = 1000
	BatchSize    = 1000
	MaxFetchRows = 100000
)

// Listing defaults
const (
	DefaultListPageSize = 50
	MaxListPageSize     = MaxPageSize
	MaxListOffset       = 1<<31 - 1
)

// Store defaults
const (
	DefaultStoreKind   = "badger"
	DefaultTable       = "technicians"
	DefaultDataDir     = "./data/techboard"
	DefaultMaxMemoryMB = 48
	DefaultMaxDiskMB   = 1024
	StorePingTimeout   = 5 * time.Second
	BadgerGCInterval   = 10 * time.Minute
)

// Live feed defaults
const (
	DefaultLiveInterval = 15 * time.Second
)

// WebSocket configuration
const (
	WSReadBufferSize  = 1024
	WSWriteBufferSize = 1024
	WSBroadcastBuffer = 256
	WSChannelBuffer   = 10
	WSWriteDeadline   = 10 * time.Second
	WSReadDeadline    = 60 * time.Second
	WSPingInterval    = 30 * time.Second
)
