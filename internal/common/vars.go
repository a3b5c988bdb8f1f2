package common

import "time"

var (
	DefaultChunkSize         = int64(4 * 1024 * 1024)
	MaxChunkSize             = int64(32 * 1024 * 1024)
	DefaultReplicationFactor = 3
	AliveWindow              = 30 * time.Second
	SweepInterval            = AliveWindow / 3
	GarbageCollectInterval   = 5 * time.Minute
	SnapInterval             = 10 * time.Minute
	StageExpire              = 10 * time.Minute
	HeartbeatInterval        = 5 * time.Second
	ReplicaCallTimeout       = 5 * time.Second
	ReplicaRetry             = 2
	ReplicaRetryBackoff      = 50 * time.Millisecond
	RpcCallTimeout           = 10 * time.Second
	MaxClientRetry           = 2
	ClientRetryBackoff       = 50 * time.Millisecond
	ClientTraceEnable        = false
)
