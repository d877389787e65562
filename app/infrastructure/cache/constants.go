package cache

import "time"

const (
	CacheTypeRedis  = "redis"
	CacheTypeValkey = "valkey"
	CacheTypeNone   = "none"
)

const (
	defaultLocalMaxEntries = 10000
	defaultRetryInterval   = 30 * time.Second
	backendTimeout         = 250 * time.Millisecond
	connectTimeout         = 5 * time.Second
	scanBatchSize          = 1000
	maxCompiledPatterns    = 256
)
