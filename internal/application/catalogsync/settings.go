package catalogsync

import (
	"time"
)

// Engine defaults
const (
	DefaultBatchSize      = 25
	DefaultMaxRetries     = 3
	DefaultChunkInterval  = 500 * time.Millisecond
	DefaultChunkTimeout   = 60 * time.Second
	DefaultQueueBatchSize = 50
	DefaultMaxPushPasses  = 5
	DefaultStaleAfter     = 30 * time.Minute
	// DefaultProcessingLease is how long a claimed queue item may stay in processing
	DefaultProcessingLease = 15 * time.Minute
)

// Settings tunes the sync engine
type Settings struct {
	// BatchSize is the number of ids fetched per pull chunk
	BatchSize int
	// MaxRetries is the max_attempts of newly queued items
	MaxRetries int
	// ChunkInterval is the minimum spacing between two pull chunks
	ChunkInterval time.Duration
	// ChunkTimeout bounds one chunk fetch
	ChunkTimeout time.Duration
	// QueueBatchSize is the number of due items taken per processing pass
	QueueBatchSize int
	// MaxPushPasses bounds the processing passes of a full sync push stage
	MaxPushPasses int
	// StaleAfter is how long a sync guard may be held before another run can take it over
	StaleAfter time.Duration
	// FailRejectedImmediately fails queue items on 4xx without consuming retries
	FailRejectedImmediately bool
	// ProcessingLease is how long a claimed item may stay in processing before
	// it is considered abandoned
	ProcessingLease time.Duration
}

// DefaultSettings returns the default engine settings
func DefaultSettings() Settings {
	return Settings{
		BatchSize:       DefaultBatchSize,
		MaxRetries:      DefaultMaxRetries,
		ChunkInterval:   DefaultChunkInterval,
		ChunkTimeout:    DefaultChunkTimeout,
		QueueBatchSize:  DefaultQueueBatchSize,
		MaxPushPasses:   DefaultMaxPushPasses,
		StaleAfter:      DefaultStaleAfter,
		ProcessingLease: DefaultProcessingLease,
	}
}

// withDefaults fills zero values from DefaultSettings
func (s Settings) withDefaults() Settings {
	d := DefaultSettings()
	if s.BatchSize <= 0 {
		s.BatchSize = d.BatchSize
	}
	if s.MaxRetries <= 0 {
		s.MaxRetries = d.MaxRetries
	}
	if s.ChunkInterval < 0 {
		s.ChunkInterval = 0
	}
	if s.ChunkTimeout <= 0 {
		s.ChunkTimeout = d.ChunkTimeout
	}
	if s.QueueBatchSize <= 0 {
		s.QueueBatchSize = d.QueueBatchSize
	}
	if s.MaxPushPasses <= 0 {
		s.MaxPushPasses = d.MaxPushPasses
	}
	if s.StaleAfter <= 0 {
		s.StaleAfter = d.StaleAfter
	}
	if s.ProcessingLease <= 0 {
		s.ProcessingLease = d.ProcessingLease
	}
	return s
}
