// Package transfer implements ShardTransfer: moving or copying a shard
// from one peer to another, either by streaming live records or by
// snapshot-and-restore (spec.md §4.4).
package transfer

import "time"

// Config tunes a StreamTransfer's batching and retry behavior (spec.md
// §4.4: "batches of a configured size (e.g., 100)" and "retry on failure
// with exponential backoff up to a bounded retry count").
type Config struct {
	BatchSize      int
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

func DefaultConfig() Config {
	return Config{
		BatchSize:      100,
		MaxRetries:     5,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
	}
}

func (c Config) backoff(attempt int) time.Duration {
	d := c.InitialBackoff
	for i := 0; i < attempt; i++ {
		d *= 2
		if d > c.MaxBackoff {
			return c.MaxBackoff
		}
	}
	return d
}
