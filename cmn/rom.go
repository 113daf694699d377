// Package cmn provides the ambient stack shared across this module: error
// kinds, read-mostly config, worker pools, and the weak-ref helper.
/*
 * Copyright (c) 2023, NVIDIA CORPORATION. All rights reserved.
 */
package cmn

import "time"

// StrictMode mirrors spec.md §6's request-admission-control options.
// It is read far more often than it is written (checked on every query/
// update), so — as in the teacher's cmn/rom.go — it is kept as a
// read-mostly snapshot assigned at startup and on config reload rather
// than re-read field-by-field from a mutex-guarded struct on every call.
type StrictMode struct {
	MaxQueryLimit               int
	MaxTimeout                  time.Duration
	MaxHNSWef                   int
	MaxOversampling             float64
	SearchAllowExact            bool
	UnindexedFilteringRetrieve  bool
	UnindexedFilteringUpdate    bool
}

// Config collects the options enumerated in spec.md §6 that drive the
// core: HNSW fan-outs, optimizer triggers, merge targets, vacuum triggers,
// background pacing, WAL sizing, placement, and strict mode.
type Config struct {
	M, M0, EfConstruct int

	FullScanThreshold int

	MemmapThreshold         int
	IndexingThreshold       int
	PayloadIndexingThreshold int

	DefaultSegmentNumber int
	MaxSegmentSize       int

	DeletedThreshold      float64
	VacuumMinVectorNumber int

	FlushIntervalSec    int
	MaxOptimizationThreads int

	WALCapacityMB    int
	WALSegmentsAhead int

	ReplicationFactor int
	ShardNumber       int

	Strict StrictMode
}

// DefaultConfig returns sane defaults, grounded on the values used
// throughout spec.md §8's concrete scenarios.
func DefaultConfig() Config {
	return Config{
		M: 16, M0: 32, EfConstruct: 100,
		FullScanThreshold:        10_000,
		MemmapThreshold:          200_000,
		IndexingThreshold:        20_000,
		PayloadIndexingThreshold: 10_000,
		DefaultSegmentNumber:     4,
		MaxSegmentSize:           5_000_000,
		DeletedThreshold:         0.2,
		VacuumMinVectorNumber:    1000,
		FlushIntervalSec:         5,
		MaxOptimizationThreads:   2,
		WALCapacityMB:            64,
		WALSegmentsAhead:         1,
		ReplicationFactor:        1,
		ShardNumber:              1,
		Strict: StrictMode{
			MaxQueryLimit:   10_000,
			MaxTimeout:      30 * time.Second,
			MaxHNSWef:       2048,
			MaxOversampling: 10,
		},
	}
}

// readMostly caches the handful of config-derived values looked up on
// every request-path call (timeouts, strict-mode admission); it is
// assigned wholesale on startup and on config reload, never mutated
// field-by-field under lock — the teacher's cmn/rom.go fast-path pattern.
type readMostly struct {
	cfg Config
}

var Rom readMostly

func init() { Rom.cfg = DefaultConfig() }

func (rom *readMostly) Set(cfg Config) { rom.cfg = cfg }
func (rom *readMostly) Get() Config    { return rom.cfg }

func (rom *readMostly) MaxQueryLimit() int           { return rom.cfg.Strict.MaxQueryLimit }
func (rom *readMostly) MaxTimeout() time.Duration    { return rom.cfg.Strict.MaxTimeout }
func (rom *readMostly) MaxHNSWef() int               { return rom.cfg.Strict.MaxHNSWef }
