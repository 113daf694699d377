package optimizer

// Thresholds configures when a segment becomes a candidate for each
// optimizer kind (spec.md §4.2 "Segment and Optimizer Pipeline").
type Thresholds struct {
	// DeletedThreshold is the deleted fraction (deleted over live plus
	// deleted) above which a segment is a Vacuum candidate.
	DeletedThreshold float64
	// DefaultSegmentNumber is the target segment count a collection's
	// Merge pass tries to converge to.
	DefaultSegmentNumber int
	// MemmapThreshold is the live vector count above which a segment's
	// storage is promoted to mmap.
	MemmapThreshold int
	// IndexingThreshold is the live vector count above which a segment
	// becomes an Indexing candidate and is marked Optimized. Its HNSW
	// graph is already built on each upsert, so no separate graph build
	// happens here.
	IndexingThreshold int
	// PayloadIndexingThreshold is the live vector count above which a
	// segment with payload gets its column store promoted to the
	// on-disk backend.
	PayloadIndexingThreshold int
}

// DefaultThresholds mirrors the teacher's config defaulting style: named
// constants a caller can start from and override selectively.
func DefaultThresholds() Thresholds {
	return Thresholds{
		DeletedThreshold:         0.2,
		DefaultSegmentNumber:     4,
		MemmapThreshold:          50_000,
		IndexingThreshold:        20_000,
		PayloadIndexingThreshold: 20_000,
	}
}
