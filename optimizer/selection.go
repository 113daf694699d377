package optimizer

import "github.com/vecstore/vecstore/segment"

// candidate pairs a segment's id with the Info snapshot selection scores
// against.
type candidate struct {
	id   string
	info segment.Info
}

// SelectVacuum picks the worst segment by deleted fraction
// DeletedCount / (VectorCount + DeletedCount), breaking
// ties toward the larger segment (spec.md §4.2: a segment is a Vacuum
// candidate once its deleted fraction exceeds DeletedThreshold).
func SelectVacuum(infos map[string]segment.Info, th Thresholds) (string, bool) {
	var best *candidate
	var bestRatio float64
	for id, info := range infos {
		total := info.VectorCount + info.DeletedCount
		if total == 0 {
			continue
		}
		ratio := float64(info.DeletedCount) / float64(total)
		if ratio < th.DeletedThreshold {
			continue
		}
		if best == nil || ratio > bestRatio || (ratio == bestRatio && info.VectorCount > best.info.VectorCount) {
			c := candidate{id: id, info: info}
			best = &c
			bestRatio = ratio
		}
	}
	if best == nil {
		return "", false
	}
	return best.id, true
}

// SelectMerge returns the smallest segments, of any kind, to fold together
// once the collection has more than DefaultSegmentNumber segments
// (spec.md §4.2 Merge).
func SelectMerge(infos map[string]segment.Info, th Thresholds) []string {
	if len(infos) <= th.DefaultSegmentNumber {
		return nil
	}
	ids := make([]string, 0, len(infos))
	for id := range infos {
		ids = append(ids, id)
	}
	return pickSmallest(ids, infos, len(infos)-th.DefaultSegmentNumber+1)
}

// pickSmallest selection-sorts the n smallest-by-VectorCount ids to the
// front and returns them; the candidate list is segment counts, not
// point counts, so O(n^2) here costs nothing.
func pickSmallest(ids []string, infos map[string]segment.Info, n int) []string {
	if n > len(ids) {
		n = len(ids)
	}
	out := append([]string(nil), ids...)
	for i := 0; i < n; i++ {
		minIdx := i
		for j := i + 1; j < len(out); j++ {
			if infos[out[j]].VectorCount < infos[out[minIdx]].VectorCount {
				minIdx = j
			}
		}
		out[i], out[minIdx] = out[minIdx], out[i]
	}
	return out[:n]
}

// SelectIndexing picks one segment whose live vector count crosses
// MemmapThreshold or IndexingThreshold without yet being promoted, or
// whose payload crosses PayloadIndexingThreshold without being promoted
// (spec.md §4.2 Indexing), with the largest segment winning ties.
func SelectIndexing(infos map[string]segment.Info, th Thresholds) (string, bool) {
	var best *candidate
	for id, info := range infos {
		promotable := (info.VectorCount >= th.MemmapThreshold && !info.MMapped) ||
			(info.VectorCount >= th.IndexingThreshold && !info.VectorIndexed) ||
			(info.HasPayload && info.VectorCount >= th.PayloadIndexingThreshold && !info.PayloadIndexed)
		if !promotable {
			continue
		}
		if best == nil || info.VectorCount > best.info.VectorCount {
			c := candidate{id: id, info: info}
			best = &c
		}
	}
	if best == nil {
		return "", false
	}
	return best.id, true
}
