package vectorstore

import "sort"

// FuseRelative merges a dense and a sparse result set into one ranking.
// Each set is min-max normalized independently, then every point scores
// alpha*dense + (1-alpha)*sparse, with a missing side contributing zero.
// Points present in both sets are deduplicated by id, keeping the payload
// of the first occurrence. The merged ranking is sorted by fused score
// descending and truncated to topK.
func FuseRelative(dense, sparse []ScoredPoint, alpha float32, topK int) []ScoredPoint {
	denseNorm := normalize(dense)
	sparseNorm := normalize(sparse)

	order := make([]string, 0, len(dense)+len(sparse))
	merged := make(map[string]ScoredPoint, len(dense)+len(sparse))
	fused := make(map[string]float32, len(dense)+len(sparse))

	for i, p := range dense {
		if _, seen := merged[p.ID]; !seen {
			merged[p.ID] = p
			order = append(order, p.ID)
		}
		fused[p.ID] += alpha * denseNorm[i]
	}
	for i, p := range sparse {
		if _, seen := merged[p.ID]; !seen {
			merged[p.ID] = p
			order = append(order, p.ID)
		}
		fused[p.ID] += (1 - alpha) * sparseNorm[i]
	}

	out := make([]ScoredPoint, 0, len(order))
	for _, id := range order {
		p := merged[id]
		p.Score = fused[id]
		out = append(out, p)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out
}

// FilterByScore keeps points whose fused score meets the threshold.
func FilterByScore(points []ScoredPoint, threshold float32) []ScoredPoint {
	out := make([]ScoredPoint, 0, len(points))
	for _, p := range points {
		if p.Score >= threshold {
			out = append(out, p)
		}
	}
	return out
}

// normalize rescales a result set's scores into [0, 1]. A set whose scores
// are all equal maps to 1.0 so a sole hit is not discarded as zero.
func normalize(points []ScoredPoint) []float32 {
	if len(points) == 0 {
		return nil
	}
	min, max := points[0].Score, points[0].Score
	for _, p := range points[1:] {
		if p.Score < min {
			min = p.Score
		}
		if p.Score > max {
			max = p.Score
		}
	}
	out := make([]float32, len(points))
	if max == min {
		for i := range out {
			out[i] = 1.0
		}
		return out
	}
	span := max - min
	for i, p := range points {
		out[i] = (p.Score - min) / span
	}
	return out
}
