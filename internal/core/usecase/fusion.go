package usecase

import "sort"

// scatterDense places search similarities at their chunk ids. Chunks the
// search did not return keep a zero score.
func scatterDense(sims []float64, ids []int, n int) []float64 {
	out := make([]float64, n)
	for i, id := range ids {
		if id >= 0 && id < n {
			out[id] = sims[i]
		}
	}
	return out
}

// normalizeMax divides by the vector's maximum. A maximum that is not
// positive yields all zeros.
func normalizeMax(scores []float64) []float64 {
	out := make([]float64, len(scores))
	if len(scores) == 0 {
		return out
	}
	peak := scores[0]
	for _, s := range scores[1:] {
		if s > peak {
			peak = s
		}
	}
	if !(peak > 0) {
		return out
	}
	for i, s := range scores {
		out[i] = s / peak
	}
	return out
}

func fuseLinear(lexical, dense []float64, alpha float64) []float64 {
	out := make([]float64, len(lexical))
	for i := range lexical {
		out[i] = alpha*lexical[i] + (1-alpha)*dense[i]
	}
	return out
}

// rankTopK returns up to k chunk ids by descending score, ties by ascending id.
func rankTopK(scores []float64, k int) []int {
	ids := make([]int, len(scores))
	for i := range ids {
		ids[i] = i
	}
	sort.SliceStable(ids, func(a, b int) bool {
		sa, sb := scores[ids[a]], scores[ids[b]]
		if sa != sb {
			return sa > sb
		}
		return ids[a] < ids[b]
	})
	if k < len(ids) {
		ids = ids[:k]
	}
	return ids
}
