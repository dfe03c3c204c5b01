package curate

import "math"

// Noise labels a point that belongs to no cluster.
const Noise = -1

// Normalize returns v scaled to unit length. It reports false for vectors
// that cannot be normalised: empty, zero length or non-finite.
func Normalize(v []float32) ([]float64, bool) {
	if len(v) == 0 {
		return nil, false
	}
	var sq float64
	for _, x := range v {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, false
		}
		sq += f * f
	}
	norm := math.Sqrt(sq)
	if norm == 0 || math.IsInf(norm, 0) {
		return nil, false
	}
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x) / norm
	}
	return out, true
}

// CosineDistance is 1 - u·v for unit vectors of equal length.
func CosineDistance(u, v []float64) float64 {
	var dot float64
	for i := range u {
		dot += u[i] * v[i]
	}
	return 1 - dot
}

// DBSCAN labels points by density. Two points are neighbours when their
// cosine distance is at most eps; a point is a core point when it has at
// least minSamples neighbours counting itself. Clusters are numbered from 0
// in the order their first core point appears. Points reachable from no
// core point are Noise.
func DBSCAN(points [][]float64, eps float64, minSamples int) []int {
	n := len(points)
	neighbours := make([][]int, n)
	for i := 0; i < n; i++ {
		neighbours[i] = append(neighbours[i], i)
		for j := i + 1; j < n; j++ {
			if CosineDistance(points[i], points[j]) <= eps {
				neighbours[i] = append(neighbours[i], j)
				neighbours[j] = append(neighbours[j], i)
			}
		}
	}

	labels := make([]int, n)
	for i := range labels {
		labels[i] = Noise
	}

	next := 0
	var stack []int
	for i := 0; i < n; i++ {
		if labels[i] != Noise || len(neighbours[i]) < minSamples {
			continue
		}
		stack = append(stack[:0], i)
		for len(stack) > 0 {
			p := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if labels[p] != Noise {
				continue
			}
			labels[p] = next
			if len(neighbours[p]) < minSamples {
				continue
			}
			for _, q := range neighbours[p] {
				if labels[q] == Noise {
					stack = append(stack, q)
				}
			}
		}
		next++
	}
	return labels
}

// Majority returns the non-noise label with the most members. Ties go to
// the smallest label. ok is false when every point is noise.
func Majority(labels []int) (label int, ok bool) {
	counts := map[int]int{}
	for _, l := range labels {
		if l != Noise {
			counts[l]++
		}
	}
	best, bestCount := Noise, 0
	for l, c := range counts {
		if c > bestCount || (c == bestCount && l < best) {
			best, bestCount = l, c
		}
	}
	return best, bestCount > 0
}

// ClusterCount is the number of distinct non-noise labels.
func ClusterCount(labels []int) int {
	max := Noise
	for _, l := range labels {
		if l > max {
			max = l
		}
	}
	return max + 1
}
