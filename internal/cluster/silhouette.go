package cluster

import "math"

// silhouetteScore computes the mean silhouette coefficient over all points.
//
// For each point: a = mean distance to the other members of its own group,
// b = mean distance to the members of the nearest other group, and the
// coefficient is (b-a)/max(a,b). Points in singleton groups contribute 0.
// Range is [-1, 1]; higher means better-separated groups.
func silhouetteScore(points [][]float64, labels []int) float64 {
	n := len(points)
	if n == 0 {
		return 0
	}

	clusterSizes := make(map[int]int)
	for _, l := range labels {
		clusterSizes[l]++
	}
	if len(clusterSizes) < 2 {
		return 0
	}

	total := 0.0
	for i, p := range points {
		own := labels[i]
		if clusterSizes[own] <= 1 {
			continue // coefficient defined as 0 for singletons
		}

		distSum := make(map[int]float64)
		for j, q := range points {
			if i == j {
				continue
			}
			distSum[labels[j]] += euclideanDistance(p, q)
		}

		a := distSum[own] / float64(clusterSizes[own]-1)

		b := math.Inf(1)
		for label, sum := range distSum {
			if label == own {
				continue
			}
			if mean := sum / float64(clusterSizes[label]); mean < b {
				b = mean
			}
		}

		if maxAB := math.Max(a, b); maxAB > 0 {
			total += (b - a) / maxAB
		}
	}

	return total / float64(n)
}
