package cluster

import (
	"math"
	"math/rand"
)

const maxKMeansIterations = 100

// kMeans partitions points into k groups and returns a label per point.
// Runs `restarts` independent initializations from a single seeded RNG and
// keeps the labeling with the lowest inertia, so results are reproducible
// for identical (points, k, seed, restarts) input.
func kMeans(points [][]float64, k int, seed int64, restarts int) []int {
	if restarts < 1 {
		restarts = 1
	}
	rng := rand.New(rand.NewSource(seed))

	bestInertia := math.Inf(1)
	var bestLabels []int
	for r := 0; r < restarts; r++ {
		labels, inertia := kMeansOnce(points, k, rng)
		if inertia < bestInertia {
			bestInertia = inertia
			bestLabels = labels
		}
	}
	return bestLabels
}

// kMeansOnce runs one k-means++ initialization followed by Lloyd iterations.
func kMeansOnce(points [][]float64, k int, rng *rand.Rand) ([]int, float64) {
	n := len(points)
	centroids := seedCentroids(points, k, rng)
	labels := make([]int, n)

	for iter := 0; iter < maxKMeansIterations; iter++ {
		changed := false
		for i, p := range points {
			best := 0
			bestDist := math.Inf(1)
			for c, centroid := range centroids {
				d := squaredDistance(p, centroid)
				if d < bestDist {
					bestDist = d
					best = c
				}
			}
			if labels[i] != best {
				labels[i] = best
				changed = true
			}
		}
		if iter > 0 && !changed {
			break
		}
		recomputeCentroids(points, labels, centroids)
	}

	inertia := 0.0
	for i, p := range points {
		inertia += squaredDistance(p, centroids[labels[i]])
	}
	return labels, inertia
}

// seedCentroids picks k initial centroids with k-means++ weighting: the first
// uniformly, each next proportional to squared distance from the nearest
// already-chosen centroid.
func seedCentroids(points [][]float64, k int, rng *rand.Rand) [][]float64 {
	n := len(points)
	dims := len(points[0])

	centroids := make([][]float64, 0, k)
	first := append([]float64(nil), points[rng.Intn(n)]...)
	centroids = append(centroids, first)

	minDist := make([]float64, n)
	for len(centroids) < k {
		total := 0.0
		for i, p := range points {
			d := math.Inf(1)
			for _, c := range centroids {
				if sq := squaredDistance(p, c); sq < d {
					d = sq
				}
			}
			minDist[i] = d
			total += d
		}

		var next []float64
		if total == 0 {
			// All points coincide with existing centroids; fall back to uniform.
			next = points[rng.Intn(n)]
		} else {
			target := rng.Float64() * total
			acc := 0.0
			next = points[n-1]
			for i, d := range minDist {
				acc += d
				if acc >= target {
					next = points[i]
					break
				}
			}
		}

		centroid := make([]float64, dims)
		copy(centroid, next)
		centroids = append(centroids, centroid)
	}

	return centroids
}

// recomputeCentroids moves each centroid to the mean of its members.
// Empty centroids keep their previous position.
func recomputeCentroids(points [][]float64, labels []int, centroids [][]float64) {
	k := len(centroids)
	dims := len(centroids[0])
	sums := make([][]float64, k)
	counts := make([]int, k)
	for c := range sums {
		sums[c] = make([]float64, dims)
	}

	for i, p := range points {
		c := labels[i]
		counts[c]++
		for d, v := range p {
			sums[c][d] += v
		}
	}

	for c := 0; c < k; c++ {
		if counts[c] == 0 {
			continue
		}
		for d := 0; d < dims; d++ {
			centroids[c][d] = sums[c][d] / float64(counts[c])
		}
	}
}

func squaredDistance(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		diff := a[i] - b[i]
		sum += diff * diff
	}
	return sum
}

func euclideanDistance(a, b []float64) float64 {
	return math.Sqrt(squaredDistance(a, b))
}
