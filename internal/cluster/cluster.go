// Package cluster partitions cleaned keyword sets into named semantic groups
// using their embedding vectors.
//
// Cluster-count selection and the partition itself are fully deterministic:
// k-means runs from a fixed seed with a fixed number of restarts, so identical
// (keywords, embeddings) input always yields identical cluster assignments.
package cluster

import (
	"fmt"
	"sort"
)

const (
	// DefaultMinClusters is the lower bound of the k search range.
	DefaultMinClusters = 3
	// DefaultMaxClusters is the upper bound of the k search range.
	DefaultMaxClusters = 10
	// DefaultSeed fixes the k-means RNG for reproducible assignments.
	DefaultSeed = 42
	// DefaultRestarts is how many k-means initializations run per k.
	DefaultRestarts = 10
)

// Cluster is one named group of semantically related keywords.
type Cluster struct {
	ID           int      `json:"cluster_id"`
	Number       int      `json:"cluster_number"`
	Name         string   `json:"cluster_name"`
	Keywords     []string `json:"keywords"`
	KeywordCount int      `json:"keyword_count"`
}

// Options configures partitioning. The zero value selects all defaults.
type Options struct {
	MinClusters int
	MaxClusters int
	Seed        int64
	Restarts    int
}

func (o Options) withDefaults() Options {
	if o.MinClusters <= 0 {
		o.MinClusters = DefaultMinClusters
	}
	if o.MaxClusters <= 0 {
		o.MaxClusters = DefaultMaxClusters
	}
	if o.Seed == 0 {
		o.Seed = DefaultSeed
	}
	if o.Restarts <= 0 {
		o.Restarts = DefaultRestarts
	}
	return o
}

// SelectK chooses the cluster count in [minK, maxK] that maximizes the
// silhouette score of a seeded k-means partition. Exact score ties go to the
// smallest k (ascending evaluation order, first occurrence wins).
//
// Callers must special-case n < 3 before calling; with 3 or more points
// SelectK always returns a k satisfying 2 <= k <= min(maxK, n).
func SelectK(points [][]float64, opts Options) int {
	opts = opts.withDefaults()
	n := len(points)

	effMin := opts.MinClusters
	if n < effMin {
		effMin = n
	}
	effMax := opts.MaxClusters
	if n < effMax {
		effMax = n
	}

	// Too few points to search a range.
	if n <= effMin {
		k := n - 1
		if k < 2 {
			k = 2
		}
		return k
	}

	bestK := effMin
	bestScore := -2.0 // below the silhouette floor of -1
	for k := effMin; k <= effMax && k < n; k++ {
		labels := kMeans(points, k, opts.Seed, opts.Restarts)
		if score := silhouetteScore(points, labels); score > bestScore {
			bestScore = score
			bestK = k
		}
	}
	return bestK
}

// Partition groups keywords into clusters using their embeddings.
//
// Fewer than 3 keywords produce a single cluster holding everything. The
// output is always an exact partition of the input: every keyword appears in
// exactly one cluster. Labels that end up with no members are dropped without
// renumbering, so `Number` always reflects the original label+1 even when
// ids are not contiguous.
//
// Names are the deterministic frequency-based fallback; callers wanting
// richer names run ApplyNames afterwards.
func Partition(keywords []string, embeddings [][]float32, opts Options) ([]Cluster, error) {
	n := len(keywords)
	if n == 0 {
		return nil, nil
	}
	if len(embeddings) != n {
		return nil, fmt.Errorf("embedding rows (%d) do not match keywords (%d)", len(embeddings), n)
	}

	if n < 3 {
		all := append([]string(nil), keywords...)
		sort.Strings(all)
		return []Cluster{{
			ID:           0,
			Number:       1,
			Name:         frequencyName(all),
			Keywords:     all,
			KeywordCount: len(all),
		}}, nil
	}

	opts = opts.withDefaults()
	points := toFloat64(embeddings)

	k := SelectK(points, opts)
	labels := kMeans(points, k, opts.Seed, opts.Restarts)

	members := make(map[int][]string)
	for i, label := range labels {
		members[label] = append(members[label], keywords[i])
	}

	clusters := make([]Cluster, 0, k)
	for label := 0; label < k; label++ {
		kws := members[label]
		if len(kws) == 0 {
			continue
		}
		sort.Strings(kws)
		clusters = append(clusters, Cluster{
			ID:           label,
			Number:       label + 1,
			Name:         frequencyName(kws),
			Keywords:     kws,
			KeywordCount: len(kws),
		})
	}

	return clusters, nil
}

func toFloat64(m [][]float32) [][]float64 {
	out := make([][]float64, len(m))
	for i, row := range m {
		out[i] = make([]float64, len(row))
		for j, v := range row {
			out[i][j] = float64(v)
		}
	}
	return out
}
