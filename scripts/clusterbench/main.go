// Command clusterbench measures cluster-count selection and k-means
// partitioning across synthetic keyword sets of increasing size.
//
// Usage:
//
//	go run ./scripts/clusterbench [-sizes 50,100,250,500] [-dims 384] [-groups 6]
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kwforge/kwforge/internal/cluster"
)

func main() {
	sizesFlag := flag.String("sizes", "50,100,250,500", "comma-separated keyword counts to benchmark")
	dims := flag.Int("dims", 384, "embedding dimensionality")
	groups := flag.Int("groups", 6, "number of planted semantic groups")
	flag.Parse()

	sizes, err := parseSizes(*sizesFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("%-8s %-8s %-10s %-12s\n", "n", "k", "elapsed", "largest")
	for _, n := range sizes {
		keywords, embeddings := syntheticBatch(n, *dims, *groups)

		start := time.Now()
		clusters, err := cluster.Partition(keywords, embeddings, cluster.Options{})
		elapsed := time.Since(start)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: partition n=%d: %v\n", n, err)
			os.Exit(1)
		}

		largest := 0
		for _, c := range clusters {
			if c.KeywordCount > largest {
				largest = c.KeywordCount
			}
		}
		fmt.Printf("%-8d %-8d %-10s %-12d\n", n, len(clusters), elapsed.Round(time.Millisecond), largest)
	}
}

// syntheticBatch plants `groups` well-separated centers and scatters
// keywords around them, mimicking embedded keyword sets.
func syntheticBatch(n, dims, groups int) ([]string, [][]float32) {
	rng := rand.New(rand.NewSource(1))

	centers := make([][]float32, groups)
	for g := range centers {
		center := make([]float32, dims)
		for d := range center {
			center[d] = float32(rng.NormFloat64() * 10)
		}
		centers[g] = center
	}

	keywords := make([]string, n)
	embeddings := make([][]float32, n)
	for i := 0; i < n; i++ {
		g := i % groups
		vec := make([]float32, dims)
		for d := range vec {
			vec[d] = centers[g][d] + float32(rng.NormFloat64())
		}
		keywords[i] = fmt.Sprintf("keyword-%d-%d", g, i)
		embeddings[i] = vec
	}
	return keywords, embeddings
}

func parseSizes(raw string) ([]int, error) {
	parts := strings.Split(raw, ",")
	sizes := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n < 1 {
			return nil, fmt.Errorf("invalid size %q", p)
		}
		sizes = append(sizes, n)
	}
	return sizes, nil
}
