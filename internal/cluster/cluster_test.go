package cluster

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"testing"
)

// threeGroups builds n keywords spread across three well-separated regions
// of a 2D embedding space.
func threeGroups() ([]string, [][]float32) {
	keywords := []string{
		"marathon training", "running shoes", "trail running",
		"yoga mats", "yoga poses", "yoga retreat",
		"protein powder", "protein bars", "whey protein",
	}
	embeddings := [][]float32{
		{0.0, 0.1}, {0.1, 0.0}, {0.05, 0.05},
		{5.0, 5.1}, {5.1, 5.0}, {5.05, 5.05},
		{10.0, 0.1}, {10.1, 0.0}, {10.05, 0.05},
	}
	return keywords, embeddings
}

func TestPartitionInvariant(t *testing.T) {
	keywords, embeddings := threeGroups()

	clusters, err := Partition(keywords, embeddings, Options{})
	if err != nil {
		t.Fatalf("Partition: %v", err)
	}
	if len(clusters) == 0 {
		t.Fatal("no clusters for non-empty input")
	}

	var union []string
	for _, c := range clusters {
		if c.KeywordCount != len(c.Keywords) {
			t.Errorf("cluster %d count mismatch: %d vs %d", c.ID, c.KeywordCount, len(c.Keywords))
		}
		if c.Number != c.ID+1 {
			t.Errorf("cluster %d number = %d, want %d", c.ID, c.Number, c.ID+1)
		}
		if !sort.StringsAreSorted(c.Keywords) {
			t.Errorf("cluster %d keywords not sorted: %v", c.ID, c.Keywords)
		}
		union = append(union, c.Keywords...)
	}

	sort.Strings(union)
	want := append([]string(nil), keywords...)
	sort.Strings(want)
	if !reflect.DeepEqual(union, want) {
		t.Fatalf("clusters are not an exact partition:\n got %v\nwant %v", union, want)
	}
}

func TestPartitionSeparatesGroups(t *testing.T) {
	keywords, embeddings := threeGroups()

	clusters, err := Partition(keywords, embeddings, Options{})
	if err != nil {
		t.Fatalf("Partition: %v", err)
	}
	if len(clusters) != 3 {
		t.Fatalf("expected 3 clusters for 3 separated groups, got %d", len(clusters))
	}

	// The three yoga keywords must land together.
	found := false
	for _, c := range clusters {
		if len(c.Keywords) == 3 && c.Keywords[0] == "yoga mats" {
			found = true
		}
	}
	if !found {
		t.Errorf("yoga keywords split across clusters: %+v", clusters)
	}
}

func TestPartitionDeterministic(t *testing.T) {
	keywords, embeddings := threeGroups()

	first, err := Partition(keywords, embeddings, Options{})
	if err != nil {
		t.Fatalf("Partition: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := Partition(keywords, embeddings, Options{})
		if err != nil {
			t.Fatalf("Partition run %d: %v", i, err)
		}
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("run %d diverged:\nfirst %+v\nagain %+v", i, first, again)
		}
	}
}

func TestPartitionSingleClusterBoundary(t *testing.T) {
	for _, n := range []int{1, 2} {
		keywords := make([]string, n)
		embeddings := make([][]float32, n)
		for i := range keywords {
			keywords[i] = fmt.Sprintf("keyword %d", i)
			embeddings[i] = []float32{float32(i), 0}
		}

		clusters, err := Partition(keywords, embeddings, Options{})
		if err != nil {
			t.Fatalf("n=%d: %v", n, err)
		}
		if len(clusters) != 1 {
			t.Fatalf("n=%d: expected 1 cluster, got %d", n, len(clusters))
		}
		if clusters[0].ID != 0 || clusters[0].Number != 1 {
			t.Errorf("n=%d: id/number = %d/%d", n, clusters[0].ID, clusters[0].Number)
		}
		if clusters[0].KeywordCount != n {
			t.Errorf("n=%d: keyword count = %d", n, clusters[0].KeywordCount)
		}
	}

	empty, err := Partition(nil, nil, Options{})
	if err != nil || empty != nil {
		t.Fatalf("n=0: got %v, %v", empty, err)
	}
}

func TestPartitionRowMismatch(t *testing.T) {
	_, err := Partition([]string{"a", "b", "c"}, [][]float32{{1}}, Options{})
	if err == nil {
		t.Fatal("expected error on row/keyword mismatch")
	}
}

func TestSelectKBounds(t *testing.T) {
	for _, n := range []int{3, 4, 5, 8, 15, 30} {
		points := make([][]float64, n)
		for i := range points {
			// Two loose blobs plus per-point jitter.
			base := 0.0
			if i%2 == 0 {
				base = 6.0
			}
			points[i] = []float64{base + float64(i)*0.01, float64(i % 3)}
		}

		k := SelectK(points, Options{})
		maxK := DefaultMaxClusters
		if n < maxK {
			maxK = n
		}
		if k < 2 || k > maxK {
			t.Errorf("n=%d: k=%d out of [2, %d]", n, k, maxK)
		}
	}
}

func TestSelectKTooFewPoints(t *testing.T) {
	// n <= effective minimum: return max(2, n-1) without scoring.
	points := [][]float64{{0, 0}, {1, 0}, {2, 0}}
	if k := SelectK(points, Options{}); k != 2 {
		t.Errorf("n=3 with default min 3: k=%d, want 2", k)
	}
}

func TestSelectKPrefersSeparatedCount(t *testing.T) {
	// Three tight, distant blobs of 4 points each: silhouette should peak at 3.
	var points [][]float64
	for _, center := range [][2]float64{{0, 0}, {50, 0}, {0, 50}} {
		for j := 0; j < 4; j++ {
			points = append(points, []float64{center[0] + float64(j)*0.1, center[1] + float64(j)*0.1})
		}
	}

	if k := SelectK(points, Options{}); k != 3 {
		t.Errorf("k=%d, want 3 for three separated blobs", k)
	}
}

func TestFrequencyName(t *testing.T) {
	cases := []struct {
		name     string
		keywords []string
		want     string
	}{
		{"top two tokens", []string{"running shoes", "running socks", "running shoes sale"}, "Running Shoes"},
		{"stop words skipped", []string{"the best yoga", "yoga for the win"}, "Yoga Best"},
		{"all stop words", []string{"the and or"}, "Keyword Group the and or..."},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := frequencyName(tc.keywords); got != tc.want {
				t.Errorf("frequencyName(%v) = %q, want %q", tc.keywords, got, tc.want)
			}
		})
	}
}

type stubNamer struct {
	names []string
	err   error
}

func (s *stubNamer) NameClusters(_ context.Context, _ []Cluster) ([]string, error) {
	return s.names, s.err
}

func TestApplyNames(t *testing.T) {
	base := func() []Cluster {
		return []Cluster{
			{ID: 0, Number: 1, Keywords: []string{"running shoes", "running socks"}},
			{ID: 1, Number: 2, Keywords: []string{"yoga mats", "yoga poses"}},
		}
	}

	t.Run("namer names win", func(t *testing.T) {
		clusters := base()
		ApplyNames(context.Background(), &stubNamer{names: []string{"Running Gear", "Yoga Essentials"}}, clusters)
		if clusters[0].Name != "Running Gear" || clusters[1].Name != "Yoga Essentials" {
			t.Errorf("names = %q, %q", clusters[0].Name, clusters[1].Name)
		}
	})

	t.Run("namer error falls back", func(t *testing.T) {
		clusters := base()
		ApplyNames(context.Background(), &stubNamer{err: fmt.Errorf("boom")}, clusters)
		if clusters[0].Name != "Running Shoes" {
			t.Errorf("fallback name = %q", clusters[0].Name)
		}
	})

	t.Run("length mismatch falls back", func(t *testing.T) {
		clusters := base()
		ApplyNames(context.Background(), &stubNamer{names: []string{"Only One"}}, clusters)
		if clusters[1].Name != "Yoga Mats" {
			t.Errorf("fallback name = %q", clusters[1].Name)
		}
	})

	t.Run("nil namer uses fallback", func(t *testing.T) {
		clusters := base()
		ApplyNames(context.Background(), nil, clusters)
		if clusters[0].Name == "" || clusters[1].Name == "" {
			t.Error("expected fallback names, got empty")
		}
	})
}

func TestParseNameResponse(t *testing.T) {
	cases := []struct {
		name    string
		in      string
		want    []string
		wantErr bool
	}{
		{"clean array", `["A", "B"]`, []string{"A", "B"}, false},
		{"fenced array", "```json\n[\"A\", \"B\"]\n```", []string{"A", "B"}, false},
		{"array in prose", `Here you go: ["A", "B"] enjoy!`, []string{"A", "B"}, false},
		{"garbage", "no names here", nil, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := parseNameResponse(tc.in)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("got %v, want %v", got, tc.want)
			}
		})
	}
}
