package normalize

import (
	"math/rand"
	"reflect"
	"testing"
)

func TestCleanBasic(t *testing.T) {
	result := Clean([]string{"Running Shoes", "running shoes", "Yoga Mats", "yoga mats", "Protein Powder"})

	want := []string{"protein powder", "running shoes", "yoga mats"}
	if !reflect.DeepEqual(result.Keywords, want) {
		t.Fatalf("keywords = %v, want %v", result.Keywords, want)
	}
	if result.OriginalCount != 5 || result.CleanedCount != 3 || result.RemovedCount != 2 {
		t.Fatalf("counts = %d/%d/%d, want 5/3/2",
			result.OriginalCount, result.CleanedCount, result.RemovedCount)
	}
}

func TestCleanDuplicateHeavy(t *testing.T) {
	result := Clean([]string{"ab", "AB", "  ab  ", "a-b"})

	want := []string{"a-b", "ab"}
	if !reflect.DeepEqual(result.Keywords, want) {
		t.Fatalf("keywords = %v, want %v", result.Keywords, want)
	}
	if result.CleanedCount != 2 || result.RemovedCount != 2 {
		t.Fatalf("cleaned=%d removed=%d, want 2/2", result.CleanedCount, result.RemovedCount)
	}
}

func TestCleanSpecialCharacters(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"punctuation stripped", "running shoes!!!", "running shoes"},
		{"hyphen preserved", "e-commerce tips", "e-commerce tips"},
		{"internal whitespace collapsed", "yoga   \t  mats", "yoga mats"},
		{"non-ascii stripped", "café menu", "caf menu"},
		{"digits preserved", "top 10 laptops", "top 10 laptops"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result := Clean([]string{tc.in})
			if len(result.Keywords) != 1 || result.Keywords[0] != tc.want {
				t.Fatalf("Clean(%q) = %v, want [%q]", tc.in, result.Keywords, tc.want)
			}
		})
	}
}

func TestCleanDegenerateInput(t *testing.T) {
	result := Clean([]string{"", "   ", "!!!", "???"})
	if len(result.Keywords) != 0 {
		t.Fatalf("expected empty set, got %v", result.Keywords)
	}
	if result.OriginalCount != 4 || result.RemovedCount != 4 {
		t.Fatalf("counts = %d/%d, want 4/4", result.OriginalCount, result.RemovedCount)
	}
}

func TestCleanIdempotent(t *testing.T) {
	first := Clean([]string{"zebra care", "apple pie", "mango salsa"})
	second := Clean(first.Keywords)

	if !reflect.DeepEqual(first.Keywords, second.Keywords) {
		t.Fatalf("not idempotent: %v != %v", first.Keywords, second.Keywords)
	}
	if second.RemovedCount != 0 {
		t.Fatalf("expected no removals on clean input, got %d", second.RemovedCount)
	}
}

func TestCleanDeterministicUnderReordering(t *testing.T) {
	input := []string{"Yoga Mats", "protein powder", "RUNNING shoes", "yoga mats", "dumbbells", "kettlebell swings"}
	baseline := Clean(input)

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		shuffled := append([]string(nil), input...)
		rng.Shuffle(len(shuffled), func(a, b int) {
			shuffled[a], shuffled[b] = shuffled[b], shuffled[a]
		})
		got := Clean(shuffled)
		if !reflect.DeepEqual(got.Keywords, baseline.Keywords) {
			t.Fatalf("permutation %d diverged: %v != %v", i, got.Keywords, baseline.Keywords)
		}
	}
}

func TestComputeStats(t *testing.T) {
	stats := ComputeStats([]string{"ab", "one two three", "four five"})
	if stats.TotalKeywords != 3 {
		t.Fatalf("total = %d, want 3", stats.TotalKeywords)
	}
	if stats.AvgWordCount != 2.0 {
		t.Fatalf("avg words = %f, want 2.0", stats.AvgWordCount)
	}
	if stats.Shortest != "ab" || stats.Longest != "one two three" {
		t.Fatalf("shortest/longest = %q/%q", stats.Shortest, stats.Longest)
	}

	empty := ComputeStats(nil)
	if empty.TotalKeywords != 0 || empty.Shortest != "" {
		t.Fatalf("expected zero stats for empty input, got %+v", empty)
	}
}
