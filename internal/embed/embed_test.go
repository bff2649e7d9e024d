package embed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func TestParseEmbedFlag(t *testing.T) {
	tests := []struct {
		name    string
		flag    string
		want    *Config
		wantErr bool
	}{
		{
			name: "ollama simple",
			flag: "ollama/all-minilm",
			want: &Config{
				Provider:    "ollama",
				Model:       "all-minilm",
				Endpoint:    "http://localhost:11434/v1/embeddings",
				MaxRetries:  3,
				TimeoutSecs: 60,
			},
		},
		{
			name: "openai simple",
			flag: "openai/text-embedding-3-small",
			want: &Config{
				Provider:    "openai",
				Model:       "text-embedding-3-small",
				Endpoint:    "https://api.openai.com/v1/embeddings",
				MaxRetries:  3,
				TimeoutSecs: 60,
			},
		},
		{
			name: "custom complex model",
			flag: "custom/sentence-transformers/all-MiniLM-L6-v2",
			want: &Config{
				Provider:    "custom",
				Model:       "sentence-transformers/all-MiniLM-L6-v2",
				MaxRetries:  3,
				TimeoutSecs: 60,
			},
		},
		{name: "empty flag", flag: "", wantErr: true},
		{name: "no slash", flag: "all-minilm", wantErr: true},
		{name: "empty model", flag: "ollama/", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("KWFORGE_EMBED_ENDPOINT", "")
			t.Setenv("KWFORGE_EMBED_API_KEY", "")
			t.Setenv("OPENAI_API_KEY", "")

			got, err := ParseEmbedFlag(tt.flag)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Provider != tt.want.Provider || got.Model != tt.want.Model {
				t.Errorf("got %s/%s, want %s/%s", got.Provider, got.Model, tt.want.Provider, tt.want.Model)
			}
			if got.Endpoint != tt.want.Endpoint {
				t.Errorf("endpoint: got %q, want %q", got.Endpoint, tt.want.Endpoint)
			}
			if got.MaxRetries != 3 || got.TimeoutSecs != 60 {
				t.Errorf("defaults: retries=%d timeout=%d", got.MaxRetries, got.TimeoutSecs)
			}
		})
	}
}

func newFakeServer(t *testing.T, dims int, calls *int64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls != nil {
			atomic.AddInt64(calls, 1)
		}

		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decoding request: %v", err)
		}

		data := make([]map[string]any, len(req.Input))
		for i, text := range req.Input {
			vec := make([]float32, dims)
			// Deterministic per-text vectors so callers can verify alignment.
			for d := range vec {
				vec[d] = float32(len(text)+d) / 100
			}
			data[i] = map[string]any{"embedding": vec, "index": i}
		}
		json.NewEncoder(w).Encode(map[string]any{"data": data})
	}))
}

func TestEmbedBatch(t *testing.T) {
	server := newFakeServer(t, 8, nil)
	defer server.Close()

	client, err := NewClient(&Config{
		Provider:    "test",
		Model:       "fake",
		Endpoint:    server.URL,
		MaxRetries:  1,
		TimeoutSecs: 5,
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	keywords := []string{"protein powder", "running shoes", "yoga mats"}
	vecs, err := client.EmbedBatch(context.Background(), keywords)
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(vecs) != 3 {
		t.Fatalf("expected 3 vectors, got %d", len(vecs))
	}
	for i, v := range vecs {
		if len(v) != 8 {
			t.Fatalf("vector %d has %d dims, want 8", i, len(v))
		}
	}
	if client.Dimensions() != 8 {
		t.Errorf("Dimensions() = %d, want 8", client.Dimensions())
	}
}

func TestEmbedBatchRetriesExhausted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, "boom")
	}))
	defer server.Close()

	client, err := NewClient(&Config{
		Provider:    "test",
		Model:       "fake",
		Endpoint:    server.URL,
		MaxRetries:  0,
		TimeoutSecs: 5,
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	_, err = client.EmbedBatch(context.Background(), []string{"a"})
	if err == nil {
		t.Fatal("expected error after exhausted retries")
	}
}

func TestCacheKeyOrderIndependent(t *testing.T) {
	a := CacheKey([]string{"yoga mats", "running shoes"})
	b := CacheKey([]string{"running shoes", "yoga mats"})
	if a != b {
		t.Errorf("cache keys differ across permutations: %q vs %q", a, b)
	}

	c := CacheKey([]string{"running shoes"})
	if a == c {
		t.Error("distinct sets should not collide")
	}
}

func TestCachingEmbedderHitAndMiss(t *testing.T) {
	var calls int64
	server := newFakeServer(t, 4, &calls)
	defer server.Close()

	client, err := NewClient(&Config{
		Provider:    "test",
		Model:       "fake",
		Endpoint:    server.URL,
		MaxRetries:  0,
		TimeoutSecs: 5,
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	caching := NewCachingEmbedder(client)

	keywords := []string{"running shoes", "yoga mats"}
	first, err := caching.EmbedBatch(context.Background(), keywords)
	if err != nil {
		t.Fatalf("first EmbedBatch: %v", err)
	}
	if atomic.LoadInt64(&calls) != 1 {
		t.Fatalf("expected 1 upstream call, got %d", calls)
	}

	// Reordered input must hit the same entry, rows realigned.
	second, err := caching.EmbedBatch(context.Background(), []string{"yoga mats", "running shoes"})
	if err != nil {
		t.Fatalf("second EmbedBatch: %v", err)
	}
	if atomic.LoadInt64(&calls) != 1 {
		t.Fatalf("expected cached hit, upstream calls = %d", calls)
	}
	if len(second) != 2 || len(second[0]) != 4 {
		t.Fatalf("unexpected cached shape: %d rows", len(second))
	}
	// second[1] must be the vector for "running shoes" (= first[0]).
	for d := range second[1] {
		if second[1][d] != first[0][d] {
			t.Fatalf("cached rows misaligned at dim %d", d)
		}
	}

	// A different set is a miss.
	if _, err := caching.EmbedBatch(context.Background(), []string{"protein powder"}); err != nil {
		t.Fatalf("third EmbedBatch: %v", err)
	}
	if atomic.LoadInt64(&calls) != 2 {
		t.Fatalf("expected 2 upstream calls, got %d", calls)
	}
}
