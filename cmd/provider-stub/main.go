package main

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"log"
	"math"
	"net/http"
	"os"
	"strconv"
	"strings"
)

// provider-stub serves a Tavily-compatible search/extract API and an
// OpenAI-compatible embeddings API, for running serpgate without network.

type searchRequest struct {
	APIKey     string `json:"api_key"`
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

type extractRequest struct {
	APIKey string   `json:"api_key"`
	URLs   []string `json:"urls"`
}

type embeddingsRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type result struct {
	Title      string  `json:"title"`
	URL        string  `json:"url"`
	Content    string  `json:"content"`
	RawContent string  `json:"raw_content,omitempty"`
	Score      float64 `json:"score,omitempty"`
}

var cannedHosts = []string{"nasa.gov", "mit.edu", "en.wikipedia.org", "example.com", "blog.example.net"}

func main() {
	model := os.Getenv("MODEL_ID")
	if strings.TrimSpace(model) == "" {
		model = "test-embedding"
	}
	addr := os.Getenv("ADDR")
	if strings.TrimSpace(addr) == "" {
		addr = ":8081"
	}
	dims := 8
	if n, err := strconv.Atoi(os.Getenv("EMBEDDING_DIMENSIONS")); err == nil && n > 0 {
		dims = n
	}

	log.Printf("provider-stub listening on %s (model=%s)", addr, model)
	if err := http.ListenAndServe(addr, newMux(model, dims)); err != nil {
		log.Fatal(err)
	}
}

func newMux(model string, dims int) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		var req searchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Query) == "" {
			http.Error(w, "query is required", http.StatusBadRequest)
			return
		}
		if req.APIKey == "" && r.Header.Get("Authorization") == "" {
			http.Error(w, "missing api key", http.StatusUnauthorized)
			return
		}
		n := req.MaxResults
		if n <= 0 || n > len(cannedHosts) {
			n = len(cannedHosts)
		}
		results := make([]result, 0, n)
		for i := 0; i < n; i++ {
			host := cannedHosts[i]
			results = append(results, result{
				Title:   fmt.Sprintf("%s on %s", req.Query, host),
				URL:     fmt.Sprintf("https://%s/%s", host, slug(req.Query)),
				Content: fmt.Sprintf("%s explained by %s, with details and references for result %d.", req.Query, host, i+1),
				Score:   1 - float64(i)/10,
			})
		}
		writeJSON(w, map[string]any{
			"query":   req.Query,
			"answer":  "A short overview of " + req.Query + ".",
			"results": results,
		})
	})
	mux.HandleFunc("/extract", func(w http.ResponseWriter, r *http.Request) {
		var req extractRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		results := make([]result, 0, len(req.URLs))
		for _, u := range req.URLs {
			results = append(results, result{URL: u, RawContent: "Extracted page text for " + u + "."})
		}
		writeJSON(w, map[string]any{"results": results, "failed_results": []any{}})
	})
	mux.HandleFunc("/v1/models", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"object": "list",
			"data":   []map[string]any{{"id": model, "object": "model"}},
		})
	})
	mux.HandleFunc("/v1/embeddings", func(w http.ResponseWriter, r *http.Request) {
		var req embeddingsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		data := make([]map[string]any, 0, len(req.Input))
		for i, in := range req.Input {
			data = append(data, map[string]any{"object": "embedding", "index": i, "embedding": hashVector(in, dims)})
		}
		writeJSON(w, map[string]any{"object": "list", "model": model, "data": data})
	})
	return mux
}

// hashVector folds tokens into a fixed number of buckets and normalizes the
// result, so equal inputs get equal vectors.
func hashVector(s string, dims int) []float32 {
	v := make([]float32, dims)
	for _, tok := range strings.Fields(strings.ToLower(s)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(tok))
		v[h.Sum32()%uint32(dims)]++
	}
	var norm float64
	for _, x := range v {
		norm += float64(x * x)
	}
	if norm == 0 {
		return v
	}
	norm = math.Sqrt(norm)
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
	return v
}

func slug(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), "-")
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
