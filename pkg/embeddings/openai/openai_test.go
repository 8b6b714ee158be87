package openai_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/vecindex/pkg/embeddings"
	"github.com/papercomputeco/vecindex/pkg/embeddings/openai"
)

var _ = Describe("Embedder", func() {
	It("requires an API key and a model", func() {
		_, err := openai.NewEmbedder(openai.EmbedderConfig{Model: "m"})
		Expect(err).To(HaveOccurred())
		_, err = openai.NewEmbedder(openai.EmbedderConfig{APIKey: "k"})
		Expect(err).To(HaveOccurred())
	})

	It("sends the bearer token and requested dimensions", func() {
		var (
			got  map[string]any
			auth string
		)
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth = r.Header.Get("Authorization")
			Expect(r.URL.Path).To(Equal("/embeddings"))
			Expect(json.NewDecoder(r.Body).Decode(&got)).To(Succeed())
			_ = json.NewEncoder(w).Encode(map[string]any{
				"data": []map[string]any{{"embedding": []float32{0.5, 0.25}, "index": 0}},
			})
		}))
		defer server.Close()

		e, err := openai.NewEmbedder(openai.EmbedderConfig{
			BaseURL:    server.URL,
			APIKey:     "sk-test",
			Model:      "text-embedding-3-large",
			Dimensions: 256,
		})
		Expect(err).NotTo(HaveOccurred())

		vec, err := e.Embed(context.Background(), "hello")
		Expect(err).NotTo(HaveOccurred())
		Expect(vec).To(Equal([]float32{0.5, 0.25}))
		Expect(auth).To(Equal("Bearer sk-test"))
		Expect(got).To(HaveKeyWithValue("model", "text-embedding-3-large"))
		Expect(got).To(HaveKeyWithValue("dimensions", BeNumerically("==", 256)))
	})

	It("omits dimensions when unset", func() {
		var got map[string]any
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewDecoder(r.Body).Decode(&got)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"data": []map[string]any{{"embedding": []float32{1}}},
			})
		}))
		defer server.Close()

		e, _ := openai.NewEmbedder(openai.EmbedderConfig{BaseURL: server.URL, APIKey: "k", Model: "mistral-embed"})
		_, err := e.Embed(context.Background(), "hello")
		Expect(err).NotTo(HaveOccurred())
		Expect(got).NotTo(HaveKey("dimensions"))
	})

	It("surfaces API errors", func() {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"error": map[string]string{"message": "invalid api key", "type": "invalid_request_error"},
			})
		}))
		defer server.Close()

		e, _ := openai.NewEmbedder(openai.EmbedderConfig{BaseURL: server.URL, APIKey: "bad", Model: "m"})
		_, err := e.Embed(context.Background(), "hello")
		Expect(err).To(MatchError(embeddings.ErrEmbedding))
		Expect(err.Error()).To(ContainSubstring("invalid api key"))
	})
})
